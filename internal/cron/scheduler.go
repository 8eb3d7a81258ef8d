package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/flemzord/mnemo/internal/core"
)

// Scheduler manages periodic job execution using cron expressions.
// Each job is protected by a per-job mutex to prevent parallel execution
// of the same job (uses TryLock, so check and acquire are atomic).
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   []Job
	names  map[string]struct{}
	locks  map[string]*sync.Mutex
	logger *slog.Logger
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler. Jobs must be registered before Start().
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		names:  make(map[string]struct{}),
		locks:  make(map[string]*sync.Mutex),
		logger: logger.With("component", "cron"),
	}
}

// ModuleInfo lets the scheduler join the application lifecycle.
func (s *Scheduler) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "cron"}
}

// Interface guards.
var (
	_ core.Module  = (*Scheduler)(nil)
	_ core.Starter = (*Scheduler)(nil)
	_ core.Stopper = (*Scheduler)(nil)
)

// RegisterJob adds a job to the scheduler. Must be called before Start().
// Returns an error if a job with the same name is already registered.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, exists := s.names[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}

	s.names[name] = struct{}{}
	s.locks[name] = &sync.Mutex{}
	s.jobs = append(s.jobs, j)
	return nil
}

// Start initializes the cron scheduler and begins executing registered jobs.
// Returns an error if any job has an invalid schedule expression.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.cron = cron.New(cron.WithParser(scheduleParser))

	for _, job := range s.jobs {
		_, err := s.cron.AddFunc(job.Schedule(), func() {
			s.runJob(ctx, job)
		})
		if err != nil {
			cancel()
			return fmt.Errorf("cron: invalid schedule for job %q: %w", job.Name(), err)
		}
	}

	s.cron.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop gracefully shuts down the scheduler, waiting for in-flight jobs.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		// Wait for running jobs to complete.
		<-s.cron.Stop().Done()
		s.logger.Info("cron: scheduler stopped")
	}
	return nil
}

// RunNow executes the named job immediately, outside its schedule.
// It reports false when the job is unknown or already running.
func (s *Scheduler) RunNow(ctx context.Context, name string) bool {
	s.mu.Lock()
	var job Job
	for _, j := range s.jobs {
		if j.Name() == name {
			job = j
			break
		}
	}
	s.mu.Unlock()
	if job == nil {
		return false
	}
	return s.runJob(ctx, job)
}

// runJob runs job unless a previous run is still in flight.
func (s *Scheduler) runJob(ctx context.Context, job Job) bool {
	lock := s.locks[job.Name()]
	if !lock.TryLock() {
		s.logger.Warn("cron: job still running, skipping tick", "job", job.Name())
		return false
	}
	defer lock.Unlock()

	s.logger.Debug("cron: job started", "job", job.Name())
	if err := job.Run(ctx); err != nil {
		s.logger.Error("cron: job failed", "job", job.Name(), "error", err)
	} else {
		s.logger.Debug("cron: job completed", "job", job.Name())
	}
	return true
}
