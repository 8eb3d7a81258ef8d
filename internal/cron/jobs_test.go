package cron_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/flemzord/mnemo/internal/cron"
	"github.com/flemzord/mnemo/internal/cron/crontest"
)

func TestUsageRetentionJob_Defaults(t *testing.T) {
	t.Parallel()

	j := &cron.UsageRetentionJob{}
	if j.Name() != "usage_retention" {
		t.Errorf("name = %q", j.Name())
	}
	if j.Schedule() != "17 3 * * *" {
		t.Errorf("schedule = %q", j.Schedule())
	}

	j.ScheduleExpr = "0 * * * *"
	if j.Schedule() != "0 * * * *" {
		t.Errorf("custom schedule = %q", j.Schedule())
	}
}

func TestUsageRetentionJob_Run(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		retention time.Duration
		want      time.Time
	}{
		{name: "explicit", retention: 24 * time.Hour, want: now.Add(-24 * time.Hour)},
		{name: "default", retention: 0, want: now.Add(-cron.DefaultUsageRetention)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pruner := &crontest.MockUsagePruner{
				PruneFunc: func(context.Context, time.Time) (int, error) { return 4, nil },
			}
			j := &cron.UsageRetentionJob{
				Pruner:    pruner,
				Retention: tt.retention,
				Logger:    slog.Default(),
				Now:       func() time.Time { return now },
			}
			if err := j.Run(context.Background()); err != nil {
				t.Fatalf("Run: %v", err)
			}
			cutoffs := pruner.Cutoffs()
			if len(cutoffs) != 1 || !cutoffs[0].Equal(tt.want) {
				t.Errorf("cutoffs = %v, want [%v]", cutoffs, tt.want)
			}
		})
	}
}

func TestUsageRetentionJob_PrunerError(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	j := &cron.UsageRetentionJob{
		Pruner: &crontest.MockUsagePruner{
			PruneFunc: func(context.Context, time.Time) (int, error) { return 0, cause },
		},
	}
	if err := j.Run(context.Background()); !errors.Is(err, cause) {
		t.Errorf("err = %v, want %v", err, cause)
	}
}

func TestUsageRetentionJob_Cancelled(t *testing.T) {
	t.Parallel()

	pruner := &crontest.MockUsagePruner{}
	j := &cron.UsageRetentionJob{Pruner: pruner}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := j.Run(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if len(pruner.Cutoffs()) != 0 {
		t.Error("pruner called despite cancellation")
	}
}

func TestScheduler_RunNow(t *testing.T) {
	t.Parallel()

	job := &crontest.MockJob{NameVal: "manual", ScheduleVal: "0 0 1 1 *"}
	s := cron.NewScheduler(nil)
	if err := s.RegisterJob(job); err != nil {
		t.Fatalf("RegisterJob: %v", err)
	}

	if !s.RunNow(context.Background(), "manual") {
		t.Fatal("RunNow reported the job did not run")
	}
	if job.CallCount() != 1 {
		t.Errorf("calls = %d, want 1", job.CallCount())
	}
	if s.RunNow(context.Background(), "unknown") {
		t.Error("RunNow ran an unknown job")
	}
}

func TestScheduler_RunNowSkipsWhileRunning(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	job := &crontest.MockJob{
		NameVal:     "slow",
		ScheduleVal: "0 0 1 1 *",
		RunFunc: func(context.Context) error {
			close(started)
			<-release
			return nil
		},
	}
	s := cron.NewScheduler(nil)
	_ = s.RegisterJob(job)

	done := make(chan bool)
	go func() { done <- s.RunNow(context.Background(), "slow") }()
	<-started

	if s.RunNow(context.Background(), "slow") {
		t.Error("second run should be skipped while the first is in flight")
	}
	close(release)
	if !<-done {
		t.Error("first run reported skipped")
	}
}

type countingSweeper struct{ calls, evict int }

func (s *countingSweeper) Sweep() int {
	s.calls++
	return s.evict
}

func TestRateLimitSweepJob(t *testing.T) {
	t.Parallel()

	sw := &countingSweeper{evict: 3}
	j := &cron.RateLimitSweepJob{Limiter: sw, Logger: slog.Default()}
	if j.Name() != "rate_limit_sweep" {
		t.Errorf("name = %q", j.Name())
	}
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sw.calls != 1 {
		t.Errorf("sweeps = %d, want 1", sw.calls)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := j.Run(ctx); err == nil {
		t.Error("Run on a cancelled context should fail")
	}
	if sw.calls != 1 {
		t.Errorf("sweeps after cancelled run = %d, want 1", sw.calls)
	}
}
