// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"
	"time"

	"github.com/flemzord/mnemo/internal/cron"
)

// MockJob is a configurable test double for cron.Job.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error

	mu       sync.Mutex
	calls    int
	lastCall time.Time
}

// Compile-time interface check.
var _ cron.Job = (*MockJob)(nil)

// Name implements cron.Job.
func (m *MockJob) Name() string { return m.NameVal }

// Schedule implements cron.Job.
func (m *MockJob) Schedule() string { return m.ScheduleVal }

// Run implements cron.Job and increments the call counter.
func (m *MockJob) Run(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	m.lastCall = time.Now()
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return nil
}

// CallCount returns the number of times Run was called.
func (m *MockJob) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastCall returns the time of the last Run call.
func (m *MockJob) LastCall() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCall
}

// MockUsagePruner is a test double for cron.UsagePruner.
type MockUsagePruner struct {
	PruneFunc func(ctx context.Context, cutoff time.Time) (int, error)

	mu      sync.Mutex
	cutoffs []time.Time
}

// Compile-time interface check.
var _ cron.UsagePruner = (*MockUsagePruner)(nil)

// PruneUsage implements cron.UsagePruner.
func (m *MockUsagePruner) PruneUsage(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	m.cutoffs = append(m.cutoffs, cutoff)
	m.mu.Unlock()
	if m.PruneFunc != nil {
		return m.PruneFunc(ctx, cutoff)
	}
	return 0, nil
}

// Cutoffs returns the cutoffs PruneUsage was called with.
func (m *MockUsagePruner) Cutoffs() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.cutoffs...)
}
