package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultUsageRetention is how long usage records are kept when no
// retention is configured.
const DefaultUsageRetention = 90 * 24 * time.Hour

// UsagePruner deletes usage records created before cutoff.
// usage.Repository satisfies it.
type UsagePruner interface {
	PruneUsage(ctx context.Context, cutoff time.Time) (int, error)
}

// UsageRetentionJob removes usage records older than Retention.
type UsageRetentionJob struct {
	Pruner       UsagePruner
	Retention    time.Duration // zero = DefaultUsageRetention
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "17 3 * * *"

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Compile-time interface check.
var _ Job = (*UsageRetentionJob)(nil)

// Name implements Job.
func (j *UsageRetentionJob) Name() string {
	return "usage_retention"
}

// Schedule implements Job.
func (j *UsageRetentionJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "17 3 * * *"
}

// Run prunes usage records created before now minus Retention.
func (j *UsageRetentionJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: usage retention cancelled: %w", ctx.Err())
	}

	retention := j.Retention
	if retention <= 0 {
		retention = DefaultUsageRetention
	}
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	cutoff := now().Add(-retention)

	pruned, err := j.Pruner.PruneUsage(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("cron: prune usage: %w", err)
	}
	if pruned > 0 && j.Logger != nil {
		j.Logger.Info("cron: pruned usage records", "count", pruned, "cutoff", cutoff)
	}
	return nil
}

// Sweeper drops idle state. security.RateLimiter satisfies it.
type Sweeper interface {
	Sweep() int
}

// RateLimitSweepJob evicts rate limiter buckets with no recent events.
type RateLimitSweepJob struct {
	Limiter Sweeper
	Logger  *slog.Logger
}

// Compile-time interface check.
var _ Job = (*RateLimitSweepJob)(nil)

// Name implements Job.
func (j *RateLimitSweepJob) Name() string {
	return "rate_limit_sweep"
}

// Schedule implements Job.
func (j *RateLimitSweepJob) Schedule() string {
	return "*/5 * * * *"
}

// Run implements Job.
func (j *RateLimitSweepJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: rate limit sweep cancelled: %w", ctx.Err())
	}
	if n := j.Limiter.Sweep(); n > 0 && j.Logger != nil {
		j.Logger.Debug("cron: swept rate limit buckets", "count", n)
	}
	return nil
}
