// Package cron runs periodic background maintenance such as usage
// retention.
package cron

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// scheduleParser accepts 5-field expressions and descriptors like "@daily".
var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Job defines a periodic background task.
type Job interface {
	// Name identifies the job in logs and RunNow. Names are unique per
	// scheduler.
	Name() string

	// Schedule returns a 5-field cron expression (e.g., "*/5 * * * *")
	// or a descriptor such as "@hourly".
	Schedule() string

	// Run executes the job. Implementations should check ctx.Done() for
	// graceful cancellation.
	Run(ctx context.Context) error
}

// ValidateSchedule reports whether expr is a schedule the Scheduler accepts.
func ValidateSchedule(expr string) error {
	if _, err := scheduleParser.Parse(expr); err != nil {
		return fmt.Errorf("cron: invalid schedule %q: %w", expr, err)
	}
	return nil
}
