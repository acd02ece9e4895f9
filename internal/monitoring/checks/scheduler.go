package checks

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/fitos/notify/internal/app/scheduler"
	"github.com/fitos/notify/internal/monitoring"
)

const defaultSchedulerMaxAge = 26 * time.Hour

// JobStatusSource reports the last outcome of each scheduled job.
type JobStatusSource interface {
	Status() map[string]scheduler.JobStatus
}

// Scheduler verifies that scheduled jobs succeed and keep running. A job whose
// last run failed degrades the probe, as does a scheduled job that has not
// run within maxAge. Jobs without a schedule are ignored for staleness.
func Scheduler(source JobStatusSource, maxAge time.Duration, now func() time.Time) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultSchedulerMaxAge
	}
	if now == nil {
		now = time.Now
	}

	return monitoring.NewCheck("scheduler", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if source == nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusUp,
				Details:  "scheduler disabled",
				Duration: time.Since(start),
			}
		}

		jobs := source.Status()
		names := make([]string, 0, len(jobs))
		for name := range jobs {
			names = append(names, name)
		}
		sort.Strings(names)

		status := monitoring.StatusUp
		var problems []string
		current := now()

		for _, name := range names {
			job := jobs[name]
			if job.LastError != "" {
				status = monitoring.WorstStatus(status, monitoring.StatusDegraded)
				problems = append(problems, name+": "+job.LastError)
			}
			if job.Schedule != "" && !job.LastRun.IsZero() && current.Sub(job.LastRun) > maxAge {
				status = monitoring.WorstStatus(status, monitoring.StatusDegraded)
				problems = append(problems, name+": stale run "+job.LastRun.UTC().Format(time.RFC3339))
			}
		}

		return monitoring.ProbeResult{
			Status:   status,
			Details:  strings.Join(problems, "; "),
			Duration: time.Since(start),
		}
	})
}
