package scheduler

import (
	"context"

	"github.com/fitos/notify/internal/app"
	"github.com/fitos/notify/internal/services"
)

// Job names, also used as metric labels.
const (
	JobReminders      = "reminders"
	JobPredictor      = "predictor"
	JobCheckins       = "checkins"
	JobPodDigests     = "pod_digests"
	JobNPS            = "nps"
	JobReviewRequests = "review_requests"
	JobRetention      = "retention"
)

// PipelineJobs binds the pipeline services to their configured schedules.
// Nil services are left unregistered.
func PipelineJobs(cfg app.SchedulerConfig, p *services.Pipeline) []Job {
	if p == nil {
		return nil
	}
	var jobs []Job
	if p.Reminders != nil {
		jobs = append(jobs, Job{Name: JobReminders, Spec: cfg.Reminders, Run: func(ctx context.Context) (any, error) {
			return p.Reminders.Scan(ctx)
		}})
	}
	if p.Predictor != nil {
		jobs = append(jobs, Job{Name: JobPredictor, Spec: cfg.Predictor, Run: func(ctx context.Context) (any, error) {
			return p.Predictor.Predict(ctx, services.PredictRequest{All: true})
		}})
	}
	if p.Checkins != nil {
		jobs = append(jobs, Job{Name: JobCheckins, Spec: cfg.Checkins, Run: func(ctx context.Context) (any, error) {
			return p.Checkins.Run(ctx)
		}})
	}
	if p.PodDigests != nil {
		jobs = append(jobs, Job{Name: JobPodDigests, Spec: cfg.PodDigests, Run: func(ctx context.Context) (any, error) {
			return p.PodDigests.Run(ctx)
		}})
	}
	if p.NPS != nil {
		jobs = append(jobs, Job{Name: JobNPS, Spec: cfg.NPS, Run: func(ctx context.Context) (any, error) {
			return p.NPS.Run(ctx, services.NPSRequest{})
		}})
	}
	if p.ReviewRequests != nil {
		jobs = append(jobs, Job{Name: JobReviewRequests, Spec: cfg.ReviewRequests, Run: func(ctx context.Context) (any, error) {
			return p.ReviewRequests.Run(ctx, services.ReviewRequest{})
		}})
	}
	if p.Retention != nil {
		jobs = append(jobs, Job{Name: JobRetention, Spec: cfg.Retention, Run: func(ctx context.Context) (any, error) {
			return p.Retention.Sweep(ctx)
		}})
	}
	return jobs
}
