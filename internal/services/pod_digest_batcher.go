package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/fitos/notify/internal/models"
	"github.com/fitos/notify/pkg/logger"
)

const podDigestWindow = 7 * 24 * time.Hour

// PodDigestResult summarises a pod digest run.
type PodDigestResult struct {
	PodsProcessed     int      `json:"pods_processed"`
	NotificationsSent int      `json:"notifications_sent"`
	Errors            []string `json:"errors,omitempty"`
}

// PodActivity aggregates a pod's workouts over the digest window.
type PodActivity struct {
	Pod           models.Pod
	Workouts      int
	ActiveMembers int
}

// PodDigestBatcher sends each member of an active pod a weekly recap.
type PodDigestBatcher struct {
	db            *gorm.DB
	notifications *NotificationService
	preferences   *PreferenceService
	idempotency   *IdempotencyStore
	log           *zap.Logger
	now           func() time.Time
}

// NewPodDigestBatcher constructs a PodDigestBatcher.
func NewPodDigestBatcher(db *gorm.DB, notifications *NotificationService, preferences *PreferenceService, idempotency *IdempotencyStore) (*PodDigestBatcher, error) {
	if db == nil {
		return nil, errors.New("pod digest batcher: db is required")
	}
	if notifications == nil || preferences == nil || idempotency == nil {
		return nil, errors.New("pod digest batcher: dependencies are required")
	}
	return &PodDigestBatcher{
		db:            db,
		notifications: notifications,
		preferences:   preferences,
		idempotency:   idempotency,
		log:           logger.WithModule("pod_digest"),
		now:           time.Now,
	}, nil
}

// Run queues digests for every pod with at least one workout in the last 7 days.
func (b *PodDigestBatcher) Run(ctx context.Context) (PodDigestResult, error) {
	ctx = ensureContext(ctx)
	now := b.now().UTC()
	week := isoWeek(now)

	activity, err := b.ActivePods(ctx, now)
	if err != nil {
		return PodDigestResult{}, err
	}

	var memberIDs []string
	for _, pod := range activity {
		for _, member := range pod.Pod.Members {
			memberIDs = append(memberIDs, member.UserID)
		}
	}
	prefs, err := b.preferences.FindMany(ctx, memberIDs)
	if err != nil {
		return PodDigestResult{}, fmt.Errorf("pod digest batcher: %w", err)
	}

	var items []queuedNotification
	for _, pod := range activity {
		body := fmt.Sprintf("%s logged %d %s last week with %d of %d members active. Keep it going!",
			pod.Pod.Name, pod.Workouts, plural(pod.Workouts, "workout", "workouts"),
			pod.ActiveMembers, len(pod.Pod.Members))
		for _, member := range pod.Pod.Members {
			if !prefs[member.UserID].TypeEnabled(models.NotificationTypePodDigest) {
				continue
			}
			items = append(items, queuedNotification{
				key: fmt.Sprintf("pod_digest:%s:%s:%s", pod.Pod.ID, member.UserID, week),
				input: CreateNotificationInput{
					UserID:   member.UserID,
					Type:     models.NotificationTypePodDigest,
					Title:    pod.Pod.Name + " weekly recap",
					Body:     body,
					DeepLink: "/pods/" + pod.Pod.ID,
					Metadata: map[string]any{
						"pod_id":         pod.Pod.ID,
						"week":           week,
						"workouts":       pod.Workouts,
						"active_members": pod.ActiveMembers,
					},
				},
			})
		}
	}

	outcome := queueBatch(ctx, b.notifications, b.idempotency, b.log, ScopePodDigest, weeklyKeyTTL, items)
	result := PodDigestResult{
		PodsProcessed:     len(activity),
		NotificationsSent: outcome.sent,
		Errors:            outcome.errors,
	}
	b.log.Info("pod digest batch finished",
		zap.String("week", week),
		zap.Int("pods", result.PodsProcessed),
		zap.Int("sent", result.NotificationsSent))
	return result, nil
}

// ActivePods returns pods whose members logged at least one workout in the
// seven days before now, with their members loaded.
func (b *PodDigestBatcher) ActivePods(ctx context.Context, now time.Time) ([]PodActivity, error) {
	var (
		pods     []models.Pod
		workouts []models.WorkoutLog
		group    errgroup.Group
	)
	group.Go(func() error {
		if err := b.db.WithContext(ctx).Preload("Members").Order("name").Find(&pods).Error; err != nil {
			return fmt.Errorf("pod digest batcher: load pods: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		if err := b.db.WithContext(ctx).
			Select("user_id").
			Where("completed_at >= ? AND completed_at <= ?", now.Add(-podDigestWindow), now).
			Find(&workouts).Error; err != nil {
			return fmt.Errorf("pod digest batcher: load workouts: %w", err)
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	perUser := make(map[string]int, len(workouts))
	for _, workout := range workouts {
		perUser[workout.UserID]++
	}

	var out []PodActivity
	for _, pod := range pods {
		activity := PodActivity{Pod: pod}
		for _, member := range pod.Members {
			if n := perUser[member.UserID]; n > 0 {
				activity.Workouts += n
				activity.ActiveMembers++
			}
		}
		if activity.Workouts > 0 {
			out = append(out, activity)
		}
	}
	return out, nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
