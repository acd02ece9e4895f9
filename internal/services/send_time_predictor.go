package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fitos/notify/internal/models"
	apperrors "github.com/fitos/notify/pkg/errors"
	"github.com/fitos/notify/pkg/logger"
)

const (
	// PredictionAlpha is the decay factor of the recency weighting: the i-th
	// most recent open weighs (1-alpha)^i.
	PredictionAlpha = 0.3
	// PredictionLookback bounds how far back opened events are considered.
	PredictionLookback = 90 * 24 * time.Hour
	// ActiveUserWindow selects users for a full run.
	ActiveUserWindow = 30 * 24 * time.Hour

	maxConfidence      = 0.95
	defaultConcurrency = 4
)

// OpenEventSource yields the times a user opened notifications.
type OpenEventSource interface {
	OpenTimes(ctx context.Context, userID string, since time.Time) ([]time.Time, error)
}

// DayPrediction is the predicted best hour for one weekday.
type DayPrediction struct {
	DayOfWeek     int
	PredictedHour int
	SampleSize    int
	Confidence    float64
}

// PredictRequest selects whose send times to recompute. An empty UserID
// means every user active in the last 30 days.
type PredictRequest struct {
	UserID string `json:"user_id"`
	All    bool   `json:"all"`
}

// PredictResult summarises a predictor run.
type PredictResult struct {
	UsersProcessed     int      `json:"users_processed"`
	PredictionsWritten int      `json:"predictions_written"`
	Errors             []string `json:"errors"`
}

// WeightedHour returns the recency-weighted mean of hours, rounded to the
// nearest hour. hours must be ordered most recent first.
func WeightedHour(hours []int) int {
	if len(hours) == 0 {
		return 0
	}
	var sum, weights float64
	weight := 1.0
	for _, hour := range hours {
		sum += float64(hour) * weight
		weights += weight
		weight *= 1 - PredictionAlpha
	}
	return int(math.Round(sum / weights))
}

// Confidence grows by 0.1 per sample and saturates at 0.95.
func Confidence(samples int) float64 {
	return math.Min(maxConfidence, float64(samples)/10)
}

// PredictSendTimes groups opens by UTC weekday and predicts an hour for each
// weekday that has at least one open. Results are ordered by weekday.
func PredictSendTimes(opens []time.Time) []DayPrediction {
	if len(opens) == 0 {
		return nil
	}

	ordered := make([]time.Time, len(opens))
	copy(ordered, opens)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].After(ordered[j]) })

	byDay := make(map[int][]int, 7)
	for _, opened := range ordered {
		opened = opened.UTC()
		day := int(opened.Weekday())
		byDay[day] = append(byDay[day], opened.Hour())
	}

	out := make([]DayPrediction, 0, len(byDay))
	for day, hours := range byDay {
		out = append(out, DayPrediction{
			DayOfWeek:     day,
			PredictedHour: WeightedHour(hours),
			SampleSize:    len(hours),
			Confidence:    Confidence(len(hours)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DayOfWeek < out[j].DayOfWeek })
	return out
}

// SendTimePredictor learns each user's best notification hour per weekday.
type SendTimePredictor struct {
	db          *gorm.DB
	source      OpenEventSource
	concurrency int
	log         *zap.Logger
	now         func() time.Time
}

// NewSendTimePredictor constructs a predictor. A nil source reads opened
// events from the database.
func NewSendTimePredictor(db *gorm.DB, source OpenEventSource, concurrency int) (*SendTimePredictor, error) {
	if db == nil {
		return nil, errors.New("send time predictor: db is required")
	}
	if source == nil {
		source = NewDatabaseOpenSource(db)
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &SendTimePredictor{
		db:          db,
		source:      source,
		concurrency: concurrency,
		log:         logger.WithModule("predictor"),
		now:         time.Now,
	}, nil
}

// Predict recomputes and upserts predictions. A failing user is reported in
// the result and does not stop the others.
func (p *SendTimePredictor) Predict(ctx context.Context, req PredictRequest) (PredictResult, error) {
	ctx = ensureContext(ctx)
	now := p.now().UTC()
	result := PredictResult{Errors: []string{}}

	userIDs, err := p.targets(ctx, req, now)
	if err != nil {
		return result, err
	}

	var (
		mu    sync.Mutex
		group errgroup.Group
	)
	group.SetLimit(p.concurrency)
	since := now.Add(-PredictionLookback)

	for _, userID := range userIDs {
		group.Go(func() error {
			written, err := p.predictUser(ctx, userID, since)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.log.Warn("prediction failed", zap.String("user_id", userID), zap.Error(err))
				result.Errors = append(result.Errors, fmt.Sprintf("user %s: %v", userID, err))
				return nil
			}
			result.UsersProcessed++
			result.PredictionsWritten += written
			return nil
		})
	}
	_ = group.Wait()

	p.log.Info("send time prediction finished",
		zap.Int("users", result.UsersProcessed),
		zap.Int("predictions", result.PredictionsWritten),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

// Predictions returns the stored predictions for userID ordered by weekday.
func (p *SendTimePredictor) Predictions(ctx context.Context, userID string) ([]models.SendTimePrediction, error) {
	ctx = ensureContext(ctx)
	var rows []models.SendTimePrediction
	if err := p.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("day_of_week ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("send time predictor: list predictions: %w", err)
	}
	return rows, nil
}

func (p *SendTimePredictor) targets(ctx context.Context, req PredictRequest, now time.Time) ([]string, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID != "" {
		var count int64
		if err := p.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("send time predictor: load user: %w", err)
		}
		if count == 0 {
			return nil, apperrors.NewNotFound("user not found")
		}
		return []string{userID}, nil
	}

	var ids []string
	if err := p.db.WithContext(ctx).
		Model(&models.User{}).
		Where("last_active_at >= ?", now.Add(-ActiveUserWindow)).
		Order("id").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("send time predictor: load active users: %w", err)
	}
	return ids, nil
}

func (p *SendTimePredictor) predictUser(ctx context.Context, userID string, since time.Time) (int, error) {
	opens, err := p.source.OpenTimes(ctx, userID, since)
	if err != nil {
		return 0, err
	}
	predictions := PredictSendTimes(opens)
	if len(predictions) == 0 {
		return 0, nil
	}

	rows := make([]models.SendTimePrediction, 0, len(predictions))
	for _, prediction := range predictions {
		rows = append(rows, models.SendTimePrediction{
			UserID:        userID,
			DayOfWeek:     prediction.DayOfWeek,
			PredictedHour: prediction.PredictedHour,
			SampleSize:    prediction.SampleSize,
			Confidence:    prediction.Confidence,
		})
	}

	if err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "day_of_week"}},
		DoUpdates: clause.AssignmentColumns([]string{"predicted_hour", "sample_size", "confidence", "updated_at"}),
	}).Create(&rows).Error; err != nil {
		return 0, fmt.Errorf("upsert predictions: %w", err)
	}
	return len(rows), nil
}

// DatabaseOpenSource reads opened events recorded by the notification service.
type DatabaseOpenSource struct {
	db *gorm.DB
}

// NewDatabaseOpenSource constructs a DatabaseOpenSource.
func NewDatabaseOpenSource(db *gorm.DB) *DatabaseOpenSource {
	return &DatabaseOpenSource{db: db}
}

func (s *DatabaseOpenSource) OpenTimes(ctx context.Context, userID string, since time.Time) ([]time.Time, error) {
	var events []models.NotificationEvent
	if err := s.db.WithContext(ctx).
		Select("occurred_at").
		Where("user_id = ? AND event = ? AND occurred_at >= ?", userID, models.EventOpened, since).
		Order("occurred_at DESC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("load opened events: %w", err)
	}
	out := make([]time.Time, 0, len(events))
	for _, event := range events {
		out = append(out, event.OccurredAt)
	}
	return out, nil
}
