package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fitos/notify/internal/models"
	apperrors "github.com/fitos/notify/pkg/errors"
	"github.com/fitos/notify/pkg/logger"
)

// NPSWindow is both the minimum client tenure and the minimum gap between
// surveys for a trainer or a client.
const NPSWindow = 90 * 24 * time.Hour

// NPSRequest optionally restricts a run to one trainer.
type NPSRequest struct {
	TrainerID string `json:"trainer_id"`
}

// NPSResult summarises an NPS run.
type NPSResult struct {
	TrainersProcessed int      `json:"trainers_processed"`
	SurveysCreated    int      `json:"surveys_created"`
	NotificationsSent int      `json:"notifications_sent"`
	Errors            []string `json:"errors,omitempty"`
}

// NPSAnswerInput is a client's answer to a survey slot.
type NPSAnswerInput struct {
	Score    *int   `json:"score" validate:"required,gte=0,lte=10"`
	Feedback string `json:"feedback" validate:"max=2000"`
}

// NPSBatcher creates survey rounds for trainers and notifies their clients.
type NPSBatcher struct {
	db            *gorm.DB
	notifications *NotificationService
	preferences   *PreferenceService
	log           *zap.Logger
	now           func() time.Time
}

// NewNPSBatcher constructs an NPSBatcher.
func NewNPSBatcher(db *gorm.DB, notifications *NotificationService, preferences *PreferenceService) (*NPSBatcher, error) {
	if db == nil {
		return nil, errors.New("nps batcher: db is required")
	}
	if notifications == nil || preferences == nil {
		return nil, errors.New("nps batcher: dependencies are required")
	}
	return &NPSBatcher{
		db:            db,
		notifications: notifications,
		preferences:   preferences,
		log:           logger.WithModule("nps"),
		now:           time.Now,
	}, nil
}

type trainerClientPair struct {
	TrainerID string
	ClientID  string
}

// Run creates one survey per trainer with eligible clients. A client is
// eligible once their first completed session with the trainer is at least
// 90 days old and they have not been surveyed in the last 90 days. A trainer
// surveyed in the last 90 days is skipped; when req names that trainer the
// run fails with a conflict instead.
func (b *NPSBatcher) Run(ctx context.Context, req NPSRequest) (NPSResult, error) {
	ctx = ensureContext(ctx)
	now := b.now().UTC()
	cutoff := now.Add(-NPSWindow)
	result := NPSResult{}

	trainerID := strings.TrimSpace(req.TrainerID)
	if trainerID != "" {
		if err := b.checkTrainer(ctx, trainerID, cutoff); err != nil {
			return result, err
		}
	}

	byTrainer, order, err := b.eligibleClients(ctx, trainerID, cutoff)
	if err != nil {
		return result, err
	}

	for _, tid := range order {
		result.TrainersProcessed++
		surveyed, err := b.surveyedSince(ctx, tid, cutoff)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("trainer %s: %v", tid, err))
			continue
		}
		if surveyed {
			continue
		}

		survey, responses, err := b.createSurvey(ctx, tid, byTrainer[tid], now)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("trainer %s: %v", tid, err))
			continue
		}
		result.SurveysCreated++

		trainers, err := loadUsers(ctx, b.db, []string{tid})
		if err != nil {
			b.log.Warn("load trainer failed", zap.String("trainer_id", tid), zap.Error(err))
		}
		inputs := make([]CreateNotificationInput, 0, len(responses))
		for _, response := range responses {
			inputs = append(inputs, npsNotification(survey, response, trainers[tid]))
		}
		stored, failures := b.notifications.CreateBatch(ctx, inputs)
		result.NotificationsSent += len(stored)
		for _, failure := range failures {
			result.Errors = append(result.Errors, fmt.Sprintf("response %s: %v", responses[failure.Index].ID, failure.Err))
		}
	}

	b.log.Info("nps batch finished",
		zap.Int("trainers", result.TrainersProcessed),
		zap.Int("surveys", result.SurveysCreated),
		zap.Int("sent", result.NotificationsSent))
	return result, nil
}

// Respond records a client's score on their survey slot.
func (b *NPSBatcher) Respond(ctx context.Context, clientID, responseID string, input NPSAnswerInput) (*models.NPSResponse, error) {
	ctx = ensureContext(ctx)
	if input.Score == nil || *input.Score < 0 || *input.Score > 10 {
		return nil, apperrors.NewBadRequest("score must be between 0 and 10")
	}

	var response models.NPSResponse
	if err := b.db.WithContext(ctx).
		Where("id = ? AND client_id = ?", responseID, clientID).
		First(&response).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("survey response not found")
		}
		return nil, fmt.Errorf("nps batcher: load response: %w", err)
	}
	if response.Score != nil {
		return nil, apperrors.NewConflict("survey already answered")
	}

	now := b.now().UTC()
	score := *input.Score
	result := b.db.WithContext(ctx).
		Model(&models.NPSResponse{}).
		Where("id = ? AND score IS NULL", response.ID).
		Updates(map[string]any{
			"score":        score,
			"feedback":     strings.TrimSpace(input.Feedback),
			"responded_at": now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("nps batcher: save response: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, apperrors.NewConflict("survey already answered")
	}

	response.Score = &score
	response.Feedback = strings.TrimSpace(input.Feedback)
	response.RespondedAt = &now
	return &response, nil
}

func (b *NPSBatcher) checkTrainer(ctx context.Context, trainerID string, cutoff time.Time) error {
	var count int64
	if err := b.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND role = ?", trainerID, models.RoleTrainer).
		Count(&count).Error; err != nil {
		return fmt.Errorf("nps batcher: load trainer: %w", err)
	}
	if count == 0 {
		return apperrors.NewNotFound("trainer not found")
	}

	surveyed, err := b.surveyedSince(ctx, trainerID, cutoff)
	if err != nil {
		return err
	}
	if surveyed {
		return apperrors.NewConflict("trainer was surveyed in the last 90 days")
	}
	return nil
}

// eligibleClients returns eligible client ids grouped by trainer, plus the
// trainer ids in a stable order.
func (b *NPSBatcher) eligibleClients(ctx context.Context, trainerID string, cutoff time.Time) (map[string][]string, []string, error) {
	query := b.db.WithContext(ctx).
		Model(&models.Appointment{}).
		Select("trainer_id, client_id").
		Where("status = ?", models.AppointmentCompleted).
		Group("trainer_id, client_id").
		Having("MIN(starts_at) <= ?", cutoff).
		Order("trainer_id, client_id")
	if trainerID != "" {
		query = query.Where("trainer_id = ?", trainerID)
	}

	var pairs []trainerClientPair
	if err := query.Scan(&pairs).Error; err != nil {
		return nil, nil, fmt.Errorf("nps batcher: load tenure: %w", err)
	}
	if len(pairs) == 0 {
		return map[string][]string{}, nil, nil
	}

	clientIDs := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		clientIDs = append(clientIDs, pair.ClientID)
	}

	var recent []string
	if err := b.db.WithContext(ctx).
		Model(&models.NPSResponse{}).
		Joins("JOIN nps_surveys ON nps_surveys.id = nps_responses.survey_id").
		Where("nps_responses.client_id IN ? AND nps_surveys.sent_at >= ?", normaliseIDs(clientIDs), cutoff).
		Distinct().
		Pluck("nps_responses.client_id", &recent).Error; err != nil {
		return nil, nil, fmt.Errorf("nps batcher: load recent responses: %w", err)
	}
	surveyed := make(map[string]bool, len(recent))
	for _, id := range recent {
		surveyed[id] = true
	}

	prefs, err := b.preferences.FindMany(ctx, clientIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("nps batcher: %w", err)
	}

	byTrainer := make(map[string][]string)
	var order []string
	for _, pair := range pairs {
		if surveyed[pair.ClientID] || !prefs[pair.ClientID].TypeEnabled(models.NotificationTypeNPSSurvey) {
			continue
		}
		if _, seen := byTrainer[pair.TrainerID]; !seen {
			order = append(order, pair.TrainerID)
		}
		byTrainer[pair.TrainerID] = append(byTrainer[pair.TrainerID], pair.ClientID)
	}
	return byTrainer, order, nil
}

func (b *NPSBatcher) surveyedSince(ctx context.Context, trainerID string, cutoff time.Time) (bool, error) {
	var count int64
	if err := b.db.WithContext(ctx).
		Model(&models.NPSSurvey{}).
		Where("trainer_id = ? AND sent_at >= ?", trainerID, cutoff).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("load surveys: %w", err)
	}
	return count > 0, nil
}

func (b *NPSBatcher) createSurvey(ctx context.Context, trainerID string, clientIDs []string, now time.Time) (models.NPSSurvey, []models.NPSResponse, error) {
	survey := models.NPSSurvey{TrainerID: trainerID, SentAt: now}
	responses := make([]models.NPSResponse, 0, len(clientIDs))

	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&survey).Error; err != nil {
			return fmt.Errorf("create survey: %w", err)
		}
		for _, clientID := range clientIDs {
			responses = append(responses, models.NPSResponse{SurveyID: survey.ID, ClientID: clientID})
		}
		if err := tx.Create(&responses).Error; err != nil {
			return fmt.Errorf("create responses: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.NPSSurvey{}, nil, err
	}
	return survey, responses, nil
}

func npsNotification(survey models.NPSSurvey, response models.NPSResponse, trainer *models.User) CreateNotificationInput {
	name := trainerName(trainer)
	return CreateNotificationInput{
		UserID:   response.ClientID,
		Type:     models.NotificationTypeNPSSurvey,
		Title:    "How are we doing?",
		Body:     fmt.Sprintf("On a scale of 0 to 10, how likely are you to recommend training with %s?", name),
		DeepLink: "/nps/" + response.ID,
		Metadata: map[string]any{
			"survey_id":   survey.ID,
			"response_id": response.ID,
			"trainer_id":  survey.TrainerID,
		},
	}
}
