package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/fitos/notify/internal/models"
	apperrors "github.com/fitos/notify/pkg/errors"
)

const maxDailyLimit = 20

// UpdatePreferencesInput carries a partial preference update. Nil fields keep
// their current value.
type UpdatePreferencesInput struct {
	QuietHoursStart   *string `json:"quiet_hours_start" validate:"omitempty,hhmm"`
	QuietHoursEnd     *string `json:"quiet_hours_end" validate:"omitempty,hhmm"`
	MaxDaily          *int    `json:"max_daily" validate:"omitempty,gte=1,lte=20"`
	PushEnabled       *bool   `json:"push_enabled"`
	Reminder60Enabled *bool   `json:"reminder_60_enabled"`
	Reminder15Enabled *bool   `json:"reminder_15_enabled"`
	CheckinEnabled    *bool   `json:"checkin_enabled"`
	PodDigestEnabled  *bool   `json:"pod_digest_enabled"`
	SurveyEnabled     *bool   `json:"survey_enabled"`
	ReviewEnabled     *bool   `json:"review_enabled"`
}

// PreferenceService reads and writes per-user delivery policy.
type PreferenceService struct {
	db *gorm.DB
}

// NewPreferenceService constructs a PreferenceService.
func NewPreferenceService(db *gorm.DB) (*PreferenceService, error) {
	if db == nil {
		return nil, errors.New("preference service: db is required")
	}
	return &PreferenceService{db: db}, nil
}

// Find returns the stored preferences for userID, or nil when the user never
// saved any.
func (s *PreferenceService) Find(ctx context.Context, userID string) (*models.NotificationPreference, error) {
	ctx = ensureContext(ctx)
	var pref models.NotificationPreference
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&pref).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("preference service: load preferences: %w", err)
	}
	return &pref, nil
}

// FindMany returns stored preferences keyed by user id. Users without a row
// are absent from the map.
func (s *PreferenceService) FindMany(ctx context.Context, userIDs []string) (map[string]*models.NotificationPreference, error) {
	ctx = ensureContext(ctx)
	userIDs = normaliseIDs(userIDs)
	out := make(map[string]*models.NotificationPreference, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	var rows []models.NotificationPreference
	if err := s.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("preference service: load preferences: %w", err)
	}
	for i := range rows {
		out[rows[i].UserID] = &rows[i]
	}
	return out, nil
}

// Get returns the effective preferences for userID, falling back to defaults.
func (s *PreferenceService) Get(ctx context.Context, userID string) (models.NotificationPreference, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.NotificationPreference{}, apperrors.NewBadRequest("user id is required")
	}

	pref, err := s.Find(ctx, userID)
	if err != nil {
		return models.NotificationPreference{}, err
	}
	if pref == nil {
		return models.DefaultNotificationPreference(userID), nil
	}
	return *pref, nil
}

// Update applies input on top of the effective preferences and stores the result.
func (s *PreferenceService) Update(ctx context.Context, userID string, input UpdatePreferencesInput) (models.NotificationPreference, error) {
	ctx = ensureContext(ctx)
	pref, err := s.Get(ctx, userID)
	if err != nil {
		return models.NotificationPreference{}, err
	}
	if err := applyPreferenceUpdate(&pref, input); err != nil {
		return models.NotificationPreference{}, err
	}

	if pref.ID == "" {
		err = s.db.WithContext(ctx).Create(&pref).Error
		if err == nil {
			return pref, nil
		}
		if !isUniqueViolation(err) {
			return models.NotificationPreference{}, fmt.Errorf("preference service: create preferences: %w", err)
		}
		// Lost a race with a concurrent first write; apply on top of the winner.
		pref, err = s.Get(ctx, userID)
		if err != nil {
			return models.NotificationPreference{}, err
		}
		if err := applyPreferenceUpdate(&pref, input); err != nil {
			return models.NotificationPreference{}, err
		}
	}

	if err := s.db.WithContext(ctx).Save(&pref).Error; err != nil {
		return models.NotificationPreference{}, fmt.Errorf("preference service: save preferences: %w", err)
	}
	return pref, nil
}

func applyPreferenceUpdate(pref *models.NotificationPreference, input UpdatePreferencesInput) error {
	if input.QuietHoursStart != nil {
		value := strings.TrimSpace(*input.QuietHoursStart)
		if _, err := ParseClock(value); err != nil {
			return apperrors.NewBadRequest("quiet_hours_start must be HH:MM")
		}
		pref.QuietHoursStart = value
	}
	if input.QuietHoursEnd != nil {
		value := strings.TrimSpace(*input.QuietHoursEnd)
		if _, err := ParseClock(value); err != nil {
			return apperrors.NewBadRequest("quiet_hours_end must be HH:MM")
		}
		pref.QuietHoursEnd = value
	}
	if input.MaxDaily != nil {
		if *input.MaxDaily < 1 || *input.MaxDaily > maxDailyLimit {
			return apperrors.NewBadRequest(fmt.Sprintf("max_daily must be between 1 and %d", maxDailyLimit))
		}
		pref.MaxDaily = *input.MaxDaily
	}

	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	setBool(&pref.PushEnabled, input.PushEnabled)
	setBool(&pref.Reminder60Enabled, input.Reminder60Enabled)
	setBool(&pref.Reminder15Enabled, input.Reminder15Enabled)
	setBool(&pref.CheckinEnabled, input.CheckinEnabled)
	setBool(&pref.PodDigestEnabled, input.PodDigestEnabled)
	setBool(&pref.SurveyEnabled, input.SurveyEnabled)
	setBool(&pref.ReviewEnabled, input.ReviewEnabled)
	return nil
}
