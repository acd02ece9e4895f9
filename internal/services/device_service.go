package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fitos/notify/internal/models"
	apperrors "github.com/fitos/notify/pkg/errors"
)

// RegisterDeviceInput describes a push registration from a client app.
type RegisterDeviceInput struct {
	Token    string `json:"token" validate:"required,max=512"`
	Platform string `json:"platform" validate:"required,oneof=ios android web"`
}

// DeviceService tracks push gateway tokens per user.
type DeviceService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDeviceService constructs a DeviceService.
func NewDeviceService(db *gorm.DB) (*DeviceService, error) {
	if db == nil {
		return nil, errors.New("device service: db is required")
	}
	return &DeviceService{db: db, now: time.Now}, nil
}

// Register stores token for userID. A token already registered to another
// user moves to this one; the gateway token identifies an installation.
func (s *DeviceService) Register(ctx context.Context, userID string, input RegisterDeviceInput) (*models.DeviceToken, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	token := strings.TrimSpace(input.Token)
	if userID == "" || token == "" {
		return nil, apperrors.NewBadRequest("user id and token are required")
	}
	platform := strings.ToLower(strings.TrimSpace(input.Platform))
	switch platform {
	case models.PlatformIOS, models.PlatformAndroid, models.PlatformWeb:
	default:
		return nil, apperrors.NewBadRequest("platform must be ios, android or web")
	}

	device := models.DeviceToken{
		UserID:     userID,
		Token:      token,
		Platform:   platform,
		LastSeenAt: s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "platform", "last_seen_at", "updated_at"}),
	}).Create(&device).Error; err != nil {
		return nil, fmt.Errorf("device service: register token: %w", err)
	}

	var stored models.DeviceToken
	if err := s.db.WithContext(ctx).Where("token = ?", token).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("device service: reload token: %w", err)
	}
	return &stored, nil
}

// Unregister removes token if it belongs to userID.
func (s *DeviceService) Unregister(ctx context.Context, userID, token string) error {
	ctx = ensureContext(ctx)
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND token = ?", userID, strings.TrimSpace(token)).
		Delete(&models.DeviceToken{})
	if result.Error != nil {
		return fmt.Errorf("device service: unregister token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Forget removes token regardless of owner. Used when the gateway reports it
// as no longer registered.
func (s *DeviceService) Forget(ctx context.Context, token string) error {
	ctx = ensureContext(ctx)
	if err := s.db.WithContext(ctx).Where("token = ?", token).Delete(&models.DeviceToken{}).Error; err != nil {
		return fmt.Errorf("device service: forget token: %w", err)
	}
	return nil
}

// Latest returns the most recently seen token for userID, or nil.
func (s *DeviceService) Latest(ctx context.Context, userID string) (*models.DeviceToken, error) {
	ctx = ensureContext(ctx)
	var device models.DeviceToken
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_seen_at DESC").
		First(&device).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("device service: load token: %w", err)
	}
	return &device, nil
}

// UsersWithTokens reports which of userIDs have at least one registered token.
func (s *DeviceService) UsersWithTokens(ctx context.Context, userIDs []string) (map[string]bool, error) {
	ctx = ensureContext(ctx)
	userIDs = normaliseIDs(userIDs)
	out := make(map[string]bool, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	var owners []string
	if err := s.db.WithContext(ctx).
		Model(&models.DeviceToken{}).
		Where("user_id IN ?", userIDs).
		Distinct().
		Pluck("user_id", &owners).Error; err != nil {
		return nil, fmt.Errorf("device service: load owners: %w", err)
	}
	for _, id := range owners {
		out[id] = true
	}
	return out, nil
}
