package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fitos/notify/internal/broker"
	"github.com/fitos/notify/internal/models"
	"github.com/fitos/notify/internal/realtime"
	apperrors "github.com/fitos/notify/pkg/errors"
	"github.com/fitos/notify/pkg/logger"
	"github.com/fitos/notify/pkg/metrics"
)

const insertBatchSize = 100

// EventPublisher hands created notifications to the push forwarder.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// NotificationDTO represents the API-friendly notification payload.
type NotificationDTO struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	DeepLink  string         `json:"deep_link,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	IsRead    bool           `json:"is_read"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
}

// CreateNotificationInput defines attributes required to persist a notification.
type CreateNotificationInput struct {
	UserID   string
	Type     string
	Title    string
	Body     string
	DeepLink string
	Metadata map[string]any
}

// ListNotificationsInput defines filters for querying user notifications.
type ListNotificationsInput struct {
	UserID     string
	UnreadOnly bool
	Limit      int
	Offset     int
}

// BatchFailure reports one input of CreateBatch that was not stored.
type BatchFailure struct {
	Index int
	Err   error
}

// NotificationService manages queued in-app notifications.
type NotificationService struct {
	db        *gorm.DB
	hub       *realtime.Hub
	publisher EventPublisher
	log       *zap.Logger
	now       func() time.Time
}

// NewNotificationService constructs a NotificationService. hub and publisher
// are optional.
func NewNotificationService(db *gorm.DB, hub *realtime.Hub, publisher EventPublisher) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	return &NotificationService{
		db:        db,
		hub:       hub,
		publisher: publisher,
		log:       logger.WithModule("notifications"),
		now:       time.Now,
	}, nil
}

// ListForUser returns one page of notifications for the user ordered by
// recency, plus the total matching the filter.
func (s *NotificationService) ListForUser(ctx context.Context, input ListNotificationsInput) ([]NotificationDTO, int64, error) {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, 0, errors.New("notification service: user id is required")
	}

	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	query := s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
	if input.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("notification service: count notifications: %w", err)
	}

	var rows []models.Notification
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(max(0, input.Offset)).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("notification service: list notifications: %w", err)
	}

	return mapNotificationRows(rows), total, nil
}

// UnreadCount returns how many notifications the user has not read.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("notification service: count unread: %w", err)
	}
	return count, nil
}

// Create stores a single notification and fans it out.
func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)
	row, err := buildNotification(input)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("notification service: create notification: %w", err)
	}

	dto := mapNotification(row)
	s.afterCreate(ctx, dto)
	return &dto, nil
}

// CreateBatch stores many notifications with bulk inserts. When a bulk insert
// fails the rows are retried one by one so a single bad row does not sink the
// batch. Stored rows are returned in input order along with the failures.
func (s *NotificationService) CreateBatch(ctx context.Context, inputs []CreateNotificationInput) ([]NotificationDTO, []BatchFailure) {
	ctx = ensureContext(ctx)
	if len(inputs) == 0 {
		return nil, nil
	}

	var failures []BatchFailure
	rows := make([]models.Notification, 0, len(inputs))
	indexes := make([]int, 0, len(inputs))
	for i, input := range inputs {
		row, err := buildNotification(input)
		if err != nil {
			failures = append(failures, BatchFailure{Index: i, Err: err})
			continue
		}
		rows = append(rows, row)
		indexes = append(indexes, i)
	}

	stored := make([]NotificationDTO, 0, len(rows))
	for start := 0; start < len(rows); start += insertBatchSize {
		end := min(start+insertBatchSize, len(rows))
		chunk := rows[start:end]

		err := s.db.WithContext(ctx).Create(&chunk).Error
		if err == nil {
			for _, row := range chunk {
				stored = append(stored, mapNotification(row))
			}
			continue
		}
		s.log.Warn("bulk insert failed, retrying rows individually",
			zap.Int("rows", len(chunk)), zap.Error(err))

		for offset := range chunk {
			row := chunk[offset]
			row.ID = ""
			if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
				failures = append(failures, BatchFailure{
					Index: indexes[start+offset],
					Err:   fmt.Errorf("notification service: create notification: %w", err),
				})
				continue
			}
			stored = append(stored, mapNotification(row))
		}
	}

	for _, dto := range stored {
		s.afterCreate(ctx, dto)
	}
	return stored, failures
}

// MarkRead sets the notification read flag for a user.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)
	notification, err := s.load(ctx, userID, notificationID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(notification).
		Updates(map[string]any{
			"is_read": true,
			"read_at": now,
		}).Error; err != nil {
		return nil, fmt.Errorf("notification service: mark read: %w", err)
	}

	notification.IsRead = true
	notification.ReadAt = &now
	dto := mapNotification(*notification)

	s.broadcast(userID, realtime.Event{
		Event:          realtime.EventNotificationRead,
		Notification:   &dto,
		NotificationID: notification.ID,
	})
	return &dto, nil
}

// MarkUnread unsets the notification read flag.
func (s *NotificationService) MarkUnread(ctx context.Context, userID, notificationID string) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)
	notification, err := s.load(ctx, userID, notificationID)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(notification).
		Updates(map[string]any{
			"is_read": false,
			"read_at": nil,
		}).Error; err != nil {
		return nil, fmt.Errorf("notification service: mark unread: %w", err)
	}

	notification.IsRead = false
	notification.ReadAt = nil
	dto := mapNotification(*notification)

	s.broadcast(userID, realtime.Event{
		Event:          realtime.EventNotificationRead,
		Notification:   &dto,
		NotificationID: notification.ID,
	})
	return &dto, nil
}

// Delete removes a notification owned by the supplied user.
func (s *NotificationService) Delete(ctx context.Context, userID, notificationID string) error {
	ctx = ensureContext(ctx)
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return fmt.Errorf("notification service: delete notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	s.broadcast(userID, realtime.Event{
		Event:          realtime.EventNotificationDeleted,
		NotificationID: notificationID,
	})
	return nil
}

// MarkAllRead marks all notifications for the user as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)
	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{
			"is_read": true,
			"read_at": s.now().UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("notification service: mark all read: %w", result.Error)
	}

	s.broadcast(userID, realtime.Event{Event: realtime.EventAllRead})
	return result.RowsAffected, nil
}

// RecordOpen stores an opened event for the notification. The send-time
// predictor learns from these.
func (s *NotificationService) RecordOpen(ctx context.Context, userID, notificationID string) error {
	ctx = ensureContext(ctx)
	notification, err := s.load(ctx, userID, notificationID)
	if err != nil {
		return err
	}

	id := notification.ID
	event := models.NotificationEvent{
		UserID:         userID,
		Event:          models.EventOpened,
		NotificationID: &id,
		OccurredAt:     s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		return fmt.Errorf("notification service: record open: %w", err)
	}

	if !notification.IsRead {
		if _, err := s.MarkRead(ctx, userID, notificationID); err != nil {
			return err
		}
	}
	return nil
}

func (s *NotificationService) load(ctx context.Context, userID, notificationID string) (*models.Notification, error) {
	var notification models.Notification
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		First(&notification).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("notification service: load notification: %w", err)
	}
	return &notification, nil
}

func (s *NotificationService) afterCreate(ctx context.Context, dto NotificationDTO) {
	metrics.NotificationsCreated.WithLabelValues(dto.Type).Inc()

	s.broadcast(dto.UserID, realtime.Event{
		Event:          realtime.EventNotificationCreated,
		Notification:   &dto,
		NotificationID: dto.ID,
	})

	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, broker.RoutingNotificationCreated, dto); err != nil {
		s.log.Warn("publish notification failed",
			zap.String("notification_id", dto.ID),
			zap.String("type", dto.Type),
			zap.Error(err))
	}
}

func (s *NotificationService) broadcast(userID string, event realtime.Event) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(userID, event)
}

func buildNotification(input CreateNotificationInput) (models.Notification, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return models.Notification{}, errors.New("notification service: user id is required")
	}
	notificationType := strings.TrimSpace(input.Type)
	if notificationType == "" {
		return models.Notification{}, errors.New("notification service: type is required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return models.Notification{}, errors.New("notification service: title is required")
	}

	metadata, err := encodeJSON(input.Metadata)
	if err != nil {
		return models.Notification{}, fmt.Errorf("notification service: marshal metadata: %w", err)
	}

	return models.Notification{
		UserID:   userID,
		Type:     notificationType,
		Title:    title,
		Body:     strings.TrimSpace(input.Body),
		DeepLink: strings.TrimSpace(input.DeepLink),
		Metadata: metadata,
	}, nil
}

func mapNotificationRows(rows []models.Notification) []NotificationDTO {
	items := make([]NotificationDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapNotification(row))
	}
	return items
}

func mapNotification(row models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        row.ID,
		UserID:    row.UserID,
		Type:      row.Type,
		Title:     row.Title,
		Body:      row.Body,
		DeepLink:  row.DeepLink,
		Metadata:  decodeJSON(row.Metadata),
		IsRead:    row.IsRead,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
		ReadAt:    row.ReadAt,
	}
}
