package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fitos/notify/internal/models"
	"github.com/fitos/notify/internal/push"
)

type recordingPublisher struct {
	mu       sync.Mutex
	keys     []string
	payloads []any
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	p.payloads = append(p.payloads, payload)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

type fakeGateway struct {
	mu       sync.Mutex
	messages []push.Message
	err      error
}

func (g *fakeGateway) Send(_ context.Context, msg push.Message) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	g.messages = append(g.messages, msg)
	return fmt.Sprintf("projects/fitos/messages/%d", len(g.messages)), nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func seedUser(t *testing.T, db *gorm.DB, id, role string, trainerID *string) models.User {
	t.Helper()
	user := models.User{
		BaseModel: models.BaseModel{ID: id},
		Email:     id + "@example.com",
		FirstName: "First-" + id,
		LastName:  "Last",
		Role:      role,
		TrainerID: trainerID,
		Timezone:  "UTC",
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func seedTrainerWithClients(t *testing.T, db *gorm.DB, trainerID string, clientIDs ...string) (models.User, []models.User) {
	t.Helper()
	trainer := seedUser(t, db, trainerID, models.RoleTrainer, nil)
	clients := make([]models.User, 0, len(clientIDs))
	for _, id := range clientIDs {
		tid := trainer.ID
		clients = append(clients, seedUser(t, db, id, models.RoleClient, &tid))
	}
	return trainer, clients
}

func seedPreference(t *testing.T, db *gorm.DB, userID string, mutate func(*models.NotificationPreference)) {
	t.Helper()
	pref := models.DefaultNotificationPreference(userID)
	if mutate != nil {
		mutate(&pref)
	}
	require.NoError(t, db.Create(&pref).Error)
}

func seedDevice(t *testing.T, db *gorm.DB, userID, token string) {
	t.Helper()
	device := models.DeviceToken{UserID: userID, Token: token, Platform: models.PlatformIOS, LastSeenAt: time.Now().UTC()}
	require.NoError(t, db.Create(&device).Error)
}

func seedAppointment(t *testing.T, db *gorm.DB, trainerID, clientID, status string, startsAt time.Time, completedAt *time.Time) models.Appointment {
	t.Helper()
	appt := models.Appointment{
		TrainerID:   trainerID,
		ClientID:    clientID,
		ServiceName: "Strength Session",
		StartsAt:    startsAt.UTC(),
		Status:      status,
		CompletedAt: completedAt,
	}
	require.NoError(t, db.Create(&appt).Error)
	return appt
}

func countRows(t *testing.T, db *gorm.DB, model any, query string, args ...any) int64 {
	t.Helper()
	var count int64
	q := db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&count).Error)
	return count
}

func newTestNotificationService(t *testing.T, db *gorm.DB) *NotificationService {
	t.Helper()
	svc, err := NewNotificationService(db, nil, nil)
	require.NoError(t, err)
	return svc
}

func newTestIdempotencyStore(t *testing.T, db *gorm.DB) *IdempotencyStore {
	t.Helper()
	store, err := NewIdempotencyStore(db)
	require.NoError(t, err)
	return store
}
