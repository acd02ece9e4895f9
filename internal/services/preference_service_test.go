package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fitos/notify/internal/database/testutil"
	"github.com/fitos/notify/internal/models"
	apperrors "github.com/fitos/notify/pkg/errors"
)

func TestPreferenceServiceDefaults(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewPreferenceService(db)
	require.NoError(t, err)

	pref, err := svc.Get(context.Background(), "user-1")
	require.NoError(t, err)
	require.Empty(t, pref.ID)
	require.Equal(t, models.DefaultQuietHoursStart, pref.QuietHoursStart)
	require.Equal(t, models.DefaultMaxDaily, pref.MaxDaily)

	stored, err := svc.Find(context.Background(), "user-1")
	require.NoError(t, err)
	require.Nil(t, stored)
}

func TestPreferenceServiceUpdate(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewPreferenceService(db)
	require.NoError(t, err)

	ctx := context.Background()
	start := "21:30"
	maxDaily := 5
	off := false

	pref, err := svc.Update(ctx, "user-1", UpdatePreferencesInput{
		QuietHoursStart: &start,
		MaxDaily:        &maxDaily,
		SurveyEnabled:   &off,
	})
	require.NoError(t, err)
	require.NotEmpty(t, pref.ID)
	require.Equal(t, "21:30", pref.QuietHoursStart)
	require.Equal(t, models.DefaultQuietHoursEnd, pref.QuietHoursEnd)
	require.False(t, pref.SurveyEnabled)
	require.True(t, pref.ReviewEnabled)

	on := true
	pref, err = svc.Update(ctx, "user-1", UpdatePreferencesInput{SurveyEnabled: &on})
	require.NoError(t, err)
	require.True(t, pref.SurveyEnabled)
	require.Equal(t, 5, pref.MaxDaily)
	require.EqualValues(t, 1, countRows(t, db, &models.NotificationPreference{}, "user_id = ?", "user-1"))

	many, err := svc.FindMany(ctx, []string{"user-1", "user-2"})
	require.NoError(t, err)
	require.Len(t, many, 1)
	require.NotNil(t, many["user-1"])
}

func TestPreferenceServiceRejectsInvalidClock(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewPreferenceService(db)
	require.NoError(t, err)

	bad := "25:00"
	_, err = svc.Update(context.Background(), "user-1", UpdatePreferencesInput{QuietHoursEnd: &bad})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}
