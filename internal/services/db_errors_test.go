package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fitos/notify/internal/database/testutil"
	"github.com/fitos/notify/internal/models"
)

func TestIsUniqueViolation(t *testing.T) {
	require.False(t, isUniqueViolation(nil))
	require.False(t, isUniqueViolation(errors.New("connection refused")))
	require.True(t, isUniqueViolation(gorm.ErrDuplicatedKey))
	require.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	require.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	require.True(t, isUniqueViolation(&mysql.MySQLError{Number: 1062}))
	require.False(t, isUniqueViolation(&mysql.MySQLError{Number: 1452}))
}

func TestIsUniqueViolationSQLite(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	row := models.IdempotencyKey{Key: "reminder:appt-1:60"}
	require.NoError(t, db.Create(&row).Error)

	err := db.Create(&models.IdempotencyKey{Key: "reminder:appt-1:60"}).Error
	require.Error(t, err)
	require.True(t, isUniqueViolation(err))
}
