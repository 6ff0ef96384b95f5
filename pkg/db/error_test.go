package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: billing_events.provider_event_id")))
}

func TestIsRetryableErr(t *testing.T) {
	assert.False(t, IsRetryableErr(nil))
	assert.True(t, IsRetryableErr(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsRetryableErr(fmt.Errorf("tx: %w", &pgconn.PgError{Code: "40P01"})))
	assert.False(t, IsRetryableErr(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsRetryableErr(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, IsRetryableErr(errors.New("connection refused")))
}
