package repository

import (
	"context"
	"time"

	usagedomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/usage/domain"
	"github.com/benjask5360/tuckandtaleMVP-sub002/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() usagedomain.Repository {
	return &repo{}
}

const (
	upsertIncrement = `INSERT INTO usage_counters (user_id, resource_kind, subject_id, period_key, consumed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, resource_kind, subject_id, period_key)
		DO UPDATE SET consumed = usage_counters.consumed + excluded.consumed,
		              updated_at = excluded.updated_at`

	upsertIncrementMySQL = `INSERT INTO usage_counters (user_id, resource_kind, subject_id, period_key, consumed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE consumed = consumed + VALUES(consumed),
		                        updated_at = VALUES(updated_at)`
)

func (r *repo) Get(ctx context.Context, conn *gorm.DB, key usagedomain.CounterKey) (int64, error) {
	var consumed []int64
	err := conn.WithContext(ctx).Raw(
		`SELECT consumed FROM usage_counters
		 WHERE user_id = ? AND resource_kind = ? AND subject_id = ? AND period_key = ?`,
		key.UserID,
		key.Kind,
		key.SubjectID,
		key.PeriodKey,
	).Scan(&consumed).Error
	if err != nil {
		return 0, err
	}
	if len(consumed) == 0 {
		return 0, nil
	}
	return consumed[0], nil
}

// Increment adds amount in a single statement and reads the row back. It must
// run inside a transaction so the read observes this write and no other.
func (r *repo) Increment(ctx context.Context, conn *gorm.DB, key usagedomain.CounterKey, amount int64, at time.Time) (int64, error) {
	stmt := upsertIncrement
	if db.IsMySQL(conn) {
		stmt = upsertIncrementMySQL
	}
	err := conn.WithContext(ctx).Exec(stmt,
		key.UserID,
		key.Kind,
		key.SubjectID,
		key.PeriodKey,
		amount,
		at,
		at,
	).Error
	if err != nil {
		return 0, err
	}
	return r.Get(ctx, conn, key)
}

func (r *repo) Adjust(ctx context.Context, conn *gorm.DB, key usagedomain.CounterKey, delta int64, at time.Time) (int64, error) {
	if _, err := r.Increment(ctx, conn, key, 0, at); err != nil {
		return 0, err
	}
	err := conn.WithContext(ctx).Exec(
		`UPDATE usage_counters
		 SET consumed = CASE WHEN consumed + ? < 0 THEN 0 ELSE consumed + ? END,
		     updated_at = ?
		 WHERE user_id = ? AND resource_kind = ? AND subject_id = ? AND period_key = ?`,
		delta,
		delta,
		at,
		key.UserID,
		key.Kind,
		key.SubjectID,
		key.PeriodKey,
	).Error
	if err != nil {
		return 0, err
	}
	return r.Get(ctx, conn, key)
}
