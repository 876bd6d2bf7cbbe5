package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"clinicbook/internal/models"
)

// GetActiveLocks returns unexpired reservation locks on the given shifts
// overlapping [from, to). Expired locks are excluded here so the filter
// never has to reason about expiry.
func (db *DB) GetActiveLocks(ctx context.Context, shiftIDs []int64, from, to, now time.Time) ([]models.Lock, error) {
	if len(shiftIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT id, shift_id, start_time, end_time, expires_at, session_token
		FROM slot_locks
		WHERE shift_id IN (%s)
		AND start_time < ? AND end_time > ?
		AND expires_at > ?
		ORDER BY start_time`, placeholders(len(shiftIDs)))
	// Datetimes compare as text in SQLite; keep everything in UTC.
	args := append(int64Args(shiftIDs), to.UTC(), from.UTC(), now.UTC())

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query locks: %w", err)
	}
	defer rows.Close()

	var locks []models.Lock
	for rows.Next() {
		var l models.Lock
		if err := rows.Scan(&l.ID, &l.ShiftID, &l.StartTime, &l.EndTime, &l.ExpiresAt, &l.SessionToken); err != nil {
			return nil, err
		}
		locks = append(locks, l)
	}
	return locks, rows.Err()
}

// CreateLock inserts a reservation lock. An unexpired lock overlapping
// the same span on the same shift yields ErrLockConflict; the hold is
// advisory, the real overlap guarantee stays with booking creation.
func (db *DB) CreateLock(ctx context.Context, lock *models.Lock) error {
	if lock == nil {
		return fmt.Errorf("lock is nil")
	}

	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM slot_locks
		WHERE shift_id = ?
		AND start_time < ? AND end_time > ?
		AND expires_at > ?`,
		lock.ShiftID, lock.EndTime.UTC(), lock.StartTime.UTC(), time.Now().UTC(),
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("check lock overlap: %w", err)
	}
	if count > 0 {
		return ErrLockConflict
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO slot_locks (shift_id, start_time, end_time, expires_at, session_token)
		VALUES (?, ?, ?, ?, ?)`,
		lock.ShiftID, lock.StartTime.UTC(), lock.EndTime.UTC(), lock.ExpiresAt.UTC(), lock.SessionToken,
	)
	if err != nil {
		return fmt.Errorf("create lock: %w", err)
	}
	lock.ID, _ = res.LastInsertId()
	return nil
}

// ReleaseLock removes a lock by its session token; ErrNotFound when the
// token does not exist (already released or expired and cleaned up).
func (db *DB) ReleaseLock(ctx context.Context, sessionToken string) error {
	res, err := db.ExecContext(ctx,
		`DELETE FROM slot_locks WHERE session_token = ?`, sessionToken)
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CleanupExpiredLocks removes locks past their expiry, returning the
// number deleted. Run periodically; correctness never depends on it
// because reads filter on expires_at.
func (db *DB) CleanupExpiredLocks(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM slot_locks WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup locks: %w", err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}

// GetLockByToken returns a lock by session token or ErrNotFound.
func (db *DB) GetLockByToken(ctx context.Context, sessionToken string) (*models.Lock, error) {
	var l models.Lock
	err := db.QueryRowContext(ctx, `
		SELECT id, shift_id, start_time, end_time, expires_at, session_token
		FROM slot_locks WHERE session_token = ?`,
		sessionToken,
	).Scan(&l.ID, &l.ShiftID, &l.StartTime, &l.EndTime, &l.ExpiresAt, &l.SessionToken)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lock: %w", err)
	}
	return &l, nil
}
