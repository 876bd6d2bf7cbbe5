package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"clinicbook/internal/models"
)

// GetServiceByID returns the service or ErrNotFound.
func (db *DB) GetServiceByID(ctx context.Context, id int64) (*models.Service, error) {
	var s models.Service
	err := db.QueryRowContext(ctx, `
		SELECT id, name, duration_minutes, buffer_minutes, lead_time_minutes,
		       allows_twins, twin_duration_minutes, repeat_duration_minutes, is_active
		FROM services
		WHERE id = ?`,
		id,
	).Scan(
		&s.ID, &s.Name, &s.DurationMinutes, &s.BufferMinutes, &s.LeadTimeMinutes,
		&s.AllowsTwins, &s.TwinDurationMinutes, &s.RepeatDurationMinutes, &s.IsActive,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get service %d: %w", id, err)
	}
	return &s, nil
}

// GetQualifiedShifts returns shifts qualified for a service at a location
// whose windows may intersect [from, to): concrete shifts overlapping the
// range, recurring templates anchored before its end, and exception
// instances dated inside it. staffID 0 means no staff filter.
func (db *DB) GetQualifiedShifts(ctx context.Context, serviceID, locationID int64, from, to time.Time, staffID int64) ([]models.Shift, error) {
	query := `
		SELECT s.id, s.staff_id, s.location_id, s.start_time, s.end_time,
		       s.is_active, s.is_recurring, s.recurrence_rule, s.parent_shift_id,
		       s.exception_date, s.cancelled
		FROM shifts s
		JOIN shift_services ss ON ss.shift_id = s.id
		WHERE ss.service_id = ?
		AND s.location_id = ?
		AND (
			(s.is_recurring = 0 AND s.parent_shift_id = 0 AND s.start_time < ? AND s.end_time > ?)
			OR (s.is_recurring = 1 AND s.start_time < ?)
			OR (s.parent_shift_id != 0 AND s.exception_date >= ? AND s.exception_date < ?)
		)`
	// Datetimes compare as text in SQLite; keep everything in UTC.
	from, to = from.UTC(), to.UTC()
	args := []any{serviceID, locationID, to, from, to, from, to}
	if staffID > 0 {
		query += ` AND s.staff_id = ?`
		args = append(args, staffID)
	}
	query += ` ORDER BY s.start_time`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query shifts: %w", err)
	}
	defer rows.Close()

	var shifts []models.Shift
	for rows.Next() {
		var sh models.Shift
		var rule sql.NullString
		var exception sql.NullTime
		if err := rows.Scan(
			&sh.ID, &sh.StaffID, &sh.LocationID, &sh.StartTime, &sh.EndTime,
			&sh.IsActive, &sh.IsRecurring, &rule, &sh.ParentShiftID,
			&exception, &sh.Cancelled,
		); err != nil {
			return nil, err
		}
		if rule.Valid {
			sh.RecurrenceRule = rule.String
		}
		if exception.Valid {
			t := exception.Time
			sh.ExceptionDate = &t
		}
		shifts = append(shifts, sh)
	}
	return shifts, rows.Err()
}

// GetBlackouts returns blackout periods overlapping [from, to) for the
// location, including global ones.
func (db *DB) GetBlackouts(ctx context.Context, locationID int64, from, to time.Time) ([]models.BlackoutPeriod, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, location_id, start_date, end_date, reason
		FROM blackout_periods
		WHERE (location_id IS NULL OR location_id = ?)
		AND start_date < ? AND end_date > ?
		ORDER BY start_date`,
		locationID, to.UTC(), from.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query blackouts: %w", err)
	}
	defer rows.Close()

	var blackouts []models.BlackoutPeriod
	for rows.Next() {
		var bp models.BlackoutPeriod
		var locID sql.NullInt64
		var reason sql.NullString
		if err := rows.Scan(&bp.ID, &locID, &bp.StartDate, &bp.EndDate, &reason); err != nil {
			return nil, err
		}
		if locID.Valid {
			v := locID.Int64
			bp.LocationID = &v
		}
		if reason.Valid {
			bp.Reason = reason.String
		}
		blackouts = append(blackouts, bp)
	}
	return blackouts, rows.Err()
}

// GetBookings returns non-cancelled bookings on the given shifts
// overlapping [from, to). excludeBookingID skips the booking under edit
// during a reschedule; 0 skips nothing.
func (db *DB) GetBookings(ctx context.Context, shiftIDs []int64, from, to time.Time, excludeBookingID int64) ([]models.Booking, error) {
	if len(shiftIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT id, shift_id, service_id, client_name, start_time, end_time, status
		FROM bookings
		WHERE shift_id IN (%s)
		AND start_time < ? AND end_time > ?
		AND status NOT IN ('cancelled', 'rejected')
		AND id != ?
		ORDER BY start_time`, placeholders(len(shiftIDs)))
	args := append(int64Args(shiftIDs), to.UTC(), from.UTC(), excludeBookingID)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		var b models.Booking
		var client sql.NullString
		if err := rows.Scan(&b.ID, &b.ShiftID, &b.ServiceID, &client, &b.StartTime, &b.EndTime, &b.Status); err != nil {
			return nil, err
		}
		if client.Valid {
			b.ClientName = client.String
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// GetShiftBreaks returns shift-specific breaks on the given shifts
// overlapping [from, to).
func (db *DB) GetShiftBreaks(ctx context.Context, shiftIDs []int64, from, to time.Time) ([]models.Break, error) {
	if len(shiftIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT id, shift_id, start_time, end_time, sitewide_break_id
		FROM shift_breaks
		WHERE shift_id IN (%s)
		AND start_time < ? AND end_time > ?
		ORDER BY start_time`, placeholders(len(shiftIDs)))
	args := append(int64Args(shiftIDs), to.UTC(), from.UTC())

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query shift breaks: %w", err)
	}
	defer rows.Close()

	var breaks []models.Break
	for rows.Next() {
		var b models.Break
		var sitewideID sql.NullInt64
		if err := rows.Scan(&b.ID, &b.ShiftID, &b.StartTime, &b.EndTime, &sitewideID); err != nil {
			return nil, err
		}
		if sitewideID.Valid {
			v := sitewideID.Int64
			b.SitewideBreakID = &v
		}
		breaks = append(breaks, b)
	}
	return breaks, rows.Err()
}

// GetSitewideBreaks returns all active sitewide breaks. Date bounds are
// checked during per-day projection, not here.
func (db *DB) GetSitewideBreaks(ctx context.Context) ([]models.SitewideBreak, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, start_clock, end_clock, timezone, start_date, end_date, is_active
		FROM sitewide_breaks
		WHERE is_active = 1`)
	if err != nil {
		return nil, fmt.Errorf("query sitewide breaks: %w", err)
	}
	defer rows.Close()

	var breaks []models.SitewideBreak
	for rows.Next() {
		var b models.SitewideBreak
		var startDate, endDate sql.NullTime
		if err := rows.Scan(&b.ID, &b.Name, &b.StartClock, &b.EndClock, &b.Timezone, &startDate, &endDate, &b.IsActive); err != nil {
			return nil, err
		}
		if startDate.Valid {
			t := startDate.Time
			b.StartDate = &t
		}
		if endDate.Valid {
			t := endDate.Time
			b.EndDate = &t
		}
		breaks = append(breaks, b)
	}
	return breaks, rows.Err()
}

// ResolveContinuation maps a continuation token to the service whose
// repeat configuration overrides the booking duration, or ErrNotFound.
func (db *DB) ResolveContinuation(ctx context.Context, token string) (*models.Service, error) {
	var serviceID int64
	err := db.QueryRowContext(ctx,
		`SELECT service_id FROM continuation_tokens WHERE token = ?`, token,
	).Scan(&serviceID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve continuation: %w", err)
	}
	return db.GetServiceByID(ctx, serviceID)
}
