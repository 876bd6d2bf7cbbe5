package database

import (
	"context"
	"fmt"
	"time"

	"clinicbook/internal/models"
)

// Create helpers used by the admin CRUD surface and by test seeding.
// Datetimes are stored in UTC so SQLite's text comparison stays correct.

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func (db *DB) CreateLocation(ctx context.Context, l *models.Location) error {
	res, err := db.ExecContext(ctx,
		`INSERT INTO locations (name, timezone, is_active) VALUES (?, ?, ?)`,
		l.Name, l.Timezone, l.IsActive)
	if err != nil {
		return fmt.Errorf("create location: %w", err)
	}
	l.ID, _ = res.LastInsertId()
	return nil
}

func (db *DB) CreateStaff(ctx context.Context, s *models.Staff) error {
	res, err := db.ExecContext(ctx,
		`INSERT INTO staff (name, is_active) VALUES (?, ?)`,
		s.Name, s.IsActive)
	if err != nil {
		return fmt.Errorf("create staff: %w", err)
	}
	s.ID, _ = res.LastInsertId()
	return nil
}

func (db *DB) CreateService(ctx context.Context, s *models.Service) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO services (name, duration_minutes, buffer_minutes, lead_time_minutes,
			allows_twins, twin_duration_minutes, repeat_duration_minutes, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Name, s.DurationMinutes, s.BufferMinutes, s.LeadTimeMinutes,
		s.AllowsTwins, s.TwinDurationMinutes, s.RepeatDurationMinutes, s.IsActive)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	s.ID, _ = res.LastInsertId()
	return nil
}

func (db *DB) CreateShift(ctx context.Context, sh *models.Shift) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO shifts (staff_id, location_id, start_time, end_time, is_active,
			is_recurring, recurrence_rule, parent_shift_id, exception_date, cancelled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sh.StaffID, sh.LocationID, sh.StartTime.UTC(), sh.EndTime.UTC(), sh.IsActive,
		sh.IsRecurring, sh.RecurrenceRule, sh.ParentShiftID, utcPtr(sh.ExceptionDate), sh.Cancelled)
	if err != nil {
		return fmt.Errorf("create shift: %w", err)
	}
	sh.ID, _ = res.LastInsertId()
	return nil
}

// QualifyShift records that a shift may serve a service.
func (db *DB) QualifyShift(ctx context.Context, shiftID, serviceID int64) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO shift_services (shift_id, service_id) VALUES (?, ?)`,
		shiftID, serviceID)
	if err != nil {
		return fmt.Errorf("qualify shift: %w", err)
	}
	return nil
}

func (db *DB) CreateBooking(ctx context.Context, b *models.Booking) error {
	if b.Status == "" {
		b.Status = models.StatusPending
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO bookings (shift_id, service_id, client_name, start_time, end_time, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.ShiftID, b.ServiceID, b.ClientName, b.StartTime.UTC(), b.EndTime.UTC(), b.Status)
	if err != nil {
		return fmt.Errorf("create booking: %w", err)
	}
	b.ID, _ = res.LastInsertId()
	return nil
}

func (db *DB) CreateBlackout(ctx context.Context, bp *models.BlackoutPeriod) error {
	res, err := db.ExecContext(ctx,
		`INSERT INTO blackout_periods (location_id, start_date, end_date, reason) VALUES (?, ?, ?, ?)`,
		bp.LocationID, bp.StartDate.UTC(), bp.EndDate.UTC(), bp.Reason)
	if err != nil {
		return fmt.Errorf("create blackout: %w", err)
	}
	bp.ID, _ = res.LastInsertId()
	return nil
}

func (db *DB) CreateShiftBreak(ctx context.Context, b *models.Break) error {
	res, err := db.ExecContext(ctx,
		`INSERT INTO shift_breaks (shift_id, start_time, end_time, sitewide_break_id) VALUES (?, ?, ?, ?)`,
		b.ShiftID, b.StartTime.UTC(), b.EndTime.UTC(), b.SitewideBreakID)
	if err != nil {
		return fmt.Errorf("create shift break: %w", err)
	}
	b.ID, _ = res.LastInsertId()
	return nil
}

func (db *DB) CreateSitewideBreak(ctx context.Context, b *models.SitewideBreak) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO sitewide_breaks (name, start_clock, end_clock, timezone, start_date, end_date, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.Name, b.StartClock, b.EndClock, b.Timezone, utcPtr(b.StartDate), utcPtr(b.EndDate), b.IsActive)
	if err != nil {
		return fmt.Errorf("create sitewide break: %w", err)
	}
	b.ID, _ = res.LastInsertId()
	return nil
}

// CreateContinuationToken issues a follow-up token tied to a parent
// booking; availability requests carrying it take the duration from the
// named service's repeat configuration.
func (db *DB) CreateContinuationToken(ctx context.Context, token string, parentBookingID, serviceID int64) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO continuation_tokens (token, parent_booking_id, service_id) VALUES (?, ?, ?)`,
		token, parentBookingID, serviceID)
	if err != nil {
		return fmt.Errorf("create continuation token: %w", err)
	}
	return nil
}
