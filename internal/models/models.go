package models

import "time"

// Booking statuses. Cancelled and rejected bookings do not occupy slots.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusRejected  = "rejected"
	StatusCompleted = "completed"
)

// Service describes a bookable clinic service and its scheduling rules.
type Service struct {
	ID                    int64  `json:"id"`
	Name                  string `json:"name"`
	DurationMinutes       int    `json:"duration_minutes"`
	BufferMinutes         int    `json:"buffer_minutes"`
	LeadTimeMinutes       int    `json:"lead_time_minutes"`
	AllowsTwins           bool   `json:"allows_twins"`
	TwinDurationMinutes   int    `json:"twin_duration_minutes,omitempty"`   // 0 means double the base duration
	RepeatDurationMinutes int    `json:"repeat_duration_minutes,omitempty"` // duration for continuation bookings
	IsActive              bool   `json:"is_active"`
}

// ServiceRules is the resolved per-request rule set fed to the slot
// generator, after twin or continuation overrides have been applied.
type ServiceRules struct {
	DurationMinutes int
	BufferMinutes   int
	LeadTimeMinutes int
}

// Shift is one staff member's working window at a location. Recurring
// shifts are templates; the slot generator only ever sees concrete
// instances with absolute start/end times.
type Shift struct {
	ID             int64      `json:"id"`
	StaffID        int64      `json:"staff_id"`
	LocationID     int64      `json:"location_id"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        time.Time  `json:"end_time"`
	IsActive       bool       `json:"is_active"`
	IsRecurring    bool       `json:"is_recurring"`
	RecurrenceRule string     `json:"recurrence_rule,omitempty"`
	ParentShiftID  int64      `json:"parent_shift_id,omitempty"` // set on exception instances
	ExceptionDate  *time.Time `json:"exception_date,omitempty"`
	Cancelled      bool       `json:"cancelled,omitempty"` // exception cancels one occurrence
}

// Window returns the shift span as a TimeInterval.
func (s *Shift) Window() TimeInterval {
	return TimeInterval{Start: s.StartTime, End: s.EndTime}
}

// TimeInterval is a half-open span [Start, End).
type TimeInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// BlackoutPeriod is a closed window for a location, or globally when
// LocationID is nil. Slots overlapping a blackout are removed entirely.
type BlackoutPeriod struct {
	ID         int64     `json:"id"`
	LocationID *int64    `json:"location_id,omitempty"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	Reason     string    `json:"reason,omitempty"`
}

// Interval returns the blackout span as a TimeInterval.
func (b *BlackoutPeriod) Interval() TimeInterval {
	return TimeInterval{Start: b.StartDate, End: b.EndDate}
}

// Break is a closed sub-window inside a shift: either authored directly
// on the shift or projected from a sitewide break onto the shift's day.
type Break struct {
	ID              int64     `json:"id"`
	ShiftID         int64     `json:"shift_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	SitewideBreakID *int64    `json:"sitewide_break_id,omitempty"` // set when overriding a sitewide break
}

// Interval returns the break span as a TimeInterval.
func (b *Break) Interval() TimeInterval {
	return TimeInterval{Start: b.StartTime, End: b.EndTime}
}

// SitewideBreak is authored in local wall-clock time and projected onto
// each shift's day via the configured timezone.
type SitewideBreak struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	StartClock string     `json:"start_clock"` // "13:00"
	EndClock   string     `json:"end_clock"`   // "14:00"
	Timezone   string     `json:"timezone"`
	StartDate  *time.Time `json:"start_date,omitempty"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	IsActive   bool       `json:"is_active"`
}

// AppliesOn reports whether the sitewide break is in force on the given day.
func (b *SitewideBreak) AppliesOn(day time.Time) bool {
	if !b.IsActive {
		return false
	}
	if b.StartDate != nil && day.Before(*b.StartDate) {
		return false
	}
	if b.EndDate != nil && day.After(*b.EndDate) {
		return false
	}
	return true
}

// Booking is an existing appointment occupying part of a shift.
type Booking struct {
	ID         int64     `json:"id"`
	ShiftID    int64     `json:"shift_id"`
	ServiceID  int64     `json:"service_id"`
	ClientName string    `json:"client_name,omitempty"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Status     string    `json:"status"`
}

// Interval returns the booked span as a TimeInterval.
func (b *Booking) Interval() TimeInterval {
	return TimeInterval{Start: b.StartTime, End: b.EndTime}
}

// Slot is a candidate appointment window derived from a shift.
type Slot struct {
	ShiftID   int64     `json:"shift_id"`
	StaffID   int64     `json:"staff_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Interval returns the slot span as a TimeInterval.
func (s *Slot) Interval() TimeInterval {
	return TimeInterval{Start: s.StartTime, End: s.EndTime}
}

// Lock is a short-lived reservation held while a client is mid-checkout.
// Expired locks are ignored; locks never affect cached raw availability.
type Lock struct {
	ID           int64     `json:"id"`
	ShiftID      int64     `json:"shift_id"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	ExpiresAt    time.Time `json:"expires_at"`
	SessionToken string    `json:"session_token"`
}

// Interval returns the locked span as a TimeInterval.
func (l *Lock) Interval() TimeInterval {
	return TimeInterval{Start: l.StartTime, End: l.EndTime}
}

// DayHeatmapEntry is the per-day available slot count for calendar display.
type DayHeatmapEntry struct {
	Date           string `json:"date"` // YYYY-MM-DD
	AvailableSlots int    `json:"available_slots"`
}

// Location is a clinic site.
type Location struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
	IsActive bool   `json:"is_active"`
}

// Staff is a clinic staff member who works shifts.
type Staff struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}
