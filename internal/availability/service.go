package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"clinicbook/internal/cache"
	"clinicbook/internal/database"
	"clinicbook/internal/interval"
	"clinicbook/internal/metrics"
	"clinicbook/internal/models"
	"clinicbook/internal/recurrence"
	"clinicbook/internal/slots"
)

var (
	ErrServiceNotFound = errors.New("service not found")
	ErrInvalidQuery    = errors.New("invalid query")
)

// Store is the storage read surface the orchestrator assembles its
// inputs from. Timeouts and retries belong to the implementation.
type Store interface {
	GetServiceByID(ctx context.Context, id int64) (*models.Service, error)
	GetQualifiedShifts(ctx context.Context, serviceID, locationID int64, from, to time.Time, staffID int64) ([]models.Shift, error)
	GetBlackouts(ctx context.Context, locationID int64, from, to time.Time) ([]models.BlackoutPeriod, error)
	GetBookings(ctx context.Context, shiftIDs []int64, from, to time.Time, excludeBookingID int64) ([]models.Booking, error)
	GetShiftBreaks(ctx context.Context, shiftIDs []int64, from, to time.Time) ([]models.Break, error)
	GetSitewideBreaks(ctx context.Context) ([]models.SitewideBreak, error)
	GetActiveLocks(ctx context.Context, shiftIDs []int64, from, to, now time.Time) ([]models.Lock, error)
	ResolveContinuation(ctx context.Context, token string) (*models.Service, error)
}

// Service orchestrates availability requests: it loads raw rows, builds
// the slot generator's inputs, memoizes raw results and lock-filters
// responses. Each request is a pure function of its inputs plus cache
// state; the cache is the only shared state.
type Service struct {
	store       Store
	cache       cache.SlotCache
	expander    recurrence.Expander
	project     ProjectFunc
	now         func() time.Time
	stepMinutes int
	log         *zerolog.Logger
}

// Options tune the orchestrator; zero values pick sensible defaults.
type Options struct {
	Project     ProjectFunc // wall-clock projection, defaults to ProjectWallClock
	Now         func() time.Time
	StepMinutes int // 0 steps by the service duration
}

// New builds an availability service around the given collaborators.
func New(store Store, slotCache cache.SlotCache, expander recurrence.Expander, logger *zerolog.Logger, opts Options) *Service {
	if opts.Project == nil {
		opts.Project = ProjectWallClock
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:       store,
		cache:       slotCache,
		expander:    expander,
		project:     opts.Project,
		now:         opts.Now,
		stepMinutes: opts.StepMinutes,
		log:         logger,
	}
}

// DayQuery identifies one single-day availability request.
type DayQuery struct {
	ServiceID         int64
	LocationID        int64
	Date              time.Time
	StaffID           int64 // 0 = any staff
	Twin              bool
	ContinuationToken string
	ExcludeBookingID  int64 // reschedule: skip this booking, bypass cache
	SkipCache         bool
}

// RangeQuery identifies one heatmap request over an inclusive date range.
type RangeQuery struct {
	ServiceID  int64
	LocationID int64
	Start      time.Time
	End        time.Time
	StaffID    int64
	SkipCache  bool
}

// DayAvailability computes the bookable slots for one day. The raw
// (pre-lock) result is cached; locks are applied to the response only,
// so an expired lock reveals its slot again without recomputation.
func (s *Service) DayAvailability(ctx context.Context, q DayQuery) ([]models.Slot, error) {
	svc, err := s.store.GetServiceByID(ctx, q.ServiceID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("load service: %w", err)
	}

	rules, err := s.resolveRules(ctx, svc, q.Twin, q.ContinuationToken)
	if err != nil {
		return nil, err
	}

	bypass := q.SkipCache || q.ExcludeBookingID > 0
	key := cache.DayKey(q.ServiceID, q.LocationID, slots.DateKey(q.Date), q.StaffID, q.Twin, q.ContinuationToken)

	if !bypass {
		if raw, ok := s.cache.GetDay(ctx, key); ok {
			metrics.IncCacheHit("day")
			return s.applyLocks(ctx, q.Date, raw)
		}
		metrics.IncCacheMiss("day")
	}

	raw, err := s.computeDay(ctx, q, rules)
	if err != nil {
		return nil, err
	}

	// Never cache a result derived from a failed fetch; by here all
	// fetches succeeded, empty results included.
	if !bypass {
		s.cache.SetDay(ctx, key, raw)
	}
	return s.applyLocks(ctx, q.Date, raw)
}

// RangeHeatmap aggregates per-day availability into calendar counts,
// reusing the single-day machinery (day cache included) per day.
func (s *Service) RangeHeatmap(ctx context.Context, q RangeQuery) ([]models.DayHeatmapEntry, error) {
	if q.End.Before(q.Start) {
		return nil, fmt.Errorf("%w: start after end", ErrInvalidQuery)
	}

	key := cache.RangeKey(q.ServiceID, q.LocationID, slots.DateKey(q.Start), slots.DateKey(q.End), q.StaffID)
	if !q.SkipCache {
		if days, ok := s.cache.GetHeatmap(ctx, key); ok {
			metrics.IncCacheHit("heatmap")
			return days, nil
		}
		metrics.IncCacheMiss("heatmap")
	}

	var days []time.Time
	for d := q.Start; !d.After(q.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}

	perDay := make(map[string][]models.Slot, len(days))
	for _, d := range days {
		visible, err := s.DayAvailability(ctx, DayQuery{
			ServiceID:  q.ServiceID,
			LocationID: q.LocationID,
			Date:       d,
			StaffID:    q.StaffID,
			SkipCache:  q.SkipCache,
		})
		if err != nil {
			return nil, err
		}
		perDay[slots.DateKey(d)] = visible
	}

	entries := slots.SummarizeDayHeatmap(days, perDay)
	if !q.SkipCache {
		s.cache.SetHeatmap(ctx, key, entries)
	}
	return entries, nil
}

// resolveRules applies twin and continuation overrides before the
// generator ever sees the rules. A continuation token wins over twin.
func (s *Service) resolveRules(ctx context.Context, svc *models.Service, twin bool, continuationToken string) (models.ServiceRules, error) {
	rules := models.ServiceRules{
		DurationMinutes: svc.DurationMinutes,
		BufferMinutes:   svc.BufferMinutes,
		LeadTimeMinutes: svc.LeadTimeMinutes,
	}

	if continuationToken != "" {
		repeat, err := s.store.ResolveContinuation(ctx, continuationToken)
		if err != nil {
			return rules, fmt.Errorf("%w: unknown continuation token", ErrInvalidQuery)
		}
		if repeat.RepeatDurationMinutes > 0 {
			rules.DurationMinutes = repeat.RepeatDurationMinutes
		} else {
			rules.DurationMinutes = repeat.DurationMinutes
		}
		return rules, nil
	}

	if twin && svc.AllowsTwins {
		if svc.TwinDurationMinutes > 0 {
			rules.DurationMinutes = svc.TwinDurationMinutes
		} else {
			rules.DurationMinutes = 2 * svc.DurationMinutes
		}
		// Buffer is not multiplied for twin bookings.
	}
	return rules, nil
}

func (s *Service) computeDay(ctx context.Context, q DayQuery, rules models.ServiceRules) ([]models.Slot, error) {
	if rules.DurationMinutes <= 0 {
		return nil, nil
	}

	dayStart := startOfDay(q.Date)
	dayEnd := dayStart.Add(24 * time.Hour)

	templates, err := s.store.GetQualifiedShifts(ctx, q.ServiceID, q.LocationID, dayStart, dayEnd, q.StaffID)
	if err != nil {
		return nil, fmt.Errorf("load shifts: %w", err)
	}
	shifts := s.expander.Expand(templates, dayStart, dayEnd)
	if len(shifts) == 0 {
		return nil, nil
	}

	shiftIDs := collectShiftIDs(shifts)
	blackouts, err := s.store.GetBlackouts(ctx, q.LocationID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("load blackouts: %w", err)
	}
	bookings, err := s.store.GetBookings(ctx, shiftIDs, dayStart, dayEnd, q.ExcludeBookingID)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	breaks, err := s.store.GetShiftBreaks(ctx, shiftIDs, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("load breaks: %w", err)
	}
	sitewide, err := s.store.GetSitewideBreaks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sitewide breaks: %w", err)
	}
	breaks = append(breaks, s.projectSitewideBreaks(dayStart, shifts, sitewide, breaks)...)

	raw := slots.GenerateSlotsForDay(slots.DayInput{
		Day:         dayStart,
		LocationID:  q.LocationID,
		Rules:       rules,
		Shifts:      shifts,
		Blackouts:   blackouts,
		Bookings:    bookings,
		Breaks:      breaks,
		Now:         s.now(),
		StepMinutes: s.stepMinutes,
	})
	slots.SortByStart(raw)
	metrics.AddSlotsGenerated(len(raw))
	return raw, nil
}

// projectSitewideBreaks turns wall-clock sitewide breaks into concrete
// per-shift break intervals for the day. A shift-specific break that
// references the same sitewide break id overrides the projection for
// that shift.
func (s *Service) projectSitewideBreaks(day time.Time, shifts []models.Shift, sitewide []models.SitewideBreak, existing []models.Break) []models.Break {
	overridden := make(map[int64]map[int64]bool)
	for i := range existing {
		b := &existing[i]
		if b.SitewideBreakID == nil {
			continue
		}
		if overridden[b.ShiftID] == nil {
			overridden[b.ShiftID] = make(map[int64]bool)
		}
		overridden[b.ShiftID][*b.SitewideBreakID] = true
	}

	var projected []models.Break
	for i := range sitewide {
		sb := &sitewide[i]
		if !sb.AppliesOn(day) {
			continue
		}
		start, err := s.project(day, sb.StartClock, sb.Timezone)
		if err != nil {
			if s.log != nil {
				s.log.Warn().Err(err).Int64("sitewide_break_id", sb.ID).Msg("skipping unprojectable sitewide break")
			}
			continue
		}
		end, err := s.project(day, sb.EndClock, sb.Timezone)
		if err != nil || !end.After(start) {
			continue
		}
		span := models.TimeInterval{Start: start, End: end}
		for j := range shifts {
			sh := &shifts[j]
			if overridden[sh.ID][sb.ID] {
				continue
			}
			if !interval.Overlaps(span, sh.Window()) {
				continue
			}
			id := sb.ID
			projected = append(projected, models.Break{
				ShiftID:         sh.ID,
				StartTime:       start,
				EndTime:         end,
				SitewideBreakID: &id,
			})
		}
	}
	return projected
}

// applyLocks fetches active locks for the shifts present in the raw
// result and removes locked slots from the response. Lock filtering is
// request-scoped and never persisted into the cache.
func (s *Service) applyLocks(ctx context.Context, day time.Time, raw []models.Slot) ([]models.Slot, error) {
	if len(raw) == 0 {
		return []models.Slot{}, nil
	}

	seen := make(map[int64]bool)
	var shiftIDs []int64
	for _, slot := range raw {
		if !seen[slot.ShiftID] {
			seen[slot.ShiftID] = true
			shiftIDs = append(shiftIDs, slot.ShiftID)
		}
	}

	dayStart := startOfDay(day)
	locks, err := s.store.GetActiveLocks(ctx, shiftIDs, dayStart, dayStart.Add(24*time.Hour), s.now())
	if err != nil {
		return nil, fmt.Errorf("load locks: %w", err)
	}
	spans := make([]models.TimeInterval, 0, len(locks))
	for i := range locks {
		spans = append(spans, locks[i].Interval())
	}
	return slots.FilterByLocks(raw, spans), nil
}

func collectShiftIDs(shifts []models.Shift) []int64 {
	seen := make(map[int64]bool, len(shifts))
	ids := make([]int64, 0, len(shifts))
	for i := range shifts {
		if !seen[shifts[i].ID] {
			seen[shifts[i].ID] = true
			ids = append(ids, shifts[i].ID)
		}
	}
	return ids
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
