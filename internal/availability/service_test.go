package availability

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"clinicbook/internal/cache"
	"clinicbook/internal/database"
	"clinicbook/internal/models"
	"clinicbook/internal/recurrence"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetServiceByID(ctx context.Context, id int64) (*models.Service, error) {
	args := m.Called(ctx, id)
	if svc := args.Get(0); svc != nil {
		return svc.(*models.Service), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) GetQualifiedShifts(ctx context.Context, serviceID, locationID int64, from, to time.Time, staffID int64) ([]models.Shift, error) {
	args := m.Called(ctx, serviceID, locationID, from, to, staffID)
	if v := args.Get(0); v != nil {
		return v.([]models.Shift), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) GetBlackouts(ctx context.Context, locationID int64, from, to time.Time) ([]models.BlackoutPeriod, error) {
	args := m.Called(ctx, locationID, from, to)
	if v := args.Get(0); v != nil {
		return v.([]models.BlackoutPeriod), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) GetBookings(ctx context.Context, shiftIDs []int64, from, to time.Time, excludeBookingID int64) ([]models.Booking, error) {
	args := m.Called(ctx, shiftIDs, from, to, excludeBookingID)
	if v := args.Get(0); v != nil {
		return v.([]models.Booking), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) GetShiftBreaks(ctx context.Context, shiftIDs []int64, from, to time.Time) ([]models.Break, error) {
	args := m.Called(ctx, shiftIDs, from, to)
	if v := args.Get(0); v != nil {
		return v.([]models.Break), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) GetSitewideBreaks(ctx context.Context) ([]models.SitewideBreak, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]models.SitewideBreak), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) GetActiveLocks(ctx context.Context, shiftIDs []int64, from, to, now time.Time) ([]models.Lock, error) {
	args := m.Called(ctx, shiftIDs, from, to, now)
	if v := args.Get(0); v != nil {
		return v.([]models.Lock), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) ResolveContinuation(ctx context.Context, token string) (*models.Service, error) {
	args := m.Called(ctx, token)
	if v := args.Get(0); v != nil {
		return v.(*models.Service), args.Error(1)
	}
	return nil, args.Error(1)
}

var (
	testDay  = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	dayStart = testDay
	dayEnd   = testDay.Add(24 * time.Hour)
)

func testService() *models.Service {
	return &models.Service{
		ID:              1,
		Name:            "Consultation",
		DurationMinutes: 30,
		AllowsTwins:     true,
		IsActive:        true,
	}
}

func morningShift() []models.Shift {
	return []models.Shift{{
		ID:         10,
		StaffID:    5,
		LocationID: 1,
		StartTime:  testDay.Add(9 * time.Hour),
		EndTime:    testDay.Add(12 * time.Hour),
		IsActive:   true,
	}}
}

// expectComputeInputs registers the standard uncontested fetch set for
// one day computation.
func expectComputeInputs(store *mockStore, shifts []models.Shift) {
	store.On("GetQualifiedShifts", mock.Anything, int64(1), int64(1), dayStart, dayEnd, int64(0)).Return(shifts, nil).Once()
	store.On("GetBlackouts", mock.Anything, int64(1), dayStart, dayEnd).Return([]models.BlackoutPeriod{}, nil).Once()
	store.On("GetBookings", mock.Anything, []int64{10}, dayStart, dayEnd, int64(0)).Return([]models.Booking{}, nil).Once()
	store.On("GetShiftBreaks", mock.Anything, []int64{10}, dayStart, dayEnd).Return([]models.Break{}, nil).Once()
	store.On("GetSitewideBreaks", mock.Anything).Return([]models.SitewideBreak{}, nil).Once()
}

func newTestService(store *mockStore, opts Options) *Service {
	logger := zerolog.Nop()
	if opts.Now == nil {
		opts.Now = func() time.Time { return testDay }
	}
	return New(store, cache.NewMemoryCache(), recurrence.NewWeeklyExpander(), &logger, opts)
}

func TestDayAvailabilityHappyPath(t *testing.T) {
	store := new(mockStore)
	store.On("GetServiceByID", mock.Anything, int64(1)).Return(testService(), nil)
	expectComputeInputs(store, morningShift())
	store.On("GetActiveLocks", mock.Anything, []int64{10}, dayStart, dayEnd, mock.Anything).Return([]models.Lock{}, nil)

	svc := newTestService(store, Options{})
	got, err := svc.DayAvailability(context.Background(), DayQuery{ServiceID: 1, LocationID: 1, Date: testDay})
	require.NoError(t, err)

	// 09:00-12:00 at 30-minute duration steps.
	require.Len(t, got, 6)
	assert.True(t, got[0].StartTime.Equal(testDay.Add(9*time.Hour)))
	assert.True(t, got[5].StartTime.Equal(testDay.Add(11*time.Hour+30*time.Minute)))
	store.AssertExpectations(t)
}

func TestDayAvailabilityCacheIdempotence(t *testing.T) {
	store := new(mockStore)
	store.On("GetServiceByID", mock.Anything, int64(1)).Return(testService(), nil)
	// Input fetches registered Once: a second identical request must be
	// served from the cache without touching storage again.
	expectComputeInputs(store, morningShift())
	store.On("GetActiveLocks", mock.Anything, []int64{10}, dayStart, dayEnd, mock.Anything).Return([]models.Lock{}, nil).Twice()

	svc := newTestService(store, Options{})
	q := DayQuery{ServiceID: 1, LocationID: 1, Date: testDay}

	first, err := svc.DayAvailability(context.Background(), q)
	require.NoError(t, err)
	second, err := svc.DayAvailability(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	store.AssertExpectations(t)
	store.AssertNumberOfCalls(t, "GetQualifiedShifts", 1)
}

func TestDayAvailabilityLockTransience(t *testing.T) {
	store := new(mockStore)
	store.On("GetServiceByID", mock.Anything, int64(1)).Return(testService(), nil)
	expectComputeInputs(store, morningShift())

	lock := models.Lock{
		ID:        1,
		ShiftID:   10,
		StartTime: testDay.Add(10 * time.Hour),
		EndTime:   testDay.Add(10*time.Hour + 30*time.Minute),
		ExpiresAt: testDay.Add(5 * time.Minute),
	}
	// Active on the first request, expired on the second.
	store.On("GetActiveLocks", mock.Anything, []int64{10}, dayStart, dayEnd, mock.Anything).Return([]models.Lock{lock}, nil).Once()
	store.On("GetActiveLocks", mock.Anything, []int64{10}, dayStart, dayEnd, mock.Anything).Return([]models.Lock{}, nil).Once()

	svc := newTestService(store, Options{})
	q := DayQuery{ServiceID: 1, LocationID: 1, Date: testDay}

	locked, err := svc.DayAvailability(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, locked, 5)
	for _, s := range locked {
		assert.False(t, s.StartTime.Equal(lock.StartTime), "locked slot must be hidden")
	}

	visible, err := svc.DayAvailability(context.Background(), q)
	require.NoError(t, err)
	assert.Len(t, visible, 6, "slot must reappear after lock expiry without cache bust")
	// Raw computation must not rerun for the second request.
	store.AssertNumberOfCalls(t, "GetQualifiedShifts", 1)
	store.AssertExpectations(t)
}

func TestDayAvailabilityTwinDoublesDuration(t *testing.T) {
	store := new(mockStore)
	store.On("GetServiceByID", mock.Anything, int64(1)).Return(testService(), nil)
	expectComputeInputs(store, morningShift())
	store.On("GetActiveLocks", mock.Anything, []int64{10}, dayStart, dayEnd, mock.Anything).Return([]models.Lock{}, nil)

	svc := newTestService(store, Options{})
	got, err := svc.DayAvailability(context.Background(), DayQuery{ServiceID: 1, LocationID: 1, Date: testDay, Twin: true})
	require.NoError(t, err)

	// 30-minute base doubled to 60: three slots fit 09:00-12:00.
	require.Len(t, got, 3)
	for _, s := range got {
		assert.Equal(t, time.Hour, s.EndTime.Sub(s.StartTime))
	}
}

func TestDayAvailabilityTwinExplicitDuration(t *testing.T) {
	svc45 := testService()
	svc45.TwinDurationMinutes = 45

	store := new(mockStore)
	store.On("GetServiceByID", mock.Anything, int64(1)).Return(svc45, nil)
	expectComputeInputs(store, morningShift())
	store.On("GetActiveLocks", mock.Anything, []int64{10}, dayStart, dayEnd, mock.Anything).Return([]models.Lock{}, nil)

	svc := newTestService(store, Options{})
	got, err := svc.DayAvailability(context.Background(), DayQuery{ServiceID: 1, LocationID: 1, Date: testDay, Twin: true})
	require.NoError(t, err)

	require.NotEmpty(t, got)
	for _, s := range got {
		assert.Equal(t, 45*time.Minute, s.EndTime.Sub(s.StartTime))
	}
}

func TestDayAvailabilityTwinIgnoredWhenNotAllowed(t *testing.T) {
	noTwins := testService()
	noTwins.AllowsTwins = false

	store := new(mockStore)
	store.On("GetServiceByID", mock.Anything, int64(1)).Return(noTwins, nil)
	expectComputeInputs(store, morningShift())
	store.On("GetActiveLocks", mock.Anything, []int64{10}, dayStart, dayEnd, mock.Anything).Return([]models.Lock{}, nil)

	svc := newTestService(store, Options{})
	got, err := svc.DayAvailability(context.Background(), DayQuery{ServiceID: 1, LocationID: 1, Date: testDay, Twin: true})
	require.NoError(t, err)
	assert.Len(t, got, 6, "twin flag on a non-twin service keeps the base duration")
}

func TestDayAvailabilityContinuationOverride(t *testing.T) {
	repeat := &models.Service{ID: 2, Name: "Follow-up", DurationMinutes: 40, RepeatDurationMinutes: 20, IsActive: true}

	store := new(mockStore)
	store.On("GetServiceByID", mock.Anything, int64(1)).Return(testService(), nil)
	store.On("ResolveContinuation", mock.Anything, "tok-123").Return(repeat, nil)
	expectComputeInputs(store, morningShift())
	store.On("GetActiveLocks", mock.Anything, []int64{10}, dayStart, dayEnd, mock.Anything).Return([]models.Lock{}, nil)

	svc := newTestService(store, Options{})
	got, err := svc.DayAvailability(context.Background(), DayQuery{
		ServiceID: 1, LocationID: 1, Date: testDay,
		Twin:              true, // continuation wins over twin
		ContinuationToken: "tok-123",
	})
	require.NoError(t, err)

	require.NotEmpty(t, got)
	for _, s := range got {
		assert.Equal(t, 20*time.Minute, s.EndTime.Sub(s.StartTime))
	}
}

func TestDayAvailabilityContinuationCacheIsolation(t *testing.T) {
	repeat := &models.Service{ID: 2, Name: "Follow-up", DurationMinutes: 40, RepeatDurationMinutes: 20, IsActive: true}

	store := new(mockStore)
	store.On("GetServiceByID", mock.Anything, int64(1)).Return(testService(), nil)
	store.On("ResolveContinuation", mock.Anything, "tok-123").Return(repeat, nil)
	// One computation per key variant; repeats must hit the cache.
	expectComputeInputs(store, morningShift())
	expectComputeInputs(store, morningShift())
	store.On("GetActiveLocks", mock.Anything, []int64{10}, dayStart, dayEnd, mock.Anything).Return([]models.Lock{}, nil)

	svc := newTestService(store, Options{})
	plain := DayQuery{ServiceID: 1, LocationID: 1, Date: testDay}
	cont := plain
	cont.ContinuationToken = "tok-123"

	contSlots, err := svc.DayAvailability(context.Background(), cont)
	require.NoError(t, err)
	require.NotEmpty(t, contSlots)
	for _, s := range contSlots {
		require.Equal(t, 20*time.Minute, s.EndTime.Sub(s.StartTime))
	}

	// A plain request right after must not see the continuation entry.
	plainSlots, err := svc.DayAvailability(context.Background(), plain)
	require.NoError(t, err)
	require.NotEmpty(t, plainSlots)
	for _, s := range plainSlots {
		assert.Equal(t, 30*time.Minute, s.EndTime.Sub(s.StartTime))
	}

	// And the reverse: with both entries warm, each key serves its own
	// duration without recomputing.
	contAgain, err := svc.DayAvailability(context.Background(), cont)
	require.NoError(t, err)
	assert.Equal(t, contSlots, contAgain)
	plainAgain, err := svc.DayAvailability(context.Background(), plain)
	require.NoError(t, err)
	assert.Equal(t, plainSlots, plainAgain)
	store.AssertNumberOfCalls(t, "GetQualifiedShifts", 2)
}

func TestDayAvailabilityUnknownContinuation(t *testing.T) {
	store := new(mockStore)
	store.On("GetServiceByID", mock.Anything, int64(1)).Return(testService(), nil)
	store.On("ResolveContinuation", mock.Anything, "bogus").Return(nil, database.ErrNotFound)

	svc := newTestService(store, Options{})
	_, err := svc.DayAvailability(context.Background(), DayQuery{
		ServiceID: 1, LocationID: 1, Date: testDay, ContinuationToken: "bogus",
	})
	require.ErrorIs(t, err, ErrInvalidQuery)
}

func TestDayAvailabilityServiceNotFound(t *testing.T) {
	store := new(mockStore)
	store.On("GetServiceByID", mock.Anything, int64(99)).Return(nil, database.ErrNotFound)

	svc := newTestService(store, Options{})
	_, err := svc.DayAvailability(context.Background(), DayQuery{ServiceID: 99, LocationID: 1, Date: testDay})
	require.ErrorIs(t, err, ErrServiceNotFound)
}

func TestDayAvailabilityNoShiftsShortCircuits(t *testing.T) {
	store := new(mockStore)
	store.On("GetServiceByID", mock.Anything, int64(1)).Return(testService(), nil)
	store.On("GetQualifiedShifts", mock.Anything, int64(1), int64(1), dayStart, dayEnd, int64(0)).Return([]models.Shift{}, nil)

	svc := newTestService(store, Options{})
	got, err := svc.DayAvailability(context.Background(), DayQuery{ServiceID: 1, LocationID: 1, Date: testDay})
	require.NoError(t, err)
	assert.Empty(t, got)
	store.AssertNotCalled(t, "GetBlackouts", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "GetActiveLocks", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDayAvailabilityExcludeBookingBypassesCache(t *testing.T) {
	store := new(mockStore)
	store.On("GetServiceByID", mock.Anything, int64(1)).Return(testService(), nil)
	store.On("GetQualifiedShifts", mock.Anything, int64(1), int64(1), dayStart, dayEnd, int64(0)).Return(morningShift(), nil)
	store.On("GetBlackouts", mock.Anything, int64(1), dayStart, dayEnd).Return([]models.BlackoutPeriod{}, nil)
	store.On("GetBookings", mock.Anything, []int64{10}, dayStart, dayEnd, int64(7)).Return([]models.Booking{}, nil)
	store.On("GetShiftBreaks", mock.Anything, []int64{10}, dayStart, dayEnd).Return([]models.Break{}, nil)
	store.On("GetSitewideBreaks", mock.Anything).Return([]models.SitewideBreak{}, nil)
	store.On("GetActiveLocks", mock.Anything, []int64{10}, dayStart, dayEnd, mock.Anything).Return([]models.Lock{}, nil)

	svc := newTestService(store, Options{})
	q := DayQuery{ServiceID: 1, LocationID: 1, Date: testDay, ExcludeBookingID: 7}

	_, err := svc.DayAvailability(context.Background(), q)
	require.NoError(t, err)
	_, err = svc.DayAvailability(context.Background(), q)
	require.NoError(t, err)

	// Reschedule views never read or populate the shared cache.
	store.AssertNumberOfCalls(t, "GetQualifiedShifts", 2)
}

func TestDayAvailabilitySitewideBreakProjection(t *testing.T) {
	sitewide := models.SitewideBreak{
		ID: 3, Name: "lunch", StartClock: "10:00", EndClock: "11:00",
		Timezone: "UTC", IsActive: true,
	}

	store := new(mockStore)
	store.On("GetServiceByID", mock.Anything, int64(1)).Return(testService(), nil)
	store.On("GetQualifiedShifts", mock.Anything, int64(1), int64(1), dayStart, dayEnd, int64(0)).Return(morningShift(), nil).Once()
	store.On("GetBlackouts", mock.Anything, int64(1), dayStart, dayEnd).Return([]models.BlackoutPeriod{}, nil).Once()
	store.On("GetBookings", mock.Anything, []int64{10}, dayStart, dayEnd, int64(0)).Return([]models.Booking{}, nil).Once()
	store.On("GetShiftBreaks", mock.Anything, []int64{10}, dayStart, dayEnd).Return([]models.Break{}, nil).Once()
	store.On("GetSitewideBreaks", mock.Anything).Return([]models.SitewideBreak{sitewide}, nil).Once()
	store.On("GetActiveLocks", mock.Anything, []int64{10}, dayStart, dayEnd, mock.Anything).Return([]models.Lock{}, nil)

	svc := newTestService(store, Options{})
	got, err := svc.DayAvailability(context.Background(), DayQuery{ServiceID: 1, LocationID: 1, Date: testDay})
	require.NoError(t, err)

	// 10:00 and 10:30 fall inside the projected break.
	require.Len(t, got, 4)
	for _, s := range got {
		h := s.StartTime.Hour()
		assert.NotEqual(t, 10, h, "slot inside the sitewide break must be excluded")
	}
}

func TestDayAvailabilitySitewideBreakOverride(t *testing.T) {
	sitewide := models.SitewideBreak{
		ID: 3, Name: "lunch", StartClock: "10:00", EndClock: "11:00",
		Timezone: "UTC", IsActive: true,
	}
	sbID := int64(3)
	// Shift-specific override shortens the break to 30 minutes.
	override := models.Break{
		ID: 8, ShiftID: 10,
		StartTime: testDay.Add(10 * time.Hour), EndTime: testDay.Add(10*time.Hour + 30*time.Minute),
		SitewideBreakID: &sbID,
	}

	store := new(mockStore)
	store.On("GetServiceByID", mock.Anything, int64(1)).Return(testService(), nil)
	store.On("GetQualifiedShifts", mock.Anything, int64(1), int64(1), dayStart, dayEnd, int64(0)).Return(morningShift(), nil).Once()
	store.On("GetBlackouts", mock.Anything, int64(1), dayStart, dayEnd).Return([]models.BlackoutPeriod{}, nil).Once()
	store.On("GetBookings", mock.Anything, []int64{10}, dayStart, dayEnd, int64(0)).Return([]models.Booking{}, nil).Once()
	store.On("GetShiftBreaks", mock.Anything, []int64{10}, dayStart, dayEnd).Return([]models.Break{override}, nil).Once()
	store.On("GetSitewideBreaks", mock.Anything).Return([]models.SitewideBreak{sitewide}, nil).Once()
	store.On("GetActiveLocks", mock.Anything, []int64{10}, dayStart, dayEnd, mock.Anything).Return([]models.Lock{}, nil)

	svc := newTestService(store, Options{})
	got, err := svc.DayAvailability(context.Background(), DayQuery{ServiceID: 1, LocationID: 1, Date: testDay})
	require.NoError(t, err)

	// The shortened break frees 10:30.
	require.Len(t, got, 5)
	var has1030 bool
	for _, s := range got {
		if s.StartTime.Equal(testDay.Add(10*time.Hour + 30*time.Minute)) {
			has1030 = true
		}
	}
	assert.True(t, has1030, "override should free the second half of the sitewide break")
}

func TestRangeHeatmapThreeDays(t *testing.T) {
	day1 := testDay
	day2 := testDay.AddDate(0, 0, 1)
	day3 := testDay.AddDate(0, 0, 2)
	end := day1.AddDate(0, 0, 2)

	shiftFor := func(day time.Time) []models.Shift {
		return []models.Shift{{
			ID: 10, StaffID: 5, LocationID: 1,
			StartTime: day.Add(9 * time.Hour), EndTime: day.Add(11 * time.Hour),
			IsActive: true,
		}}
	}
	fullDayBlackout := []models.BlackoutPeriod{{ID: 1, StartDate: day2, EndDate: day2.Add(24 * time.Hour)}}

	store := new(mockStore)
	store.On("GetServiceByID", mock.Anything, int64(1)).Return(testService(), nil)
	for _, d := range []time.Time{day1, day2, day3} {
		store.On("GetQualifiedShifts", mock.Anything, int64(1), int64(1), d, d.Add(24*time.Hour), int64(0)).Return(shiftFor(d), nil).Once()
		store.On("GetBookings", mock.Anything, []int64{10}, d, d.Add(24*time.Hour), int64(0)).Return([]models.Booking{}, nil).Once()
		store.On("GetShiftBreaks", mock.Anything, []int64{10}, d, d.Add(24*time.Hour)).Return([]models.Break{}, nil).Once()
	}
	store.On("GetBlackouts", mock.Anything, int64(1), day1, day1.Add(24*time.Hour)).Return([]models.BlackoutPeriod{}, nil).Once()
	store.On("GetBlackouts", mock.Anything, int64(1), day2, day2.Add(24*time.Hour)).Return(fullDayBlackout, nil).Once()
	store.On("GetBlackouts", mock.Anything, int64(1), day3, day3.Add(24*time.Hour)).Return([]models.BlackoutPeriod{}, nil).Once()
	store.On("GetSitewideBreaks", mock.Anything).Return([]models.SitewideBreak{}, nil)
	store.On("GetActiveLocks", mock.Anything, []int64{10}, mock.Anything, mock.Anything, mock.Anything).Return([]models.Lock{}, nil)

	svc := newTestService(store, Options{})
	entries, err := svc.RangeHeatmap(context.Background(), RangeQuery{ServiceID: 1, LocationID: 1, Start: day1, End: end})
	require.NoError(t, err)

	require.Len(t, entries, 3)
	assert.Equal(t, 4, entries[0].AvailableSlots, "day 1: 09:00-11:00 at 30 minutes")
	assert.Equal(t, 0, entries[1].AvailableSlots, "day 2 is fully blacked out")
	assert.Equal(t, 4, entries[2].AvailableSlots)
	assert.Equal(t, "2026-03-03", entries[1].Date)
}

func TestRangeHeatmapCached(t *testing.T) {
	store := new(mockStore)
	store.On("GetServiceByID", mock.Anything, int64(1)).Return(testService(), nil)
	expectComputeInputs(store, morningShift())
	store.On("GetActiveLocks", mock.Anything, []int64{10}, dayStart, dayEnd, mock.Anything).Return([]models.Lock{}, nil).Once()

	svc := newTestService(store, Options{})
	q := RangeQuery{ServiceID: 1, LocationID: 1, Start: testDay, End: testDay}

	first, err := svc.RangeHeatmap(context.Background(), q)
	require.NoError(t, err)
	second, err := svc.RangeHeatmap(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	// The second range request is served entirely from the heatmap cache.
	store.AssertNumberOfCalls(t, "GetQualifiedShifts", 1)
	store.AssertNumberOfCalls(t, "GetActiveLocks", 1)
}

func TestRangeHeatmapInvalidRange(t *testing.T) {
	store := new(mockStore)
	svc := newTestService(store, Options{})

	_, err := svc.RangeHeatmap(context.Background(), RangeQuery{
		ServiceID: 1, LocationID: 1,
		Start: testDay, End: testDay.AddDate(0, 0, -1),
	})
	require.ErrorIs(t, err, ErrInvalidQuery)
}
