package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"clinicbook/internal/availability"
	"clinicbook/internal/metrics"
	"clinicbook/internal/models"
)

// DayAvailabilityResponse is the payload for GET /api/v1/availability/day.
type DayAvailabilityResponse struct {
	Slots []models.Slot `json:"slots"`
}

// HeatmapResponse is the payload for GET /api/v1/availability/heatmap.
type HeatmapResponse struct {
	Days []models.DayHeatmapEntry `json:"days"`
}

// handleDayAvailability returns bookable slots for one day.
// GET /api/v1/availability/day?service_id=&location_id=&date=YYYY-MM-DD
//
//	&staff_id=&twin=true&continuation=&exclude_booking_id=&_ts=
func (s *HTTPServer) handleDayAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability_day")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	qv := r.URL.Query()
	serviceID, err := requireID(qv.Get("service_id"), "service_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	locationID, err := requireID(qv.Get("location_id"), "location_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if qv.Get("date") == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	date, err := parseDate(qv.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := availability.DayQuery{
		ServiceID:         serviceID,
		LocationID:        locationID,
		Date:              date,
		StaffID:           optionalID(qv.Get("staff_id")),
		Twin:              qv.Get("twin") == "true" || qv.Get("twin") == "1",
		ContinuationToken: qv.Get("continuation"),
		ExcludeBookingID:  optionalID(qv.Get("exclude_booking_id")),
		SkipCache:         noCacheRequested(r),
	}

	slots, err := s.avail.DayAvailability(r.Context(), q)
	if err != nil {
		s.writeAvailabilityError(w, err)
		return
	}
	if slots == nil {
		slots = []models.Slot{}
	}
	writeJSON(w, http.StatusOK, DayAvailabilityResponse{Slots: slots})
}

// handleHeatmap returns per-day available slot counts over a range.
// GET /api/v1/availability/heatmap?service_id=&location_id=&start=&end=&staff_id=
func (s *HTTPServer) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability_heatmap")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q, ok := s.parseRangeQuery(w, r)
	if !ok {
		return
	}

	days, err := s.avail.RangeHeatmap(r.Context(), q)
	if err != nil {
		s.writeAvailabilityError(w, err)
		return
	}
	if days == nil {
		days = []models.DayHeatmapEntry{}
	}
	writeJSON(w, http.StatusOK, HeatmapResponse{Days: days})
}

func (s *HTTPServer) parseRangeQuery(w http.ResponseWriter, r *http.Request) (availability.RangeQuery, bool) {
	qv := r.URL.Query()
	var q availability.RangeQuery

	serviceID, err := requireID(qv.Get("service_id"), "service_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return q, false
	}
	locationID, err := requireID(qv.Get("location_id"), "location_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return q, false
	}
	if qv.Get("start") == "" || qv.Get("end") == "" {
		writeError(w, http.StatusBadRequest, "start and end are required")
		return q, false
	}
	start, err := parseDate(qv.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start format; expected YYYY-MM-DD")
		return q, false
	}
	end, err := parseDate(qv.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end format; expected YYYY-MM-DD")
		return q, false
	}
	if start.After(end) {
		writeError(w, http.StatusBadRequest, "start must be before or equal to end")
		return q, false
	}
	if days := int(end.Sub(start).Hours() / 24); days > s.maxRangeDays {
		writeError(w, http.StatusBadRequest, "date range exceeds maximum")
		return q, false
	}

	q = availability.RangeQuery{
		ServiceID:  serviceID,
		LocationID: locationID,
		Start:      start,
		End:        end,
		StaffID:    optionalID(qv.Get("staff_id")),
		SkipCache:  noCacheRequested(r),
	}
	return q, true
}

func (s *HTTPServer) writeAvailabilityError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, availability.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "service not found")
	case errors.Is(err, availability.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error().Err(err).Msg("availability request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func requireID(value, name string) (int64, error) {
	if value == "" {
		return 0, errors.New(name + " is required")
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid " + name)
	}
	return id, nil
}

func optionalID(value string) int64 {
	if value == "" {
		return 0
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

// noCacheRequested honors an explicit no-cache header or a cache-busting
// timestamp query parameter.
func noCacheRequested(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Cache-Control"), "no-cache") {
		return true
	}
	return r.URL.Query().Get("_ts") != ""
}
