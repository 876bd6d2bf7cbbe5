package api

import (
	"fmt"
	"net/http"

	"clinicbook/internal/metrics"
	"clinicbook/internal/report"
)

// handleScheduleReport streams the range heatmap as an Excel workbook.
// GET /api/v1/reports/schedule.xlsx?service_id=&location_id=&start=&end=&staff_id=
func (s *HTTPServer) handleScheduleReport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("schedule_report")
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

	title := fmt.Sprintf("Availability %s to %s", q.Start.Format("2006-01-02"), q.End.Format("2006-01-02"))
	filename := fmt.Sprintf("schedule_%s_%s.xlsx", q.Start.Format("20060102"), q.End.Format("20060102"))

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := report.WriteHeatmap(w, title, days); err != nil {
		s.log.Error().Err(err).Msg("failed to write schedule report")
	}
}
