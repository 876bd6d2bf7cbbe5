package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"clinicbook/internal/database"
	"clinicbook/internal/metrics"
	"clinicbook/internal/models"
)

// CreateLockRequest is the body for POST /api/v1/locks.
type CreateLockRequest struct {
	ShiftID    int64     `json:"shift_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	TTLSeconds int       `json:"ttl_seconds,omitempty"`
}

// CreateLockResponse returns the session token identifying the hold.
type CreateLockResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleCreateLock holds a slot during checkout. The lock is advisory
// and expires on its own; booking creation re-validates overlap.
// POST /api/v1/locks
func (s *HTTPServer) handleCreateLock(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("lock_create")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req CreateLockRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ShiftID <= 0 {
		writeError(w, http.StatusBadRequest, "shift_id is required")
		return
	}
	if req.StartTime.IsZero() || req.EndTime.IsZero() || !req.EndTime.After(req.StartTime) {
		writeError(w, http.StatusBadRequest, "start_time and end_time must form a valid interval")
		return
	}

	ttl := s.lockTTL
	if req.TTLSeconds > 0 && time.Duration(req.TTLSeconds)*time.Second < ttl {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	lock := &models.Lock{
		ShiftID:      req.ShiftID,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		ExpiresAt:    time.Now().Add(ttl),
		SessionToken: uuid.NewString(),
	}
	if err := s.db.CreateLock(r.Context(), lock); err != nil {
		if errors.Is(err, database.ErrLockConflict) {
			writeError(w, http.StatusConflict, "slot already locked")
			return
		}
		s.log.Error().Err(err).Int64("shift_id", req.ShiftID).Msg("failed to create lock")
		writeError(w, http.StatusInternalServerError, "failed to create lock")
		return
	}
	metrics.IncLock("created")

	writeJSON(w, http.StatusOK, CreateLockResponse{
		Token:     lock.SessionToken,
		ExpiresAt: lock.ExpiresAt,
	})
}

// handleReleaseLock releases a hold early.
// DELETE /api/v1/locks/{token}
func (s *HTTPServer) handleReleaseLock(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("lock_release")
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use DELETE")
		return
	}

	const prefix = "/api/v1/locks/"
	token := r.URL.Path[len(prefix):]
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	if err := s.db.ReleaseLock(r.Context(), token); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "lock not found or already released")
			return
		}
		s.log.Error().Err(err).Msg("failed to release lock")
		writeError(w, http.StatusInternalServerError, "failed to release lock")
		return
	}
	metrics.IncLock("released")

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
