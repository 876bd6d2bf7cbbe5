package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", testAPIKey)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestHandleCreateLock_Validation(t *testing.T) {
	handler, fx := setupTestServer(t)
	start := testDay.Add(10 * time.Hour)

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantError  string
	}{
		{
			name:       "invalid JSON",
			body:       "not json",
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid JSON body",
		},
		{
			name:       "unknown field",
			body:       map[string]any{"shift_id": fx.ShiftID, "bogus": true},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid JSON body",
		},
		{
			name:       "missing shift_id",
			body:       CreateLockRequest{StartTime: start, EndTime: start.Add(30 * time.Minute)},
			wantStatus: http.StatusBadRequest,
			wantError:  "shift_id is required",
		},
		{
			name:       "inverted interval",
			body:       CreateLockRequest{ShiftID: fx.ShiftID, StartTime: start.Add(30 * time.Minute), EndTime: start},
			wantStatus: http.StatusBadRequest,
			wantError:  "start_time and end_time must form a valid interval",
		},
		{
			name:       "zero times",
			body:       CreateLockRequest{ShiftID: fx.ShiftID},
			wantStatus: http.StatusBadRequest,
			wantError:  "start_time and end_time must form a valid interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, handler, http.MethodPost, "/api/v1/locks", tt.body)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err == nil {
				if resp.Error != tt.wantError {
					t.Errorf("error = %q, want %q", resp.Error, tt.wantError)
				}
			}
		})
	}
}

func TestLockLifecycle(t *testing.T) {
	handler, fx := setupTestServer(t)
	params := url.Values{
		"service_id":  {itoa(fx.ServiceID)},
		"location_id": {itoa(fx.LocationID)},
		"date":        {"2026-06-01"},
	}

	countSlots := func() int {
		w := doGet(t, handler, "/api/v1/availability/day", params)
		if w.Code != http.StatusOK {
			t.Fatalf("availability status = %d: %s", w.Code, w.Body.String())
		}
		var resp DayAvailabilityResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal availability: %v", err)
		}
		return len(resp.Slots)
	}

	if got := countSlots(); got != 6 {
		t.Fatalf("baseline slots = %d, want 6", got)
	}

	// Hold 10:00-10:30 during checkout.
	lockBody := CreateLockRequest{
		ShiftID:   fx.ShiftID,
		StartTime: testDay.Add(10 * time.Hour),
		EndTime:   testDay.Add(10*time.Hour + 30*time.Minute),
	}
	w := doJSON(t, handler, http.MethodPost, "/api/v1/locks", lockBody)
	if w.Code != http.StatusOK {
		t.Fatalf("lock create status = %d: %s", w.Code, w.Body.String())
	}
	var created CreateLockResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to unmarshal lock response: %v", err)
	}
	if created.Token == "" {
		t.Fatal("lock token must not be empty")
	}
	if !created.ExpiresAt.After(time.Now()) {
		t.Error("lock must expire in the future")
	}

	// The locked slot disappears without invalidating the raw cache.
	if got := countSlots(); got != 5 {
		t.Fatalf("slots while locked = %d, want 5", got)
	}

	// A second hold on the same span conflicts.
	w = doJSON(t, handler, http.MethodPost, "/api/v1/locks", lockBody)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate lock status = %d, want %d", w.Code, http.StatusConflict)
	}

	// Releasing the hold reveals the slot again.
	w = doJSON(t, handler, http.MethodDelete, "/api/v1/locks/"+created.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("lock release status = %d: %s", w.Code, w.Body.String())
	}
	if got := countSlots(); got != 6 {
		t.Fatalf("slots after release = %d, want 6", got)
	}
}

func TestHandleReleaseLock_NotFound(t *testing.T) {
	handler, _ := setupTestServer(t)

	w := doJSON(t, handler, http.MethodDelete, "/api/v1/locks/no-such-token", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
