package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"clinicbook/internal/availability"
	"clinicbook/internal/database"
)

// Options configures the HTTP server.
type Options struct {
	Addr         string
	APIKey       string // empty disables auth
	RateLimit    float64
	RateBurst    int
	MaxRangeDays int
	LockTTL      time.Duration
}

// HTTPServer serves the availability API.
type HTTPServer struct {
	server       *http.Server
	avail        *availability.Service
	db           *database.DB
	rdb          *redis.Client
	log          *zerolog.Logger
	apiKey       string
	limiter      *rate.Limiter
	maxRangeDays int
	lockTTL      time.Duration
}

// NewHTTPServer wires routes and middleware. rdb may be nil; the
// readiness probe then only checks the database.
func NewHTTPServer(avail *availability.Service, db *database.DB, rdb *redis.Client, logger *zerolog.Logger, opts Options) *HTTPServer {
	if opts.RateLimit <= 0 {
		opts.RateLimit = 50
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 100
	}
	if opts.MaxRangeDays <= 0 {
		opts.MaxRangeDays = 90
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}

	s := &HTTPServer{
		avail:        avail,
		db:           db,
		rdb:          rdb,
		log:          logger,
		apiKey:       opts.APIKey,
		limiter:      rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
		maxRangeDays: opts.MaxRangeDays,
		lockTTL:      opts.LockTTL,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/availability/day", s.guard(s.handleDayAvailability))
	mux.HandleFunc("/api/v1/availability/heatmap", s.guard(s.handleHeatmap))
	mux.HandleFunc("/api/v1/locks", s.guard(s.handleCreateLock))
	mux.HandleFunc("/api/v1/locks/", s.guard(s.handleReleaseLock))
	mux.HandleFunc("/api/v1/reports/schedule.xlsx", s.guard(s.handleScheduleReport))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler exposes the routed handler for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// ListenAndServe blocks until the context is cancelled, then shuts the
// server down gracefully.
func (s *HTTPServer) ListenAndServe(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctxShutdown)
	}()
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// guard applies rate limiting and API key auth to a handler.
func (s *HTTPServer) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		if s.apiKey != "" && r.Header.Get("x-api-key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next(w, r)
	}
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctxPing, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()
	if err := s.db.Ping(ctxPing); err != nil {
		http.Error(w, "db not ready", http.StatusServiceUnavailable)
		return
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctxPing).Err(); err != nil {
			http.Error(w, "redis not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// parseDate parses a YYYY-MM-DD query value.
func parseDate(value string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format; expected YYYY-MM-DD")
	}
	return d, nil
}
