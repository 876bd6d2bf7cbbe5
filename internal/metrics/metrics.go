package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinicbook",
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	cacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinicbook",
			Name:      "availability_cache_events_total",
			Help:      "Availability cache lookups by cache and result.",
		},
		[]string{"cache", "result"},
	)

	slotsGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clinicbook",
			Name:      "slots_generated_total",
			Help:      "Count of candidate slots emitted by the generator.",
		},
	)

	locksHeld = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinicbook",
			Name:      "slot_locks_total",
			Help:      "Count of slot lock operations by action.",
		},
		[]string{"action"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, cacheEvents, slotsGenerated, locksHeld)
	})
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncCacheHit(cache string) {
	cacheEvents.WithLabelValues(cache, "hit").Inc()
}

func IncCacheMiss(cache string) {
	cacheEvents.WithLabelValues(cache, "miss").Inc()
}

func AddSlotsGenerated(n int) {
	slotsGenerated.Add(float64(n))
}

func IncLock(action string) {
	locksHeld.WithLabelValues(action).Inc()
}
