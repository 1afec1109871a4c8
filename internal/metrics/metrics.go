// Package metrics accumulates process-wide request statistics: totals,
// error counts, latency averages and an active-request gauge, globally and
// per endpoint. One Registry is created at startup and injected wherever
// requests are tracked.
package metrics

import (
	"net/http"
	"sync"
	"time"
)

// EndpointStats accumulates counters for one route (or globally).
type EndpointStats struct {
	Requests      int64   `json:"request_count"`
	Errors        int64   `json:"error_count"`
	AvgResponseMS float64 `json:"average_response_ms"`

	totalDur time.Duration
}

func (s *EndpointStats) record(d time.Duration, failed bool) {
	s.Requests++
	if failed {
		s.Errors++
	}
	s.totalDur += d
	s.AvgResponseMS = float64(s.totalDur.Milliseconds()) / float64(s.Requests)
}

// Snapshot is a point-in-time view of the registry, shaped for the
// /metrics response.
type Snapshot struct {
	UptimeSeconds float64                  `json:"uptime_seconds"`
	Active        int64                    `json:"active_requests"`
	Global        EndpointStats            `json:"global"`
	Endpoints     map[string]EndpointStats `json:"endpoints"`
}

// Registry tracks request metrics, safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	startedAt time.Time
	active    int64
	global    EndpointStats
	endpoints map[string]*EndpointStats
}

// New creates an empty registry with uptime starting now.
func New() *Registry {
	return &Registry{
		startedAt: time.Now(),
		endpoints: make(map[string]*EndpointStats),
	}
}

// Timer tracks one in-flight request.
type Timer struct {
	registry *Registry
	endpoint string
	start    time.Time
	once     sync.Once
}

// Begin records a request start on endpoint and bumps the active gauge.
// Call End exactly once with the final status.
func (r *Registry) Begin(endpoint string) *Timer {
	r.mu.Lock()
	r.active++
	r.mu.Unlock()

	return &Timer{
		registry: r,
		endpoint: endpoint,
		start:    time.Now(),
	}
}

// End finishes the timer. Statuses at or above 400 count as errors.
func (t *Timer) End(status int) {
	t.once.Do(func() {
		d := time.Since(t.start)
		failed := status >= http.StatusBadRequest

		r := t.registry
		r.mu.Lock()
		defer r.mu.Unlock()

		r.active--
		r.global.record(d, failed)

		ep, ok := r.endpoints[t.endpoint]
		if !ok {
			ep = &EndpointStats{}
			r.endpoints[t.endpoint] = ep
		}
		ep.record(d, failed)
	})
}

// Active returns the current in-flight request count.
func (r *Registry) Active() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Snapshot copies the counters out of the registry.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(r.startedAt).Seconds(),
		Active:        r.active,
		Global:        r.global,
		Endpoints:     make(map[string]EndpointStats, len(r.endpoints)),
	}
	for endpoint, stats := range r.endpoints {
		snap.Endpoints[endpoint] = *stats
	}
	return snap
}

// Reset zeroes every counter and restarts the uptime clock. In-flight
// requests keep their gauge so Active stays truthful.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.startedAt = time.Now()
	r.global = EndpointStats{}
	r.endpoints = make(map[string]*EndpointStats)
}
