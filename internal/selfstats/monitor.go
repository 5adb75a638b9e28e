// Package selfstats is a lightweight in-process request counter feeding
// the stats block of /healthcheck. Grounded on
// the original Python service's SimpleMonitor (original_source's
// s3_storage_api/server.py) — the same four counters (requests, errors,
// timeouts, start time), expressed here as an atomically-updated struct
// instead of a middleware closure over module-level state.
package selfstats

import (
	"sync/atomic"
	"time"
)

type Monitor struct {
	startedAt time.Time
	requests  atomic.Int64
	errors    atomic.Int64
	timeouts  atomic.Int64
}

func New() *Monitor {
	return &Monitor{startedAt: time.Now()}
}

// Count records the outcome of one handled request.
func (m *Monitor) Count(isError, isTimeout bool) {
	m.requests.Add(1)
	if isError {
		m.errors.Add(1)
	}
	if isTimeout {
		m.timeouts.Add(1)
	}
}

type Stats struct {
	UptimeHours     float64 `json:"uptime_hours"`
	TotalRequests   int64   `json:"total_requests"`
	TotalErrors     int64   `json:"total_errors"`
	TotalTimeouts   int64   `json:"total_timeouts"`
	ErrorRate       float64 `json:"error_rate"`
	TimeoutRate     float64 `json:"timeout_rate"`
	RequestsPerHour float64 `json:"requests_per_hour"`
}

func (m *Monitor) Stats() Stats {
	uptime := time.Since(m.startedAt)
	requests := m.requests.Load()
	errors := m.errors.Load()
	timeouts := m.timeouts.Load()

	s := Stats{
		UptimeHours:   roundTo(uptime.Hours(), 2),
		TotalRequests: requests,
		TotalErrors:   errors,
		TotalTimeouts: timeouts,
	}
	if requests > 0 {
		s.ErrorRate = float64(errors) / float64(requests)
		s.TimeoutRate = float64(timeouts) / float64(requests)
	}
	if uptime.Hours() > 0 {
		s.RequestsPerHour = float64(requests) / uptime.Hours()
	}
	return s
}

func roundTo(v float64, places int) float64 {
	mult := 1.0
	for i := 0; i < places; i++ {
		mult *= 10
	}
	return float64(int64(v*mult+0.5)) / mult
}
