// Package lifecycle tracks the process state that /health reports: draining
// on shutdown, reference data readiness, and load and error pressure read from
// the traffic windows.
package lifecycle

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/aldikf/airfare-price-service/internal/traffic"
)

// Status is the health state reported to load balancers.
type Status string

const (
	StatusHealthy      Status = "healthy"
	StatusShuttingDown Status = "shutting-down"
	StatusNotReady     Status = "not-ready"
	StatusOverloaded   Status = "overloaded"
	StatusDegraded     Status = "degraded"
)

// Thresholds configures overload and degraded detection. A zero window or
// percentage disables the corresponding check.
type Thresholds struct {
	RateLimitRPS         int
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	DegradedWindow       time.Duration
	DegradedErrorPct     int
}

// Report is the outcome of one health evaluation.
type Report struct {
	Status Status
	Reason string
}

// HTTPStatus maps the report to the status code /health answers with.
func (r Report) HTTPStatus() int {
	if r.Status == StatusHealthy {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

// Monitor evaluates health. Safe for concurrent use.
type Monitor struct {
	tracker      *traffic.Tracker
	ready        func() bool
	thresholds   Thresholds
	shuttingDown atomic.Bool
}

// NewMonitor returns a Monitor reading outcomes from tracker. ready reports
// whether the airport directory and model are loaded; nil means always ready.
func NewMonitor(tracker *traffic.Tracker, ready func() bool, th Thresholds) *Monitor {
	if tracker == nil {
		tracker = traffic.New()
	}
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Monitor{tracker: tracker, ready: ready, thresholds: th}
}

// SetShuttingDown sets the drain flag. Call when SIGTERM/SIGINT is received.
func (m *Monitor) SetShuttingDown(v bool) {
	m.shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func (m *Monitor) IsShuttingDown() bool {
	return m.shuttingDown.Load()
}

// Tracker returns the traffic windows the monitor reads.
func (m *Monitor) Tracker() *traffic.Tracker {
	return m.tracker
}

// OverloadLimit is the number of requests in the overload window above which
// the service reports overloaded. Zero when the check is disabled.
func (m *Monitor) OverloadLimit() int {
	th := m.thresholds
	if th.RateLimitRPS <= 0 || th.OverloadWindow <= 0 || th.OverloadThresholdPct <= 0 {
		return 0
	}
	return int(float64(th.RateLimitRPS) * th.OverloadWindow.Seconds() * float64(th.OverloadThresholdPct) / 100)
}

// Evaluate returns the current health.
// Decision order: shutting-down > not-ready > overloaded > degraded > healthy.
func (m *Monitor) Evaluate() Report {
	if m.IsShuttingDown() {
		return Report{StatusShuttingDown, "draining"}
	}
	if !m.ready() {
		return Report{StatusNotReady, "reference_data_unavailable"}
	}

	if limit := m.OverloadLimit(); limit > 0 {
		if m.tracker.Total(m.thresholds.OverloadWindow) > limit && m.tracker.Count(traffic.Denied, m.thresholds.OverloadWindow) > 0 {
			return Report{StatusOverloaded, "overload_threshold"}
		}
	}

	th := m.thresholds
	if th.DegradedWindow > 0 && th.DegradedErrorPct > 0 {
		failed, answered := m.tracker.ErrorRate(th.DegradedWindow)
		if answered > 0 && float64(failed)*100/float64(answered) >= float64(th.DegradedErrorPct) {
			return Report{StatusDegraded, "error_rate_breach"}
		}
	}

	return Report{StatusHealthy, ""}
}
