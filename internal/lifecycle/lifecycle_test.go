package lifecycle

import (
	"net/http"
	"testing"
	"time"

	"github.com/aldikf/airfare-price-service/internal/traffic"
)

var testThresholds = Thresholds{
	RateLimitRPS:         10,
	OverloadWindow:       10 * time.Second,
	OverloadThresholdPct: 50,
	DegradedWindow:       time.Minute,
	DegradedErrorPct:     20,
}

func TestMonitor_HealthyByDefault(t *testing.T) {
	m := NewMonitor(nil, nil, testThresholds)
	r := m.Evaluate()
	if r.Status != StatusHealthy || r.HTTPStatus() != http.StatusOK {
		t.Fatalf("Evaluate() = %+v, want healthy/200", r)
	}
}

func TestMonitor_ShuttingDownFlag(t *testing.T) {
	m := NewMonitor(nil, nil, testThresholds)
	m.SetShuttingDown(true)
	if !m.IsShuttingDown() {
		t.Fatal("IsShuttingDown() = false after SetShuttingDown(true)")
	}
	m.SetShuttingDown(false)
	if m.IsShuttingDown() {
		t.Fatal("IsShuttingDown() = true after SetShuttingDown(false)")
	}
}

func TestMonitor_OverloadLimit(t *testing.T) {
	m := NewMonitor(nil, nil, testThresholds)
	if got := m.OverloadLimit(); got != 50 {
		t.Errorf("OverloadLimit() = %d, want 50", got)
	}
	disabled := testThresholds
	disabled.RateLimitRPS = 0
	if got := NewMonitor(nil, nil, disabled).OverloadLimit(); got != 0 {
		t.Errorf("OverloadLimit() with limiter off = %d, want 0", got)
	}
}

// TestMonitor_Priority verifies the decision order when several conditions hold.
func TestMonitor_Priority(t *testing.T) {
	tests := []struct {
		name     string
		shutdown bool
		ready    bool
		success  int
		failed   int
		denied   int
		want     Status
	}{
		{"healthy", false, true, 10, 0, 0, StatusHealthy},
		{"shutdown beats everything", true, false, 100, 100, 100, StatusShuttingDown},
		{"not ready beats overload", false, false, 100, 0, 10, StatusNotReady},
		{"overloaded", false, true, 60, 0, 5, StatusOverloaded},
		{"busy without denials is not overloaded", false, true, 60, 0, 0, StatusHealthy},
		{"overload beats degraded", false, true, 30, 30, 5, StatusOverloaded},
		{"degraded at threshold", false, true, 8, 2, 0, StatusDegraded},
		{"below degraded threshold", false, true, 9, 1, 0, StatusHealthy},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr := traffic.New()
			tr.RecordN(traffic.Success, tc.success)
			tr.RecordN(traffic.Failed, tc.failed)
			tr.RecordN(traffic.Denied, tc.denied)
			ready := tc.ready
			m := NewMonitor(tr, func() bool { return ready }, testThresholds)
			m.SetShuttingDown(tc.shutdown)

			r := m.Evaluate()
			if r.Status != tc.want {
				t.Fatalf("Evaluate() = %+v, want %s", r, tc.want)
			}
			if tc.want != StatusHealthy && r.HTTPStatus() != http.StatusServiceUnavailable {
				t.Errorf("HTTPStatus() = %d, want 503", r.HTTPStatus())
			}
		})
	}
}

func TestMonitor_Tracker(t *testing.T) {
	tr := traffic.New()
	if NewMonitor(tr, nil, Thresholds{}).Tracker() != tr {
		t.Fatal("Tracker() did not return the injected tracker")
	}
}
