package metrics

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/felixgeelhaar/lostfound/internal/errors"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	if m == nil {
		t.Fatal("expected metrics, got nil")
	}

	tests := []struct {
		name   string
		metric interface{}
	}{
		{"CommandExecutions", m.CommandExecutions},
		{"CommandDuration", m.CommandDuration},
		{"GatewayRequests", m.GatewayRequests},
		{"GatewayLatency", m.GatewayLatency},
		{"GuardRejections", m.GuardRejections},
		{"ImageRejections", m.ImageRejections},
		{"SessionTransitions", m.SessionTransitions},
		{"IdentityCalls", m.IdentityCalls},
		{"IdentityLatency", m.IdentityLatency},
		{"Errors", m.Errors},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.metric == nil {
				t.Errorf("%s metric is nil", tt.name)
			}
		})
	}
}

func TestOutcome(t *testing.T) {
	if got := Outcome(nil); got != OutcomeSuccess {
		t.Errorf("Outcome(nil) = %q, want %q", got, OutcomeSuccess)
	}
	if got := Outcome(errors.FromStatus(http.StatusForbidden, "")); got != "forbidden" {
		t.Errorf("Outcome(403) = %q, want forbidden", got)
	}
	if got := Outcome(fmt.Errorf("plain")); got != "unknown" {
		t.Errorf("Outcome(plain) = %q, want unknown", got)
	}
}

func TestObserveRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveRequest("list_items", nil, 20*time.Millisecond)
	m.ObserveRequest("list_items", nil, 40*time.Millisecond)
	m.ObserveRequest("create_item", errors.FromStatus(http.StatusServiceUnavailable, ""), time.Second)

	if got := testutil.ToFloat64(m.GatewayRequests.WithLabelValues("list_items", OutcomeSuccess)); got != 2 {
		t.Errorf("expected 2 successful list_items requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.GatewayRequests.WithLabelValues("create_item", "server_error")); got != 1 {
		t.Errorf("expected 1 failed create_item request, got %v", got)
	}
	if got := testutil.ToFloat64(m.Errors.WithLabelValues("API-005", "gateway")); got != 1 {
		t.Errorf("expected error code API-005 to be counted, got %v", got)
	}
	if got := testutil.CollectAndCount(m.GatewayLatency); got != 2 {
		t.Errorf("expected 2 latency series, got %d", got)
	}
}

func TestObserveGuardAndTransitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveGuard("delete_item", errors.KindUnauthenticated)
	m.ObserveTransition("login")
	m.ObserveTransition("logout")
	m.ObserveTransition("login")
	m.ObserveImageRejection("too_large")

	if got := testutil.ToFloat64(m.GuardRejections.WithLabelValues("delete_item", "unauthenticated")); got != 1 {
		t.Errorf("expected 1 guard rejection, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionTransitions.WithLabelValues("login")); got != 2 {
		t.Errorf("expected 2 logins, got %v", got)
	}
	if got := testutil.ToFloat64(m.ImageRejections.WithLabelValues("too_large")); got != 1 {
		t.Errorf("expected 1 image rejection, got %v", got)
	}
}

func TestObserveIdentityAndCommand(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveIdentity("authenticate", errors.New(errors.KindUnauthenticated, errors.ErrCodeAuthInvalidCredentials, "bad"), time.Second)
	m.ObserveCommand("items list", nil, time.Second)

	if got := testutil.ToFloat64(m.IdentityCalls.WithLabelValues("authenticate", "unauthenticated")); got != 1 {
		t.Errorf("expected 1 identity call, got %v", got)
	}
	if got := testutil.ToFloat64(m.Errors.WithLabelValues("AUTH-002", "identity")); got != 1 {
		t.Errorf("expected AUTH-002 to be counted, got %v", got)
	}
	if got := testutil.ToFloat64(m.CommandExecutions.WithLabelValues("items list", OutcomeSuccess)); got != 1 {
		t.Errorf("expected 1 command execution, got %v", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics

	m.ObserveRequest("op", nil, time.Second)
	m.ObserveGuard("op", errors.KindForbidden)
	m.ObserveImageRejection("type")
	m.ObserveTransition("login")
	m.ObserveIdentity("op", nil, time.Second)
	m.ObserveCommand("cmd", nil, time.Second)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveRequest("inbox", nil, 10*time.Millisecond)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	server := httptest.NewServer(handler)
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("failed to get metrics: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}

	body := string(data)
	for _, want := range []string{
		"lostfound_gateway_requests_total",
		"lostfound_gateway_latency_seconds",
		`operation="inbox"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %q", want)
		}
	}
}
