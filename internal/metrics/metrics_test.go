package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.BusMessage("smart-home/gas")
	m.BusMessage("smart-home/gas")
	m.RouterError("smart-home/init")
	m.Alert(nil)
	m.Alert(errors.New("down"))
	m.Publish("smart-home/led", nil)

	if got := testutil.ToFloat64(m.busMessages.WithLabelValues("smart-home/gas")); got != 2 {
		t.Fatalf("bus messages = %v", got)
	}
	if got := testutil.ToFloat64(m.routerErrors.WithLabelValues("smart-home/init")); got != 1 {
		t.Fatalf("router errors = %v", got)
	}
	if got := testutil.ToFloat64(m.alerts.WithLabelValues("failed")); got != 1 {
		t.Fatalf("failed alerts = %v", got)
	}
	if got := testutil.ToFloat64(m.publishes.WithLabelValues("smart-home/led", "ok")); got != 1 {
		t.Fatalf("publishes = %v", got)
	}
}

func TestInstrumentAndHandler(t *testing.T) {
	m := New()
	h := m.Instrument("/api/fan/state", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/fan/state", nil))

	if got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/api/fan/state", "400")); got != 1 {
		t.Fatalf("http requests = %v", got)
	}

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rr.Body)
	if !strings.Contains(string(body), `http_requests_total{route="/api/fan/state",status="400"} 1`) {
		t.Fatalf("exposition missing counter:\n%s", body)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.BusMessage("x")
	m.RouterError("x")
	m.Alert(nil)
	m.Publish("x", nil)
	called := false
	m.Instrument("r", http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Fatal("nil metrics must pass requests through")
	}
}
