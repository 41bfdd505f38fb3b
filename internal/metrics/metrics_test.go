package metrics

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/opencall/opencall/internal/api"
	ocerrors "github.com/opencall/opencall/internal/errors"
	"github.com/opencall/opencall/internal/log"
	"github.com/opencall/opencall/internal/session"
)

func TestRoute(t *testing.T) {
	tests := map[string]string{
		"/mentors/ada/services":                   "/mentors",
		"/mentors/ada/availability?date=2024-01-1": "/mentors",
		"/bookings/me":                            "/bookings",
		"/auth/login":                             "/auth",
		"/":                                       "/",
		"zego":                                    "/zego",
	}
	for endpoint, want := range tests {
		if got := Route(endpoint); got != want {
			t.Errorf("Route(%q) = %q, want %q", endpoint, got, want)
		}
	}
}

func TestInstrument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/bookings/missing" {
			w.WriteHeader(404)
			_, _ = io.WriteString(w, `{"error":"booking not found"}`)
			return
		}
		_, _ = io.WriteString(w, `{"data":[]}`)
	}))
	defer server.Close()

	_, m := NewRegistry()
	client := api.New(server.URL, nil, api.WithLogger(log.Discard()))
	m.Instrument(client.Registry())

	ctx := context.Background()
	if err := client.Do(ctx, "/bookings/me", api.Options{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.Do(ctx, "/bookings/missing", api.Options{}, nil); err == nil {
		t.Fatal("expected 404 error")
	}

	if got := testutil.ToFloat64(m.Requests.WithLabelValues("GET", "/bookings", "200")); got != 1 {
		t.Errorf("200 requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Requests.WithLabelValues("GET", "/bookings", "404")); got != 1 {
		t.Errorf("404 requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RequestErrors.WithLabelValues("/bookings", "http")); got != 1 {
		t.Errorf("http errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Errors.WithLabelValues("API-003", "api")); got != 1 {
		t.Errorf("API-003 errors = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.RequestDuration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestInstrument_TransportError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, m := NewRegistry()
	client := api.New("http://"+addr, nil, api.WithLogger(log.Discard()), api.WithTimeout(time.Second))
	m.Instrument(client.Registry())

	if err := client.Do(context.Background(), "/mentors/ada", api.Options{SkipAuth: true}, nil); err == nil {
		t.Fatal("expected transport error")
	}
	if got := testutil.ToFloat64(m.RequestErrors.WithLabelValues("/mentors", "transport")); got != 1 {
		t.Errorf("transport errors = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.Requests); got != 0 {
		t.Errorf("requests = %d, want 0", got)
	}
}

func TestWatchSession(t *testing.T) {
	_, m := NewRegistry()
	store := session.NewStore(session.NewMemoryBackend(), session.WithLogger(log.Discard()))
	stop := m.WatchSession(store)

	ctx := context.Background()
	_ = store.Clear(ctx, session.ReasonRefreshFailed)
	_ = store.Clear(ctx, session.ReasonLogout)
	stop()
	_ = store.Clear(ctx, session.ReasonLogout)

	if got := testutil.ToFloat64(m.SessionInvalidations.WithLabelValues("refresh-failed")); got != 1 {
		t.Errorf("refresh-failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SessionInvalidations.WithLabelValues("logout")); got != 1 {
		t.Errorf("logout = %v, want 1", got)
	}
}

func TestRecordCommand(t *testing.T) {
	_, m := NewRegistry()

	m.RecordCommand("login", 0.2, nil)
	m.RecordCommand("login", 0.1, ocerrors.NewNotAuthenticatedError())
	m.RecordCommand("status", 0.1, errors.New("plain"))

	if got := testutil.ToFloat64(m.CommandExecutions.WithLabelValues("login", "true")); got != 1 {
		t.Errorf("successful logins = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CommandExecutions.WithLabelValues("login", "false")); got != 1 {
		t.Errorf("failed logins = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Errors.WithLabelValues("SESSION-001", "cmd")); got != 1 {
		t.Errorf("SESSION-001 = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Errors.WithLabelValues("unknown", "cmd")); got != 1 {
		t.Errorf("unknown = %v, want 1", got)
	}
}

func TestHandlerFor(t *testing.T) {
	reg, m := NewRegistry()
	m.CommandExecutions.WithLabelValues("version", "true").Inc()

	w := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %v, want %v", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "opencall_command_executions_total") {
		t.Error("metrics output does not contain opencall_command_executions_total")
	}
}

func TestMultipleRegistries(t *testing.T) {
	reg1, m1 := NewRegistry()
	reg2, m2 := NewRegistry()
	m1.CommandExecutions.WithLabelValues("a", "true").Inc()

	if m1 == m2 {
		t.Error("expected different metrics instances")
	}
	if got := testutil.CollectAndCount(m2.CommandExecutions); got != 0 {
		t.Errorf("second registry saw %d series", got)
	}
	if _, err := reg1.Gather(); err != nil {
		t.Fatal(err)
	}
	if _, err := reg2.Gather(); err != nil {
		t.Fatal(err)
	}
}

func TestServe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	reg, m := NewRegistry()
	m.BookingPolls.WithLabelValues("true").Inc()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr, reg) }()

	var body string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err == nil {
			data, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			body = string(data)
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Serve returned %v", err)
	}
	if !strings.Contains(body, "opencall_booking_polls_total") {
		t.Errorf("metrics body missing booking polls: %q", body)
	}
}
