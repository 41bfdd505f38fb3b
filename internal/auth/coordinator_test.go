package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/opencall/opencall/internal/api"
	"github.com/opencall/opencall/internal/log"
	"github.com/opencall/opencall/internal/session"
	"github.com/opencall/opencall/internal/telemetry"
)

var testNow = time.UnixMilli(1_700_000_000_000)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeAPI is a minimal OpenCall server. a1/r1 are issued at login and
// a2/r2 by every refresh.
type fakeAPI struct {
	refreshCalls  atomic.Int32
	logoutCalls   atomic.Int32
	refreshStatus int
	refreshBody   string
	refreshGate   chan struct{}
	refreshSeen   chan struct{}
	loginBody     string
	rejectA1      bool

	mu         sync.Mutex
	protected  []string
	refreshReq []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{refreshSeen: make(chan struct{}, 1)}
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/auth/login":
		var req LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "secret" {
			writeJSON(w, 401, `{"error":"Invalid credentials"}`)
			return
		}
		if f.loginBody != "" {
			writeJSON(w, 200, f.loginBody)
			return
		}
		writeJSON(w, 200, `{"data":{"user":{"id":"u-1","username":"ada","first_name":"Ada","last_name":"Lovelace","email":"ada@example.com"},"access_token":"a1","refresh_token":"r1","expires_in":900}}`)

	case "/auth/refresh":
		f.refreshCalls.Add(1)
		var req RefreshRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.refreshReq = append(f.refreshReq, req.RefreshToken)
		f.mu.Unlock()
		select {
		case f.refreshSeen <- struct{}{}:
		default:
		}
		if f.refreshGate != nil {
			<-f.refreshGate
		}
		if f.refreshStatus != 0 {
			writeJSON(w, f.refreshStatus, `{"error":"invalid refresh token"}`)
			return
		}
		if f.refreshBody != "" {
			writeJSON(w, 200, f.refreshBody)
			return
		}
		writeJSON(w, 200, `{"access_token":"a2","refresh_token":"r2","expires_in":900}`)

	case "/auth/logout":
		f.logoutCalls.Add(1)
		writeJSON(w, 200, `{"message":"logged out"}`)

	case "/protected":
		auth := r.Header.Get("Authorization")
		f.mu.Lock()
		f.protected = append(f.protected, auth)
		f.mu.Unlock()
		if auth == "" || (f.rejectA1 && auth == "Bearer a1") {
			writeJSON(w, 401, `{"error":"token expired"}`)
			return
		}
		writeJSON(w, 200, `{"data":{"ok":true}}`)

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeAPI) protectedAuth() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.protected...)
}

type harness struct {
	server *httptest.Server
	clock  *testClock
	store  *session.Store
	coord  *Coordinator
	client *api.Client
	ctrl   *Controller
	events []session.Event
	evMu   sync.Mutex
}

func newHarness(t *testing.T, handler http.Handler, backend session.Backend) *harness {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	h := &harness{server: server, clock: &testClock{now: testNow}}
	h.store = session.NewStore(backend, session.WithLogger(log.Discard()))
	h.store.Subscribe(func(e session.Event) {
		h.evMu.Lock()
		h.events = append(h.events, e)
		h.evMu.Unlock()
	})
	h.coord = NewCoordinator(server.URL, h.store, WithLogger(log.Discard()), WithClock(h.clock.Now))
	h.client = api.New(server.URL, h.store,
		api.WithRefresher(h.coord),
		api.WithLogger(log.Discard()),
		api.WithClock(h.clock.Now),
	)
	h.ctrl = NewController(h.client, h.coord, WithLogger(log.Discard()), WithClock(h.clock.Now))
	t.Cleanup(h.ctrl.Close)
	return h
}

func (h *harness) seed(t *testing.T, expiresIn time.Duration) {
	t.Helper()
	require.NoError(t, h.store.Write(context.Background(), session.FullPatch(session.Record{
		User:            &session.User{ID: "u-1", Username: "ada"},
		AccessToken:     "a1",
		RefreshToken:    "r1",
		ExpiresAt:       h.clock.Now().Add(expiresIn).UnixMilli(),
		IsAuthenticated: true,
	})))
}

func (h *harness) eventList() []session.Event {
	h.evMu.Lock()
	defer h.evMu.Unlock()
	return append([]session.Event(nil), h.events...)
}

func TestCoordinator_SingleFlight(t *testing.T) {
	fake := newFakeAPI()
	fake.refreshGate = make(chan struct{})
	h := newHarness(t, fake, session.NewMemoryBackend())
	h.seed(t, time.Hour)

	const callers = 8
	results := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := h.coord.Refresh(context.Background())
			assert.NoError(t, err)
			results[i] = token
		}(i)
	}

	<-fake.refreshSeen
	time.Sleep(50 * time.Millisecond)
	close(fake.refreshGate)
	wg.Wait()

	assert.Equal(t, int32(1), fake.refreshCalls.Load())
	for _, token := range results {
		assert.Equal(t, "a2", token)
	}

	rec := h.store.Read(context.Background())
	assert.Equal(t, "a2", rec.AccessToken)
	assert.Equal(t, "r2", rec.RefreshToken)
	assert.Equal(t, testNow.Add(900*time.Second).UnixMilli(), rec.ExpiresAt)
	assert.Equal(t, []string{"r1"}, fake.refreshReq)
}

func TestCoordinator_SequentialRefreshesAreIndependent(t *testing.T) {
	fake := newFakeAPI()
	h := newHarness(t, fake, session.NewMemoryBackend())
	h.seed(t, time.Hour)

	for i := 0; i < 2; i++ {
		token, err := h.coord.Refresh(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "a2", token)
	}
	assert.Equal(t, int32(2), fake.refreshCalls.Load())
	assert.Equal(t, []string{"r1", "r2"}, fake.refreshReq, "the rotated refresh token is used next")
}

func TestCoordinator_NoRefreshToken(t *testing.T) {
	fake := newFakeAPI()
	h := newHarness(t, fake, session.NewMemoryBackend())

	token, err := h.coord.Refresh(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.Zero(t, fake.refreshCalls.Load())
	assert.Empty(t, h.eventList(), "nothing to clear")
}

func TestCoordinator_FailureClearsAndBroadcastsOnce(t *testing.T) {
	fake := newFakeAPI()
	fake.refreshStatus = 401
	fake.refreshGate = make(chan struct{})
	h := newHarness(t, fake, session.NewMemoryBackend())
	h.seed(t, time.Hour)

	const callers = 5
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := h.coord.Refresh(context.Background())
			assert.NoError(t, err)
			assert.Empty(t, token)
		}()
	}

	<-fake.refreshSeen
	time.Sleep(50 * time.Millisecond)
	close(fake.refreshGate)
	wg.Wait()

	assert.True(t, h.store.Read(context.Background()).IsEmpty())
	events := h.eventList()
	require.Len(t, events, 1)
	assert.Equal(t, session.EventSessionInvalidated, events[0].Type)
	assert.Equal(t, session.ReasonRefreshFailed, events[0].Reason)
}

func TestCoordinator_LogoutDuringRefreshStaysLoggedOut(t *testing.T) {
	fake := newFakeAPI()
	fake.refreshGate = make(chan struct{})
	h := newHarness(t, fake, session.NewMemoryBackend())
	ctx := context.Background()
	h.seed(t, time.Hour)
	h.ctrl.HydrateFromStore(ctx)

	done := make(chan string, 1)
	go func() {
		token, _ := h.coord.Refresh(ctx)
		done <- token
	}()

	<-fake.refreshSeen
	h.ctrl.Logout(ctx)
	close(fake.refreshGate)

	assert.Empty(t, <-done, "tokens from a superseded exchange are discarded")
	assert.True(t, h.store.Read(ctx).IsEmpty())
	assert.False(t, h.ctrl.State().IsAuthenticated)
	events := h.eventList()
	require.Len(t, events, 1)
	assert.Equal(t, session.ReasonLogout, events[0].Reason)
}

func TestCoordinator_FailedRefreshKeepsNewerSession(t *testing.T) {
	fake := newFakeAPI()
	fake.refreshStatus = 401
	fake.refreshGate = make(chan struct{})
	h := newHarness(t, fake, session.NewMemoryBackend())
	ctx := context.Background()
	h.seed(t, time.Hour)

	done := make(chan string, 1)
	go func() {
		token, _ := h.coord.Refresh(ctx)
		done <- token
	}()

	<-fake.refreshSeen
	require.NoError(t, h.store.Write(ctx, session.FullPatch(session.Record{
		User:            &session.User{ID: "u-1", Username: "ada"},
		AccessToken:     "a9",
		RefreshToken:    "r9",
		ExpiresAt:       h.clock.Now().Add(time.Hour).UnixMilli(),
		IsAuthenticated: true,
	})))
	close(fake.refreshGate)

	assert.Empty(t, <-done)
	rec := h.store.Read(ctx)
	assert.Equal(t, "a9", rec.AccessToken)
	assert.Equal(t, "r9", rec.RefreshToken)
	assert.Empty(t, h.eventList())
}

func TestCoordinator_MalformedResponseFails(t *testing.T) {
	for name, body := range map[string]string{
		"no access token": `{"refresh_token":"r2","expires_in":900}`,
		"not json":        `{`,
	} {
		t.Run(name, func(t *testing.T) {
			fake := newFakeAPI()
			fake.refreshBody = body
			h := newHarness(t, fake, session.NewMemoryBackend())
			h.seed(t, time.Hour)

			token, err := h.coord.Refresh(context.Background())
			require.NoError(t, err)
			assert.Empty(t, token)
			assert.True(t, h.store.Read(context.Background()).IsEmpty())
		})
	}
}

func TestCoordinator_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	fake := newFakeAPI()
	fake.refreshBody = `{"data":{"access_token":"a2","expires_in":60}}`
	h := newHarness(t, fake, session.NewMemoryBackend())
	h.seed(t, time.Hour)

	token, err := h.coord.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a2", token)

	rec := h.store.Read(context.Background())
	assert.Equal(t, "r1", rec.RefreshToken)
	assert.Equal(t, "ada", rec.User.Username, "the user is untouched")
}

func TestCoordinator_CallerCancelDoesNotAbortExchange(t *testing.T) {
	fake := newFakeAPI()
	fake.refreshGate = make(chan struct{})
	h := newHarness(t, fake, session.NewMemoryBackend())
	h.seed(t, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := h.coord.Refresh(ctx)
		done <- err
	}()

	<-fake.refreshSeen
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(fake.refreshGate)
	assert.Eventually(t, func() bool {
		return h.store.Read(context.Background()).AccessToken == "a2"
	}, time.Second, 10*time.Millisecond)
}

func TestCoordinator_RefreshTimeout(t *testing.T) {
	fake := newFakeAPI()
	fake.refreshGate = make(chan struct{})

	server := httptest.NewServer(fake)
	defer server.Close()
	defer close(fake.refreshGate)
	store := session.NewStore(session.NewMemoryBackend(), session.WithLogger(log.Discard()))
	require.NoError(t, store.Write(context.Background(), session.TokenPatch("a1", "r1", testNow.Add(time.Hour).UnixMilli())))

	coord := NewCoordinator(server.URL, store, WithLogger(log.Discard()), WithRefreshTimeout(50*time.Millisecond))
	token, err := coord.Refresh(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.True(t, store.Read(context.Background()).IsEmpty())
}

func TestCoordinator_RecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	fake := newFakeAPI()
	server := httptest.NewServer(fake)
	defer server.Close()
	store := session.NewStore(session.NewMemoryBackend(), session.WithLogger(log.Discard()))
	require.NoError(t, store.Write(context.Background(), session.TokenPatch("a1", "r1", testNow.Add(time.Hour).UnixMilli())))

	coord := NewCoordinator(server.URL, store, WithLogger(log.Discard()), WithTracerProvider(tp))
	_, err := coord.Refresh(context.Background())
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, telemetry.SpanRefresh, spans[0].Name())
}

func TestPipeline_RetriesThroughCoordinator(t *testing.T) {
	fake := newFakeAPI()
	fake.rejectA1 = true
	h := newHarness(t, fake, session.NewMemoryBackend())
	h.seed(t, time.Hour)

	var seen []int
	h.client.Registry().AddRequestInterceptor(func(_ context.Context, req api.RequestInfo) error {
		seen = append(seen, req.Attempt)
		return nil
	})

	out, err := api.Request[map[string]bool](context.Background(), h.client, "/protected", api.Options{})
	require.NoError(t, err)
	assert.True(t, out["ok"])
	assert.Equal(t, []string{"Bearer a1", "Bearer a2"}, fake.protectedAuth())
	assert.Equal(t, []int{1, 2}, seen)
	assert.Equal(t, int32(1), fake.refreshCalls.Load())
}

func TestPipeline_ConcurrentExpiredCallsRefreshOnce(t *testing.T) {
	fake := newFakeAPI()
	fake.refreshGate = make(chan struct{})
	h := newHarness(t, fake, session.NewMemoryBackend())
	h.seed(t, 30*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := api.Request[map[string]bool](context.Background(), h.client, "/protected", api.Options{})
			assert.NoError(t, err)
		}()
	}

	<-fake.refreshSeen
	time.Sleep(50 * time.Millisecond)
	close(fake.refreshGate)
	wg.Wait()

	assert.Equal(t, int32(1), fake.refreshCalls.Load())
	for _, auth := range fake.protectedAuth() {
		assert.Equal(t, "Bearer a2", auth)
	}
}

func TestScenario_LoginThenExpiry(t *testing.T) {
	fake := newFakeAPI()
	h := newHarness(t, fake, session.NewMemoryBackend())
	ctx := context.Background()

	require.NoError(t, h.ctrl.Login(ctx, "ada", "secret"))
	rec := h.store.Read(ctx)
	assert.Equal(t, testNow.Add(900*time.Second).UnixMilli(), rec.ExpiresAt)

	_, err := api.Request[map[string]bool](ctx, h.client, "/protected", api.Options{})
	require.NoError(t, err)

	// 30s before expiry is inside the refresh buffer.
	h.clock.Advance(900*time.Second - 30*time.Second)
	_, err = api.Request[map[string]bool](ctx, h.client, "/protected", api.Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer a1", "Bearer a2"}, fake.protectedAuth())
	assert.Equal(t, int32(1), fake.refreshCalls.Load())
	assert.Equal(t, h.clock.Now().Add(900*time.Second).UnixMilli(), h.store.Read(ctx).ExpiresAt)
}

func TestScenario_PublicEndpointWithoutSession(t *testing.T) {
	var auth []string
	server := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		writeJSON(w, 200, fmt.Sprintf(`{"data":{"username":%q}}`, "grace"))
	})
	h := newHarness(t, server, session.NewMemoryBackend())

	out, err := api.Request[map[string]string](context.Background(), h.client, "/users/grace", api.Options{SkipAuth: true})
	require.NoError(t, err)
	assert.Equal(t, "grace", out["username"])
	assert.Equal(t, []string{""}, auth)
}
