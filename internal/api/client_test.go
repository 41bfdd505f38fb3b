package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	ocerrors "github.com/opencall/opencall/internal/errors"
	"github.com/opencall/opencall/internal/log"
	"github.com/opencall/opencall/internal/session"
)

var testNow = time.UnixMilli(1_700_000_000_000)

type fakeRefresher struct {
	calls atomic.Int32
	store *session.Store
	token string
}

func (f *fakeRefresher) Refresh(ctx context.Context) (string, error) {
	f.calls.Add(1)
	if f.token == "" {
		_ = f.store.Clear(ctx, session.ReasonRefreshFailed)
		return "", nil
	}
	if err := f.store.Write(ctx, session.TokenPatch(f.token, "r2", testNow.Add(time.Hour).UnixMilli())); err != nil {
		return "", err
	}
	return f.token, nil
}

type harness struct {
	store     *session.Store
	refresher *fakeRefresher
	client    *Client
}

func newHarness(t *testing.T, baseURL string, opts ...Option) *harness {
	t.Helper()
	store := session.NewStore(session.NewMemoryBackend(), session.WithLogger(log.Discard()))
	ref := &fakeRefresher{store: store, token: "a2"}
	all := append([]Option{
		WithRefresher(ref),
		WithLogger(log.Discard()),
		WithClock(func() time.Time { return testNow }),
	}, opts...)
	return &harness{store: store, refresher: ref, client: New(baseURL, store, all...)}
}

func (h *harness) login(t *testing.T, expiresIn time.Duration) {
	t.Helper()
	require.NoError(t, h.store.Write(context.Background(), session.FullPatch(session.Record{
		User:            &session.User{ID: "u-1", Username: "ada"},
		AccessToken:     "a1",
		RefreshToken:    "r1",
		ExpiresAt:       testNow.Add(expiresIn).UnixMilli(),
		IsAuthenticated: true,
	})))
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestDo_EnvelopeTransparency(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/wrapped":
			writeJSON(w, 200, `{"data":{"id":"b-1","status":"confirmed"}}`)
		case "/plain":
			writeJSON(w, 200, `{"id":"b-1","status":"confirmed"}`)
		case "/extra":
			writeJSON(w, 200, `{"data":{"id":"b-1"},"meta":{"page":1}}`)
		case "/list":
			writeJSON(w, 200, `{"data":[{"id":"b-1"},{"id":"b-2"}]}`)
		}
	}))
	defer server.Close()

	h := newHarness(t, server.URL)
	ctx := context.Background()

	wrapped, err := Request[map[string]any](ctx, h.client, "/wrapped", Options{})
	require.NoError(t, err)
	plain, err := Request[map[string]any](ctx, h.client, "/plain", Options{})
	require.NoError(t, err)
	assert.Equal(t, plain, wrapped)

	extra, err := Request[map[string]any](ctx, h.client, "/extra", Options{})
	require.NoError(t, err)
	assert.Contains(t, extra, "meta", "objects with other keys are not unwrapped")

	list, err := Request[[]struct{ ID string }](ctx, h.client, "/list", Options{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b-2", list[1].ID)
}

func TestDo_HeaderAssembly(t *testing.T) {
	var seen []http.Header
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Clone())
		mu.Unlock()
		writeJSON(w, 200, `{}`)
	}))
	defer server.Close()

	h := newHarness(t, server.URL)
	h.login(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, h.client.Do(ctx, "/bookings/me", Options{}, nil))
	require.NoError(t, h.client.Do(ctx, "/mentors/ada", Options{SkipAuth: true}, nil))
	require.NoError(t, h.client.Do(ctx, "/zego/token", Options{Method: http.MethodPost, Token: "explicit", Headers: map[string]string{"X-Client": "cli"}}, nil))

	require.Len(t, seen, 3)
	assert.Equal(t, "Bearer a1", seen[0].Get("Authorization"))
	assert.Equal(t, "application/json", seen[0].Get("Content-Type"))
	assert.NotEmpty(t, seen[0].Get("X-Request-ID"))

	assert.Empty(t, seen[1].Get("Authorization"), "skipAuth sends no token")

	assert.Equal(t, "Bearer explicit", seen[2].Get("Authorization"))
	assert.Equal(t, "cli", seen[2].Get("X-Client"))
}

func TestDo_RefreshAndRetryOnce(t *testing.T) {
	var calls atomic.Int32
	var ids sync.Map
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		ids.Store(n, r.Header.Get("X-Request-ID"))
		if r.Header.Get("Authorization") != "Bearer a2" {
			writeJSON(w, 401, `{"error":"token expired"}`)
			return
		}
		writeJSON(w, 200, `{"data":{"ok":true}}`)
	}))
	defer server.Close()

	h := newHarness(t, server.URL)
	h.login(t, time.Hour)

	var responses atomic.Int32
	h.client.Registry().AddResponseInterceptor(func(_ context.Context, resp ResponseInfo) error {
		responses.Add(1)
		assert.Equal(t, 200, resp.Status)
		assert.Equal(t, 2, resp.Attempt)
		return nil
	})

	out, err := Request[map[string]bool](context.Background(), h.client, "/bookings/me", Options{})
	require.NoError(t, err)
	assert.True(t, out["ok"])

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(1), h.refresher.calls.Load())
	assert.Equal(t, int32(1), responses.Load(), "response interceptors see only the definitive response")

	first, _ := ids.Load(int32(1))
	second, _ := ids.Load(int32(2))
	assert.NotEqual(t, first, second, "each attempt has its own request id")

	assert.Equal(t, "a2", h.store.Read(context.Background()).AccessToken)
}

func TestDo_401OnRetryIsNotRetriedAgain(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, 401, `{"message":"still unauthorized"}`)
	}))
	defer server.Close()

	h := newHarness(t, server.URL)
	h.login(t, time.Hour)

	err := h.client.Do(context.Background(), "/bookings/me", Options{}, nil)
	require.Error(t, err)

	apiErr, ok := ocerrors.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, 401, apiErr.Status)
	assert.Equal(t, ocerrors.KindAuthentication, apiErr.Kind)
	assert.Equal(t, "still unauthorized", apiErr.Message)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(1), h.refresher.calls.Load())
}

func TestDo_RefreshFailureYieldsAuthenticationError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, 401, `{"error":"token expired"}`)
	}))
	defer server.Close()

	h := newHarness(t, server.URL)
	h.login(t, time.Hour)
	h.refresher.token = ""

	var invalidated atomic.Int32
	h.store.Subscribe(func(session.Event) { invalidated.Add(1) })

	var seen []*ocerrors.APIError
	h.client.Registry().AddErrorInterceptor(func(_ context.Context, info ErrorInfo) error {
		seen = append(seen, info.Err)
		return nil
	})

	err := h.client.Do(context.Background(), "/bookings/me", Options{}, nil)
	require.ErrorIs(t, err, ocerrors.ErrAuthentication)

	apiErr, _ := ocerrors.AsAPIError(err)
	assert.Equal(t, "Authentication failed. Please login again.", apiErr.Message)
	assert.Equal(t, int32(1), calls.Load(), "no retry after a failed refresh")
	require.Len(t, seen, 1, "error interceptors run exactly once")
	assert.Equal(t, int32(1), invalidated.Load())
	assert.True(t, h.store.Read(context.Background()).IsEmpty())
}

func TestDo_NoRetryForSkipAuthOrExplicitToken(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, 401, `{"error":"invalid credentials"}`)
	}))
	defer server.Close()

	h := newHarness(t, server.URL)
	h.login(t, time.Hour)
	ctx := context.Background()

	err := h.client.Do(ctx, "/auth/login", Options{Method: http.MethodPost, SkipAuth: true, Body: map[string]string{"identifier": "ada"}}, nil)
	apiErr, ok := ocerrors.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "invalid credentials", apiErr.Message)
	assert.Equal(t, 401, apiErr.Status)

	err = h.client.Do(ctx, "/zego/token", Options{Method: http.MethodPost, Token: "explicit"}, nil)
	require.ErrorIs(t, err, ocerrors.ErrAuthentication)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(0), h.refresher.calls.Load())
}

func TestDo_ProactiveRefresh(t *testing.T) {
	var auth []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		writeJSON(w, 200, `{}`)
	}))
	defer server.Close()

	h := newHarness(t, server.URL)
	h.login(t, 30*time.Second)

	require.NoError(t, h.client.Do(context.Background(), "/bookings/me", Options{}, nil))

	assert.Equal(t, int32(1), h.refresher.calls.Load())
	assert.Equal(t, []string{"Bearer a2"}, auth, "the refreshed token is used on the first dispatch")
}

func TestDo_NoProactiveRefreshWhenFresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{}`)
	}))
	defer server.Close()

	h := newHarness(t, server.URL)
	h.login(t, 10*time.Minute)

	require.NoError(t, h.client.Do(context.Background(), "/bookings/me", Options{}, nil))
	assert.Equal(t, int32(0), h.refresher.calls.Load())
}

func TestDo_ProactiveRefreshFailureSendsNoToken(t *testing.T) {
	var auth []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		writeJSON(w, 401, `{"error":"missing token"}`)
	}))
	defer server.Close()

	h := newHarness(t, server.URL)
	h.login(t, 10*time.Second)
	h.refresher.token = ""

	err := h.client.Do(context.Background(), "/bookings/me", Options{}, nil)
	require.ErrorIs(t, err, ocerrors.ErrAuthentication)
	assert.Equal(t, []string{""}, auth)
}

func TestDo_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	h := newHarness(t, server.URL)

	err := h.client.Do(context.Background(), "/slow", Options{Timeout: 50 * time.Millisecond}, nil)
	require.ErrorIs(t, err, ocerrors.ErrTimeout)

	apiErr, _ := ocerrors.AsAPIError(err)
	assert.Equal(t, ocerrors.StatusTimeout, apiErr.Status)
	assert.Equal(t, "Request timeout after 50ms", apiErr.Message)
	assert.True(t, ocerrors.IsTransient(err))
}

func TestDo_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	h := newHarness(t, url)
	err := h.client.Do(context.Background(), "/bookings/me", Options{}, nil)
	require.ErrorIs(t, err, ocerrors.ErrTransport)
	assert.Equal(t, 0, ocerrors.StatusOf(err))
	assert.False(t, errors.Is(err, ocerrors.ErrTimeout))
}

func TestDo_CallerCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	h := newHarness(t, server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := h.client.Do(ctx, "/slow", Options{}, nil)
	require.ErrorIs(t, err, ocerrors.ErrTransport)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_ErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		wantKind    ocerrors.Kind
		wantMessage string
		wantFields  map[string]string
	}{
		{
			name:        "validation errors joined in key order",
			status:      422,
			contentType: "application/json",
			body:        `{"errors":{"title":"Title is required","date":"Date is required"}}`,
			wantKind:    ocerrors.KindValidation,
			wantMessage: "Date is required, Title is required",
			wantFields:  map[string]string{"date": "Date is required", "title": "Title is required"},
		},
		{
			name:        "error field",
			status:      404,
			contentType: "application/json",
			body:        `{"error":"mentor not found","message":"ignored"}`,
			wantKind:    ocerrors.KindHTTP,
			wantMessage: "mentor not found",
		},
		{
			name:        "message field",
			status:      409,
			contentType: "application/json",
			body:        `{"message":"slot already booked"}`,
			wantKind:    ocerrors.KindHTTP,
			wantMessage: "slot already booked",
		},
		{
			name:        "non json body",
			status:      502,
			contentType: "text/html",
			body:        `<html>bad gateway</html>`,
			wantKind:    ocerrors.KindHTTP,
			wantMessage: "Something went wrong",
		},
		{
			name:        "malformed json",
			status:      500,
			contentType: "application/json",
			body:        `{"error":`,
			wantKind:    ocerrors.KindHTTP,
			wantMessage: "Something went wrong",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			h := newHarness(t, server.URL)
			err := h.client.Do(context.Background(), "/x", Options{SkipAuth: true}, nil)

			apiErr, ok := ocerrors.AsAPIError(err)
			require.True(t, ok)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantKind, apiErr.Kind)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
			if tt.wantFields != nil {
				assert.Equal(t, tt.wantFields, apiErr.Fields)
			}
			assert.ErrorIs(t, err, ocerrors.ErrHTTP)
		})
	}
}

func TestDo_NonJSONSuccessLeavesOutUntouched(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "pong")
	}))
	defer server.Close()

	h := newHarness(t, server.URL)
	out, err := Request[map[string]any](context.Background(), h.client, "/ping", Options{SkipAuth: true})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestDo_DecodeMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"data":"not an object"}`)
	}))
	defer server.Close()

	h := newHarness(t, server.URL)
	_, err := Request[struct{ ID string }](context.Background(), h.client, "/x", Options{SkipAuth: true})
	var ocErr *ocerrors.OpenCallError
	require.ErrorAs(t, err, &ocErr)
	assert.Equal(t, ocerrors.ErrCodeAPIDecode, ocErr.Code)
}

func TestDo_RequestInterceptorsGetCopies(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, 200, `{}`)
	}))
	defer server.Close()

	h := newHarness(t, server.URL)
	h.login(t, time.Hour)

	var bodies []string
	h.client.Registry().AddRequestInterceptor(func(_ context.Context, req RequestInfo) error {
		req.Headers.Set("Authorization", "Bearer hijacked")
		bodies = append(bodies, req.Body)
		return nil
	})
	h.client.Registry().AddRequestInterceptor(func(_ context.Context, req RequestInfo) error {
		assert.Equal(t, "Bearer a1", req.Headers.Get("Authorization"), "interceptors see their own copy")
		return errors.New("ignored")
	})
	h.client.Registry().AddRequestInterceptor(func(context.Context, RequestInfo) error {
		panic("boom")
	})

	err := h.client.Do(context.Background(), "/bookings", Options{Method: http.MethodPost, Body: map[string]string{"service_id": "s-1"}}, nil)
	require.NoError(t, err, "interceptor failures are isolated")
	assert.Equal(t, "Bearer a1", gotAuth)
	assert.Equal(t, []string{`{"service_id":"s-1"}`}, bodies)
}

func TestDo_MultipartBody(t *testing.T) {
	var gotName, gotType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		gotName = r.FormValue("firstName")
		writeJSON(w, 200, `{"data":{"id":"u-1","first_name":"Grace"}}`)
	}))
	defer server.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("firstName", "Grace"))
	require.NoError(t, mw.Close())

	h := newHarness(t, server.URL)
	h.login(t, time.Hour)

	user, err := Request[session.User](context.Background(), h.client, "/users/profile", Options{
		Method:          http.MethodPut,
		Body:            &buf,
		SkipContentType: true,
		Headers:         map[string]string{"Content-Type": mw.FormDataContentType()},
	})
	require.NoError(t, err)
	assert.Equal(t, "Grace", gotName)
	assert.True(t, strings.HasPrefix(gotType, "multipart/form-data"))
	assert.Equal(t, "Grace", user.FirstName)
}

func TestDo_MultipartBodySurvivesRetry(t *testing.T) {
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(data))
		if r.Header.Get("Authorization") != "Bearer a2" {
			writeJSON(w, 401, `{}`)
			return
		}
		writeJSON(w, 200, `{}`)
	}))
	defer server.Close()

	h := newHarness(t, server.URL)
	h.login(t, time.Hour)

	err := h.client.Do(context.Background(), "/users/profile", Options{Method: http.MethodPut, Body: strings.NewReader("payload"), SkipContentType: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"payload", "payload"}, bodies)
}

func TestDo_Span(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 404, `{"error":"not found"}`)
	}))
	defer server.Close()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	h := newHarness(t, server.URL, WithTracerProvider(tp))
	_ = h.client.Do(context.Background(), "/mentors/nobody", Options{SkipAuth: true}, nil)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "api.request", spans[0].Name())
	assert.Len(t, spans[0].Events(), 2, "one attempt event plus the recorded error")
}

func TestRequest_DecodesJSONNumbers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"data":{"amount":49900,"expires_in":3600}}`)
	}))
	defer server.Close()

	h := newHarness(t, server.URL)
	out, err := Request[struct {
		Amount    int64 `json:"amount"`
		ExpiresIn int   `json:"expires_in"`
	}](context.Background(), h.client, "/payments", Options{SkipAuth: true})
	require.NoError(t, err)
	assert.Equal(t, int64(49900), out.Amount)
	assert.Equal(t, 3600, out.ExpiresIn)

	raw, _ := json.Marshal(out)
	assert.Contains(t, string(raw), "49900")
}
