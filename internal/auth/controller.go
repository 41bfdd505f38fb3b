package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/opencall/opencall/internal/api"
	ocerrors "github.com/opencall/opencall/internal/errors"
	"github.com/opencall/opencall/internal/session"
)

// State is the observable session state.
type State struct {
	User            *session.User
	IsAuthenticated bool
	Loading         bool
	Error           string
	ExpiresAt       time.Time
}

// Controller drives login, refresh and logout and keeps an observable
// copy of the session for presentation.
type Controller struct {
	client    *api.Client
	store     *session.Store
	refresher api.Refresher
	options

	mu     sync.Mutex
	state  State
	subs   map[int]func(State)
	nextID int

	unsubscribeStore func()
}

// NewController creates a controller over client. refresher may be nil, in
// which case Refresh always ends the session.
func NewController(client *api.Client, refresher api.Refresher, opts ...Option) *Controller {
	c := &Controller{
		client:    client,
		store:     client.Store(),
		refresher: refresher,
		options:   newOptions(opts),
		subs:      make(map[int]func(State)),
	}
	c.unsubscribeStore = c.store.Subscribe(c.onStoreEvent)
	return c
}

// Close detaches the controller from the store broadcaster.
func (c *Controller) Close() {
	if c.unsubscribeStore != nil {
		c.unsubscribeStore()
	}
}

// State returns a snapshot of the observable state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) snapshot() State {
	s := c.state
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// Subscribe registers fn to be called with the new state after every
// change. The returned function removes it.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// update mutates the state and notifies subscribers outside the lock.
func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	fn(&c.state)
	snap := c.snapshot()
	subs := make([]func(State), 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		s(snap)
	}
}

func (c *Controller) onStoreEvent(e session.Event) {
	if e.Type != session.EventSessionInvalidated {
		return
	}
	c.logger.Debug("session invalidated, resetting state", "reason", string(e.Reason))
	c.update(func(s *State) { *s = State{} })
}

// HydrateFromStore copies the persisted session into the observable state.
func (c *Controller) HydrateFromStore(ctx context.Context) State {
	rec := c.store.Read(ctx)
	c.update(func(s *State) {
		s.User = rec.User
		s.IsAuthenticated = rec.IsAuthenticated && rec.AccessToken != ""
		s.ExpiresAt = rec.Expiry()
		s.Loading = false
	})
	return c.State()
}

// Login authenticates with identifier and password and persists the
// session. The session only counts as established once it can be read
// back from the store.
func (c *Controller) Login(ctx context.Context, identifier, password string) error {
	c.update(func(s *State) {
		s.Loading = true
		s.Error = ""
	})

	rec, err := c.login(ctx, identifier, password)
	if err != nil {
		c.logger.WithError(err).WarnContext(ctx, "login failed")
		c.update(func(s *State) {
			s.Loading = false
			s.IsAuthenticated = false
			s.Error = errorMessage(err)
		})
		return err
	}

	c.logger.InfoContext(ctx, "logged in", "user", rec.User.FullName())
	c.update(func(s *State) {
		s.User = rec.User
		s.IsAuthenticated = true
		s.ExpiresAt = rec.Expiry()
		s.Loading = false
		s.Error = ""
	})
	return nil
}

func (c *Controller) login(ctx context.Context, identifier, password string) (session.Record, error) {
	resp, err := api.Request[LoginResponse](ctx, c.client, "/auth/login", api.Options{
		Method:   http.MethodPost,
		Body:     LoginRequest{Identifier: identifier, Password: password},
		SkipAuth: true,
	})
	if err != nil {
		return session.Record{}, err
	}
	if resp.AccessToken == "" {
		return session.Record{}, ocerrors.NewInvalidLoginResponseError("access_token")
	}
	if resp.RefreshToken == "" {
		return session.Record{}, ocerrors.NewInvalidLoginResponseError("refresh_token")
	}

	rec := session.Record{
		User:            resp.User,
		AccessToken:     resp.AccessToken,
		RefreshToken:    resp.RefreshToken,
		ExpiresAt:       expiresAt(c.now(), resp.ExpiresIn, resp.AccessToken),
		IsAuthenticated: true,
	}
	backend := c.store.Backend().Name()
	if err := c.store.Write(ctx, session.FullPatch(rec)); err != nil {
		return session.Record{}, ocerrors.NewSessionNotPersistedError(backend, err)
	}

	stored := c.store.Read(ctx)
	if stored.AccessToken != rec.AccessToken || stored.RefreshToken != rec.RefreshToken {
		return session.Record{}, ocerrors.NewSessionNotPersistedError(backend, nil)
	}
	return stored, nil
}

// Refresh rotates the token pair. When the session can not be refreshed
// the user is logged out and SESSION-001 is returned.
func (c *Controller) Refresh(ctx context.Context) error {
	if c.store.Read(ctx).RefreshToken == "" {
		return ocerrors.NewNotAuthenticatedError()
	}

	token := ""
	if c.refresher != nil {
		var err error
		if token, err = c.refresher.Refresh(ctx); err != nil {
			return err
		}
	}
	if token == "" {
		// A failed exchange has already cleared the store and broadcast.
		if c.store.Read(ctx).IsEmpty() {
			c.update(func(s *State) { *s = State{} })
		} else {
			c.Logout(ctx)
		}
		return ocerrors.NewNotAuthenticatedError()
	}

	c.HydrateFromStore(ctx)
	return nil
}

// Logout ends the session on the server when possible and always clears
// it locally.
func (c *Controller) Logout(ctx context.Context) {
	c.update(func(s *State) { s.Loading = true })

	if token := c.store.Read(ctx).AccessToken; token != "" {
		// An explicit token is never refreshed or retried.
		_, err := api.Request[LogoutResponse](ctx, c.client, "/auth/logout", api.Options{
			Method: http.MethodDelete,
			Token:  token,
		})
		if err != nil {
			c.logger.WithError(err).DebugContext(ctx, "server logout failed, clearing local session")
		}
	}

	if err := c.store.Clear(ctx, session.ReasonLogout); err != nil {
		c.logger.WithError(err).WarnContext(ctx, "failed to clear session on logout")
	}
	c.update(func(s *State) { *s = State{} })
}

// ClearLocal drops the session without contacting the server.
func (c *Controller) ClearLocal(ctx context.Context) {
	if err := c.store.Clear(ctx, session.ReasonManual); err != nil {
		c.logger.WithError(err).WarnContext(ctx, "failed to clear session")
	}
	c.update(func(s *State) { *s = State{} })
}

// Register creates an account. It does not log in.
func (c *Controller) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	resp, err := api.Request[RegisterResponse](ctx, c.client, "/auth/register", api.Options{
		Method:   http.MethodPost,
		Body:     req,
		SkipAuth: true,
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateProfile uploads the profile form and replaces the stored user.
func (c *Controller) UpdateProfile(ctx context.Context, update ProfileUpdate) (*session.User, error) {
	body, contentType, err := encodeProfile(update)
	if err != nil {
		return nil, ocerrors.Wrap(ocerrors.ErrCodeAPIEncode, "failed to encode profile form", err)
	}

	resp, err := api.Request[ProfileUpdateResponse](ctx, c.client, "/users/profile", api.Options{
		Method:          http.MethodPut,
		Body:            body,
		Headers:         map[string]string{"Content-Type": contentType},
		SkipContentType: true,
	})
	if err != nil {
		return nil, err
	}

	user := resp.merge(c.store.Read(ctx).User)
	if err := c.store.Write(ctx, session.Patch{User: user}); err != nil {
		return nil, err
	}
	c.update(func(s *State) { s.User = user })
	return user, nil
}

func encodeProfile(u ProfileUpdate) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"firstName", u.FirstName},
		{"lastName", u.LastName},
		{"email", u.Email},
		{"bio", u.Bio},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}

	if u.Picture != nil {
		name := u.PictureName
		if name == "" {
			name = "profile-picture"
		}
		part, err := w.CreateFormFile("profilePicture", name)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, u.Picture); err != nil {
			return nil, "", fmt.Errorf("failed to read picture: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func errorMessage(err error) string {
	var apiErr *ocerrors.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	var ocErr *ocerrors.OpenCallError
	if errors.As(err, &ocErr) {
		return ocErr.Message
	}
	return err.Error()
}
