package session

import (
	"context"
	"errors"
	"sync"

	ocerrors "github.com/opencall/opencall/internal/errors"
	"github.com/opencall/opencall/internal/log"
)

// Store is the persisted session. All writes are serialized; each write
// merges a Patch onto the current durable record and saves the result.
type Store struct {
	mu      sync.Mutex
	backend Backend
	key     string
	events  *Broadcaster
	logger  *log.Logger
}

// Option configures a Store
type Option func(*Store)

// WithKey overrides the persistence key
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithLogger sets the store logger
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithBroadcaster shares an existing broadcaster
func WithBroadcaster(b *Broadcaster) Option {
	return func(s *Store) {
		if b != nil {
			s.events = b
		}
	}
}

// NewStore creates a store over backend. A nil backend behaves like
// NoopBackend.
func NewStore(backend Backend, opts ...Option) *Store {
	if backend == nil {
		backend = NoopBackend{}
	}
	s := &Store{
		backend: backend,
		key:     DefaultKey,
		events:  NewBroadcaster(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.OrDefault(s.logger).With("component", "session", "backend", backend.Name())
	return s
}

// Key returns the persistence key
func (s *Store) Key() string { return s.key }

// Backend returns the durable medium
func (s *Store) Backend() Backend { return s.backend }

// Events returns the broadcaster Clear publishes on
func (s *Store) Events() *Broadcaster { return s.events }

// Subscribe is shorthand for Events().Subscribe
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	return s.events.Subscribe(fn)
}

// Read returns the current record. Missing, unreadable or corrupt data
// yields the empty record.
func (s *Store) Read(ctx context.Context) Record {
	rec, err := s.load(ctx)
	if err != nil {
		s.logger.WithError(err).WarnContext(ctx, "discarding unreadable session")
		return Record{}
	}
	return rec
}

func (s *Store) load(ctx context.Context) (Record, error) {
	data, err := s.backend.Load(ctx, s.key)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnavailable) {
			return Record{}, nil
		}
		return Record{}, ocerrors.Wrap(ocerrors.ErrCodeStoreRead, "failed to load session", err)
	}
	return Decode(data)
}

// Write merges p onto the current record and persists it. A merge that
// breaks the record invariants is rejected and nothing is written.
func (s *Store) Write(ctx context.Context, p Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(ctx)
	if err != nil {
		s.logger.WithError(err).WarnContext(ctx, "overwriting unreadable session")
		current = Record{}
	}
	return s.save(ctx, p.Apply(current))
}

// CompareAndWrite is Write guarded by the refresh token: p is applied only
// while the stored refresh token still equals refreshToken. It reports
// whether the record was written. A session cleared or replaced in the
// meantime is left untouched.
func (s *Store) CompareAndWrite(ctx context.Context, refreshToken string, p Patch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(ctx)
	if err != nil || current.RefreshToken != refreshToken {
		return false, nil
	}
	if err := s.save(ctx, p.Apply(current)); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) save(ctx context.Context, next Record) error {
	if err := next.Validate(); err != nil {
		return ocerrors.Wrap(ocerrors.ErrCodeSessionInvariant, "refusing to persist inconsistent session", err)
	}

	data, err := Encode(next)
	if err != nil {
		return ocerrors.Wrap(ocerrors.ErrCodeStoreWrite, "failed to encode session", err)
	}

	if err := s.backend.Save(ctx, s.key, data); err != nil {
		if errors.Is(err, ErrUnavailable) {
			return nil
		}
		return ocerrors.Wrap(ocerrors.ErrCodeStoreWrite, "failed to persist session", err)
	}

	s.logger.DebugContext(ctx, "session written", "authenticated", next.IsAuthenticated)
	return nil
}

// Clear erases the persisted session and publishes one
// session-invalidated event. The event is published even when the
// delete fails, so listeners still drop their in-memory state.
func (s *Store) Clear(ctx context.Context, reason Reason) error {
	s.mu.Lock()
	err := s.backend.Delete(ctx, s.key)
	s.mu.Unlock()

	return s.invalidated(ctx, reason, err)
}

// CompareAndClear clears the session only while the stored refresh token
// still equals refreshToken. Nothing is published when it does not match.
func (s *Store) CompareAndClear(ctx context.Context, refreshToken string, reason Reason) (bool, error) {
	s.mu.Lock()
	current, err := s.load(ctx)
	if err == nil && current.RefreshToken != refreshToken {
		s.mu.Unlock()
		return false, nil
	}
	err = s.backend.Delete(ctx, s.key)
	s.mu.Unlock()

	return true, s.invalidated(ctx, reason, err)
}

func (s *Store) invalidated(ctx context.Context, reason Reason, err error) error {
	if errors.Is(err, ErrUnavailable) {
		err = nil
	}
	if err != nil {
		err = ocerrors.Wrap(ocerrors.ErrCodeStoreWrite, "failed to clear session", err)
		s.logger.WithError(err).WarnContext(ctx, "session clear failed", "reason", string(reason))
	}

	s.logger.InfoContext(ctx, "session invalidated", "reason", string(reason))
	s.events.Publish(Event{Type: EventSessionInvalidated, Reason: reason})
	return err
}
