package session

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNotFound is returned by Load when nothing is stored under the key.
	ErrNotFound = errors.New("session not found")

	// ErrUnavailable means the backend has no durable medium in this
	// environment. The store treats it as "nothing persisted".
	ErrUnavailable = errors.New("session backend unavailable")
)

// Backend is the durable medium behind a Store.
type Backend interface {
	// Name identifies the backend in logs and errors
	Name() string
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// MemoryBackend keeps sessions in process memory.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryBackend) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

// NoopBackend has no durable medium. Every call reports ErrUnavailable.
type NoopBackend struct{}

func (NoopBackend) Name() string { return "none" }

func (NoopBackend) Load(context.Context, string) ([]byte, error) { return nil, ErrUnavailable }

func (NoopBackend) Save(context.Context, string, []byte) error { return ErrUnavailable }

func (NoopBackend) Delete(context.Context, string) error { return ErrUnavailable }
