package config

import (
	"context"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	ocerrors "github.com/opencall/opencall/internal/errors"
	"github.com/opencall/opencall/internal/log"
	"github.com/opencall/opencall/internal/session"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenSessionBackend builds the configured session backend. The returned
// closer releases connections held by the backend.
func (c *Config) OpenSessionBackend(ctx context.Context) (session.Backend, io.Closer, error) {
	switch c.Session.Backend {
	case BackendNone:
		return session.NoopBackend{}, nopCloser{}, nil
	case BackendMemory:
		return session.NewMemoryBackend(), nopCloser{}, nil
	case BackendFile:
		return session.NewFileBackend(c.Session.Path), nopCloser{}, nil
	case BackendEncrypted:
		b, err := session.NewEncryptedFileBackend(c.Session.Path, c.Session.Passphrase)
		if err != nil {
			return nil, nil, err
		}
		return b, nopCloser{}, nil
	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, ocerrors.NewStoreUnavailableError(BackendRedis, err).
				WithSuggestion("Check redis.addr or OPENCALL_REDIS_ADDR")
		}
		return session.NewRedisBackend(client, c.Redis.Prefix, c.Session.TTL), client, nil
	default:
		return nil, nil, ocerrors.NewConfigInvalidError("session.backend", "unknown backend "+c.Session.Backend)
	}
}

// OpenSessionStore opens the configured backend and wraps it in a store.
func (c *Config) OpenSessionStore(ctx context.Context, logger *log.Logger) (*session.Store, io.Closer, error) {
	backend, closer, err := c.OpenSessionBackend(ctx)
	if err != nil {
		return nil, nil, err
	}
	store := session.NewStore(backend, session.WithKey(c.Session.Key), session.WithLogger(logger))
	return store, closer, nil
}
