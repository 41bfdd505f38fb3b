package session

import (
	"encoding/json"
	"fmt"
)

// DefaultKey is the key the session is persisted under.
const DefaultKey = "opencall-auth"

const layoutVersion = 0

type persistedState struct {
	User            *User   `json:"user"`
	AccessToken     *string `json:"accessToken"`
	RefreshToken    *string `json:"refreshToken"`
	ExpiresAt       *int64  `json:"expiresAt"`
	IsAuthenticated bool    `json:"isAuthenticated"`
}

type persisted struct {
	State   persistedState `json:"state"`
	Version int            `json:"version"`
}

func nullable[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// Encode renders a record in the persisted layout.
func Encode(r Record) ([]byte, error) {
	return json.Marshal(persisted{
		State: persistedState{
			User:            r.User,
			AccessToken:     nullable(r.AccessToken),
			RefreshToken:    nullable(r.RefreshToken),
			ExpiresAt:       nullable(r.ExpiresAt),
			IsAuthenticated: r.IsAuthenticated,
		},
		Version: layoutVersion,
	})
}

// Decode parses the persisted layout.
func Decode(data []byte) (Record, error) {
	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return Record{}, fmt.Errorf("decode session: %w", err)
	}
	if p.Version != layoutVersion {
		return Record{}, fmt.Errorf("decode session: unsupported version %d", p.Version)
	}
	return Record{
		User:            p.State.User,
		AccessToken:     deref(p.State.AccessToken),
		RefreshToken:    deref(p.State.RefreshToken),
		ExpiresAt:       deref(p.State.ExpiresAt),
		IsAuthenticated: p.State.IsAuthenticated,
	}, nil
}
