package session

import (
	"fmt"
	"time"
)

// User is the profile snapshot kept alongside the tokens.
type User struct {
	ID             string `json:"id" yaml:"id"`
	FirstName      string `json:"first_name" yaml:"first_name"`
	LastName       string `json:"last_name" yaml:"last_name"`
	Username       string `json:"username" yaml:"username"`
	Email          string `json:"email" yaml:"email"`
	Role           string `json:"role" yaml:"role"`
	ProfilePicture string `json:"profile_picture" yaml:"profile_picture"`
	Bio            string `json:"bio" yaml:"bio"`
	IsActive       bool   `json:"is_active" yaml:"is_active"`
	CreatedAt      string `json:"created_at" yaml:"created_at"`
}

// FullName joins first and last name, falling back to the username.
func (u *User) FullName() string {
	if u == nil {
		return ""
	}
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Username
	}
}

// Record is the persisted session. Empty strings and a zero ExpiresAt
// stand for null.
type Record struct {
	User            *User
	AccessToken     string
	RefreshToken    string
	ExpiresAt       int64 // epoch milliseconds
	IsAuthenticated bool
}

// IsEmpty reports whether the record carries no session at all.
func (r Record) IsEmpty() bool {
	return r.User == nil && r.AccessToken == "" && r.RefreshToken == "" &&
		r.ExpiresAt == 0 && !r.IsAuthenticated
}

// Validate checks the record invariants.
func (r Record) Validate() error {
	if r.IsAuthenticated && r.AccessToken == "" {
		return fmt.Errorf("authenticated session has no access token")
	}
	if r.AccessToken != "" && r.ExpiresAt == 0 {
		return fmt.Errorf("access token has no expiry")
	}
	return nil
}

// ExpiresWithin reports whether the access token expires within d of now.
// A token without a recorded expiry counts as expired.
func (r Record) ExpiresWithin(now time.Time, d time.Duration) bool {
	if r.ExpiresAt == 0 {
		return true
	}
	return now.Add(d).UnixMilli() >= r.ExpiresAt
}

// Expiry returns ExpiresAt as a time, or the zero time when unset.
func (r Record) Expiry() time.Time {
	if r.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(r.ExpiresAt)
}

// Patch is a partial update merged onto the current record.
// Nil fields are left unchanged.
type Patch struct {
	User            *User
	AccessToken     *string
	RefreshToken    *string
	ExpiresAt       *int64
	IsAuthenticated *bool
}

// Apply returns r with the non-nil fields of p applied.
func (p Patch) Apply(r Record) Record {
	if p.User != nil {
		u := *p.User
		r.User = &u
	}
	if p.AccessToken != nil {
		r.AccessToken = *p.AccessToken
	}
	if p.RefreshToken != nil {
		r.RefreshToken = *p.RefreshToken
	}
	if p.ExpiresAt != nil {
		r.ExpiresAt = *p.ExpiresAt
	}
	if p.IsAuthenticated != nil {
		r.IsAuthenticated = *p.IsAuthenticated
	}
	return r
}

// FullPatch builds a patch that sets every field of r.
func FullPatch(r Record) Patch {
	return Patch{
		User:            r.User,
		AccessToken:     &r.AccessToken,
		RefreshToken:    &r.RefreshToken,
		ExpiresAt:       &r.ExpiresAt,
		IsAuthenticated: &r.IsAuthenticated,
	}
}

// TokenPatch rotates both tokens and the expiry and marks the session
// authenticated.
func TokenPatch(accessToken, refreshToken string, expiresAt int64) Patch {
	authenticated := true
	return Patch{
		AccessToken:     &accessToken,
		RefreshToken:    &refreshToken,
		ExpiresAt:       &expiresAt,
		IsAuthenticated: &authenticated,
	}
}
