package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenLifetime is assumed when neither the response nor the token
// says when the access token expires.
const DefaultTokenLifetime = 15 * time.Minute

// TokenClaims are the claims of an OpenCall access token.
type TokenClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
}

// ParseTokenClaims reads the claims of an access token without verifying
// its signature. The server is the only party that verifies tokens; the
// client only uses the claims for display and expiry bookkeeping.
func ParseTokenClaims(token string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to parse access token: %w", err)
	}
	return claims, nil
}

// expiresAt computes the epoch-millisecond expiry of a freshly issued
// token. expires_in wins; otherwise the token's exp claim; otherwise the
// default lifetime.
func expiresAt(now time.Time, expiresIn int64, token string) int64 {
	if expiresIn > 0 {
		return now.Add(time.Duration(expiresIn) * time.Second).UnixMilli()
	}
	if claims, err := ParseTokenClaims(token); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.UnixMilli()
	}
	return now.Add(DefaultTokenLifetime).UnixMilli()
}
