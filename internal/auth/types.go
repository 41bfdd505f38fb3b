package auth

import (
	"io"

	"github.com/opencall/opencall/internal/session"
)

// LoginRequest is the body of POST /auth/login. Identifier is a username
// or an email address.
type LoginRequest struct {
	Identifier string `json:"identifier" yaml:"identifier"`
	Password   string `json:"password" yaml:"password"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	User         *session.User `json:"user" yaml:"user"`
	AccessToken  string        `json:"access_token" yaml:"access_token"`
	RefreshToken string        `json:"refresh_token" yaml:"refresh_token"`
	ExpiresIn    int64         `json:"expires_in" yaml:"expires_in"` // seconds
}

// RefreshRequest is the body of POST /auth/refresh
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" yaml:"refresh_token"`
}

// RefreshResponse carries a rotated token pair.
type RefreshResponse struct {
	AccessToken  string `json:"access_token" yaml:"access_token"`
	RefreshToken string `json:"refresh_token" yaml:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in" yaml:"expires_in"`
}

// RegisterRequest is the body of POST /auth/register
type RegisterRequest struct {
	FirstName string `json:"first_name" yaml:"first_name"`
	LastName  string `json:"last_name" yaml:"last_name"`
	Username  string `json:"username" yaml:"username"`
	Email     string `json:"email" yaml:"email"`
	Password  string `json:"password" yaml:"password"`
}

// RegisterResponse is returned by a successful registration. No session is
// opened.
type RegisterResponse struct {
	User    *session.User `json:"user" yaml:"user"`
	Message string        `json:"message" yaml:"message"`
}

// LogoutResponse is returned by DELETE /auth/logout
type LogoutResponse struct {
	Message string `json:"message" yaml:"message"`
}

// ProfileUpdate is sent as a multipart form to PUT /users/profile.
// Picture is optional.
type ProfileUpdate struct {
	FirstName   string
	LastName    string
	Email       string
	Bio         string
	Picture     io.Reader
	PictureName string
}

// ProfileUpdateResponse is the updated user as the server returns it.
type ProfileUpdateResponse struct {
	ID             string `json:"id" yaml:"id"`
	FirstName      string `json:"first_name" yaml:"first_name"`
	LastName       string `json:"last_name" yaml:"last_name"`
	Username       string `json:"username" yaml:"username"`
	Email          string `json:"email" yaml:"email"`
	Bio            string `json:"bio" yaml:"bio"`
	ProfilePicture string `json:"profile_picture" yaml:"profile_picture"`
	Role           string `json:"role" yaml:"role"`
	IsActive       bool   `json:"is_active" yaml:"is_active"`
	Message        string `json:"message" yaml:"message"`
}

// merge applies the response onto the user it updated.
func (r ProfileUpdateResponse) merge(u *session.User) *session.User {
	out := session.User{}
	if u != nil {
		out = *u
	}
	out.ID = r.ID
	out.FirstName = r.FirstName
	out.LastName = r.LastName
	out.Username = r.Username
	out.Email = r.Email
	out.Bio = r.Bio
	out.ProfilePicture = r.ProfilePicture
	out.Role = r.Role
	out.IsActive = r.IsActive
	return &out
}
