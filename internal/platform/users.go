package platform

import "context"

// PublicUser is the public part of a user profile
type PublicUser struct {
	ID             string `json:"id" yaml:"id"`
	Username       string `json:"username" yaml:"username"`
	FirstName      string `json:"first_name" yaml:"first_name"`
	LastName       string `json:"last_name" yaml:"last_name"`
	ProfilePicture string `json:"profile_picture" yaml:"profile_picture"`
	Bio            string `json:"bio" yaml:"bio"`
}

// MentorPreview is shown on the profile of a user who mentors
type MentorPreview struct {
	Title string `json:"title" yaml:"title"`
}

// UserProfile is returned by GET /users/{username}. Mentor is nil unless
// IsMentor is set.
type UserProfile struct {
	User     PublicUser     `json:"user" yaml:"user"`
	IsMentor bool           `json:"is_mentor" yaml:"is_mentor"`
	Mentor   *MentorPreview `json:"mentor" yaml:"mentor"`
}

// GetUser fetches a public user profile
func (c *Client) GetUser(ctx context.Context, username string) (*UserProfile, error) {
	out, err := get[UserProfile](ctx, c, "/users/"+pathSegment(username), true)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
