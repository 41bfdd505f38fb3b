package platform

import (
	"context"
	"fmt"
	"net/url"
)

// MentorUser is the public user part of a mentor profile
type MentorUser struct {
	ID             string `json:"id" yaml:"id"`
	Username       string `json:"username" yaml:"username"`
	FirstName      string `json:"first_name" yaml:"first_name"`
	LastName       string `json:"last_name" yaml:"last_name"`
	ProfilePicture string `json:"profile_picture" yaml:"profile_picture"`
}

// MentorInfo is the mentor part of a mentor profile
type MentorInfo struct {
	ID       string `json:"id" yaml:"id"`
	Title    string `json:"title" yaml:"title"`
	Bio      string `json:"bio" yaml:"bio"`
	Timezone string `json:"timezone" yaml:"timezone"`
	IsActive bool   `json:"is_active" yaml:"is_active"`
}

// MentorProfile is returned by GET /mentors/{username}
type MentorProfile struct {
	User   MentorUser `json:"user" yaml:"user"`
	Mentor MentorInfo `json:"mentor" yaml:"mentor"`
}

// CreateMentorProfileRequest turns the current user into a mentor
type CreateMentorProfileRequest struct {
	Title    string `json:"title" yaml:"title"`
	Bio      string `json:"bio,omitempty" yaml:"bio,omitempty"`
	Timezone string `json:"timezone" yaml:"timezone"`
}

// CreatedMentorProfile is returned by POST /mentor/profile
type CreatedMentorProfile struct {
	ID        string `json:"id" yaml:"id"`
	UserID    string `json:"user_id" yaml:"user_id"`
	Title     string `json:"title" yaml:"title"`
	Bio       string `json:"bio" yaml:"bio"`
	Timezone  string `json:"timezone" yaml:"timezone"`
	IsActive  bool   `json:"is_active" yaml:"is_active"`
	CreatedAt string `json:"created_at" yaml:"created_at"`
}

// MentorService is a bookable offering
type MentorService struct {
	ID              string `json:"id" yaml:"id"`
	Title           string `json:"title" yaml:"title"`
	Description     string `json:"description" yaml:"description"`
	DurationMinutes int    `json:"duration_minutes" yaml:"duration_minutes"`
	PriceCents      int64  `json:"price_cents" yaml:"price_cents"`
	Currency        string `json:"currency" yaml:"currency"`
	IsActive        bool   `json:"is_active" yaml:"is_active"`
}

// CreateMentorServiceRequest adds a service to the current mentor
type CreateMentorServiceRequest struct {
	Title           string `json:"title" yaml:"title"`
	Description     string `json:"description,omitempty" yaml:"description,omitempty"`
	DurationMinutes int    `json:"duration_minutes" yaml:"duration_minutes"`
	PriceCents      int64  `json:"price_cents" yaml:"price_cents"`
	Currency        string `json:"currency" yaml:"currency"`
}

// AvailabilityRule is a weekly availability window. DayOfWeek is 0 for
// Sunday; times are HH:MM.
type AvailabilityRule struct {
	ID        string `json:"id,omitempty" yaml:"id,omitempty"`
	DayOfWeek int    `json:"day_of_week" yaml:"day_of_week"`
	StartTime string `json:"start_time" yaml:"start_time"`
	EndTime   string `json:"end_time" yaml:"end_time"`
}

// Slot is a bookable interval on a given day
type Slot struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// Availability lists the free slots of one date (YYYY-MM-DD)
type Availability struct {
	Date  string `json:"date" yaml:"date"`
	Slots []Slot `json:"slots" yaml:"slots"`
}

// GetMentor fetches a public mentor profile
func (c *Client) GetMentor(ctx context.Context, username string) (*MentorProfile, error) {
	out, err := get[MentorProfile](ctx, c, "/mentors/"+pathSegment(username), true)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateMentorProfile registers the current user as a mentor
func (c *Client) CreateMentorProfile(ctx context.Context, req CreateMentorProfileRequest) (*CreatedMentorProfile, error) {
	out, err := post[CreatedMentorProfile](ctx, c, "/mentor/profile", req)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListServices lists a mentor's services
func (c *Client) ListServices(ctx context.Context, username string) ([]MentorService, error) {
	return get[[]MentorService](ctx, c, "/mentors/"+pathSegment(username)+"/services", true)
}

// CreateService adds a service to the current mentor
func (c *Client) CreateService(ctx context.Context, req CreateMentorServiceRequest) (*MentorService, error) {
	out, err := post[MentorService](ctx, c, "/mentor/services", req)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAvailabilityRules lists a mentor's weekly availability
func (c *Client) ListAvailabilityRules(ctx context.Context, username string) ([]AvailabilityRule, error) {
	return get[[]AvailabilityRule](ctx, c, "/mentors/"+pathSegment(username)+"/availability", true)
}

// GetAvailableSlots lists the free slots of a mentor's service on date
func (c *Client) GetAvailableSlots(ctx context.Context, username, date, serviceID string) (*Availability, error) {
	q := url.Values{}
	q.Set("date", date)
	q.Set("service_id", serviceID)

	endpoint := fmt.Sprintf("/mentors/%s/availability?%s", pathSegment(username), q.Encode())
	out, err := get[Availability](ctx, c, endpoint, true)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateAvailabilityRule adds a weekly window for the current mentor
func (c *Client) CreateAvailabilityRule(ctx context.Context, rule AvailabilityRule) (*AvailabilityRule, error) {
	rule.ID = ""
	out, err := post[AvailabilityRule](ctx, c, "/mentor/availability", rule)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
