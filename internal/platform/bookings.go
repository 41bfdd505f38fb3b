package platform

import "context"

// Booking statuses
const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"
	BookingCompleted = "completed"
)

// CreateBookingRequest books a service slot. Date is YYYY-MM-DD and
// StartTime is HH:MM.
type CreateBookingRequest struct {
	MentorID    string `json:"mentor_id" yaml:"mentor_id"`
	ServiceID   string `json:"service_id" yaml:"service_id"`
	BookingDate string `json:"booking_date" yaml:"booking_date"`
	StartTime   string `json:"start_time" yaml:"start_time"`
}

// Booking is returned by POST /bookings
type Booking struct {
	ID         string `json:"id" yaml:"id"`
	Status     string `json:"status" yaml:"status"`
	Date       string `json:"date" yaml:"date"`
	StartTime  string `json:"start_time" yaml:"start_time"`
	EndTime    string `json:"end_time" yaml:"end_time"`
	PriceCents int64  `json:"price_cents" yaml:"price_cents"`
	Currency   string `json:"currency" yaml:"currency"`
}

// MyBooking is one of the current user's bookings
type MyBooking struct {
	ID         string `json:"id" yaml:"id"`
	Mentor     string `json:"mentor" yaml:"mentor"`
	Service    string `json:"service" yaml:"service"`
	Date       string `json:"date" yaml:"date"`
	StartTime  string `json:"start_time" yaml:"start_time"`
	EndTime    string `json:"end_time" yaml:"end_time"`
	Status     string `json:"status" yaml:"status"`
	PriceCents int64  `json:"price_cents" yaml:"price_cents"`
	Currency   string `json:"currency" yaml:"currency"`
}

// BookedSession is a confirmed booking seen from the mentor side
type BookedSession struct {
	ID           string `json:"id" yaml:"id"`
	UserUsername string `json:"user_username" yaml:"user_username"`
	ServiceTitle string `json:"service_title" yaml:"service_title"`
	BookingDate  string `json:"booking_date" yaml:"booking_date"`
	StartTime    string `json:"start_time" yaml:"start_time"`
	EndTime      string `json:"end_time" yaml:"end_time"`
	PriceCents   int64  `json:"price_cents" yaml:"price_cents"`
	Currency     string `json:"currency" yaml:"currency"`
}

// CreateBooking books a slot for the current user
func (c *Client) CreateBooking(ctx context.Context, req CreateBookingRequest) (*Booking, error) {
	out, err := post[Booking](ctx, c, "/bookings", req)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// MyBookings lists the current user's bookings
func (c *Client) MyBookings(ctx context.Context) ([]MyBooking, error) {
	return get[[]MyBooking](ctx, c, "/bookings/me", false)
}

// MentorSessions lists the confirmed sessions booked with the current mentor
func (c *Client) MentorSessions(ctx context.Context) ([]BookedSession, error) {
	return get[[]BookedSession](ctx, c, "/mentor/sessions", false)
}

// CountByStatus tallies bookings per status.
func CountByStatus(bookings []MyBooking) map[string]int {
	counts := make(map[string]int)
	for _, b := range bookings {
		counts[b.Status]++
	}
	return counts
}
