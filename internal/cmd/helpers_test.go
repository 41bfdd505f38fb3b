package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencall/opencall/internal/exitcode"
	"github.com/opencall/opencall/internal/platform"
	"github.com/opencall/opencall/internal/session"
)

func TestDiffBookings(t *testing.T) {
	now := time.Date(2026, 11, 2, 15, 4, 0, 0, time.UTC)
	prev := map[string]string{"b-1": "pending", "b-2": "confirmed"}
	bookings := []platform.MyBooking{
		{ID: "b-3", Mentor: "Grace Hopper", Status: "pending"},
		{ID: "b-2", Mentor: "Grace Hopper", Status: "confirmed"},
		{ID: "b-1", Mentor: "Grace Hopper", Status: "confirmed"},
	}

	changes := diffBookings(prev, bookings, now)
	require.Len(t, changes, 2)
	assert.Equal(t, "b-1", changes[0].ID)
	assert.Equal(t, "pending", changes[0].From)
	assert.Equal(t, "confirmed", changes[0].To)
	assert.Equal(t, "b-3", changes[1].ID)
	assert.Empty(t, changes[1].From)

	assert.Equal(t, "3:04PM  b-1 with Grace Hopper: pending -> confirmed", changes[0].String())
	assert.Equal(t, "3:04PM  new booking b-3 with Grace Hopper: pending", changes[1].String())

	assert.Empty(t, diffBookings(map[string]string{"b-3": "pending"}, bookings[:1], now))
}

func TestRelative(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{14*time.Minute + 20*time.Second, "in 14m0s"},
		{-3 * time.Minute, "3m0s ago"},
		{1500 * time.Millisecond, "in 2s"},
		{0, "in 0s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, relative(tt.in), "relative(%v)", tt.in)
	}
}

func TestMissingFlags(t *testing.T) {
	assert.NoError(t, missingFlags(map[string]string{"a": "x"}))

	err := missingFlags(map[string]string{"password": " ", "identifier": "", "email": "ada@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "identifier", "password" not set`)
	assert.Equal(t, exitcode.UsageError, exitcode.DetermineExitCode(err))
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "1500.00 INR", formatPrice(150000, "INR"))
	assert.Equal(t, "0.05 USD", formatPrice(5, "USD"))
}

func TestWeekday(t *testing.T) {
	assert.Equal(t, "Sunday", weekday(0))
	assert.Equal(t, "Saturday", weekday(6))
	assert.Equal(t, "9", weekday(9))
}

func TestValidateWindow(t *testing.T) {
	assert.NoError(t, validateWindow("09:00", "17:30"))
	assert.Error(t, validateWindow("9am", "17:00"))
	assert.Error(t, validateWindow("09:00", "25:00"))
	assert.Error(t, validateWindow("10:00", "10:00"))
	assert.NoError(t, validateDate("2026-11-02"))
	assert.Error(t, validateDate("2026-13-01"))
}

func TestDescribeUser(t *testing.T) {
	assert.Equal(t, "unknown user", describeUser(nil))
	assert.Equal(t, "Ada Lovelace (@ada), mentor",
		describeUser(&session.User{FirstName: "Ada", LastName: "Lovelace", Username: "ada", Role: "mentor"}))
}

func TestSessionEnded(t *testing.T) {
	c := newCLI(t)
	c.api.revoke()

	_, err := c.run("bookings", "list")
	require.Error(t, err)
	assert.True(t, sessionEnded(err))
}
