package cmd

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	ocerrors "github.com/opencall/opencall/internal/errors"
	"github.com/opencall/opencall/internal/metrics"
	"github.com/opencall/opencall/internal/platform"
	"github.com/opencall/opencall/internal/tui"
	"github.com/opencall/opencall/internal/ux"
)

func newBookingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "bookings",
		Aliases: []string{"booking"},
		Short:   "List, create and watch bookings",
	}
	cmd.AddCommand(
		newBookingsListCmd(),
		newBookingsSessionsCmd(),
		newBookingsCreateCmd(),
		newBookingsWatchCmd(),
	)
	return cmd
}

func newBookingsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the sessions you booked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			bookings, err := a.platform.MyBookings(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(ux.Result{Data: bookings, View: bookingsTable(bookings)})
		},
	}
}

func bookingsTable(bookings []platform.MyBooking) ux.Table {
	t := ux.Table{
		Headers: []string{"ID", "MENTOR", "SERVICE", "DATE", "TIME", "STATUS", "PRICE"},
		Empty:   "No bookings yet.",
	}
	for _, b := range bookings {
		t.Rows = append(t.Rows, []string{
			b.ID, b.Mentor, b.Service, b.Date,
			b.StartTime + "-" + b.EndTime,
			b.Status,
			formatPrice(b.PriceCents, b.Currency),
		})
	}
	return t
}

func newBookingsSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List the sessions booked with you as a mentor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			sessions, err := a.platform.MentorSessions(cmd.Context())
			if err != nil {
				return err
			}
			t := ux.Table{
				Headers: []string{"ID", "MENTEE", "SERVICE", "DATE", "TIME", "PRICE"},
				Empty:   "Nobody has booked you yet.",
			}
			for _, s := range sessions {
				t.Rows = append(t.Rows, []string{
					s.ID, "@" + s.UserUsername, s.ServiceTitle, s.BookingDate,
					s.StartTime + "-" + s.EndTime,
					formatPrice(s.PriceCents, s.Currency),
				})
			}
			return a.print(ux.Result{Data: sessions, View: t})
		},
	}
}

func newBookingsCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create MENTOR_USERNAME",
		Short: "Book a session with a mentor",
		Long: `Book a session with a mentor. Without --service or --start you pick
from the mentor's services and free slots when running in a terminal.
The booking stays pending until it is paid ('opencall payments create').

Examples:
  opencall bookings create ada --date 2026-11-02
  opencall bookings create ada --service 6f1c... --date 2026-11-02 --start 10:00`,
		Args: cobra.ExactArgs(1),
		RunE: runBookingsCreate,
	}
	cmd.Flags().String("service", "", "service ID")
	cmd.Flags().String("date", "", "date (YYYY-MM-DD)")
	cmd.Flags().String("start", "", "slot start time (HH:MM)")
	return cmd
}

func runBookingsCreate(cmd *cobra.Command, args []string) error {
	a, err := appFrom(cmd)
	if err != nil {
		return err
	}
	username := args[0]

	if u := a.ctrl.State().User; u != nil && u.Username == username {
		return ocerrors.New(ocerrors.ErrCodeInvalidArguments, "you cannot book your own service")
	}

	date, _ := cmd.Flags().GetString("date")
	if err := missingFlags(map[string]string{"date": date}); err != nil {
		return err
	}
	if err := validateDate(date); err != nil {
		return err
	}

	mentor, err := a.platform.GetMentor(cmd.Context(), username)
	if err != nil {
		return err
	}

	serviceID, _ := cmd.Flags().GetString("service")
	serviceID, err = chooseService(cmd, a, username, serviceID)
	if err != nil {
		return err
	}

	start, _ := cmd.Flags().GetString("start")
	start, err = chooseSlot(cmd, a, username, date, serviceID, start)
	if err != nil {
		return err
	}

	booking, err := a.platform.CreateBooking(cmd.Context(), platform.CreateBookingRequest{
		MentorID:    mentor.Mentor.ID,
		ServiceID:   serviceID,
		BookingDate: date,
		StartTime:   start,
	})
	if err != nil {
		return err
	}

	f := ux.Fields{Title: "Booking created"}
	f.Add("ID", booking.ID)
	f.Add("When", fmt.Sprintf("%s %s-%s", booking.Date, booking.StartTime, booking.EndTime))
	f.Add("Status", booking.Status)
	f.Add("Price", formatPrice(booking.PriceCents, booking.Currency))
	f.Add("Next", "opencall payments create "+booking.ID)
	return a.print(ux.Result{Data: booking, View: f})
}

func chooseSlot(cmd *cobra.Command, a *app, username, date, serviceID, start string) (string, error) {
	if start != "" {
		return start, nil
	}
	if !tui.ShouldPrompt() {
		return "", missingFlags(map[string]string{"start": ""})
	}
	avail, err := a.platform.GetAvailableSlots(cmd.Context(), username, date, serviceID)
	if err != nil {
		return "", err
	}
	if len(avail.Slots) == 0 {
		return "", ocerrors.New(ocerrors.ErrCodeInvalidArguments, "no free slots on "+date).
			WithSuggestion("Try another date with 'opencall mentors slots " + username + " --date ...'")
	}
	choices := make([]tui.Choice, len(avail.Slots))
	for i, s := range avail.Slots {
		choices[i] = tui.Choice{Label: s.Start + "-" + s.End, Value: s.Start}
	}
	return tui.PromptForSelect("Time", choices)
}

// bookingChange is one status transition seen by watch.
type bookingChange struct {
	ID      string    `json:"id" yaml:"id"`
	Mentor  string    `json:"mentor" yaml:"mentor"`
	Service string    `json:"service" yaml:"service"`
	From    string    `json:"from,omitempty" yaml:"from,omitempty"`
	To      string    `json:"to" yaml:"to"`
	SeenAt  time.Time `json:"seen_at" yaml:"seen_at"`
}

func (c bookingChange) String() string {
	if c.From == "" {
		return fmt.Sprintf("%s  new booking %s with %s: %s", c.SeenAt.Format(time.Kitchen), c.ID, c.Mentor, c.To)
	}
	return fmt.Sprintf("%s  %s with %s: %s -> %s", c.SeenAt.Format(time.Kitchen), c.ID, c.Mentor, c.From, c.To)
}

// diffBookings reports bookings that are new or changed status since prev.
func diffBookings(prev map[string]string, bookings []platform.MyBooking, now time.Time) []bookingChange {
	var changes []bookingChange
	for _, b := range bookings {
		old, seen := prev[b.ID]
		if seen && old == b.Status {
			continue
		}
		changes = append(changes, bookingChange{
			ID: b.ID, Mentor: b.Mentor, Service: b.Service,
			From: old, To: b.Status, SeenAt: now,
		})
	}
	slices.SortFunc(changes, func(x, y bookingChange) int {
		return cmp.Compare(x.ID, y.ID)
	})
	return changes
}

func newBookingsWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll your bookings and print status changes",
		Long: `Poll your bookings and print every new booking and status change,
e.g. when a payment confirms a pending booking.

The session is refreshed as needed while watching. Transient failures
are reported and polling continues; watch stops when the session can no
longer be refreshed.

With --metrics-addr (or metrics.addr) Prometheus metrics are served on
/metrics, including opencall_booking_polls_total and opencall_bookings.

Examples:
  opencall bookings watch --interval 1m
  opencall bookings watch --metrics-addr :9464`,
		Args: cobra.NoArgs,
		RunE: runBookingsWatch,
	}
	cmd.Flags().Duration("interval", 30*time.Second, "time between polls")
	cmd.Flags().Int("count", 0, "stop after this many polls (0 = until interrupted)")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func runBookingsWatch(cmd *cobra.Command, _ []string) error {
	a, err := appFrom(cmd)
	if err != nil {
		return err
	}
	interval, _ := cmd.Flags().GetDuration("interval")
	if interval <= 0 {
		return ocerrors.New(ocerrors.ErrCodeInvalidArguments, "--interval must be positive")
	}
	count, _ := cmd.Flags().GetInt("count")
	addr, _ := cmd.Flags().GetString("metrics-addr")
	if addr == "" {
		addr = a.cfg.Metrics.Addr
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var serveErr chan error
	if addr != "" {
		serveErr = make(chan error, 1)
		go func() { serveErr <- metrics.Serve(ctx, addr, a.promRegistry) }()
		a.logger.Info("serving metrics", "addr", addr)
	}
	stop := func() error {
		cancel()
		if serveErr == nil {
			return nil
		}
		err := <-serveErr
		serveErr = nil
		return err
	}

	a.live.Store(true)
	defer a.live.Store(false)

	f, err := a.formatter()
	if err != nil {
		_ = stop()
		return err
	}

	w := &bookingWatcher{a: a, format: f, seen: map[string]string{}}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for polls := 1; count <= 0 || polls <= count; polls++ {
		if polls > 1 {
			select {
			case <-ctx.Done():
				return stop()
			case err := <-serveErr:
				serveErr = nil
				if err != nil {
					cancel()
					return fmt.Errorf("metrics endpoint failed: %w", err)
				}
			case <-ticker.C:
			}
		}
		if err := w.poll(ctx); err != nil {
			interrupted := ctx.Err() != nil
			_ = stop()
			if interrupted {
				return nil
			}
			return err
		}
	}
	return stop()
}

type bookingWatcher struct {
	a      *app
	format ux.Formatter
	seen   map[string]string
}

// poll fetches the bookings once. Only errors that end the session are
// returned; everything else is counted and logged.
func (w *bookingWatcher) poll(ctx context.Context) error {
	bookings, err := w.a.platform.MyBookings(ctx)
	if err != nil {
		w.a.metrics.BookingPolls.WithLabelValues("false").Inc()
		w.a.metrics.RecordError("bookings", err)
		if sessionEnded(err) || ctx.Err() != nil {
			return err
		}
		w.a.logger.WithError(err).Warn("failed to poll bookings")
		return nil
	}
	w.a.metrics.BookingPolls.WithLabelValues("true").Inc()

	w.a.metrics.Bookings.Reset()
	for status, n := range platform.CountByStatus(bookings) {
		w.a.metrics.Bookings.WithLabelValues(status).Set(float64(n))
	}

	for _, change := range diffBookings(w.seen, bookings, time.Now()) {
		if err := w.format.Format(ux.Result{Data: change, View: change.String()}); err != nil {
			return err
		}
	}
	for _, b := range bookings {
		w.seen[b.ID] = b.Status
	}
	w.a.logger.Debug("polled bookings", "count", len(bookings))
	return nil
}

// sessionEnded reports errors after which polling cannot succeed.
func sessionEnded(err error) bool {
	var apiErr *ocerrors.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind == ocerrors.KindAuthentication
	}
	var ocErr *ocerrors.OpenCallError
	return errors.As(err, &ocErr) && ocErr.Code == ocerrors.ErrCodeSessionNotAuthenticated
}
