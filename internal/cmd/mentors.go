package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	ocerrors "github.com/opencall/opencall/internal/errors"
	"github.com/opencall/opencall/internal/platform"
	"github.com/opencall/opencall/internal/tui"
	"github.com/opencall/opencall/internal/ux"
)

const dateLayout = "2006-01-02"

func newMentorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "mentors",
		Aliases: []string{"mentor"},
		Short:   "Browse mentors and manage your mentor profile",
	}
	cmd.AddCommand(
		newMentorShowCmd(),
		newMentorServicesCmd(),
		newMentorAvailabilityCmd(),
		newMentorSlotsCmd(),
		newMentorSetupCmd(),
		newMentorAddServiceCmd(),
		newMentorAddAvailabilityCmd(),
	)
	return cmd
}

func newMentorShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show USERNAME",
		Short: "Show a mentor profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			m, err := a.platform.GetMentor(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			f := ux.Fields{Title: fmt.Sprintf("%s %s (@%s)", m.User.FirstName, m.User.LastName, m.User.Username)}
			f.Add("Title", m.Mentor.Title)
			f.Add("Bio", m.Mentor.Bio)
			f.Add("Timezone", m.Mentor.Timezone)
			f.Add("Mentor ID", m.Mentor.ID)
			if !m.Mentor.IsActive {
				f.Add("Status", "not accepting bookings")
			}
			return a.print(ux.Result{Data: m, View: f})
		},
	}
}

func newMentorServicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "services USERNAME",
		Short: "List the services a mentor offers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			services, err := a.platform.ListServices(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			t := ux.Table{
				Headers: []string{"ID", "TITLE", "DURATION", "PRICE"},
				Empty:   "This mentor offers no services yet.",
			}
			for _, s := range services {
				t.Rows = append(t.Rows, []string{
					s.ID,
					s.Title,
					fmt.Sprintf("%dm", s.DurationMinutes),
					formatPrice(s.PriceCents, s.Currency),
				})
			}
			return a.print(ux.Result{Data: services, View: t})
		},
	}
}

func newMentorAvailabilityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "availability USERNAME",
		Short: "List a mentor's weekly availability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			rules, err := a.platform.ListAvailabilityRules(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			t := ux.Table{
				Headers: []string{"DAY", "FROM", "TO"},
				Empty:   "No availability published.",
			}
			for _, r := range rules {
				t.Rows = append(t.Rows, []string{weekday(r.DayOfWeek), r.StartTime, r.EndTime})
			}
			return a.print(ux.Result{Data: rules, View: t})
		},
	}
}

func newMentorSlotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots USERNAME",
		Short: "List bookable slots of a service on a date",
		Long: `List the free slots of a mentor's service on a date. Without
--service you pick one of the mentor's services when running in a
terminal.

Examples:
  opencall mentors slots ada --date 2026-11-02 --service 6f1c...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			date, _ := cmd.Flags().GetString("date")
			if err := validateDate(date); err != nil {
				return err
			}
			serviceID, _ := cmd.Flags().GetString("service")
			serviceID, err = chooseService(cmd, a, args[0], serviceID)
			if err != nil {
				return err
			}

			avail, err := a.platform.GetAvailableSlots(cmd.Context(), args[0], date, serviceID)
			if err != nil {
				return err
			}
			t := ux.Table{
				Title:   "Free slots on " + avail.Date,
				Headers: []string{"START", "END"},
				Empty:   "No free slots on this date.",
			}
			for _, s := range avail.Slots {
				t.Rows = append(t.Rows, []string{s.Start, s.End})
			}
			return a.print(ux.Result{Data: avail, View: t})
		},
	}
	cmd.Flags().String("date", time.Now().Format(dateLayout), "date (YYYY-MM-DD)")
	cmd.Flags().String("service", "", "service ID")
	return cmd
}

func newMentorSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create your mentor profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			var req platform.CreateMentorProfileRequest
			req.Title, _ = cmd.Flags().GetString("title")
			req.Bio, _ = cmd.Flags().GetString("bio")
			req.Timezone, _ = cmd.Flags().GetString("timezone")
			if err := missingFlags(map[string]string{"title": req.Title, "timezone": req.Timezone}); err != nil {
				return err
			}
			if _, err := time.LoadLocation(req.Timezone); err != nil {
				return ocerrors.New(ocerrors.ErrCodeInvalidArguments, "unknown timezone "+req.Timezone).
					WithSuggestion("Use an IANA name such as Europe/Berlin or Asia/Kolkata")
			}

			profile, err := a.platform.CreateMentorProfile(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.print(ux.Result{Data: profile, View: "Mentor profile created: " + profile.Title})
		},
	}
	cmd.Flags().String("title", "", "headline shown on your profile")
	cmd.Flags().String("bio", "", "longer description")
	cmd.Flags().String("timezone", "", "IANA timezone of your availability")
	return cmd
}

func newMentorAddServiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-service",
		Short: "Offer a new service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			var req platform.CreateMentorServiceRequest
			req.Title, _ = cmd.Flags().GetString("title")
			req.Description, _ = cmd.Flags().GetString("description")
			req.DurationMinutes, _ = cmd.Flags().GetInt("duration")
			req.PriceCents, _ = cmd.Flags().GetInt64("price")
			req.Currency, _ = cmd.Flags().GetString("currency")
			if err := missingFlags(map[string]string{"title": req.Title}); err != nil {
				return err
			}
			if req.DurationMinutes <= 0 {
				return ocerrors.New(ocerrors.ErrCodeInvalidArguments, "--duration must be positive")
			}
			if req.PriceCents < 0 {
				return ocerrors.New(ocerrors.ErrCodeInvalidArguments, "--price must not be negative")
			}

			svc, err := a.platform.CreateService(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.print(ux.Result{
				Data: svc,
				View: fmt.Sprintf("Service %q created (%s).", svc.Title, svc.ID),
			})
		},
	}
	cmd.Flags().String("title", "", "service title")
	cmd.Flags().String("description", "", "what the session covers")
	cmd.Flags().Int("duration", 30, "length in minutes")
	cmd.Flags().Int64("price", 0, "price in the smallest currency unit")
	cmd.Flags().String("currency", "INR", "ISO currency code")
	return cmd
}

func newMentorAddAvailabilityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-availability",
		Short: "Add a weekly availability window",
		Long: `Add a weekly window in which you can be booked. Days are numbered
from 0 (Sunday) to 6 (Saturday); times are HH:MM.

Examples:
  opencall mentors add-availability --day 1 --from 09:00 --to 12:00`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			var rule platform.AvailabilityRule
			rule.DayOfWeek, _ = cmd.Flags().GetInt("day")
			rule.StartTime, _ = cmd.Flags().GetString("from")
			rule.EndTime, _ = cmd.Flags().GetString("to")
			if rule.DayOfWeek < 0 || rule.DayOfWeek > 6 {
				return ocerrors.New(ocerrors.ErrCodeInvalidArguments, "--day must be between 0 (Sunday) and 6 (Saturday)")
			}
			if err := validateWindow(rule.StartTime, rule.EndTime); err != nil {
				return err
			}

			created, err := a.platform.CreateAvailabilityRule(cmd.Context(), rule)
			if err != nil {
				return err
			}
			return a.print(ux.Result{
				Data: created,
				View: fmt.Sprintf("Available %s %s-%s.", weekday(created.DayOfWeek), created.StartTime, created.EndTime),
			})
		},
	}
	cmd.Flags().Int("day", -1, "day of week, 0 = Sunday")
	cmd.Flags().String("from", "", "start time (HH:MM)")
	cmd.Flags().String("to", "", "end time (HH:MM)")
	return cmd
}

// chooseService returns serviceID, or lets the user pick one of the
// mentor's services when it is empty.
func chooseService(cmd *cobra.Command, a *app, username, serviceID string) (string, error) {
	if serviceID != "" {
		return serviceID, nil
	}
	if !tui.ShouldPrompt() {
		return "", missingFlags(map[string]string{"service": ""})
	}
	services, err := a.platform.ListServices(cmd.Context(), username)
	if err != nil {
		return "", err
	}
	choices := make([]tui.Choice, 0, len(services))
	for _, s := range services {
		if !s.IsActive {
			continue
		}
		choices = append(choices, tui.Choice{
			Label: fmt.Sprintf("%s (%dm, %s)", s.Title, s.DurationMinutes, formatPrice(s.PriceCents, s.Currency)),
			Value: s.ID,
		})
	}
	if len(choices) == 0 {
		return "", ocerrors.New(ocerrors.ErrCodeInvalidArguments, username+" offers no bookable services")
	}
	return tui.PromptForSelect("Service", choices)
}

func validateDate(date string) error {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return ocerrors.New(ocerrors.ErrCodeInvalidArguments, fmt.Sprintf("invalid date %q", date)).
			WithSuggestion("Dates look like 2026-11-02")
	}
	return nil
}

func validateWindow(from, to string) error {
	start, err := time.Parse("15:04", from)
	if err != nil {
		return ocerrors.New(ocerrors.ErrCodeInvalidArguments, fmt.Sprintf("invalid start time %q (want HH:MM)", from))
	}
	end, err := time.Parse("15:04", to)
	if err != nil {
		return ocerrors.New(ocerrors.ErrCodeInvalidArguments, fmt.Sprintf("invalid end time %q (want HH:MM)", to))
	}
	if !end.After(start) {
		return ocerrors.New(ocerrors.ErrCodeInvalidArguments, "end time must be after start time")
	}
	return nil
}

func weekday(day int) string {
	if day < 0 || day > 6 {
		return strconv.Itoa(day)
	}
	return time.Weekday(day).String()
}

func formatPrice(cents int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", cents/100, cents%100, currency)
}
