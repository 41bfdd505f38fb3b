package cmd

import (
	"bufio"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencall/opencall/internal/auth"
	ocerrors "github.com/opencall/opencall/internal/errors"
	"github.com/opencall/opencall/internal/session"
	"github.com/opencall/opencall/internal/tui"
	"github.com/opencall/opencall/internal/ux"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		Long: `Log in with your email or username and password.

The access and refresh tokens are stored in the configured session
backend (session.backend). Missing credentials are asked for when
running in a terminal.

Examples:
  opencall login
  opencall login --identifier ada@example.com --password-stdin < pw.txt`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}
	cmd.Flags().StringP("identifier", "u", "", "email or username")
	cmd.Flags().StringP("password", "p", "", "password")
	cmd.Flags().Bool("password-stdin", false, "read the password from stdin")
	return cmd
}

func runLogin(cmd *cobra.Command, _ []string) error {
	a, err := appFrom(cmd)
	if err != nil {
		return err
	}

	var creds tui.Credentials
	creds.Identifier, _ = cmd.Flags().GetString("identifier")
	creds.Password, _ = cmd.Flags().GetString("password")
	if fromStdin, _ := cmd.Flags().GetBool("password-stdin"); fromStdin {
		creds.Password, err = readLine(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read password from stdin: %w", err)
		}
	}

	if (creds.Identifier == "" || creds.Password == "") && tui.ShouldPrompt() {
		if err := tui.PromptLogin(&creds); err != nil {
			return err
		}
	}
	if missing := missingFlags(map[string]string{
		"identifier": creds.Identifier,
		"password":   creds.Password,
	}); missing != nil {
		return missing
	}

	if err := a.ctrl.Login(cmd.Context(), creds.Identifier, creds.Password); err != nil {
		return err
	}

	user := a.ctrl.State().User
	return a.print(ux.Result{
		Data: user,
		View: "Logged in as " + describeUser(user),
	})
}

func newLogoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Log out and clear the stored session",
		Long: `Log out on the server and clear the stored session.

Logout always succeeds locally: if the server cannot be reached the
session is cleared anyway. Use --local to skip the server call.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			if a.store.Read(cmd.Context()).AccessToken == "" {
				return a.print(ux.Result{Data: map[string]bool{"logged_out": false}, View: "Not logged in."})
			}
			if local, _ := cmd.Flags().GetBool("local"); local {
				a.ctrl.ClearLocal(cmd.Context())
			} else {
				a.ctrl.Logout(cmd.Context())
			}
			return a.print(ux.Result{Data: map[string]bool{"logged_out": true}, View: "Logged out."})
		},
	}
	cmd.Flags().Bool("local", false, "only clear the local session")
	return cmd
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			if err := a.ctrl.Refresh(cmd.Context()); err != nil {
				return err
			}
			state := a.ctrl.State()
			view := "Session refreshed."
			if !state.ExpiresAt.IsZero() {
				view = fmt.Sprintf("Session refreshed; expires %s.", relative(time.Until(state.ExpiresAt)))
			}
			return a.print(ux.Result{Data: newStatusReport(a, cmd), View: view})
		},
	}
}

func newRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Long: `Create an OpenCall account. Registration does not log you in;
run 'opencall login' afterwards.`,
		Args: cobra.NoArgs,
		RunE: runRegister,
	}
	cmd.Flags().String("first-name", "", "first name")
	cmd.Flags().String("last-name", "", "last name")
	cmd.Flags().String("username", "", "username")
	cmd.Flags().String("email", "", "email address")
	cmd.Flags().String("password", "", "password")
	return cmd
}

func runRegister(cmd *cobra.Command, _ []string) error {
	a, err := appFrom(cmd)
	if err != nil {
		return err
	}

	var req auth.RegisterRequest
	req.FirstName, _ = cmd.Flags().GetString("first-name")
	req.LastName, _ = cmd.Flags().GetString("last-name")
	req.Username, _ = cmd.Flags().GetString("username")
	req.Email, _ = cmd.Flags().GetString("email")
	req.Password, _ = cmd.Flags().GetString("password")

	fields := func() map[string]string {
		return map[string]string{
			"first-name": req.FirstName,
			"last-name":  req.LastName,
			"username":   req.Username,
			"email":      req.Email,
			"password":   req.Password,
		}
	}
	if missingFlags(fields()) != nil && tui.ShouldPrompt() {
		if err := tui.PromptRegister(&req); err != nil {
			return err
		}
	}
	if missing := missingFlags(fields()); missing != nil {
		return missing
	}

	resp, err := a.ctrl.Register(cmd.Context(), req)
	if err != nil {
		return err
	}

	msg := resp.Message
	if msg == "" {
		msg = "Account created."
	}
	return a.print(ux.Result{
		Data: resp,
		View: msg + " Run 'opencall login' to sign in.",
	})
}

type tokenInfo struct {
	Subject   string     `json:"subject,omitempty" yaml:"subject,omitempty"`
	Role      string     `json:"role,omitempty" yaml:"role,omitempty"`
	IssuedAt  *time.Time `json:"issued_at,omitempty" yaml:"issued_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

type statusReport struct {
	Authenticated bool          `json:"authenticated" yaml:"authenticated"`
	User          *session.User `json:"user,omitempty" yaml:"user,omitempty"`
	ExpiresAt     *time.Time    `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	Expired       bool          `json:"expired" yaml:"expired"`
	Token         *tokenInfo    `json:"token,omitempty" yaml:"token,omitempty"`
	Backend       string        `json:"backend" yaml:"backend"`
	BaseURL       string        `json:"base_url" yaml:"base_url"`
}

func newStatusReport(a *app, cmd *cobra.Command) statusReport {
	rec := a.store.Read(cmd.Context())
	report := statusReport{
		Authenticated: rec.AccessToken != "",
		User:          rec.User,
		Backend:       a.store.Backend().Name(),
		BaseURL:       a.cfg.API.BaseURL,
	}
	if rec.ExpiresAt > 0 {
		exp := rec.Expiry()
		report.ExpiresAt = &exp
		report.Expired = !exp.After(time.Now())
	}
	if rec.AccessToken != "" {
		if claims, err := auth.ParseTokenClaims(rec.AccessToken); err == nil {
			info := &tokenInfo{Subject: claims.Subject, Role: claims.Role}
			if claims.UserID != "" && info.Subject == "" {
				info.Subject = claims.UserID
			}
			if claims.IssuedAt != nil {
				t := claims.IssuedAt.Time
				info.IssuedAt = &t
			}
			if claims.ExpiresAt != nil {
				t := claims.ExpiresAt.Time
				info.ExpiresAt = &t
			}
			report.Token = info
		} else {
			a.logger.Debug("access token is not a readable JWT", "error", err)
		}
	}
	return report
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Aliases: []string{"whoami"},
		Short:   "Show the stored session",
		Long: `Show who is logged in and when the access token expires.

Status reads the stored session only and does not contact the server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			report := newStatusReport(a, cmd)
			return a.print(ux.Result{Data: report, View: statusView(report)})
		},
	}
}

func statusView(r statusReport) ux.Fields {
	f := ux.Fields{Title: "OpenCall session"}
	if !r.Authenticated {
		f.Add("Status", "not logged in")
	} else if r.Expired {
		f.Add("Status", "access token expired (it will be refreshed on the next request)")
	} else {
		f.Add("Status", "logged in")
	}
	if r.User != nil {
		f.Add("User", describeUser(r.User))
		f.Add("Email", r.User.Email)
	}
	if r.ExpiresAt != nil {
		f.Add("Expires", fmt.Sprintf("%s (%s)", r.ExpiresAt.Local().Format(time.RFC1123), relative(time.Until(*r.ExpiresAt))))
	}
	if r.Token != nil {
		f.Add("Subject", r.Token.Subject)
	}
	f.Add("Backend", r.Backend)
	f.Add("API", r.BaseURL)
	return f
}

func describeUser(u *session.User) string {
	if u == nil {
		return "unknown user"
	}
	name := u.FullName()
	if u.Username != "" && name != u.Username {
		name = fmt.Sprintf("%s (@%s)", name, u.Username)
	}
	if u.Role != "" {
		name += ", " + u.Role
	}
	return name
}

// relative renders d as "in 5m0s" or "3m0s ago".
func relative(d time.Duration) string {
	past := d < 0
	if past {
		d = -d
	}
	d = d.Round(time.Second)
	if d >= time.Minute {
		d = d.Round(time.Minute)
	}
	if past {
		return d.String() + " ago"
	}
	return "in " + d.String()
}

// missingFlags reports every empty value in the cobra "required flag"
// format.
func missingFlags(values map[string]string) error {
	var missing []string
	for _, name := range slices.Sorted(maps.Keys(values)) {
		if strings.TrimSpace(values[name]) == "" {
			missing = append(missing, `"`+name+`"`)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return ocerrors.New(ocerrors.ErrCodeInvalidArguments,
		fmt.Sprintf("required flag(s) %s not set", strings.Join(missing, ", "))).
		WithSuggestion("Pass the flags or run the command in a terminal to be prompted")
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
