package tui

import (
	"errors"
	"fmt"
	"net/mail"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/opencall/opencall/internal/auth"
)

// Credentials are the login form values. Fields already set are not asked.
type Credentials struct {
	Identifier string
	Password   string
}

// Choice is one option of a selection prompt
type Choice struct {
	Label string
	Value string
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

func validEmail(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return errors.New("not a valid email address")
	}
	return nil
}

func minLength(name string, n int) func(string) error {
	return func(s string) error {
		if len(s) < n {
			return fmt.Errorf("%s must be at least %d characters", name, n)
		}
		return nil
	}
}

// LoginForm builds the login form for the fields of c that are still empty.
// It returns nil when nothing needs asking.
func LoginForm(c *Credentials) *huh.Form {
	var fields []huh.Field
	if c.Identifier == "" {
		fields = append(fields, huh.NewInput().
			Title("Email or username").
			Value(&c.Identifier).
			Validate(required("email or username")))
	}
	if c.Password == "" {
		fields = append(fields, huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&c.Password).
			Validate(required("password")))
	}
	if len(fields) == 0 {
		return nil
	}
	return huh.NewForm(huh.NewGroup(fields...))
}

// PromptLogin asks for the missing credentials
func PromptLogin(c *Credentials) error {
	form := LoginForm(c)
	if form == nil {
		return nil
	}
	if err := form.Run(); err != nil {
		return fmt.Errorf("prompt failed: %w", err)
	}
	return nil
}

// RegisterForm builds the account creation form. Prefilled fields are
// shown with their values.
func RegisterForm(req *auth.RegisterRequest) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("First name").Value(&req.FirstName).Validate(required("first name")),
			huh.NewInput().Title("Last name").Value(&req.LastName).Validate(required("last name")),
			huh.NewInput().Title("Username").Value(&req.Username).Validate(required("username")),
			huh.NewInput().Title("Email").Value(&req.Email).Validate(validEmail),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&req.Password).
				Validate(minLength("password", 8)),
		),
	)
}

// PromptRegister asks for the account details
func PromptRegister(req *auth.RegisterRequest) error {
	if err := RegisterForm(req).Run(); err != nil {
		return fmt.Errorf("prompt failed: %w", err)
	}
	return nil
}

// PromptForConfirmation displays a yes/no confirmation prompt
func PromptForConfirmation(message string, defaultValue bool) (bool, error) {
	confirmed := defaultValue

	confirm := huh.NewConfirm().
		Title(message).
		Value(&confirmed)

	if err := huh.NewForm(huh.NewGroup(confirm)).Run(); err != nil {
		return false, fmt.Errorf("prompt failed: %w", err)
	}

	return confirmed, nil
}

// PromptForSelect displays a selection prompt and returns the chosen value
func PromptForSelect(message string, choices []Choice) (string, error) {
	if len(choices) == 0 {
		return "", fmt.Errorf("no options provided")
	}

	options := make([]huh.Option[string], len(choices))
	for i, c := range choices {
		options[i] = huh.NewOption(c.Label, c.Value)
	}

	var selected string
	selectField := huh.NewSelect[string]().
		Title(message).
		Options(options...).
		Value(&selected)

	if err := huh.NewForm(huh.NewGroup(selectField)).Run(); err != nil {
		return "", fmt.Errorf("prompt failed: %w", err)
	}

	return selected, nil
}

// IsInteractive returns true if stdin is a terminal (not piped)
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// ShouldPrompt returns true if prompts should be shown based on environment
// Prompts are disabled in CI environments or when stdin is not a terminal
func ShouldPrompt() bool {
	ciEnvVars := []string{
		"CI",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"JENKINS_URL",
		"TRAVIS",
		"CIRCLECI",
		"BUILDKITE",
	}

	for _, envVar := range ciEnvVars {
		if os.Getenv(envVar) != "" {
			return false
		}
	}

	return IsInteractive()
}
