package cmd

import (
	"github.com/spf13/cobra"
)

// CommandContext holds the persistent command-line flags.
type CommandContext struct {
	// Output control
	Format  string
	NoColor bool
	Quiet   bool

	// Overrides applied on top of the loaded configuration
	ConfigPath   string
	BaseURL      string
	LogLevel     string
	Interceptors string
}

// NewCommandContext extracts the persistent flags from cmd.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	format, err := cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}

	noColor, err := cmd.Flags().GetBool("no-color")
	if err != nil {
		return nil, err
	}

	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		return nil, err
	}

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	baseURL, err := cmd.Flags().GetString("base-url")
	if err != nil {
		return nil, err
	}

	logLevel, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, err
	}

	interceptors, err := cmd.Flags().GetString("interceptors")
	if err != nil {
		return nil, err
	}

	return &CommandContext{
		Format:       format,
		NoColor:      noColor,
		Quiet:        quiet,
		ConfigPath:   configPath,
		BaseURL:      baseURL,
		LogLevel:     logLevel,
		Interceptors: interceptors,
	}, nil
}
