package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/opencall/opencall/internal/ux"
)

// annotationNoApp marks commands that run without config or a session.
const annotationNoApp = "opencall/no-app"

// NewRootCommand builds the opencall command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "opencall",
		Short: "OpenCall mentorship booking client",
		Long: `opencall talks to the OpenCall mentorship booking API.

It keeps your session between invocations, refreshes the access token
before it expires, and retries a request once when the server answers
401 after a successful refresh.

Configuration is read from ~/.opencall/config.yaml (or $OPENCALL_HOME)
and OPENCALL_* environment variables, e.g. OPENCALL_API_BASE_URL.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !needsApp(cmd) {
				return nil
			}
			h, _ := cmd.Context().Value(appKey{}).(*appHolder)
			if h == nil {
				h = &appHolder{}
				cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, h))
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			h.app = a
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default is $OPENCALL_HOME/config.yaml)")
	flags.String("base-url", "", "API base URL (overrides api.base_url)")
	flags.StringP("output", "o", ux.FormatText, "output format: text, json or yaml")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("interceptors", "", "interceptor set: development, production or none")
	flags.Bool("no-color", false, "disable colored output")
	flags.BoolP("quiet", "q", false, "suppress notices")

	root.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newRefreshCmd(),
		newRegisterCmd(),
		newStatusCmd(),
		newProfileCmd(),
		newUsersCmd(),
		newRequestCmd(),
		newMentorsCmd(),
		newBookingsCmd(),
		newPaymentsCmd(),
		newCallCmd(),
		newVersionCmd(),
	)
	return root
}

func needsApp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[annotationNoApp] == "true" {
			return false
		}
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return false
		}
	}
	return true
}

// Execute runs the CLI with os.Args
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the CLI with os.Args under ctx.
func ExecuteContext(ctx context.Context) error {
	root := NewRootCommand()
	root.SetArgs(os.Args[1:])
	return execute(ctx, root)
}

func execute(ctx context.Context, root *cobra.Command) error {
	h := &appHolder{}
	cmd, err := root.ExecuteContextC(context.WithValue(ctx, appKey{}, h))
	if h.app != nil {
		h.app.finish(cmd, err)
	}
	return err
}
