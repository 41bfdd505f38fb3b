package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencall/opencall/internal/ux"
	"github.com/opencall/opencall/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print version information including version number, git commit,
build date, Go version, and platform.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoApp: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, _ := cmd.Flags().GetString("output")
			noColor, _ := cmd.Flags().GetBool("no-color")
			f, err := ux.NewFormatter(format, &ux.FormatterOptions{Writer: cmd.OutOrStdout(), NoColor: noColor})
			if err != nil {
				return fmt.Errorf("invalid flag --output: %w", err)
			}
			info := version.GetInfo()
			return f.Format(ux.Result{Data: info, View: info.String()})
		},
	}
}
