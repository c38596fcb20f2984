package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tOgg1/roomline/internal/logging"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Print the merged configuration (defaults, file, environment and flags) as YAML with secrets redacted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := yaml.Marshal(logging.RedactMap(a.loader.AllSettings()))
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			w := cmd.OutOrStdout()
			if used := a.loader.ConfigFileUsed(); used != "" {
				fmt.Fprintf(w, "# %s\n", used)
			}
			_, err = w.Write(out)
			return err
		},
	}
	addClientFlags(cmd.Flags())
	cmd.Flags().String("listen", "", "address to listen on")
	cmd.Flags().String("db", "", "history database path")
	return cmd
}
