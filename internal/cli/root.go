// Package cli implements the roomline command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/tOgg1/roomline/internal/config"
	"github.com/tOgg1/roomline/internal/logging"
)

// flagKeys maps command line flags onto config keys. Flags only override the config
// when set explicitly.
var flagKeys = map[string]string{
	"server":     "client.server_url",
	"ws":         "client.ws_url",
	"room":       "client.room_id",
	"token":      "client.token",
	"page-size":  "timeline.page_size",
	"listen":     "server.listen",
	"db":         "server.db_path",
	"log-level":  "logging.level",
	"log-format": "logging.format",
	"log-file":   "logging.file",
	"theme":      "tui.theme",
}

type app struct {
	version    string
	configFile string

	loader    *config.Loader
	cfg       *config.Config
	logger    zerolog.Logger
	logCloser io.Closer
}

func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	a := &app{version: version, logger: zerolog.Nop()}
	cmd := &cobra.Command{
		Use:           "roomline",
		Short:         "Chat room timeline client",
		Long:          "roomline follows one chat room: paged history, live pushes and a development server.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTail(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (default is $HOME/.config/roomline/config.yaml)")
	pf.String("log-level", "", "override logging level (debug, info, warn, error)")
	pf.String("log-format", "", "override logging format (json, console)")
	pf.String("log-file", "", "write logs to this file")
	addClientFlags(cmd.Flags())
	cmd.Flags().String("theme", "", "theme: default|high-contrast")

	cmd.AddCommand(
		newTailCmd(a),
		newHistoryCmd(a),
		newSendCmd(a),
		newServeCmd(a),
		newConfigCmd(a),
		newVersionCmd(a),
	)
	return cmd
}

func addClientFlags(fs *pflag.FlagSet) {
	fs.String("server", "", "chat API base URL")
	fs.String("ws", "", "push websocket base URL (derived from --server when empty)")
	fs.Int64("room", 0, "room id")
	fs.String("token", "", "access token")
	fs.Int("page-size", 0, "history page size")
}

// setup loads the config with the flags of cmd bound over it and initialises logging.
func (a *app) setup(cmd *cobra.Command) error {
	a.loader = config.NewLoader()
	if a.configFile != "" {
		a.loader.SetConfigFile(a.configFile)
	}
	for name, key := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			continue
		}
		if err := a.loader.BindFlag(key, flag); err != nil {
			return err
		}
	}

	cfg, err := a.loader.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}

	// The terminal UI owns the screen: without a log file it runs silent.
	if isTailCommand(cmd) && cfg.Logging.File == "" {
		logging.Discard()
	} else {
		closer, err := logging.Init(logging.Config{
			Level:        cfg.Logging.Level,
			Format:       cfg.Logging.Format,
			Output:       cmd.ErrOrStderr(),
			File:         cfg.Logging.File,
			EnableCaller: cfg.Logging.EnableCaller,
		})
		if err != nil {
			return err
		}
		a.logCloser = closer
	}
	a.logger = logging.Component("cli")

	if used := a.loader.ConfigFileUsed(); used != "" {
		a.logger.Debug().Str("config_file", used).Msg("loaded config file")
	}
	return nil
}

func (a *app) teardown() error {
	if a.logCloser == nil {
		return nil
	}
	err := a.logCloser.Close()
	a.logCloser = nil
	return err
}

func isTailCommand(cmd *cobra.Command) bool {
	return !cmd.HasParent() || cmd.Name() == "tail"
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "roomline %s\n", a.version)
			return err
		},
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
