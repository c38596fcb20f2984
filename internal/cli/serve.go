package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/tOgg1/roomline/internal/history"
	"github.com/tOgg1/roomline/internal/roomserver"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the development room server",
		Long:  "Serve paged history and live pushes for every room from a local SQLite database.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runServe(ctx)
		},
	}
	cmd.Flags().String("listen", "", "address to listen on")
	cmd.Flags().String("db", "", "history database path (:memory: keeps nothing)")
	cmd.Flags().String("token", "", "require this access token")
	return cmd
}

func (a *app) runServe(ctx context.Context) error {
	db, err := openHistory(a.cfg.Server.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate history db: %w", err)
	}

	if a.cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	var opts []roomserver.Option
	if token := a.cfg.Client.Token; token != "" {
		opts = append(opts, roomserver.WithToken(token))
	}
	a.logger.Info().Str("db", a.cfg.Server.DBPath).Msg("history db ready")
	return roomserver.NewServer(history.NewRepository(db), opts...).Run(ctx, a.cfg.Server.Listen)
}

func openHistory(path string) (*history.DB, error) {
	if path == "" || path == ":memory:" {
		return history.OpenInMemory()
	}
	return history.Open(path)
}
