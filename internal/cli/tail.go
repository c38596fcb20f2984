package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/tOgg1/roomline/internal/logging"
	"github.com/tOgg1/roomline/internal/roomtui"
)

var errNoTerminal = errors.New("tail needs an interactive terminal; use `roomline history` to print the room instead")

func newTailCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow the room in the terminal UI",
		Long:  "Open the room timeline: scroll up for older history, new messages arrive at the bottom.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTail(cmd)
		},
	}
	addClientFlags(cmd.Flags())
	cmd.Flags().String("theme", "", "theme: default|high-contrast")
	return cmd
}

func (a *app) runTail(cmd *cobra.Command) error {
	if !isTerminal(cmd.OutOrStdout()) {
		return errNoTerminal
	}
	api, err := a.apiClient()
	if err != nil {
		return err
	}
	push, err := a.pushClient()
	if err != nil {
		return err
	}

	logger := logging.WithRoom(a.cfg.Client.RoomID)
	a.logger.Info().Int64("room_id", a.cfg.Client.RoomID).Str("server", a.cfg.Client.ServerURL).Msg("starting tail")

	return roomtui.Run(roomtui.Config{
		RoomID:        a.cfg.Client.RoomID,
		Fetcher:       api,
		Push:          push,
		Annotator:     a.annotator(),
		PageSize:      a.cfg.Timeline.PageSize,
		LoadingPolicy: a.loadingPolicy(),
		LoadThreshold: a.cfg.TUI.LoadThreshold,
		IdleAfter:     a.cfg.TUI.IdleAfter,
		Theme:         a.cfg.TUI.Theme,
		Title:         a.cfg.TUI.Title,
		Logger:        &logger,
	})
}
