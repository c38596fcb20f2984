package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/roomline/internal/chatapi"
)

func newSendCmd(a *app) *cobra.Command {
	var (
		uid     int64
		name    string
		replyTo int64
	)
	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send a message to the room",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := a.apiClient()
			if err != nil {
				return err
			}
			msg, err := api.Send(cmd.Context(), chatapi.SendRequest{
				RoomID:   a.cfg.Client.RoomID,
				UID:      uid,
				Username: name,
				Body:     strings.Join(args, " "),
				ReplyID:  replyTo,
			})
			if err != nil {
				return err
			}
			a.logger.Debug().Int64("id", msg.ID).Int64("room_id", msg.RoomID).Msg("message sent")
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "sent #%d\n", msg.ID)
			return err
		},
	}
	addClientFlags(cmd.Flags())
	cmd.Flags().Int64Var(&uid, "uid", 1, "sender user id")
	cmd.Flags().StringVar(&name, "name", os.Getenv("USER"), "sender display name")
	cmd.Flags().Int64Var(&replyTo, "reply-to", 0, "id of the message being replied to")
	return cmd
}
