package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/tOgg1/roomline/internal/chat"
	"github.com/tOgg1/roomline/internal/roomtui"
	"github.com/tOgg1/roomline/internal/timeline"
)

func newHistoryCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the room history",
		Long:  "Print the newest page of the room, or with --all every page back to the start.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runHistory(cmd, all)
		},
	}
	addClientFlags(cmd.Flags())
	cmd.Flags().BoolVar(&all, "all", false, "page back to the start of the room")
	return cmd
}

func (a *app) runHistory(cmd *cobra.Command, all bool) error {
	api, err := a.apiClient()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	store, pending := timeline.New(ctx, a.cfg.Client.RoomID, api, a.storeOptions()...)
	if err := pending.Wait(ctx); err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	for all && !store.IsLast() {
		before := len(store.Items())
		if err := store.LoadMore(ctx); err != nil {
			return fmt.Errorf("load older history: %w", err)
		}
		if len(store.Items()) == before && !store.IsLast() {
			a.logger.Warn().Str("cursor", string(store.Cursor())).Msg("server returned an empty page before the start of history")
			break
		}
	}

	out := cmd.OutOrStdout()
	p := printer{loc: time.Local, profile: termenv.Ascii, theme: roomtui.ThemeByName(a.cfg.TUI.Theme)}
	if isTerminal(out) {
		p.profile = termenv.NewOutput(out).EnvColorProfile()
	}
	if err := p.writeItems(out, store.Items()); err != nil {
		return err
	}
	if !store.IsLast() {
		fmt.Fprintln(cmd.ErrOrStderr(), "older messages available, rerun with --all")
	}
	return nil
}

// printer renders timeline items as plain lines. Sender names are colored when the
// profile allows it.
type printer struct {
	loc     *time.Location
	profile termenv.Profile
	theme   roomtui.Theme
}

// writeItems prints a timeline oldest first, one line per message line.
func (p printer) writeItems(w io.Writer, items []chat.Item) error {
	for _, it := range items {
		var lines []string
		switch it.Kind {
		case chat.KindMarker:
			lines = []string{"──── " + it.Marker.Label + " ────"}
		case chat.KindMessage:
			lines = p.messageText(it.Message)
		}
		for _, line := range lines {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p printer) messageText(msg chat.Message) []string {
	stamp := msg.SendTime.In(p.loc).Format("2006-01-02 15:04:05")
	name := msg.FromUser.Username
	if name == "" {
		name = fmt.Sprintf("user %d", msg.FromUser.UID)
	}
	name = p.profile.String(name).
		Foreground(p.profile.Color(p.theme.SenderColor(msg.FromUser.UID))).
		Bold().
		String()

	switch msg.Type {
	case chat.MessageTypeRecalled:
		return []string{fmt.Sprintf("%s %s recalled a message", stamp, name)}
	case chat.MessageTypeSystem:
		return []string{fmt.Sprintf("%s * %s", stamp, msg.Body)}
	}

	var out []string
	if msg.Reply != nil {
		out = append(out, fmt.Sprintf("%20s┌ %s: %s", "", msg.Reply.Username, msg.Reply.Body))
	}
	for i, part := range strings.Split(msg.Body, "\n") {
		if i == 0 {
			out = append(out, fmt.Sprintf("%s %s: %s", stamp, name, part))
			continue
		}
		out = append(out, fmt.Sprintf("%20s%s", "", part))
	}
	return out
}
