package roomtui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tOgg1/roomline/internal/chat"
)

const markerRule = "────"

// line is one rendered row of the timeline and the item it belongs to.
type line struct {
	item int
	text string
}

func (m *Model) View() string {
	header := m.renderHeader()
	footer := m.renderFooter()
	body := m.renderBody(m.store.Items())
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m *Model) renderHeader() string {
	parts := []string{m.styles.header.Render(m.cfg.Title), fmt.Sprintf("room %d", m.cfg.RoomID)}

	switch {
	case m.lastErr != nil && m.store.Loading():
		parts = append(parts, m.styles.err.Render("load failed: "+m.lastErr.Error()))
	case m.loadInFlight:
		parts = append(parts, m.styles.muted.Render("loading…"))
	case m.store.IsLast():
		parts = append(parts, m.styles.muted.Render("start of history"))
	case m.lastErr != nil:
		parts = append(parts, m.styles.err.Render("load failed: "+m.lastErr.Error()))
	}
	if m.store.ScrolledAwayFromLive() {
		if n := m.store.NewMessageCount(); n > 0 {
			parts = append(parts, m.styles.accent.Render(fmt.Sprintf("+%d new", n)))
		}
	}
	return m.fit(strings.Join(parts, " · "))
}

func (m *Model) renderFooter() string {
	if draft := m.store.DraftReply(); draft != nil {
		return m.fit(m.styles.footer.Render(fmt.Sprintf("↩ replying to %s: %s", senderName(*draft), draft.Preview())) +
			m.styles.muted.Render("  esc cancel"))
	}
	return m.fit(m.styles.muted.Render("k/j scroll · G live · r reply · x mute · q quit"))
}

// renderBody draws the window of lines ending offset lines above the live edge. Short
// timelines are padded at the top so the newest message sits on the last row.
func (m *Model) renderBody(items []chat.Item) string {
	height := m.bodyHeight()
	if height <= 0 {
		return ""
	}
	all := m.lines(items)
	bottom := min(max(len(all)-m.offset, 0), len(all))
	top := max(bottom-height, 0)
	selected := selectedItem(items, all[top:bottom])

	rows := make([]string, 0, height)
	for i := 0; i < height-(bottom-top); i++ {
		rows = append(rows, "")
	}
	for _, ln := range all[top:bottom] {
		text := m.fit(ln.text)
		if ln.item == selected {
			text = m.styles.selected.Render(text)
		}
		rows = append(rows, text)
	}
	return strings.Join(rows, "\n")
}

// lines renders items oldest to newest. A reply takes an extra quote line and multi-line
// bodies take one line each.
func (m *Model) lines(items []chat.Item) []line {
	out := make([]line, 0, len(items))
	for i, it := range items {
		switch it.Kind {
		case chat.KindMarker:
			out = append(out, line{item: i, text: m.styles.muted.Render(markerRule + " " + it.Marker.Label + " " + markerRule)})
		case chat.KindMessage:
			for _, text := range m.messageLines(it.Message) {
				out = append(out, line{item: i, text: text})
			}
		}
	}
	return out
}

func (m *Model) messageLines(msg chat.Message) []string {
	stamp := m.styles.muted.Render(msg.SendTime.In(m.cfg.Location).Format("15:04"))
	name := m.colors.style(msg.FromUser.UID).Render(senderName(msg))

	switch msg.Type {
	case chat.MessageTypeRecalled:
		return []string{stamp + " " + m.styles.muted.Render(senderName(msg)+" recalled a message")}
	case chat.MessageTypeSystem:
		return []string{stamp + " " + m.styles.system.Render(msg.Body)}
	}

	var out []string
	if msg.Reply != nil {
		quote := fmt.Sprintf("      ┌ %s: %s", msg.Reply.Username, msg.Reply.Body)
		out = append(out, m.styles.muted.Render(quote))
	}
	body := msg.Body
	if msg.Type == chat.MessageTypeImage {
		body = "[image] " + body
	}
	for i, part := range strings.Split(body, "\n") {
		if i == 0 {
			out = append(out, stamp+" "+name+": "+m.styles.text.Render(part))
			continue
		}
		out = append(out, "      "+m.styles.text.Render(part))
	}
	return out
}

// selected returns the newest message visible in the view.
func (m *Model) selected() (chat.Message, bool) {
	items := m.store.Items()
	all := m.lines(items)
	bottom := min(max(len(all)-m.offset, 0), len(all))
	top := max(bottom-m.bodyHeight(), 0)
	if bottom <= top {
		return chat.Message{}, false
	}
	idx := selectedItem(items, all[top:bottom])
	if idx < 0 {
		return chat.Message{}, false
	}
	return items[idx].Message, true
}

func selectedItem(items []chat.Item, window []line) int {
	for i := len(window) - 1; i >= 0; i-- {
		if items[window[i].item].IsMessage() {
			return window[i].item
		}
	}
	return -1
}

func (m *Model) fit(s string) string {
	if m.width <= 0 {
		return s
	}
	return lipgloss.NewStyle().MaxWidth(m.width).Render(s)
}

func senderName(msg chat.Message) string {
	if name := strings.TrimSpace(msg.FromUser.Username); name != "" {
		return name
	}
	return fmt.Sprintf("user %d", msg.FromUser.UID)
}
