package roomtui

import (
	"hash/fnv"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Theme holds the ANSI-256 color codes used by the room view.
type Theme struct {
	Name string

	Foreground string
	Muted      string
	Accent     string
	Header     string
	Footer     string
	Selected   string
	System     string
	Error      string

	// SenderPalette colors usernames. A sender keeps its color for the whole session.
	SenderPalette []string
}

var DefaultTheme = Theme{
	Name:          "default",
	Foreground:    "252",
	Muted:         "245",
	Accent:        "75",
	Header:        "111",
	Footer:        "110",
	Selected:      "236",
	System:        "214",
	Error:         "203",
	SenderPalette: []string{"81", "147", "114", "180", "175", "117", "222", "141", "151", "209"},
}

var HighContrastTheme = Theme{
	Name:          "high-contrast",
	Foreground:    "231",
	Muted:         "250",
	Accent:        "51",
	Header:        "226",
	Footer:        "231",
	Selected:      "238",
	System:        "220",
	Error:         "196",
	SenderPalette: []string{"51", "226", "46", "201", "208", "87", "231", "129"},
}

var Themes = map[string]Theme{
	DefaultTheme.Name:      DefaultTheme,
	HighContrastTheme.Name: HighContrastTheme,
}

// ThemeByName falls back to the default theme for unknown names.
func ThemeByName(name string) Theme {
	if theme, ok := Themes[strings.ToLower(strings.TrimSpace(name))]; ok {
		return theme
	}
	return DefaultTheme
}

type styles struct {
	text     lipgloss.Style
	muted    lipgloss.Style
	header   lipgloss.Style
	footer   lipgloss.Style
	selected lipgloss.Style
	system   lipgloss.Style
	err      lipgloss.Style
	accent   lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		text:     lipgloss.NewStyle().Foreground(lipgloss.Color(t.Foreground)),
		muted:    lipgloss.NewStyle().Foreground(lipgloss.Color(t.Muted)),
		header:   lipgloss.NewStyle().Foreground(lipgloss.Color(t.Header)).Bold(true),
		footer:   lipgloss.NewStyle().Foreground(lipgloss.Color(t.Footer)),
		selected: lipgloss.NewStyle().Background(lipgloss.Color(t.Selected)),
		system:   lipgloss.NewStyle().Foreground(lipgloss.Color(t.System)).Italic(true),
		err:      lipgloss.NewStyle().Foreground(lipgloss.Color(t.Error)),
		accent:   lipgloss.NewStyle().Foreground(lipgloss.Color(t.Accent)),
	}
}

// senderColors maps a sender uid to a stable palette entry.
type senderColors struct {
	mu      sync.RWMutex
	palette []string
	cache   map[int64]lipgloss.Style
}

func newSenderColors(palette []string) *senderColors {
	if len(palette) == 0 {
		palette = DefaultTheme.SenderPalette
	}
	return &senderColors{
		palette: append([]string(nil), palette...),
		cache:   make(map[int64]lipgloss.Style),
	}
}

func (c *senderColors) style(uid int64) lipgloss.Style {
	c.mu.RLock()
	if style, ok := c.cache[uid]; ok {
		c.mu.RUnlock()
		return style
	}
	c.mu.RUnlock()

	style := lipgloss.NewStyle().Foreground(lipgloss.Color(c.code(uid))).Bold(true)
	c.mu.Lock()
	c.cache[uid] = style
	c.mu.Unlock()
	return style
}

func (c *senderColors) code(uid int64) string {
	return paletteColor(c.palette, uid)
}

// SenderColor returns the ANSI-256 code the sender uid is drawn with.
func (t Theme) SenderColor(uid int64) string {
	palette := t.SenderPalette
	if len(palette) == 0 {
		palette = DefaultTheme.SenderPalette
	}
	return paletteColor(palette, uid)
}

func paletteColor(palette []string, uid int64) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strconv.FormatInt(uid, 10)))
	return palette[int(h.Sum32()%uint32(len(palette)))]
}
