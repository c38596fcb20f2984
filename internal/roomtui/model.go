// Package roomtui is the terminal client for one chat room: a scrollable timeline that
// pages in older history near the top and follows live pushes at the bottom.
package roomtui

import (
	"context"
	"errors"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/tOgg1/roomline/internal/attention"
	"github.com/tOgg1/roomline/internal/chat"
	"github.com/tOgg1/roomline/internal/timeline"
)

const (
	defaultLoadThreshold = 3
	defaultTitle         = "roomline"
	eventBuffer          = 64
	maxIdleCheckInterval = 5 * time.Second
)

// Subscriber streams live messages of the room. chatapi.PushClient implements it.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan chat.Message, func())
}

// Flasher is the attention signal shown while pushes arrive in the background.
type Flasher interface {
	timeline.Attention
	Stop()
}

type Config struct {
	RoomID  int64
	Fetcher timeline.PageFetcher
	Push    Subscriber

	Annotator     timeline.Annotator
	// Flasher defaults to flashing the window title through the program's renderer.
	Flasher       Flasher
	Scheduler     timeline.Scheduler
	PageSize      int
	LoadingPolicy timeline.LoadingPolicy

	// LoadThreshold is how close to the top, in lines, scrolling must get before
	// older history is requested.
	LoadThreshold int
	// IdleAfter is how long the room may go without keyboard input before it counts as
	// hidden, so pushes start the Flasher. Zero keeps the room visible.
	IdleAfter     time.Duration

	Theme    string
	Title    string
	Location *time.Location
	Now      func() time.Time
	Logger   *zerolog.Logger
}

func (c Config) normalize() (Config, error) {
	if err := chat.ValidateRoomID(c.RoomID); err != nil {
		return c, err
	}
	if c.Fetcher == nil {
		return c, errors.New("page fetcher is required")
	}
	if c.LoadThreshold <= 0 {
		c.LoadThreshold = defaultLoadThreshold
	}
	if c.Title == "" {
		c.Title = defaultTitle
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c, nil
}

type (
	storeChangedMsg   struct{}
	scrollToBottomMsg struct{}
	pushMsg           struct{ msg chat.Message }
	loadDoneMsg       struct{ err error }
	titleMsg          struct{}
	idleCheckMsg      struct{}
)

// Model is the bubbletea model of the room view. It owns the timeline store.
type Model struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc

	store      *timeline.Store
	pending    *timeline.Pending
	visibility *timeline.VisibilityFlag
	flasher    Flasher
	events     chan tea.Msg
	pushCh     <-chan chat.Message
	stopPush   func()

	// titles signals a pending window title; the value itself is read from title.
	titles  chan struct{}
	titleMu sync.Mutex
	title   string

	lastInput time.Time

	width  int
	height int
	// offset is the distance in lines between the bottom of the view and the live edge.
	offset       int
	loadInFlight bool
	lastErr      error

	styles styles
	colors *senderColors
}

func NewModel(cfg Config) (*Model, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	theme := ThemeByName(cfg.Theme)
	ctx, cancel := context.WithCancel(context.Background())
	m := &Model{
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
		visibility: timeline.NewVisibilityFlag(true),
		flasher:    cfg.Flasher,
		events:     make(chan tea.Msg, eventBuffer),
		titles:     make(chan struct{}, 1),
		title:      cfg.Title,
		lastInput:  cfg.Now(),
		styles:     newStyles(theme),
		colors:     newSenderColors(theme.SenderPalette),
	}
	if m.flasher == nil {
		m.flasher = attention.NewTitleFlasher(m.setWindowTitle, cfg.Title)
	}

	opts := []timeline.Option{
		timeline.WithVisibility(m.visibility),
		timeline.WithOnChange(m.storeChanged),
		timeline.WithScrollToBottom(m.requestScrollToBottom),
		timeline.WithPageSize(cfg.PageSize),
		timeline.WithLoadingPolicy(cfg.LoadingPolicy),
		timeline.WithScheduler(cfg.Scheduler),
		timeline.WithAnnotator(cfg.Annotator),
		timeline.WithAttention(m.flasher),
	}
	if cfg.Logger != nil {
		opts = append(opts, timeline.WithLogger(*cfg.Logger))
	}
	m.store, m.pending = timeline.New(ctx, cfg.RoomID, cfg.Fetcher, opts...)
	m.loadInFlight = true

	if cfg.Push != nil {
		m.pushCh, m.stopPush = cfg.Push.Subscribe(ctx)
	}
	return m, nil
}

func Run(cfg Config) error {
	model, err := NewModel(cfg)
	if err != nil {
		return err
	}
	defer model.Close()

	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err = program.Run()
	return err
}

func (m *Model) Close() error {
	if m == nil {
		return nil
	}
	m.cancel()
	if m.stopPush != nil {
		m.stopPush()
	}
	m.flasher.Stop()
	return nil
}

// Store exposes the timeline for callers that drive the model headless.
func (m *Model) Store() *timeline.Store {
	return m.store
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		tea.SetWindowTitle(m.cfg.Title),
		m.initialLoadCmd(),
		m.waitForEventCmd(),
		m.waitForMessageCmd(),
		m.waitForTitleCmd(),
		m.idleCheckCmd(),
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.clampOffset()
		return m, m.maybeLoadOlderCmd()
	case storeChangedMsg:
		m.clampOffset()
		return m, m.waitForEventCmd()
	case scrollToBottomMsg:
		m.jumpToLive()
		return m, m.waitForEventCmd()
	case pushMsg:
		m.receive(typed.msg)
		return m, m.waitForMessageCmd()
	case loadDoneMsg:
		m.loadInFlight = false
		m.lastErr = typed.err
		if typed.err != nil {
			return m, nil
		}
		return m, m.maybeLoadOlderCmd()
	case titleMsg:
		return m, tea.Batch(tea.SetWindowTitle(m.currentTitle()), m.waitForTitleCmd())
	case idleCheckMsg:
		m.checkIdle()
		return m, m.idleCheckCmd()
	case tea.KeyMsg:
		m.markActive()
		return m, m.handleKey(typed)
	}
	return m, nil
}

// markActive records keyboard input: the room is attended again and any flash ends.
func (m *Model) markActive() {
	m.lastInput = m.cfg.Now()
	m.visibility.Set(true)
	if m.flasher.IsShaking() {
		m.flasher.Stop()
	}
}

func (m *Model) checkIdle() {
	if m.cfg.IdleAfter <= 0 || !m.visibility.Visible() {
		return
	}
	if m.cfg.Now().Sub(m.lastInput) >= m.cfg.IdleAfter {
		m.visibility.Set(false)
	}
}

func (m *Model) idleCheckCmd() tea.Cmd {
	if m.cfg.IdleAfter <= 0 {
		return nil
	}
	return tea.Tick(min(m.cfg.IdleAfter, maxIdleCheckInterval), func(time.Time) tea.Msg {
		return idleCheckMsg{}
	})
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q", "ctrl+c":
		return tea.Quit
	case "k", "up":
		return m.scroll(1)
	case "j", "down":
		return m.scroll(-1)
	case "pgup", "ctrl+u":
		return m.scroll(max(1, m.bodyHeight()))
	case "pgdown", "ctrl+d":
		return m.scroll(-max(1, m.bodyHeight()))
	case "G", "end":
		m.jumpToLive()
		return nil
	case "x":
		if sel, ok := m.selected(); ok {
			m.store.FilterUser(sel.FromUser.UID)
			m.clampOffset()
		}
		return nil
	case "r":
		if sel, ok := m.selected(); ok {
			m.store.SetDraftReply(&sel)
		}
		return nil
	case "esc":
		m.store.ClearDraftReply()
		return nil
	}
	return nil
}

// receive appends a pushed message. While scrolled away the view stays on the lines it
// showed before the push.
func (m *Model) receive(msg chat.Message) {
	before := len(m.lines(m.store.Items()))
	m.store.ReceivePush(msg)
	if m.store.ScrolledAwayFromLive() {
		m.offset += len(m.lines(m.store.Items())) - before
		m.clampOffset()
	}
}

func (m *Model) scroll(delta int) tea.Cmd {
	m.offset += delta
	m.clampOffset()
	m.store.SetScrolledAwayFromLive(m.offset > m.bodyHeight())
	return m.maybeLoadOlderCmd()
}

func (m *Model) jumpToLive() {
	m.offset = 0
	m.store.SetScrolledAwayFromLive(false)
}

func (m *Model) clampOffset() {
	limit := len(m.lines(m.store.Items())) - m.bodyHeight()
	if limit < 0 {
		limit = 0
	}
	if m.offset > limit {
		m.offset = limit
	}
	if m.offset < 0 {
		m.offset = 0
	}
}

// maybeLoadOlderCmd requests the preceding page once the top of the view is within
// LoadThreshold lines of the oldest loaded line.
func (m *Model) maybeLoadOlderCmd() tea.Cmd {
	if m.loadInFlight || m.store.IsLast() || m.bodyHeight() <= 0 {
		return nil
	}
	top := len(m.lines(m.store.Items())) - m.offset - m.bodyHeight()
	if top > m.cfg.LoadThreshold {
		return nil
	}
	m.loadInFlight = true
	ctx := m.ctx
	store := m.store
	return func() tea.Msg {
		return loadDoneMsg{err: store.LoadMore(ctx)}
	}
}

func (m *Model) initialLoadCmd() tea.Cmd {
	ctx := m.ctx
	pending := m.pending
	return func() tea.Msg {
		return loadDoneMsg{err: pending.Wait(ctx)}
	}
}

func (m *Model) waitForEventCmd() tea.Cmd {
	ctx := m.ctx
	events := m.events
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			return ev
		}
	}
}

func (m *Model) waitForMessageCmd() tea.Cmd {
	if m.pushCh == nil {
		return nil
	}
	ch := m.pushCh
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return pushMsg{msg: msg}
	}
}

func (m *Model) waitForTitleCmd() tea.Cmd {
	ctx := m.ctx
	titles := m.titles
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case <-titles:
			return titleMsg{}
		}
	}
}

// setWindowTitle is the flasher's TitleSetter. The write itself happens in Update via
// tea.SetWindowTitle; repeated changes before then collapse into the latest title.
func (m *Model) setWindowTitle(title string) {
	m.titleMu.Lock()
	m.title = title
	m.titleMu.Unlock()
	select {
	case m.titles <- struct{}{}:
	default:
	}
}

func (m *Model) currentTitle() string {
	m.titleMu.Lock()
	defer m.titleMu.Unlock()
	return m.title
}

// storeChanged coalesces redraw requests: one queued event is enough.
func (m *Model) storeChanged() {
	select {
	case m.events <- storeChangedMsg{}:
	default:
	}
}

func (m *Model) requestScrollToBottom() {
	select {
	case m.events <- scrollToBottomMsg{}:
	case <-m.ctx.Done():
	}
}

func (m *Model) bodyHeight() int {
	h := m.height - 2 // header + footer
	if h < 0 {
		return 0
	}
	return h
}
