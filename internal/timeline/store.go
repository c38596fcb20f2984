// Package timeline keeps the client-side message timeline of one chat room.
package timeline

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/tOgg1/roomline/internal/chat"
	"github.com/tOgg1/roomline/internal/logging"
	"github.com/tOgg1/roomline/internal/timeblock"
)

const (
	loadOlderKey = "older"

	// DefaultFetchTimeout bounds a shared page fetch. The fetch outlives the caller that
	// started it so other callers waiting on it are not cut short.
	DefaultFetchTimeout = 30 * time.Second
)

// State is a point-in-time copy of the store.
type State struct {
	RoomID               int64
	Items                []chat.Item
	Cursor               Cursor
	IsLast               bool
	Loading              bool
	ScrolledAwayFromLive bool
	NewMessageCount      int
	DraftReply           *chat.Message
}

// Store owns the ordered item list, pagination cursor and notification counters of a
// room timeline. Older pages are prepended by LoadOlder and live pushes appended by
// ReceivePush.
type Store struct {
	roomID     int64
	fetcher    PageFetcher
	annotator  Annotator
	attention  Attention
	visibility Visibility
	schedule   Scheduler
	pageSize   int
	timeout    time.Duration
	policy     LoadingPolicy
	logger     zerolog.Logger
	onChange   func()
	loads      singleflight.Group

	mu             sync.Mutex
	items          []chat.Item
	cursor         Cursor
	isLast         bool
	loading        bool
	scrolledAway   bool
	newCount       int
	draft          *chat.Message
	scrollToBottom func()
}

// New builds a store for roomID and starts loading the newest page. The returned
// Pending completes when that first load finishes.
func New(ctx context.Context, roomID int64, fetcher PageFetcher, opts ...Option) (*Store, *Pending) {
	s := &Store{
		roomID:    roomID,
		fetcher:   fetcher,
		annotator: timeblock.New(),
		schedule:  goScheduler,
		pageSize:  DefaultPageSize,
		timeout:   DefaultFetchTimeout,
		policy:    HoldLoading,
		logger:    logging.WithRoom(roomID),
		loading:   true,
	}
	for _, opt := range opts {
		opt(s)
	}
	pending := startPending(func() error {
		return s.LoadOlder(ctx)
	})
	return s, pending
}

// LoadOlder fetches the page preceding the cursor and prepends it. It is a no-op once
// the start of history has been reached. Concurrent calls share one fetch; each caller
// stops waiting when its own ctx ends, while the fetch runs on until it completes or
// the store's fetch timeout passes.
func (s *Store) LoadOlder(ctx context.Context) error {
	if s.IsLast() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ch := s.loads.DoChan(loadOlderKey, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return nil, s.loadOlder(fetchCtx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LoadMore is the pagination entry point for scroll-near-top triggers.
func (s *Store) LoadMore(ctx context.Context) error {
	if s.IsLast() {
		return nil
	}
	return s.LoadOlder(ctx)
}

func (s *Store) loadOlder(ctx context.Context) error {
	s.mu.Lock()
	if s.isLast {
		s.mu.Unlock()
		return nil
	}
	req := PageRequest{PageSize: s.pageSize, Cursor: s.cursor, RoomID: s.roomID}
	s.mu.Unlock()

	page, err := s.fetcher.FetchPage(ctx, req)
	if err == nil && page == nil {
		err = ErrNoPage
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("cursor", string(req.Cursor)).Msg("older page fetch failed")
		if s.policy == ReleaseLoading {
			s.mu.Lock()
			changed := s.loading
			s.loading = false
			s.mu.Unlock()
			if changed {
				s.notify()
			}
		}
		return fmt.Errorf("load older page: %w", err)
	}

	annotated := s.annotator.AnnotatePage(page.List)

	s.mu.Lock()
	s.items = prependItems(annotated, s.items)
	s.cursor = page.Cursor
	s.isLast = page.IsLast
	s.loading = false
	total := len(s.items)
	s.mu.Unlock()

	s.logger.Debug().
		Int("fetched", len(page.List)).
		Int("items", total).
		Str("cursor", string(page.Cursor)).
		Bool("is_last", page.IsLast).
		Msg("older page merged")
	s.notify()
	return nil
}

// ReceivePush appends msg at the live edge. While the viewer is scrolled away the
// new-message counter is bumped, otherwise the scroll-to-bottom action is scheduled.
func (s *Store) ReceivePush(msg chat.Message) {
	s.mu.Lock()
	var last chat.Item
	if n := len(s.items); n > 0 {
		last = s.items[n-1]
	}
	s.items = appendItems(s.items, s.annotator.AnnotateNext(last, msg))
	away := s.scrolledAway
	if away {
		s.newCount++
	}
	s.mu.Unlock()

	s.signalAttention()
	s.notify()

	if away {
		return
	}
	s.schedule(s.runScrollToBottom)
}

// runScrollToBottom invokes whichever scroll action is registered when it runs.
func (s *Store) runScrollToBottom() {
	s.mu.Lock()
	action := s.scrollToBottom
	s.mu.Unlock()
	if action != nil {
		action()
	}
}

func (s *Store) signalAttention() {
	if s.attention == nil || s.visibility == nil {
		return
	}
	if s.visibility.Visible() || s.attention.IsShaking() {
		return
	}
	s.attention.Start()
}

// FilterUser drops every message sent by uid and returns how many were removed. Non-integer
// ids are ignored. Time markers are kept even when they end up adjacent.
func (s *Store) FilterUser(uid any) int {
	id, ok := integerUID(uid)
	if !ok {
		return 0
	}

	s.mu.Lock()
	kept := make([]chat.Item, 0, len(s.items))
	removed := 0
	for _, it := range s.items {
		if it.IsMessage() && it.Message.FromUser.UID == id {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	s.items = kept
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Debug().Int64("uid", id).Int("removed", removed).Msg("filtered sender")
		s.notify()
	}
	return removed
}

// SetScrolledAwayFromLive records the viewer's distance from the live edge. Returning to
// the live edge clears the new-message counter.
func (s *Store) SetScrolledAwayFromLive(away bool) {
	s.mu.Lock()
	prev := s.scrolledAway
	s.scrolledAway = away
	if prev && !away {
		s.newCount = 0
	}
	s.mu.Unlock()

	if prev != away {
		s.notify()
	}
}

func (s *Store) SetScrollToBottom(fn func()) {
	s.mu.Lock()
	s.scrollToBottom = fn
	s.mu.Unlock()
}

// SetDraftReply replaces the message being replied to. A nil msg clears it.
func (s *Store) SetDraftReply(msg *chat.Message) {
	s.mu.Lock()
	if msg == nil {
		s.draft = nil
	} else {
		clone := msg.Clone()
		s.draft = &clone
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) ClearDraftReply() {
	s.SetDraftReply(nil)
}

func (s *Store) RoomID() int64 {
	return s.roomID
}

func (s *Store) Items() []chat.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return chat.CloneItems(s.items)
}

func (s *Store) Cursor() Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *Store) IsLast() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isLast
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Store) ScrolledAwayFromLive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scrolledAway
}

func (s *Store) NewMessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newCount
}

func (s *Store) DraftReply() *chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft == nil {
		return nil
	}
	clone := s.draft.Clone()
	return &clone
}

func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		RoomID:               s.roomID,
		Items:                chat.CloneItems(s.items),
		Cursor:               s.cursor,
		IsLast:               s.isLast,
		Loading:              s.loading,
		ScrolledAwayFromLive: s.scrolledAway,
		NewMessageCount:      s.newCount,
	}
	if s.draft != nil {
		clone := s.draft.Clone()
		st.DraftReply = &clone
	}
	return st
}

func (s *Store) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

// prependItems puts older in front of current. When both sides meet with a marker the
// earlier one is dropped, so the seam keeps the marker that labels the message after
// it. timeblock never produces such a seam; custom Annotators can.
func prependItems(older, current []chat.Item) []chat.Item {
	if len(older) > 0 && len(current) > 0 && older[len(older)-1].IsMarker() && current[0].IsMarker() {
		older = older[:len(older)-1]
	}
	out := make([]chat.Item, 0, len(older)+len(current))
	out = append(out, older...)
	return append(out, current...)
}

// appendItems is prependItems for the live edge.
func appendItems(current, newer []chat.Item) []chat.Item {
	if len(current) > 0 && len(newer) > 0 && current[len(current)-1].IsMarker() && newer[0].IsMarker() {
		current = current[:len(current)-1]
	}
	return append(current, newer...)
}

func integerUID(uid any) (int64, bool) {
	switch v := uid.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	}
	return 0, false
}
