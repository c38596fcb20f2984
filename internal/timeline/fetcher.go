package timeline

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/tOgg1/roomline/internal/chat"
)

// DefaultPageSize is the number of messages requested per older page.
const DefaultPageSize = 20

// ErrNoPage is returned when a fetcher reports success without a page.
var ErrNoPage = errors.New("fetcher returned no page")

// Cursor is an opaque pagination token. The zero value means start of history.
type Cursor string

type PageRequest struct {
	PageSize int
	Cursor   Cursor
	RoomID   int64
}

// Page is one batch of messages, oldest first.
type Page struct {
	List   []chat.Message
	Cursor Cursor
	IsLast bool
}

// PageFetcher loads a page of messages older than the request cursor.
// Any error means "try again later", never end of history.
type PageFetcher interface {
	FetchPage(ctx context.Context, req PageRequest) (*Page, error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, req PageRequest) (*Page, error)

func (f PageFetcherFunc) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	return f(ctx, req)
}

// Annotator inserts time markers. See package timeblock.
type Annotator interface {
	AnnotatePage(msgs []chat.Message) []chat.Item
	AnnotateNext(last chat.Item, msg chat.Message) []chat.Item
}

// Attention is the "new message while you were away" signal, e.g. a flashing title.
type Attention interface {
	Start()
	IsShaking() bool
}

// Visibility reports whether the host surface is in the foreground.
type Visibility interface {
	Visible() bool
}

// VisibilityFlag is a Visibility backed by an atomic flag.
type VisibilityFlag struct {
	hidden atomic.Bool
}

func NewVisibilityFlag(visible bool) *VisibilityFlag {
	f := &VisibilityFlag{}
	f.Set(visible)
	return f
}

func (f *VisibilityFlag) Set(visible bool) {
	f.hidden.Store(!visible)
}

func (f *VisibilityFlag) Visible() bool {
	return !f.hidden.Load()
}

// Scheduler runs fn later, never before it returns.
type Scheduler func(fn func())

func goScheduler(fn func()) {
	go fn()
}
