// Package timeblock inserts time markers between messages that are far apart.
package timeblock

import (
	"time"

	"github.com/tOgg1/roomline/internal/chat"
)

// DefaultGap is the send-time distance above which a marker is inserted.
const DefaultGap = 5 * time.Minute

type Annotator struct {
	Gap      time.Duration
	Location *time.Location
	Now      func() time.Time
}

func New() *Annotator {
	return &Annotator{
		Gap:      DefaultGap,
		Location: time.Local,
		Now:      time.Now,
	}
}

// Annotate returns items with a marker before every message whose send time is more than
// Gap after the message preceding it.
//
// With fresh set, items is a page and every element is kept. Without it, items[0] is a
// context item (possibly the zero Item) used only for the gap check and is left out of
// the result.
func (a *Annotator) Annotate(items []chat.Item, fresh bool) []chat.Item {
	if len(items) == 0 {
		return nil
	}
	gap := a.gap()

	out := make([]chat.Item, 0, len(items)+len(items)/4)
	if fresh {
		out = append(out, items[0])
	}
	for i := 1; i < len(items); i++ {
		prev, cur := items[i-1], items[i]
		if prev.IsMessage() && cur.IsMessage() && !prev.Message.SendTime.IsZero() {
			if cur.Message.SendTime.Sub(prev.Message.SendTime) > gap {
				out = append(out, chat.MarkerItem(chat.TimeMarker{
					Time:  cur.Message.SendTime,
					Label: a.Label(cur.Message.SendTime),
				}))
			}
		}
		out = append(out, cur)
	}
	return out
}

// AnnotatePage annotates a freshly fetched page of messages.
func (a *Annotator) AnnotatePage(msgs []chat.Message) []chat.Item {
	items := make([]chat.Item, len(msgs))
	for i := range msgs {
		items[i] = chat.MessageItem(msgs[i])
	}
	return a.Annotate(items, true)
}

// AnnotateNext annotates msg following the context item last.
func (a *Annotator) AnnotateNext(last chat.Item, msg chat.Message) []chat.Item {
	return a.Annotate([]chat.Item{last, chat.MessageItem(msg)}, false)
}

// Label formats t relative to the annotator's clock.
func (a *Annotator) Label(t time.Time) string {
	loc := a.Location
	if loc == nil {
		loc = time.Local
	}
	now := time.Now()
	if a.Now != nil {
		now = a.Now()
	}
	t = t.In(loc)
	now = now.In(loc)

	y, m, d := t.Date()
	ny, nm, nd := now.Date()
	switch {
	case y == ny && m == nm && d == nd:
		return t.Format("15:04")
	case sameDay(t, now.AddDate(0, 0, -1)):
		return "Yesterday " + t.Format("15:04")
	case y == ny:
		return t.Format("Jan 2 15:04")
	}
	return t.Format("2006-01-02 15:04")
}

func (a *Annotator) gap() time.Duration {
	if a.Gap <= 0 {
		return DefaultGap
	}
	return a.Gap
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
