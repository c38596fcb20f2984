package chat

import "time"

type ItemKind int

const (
	KindMessage ItemKind = iota + 1
	KindMarker
)

// TimeMarker separates two messages that are further apart than the gap threshold.
type TimeMarker struct {
	Time  time.Time
	Label string
}

// Item is one timeline entry: either a Message or a TimeMarker. The zero Item is "absent".
type Item struct {
	Kind    ItemKind
	Message Message
	Marker  TimeMarker
}

func MessageItem(m Message) Item {
	return Item{Kind: KindMessage, Message: m}
}

func MarkerItem(tm TimeMarker) Item {
	return Item{Kind: KindMarker, Marker: tm}
}

func (it Item) IsMessage() bool { return it.Kind == KindMessage }

func (it Item) IsMarker() bool { return it.Kind == KindMarker }

func (it Item) IsZero() bool { return it.Kind == 0 }

// Time returns the send time of a message or the time of a marker.
func (it Item) Time() time.Time {
	switch it.Kind {
	case KindMessage:
		return it.Message.SendTime
	case KindMarker:
		return it.Marker.Time
	}
	return time.Time{}
}

// CloneItems copies items, deep-copying message reply references.
func CloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	for i, it := range items {
		if it.IsMessage() {
			it.Message = it.Message.Clone()
		}
		out[i] = it
	}
	return out
}
