// Package chat holds the room message model shared by the client and the room server.
package chat

import (
	"encoding/json"
	"time"
)

type MessageType int

const (
	MessageTypeText     MessageType = 1
	MessageTypeRecalled MessageType = 2
	MessageTypeImage    MessageType = 3
	MessageTypeSystem   MessageType = 4
)

const MaxBodyLength = 2000

// User identifies the sender of a message.
type User struct {
	UID      int64  `json:"uid"`
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// ReplyRef is the quoted parent of a reply.
type ReplyRef struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
	Body     string `json:"body,omitempty"`
}

type Message struct {
	ID       int64
	RoomID   int64
	FromUser User
	Body     string
	Type     MessageType
	Reply    *ReplyRef
	SendTime time.Time
}

type wireMessage struct {
	ID       int64       `json:"id"`
	RoomID   int64       `json:"roomId"`
	FromUser User        `json:"fromUser"`
	Body     string      `json:"body"`
	Type     MessageType `json:"type"`
	Reply    *ReplyRef   `json:"reply,omitempty"`
	SendTime int64       `json:"sendTime"`
}

// MarshalJSON encodes sendTime as epoch milliseconds.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		ID:       m.ID,
		RoomID:   m.RoomID,
		FromUser: m.FromUser,
		Body:     m.Body,
		Type:     m.Type,
		Reply:    m.Reply,
	}
	if !m.SendTime.IsZero() {
		w.SendTime = m.SendTime.UnixMilli()
	}
	return json.Marshal(w)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = Message{
		ID:       w.ID,
		RoomID:   w.RoomID,
		FromUser: w.FromUser,
		Body:     w.Body,
		Type:     w.Type,
		Reply:    w.Reply,
	}
	if w.SendTime > 0 {
		m.SendTime = time.UnixMilli(w.SendTime).UTC()
	}
	return nil
}

// Clone returns a copy that shares no pointers with m.
func (m Message) Clone() Message {
	out := m
	if m.Reply != nil {
		reply := *m.Reply
		out.Reply = &reply
	}
	return out
}

// Preview returns the first line of the body, or a placeholder for non-text messages.
func (m Message) Preview() string {
	switch m.Type {
	case MessageTypeRecalled:
		return "(message recalled)"
	case MessageTypeImage:
		return "[image]"
	}
	for i := 0; i < len(m.Body); i++ {
		if m.Body[i] == '\n' {
			return m.Body[:i]
		}
	}
	return m.Body
}
