package chat

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidMessage = errors.New("invalid message")
	ErrInvalidRoom    = errors.New("invalid room id")
	ErrInvalidUser    = errors.New("invalid user id")
	ErrEmptyBody      = errors.New("message body is empty")
	ErrBodyTooLong    = errors.New("message body too long")
)

// ValidateRoomID rejects non-positive room ids.
func ValidateRoomID(id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRoom, id)
	}
	return nil
}

// NormalizeBody trims surrounding whitespace and enforces the length limit.
func NormalizeBody(body string) (string, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return "", ErrEmptyBody
	}
	if utf8.RuneCountInString(trimmed) > MaxBodyLength {
		return "", fmt.Errorf("%w: exceeds %d chars", ErrBodyTooLong, MaxBodyLength)
	}
	return trimmed, nil
}

// Validate checks the fields a message needs before it is stored or rendered.
func (m Message) Validate() error {
	if err := ValidateRoomID(m.RoomID); err != nil {
		return err
	}
	if m.FromUser.UID <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidUser, m.FromUser.UID)
	}
	if m.SendTime.IsZero() {
		return fmt.Errorf("%w: missing send time", ErrInvalidMessage)
	}
	switch m.Type {
	case MessageTypeText, MessageTypeSystem:
		if _, err := NormalizeBody(m.Body); err != nil {
			return err
		}
	case MessageTypeRecalled, MessageTypeImage:
	default:
		return fmt.Errorf("%w: unknown type %d", ErrInvalidMessage, m.Type)
	}
	return nil
}
