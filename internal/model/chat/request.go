package chat

import (
	"errors"
	"strings"
)

// ErrEmptyMessage is returned when a request carries no user text.
var ErrEmptyMessage = errors.New("message is required")

// Request is the wire shape of a chat turn.
type Request struct {
	Message   string    `json:"message"`
	History   []Message `json:"history"`
	SessionID string    `json:"sessionId,omitempty"`
}

// Response is the wire shape of a chat reply.
type Response struct {
	Reply     string `json:"reply"`
	SessionID string `json:"sessionId"`
}

// Validate checks the message and every history entry.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return ErrEmptyMessage
	}
	for _, m := range r.History {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}
