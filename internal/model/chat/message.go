package chat

import "fmt"

// Role names accepted in caller-supplied history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one prior turn supplied by the caller. The backend never stores it.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Validate rejects roles the model API would not accept in history.
func (m Message) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant:
		return nil
	default:
		return fmt.Errorf("unsupported history role %q", m.Role)
	}
}
