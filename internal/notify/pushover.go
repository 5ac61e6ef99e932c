package notify

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/gregdel/pushover"
)

const (
	pushoverTitle      = "Digital Agent - Message"
	pushoverMaxMessage = 1024
)

// PushoverConfig holds the application token and user key.
type PushoverConfig struct {
	Token string
	User  string
}

// Pushover posts messages to the Pushover API.
type Pushover struct {
	app       *pushover.Pushover
	recipient *pushover.Recipient
}

// NewPushover validates credentials.
func NewPushover(cfg PushoverConfig) (*Pushover, error) {
	if cfg.Token == "" || cfg.User == "" {
		return nil, fmt.Errorf("pushover: token and user are required")
	}
	return &Pushover{app: pushover.New(cfg.Token), recipient: pushover.NewRecipient(cfg.User)}, nil
}

// Notify sends text as a Pushover message, truncated to the API byte limit.
func (p *Pushover) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("pushover: %w", err)
	}
	if len(text) > pushoverMaxMessage {
		cut := pushoverMaxMessage - len("...")
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	if _, err := p.app.SendMessage(pushover.NewMessageWithTitle(text, pushoverTitle), p.recipient); err != nil {
		return fmt.Errorf("pushover: send: %w", err)
	}
	return nil
}
