package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// channelSender abstracts the discordgo.Session method we use, enabling test fakes.
type channelSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts messages to one Discord channel through the REST API.
type Discord struct {
	sess      channelSender
	channelID string
}

// NewDiscord creates a bot session. No gateway connection is opened.
func NewDiscord(botToken, channelID string) (*Discord, error) {
	if botToken == "" || channelID == "" {
		return nil, fmt.Errorf("discord: bot token and channel id are required")
	}
	dg, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	return &Discord{sess: dg, channelID: channelID}, nil
}

// discordMaxContent is the API limit for a message body.
const discordMaxContent = 2000

// Notify sends text to the configured channel, truncated to the API limit.
func (d *Discord) Notify(ctx context.Context, text string) error {
	content := text
	if r := []rune(content); len(r) > discordMaxContent {
		content = string(r[:discordMaxContent-1]) + "…"
	}
	if _, err := d.sess.ChannelMessageSend(d.channelID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}
