package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// DiscordConfig configures the Discord channel.
type DiscordConfig struct {
	Token string
}

// DiscordChannel answers customers over Discord. It responds to direct
// messages and to guild messages that mention the bot; everything else in a
// guild is ignored so the bot does not answer conversations it was not
// addressed in.
type DiscordChannel struct {
	session *discordgo.Session
	respond Responder
}

// NewDiscord builds the channel.
func NewDiscord(cfg DiscordConfig, respond Responder) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent
	return &DiscordChannel{session: session, respond: respond}, nil
}

func (c *DiscordChannel) Name() string { return "discord" }

// Start opens the gateway connection.
func (c *DiscordChannel) Start(ctx context.Context) error {
	c.session.AddHandler(c.handleMessage)
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	slog.Info("discord channel started", "user_id", c.session.State.User.ID)
	return nil
}

// Stop closes the gateway connection.
func (c *DiscordChannel) Stop() {
	if err := c.session.Close(); err != nil {
		slog.Warn("failed to close discord session", "error", err)
	}
}

func (c *DiscordChannel) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if m.Author.ID == s.State.User.ID {
		return
	}

	isDM := m.GuildID == ""
	mentioned := mentionsUser(m.Mentions, s.State.User.ID)
	if !isDM && !mentioned {
		return
	}

	text := stripMention(m.Content, s.State.User.ID)
	if text == "" {
		return
	}

	sessionID := SessionID("discord", m.ChannelID, m.Author.ID)
	reply := c.respond(context.Background(), sessionID, text, m.Author.Username)
	if reply == "" {
		return
	}
	if _, err := s.ChannelMessageSend(m.ChannelID, reply); err != nil {
		slog.Warn("failed to send discord reply", "channel", m.ChannelID, "error", err)
	}
}

func mentionsUser(mentions []*discordgo.User, userID string) bool {
	for _, u := range mentions {
		if u != nil && u.ID == userID {
			return true
		}
	}
	return false
}

// stripMention removes the bot's mention tokens so the engine sees only the
// customer's words.
func stripMention(content, userID string) string {
	content = strings.ReplaceAll(content, "<@"+userID+">", "")
	content = strings.ReplaceAll(content, "<@!"+userID+">", "")
	return strings.TrimSpace(content)
}
