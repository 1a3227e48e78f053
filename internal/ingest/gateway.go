package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"heartwatch/internal/model"
)

// NewSession creates a discordgo session for a bot token. The same session
// serves the gateway feed and the REST poller.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentGuildMessages | discordgo.IntentMessageContent
	return s, nil
}

// StartGateway relays MESSAGE_CREATE and MESSAGE_UPDATE events. Reconnects
// are handled by discordgo. The session is closed when ctx is done.
func StartGateway(ctx context.Context, session *discordgo.Session, relay *Relay, logger *slog.Logger) error {
	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		if logger != nil && r.User != nil {
			logger.Info("gateway ready", "user", r.User.Username, "guilds", len(r.Guilds))
		}
	})
	session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Message != nil {
			relay.Message(ctx, model.SourceGateway, FromDiscord(m.Message))
		}
	})
	session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageUpdate) {
		if m.Message != nil {
			relay.Message(ctx, model.SourceGateway, FromDiscord(m.Message))
		}
	})
	if err := session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	if logger != nil {
		logger.Info("gateway ingest enabled")
	}
	go func() {
		<-ctx.Done()
		if err := session.Close(); err != nil && logger != nil {
			logger.Warn("gateway close error", "err", err)
		}
	}()
	return nil
}
