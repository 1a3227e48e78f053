package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"heartwatch/internal/config"
	"heartwatch/internal/model"
)

// MessageLister is the slice of *discordgo.Session the poller needs.
type MessageLister interface {
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
}

// Poller re-reads the newest messages of each channel on an interval. It
// catches values the gateway missed during disconnects.
type Poller struct {
	lister   MessageLister
	relay    *Relay
	channels []string
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

func NewPoller(lister MessageLister, relay *Relay, discord config.DiscordConfig, poll config.PollConfig, logger *slog.Logger) *Poller {
	return &Poller{
		lister:   lister,
		relay:    relay,
		channels: discord.Channels,
		interval: poll.Interval,
		batch:    poll.BatchSize,
		logger:   logger,
	}
}

func (p *Poller) Start(ctx context.Context) {
	if p.logger != nil {
		p.logger.Info("poll ingest enabled", "interval", p.interval.String(), "batch_size", p.batch, "channels", len(p.channels))
	}
	go func() {
		p.PollOnce(ctx)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.PollOnce(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// PollOnce fetches every channel once and returns how many observations were
// forwarded.
func (p *Poller) PollOnce(ctx context.Context) int {
	forwarded := 0
	for _, ch := range p.channels {
		if ctx.Err() != nil {
			return forwarded
		}
		msgs, err := p.lister.ChannelMessages(ch, p.batch, "", "", "", discordgo.WithContext(ctx))
		if err != nil {
			if p.logger != nil && ctx.Err() == nil {
				p.logger.Warn("poll channel failed", "channel_id", ch, "err", err)
			}
			continue
		}
		// Discord returns newest first; replay oldest first.
		for i := len(msgs) - 1; i >= 0; i-- {
			msg := FromDiscord(msgs[i])
			if msg.ChannelID == "" {
				msg.ChannelID = ch
			}
			if p.relay.Message(ctx, model.SourcePoll, msg) {
				forwarded++
			}
		}
	}
	return forwarded
}
