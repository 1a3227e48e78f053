package ingest

import (
	"context"
	"log/slog"
	"time"

	"heartwatch/internal/config"
	"heartwatch/internal/extract"
	"heartwatch/internal/metrics"
	"heartwatch/internal/model"
)

// Relay is the single path from every source into the engine: filter the
// message, extract its representative value, forward one observation.
type Relay struct {
	authorID string
	channels map[string]struct{}
	out      chan<- model.Observation
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewRelay(cfg config.DiscordConfig, out chan<- model.Observation, logger *slog.Logger, m *metrics.Metrics) *Relay {
	r := &Relay{
		authorID: cfg.BotAuthorID,
		out:      out,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
	if len(cfg.Channels) > 0 {
		r.channels = make(map[string]struct{}, len(cfg.Channels))
		for _, ch := range cfg.Channels {
			r.channels[ch] = struct{}{}
		}
	}
	return r
}

// Accepts reports whether the message comes from the watched bot and channel.
// A message without a channel id passes the channel filter.
func (r *Relay) Accepts(msg model.Message) bool {
	if msg.ID == "" {
		return false
	}
	if r.authorID != "" && msg.AuthorID != r.authorID {
		return false
	}
	if r.channels != nil && msg.ChannelID != "" {
		if _, ok := r.channels[msg.ChannelID]; !ok {
			return false
		}
	}
	return true
}

// Message forwards the message's representative value. It returns false when
// the message is filtered, carries no count, or the engine queue is full.
func (r *Relay) Message(ctx context.Context, source model.Source, msg model.Message) bool {
	if !r.Accepts(msg) {
		return false
	}
	value, ok := extract.Representative(extract.Values(msg))
	if !ok {
		return false
	}
	obs := model.Observation{
		MessageID: msg.ID,
		ChannelID: msg.ChannelID,
		GuildID:   msg.GuildID,
		Value:     value,
		Source:    source,
		SeenAt:    r.now().UTC(),
	}
	if !SendNonBlocking(ctx, r.out, obs, r.logger) {
		r.metrics.Dropped("ingest")
		return false
	}
	return true
}

func SendNonBlocking(ctx context.Context, out chan<- model.Observation, obs model.Observation, logger *slog.Logger) bool {
	select {
	case out <- obs:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("observation channel full, dropping observation", "msg_id", obs.MessageID, "source", obs.Source)
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
