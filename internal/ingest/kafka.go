package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"heartwatch/internal/config"
	"heartwatch/internal/model"
)

// StartKafka consumes JSON message snapshots, one message or an array per
// record.
func StartKafka(ctx context.Context, cfg config.KafkaConfig, relay *Relay, logger *slog.Logger) {
	if !cfg.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", cfg.Brokers, "topic", cfg.Topic, "group_id", cfg.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
	go func() {
		defer reader.Close()
		backoff := 200 * time.Millisecond
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("kafka read error", "err", err)
				}
				if !BackoffSleep(ctx, backoff) {
					return
				}
				if backoff < 10*time.Second {
					backoff *= 2
				}
				continue
			}
			backoff = 200 * time.Millisecond
			msgs, err := DecodeMessages(m.Value)
			if err != nil {
				if logger != nil {
					logger.Debug("kafka decode error", "offset", m.Offset, "err", err)
				}
				continue
			}
			for _, msg := range msgs {
				relay.Message(ctx, model.SourceKafka, msg)
			}
		}
	}()
}
