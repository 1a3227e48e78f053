// Package storage keeps an append-only audit log of notification attempts.
// The engine never reads it back; alert state is memory-only.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"heartwatch/internal/config"
	"heartwatch/internal/model"
)

type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveAlert(ctx context.Context, alert model.Alert) error
	ListAlerts(ctx context.Context, limit int) ([]model.Alert, error)
}

// textTimeLayout is fixed width so text timestamps sort chronologically.
const textTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var ErrUnsupportedDriver = errors.New("unsupported storage driver")

func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
}

type baseStore struct {
	db *sql.DB
	// placeholder renders the n-th (1-based) bind parameter.
	placeholder func(n int) string
	textTime    bool
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *baseStore) SaveAlert(ctx context.Context, alert model.Alert) error {
	if b.db == nil {
		return nil
	}
	ph := make([]string, 12)
	for i := range ph {
		ph[i] = b.placeholder(i + 1)
	}
	query := `INSERT INTO alerts (id, ts, message_id, channel_id, guild_id, tier, audience, priority, value, source, outcome, error)
		VALUES (` + strings.Join(ph, ", ") + `)`
	_, err := b.db.ExecContext(ctx, query,
		alert.ID,
		b.encodeTime(alert.Timestamp),
		alert.MessageID,
		alert.ChannelID,
		alert.GuildID,
		alert.Tier,
		alert.Audience,
		alert.Priority,
		alert.Value,
		string(alert.Source),
		string(alert.Outcome),
		alert.Error,
	)
	if err != nil {
		return fmt.Errorf("save alert %s: %w", alert.ID, err)
	}
	return nil
}

func (b *baseStore) ListAlerts(ctx context.Context, limit int) ([]model.Alert, error) {
	if b.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, ts, message_id, channel_id, guild_id, tier, audience, priority, value, source, outcome, error
		FROM alerts ORDER BY ts DESC LIMIT `+b.placeholder(1), limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()
	out := make([]model.Alert, 0, limit)
	for rows.Next() {
		var (
			a       model.Alert
			ts      any
			source  string
			outcome string
		)
		if err := rows.Scan(&a.ID, &ts, &a.MessageID, &a.ChannelID, &a.GuildID, &a.Tier, &a.Audience, &a.Priority, &a.Value, &source, &outcome, &a.Error); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Timestamp, err = decodeTime(ts)
		if err != nil {
			return nil, err
		}
		a.Source = model.Source(source)
		a.Outcome = model.Outcome(outcome)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (b *baseStore) encodeTime(ts time.Time) any {
	if b.textTime {
		return ts.UTC().Format(textTimeLayout)
	}
	return ts.UTC()
}

func decodeTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return time.Parse(time.RFC3339Nano, t)
	case []byte:
		return time.Parse(time.RFC3339Nano, string(t))
	case nil:
		return time.Time{}, nil
	}
	return time.Time{}, fmt.Errorf("unexpected timestamp type %T", v)
}

func questionMark(int) string { return "?" }

func dollar(n int) string { return fmt.Sprintf("$%d", n) }
