package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"heartwatch/internal/config"
	"heartwatch/internal/metrics"
	"heartwatch/internal/model"
)

// Dispatcher accepts fired alerts for delivery. Enqueue must not block.
type Dispatcher interface {
	Enqueue(alert model.Alert) bool
}

// Engine decides which tiers fire for each observation. All state lives in a
// single store guarded by mu; observations for the same message are applied
// in the order Observe is called.
type Engine struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	dispatch Dispatcher
	tiers    []Tier
	window   time.Duration
	mu       sync.Mutex
	store    *stateStore
	now      func() time.Time
}

// StateView is a read-only copy of one store entry.
type StateView struct {
	MessageID  string               `json:"message_id"`
	LastValue  int64                `json:"last_value"`
	InsertedAt time.Time            `json:"inserted_at"`
	Fired      map[string]time.Time `json:"fired,omitempty"`
}

func NewEngine(cfg config.EngineConfig, logger *slog.Logger, m *metrics.Metrics, dispatch Dispatcher) *Engine {
	return &Engine{
		logger:   logger,
		metrics:  m,
		dispatch: dispatch,
		tiers:    CompileTiers(cfg.Tiers),
		window:   cfg.ExpiryWindow,
		store:    newStateStore(cfg.Capacity),
		now:      time.Now,
	}
}

func (e *Engine) Tiers() []Tier {
	out := make([]Tier, len(e.tiers))
	copy(out, e.tiers)
	return out
}

// Start applies observations from in one at a time until ctx is done.
func (e *Engine) Start(ctx context.Context, in <-chan model.Observation) {
	go func() {
		for {
			select {
			case obs := <-in:
				e.Observe(obs)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// StartSweeper removes expired entries every interval. It does nothing when
// no expiry window is configured.
func (e *Engine) StartSweeper(ctx context.Context, interval time.Duration) {
	if e.window <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.Sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Observe records one observation and returns the alerts it fired. The
// returned alerts have already been handed to the dispatcher.
func (e *Engine) Observe(obs model.Observation) []model.Alert {
	if obs.MessageID == "" || obs.Value < 0 {
		return nil
	}
	e.metrics.Observation(string(obs.Source))
	now := e.now().UTC()

	e.mu.Lock()
	fired := e.evaluate(obs, now)
	size := e.store.len()
	e.mu.Unlock()

	e.metrics.StateSize(size)
	for i := range fired {
		alert := &fired[i]
		e.metrics.Fired(alert.Tier)
		if e.logger != nil {
			e.logger.Info("tier fired",
				"msg_id", alert.MessageID,
				"value", alert.Value,
				"tier", alert.Tier,
				"audience", alert.Audience,
				"source", alert.Source,
			)
		}
		if e.dispatch == nil {
			continue
		}
		if !e.dispatch.Enqueue(*alert) {
			alert.Outcome = model.OutcomeDropped
			if e.logger != nil {
				e.logger.Warn("notification queue full, alert not sent", "msg_id", alert.MessageID, "tier", alert.Tier)
			}
		}
	}
	return fired
}

// evaluate runs with mu held.
func (e *Engine) evaluate(obs model.Observation, now time.Time) []model.Alert {
	st, ok := e.store.get(obs.MessageID)
	if !ok {
		st = &alertState{
			lastValue:  obs.Value,
			fired:      make([]time.Time, len(e.tiers)),
			insertedAt: now,
			channelID:  obs.ChannelID,
			guildID:    obs.GuildID,
		}
		evicted, err := e.store.put(obs.MessageID, st)
		if err != nil {
			if e.logger != nil {
				e.logger.Error("alert state insert rejected, dropping observation", "msg_id", obs.MessageID, "err", err)
			}
			return nil
		}
		if len(evicted) > 0 {
			e.metrics.Evicted("capacity", len(evicted))
			if e.logger != nil {
				e.logger.Debug("alert state evicted", "reason", "capacity", "msg_ids", evicted)
			}
		}
	} else {
		if st.lastValue == obs.Value {
			e.metrics.Unchanged()
			return nil
		}
		st.lastValue = obs.Value
		if st.channelID == "" {
			st.channelID = obs.ChannelID
		}
		if st.guildID == "" {
			st.guildID = obs.GuildID
		}
	}

	var out []model.Alert
	for i, tier := range e.tiers {
		if !st.fired[i].IsZero() || !tier.Matches(obs.Value) {
			continue
		}
		st.fired[i] = now
		out = append(out, model.Alert{
			ID:        uuid.NewString(),
			Timestamp: now,
			MessageID: obs.MessageID,
			ChannelID: st.channelID,
			GuildID:   st.guildID,
			Tier:      tier.Name,
			Audience:  tier.Audience,
			Priority:  tier.Priority,
			Value:     obs.Value,
			Source:    obs.Source,
			Outcome:   model.OutcomePending,
		})
	}
	return out
}

// Sweep drops entries idle for longer than the expiry window and returns how
// many were removed.
func (e *Engine) Sweep() int {
	if e.window <= 0 {
		return 0
	}
	now := e.now().UTC()
	e.mu.Lock()
	removed := e.store.sweepExpired(now, e.window)
	size := e.store.len()
	e.mu.Unlock()

	e.metrics.Evicted("expiry", len(removed))
	e.metrics.StateSize(size)
	if len(removed) > 0 && e.logger != nil {
		e.logger.Debug("alert state expired", "count", len(removed), "remaining", size)
	}
	return len(removed)
}

func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.len()
}

// Snapshot copies the store, oldest entry first.
func (e *Engine) Snapshot() []StateView {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]StateView, 0, e.store.len())
	e.store.each(func(id string, st *alertState) {
		view := StateView{MessageID: id, LastValue: st.lastValue, InsertedAt: st.insertedAt}
		for i, ts := range st.fired {
			if ts.IsZero() {
				continue
			}
			if view.Fired == nil {
				view.Fired = make(map[string]time.Time)
			}
			view.Fired[e.tiers[i].Name] = ts
		}
		out = append(out, view)
	})
	return out
}

func (e *Engine) Reset() {
	e.mu.Lock()
	e.store.clear()
	e.mu.Unlock()
	e.metrics.StateSize(0)
}
