// Package notify delivers fired alerts to push endpoints, one at a time and no
// faster than the configured gap.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"heartwatch/internal/alerts"
	"heartwatch/internal/config"
	"heartwatch/internal/metrics"
	"heartwatch/internal/model"
	"heartwatch/internal/storage"
)

// Sender performs one delivery attempt.
type Sender interface {
	Name() string
	Send(ctx context.Context, alert model.Alert) error
}

func NewSender(cfg config.NotifyConfig, logger *slog.Logger) (Sender, error) {
	switch strings.ToLower(cfg.Provider) {
	case "ntfy":
		return NewNtfy(cfg.BaseURL, cfg.Token, cfg.Timeout), nil
	case "webhook":
		return NewWebhook(cfg.BaseURL, cfg.Token, cfg.Timeout), nil
	case "log":
		return NewLogSender(logger), nil
	}
	return nil, fmt.Errorf("unsupported notify provider %q", cfg.Provider)
}

type Dispatcher struct {
	sender  Sender
	limiter *rate.Limiter
	queue   chan model.Alert
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	history *alerts.Store
	store   storage.Store
	audit   chan model.Alert
}

// NewDispatcher builds a dispatcher. history, store and m may be nil; a nil
// store disables the audit writer.
func NewDispatcher(cfg config.NotifyConfig, sender Sender, logger *slog.Logger, m *metrics.Metrics, history *alerts.Store, store storage.Store) *Dispatcher {
	limit := rate.Inf
	if cfg.MinGap > 0 {
		limit = rate.Every(cfg.MinGap)
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var audit chan model.Alert
	if store != nil {
		audit = make(chan model.Alert, size)
	}
	return &Dispatcher{
		sender:  sender,
		limiter: rate.NewLimiter(limit, 1),
		queue:   make(chan model.Alert, size),
		timeout: timeout,
		logger:  logger,
		metrics: m,
		history: history,
		store:   store,
		audit:   audit,
	}
}

// Enqueue hands an alert to the worker without blocking. A full queue drops
// the alert and records it as dropped.
func (d *Dispatcher) Enqueue(alert model.Alert) bool {
	select {
	case d.queue <- alert:
		return true
	default:
		d.metrics.Dropped("notify")
		alert.Outcome = model.OutcomeDropped
		alert.Error = "notification queue full"
		d.record(alert)
		return false
	}
}

// Run delivers queued alerts until ctx is done. It returns only after the
// audit log writer has flushed, so the store can be closed afterwards.
func (d *Dispatcher) Run(ctx context.Context) {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	if d.audit != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.writeAudit(stop)
		}()
	}
	defer func() {
		close(stop)
		wg.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			if n := len(d.queue); n > 0 && d.logger != nil {
				d.logger.Warn("dispatcher stopped with pending alerts", "pending", n)
			}
			return
		case alert := <-d.queue:
			d.deliver(ctx, alert)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, alert model.Alert) {
	if err := d.limiter.Wait(ctx); err != nil {
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	err := d.sender.Send(sendCtx, alert)
	cancel()
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}
		alert.Outcome = model.OutcomeFailed
		alert.Error = err.Error()
		if d.logger != nil {
			d.logger.Warn("notification failed",
				"msg_id", alert.MessageID,
				"tier", alert.Tier,
				"audience", alert.Audience,
				"sender", d.sender.Name(),
				"err", err,
			)
		}
	} else {
		alert.Outcome = model.OutcomeDelivered
		if d.logger != nil {
			d.logger.Info("notification sent",
				"msg_id", alert.MessageID,
				"tier", alert.Tier,
				"audience", alert.Audience,
				"value", alert.Value,
			)
		}
	}
	d.record(alert)
}

// record never blocks: the audit write happens on the writer goroutine.
func (d *Dispatcher) record(alert model.Alert) {
	d.metrics.Dispatched(string(alert.Outcome))
	if d.history != nil {
		d.history.Add(alert)
	}
	if d.audit == nil {
		return
	}
	select {
	case d.audit <- alert:
	default:
		d.metrics.Dropped("audit")
		if d.logger != nil {
			d.logger.Warn("audit queue full, alert not logged", "alert_id", alert.ID)
		}
	}
}

// writeAudit saves alerts until stop is closed, then flushes what is left.
func (d *Dispatcher) writeAudit(stop <-chan struct{}) {
	for {
		select {
		case alert := <-d.audit:
			d.save(alert)
		case <-stop:
			for {
				select {
				case alert := <-d.audit:
					d.save(alert)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) save(alert model.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.store.SaveAlert(ctx, alert); err != nil && d.logger != nil {
		d.logger.Warn("audit log write failed", "alert_id", alert.ID, "err", err)
	}
}

// Pending reports how many alerts wait for delivery.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}
