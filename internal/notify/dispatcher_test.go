package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"heartwatch/internal/alerts"
	"heartwatch/internal/config"
	"heartwatch/internal/engine"
	"heartwatch/internal/model"
	"heartwatch/internal/storage"
)

type fakeSender struct {
	mu    sync.Mutex
	calls []time.Time
	err   error
}

func (f *fakeSender) Name() string { return "fake" }

func (f *fakeSender) Send(_ context.Context, _ model.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, time.Now())
	return f.err
}

func (f *fakeSender) times() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.calls...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func testAlert(id, tier, audience string) model.Alert {
	return model.Alert{ID: id, MessageID: "m-" + id, Tier: tier, Audience: audience, Value: 350, Priority: "high", Outcome: model.OutcomePending}
}

func TestDispatcherSpacesCalls(t *testing.T) {
	sender := &fakeSender{}
	history := alerts.NewStore(10)
	d := NewDispatcher(config.NotifyConfig{MinGap: 60 * time.Millisecond, QueueSize: 8}, sender, nil, nil, history, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	for _, id := range []string{"1", "2", "3"} {
		if !d.Enqueue(testAlert(id, "primary", "a")) {
			t.Fatalf("enqueue %s failed", id)
		}
	}
	waitFor(t, func() bool { return len(history.List(0)) == 3 })
	calls := sender.times()
	for i := 1; i < len(calls); i++ {
		if gap := calls[i].Sub(calls[i-1]); gap < 50*time.Millisecond {
			t.Fatalf("calls %d and %d only %s apart", i-1, i, gap)
		}
	}
	for _, a := range history.List(0) {
		if a.Outcome != model.OutcomeDelivered {
			t.Fatalf("expected delivered, got %+v", a)
		}
	}
}

func TestDispatcherFailureIsRecordedNotRetried(t *testing.T) {
	sender := &fakeSender{err: errors.New("boom")}
	history := alerts.NewStore(10)
	d := NewDispatcher(config.NotifyConfig{QueueSize: 4}, sender, nil, nil, history, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Enqueue(testAlert("1", "primary", "a"))
	waitFor(t, func() bool { return len(history.List(0)) == 1 })
	time.Sleep(20 * time.Millisecond)
	if n := len(sender.times()); n != 1 {
		t.Fatalf("expected exactly one attempt, got %d", n)
	}
	got := history.List(0)[0]
	if got.Outcome != model.OutcomeFailed || got.Error != "boom" {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestDispatcherFullQueueDrops(t *testing.T) {
	history := alerts.NewStore(10)
	d := NewDispatcher(config.NotifyConfig{QueueSize: 1}, &fakeSender{}, nil, nil, history, nil)
	if !d.Enqueue(testAlert("1", "t", "a")) {
		t.Fatalf("first enqueue should succeed")
	}
	if d.Enqueue(testAlert("2", "t", "a")) {
		t.Fatalf("second enqueue should be dropped")
	}
	list := history.List(0)
	if len(list) != 1 || list[0].ID != "2" || list[0].Outcome != model.OutcomeDropped {
		t.Fatalf("unexpected history %+v", list)
	}
	if d.Pending() != 1 {
		t.Fatalf("pending %d", d.Pending())
	}
}

func TestNtfySenderPublishes(t *testing.T) {
	var (
		mu      sync.Mutex
		path    string
		headers http.Header
		body    string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		path, headers, body = r.URL.Path, r.Header.Clone(), string(data)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewNtfy(srv.URL+"/", "secret", time.Second)
	alert := testAlert("1", "primary", "hearts")
	alert.ChannelID, alert.GuildID = "c1", "g1"
	if err := sender.Send(context.Background(), alert); err != nil {
		t.Fatalf("send: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if path != "/hearts" {
		t.Fatalf("path %q", path)
	}
	if headers.Get("Authorization") != "Bearer secret" || headers.Get("Priority") != "high" {
		t.Fatalf("headers %v", headers)
	}
	if headers.Get("Click") != "https://discord.com/channels/g1/c1/m-1" {
		t.Fatalf("click %q", headers.Get("Click"))
	}
	if body == "" {
		t.Fatalf("empty body")
	}
}

func TestNtfySenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	if err := NewNtfy(srv.URL, "", time.Second).Send(context.Background(), testAlert("1", "t", "topic")); err == nil {
		t.Fatalf("expected error on 429")
	}
}

func TestWebhookSenderPostsJSON(t *testing.T) {
	got := make(chan webhookPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p webhookPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		got <- p
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	sender := NewWebhook("", "", time.Second)
	if err := sender.Send(context.Background(), testAlert("1", "secondary", srv.URL+"/hook")); err != nil {
		t.Fatalf("send: %v", err)
	}
	p := <-got
	if p.Alert.Tier != "secondary" || p.Title == "" {
		t.Fatalf("payload %+v", p)
	}
	if err := sender.Send(context.Background(), testAlert("2", "t", "not-a-url")); err == nil {
		t.Fatalf("expected error for relative target without base url")
	}
}

func TestNewSender(t *testing.T) {
	for _, p := range []string{"ntfy", "webhook", "log", "LOG"} {
		if _, err := NewSender(config.NotifyConfig{Provider: p, BaseURL: "https://ntfy.sh"}, nil); err != nil {
			t.Fatalf("%s: %v", p, err)
		}
	}
	if _, err := NewSender(config.NotifyConfig{Provider: "fax"}, nil); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

// auditStore blocks every SaveAlert until release is closed or the call's
// context expires.
type auditStore struct {
	mu      sync.Mutex
	saved   []model.Alert
	release chan struct{}
	delay   time.Duration
}

var _ storage.Store = (*auditStore)(nil)

func (s *auditStore) Init(context.Context) error { return nil }
func (s *auditStore) Close() error               { return nil }

func (s *auditStore) SaveAlert(ctx context.Context, alert model.Alert) error {
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, alert)
	return nil
}

func (s *auditStore) ListAlerts(context.Context, int) ([]model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Alert(nil), s.saved...), nil
}

func (s *auditStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func TestEnqueueFullQueueDoesNotWaitOnAuditStore(t *testing.T) {
	store := &auditStore{release: make(chan struct{})}
	defer close(store.release)
	history := alerts.NewStore(10)
	d := NewDispatcher(config.NotifyConfig{QueueSize: 1}, &fakeSender{}, nil, nil, history, store)
	d.Enqueue(testAlert("1", "t", "a"))

	start := time.Now()
	if d.Enqueue(testAlert("2", "t", "a")) {
		t.Fatalf("second enqueue should be dropped")
	}
	if took := time.Since(start); took > 100*time.Millisecond {
		t.Fatalf("enqueue on a full queue took %s", took)
	}
	list := history.List(0)
	if len(list) != 1 || list[0].Outcome != model.OutcomeDropped {
		t.Fatalf("dropped alert not in history: %+v", list)
	}
}

func TestRunFlushesAuditLogBeforeReturning(t *testing.T) {
	store := &auditStore{delay: 50 * time.Millisecond}
	history := alerts.NewStore(10)
	d := NewDispatcher(config.NotifyConfig{QueueSize: 4}, &fakeSender{}, nil, nil, history, store)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	d.Enqueue(testAlert("1", "t", "a"))
	waitFor(t, func() bool { return len(history.List(0)) == 1 })
	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("Run did not return")
	}
	if n := store.count(); n != 1 {
		t.Fatalf("expected audit write before Run returned, got %d", n)
	}
	saved, _ := store.ListAlerts(context.Background(), 0)
	if saved[0].Outcome != model.OutcomeDelivered {
		t.Fatalf("unexpected audit record %+v", saved[0])
	}
}

func TestObserveWithFullQueueAndSlowAuditStore(t *testing.T) {
	store := &auditStore{release: make(chan struct{})}
	defer close(store.release)
	d := NewDispatcher(config.NotifyConfig{QueueSize: 1}, &fakeSender{}, nil, nil, alerts.NewStore(10), store)
	above := int64(100)
	eng := engine.NewEngine(config.EngineConfig{
		Capacity: 10,
		Tiers:    []config.TierConfig{{Name: "hot", Above: &above, Audience: "a"}},
	}, nil, nil, d)

	eng.Observe(model.Observation{MessageID: "m0", Value: 250})
	start := time.Now()
	fired := eng.Observe(model.Observation{MessageID: "m1", Value: 250})
	if took := time.Since(start); took > 100*time.Millisecond {
		t.Fatalf("Observe with a full queue took %s", took)
	}
	if len(fired) != 1 || fired[0].Outcome != model.OutcomeDropped {
		t.Fatalf("expected one dropped alert, got %+v", fired)
	}
}
