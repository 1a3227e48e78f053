package engine

import (
	"testing"
	"time"
)

func TestStoreEvictsOldestInserted(t *testing.T) {
	s := newStateStore(3)
	now := time.Now()
	for _, id := range []string{"a", "b", "c"} {
		if evicted, err := s.put(id, &alertState{insertedAt: now}); err != nil || len(evicted) != 0 {
			t.Fatalf("put %s: evicted=%v err=%v", id, evicted, err)
		}
	}
	if _, ok := s.get("a"); !ok {
		t.Fatalf("a missing")
	}
	evicted, err := s.put("d", &alertState{insertedAt: now})
	if err != nil {
		t.Fatalf("put d: %v", err)
	}
	if len(evicted) != 1 || evicted[0] != "a" {
		t.Fatalf("expected a evicted, got %v", evicted)
	}
	if s.len() != 3 {
		t.Fatalf("size %d", s.len())
	}
}

func TestStoreRejectsDuplicateInsert(t *testing.T) {
	s := newStateStore(2)
	if _, err := s.put("a", &alertState{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.put("a", &alertState{}); err != errDuplicateInsert {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if s.len() != 1 || s.order.Len() != 1 {
		t.Fatalf("duplicate insert changed the store")
	}
}

func TestStoreSweepExpired(t *testing.T) {
	s := newStateStore(10)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, _ = s.put("idle", &alertState{insertedAt: base})
	_, _ = s.put("fired", &alertState{insertedAt: base, fired: []time.Time{{}, base.Add(20 * time.Minute)}})
	_, _ = s.put("fresh", &alertState{insertedAt: base.Add(25 * time.Minute)})
	removed := s.sweepExpired(base.Add(30*time.Minute), 15*time.Minute)
	if len(removed) != 1 || removed[0] != "idle" {
		t.Fatalf("expected idle removed, got %v", removed)
	}
	if s.len() != 2 {
		t.Fatalf("size %d", s.len())
	}
	if got := s.sweepExpired(base.Add(time.Hour), 0); got != nil {
		t.Fatalf("zero window must not sweep")
	}
}

func TestTierMatchesExclusiveBounds(t *testing.T) {
	tier := Tier{Name: "band", Above: bound(100), Below: bound(600)}
	for v, want := range map[int64]bool{100: false, 101: true, 599: true, 600: false} {
		if tier.Matches(v) != want {
			t.Fatalf("Matches(%d) != %v", v, want)
		}
	}
	open := Tier{Name: "low", Below: bound(10)}
	if !open.Matches(0) || open.Matches(10) {
		t.Fatalf("open lower bound mismatch")
	}
}
