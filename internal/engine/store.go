package engine

import (
	"container/list"
	"errors"
	"time"
)

var errDuplicateInsert = errors.New("alert state already present")

// alertState is the per-message record. fired[i] is the firing time of tier i;
// the zero time means the tier has not fired for this message.
type alertState struct {
	lastValue  int64
	fired      []time.Time
	insertedAt time.Time
	channelID  string
	guildID    string
}

// lastActivity is the latest firing time, or the insertion time when no tier
// has fired yet.
func (s *alertState) lastActivity() time.Time {
	latest := s.insertedAt
	for _, ts := range s.fired {
		if ts.After(latest) {
			latest = ts
		}
	}
	return latest
}

type storeEntry struct {
	id    string
	state *alertState
}

// stateStore is an insertion-ordered map with a hard capacity. Eviction is
// FIFO by insertion; reads never reorder entries. Callers provide locking.
type stateStore struct {
	capacity int
	order    *list.List
	items    map[string]*list.Element
}

func newStateStore(capacity int) *stateStore {
	if capacity <= 0 {
		capacity = 250
	}
	return &stateStore{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

func (s *stateStore) get(id string) (*alertState, bool) {
	el, ok := s.items[id]
	if !ok {
		return nil, false
	}
	return el.Value.(*storeEntry).state, true
}

// put inserts a new entry and evicts the oldest one if the store grew past
// capacity. It returns the evicted ids.
func (s *stateStore) put(id string, st *alertState) ([]string, error) {
	if _, ok := s.items[id]; ok {
		return nil, errDuplicateInsert
	}
	s.items[id] = s.order.PushBack(&storeEntry{id: id, state: st})
	return s.evictOldestIfOverCapacity(), nil
}

func (s *stateStore) len() int {
	return len(s.items)
}

func (s *stateStore) evictOldestIfOverCapacity() []string {
	var evicted []string
	for len(s.items) > s.capacity {
		front := s.order.Front()
		if front == nil {
			break
		}
		entry := s.order.Remove(front).(*storeEntry)
		delete(s.items, entry.id)
		evicted = append(evicted, entry.id)
	}
	return evicted
}

// sweepExpired removes entries whose last activity is older than window.
func (s *stateStore) sweepExpired(now time.Time, window time.Duration) []string {
	if window <= 0 {
		return nil
	}
	cutoff := now.Add(-window)
	var removed []string
	for el := s.order.Front(); el != nil; {
		next := el.Next()
		entry := el.Value.(*storeEntry)
		if entry.state.lastActivity().Before(cutoff) {
			s.order.Remove(el)
			delete(s.items, entry.id)
			removed = append(removed, entry.id)
		}
		el = next
	}
	return removed
}

func (s *stateStore) clear() {
	s.order.Init()
	s.items = make(map[string]*list.Element)
}

// each visits entries oldest first.
func (s *stateStore) each(fn func(id string, st *alertState)) {
	for el := s.order.Front(); el != nil; el = el.Next() {
		entry := el.Value.(*storeEntry)
		fn(entry.id, entry.state)
	}
}
