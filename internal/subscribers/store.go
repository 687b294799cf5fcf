// Package subscribers holds the in-memory subscription state.
package subscribers

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrNotSubscribed = errors.New("not subscribed")

type Tier int

const (
	TierNormal Tier = iota
	TierVerbose
)

func (t Tier) String() string {
	if t == TierVerbose {
		return "VERBOSE"
	}
	return "NORMAL"
}

type Subscriber struct {
	ID    int64
	Tier  Tier
	Since time.Time
}

// Store maps user ids to exactly one tier. It is safe for concurrent use
// and never exposes its map.
type Store struct {
	mu   sync.RWMutex
	subs map[int64]Subscriber
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{subs: make(map[int64]Subscriber), now: time.Now}
}

// Subscribe adds id at NORMAL tier. It reports false if id was already
// present; the existing tier is left untouched.
func (s *Store) Subscribe(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[id]; ok {
		return false
	}
	s.subs[id] = Subscriber{ID: id, Tier: TierNormal, Since: s.now()}
	return true
}

// Unsubscribe removes id from every tier.
func (s *Store) Unsubscribe(id int64) bool {
	return s.Remove(id)
}

// Remove is used by the dispatcher after a permanent delivery failure.
func (s *Store) Remove(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[id]; !ok {
		return false
	}
	delete(s.subs, id)
	return true
}

// ToggleVerbose flips id between NORMAL and VERBOSE and returns the new tier.
func (s *Store) ToggleVerbose(id int64) (Tier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return TierNormal, ErrNotSubscribed
	}
	if sub.Tier == TierVerbose {
		sub.Tier = TierNormal
	} else {
		sub.Tier = TierVerbose
	}
	s.subs[id] = sub
	return sub.Tier, nil
}

func (s *Store) Tier(id int64) (Tier, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	return sub.Tier, ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

func (s *Store) Counts() (normal, verbose int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.Tier == TierVerbose {
			verbose++
		} else {
			normal++
		}
	}
	return normal, verbose
}

// Snapshot returns a point-in-time copy sorted by id.
func (s *Store) Snapshot() []Subscriber {
	s.mu.RLock()
	out := make([]Subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
