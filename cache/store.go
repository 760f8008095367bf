package cache

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/s0up4200/strapcache/content"
)

// Entry is a snapshot of one cache key
type Entry struct {
	// Data is the last successfully fetched or manually written value
	Data any
	// Err is the failure of the latest applied fetch; Data survives it
	Err       *content.Error
	UpdatedAt time.Time

	Invalidated bool
	// Validating is true while at least one fetch for the key is in flight
	Validating bool

	// Version increases with every change anywhere in the store
	Version uint64
}

// Listener receives the new snapshot of a key; ok is false after removal
type Listener func(entry Entry, ok bool)

// Store is a keyed cache with per-key write ordering and subscribers.
// It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]*Entry
	issued   map[string]uint64
	applied  map[string]uint64
	inflight map[string]int
	subs     map[string]map[uint64]Listener
	nextSub  uint64
	version  uint64
	now      func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		entries:  make(map[string]*Entry),
		issued:   make(map[string]uint64),
		applied:  make(map[string]uint64),
		inflight: make(map[string]int),
		subs:     make(map[string]map[uint64]Listener),
		now:      time.Now,
	}
}

type notification struct {
	listeners []Listener
	entry     Entry
	ok        bool
}

func (n notification) deliver() {
	for _, l := range n.listeners {
		l(n.entry, n.ok)
	}
}

// Get returns the entry for key
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(key)
}

func (s *Store) snapshotLocked(key string) (Entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return Entry{Validating: s.inflight[key] > 0, Version: s.version}, false
	}
	out := *e
	out.Validating = s.inflight[key] > 0
	return out, true
}

// Set writes data as a fresh entry. Fetches issued before the call can no longer overwrite it.
func (s *Store) Set(key string, data any) {
	s.mu.Lock()
	s.advanceLocked(key)
	s.entries[key] = &Entry{Data: data, UpdatedAt: s.now()}
	n := s.changedLocked(key)
	s.mu.Unlock()

	n.deliver()
}

// Update replaces the data of an existing entry with fn(current). It reports
// false when the key has no entry.
func (s *Store) Update(key string, fn func(current any) any) bool {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.advanceLocked(key)
	e.Data = fn(e.Data)
	e.Err = nil
	e.Invalidated = false
	e.UpdatedAt = s.now()
	n := s.changedLocked(key)
	s.mu.Unlock()

	n.deliver()
	return true
}

// Invalidate marks key stale so the next read fetches. Data stays readable.
// Fetches in flight for key are discarded even when it has no entry yet.
func (s *Store) Invalidate(key string) bool {
	s.mu.Lock()
	s.advanceLocked(key)
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return false
	}
	e.Invalidated = true
	n := s.changedLocked(key)
	s.mu.Unlock()

	n.deliver()
	return true
}

// InvalidateAll invalidates every entry and returns the affected keys
func (s *Store) InvalidateAll() []string {
	return s.invalidateWhere(func(string) bool { return true })
}

// InvalidateMatching invalidates every key starting with prefix
func (s *Store) InvalidateMatching(prefix string) []string {
	return s.invalidateWhere(func(key string) bool { return strings.HasPrefix(key, prefix) })
}

func (s *Store) invalidateWhere(match func(string) bool) []string {
	s.mu.Lock()
	var keys []string
	var pending []notification
	for key, e := range s.entries {
		if !match(key) {
			continue
		}
		s.advanceLocked(key)
		e.Invalidated = true
		keys = append(keys, key)
		pending = append(pending, s.changedLocked(key))
	}
	s.mu.Unlock()

	for _, n := range pending {
		n.deliver()
	}
	slices.Sort(keys)
	return keys
}

// Remove deletes key. The write sequence of the key survives, so an older
// in-flight fetch cannot recreate it.
func (s *Store) Remove(key string) bool {
	s.mu.Lock()
	_, ok := s.entries[key]
	s.advanceLocked(key)
	delete(s.entries, key)
	s.version++
	n := notification{
		listeners: s.listenersLocked(key),
		entry:     Entry{Version: s.version},
		ok:        false,
	}
	s.mu.Unlock()

	if ok {
		n.deliver()
	}
	return ok
}

// Subscribe calls fn after every change of key until the returned function is called
func (s *Store) Subscribe(key string, fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.subscribeLocked(key, fn)
	s.mu.Unlock()

	return s.unsubscriber(key, id)
}

// subscribeSnapshot subscribes and returns the entry as seen at subscription time
func (s *Store) subscribeSnapshot(key string, fn Listener) (Entry, bool, func()) {
	s.mu.Lock()
	id := s.subscribeLocked(key, fn)
	entry, ok := s.snapshotLocked(key)
	s.mu.Unlock()

	return entry, ok, s.unsubscriber(key, id)
}

func (s *Store) subscribeLocked(key string, fn Listener) uint64 {
	s.nextSub++
	id := s.nextSub
	if s.subs[key] == nil {
		s.subs[key] = make(map[uint64]Listener)
	}
	s.subs[key][id] = fn
	return id
}

func (s *Store) unsubscriber(key string, id uint64) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if subs, ok := s.subs[key]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(s.subs, key)
				}
			}
		})
	}
}

// Subscribers returns the number of listeners on key
func (s *Store) Subscribers(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs[key])
}

// Keys returns all keys, sorted
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	s.mu.RUnlock()

	slices.Sort(keys)
	return keys
}

// Len returns the number of entries
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Reset drops every entry and subscriber. Fetches still in flight are discarded when they land.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.issued {
		s.advanceLocked(key)
	}
	s.entries = make(map[string]*Entry)
	s.subs = make(map[string]map[uint64]Listener)
	s.version++
}

// begin issues the sequence number of a new fetch for key
func (s *Store) begin(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.issued[key]++
	s.inflight[key]++
	return s.issued[key]
}

// commit applies a fetch result unless a write with a higher sequence already landed.
// A failed fetch keeps the previous data.
func (s *Store) commit(key string, seq uint64, data any, err *content.Error) bool {
	s.mu.Lock()
	if s.inflight[key] > 0 {
		s.inflight[key]--
		if s.inflight[key] == 0 {
			delete(s.inflight, key)
		}
	}

	if seq <= s.applied[key] {
		s.mu.Unlock()
		return false
	}
	s.applied[key] = seq

	e, ok := s.entries[key]
	switch {
	case err == nil:
		s.entries[key] = &Entry{Data: data, UpdatedAt: s.now()}
	case ok:
		e.Err = err
	default:
		s.entries[key] = &Entry{Err: err}
	}
	n := s.changedLocked(key)
	s.mu.Unlock()

	n.deliver()
	return true
}

// advanceLocked makes every sequence issued so far for key stale
func (s *Store) advanceLocked(key string) {
	s.issued[key]++
	s.applied[key] = s.issued[key]
}

func (s *Store) changedLocked(key string) notification {
	s.version++
	s.entries[key].Version = s.version
	entry, _ := s.snapshotLocked(key)
	return notification{
		listeners: s.listenersLocked(key),
		entry:     entry,
		ok:        true,
	}
}

func (s *Store) listenersLocked(key string) []Listener {
	subs := s.subs[key]
	if len(subs) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, subs[id])
	}
	return out
}
