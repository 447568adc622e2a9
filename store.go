package loom

import (
	"encoding/json"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Store is the mutable key-value scratchpad bound to one ExecutionContext.
//
// Keys are plain strings; callers that need namespacing should use key
// prefixes by convention (e.g. "web_browser:history"). Values must be
// JSON-representable (scalars, slices, maps) so that store snapshots can be
// structurally diffed and replayed.
//
// Insertion order is preserved, which keeps enumeration and rendered diffs
// stable across runs.
//
// All methods are safe for concurrent use. Enumeration methods return
// snapshots, never live views.
type Store struct {
	mu sync.RWMutex
	m  *orderedmap.OrderedMap[string, any]
}

// Item is a single key-value entry in a Store snapshot.
type Item struct {
	Key   string
	Value any
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{m: orderedmap.New[string, any]()}
}

// Get returns the value under key. If the key is absent, def is inserted
// under key and returned; the insertion counts as a mutation and shows up in
// step diffs. A later Get with a different default still returns the value
// inserted first.
func (s *Store) Get(key string, def any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.m.Get(key); ok {
		return v
	}
	s.m.Set(key, def)
	return def
}

// Set stores value under key, inserting or overwriting.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m.Set(key, value)
}

// Delete removes key from the store. Deleting an absent key is a no-op.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m.Delete(key)
}

// Contains reports whether key is present without inserting anything.
func (s *Store) Contains(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.m.Get(key)
	return ok
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m.Len()
}

// Keys returns all keys in insertion order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, s.m.Len())
	for pair := s.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Values returns all values in insertion order.
func (s *Store) Values() []any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	values := make([]any, 0, s.m.Len())
	for pair := s.m.Oldest(); pair != nil; pair = pair.Next() {
		values = append(values, pair.Value)
	}
	return values
}

// Items returns all entries in insertion order. The returned slice is a
// snapshot; later store mutations do not affect it.
func (s *Store) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]Item, 0, s.m.Len())
	for pair := s.m.Oldest(); pair != nil; pair = pair.Next() {
		items = append(items, Item{Key: pair.Key, Value: pair.Value})
	}
	return items
}

// snapshot returns a deep copy of the store contents projected onto plain
// JSON types (map[string]any, []any, scalars). Step spans diff two such
// snapshots to produce StoreEvents.
func (s *Store) snapshot() (map[string]any, error) {
	s.mu.RLock()
	data, err := json.Marshal(s.m)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
