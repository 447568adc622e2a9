package loom

import (
	"encoding/json"
	"fmt"
)

// Key is a typed accessor for a single Store entry. The Store itself stays
// schema-agnostic; declaring Keys next to the code that owns them gives call
// sites compile-time types and a single place for the key name and default.
//
//	var attempts = loom.NewKey("solver:attempts", 0)
//
//	n, err := attempts.Get(store)
//	attempts.Set(store, n+1)
type Key[T any] struct {
	// Name is the store key, including any namespace prefix.
	Name string

	// Default is inserted and returned when the key is absent.
	Default T
}

// NewKey declares a typed store key with a default value.
func NewKey[T any](name string, def T) Key[T] {
	return Key[T]{Name: name, Default: def}
}

// Get reads the key from the store, inserting the default if absent.
//
// Values that crossed a JSON boundary (e.g. reconstructed from StoreEvent
// replay) come back as generic maps and float64s; Get coerces them to T
// through a JSON round-trip when a direct assertion fails.
func (k Key[T]) Get(s *Store) (T, error) {
	v := s.Get(k.Name, k.Default)
	if typed, ok := v.(T); ok {
		return typed, nil
	}

	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("store key %q: %w", k.Name, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("store key %q holds incompatible value: %w", k.Name, err)
	}
	return out, nil
}

// Set writes the key.
func (k Key[T]) Set(s *Store, value T) {
	s.Set(k.Name, value)
}

// Delete removes the key. Deleting an absent key is a no-op.
func (k Key[T]) Delete(s *Store) {
	s.Delete(k.Name)
}
