package state

import (
	"encoding/json"
	"fmt"
)

// TypedStore wraps Store with JSON marshaling for one kind.
type TypedStore[T any] struct {
	store *Store
	kind  string
}

// NewTypedStore creates a typed view of store for kind.
func NewTypedStore[T any](store *Store, kind string) *TypedStore[T] {
	return &TypedStore[T]{
		store: store,
		kind:  kind,
	}
}

// Kind returns the kind this store handles.
func (s *TypedStore[T]) Kind() string {
	return s.kind
}

// Get unmarshals the value for id. A missing value yields the zero T and version 0.
func (s *TypedStore[T]) Get(id string) (value T, version int64, err error) {
	entry, err := s.store.Get(s.kind, id)
	if err != nil {
		return value, 0, err
	}
	if entry.Payload == nil {
		return value, 0, nil
	}

	if err := json.Unmarshal(entry.Payload, &value); err != nil {
		return value, 0, fmt.Errorf("failed to unmarshal %s/%s: %w", s.kind, id, err)
	}
	return value, entry.Version, nil
}

// Set marshals and stores value for id.
func (s *TypedStore[T]) Set(id string, value T) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", s.kind, id, err)
	}
	return s.store.Set(s.kind, id, payload)
}

// Clear removes all values of this kind.
func (s *TypedStore[T]) Clear() error {
	return s.store.Clear(s.kind)
}
