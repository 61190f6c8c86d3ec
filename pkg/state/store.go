// Package state provides durable key-value storage for intake sessions.
// It supports an in-memory backend for development and tests and a SQLite
// backend for deployments that must survive restarts.
package state

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Common store errors.
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrStoreClosed = errors.New("store is closed")
	ErrInvalidData = errors.New("invalid data format")
	ErrEmptyKey    = errors.New("key is required")
)

// Store is the interface for state storage backends.
type Store interface {
	// Get retrieves a value by key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with optional TTL. A zero TTL never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Keys returns all keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Ping reports whether the backend is usable.
	Ping(ctx context.Context) error

	// Close closes the store.
	Close() error
}

// Key joins key parts with ':'.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// TypedStore provides type-safe access to the store.
type TypedStore[T any] struct {
	store      Store
	serializer Serializer[T]
}

// NewTypedStore creates a new typed store wrapper.
func NewTypedStore[T any](store Store, serializer Serializer[T]) *TypedStore[T] {
	return &TypedStore[T]{
		store:      store,
		serializer: serializer,
	}
}

// Get retrieves and deserializes a value.
func (ts *TypedStore[T]) Get(ctx context.Context, key string) (T, error) {
	var zero T

	data, err := ts.store.Get(ctx, key)
	if err != nil {
		return zero, err
	}

	return ts.serializer.Deserialize(data)
}

// Set serializes and stores a value.
func (ts *TypedStore[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	data, err := ts.serializer.Serialize(value)
	if err != nil {
		return err
	}

	return ts.store.Set(ctx, key, data, ttl)
}

// Delete removes a key.
func (ts *TypedStore[T]) Delete(ctx context.Context, key string) error {
	return ts.store.Delete(ctx, key)
}
