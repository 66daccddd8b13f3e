// Package storage provides the durable key-value store behind the state containers.
package storage

import (
	"context"
	"errors"
)

// ErrKeyNotFound indicates that no value is stored under the requested key.
var ErrKeyNotFound = errors.New("key not found")

// Store defines the persistence contract used by all state containers.
// Operations may fail due to platform storage errors; callers treat failure
// as non-fatal and surface a warning. No retry happens at this layer.
type Store interface {
	// Get returns the value stored under key, or ErrKeyNotFound when absent.
	Get(ctx context.Context, key string) (string, error)
	// Set durably stores value under key.
	Set(ctx context.Context, key, value string) error
	// Remove deletes the value stored under key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}
