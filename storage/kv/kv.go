package kv

import (
	"errors"
)

var (
	// ErrClosed indicates that the store was closed or purged. Operations
	// on a store observing this error must have had no effect.
	ErrClosed = errors.New("store was closed")
)

// PluginOptions is a generic set of driver-specific
// options used to initialize a store
type PluginOptions map[string]interface{}

// Plugin represents a kv storage driver
type Plugin interface {
	// Name returns the name of the storage driver
	Name() string
	// NewStore returns an instance of the driver's store
	NewStore(options PluginOptions) (Store, error)
	// NewTempStore returns an instance of the driver's store
	// initialized with some sane defaults. It is meant for
	// tests that need an initialized instance of the driver's
	// store without knowing how to initialize it
	NewTempStore() (Store, error)
}

// SortOrder describes the iteration order for Keys
type SortOrder int

const (
	// SortOrderAsc sorts keys in ascending lexicographical order
	SortOrderAsc SortOrder = iota
	// SortOrderDesc sorts keys in descending lexicographical order
	SortOrderDesc
)

// Store is a keyed store. All methods must be safe for concurrent
// use by multiple goroutines: a store may be read and written by
// any caller at any time, independently of which process currently
// owns its lifecycle. After Close or Purge returns, all operations
// must have no effect and return ErrClosed.
type Store interface {
	// Put stores a key-value pair
	Put(key []byte, value []byte) error
	// Get retrieves the value for a key. It returns nil
	// if the key does not exist.
	Get(key []byte) ([]byte, error)
	// Delete removes a key-value pair. It has no effect
	// if the key does not exist.
	Delete(key []byte) error
	// Keys iterates over all key-value pairs in the requested
	// order. The returned iterator observes a consistent point-in-time
	// view of the store.
	Keys(order SortOrder) (Iterator, error)
	// Close closes the store, leaving its contents in place
	// where the driver persists them
	Close() error
	// Purge closes the store and deletes all its contents
	Purge() error
}

// Iterator iterates over key-value pairs
type Iterator interface {
	// Next advances the iterator. It must be called once
	// before reading the first pair. It returns false when
	// the iterator is exhausted.
	Next() bool
	// Key returns the key at the current position
	Key() []byte
	// Value returns the value at the current position
	Value() []byte
	// Error returns the error, if any, that stopped iteration
	Error() error
}
