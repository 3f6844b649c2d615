package kv

import (
	"bytes"
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
)

const (
	// MemoryDriverName is the name of the memory storage driver
	MemoryDriverName = "memory"
)

var _ Plugin = (*MemoryPlugin)(nil)

// MemoryPlugin is the storage driver for in-memory stores
type MemoryPlugin struct {
}

// Name implements Plugin.Name
func (plugin *MemoryPlugin) Name() string {
	return MemoryDriverName
}

// NewStore implements Plugin.NewStore
func (plugin *MemoryPlugin) NewStore(options PluginOptions) (Store, error) {
	return NewMemoryStore(), nil
}

// NewTempStore implements Plugin.NewTempStore
func (plugin *MemoryPlugin) NewTempStore() (Store, error) {
	return NewMemoryStore(), nil
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory implementation of the
// Store interface backed by a treemap so that Keys
// returns keys in sorted order
type MemoryStore struct {
	mu     sync.RWMutex
	m      *treemap.Map
	closed bool
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: treemap.NewWith(func(a, b interface{}) int {
		return bytes.Compare(a.([]byte), b.([]byte))
	})}
}

// Put implements Store.Put
func (store *MemoryStore) Put(key []byte, value []byte) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.closed {
		return ErrClosed
	}

	store.m.Put(copyBytes(key), copyBytes(value))

	return nil
}

// Get implements Store.Get
func (store *MemoryStore) Get(key []byte) ([]byte, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	if store.closed {
		return nil, ErrClosed
	}

	v, ok := store.m.Get(key)

	if !ok {
		return nil, nil
	}

	return copyBytes(v.([]byte)), nil
}

// Delete implements Store.Delete
func (store *MemoryStore) Delete(key []byte) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.closed {
		return ErrClosed
	}

	store.m.Remove(key)

	return nil
}

// Keys implements Store.Keys
func (store *MemoryStore) Keys(order SortOrder) (Iterator, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	if store.closed {
		return nil, ErrClosed
	}

	// Snapshot the pairs so the iterator isn't invalidated
	// by concurrent writers
	kvPairs := make([]kvPair, 0, store.m.Size())
	iter := store.m.Iterator()

	if order == SortOrderDesc {
		for iter.End(); iter.Prev(); {
			kvPairs = append(kvPairs, kvPair{key: iter.Key().([]byte), value: iter.Value().([]byte)})
		}
	} else {
		for iter.Begin(); iter.Next(); {
			kvPairs = append(kvPairs, kvPair{key: iter.Key().([]byte), value: iter.Value().([]byte)})
		}
	}

	return &sliceIterator{kvPairs: kvPairs}, nil
}

// Close implements Store.Close. The memory driver has
// nowhere to persist contents, so Close behaves like Purge.
func (store *MemoryStore) Close() error {
	return store.Purge()
}

// Purge implements Store.Purge
func (store *MemoryStore) Purge() error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.closed {
		return nil
	}

	store.closed = true
	store.m.Clear()

	return nil
}

type kvPair struct {
	key   []byte
	value []byte
}

var _ Iterator = (*sliceIterator)(nil)

type sliceIterator struct {
	kvPairs []kvPair
	index   int
}

func (iter *sliceIterator) Next() bool {
	if iter.index >= len(iter.kvPairs) {
		return false
	}

	iter.index++

	return true
}

func (iter *sliceIterator) Key() []byte {
	return iter.kvPairs[iter.index-1].key
}

func (iter *sliceIterator) Value() []byte {
	return iter.kvPairs[iter.index-1].value
}

func (iter *sliceIterator) Error() error {
	return nil
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}

	c := make([]byte, len(b))

	copy(c, b)

	return c
}
