package bbolt

import (
	"fmt"
	"os"

	"github.com/heirloom-kv/heirloom/storage/kv"
	"github.com/heirloom-kv/heirloom/utils/uuid"
	bolt "go.etcd.io/bbolt"
)

const (
	// DriverName is the name of the bbolt storage driver
	DriverName = "bbolt"
)

var rootBucket = []byte{0}

var _ kv.Plugin = (*BBoltPlugin)(nil)

// BBoltPlugin is the storage driver for disk-backed
// stores built on bbolt
type BBoltPlugin struct {
}

// Name implements Plugin.Name
func (plugin *BBoltPlugin) Name() string {
	return DriverName
}

// NewStore implements Plugin.NewStore
func (plugin *BBoltPlugin) NewStore(options kv.PluginOptions) (kv.Store, error) {
	var config BBoltStoreConfig

	if path, ok := options["path"]; !ok {
		return nil, fmt.Errorf("\"path\" is required")
	} else if pathString, ok := path.(string); !ok {
		return nil, fmt.Errorf("\"path\" must be a string")
	} else {
		config.Path = pathString
	}

	store, err := New(config)

	if err != nil {
		return nil, err
	}

	return store, nil
}

// NewTempStore implements Plugin.NewTempStore
func (plugin *BBoltPlugin) NewTempStore() (kv.Store, error) {
	return plugin.NewStore(kv.PluginOptions{
		"path": fmt.Sprintf("%s/bbolt-%s", os.TempDir(), uuid.MustUUID()),
	})
}

// BBoltStoreConfig contains configuration for a bbolt store
type BBoltStoreConfig struct {
	Path string
}

var _ kv.Store = (*BBoltStore)(nil)

// BBoltStore is a disk-backed implementation of the Store
// interface. All key-value pairs live in a single root bucket.
type BBoltStore struct {
	db *bolt.DB
}

// New creates a bbolt store at the configured path,
// creating the file if it does not exist
func New(config BBoltStoreConfig) (*BBoltStore, error) {
	db, err := bolt.Open(config.Path, 0666, nil)

	if err != nil {
		return nil, fmt.Errorf("Could not open bbolt store at %s: %s", config.Path, err.Error())
	}

	if err := db.Update(func(txn *bolt.Tx) error {
		_, err := txn.CreateBucketIfNotExists(rootBucket)

		return err
	}); err != nil {
		db.Close()

		return nil, fmt.Errorf("Could not ensure root bucket exists: %s", err.Error())
	}

	return &BBoltStore{db: db}, nil
}

// Put implements Store.Put
func (store *BBoltStore) Put(key []byte, value []byte) error {
	return wrapError(store.db.Update(func(txn *bolt.Tx) error {
		return txn.Bucket(rootBucket).Put(key, value)
	}))
}

// Get implements Store.Get
func (store *BBoltStore) Get(key []byte) ([]byte, error) {
	var value []byte

	err := store.db.View(func(txn *bolt.Tx) error {
		v := txn.Bucket(rootBucket).Get(key)

		if v != nil {
			value = make([]byte, len(v))

			copy(value, v)
		}

		return nil
	})

	return value, wrapError(err)
}

// Delete implements Store.Delete
func (store *BBoltStore) Delete(key []byte) error {
	return wrapError(store.db.Update(func(txn *bolt.Tx) error {
		return txn.Bucket(rootBucket).Delete(key)
	}))
}

// Keys implements Store.Keys
func (store *BBoltStore) Keys(order kv.SortOrder) (kv.Iterator, error) {
	kvPairs := []bboltPair{}

	err := store.db.View(func(txn *bolt.Tx) error {
		cursor := txn.Bucket(rootBucket).Cursor()

		if order == kv.SortOrderDesc {
			for k, v := cursor.Last(); k != nil; k, v = cursor.Prev() {
				kvPairs = append(kvPairs, copyPair(k, v))
			}
		} else {
			for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
				kvPairs = append(kvPairs, copyPair(k, v))
			}
		}

		return nil
	})

	if err != nil {
		return nil, wrapError(err)
	}

	return &bboltIterator{kvPairs: kvPairs}, nil
}

// Path returns the store's file path
func (store *BBoltStore) Path() string {
	return store.db.Path()
}

// Close implements Store.Close. The store's contents remain
// on disk and can be reopened later.
func (store *BBoltStore) Close() error {
	err := store.db.Close()

	if err != nil {
		return fmt.Errorf("Could not close store: %s", err.Error())
	}

	return nil
}

// Purge implements Store.Purge
func (store *BBoltStore) Purge() error {
	path := store.db.Path()

	if path == "" {
		// Already closed
		return nil
	}

	if err := store.db.Close(); err != nil {
		return fmt.Errorf("Could not close store: %s", err.Error())
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("Could not remove path %s: %s", path, err.Error())
	}

	return nil
}

func wrapError(err error) error {
	if err == bolt.ErrDatabaseNotOpen || err == bolt.ErrTxClosed {
		return kv.ErrClosed
	}

	return err
}

type bboltPair struct {
	key   []byte
	value []byte
}

func copyPair(key []byte, value []byte) bboltPair {
	pair := bboltPair{
		key:   make([]byte, len(key)),
		value: make([]byte, len(value)),
	}

	copy(pair.key, key)
	copy(pair.value, value)

	return pair
}

var _ kv.Iterator = (*bboltIterator)(nil)

type bboltIterator struct {
	kvPairs []bboltPair
	index   int
}

func (iter *bboltIterator) Next() bool {
	if iter.index >= len(iter.kvPairs) {
		return false
	}

	iter.index++

	return true
}

func (iter *bboltIterator) Key() []byte {
	return iter.kvPairs[iter.index-1].key
}

func (iter *bboltIterator) Value() []byte {
	return iter.kvPairs[iter.index-1].value
}

func (iter *bboltIterator) Error() error {
	return nil
}
