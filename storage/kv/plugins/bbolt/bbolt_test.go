package bbolt_test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/heirloom-kv/heirloom/storage/kv/plugins/bbolt"
)

func TestContentsSurviveReopen(t *testing.T) {
	dir, err := ioutil.TempDir("", "bbolt-test")

	if err != nil {
		t.Fatalf("could not create temp dir: %s", err.Error())
	}

	defer os.RemoveAll(dir)

	config := bbolt.BBoltStoreConfig{Path: filepath.Join(dir, "store")}
	store, err := bbolt.New(config)

	if err != nil {
		t.Fatalf("could not create store: %s", err.Error())
	}

	if err := store.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Put returned error: %s", err.Error())
	}

	if err := store.Close(); err != nil {
		t.Fatalf("Close returned error: %s", err.Error())
	}

	store, err = bbolt.New(config)

	if err != nil {
		t.Fatalf("could not reopen store: %s", err.Error())
	}

	defer store.Purge()

	value, err := store.Get([]byte("a"))

	if err != nil {
		t.Fatalf("Get returned error: %s", err.Error())
	}

	if string(value) != "1" {
		t.Fatalf("expected contents to survive reopen, got %q", string(value))
	}
}

func TestPurgeRemovesFile(t *testing.T) {
	plugin := &bbolt.BBoltPlugin{}
	store, err := plugin.NewTempStore()

	if err != nil {
		t.Fatalf("could not create temp store: %s", err.Error())
	}

	path := store.(*bbolt.BBoltStore).Path()

	if err := store.Purge(); err != nil {
		t.Fatalf("Purge returned error: %s", err.Error())
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected store file to be removed")
	}
}
