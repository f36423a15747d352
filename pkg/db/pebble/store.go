package pebble

import (
	"errors"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

var (
	ErrClosed   = errors.New("store is closed")
	ErrNotFound = errors.New("key not found")
)

// KVStore is a pebble-backed implementation of db.KVStore.
type KVStore struct {
	db     *pebble.DB
	closed atomic.Bool
}

// NewKVStore opens an in-memory store. Used by tests and single-shot tools.
func NewKVStore() (*KVStore, error) {
	return open("", &pebble.Options{FS: vfs.NewMem()})
}

// NewPersistentKVStore opens an on-disk store at path.
func NewPersistentKVStore(path string) (*KVStore, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(64 * 1024 * 1024),
		MemTableSize: 32 * 1024 * 1024,
	}
	return open(path, opts)
}

func open(path string, opts *pebble.Options) (*KVStore, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return &KVStore{db: db}, nil
}

func (p *KVStore) Get(key []byte) ([]byte, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}

	value, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

func (p *KVStore) Has(key []byte) (bool, error) {
	_, err := p.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *KVStore) Put(key, value []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return p.db.Set(key, value, pebble.Sync)
}

func (p *KVStore) Delete(key []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return p.db.Delete(key, pebble.Sync)
}

func (p *KVStore) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.db.Close()
}
