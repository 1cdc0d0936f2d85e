// Package badger provides an embedded embedding cache backed by BadgerDB.
package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/cache"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Ensure Cache implements the interface.
var _ driven.EmbeddingCache = (*Cache)(nil)

// Cache stores vectors in Badger with native per-entry TTL.
type Cache struct {
	db *badgerdb.DB
}

// Open opens or creates a cache at path. An empty path opens an in-memory cache.
func Open(path string) (*Cache, error) {
	opts := badgerdb.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open %q: %w", path, err)
	}
	return &Cache{db: db}, nil
}

// Get returns the cached vector for key.
func (c *Cache) Get(_ context.Context, key string) ([]float32, bool, error) {
	var raw []byte
	err := c.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("badger: get: %w", err)
	}

	vec, err := cache.Decode(raw)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// Set stores vector under key. A non-positive ttl stores without expiry.
func (c *Cache) Set(_ context.Context, key string, vector []float32, ttl time.Duration) error {
	entry := badgerdb.NewEntry([]byte(key), cache.Encode(vector))
	if ttl > 0 {
		entry = entry.WithTTL(ttl)
	}
	if err := c.db.Update(func(txn *badgerdb.Txn) error {
		return txn.SetEntry(entry)
	}); err != nil {
		return fmt.Errorf("badger: set: %w", err)
	}
	return nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}
