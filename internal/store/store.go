// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

// Package store provides BadgerDB-backed persistence for Ticktrack.
//
// One Badger database hosts two logical tiers, separated by key prefixes:
//
//   - a key-value tier for small single-object state (connection settings,
//     endpoint memo, feature flags, user profile, fetch timestamps), accessed
//     through the generic JSON blob helpers;
//   - a structured cache tier for the larger maps and snapshots (customer
//     records, ticket-list snapshots, time-entry snapshots), accessed through
//     the typed methods in cache_store.go.
//
// All values are serialized with goccy/go-json. Badger transactions provide
// the required atomicity; there is no cross-tier transactional coupling.
package store

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/ticktrack/internal/logging"
)

// ErrKeyNotFound is returned when a requested key has no stored value.
var ErrKeyNotFound = errors.New("store: key not found")

// Store wraps a BadgerDB instance.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the database at path. With inMemory set, the store
// lives entirely in RAM; used by tests and ephemeral deployments.
func Open(path string, inMemory bool) (*Store, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithInMemory(inMemory)
	if inMemory {
		opts.Dir = ""
		opts.ValueDir = ""
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetJSON reads the value at key into out. Returns ErrKeyNotFound when the
// key does not exist.
func (s *Store) GetJSON(key string, out any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrKeyNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
}

// SetJSON serializes v and stores it at key.
func (s *Store) SetJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// DeletePrefix removes every key under prefix and returns the number deleted.
func (s *Store) DeletePrefix(prefix string) (int, error) {
	keys, err := s.Keys(prefix)
	if err != nil {
		return 0, err
	}

	count := 0
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("delete %s: %w", key, err)
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Keys returns every key under prefix.
func (s *Store) Keys(prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan prefix %s: %w", prefix, err)
	}
	return keys, nil
}

// bestEffort logs a persistence error without propagating it. Cache writes
// are best-effort: a failed write must never block a successful remote result
// from reaching the caller.
func bestEffort(op string, err error) {
	if err != nil {
		logging.Warn().Err(err).Str("op", op).Msg("store write failed (best effort, ignored)")
	}
}
