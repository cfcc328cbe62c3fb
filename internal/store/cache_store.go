// Ticktrack - Zammad Time Tracking Client and Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrack

package store

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/ticktrack/internal/models/zammad"
)

// Key prefixes for the structured cache tier. The colon-terminated prefixes
// form per-table namespaces; the stamp keys carry each table's shared
// freshness timestamp where one exists.
const (
	customerKeyPrefix  = "customer:"
	ticketKeyPrefix    = "tickets:"
	timeEntryKeyPrefix = "timeentry:"

	customerStampKey = "customer_cache_ts"
	ticketStampKey   = "ticket_cache_ts"
)

// timeEntrySnapshot is the stored form of one time-entry cache key. Unlike
// the customer and ticket tables, every snapshot carries its own timestamp:
// time-entry keys expire independently.
type timeEntrySnapshot struct {
	Entries   []zammad.TimeEntry `json:"entries"`
	Timestamp time.Time          `json:"timestamp"`
}

// MergeCustomers upserts the given customer records and advances the shared
// customer timestamp. Write failures are logged, not returned: persistence of
// cache state is best-effort.
func (s *Store) MergeCustomers(customers map[int]zammad.User, stamp time.Time) {
	err := s.db.Update(func(txn *badger.Txn) error {
		for id, user := range customers {
			data, err := json.Marshal(user)
			if err != nil {
				return fmt.Errorf("marshal customer %d: %w", id, err)
			}
			key := []byte(customerKeyPrefix + strconv.Itoa(id))
			if err := txn.Set(key, data); err != nil {
				return fmt.Errorf("set customer %d: %w", id, err)
			}
		}
		ts, err := json.Marshal(stamp)
		if err != nil {
			return err
		}
		return txn.Set([]byte(customerStampKey), ts)
	})
	bestEffort("merge customers", err)
}

// LoadCustomers returns the full customer map and its shared timestamp.
// A missing table yields an empty map and zero time, not an error.
func (s *Store) LoadCustomers() (map[int]zammad.User, time.Time, error) {
	customers := make(map[int]zammad.User)
	var stamp time.Time

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(customerKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			id, err := strconv.Atoi(strings.TrimPrefix(string(item.Key()), customerKeyPrefix))
			if err != nil {
				continue
			}
			var user zammad.User
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &user)
			}); err != nil {
				continue
			}
			customers[id] = user
		}

		item, err := txn.Get([]byte(customerStampKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stamp)
		})
	})
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("load customers: %w", err)
	}
	return customers, stamp, nil
}

// DropCustomers removes the customer table and its timestamp.
func (s *Store) DropCustomers() {
	_, err := s.DeletePrefix(customerKeyPrefix)
	if err == nil {
		err = s.Delete(customerStampKey)
	}
	bestEffort("drop customers", err)
}

// SaveTicketSnapshot stores a ticket list under its cache key and advances
// the shared ticket timestamp. All ticket keys share one freshness unit.
func (s *Store) SaveTicketSnapshot(key string, tickets []zammad.Ticket, stamp time.Time) {
	err := s.db.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(tickets)
		if err != nil {
			return fmt.Errorf("marshal tickets %s: %w", key, err)
		}
		if err := txn.Set([]byte(ticketKeyPrefix+key), data); err != nil {
			return err
		}
		ts, err := json.Marshal(stamp)
		if err != nil {
			return err
		}
		return txn.Set([]byte(ticketStampKey), ts)
	})
	bestEffort("save ticket snapshot "+key, err)
}

// LoadTicketSnapshot returns the stored ticket list for key along with the
// shared ticket timestamp. ok is false when the key has no snapshot.
func (s *Store) LoadTicketSnapshot(key string) (tickets []zammad.Ticket, stamp time.Time, ok bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(ticketKeyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &tickets)
		}); err != nil {
			return err
		}
		ok = true

		stampItem, err := txn.Get([]byte(ticketStampKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return stampItem.Value(func(val []byte) error {
			return json.Unmarshal(val, &stamp)
		})
	})
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("load ticket snapshot %s: %w", key, err)
	}
	return tickets, stamp, ok, nil
}

// TicketSnapshotKeys returns the cache keys of all stored ticket snapshots.
// The background refresher uses this to know which keys to re-fetch.
func (s *Store) TicketSnapshotKeys() ([]string, error) {
	raw, err := s.Keys(ticketKeyPrefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, strings.TrimPrefix(k, ticketKeyPrefix))
	}
	return keys, nil
}

// DropTicketSnapshots removes every ticket snapshot and the shared timestamp.
func (s *Store) DropTicketSnapshots() {
	_, err := s.DeletePrefix(ticketKeyPrefix)
	if err == nil {
		err = s.Delete(ticketStampKey)
	}
	bestEffort("drop ticket snapshots", err)
}

// SaveTimeEntrySnapshot stores the entries for one time-entry cache key with
// its own timestamp.
func (s *Store) SaveTimeEntrySnapshot(key string, entries []zammad.TimeEntry, stamp time.Time) {
	snapshot := timeEntrySnapshot{Entries: entries, Timestamp: stamp}
	bestEffort("save time entry snapshot "+key, s.SetJSON(timeEntryKeyPrefix+key, snapshot))
}

// LoadTimeEntrySnapshot returns the entries and timestamp stored for key.
// ok is false when no snapshot exists.
func (s *Store) LoadTimeEntrySnapshot(key string) (entries []zammad.TimeEntry, stamp time.Time, ok bool, err error) {
	var snapshot timeEntrySnapshot
	err = s.GetJSON(timeEntryKeyPrefix+key, &snapshot)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}
	return snapshot.Entries, snapshot.Timestamp, true, nil
}

// DeleteTimeEntrySnapshot removes one time-entry cache key.
func (s *Store) DeleteTimeEntrySnapshot(key string) {
	bestEffort("delete time entry snapshot "+key, s.Delete(timeEntryKeyPrefix+key))
}

// DeleteTimeEntrySnapshots removes every time-entry key starting with the
// given logical prefix (e.g. all history keys after a time-entry write).
func (s *Store) DeleteTimeEntrySnapshots(logicalPrefix string) {
	_, err := s.DeletePrefix(timeEntryKeyPrefix + logicalPrefix)
	bestEffort("delete time entry snapshots "+logicalPrefix, err)
}
