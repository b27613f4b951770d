// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

// Package wal is a durable spool for access events that could not be
// appended to the access log. Events are persisted to BadgerDB and
// replayed into the log by a supervised Replayer once it is reachable.
//
// Entries are keyed by event ID, so spooling the same event twice keeps a
// single copy. Entries that exhaust their retries move to an abandoned
// keyspace instead of being deleted.
package wal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/accessguard/internal/logging"
	"github.com/tomtom215/accessguard/internal/metrics"
	"github.com/tomtom215/accessguard/internal/models"
)

const (
	prefixPending   = "pending:"
	prefixAbandoned = "abandoned:"
)

var (
	ErrClosed        = errors.New("wal is closed")
	ErrNilEvent      = errors.New("event cannot be nil")
	ErrMissingID     = errors.New("event ID cannot be empty")
	ErrEntryNotFound = errors.New("entry not found")
)

// Config configures the spool.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in memory. For tests only.
	InMemory bool
	// SyncWrites fsyncs every write.
	SyncWrites bool
}

// Entry is one spooled access event.
type Entry struct {
	Event         models.AccessEvent `json:"event"`
	SpooledAt     time.Time          `json:"spooled_at"`
	Attempts      int                `json:"attempts"`
	LastAttemptAt time.Time          `json:"last_attempt_at,omitempty"`
	LastError     string             `json:"last_error,omitempty"`
}

// ID returns the spooled event's ID.
func (e *Entry) ID() string {
	return e.Event.ID
}

// BadgerSpool implements the dispatcher's spool on BadgerDB.
type BadgerSpool struct {
	db *badger.DB

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the spool.
func Open(cfg Config) (*BadgerSpool, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("wal path is required")
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(cfg.SyncWrites)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	s := &BadgerSpool{db: db}
	if n, err := s.Len(); err == nil {
		metrics.SetWALPending(n)
		if n > 0 {
			logging.Warn().Int("pending", n).Msg("WAL opened with events awaiting replay")
		}
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("WAL opened")
	return s, nil
}

// Write spools event. The event must already carry its ID.
func (s *BadgerSpool) Write(ctx context.Context, event *models.AccessEvent) error {
	err := s.write(ctx, event)
	metrics.RecordWALWrite(err)
	return err
}

func (s *BadgerSpool) write(ctx context.Context, event *models.AccessEvent) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if event == nil {
		return ErrNilEvent
	}
	if event.ID == "" {
		return ErrMissingID
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(&Entry{Event: *event, SpooledAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(pendingKey(event.ID), data)
	}); err != nil {
		return fmt.Errorf("write to BadgerDB: %w", err)
	}
	s.refreshGauge()
	return nil
}

// Pending returns all entries awaiting replay in key order.
func (s *BadgerSpool) Pending(ctx context.Context) ([]*Entry, error) {
	return s.scan(ctx, prefixPending)
}

// Abandoned returns entries that exhausted their retries.
func (s *BadgerSpool) Abandoned(ctx context.Context) ([]*Entry, error) {
	return s.scan(ctx, prefixAbandoned)
}

func (s *BadgerSpool) scan(ctx context.Context, prefix string) ([]*Entry, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var entries []*Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var entry Entry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("WAL failed to unmarshal entry")
				continue
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// Remove deletes a replayed entry.
func (s *BadgerSpool) Remove(id string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(pendingKey(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrEntryNotFound
			}
			return err
		}
		return txn.Delete(pendingKey(id))
	})
	if err != nil {
		return err
	}
	s.refreshGauge()
	return nil
}

// RecordFailure bumps an entry's attempt count and returns the new count.
func (s *BadgerSpool) RecordFailure(id string, cause error) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	var attempts int
	err := s.update(pendingKey(id), func(e *Entry) {
		e.Attempts++
		e.LastAttemptAt = time.Now().UTC()
		if cause != nil {
			e.LastError = cause.Error()
		}
		attempts = e.Attempts
	})
	return attempts, err
}

// Abandon moves an entry out of the replay set. It stays on disk under
// the abandoned prefix for manual recovery.
func (s *BadgerSpool) Abandon(id string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(pendingKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEntryNotFound
		}
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := txn.Set([]byte(prefixAbandoned+id), data); err != nil {
			return err
		}
		return txn.Delete(pendingKey(id))
	})
	if err != nil {
		return err
	}
	s.refreshGauge()
	return nil
}

// Len returns the number of pending entries.
func (s *BadgerSpool) Len() (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixPending)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Close closes the underlying database.
func (s *BadgerSpool) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *BadgerSpool) update(key []byte, fn func(*Entry)) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEntryNotFound
		}
		if err != nil {
			return err
		}
		var entry Entry
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		}); err != nil {
			return fmt.Errorf("unmarshal entry: %w", err)
		}
		fn(&entry)
		data, err := json.Marshal(&entry)
		if err != nil {
			return fmt.Errorf("marshal entry: %w", err)
		}
		return txn.Set(key, data)
	})
}

func (s *BadgerSpool) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *BadgerSpool) refreshGauge() {
	if n, err := s.Len(); err == nil {
		metrics.SetWALPending(n)
	}
}

func pendingKey(id string) []byte {
	return []byte(prefixPending + id)
}
