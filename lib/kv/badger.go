// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// Badger is a Store backed by a Badger LSM tree on local disk (or in
// memory for tests). Badger provides the ordered key space, the
// value log the batch-atomicity guarantee rests on, and cheap
// point-in-time read transactions used as snapshots.
type Badger struct {
	db *badger.DB
}

var _ Store = (*Badger)(nil)

// BadgerOptions configures OpenBadger.
type BadgerOptions struct {
	// Dir is the database directory. Ignored when InMemory is set.
	Dir string

	// InMemory runs the store without touching disk. Used by tests
	// and by the in-process debug tooling.
	InMemory bool

	// Logger receives Badger's internal logging, mapped onto slog
	// levels. nil means slog.Default().
	Logger *slog.Logger
}

// OpenBadger opens (creating if necessary) a Badger-backed store.
//
// SyncWrites is disabled: commits reach the OS promptly but
// durability is explicit, via Flush(ctx, true). This is what lets the
// writeback layer above absorb small writes without paying an fsync
// per operation.
func OpenBadger(options BadgerOptions) (*Badger, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	badgerOptions := badger.DefaultOptions(options.Dir).
		WithInMemory(options.InMemory).
		WithSyncWrites(false).
		WithLogger(slogBadgerLogger{logger: logger.With("component", "badger")})

	db, err := badger.Open(badgerOptions)
	if err != nil {
		return nil, fmt.Errorf("kv: opening badger at %q: %w", options.Dir, err)
	}
	return &Badger{db: db}, nil
}

// Get implements Store.
func (b *Badger) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv: get: %w", err)
	}
	return value, nil
}

// Put implements Store.
func (b *Badger) Put(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return fmt.Errorf("kv: put: %w", err)
	}
	return nil
}

// Delete implements Store.
func (b *Badger) Delete(ctx context.Context, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("kv: delete: %w", err)
	}
	return nil
}

// Scan implements Store. The iterator holds a read transaction open
// until Close.
func (b *Badger) Scan(ctx context.Context, lo, hi []byte) (Iterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	txn := b.db.NewTransaction(false)
	return newBadgerIterator(txn, lo, hi, true), nil
}

// NewBatch implements Store. The batch buffers mutations and applies
// them in a single Badger transaction at Commit, which is what makes
// the commit all-or-nothing across crash recovery.
func (b *Badger) NewBatch() Batch {
	return &badgerBatch{db: b.db}
}

// Flush implements Store. With awaitDurable it syncs the value log
// and memtables to stable storage.
func (b *Badger) Flush(ctx context.Context, awaitDurable bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !awaitDurable {
		return nil
	}
	if err := b.db.Sync(); err != nil {
		return fmt.Errorf("kv: sync: %w", err)
	}
	return nil
}

// Snapshot implements Store. The returned view is a Badger read
// transaction pinned at the current commit timestamp.
func (b *Badger) Snapshot() (Snapshot, error) {
	return &badgerSnapshot{txn: b.db.NewTransaction(false)}, nil
}

// Close implements Store.
func (b *Badger) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("kv: close: %w", err)
	}
	return nil
}

type badgerBatch struct {
	db        *badger.DB
	mutations []mutation
	committed bool
}

type mutation struct {
	key    []byte
	value  []byte // nil means delete
	delete bool
}

func (b *badgerBatch) Put(key, value []byte) {
	b.mutations = append(b.mutations, mutation{
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	})
}

func (b *badgerBatch) Delete(key []byte) {
	b.mutations = append(b.mutations, mutation{
		key:    append([]byte(nil), key...),
		delete: true,
	})
}

func (b *badgerBatch) Len() int { return len(b.mutations) }

func (b *badgerBatch) Commit(ctx context.Context) error {
	if b.committed {
		return errors.New("kv: batch already committed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		for _, m := range b.mutations {
			if m.delete {
				if err := txn.Delete(m.key); err != nil {
					return err
				}
				continue
			}
			if err := txn.Set(m.key, m.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("kv: batch commit (%d mutations): %w", len(b.mutations), err)
	}
	b.committed = true
	return nil
}

type badgerSnapshot struct {
	txn *badger.Txn
}

func (s *badgerSnapshot) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	item, err := s.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv: snapshot get: %w", err)
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("kv: snapshot get: %w", err)
	}
	return value, nil
}

func (s *badgerSnapshot) Scan(ctx context.Context, lo, hi []byte) (Iterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// The iterator borrows the snapshot's transaction; it must not
	// discard it on Close.
	return newBadgerIterator(s.txn, lo, hi, false), nil
}

func (s *badgerSnapshot) Close() error {
	s.txn.Discard()
	return nil
}

type badgerIterator struct {
	txn      *badger.Txn
	iterator *badger.Iterator
	hi       []byte
	ownsTxn  bool
	started  bool
	closed   bool
}

func newBadgerIterator(txn *badger.Txn, lo, hi []byte, ownsTxn bool) *badgerIterator {
	options := badger.DefaultIteratorOptions
	options.PrefetchValues = true
	iterator := txn.NewIterator(options)
	iterator.Seek(lo)
	return &badgerIterator{
		txn:      txn,
		iterator: iterator,
		hi:       append([]byte(nil), hi...),
		ownsTxn:  ownsTxn,
	}
}

func (it *badgerIterator) Next() bool {
	if !it.started {
		it.started = true
	} else if it.iterator.Valid() {
		it.iterator.Next()
	}
	return it.iterator.Valid() && bytes.Compare(it.iterator.Item().Key(), it.hi) < 0
}

func (it *badgerIterator) Key() []byte {
	return it.iterator.Item().Key()
}

func (it *badgerIterator) Value() ([]byte, error) {
	value, err := it.iterator.Item().ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("kv: iterator value: %w", err)
	}
	return value, nil
}

// Close is idempotent: callers commonly pair a deferred Close with
// an explicit error-checking one.
func (it *badgerIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.iterator.Close()
	if it.ownsTxn {
		it.txn.Discard()
	}
	return nil
}

// slogBadgerLogger adapts Badger's logger interface onto slog.
// Badger's INFO-level output (compaction chatter) is demoted to
// Debug; its warnings and errors pass through at level.
type slogBadgerLogger struct {
	logger *slog.Logger
}

func (l slogBadgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l slogBadgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l slogBadgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l slogBadgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
