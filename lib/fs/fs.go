// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stratafs/strata/lib/clock"
	"github.com/stratafs/strata/lib/codec"
	"github.com/stratafs/strata/lib/keycodec"
	"github.com/stratafs/strata/lib/kv"
)

// FormatVersion is the current on-store format. Readers refuse to
// open a store written by a newer version.
const FormatVersion uint32 = 1

// Default resource tuning, overridable through Options.
const (
	// DefaultCacheBudget is the writeback cache's global byte budget.
	DefaultCacheBudget = 256 << 20
	// DefaultCacheCeiling is the per-file writeback ceiling; files
	// that would grow past it bypass the cache.
	DefaultCacheCeiling = 512 << 10
	// DefaultDrainInterval paces the tombstone drain.
	DefaultDrainInterval = 30 * time.Second
)

// formatRecord is the SYSTEM record written once, at format time.
type formatRecord struct {
	Version   uint32 `cbor:"version"`
	CreatedAt int64  `cbor:"created_at"`

	// KeyFingerprint is the encrypting layer's master-key
	// fingerprint. Opening with a different key fails here, once,
	// instead of failing authentication on every value.
	KeyFingerprint []byte `cbor:"key_fingerprint,omitempty"`
}

// Options configures Format and Open.
type Options struct {
	// Store is the (typically encrypted) key-value store. The caller
	// retains ownership and closes it after Close.
	Store kv.Store

	// Clock supplies timestamps and background pacing. nil means the
	// real clock.
	Clock clock.Clock

	// Logger receives corruption warnings and background-task
	// progress. nil means slog.Default().
	Logger *slog.Logger

	// KeyFingerprint is the master-key fingerprint from
	// kv.(*Encrypted).Fingerprint. Recorded by Format, verified by
	// Open. Empty skips the check (unencrypted stores).
	KeyFingerprint []byte

	// CacheBudget and CacheCeiling tune the writeback cache; zero
	// selects the defaults.
	CacheBudget  int64
	CacheCeiling uint64

	// MaxBytes and MaxInodes are quotas; zero means unlimited.
	MaxBytes  uint64
	MaxInodes uint64

	// DrainInterval paces the tombstone drain; zero selects the
	// default.
	DrainInterval time.Duration
}

func (o *Options) withDefaults() Options {
	options := *o
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.CacheBudget == 0 {
		options.CacheBudget = DefaultCacheBudget
	}
	if options.CacheCeiling == 0 {
		options.CacheCeiling = DefaultCacheCeiling
	}
	if options.DrainInterval == 0 {
		options.DrainInterval = DefaultDrainInterval
	}
	return options
}

// FileSystem is the engine: every store, the writeback cache, the
// lock table, the background tombstone drain, and the dataset
// registry, owned as explicitly constructed values with one
// lifecycle — built by Open, torn down by Close.
type FileSystem struct {
	store  kv.Store
	clock  clock.Clock
	logger *slog.Logger

	inodes     *inodeStore
	dirs       *dirStore
	chunks     *chunkStore
	stats      *stats
	cache      *writebackCache
	tombstones *tombstoneQueue
	registry   *datasetRegistry
	locks      *lockTable

	// renameBarrier coordinates cross-directory renames (shared)
	// against snapshot cloning's directory-tree walks (exclusive).
	renameBarrier sync.RWMutex

	cancelDrain context.CancelFunc
}

// Format initializes an empty store: the format record, the root
// directory inode, the primary dataset, the registry, the inode
// allocator, and the stats counters (zero bytes used, one inode for
// the root) — one batch. Fails ErrExist on a
// store that is already formatted.
func Format(ctx context.Context, options Options) error {
	opts := options.withDefaults()

	_, err := opts.Store.Get(ctx, keycodec.SystemKey(keycodec.SystemFormat))
	switch {
	case err == nil:
		return fmt.Errorf("%w: store is already formatted", ErrExist)
	case !errors.Is(err, kv.ErrKeyNotFound):
		return fmt.Errorf("probing format record: %w", mapKVError(err))
	}

	now := opts.Clock.Now()
	batch := opts.Store.NewBatch()

	record, err := codec.Marshal(formatRecord{
		Version:        FormatVersion,
		CreatedAt:      now.Unix(),
		KeyFingerprint: opts.KeyFingerprint,
	})
	if err != nil {
		return fmt.Errorf("encoding format record: %w", err)
	}
	batch.Put(keycodec.SystemKey(keycodec.SystemFormat), record)
	batch.Put(keycodec.SystemKey(keycodec.SystemNextInode),
		keycodec.EncodeCounter(RootInode+1))

	root := newDirectoryInode(RootInode, RootInode, 0o755, Root, now)
	rootData, err := encodeInode(root)
	if err != nil {
		return err
	}
	batch.Put(keycodec.InodeKey(RootInode), rootData)

	batch.Put(keycodec.StatsKey(keycodec.StatsUsedBytes), keycodec.EncodeCounter(0))
	batch.Put(keycodec.StatsKey(keycodec.StatsInodeCount), keycodec.EncodeCounter(1))

	if err := initRegistry(batch, RootInode, now.Unix()); err != nil {
		return err
	}
	if err := batch.Commit(ctx); err != nil {
		return mapKVError(err)
	}
	return opts.Store.Flush(ctx, true)
}

// Open loads a formatted store and starts the background tombstone
// drain. The returned FileSystem must be closed.
func Open(ctx context.Context, options Options) (*FileSystem, error) {
	opts := options.withDefaults()

	data, err := opts.Store.Get(ctx, keycodec.SystemKey(keycodec.SystemFormat))
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: store is not formatted", ErrNotFound)
		}
		return nil, fmt.Errorf("reading format record: %w", mapKVError(err))
	}
	var format formatRecord
	if err := codec.Unmarshal(data, &format); err != nil {
		return nil, fmt.Errorf("%w: format record: %v", ErrInvalidData, err)
	}
	if format.Version > FormatVersion {
		return nil, fmt.Errorf("%w: store format version %d is newer than supported %d",
			ErrInvalidData, format.Version, FormatVersion)
	}
	if len(opts.KeyFingerprint) != 0 && len(format.KeyFingerprint) != 0 &&
		!bytes.Equal(opts.KeyFingerprint, format.KeyFingerprint) {
		return nil, fmt.Errorf("%w: master key does not match this store", ErrPermission)
	}

	nextInode, err := loadNextInode(ctx, opts.Store)
	if err != nil {
		return nil, err
	}
	counters, err := loadStats(ctx, opts.Store, opts.MaxBytes, opts.MaxInodes)
	if err != nil {
		return nil, err
	}
	registry, err := loadRegistry(ctx, opts.Store)
	if err != nil {
		return nil, err
	}

	chunks := newChunkStore(opts.Store)
	queue := newTombstoneQueue(opts.Store, chunks, opts.Clock,
		opts.Logger.With("component", "tombstone-drain"), opts.DrainInterval)
	if err := queue.loadSequence(ctx); err != nil {
		return nil, err
	}

	f := &FileSystem{
		store:      opts.Store,
		clock:      opts.Clock,
		logger:     opts.Logger,
		inodes:     newInodeStore(opts.Store, nextInode),
		dirs:       newDirStore(opts.Store, opts.Logger),
		chunks:     chunks,
		stats:      counters,
		cache:      newWritebackCache(opts.CacheBudget, opts.CacheCeiling),
		tombstones: queue,
		registry:   registry,
		locks:      newLockTable(),
	}

	drainCtx, cancel := context.WithCancel(context.Background())
	f.cancelDrain = cancel
	go queue.run(drainCtx)

	return f, nil
}

// Close stops the background drain, demotes the writeback cache, and
// awaits durability. The underlying store remains open; the caller
// closes it.
func (f *FileSystem) Close(ctx context.Context) error {
	f.cancelDrain()
	f.tombstones.wait()
	return f.FlushAll(ctx, true)
}

// StatFS returns the global counters.
func (f *FileSystem) StatFS() (usedBytes, inodeCount uint64) {
	return f.stats.Totals()
}

// DrainTombstones synchronously drains every pending tombstone.
// Exposed for the admin plane and tests; the background task does the
// same work continuously.
func (f *FileSystem) DrainTombstones(ctx context.Context) error {
	_, err := f.tombstones.drainOnce(ctx)
	return err
}

// View binds the engine to one dataset. All filesystem operations
// flow through a View; mutations through a read-only dataset
// (snapshots, by default) fail ErrReadOnly.
type View struct {
	fs      *FileSystem
	dataset Dataset
}

// DefaultView returns a view of the default dataset.
func (f *FileSystem) DefaultView() (*View, error) {
	return f.ViewByID(f.registry.defaultID())
}

// ViewByID returns a view of the identified dataset.
func (f *FileSystem) ViewByID(id uint64) (*View, error) {
	ds, err := f.registry.byID(id)
	if err != nil {
		return nil, err
	}
	return &View{fs: f, dataset: *ds}, nil
}

// ViewByName returns a view of the named dataset.
func (f *FileSystem) ViewByName(name string) (*View, error) {
	ds, err := f.registry.byName(name)
	if err != nil {
		return nil, err
	}
	return &View{fs: f, dataset: *ds}, nil
}

// Root returns the view's root directory inode id.
func (v *View) Root() uint64 { return v.dataset.RootInode }

// Dataset returns the view's dataset record.
func (v *View) Dataset() Dataset { return v.dataset }

// writable fails ErrReadOnly for mutations through a read-only
// dataset.
func (v *View) writable() error {
	if v.dataset.ReadOnly {
		return fmt.Errorf("dataset %q: %w", v.dataset.Name, ErrReadOnly)
	}
	return nil
}

// StatFS returns the global byte and inode counters.
func (v *View) StatFS() (usedBytes, inodeCount uint64) {
	return v.fs.StatFS()
}

// newDirectoryInode builds a fresh directory inode record.
func newDirectoryInode(id, parent uint64, mode uint16, creds Credentials, now time.Time) *Inode {
	inode := &Inode{
		ID:        id,
		Kind:      KindDirectory,
		Mode:      mode,
		UID:       creds.UID,
		GID:       creds.GID,
		LinkCount: 1,
		Parent:    parent,
	}
	stampTimes(inode, now, true, true, true)
	return inode
}

// stampTimes sets the selected timestamps to now.
func stampTimes(inode *Inode, now time.Time, atime, mtime, ctime bool) {
	sec, nsec := now.Unix(), uint32(now.Nanosecond())
	if atime {
		inode.Atime, inode.AtimeNsec = sec, nsec
	}
	if mtime {
		inode.Mtime, inode.MtimeNsec = sec, nsec
	}
	if ctime {
		inode.Ctime, inode.CtimeNsec = sec, nsec
	}
}
