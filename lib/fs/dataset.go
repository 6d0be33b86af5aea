// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/stratafs/strata/lib/codec"
	"github.com/stratafs/strata/lib/keycodec"
	"github.com/stratafs/strata/lib/kv"
)

// PrimaryDatasetID is dataset 0: the primary root, created at format
// time and never deleted.
const PrimaryDatasetID uint64 = 0

// PrimaryDatasetName is dataset 0's registry name.
const PrimaryDatasetName = "root"

// Dataset is the persisted record of a named filesystem root. A
// snapshot is a dataset whose IsSnapshot flag is set and whose root
// was produced by the copy-on-write directory clone.
type Dataset struct {
	ID   uint64 `cbor:"id"`
	UUID string `cbor:"uuid"`
	Name string `cbor:"name"`

	// ParentID and ParentUUID identify the source dataset of a
	// snapshot or clone; nil/empty for an origin dataset.
	ParentID   *uint64 `cbor:"parent_id,omitempty"`
	ParentUUID string  `cbor:"parent_uuid,omitempty"`

	// RootInode is this dataset's root directory.
	RootInode uint64 `cbor:"root_inode"`

	CreatedAt int64 `cbor:"created_at"`

	// ReadOnly rejects every mutation through a View of this
	// dataset. Snapshots are read-only: chunks are keyed by inode,
	// so a write through a snapshot-shared file inode would mutate
	// the source's data in place.
	ReadOnly bool `cbor:"readonly"`

	// IsSnapshot marks datasets produced by Snapshot (as opposed to
	// Clone or CreateDataset).
	IsSnapshot bool `cbor:"is_snapshot"`

	// Generation counts modifications of this record.
	Generation uint64 `cbor:"generation"`

	Flags uint64 `cbor:"flags,omitempty"`
}

// registryRecord is the single persisted name→id index plus the
// default-dataset pointer and the id allocator.
type registryRecord struct {
	NextID    uint64            `cbor:"next_id"`
	Names     map[string]uint64 `cbor:"names"`
	DefaultID uint64            `cbor:"default_id"`
}

// datasetRegistry keeps every dataset record in memory, guarded by a
// reader/writer lock, and persists changes in the batch of the
// operation that makes them. The mutex spans compose-and-commit for
// mutations, like the stats counters.
type datasetRegistry struct {
	store kv.Store

	mu       sync.RWMutex
	record   registryRecord
	datasets map[uint64]*Dataset
}

// initRegistry stages the primary dataset and a fresh registry into
// the format batch.
func initRegistry(batch kv.Batch, rootInode uint64, createdAt int64) error {
	primary := &Dataset{
		ID:         PrimaryDatasetID,
		UUID:       uuid.NewString(),
		Name:       PrimaryDatasetName,
		RootInode:  rootInode,
		CreatedAt:  createdAt,
		Generation: 1,
	}
	record := registryRecord{
		NextID:    1,
		Names:     map[string]uint64{PrimaryDatasetName: PrimaryDatasetID},
		DefaultID: PrimaryDatasetID,
	}
	if err := stageDataset(batch, primary); err != nil {
		return err
	}
	return stageRegistry(batch, record)
}

func stageDataset(batch kv.Batch, ds *Dataset) error {
	data, err := codec.Marshal(ds)
	if err != nil {
		return fmt.Errorf("encoding dataset %q: %w", ds.Name, err)
	}
	batch.Put(keycodec.DatasetKey(ds.ID), data)
	return nil
}

func stageRegistry(batch kv.Batch, record registryRecord) error {
	data, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding dataset registry: %w", err)
	}
	batch.Put(keycodec.DatasetRegistryKey(), data)
	return nil
}

// loadRegistry reads the registry record and every dataset record.
func loadRegistry(ctx context.Context, store kv.Store) (*datasetRegistry, error) {
	data, err := store.Get(ctx, keycodec.DatasetRegistryKey())
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: dataset registry missing", ErrInvalidData)
		}
		return nil, fmt.Errorf("reading dataset registry: %w", mapKVError(err))
	}
	registry := &datasetRegistry{store: store, datasets: make(map[uint64]*Dataset)}
	if err := codec.Unmarshal(data, &registry.record); err != nil {
		return nil, fmt.Errorf("%w: dataset registry: %v", ErrInvalidData, err)
	}

	lo, hi := keycodec.DatasetRange()
	iterator, err := store.Scan(ctx, lo, hi)
	if err != nil {
		return nil, mapKVError(err)
	}
	defer iterator.Close()
	for iterator.Next() {
		value, err := iterator.Value()
		if err != nil {
			return nil, mapKVError(err)
		}
		var ds Dataset
		if err := codec.Unmarshal(value, &ds); err != nil {
			return nil, fmt.Errorf("%w: dataset record %x: %v", ErrInvalidData, iterator.Key(), err)
		}
		registry.datasets[ds.ID] = &ds
	}
	if err := iterator.Close(); err != nil {
		return nil, mapKVError(err)
	}

	if _, ok := registry.datasets[registry.record.DefaultID]; !ok {
		return nil, fmt.Errorf("%w: default dataset %d has no record",
			ErrInvalidData, registry.record.DefaultID)
	}
	return registry, nil
}

// byID returns a copy of the dataset record.
func (r *datasetRegistry) byID(id uint64) (*Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ds, ok := r.datasets[id]
	if !ok {
		return nil, fmt.Errorf("dataset %d: %w", id, ErrNotFound)
	}
	copied := *ds
	return &copied, nil
}

// byName returns a copy of the dataset record.
func (r *datasetRegistry) byName(name string) (*Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.record.Names[name]
	if !ok {
		return nil, fmt.Errorf("dataset %q: %w", name, ErrNotFound)
	}
	copied := *r.datasets[id]
	return &copied, nil
}

// list returns copies of all dataset records, ordered by id.
func (r *datasetRegistry) list() []Dataset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Dataset, 0, len(r.datasets))
	for _, ds := range r.datasets {
		result = append(result, *ds)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// defaultID returns the default dataset id.
func (r *datasetRegistry) defaultID() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.record.DefaultID
}

// create allocates an id for a new dataset, fills in template's ID
// and UUID, appends its record and the updated registry to batch, and
// commits. Fails ErrExist on a name collision.
func (r *datasetRegistry) create(ctx context.Context, batch kv.Batch, template Dataset) (*Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if template.Name == "" {
		return nil, fmt.Errorf("%w: empty dataset name", ErrInvalidArgument)
	}
	if _, taken := r.record.Names[template.Name]; taken {
		return nil, fmt.Errorf("dataset %q: %w", template.Name, ErrExist)
	}

	ds := template
	ds.ID = r.record.NextID
	ds.UUID = uuid.NewString()
	ds.Generation = 1

	record := r.record
	record.NextID++
	record.Names = copyNames(r.record.Names)
	record.Names[ds.Name] = ds.ID

	if err := stageDataset(batch, &ds); err != nil {
		return nil, err
	}
	if err := stageRegistry(batch, record); err != nil {
		return nil, err
	}
	if err := batch.Commit(ctx); err != nil {
		return nil, mapKVError(err)
	}

	r.record = record
	stored := ds
	r.datasets[ds.ID] = &stored
	returned := ds
	return &returned, nil
}

// remove deletes a dataset's record and registry entry in one
// committed batch. Dataset 0 is permanent; the default dataset cannot
// be removed while it is the default.
func (r *datasetRegistry) remove(ctx context.Context, id uint64) (*Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ds, ok := r.datasets[id]
	if !ok {
		return nil, fmt.Errorf("dataset %d: %w", id, ErrNotFound)
	}
	if id == PrimaryDatasetID {
		return nil, fmt.Errorf("%w: the primary dataset is permanent", ErrInvalidArgument)
	}
	if id == r.record.DefaultID {
		return nil, fmt.Errorf("%w: dataset %d is the default", ErrInvalidArgument, id)
	}

	record := r.record
	record.Names = copyNames(r.record.Names)
	delete(record.Names, ds.Name)

	batch := r.store.NewBatch()
	batch.Delete(keycodec.DatasetKey(id))
	if err := stageRegistry(batch, record); err != nil {
		return nil, err
	}
	if err := batch.Commit(ctx); err != nil {
		return nil, mapKVError(err)
	}

	r.record = record
	delete(r.datasets, id)
	removed := *ds
	return &removed, nil
}

// setDefault repoints the default dataset.
func (r *datasetRegistry) setDefault(ctx context.Context, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.datasets[id]; !ok {
		return fmt.Errorf("dataset %d: %w", id, ErrNotFound)
	}
	record := r.record
	record.DefaultID = id

	batch := r.store.NewBatch()
	if err := stageRegistry(batch, record); err != nil {
		return err
	}
	if err := batch.Commit(ctx); err != nil {
		return mapKVError(err)
	}
	r.record = record
	return nil
}

func copyNames(names map[string]uint64) map[string]uint64 {
	copied := make(map[string]uint64, len(names))
	for name, id := range names {
		copied[name] = id
	}
	return copied
}
