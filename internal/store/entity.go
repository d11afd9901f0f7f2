package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Entity provides generic CRUD operations for any domain type.
//
// Every method has a *Txn variant so several entities can be changed in one
// badger transaction.
type Entity[T any] struct {
	store   *Store
	prefix  string
	indexes []Index[T]
}

// Index defines a secondary index on an entity.
// Index keys are stored as prefix + "idx:" + name + ":" + key with the entity ID as value.
type Index[T any] struct {
	name        string
	keyGen      func(*T) []string
	conflictErr error
}

// NewEntity creates a new Entity instance for type T.
func NewEntity[T any](s *Store, prefix string) *Entity[T] {
	return &Entity[T]{
		store:   s,
		prefix:  prefix,
		indexes: make([]Index[T], 0),
	}
}

// WithIndex adds a secondary index to the entity.
// Keys must be unique per entity; include the entity ID when several
// entities share a logical value.
func (e *Entity[T]) WithIndex(name string, keyGen func(*T) []string) *Entity[T] {
	return e.WithUniqueIndex(name, keyGen, ErrAlreadyExists)
}

// WithUniqueIndex adds a secondary index whose keys may be held by at most
// one entity. A write that would reuse a held key fails with conflictErr.
func (e *Entity[T]) WithUniqueIndex(name string, keyGen func(*T) []string, conflictErr error) *Entity[T] {
	e.indexes = append(e.indexes, Index[T]{
		name:        name,
		keyGen:      keyGen,
		conflictErr: conflictErr,
	})
	return e
}

func (e *Entity[T]) key(id string) []byte {
	return []byte(e.prefix + id)
}

func (e *Entity[T]) indexPrefix(name string) string {
	return e.prefix + "idx:" + name + ":"
}

func (e *Entity[T]) indexKey(name, value string) []byte {
	return []byte(e.indexPrefix(name) + value)
}

// Create creates a new entity with the given ID.
// Returns ErrAlreadyExists if an entity with this ID already exists.
func (e *Entity[T]) Create(ctx context.Context, id string, entity *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.store.update(func(txn *badger.Txn) error {
		return e.CreateTxn(txn, id, entity)
	})
}

// CreateTxn is Create inside an existing transaction.
func (e *Entity[T]) CreateTxn(txn *badger.Txn, id string, entity *T) error {
	_, err := txn.Get(e.key(id))
	if err == nil {
		return ErrAlreadyExists
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("failed to check existing key: %w", err)
	}
	return e.putTxn(txn, id, entity, nil)
}

// Get retrieves an entity by ID.
// Returns ErrNotFound if the entity does not exist.
func (e *Entity[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entity *T
	err := e.store.view(func(txn *badger.Txn) error {
		var err error
		entity, err = e.GetTxn(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// GetTxn is Get inside an existing transaction.
func (e *Entity[T]) GetTxn(txn *badger.Txn, id string) (*T, error) {
	item, err := txn.Get(e.key(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}

	var entity T
	err = item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, &entity); err != nil {
			return fmt.Errorf("failed to unmarshal entity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

// GetByIndex retrieves an entity by an exact secondary index key.
func (e *Entity[T]) GetByIndex(ctx context.Context, indexName, value string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entity *T
	err := e.store.view(func(txn *badger.Txn) error {
		var err error
		entity, err = e.GetByIndexTxn(txn, indexName, value)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// GetByIndexTxn is GetByIndex inside an existing transaction.
func (e *Entity[T]) GetByIndexTxn(txn *badger.Txn, indexName, value string) (*T, error) {
	item, err := txn.Get(e.indexKey(indexName, value))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var id string
	if err := item.Value(func(val []byte) error {
		id = string(val)
		return nil
	}); err != nil {
		return nil, err
	}
	return e.GetTxn(txn, id)
}

// UpsertTxn creates or replaces an entity inside an existing transaction.
func (e *Entity[T]) UpsertTxn(txn *badger.Txn, id string, entity *T) error {
	old, err := e.GetTxn(txn, id)
	if errors.Is(err, ErrNotFound) {
		return e.putTxn(txn, id, entity, nil)
	}
	if err != nil {
		return err
	}
	return e.putTxn(txn, id, entity, old)
}

// putTxn writes entity and its index keys. old, when set, is the stored
// version whose index keys are replaced.
func (e *Entity[T]) putTxn(txn *badger.Txn, id string, entity, old *T) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	for _, idx := range e.indexes {
		oldKeys := make(map[string]bool)
		if old != nil {
			for _, k := range idx.keyGen(old) {
				oldKeys[k] = true
			}
		}

		newKeys := idx.keyGen(entity)
		keep := make(map[string]bool, len(newKeys))
		for _, k := range newKeys {
			keep[k] = true
		}

		// Drop index keys the new version no longer produces.
		for k := range oldKeys {
			if keep[k] {
				continue
			}
			if err := txn.Delete(e.indexKey(idx.name, k)); err != nil {
				return fmt.Errorf("failed to delete old index key: %w", err)
			}
		}

		for _, k := range newKeys {
			if oldKeys[k] {
				continue
			}
			_, err := txn.Get(e.indexKey(idx.name, k))
			if err == nil {
				return fmt.Errorf("index %s conflict on key %s: %w", idx.name, k, idx.conflictErr)
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("failed to check index key: %w", err)
			}
			if err := txn.Set(e.indexKey(idx.name, k), []byte(id)); err != nil {
				return fmt.Errorf("failed to set index key: %w", err)
			}
		}
	}

	if err := txn.Set(e.key(id), data); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

// DeleteTxn deletes an entity inside an existing transaction and reports
// whether it existed.
func (e *Entity[T]) DeleteTxn(txn *badger.Txn, id string) (bool, error) {
	entity, err := e.GetTxn(txn, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	for _, idx := range e.indexes {
		for _, k := range idx.keyGen(entity) {
			if err := txn.Delete(e.indexKey(idx.name, k)); err != nil {
				return false, fmt.Errorf("failed to delete index key: %w", err)
			}
		}
	}

	if err := txn.Delete(e.key(id)); err != nil {
		return false, fmt.Errorf("failed to delete key: %w", err)
	}
	return true, nil
}

// ScanIndexTxn returns the entities whose index key lies in [from, to),
// in key order. An empty to scans every key that starts with from.
func (e *Entity[T]) ScanIndexTxn(ctx context.Context, txn *badger.Txn, indexName, from, to string) ([]*T, error) {
	base := e.indexPrefix(indexName)
	start := []byte(base + from)
	var end []byte
	if to != "" {
		end = []byte(base + to)
	}

	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(base)
	if to == "" {
		opts.Prefix = start
	}

	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Seek(start); it.ValidForPrefix(opts.Prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if end != nil && bytes.Compare(it.Item().Key(), end) >= 0 {
			break
		}
		err := it.Item().Value(func(val []byte) error {
			ids = append(ids, string(val))
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to read index value: %w", err)
		}
	}

	result := make([]*T, 0, len(ids))
	for _, id := range ids {
		entity, err := e.GetTxn(txn, id)
		if errors.Is(err, ErrNotFound) {
			// Dangling index key; skip rather than fail the whole scan.
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, entity)
	}
	return result, nil
}

// ScanIndex is ScanIndexTxn in its own read-only transaction.
func (e *Entity[T]) ScanIndex(ctx context.Context, indexName, from, to string) ([]*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result []*T
	err := e.store.view(func(txn *badger.Txn) error {
		var err error
		result, err = e.ScanIndexTxn(ctx, txn, indexName, from, to)
		return err
	})
	return result, err
}
