package store_test

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/readtime-server/internal/store"
)

type testEntity struct {
	ID     string `json:"id"`
	Owner  string `json:"owner"`
	Active bool   `json:"active"`
}

func newTestEntity(s *store.Store) *store.Entity[testEntity] {
	return store.NewEntity[testEntity](s, "test:").
		WithUniqueIndex("active_owner", func(e *testEntity) []string {
			if !e.Active {
				return nil
			}
			return []string{e.Owner}
		}, store.ErrOpenSessionExists).
		WithIndex("owner", func(e *testEntity) []string {
			return []string{e.Owner + ":" + e.ID}
		})
}

func TestEntity_CreateGetDelete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	entity := newTestEntity(s)

	require.NoError(t, entity.Create(ctx, "1", &testEntity{ID: "1", Owner: "alice"}))

	got, err := entity.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Owner)

	err = entity.Create(ctx, "1", &testEntity{ID: "1", Owner: "bob"})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	assert.True(t, deleteEntity(t, s, entity, "1"))
	_, err = entity.Get(ctx, "1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.False(t, deleteEntity(t, s, entity, "1"))
}

func deleteEntity(t *testing.T, s *store.Store, entity *store.Entity[testEntity], id string) bool {
	t.Helper()
	var existed bool
	require.NoError(t, s.UpdateTxn(func(txn *badger.Txn) error {
		var err error
		existed, err = entity.DeleteTxn(txn, id)
		return err
	}))
	return existed
}

func upsertEntity(s *store.Store, entity *store.Entity[testEntity], e *testEntity) error {
	return s.UpdateTxn(func(txn *badger.Txn) error {
		return entity.UpsertTxn(txn, e.ID, e)
	})
}

func TestEntity_UniqueIndexConflict(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	entity := newTestEntity(s)

	require.NoError(t, entity.Create(ctx, "1", &testEntity{ID: "1", Owner: "alice", Active: true}))

	err := entity.Create(ctx, "2", &testEntity{ID: "2", Owner: "alice", Active: true})
	assert.ErrorIs(t, err, store.ErrOpenSessionExists)

	// Inactive entities do not hold the key.
	require.NoError(t, entity.Create(ctx, "3", &testEntity{ID: "3", Owner: "alice"}))

	err = upsertEntity(s, entity, &testEntity{ID: "3", Owner: "alice", Active: true})
	assert.ErrorIs(t, err, store.ErrOpenSessionExists)

	// Releasing the key on update lets another entity take it.
	require.NoError(t, upsertEntity(s, entity, &testEntity{ID: "1", Owner: "alice", Active: false}))
	require.NoError(t, upsertEntity(s, entity, &testEntity{ID: "3", Owner: "alice", Active: true}))

	got, err := entity.GetByIndex(ctx, "active_owner", "alice")
	require.NoError(t, err)
	assert.Equal(t, "3", got.ID)
}

func TestEntity_UpsertCreatesMissing(t *testing.T) {
	s := setupTestStore(t)
	entity := newTestEntity(s)

	require.NoError(t, upsertEntity(s, entity, &testEntity{ID: "new", Owner: "carol"}))

	got, err := entity.Get(context.Background(), "new")
	require.NoError(t, err)
	assert.Equal(t, "carol", got.Owner)
}

func TestEntity_ScanIndex(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	entity := newTestEntity(s)

	for _, e := range []testEntity{
		{ID: "b", Owner: "alice"},
		{ID: "a", Owner: "alice"},
		{ID: "c", Owner: "bob"},
	} {
		require.NoError(t, entity.Create(ctx, e.ID, &e))
	}

	alice, err := entity.ScanIndex(ctx, "owner", "alice:", "")
	require.NoError(t, err)
	require.Len(t, alice, 2)
	assert.Equal(t, "a", alice[0].ID)
	assert.Equal(t, "b", alice[1].ID)

	ranged, err := entity.ScanIndex(ctx, "owner", "alice:b", "bob:")
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, "b", ranged[0].ID)
}

func TestEntity_DeleteDropsIndexKeys(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	entity := newTestEntity(s)

	require.NoError(t, entity.Create(ctx, "1", &testEntity{ID: "1", Owner: "alice", Active: true}))
	require.NoError(t, entity.Create(ctx, "2", &testEntity{ID: "2", Owner: "alice"}))

	assert.True(t, deleteEntity(t, s, entity, "1"))

	_, err := entity.GetByIndex(ctx, "active_owner", "alice")
	assert.ErrorIs(t, err, store.ErrNotFound)

	owned, err := entity.ScanIndex(ctx, "owner", "alice:", "")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "2", owned[0].ID)

	// The released unique key is free again.
	require.NoError(t, entity.Create(ctx, "3", &testEntity{ID: "3", Owner: "alice", Active: true}))
}
