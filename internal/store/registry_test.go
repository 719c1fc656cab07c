package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/taskstore/internal/testutil"
)

func TestGetOrCreate_InsertsOnce(t *testing.T) {
	s, _ := createClockedStore(t)
	ctx := context.Background()

	first, created, err := s.GetOrCreate(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "alice", first.Username)
	assert.Equal(t, testutil.DefaultEpoch, first.CreatedAt)
	assert.False(t, first.Configured)

	second, created, err := s.GetOrCreate(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, second)
}

func TestGetOrCreate_EmptyUsername(t *testing.T) {
	s := createTestStore(t)

	_, _, err := s.GetOrCreate(context.Background(), "")
	assert.Error(t, err)
}

func TestGet_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Get(context.Background(), "nobody")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSave_UpdatesMutableColumns(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec, _, err := s.GetOrCreate(ctx, "alice")
	require.NoError(t, err)

	rec.LocalPath = "/var/taskstore/alice/abc"
	rec.SecretID = "secret"
	rec.TaskrcExtras = "uda.points.type=numeric"
	rec.Configured = true
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestSave_UnknownRecord(t *testing.T) {
	s := createTestStore(t)

	err := s.Save(context.Background(), Record{ID: 42})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestList_OrderedByID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"carol", "alice", "bob"} {
		_, _, err := s.GetOrCreate(ctx, name)
		require.NoError(t, err)
	}

	records, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "carol", records[0].Username)
	assert.Equal(t, "alice", records[1].Username)
	assert.Equal(t, "bob", records[2].Username)
}
