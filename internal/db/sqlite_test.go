package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "fit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_CommitAndLoad(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	rec, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	err = s.CommitGeneration(ctx, Commit{
		SessionID:  "s1",
		Generation: 1,
		Artifacts: map[string][]byte{
			KindSegments:     []byte(`[{"id":"a"}]`),
			KindDistribution: []byte(`{"MLE":1}`),
		},
	})
	require.NoError(t, err)

	rec, err = s.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(1), rec.CurrentGeneration)
	assert.False(t, rec.CreatedAt.IsZero())

	arts, err := s.LoadArtifacts(ctx, "s1", 1)
	require.NoError(t, err)
	assert.Len(t, arts, 2)
	assert.JSONEq(t, `{"MLE":1}`, string(arts[KindDistribution]))
}

func TestSQLite_StaleGenerationRejected(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.CommitGeneration(ctx, Commit{SessionID: "s1", Generation: 2, Artifacts: map[string][]byte{KindSegments: []byte(`[]`)}}))

	err := s.CommitGeneration(ctx, Commit{SessionID: "s1", Generation: 2, Artifacts: map[string][]byte{KindSegments: []byte(`["x"]`)}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStaleGeneration))

	// the rejected commit left no trace
	arts, err := s.LoadArtifacts(ctx, "s1", 2)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(arts[KindSegments]))

	rec, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.CurrentGeneration)
}

func TestSQLite_InvalidCommit(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	assert.Error(t, s.CommitGeneration(ctx, Commit{Generation: 1}))
	assert.Error(t, s.CommitGeneration(ctx, Commit{SessionID: "s1", Generation: 0}))
}

func TestSQLite_PruneAndDelete(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	for gen := int64(1); gen <= 3; gen++ {
		require.NoError(t, s.CommitGeneration(ctx, Commit{
			SessionID:  "s1",
			Generation: gen,
			Artifacts:  map[string][]byte{KindExtraction: []byte(`{}`)},
		}))
	}

	require.NoError(t, s.PruneGenerations(ctx, "s1", 3))
	old, err := s.LoadArtifacts(ctx, "s1", 2)
	require.NoError(t, err)
	assert.Empty(t, old)
	cur, err := s.LoadArtifacts(ctx, "s1", 3)
	require.NoError(t, err)
	assert.Len(t, cur, 1)

	require.NoError(t, s.CommitGeneration(ctx, Commit{SessionID: "s2", Generation: 1}))
	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "s1", sessions[0].ID)
	assert.Equal(t, "s2", sessions[1].ID)

	require.NoError(t, s.DeleteSession(ctx, "s1"))
	rec, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, rec)
	gone, err := s.LoadArtifacts(ctx, "s1", 3)
	require.NoError(t, err)
	assert.Empty(t, gone)
}

func TestSQLite_ReopenKeepsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fit.db")
	ctx := context.Background()

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.CommitGeneration(ctx, Commit{SessionID: "s1", Generation: 4, Artifacts: map[string][]byte{KindSegments: []byte(`[]`)}}))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	rec, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(4), rec.CurrentGeneration)
}

func TestOpen_Dispatch(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, "")
	assert.Error(t, err)

	store, err := Open(ctx, filepath.Join(t.TempDir(), "nested", "fit.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	_, ok := store.(*SQLite)
	assert.True(t, ok)
}
