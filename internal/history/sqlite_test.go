// File: internal/history/sqlite_test.go
package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestSQLite(t *testing.T) *SQLiteSink {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "history.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestSQLiteSink(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	seed := []Record{
		{Timestamp: fixedNow.AddDate(0, 0, -45), RunID: "ancient", Success: true},
		{Timestamp: fixedNow.AddDate(0, 0, -3), RunID: "older", Success: false, Errors: []string{"boom"}},
		{Timestamp: fixedNow.AddDate(0, 0, -1), RunID: "recent", Success: true, ClaimsProcessed: 1},
	}
	for _, r := range seed {
		require.NoError(t, s.Append(ctx, r))
	}

	t.Run("query returns most recent first", func(t *testing.T) {
		recs, err := s.Query(ctx, 0)
		require.NoError(t, err)
		require.Len(t, recs, 3)
		assert.Equal(t, "recent", recs[0].RunID)
		assert.Equal(t, 1, recs[0].ClaimsProcessed)
		assert.Equal(t, "ancient", recs[2].RunID)

		one, err := s.Query(ctx, 1)
		require.NoError(t, err)
		require.Len(t, one, 1)
		assert.Equal(t, "recent", one[0].RunID)
	})

	t.Run("success rate over the window", func(t *testing.T) {
		st, err := s.SuccessRate(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, 2, st.Total)
		assert.Equal(t, 1, st.Successful)
		assert.Equal(t, 50.0, st.Rate)
	})

	t.Run("prune removes old rows", func(t *testing.T) {
		n, err := s.Prune(ctx, 30)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		recs, err := s.Query(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, recs, 2)
	})
}

func TestSQLiteSink_InMemory(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, ":memory:", nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(ctx, Record{Success: true, Errors: []string{"a", "b"}}))
	recs, err := s.Query(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, []string{"a", "b"}, recs[0].Errors)
	assert.False(t, recs[0].Timestamp.IsZero())
}
