// File: internal/history/jsonl_test.go
package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/dailyclaim/internal/config"
	"github.com/xkilldash9x/dailyclaim/internal/failure"
)

var fixedNow = time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)

func newTestJSONL(t *testing.T) *JSONLSink {
	t.Helper()
	s, err := NewJSONLSink(filepath.Join(t.TempDir(), "nested", "history.jsonl"), zaptest.NewLogger(t))
	require.NoError(t, err)
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestJSONLSink_AppendAndQuery(t *testing.T) {
	ctx := context.Background()
	s := newTestJSONL(t)

	_, err := os.Stat(s.Path())
	require.NoError(t, err, "file should be created eagerly")

	for i, success := range []bool{true, false, true} {
		require.NoError(t, s.Append(ctx, Record{
			Timestamp: fixedNow.Add(time.Duration(i) * time.Hour),
			RunID:     "run",
			Success:   success,
			Step:      "claim_validation",
		}))
	}

	recs, err := s.Query(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.True(t, recs[0].Timestamp.After(recs[1].Timestamp), "most recent first")
	assert.True(t, recs[1].Timestamp.After(recs[2].Timestamp))

	limited, err := s.Query(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
	assert.Equal(t, recs[0], limited[0])
}

func TestJSONLSink_DefaultsTimestamp(t *testing.T) {
	ctx := context.Background()
	s := newTestJSONL(t)

	require.NoError(t, s.Append(ctx, Record{Success: true}))
	recs, err := s.Query(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Timestamp.Equal(fixedNow))
}

func TestJSONLSink_SkipsCorruptLines(t *testing.T) {
	ctx := context.Background()
	s := newTestJSONL(t)

	require.NoError(t, s.Append(ctx, Record{Timestamp: fixedNow, Success: true}))
	f, err := os.OpenFile(s.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, s.Append(ctx, Record{Timestamp: fixedNow, Success: false}))

	recs, err := s.Query(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestJSONLSink_SuccessRate(t *testing.T) {
	ctx := context.Background()
	s := newTestJSONL(t)

	t.Run("empty history yields zero rate", func(t *testing.T) {
		st, err := s.SuccessRate(ctx, 7)
		require.NoError(t, err)
		assert.Zero(t, st.Total)
		assert.Zero(t, st.Rate)
		assert.Equal(t, 7, st.Days)
	})

	t.Run("counts only the trailing window", func(t *testing.T) {
		for _, r := range []Record{
			{Timestamp: fixedNow.AddDate(0, 0, -1), Success: true},
			{Timestamp: fixedNow.AddDate(0, 0, -2), Success: true},
			{Timestamp: fixedNow.AddDate(0, 0, -3), Success: false},
			{Timestamp: fixedNow.AddDate(0, 0, -30), Success: true},
		} {
			require.NoError(t, s.Append(ctx, r))
		}
		st, err := s.SuccessRate(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, 3, st.Total)
		assert.Equal(t, 2, st.Successful)
		assert.Equal(t, 66.67, st.Rate)
	})
}

func TestJSONLSink_Prune(t *testing.T) {
	ctx := context.Background()
	s := newTestJSONL(t)

	for _, r := range []Record{
		{Timestamp: fixedNow.AddDate(0, 0, -40), RunID: "old-1"},
		{Timestamp: fixedNow.AddDate(0, 0, -31), RunID: "old-2"},
		{Timestamp: fixedNow.AddDate(0, 0, -2), RunID: "new-1"},
		{Timestamp: fixedNow, RunID: "new-2"},
	} {
		require.NoError(t, s.Append(ctx, r))
	}

	removed, err := s.Prune(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	recs, err := s.Query(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "new-2", recs[0].RunID)
	assert.Equal(t, "new-1", recs[1].RunID)

	removed, err = s.Prune(ctx, 30)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestJSONLSink_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s := newTestJSONL(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Append(ctx, Record{Timestamp: fixedNow, Account: "acct", Success: true}))
		}()
	}
	wg.Wait()

	recs, err := s.Query(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, recs, 20, "no interleaved or lost lines")
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("jsonl by default", func(t *testing.T) {
		sink, err := Open(ctx, config.HistoryConfig{Path: filepath.Join(t.TempDir(), "h.jsonl")}, nil)
		require.NoError(t, err)
		assert.IsType(t, &JSONLSink{}, sink)
		require.NoError(t, sink.Close())
	})

	t.Run("sqlite", func(t *testing.T) {
		sink, err := Open(ctx, config.HistoryConfig{Driver: config.HistorySQLite, Path: filepath.Join(t.TempDir(), "h.db")}, nil)
		require.NoError(t, err)
		assert.IsType(t, &SQLiteSink{}, sink)
		require.NoError(t, sink.Close())
	})

	t.Run("unknown driver is a configuration failure", func(t *testing.T) {
		_, err := Open(ctx, config.HistoryConfig{Driver: "mongo"}, nil)
		require.Error(t, err)
		assert.True(t, failure.IsKind(err, failure.KindConfiguration))
	})
}

func TestFollow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s := newTestJSONL(t)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Append(ctx, Record{Timestamp: fixedNow, RunID: id}))
	}

	stop := errors.New("stop")
	var got []string
	err := Follow(ctx, s.Path(), FollowOptions{FromStart: true}, func(r Record) error {
		got = append(got, r.RunID)
		if len(got) == 3 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestFollow_MissingFile(t *testing.T) {
	err := Follow(context.Background(), filepath.Join(t.TempDir(), "absent.jsonl"), FollowOptions{}, func(Record) error { return nil })
	require.Error(t, err)
	assert.True(t, failure.IsKind(err, failure.KindStateManagement))
}
