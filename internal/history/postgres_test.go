// File: internal/history/postgres_test.go
package history

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// flexibleSQLMatcher makes a regex that ignores whitespace differences.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func expectSchema(mock pgxmock.PgxPoolIface) {
	mock.ExpectPing()
	mock.ExpectExec(flexibleSQLMatcher(sqlCreateHistory)).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(flexibleSQLMatcher(sqlCreateHistoryIndex)).WillReturnResult(pgxmock.NewResult("CREATE", 0))
}

func newTestPostgres(t *testing.T) (*PostgresSink, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	expectSchema(mock)
	s, err := NewPostgresSink(context.Background(), mock, zap.NewNop())
	require.NoError(t, err)
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

func TestNewPostgresSink(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mock.Close()

		pingErr := errors.New("database unavailable")
		mock.ExpectPing().WillReturnError(pingErr)

		_, err = NewPostgresSink(context.Background(), mock, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should create the schema", func(t *testing.T) {
		_, mock := newTestPostgres(t)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresSink_Append(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts indexed columns and the JSON body", func(t *testing.T) {
		core, logs := observer.New(zapcore.InfoLevel)
		s, mock := newTestPostgres(t)
		s.log = zap.New(core)

		rec := Record{Timestamp: fixedNow, RunID: "r-1", Account: "main", Success: true, Step: "claim_validation"}
		mock.ExpectExec(flexibleSQLMatcher(sqlInsertHistory)).
			WithArgs("r-1", "main", fixedNow, true, "claim_validation", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, s.Append(ctx, rec))
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.Equal(t, 1, logs.FilterMessage("Execution result logged").Len())
	})

	t.Run("wraps insert errors", func(t *testing.T) {
		s, mock := newTestPostgres(t)
		mock.ExpectExec(flexibleSQLMatcher(sqlInsertHistory)).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("disk full"))

		err := s.Append(ctx, Record{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert record")
	})
}

func TestPostgresSink_Query(t *testing.T) {
	ctx := context.Background()
	s, mock := newTestPostgres(t)

	body, err := json.Marshal(Record{Timestamp: fixedNow, RunID: "r-2", Success: true})
	require.NoError(t, err)

	mock.ExpectQuery(flexibleSQLMatcher(sqlSelectHistory)).
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{"record"}).
			AddRow(body).
			AddRow([]byte(`{broken`)))

	recs, err := s.Query(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recs, 1, "undecodable rows are skipped")
	assert.Equal(t, "r-2", recs[0].RunID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_SuccessRate(t *testing.T) {
	ctx := context.Background()
	s, mock := newTestPostgres(t)

	mock.ExpectQuery(flexibleSQLMatcher(sqlHistoryStats)).
		WithArgs(windowStart(fixedNow, 7)).
		WillReturnRows(pgxmock.NewRows([]string{"count", "count"}).AddRow(int64(8), int64(6)))

	st, err := s.SuccessRate(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 8, st.Total)
	assert.Equal(t, 6, st.Successful)
	assert.Equal(t, 75.0, st.Rate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_Prune(t *testing.T) {
	ctx := context.Background()
	s, mock := newTestPostgres(t)

	mock.ExpectExec(flexibleSQLMatcher(sqlPruneHistory)).
		WithArgs(pruneCutoff(fixedNow, 30)).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := s.Prune(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
