// File: internal/history/postgres.go
package history

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DBPool abstracts *pgxpool.Pool so the sink can be tested with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

const (
	sqlCreateHistory = `
        CREATE TABLE IF NOT EXISTS checkin_history (
            id          BIGSERIAL PRIMARY KEY,
            run_id      TEXT NOT NULL,
            account     TEXT NOT NULL,
            recorded_at TIMESTAMPTZ NOT NULL,
            success     BOOLEAN NOT NULL,
            step        TEXT NOT NULL,
            record      JSONB NOT NULL
        );
    `
	sqlCreateHistoryIndex = `CREATE INDEX IF NOT EXISTS checkin_history_recorded_at_idx ON checkin_history (recorded_at);`
	sqlInsertHistory      = `
        INSERT INTO checkin_history (run_id, account, recorded_at, success, step, record)
        VALUES ($1, $2, $3, $4, $5, $6);
    `
	sqlSelectHistory = `SELECT record FROM checkin_history ORDER BY recorded_at DESC LIMIT $1;`
	sqlHistoryStats  = `
        SELECT COUNT(*), COUNT(*) FILTER (WHERE success)
        FROM checkin_history
        WHERE recorded_at >= $1;
    `
	sqlPruneHistory = `DELETE FROM checkin_history WHERE recorded_at < $1;`
)

// PostgresSink stores records in a PostgreSQL table, one row per run, with
// the full record kept as JSONB.
type PostgresSink struct {
	pool DBPool
	log  *zap.Logger
	now  func() time.Time
}

var _ Sink = (*PostgresSink)(nil)

// OpenPostgres connects to dsn and prepares the schema.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, stateErrf("postgres.open", "failed to create connection pool: %w", err)
	}
	s, err := NewPostgresSink(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresSink verifies the connection and creates the table if needed.
func NewPostgresSink(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, stateErrf("postgres.open", "failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlCreateHistory); err != nil {
		return nil, stateErrf("postgres.open", "failed to create history table: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlCreateHistoryIndex); err != nil {
		return nil, stateErrf("postgres.open", "failed to create history index: %w", err)
	}
	return &PostgresSink{pool: pool, log: logger.Named("history"), now: time.Now}, nil
}

func (s *PostgresSink) Append(ctx context.Context, rec Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}
	rec.Timestamp = rec.Timestamp.UTC()
	body, err := json.Marshal(rec)
	if err != nil {
		return stateErrf("postgres.append", "failed to encode record: %w", err)
	}
	if _, err := s.pool.Exec(ctx, sqlInsertHistory,
		rec.RunID, rec.Account, rec.Timestamp, rec.Success, rec.Step, body,
	); err != nil {
		return stateErrf("postgres.append", "failed to insert record: %w", err)
	}
	s.log.Info("Execution result logged", zap.Bool("success", rec.Success), zap.String("run_id", rec.RunID))
	return nil
}

func (s *PostgresSink) Query(ctx context.Context, limit int) ([]Record, error) {
	// LIMIT NULL is no limit.
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx, sqlSelectHistory, lim)
	if err != nil {
		return nil, stateErrf("postgres.query", "failed to query history: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, stateErrf("postgres.query", "failed to scan history row: %w", err)
		}
		var rec Record
		if err := json.Unmarshal(body, &rec); err != nil {
			s.log.Warn("Skipping undecodable history row", zap.Error(err))
			continue
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, stateErrf("postgres.query", "error during row iteration: %w", err)
	}
	return recs, nil
}

func (s *PostgresSink) SuccessRate(ctx context.Context, days int) (Stats, error) {
	now := s.now()
	var total, ok int64
	if err := s.pool.QueryRow(ctx, sqlHistoryStats, windowStart(now, days)).Scan(&total, &ok); err != nil {
		return Stats{}, stateErrf("postgres.stats", "failed to compute success rate: %w", err)
	}
	return newStats(int(total), int(ok), days, now), nil
}

func (s *PostgresSink) Prune(ctx context.Context, keepDays int) (int, error) {
	tag, err := s.pool.Exec(ctx, sqlPruneHistory, pruneCutoff(s.now(), keepDays))
	if err != nil {
		return 0, stateErrf("postgres.prune", "failed to prune history: %w", err)
	}
	n := int(tag.RowsAffected())
	s.log.Info("Cleaned up old history rows", zap.Int("removed", n))
	return n, nil
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
