// File: internal/history/sqlite.go
package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// DefaultSQLitePath is used when the sqlite driver has no path configured.
const DefaultSQLitePath = "logs/execution_history.db"

const (
	sqliteSchema = `
        CREATE TABLE IF NOT EXISTS checkin_history (
            id          INTEGER PRIMARY KEY AUTOINCREMENT,
            run_id      TEXT NOT NULL,
            account     TEXT NOT NULL,
            recorded_at INTEGER NOT NULL,
            success     INTEGER NOT NULL,
            step        TEXT NOT NULL,
            record      TEXT NOT NULL
        );
        CREATE INDEX IF NOT EXISTS checkin_history_recorded_at_idx ON checkin_history (recorded_at);
    `
	sqliteInsert = `INSERT INTO checkin_history (run_id, account, recorded_at, success, step, record) VALUES (?, ?, ?, ?, ?, ?)`
	sqliteSelect = `SELECT record FROM checkin_history ORDER BY recorded_at DESC, id DESC LIMIT ?`
	sqliteStats  = `SELECT COUNT(*), COALESCE(SUM(success), 0) FROM checkin_history WHERE recorded_at >= ?`
	sqlitePrune  = `DELETE FROM checkin_history WHERE recorded_at < ?`
)

// SQLiteSink stores records in a local SQLite database. Timestamps are kept
// as Unix nanoseconds so ordering and range filters are plain integer compares.
type SQLiteSink struct {
	mu  sync.Mutex
	db  *sql.DB
	log *zap.Logger
	now func() time.Time
}

var _ Sink = (*SQLiteSink)(nil)

// OpenSQLite opens (or creates) the database at path. ":memory:" is accepted.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" || strings.HasSuffix(path, ".jsonl") {
		path = DefaultSQLitePath
	}
	if path != ":memory:" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, stateErr("sqlite.open", err)
		}
		if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
			return nil, stateErrf("sqlite.open", "failed to create history directory: %w", err)
		}
		path = expanded
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, stateErrf("sqlite.open", "failed to open database: %w", err)
	}
	// One writer; SQLite serializes anyway and :memory: is per-connection.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, stateErrf("sqlite.open", "failed to create schema: %w", err)
	}
	return &SQLiteSink{db: db, log: logger.Named("history"), now: time.Now}, nil
}

func (s *SQLiteSink) Append(ctx context.Context, rec Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}
	rec.Timestamp = rec.Timestamp.UTC()
	body, err := json.Marshal(rec)
	if err != nil {
		return stateErrf("sqlite.append", "failed to encode record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, sqliteInsert,
		rec.RunID, rec.Account, rec.Timestamp.UnixNano(), boolInt(rec.Success), rec.Step, string(body),
	); err != nil {
		return stateErrf("sqlite.append", "failed to insert record: %w", err)
	}
	s.log.Info("Execution result logged", zap.Bool("success", rec.Success), zap.String("run_id", rec.RunID))
	return nil
}

func (s *SQLiteSink) Query(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, sqliteSelect, limit)
	if err != nil {
		return nil, stateErrf("sqlite.query", "failed to query history: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, stateErrf("sqlite.query", "failed to scan history row: %w", err)
		}
		var rec Record
		if err := json.UnmarshalFromString(body, &rec); err != nil {
			s.log.Warn("Skipping undecodable history row", zap.Error(err))
			continue
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, stateErr("sqlite.query", err)
	}
	return recs, nil
}

func (s *SQLiteSink) SuccessRate(ctx context.Context, days int) (Stats, error) {
	now := s.now()
	var total, ok int64
	row := s.db.QueryRowContext(ctx, sqliteStats, windowStart(now, days).UnixNano())
	if err := row.Scan(&total, &ok); err != nil {
		return Stats{}, stateErrf("sqlite.stats", "failed to compute success rate: %w", err)
	}
	return newStats(int(total), int(ok), days, now), nil
}

func (s *SQLiteSink) Prune(ctx context.Context, keepDays int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, sqlitePrune, pruneCutoff(s.now(), keepDays).UnixNano())
	if err != nil {
		return 0, stateErrf("sqlite.prune", "failed to prune history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, stateErr("sqlite.prune", err)
	}
	s.log.Info("Cleaned up old history rows", zap.Int64("removed", n))
	return int(n), nil
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
