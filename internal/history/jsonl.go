// File: internal/history/jsonl.go
package history

import (
	"bufio"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

// DefaultJSONLPath is used when no path is configured.
const DefaultJSONLPath = "logs/execution_history.jsonl"

// maxLineSize bounds a single history line.
const maxLineSize = 1 << 20

// JSONLSink appends one JSON object per line to a local file.
type JSONLSink struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
	now    func() time.Time
}

var _ Sink = (*JSONLSink)(nil)

// NewJSONLSink creates the file and its parent directory if needed.
func NewJSONLSink(path string, logger *zap.Logger) (*JSONLSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		path = DefaultJSONLPath
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, stateErr("jsonl.open", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return nil, stateErrf("jsonl.open", "failed to create history directory: %w", err)
	}
	f, err := os.OpenFile(expanded, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, stateErrf("jsonl.open", "failed to create history file: %w", err)
	}
	_ = f.Close()

	return &JSONLSink{
		path:   expanded,
		logger: logger.Named("history"),
		now:    time.Now,
	}, nil
}

// Path is the resolved file path.
func (s *JSONLSink) Path() string { return s.path }

func (s *JSONLSink) Append(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now().UTC()
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return stateErrf("jsonl.append", "failed to encode record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return stateErrf("jsonl.append", "failed to open history file: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return stateErrf("jsonl.append", "failed to write record: %w", err)
	}
	if err := f.Close(); err != nil {
		return stateErr("jsonl.append", err)
	}

	s.logger.Info("Execution result logged",
		zap.Bool("success", rec.Success),
		zap.Time("timestamp", rec.Timestamp),
	)
	return nil
}

// readAll loads every decodable record in file order. Callers hold mu.
func (s *JSONLSink) readAll() ([]Record, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, stateErr("jsonl.read", err)
	}
	defer f.Close()

	var recs []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			s.logger.Warn("Skipping invalid JSON line in history", zap.Error(err))
			continue
		}
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, stateErr("jsonl.read", err)
	}
	return recs, nil
}

func (s *JSONLSink) Query(ctx context.Context, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	recs, err := s.readAll()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	sortRecent(recs)
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (s *JSONLSink) SuccessRate(ctx context.Context, days int) (Stats, error) {
	recs, err := s.Query(ctx, 0)
	if err != nil {
		return Stats{}, err
	}
	now := s.now()
	start := windowStart(now, days)
	var total, ok int
	for _, r := range recs {
		if r.Timestamp.Before(start) {
			continue
		}
		total++
		if r.Success {
			ok++
		}
	}
	st := newStats(total, ok, days, now)
	s.logger.Info("Success rate calculated",
		zap.Int("total_executions", st.Total),
		zap.Int("successful_executions", st.Successful),
		zap.Float64("success_rate", st.Rate),
	)
	return st, nil
}

// Prune rewrites the file keeping records newer than keepDays, in
// chronological order. The rewrite goes through a temp file and a rename.
func (s *JSONLSink) Prune(ctx context.Context, keepDays int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.readAll()
	if err != nil {
		return 0, err
	}
	cutoff := pruneCutoff(s.now(), keepDays)
	kept := recs[:0:0]
	for _, r := range recs {
		if !r.Timestamp.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	removed := len(recs) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".history-*.jsonl")
	if err != nil {
		return 0, stateErr("jsonl.prune", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, r := range kept {
		line, err := json.Marshal(r)
		if err != nil {
			_ = tmp.Close()
			return 0, stateErr("jsonl.prune", err)
		}
		_, _ = w.Write(line)
		_ = w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return 0, stateErr("jsonl.prune", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, stateErr("jsonl.prune", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return 0, stateErr("jsonl.prune", err)
	}

	s.logger.Info("Cleaned up old log entries", zap.Int("removed", removed), zap.Int("retained", len(kept)))
	return removed, nil
}

func (s *JSONLSink) Close() error { return nil }
