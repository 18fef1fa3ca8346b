// File: internal/history/history.go
package history

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dailyclaim/internal/config"
	"github.com/xkilldash9x/dailyclaim/internal/failure"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record is one execution of the check-in workflow, flattened for storage.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	Account   string    `json:"account"`
	Success   bool      `json:"success"`
	Step      string    `json:"step_completed"`
	DryRun    bool      `json:"dry_run"`
	Attempt   int       `json:"attempt"`

	RewardsFound         int     `json:"rewards_found"`
	ClaimableFound       int     `json:"claimable_found"`
	DetectionConfidence  float64 `json:"detection_confidence"`
	PrimaryStrategy      string  `json:"primary_strategy,omitempty"`
	ClaimsProcessed      int     `json:"claims_processed"`
	ClaimValidated       bool    `json:"claim_validated"`
	ValidationConfidence float64 `json:"validation_confidence"`

	// Errors holds at most three redacted error messages.
	Errors           []string `json:"errors,omitempty"`
	ErrorKind        string   `json:"error_kind,omitempty"`
	RetryRecommended bool     `json:"retry_recommended"`
	CleanupCompleted bool     `json:"cleanup_completed"`
	DurationSeconds  float64  `json:"duration_seconds"`
}

// Stats summarizes runs over a trailing window.
type Stats struct {
	Total      int       `json:"total_executions" yaml:"total_executions"`
	Successful int       `json:"successful_executions" yaml:"successful_executions"`
	Rate       float64   `json:"success_rate" yaml:"success_rate"`
	Days       int       `json:"period_days" yaml:"period_days"`
	Timestamp  time.Time `json:"analysis_timestamp" yaml:"analysis_timestamp"`
}

// Sink persists workflow records. Implementations serialize their own writes
// and are safe for concurrent use.
type Sink interface {
	Append(ctx context.Context, rec Record) error
	// Query returns records most recent first. limit <= 0 means all.
	Query(ctx context.Context, limit int) ([]Record, error)
	SuccessRate(ctx context.Context, days int) (Stats, error)
	// Prune deletes records older than keepDays and reports how many were removed.
	Prune(ctx context.Context, keepDays int) (int, error)
	Close() error
}

// Open creates the sink selected by cfg.Driver.
func Open(ctx context.Context, cfg config.HistoryConfig, logger *zap.Logger) (Sink, error) {
	switch cfg.Driver {
	case config.HistoryJSONL, "":
		return NewJSONLSink(cfg.Path, logger)
	case config.HistorySQLite:
		return OpenSQLite(ctx, cfg.Path, logger)
	case config.HistoryPostgres:
		return OpenPostgres(ctx, cfg.DSN, logger)
	default:
		return nil, failure.New(failure.KindConfiguration, "history.open", "unknown history driver %q", cfg.Driver)
	}
}

// windowStart is midnight UTC of the current day minus days.
func windowStart(now time.Time, days int) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -days)
}

// pruneCutoff is exactly keepDays before now.
func pruneCutoff(now time.Time, keepDays int) time.Time {
	return now.UTC().AddDate(0, 0, -keepDays)
}

func newStats(total, successful, days int, now time.Time) Stats {
	s := Stats{Total: total, Successful: successful, Days: days, Timestamp: now.UTC()}
	if total > 0 {
		s.Rate = math.Round(float64(successful)/float64(total)*100*100) / 100
	}
	return s
}

func sortRecent(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Timestamp.After(recs[j].Timestamp)
	})
}

func stateErr(op string, err error) error {
	return failure.Wrap(failure.KindStateManagement, "history."+op, err)
}

func stateErrf(op, format string, args ...any) error {
	return stateErr(op, fmt.Errorf(format, args...))
}
