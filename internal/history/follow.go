// File: internal/history/follow.go
package history

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hpcloud/tail"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

// FollowOptions controls where Follow starts reading.
type FollowOptions struct {
	// FromStart replays existing records before following new ones.
	FromStart bool
	Logger    *zap.Logger
}

// Follow tails a JSONL history file and calls fn for every record appended
// to it until ctx is done or fn returns an error. Lines that do not decode
// are logged and skipped.
func Follow(ctx context.Context, path string, opts FollowOptions, fn func(Record) error) error {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("history-follow")

	if path == "" {
		path = DefaultJSONLPath
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return stateErr("follow", err)
	}

	seek := &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	if opts.FromStart {
		seek = &tail.SeekInfo{Offset: 0, Whence: io.SeekStart}
	}
	t, err := tail.TailFile(expanded, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Location:  seek,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return stateErrf("follow", "failed to tail history file: %w", err)
	}
	defer func() {
		_ = t.Stop()
		t.Cleanup()
	}()

	logger.Info("Following execution history", zap.String("path", expanded))
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				logger.Warn("Error reading history file", zap.Error(line.Err))
				continue
			}
			text := strings.TrimSpace(line.Text)
			if text == "" {
				continue
			}
			var rec Record
			if err := json.UnmarshalFromString(text, &rec); err != nil {
				logger.Warn("Skipping invalid JSON line in history", zap.Error(err))
				continue
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
	}
}

// PrintRecord writes a one-line human summary of rec.
func PrintRecord(w io.Writer, rec Record) {
	status := "FAIL"
	if rec.Success {
		status = "OK"
	}
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintf(w, "%s  %-4s  %-12s  step=%-20s claims=%d confidence=%.2f",
		rec.Timestamp.Format("2006-01-02 15:04:05Z07:00"), status, rec.Account, rec.Step,
		rec.ClaimsProcessed, rec.DetectionConfidence)
	if rec.DryRun {
		fmt.Fprint(w, " dry-run")
	}
	if len(rec.Errors) > 0 {
		fmt.Fprintf(w, " error=%q", rec.Errors[0])
	}
	fmt.Fprintln(w)
}
