// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/dailyclaim/internal/browser"
	"github.com/xkilldash9x/dailyclaim/internal/config"
	"github.com/xkilldash9x/dailyclaim/internal/history"
	"github.com/xkilldash9x/dailyclaim/internal/mocks"
)

// fastConfig keeps human-like delays in the millisecond range.
func fastConfig() map[string]any {
	return map[string]any{
		"logger": map[string]any{"level": "error", "log_file": ""},
		"timing": map[string]any{
			"min_delay":        "1ms",
			"page_load_base":   "1ms",
			"click_base":       "1ms",
			"navigation_base":  "1ms",
			"typing_base":      "1ms",
			"random_pause_min": "1ms",
			"random_pause_max": "2ms",
		},
		"detection": map[string]any{"probe_timeout": "10ms", "state_probe_timeout": "10ms"},
		"workflow":  map[string]any{"account_stagger": "0s", "recovery_cooldown": "1ms"},
	}
}

// credentials is a valid cookie-injection auth section.
func credentials() map[string]any {
	return map[string]any{"auth": map[string]any{"ltuid": "12345678", "ltoken": "v2_token"}}
}

func merge(dst, src map[string]any) {
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if existing, ok := dst[k].(map[string]any); ok {
				merge(existing, sub)
				continue
			}
		}
		dst[k] = v
	}
}

// testApp writes a config file to a temp dir and returns an app plus the
// file's path. History lives next to the config file.
func testApp(t *testing.T, overrides ...map[string]any) (*app, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := fastConfig()
	merge(cfg, map[string]any{"history": map[string]any{"path": filepath.Join(dir, "history.jsonl")}})
	for _, o := range overrides {
		merge(cfg, o)
	}
	body, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, body, 0o600))

	return &app{logWriter: io.Discard}, cfgPath
}

func execute(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd_VersionFlag(t *testing.T) {
	// Arrange
	a, _ := testApp(t)

	// Act
	out, err := execute(t, a, "--version")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, &app{logWriter: io.Discard}, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "dailyclaim "+Version)
}

func TestRootCmd_BadConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("logger: [unterminated"), 0o600))

	_, err := execute(t, &app{logWriter: io.Discard}, "--config", cfgPath, "config", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestConfigShow_MasksCredentials(t *testing.T) {
	t.Setenv("DAILYCLAIM_LTOKEN", "v2_supersecrettoken")
	t.Setenv("DAILYCLAIM_HISTORY_DSN", "postgres://claim:hunter2@db:5432/claims")
	a, cfgPath := testApp(t, map[string]any{"auth": map[string]any{"ltuid": "12345678"}})

	out, err := execute(t, a, "--config", cfgPath, "config", "show")
	require.NoError(t, err)

	assert.NotContains(t, out, "supersecrettoken")
	assert.NotContains(t, out, "12345678")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "v2_s***REDACTED***")
	assert.Contains(t, out, "1234***REDACTED***")
	assert.Contains(t, out, "claim:xxxxx@db:5432")
	assert.Contains(t, out, "password: \"\"", "unset secrets stay empty")
}

func TestMaskDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:xxxxx@h/db", maskDSN("postgres://u:p@h/db"))
	assert.Equal(t, "host=h password=***REDACTED*** dbname=x", maskDSN("host=h password=secret dbname=x"))
	assert.Equal(t, "", maskDSN(""))
}

func seedHistory(t *testing.T, path string, recs ...history.Record) {
	t.Helper()
	sink, err := history.NewJSONLSink(path, nil)
	require.NoError(t, err)
	for _, rec := range recs {
		require.NoError(t, sink.Append(context.Background(), rec))
	}
	require.NoError(t, sink.Close())
}

func TestHistoryCommands(t *testing.T) {
	a, cfgPath := testApp(t)
	historyPath := filepath.Join(filepath.Dir(cfgPath), "history.jsonl")
	now := time.Now().UTC()
	seedHistory(t, historyPath,
		history.Record{Timestamp: now.Add(-2 * time.Hour), Account: "alpha", Success: true, Step: "claim_validation", ClaimsProcessed: 1},
		history.Record{Timestamp: now.Add(-time.Hour), Account: "beta", Success: false, Step: "authentication", Errors: []string{"authentication failed"}},
		history.Record{Timestamp: now.AddDate(0, 0, -40), Account: "alpha", Success: true, Step: "no_rewards_to_claim"},
	)

	t.Run("list shows most recent first", func(t *testing.T) {
		a, _ := testApp(t)
		out, err := execute(t, a, "--config", cfgPath, "history", "list", "--limit", "2")
		require.NoError(t, err)
		lines := bytes.Split(bytes.TrimSpace([]byte(out)), []byte("\n"))
		require.Len(t, lines, 2)
		assert.Contains(t, string(lines[0]), "beta")
		assert.Contains(t, string(lines[0]), "FAIL")
		assert.Contains(t, string(lines[1]), "alpha")
	})

	t.Run("list as json", func(t *testing.T) {
		a, _ := testApp(t)
		out, err := execute(t, a, "--config", cfgPath, "history", "list", "-o", "json", "--limit", "0")
		require.NoError(t, err)
		var recs []history.Record
		require.NoError(t, json.UnmarshalFromString(out, &recs))
		assert.Len(t, recs, 3)
	})

	t.Run("stats", func(t *testing.T) {
		a, _ := testApp(t)
		out, err := execute(t, a, "--config", cfgPath, "history", "stats", "--days", "7")
		require.NoError(t, err)
		assert.Contains(t, out, "1/2 successful (50.00%)")
	})

	t.Run("stats rejects a non-positive window", func(t *testing.T) {
		a, _ := testApp(t)
		_, err := execute(t, a, "--config", cfgPath, "history", "stats", "--days", "0")
		assert.Error(t, err)
	})

	t.Run("prune uses the configured retention", func(t *testing.T) {
		out, err := execute(t, a, "--config", cfgPath, "history", "prune")
		require.NoError(t, err)
		assert.Contains(t, out, "Removed 1 record(s) older than 30 days.")

		sink, err := history.NewJSONLSink(historyPath, nil)
		require.NoError(t, err)
		recs, err := sink.Query(context.Background(), 0)
		require.NoError(t, err)
		assert.Len(t, recs, 2)
	})

	t.Run("follow refuses non-jsonl drivers", func(t *testing.T) {
		a, cfgPath := testApp(t)
		t.Setenv("DAILYCLAIM_HISTORY_DRIVER", config.HistorySQLite)
		_, err := execute(t, a, "--config", cfgPath, "history", "follow")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "requires the jsonl driver")
	})
}

func TestRun_RequiresCredentials(t *testing.T) {
	a, cfgPath := testApp(t)
	_, err := execute(t, a, "--config", cfgPath, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "auth.ltuid is required")
}

func TestRun_DryRun(t *testing.T) {
	// Arrange
	a, cfgPath := testApp(t, credentials())
	var opened []*mocks.FakeBrowser
	a.newBrowser = func(context.Context) (browser.Browser, error) {
		fb := mocks.NewFakeBrowser(".signin-btn")
		opened = append(opened, fb)
		return fb, nil
	}

	// Act
	out, err := execute(t, a, "--config", cfgPath, "run", "--dry-run")

	// Assert
	require.NoError(t, err)
	assert.Contains(t, out, "default")
	assert.Contains(t, out, "OK    step=dry_run_complete")
	require.Len(t, opened, 1)
	assert.Empty(t, opened[0].Clicks)
	assert.Len(t, opened[0].Cookies, 2, "ltuid and ltoken are injected")
	assert.Equal(t, 1, opened[0].Closed())

	sink, err := history.NewJSONLSink(filepath.Join(filepath.Dir(cfgPath), "history.jsonl"), nil)
	require.NoError(t, err)
	recs, err := sink.Query(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].DryRun)
}

func TestRun_FailureIsReported(t *testing.T) {
	a, cfgPath := testApp(t, credentials(), map[string]any{"workflow": map[string]any{"max_attempts": 1}})
	a.newBrowser = func(context.Context) (browser.Browser, error) {
		return nil, errors.New("chrome not found")
	}

	out, err := execute(t, a, "--config", cfgPath, "run")
	assert.ErrorIs(t, err, errRunFailed)
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "chrome not found")
}

func TestRun_UnknownAccount(t *testing.T) {
	a, cfgPath := testApp(t, credentials())
	_, err := execute(t, a, "--config", cfgPath, "run", "--account", "nobody")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown account "nobody"`)
}

func TestSelectAccounts(t *testing.T) {
	all := []config.AuthConfig{{Name: "a"}, {Name: "b"}, {Name: "c"}}

	got, err := selectAccounts(all, nil)
	require.NoError(t, err)
	assert.Equal(t, all, got)

	got, err = selectAccounts(all, []string{"c", "a", "c"})
	require.NoError(t, err)
	assert.Equal(t, []config.AuthConfig{{Name: "c"}, {Name: "a"}}, got)

	_, err = selectAccounts(all, []string{"z"})
	assert.Error(t, err)
}

func TestInspect_RejectsUnknownFormat(t *testing.T) {
	a, cfgPath := testApp(t)
	_, err := execute(t, a, "--config", cfgPath, "inspect", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestInspect_PrintsReport(t *testing.T) {
	a, cfgPath := testApp(t)
	fb := mocks.NewFakeBrowser(".signin-btn")
	a.newBrowser = func(context.Context) (browser.Browser, error) { return fb, nil }

	out, err := execute(t, a, "--config", cfgPath, "inspect", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "report:")
	assert.Contains(t, out, "stability_score:")
	assert.Equal(t, []string{config.DefaultCheckinURL}, fb.Navigations)
	assert.Equal(t, 1, fb.Closed())
}
