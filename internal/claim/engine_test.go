// File: internal/claim/engine_test.go
package claim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/dailyclaim/internal/browser"
	"github.com/xkilldash9x/dailyclaim/internal/config"
	"github.com/xkilldash9x/dailyclaim/internal/detection"
	"github.com/xkilldash9x/dailyclaim/internal/humanoid"
	"github.com/xkilldash9x/dailyclaim/internal/mocks"
)

func testConfig() config.ClaimConfig {
	return config.ClaimConfig{ClickAttempts: 3, ClickTimeout: time.Second, ConfirmProbeTimeout: time.Second}
}

func newTestEngine(t *testing.T) (*Engine, *humanoid.RecordingSleeper) {
	t.Helper()
	tm, rec := humanoid.NewTestTiming(3)
	return NewEngine(testConfig(), tm, zaptest.NewLogger(t)), rec
}

func availability(selectors ...string) *detection.Availability {
	a := &detection.Availability{}
	for _, s := range selectors {
		a.Claimable = append(a.Claimable, detection.RewardState{Selector: s, State: detection.StateClaimable, Confidence: 0.9})
	}
	return a
}

func TestClaimAvailableRewards(t *testing.T) {
	ctx := context.Background()

	t.Run("empty list succeeds without clicking", func(t *testing.T) {
		e, rec := newTestEngine(t)
		mb := new(mocks.MockBrowser)

		res, err := e.ClaimAvailableRewards(ctx, mb, availability())
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.True(t, res.NoRewards)
		assert.Zero(t, res.ClaimsProcessed)
		mb.AssertNotCalled(t, "ClickElement", mock.Anything, mock.Anything, mock.Anything)
		assert.Zero(t, rec.Count())
	})

	t.Run("nil availability is treated as empty", func(t *testing.T) {
		e, _ := newTestEngine(t)
		res, err := e.ClaimAvailableRewards(ctx, mocks.NewFakeBrowser(), nil)
		require.NoError(t, err)
		assert.True(t, res.Success)
	})

	t.Run("claims every reward when clicks succeed", func(t *testing.T) {
		e, _ := newTestEngine(t)
		fb := mocks.NewFakeBrowser("#r1", "#r2", "#r3")

		res, err := e.ClaimAvailableRewards(ctx, fb, availability("#r1", "#r2", "#r3"))
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, 3, res.ClaimsProcessed)
		assert.Len(t, res.Successful, 3)
		assert.Empty(t, res.Failed)
		assert.Equal(t, 3, res.TotalAttempts)
		for _, o := range res.Successful {
			assert.True(t, o.Confirmed)
			assert.False(t, o.DialogFound)
		}
	})

	t.Run("a reward that never clicks does not stop the batch", func(t *testing.T) {
		e, _ := newTestEngine(t)
		fb := mocks.NewFakeBrowser("#ok")

		res, err := e.ClaimAvailableRewards(ctx, fb, availability("#stuck", "#ok"))
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, 1, res.ClaimsProcessed)
		require.Len(t, res.Failed, 1)
		assert.Equal(t, "#stuck", res.Failed[0].Selector)
		assert.Equal(t, 3, res.Failed[0].Attempts)
		assert.Contains(t, res.Failed[0].Error, "failed to click after 3 attempts")
		assert.Equal(t, 3, fb.ClickCount("#stuck"))
		assert.Equal(t, 1, fb.ClickCount("#ok"))
	})

	t.Run("retries until a click lands", func(t *testing.T) {
		e, _ := newTestEngine(t)
		fb := mocks.NewFakeBrowser("#flaky")
		fb.ClickScript["#flaky"] = []bool{false, true}

		res, err := e.ClaimAvailableRewards(ctx, fb, availability("#flaky"))
		require.NoError(t, err)
		assert.Equal(t, 1, res.ClaimsProcessed)
		assert.Equal(t, 2, res.Successful[0].Attempts)
	})

	t.Run("click errors are recorded in the failure", func(t *testing.T) {
		e, _ := newTestEngine(t)
		fb := mocks.NewFakeBrowser()
		fb.ProbeErrors["#gone"] = errors.New("node is detached")

		res, err := e.ClaimAvailableRewards(ctx, fb, availability("#gone"))
		require.NoError(t, err)
		assert.False(t, res.Success)
		require.Len(t, res.Errors, 1)
		assert.Contains(t, res.Errors[0], "node is detached")
	})

	t.Run("inter-reward pause only after the first", func(t *testing.T) {
		e, rec := newTestEngine(t)
		fb := mocks.NewFakeBrowser("#a", "#b")

		_, err := e.ClaimAvailableRewards(ctx, fb, availability("#a", "#b"))
		require.NoError(t, err)
		// Per reward: click delay and confirmation wait. One pause in between.
		assert.Equal(t, 5, rec.Count())
	})

	t.Run("cancellation aborts the batch", func(t *testing.T) {
		e, _ := newTestEngine(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := e.ClaimAvailableRewards(cctx, mocks.NewFakeBrowser("#a"), availability("#a"))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestHandleConfirmation(t *testing.T) {
	ctx := context.Background()

	t.Run("no dialog is implicit confirmation", func(t *testing.T) {
		e, _ := newTestEngine(t)
		conf, err := e.HandleConfirmation(ctx, mocks.NewFakeBrowser())
		require.NoError(t, err)
		assert.True(t, conf.Confirmed)
		assert.False(t, conf.DialogFound)
	})

	t.Run("clicks the first matching button", func(t *testing.T) {
		e, _ := newTestEngine(t)
		ok := browser.TextSelector("OK", "button")
		fb := mocks.NewFakeBrowser(ok, browser.TextSelector("确定"))

		conf, err := e.HandleConfirmation(ctx, fb)
		require.NoError(t, err)
		assert.True(t, conf.Confirmed)
		assert.True(t, conf.DialogFound)
		assert.Equal(t, ok, conf.Selector)
		assert.Equal(t, []string{ok}, fb.Clicks)
	})

	t.Run("a dialog that cannot be accepted fails the claim", func(t *testing.T) {
		e, _ := newTestEngine(t)
		fb := mocks.NewFakeBrowser("#reward", ".confirm-btn")
		fb.ClickScript[".confirm-btn"] = []bool{false}

		res, err := e.ClaimAvailableRewards(ctx, fb, availability("#reward"))
		require.NoError(t, err)
		assert.False(t, res.Success)
		require.Len(t, res.Failed, 1)
		assert.True(t, res.Failed[0].Clicked)
		assert.True(t, res.Failed[0].DialogFound)
		assert.False(t, res.Failed[0].Confirmed)
	})
}

func TestDryRunResult(t *testing.T) {
	r := DryRunResult()
	assert.True(t, r.DryRun)
	assert.True(t, r.Success)
	assert.Zero(t, r.ClaimsProcessed)
}
