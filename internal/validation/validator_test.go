// File: internal/validation/validator_test.go
package validation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/dailyclaim/internal/browser"
	"github.com/xkilldash9x/dailyclaim/internal/detection"
	"github.com/xkilldash9x/dailyclaim/internal/humanoid"
	"github.com/xkilldash9x/dailyclaim/internal/mocks"
)

type stubDetector struct {
	avail *detection.Availability
	err   error
	calls int
}

func (s *stubDetector) DetectRewardAvailability(context.Context, browser.Browser) (*detection.Availability, error) {
	s.calls++
	return s.avail, s.err
}

func rewards(n int, state detection.State) []detection.RewardState {
	out := make([]detection.RewardState, n)
	for i := range out {
		out[i] = detection.RewardState{Selector: "#r", State: state}
	}
	return out
}

func TestScore(t *testing.T) {
	t.Run("missing groups are excluded, not zero-filled", func(t *testing.T) {
		got := Score([]Signal{{Confidence: 0.9}}, nil, nil)
		assert.InDelta(t, 0.9, got, 1e-9)
	})

	t.Run("weights group averages", func(t *testing.T) {
		ui := []Signal{{Confidence: 0.9}, {Confidence: 0.7}}
		state := []Signal{{Confidence: 0.8}}
		icons := []Signal{{Confidence: 0.7}}
		// (0.4*0.8 + 0.4*0.8 + 0.2*0.7) / 1.0
		assert.InDelta(t, 0.78, Score(ui, state, icons), 1e-9)
	})

	t.Run("no evidence scores zero", func(t *testing.T) {
		assert.Zero(t, Score(nil, nil, nil))
	})
}

func TestValidateClaimSuccess(t *testing.T) {
	ctx := context.Background()

	t.Run("ui feedback alone validates and captures a screenshot", func(t *testing.T) {
		dir := t.TempDir()
		v := NewValidator(nil, time.Second, dir, zaptest.NewLogger(t))
		fb := mocks.NewFakeBrowser(".success-message")

		res, err := v.ValidateClaimSuccess(ctx, fb, nil)
		require.NoError(t, err)
		assert.True(t, res.Validated)
		assert.InDelta(t, 0.9, res.Confidence, 1e-9)
		require.Len(t, fb.Screenshots, 1)
		assert.True(t, strings.HasPrefix(fb.Screenshots[0], dir))
		assert.Equal(t, fb.Screenshots[0], res.Screenshot)
	})

	t.Run("state deltas against the pre-claim snapshot", func(t *testing.T) {
		pre := &detection.Availability{Claimable: rewards(1, detection.StateClaimable), Claimed: rewards(2, detection.StateClaimed)}
		post := &detection.Availability{Claimed: rewards(3, detection.StateClaimed), Confidence: 0.8}
		det := &stubDetector{avail: post}
		v := NewValidator(det, time.Second, t.TempDir(), nil)

		res, err := v.ValidateClaimSuccess(ctx, mocks.NewFakeBrowser(), pre)
		require.NoError(t, err)
		assert.Equal(t, 1, det.calls)
		require.Len(t, res.StateChanges, 2)
		assert.InDelta(t, 0.85, res.Confidence, 1e-9)
		assert.True(t, res.Validated)
	})

	t.Run("weak post-claim scan is not a state change", func(t *testing.T) {
		pre := &detection.Availability{Claimable: rewards(1, detection.StateClaimable), Confidence: 0.9}
		det := &stubDetector{avail: &detection.Availability{Claimable: []detection.RewardState{}, LowConfidence: true}}
		v := NewValidator(det, time.Second, t.TempDir(), nil)

		res, err := v.ValidateClaimSuccess(ctx, mocks.NewFakeBrowser(), pre)
		require.NoError(t, err)
		assert.Empty(t, res.StateChanges)
		assert.False(t, res.Validated)
	})

	t.Run("blank page after the click is not validated", func(t *testing.T) {
		timing, _ := humanoid.NewTestTiming(1)
		opts := detection.DefaultOptions()
		engine := detection.NewEngine(detection.DefaultRegistry(opts, nil), timing, opts, nil)
		pre := &detection.Availability{
			Claimable:  []detection.RewardState{{Selector: ".reward-item.claimable", State: detection.StateClaimable, Confidence: 0.9}},
			Confidence: 0.9,
		}
		v := NewValidator(engine, time.Second, t.TempDir(), zaptest.NewLogger(t))
		fb := mocks.NewFakeBrowser()

		res, err := v.ValidateClaimSuccess(ctx, fb, pre)
		require.NoError(t, err)
		assert.Empty(t, res.StateChanges)
		assert.Zero(t, res.Confidence)
		assert.False(t, res.Validated)
		assert.Empty(t, fb.Screenshots)
	})

	t.Run("success icons alone clear the threshold", func(t *testing.T) {
		v := NewValidator(nil, time.Second, t.TempDir(), nil)
		fb := mocks.NewFakeBrowser(".checkmark")
		res, err := v.ValidateClaimSuccess(ctx, fb, nil)
		require.NoError(t, err)
		assert.InDelta(t, 0.7, res.Confidence, 1e-9)
		assert.True(t, res.Validated)
	})

	t.Run("no evidence is not validated and takes no screenshot", func(t *testing.T) {
		det := &stubDetector{avail: &detection.Availability{}}
		v := NewValidator(det, time.Second, t.TempDir(), nil)
		fb := mocks.NewFakeBrowser()

		res, err := v.ValidateClaimSuccess(ctx, fb, &detection.Availability{})
		require.NoError(t, err)
		assert.False(t, res.Validated)
		assert.Zero(t, res.Confidence)
		assert.Empty(t, fb.Screenshots)
	})

	t.Run("screenshot failure does not invalidate", func(t *testing.T) {
		v := NewValidator(nil, time.Second, t.TempDir(), nil)
		fb := mocks.NewFakeBrowser(browser.TextSelector("签到成功"))
		fb.ScreenshotErr = errors.New("page crashed")

		res, err := v.ValidateClaimSuccess(ctx, fb, nil)
		require.NoError(t, err)
		assert.True(t, res.Validated)
		assert.Empty(t, res.Screenshot)
	})

	t.Run("post-claim detection errors are recorded", func(t *testing.T) {
		det := &stubDetector{err: errors.New("all detection strategies failed")}
		v := NewValidator(det, time.Second, t.TempDir(), nil)

		res, err := v.ValidateClaimSuccess(ctx, mocks.NewFakeBrowser(), &detection.Availability{})
		require.NoError(t, err)
		assert.Len(t, res.Errors, 1)
		assert.False(t, res.Validated)
	})
}
