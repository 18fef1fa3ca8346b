// File: internal/workflow/result.go
package workflow

import (
	"fmt"
	"time"

	"github.com/xkilldash9x/dailyclaim/internal/claim"
	"github.com/xkilldash9x/dailyclaim/internal/detection"
	"github.com/xkilldash9x/dailyclaim/internal/history"
	"github.com/xkilldash9x/dailyclaim/internal/recovery"
	"github.com/xkilldash9x/dailyclaim/internal/validation"
)

// Step marks the stage a workflow last attempted.
type Step string

const (
	StepNavigation      Step = "navigation"
	StepModalDismissal  Step = "modal_dismissal"
	StepAuthentication  Step = "authentication"
	StepRewardDetection Step = "reward_detection"
	StepRewardClaiming  Step = "reward_claiming"
	StepClaimValidation Step = "claim_validation"
	StepDryRunComplete  Step = "dry_run_complete"
	StepNoRewards       Step = "no_rewards_to_claim"
)

// maxRecordedErrors bounds the error summary kept in history.
const maxRecordedErrors = 3

// Run identifies one workflow execution.
type Run struct {
	ID      string `json:"run_id"`
	Account string `json:"account"`
	Attempt int    `json:"attempt"`
	DryRun  bool   `json:"dry_run"`
}

// Result is everything one workflow execution produced. It is owned by a
// single execution.
type Result struct {
	Run
	Success               bool                    `json:"success"`
	WorkflowCompleted     bool                    `json:"workflow_completed"`
	Step                  Step                    `json:"step_completed"`
	AuthenticationSuccess bool                    `json:"authentication_success"`
	ModalsDismissed       int                     `json:"modals_dismissed"`
	Detection             *detection.Availability `json:"reward_detection,omitempty"`
	Claiming              *claim.Result           `json:"claiming_results,omitempty"`
	Validation            *validation.Result      `json:"validation_results,omitempty"`
	Recovery              *recovery.Result        `json:"error_handling,omitempty"`
	Screenshots           []string                `json:"screenshots"`
	Errors                []string                `json:"errors"`
	CleanupCompleted      bool                    `json:"cleanup_completed"`
	StartedAt             time.Time               `json:"started_at"`
	FinishedAt            time.Time               `json:"finished_at"`
}

// Duration is how long the execution took, or zero if it has not finished.
func (r *Result) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// PrimaryStrategy is the strategy detection settled on, if detection ran.
func (r *Result) PrimaryStrategy() string {
	if r.Detection == nil {
		return ""
	}
	return r.Detection.PrimaryStrategy
}

// Record flattens the result for the history sink. Errors are already
// redacted; only the most recent few are kept.
func (r *Result) Record() history.Record {
	rec := history.Record{
		Timestamp:        r.FinishedAt,
		RunID:            r.ID,
		Account:          r.Account,
		Success:          r.Success,
		Step:             string(r.Step),
		DryRun:           r.DryRun,
		Attempt:          r.Attempt,
		PrimaryStrategy:  r.PrimaryStrategy(),
		CleanupCompleted: r.CleanupCompleted,
		DurationSeconds:  r.Duration().Seconds(),
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.StartedAt
	}
	if d := r.Detection; d != nil {
		rec.RewardsFound = d.TotalFound
		rec.ClaimableFound = len(d.Claimable)
		rec.DetectionConfidence = d.Confidence
	}
	if c := r.Claiming; c != nil {
		rec.ClaimsProcessed = c.ClaimsProcessed
	}
	if v := r.Validation; v != nil {
		rec.ClaimValidated = v.Validated
		rec.ValidationConfidence = v.Confidence
	}
	if rr := r.Recovery; rr != nil {
		rec.ErrorKind = string(rr.Kind)
		rec.RetryRecommended = rr.RetryRecommended
	}
	if n := len(r.Errors); n > 0 {
		start := max(0, n-maxRecordedErrors)
		rec.Errors = append([]string(nil), r.Errors[start:]...)
	}
	return rec
}

// WorkflowError is returned when a stage fails. It keeps the stage name so
// callers can report where the run stopped.
type WorkflowError struct {
	Step Step
	Err  error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("check-in workflow failed at %s: %v", e.Step, e.Err)
}

func (e *WorkflowError) Unwrap() error { return e.Err }
