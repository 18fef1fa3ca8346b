// File: internal/workflow/build.go
package workflow

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/dailyclaim/internal/auth"
	"github.com/xkilldash9x/dailyclaim/internal/claim"
	"github.com/xkilldash9x/dailyclaim/internal/config"
	"github.com/xkilldash9x/dailyclaim/internal/detection"
	"github.com/xkilldash9x/dailyclaim/internal/history"
	"github.com/xkilldash9x/dailyclaim/internal/humanoid"
	"github.com/xkilldash9x/dailyclaim/internal/recovery"
	"github.com/xkilldash9x/dailyclaim/internal/validation"
)

// NewDetectionEngine wires the built-in strategies with configured timeouts.
func NewDetectionEngine(cfg *config.Config, timing *humanoid.Timing, logger *zap.Logger) *detection.Engine {
	opts := detection.OptionsFromConfig(cfg.Detection)
	return detection.NewEngine(detection.DefaultRegistry(opts, logger), timing, opts, logger)
}

// NewFactory returns an OrchestratorFactory that assembles every component
// from cfg. Each account gets its own timing source; sink is shared.
func NewFactory(cfg *config.Config, sink history.Sink, logger *zap.Logger) OrchestratorFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(account config.AuthConfig) (*Orchestrator, error) {
		acctLogger := logger.With(zap.String("account", account.Name))
		timing := humanoid.New(cfg.Timing, acctLogger)

		authenticator, err := auth.New(account, cfg.Target, timing, acctLogger)
		if err != nil {
			return nil, err
		}
		detector := NewDetectionEngine(cfg, timing, acctLogger)

		return New(Options{
			TargetURL:        cfg.Target.URL,
			ScreenshotDir:    cfg.Workflow.ScreenshotDir,
			DebugScreenshots: cfg.Workflow.DebugScreenshots,
		}, Deps{
			Auth:      authenticator,
			Detector:  detector,
			Claimer:   claim.NewEngine(cfg.Claim, timing, acctLogger),
			Validator: validation.NewValidator(detector, cfg.Detection.StateProbeTimeout, cfg.Workflow.ScreenshotDir, acctLogger),
			Recovery:  recovery.NewHandler(detector, detector.Registry(), timing, cfg.Workflow.RecoveryCooldown, acctLogger),
			History:   sink,
			Timing:    timing,
			Logger:    acctLogger,
		})
	}
}
