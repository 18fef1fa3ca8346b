// File: internal/claim/confirm.go
package claim

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dailyclaim/internal/browser"
)

// confirmationSelectors are probed in order; the first present one is clicked.
var confirmationSelectors = []string{
	".confirm-btn",
	".dialog-confirm",
	"[data-action='confirm']",
	"[data-testid='confirm-button']",
	"button[class*='confirm']",
	".modal-footer .btn-primary",
	browser.TextSelector("Confirm", "button"),
	browser.TextSelector("OK", "button"),
	browser.TextSelector("确定"),
	browser.TextSelector("確認"),
	browser.TextSelector("確定"),
}

// Confirmation is the outcome of handling a post-click dialog.
type Confirmation struct {
	Confirmed   bool   `json:"confirmed"`
	DialogFound bool   `json:"dialog_found"`
	Selector    string `json:"selector,omitempty"`
}

// HandleConfirmation waits for a confirmation dialog and accepts it. A page
// that shows no dialog counts as implicitly confirmed.
func (e *Engine) HandleConfirmation(ctx context.Context, b browser.Browser) (Confirmation, error) {
	if err := e.timing.Confirmation(ctx); err != nil {
		return Confirmation{}, err
	}

	for _, sel := range confirmationSelectors {
		found, err := b.FindElement(ctx, sel, e.cfg.ConfirmProbeTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return Confirmation{}, ctx.Err()
			}
			e.logger.Debug("Confirmation probe failed", zap.String("selector", sel), zap.Error(err))
			continue
		}
		if !found {
			continue
		}

		clicked, err := b.ClickElement(ctx, sel, e.cfg.ClickTimeout)
		if err != nil && ctx.Err() != nil {
			return Confirmation{}, ctx.Err()
		}
		res := Confirmation{Confirmed: clicked && err == nil, DialogFound: true, Selector: sel}
		if res.Confirmed {
			e.logger.Info("Confirmation dialog accepted", zap.String("selector", sel))
		} else {
			e.logger.Warn("Confirmation dialog found but not accepted", zap.String("selector", sel), zap.Error(err))
		}
		return res, nil
	}

	e.logger.Debug("No confirmation dialog shown")
	return Confirmation{Confirmed: true}, nil
}
