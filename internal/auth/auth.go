// File: internal/auth/auth.go
package auth

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dailyclaim/internal/browser"
	"github.com/xkilldash9x/dailyclaim/internal/config"
	"github.com/xkilldash9x/dailyclaim/internal/failure"
	"github.com/xkilldash9x/dailyclaim/internal/humanoid"
)

// LoginIndicators are present only while the page is asking for credentials.
var LoginIndicators = []string{
	".hyv-button-login",
	"input[name='password']",
	"input[type='password']",
	"[class*='login-form']",
	".mhy-login-form",
	browser.TextSelector("Log In", "button"),
}

const (
	defaultProbeTimeout = 2 * time.Second
	defaultStepTimeout  = 5 * time.Second
)

// Authenticator establishes a logged-in session on the check-in page.
type Authenticator interface {
	// Method returns the configured method name.
	Method() string
	// Authenticate returns false with a nil error when the site rejected the
	// attempt, and an error when the browser could not be driven.
	Authenticate(ctx context.Context, b browser.Browser) (bool, error)
}

// New selects the authenticator for cfg.Method.
func New(cfg config.AuthConfig, target config.TargetConfig, timing *humanoid.Timing, logger *zap.Logger) (Authenticator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("auth")
	switch cfg.Method {
	case config.AuthCookieInjection:
		return NewCookieInjection(cfg, target, timing, logger), nil
	case config.AuthFormLogin:
		return NewFormLogin(cfg, timing, logger), nil
	default:
		return nil, failure.New(failure.KindConfiguration, "auth.new", "unsupported authentication method %q", cfg.Method)
	}
}

// Verify reports whether the page looks authenticated, i.e. none of
// LoginIndicators is present.
func Verify(ctx context.Context, b browser.Browser, timeout time.Duration) (bool, error) {
	found, _, err := LoginPromptVisible(ctx, b, timeout)
	if err != nil {
		return false, err
	}
	return !found, nil
}

// LoginPromptVisible probes LoginIndicators and returns the first present one.
// Probe errors on individual selectors are ignored unless ctx is done.
func LoginPromptVisible(ctx context.Context, b browser.Browser, timeout time.Duration) (bool, string, error) {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	for _, sel := range LoginIndicators {
		found, err := b.FindElement(ctx, sel, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return false, "", ctx.Err()
			}
			continue
		}
		if found {
			return true, sel, nil
		}
	}
	return false, "", nil
}

// firstClick clicks the first selector that is present, returning it.
func firstClick(ctx context.Context, b browser.Browser, selectors []string, timeout time.Duration) (string, error) {
	for _, sel := range selectors {
		ok, err := b.ClickElement(ctx, sel, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		if ok {
			return sel, nil
		}
	}
	return "", nil
}

// firstType types text into the first selector that accepts it.
func firstType(ctx context.Context, b browser.Browser, selectors []string, text string, timeout time.Duration) (string, error) {
	for _, sel := range selectors {
		ok, err := b.TypeText(ctx, sel, text, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		if ok {
			return sel, nil
		}
	}
	return "", nil
}

func authErr(op, format string, args ...any) error {
	return failure.New(failure.KindAuthentication, "auth."+op, format, args...)
}

func wrapAuth(op string, err error) error {
	return failure.Wrap(failure.KindAuthentication, "auth."+op, err)
}
