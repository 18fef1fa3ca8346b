// File: internal/auth/form.go
package auth

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dailyclaim/internal/browser"
	"github.com/xkilldash9x/dailyclaim/internal/config"
	"github.com/xkilldash9x/dailyclaim/internal/humanoid"
)

// The login form renders late after the avatar is clicked.
const (
	loginModalWait     = 5 * time.Second
	loginModalVariance = 0.2
)

var avatarSelectors = []string{
	".mhy-hoyolab-account-block__avatar-icon",
	".mhy-hoyolab-account-block__avatar",
	".mhy-hoyolab-account-block",
}

var usernameSelectors = []string{
	"input[name='username']",
	".el-input__inner[name='username']",
	"input[autocomplete='username']",
	"input[type='text'][name='username']",
	"input[placeholder*='Username']",
	"input[placeholder*='Email']",
}

var passwordSelectors = []string{
	"input[name='password']",
	"input[type='password']",
	".el-input__inner[name='password']",
	".el-input__inner[type='password']",
	"input[autocomplete='current-password']",
}

var submitSelectors = []string{
	"button[type='submit']",
	"button.hyv-button",
	browser.TextSelector("Log In", "button"),
	browser.TextSelector("Sign In", "button"),
	".hyv-button-login",
}

// FormLogin authenticates through the site's username/password dialog.
type FormLogin struct {
	creds  config.AuthConfig
	timing *humanoid.Timing
	logger *zap.Logger
}

// NewFormLogin creates a form-based authenticator.
func NewFormLogin(creds config.AuthConfig, timing *humanoid.Timing, logger *zap.Logger) *FormLogin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FormLogin{creds: creds, timing: timing, logger: logger}
}

func (f *FormLogin) Method() string { return config.AuthFormLogin }

// Authenticate opens the login dialog from the account avatar, fills in the
// credentials and submits. It returns false at the first step that finds
// nothing to interact with.
func (f *FormLogin) Authenticate(ctx context.Context, b browser.Browser) (bool, error) {
	if err := f.timing.PageLoad(ctx); err != nil {
		return false, err
	}

	avatar, err := firstClick(ctx, b, avatarSelectors, defaultStepTimeout)
	if err != nil {
		return false, wrapAuth("open_dialog", err)
	}
	if avatar == "" {
		f.logger.Error("Could not find the account avatar to open the login dialog")
		return false, nil
	}
	f.logger.Info("Opened login dialog", zap.String("selector", avatar))

	if err := f.timing.HumanDelay(ctx, loginModalWait, loginModalVariance); err != nil {
		return false, err
	}

	user, err := firstType(ctx, b, usernameSelectors, f.creds.Username, defaultStepTimeout)
	if err != nil {
		return false, wrapAuth("fill_username", err)
	}
	if user == "" {
		f.logger.Error("Username field not found")
		return false, nil
	}
	if err := f.timing.Typing(ctx); err != nil {
		return false, err
	}

	pass, err := firstType(ctx, b, passwordSelectors, f.creds.Password, defaultStepTimeout)
	if err != nil {
		return false, wrapAuth("fill_password", err)
	}
	if pass == "" {
		f.logger.Error("Password field not found")
		return false, nil
	}
	if err := f.timing.Click(ctx); err != nil {
		return false, err
	}

	submit, err := firstClick(ctx, b, submitSelectors, defaultStepTimeout)
	if err != nil {
		return false, wrapAuth("submit", err)
	}
	if submit == "" {
		f.logger.Error("Login button not found")
		return false, nil
	}
	f.logger.Info("Submitted login form", zap.String("selector", submit))

	if err := f.timing.PageLoad(ctx); err != nil {
		return false, err
	}
	ok, err := Verify(ctx, b, defaultProbeTimeout)
	if err != nil {
		return false, wrapAuth("verify", err)
	}
	return ok, nil
}
