// File: internal/auth/auth_test.go
package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/dailyclaim/internal/browser"
	"github.com/xkilldash9x/dailyclaim/internal/config"
	"github.com/xkilldash9x/dailyclaim/internal/failure"
	"github.com/xkilldash9x/dailyclaim/internal/humanoid"
	"github.com/xkilldash9x/dailyclaim/internal/mocks"
)

func cookieCreds() config.AuthConfig {
	return config.AuthConfig{
		Method:    config.AuthCookieInjection,
		LTUID:     "12345678",
		LToken:    "v2_secret_token",
		AccountID: "87654321",
	}
}

func TestCookieDomain(t *testing.T) {
	tests := []struct {
		name   string
		target config.TargetConfig
		want   string
	}{
		{"registrable domain of the event host", config.TargetConfig{URL: config.DefaultCheckinURL}, ".hoyolab.com"},
		{"multi-label public suffix", config.TargetConfig{URL: "https://event.example.co.uk/checkin"}, ".example.co.uk"},
		{"explicit override gains a leading dot", config.TargetConfig{URL: config.DefaultCheckinURL, CookieDomain: "hoyoverse.com"}, ".hoyoverse.com"},
		{"loopback host is used as is", config.TargetConfig{URL: "http://127.0.0.1:8080/index.html"}, "127.0.0.1"},
		{"single label host is used as is", config.TargetConfig{URL: "http://localhost:3000/"}, "localhost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CookieDomain(tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("url without host is an authentication failure", func(t *testing.T) {
		_, err := CookieDomain(config.TargetConfig{URL: "/relative"})
		require.Error(t, err)
		assert.True(t, failure.IsKind(err, failure.KindAuthentication))
	})
}

func TestSessionCookies(t *testing.T) {
	t.Run("account id is optional", func(t *testing.T) {
		creds := cookieCreds()
		creds.AccountID = ""
		cookies := SessionCookies(creds, ".hoyolab.com")
		require.Len(t, cookies, 2)
		assert.Equal(t, CookieLTUID, cookies[0].Name)
		assert.Equal(t, CookieLToken, cookies[1].Name)
	})

	t.Run("every cookie is secure and site wide", func(t *testing.T) {
		for _, c := range SessionCookies(cookieCreds(), ".hoyolab.com") {
			assert.Equal(t, ".hoyolab.com", c.Domain)
			assert.Equal(t, "/", c.Path)
			assert.True(t, c.Secure)
		}
	})
}

func TestCookieInjection_Authenticate(t *testing.T) {
	ctx := context.Background()
	target := config.TargetConfig{URL: config.DefaultCheckinURL}

	t.Run("sets cookies and reloads the target", func(t *testing.T) {
		tm, _ := humanoid.NewTestTiming(1)
		a := NewCookieInjection(cookieCreds(), target, tm, zaptest.NewLogger(t))
		fb := mocks.NewFakeBrowser()

		ok, err := a.Authenticate(ctx, fb)
		require.NoError(t, err)
		assert.True(t, ok)
		require.Len(t, fb.Cookies, 3)
		assert.Equal(t, "v2_secret_token", fb.Cookies[1].Value)
		assert.Equal(t, []string{config.DefaultCheckinURL}, fb.Navigations)
	})

	t.Run("a lingering login prompt means the cookies were rejected", func(t *testing.T) {
		tm, _ := humanoid.NewTestTiming(1)
		a := NewCookieInjection(cookieCreds(), target, tm, nil)
		fb := mocks.NewFakeBrowser(".hyv-button-login")

		ok, err := a.Authenticate(ctx, fb)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("reload failure is wrapped as an authentication failure", func(t *testing.T) {
		tm, _ := humanoid.NewTestTiming(1)
		a := NewCookieInjection(cookieCreds(), target, tm, nil)
		fb := mocks.NewFakeBrowser()
		fb.NavigateErr = errors.New("net::ERR_CONNECTION_RESET")

		_, err := a.Authenticate(ctx, fb)
		require.Error(t, err)
		assert.True(t, failure.IsKind(err, failure.KindAuthentication))
		assert.Contains(t, err.Error(), "ERR_CONNECTION_RESET")
	})
}

func TestFormLogin_Authenticate(t *testing.T) {
	ctx := context.Background()
	creds := config.AuthConfig{Method: config.AuthFormLogin, Username: "traveler@example.com", Password: "hunter2"}

	loginPage := func() *mocks.FakeBrowser {
		fb := mocks.NewFakeBrowser(
			".mhy-hoyolab-account-block",
			"input[name='username']",
			"input[name='password']",
			"input[type='password']",
			"button[type='submit']",
		)
		fb.OnClick = func(f *mocks.FakeBrowser, selector string) {
			if selector == "button[type='submit']" {
				f.SetPresent(false, "input[name='password']", "input[type='password']")
			}
		}
		return fb
	}

	t.Run("fills the dialog and submits", func(t *testing.T) {
		tm, _ := humanoid.NewTestTiming(1)
		a := NewFormLogin(creds, tm, zaptest.NewLogger(t))
		fb := loginPage()

		ok, err := a.Authenticate(ctx, fb)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "traveler@example.com", fb.Typed["input[name='username']"])
		assert.Equal(t, "hunter2", fb.Typed["input[name='password']"])
		assert.Equal(t, 1, fb.ClickCount("button[type='submit']"))
	})

	t.Run("missing avatar stops before typing", func(t *testing.T) {
		tm, _ := humanoid.NewTestTiming(1)
		a := NewFormLogin(creds, tm, nil)
		fb := mocks.NewFakeBrowser("input[name='username']")

		ok, err := a.Authenticate(ctx, fb)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, fb.Typed)
	})

	t.Run("missing password field fails", func(t *testing.T) {
		tm, _ := humanoid.NewTestTiming(1)
		a := NewFormLogin(creds, tm, nil)
		fb := mocks.NewFakeBrowser(".mhy-hoyolab-account-block", "input[name='username']")

		ok, err := a.Authenticate(ctx, fb)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Zero(t, fb.ClickCount("button[type='submit']"))
	})

	t.Run("rejected credentials leave the prompt visible", func(t *testing.T) {
		tm, _ := humanoid.NewTestTiming(1)
		a := NewFormLogin(creds, tm, nil)
		fb := loginPage()
		fb.OnClick = nil

		ok, err := a.Authenticate(ctx, fb)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestNew(t *testing.T) {
	tm, _ := humanoid.NewTestTiming(1)
	target := config.TargetConfig{URL: config.DefaultCheckinURL}

	a, err := New(cookieCreds(), target, tm, nil)
	require.NoError(t, err)
	assert.Equal(t, config.AuthCookieInjection, a.Method())

	a, err = New(config.AuthConfig{Method: config.AuthFormLogin}, target, tm, nil)
	require.NoError(t, err)
	assert.IsType(t, &FormLogin{}, a)

	_, err = New(config.AuthConfig{Method: "oauth"}, target, tm, nil)
	require.Error(t, err)
	assert.True(t, failure.IsKind(err, failure.KindConfiguration))
}

func TestVerify(t *testing.T) {
	ctx := context.Background()

	ok, err := Verify(ctx, mocks.NewFakeBrowser(), 0)
	require.NoError(t, err)
	assert.True(t, ok)

	found, sel, err := LoginPromptVisible(ctx, mocks.NewFakeBrowser(browser.TextSelector("Log In", "button")), 0)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, browser.TextSelector("Log In", "button"), sel)

	t.Run("probe errors are skipped", func(t *testing.T) {
		fb := mocks.NewFakeBrowser()
		fb.DefaultProbeErr = errors.New("stale node")
		ok, err := Verify(ctx, fb, 0)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("cancellation surfaces", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := Verify(cctx, mocks.NewFakeBrowser(), 0)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
