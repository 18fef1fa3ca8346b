// File: internal/auth/cookie.go
package auth

import (
	"context"
	"net"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/xkilldash9x/dailyclaim/internal/browser"
	"github.com/xkilldash9x/dailyclaim/internal/config"
	"github.com/xkilldash9x/dailyclaim/internal/humanoid"
)

// Session cookie names understood by the check-in site.
const (
	CookieLTUID     = "ltuid"
	CookieLToken    = "ltoken"
	CookieAccountID = "account_id"
)

// CookieInjection authenticates by planting session cookies and reloading.
type CookieInjection struct {
	creds  config.AuthConfig
	target config.TargetConfig
	timing *humanoid.Timing
	logger *zap.Logger
}

// NewCookieInjection creates a cookie-based authenticator.
func NewCookieInjection(creds config.AuthConfig, target config.TargetConfig, timing *humanoid.Timing, logger *zap.Logger) *CookieInjection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CookieInjection{creds: creds, target: target, timing: timing, logger: logger}
}

func (c *CookieInjection) Method() string { return config.AuthCookieInjection }

// Authenticate sets the session cookies on the target's registrable domain,
// reloads the target and checks that no login prompt remains.
func (c *CookieInjection) Authenticate(ctx context.Context, b browser.Browser) (bool, error) {
	domain, err := CookieDomain(c.target)
	if err != nil {
		return false, wrapAuth("cookie_domain", err)
	}

	cookies := SessionCookies(c.creds, domain)
	for _, ck := range cookies {
		if err := b.SetCookie(ctx, ck); err != nil {
			return false, wrapAuth("set_cookie", err)
		}
	}
	c.logger.Info("Authentication cookies set",
		zap.Int("cookie_count", len(cookies)),
		zap.String("domain", domain),
	)

	if err := b.Navigate(ctx, c.target.URL); err != nil {
		return false, wrapAuth("reload", err)
	}
	if err := c.timing.PageLoad(ctx); err != nil {
		return false, err
	}

	ok, err := Verify(ctx, b, defaultProbeTimeout)
	if err != nil {
		return false, wrapAuth("verify", err)
	}
	if !ok {
		c.logger.Warn("Login prompt still visible after cookie injection")
	}
	return ok, nil
}

// SessionCookies builds the cookies for creds. account_id is only set when
// configured.
func SessionCookies(creds config.AuthConfig, domain string) []browser.Cookie {
	mk := func(name, value string) browser.Cookie {
		return browser.Cookie{Name: name, Value: value, Domain: domain, Path: "/", Secure: true}
	}
	out := []browser.Cookie{
		mk(CookieLTUID, creds.LTUID),
		mk(CookieLToken, creds.LToken),
	}
	if creds.AccountID != "" {
		out = append(out, mk(CookieAccountID, creds.AccountID))
	}
	return out
}

// CookieDomain returns the cookie domain for target: the configured override,
// or "." plus the registrable domain of the target URL. Hosts without a
// public suffix (IPs, localhost) are returned bare.
func CookieDomain(target config.TargetConfig) (string, error) {
	if d := strings.TrimSpace(target.CookieDomain); d != "" {
		if !strings.HasPrefix(d, ".") {
			d = "." + d
		}
		return d, nil
	}

	u, err := url.Parse(target.URL)
	if err != nil {
		return "", err
	}
	host := u.Hostname()
	if host == "" {
		return "", authErr("cookie_domain", "target url %q has no host", target.URL)
	}
	if net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return host, nil
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host, nil
	}
	return "." + etld1, nil
}
