// File: internal/browser/rod_session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/xkilldash9x/dailyclaim/internal/config"
	"go.uber.org/zap"
)

// RodSession drives one page through go-rod with stealth patches applied.
type RodSession struct {
	cfg      config.BrowserConfig
	logger   *zap.Logger
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page

	mu     sync.Mutex
	closed bool
}

var _ Browser = (*RodSession)(nil)

// NewRodSession launches a local Chromium through the rod launcher.
func NewRodSession(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*RodSession, error) {
	logger = logger.Named("rod")

	l := launcher.New().
		Context(Detach(ctx)).
		Headless(cfg.Headless).
		NoSandbox(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage")
	for _, f := range parseArgs(cfg.Args) {
		if f.Value == "" {
			l = l.Set(flags.Flag(f.Name))
		} else {
			l = l.Set(flags.Flag(f.Name), f.Value)
		}
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, fmt.Errorf("failed to open stealth page: %w", err)
	}

	persona := PersonaFromConfig(cfg)
	if cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      cfg.UserAgent,
			AcceptLanguage: persona.AcceptLanguage(),
		}); err != nil {
			logger.Warn("Failed to override user agent", zap.Error(err))
		}
	}
	w, h := cfg.ViewportSize()
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             w,
		Height:            h,
		DeviceScaleFactor: 1,
	}); err != nil {
		logger.Warn("Failed to set viewport", zap.Error(err))
	}

	logger.Info("Rod session started", zap.Bool("headless", cfg.Headless))
	return &RodSession{cfg: cfg, logger: logger, launcher: l, browser: b, page: page}, nil
}

func (s *RodSession) pageFor(ctx context.Context) (*rod.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.page.Context(ctx), nil
}

func (s *RodSession) Navigate(ctx context.Context, url string) error {
	p, err := s.pageFor(ctx)
	if err != nil {
		return err
	}
	p = p.Timeout(s.cfg.Timeout)
	defer p.CancelTimeout()

	s.logger.Info("Navigating", zap.String("url", url))
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait for %s to load: %w", url, err)
	}
	return nil
}

// element waits for a visible element, returning nil if the timeout elapses.
func (s *RodSession) element(ctx context.Context, selector string, timeout time.Duration) (*rod.Element, error) {
	p, err := s.pageFor(ctx)
	if err != nil {
		return nil, err
	}
	p = p.Timeout(timeout)

	expr, isX := splitSelector(selector)
	var el *rod.Element
	if isX {
		el, err = p.ElementX(expr)
	} else {
		el, err = p.Element(expr)
	}
	if err == nil {
		err = el.WaitVisible()
	}
	if err != nil {
		var notFound *rod.ElementNotFoundError
		if isTimeout(ctx, err) || errors.As(err, &notFound) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return el, nil
}

func (s *RodSession) FindElement(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	el, err := s.element(ctx, selector, timeout)
	return el != nil, err
}

func (s *RodSession) FindElements(ctx context.Context, selector string) ([]ElementInfo, error) {
	p, err := s.pageFor(ctx)
	if err != nil {
		return nil, err
	}
	res, err := p.Eval(queryElementsScript, newElementQuery(selector))
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return decodeElements(res.Value)
}

func (s *RodSession) ClickElement(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	el, err := s.element(ctx, selector, timeout)
	if el == nil || err != nil {
		return false, err
	}
	if err := el.ScrollIntoView(); err != nil {
		s.logger.Debug("Scroll into view failed", zap.String("selector", selector), zap.Error(err))
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		if isTimeout(ctx, err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *RodSession) TypeText(ctx context.Context, selector, text string, timeout time.Duration) (bool, error) {
	el, err := s.element(ctx, selector, timeout)
	if el == nil || err != nil {
		return false, err
	}
	if err := el.SelectAllText(); err != nil {
		s.logger.Debug("Select all failed", zap.String("selector", selector), zap.Error(err))
	}
	if err := el.Input(text); err != nil {
		return false, err
	}
	return true, nil
}

func (s *RodSession) Screenshot(ctx context.Context, path string) error {
	p, err := s.pageFor(ctx)
	if err != nil {
		return err
	}
	data, err := p.Screenshot(true, &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng})
	if err != nil {
		return fmt.Errorf("capture screenshot: %w", err)
	}
	return writeFile(path, data)
}

func (s *RodSession) SetCookie(ctx context.Context, cookie Cookie) error {
	p, err := s.pageFor(ctx)
	if err != nil {
		return err
	}
	param := &proto.NetworkCookieParam{
		Name:     cookie.Name,
		Value:    cookie.Value,
		Domain:   cookie.Domain,
		Path:     cookie.Path,
		Secure:   cookie.Secure,
		HTTPOnly: cookie.HTTPOnly,
	}
	if !cookie.Expires.IsZero() {
		param.Expires = proto.TimeSinceEpoch(cookie.Expires.Unix())
	}
	return p.SetCookies([]*proto.NetworkCookieParam{param})
}

func (s *RodSession) GetCookies(ctx context.Context) ([]Cookie, error) {
	p, err := s.pageFor(ctx)
	if err != nil {
		return nil, err
	}
	cookies, err := p.Cookies(nil)
	if err != nil {
		return nil, err
	}
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			Expires:  epochToTime(float64(c.Expires)),
		})
	}
	return out, nil
}

func (s *RodSession) CurrentURL(ctx context.Context) (string, error) {
	p, err := s.pageFor(ctx)
	if err != nil {
		return "", err
	}
	info, err := p.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// Close shuts the browser down and removes the launcher's profile directory.
func (s *RodSession) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.browser.Close()
	s.launcher.Kill()
	s.launcher.Cleanup()
	s.logger.Info("Rod session closed")
	return err
}
