// File: internal/browser/playwright_session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/xkilldash9x/dailyclaim/internal/config"
	"go.uber.org/zap"
)

// PlaywrightSession drives one page through the Playwright driver.
// Playwright calls are not context-aware; ctx is checked before each call
// and per-operation timeouts are passed to the driver.
type PlaywrightSession struct {
	cfg     config.BrowserConfig
	logger  *zap.Logger
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page

	mu     sync.Mutex
	closed bool
}

var _ Browser = (*PlaywrightSession)(nil)

// NewPlaywrightSession starts the driver, launches Chromium and opens a page.
func NewPlaywrightSession(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*PlaywrightSession, error) {
	logger = logger.Named("playwright")
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.InstallDrivers {
		logger.Info("Installing playwright driver and chromium")
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	args := []string{"--disable-blink-features=AutomationControlled", "--disable-dev-shm-usage"}
	for _, f := range parseArgs(cfg.Args) {
		if f.Value == "" {
			args = append(args, "--"+f.Name)
		} else {
			args = append(args, "--"+f.Name+"="+f.Value)
		}
	}
	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args:     args,
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch chromium: %w", err)
	}

	w, h := cfg.ViewportSize()
	opts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: w, Height: h},
	}
	if cfg.UserAgent != "" {
		opts.UserAgent = playwright.String(cfg.UserAgent)
	}
	if cfg.Locale != "" {
		opts.Locale = playwright.String(cfg.Locale)
	}
	if cfg.Timezone != "" {
		opts.TimezoneId = playwright.String(cfg.Timezone)
	}
	bctx, err := b.NewContext(opts)
	if err != nil {
		_ = b.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(evasionsScript)}); err != nil {
		logger.Warn("Failed to add evasions script", zap.Error(err))
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = b.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	page.SetDefaultTimeout(float64(cfg.Timeout.Milliseconds()))

	logger.Info("Playwright session started", zap.Bool("headless", cfg.Headless))
	return &PlaywrightSession{cfg: cfg, logger: logger, pw: pw, browser: b, context: bctx, page: page}, nil
}

func (s *PlaywrightSession) ready(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return ctx.Err()
}

func timeoutMs(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

func (s *PlaywrightSession) Navigate(ctx context.Context, url string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	s.logger.Info("Navigating", zap.String("url", url))
	if _, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   timeoutMs(s.cfg.Timeout),
	}); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (s *PlaywrightSession) waitVisible(ctx context.Context, selector string, timeout time.Duration) (playwright.Locator, bool, error) {
	if err := s.ready(ctx); err != nil {
		return nil, false, err
	}
	loc := s.page.Locator(selector).First()
	err := loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: timeoutMs(timeout),
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return loc, true, nil
}

func (s *PlaywrightSession) FindElement(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	_, ok, err := s.waitVisible(ctx, selector, timeout)
	return ok, err
}

func (s *PlaywrightSession) FindElements(ctx context.Context, selector string) ([]ElementInfo, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	q := newElementQuery(selector)
	raw, err := s.page.Evaluate(queryElementsScript, map[string]any{"selector": q.Selector, "xpath": q.XPath})
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return decodeElements(raw)
}

func (s *PlaywrightSession) ClickElement(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	loc, ok, err := s.waitVisible(ctx, selector, timeout)
	if !ok || err != nil {
		return false, err
	}
	if err := loc.Click(playwright.LocatorClickOptions{Timeout: timeoutMs(timeout)}); err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *PlaywrightSession) TypeText(ctx context.Context, selector, text string, timeout time.Duration) (bool, error) {
	loc, ok, err := s.waitVisible(ctx, selector, timeout)
	if !ok || err != nil {
		return false, err
	}
	if err := loc.Fill(text, playwright.LocatorFillOptions{Timeout: timeoutMs(timeout)}); err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *PlaywrightSession) Screenshot(ctx context.Context, path string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	data, err := s.page.Screenshot(playwright.PageScreenshotOptions{FullPage: playwright.Bool(true)})
	if err != nil {
		return fmt.Errorf("capture screenshot: %w", err)
	}
	return writeFile(path, data)
}

func (s *PlaywrightSession) SetCookie(ctx context.Context, cookie Cookie) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	c := playwright.OptionalCookie{
		Name:     cookie.Name,
		Value:    cookie.Value,
		Domain:   playwright.String(cookie.Domain),
		Path:     playwright.String(cookie.Path),
		Secure:   playwright.Bool(cookie.Secure),
		HttpOnly: playwright.Bool(cookie.HTTPOnly),
	}
	if !cookie.Expires.IsZero() {
		c.Expires = playwright.Float(float64(cookie.Expires.Unix()))
	}
	return s.context.AddCookies([]playwright.OptionalCookie{c})
}

func (s *PlaywrightSession) GetCookies(ctx context.Context) ([]Cookie, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	cookies, err := s.context.Cookies()
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
			HTTPOnly: c.HttpOnly,
			Expires:  epochToTime(c.Expires),
		})
	}
	return out, nil
}

func (s *PlaywrightSession) CurrentURL(ctx context.Context) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}
	return s.page.URL(), nil
}

// Close tears down the context, the browser and the driver process.
func (s *PlaywrightSession) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	errs := []error{s.context.Close(), s.browser.Close(), s.pw.Stop()}
	s.logger.Info("Playwright session closed")
	return errors.Join(errs...)
}
