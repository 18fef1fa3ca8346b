// File: internal/browser/chromedp_session.go
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/xkilldash9x/dailyclaim/internal/config"
	"go.uber.org/zap"
)

// ChromeSession drives one Chrome tab through the DevTools protocol.
type ChromeSession struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	ctx         context.Context // tab context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

var _ Browser = (*ChromeSession)(nil)

// flagPair is one command-line switch from browser.args.
type flagPair struct {
	Name  string
	Value string // empty for boolean switches
}

func parseArgs(args []string) []flagPair {
	out := make([]flagPair, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		name, value, _ := strings.Cut(arg, "=")
		out = append(out, flagPair{Name: name, Value: value})
	}
	return out
}

func execAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	w, h := cfg.ViewportSize()
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(w, h),
	)
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	for _, f := range parseArgs(cfg.Args) {
		if f.Value == "" {
			opts = append(opts, chromedp.Flag(f.Name, true))
		} else {
			opts = append(opts, chromedp.Flag(f.Name, f.Value))
		}
	}
	return opts
}

// NewChromeSession launches Chrome and opens a stealth-configured tab.
func NewChromeSession(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*ChromeSession, error) {
	logger = logger.Named("chromedp")

	allocCtx, allocCancel := chromedp.NewExecAllocator(Detach(ctx), execAllocatorOptions(cfg)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Debugf),
	)

	w, h := cfg.ViewportSize()
	// The first Run must use the tab context itself; it starts the browser.
	if err := chromedp.Run(tabCtx,
		StealthTasks(PersonaFromConfig(cfg), logger),
		chromedp.EmulateViewport(int64(w), int64(h)),
	); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	logger.Info("Chrome session started", zap.Bool("headless", cfg.Headless))
	return &ChromeSession{
		cfg:         cfg,
		logger:      logger,
		ctx:         tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
	}, nil
}

func (s *ChromeSession) opContext(ctx context.Context) (context.Context, context.CancelFunc, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, nil, ErrClosed
	}
	c, cancel := CombineContext(s.ctx, ctx)
	return c, cancel, nil
}

func queryOption(selector string) (string, chromedp.QueryOption) {
	expr, isX := splitSelector(selector)
	if isX {
		return expr, chromedp.BySearch
	}
	return expr, chromedp.ByQuery
}

func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	c, cancel, err := s.opContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	navCtx, navCancel := context.WithTimeout(c, s.cfg.Timeout)
	defer navCancel()

	s.logger.Info("Navigating", zap.String("url", url))
	if err := chromedp.Run(navCtx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

// probe runs actions under a per-operation timeout, mapping the timeout to false.
func (s *ChromeSession) probe(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) (bool, error) {
	c, cancel, err := s.opContext(ctx)
	if err != nil {
		return false, err
	}
	defer cancel()
	tctx, tcancel := context.WithTimeout(c, timeout)
	defer tcancel()

	if err := chromedp.Run(tctx, actions...); err != nil {
		if isTimeout(ctx, err) {
			return false, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, err
	}
	return true, nil
}

func (s *ChromeSession) FindElement(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	expr, by := queryOption(selector)
	return s.probe(ctx, timeout, chromedp.WaitVisible(expr, by))
}

func (s *ChromeSession) FindElements(ctx context.Context, selector string) ([]ElementInfo, error) {
	c, cancel, err := s.opContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	js, err := newElementQuery(selector).evalExpression()
	if err != nil {
		return nil, err
	}
	var raw []any
	if err := chromedp.Run(c, chromedp.Evaluate(js, &raw)); err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return decodeElements(raw)
}

func (s *ChromeSession) ClickElement(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	expr, by := queryOption(selector)
	return s.probe(ctx, timeout,
		chromedp.WaitVisible(expr, by),
		chromedp.ScrollIntoView(expr, by),
		chromedp.Click(expr, by, chromedp.NodeVisible),
	)
}

func (s *ChromeSession) TypeText(ctx context.Context, selector, text string, timeout time.Duration) (bool, error) {
	expr, by := queryOption(selector)
	return s.probe(ctx, timeout,
		chromedp.WaitVisible(expr, by),
		chromedp.Clear(expr, by),
		chromedp.SendKeys(expr, text, by),
	)
}

func (s *ChromeSession) Screenshot(ctx context.Context, path string) error {
	c, cancel, err := s.opContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	var buf []byte
	if err := chromedp.Run(c, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return fmt.Errorf("capture screenshot: %w", err)
	}
	return writeFile(path, buf)
}

func (s *ChromeSession) SetCookie(ctx context.Context, cookie Cookie) error {
	c, cancel, err := s.opContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	return chromedp.Run(c, chromedp.ActionFunc(func(ctx context.Context) error {
		p := network.SetCookie(cookie.Name, cookie.Value).
			WithDomain(cookie.Domain).
			WithPath(cookie.Path).
			WithSecure(cookie.Secure).
			WithHTTPOnly(cookie.HTTPOnly)
		if !cookie.Expires.IsZero() {
			exp := cdp.TimeSinceEpoch(cookie.Expires)
			p = p.WithExpires(&exp)
		}
		return p.Do(ctx)
	}))
}

func (s *ChromeSession) GetCookies(ctx context.Context) ([]Cookie, error) {
	c, cancel, err := s.opContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var out []Cookie
	err = chromedp.Run(c, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, ck := range cookies {
			out = append(out, Cookie{
				Name:     ck.Name,
				Value:    ck.Value,
				Domain:   ck.Domain,
				Path:     ck.Path,
				Secure:   ck.Secure,
				HTTPOnly: ck.HTTPOnly,
				Expires:  epochToTime(ck.Expires),
			})
		}
		return nil
	}))
	return out, err
}

func (s *ChromeSession) CurrentURL(ctx context.Context) (string, error) {
	c, cancel, err := s.opContext(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()

	var u string
	if err := chromedp.Run(c, chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

// Close shuts the browser down. Safe to call more than once.
func (s *ChromeSession) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := chromedp.Cancel(s.ctx)
	s.tabCancel()
	s.allocCancel()
	s.logger.Info("Chrome session closed")
	return err
}

func epochToTime(sec float64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(sec), 0)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create screenshot directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	return nil
}
