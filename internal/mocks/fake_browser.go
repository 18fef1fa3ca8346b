// File: internal/mocks/fake_browser.go
package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/xkilldash9x/dailyclaim/internal/browser"
)

// FakeBrowser is a scripted, in-memory page. A selector is "on the page" when
// it is in Present; clicks succeed on present selectors unless scripted
// otherwise. It records every interaction.
type FakeBrowser struct {
	mu sync.Mutex

	Present  map[string]bool
	Elements map[string][]browser.ElementInfo
	// ProbeErrors makes FindElement/ClickElement fail for a selector.
	ProbeErrors map[string]error
	// ClickScript is consumed one entry per click attempt on a selector.
	ClickScript map[string][]bool
	// OnClick runs after every successful click, with the lock released.
	OnClick func(f *FakeBrowser, selector string)

	URL             string
	URLErr          error
	NavigateErr     error
	ScreenshotErr   error
	FindAllErr      error
	DefaultProbeErr error

	Probes      []string
	Clicks      []string
	Typed       map[string]string
	Navigations []string
	Screenshots []string
	Cookies     []browser.Cookie
	CloseCount  int
}

var _ browser.Browser = (*FakeBrowser)(nil)

// NewFakeBrowser returns a page where the given selectors are present.
func NewFakeBrowser(present ...string) *FakeBrowser {
	f := &FakeBrowser{
		Present:     map[string]bool{},
		Elements:    map[string][]browser.ElementInfo{},
		ProbeErrors: map[string]error{},
		ClickScript: map[string][]bool{},
		Typed:       map[string]string{},
		URL:         "https://act.hoyolab.com/ys/event/signin-sea-v3/index.html",
	}
	for _, s := range present {
		f.Present[s] = true
	}
	return f
}

// SetPresent adds or removes selectors from the page.
func (f *FakeBrowser) SetPresent(present bool, selectors ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range selectors {
		if present {
			f.Present[s] = true
		} else {
			delete(f.Present, s)
		}
	}
}

// ClickCount returns how many click attempts hit selector, or all clicks if empty.
func (f *FakeBrowser) ClickCount(selector string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if selector == "" {
		return len(f.Clicks)
	}
	n := 0
	for _, c := range f.Clicks {
		if c == selector {
			n++
		}
	}
	return n
}

// ProbeCount returns how many FindElement calls were made.
func (f *FakeBrowser) ProbeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Probes)
}

// Closed returns how many times Close was called.
func (f *FakeBrowser) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.CloseCount
}

func (f *FakeBrowser) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Navigations = append(f.Navigations, url)
	if f.NavigateErr != nil {
		return f.NavigateErr
	}
	f.URL = url
	return ctx.Err()
}

func (f *FakeBrowser) probeErr(selector string) error {
	if err, ok := f.ProbeErrors[selector]; ok {
		return err
	}
	return f.DefaultProbeErr
}

func (f *FakeBrowser) FindElement(ctx context.Context, selector string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Probes = append(f.Probes, selector)
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := f.probeErr(selector); err != nil {
		return false, err
	}
	return f.Present[selector], nil
}

func (f *FakeBrowser) FindElements(ctx context.Context, selector string) ([]browser.ElementInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FindAllErr != nil {
		return nil, f.FindAllErr
	}
	if els, ok := f.Elements[selector]; ok {
		return els, nil
	}
	if f.Present[selector] {
		return []browser.ElementInfo{{Visible: true}}, nil
	}
	return nil, ctx.Err()
}

func (f *FakeBrowser) ClickElement(ctx context.Context, selector string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	f.Clicks = append(f.Clicks, selector)
	if err := ctx.Err(); err != nil {
		f.mu.Unlock()
		return false, err
	}
	if err := f.probeErr(selector); err != nil {
		f.mu.Unlock()
		return false, err
	}
	ok := f.Present[selector]
	if script := f.ClickScript[selector]; len(script) > 0 {
		ok = script[0]
		f.ClickScript[selector] = script[1:]
	}
	hook := f.OnClick
	f.mu.Unlock()

	if ok && hook != nil {
		hook(f, selector)
	}
	return ok, nil
}

func (f *FakeBrowser) TypeText(ctx context.Context, selector, text string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.Present[selector] {
		return false, ctx.Err()
	}
	f.Typed[selector] = text
	return true, nil
}

func (f *FakeBrowser) Screenshot(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ScreenshotErr != nil {
		return f.ScreenshotErr
	}
	f.Screenshots = append(f.Screenshots, path)
	return nil
}

func (f *FakeBrowser) SetCookie(_ context.Context, cookie browser.Cookie) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cookie.Name == "" {
		return errors.New("cookie name is required")
	}
	f.Cookies = append(f.Cookies, cookie)
	return nil
}

func (f *FakeBrowser) GetCookies(context.Context) ([]browser.Cookie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]browser.Cookie(nil), f.Cookies...), nil
}

func (f *FakeBrowser) CurrentURL(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.URL, f.URLErr
}

func (f *FakeBrowser) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CloseCount++
	return nil
}
