// File: internal/browser/browser.go
package browser

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"github.com/xkilldash9x/dailyclaim/internal/config"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

//go:embed scripts/query_elements.js
var queryElementsScript string

// xpathPrefix marks a selector as XPath instead of CSS.
const xpathPrefix = "xpath="

// ErrClosed is returned by operations on a session that has been closed.
var ErrClosed = errors.New("browser session closed")

// ElementInfo describes one element matched by FindElements.
type ElementInfo struct {
	Tag        string            `json:"tag"`
	Text       string            `json:"text"`
	Visible    bool              `json:"visible"`
	Attributes map[string]string `json:"attributes"`
}

// Cookie is a backend-neutral browser cookie.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Secure   bool      `json:"secure"`
	HTTPOnly bool      `json:"http_only"`
	Expires  time.Time `json:"expires,omitempty"`
}

// Browser is the capability the check-in core drives. Element probes and
// clicks treat a timeout as "not found" and return false with a nil error;
// a non-nil error means the session itself is unusable.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	FindElement(ctx context.Context, selector string, timeout time.Duration) (bool, error)
	FindElements(ctx context.Context, selector string) ([]ElementInfo, error)
	ClickElement(ctx context.Context, selector string, timeout time.Duration) (bool, error)
	TypeText(ctx context.Context, selector, text string, timeout time.Duration) (bool, error)
	Screenshot(ctx context.Context, path string) error
	SetCookie(ctx context.Context, cookie Cookie) error
	GetCookies(ctx context.Context) ([]Cookie, error)
	CurrentURL(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

// Factory opens a new browser session.
type Factory func(ctx context.Context) (Browser, error)

// New opens a session on the configured backend.
func New(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (Browser, error) {
	switch cfg.Backend {
	case config.BackendChromedp, "":
		return NewChromeSession(ctx, cfg, logger)
	case config.BackendRod:
		return NewRodSession(ctx, cfg, logger)
	case config.BackendPlaywright:
		return NewPlaywrightSession(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported browser backend %q", cfg.Backend)
	}
}

// NewFactory binds configuration into a Factory.
func NewFactory(cfg config.BrowserConfig, logger *zap.Logger) Factory {
	return func(ctx context.Context) (Browser, error) {
		return New(ctx, cfg, logger)
	}
}

// TextSelector builds an XPath selector matching elements of the given tags
// whose own text contains text, ignoring ASCII case. Tags default to
// button, a, span and div.
func TextSelector(text string, tags ...string) string {
	if len(tags) == 0 {
		tags = []string{"button", "a", "span", "div"}
	}
	conds := make([]string, len(tags))
	for i, t := range tags {
		conds[i] = "self::" + t
	}
	const upper, lower = "ABCDEFGHIJKLMNOPQRSTUVWXYZ", "abcdefghijklmnopqrstuvwxyz"
	return fmt.Sprintf(`%s//*[%s][text()[contains(translate(normalize-space(.), '%s', '%s'), %s)]]`,
		xpathPrefix, strings.Join(conds, " or "), upper, lower, xpathLiteral(strings.ToLower(text)))
}

// ScreenshotPath returns dir/{prefix}_{timestamp}.png with dir's ~ expanded.
func ScreenshotPath(dir, prefix string, at time.Time) (string, error) {
	if dir == "" {
		dir = "logs/screenshots"
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return "", err
	}
	ts := strings.ReplaceAll(at.UTC().Format("2006-01-02T15-04-05.000Z"), ":", "-")
	return filepath.Join(expanded, prefix+"_"+ts+".png"), nil
}

// IsXPath reports whether selector uses the xpath= prefix.
func IsXPath(selector string) bool {
	return strings.HasPrefix(selector, xpathPrefix)
}

// splitSelector strips the xpath= prefix.
func splitSelector(selector string) (expr string, isXPath bool) {
	if IsXPath(selector) {
		return strings.TrimPrefix(selector, xpathPrefix), true
	}
	return selector, false
}

func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = `"` + p + `"`
	}
	return "concat(" + strings.Join(quoted, `, '"', `) + ")"
}

// elementQuery is the argument passed to the embedded query script.
type elementQuery struct {
	Selector string `json:"selector"`
	XPath    bool   `json:"xpath"`
}

func newElementQuery(selector string) elementQuery {
	expr, isX := splitSelector(selector)
	return elementQuery{Selector: expr, XPath: isX}
}

// evalExpression renders the query script as a self-invoking expression for
// backends that evaluate plain expressions.
func (q elementQuery) evalExpression() (string, error) {
	arg, err := json.Marshal(q)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(%s)(%s)", strings.TrimSpace(queryElementsScript), arg), nil
}

// decodeElements converts a backend's evaluation result into ElementInfo.
func decodeElements(raw any) ([]ElementInfo, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode element result: %w", err)
	}
	var out []ElementInfo
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode element result: %w", err)
	}
	return out, nil
}

// isTimeout reports whether err is a probe deadline rather than a session
// failure. A cancelled parent context is never a probe timeout.
func isTimeout(parent context.Context, err error) bool {
	return parent.Err() == nil && errors.Is(err, context.DeadlineExceeded)
}
