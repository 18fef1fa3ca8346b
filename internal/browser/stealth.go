// File: internal/browser/stealth.go
package browser

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/xkilldash9x/dailyclaim/internal/config"
	"go.uber.org/zap"
)

//go:embed scripts/evasions.js
var evasionsScript string

// Persona is the browser identity presented to the site.
type Persona struct {
	UserAgent string
	Languages []string
	Timezone  string
	Locale    string
}

// PersonaFromConfig derives a persona from the browser settings.
func PersonaFromConfig(cfg config.BrowserConfig) Persona {
	locale := cfg.Locale
	if locale == "" {
		locale = "en-US"
	}
	langs := []string{locale}
	if base, _, ok := strings.Cut(locale, "-"); ok {
		langs = append(langs, base)
	}
	return Persona{
		UserAgent: cfg.UserAgent,
		Languages: langs,
		Timezone:  cfg.Timezone,
		Locale:    locale,
	}
}

// AcceptLanguage renders the Accept-Language header for the persona.
func (p Persona) AcceptLanguage() string {
	parts := make([]string, 0, len(p.Languages))
	for i, l := range p.Languages {
		if i == 0 {
			parts = append(parts, l)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s;q=0.%d", l, 9-i))
	}
	return strings.Join(parts, ",")
}

// StealthTasks makes a chromedp tab look like a user-operated browser.
func StealthTasks(p Persona, logger *zap.Logger) chromedp.Tasks {
	logger.Debug("Applying browser stealth persona",
		zap.String("user_agent", p.UserAgent),
		zap.String("locale", p.Locale),
	)

	tasks := chromedp.Tasks{
		chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(evasionsScript).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}),
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": p.AcceptLanguage()}),
	}
	if p.UserAgent != "" {
		tasks = append(tasks, emulation.SetUserAgentOverride(p.UserAgent).WithAcceptLanguage(p.AcceptLanguage()))
	}
	if p.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(p.Timezone))
	}
	if p.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(p.Locale))
	}
	return tasks
}
