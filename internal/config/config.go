// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Authentication methods. Exactly one is active per deployment.
const (
	AuthCookieInjection = "cookie_injection"
	AuthFormLogin       = "form_login"
)

// Browser backends.
const (
	BackendChromedp   = "chromedp"
	BackendRod        = "rod"
	BackendPlaywright = "playwright"
)

// History drivers.
const (
	HistoryJSONL    = "jsonl"
	HistoryPostgres = "postgres"
	HistorySQLite   = "sqlite"
)

// DefaultCheckinURL is the daily sign-in event page.
const DefaultCheckinURL = "https://act.hoyolab.com/ys/event/signin-sea-v3/index.html"

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Target    TargetConfig    `mapstructure:"target" yaml:"target"`
	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	Accounts  []AuthConfig    `mapstructure:"accounts" yaml:"accounts,omitempty"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Detection DetectionConfig `mapstructure:"detection" yaml:"detection"`
	Timing    TimingConfig    `mapstructure:"timing" yaml:"timing"`
	Claim     ClaimConfig     `mapstructure:"claim" yaml:"claim"`
	Workflow  WorkflowConfig  `mapstructure:"workflow" yaml:"workflow"`
	History   HistoryConfig   `mapstructure:"history" yaml:"history"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color settings for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// TargetConfig identifies the check-in page.
type TargetConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
	// CookieDomain overrides the registrable domain derived from URL.
	CookieDomain string `mapstructure:"cookie_domain" yaml:"cookie_domain"`
}

// AuthConfig holds the credentials for one account. Only the fields
// required by Method are validated.
type AuthConfig struct {
	Name      string `mapstructure:"name" yaml:"name"`
	Method    string `mapstructure:"method" yaml:"method"`
	Username  string `mapstructure:"username" yaml:"username"`
	Password  string `mapstructure:"password" yaml:"password"`
	LTUID     string `mapstructure:"ltuid" yaml:"ltuid"`
	LToken    string `mapstructure:"ltoken" yaml:"ltoken"`
	AccountID string `mapstructure:"account_id" yaml:"account_id"`
}

// BrowserConfig configures the browser session.
type BrowserConfig struct {
	Backend   string         `mapstructure:"backend" yaml:"backend"`
	Headless  bool           `mapstructure:"headless" yaml:"headless"`
	UserAgent string         `mapstructure:"user_agent" yaml:"user_agent"`
	Locale    string         `mapstructure:"locale" yaml:"locale"`
	Timezone  string         `mapstructure:"timezone" yaml:"timezone"`
	Timeout   time.Duration  `mapstructure:"timeout" yaml:"timeout"`
	Args      []string       `mapstructure:"args" yaml:"args"`
	Viewport  map[string]int `mapstructure:"viewport" yaml:"viewport"`
	// InstallDrivers lets the playwright backend download its browser on first use.
	InstallDrivers bool `mapstructure:"install_drivers" yaml:"install_drivers"`
}

// DetectionConfig tunes selector probing.
type DetectionConfig struct {
	ProbeTimeout      time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
	StateProbeTimeout time.Duration `mapstructure:"state_probe_timeout" yaml:"state_probe_timeout"`
	// WaitTimeout bounds each probe of a selector reliability check.
	WaitTimeout time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
	// RetryAttempts is how often a selector probe that errors is tried.
	RetryAttempts       int `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	ReliabilityAttempts int `mapstructure:"reliability_attempts" yaml:"reliability_attempts"`
}

// TimingConfig holds the base values for human-like delays.
type TimingConfig struct {
	MinDelay           time.Duration `mapstructure:"min_delay" yaml:"min_delay"`
	PageLoadBase       time.Duration `mapstructure:"page_load_base" yaml:"page_load_base"`
	PageLoadVariance   float64       `mapstructure:"page_load_variance" yaml:"page_load_variance"`
	ClickBase          time.Duration `mapstructure:"click_base" yaml:"click_base"`
	ClickVariance      float64       `mapstructure:"click_variance" yaml:"click_variance"`
	NavigationBase     time.Duration `mapstructure:"navigation_base" yaml:"navigation_base"`
	NavigationVariance float64       `mapstructure:"navigation_variance" yaml:"navigation_variance"`
	TypingBase         time.Duration `mapstructure:"typing_base" yaml:"typing_base"`
	TypingVariance     float64       `mapstructure:"typing_variance" yaml:"typing_variance"`
	RandomPauseMin     time.Duration `mapstructure:"random_pause_min" yaml:"random_pause_min"`
	RandomPauseMax     time.Duration `mapstructure:"random_pause_max" yaml:"random_pause_max"`
}

// ClaimConfig tunes the click loop.
type ClaimConfig struct {
	ClickAttempts       int           `mapstructure:"click_attempts" yaml:"click_attempts"`
	ClickTimeout        time.Duration `mapstructure:"click_timeout" yaml:"click_timeout"`
	ConfirmProbeTimeout time.Duration `mapstructure:"confirm_probe_timeout" yaml:"confirm_probe_timeout"`
}

// WorkflowConfig controls run orchestration.
type WorkflowConfig struct {
	// MaxAttempts bounds how many times a run is started for one account.
	MaxAttempts      int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	Concurrency      int           `mapstructure:"concurrency" yaml:"concurrency"`
	AccountStagger   time.Duration `mapstructure:"account_stagger" yaml:"account_stagger"`
	RecoveryCooldown time.Duration `mapstructure:"recovery_cooldown" yaml:"recovery_cooldown"`
	ScreenshotDir    string        `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	DebugScreenshots bool          `mapstructure:"debug_screenshots" yaml:"debug_screenshots"`
}

// HistoryConfig selects the execution-history sink.
type HistoryConfig struct {
	Driver   string `mapstructure:"driver" yaml:"driver"`
	Path     string `mapstructure:"path" yaml:"path"`
	DSN      string `mapstructure:"dsn" yaml:"dsn"`
	KeepDays int    `mapstructure:"keep_days" yaml:"keep_days"`
}

// ViewportSize returns the configured viewport, defaulting to 1920x1080.
func (b BrowserConfig) ViewportSize() (int, int) {
	w, h := b.Viewport["width"], b.Viewport["height"]
	if w <= 0 {
		w = 1920
	}
	if h <= 0 {
		h = 1080
	}
	return w, h
}

// ResolvedAccounts returns the accounts to run. When no accounts list is
// configured, the top-level auth block is the single account.
func (c *Config) ResolvedAccounts() []AuthConfig {
	if len(c.Accounts) == 0 {
		a := c.Auth
		if a.Name == "" {
			a.Name = "default"
		}
		return []AuthConfig{a}
	}
	out := make([]AuthConfig, 0, len(c.Accounts))
	for i, a := range c.Accounts {
		if a.Method == "" {
			a.Method = c.Auth.Method
		}
		if a.Name == "" {
			a.Name = fmt.Sprintf("account-%d", i+1)
		}
		out = append(out, a)
	}
	return out
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static; failing here is a programming error.
		panic(fmt.Sprintf("config: unmarshal defaults: %v", err))
	}
	return &cfg
}

// SetDefaults sets the default values for all configuration parameters in Viper.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "dailyclaim")
	v.SetDefault("logger.log_file", "logs/dailyclaim.log")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Target --
	v.SetDefault("target.url", DefaultCheckinURL)

	// -- Auth --
	v.SetDefault("auth.method", AuthCookieInjection)

	// -- Browser --
	v.SetDefault("browser.backend", BackendChromedp)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.timezone", "America/Los_Angeles")
	v.SetDefault("browser.timeout", 30*time.Second)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.viewport", map[string]int{"width": 1920, "height": 1080})
	v.SetDefault("browser.install_drivers", false)

	// -- Detection --
	v.SetDefault("detection.probe_timeout", 3*time.Second)
	v.SetDefault("detection.state_probe_timeout", 2*time.Second)
	v.SetDefault("detection.wait_timeout", 5*time.Second)
	v.SetDefault("detection.retry_attempts", 3)
	v.SetDefault("detection.reliability_attempts", 3)

	// -- Timing --
	v.SetDefault("timing.min_delay", 100*time.Millisecond)
	v.SetDefault("timing.page_load_base", 2000*time.Millisecond)
	v.SetDefault("timing.page_load_variance", 0.4)
	v.SetDefault("timing.click_base", 1000*time.Millisecond)
	v.SetDefault("timing.click_variance", 0.5)
	v.SetDefault("timing.navigation_base", 3000*time.Millisecond)
	v.SetDefault("timing.navigation_variance", 0.3)
	v.SetDefault("timing.typing_base", 100*time.Millisecond)
	v.SetDefault("timing.typing_variance", 0.8)
	v.SetDefault("timing.random_pause_min", 500*time.Millisecond)
	v.SetDefault("timing.random_pause_max", 2000*time.Millisecond)

	// -- Claim --
	v.SetDefault("claim.click_attempts", 3)
	v.SetDefault("claim.click_timeout", 5*time.Second)
	v.SetDefault("claim.confirm_probe_timeout", 2*time.Second)

	// -- Workflow --
	v.SetDefault("workflow.max_attempts", 2)
	v.SetDefault("workflow.concurrency", 1)
	v.SetDefault("workflow.account_stagger", 30*time.Second)
	v.SetDefault("workflow.recovery_cooldown", 5*time.Second)
	v.SetDefault("workflow.screenshot_dir", "logs/screenshots")
	v.SetDefault("workflow.debug_screenshots", false)

	// -- History --
	v.SetDefault("history.driver", HistoryJSONL)
	v.SetDefault("history.path", "logs/execution_history.jsonl")
	v.SetDefault("history.keep_days", 30)
}

// NewConfigFromViper unmarshals a viper instance into a validated Config.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	cfg, err := LoadFromViper(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFromViper unmarshals without validating. Commands that never touch
// the check-in page use it so that missing credentials do not block them.
func LoadFromViper(v *viper.Viper) (*Config, error) {
	// Credentials usually come from the environment, never the config file.
	_ = v.BindEnv("auth.ltuid", "DAILYCLAIM_LTUID")
	_ = v.BindEnv("auth.ltoken", "DAILYCLAIM_LTOKEN")
	_ = v.BindEnv("auth.account_id", "DAILYCLAIM_ACCOUNT_ID")
	_ = v.BindEnv("auth.username", "DAILYCLAIM_USERNAME")
	_ = v.BindEnv("auth.password", "DAILYCLAIM_PASSWORD")
	_ = v.BindEnv("history.dsn", "DAILYCLAIM_HISTORY_DSN")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Target.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("target.url must be an absolute URL, got %q", c.Target.URL)
	}
	for _, a := range c.ResolvedAccounts() {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("account %q: %w", a.Name, err)
		}
	}
	if err := c.Browser.Validate(); err != nil {
		return err
	}
	if err := c.Timing.Validate(); err != nil {
		return err
	}
	if c.Detection.ProbeTimeout <= 0 || c.Detection.StateProbeTimeout <= 0 {
		return fmt.Errorf("detection probe timeouts must be positive")
	}
	if c.Detection.ReliabilityAttempts <= 0 {
		return fmt.Errorf("detection.reliability_attempts must be a positive integer")
	}
	if c.Claim.ClickAttempts <= 0 {
		return fmt.Errorf("claim.click_attempts must be a positive integer")
	}
	if c.Workflow.MaxAttempts <= 0 {
		return fmt.Errorf("workflow.max_attempts must be a positive integer")
	}
	if c.Workflow.Concurrency <= 0 {
		return fmt.Errorf("workflow.concurrency must be a positive integer")
	}
	return c.History.Validate()
}

// Validate checks that the credentials required by the method are present.
func (a AuthConfig) Validate() error {
	switch a.Method {
	case AuthCookieInjection:
		if a.LTUID == "" {
			return fmt.Errorf("auth.ltuid is required for %s", AuthCookieInjection)
		}
		if a.LToken == "" {
			return fmt.Errorf("auth.ltoken is required for %s", AuthCookieInjection)
		}
	case AuthFormLogin:
		if a.Username == "" || a.Password == "" {
			return fmt.Errorf("auth.username and auth.password are required for %s", AuthFormLogin)
		}
	default:
		return fmt.Errorf("auth.method must be %q or %q, got %q", AuthCookieInjection, AuthFormLogin, a.Method)
	}
	return nil
}

// Validate checks the browser section.
func (b BrowserConfig) Validate() error {
	switch b.Backend {
	case BackendChromedp, BackendRod, BackendPlaywright:
	default:
		return fmt.Errorf("browser.backend %q is not supported", b.Backend)
	}
	if b.Timeout <= 0 {
		return fmt.Errorf("browser.timeout must be positive")
	}
	return nil
}

// Validate checks that every variance is a fraction and the pause range is ordered.
func (t TimingConfig) Validate() error {
	for name, v := range map[string]float64{
		"page_load_variance":  t.PageLoadVariance,
		"click_variance":      t.ClickVariance,
		"navigation_variance": t.NavigationVariance,
		"typing_variance":     t.TypingVariance,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("timing.%s must be within [0, 1], got %v", name, v)
		}
	}
	if t.RandomPauseMax < t.RandomPauseMin {
		return fmt.Errorf("timing.random_pause_max must not be below timing.random_pause_min")
	}
	return nil
}

// Validate checks the history sink settings.
func (h HistoryConfig) Validate() error {
	switch h.Driver {
	case HistoryJSONL, HistorySQLite:
		if h.Path == "" {
			return fmt.Errorf("history.path is required for the %s driver", h.Driver)
		}
	case HistoryPostgres:
		if h.DSN == "" {
			return fmt.Errorf("history.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("history.driver %q is not supported", h.Driver)
	}
	return nil
}
