// File: cmd/inspect.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/dailyclaim/internal/auth"
	"github.com/xkilldash9x/dailyclaim/internal/browser"
	"github.com/xkilldash9x/dailyclaim/internal/config"
	"github.com/xkilldash9x/dailyclaim/internal/detection"
	"github.com/xkilldash9x/dailyclaim/internal/humanoid"
	"github.com/xkilldash9x/dailyclaim/internal/workflow"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type inspectOptions struct {
	login       bool
	account     string
	reliability bool
	format      string
}

// inspectOutput is what `inspect` prints.
type inspectOutput struct {
	Report      detection.InterfaceReport `json:"report" yaml:"report"`
	Reliability []detection.Reliability   `json:"selector_reliability,omitempty" yaml:"selector_reliability,omitempty"`
}

func newInspectCmd(a *app) *cobra.Command {
	opts := &inspectOptions{}
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Analyze the check-in page and report how reliably it can be automated",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(opts.format); err != nil {
				return err
			}
			return a.inspect(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.login, "login", false, "authenticate before analyzing the page")
	cmd.Flags().StringVar(&opts.account, "account", "", "account to log in with (default: first configured)")
	cmd.Flags().BoolVar(&opts.reliability, "reliability", false, "repeatedly probe high-confidence selectors")
	cmd.Flags().StringVarP(&opts.format, "output", "o", "json", "output format: json or yaml")
	return cmd
}

func (a *app) inspect(ctx context.Context, w io.Writer, opts *inspectOptions) error {
	cfg := a.cfg
	if opts.login {
		var err error
		if cfg, err = a.validatedConfig(); err != nil {
			return err
		}
	} else if u, err := url.Parse(cfg.Target.URL); err != nil || u.Host == "" {
		return fmt.Errorf("target.url must be an absolute URL, got %q", cfg.Target.URL)
	}

	logger := a.logger.Named("inspect")
	timing := humanoid.New(cfg.Timing, logger)
	engine := workflow.NewDetectionEngine(cfg, timing, logger)

	b, err := a.browserFactory()(ctx)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if cerr := b.Close(closeCtx); cerr != nil {
			logger.Warn("Failed to close browser", zap.Error(cerr))
		}
	}()

	if err := b.Navigate(ctx, cfg.Target.URL); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", cfg.Target.URL, err)
	}
	if err := timing.PageLoad(ctx); err != nil {
		return err
	}

	if opts.login {
		if err := a.inspectLogin(ctx, cfg, opts.account, timing, b); err != nil {
			return err
		}
	}

	analysis, err := engine.AnalyzeInterface(ctx, b)
	if err != nil {
		return err
	}
	avail, err := engine.DetectRewardAvailability(ctx, b)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("Reward availability could not be determined", zap.Error(err))
		avail = nil
	}

	out := inspectOutput{Report: detection.BuildInterfaceReport(analysis, avail)}
	if opts.reliability {
		for _, info := range out.Report.HighConfidence {
			if !info.Found {
				continue
			}
			rel, err := engine.ValidateSelectorReliability(ctx, b, info.Selector, cfg.Detection.ReliabilityAttempts)
			if err != nil {
				return err
			}
			out.Reliability = append(out.Reliability, rel)
		}
	}
	return writeFormatted(w, opts.format, out)
}

func (a *app) inspectLogin(ctx context.Context, cfg *config.Config, name string, timing *humanoid.Timing, b browser.Browser) error {
	accounts := cfg.ResolvedAccounts()
	if name != "" {
		selected, err := selectAccounts(accounts, []string{name})
		if err != nil {
			return err
		}
		accounts = selected
	}
	authenticator, err := auth.New(accounts[0], cfg.Target, timing, a.logger)
	if err != nil {
		return err
	}
	ok, err := authenticator.Authenticate(ctx, b)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("authentication failed using %s", authenticator.Method())
	}
	return nil
}

func validateFormat(format string) error {
	switch format {
	case "json", "yaml":
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (want json or yaml)", format)
	}
}

func writeFormatted(w io.Writer, format string, v any) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
