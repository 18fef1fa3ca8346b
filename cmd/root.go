// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/dailyclaim/internal/browser"
	"github.com/xkilldash9x/dailyclaim/internal/config"
	"github.com/xkilldash9x/dailyclaim/internal/history"
	"github.com/xkilldash9x/dailyclaim/internal/observability"
)

// app carries the state shared by every subcommand of one root command.
type app struct {
	v       *viper.Viper
	cfgFile string

	cfg    *config.Config
	logger *zap.Logger

	// Overridable in tests.
	logWriter  io.Writer
	newBrowser browser.Factory
	openSink   func(ctx context.Context, cfg config.HistoryConfig, logger *zap.Logger) (history.Sink, error)
}

// NewRootCmd builds the dailyclaim command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{})
}

func newRootCmd(a *app) *cobra.Command {
	if a.v == nil {
		a.v = viper.New()
	}
	if a.openSink == nil {
		a.openSink = history.Open
	}

	root := &cobra.Command{
		Use:           "dailyclaim",
		Short:         "dailyclaim signs in to the daily check-in page and claims today's reward.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize()
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(
		newRunCmd(a),
		newInspectCmd(a),
		newHistoryCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	observability.Sync()
	if err == nil {
		return 0
	}
	if !errors.Is(err, errRunFailed) {
		fmt.Fprintln(os.Stderr, "Error:", observability.RedactString(err.Error()))
	}
	return 1
}

// initialize reads the config file and environment and sets up logging.
// Credentials are not validated here; commands that need them call
// validatedConfig.
func (a *app) initialize() error {
	config.SetDefaults(a.v)

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.AddConfigPath(".")
		a.v.SetConfigName("config")
		a.v.SetConfigType("yaml")
	}
	a.v.SetEnvPrefix("DAILYCLAIM")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg, err := config.LoadFromViper(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if a.logWriter != nil {
		a.logger = observability.New(cfg.Logger, zapcore.AddSync(a.logWriter))
	} else {
		a.logger = observability.Initialize(cfg.Logger, zapcore.Lock(os.Stderr))
	}
	a.logger.Debug("Configuration loaded", zap.String("version", Version), zap.String("config_file", a.v.ConfigFileUsed()))
	return nil
}

// validatedConfig returns the configuration after full validation.
func (a *app) validatedConfig() (*config.Config, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return a.cfg, nil
}

func (a *app) browserFactory() browser.Factory {
	if a.newBrowser != nil {
		return a.newBrowser
	}
	return browser.NewFactory(a.cfg.Browser, a.logger)
}
