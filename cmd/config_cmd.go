// File: cmd/config_cmd.go
package cmd

import (
	"net/url"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/dailyclaim/internal/config"
	"github.com/xkilldash9x/dailyclaim/internal/observability"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeFormatted(cmd.OutOrStdout(), "yaml", maskedConfig(a.cfg))
		},
	})
	return cmd
}

// maskedConfig returns a copy of cfg with every credential masked.
func maskedConfig(cfg *config.Config) config.Config {
	out := *cfg
	out.Auth = maskAuth(cfg.Auth)
	out.Accounts = make([]config.AuthConfig, len(cfg.Accounts))
	for i, acct := range cfg.Accounts {
		out.Accounts[i] = maskAuth(acct)
	}
	out.History.DSN = maskDSN(cfg.History.DSN)
	return out
}

func maskAuth(a config.AuthConfig) config.AuthConfig {
	a.Password = mask(a.Password)
	a.LTUID = mask(a.LTUID)
	a.LToken = mask(a.LToken)
	a.AccountID = mask(a.AccountID)
	return a
}

// mask leaves unset values empty so `config show` still tells them apart.
func mask(v string) string {
	if v == "" {
		return ""
	}
	return observability.MaskValue(v)
}

// maskDSN hides the password of URL-style DSNs and password=... pairs of
// keyword-style ones.
func maskDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		return u.Redacted()
	}
	return observability.RedactString(dsn)
}
