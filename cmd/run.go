// File: cmd/run.go
package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dailyclaim/internal/config"
	"github.com/xkilldash9x/dailyclaim/internal/workflow"
)

// errRunFailed marks a run whose failure was already reported per account.
var errRunFailed = errors.New("one or more accounts failed to check in")

type runOptions struct {
	dryRun   bool
	accounts []string
}

func newRunCmd(a *app) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sign in and claim today's reward for every configured account",
		Long: `Runs the check-in workflow: navigate, dismiss modals, authenticate, detect
rewards, claim and validate. Each account gets its own browser session.
With --dry-run the workflow stops after detection without clicking anything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCheckin(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "detect rewards without claiming them")
	cmd.Flags().StringSliceVar(&opts.accounts, "account", nil, "only run the named account(s)")
	return cmd
}

func (a *app) runCheckin(cmd *cobra.Command, opts *runOptions) error {
	ctx := cmd.Context()
	cfg, err := a.validatedConfig()
	if err != nil {
		return err
	}
	accounts, err := selectAccounts(cfg.ResolvedAccounts(), opts.accounts)
	if err != nil {
		return err
	}

	sink, err := a.openSink(ctx, cfg.History, a.logger)
	if err != nil {
		return fmt.Errorf("failed to open execution history: %w", err)
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			a.logger.Warn("Failed to close execution history", zap.Error(cerr))
		}
	}()

	runner := workflow.NewRunner(
		workflow.RunnerOptionsFromConfig(cfg.Workflow, opts.dryRun),
		a.browserFactory(),
		workflow.NewFactory(cfg, sink, a.logger),
		a.logger,
	)

	a.logger.Info("Starting daily check-in",
		zap.Int("accounts", len(accounts)),
		zap.Bool("dry_run", opts.dryRun),
		zap.String("target", cfg.Target.URL))

	outcomes, runErr := runner.RunAll(ctx, accounts)
	failed := printOutcomes(cmd.OutOrStdout(), outcomes)

	if runErr != nil {
		return runErr
	}
	if failed > 0 {
		return errRunFailed
	}
	return nil
}

// selectAccounts filters accounts by name, keeping configuration order.
func selectAccounts(all []config.AuthConfig, names []string) ([]config.AuthConfig, error) {
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]config.AuthConfig, len(all))
	for _, acct := range all {
		byName[acct.Name] = acct
	}
	seen := make(map[string]bool, len(names))
	out := make([]config.AuthConfig, 0, len(names))
	for _, n := range names {
		acct, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown account %q", n)
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, acct)
	}
	return out, nil
}

// printOutcomes writes one summary line per account and returns how many failed.
func printOutcomes(w io.Writer, outcomes []workflow.AccountOutcome) int {
	failed := 0
	for _, out := range outcomes {
		final := out.Final()
		if out.Succeeded() {
			claims := 0
			if final.Claiming != nil {
				claims = final.Claiming.ClaimsProcessed
			}
			fmt.Fprintf(w, "%-12s OK    step=%s claims=%d attempts=%d\n", out.Account, final.Step, claims, len(out.Attempts))
			continue
		}
		failed++
		step := "-"
		if final != nil {
			step = string(final.Step)
		}
		fmt.Fprintf(w, "%-12s FAIL  step=%s attempts=%d error=%q\n", out.Account, step, len(out.Attempts), out.Error)
	}
	return failed
}
