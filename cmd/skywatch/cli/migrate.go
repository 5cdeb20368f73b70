package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/skywatch-labs/skywatch/internal/service"
)

// errMigrationFailed makes the process exit non-zero after the report has
// been printed.
var errMigrationFailed = errors.New("password migration finished with failures")

func newMigrateCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate-passwords",
		Short: "Upgrade stored plaintext passwords to bcrypt hashes",
		Long: `Scan every identity and replace any stored password that is not a bcrypt
hash with its hash. Already-hashed records are skipped, so the command can be
re-run safely. Run it while the server is stopped or idle.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateStore(); err != nil {
				return err
			}
			logger, err := newLogger(os.Stderr, cfg.Logging)
			if err != nil {
				return err
			}
			st, err := openStore(cfg.Database)
			if err != nil {
				return err
			}
			defer st.Close()
			hasher, err := buildHasher(cfg.Auth)
			if err != nil {
				return err
			}

			m := service.NewPasswordMigrator(st, hasher, logger)
			return runMigrate(cmd.Context(), cmd.OutOrStdout(), m, dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be upgraded without writing")

	return cmd
}

func runMigrate(ctx context.Context, out io.Writer, m *service.PasswordMigrator, dryRun bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	report, err := m.Run(ctx, dryRun)
	if err != nil {
		return fmt.Errorf("migrate passwords: %w", err)
	}
	printReport(out, report)
	if report.Failed() {
		return errMigrationFailed
	}
	return nil
}

func printReport(out io.Writer, r *service.MigrationReport) {
	failures := make(map[string]error, len(r.Failures))
	for _, f := range r.Failures {
		failures[f.UserID] = f.Err
	}

	upgradeVerb := "upgraded"
	if r.DryRun {
		upgradeVerb = "would upgrade"
	}
	for _, res := range r.Results {
		switch res.Outcome {
		case service.OutcomeUpgraded:
			fmt.Fprintf(out, "%-14s %s (%s)\n", upgradeVerb, res.Username, res.UserID)
		case service.OutcomeSkipped:
			fmt.Fprintf(out, "%-14s %s (%s)\n", "skipped", res.Username, res.UserID)
		case service.OutcomeFailed:
			fmt.Fprintf(out, "%-14s %s (%s): %v\n", "FAILED", res.Username, res.UserID, failures[res.UserID])
		}
	}

	fmt.Fprintln(out)
	prefix := ""
	if r.DryRun {
		prefix = "dry run: "
	}
	fmt.Fprintf(out, "%s%d upgraded, %d skipped, %d failed\n", prefix, r.Upgraded, r.Skipped, len(r.Failures))
}
