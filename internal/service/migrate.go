package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/skywatch-labs/skywatch/internal/model"
	"github.com/skywatch-labs/skywatch/internal/store"
)

// CredentialStore is what the password migration reads and writes.
type CredentialStore interface {
	ListUsers(ctx context.Context) ([]model.User, error)
	SwapPasswordHash(ctx context.Context, id, old, next string) error
}

// Outcome is the per-identity result of a migration run.
type Outcome string

const (
	OutcomeUpgraded Outcome = "upgraded"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// UpgradeFailure records an identity whose hash could not be written back.
type UpgradeFailure struct {
	UserID   string
	Username string
	Err      error
}

func (f *UpgradeFailure) Error() string {
	return fmt.Sprintf("upgrade %s (%s): %v", f.Username, f.UserID, f.Err)
}

func (f *UpgradeFailure) Unwrap() error { return f.Err }

// MigrationResult is one line of a MigrationReport.
type MigrationResult struct {
	UserID   string
	Username string
	Outcome  Outcome
}

// MigrationReport summarizes a migration run.
type MigrationReport struct {
	DryRun   bool
	Results  []MigrationResult
	Upgraded int
	Skipped  int
	Failures []*UpgradeFailure
}

// Failed reports whether any identity could not be upgraded.
func (r *MigrationReport) Failed() bool {
	return len(r.Failures) > 0
}

func (r *MigrationReport) add(u model.User, o Outcome) {
	r.Results = append(r.Results, MigrationResult{UserID: u.ID, Username: u.Username, Outcome: o})
	switch o {
	case OutcomeUpgraded:
		r.Upgraded++
	case OutcomeSkipped:
		r.Skipped++
	}
}

// PasswordMigrator upgrades legacy plaintext credentials to bcrypt hashes.
// It is meant to run as a single offline instance.
type PasswordMigrator struct {
	store  CredentialStore
	hasher *PasswordHasher
	logger *slog.Logger
}

func NewPasswordMigrator(cs CredentialStore, hasher *PasswordHasher, logger *slog.Logger) *PasswordMigrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &PasswordMigrator{store: cs, hasher: hasher, logger: logger}
}

// Run hashes every stored credential that is not already a bcrypt hash.
// A failed write is recorded and the run continues. The returned error is
// reserved for failures that stop the whole run: loading identities or
// cancellation.
func (m *PasswordMigrator) Run(ctx context.Context, dryRun bool) (*MigrationReport, error) {
	users, err := m.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load identities: %w", err)
	}

	report := &MigrationReport{DryRun: dryRun}
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if LooksHashed(u.PasswordHash) {
			report.add(u, OutcomeSkipped)
			continue
		}
		if dryRun {
			report.add(u, OutcomeUpgraded)
			continue
		}

		if err := m.upgrade(ctx, u); err != nil {
			m.logger.Error("password upgrade failed", "user_id", u.ID, "username", u.Username, "error", err)
			report.add(u, OutcomeFailed)
			report.Failures = append(report.Failures, &UpgradeFailure{UserID: u.ID, Username: u.Username, Err: err})
			continue
		}
		m.logger.Info("password upgraded", "user_id", u.ID, "username", u.Username)
		report.add(u, OutcomeUpgraded)
	}
	return report, nil
}

func (m *PasswordMigrator) upgrade(ctx context.Context, u model.User) error {
	hash, err := m.hasher.Hash(u.PasswordHash)
	if err != nil {
		return err
	}
	if err := m.store.SwapPasswordHash(ctx, u.ID, u.PasswordHash, hash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("credential changed during migration: %w", err)
		}
		return err
	}
	return nil
}
