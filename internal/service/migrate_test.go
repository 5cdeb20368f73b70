package service

import (
	"context"
	"errors"
	"testing"

	"github.com/skywatch-labs/skywatch/internal/model"
	"github.com/skywatch-labs/skywatch/internal/store"
)

func seedLegacy(t *testing.T, st *store.Store, username, stored string, role model.Role) *model.User {
	t.Helper()
	u := &model.User{Username: username, PasswordHash: stored, Role: role}
	if err := st.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func newTestMigrator(t *testing.T) (*PasswordMigrator, *store.Store, *PasswordHasher) {
	t.Helper()
	st, err := store.NewMemory()
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	h := newTestHasher(t)
	return NewPasswordMigrator(st, h, discardLogger()), st, h
}

func TestMigrateTwice(t *testing.T) {
	m, st, h := newTestMigrator(t)
	ctx := context.Background()

	legacy := seedLegacy(t, st, "carol", "password123", model.RoleUser)
	hashed, _ := h.Hash("already")
	seedLegacy(t, st, "dave", hashed, model.RoleSensor)

	first, err := m.Run(ctx, false)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.Upgraded != 1 || first.Skipped != 1 || first.Failed() {
		t.Errorf("first run: upgraded=%d skipped=%d failures=%d", first.Upgraded, first.Skipped, len(first.Failures))
	}

	got, _ := st.GetUser(ctx, legacy.ID)
	if !LooksHashed(got.PasswordHash) {
		t.Fatalf("legacy credential not hashed: %q", got.PasswordHash)
	}
	if !h.Verify("password123", got.PasswordHash) {
		t.Error("migrated credential must still verify with the original password")
	}

	second, err := m.Run(ctx, false)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.Upgraded != 0 || second.Skipped != 2 {
		t.Errorf("second run: upgraded=%d skipped=%d", second.Upgraded, second.Skipped)
	}

	after, _ := st.GetUser(ctx, legacy.ID)
	if after.PasswordHash != got.PasswordHash {
		t.Error("second run must not rewrite an already hashed credential")
	}
}

func TestMigrateDryRun(t *testing.T) {
	m, st, _ := newTestMigrator(t)
	ctx := context.Background()
	legacy := seedLegacy(t, st, "carol", "password123", model.RoleUser)

	report, err := m.Run(ctx, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.DryRun || report.Upgraded != 1 {
		t.Errorf("unexpected dry-run report: %+v", report)
	}

	got, _ := st.GetUser(ctx, legacy.ID)
	if got.PasswordHash != "password123" {
		t.Error("dry run must not write")
	}
}

type flakyCredentialStore struct {
	*store.Store
	failFor string
}

func (f *flakyCredentialStore) SwapPasswordHash(ctx context.Context, id, old, next string) error {
	if id == f.failFor {
		return errors.New("disk I/O error")
	}
	return f.Store.SwapPasswordHash(ctx, id, old, next)
}

func TestMigrateContinuesPastFailure(t *testing.T) {
	_, st, h := newTestMigrator(t)
	ctx := context.Background()

	bad := seedLegacy(t, st, "bad", "pw-bad", model.RoleUser)
	good := seedLegacy(t, st, "good", "pw-good", model.RoleUser)

	m := NewPasswordMigrator(&flakyCredentialStore{Store: st, failFor: bad.ID}, h, discardLogger())
	report, err := m.Run(ctx, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Failed() || len(report.Failures) != 1 {
		t.Fatalf("expected exactly one failure, got %+v", report.Failures)
	}
	f := report.Failures[0]
	if f.UserID != bad.ID || f.Username != "bad" {
		t.Errorf("failure names the wrong identity: %+v", f)
	}
	if report.Upgraded != 1 {
		t.Errorf("Upgraded = %d, want 1", report.Upgraded)
	}

	got, _ := st.GetUser(ctx, good.ID)
	if !h.Verify("pw-good", got.PasswordHash) {
		t.Error("the healthy record should have been upgraded")
	}
	stillLegacy, _ := st.GetUser(ctx, bad.ID)
	if stillLegacy.PasswordHash != "pw-bad" {
		t.Error("the failed record must keep its original value")
	}

	var outcomes = map[string]Outcome{}
	for _, r := range report.Results {
		outcomes[r.Username] = r.Outcome
	}
	if outcomes["bad"] != OutcomeFailed || outcomes["good"] != OutcomeUpgraded {
		t.Errorf("unexpected outcomes: %v", outcomes)
	}
}

type concurrentWriterStore struct {
	*store.Store
}

// SwapPasswordHash simulates another writer hashing the record first.
func (c concurrentWriterStore) SwapPasswordHash(ctx context.Context, id, old, next string) error {
	if err := c.Store.SwapPasswordHash(ctx, id, old, "$2a$04$"+"abcdefghijklmnopqrstuv"+"abcdefghijklmnopqrstuvwxyz01234"); err != nil {
		return err
	}
	return c.Store.SwapPasswordHash(ctx, id, old, next)
}

func TestMigrateLosesRaceWithoutDoubleHashing(t *testing.T) {
	_, st, h := newTestMigrator(t)
	ctx := context.Background()
	u := seedLegacy(t, st, "carol", "pw", model.RoleUser)

	m := NewPasswordMigrator(concurrentWriterStore{st}, h, discardLogger())
	report, err := m.Run(ctx, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Failures) != 1 || !errors.Is(report.Failures[0], store.ErrNotFound) {
		t.Fatalf("expected a lost compare-and-swap, got %+v", report.Failures)
	}

	got, _ := st.GetUser(ctx, u.ID)
	if !LooksHashed(got.PasswordHash) || h.Verify("pw", got.PasswordHash) {
		t.Error("the concurrent writer's value should have been kept")
	}
}
