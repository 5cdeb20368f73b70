package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch-labs/skywatch/internal/config"
	"github.com/skywatch-labs/skywatch/internal/model"
	"github.com/skywatch-labs/skywatch/internal/service"
	"github.com/skywatch-labs/skywatch/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestHasher(t *testing.T) *service.PasswordHasher {
	t.Helper()
	h, err := service.NewPasswordHasher(4)
	require.NoError(t, err)
	return h
}

func TestNewRootCommand(t *testing.T) {
	root := newRootCmd("1.2.3", "abc", "today")
	assert.Equal(t, "skywatch", root.Name())

	expected := []string{"serve", "user", "migrate-passwords", "config", "version"}
	for _, name := range expected {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, "subcommand %s", name)
		assert.Equal(t, name, cmd.Name())
	}
	assert.Len(t, root.Commands(), len(expected))
}

func TestVersionJSON(t *testing.T) {
	root := newRootCmd("1.2.3", "abc", "today")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--json"})
	require.NoError(t, root.Execute())

	var info map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, "1.2.3", info["version"])
	assert.Equal(t, "abc", info["commit"])
}

func TestVersionString(t *testing.T) {
	for in, want := range map[string]string{"": "dev", "dev": "dev", "1.0.0": "v1.0.0", "v2.1.0": "v2.1.0"} {
		appVersion = in
		assert.Equal(t, want, versionString(), "appVersion %q", in)
	}
	appVersion = ""
}

func TestUserCreateAndList(t *testing.T) {
	st := newTestStore(t)
	h := newTestHasher(t)
	ctx := context.Background()

	var out bytes.Buffer
	err := runUserCreate(ctx, &out, st, h, service.RegisterInput{Username: "ada", Password: "secret123", Role: "teacher"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), `Created teacher "ada"`)

	u, err := st.GetUserByUsername(ctx, "ada")
	require.NoError(t, err)
	assert.True(t, service.LooksHashed(u.PasswordHash), "password must be stored hashed")
	assert.True(t, h.Verify("secret123", u.PasswordHash))

	out.Reset()
	require.NoError(t, runUserList(ctx, &out, st, false))
	assert.Contains(t, out.String(), "USERNAME")
	assert.Contains(t, out.String(), "ada")
	assert.Contains(t, out.String(), "never")

	out.Reset()
	require.NoError(t, runUserList(ctx, &out, st, true))
	var rows []userRow
	require.NoError(t, json.Unmarshal(out.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, model.RoleTeacher, rows[0].Role)
	assert.True(t, rows[0].Hashed)
}

func TestUserCreateRejectsBadInput(t *testing.T) {
	st := newTestStore(t)
	h := newTestHasher(t)
	ctx := context.Background()

	err := runUserCreate(ctx, &bytes.Buffer{}, st, h, service.RegisterInput{Username: "x", Password: "pw", Role: "admin"})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "role:"), "got %q", err)

	require.NoError(t, runUserCreate(ctx, &bytes.Buffer{}, st, h, service.RegisterInput{Username: "dup", Password: "pw", Role: "user"}))
	err = runUserCreate(ctx, &bytes.Buffer{}, st, h, service.RegisterInput{Username: "dup", Password: "pw", Role: "user"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already taken")
}

func TestUserListEmpty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runUserList(context.Background(), &out, newTestStore(t), false))
	assert.Contains(t, out.String(), "No identities found")
}

func TestMigratePasswords(t *testing.T) {
	st := newTestStore(t)
	h := newTestHasher(t)
	ctx := context.Background()

	legacy := &model.User{Username: "legacy", PasswordHash: "hunter2", Role: model.RoleUser}
	require.NoError(t, st.CreateUser(ctx, legacy))
	hashed, err := h.Hash("fresh")
	require.NoError(t, err)
	require.NoError(t, st.CreateUser(ctx, &model.User{Username: "fresh", PasswordHash: hashed, Role: model.RoleSensor}))

	m := service.NewPasswordMigrator(st, h, nil)

	var out bytes.Buffer
	require.NoError(t, runMigrate(ctx, &out, m, true))
	assert.Contains(t, out.String(), "would upgrade")
	assert.Contains(t, out.String(), "dry run: 1 upgraded, 1 skipped, 0 failed")

	got, err := st.GetUser(ctx, legacy.ID)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got.PasswordHash, "dry run must not write")

	out.Reset()
	require.NoError(t, runMigrate(ctx, &out, m, false))
	assert.Contains(t, out.String(), "1 upgraded, 1 skipped, 0 failed")

	got, err = st.GetUser(ctx, legacy.ID)
	require.NoError(t, err)
	assert.True(t, h.Verify("hunter2", got.PasswordHash))

	out.Reset()
	require.NoError(t, runMigrate(ctx, &out, m, false))
	assert.Contains(t, out.String(), "0 upgraded, 2 skipped, 0 failed")
}

func TestPrintReportFailures(t *testing.T) {
	report := &service.MigrationReport{
		Results: []service.MigrationResult{
			{UserID: "1", Username: "ok", Outcome: service.OutcomeUpgraded},
			{UserID: "2", Username: "bad", Outcome: service.OutcomeFailed},
		},
		Upgraded: 1,
		Failures: []*service.UpgradeFailure{{UserID: "2", Username: "bad", Err: assert.AnError}},
	}
	var out bytes.Buffer
	printReport(&out, report)
	assert.Contains(t, out.String(), "FAILED")
	assert.Contains(t, out.String(), assert.AnError.Error())
	assert.Contains(t, out.String(), "1 upgraded, 0 skipped, 1 failed")
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skywatch.yaml")

	var out bytes.Buffer
	require.NoError(t, runConfigInit(&out, path, false))
	assert.Contains(t, out.String(), "Created")

	err := runConfigInit(&out, path, false)
	require.Error(t, err, "existing file must not be overwritten without --force")
	require.NoError(t, runConfigInit(&out, path, true))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	cfg, err := config.Load(v)
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate(), "generated config must be usable as is")
	assert.Len(t, cfg.Auth.JWTSecret, 64)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, config.LoggingConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])

	_, err = newLogger(&buf, config.LoggingConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}
