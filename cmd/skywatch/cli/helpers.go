package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/skywatch-labs/skywatch/internal/config"
	"github.com/skywatch-labs/skywatch/internal/service"
	"github.com/skywatch-labs/skywatch/internal/store"
)

// newLogger builds the process logger from the logging section.
func newLogger(w io.Writer, cfg config.LoggingConfig) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}

// openStore opens the configured database and applies migrations.
func openStore(cfg config.DatabaseConfig) (*store.Store, error) {
	st, err := store.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	return st, nil
}

func buildHasher(cfg config.AuthConfig) (*service.PasswordHasher, error) {
	h, err := service.NewPasswordHasher(cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}
	return h, nil
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
