package config

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	return v
}

func validConfig() Config {
	c := Default()
	c.Auth.JWTSecret = testSecret
	return c
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if cfg.Server.Port != want.Server.Port {
		t.Errorf("port = %d, want %d", cfg.Server.Port, want.Server.Port)
	}
	if cfg.Auth.TokenTTL != time.Hour {
		t.Errorf("token_ttl = %v, want 1h", cfg.Auth.TokenTTL)
	}
	if cfg.Auth.BcryptCost != 10 {
		t.Errorf("bcrypt_cost = %d, want 10", cfg.Auth.BcryptCost)
	}
	if len(cfg.Server.CORS.AllowedOrigins) != 1 || cfg.Server.CORS.AllowedOrigins[0] != "https://www.test-cors.org" {
		t.Errorf("allowed_origins = %v", cfg.Server.CORS.AllowedOrigins)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SKYWATCH_AUTH_JWT_SECRET", testSecret)
	t.Setenv("SKYWATCH_AUTH_TOKEN_TTL", "15m")
	t.Setenv("SKYWATCH_DATABASE_DRIVER", "postgres")
	t.Setenv("SKYWATCH_SERVER_PORT", "9090")

	cfg, err := Load(newViper(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.JWTSecret != testSecret {
		t.Errorf("jwt_secret not taken from env")
	}
	if cfg.Auth.TokenTTL != 15*time.Minute {
		t.Errorf("token_ttl = %v, want 15m", cfg.Auth.TokenTTL)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("driver = %q, want postgres", cfg.Database.Driver)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
}

func TestLoadFromYAML(t *testing.T) {
	v := newViper(t)
	v.SetConfigType("yaml")
	doc := `
database:
  driver: mysql
  dsn: "user:pw@tcp(localhost:3306)/weather"
auth:
  jwt_secret: "` + testSecret + `"
  token_ttl: 30m
  bcrypt_cost: 12
logging:
  format: json
`
	if err := v.ReadConfig(strings.NewReader(doc)); err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != "mysql" || cfg.Auth.BcryptCost != 12 || cfg.Logging.Format != "json" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Auth.TokenTTL != 30*time.Minute {
		t.Errorf("token_ttl = %v, want 30m", cfg.Auth.TokenTTL)
	}
	// Keys absent from the file fall back to defaults.
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("host = %q, want default", cfg.Server.Host)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = "" }, "auth.jwt_secret"},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "auth.jwt_secret"},
		{"zero ttl", func(c *Config) { c.Auth.TokenTTL = 0 }, "auth.token_ttl"},
		{"cost too low", func(c *Config) { c.Auth.BcryptCost = 3 }, "auth.bcrypt_cost"},
		{"cost too high", func(c *Config) { c.Auth.BcryptCost = 32 }, "auth.bcrypt_cost"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mssql" }, "database.driver"},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			err := c.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("Validate() = %v, want ErrInvalid", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not name %s", err, tt.field)
			}
		})
	}

	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestValidateStoreIgnoresSecret(t *testing.T) {
	c := Default()
	if err := c.ValidateStore(); err != nil {
		t.Errorf("ValidateStore without secret: %v", err)
	}
	c.Auth.BcryptCost = 99
	if err := c.ValidateStore(); !errors.Is(err, ErrInvalid) {
		t.Errorf("ValidateStore(cost 99) = %v, want ErrInvalid", err)
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
}

func TestMarshalRoundTripsThroughViper(t *testing.T) {
	c := validConfig()
	c.Auth.TokenTTL = 45 * time.Minute
	out, err := c.Marshal(false)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Contains(out, []byte("token_ttl: 45m0s")) {
		t.Errorf("durations should render as strings:\n%s", out)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(out)); err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	back, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if back.Auth.TokenTTL != c.Auth.TokenTTL || back.Auth.JWTSecret != testSecret {
		t.Errorf("round trip mismatch: %+v", back.Auth)
	}
}

func TestMarshalRedactsSecret(t *testing.T) {
	c := validConfig()
	out, err := c.Marshal(true)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if bytes.Contains(out, []byte(testSecret)) {
		t.Error("redacted output leaks the secret")
	}
}
