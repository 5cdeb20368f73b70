// Package config defines the typed skywatch configuration, its defaults and
// the validation applied after viper has merged file, env and flag sources.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. SKYWATCH_AUTH_JWT_SECRET.
const EnvPrefix = "SKYWATCH"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the top-level skywatch configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
	Metrics         bool          `mapstructure:"metrics"`
}

// CORSConfig controls cross-origin resource sharing.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig selects the credential and weather store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// AuthConfig controls token issuance and password hashing.
type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	JWTIssuer  string        `mapstructure:"jwt_issuer"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	BcryptCost int           `mapstructure:"bcrypt_cost"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the configuration used when no file or override sets a key.
// JWTSecret is intentionally empty: the server refuses to start without one.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				AllowedOrigins: []string{"https://www.test-cors.org"},
			},
			Metrics: true,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "skywatch.db",
		},
		Auth: AuthConfig{
			JWTIssuer:  "skywatch",
			TokenTTL:   time.Hour,
			BcryptCost: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SetDefaults registers every key of Default with v so that env overrides
// are visible to Unmarshal even when no config file is present.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.cors.allowed_origins", d.Server.CORS.AllowedOrigins)
	v.SetDefault("server.metrics", d.Server.Metrics)
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.jwt_issuer", d.Auth.JWTIssuer)
	v.SetDefault("auth.token_ttl", d.Auth.TokenTTL)
	v.SetDefault("auth.bcrypt_cost", d.Auth.BcryptCost)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// BindEnv makes every key overridable as SKYWATCH_<SECTION>_<KEY>.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load unmarshals the merged viper state into a Config. It does not
// validate; callers that start the server call Validate.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings the server depends on at startup.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	errs = append(errs, c.storeErrors()...)
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	} else if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 bytes"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be text or json", c.Logging.Format))
	}
	return join(errs)
}

// ValidateStore checks only what offline commands (user, migrate-passwords)
// need. They never sign tokens, so no secret is required.
func (c *Config) ValidateStore() error {
	return join(c.storeErrors())
}

func (c *Config) storeErrors() []error {
	var errs []error
	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be sqlite, postgres or mysql", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if err := checkCost(c.Auth.BcryptCost); err != nil {
		errs = append(errs, err)
	}
	return errs
}

func join(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func checkCost(cost int) error {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return fmt.Errorf("auth.bcrypt_cost %d outside [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return nil
}

// ParseLevel maps a logging.level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("logging.level %q: %w", s, err)
	}
	return l, nil
}

// document mirrors Config for YAML rendering with durations as strings.
type document struct {
	Server struct {
		Host            string `yaml:"host"`
		Port            int    `yaml:"port"`
		ReadTimeout     string `yaml:"read_timeout"`
		WriteTimeout    string `yaml:"write_timeout"`
		IdleTimeout     string `yaml:"idle_timeout"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
		CORS            struct {
			AllowedOrigins []string `yaml:"allowed_origins"`
		} `yaml:"cors"`
		Metrics bool `yaml:"metrics"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Auth struct {
		JWTSecret  string `yaml:"jwt_secret"`
		JWTIssuer  string `yaml:"jwt_issuer"`
		TokenTTL   string `yaml:"token_ttl"`
		BcryptCost int    `yaml:"bcrypt_cost"`
	} `yaml:"auth"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Marshal renders c as YAML in the layout read back by viper. When redact
// is set the JWT secret is masked.
func (c *Config) Marshal(redact bool) ([]byte, error) {
	var d document
	d.Server.Host = c.Server.Host
	d.Server.Port = c.Server.Port
	d.Server.ReadTimeout = c.Server.ReadTimeout.String()
	d.Server.WriteTimeout = c.Server.WriteTimeout.String()
	d.Server.IdleTimeout = c.Server.IdleTimeout.String()
	d.Server.ShutdownTimeout = c.Server.ShutdownTimeout.String()
	d.Server.CORS.AllowedOrigins = c.Server.CORS.AllowedOrigins
	d.Server.Metrics = c.Server.Metrics
	d.Database.Driver = c.Database.Driver
	d.Database.DSN = c.Database.DSN
	d.Auth.JWTSecret = c.Auth.JWTSecret
	if redact && d.Auth.JWTSecret != "" {
		d.Auth.JWTSecret = "********"
	}
	d.Auth.JWTIssuer = c.Auth.JWTIssuer
	d.Auth.TokenTTL = c.Auth.TokenTTL.String()
	d.Auth.BcryptCost = c.Auth.BcryptCost
	d.Logging.Level = c.Logging.Level
	d.Logging.Format = c.Logging.Format

	out, err := yaml.Marshal(&d)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return out, nil
}
