package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skywatch-labs/skywatch/internal/model"
	"github.com/skywatch-labs/skywatch/internal/server"
	"github.com/skywatch-labs/skywatch/internal/service"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Skywatch API server",
		Long:  "Start the HTTP server that exposes the login, registration and weather routes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.Flags().IntP("port", "p", 8080, "HTTP listen port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP listen host")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
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
	logger.Info("store opened", "driver", cfg.Database.Driver)

	hasher, err := buildHasher(cfg.Auth)
	if err != nil {
		return err
	}
	authSvc := service.NewAuthService(st, hasher, service.TokenOptions{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.JWTIssuer,
		TTL:    cfg.Auth.TokenTTL,
	}, logger)

	// Registration is teacher-only, so the first teacher must come from the CLI.
	hasTeacher, err := st.HasRole(ctx, model.RoleTeacher)
	if err != nil {
		logger.Warn("failed to check for a teacher account", "error", err)
	}
	if !hasTeacher {
		logger.Warn("no teacher account found - run: skywatch user create --role teacher --username <name>")
	}

	srv := server.New(server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CORSOrigins:     cfg.Server.CORS.AllowedOrigins,
		Version:         versionString(),
		Metrics:         cfg.Server.Metrics,
	}, st, authSvc, logger)

	fmt.Printf("→ Skywatch %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", cfg.Server.Host, cfg.Server.Port)
	if cfg.Server.Metrics {
		fmt.Printf("→ Metrics:    http://%s:%d/metrics\n", cfg.Server.Host, cfg.Server.Port)
	}
	fmt.Println()

	return srv.ListenAndServe()
}
