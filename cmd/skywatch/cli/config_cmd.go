package cli

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skywatch-labs/skywatch/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage Skywatch configuration",
		Long:  "Initialize a default configuration file or display the current effective configuration.",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var (
		force bool
		path  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default skywatch.yaml configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd.OutOrStdout(), path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")
	cmd.Flags().StringVar(&path, "path", "skywatch.yaml", "Where to write the file")

	return cmd
}

const configHeader = `# Skywatch configuration
# Every key can be overridden with SKYWATCH_<SECTION>_<KEY>, e.g.
# SKYWATCH_AUTH_JWT_SECRET or SKYWATCH_DATABASE_DSN.
# database.driver is one of sqlite, postgres, mysql.

`

func runConfigInit(out io.Writer, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	secret, err := randomSecret()
	if err != nil {
		return err
	}
	cfg := config.Default()
	cfg.Auth.JWTSecret = secret

	body, err := cfg.Marshal(false)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append([]byte(configHeader), body...), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(out, "Created %s with a generated auth.jwt_secret\n", path)
	fmt.Fprintln(out, "Create the first teacher with 'skywatch user create --role teacher', then run 'skywatch serve'.")
	return nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if f := viper.ConfigFileUsed(); f != "" {
				fmt.Fprintf(out, "# Config file: %s\n", f)
			} else {
				fmt.Fprintln(out, "# Config file: (none found, using defaults and environment)")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			body, err := cfg.Marshal(!reveal)
			if err != nil {
				return err
			}
			_, err = out.Write(body)
			return err
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print the JWT secret instead of masking it")

	return cmd
}
