package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skywatch-labs/skywatch/internal/config"
)

var (
	cfgFile    string
	appVersion string // set in Execute, reported by serve and /healthz
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skywatch",
		Short: "Weather data API with token authentication",
		Long: `Skywatch serves weather observations over a JSON API.

Identities log in with a password and receive a signed bearer token. Every
data route is restricted to an allow-list of roles (teacher, user, sensor).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./skywatch.yaml)")
	cmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	viper.BindPFlag("logging.level", cmd.PersistentFlags().Lookup("log-level"))

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newUserCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("skywatch")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.skywatch")
	}

	config.SetDefaults(viper.GetViper())
	config.BindEnv(viper.GetViper())

	// The file is optional unless named explicitly.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// loadConfig returns the merged configuration for the running command.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}
