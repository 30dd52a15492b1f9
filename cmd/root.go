package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Alturino/storefront/internal/config"
	"github.com/Alturino/storefront/internal/constants"
	"github.com/Alturino/storefront/internal/log"
)

const (
	flagConfig    = "config"
	flagConfigDir = "config-dir"
)

func Start() {
	logger := log.InitLogger(log.Options{
		Filepath: filepath.Join(envOr("LOG_DIR", "/var/log"), constants.AppStorefront+".log"),
		Env:      envOr("APPLICATION_ENV", "development"),
		Level:    os.Getenv("LOG_LEVEL"),
	}).
		With().
		Str(log.KeyAppName, constants.AppStorefront).
		Str(log.KeyTag, "main Start").
		Logger()

	logger.Info().Msg("adding listener for SIGINT and SIGTERM")
	c, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger.Info().Msg("added listener for SIGINT and SIGTERM")

	c = logger.WithContext(c)
	if err := newRootCommand().ExecuteContext(c); err != nil {
		logger.Fatal().Err(err).Msgf("error when executing command=%s", err.Error())
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           constants.AppStorefront,
		Short:         "Storefront backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String(flagConfig, "api", "config file name under the config directory, without extension")
	rootCmd.PersistentFlags().String(flagConfigDir, "./env", "directory holding the config files")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "api",
			Short: "Run the HTTP API",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				return runApi(withApp(cmd.Context(), constants.AppApi), cfg)
			},
		},
		newMigrateCommand(),
		&cobra.Command{
			Use:   "relay",
			Short: "Publish committed outbox events to kafka",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				return runRelay(withApp(cmd.Context(), constants.AppRelay), cfg)
			},
		},
		&cobra.Command{
			Use:   "notification",
			Short: "Consume order events and notify customers",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				return runNotification(withApp(cmd.Context(), constants.AppNotification), cfg)
			},
		},
	)
	return rootCmd
}

func newMigrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database migrations",
	}
	for _, direction := range []string{"up", "down"} {
		migrateCmd.AddCommand(&cobra.Command{
			Use:   direction,
			Short: fmt.Sprintf("Migrate the database %s", direction),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				return runMigrate(withApp(cmd.Context(), constants.AppMigrate), cfg, direction)
			},
		})
	}
	return migrateCmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	name, err := cmd.Flags().GetString(flagConfig)
	if err != nil {
		return nil, err
	}
	dir, err := cmd.Flags().GetString(flagConfigDir)
	if err != nil {
		return nil, err
	}
	return config.Load(cmd.Context(), dir, name)
}

func withApp(c context.Context, app string) context.Context {
	logger := zerolog.Ctx(c).With().Str(log.KeyAppName, app).Logger()
	return logger.WithContext(c)
}

func envOr(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
