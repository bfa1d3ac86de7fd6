package cmd

import (
	"os"
	"time"

	"github.com/AzielCF/az-engage/core/config"
	"github.com/AzielCF/az-engage/pkg/crypto"
	"github.com/AzielCF/az-engage/pkg/utils"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "engage",
	Short: "Multi-tenant WhatsApp engagement core",
	Long: `Conversations, campaigns and billing reminders over an external WhatsApp gateway.
Run one role per process (api, worker, scheduler) or everything with "all".`,
	SilenceUsage:      true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return initConfig() },
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringP(
		"port", "p", "",
		"change port number with --port <number> | example: --port=8080 (default APP_PORT or 3000)",
	)
	rootCmd.PersistentFlags().BoolP(
		"debug", "d", false,
		"hide or displaying log with --debug <true/false> | example: --debug=true",
	)
	_ = viper.BindPFlag("APP_PORT", rootCmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("APP_DEBUG", rootCmd.PersistentFlags().Lookup("debug"))
}

// initConfig loads .env, builds config.Global and prepares logging and field encryption.
func initConfig() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("[CONFIG] .env could not be read")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	time.Local = time.UTC
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if cfg.App.ServerID == "" {
		cfg.App.ServerID = utils.ServerID(cfg.App.DataDir)
	}
	if err := crypto.SetEncryptionKey(cfg.Security.SecretKey); err != nil {
		return err
	}
	logrus.Debugf("[CONFIG] %v", config.Settings())
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
