package cmd

import (
	"context"

	"github.com/AzielCF/az-engage/core/config"
	"github.com/AzielCF/az-engage/core/database"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return migrate(cmd.Context(), config.Global)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func migrate(ctx context.Context, cfg *config.Config) error {
	db, err := database.NewDatabase(cfg)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := database.Migrate(ctx, newRepositories(db).migrators()...); err != nil {
		return err
	}
	logrus.Info("[MIGRATION] Schema is up to date")
	return nil
}
