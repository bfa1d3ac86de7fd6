package cmd

import (
	"github.com/AzielCF/az-engage/core/config"
	"github.com/spf13/cobra"
)

var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Migrate, then run api, worker and scheduler in one process",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := migrate(cmd.Context(), config.Global); err != nil {
			return err
		}
		// worker first so the api's stats endpoint sees the send pool
		return run(cmd.Context(), workerRole, schedulerRole, apiRole)
	},
}

func init() {
	rootCmd.AddCommand(allCmd)
}
