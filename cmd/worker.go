package cmd

import (
	"context"

	"github.com/AzielCF/az-engage/pkg/msgworker"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// webhookConcurrency bounds chat.webhook consumers per process.
const webhookConcurrency = 8

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume send, read receipt, webhook and download jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), workerRole)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

var workerRole = role{
	name:     "worker",
	consumes: true,
	wire: func(rt *runtime) {
		rt.pool = msgworker.GetGlobalPool()
		rt.chat.RegisterConsumers(rt.bus, rt.pool)
		rt.webhooks.RegisterConsumers(rt.bus, webhookConcurrency)
	},
	serve: func(ctx context.Context, rt *runtime) error {
		<-ctx.Done()
		logrus.Info("[SEND_POOL] draining")
		msgworker.StopGlobalPool()
		return nil
	},
}
