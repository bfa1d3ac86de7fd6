package cmd

import (
	"context"
	"sync"
	"time"

	campaignsApp "github.com/AzielCF/az-engage/campaigns/application"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the campaign supervisor, billing reminders and connection polling",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), schedulerRole)
	},
}

func init() {
	rootCmd.AddCommand(schedulerCmd)
}

var schedulerRole = role{
	name:     "scheduler",
	consumes: true,
	wire: func(rt *runtime) {
		rt.supervisor = campaignsApp.NewSupervisor(rt.campaigns, rt.bus, rt.cache)
		rt.supervisor.RegisterConsumers(rt.bus)
	},
	serve: serveScheduler,
}

func serveScheduler(ctx context.Context, rt *runtime) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, fn := range []func(context.Context) error{rt.supervisor.Run, rt.billing.Run} {
		wg.Add(1)
		go func(fn func(context.Context) error) {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				errs <- err
				cancel()
			}
		}(fn)
	}

	maintain(ctx, rt)
	wg.Wait()
	close(errs)
	return <-errs
}

// maintain polls gateway connection states and re-sends unconfirmed read receipts on
// every campaign tick.
func maintain(ctx context.Context, rt *runtime) {
	tick := rt.cfg.Campaign.Tick
	if tick <= 0 {
		tick = 10 * time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rt.instances.PollConnections(ctx)
			n, err := rt.chat.SweepReadReceipts(ctx)
			if err != nil {
				logrus.WithError(err).Warn("[READ] sweep failed")
			} else if n > 0 {
				logrus.Debugf("[READ] re-sent %d receipts", n)
			}
		}
	}
}
