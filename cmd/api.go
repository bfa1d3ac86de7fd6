package cmd

import (
	"context"
	"time"

	billingRest "github.com/AzielCF/az-engage/billing/adapter/rest"
	campaignsRest "github.com/AzielCF/az-engage/campaigns/adapter/rest"
	chatRest "github.com/AzielCF/az-engage/chat/adapter/rest"
	instancesRest "github.com/AzielCF/az-engage/instances/adapter/rest"
	"github.com/AzielCF/az-engage/ui/rest"
	webhooksRest "github.com/AzielCF/az-engage/webhooks/adapter/rest"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Serve the REST API, websocket rooms and webhook ingress",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), apiRole)
	},
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

var apiRole = role{name: "api", serve: serveAPI}

func serveAPI(ctx context.Context, rt *runtime) error {
	cfg := rt.cfg
	srv := rest.NewServer(cfg)

	var pinger rest.Pinger
	if rt.vk != nil {
		pinger = rt.vk
	}
	rest.NewHealthHandler(rt.db, pinger, rt.bus, cfg.App.Version, cfg.App.ServerID).RegisterRoutes(srv.Public)

	webhooks := webhooksRest.NewWebhookHandler(rt.webhooks)
	webhooks.RegisterIngress(srv.Public)

	srv.Mount(
		instancesRest.NewInstanceHandler(rt.instances),
		chatRest.NewChatHandler(rt.chat),
		webhooks,
		campaignsRest.NewCampaignHandler(rt.campaigns),
		billingRest.NewBillingHandler(rt.billing, cfg),
		rest.NewWorkersHandler(rt.pool, rt.bus),
		rt.hub,
	)

	go rt.hub.Run(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen(cfg.App.Port) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("[REST] shutdown")
	}
	return nil
}
