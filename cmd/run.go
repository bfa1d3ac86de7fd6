package cmd

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"

	"github.com/AzielCF/az-engage/core/config"
	"github.com/sirupsen/logrus"
)

// role is one process role. wire registers consumers before the bus starts; serve blocks
// until ctx is done.
type role struct {
	name     string
	consumes bool
	wire     func(rt *runtime)
	serve    func(ctx context.Context, rt *runtime) error
}

// run boots the shared runtime, wires every role and serves them until SIGINT/SIGTERM or
// the first failure.
func run(parent context.Context, roles ...role) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap(ctx, config.Global)
	if err != nil {
		return err
	}
	defer rt.close()

	consumes := false
	for _, r := range roles {
		if r.wire != nil {
			r.wire(rt)
		}
		consumes = consumes || r.consumes
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	launch := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := fn(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				logrus.WithError(err).Errorf("[APP] %s stopped", name)
				once.Do(func() { firstErr = err })
			}
			cancel()
		}()
	}

	if consumes {
		launch("queue", rt.bus.Run)
	}
	for _, r := range roles {
		logrus.Infof("[APP] starting %s", r.name)
		launch(r.name, func(ctx context.Context) error { return r.serve(ctx, rt) })
	}

	<-ctx.Done()
	logrus.Info("[APP] Shutting down...")
	wg.Wait()
	return firstErr
}
