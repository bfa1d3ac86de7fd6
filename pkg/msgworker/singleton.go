package msgworker

import (
	"context"
	"sync"

	"github.com/AzielCF/az-engage/core/config"
	"github.com/sirupsen/logrus"
)

var (
	globalPool     *Pool
	globalPoolOnce sync.Once
	globalCancel   context.CancelFunc
)

// GetGlobalPool returns the process-wide send pool sized from CHAT_SEND_MESSAGE_WORKERS.
func GetGlobalPool() *Pool {
	globalPoolOnce.Do(func() {
		var ctx context.Context
		ctx, globalCancel = context.WithCancel(context.Background())

		size, queue := 3, 500
		if config.Global != nil {
			size = config.Global.Chat.SendWorkers
			queue = config.Global.Chat.SendQueueSize
		}
		globalPool = NewPool(size, queue)
		globalPool.Start(ctx)
		logrus.Infof("[SEND_POOL] Global instance started with %d workers and queue size %d", size, queue)
	})
	return globalPool
}

func StopGlobalPool() {
	if globalPool != nil {
		globalPool.Stop()
	}
	if globalCancel != nil {
		globalCancel()
	}
}
