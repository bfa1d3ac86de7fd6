package application

import (
	"context"

	"github.com/AzielCF/az-engage/core/jobs"
	"github.com/AzielCF/az-engage/pkg/msgworker"
)

// Consumer concurrency per stream. chat.send runs through the sharded pool, so the
// consumer concurrency only bounds how many jobs wait on it.
const (
	sendConsumers     = 16
	markReadConsumers = 4
	downloadConsumers = 4
)

// RegisterConsumers binds the chat streams to the service. Sends for one conversation
// always land on the same pool worker, which keeps them in order.
func (s *ChatService) RegisterConsumers(bus jobs.Bus, pool *msgworker.Pool) {
	bus.Handle(jobs.StreamChatSend, sendConsumers, jobs.JSON(func(ctx context.Context, job jobs.SendMessage, d jobs.Delivery) error {
		return pool.Submit(ctx, msgworker.Job{
			Tenant:         job.Tenant,
			ConversationID: job.ConversationID,
			Label:          job.MessageID,
			Handler: func(ctx context.Context) error {
				return s.HandleSend(ctx, job, d)
			},
		})
	}))
	bus.Handle(jobs.StreamMarkRead, markReadConsumers, jobs.JSON(s.HandleMarkRead))
	bus.Handle(jobs.StreamAttachmentDownload, downloadConsumers, jobs.JSON(s.HandleDownload))
}
