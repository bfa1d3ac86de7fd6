package application

import (
	"context"
	"errors"
	"time"

	"github.com/AzielCF/az-engage/campaigns/domain"
	chatDomain "github.com/AzielCF/az-engage/chat/domain"
	"github.com/sirupsen/logrus"
)

var contactStatusFor = map[chatDomain.MessageStatus]domain.ContactStatus{
	chatDomain.StatusSent:      domain.ContactSent,
	chatDomain.StatusDelivered: domain.ContactDelivered,
	chatDomain.StatusSeen:      domain.ContactRead,
}

// MessageStatusChanged follows a campaign message's delivery state onto its contact
// and recomputes the campaign counters. It runs in the reconciler's transaction.
func (s *CampaignService) MessageStatusChanged(ctx context.Context, msg *chatDomain.Message, status chatDomain.MessageStatus, at time.Time) error {
	if msg.CampaignContactID == nil {
		return nil
	}
	next, ok := contactStatusFor[status]
	if !ok {
		return nil
	}
	contact, err := s.contacts.Get(ctx, *msg.CampaignContactID)
	if errors.Is(err, domain.ErrContactNotFound) {
		logrus.Debugf("[CAMPAIGN] contact %s of message %s is gone", *msg.CampaignContactID, msg.ID)
		return nil
	}
	if err != nil {
		return err
	}
	moved, err := s.contacts.Advance(ctx, contact.ID, next, at)
	if err != nil || !moved {
		return err
	}
	counters, err := s.contacts.Count(ctx, contact.CampaignID)
	if err != nil {
		return err
	}
	return s.campaigns.StoreCounters(ctx, contact.CampaignID, counters)
}
