package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AzielCF/az-engage/campaigns/domain"
	chatApp "github.com/AzielCF/az-engage/chat/application"
	chatDomain "github.com/AzielCF/az-engage/chat/domain"
	"github.com/AzielCF/az-engage/core/database"
	instancesDomain "github.com/AzielCF/az-engage/instances/domain"
	"github.com/sirupsen/logrus"
)

// RunState is what an executor remembers between steps of one run.
type RunState struct {
	LastInstanceID string
	Sent           int
	Failed         int
}

// StepResult tells the executor loop what to do next.
type StepResult struct {
	// Done ends the run: the campaign left running, completed or auto paused.
	Done  bool
	Delay time.Duration
}

// Step sends to one contact. It re-reads the campaign first so a pause or cancel
// takes effect at the next message boundary.
func (s *CampaignService) Step(ctx context.Context, tenant, id string, st *RunState) (StepResult, error) {
	c, err := s.campaigns.Get(ctx, tenant, id)
	if errors.Is(err, domain.ErrCampaignNotFound) {
		return StepResult{Done: true}, nil
	}
	if err != nil {
		return StepResult{}, err
	}
	if c.Status != domain.StatusRunning {
		logrus.Debugf("[CAMPAIGN] %s is %s, executor stops", c.ID, c.Status)
		return StepResult{Done: true}, nil
	}

	contact, err := s.contacts.NextPending(ctx, c.ID)
	if err != nil {
		return StepResult{}, err
	}
	if contact == nil {
		done, err := s.complete(ctx, c)
		return StepResult{Done: done}, err
	}

	inst, index, err := s.pickInstance(ctx, c)
	if err != nil {
		if errors.Is(err, domain.ErrNoConnectedInstance) || errors.Is(err, domain.ErrNoInstanceAvailable) {
			return StepResult{Done: true}, s.autoPause(ctx, c, err)
		}
		return StepResult{}, err
	}

	var variant *domain.Variant
	claimed := false
	now := s.now()
	err = database.Transaction(ctx, s.db, func(ctx context.Context) error {
		v, err := s.campaigns.PickVariant(ctx, c.ID)
		if err != nil {
			return err
		}
		variant = v
		ok, err := s.contacts.Claim(ctx, contact.ID, inst.ID, v.ID, now)
		if err != nil || !ok {
			return err
		}
		claimed = true
		if c.RotationMode == domain.RotationRoundRobin {
			return s.campaigns.SetInstanceIndex(ctx, c.ID, index)
		}
		return nil
	})
	if errors.Is(err, domain.ErrNoVariants) {
		return StepResult{Done: true}, s.autoPause(ctx, c, err)
	}
	if err != nil {
		return StepResult{}, err
	}
	if !claimed {
		// another executor took the contact; look again right away
		return StepResult{}, nil
	}

	if st.LastInstanceID != inst.ID {
		s.log(ctx, c, domain.Log{
			Type:       domain.LogInstanceSelected,
			Severity:   domain.SeverityInfo,
			Message:    fmt.Sprintf("sending through %s", inst.FriendlyName),
			InstanceID: strPtr(inst.ID),
			Details: map[string]any{
				"instance_name": inst.InstanceName,
				"rotation_mode": string(c.RotationMode),
				"health_score":  inst.HealthScore,
				"sent_today":    inst.SentOn(s.instances.Today()),
			},
		})
		st.LastInstanceID = inst.ID
	}

	s.deliver(ctx, c, contact, inst, variant, st)

	delay := time.Duration(s.randInt(c.IntervalMin, c.IntervalMax)) * time.Second
	s.schedulePreview(ctx, c, delay)
	return StepResult{Delay: delay}, nil
}

// deliver runs the synchronous send for a claimed contact and books the outcome.
func (s *CampaignService) deliver(ctx context.Context, c *domain.Campaign, contact *domain.CampaignContact,
	inst *instancesDomain.Instance, variant *domain.Variant, st *RunState) {
	var metadata map[string]any
	if variant.MediaURL != "" {
		metadata = map[string]any{chatDomain.MetaAttachmentURLs: []string{variant.MediaURL}}
	}
	request := map[string]any{
		"instance":   inst.InstanceName,
		"to":         contact.Phone,
		"variant_id": variant.ID,
	}

	started := time.Now()
	msg, _, err := s.chat.CreateOutgoing(ctx, chatApp.OutgoingInput{
		Tenant:            c.Tenant,
		Remote:            contact.Phone,
		Name:              contact.Name,
		Content:           variant.Content,
		Origin:            chatDomain.OriginSystem,
		CampaignID:        strPtr(c.ID),
		CampaignContactID: strPtr(contact.ID),
		InstanceID:        strPtr(inst.ID),
		Metadata:          metadata,
	})
	if err == nil {
		msg, err = s.chat.SendNow(ctx, c.Tenant, msg.ID)
	}
	elapsed := time.Since(started).Milliseconds()
	at := s.now()

	if err == nil && msg.Status != chatDomain.StatusFailed && msg.GatewayID != nil {
		if e := s.contacts.MarkSent(ctx, contact.ID, msg.ID, *msg.GatewayID, at); e != nil {
			logrus.WithError(e).Errorf("[CAMPAIGN] could not mark contact %s sent", contact.ID)
		}
		if e := s.campaigns.AddCounters(ctx, c.ID, 1, 0); e != nil {
			logrus.WithError(e).Warnf("[CAMPAIGN] could not bump counters of %s", c.ID)
		}
		st.Sent++
		s.log(ctx, c, domain.Log{
			Type:       domain.LogMessageSent,
			Severity:   domain.SeverityInfo,
			Message:    "message sent to " + contact.Phone,
			InstanceID: strPtr(inst.ID),
			ContactID:  strPtr(contact.ID),
			Request:    request,
			Response:   map[string]any{"message_id": msg.ID, "gateway_id": *msg.GatewayID},
			DurationMs: elapsed,
		})
		return
	}

	reason, messageID := "send failed", ""
	if msg != nil {
		messageID = msg.ID
		if msg.Error != "" {
			reason = msg.Error
		}
	}
	if err != nil {
		reason = err.Error()
	}
	if e := s.contacts.MarkFailed(ctx, contact.ID, messageID, reason, at); e != nil {
		logrus.WithError(e).Errorf("[CAMPAIGN] could not mark contact %s failed", contact.ID)
	}
	if e := s.campaigns.AddCounters(ctx, c.ID, 0, 1); e != nil {
		logrus.WithError(e).Warnf("[CAMPAIGN] could not bump counters of %s", c.ID)
	}
	st.Failed++
	logrus.Warnf("[CAMPAIGN] %s: message to %s failed: %s", c.ID, contact.Phone, reason)
	s.log(ctx, c, domain.Log{
		Type:       domain.LogMessageFailed,
		Severity:   domain.SeverityError,
		Message:    "message to " + contact.Phone + " failed",
		InstanceID: strPtr(inst.ID),
		ContactID:  strPtr(contact.ID),
		Request:    request,
		Response:   map[string]any{"error": reason},
		DurationMs: elapsed,
	})
}

// schedulePreview stores when the next message goes out and to whom.
func (s *CampaignService) schedulePreview(ctx context.Context, c *domain.Campaign, delay time.Duration) {
	next, err := s.contacts.NextPending(ctx, c.ID)
	if err != nil {
		logrus.WithError(err).Warnf("[CAMPAIGN] could not read next contact of %s", c.ID)
		return
	}
	var at *time.Time
	name, phone := "", ""
	if next != nil {
		t := s.now().Add(delay)
		at = &t
		name, phone = next.Name, next.Phone
	}
	if err := s.campaigns.SetNextMessage(ctx, c.ID, at, name, phone); err != nil {
		logrus.WithError(err).Warnf("[CAMPAIGN] could not store next message of %s", c.ID)
	}
}

// settleSending matches contacts left in sending against the chat message created for
// them. Contacts whose message reached the gateway are marked sent so the reset that
// follows only hands back contacts that were never delivered upstream.
func (s *CampaignService) settleSending(ctx context.Context, c *domain.Campaign) error {
	stuck, err := s.contacts.List(ctx, c.ID, domain.ContactSending, 500, 0)
	if err != nil {
		return err
	}
	for _, contact := range stuck {
		msg, err := s.chat.CampaignMessage(ctx, c.Tenant, contact.ID)
		if errors.Is(err, chatDomain.ErrMessageNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		at := s.now()
		switch msg.Status {
		case chatDomain.StatusSent, chatDomain.StatusDelivered, chatDomain.StatusSeen:
			if msg.GatewayID == nil {
				continue
			}
			if err := s.contacts.MarkSent(ctx, contact.ID, msg.ID, *msg.GatewayID, at); err != nil {
				return err
			}
			if msg.Status != chatDomain.StatusSent {
				if _, err := s.contacts.Advance(ctx, contact.ID, contactStatusFor[msg.Status], at); err != nil {
					return err
				}
			}
			logrus.Infof("[CAMPAIGN] %s: contact %s settled as sent from message %s", c.ID, contact.ID, msg.ID)
		case chatDomain.StatusFailed:
			if err := s.contacts.MarkFailed(ctx, contact.ID, msg.ID, msg.Error, at); err != nil {
				return err
			}
		}
	}
	return nil
}

// complete finishes a campaign with no pending contacts. Claims left in sending by a
// crashed step are handed back first and the run goes on.
func (s *CampaignService) complete(ctx context.Context, c *domain.Campaign) (bool, error) {
	counters, err := s.contacts.Count(ctx, c.ID)
	if err != nil {
		return false, err
	}
	if counters.Sending > 0 {
		if err := s.settleSending(ctx, c); err != nil {
			return false, err
		}
		_, err := s.contacts.ResetSending(ctx, c.ID)
		return false, err
	}
	now := s.now()
	ok, err := s.campaigns.Transition(ctx, c.ID, []domain.Status{domain.StatusRunning}, domain.StatusCompleted,
		map[string]any{"completed_at": now, "next_message_scheduled_at": nil, "next_contact_name": "", "next_contact_phone": ""})
	if err != nil || !ok {
		return true, err
	}
	if err := s.campaigns.StoreCounters(ctx, c.ID, counters); err != nil {
		return true, err
	}
	s.log(ctx, c, domain.Log{
		Type:     domain.LogCompleted,
		Severity: domain.SeverityInfo,
		Message:  "campaign completed",
		Details: map[string]any{
			"total":     counters.Total,
			"sent":      counters.Sent + counters.Delivered + counters.Read,
			"delivered": counters.Delivered + counters.Read,
			"read":      counters.Read,
			"failed":    counters.Failed,
		},
	})
	logrus.Infof("[CAMPAIGN] %s completed (%d contacts, %d failed)", c.ID, counters.Total, counters.Failed)
	return true, nil
}

// autoPause stops a campaign that cannot send right now.
func (s *CampaignService) autoPause(ctx context.Context, c *domain.Campaign, cause error) error {
	ok, err := s.campaigns.Transition(ctx, c.ID, []domain.Status{domain.StatusRunning}, domain.StatusPaused,
		map[string]any{"next_message_scheduled_at": nil})
	if err != nil || !ok {
		return err
	}
	logType, severity := domain.LogError, domain.SeverityError
	if errors.Is(cause, domain.ErrNoInstanceAvailable) {
		logType, severity = domain.LogLimitReached, domain.SeverityWarning
	}
	s.log(ctx, c, domain.Log{
		Type:     logType,
		Severity: severity,
		Message:  cause.Error(),
		Details:  map[string]any{"auto_paused": true},
	})
	logrus.Warnf("[CAMPAIGN] %s auto paused: %v", c.ID, cause)
	return nil
}
