package application

import (
	"context"
	"fmt"

	"github.com/AzielCF/az-engage/campaigns/domain"
	instancesDomain "github.com/AzielCF/az-engage/instances/domain"
)

// pickInstance filters the campaign's instances down to candidates and applies the
// rotation mode. It returns the round robin index to persist with the claim.
func (s *CampaignService) pickInstance(ctx context.Context, c *domain.Campaign) (*instancesDomain.Instance, int, error) {
	var pool []*instancesDomain.Instance
	var err error
	if len(c.InstanceIDs) > 0 {
		pool, err = s.instances.ListByIDs(ctx, c.Tenant, c.InstanceIDs)
	} else {
		pool, err = s.instances.ListConnected(ctx, c.Tenant)
	}
	if err != nil {
		return nil, 0, err
	}

	today := s.instances.Today()
	byID := map[string]*instancesDomain.Instance{}
	var candidates []domain.Candidate
	connected := 0
	for _, inst := range pool {
		if !inst.Connected() {
			continue
		}
		connected++
		sent := inst.SentOn(today)
		if c.DailyLimitPerInstance > 0 && sent >= c.DailyLimitPerInstance {
			continue
		}
		byID[inst.ID] = inst
		candidates = append(candidates, domain.Candidate{ID: inst.ID, SentToday: sent, HealthScore: inst.HealthScore})
	}
	if connected == 0 {
		return nil, 0, domain.ErrNoConnectedInstance
	}

	picked, next, ok := domain.Select(c.RotationMode, candidates, c.CurrentInstanceIndex, c.DailyLimitPerInstance)
	if !ok {
		return nil, 0, domain.ErrNoInstanceAvailable
	}
	inst := byID[picked.ID]
	if c.PauseOnHealthBelow > 0 && inst.HealthScore < c.PauseOnHealthBelow {
		s.log(ctx, c, domain.Log{
			Type:       domain.LogHealthIssue,
			Severity:   domain.SeverityWarning,
			Message:    fmt.Sprintf("%s health %d is below %d", inst.InstanceName, inst.HealthScore, c.PauseOnHealthBelow),
			InstanceID: strPtr(inst.ID),
			Details:    map[string]any{"health_score": inst.HealthScore, "threshold": c.PauseOnHealthBelow},
		})
	}
	return inst, next, nil
}
