package application

import (
	"context"
	"time"

	"github.com/AzielCF/az-engage/campaigns/domain"
	"github.com/sirupsen/logrus"
)

const defaultRecoveryWindowHours = 2

type RecoveryReport struct {
	Resumed   []string
	Completed []string
	Left      []string
}

// Recover settles campaigns a previous process left running or paused. Running work
// resumes or completes; paused work resumes only when it was touched inside the
// recovery window, which marks it as interrupted rather than paused by an operator.
func (s *CampaignService) Recover(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport
	list, err := s.campaigns.ListByStatus(ctx, domain.StatusRunning, domain.StatusPaused)
	if err != nil {
		return report, err
	}
	window := s.cfg.Campaign.RecoveryWindow
	if window <= 0 {
		window = defaultRecoveryWindowHours * time.Hour
	}
	now := s.now()

	for _, c := range list {
		counters, err := s.contacts.Count(ctx, c.ID)
		if err != nil {
			return report, err
		}
		open := counters.Pending + counters.Sending

		switch {
		case c.Status == domain.StatusRunning && open > 0:
			if err := s.resumeInterrupted(ctx, c); err != nil {
				return report, err
			}
			report.Resumed = append(report.Resumed, c.ID)
		case c.Status == domain.StatusRunning:
			if _, err := s.complete(ctx, c); err != nil {
				return report, err
			}
			report.Completed = append(report.Completed, c.ID)
		case open > 0 && now.Sub(c.UpdatedAt) <= window:
			ok, err := s.campaigns.Transition(ctx, c.ID, []domain.Status{domain.StatusPaused}, domain.StatusRunning, nil)
			if err != nil {
				return report, err
			}
			if !ok {
				report.Left = append(report.Left, c.ID)
				continue
			}
			if err := s.resumeInterrupted(ctx, c); err != nil {
				return report, err
			}
			report.Resumed = append(report.Resumed, c.ID)
		default:
			report.Left = append(report.Left, c.ID)
		}
	}
	if len(list) > 0 {
		logrus.Infof("[CAMPAIGN] recovery: %d resumed, %d completed, %d left paused",
			len(report.Resumed), len(report.Completed), len(report.Left))
	}
	return report, nil
}

func (s *CampaignService) resumeInterrupted(ctx context.Context, c *domain.Campaign) error {
	reset, err := s.contacts.ResetSending(ctx, c.ID)
	if err != nil {
		return err
	}
	s.log(ctx, c, domain.Log{
		Type:     domain.LogRecovered,
		Severity: domain.SeverityInfo,
		Message:  "campaign resumed after restart",
		Details:  map[string]any{"previous_status": string(c.Status), "reset_sending": reset},
	})
	return nil
}
