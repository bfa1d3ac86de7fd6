package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/AzielCF/az-engage/core/broadcast"
	"github.com/AzielCF/az-engage/core/config"
	"github.com/AzielCF/az-engage/infrastructure/gateway"
	"github.com/AzielCF/az-engage/instances/domain"
	pkgError "github.com/AzielCF/az-engage/pkg/error"
	"github.com/AzielCF/az-engage/pkg/phone"
	"github.com/AzielCF/az-engage/pkg/timeutils"
	"github.com/sirupsen/logrus"
)

type CreateInput struct {
	FriendlyName string `json:"friendly_name"`
	InstanceName string `json:"instance_name"`
	BaseURL      string `json:"base_url"`
	APIKey       string `json:"api_key"`
}

type UpdateInput struct {
	FriendlyName *string `json:"friendly_name"`
	BaseURL      *string `json:"base_url"`
	APIKey       *string `json:"api_key"`
	Status       *string `json:"status"`
}

// InstanceService owns the sender lifecycle and the counters the send path feeds.
type InstanceService struct {
	repo domain.InstanceRepository
	gw   gateway.API
	bc   broadcast.Broadcaster
	cfg  *config.Config
	now  func() time.Time
}

func NewInstanceService(repo domain.InstanceRepository, gw gateway.API, bc broadcast.Broadcaster, cfg *config.Config) *InstanceService {
	if bc == nil {
		bc = broadcast.Nop{}
	}
	return &InstanceService{repo: repo, gw: gw, bc: bc, cfg: cfg, now: time.Now}
}

// SetClock replaces the time source; tests use it to cross midnight.
func (s *InstanceService) SetClock(now func() time.Time) {
	s.now = now
}

// Today is the business date used by the daily counters.
func (s *InstanceService) Today() string {
	return timeutils.LocalDate(s.now(), s.cfg.Location())
}

// Target converts an instance into gateway credentials.
func Target(inst *domain.Instance) gateway.Target {
	if inst == nil {
		return gateway.Target{}
	}
	return gateway.Target{InstanceName: inst.InstanceName, BaseURL: inst.BaseURL, APIKey: inst.APIKey}
}

// Create registers the instance. Without an api key the instance is created at the
// gateway first, with the webhook pointed back at us. The first instance of a tenant
// becomes its default.
func (s *InstanceService) Create(ctx context.Context, tenant string, in CreateInput) (*domain.Instance, error) {
	in.InstanceName = strings.TrimSpace(in.InstanceName)
	if in.InstanceName == "" {
		return nil, pkgError.ValidationError("instance_name: cannot be blank")
	}
	if in.FriendlyName == "" {
		in.FriendlyName = in.InstanceName
	}

	apiKey := in.APIKey
	if apiKey == "" {
		key, err := s.gw.CreateInstance(ctx, in.InstanceName, s.cfg.Webhook.PublicURL, s.cfg.Webhook.Events)
		if err != nil {
			return nil, err
		}
		apiKey = key
	}

	existing, err := s.repo.List(ctx, tenant)
	if err != nil {
		return nil, err
	}

	inst := &domain.Instance{
		Tenant:          tenant,
		FriendlyName:    in.FriendlyName,
		InstanceName:    in.InstanceName,
		BaseURL:         strings.TrimSuffix(in.BaseURL, "/"),
		APIKey:          apiKey,
		Status:          domain.StatusActive,
		ConnectionState: domain.StateClose,
		HealthScore:     domain.MaxHealth,
		LastResetDate:   s.Today(),
		IsDefault:       len(existing) == 0,
	}
	if err := s.repo.Create(ctx, inst); err != nil {
		return nil, err
	}
	logrus.Infof("[INSTANCES] Created %s for tenant %s (default=%v)", inst.InstanceName, tenant, inst.IsDefault)
	return inst, nil
}

func (s *InstanceService) Get(ctx context.Context, tenant, id string) (*domain.Instance, error) {
	return s.repo.GetByID(ctx, tenant, id)
}

func (s *InstanceService) List(ctx context.Context, tenant string) ([]*domain.Instance, error) {
	return s.repo.List(ctx, tenant)
}

func (s *InstanceService) ListByIDs(ctx context.Context, tenant string, ids []string) ([]*domain.Instance, error) {
	return s.repo.ListByIDs(ctx, tenant, ids)
}

func (s *InstanceService) Update(ctx context.Context, tenant, id string, in UpdateInput) (*domain.Instance, error) {
	inst, err := s.repo.GetByID(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if in.FriendlyName != nil {
		inst.FriendlyName = *in.FriendlyName
	}
	if in.BaseURL != nil {
		inst.BaseURL = strings.TrimSuffix(*in.BaseURL, "/")
	}
	if in.APIKey != nil && *in.APIKey != "" {
		inst.APIKey = *in.APIKey
	}
	if in.Status != nil {
		switch st := domain.Status(*in.Status); st {
		case domain.StatusActive, domain.StatusInactive, domain.StatusError:
			inst.Status = st
		default:
			return nil, pkgError.ValidationError("status: must be active, inactive or error")
		}
	}
	if err := s.repo.Update(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// Delete removes the instance at the gateway and locally. A gateway that no longer
// knows the instance is not an error.
func (s *InstanceService) Delete(ctx context.Context, tenant, id string) error {
	inst, err := s.repo.GetByID(ctx, tenant, id)
	if err != nil {
		return err
	}
	if err := s.gw.DeleteInstance(ctx, Target(inst)); err != nil && !errors.Is(err, gateway.ErrGone) {
		return err
	}
	return s.repo.Delete(ctx, tenant, id)
}

// Connect asks the gateway for a pairing QR code.
func (s *InstanceService) Connect(ctx context.Context, tenant, id string) (string, error) {
	inst, err := s.repo.GetByID(ctx, tenant, id)
	if err != nil {
		return "", err
	}
	qr, err := s.gw.Connect(ctx, Target(inst))
	if err != nil {
		return "", err
	}
	if err := s.repo.UpdateConnection(ctx, inst.ID, domain.StateConnecting, ""); err != nil {
		return "", err
	}
	return qr, nil
}

// RefreshState reads the connection state from the gateway and stores it.
func (s *InstanceService) RefreshState(ctx context.Context, tenant, id string) (*domain.Instance, error) {
	inst, err := s.repo.GetByID(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	return s.refresh(ctx, inst)
}

func (s *InstanceService) refresh(ctx context.Context, inst *domain.Instance) (*domain.Instance, error) {
	state, err := s.gw.ConnectionState(ctx, Target(inst))
	if errors.Is(err, gateway.ErrGone) {
		state, err = domain.StateClose, nil
	}
	if err != nil {
		return nil, err
	}
	if state != inst.ConnectionState {
		if err := s.repo.UpdateConnection(ctx, inst.ID, state, ""); err != nil {
			return nil, err
		}
		s.announce(ctx, inst, state)
		inst.ConnectionState = state
	}
	return inst, nil
}

func (s *InstanceService) Logout(ctx context.Context, tenant, id string) error {
	inst, err := s.repo.GetByID(ctx, tenant, id)
	if err != nil {
		return err
	}
	if err := s.gw.Logout(ctx, Target(inst)); err != nil && !errors.Is(err, gateway.ErrGone) {
		return err
	}
	if err := s.repo.UpdateConnection(ctx, inst.ID, domain.StateClose, ""); err != nil {
		return err
	}
	s.announce(ctx, inst, domain.StateClose)
	return nil
}

func (s *InstanceService) SetDefault(ctx context.Context, tenant, id string) error {
	return s.repo.SetDefault(ctx, tenant, id)
}

// ResolveTenant maps a gateway instance name to its tenant. Unknown names yield "".
func (s *InstanceService) ResolveTenant(ctx context.Context, instanceName string) (string, error) {
	inst, err := s.repo.GetByName(ctx, instanceName)
	if errors.Is(err, domain.ErrInstanceNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return inst.Tenant, nil
}

func (s *InstanceService) GetByName(ctx context.Context, instanceName string) (*domain.Instance, error) {
	return s.repo.GetByName(ctx, instanceName)
}

// ApplyConnectionUpdate stores a connection.update pushed by the gateway.
func (s *InstanceService) ApplyConnectionUpdate(ctx context.Context, instanceName, state, wuid string) error {
	inst, err := s.repo.GetByName(ctx, instanceName)
	if errors.Is(err, domain.ErrInstanceNotFound) {
		logrus.Warnf("[INSTANCES] connection.update for unknown instance %s", instanceName)
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.repo.UpdateConnection(ctx, inst.ID, state, phone.Normalize(wuid)); err != nil {
		return err
	}
	s.announce(ctx, inst, state)
	return nil
}

// PickForSend chooses the sender for one message: the explicit instance when given,
// else the tenant default when it is connected and healthy, else any connected instance.
func (s *InstanceService) PickForSend(ctx context.Context, tenant, preferredID string) (*domain.Instance, error) {
	if preferredID != "" {
		inst, err := s.repo.GetByID(ctx, tenant, preferredID)
		if err != nil {
			return nil, err
		}
		if inst.Status != domain.StatusActive {
			return nil, domain.ErrInstanceInactive
		}
		return inst, nil
	}

	def, err := s.repo.GetDefault(ctx, tenant)
	if err != nil && !errors.Is(err, domain.ErrInstanceNotFound) {
		return nil, err
	}
	if def != nil && def.Connected() && def.HealthScore >= 1 {
		return def, nil
	}

	connected, err := s.repo.ListConnected(ctx, tenant)
	if err != nil {
		return nil, err
	}
	if len(connected) == 0 {
		return nil, domain.ErrNoActiveInstance
	}
	return connected[0], nil
}

// ListConnected returns the tenant's active instances with an open connection, ordered by id.
func (s *InstanceService) ListConnected(ctx context.Context, tenant string) ([]*domain.Instance, error) {
	return s.repo.ListConnected(ctx, tenant)
}

func (s *InstanceService) RecordSendSuccess(ctx context.Context, id string) error {
	return s.repo.RecordSuccess(ctx, id, s.Today())
}

func (s *InstanceService) RecordSendFailure(ctx context.Context, id string) error {
	return s.repo.RecordFailure(ctx, id)
}

// PollConnections refreshes every instance's connection state. It runs on the scheduler tick.
func (s *InstanceService) PollConnections(ctx context.Context) {
	all, err := s.repo.ListAll(ctx)
	if err != nil {
		logrus.WithError(err).Error("[INSTANCES] poll: list failed")
		return
	}
	for _, inst := range all {
		if ctx.Err() != nil {
			return
		}
		if inst.Status == domain.StatusInactive {
			continue
		}
		if _, err := s.refresh(ctx, inst); err != nil {
			logrus.WithError(err).Warnf("[INSTANCES] poll: %s state unknown", inst.InstanceName)
		}
	}
}

func (s *InstanceService) announce(ctx context.Context, inst *domain.Instance, state string) {
	if inst.Tenant == "" {
		return
	}
	s.bc.Broadcast(ctx, broadcast.TenantRoom(inst.Tenant), broadcast.EventInstanceStatus, map[string]any{
		"instance_id":      inst.ID,
		"instance_name":    inst.InstanceName,
		"connection_state": state,
	})
}
