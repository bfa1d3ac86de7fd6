package domain

import "context"

type InstanceRepository interface {
	Create(ctx context.Context, inst *Instance) error
	GetByID(ctx context.Context, tenant, id string) (*Instance, error)
	// GetByName looks an instance up across tenants; webhooks only carry the instance name.
	GetByName(ctx context.Context, instanceName string) (*Instance, error)
	GetDefault(ctx context.Context, tenant string) (*Instance, error)
	List(ctx context.Context, tenant string) ([]*Instance, error)
	ListByIDs(ctx context.Context, tenant string, ids []string) ([]*Instance, error)
	ListConnected(ctx context.Context, tenant string) ([]*Instance, error)
	ListAll(ctx context.Context) ([]*Instance, error)
	Update(ctx context.Context, inst *Instance) error
	Delete(ctx context.Context, tenant, id string) error

	SetDefault(ctx context.Context, tenant, id string) error
	UpdateConnection(ctx context.Context, id, state, phone string) error

	// RecordSuccess resets the daily counter when date moved on, then bumps it,
	// clears consecutive errors and raises health.
	RecordSuccess(ctx context.Context, id, date string) error
	RecordFailure(ctx context.Context, id string) error
}
