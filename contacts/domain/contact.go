package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrContactNotFound = errors.New("contact not found")
	ErrInvalidPhone    = errors.New("phone is not a valid E.164 number")
)

// Contact is a phone book entry, unique per (tenant, phone).
type Contact struct {
	ID        string         `json:"id"`
	Tenant    string         `json:"tenant"`
	Phone     string         `json:"phone"`
	Name      string         `json:"name,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Referrer returns the referrer_name metadata used by the {{quem_indicou}} variable.
func (c *Contact) Referrer() string {
	if c == nil || c.Metadata == nil {
		return ""
	}
	v, _ := c.Metadata["referrer_name"].(string)
	return v
}

type ContactRepository interface {
	// Upsert returns the contact for (tenant, phone), creating it when missing. A
	// non-empty name fills an empty stored name but never overwrites one.
	Upsert(ctx context.Context, tenant, phone, name string) (*Contact, error)
	GetByID(ctx context.Context, tenant, id string) (*Contact, error)
	GetByPhone(ctx context.Context, tenant, phone string) (*Contact, error)
	ListByIDs(ctx context.Context, tenant string, ids []string) ([]*Contact, error)
	UpdateMetadata(ctx context.Context, tenant, id string, metadata map[string]any) error
}
