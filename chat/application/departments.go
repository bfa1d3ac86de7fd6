package application

import (
	"context"
	"strings"

	"github.com/AzielCF/az-engage/chat/domain"
	pkgError "github.com/AzielCF/az-engage/pkg/error"
)

type DepartmentInput struct {
	Name            string `json:"name"`
	TransferMessage string `json:"transfer_message"`
}

func (s *ChatService) CreateDepartment(ctx context.Context, tenant string, in DepartmentInput) (*domain.Department, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, pkgError.ValidationError("department name is required")
	}
	d := &domain.Department{Tenant: tenant, Name: name, TransferMessage: in.TransferMessage}
	if err := s.departments.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *ChatService) GetDepartment(ctx context.Context, tenant, id string) (*domain.Department, error) {
	return s.departments.Get(ctx, tenant, id)
}

func (s *ChatService) ListDepartments(ctx context.Context, tenant string) ([]*domain.Department, error) {
	return s.departments.List(ctx, tenant)
}

func (s *ChatService) UpdateDepartment(ctx context.Context, tenant, id string, in DepartmentInput) (*domain.Department, error) {
	d, err := s.departments.Get(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		d.Name = name
	}
	d.TransferMessage = in.TransferMessage
	if err := s.departments.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *ChatService) DeleteDepartment(ctx context.Context, tenant, id string) error {
	return s.departments.Delete(ctx, tenant, id)
}
