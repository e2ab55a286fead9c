package repository

import (
	"context"

	"rentdesk-backend/internal/domain"
)

type BillRepository interface {
	GetByID(ctx context.Context, id int32) (*domain.Bill, error)
	// ListForPenalty returns bills matching filter ordered by due date.
	ListForPenalty(ctx context.Context, filter domain.BillFilter) ([]domain.Bill, error)
	// Update persists the engine-owned fields of bill if its stored version
	// still equals bill.Version, then bumps bill.Version. A stale version
	// yields domain.ErrVersionConflict.
	Update(ctx context.Context, bill *domain.Bill) error
}

type TenantRepository interface {
	GetByID(ctx context.Context, id int32) (*domain.Tenant, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, note *domain.Notification) error
}
