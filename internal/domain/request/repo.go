package request

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *MedicineRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*MedicineRequest, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*MedicineRequest, int, error)
	// MarkApproved and MarkRejected are conditional updates keyed on the
	// pending status. They report whether a row matched; a false return means
	// a concurrent decision already landed.
	MarkApproved(ctx context.Context, id uuid.UUID, adminID string, notes *string) (bool, error)
	MarkRejected(ctx context.Context, id uuid.UUID, adminID string, reason string) (bool, error)
}
