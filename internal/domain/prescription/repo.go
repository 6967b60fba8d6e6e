package prescription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Create inserts the prescription and its items.
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Prescription, error)
	ListByPatient(ctx context.Context, patientID string, status string, limit, offset int) ([]*Prescription, int, error)
	// TransitionStatus flips status from 'from' to 'to' only when the row is
	// still in 'from', and reports whether a row matched. Losing a race on a
	// status change is an expected outcome, not an error. A non-nil
	// statusReason is recorded alongside the new status.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to string, statusReason *string, usedAt *time.Time) (bool, error)
}
