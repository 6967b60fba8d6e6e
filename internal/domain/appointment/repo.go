package appointment

import (
	"context"

	"github.com/google/uuid"
)

// Repository answers the consultation facts the pharmacy workflow needs.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// HasCompletedConsultation reports whether the patient has at least one
	// completed appointment.
	HasCompletedConsultation(ctx context.Context, patientID string) (bool, error)
}
