package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/barangaycare/pharmacy/internal/domain/errs"
)

// PgRepository reads appointment facts from the shared database. The pharmacy
// side never writes to the appointments table.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	query := `
		SELECT id, patient_id, status, scheduled_at, completed_at, created_at
		FROM appointments WHERE id = $1`

	var a Appointment
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.PatientID, &a.Status, &a.ScheduledAt, &a.CompletedAt, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.New(errs.NotFound, "appointment not found").With("appointment_id", id.String())
	}
	if err != nil {
		return nil, errs.Wrap(errs.StorageUnavailable, "get appointment", err)
	}
	return &a, nil
}

func (r *PgRepository) HasCompletedConsultation(ctx context.Context, patientID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM appointments WHERE patient_id = $1 AND status = $2)`,
		patientID, StatusCompleted,
	).Scan(&exists)
	if err != nil {
		return false, errs.Wrap(errs.StorageUnavailable, "check consultation history", err)
	}
	return exists, nil
}
