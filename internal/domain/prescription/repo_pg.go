package prescription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/barangaycare/pharmacy/internal/domain/errs"
	"github.com/barangaycare/pharmacy/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const prescriptionColumns = `id, patient_id, appointment_id, prescriber_id, status, status_reason,
	diagnosis, notes, valid_days, issued_at, expires_at, used_at, created_at, updated_at`

// PgRepository is the Postgres implementation of Repository.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *PgRepository) Create(ctx context.Context, p *Prescription) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	query := `
		INSERT INTO prescriptions (id, patient_id, appointment_id, prescriber_id,
			status, diagnosis, notes, valid_days, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	err := r.conn(ctx).QueryRow(ctx, query,
		p.ID, p.PatientID, p.AppointmentID, p.PrescriberID,
		p.Status, p.Diagnosis, p.Notes, p.ValidDays, p.IssuedAt, p.ExpiresAt,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return errs.Wrap(errs.StorageUnavailable, "create prescription", err)
	}

	for _, item := range p.Items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.PrescriptionID = p.ID
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO prescription_items (id, prescription_id, medicine_id, quantity, dosage, instructions)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			item.ID, item.PrescriptionID, item.MedicineID, item.Quantity, item.Dosage, item.Instructions,
		)
		if err != nil {
			return errs.Wrap(errs.StorageUnavailable, "create prescription item", err)
		}
	}
	return nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	query := fmt.Sprintf(`SELECT %s FROM prescriptions WHERE id = $1`, prescriptionColumns)
	p, err := scanPrescription(r.conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "prescription not found").With("prescription_id", id.String())
		}
		return nil, errs.Wrap(errs.StorageUnavailable, "get prescription", err)
	}
	if err := r.loadItems(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PgRepository) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Prescription, error) {
	query := fmt.Sprintf(`SELECT %s FROM prescriptions WHERE appointment_id = $1`, prescriptionColumns)
	p, err := scanPrescription(r.conn(ctx).QueryRow(ctx, query, appointmentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "prescription not found").
				With("appointment_id", appointmentID.String())
		}
		return nil, errs.Wrap(errs.StorageUnavailable, "get prescription by appointment", err)
	}
	if err := r.loadItems(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID string, status string, limit, offset int) ([]*Prescription, int, error) {
	where := "WHERE patient_id = $1"
	args := []any{patientID}
	if status != "" {
		where += " AND status = $2"
		args = append(args, status)
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM prescriptions %s`, where)
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errs.Wrap(errs.StorageUnavailable, "count prescriptions", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM prescriptions %s ORDER BY issued_at DESC LIMIT $%d OFFSET $%d`,
		prescriptionColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errs.Wrap(errs.StorageUnavailable, "list prescriptions", err)
	}
	defer rows.Close()

	prescriptions := make([]*Prescription, 0)
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, 0, errs.Wrap(errs.StorageUnavailable, "scan prescription", err)
		}
		prescriptions = append(prescriptions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errs.Wrap(errs.StorageUnavailable, "iterate prescriptions", err)
	}

	for _, p := range prescriptions {
		if err := r.loadItems(ctx, p); err != nil {
			return nil, 0, err
		}
	}
	return prescriptions, total, nil
}

func (r *PgRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to string, statusReason *string, usedAt *time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescriptions
		SET status = $3, status_reason = COALESCE($4, status_reason),
			used_at = COALESCE($5, used_at), updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		id, from, to, statusReason, usedAt,
	)
	if err != nil {
		return false, errs.Wrap(errs.StorageUnavailable, "transition prescription status", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) loadItems(ctx context.Context, p *Prescription) error {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, prescription_id, medicine_id, quantity, dosage, instructions
		FROM prescription_items
		WHERE prescription_id = $1
		ORDER BY id`, p.ID)
	if err != nil {
		return errs.Wrap(errs.StorageUnavailable, "load prescription items", err)
	}
	defer rows.Close()

	p.Items = make([]*Item, 0)
	for rows.Next() {
		var item Item
		err := rows.Scan(&item.ID, &item.PrescriptionID, &item.MedicineID,
			&item.Quantity, &item.Dosage, &item.Instructions)
		if err != nil {
			return errs.Wrap(errs.StorageUnavailable, "scan prescription item", err)
		}
		p.Items = append(p.Items, &item)
	}
	if err := rows.Err(); err != nil {
		return errs.Wrap(errs.StorageUnavailable, "iterate prescription items", err)
	}
	return nil
}

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(
		&p.ID, &p.PatientID, &p.AppointmentID, &p.PrescriberID, &p.Status, &p.StatusReason,
		&p.Diagnosis, &p.Notes, &p.ValidDays, &p.IssuedAt, &p.ExpiresAt, &p.UsedAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
