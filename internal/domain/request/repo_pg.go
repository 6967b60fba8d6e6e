package request

import (
	"context"
	"errors"
	"fmt"

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

const requestColumns = `id, patient_id, medicine_id, quantity, prescription_id, status,
	admin_notes, rejection_reason, decided_by, approved_at, rejected_at, created_at, updated_at`

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

func (r *PgRepository) Create(ctx context.Context, req *MedicineRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	query := `
		INSERT INTO medicine_requests (id, patient_id, medicine_id, quantity, prescription_id, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := r.conn(ctx).QueryRow(ctx, query,
		req.ID, req.PatientID, req.MedicineID, req.Quantity, req.PrescriptionID, req.Status,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return errs.Wrap(errs.StorageUnavailable, "create medicine request", err)
	}
	return nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*MedicineRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM medicine_requests WHERE id = $1`, requestColumns)
	req, err := scanRequest(r.conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "request not found").With("request_id", id.String())
		}
		return nil, errs.Wrap(errs.StorageUnavailable, "get medicine request", err)
	}
	return req, nil
}

func (r *PgRepository) List(ctx context.Context, f Filter, limit, offset int) ([]*MedicineRequest, int, error) {
	where := "WHERE 1=1"
	args := []any{}
	if f.PatientID != "" {
		args = append(args, f.PatientID)
		where += fmt.Sprintf(" AND patient_id = $%d", len(args))
	}
	if f.MedicineID != nil {
		args = append(args, *f.MedicineID)
		where += fmt.Sprintf(" AND medicine_id = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM medicine_requests %s`, where)
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errs.Wrap(errs.StorageUnavailable, "count medicine requests", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM medicine_requests %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		requestColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errs.Wrap(errs.StorageUnavailable, "list medicine requests", err)
	}
	defer rows.Close()

	requests := make([]*MedicineRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, errs.Wrap(errs.StorageUnavailable, "scan medicine request", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errs.Wrap(errs.StorageUnavailable, "iterate medicine requests", err)
	}
	return requests, total, nil
}

func (r *PgRepository) MarkApproved(ctx context.Context, id uuid.UUID, adminID string, notes *string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medicine_requests
		SET status = $2, decided_by = $3, admin_notes = $4, approved_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $5`,
		id, StatusApproved, adminID, notes, StatusPending,
	)
	if err != nil {
		return false, errs.Wrap(errs.StorageUnavailable, "approve medicine request", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) MarkRejected(ctx context.Context, id uuid.UUID, adminID string, reason string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medicine_requests
		SET status = $2, decided_by = $3, rejection_reason = $4, rejected_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $5`,
		id, StatusRejected, adminID, reason, StatusPending,
	)
	if err != nil {
		return false, errs.Wrap(errs.StorageUnavailable, "reject medicine request", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanRequest(row pgx.Row) (*MedicineRequest, error) {
	var req MedicineRequest
	err := row.Scan(
		&req.ID, &req.PatientID, &req.MedicineID, &req.Quantity, &req.PrescriptionID, &req.Status,
		&req.AdminNotes, &req.RejectionReason, &req.DecidedBy, &req.ApprovedAt, &req.RejectedAt,
		&req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}
