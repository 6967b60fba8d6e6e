package inventory

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

// queryable is satisfied by both *pgxpool.Pool and pgx.Tx, so every query
// transparently joins a transaction when one is on the context.
type queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const medicineColumns = `id, name, generic_name, description, dosage_form, unit,
	stock_qty, reorder_level, requires_prescription, created_at, updated_at`

// PgMedicineRepository is the Postgres implementation of MedicineRepository.
type PgMedicineRepository struct {
	pool *pgxpool.Pool
}

func NewPgMedicineRepository(pool *pgxpool.Pool) *PgMedicineRepository {
	return &PgMedicineRepository{pool: pool}
}

func (r *PgMedicineRepository) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *PgMedicineRepository) Create(ctx context.Context, m *Medicine) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	query := `
		INSERT INTO medicines (id, name, generic_name, description, dosage_form, unit,
			stock_qty, reorder_level, requires_prescription)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	err := r.conn(ctx).QueryRow(ctx, query,
		m.ID, m.Name, m.GenericName, m.Description, m.DosageForm, m.Unit,
		m.StockQty, m.ReorderLevel, m.RequiresPrescription,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return errs.Wrap(errs.StorageUnavailable, "create medicine", err)
	}
	return nil
}

func (r *PgMedicineRepository) GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	query := fmt.Sprintf(`SELECT %s FROM medicines WHERE id = $1`, medicineColumns)
	m, err := scanMedicine(r.conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "medicine not found").With("medicine_id", id.String())
		}
		return nil, errs.Wrap(errs.StorageUnavailable, "get medicine", err)
	}
	return m, nil
}

func (r *PgMedicineRepository) Update(ctx context.Context, m *Medicine) error {
	query := `
		UPDATE medicines
		SET name = $2, generic_name = $3, description = $4, dosage_form = $5,
			unit = $6, reorder_level = $7, requires_prescription = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.conn(ctx).QueryRow(ctx, query,
		m.ID, m.Name, m.GenericName, m.Description, m.DosageForm, m.Unit,
		m.ReorderLevel, m.RequiresPrescription,
	).Scan(&m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.New(errs.NotFound, "medicine not found").With("medicine_id", m.ID.String())
		}
		return errs.Wrap(errs.StorageUnavailable, "update medicine", err)
	}
	return nil
}

func (r *PgMedicineRepository) List(ctx context.Context, onlyInStock bool, limit, offset int) ([]*Medicine, int, error) {
	where := ""
	if onlyInStock {
		where = "WHERE stock_qty > 0"
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM medicines %s`, where)
	if err := r.conn(ctx).QueryRow(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, errs.Wrap(errs.StorageUnavailable, "count medicines", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM medicines %s ORDER BY name LIMIT $1 OFFSET $2`, medicineColumns, where)
	rows, err := r.conn(ctx).Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, errs.Wrap(errs.StorageUnavailable, "list medicines", err)
	}
	defer rows.Close()

	medicines, err := collectMedicines(rows)
	if err != nil {
		return nil, 0, err
	}
	return medicines, total, nil
}

// AdjustStock is the single mutation path for stock counts. The guard in the
// WHERE clause makes decrement-below-zero impossible regardless of how many
// callers race on the same row.
func (r *PgMedicineRepository) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, int, error) {
	query := `
		UPDATE medicines
		SET stock_qty = stock_qty + $2, updated_at = NOW()
		WHERE id = $1 AND stock_qty + $2 >= 0
		RETURNING stock_qty`

	var current int
	err := r.conn(ctx).QueryRow(ctx, query, id, delta).Scan(&current)
	if err == nil {
		return current - delta, current, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, errs.Wrap(errs.StorageUnavailable, "adjust stock", err)
	}

	// No row matched: either the medicine is gone or the guard refused the
	// decrement. Disambiguate with a plain read.
	var available int
	err = r.conn(ctx).QueryRow(ctx, `SELECT stock_qty FROM medicines WHERE id = $1`, id).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, errs.New(errs.NotFound, "medicine not found").With("medicine_id", id.String())
	}
	if err != nil {
		return 0, 0, errs.Wrap(errs.StorageUnavailable, "adjust stock", err)
	}
	return 0, 0, errs.New(errs.InsufficientStock, "insufficient stock").
		With("medicine_id", id.String()).
		With("available", fmt.Sprintf("%d", available)).
		With("requested", fmt.Sprintf("%d", -delta))
}

func (r *PgMedicineRepository) LowStock(ctx context.Context) ([]*Medicine, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM medicines
		WHERE stock_qty <= reorder_level
		ORDER BY stock_qty ASC, name`, medicineColumns)

	rows, err := r.conn(ctx).Query(ctx, query)
	if err != nil {
		return nil, errs.Wrap(errs.StorageUnavailable, "list low stock", err)
	}
	defer rows.Close()

	return collectMedicines(rows)
}

func scanMedicine(row pgx.Row) (*Medicine, error) {
	var m Medicine
	err := row.Scan(
		&m.ID, &m.Name, &m.GenericName, &m.Description, &m.DosageForm, &m.Unit,
		&m.StockQty, &m.ReorderLevel, &m.RequiresPrescription, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func collectMedicines(rows pgx.Rows) ([]*Medicine, error) {
	medicines := make([]*Medicine, 0)
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, errs.Wrap(errs.StorageUnavailable, "scan medicine", err)
		}
		medicines = append(medicines, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.StorageUnavailable, "iterate medicines", err)
	}
	return medicines, nil
}

const ledgerColumns = `id, seq, medicine_id, change_type, quantity_change, previous_stock,
	new_stock, reason, actor_id, created_at`

// PgLedgerRepository is the Postgres implementation of LedgerRepository.
// stock_history rows are insert-only; there is no update or delete path.
type PgLedgerRepository struct {
	pool *pgxpool.Pool
}

func NewPgLedgerRepository(pool *pgxpool.Pool) *PgLedgerRepository {
	return &PgLedgerRepository{pool: pool}
}

func (r *PgLedgerRepository) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *PgLedgerRepository) Append(ctx context.Context, e *StockHistoryEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	query := `
		INSERT INTO stock_history (id, medicine_id, change_type, quantity_change,
			previous_stock, new_stock, reason, actor_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq, created_at`

	err := r.conn(ctx).QueryRow(ctx, query,
		e.ID, e.MedicineID, e.ChangeType, e.QuantityChange,
		e.PreviousStock, e.NewStock, e.Reason, e.ActorID,
	).Scan(&e.Seq, &e.CreatedAt)
	if err != nil {
		return errs.Wrap(errs.StorageUnavailable, "append stock history", err)
	}
	return nil
}

func (r *PgLedgerRepository) ListByMedicine(ctx context.Context, medicineID uuid.UUID, limit, offset int) ([]*StockHistoryEntry, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM stock_history WHERE medicine_id = $1`, medicineID).Scan(&total)
	if err != nil {
		return nil, 0, errs.Wrap(errs.StorageUnavailable, "count stock history", err)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM stock_history
		WHERE medicine_id = $1
		ORDER BY seq ASC
		LIMIT $2 OFFSET $3`, ledgerColumns)

	rows, err := r.conn(ctx).Query(ctx, query, medicineID, limit, offset)
	if err != nil {
		return nil, 0, errs.Wrap(errs.StorageUnavailable, "list stock history", err)
	}
	defer rows.Close()

	entries, err := collectEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// Chain returns every entry for a medicine in exact append order. seq is the
// insertion sequence; created_at cannot order the chain because transaction
// timestamps do not follow commit order.
func (r *PgLedgerRepository) Chain(ctx context.Context, medicineID uuid.UUID) ([]*StockHistoryEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM stock_history
		WHERE medicine_id = $1
		ORDER BY seq ASC`, ledgerColumns)

	rows, err := r.conn(ctx).Query(ctx, query, medicineID)
	if err != nil {
		return nil, errs.Wrap(errs.StorageUnavailable, "load stock history chain", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]*StockHistoryEntry, error) {
	entries := make([]*StockHistoryEntry, 0)
	for rows.Next() {
		var e StockHistoryEntry
		err := rows.Scan(
			&e.ID, &e.Seq, &e.MedicineID, &e.ChangeType, &e.QuantityChange,
			&e.PreviousStock, &e.NewStock, &e.Reason, &e.ActorID, &e.CreatedAt,
		)
		if err != nil {
			return nil, errs.Wrap(errs.StorageUnavailable, "scan stock history", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.StorageUnavailable, "iterate stock history", err)
	}
	return entries, nil
}
