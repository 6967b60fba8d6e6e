package inventory

import (
	"context"

	"github.com/google/uuid"
)

type MedicineRepository interface {
	Create(ctx context.Context, m *Medicine) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error)
	Update(ctx context.Context, m *Medicine) error
	List(ctx context.Context, onlyInStock bool, limit, offset int) ([]*Medicine, int, error)
	// AdjustStock applies stock_qty += delta as a single conditional update
	// that only matches when the result stays non-negative. Returns the
	// previous and new stock on success, errs.NotFound when the medicine does
	// not exist, and errs.InsufficientStock when the guard fails.
	AdjustStock(ctx context.Context, id uuid.UUID, delta int) (previous, current int, err error)
	LowStock(ctx context.Context) ([]*Medicine, error)
}

type LedgerRepository interface {
	// Append inserts a ledger entry. Entries are never updated or deleted.
	Append(ctx context.Context, e *StockHistoryEntry) error
	ListByMedicine(ctx context.Context, medicineID uuid.UUID, limit, offset int) ([]*StockHistoryEntry, int, error)
	// Chain returns every entry for a medicine in append order, for replay.
	Chain(ctx context.Context, medicineID uuid.UUID) ([]*StockHistoryEntry, error)
}
