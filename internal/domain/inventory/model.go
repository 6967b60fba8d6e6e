package inventory

import (
	"time"

	"github.com/google/uuid"
)

// Medicine maps to the medicines table (the drug catalog plus its live stock
// count). StockQty is mutated only through the guarded adjust primitive.
type Medicine struct {
	ID                   uuid.UUID `db:"id" json:"id"`
	Name                 string    `db:"name" json:"name"`
	GenericName          *string   `db:"generic_name" json:"generic_name,omitempty"`
	Description          *string   `db:"description" json:"description,omitempty"`
	DosageForm           *string   `db:"dosage_form" json:"dosage_form,omitempty"`
	Unit                 *string   `db:"unit" json:"unit,omitempty"`
	StockQty             int       `db:"stock_qty" json:"stock_qty"`
	ReorderLevel         int       `db:"reorder_level" json:"reorder_level"`
	RequiresPrescription bool      `db:"requires_prescription" json:"requires_prescription"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// LowOnStock reports whether the medicine is at or below its reorder level.
func (m *Medicine) LowOnStock() bool {
	return m.StockQty <= m.ReorderLevel
}

// Change types recorded in the stock ledger.
const (
	ChangeTypeRestock    = "restock"
	ChangeTypeDispense   = "dispense"
	ChangeTypeAdjustment = "adjustment"
)

// StockHistoryEntry is one immutable line of the stock ledger. For every
// medicine the entries form a chain: NewStock = PreviousStock +
// QuantityChange, and each entry's PreviousStock equals the previous entry's
// NewStock. Seq is assigned by the database and gives the exact append
// order; timestamps are not reliable for ordering because two transactions
// can commit in the opposite order of their start times.
type StockHistoryEntry struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Seq            int64     `db:"seq" json:"seq"`
	MedicineID     uuid.UUID `db:"medicine_id" json:"medicine_id"`
	ChangeType     string    `db:"change_type" json:"change_type"`
	QuantityChange int       `db:"quantity_change" json:"quantity_change"`
	PreviousStock  int       `db:"previous_stock" json:"previous_stock"`
	NewStock       int       `db:"new_stock" json:"new_stock"`
	Reason         string    `db:"reason" json:"reason"`
	ActorID        string    `db:"actor_id" json:"actor_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Discrepancy is a reconciliation finding: the ledger chain for a medicine
// does not reproduce its current stock. Reported, never auto-corrected.
type Discrepancy struct {
	MedicineID  uuid.UUID `json:"medicine_id"`
	Name        string    `json:"name"`
	StockQty    int       `json:"stock_qty"`
	LedgerStock int       `json:"ledger_stock"`
	Entries     int       `json:"entries"`
	Detail      string    `json:"detail"`
}
