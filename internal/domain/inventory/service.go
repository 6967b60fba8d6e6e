package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/barangaycare/pharmacy/internal/domain/errs"
	"github.com/barangaycare/pharmacy/internal/platform/db"
)

// Service owns the medicine catalog and its stock counts. Every stock change
// goes through AdjustStock, which pairs the guarded counter update with a
// ledger append inside one transaction.
type Service struct {
	medicines MedicineRepository
	ledger    LedgerRepository
	tx        db.Runner
	logger    zerolog.Logger
}

func NewService(medicines MedicineRepository, ledger LedgerRepository, tx db.Runner, logger zerolog.Logger) *Service {
	return &Service{
		medicines: medicines,
		ledger:    ledger,
		tx:        tx,
		logger:    logger.With().Str("component", "inventory").Logger(),
	}
}

// CreateMedicineInput carries the fields accepted when registering a medicine.
type CreateMedicineInput struct {
	Name                 string
	GenericName          *string
	Description          *string
	DosageForm           *string
	Unit                 *string
	InitialStock         int
	ReorderLevel         *int
	RequiresPrescription bool
}

const defaultReorderLevel = 20

// CreateMedicine registers a medicine. A non-zero initial stock is recorded
// in the ledger so the chain replays from zero.
func (s *Service) CreateMedicine(ctx context.Context, in CreateMedicineInput, actorID string) (*Medicine, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, errs.New(errs.InvalidInput, "medicine name is required")
	}
	if in.InitialStock < 0 {
		return nil, errs.New(errs.InvalidInput, "initial stock cannot be negative")
	}

	reorder := defaultReorderLevel
	if in.ReorderLevel != nil {
		if *in.ReorderLevel < 0 {
			return nil, errs.New(errs.InvalidInput, "reorder level cannot be negative")
		}
		reorder = *in.ReorderLevel
	}

	m := &Medicine{
		Name:                 name,
		GenericName:          in.GenericName,
		Description:          in.Description,
		DosageForm:           in.DosageForm,
		Unit:                 in.Unit,
		StockQty:             in.InitialStock,
		ReorderLevel:         reorder,
		RequiresPrescription: in.RequiresPrescription,
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.medicines.Create(ctx, m); err != nil {
			return err
		}
		if in.InitialStock == 0 {
			return nil
		}
		return s.ledger.Append(ctx, &StockHistoryEntry{
			MedicineID:     m.ID,
			ChangeType:     ChangeTypeRestock,
			QuantityChange: in.InitialStock,
			PreviousStock:  0,
			NewStock:       in.InitialStock,
			Reason:         "initial stock",
			ActorID:        actorID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("medicine_id", m.ID.String()).
		Str("name", m.Name).
		Int("stock_qty", m.StockQty).
		Msg("medicine created")
	return m, nil
}

func (s *Service) GetMedicine(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	return s.medicines.GetByID(ctx, id)
}

// UpdateMedicineInput updates catalog fields. Stock is deliberately absent;
// it only moves through AdjustStock.
type UpdateMedicineInput struct {
	Name                 *string
	GenericName          *string
	Description          *string
	DosageForm           *string
	Unit                 *string
	ReorderLevel         *int
	RequiresPrescription *bool
}

func (s *Service) UpdateMedicine(ctx context.Context, id uuid.UUID, in UpdateMedicineInput) (*Medicine, error) {
	m, err := s.medicines.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, errs.New(errs.InvalidInput, "medicine name cannot be empty")
		}
		m.Name = name
	}
	if in.GenericName != nil {
		m.GenericName = in.GenericName
	}
	if in.Description != nil {
		m.Description = in.Description
	}
	if in.DosageForm != nil {
		m.DosageForm = in.DosageForm
	}
	if in.Unit != nil {
		m.Unit = in.Unit
	}
	if in.ReorderLevel != nil {
		if *in.ReorderLevel < 0 {
			return nil, errs.New(errs.InvalidInput, "reorder level cannot be negative")
		}
		m.ReorderLevel = *in.ReorderLevel
	}
	if in.RequiresPrescription != nil {
		m.RequiresPrescription = *in.RequiresPrescription
	}

	if err := s.medicines.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) ListMedicines(ctx context.Context, onlyInStock bool, limit, offset int) ([]*Medicine, int, error) {
	return s.medicines.List(ctx, onlyInStock, limit, offset)
}

// LowStock lists medicines at or below their reorder level, most depleted
// first.
func (s *Service) LowStock(ctx context.Context) ([]*Medicine, error) {
	return s.medicines.LowStock(ctx)
}

// AdjustStock changes a medicine's stock by delta and appends the matching
// ledger entry. Both happen in one transaction: a rejected adjustment leaves
// no ledger entry, and a failed append rolls the counter back.
func (s *Service) AdjustStock(ctx context.Context, id uuid.UUID, delta int, changeType, reason, actorID string) (*StockHistoryEntry, error) {
	if delta == 0 {
		return nil, errs.New(errs.InvalidInput, "quantity change cannot be zero")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, errs.New(errs.InvalidInput, "reason is required")
	}
	switch changeType {
	case ChangeTypeRestock, ChangeTypeDispense, ChangeTypeAdjustment:
	case "":
		changeType = ChangeTypeAdjustment
	default:
		return nil, errs.Newf(errs.InvalidInput, "unknown change type %q", changeType)
	}

	var entry *StockHistoryEntry
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		previous, current, err := s.medicines.AdjustStock(ctx, id, delta)
		if err != nil {
			return err
		}
		entry = &StockHistoryEntry{
			MedicineID:     id,
			ChangeType:     changeType,
			QuantityChange: delta,
			PreviousStock:  previous,
			NewStock:       current,
			Reason:         reason,
			ActorID:        actorID,
		}
		return s.ledger.Append(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("medicine_id", id.String()).
		Str("change_type", changeType).
		Int("quantity_change", delta).
		Int("new_stock", entry.NewStock).
		Msg("stock adjusted")
	return entry, nil
}

func (s *Service) StockHistory(ctx context.Context, medicineID uuid.UUID, limit, offset int) ([]*StockHistoryEntry, int, error) {
	if _, err := s.medicines.GetByID(ctx, medicineID); err != nil {
		return nil, 0, err
	}
	return s.ledger.ListByMedicine(ctx, medicineID, limit, offset)
}

// Reconcile replays a medicine's ledger chain and compares the result with
// the live stock count. It returns nil when they agree. Discrepancies are
// reported for operator review, never auto-corrected.
func (s *Service) Reconcile(ctx context.Context, medicineID uuid.UUID) (*Discrepancy, error) {
	m, err := s.medicines.GetByID(ctx, medicineID)
	if err != nil {
		return nil, err
	}

	chain, err := s.ledger.Chain(ctx, medicineID)
	if err != nil {
		return nil, err
	}

	return s.replay(m, chain), nil
}

// ReconcileAll replays every medicine's chain and collects the findings.
func (s *Service) ReconcileAll(ctx context.Context) ([]Discrepancy, error) {
	const pageSize = 100
	findings := make([]Discrepancy, 0)

	for offset := 0; ; offset += pageSize {
		medicines, total, err := s.medicines.List(ctx, false, pageSize, offset)
		if err != nil {
			return nil, err
		}
		for _, m := range medicines {
			chain, err := s.ledger.Chain(ctx, m.ID)
			if err != nil {
				return nil, err
			}
			if d := s.replay(m, chain); d != nil {
				findings = append(findings, *d)
			}
		}
		if offset+pageSize >= total || len(medicines) == 0 {
			break
		}
	}

	if len(findings) > 0 {
		s.logger.Warn().Int("discrepancies", len(findings)).Msg("stock reconciliation found discrepancies")
	}
	return findings, nil
}

func (s *Service) replay(m *Medicine, chain []*StockHistoryEntry) *Discrepancy {
	running := 0
	for i, e := range chain {
		if e.PreviousStock != running {
			return s.flag(m, chain, running, fmt.Sprintf(
				"entry %d previous_stock %d does not continue chain at %d", i, e.PreviousStock, running))
		}
		if e.NewStock != e.PreviousStock+e.QuantityChange {
			return s.flag(m, chain, running, fmt.Sprintf(
				"entry %d new_stock %d does not equal %d%+d", i, e.NewStock, e.PreviousStock, e.QuantityChange))
		}
		running = e.NewStock
	}
	if running != m.StockQty {
		return s.flag(m, chain, running, fmt.Sprintf(
			"ledger replays to %d but stock_qty is %d", running, m.StockQty))
	}
	return nil
}

func (s *Service) flag(m *Medicine, chain []*StockHistoryEntry, ledgerStock int, detail string) *Discrepancy {
	s.logger.Warn().
		Str("medicine_id", m.ID.String()).
		Int("stock_qty", m.StockQty).
		Int("ledger_stock", ledgerStock).
		Str("detail", detail).
		Msg("stock discrepancy")
	return &Discrepancy{
		MedicineID:  m.ID,
		Name:        m.Name,
		StockQty:    m.StockQty,
		LedgerStock: ledgerStock,
		Entries:     len(chain),
		Detail:      detail,
	}
}
