package request

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/barangaycare/pharmacy/internal/domain/errs"
	"github.com/barangaycare/pharmacy/internal/domain/inventory"
	"github.com/barangaycare/pharmacy/internal/domain/prescription"
	"github.com/barangaycare/pharmacy/internal/platform/db"
)

// Inventory is the slice of the inventory service the workflow needs.
// AdjustStock is the guarded primitive; it appends its own ledger entry.
type Inventory interface {
	GetMedicine(ctx context.Context, id uuid.UUID) (*inventory.Medicine, error)
	AdjustStock(ctx context.Context, id uuid.UUID, delta int, changeType, reason, actorID string) (*inventory.StockHistoryEntry, error)
}

// Prescriptions resolves prescription ids for gating. Get lapses the
// prescription first when its window has passed, so a stale one can never
// authorize a request.
type Prescriptions interface {
	Get(ctx context.Context, id uuid.UUID) (*prescription.Prescription, error)
}

// Consultations answers whether a patient has ever completed a consultation.
type Consultations interface {
	HasCompletedConsultation(ctx context.Context, patientID string) (bool, error)
}

// Service is the request workflow engine: submission, validation, and the
// single admin decision that resolves each request.
type Service struct {
	requests      Repository
	inventory     Inventory
	prescriptions Prescriptions
	consultations Consultations
	tx            db.Runner
	logger        zerolog.Logger
}

func NewService(requests Repository, inv Inventory, prescriptions Prescriptions, consultations Consultations, tx db.Runner, logger zerolog.Logger) *Service {
	return &Service{
		requests:      requests,
		inventory:     inv,
		prescriptions: prescriptions,
		consultations: consultations,
		tx:            tx,
		logger:        logger.With().Str("component", "request").Logger(),
	}
}

type SubmitInput struct {
	PatientID      string
	MedicineID     uuid.UUID
	Quantity       int
	PrescriptionID *uuid.UUID
}

// Submit validates and records a pending request. Stock is checked
// advisorily but not reserved; approval is the gatekeeper.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*MedicineRequest, error) {
	if in.PatientID == "" {
		return nil, errs.New(errs.InvalidInput, "patient id is required")
	}
	if in.Quantity <= 0 {
		return nil, errs.New(errs.InvalidInput, "quantity must be positive")
	}

	med, err := s.inventory.GetMedicine(ctx, in.MedicineID)
	if err != nil {
		return nil, err
	}

	if med.RequiresPrescription {
		if in.PrescriptionID != nil {
			if err := s.validatePrescription(ctx, in.PatientID, in.MedicineID, in.Quantity, *in.PrescriptionID); err != nil {
				return nil, err
			}
		} else {
			consulted, err := s.consultations.HasCompletedConsultation(ctx, in.PatientID)
			if err != nil {
				return nil, err
			}
			if !consulted {
				return nil, errs.New(errs.PrescriptionRequired, "medicine requires a prescription or a completed consultation").
					With("medicine_id", in.MedicineID.String())
			}
		}
	}

	if med.StockQty < in.Quantity {
		return nil, errs.New(errs.InsufficientStock, "insufficient stock").
			With("medicine_id", in.MedicineID.String()).
			With("available", fmt.Sprintf("%d", med.StockQty)).
			With("requested", fmt.Sprintf("%d", in.Quantity))
	}

	req := &MedicineRequest{
		PatientID:      in.PatientID,
		MedicineID:     in.MedicineID,
		Quantity:       in.Quantity,
		PrescriptionID: in.PrescriptionID,
		Status:         StatusPending,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("request_id", req.ID.String()).
		Str("patient_id", req.PatientID).
		Str("medicine_id", req.MedicineID.String()).
		Int("quantity", req.Quantity).
		Msg("medicine request submitted")
	return req, nil
}

// Approve resolves a pending request: prescription gating is re-checked, then
// the stock decrement and the status flip commit as one transaction. A guard
// failure surfaces as InsufficientStock and leaves the request pending for
// the admin to retry or reject.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, adminID string, notes *string) (*MedicineRequest, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, errs.Newf(errs.InvalidStateTransition, "request is %s", req.Status).
			With("request_id", id.String())
	}

	med, err := s.inventory.GetMedicine(ctx, req.MedicineID)
	if err != nil {
		return nil, err
	}
	if med.RequiresPrescription {
		if req.PrescriptionID != nil {
			if err := s.validatePrescription(ctx, req.PatientID, req.MedicineID, req.Quantity, *req.PrescriptionID); err != nil {
				return nil, err
			}
		} else {
			consulted, err := s.consultations.HasCompletedConsultation(ctx, req.PatientID)
			if err != nil {
				return nil, err
			}
			if !consulted {
				return nil, errs.New(errs.PrescriptionRequired, "patient no longer has a completed consultation on record").
					With("request_id", id.String())
			}
		}
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		reason := fmt.Sprintf("medicine request %s approved", req.ID)
		if _, err := s.inventory.AdjustStock(ctx, req.MedicineID, -req.Quantity, inventory.ChangeTypeDispense, reason, adminID); err != nil {
			return err
		}
		matched, err := s.requests.MarkApproved(ctx, id, adminID, notes)
		if err != nil {
			return err
		}
		if !matched {
			// A concurrent decision won; rolling back restores the stock.
			return errs.New(errs.InvalidStateTransition, "request was decided concurrently").
				With("request_id", id.String())
		}
		return nil
	})
	if err != nil {
		if errs.Is(err, errs.InsufficientStock) {
			s.logger.Info().
				Str("request_id", id.String()).
				Int("quantity", req.Quantity).
				Msg("approval refused on stock guard, request stays pending")
		}
		return nil, err
	}

	s.logger.Info().
		Str("request_id", id.String()).
		Str("admin_id", adminID).
		Msg("medicine request approved")
	return s.requests.GetByID(ctx, id)
}

// Reject resolves a pending request without touching stock. A reason is
// mandatory.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, adminID string, reason string) (*MedicineRequest, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, errs.New(errs.InvalidInput, "rejection reason is required")
	}

	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, errs.Newf(errs.InvalidStateTransition, "request is %s", req.Status).
			With("request_id", id.String())
	}

	matched, err := s.requests.MarkRejected(ctx, id, adminID, reason)
	if err != nil {
		return nil, err
	}
	if !matched {
		return nil, errs.New(errs.InvalidStateTransition, "request was decided concurrently").
			With("request_id", id.String())
	}

	s.logger.Info().
		Str("request_id", id.String()).
		Str("admin_id", adminID).
		Msg("medicine request rejected")
	return s.requests.GetByID(ctx, id)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*MedicineRequest, error) {
	return s.requests.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*MedicineRequest, int, error) {
	return s.requests.List(ctx, f, limit, offset)
}

func (s *Service) validatePrescription(ctx context.Context, patientID string, medicineID uuid.UUID, quantity int, prescriptionID uuid.UUID) error {
	p, err := s.prescriptions.Get(ctx, prescriptionID)
	if err != nil {
		if errs.Is(err, errs.NotFound) {
			return errs.New(errs.PrescriptionInvalid, "prescription not found").
				With("prescription_id", prescriptionID.String())
		}
		return err
	}
	if p.PatientID != patientID {
		return errs.New(errs.PrescriptionInvalid, "prescription belongs to a different patient").
			With("prescription_id", prescriptionID.String())
	}
	if p.Status != prescription.StatusActive {
		return errs.Newf(errs.PrescriptionInvalid, "prescription is %s", p.Status).
			With("prescription_id", prescriptionID.String())
	}

	item := p.ItemFor(medicineID)
	if item == nil {
		return errs.New(errs.PrescriptionInvalid, "prescription does not cover this medicine").
			With("prescription_id", prescriptionID.String()).
			With("medicine_id", medicineID.String())
	}
	if quantity > item.Quantity {
		return errs.New(errs.PrescriptionInvalid, "requested quantity exceeds prescribed amount").
			With("prescribed", fmt.Sprintf("%d", item.Quantity)).
			With("requested", fmt.Sprintf("%d", quantity))
	}
	return nil
}
