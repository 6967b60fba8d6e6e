package prescription

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/barangaycare/pharmacy/internal/domain/appointment"
	"github.com/barangaycare/pharmacy/internal/domain/errs"
	"github.com/barangaycare/pharmacy/internal/domain/inventory"
	"github.com/barangaycare/pharmacy/internal/platform/db"
)

// DefaultValidDays is the validity window applied when the prescriber does
// not set one.
const DefaultValidDays = 30

// AppointmentDirectory is the slice of the appointment subsystem the
// registry needs: issuance must trace back to a completed consultation.
type AppointmentDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
}

// MedicineCatalog resolves prescribed medicine ids against the inventory.
type MedicineCatalog interface {
	GetMedicine(ctx context.Context, id uuid.UUID) (*inventory.Medicine, error)
}

// Service is the prescription registry. All reads that gate a medicine
// request go through CheckAndExpire so a lapsed prescription can never
// authorize anything.
type Service struct {
	repo         Repository
	appointments AppointmentDirectory
	catalog      MedicineCatalog
	tx           db.Runner
	logger       zerolog.Logger
}

func NewService(repo Repository, appointments AppointmentDirectory, catalog MedicineCatalog, tx db.Runner, logger zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		appointments: appointments,
		catalog:      catalog,
		tx:           tx,
		logger:       logger.With().Str("component", "prescription").Logger(),
	}
}

type ItemInput struct {
	MedicineID   uuid.UUID
	Quantity     int
	Dosage       *string
	Instructions *string
}

type IssueInput struct {
	PatientID     string
	AppointmentID uuid.UUID
	PrescriberID  string
	Diagnosis     *string
	Notes         *string
	ValidDays     int
	Items         []ItemInput
}

// Issue creates an active prescription against a completed appointment.
func (s *Service) Issue(ctx context.Context, in IssueInput) (*Prescription, error) {
	if in.PatientID == "" {
		return nil, errs.New(errs.InvalidInput, "patient id is required")
	}
	if len(in.Items) == 0 {
		return nil, errs.New(errs.InvalidInput, "prescription needs at least one item")
	}

	validDays := in.ValidDays
	if validDays == 0 {
		validDays = DefaultValidDays
	}
	if validDays < 0 {
		return nil, errs.New(errs.InvalidInput, "valid days cannot be negative")
	}

	appt, err := s.appointments.GetByID(ctx, in.AppointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != appointment.StatusCompleted {
		return nil, errs.New(errs.InvalidInput, "appointment is not completed").
			With("appointment_id", in.AppointmentID.String()).
			With("status", appt.Status)
	}
	if appt.PatientID != in.PatientID {
		return nil, errs.New(errs.InvalidInput, "appointment belongs to a different patient").
			With("appointment_id", in.AppointmentID.String())
	}

	if existing, err := s.repo.GetByAppointment(ctx, in.AppointmentID); err == nil {
		return nil, errs.New(errs.InvalidStateTransition, "appointment already has a prescription").
			With("prescription_id", existing.ID.String())
	} else if !errs.Is(err, errs.NotFound) {
		return nil, err
	}

	items := make([]*Item, 0, len(in.Items))
	for _, it := range in.Items {
		if it.Quantity <= 0 {
			return nil, errs.New(errs.InvalidInput, "prescribed quantity must be positive").
				With("medicine_id", it.MedicineID.String())
		}
		if _, err := s.catalog.GetMedicine(ctx, it.MedicineID); err != nil {
			return nil, err
		}
		items = append(items, &Item{
			MedicineID:   it.MedicineID,
			Quantity:     it.Quantity,
			Dosage:       it.Dosage,
			Instructions: it.Instructions,
		})
	}

	now := time.Now()
	p := &Prescription{
		PatientID:     in.PatientID,
		AppointmentID: in.AppointmentID,
		PrescriberID:  in.PrescriberID,
		Status:        StatusActive,
		Diagnosis:     in.Diagnosis,
		Notes:         in.Notes,
		ValidDays:     validDays,
		IssuedAt:      now,
		ExpiresAt:     now.AddDate(0, 0, validDays),
		Items:         items,
	}

	// The header and its items are one write: a prescription must never
	// become visible with a partial item list.
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("prescription_id", p.ID.String()).
		Str("patient_id", p.PatientID).
		Int("items", len(p.Items)).
		Time("expires_at", p.ExpiresAt).
		Msg("prescription issued")
	return p, nil
}

// CheckAndExpire lapses an active prescription whose window has passed.
// Idempotent: a prescription already terminal is returned unchanged, and
// losing the conditional update to a concurrent caller still converges on
// the expired state.
func (s *Service) CheckAndExpire(ctx context.Context, p *Prescription) (*Prescription, error) {
	if p.Status != StatusActive || !p.ExpiredAt(time.Now()) {
		return p, nil
	}

	matched, err := s.repo.TransitionStatus(ctx, p.ID, StatusActive, StatusExpired, nil, nil)
	if err != nil {
		return nil, err
	}
	if !matched {
		// A concurrent transition won; reload to report the actual state.
		return s.repo.GetByID(ctx, p.ID)
	}

	p.Status = StatusExpired
	s.logger.Info().Str("prescription_id", p.ID.String()).Msg("prescription expired")
	return p, nil
}

// Get loads a prescription, lapsing it first if its window has passed.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.CheckAndExpire(ctx, p)
}

func (s *Service) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Prescription, error) {
	p, err := s.repo.GetByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	return s.CheckAndExpire(ctx, p)
}

func (s *Service) ListByPatient(ctx context.Context, patientID string, status string, limit, offset int) ([]*Prescription, int, error) {
	prescriptions, total, err := s.repo.ListByPatient(ctx, patientID, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for i, p := range prescriptions {
		updated, err := s.CheckAndExpire(ctx, p)
		if err != nil {
			return nil, 0, err
		}
		prescriptions[i] = updated
	}
	return prescriptions, total, nil
}

// MarkUsed consumes an active prescription. Terminal states never revert.
func (s *Service) MarkUsed(ctx context.Context, id uuid.UUID, actorID string) (*Prescription, error) {
	now := time.Now()
	p, err := s.transition(ctx, id, StatusUsed, nil, &now)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("prescription_id", id.String()).
		Str("actor_id", actorID).
		Msg("prescription marked used")
	return p, nil
}

// Cancel voids an active prescription, recording why. Terminal states never
// revert.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason, actorID string) (*Prescription, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errs.New(errs.InvalidInput, "cancellation reason is required").
			With("prescription_id", id.String())
	}

	p, err := s.transition(ctx, id, StatusCancelled, &reason, nil)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("prescription_id", id.String()).
		Str("actor_id", actorID).
		Str("reason", reason).
		Msg("prescription cancelled")
	return p, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to string, statusReason *string, usedAt *time.Time) (*Prescription, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusActive {
		return nil, errs.Newf(errs.InvalidStateTransition, "prescription is %s", p.Status).
			With("prescription_id", id.String())
	}

	matched, err := s.repo.TransitionStatus(ctx, id, StatusActive, to, statusReason, usedAt)
	if err != nil {
		return nil, err
	}
	if !matched {
		return nil, errs.New(errs.InvalidStateTransition, "prescription changed concurrently").
			With("prescription_id", id.String())
	}

	p.Status = to
	p.StatusReason = statusReason
	p.UsedAt = usedAt
	return p, nil
}
