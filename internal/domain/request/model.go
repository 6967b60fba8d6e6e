package request

import (
	"time"

	"github.com/google/uuid"
)

// Request statuses. A request is mutated exactly once, by one admin decision,
// and is terminal thereafter.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// MedicineRequest is a patient's ask for a quantity of one medicine. Stock is
// not reserved at submission; the decrement happens at approval.
type MedicineRequest struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PatientID       string     `db:"patient_id" json:"patient_id"`
	MedicineID      uuid.UUID  `db:"medicine_id" json:"medicine_id"`
	Quantity        int        `db:"quantity" json:"quantity"`
	PrescriptionID  *uuid.UUID `db:"prescription_id" json:"prescription_id,omitempty"`
	Status          string     `db:"status" json:"status"`
	AdminNotes      *string    `db:"admin_notes" json:"admin_notes,omitempty"`
	RejectionReason *string    `db:"rejection_reason" json:"rejection_reason,omitempty"`
	DecidedBy       *string    `db:"decided_by" json:"decided_by,omitempty"`
	ApprovedAt      *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	RejectedAt      *time.Time `db:"rejected_at" json:"rejected_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Filter narrows request listings.
type Filter struct {
	PatientID  string
	MedicineID *uuid.UUID
	Status     string
}
