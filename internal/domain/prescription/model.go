package prescription

import (
	"time"

	"github.com/google/uuid"
)

// Prescription statuses. Active is the only state that authorizes a medicine
// request; used, expired and cancelled are terminal.
const (
	StatusActive    = "active"
	StatusUsed      = "used"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
)

// Prescription is issued against a completed appointment and authorizes the
// patient to request the listed medicines until it expires or is consumed.
type Prescription struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	PatientID     string     `db:"patient_id" json:"patient_id"`
	AppointmentID uuid.UUID  `db:"appointment_id" json:"appointment_id"`
	PrescriberID  string     `db:"prescriber_id" json:"prescriber_id"`
	Status        string     `db:"status" json:"status"`
	StatusReason  *string    `db:"status_reason" json:"status_reason,omitempty"`
	Diagnosis     *string    `db:"diagnosis" json:"diagnosis,omitempty"`
	Notes         *string    `db:"notes" json:"notes,omitempty"`
	ValidDays     int        `db:"valid_days" json:"valid_days"`
	IssuedAt      time.Time  `db:"issued_at" json:"issued_at"`
	ExpiresAt     time.Time  `db:"expires_at" json:"expires_at"`
	UsedAt        *time.Time `db:"used_at" json:"used_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`

	Items []*Item `db:"-" json:"items"`
}

// Item is one prescribed medicine line.
type Item struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PrescriptionID uuid.UUID `db:"prescription_id" json:"prescription_id"`
	MedicineID     uuid.UUID `db:"medicine_id" json:"medicine_id"`
	Quantity       int       `db:"quantity" json:"quantity"`
	Dosage         *string   `db:"dosage" json:"dosage,omitempty"`
	Instructions   *string   `db:"instructions" json:"instructions,omitempty"`
}

// ItemFor returns the line for a medicine, or nil when the prescription does
// not cover it.
func (p *Prescription) ItemFor(medicineID uuid.UUID) *Item {
	for _, item := range p.Items {
		if item.MedicineID == medicineID {
			return item
		}
	}
	return nil
}

// ExpiredAt reports whether the prescription's validity window has passed at
// the given instant.
func (p *Prescription) ExpiredAt(now time.Time) bool {
	return now.After(p.ExpiresAt)
}
