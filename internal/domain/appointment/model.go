// Package appointment is the read side of the consultation subsystem that
// the pharmacy workflow depends on: prescriptions must trace back to a
// completed appointment, and patients without a prescription must have at
// least one completed consultation on record.
package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Appointment statuses relevant to pharmacy checks.
const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

type Appointment struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PatientID   string     `db:"patient_id" json:"patient_id"`
	Status      string     `db:"status" json:"status"`
	ScheduledAt time.Time  `db:"scheduled_at" json:"scheduled_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}
