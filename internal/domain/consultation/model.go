package consultation

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Consultation maps to the consultations table. Exactly one consultation per
// queue entry; clinical notes stay editable only while in_progress.
type Consultation struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	QueueEntryID   uuid.UUID  `db:"queue_entry_id" json:"queue_entry_id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	BranchID       uuid.UUID  `db:"branch_id" json:"branch_id"`
	ClinicianID    uuid.UUID  `db:"clinician_id" json:"clinician_id"`
	ChiefComplaint string     `db:"chief_complaint" json:"chief_complaint"`
	DiagnosisNotes string     `db:"diagnosis_notes" json:"diagnosis_notes"`
	Status         Status     `db:"status" json:"status"`
	StartedAt      time.Time  `db:"started_at" json:"started_at"`
	EndedAt        *time.Time `db:"ended_at" json:"ended_at,omitempty"`
}

// Open reports whether the consultation still accepts clinical updates.
func (c *Consultation) Open() bool {
	return c.Status == StatusInProgress
}
