package consultation

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, cons *Consultation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error)
	GetByQueueEntry(ctx context.Context, entryID uuid.UUID) (*Consultation, error)

	// UpdateNotes replaces the diagnosis notes while the consultation is
	// in_progress; ErrConsultationNotOpen otherwise.
	UpdateNotes(ctx context.Context, id uuid.UUID, notes string) (*Consultation, error)

	// Complete performs the in_progress -> completed compare-and-set,
	// persisting the final notes and stamping EndedAt in the same statement.
	Complete(ctx context.Context, id uuid.UUID, notes string) (*Consultation, error)

	ListByPatient(ctx context.Context, branchID, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error)
}
