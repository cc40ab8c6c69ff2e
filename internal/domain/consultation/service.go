package consultation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/domain/queue"
	"github.com/clinicore/clinicore/internal/platform/db"
)

type Service struct {
	repo   Repository
	queues *queue.Service
	pool   *pgxpool.Pool
}

func NewService(repo Repository, queues *queue.Service, pool *pgxpool.Pool) *Service {
	return &Service{repo: repo, queues: queues, pool: pool}
}

// Start opens a consultation for a queue entry. The entry transition
// (waiting|called -> in_progress) and the consultation insert commit together;
// losing the race for the entry surfaces as ErrEntryNotCallable and leaves
// nothing behind.
func (s *Service) Start(ctx context.Context, scope db.Scope, queueEntryID, clinicianID uuid.UUID, chiefComplaint string) (*Consultation, error) {
	if clinicianID == uuid.Nil {
		return nil, fmt.Errorf("%w: clinician_id is required", ErrInvalidArgument)
	}

	var cons *Consultation
	err := s.inTx(ctx, func(ctx context.Context) error {
		entry, err := s.queues.StartEntry(ctx, scope, queueEntryID)
		if err != nil {
			switch {
			case errors.Is(err, queue.ErrInvalidTransition):
				return ErrEntryNotCallable
			case errors.Is(err, queue.ErrNotFound):
				return fmt.Errorf("queue entry %s: %w", queueEntryID, ErrNotFound)
			}
			return err
		}

		cons = &Consultation{
			QueueEntryID:   entry.ID,
			PatientID:      entry.PatientID,
			BranchID:       scope.BranchID,
			ClinicianID:    clinicianID,
			ChiefComplaint: chiefComplaint,
			Status:         StatusInProgress,
		}
		return s.repo.Create(ctx, cons)
	})
	if err != nil {
		return nil, err
	}
	return cons, nil
}

// inTx wraps fn in a database transaction. A nil pool (map-backed repos in
// tests) runs fn directly.
func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.pool == nil {
		return fn(ctx)
	}
	return db.WithTx(ctx, s.pool, fn)
}

// UpdateNotes replaces the diagnosis notes of an open consultation. Notes are
// editable any number of times before completion and frozen afterwards.
func (s *Service) UpdateNotes(ctx context.Context, scope db.Scope, id uuid.UUID, notes string) (*Consultation, error) {
	if _, err := s.Get(ctx, scope, id); err != nil {
		return nil, err
	}
	return s.repo.UpdateNotes(ctx, id, notes)
}

func (s *Service) Get(ctx context.Context, scope db.Scope, id uuid.UUID) (*Consultation, error) {
	cons, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cons.BranchID != scope.BranchID {
		return nil, ErrCrossTenantAccess
	}
	return cons, nil
}

func (s *Service) GetByQueueEntry(ctx context.Context, scope db.Scope, entryID uuid.UUID) (*Consultation, error) {
	cons, err := s.repo.GetByQueueEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if cons.BranchID != scope.BranchID {
		return nil, ErrCrossTenantAccess
	}
	return cons, nil
}

func (s *Service) ListByPatient(ctx context.Context, scope db.Scope, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error) {
	return s.repo.ListByPatient(ctx, scope.BranchID, patientID, limit, offset)
}
