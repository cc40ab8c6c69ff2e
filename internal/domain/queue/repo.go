package queue

import (
	"context"

	"github.com/google/uuid"
)

type DefinitionRepository interface {
	Create(ctx context.Context, def *Definition) error
	GetByID(ctx context.Context, id uuid.UUID) (*Definition, error)
	Update(ctx context.Context, def *Definition) error
	List(ctx context.Context, branchID uuid.UUID, includeDisabled bool) ([]*Definition, error)
}

type EntryRepository interface {
	// Insert adds a WAITING entry, assigning its position while holding the
	// queue row lock. requestedPosition is honored only when free; a taken or
	// nil position appends at the tail.
	Insert(ctx context.Context, e *Entry, requestedPosition *int) error

	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)

	// Transition performs a compare-and-set status update. It succeeds only
	// when the entry's current status is one of from; a lost race or a
	// terminal entry yields ErrInvalidTransition.
	Transition(ctx context.Context, id uuid.UUID, from []EntryStatus, to EntryStatus) (*Entry, error)

	List(ctx context.Context, queueID uuid.UUID, strategy OrderingStrategy, includeTerminal bool, limit, offset int) ([]*Entry, int, error)
}
