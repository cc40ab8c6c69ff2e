package consultation

import (
	"errors"

	"github.com/clinicore/clinicore/internal/platform/db"
)

var (
	ErrNotFound = errors.New("consultation not found")

	// ErrEntryNotCallable is returned by Start when the queue entry is not
	// waiting or called, or when a concurrent Start won the race for it.
	ErrEntryNotCallable = errors.New("queue entry is not available for consultation")

	// ErrConsultationNotOpen is returned when notes are updated or completion
	// is requested on a consultation that is no longer in progress. A repeat
	// completion call lands here, which is what keeps completion idempotent.
	ErrConsultationNotOpen = errors.New("consultation is not open")

	ErrCrossTenantAccess = db.ErrCrossTenantAccess

	ErrInvalidArgument = errors.New("invalid argument")
)
