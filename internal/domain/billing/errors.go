package billing

import (
	"errors"

	"github.com/clinicore/clinicore/internal/platform/db"
)

var (
	ErrNotFound = errors.New("invoice job not found")

	// ErrJobNotPending is returned when a job is marked sent or failed but a
	// concurrent dispatcher already settled it.
	ErrJobNotPending = errors.New("invoice job is not pending")

	ErrCrossTenantAccess = db.ErrCrossTenantAccess

	ErrInvalidArgument = errors.New("invalid argument")
)
