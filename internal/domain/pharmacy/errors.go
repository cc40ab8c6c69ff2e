package pharmacy

import (
	"errors"

	"github.com/clinicore/clinicore/internal/platform/db"
)

var (
	ErrNotFound = errors.New("prescription not found")

	// ErrInvalidProductReference is returned when a prescribed product id
	// cannot be resolved through the catalog for the branch. This is a
	// synchronous validation failure: the caller fixes the request and
	// retries, nothing is ever retried automatically.
	ErrInvalidProductReference = errors.New("unknown product reference")

	ErrCrossTenantAccess = db.ErrCrossTenantAccess

	ErrInvalidArgument = errors.New("invalid argument")
)
