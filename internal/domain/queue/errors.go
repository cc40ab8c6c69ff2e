package queue

import (
	"errors"

	"github.com/clinicore/clinicore/internal/platform/db"
)

var (
	// ErrNotFound is returned when a queue or entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateActiveEntry is returned by Join when the patient already
	// holds a waiting, called, or in-progress entry in the same queue.
	ErrDuplicateActiveEntry = errors.New("patient already has an active entry in this queue")

	// ErrInvalidTransition is returned when an entry is not in a state the
	// requested transition allows, including when a concurrent caller won
	// the race.
	ErrInvalidTransition = errors.New("invalid entry status transition")

	// ErrQueueDisabled is returned by Join against a soft-disabled queue.
	ErrQueueDisabled = errors.New("queue is disabled")

	// ErrCrossTenantAccess is the platform scope violation, re-exported so
	// queue callers can match it alongside the other queue errors.
	ErrCrossTenantAccess = db.ErrCrossTenantAccess

	// ErrInvalidArgument wraps request validation failures so handlers can
	// map them to 400 before any mutation happens.
	ErrInvalidArgument = errors.New("invalid argument")
)
