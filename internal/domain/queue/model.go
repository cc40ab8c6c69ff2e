package queue

import (
	"time"

	"github.com/google/uuid"
)

// EntryStatus is the lifecycle state of a patient's position in a queue.
type EntryStatus string

const (
	StatusWaiting    EntryStatus = "waiting"
	StatusCalled     EntryStatus = "called"
	StatusInProgress EntryStatus = "in_progress"
	StatusDone       EntryStatus = "done"
	StatusCancelled  EntryStatus = "cancelled"
)

// Terminal reports whether the status is final. Terminal entries are
// immutable.
func (s EntryStatus) Terminal() bool {
	return s == StatusDone || s == StatusCancelled
}

// activeStatuses are the states that count toward the one-active-entry-per-
// patient rule.
var activeStatuses = []EntryStatus{StatusWaiting, StatusCalled, StatusInProgress}

// validTransitions maps each target status to the states it may be reached
// from. waiting->in_progress is the clinician pulling a patient straight off
// the waiting list without an explicit call step.
var validTransitions = map[EntryStatus][]EntryStatus{
	StatusCalled:     {StatusWaiting},
	StatusInProgress: {StatusWaiting, StatusCalled},
	StatusDone:       {StatusInProgress},
	StatusCancelled:  {StatusWaiting, StatusCalled, StatusInProgress},
}

// ValidTransition reports whether from -> to is an allowed entry transition.
func ValidTransition(from, to EntryStatus) bool {
	for _, allowed := range validTransitions[to] {
		if allowed == from {
			return true
		}
	}
	return false
}

// OrderingRule selects how a queue sorts its waiting entries.
type OrderingRule string

const (
	OrderFIFO   OrderingRule = "fifo"
	OrderAcuity OrderingRule = "acuity"
)

// Definition maps to the queue_definitions table. A named, branch-scoped
// waiting line. Never hard-deleted; disabled queues reject new entries.
type Definition struct {
	ID        uuid.UUID    `db:"id" json:"id"`
	BranchID  uuid.UUID    `db:"branch_id" json:"branch_id"`
	Name      string       `db:"name" json:"name"`
	Ordering  OrderingRule `db:"ordering_rule" json:"ordering_rule"`
	Disabled  bool         `db:"disabled" json:"disabled"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

// Entry maps to the queue_entries table. One patient's position and status
// within a queue. Position is assigned monotonically per queue and never
// reused.
type Entry struct {
	ID              uuid.UUID   `db:"id" json:"id"`
	QueueID         uuid.UUID   `db:"queue_id" json:"queue_id"`
	BranchID        uuid.UUID   `db:"branch_id" json:"branch_id"`
	PatientID       uuid.UUID   `db:"patient_id" json:"patient_id"`
	Position        int         `db:"position" json:"position"`
	Status          EntryStatus `db:"status" json:"status"`
	Acuity          *int        `db:"acuity" json:"acuity,omitempty"`
	ServiceID       *uuid.UUID  `db:"service_id" json:"service_id,omitempty"`
	OriginSessionID *uuid.UUID  `db:"origin_session_id" json:"origin_session_id,omitempty"`
	JoinedAt        time.Time   `db:"joined_at" json:"joined_at"`
	CalledAt        *time.Time  `db:"called_at" json:"called_at,omitempty"`
	StartedAt       *time.Time  `db:"started_at" json:"started_at,omitempty"`
	FinishedAt      *time.Time  `db:"finished_at" json:"finished_at,omitempty"`
}

// Active reports whether the entry still occupies the queue.
func (e *Entry) Active() bool {
	return !e.Status.Terminal()
}
