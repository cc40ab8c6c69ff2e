package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/internal/platform/notification"
)

type Service struct {
	queues   DefinitionRepository
	entries  EntryRepository
	notifier *notification.Publisher
}

func NewService(queues DefinitionRepository, entries EntryRepository, notifier *notification.Publisher) *Service {
	return &Service{queues: queues, entries: entries, notifier: notifier}
}

func (s *Service) CreateQueue(ctx context.Context, scope db.Scope, name string, rule OrderingRule) (*Definition, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}
	if rule == "" {
		rule = OrderFIFO
	}
	if rule != OrderFIFO && rule != OrderAcuity {
		return nil, fmt.Errorf("%w: unknown ordering rule %q", ErrInvalidArgument, rule)
	}

	def := &Definition{
		BranchID: scope.BranchID,
		Name:     name,
		Ordering: rule,
	}
	if err := s.queues.Create(ctx, def); err != nil {
		return nil, err
	}
	return def, nil
}

func (s *Service) RenameQueue(ctx context.Context, scope db.Scope, id uuid.UUID, name string) (*Definition, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}
	def, err := s.GetQueue(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	def.Name = name
	if err := s.queues.Update(ctx, def); err != nil {
		return nil, err
	}
	return def, nil
}

// SetQueueDisabled soft-disables or re-enables a queue. Disabled queues stop
// accepting joins; existing entries keep flowing. Queues are never deleted.
func (s *Service) SetQueueDisabled(ctx context.Context, scope db.Scope, id uuid.UUID, disabled bool) (*Definition, error) {
	def, err := s.GetQueue(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	def.Disabled = disabled
	if err := s.queues.Update(ctx, def); err != nil {
		return nil, err
	}
	return def, nil
}

func (s *Service) GetQueue(ctx context.Context, scope db.Scope, id uuid.UUID) (*Definition, error) {
	def, err := s.queues.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if def.BranchID != scope.BranchID {
		return nil, ErrCrossTenantAccess
	}
	return def, nil
}

func (s *Service) ListQueues(ctx context.Context, scope db.Scope, includeDisabled bool) ([]*Definition, error) {
	return s.queues.List(ctx, scope.BranchID, includeDisabled)
}

// JoinRequest carries the optional attributes of a new queue entry. Position
// is advisory: it is honored only when the slot is free, otherwise the entry
// appends at the tail.
type JoinRequest struct {
	PatientID       uuid.UUID  `json:"patient_id"`
	Position        *int       `json:"position,omitempty"`
	Acuity          *int       `json:"acuity,omitempty"`
	ServiceID       *uuid.UUID `json:"service_id,omitempty"`
	OriginSessionID *uuid.UUID `json:"origin_session_id,omitempty"`
}

func (s *Service) Join(ctx context.Context, scope db.Scope, queueID uuid.UUID, req JoinRequest) (*Entry, error) {
	if req.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", ErrInvalidArgument)
	}
	if req.Position != nil && *req.Position < 1 {
		return nil, fmt.Errorf("%w: position must be positive", ErrInvalidArgument)
	}
	if req.Acuity != nil && *req.Acuity < 0 {
		return nil, fmt.Errorf("%w: acuity must not be negative", ErrInvalidArgument)
	}
	if _, err := s.GetQueue(ctx, scope, queueID); err != nil {
		return nil, err
	}

	e := &Entry{
		QueueID:         queueID,
		BranchID:        scope.BranchID,
		PatientID:       req.PatientID,
		Acuity:          req.Acuity,
		ServiceID:       req.ServiceID,
		OriginSessionID: req.OriginSessionID,
	}
	if err := s.entries.Insert(ctx, e, req.Position); err != nil {
		return nil, err
	}
	return e, nil
}

// Call announces a waiting patient. The display notification is best-effort;
// the transition stands even when every notification channel fails.
func (s *Service) Call(ctx context.Context, scope db.Scope, entryID uuid.UUID) (*Entry, error) {
	if _, err := s.GetEntry(ctx, scope, entryID); err != nil {
		return nil, err
	}
	e, err := s.entries.Transition(ctx, entryID, []EntryStatus{StatusWaiting}, StatusCalled)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, scope, notification.EventEntryCalled, e)
	return e, nil
}

func (s *Service) Cancel(ctx context.Context, scope db.Scope, entryID uuid.UUID) (*Entry, error) {
	if _, err := s.GetEntry(ctx, scope, entryID); err != nil {
		return nil, err
	}
	return s.entries.Transition(ctx, entryID, activeStatuses, StatusCancelled)
}

// StartEntry moves an entry into service when a consultation begins. Entries
// may be started straight from waiting, skipping the call step.
func (s *Service) StartEntry(ctx context.Context, scope db.Scope, entryID uuid.UUID) (*Entry, error) {
	if _, err := s.GetEntry(ctx, scope, entryID); err != nil {
		return nil, err
	}
	return s.entries.Transition(ctx, entryID, []EntryStatus{StatusWaiting, StatusCalled}, StatusInProgress)
}

// FinishEntry closes an in-progress entry when its consultation completes.
func (s *Service) FinishEntry(ctx context.Context, scope db.Scope, entryID uuid.UUID) (*Entry, error) {
	if _, err := s.GetEntry(ctx, scope, entryID); err != nil {
		return nil, err
	}
	return s.entries.Transition(ctx, entryID, []EntryStatus{StatusInProgress}, StatusDone)
}

func (s *Service) GetEntry(ctx context.Context, scope db.Scope, entryID uuid.UUID) (*Entry, error) {
	e, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if e.BranchID != scope.BranchID {
		return nil, ErrCrossTenantAccess
	}
	return e, nil
}

func (s *Service) ListEntries(ctx context.Context, scope db.Scope, queueID uuid.UUID, includeTerminal bool, limit, offset int) ([]*Entry, int, error) {
	def, err := s.GetQueue(ctx, scope, queueID)
	if err != nil {
		return nil, 0, err
	}
	return s.entries.List(ctx, queueID, StrategyFor(def.Ordering), includeTerminal, limit, offset)
}

func (s *Service) publish(ctx context.Context, scope db.Scope, eventType notification.EventType, e *Entry) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(ctx, notification.Event{
		Type:      eventType,
		TenantID:  scope.TenantID,
		BranchID:  scope.BranchID,
		QueueID:   e.QueueID,
		EntryID:   e.ID,
		PatientID: e.PatientID,
		Position:  e.Position,
	})
}
