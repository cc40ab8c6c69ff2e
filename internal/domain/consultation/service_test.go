package consultation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/domain/queue"
	"github.com/clinicore/clinicore/internal/platform/db"
)

// -- Mock queue repositories --

type mockQueueStore struct {
	defs    map[uuid.UUID]*queue.Definition
	entries map[uuid.UUID]*queue.Entry
}

func newMockQueueStore() *mockQueueStore {
	return &mockQueueStore{
		defs:    make(map[uuid.UUID]*queue.Definition),
		entries: make(map[uuid.UUID]*queue.Entry),
	}
}

func (m *mockQueueStore) Create(_ context.Context, def *queue.Definition) error {
	def.ID = uuid.New()
	m.defs[def.ID] = def
	return nil
}

func (m *mockQueueStore) GetByID(_ context.Context, id uuid.UUID) (*queue.Definition, error) {
	def, ok := m.defs[id]
	if !ok {
		return nil, queue.ErrNotFound
	}
	return def, nil
}

func (m *mockQueueStore) Update(_ context.Context, def *queue.Definition) error {
	m.defs[def.ID] = def
	return nil
}

func (m *mockQueueStore) List(_ context.Context, branchID uuid.UUID, includeDisabled bool) ([]*queue.Definition, error) {
	return nil, nil
}

func (m *mockQueueStore) Insert(_ context.Context, e *queue.Entry, _ *int) error {
	e.ID = uuid.New()
	e.Status = queue.StatusWaiting
	e.Position = len(m.entries) + 1
	m.entries[e.ID] = e
	return nil
}

func (m *mockQueueStore) GetEntry(_ context.Context, id uuid.UUID) (*queue.Entry, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, queue.ErrNotFound
	}
	return e, nil
}

func (m *mockQueueStore) Transition(_ context.Context, id uuid.UUID, from []queue.EntryStatus, to queue.EntryStatus) (*queue.Entry, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, queue.ErrNotFound
	}
	for _, f := range from {
		if e.Status == f {
			e.Status = to
			now := time.Now()
			switch to {
			case queue.StatusInProgress:
				e.StartedAt = &now
			case queue.StatusDone, queue.StatusCancelled:
				e.FinishedAt = &now
			}
			return e, nil
		}
	}
	return nil, queue.ErrInvalidTransition
}

func (m *mockQueueStore) ListEntries(_ context.Context, queueID uuid.UUID, strategy queue.OrderingStrategy, includeTerminal bool, limit, offset int) ([]*queue.Entry, int, error) {
	return nil, 0, nil
}

type entryView struct{ *mockQueueStore }

func (v entryView) GetByID(ctx context.Context, id uuid.UUID) (*queue.Entry, error) {
	return v.mockQueueStore.GetEntry(ctx, id)
}

func (v entryView) List(ctx context.Context, queueID uuid.UUID, strategy queue.OrderingStrategy, includeTerminal bool, limit, offset int) ([]*queue.Entry, int, error) {
	return v.mockQueueStore.ListEntries(ctx, queueID, strategy, includeTerminal, limit, offset)
}

// -- Mock consultation repository --

type mockRepo struct {
	byID    map[uuid.UUID]*Consultation
	byEntry map[uuid.UUID]*Consultation
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		byID:    make(map[uuid.UUID]*Consultation),
		byEntry: make(map[uuid.UUID]*Consultation),
	}
}

func (m *mockRepo) Create(_ context.Context, cons *Consultation) error {
	if _, exists := m.byEntry[cons.QueueEntryID]; exists {
		return ErrEntryNotCallable
	}
	cons.ID = uuid.New()
	cons.StartedAt = time.Now()
	m.byID[cons.ID] = cons
	m.byEntry[cons.QueueEntryID] = cons
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Consultation, error) {
	cons, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cons, nil
}

func (m *mockRepo) GetByQueueEntry(_ context.Context, entryID uuid.UUID) (*Consultation, error) {
	cons, ok := m.byEntry[entryID]
	if !ok {
		return nil, ErrNotFound
	}
	return cons, nil
}

func (m *mockRepo) UpdateNotes(_ context.Context, id uuid.UUID, notes string) (*Consultation, error) {
	cons, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if cons.Status != StatusInProgress {
		return nil, ErrConsultationNotOpen
	}
	cons.DiagnosisNotes = notes
	return cons, nil
}

func (m *mockRepo) Complete(_ context.Context, id uuid.UUID, notes string) (*Consultation, error) {
	cons, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if cons.Status != StatusInProgress {
		return nil, ErrConsultationNotOpen
	}
	now := time.Now()
	cons.Status = StatusCompleted
	cons.DiagnosisNotes = notes
	cons.EndedAt = &now
	return cons, nil
}

func (m *mockRepo) ListByPatient(_ context.Context, branchID, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error) {
	var out []*Consultation
	for _, cons := range m.byID {
		if cons.BranchID == branchID && cons.PatientID == patientID {
			out = append(out, cons)
		}
	}
	return out, len(out), nil
}

// -- Fixtures --

type fixture struct {
	svc      *Service
	queueSvc *queue.Service
	repo     *mockRepo
	scope    db.Scope
	entry    *queue.Entry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMockQueueStore()
	queueSvc := queue.NewService(store, entryView{store}, nil)
	repo := newMockRepo()
	scope := db.Scope{TenantID: "northside", BranchID: uuid.New()}

	def, err := queueSvc.CreateQueue(context.Background(), scope, "General OPD", queue.OrderFIFO)
	if err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	entry, err := queueSvc.Join(context.Background(), scope, def.ID, queue.JoinRequest{PatientID: uuid.New()})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	return &fixture{
		svc:      NewService(repo, queueSvc, nil),
		queueSvc: queueSvc,
		repo:     repo,
		scope:    scope,
		entry:    entry,
	}
}

// -- Tests --

func TestStartOpensConsultation(t *testing.T) {
	f := newFixture(t)
	clinician := uuid.New()

	cons, err := f.svc.Start(context.Background(), f.scope, f.entry.ID, clinician, "persistent cough")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if cons.Status != StatusInProgress {
		t.Errorf("status = %s, want in_progress", cons.Status)
	}
	if cons.PatientID != f.entry.PatientID {
		t.Error("patient should be copied from the queue entry")
	}
	if cons.ClinicianID != clinician {
		t.Error("clinician not recorded")
	}

	entry, err := f.queueSvc.GetEntry(context.Background(), f.scope, f.entry.ID)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if entry.Status != queue.StatusInProgress {
		t.Errorf("entry status = %s, want in_progress", entry.Status)
	}
}

func TestStartFromCalled(t *testing.T) {
	f := newFixture(t)
	if _, err := f.queueSvc.Call(context.Background(), f.scope, f.entry.ID); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if _, err := f.svc.Start(context.Background(), f.scope, f.entry.ID, uuid.New(), ""); err != nil {
		t.Fatalf("Start from called: %v", err)
	}
}

func TestStartRaceLoserGetsNotCallable(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Start(context.Background(), f.scope, f.entry.ID, uuid.New(), ""); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	_, err := f.svc.Start(context.Background(), f.scope, f.entry.ID, uuid.New(), "")
	if !errors.Is(err, ErrEntryNotCallable) {
		t.Fatalf("second Start err = %v, want ErrEntryNotCallable", err)
	}
}

func TestStartCancelledEntryNotCallable(t *testing.T) {
	f := newFixture(t)
	if _, err := f.queueSvc.Cancel(context.Background(), f.scope, f.entry.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	_, err := f.svc.Start(context.Background(), f.scope, f.entry.ID, uuid.New(), "")
	if !errors.Is(err, ErrEntryNotCallable) {
		t.Fatalf("err = %v, want ErrEntryNotCallable", err)
	}
}

func TestStartMissingEntry(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Start(context.Background(), f.scope, uuid.New(), uuid.New(), "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStartCrossBranch(t *testing.T) {
	f := newFixture(t)
	other := db.Scope{TenantID: f.scope.TenantID, BranchID: uuid.New()}
	_, err := f.svc.Start(context.Background(), other, f.entry.ID, uuid.New(), "")
	if !errors.Is(err, ErrCrossTenantAccess) {
		t.Fatalf("err = %v, want ErrCrossTenantAccess", err)
	}
}

func TestStartRequiresClinician(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Start(context.Background(), f.scope, f.entry.ID, uuid.Nil, "")
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestUpdateNotesWhileOpen(t *testing.T) {
	f := newFixture(t)
	cons, err := f.svc.Start(context.Background(), f.scope, f.entry.ID, uuid.New(), "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	updated, err := f.svc.UpdateNotes(context.Background(), f.scope, cons.ID, "suspected bronchitis")
	if err != nil {
		t.Fatalf("UpdateNotes: %v", err)
	}
	if updated.DiagnosisNotes != "suspected bronchitis" {
		t.Errorf("notes = %q", updated.DiagnosisNotes)
	}

	// Notes can be revised any number of times before completion.
	if _, err := f.svc.UpdateNotes(context.Background(), f.scope, cons.ID, "bronchitis, mild"); err != nil {
		t.Fatalf("second UpdateNotes: %v", err)
	}
}

func TestUpdateNotesAfterCompletion(t *testing.T) {
	f := newFixture(t)
	cons, err := f.svc.Start(context.Background(), f.scope, f.entry.ID, uuid.New(), "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.repo.Complete(context.Background(), cons.ID, "final"); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	_, err = f.svc.UpdateNotes(context.Background(), f.scope, cons.ID, "too late")
	if !errors.Is(err, ErrConsultationNotOpen) {
		t.Fatalf("err = %v, want ErrConsultationNotOpen", err)
	}
}

func TestGetScopeCheck(t *testing.T) {
	f := newFixture(t)
	cons, err := f.svc.Start(context.Background(), f.scope, f.entry.ID, uuid.New(), "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	other := db.Scope{TenantID: f.scope.TenantID, BranchID: uuid.New()}
	if _, err := f.svc.Get(context.Background(), other, cons.ID); !errors.Is(err, ErrCrossTenantAccess) {
		t.Fatalf("err = %v, want ErrCrossTenantAccess", err)
	}
	if _, err := f.svc.UpdateNotes(context.Background(), other, cons.ID, "x"); !errors.Is(err, ErrCrossTenantAccess) {
		t.Fatalf("notes err = %v, want ErrCrossTenantAccess", err)
	}
}

func TestListByPatient(t *testing.T) {
	f := newFixture(t)
	cons, err := f.svc.Start(context.Background(), f.scope, f.entry.ID, uuid.New(), "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	list, total, err := f.svc.ListByPatient(context.Background(), f.scope, cons.PatientID, 10, 0)
	if err != nil {
		t.Fatalf("ListByPatient: %v", err)
	}
	if total != 1 || len(list) != 1 || list[0].ID != cons.ID {
		t.Fatalf("list = %v, total = %d", list, total)
	}

	// Another branch sees nothing.
	other := db.Scope{TenantID: f.scope.TenantID, BranchID: uuid.New()}
	list, _, err = f.svc.ListByPatient(context.Background(), other, cons.PatientID, 10, 0)
	if err != nil {
		t.Fatalf("ListByPatient other branch: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("other branch list = %v, want empty", list)
	}
}
