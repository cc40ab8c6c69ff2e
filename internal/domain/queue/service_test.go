package queue

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/internal/platform/notification"
)

// -- Mock Repository --

// mockRepo backs both repository interfaces with maps and mirrors the
// transactional semantics of the Postgres implementation: duplicate-active
// checks, advisory positions, CAS transitions.
type mockRepo struct {
	defs    map[uuid.UUID]*Definition
	entries map[uuid.UUID]*Entry
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		defs:    make(map[uuid.UUID]*Definition),
		entries: make(map[uuid.UUID]*Entry),
	}
}

func (m *mockRepo) Create(_ context.Context, def *Definition) error {
	def.ID = uuid.New()
	def.CreatedAt = time.Now()
	def.UpdatedAt = def.CreatedAt
	m.defs[def.ID] = def
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Definition, error) {
	def, ok := m.defs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return def, nil
}

func (m *mockRepo) Update(_ context.Context, def *Definition) error {
	if _, ok := m.defs[def.ID]; !ok {
		return ErrNotFound
	}
	def.UpdatedAt = time.Now()
	m.defs[def.ID] = def
	return nil
}

func (m *mockRepo) List(_ context.Context, branchID uuid.UUID, includeDisabled bool) ([]*Definition, error) {
	var out []*Definition
	for _, def := range m.defs {
		if def.BranchID != branchID {
			continue
		}
		if def.Disabled && !includeDisabled {
			continue
		}
		out = append(out, def)
	}
	return out, nil
}

func (m *mockRepo) Insert(_ context.Context, e *Entry, requestedPosition *int) error {
	def, ok := m.defs[e.QueueID]
	if !ok {
		return ErrNotFound
	}
	if def.Disabled {
		return ErrQueueDisabled
	}
	maxPos, taken := 0, false
	for _, other := range m.entries {
		if other.QueueID != e.QueueID {
			continue
		}
		if other.PatientID == e.PatientID && other.Active() {
			return ErrDuplicateActiveEntry
		}
		if other.Position > maxPos {
			maxPos = other.Position
		}
		if requestedPosition != nil && other.Position == *requestedPosition {
			taken = true
		}
	}
	if requestedPosition != nil && !taken {
		e.Position = *requestedPosition
	} else {
		e.Position = maxPos + 1
	}
	e.ID = uuid.New()
	e.Status = StatusWaiting
	e.JoinedAt = time.Now()
	m.entries[e.ID] = e
	return nil
}

func (m *mockRepo) GetEntryByID(_ context.Context, id uuid.UUID) (*Entry, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func (m *mockRepo) Transition(ctx context.Context, id uuid.UUID, from []EntryStatus, to EntryStatus) (*Entry, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	matched := false
	for _, f := range from {
		if e.Status == f {
			matched = true
			break
		}
	}
	if !matched {
		return nil, ErrInvalidTransition
	}
	now := time.Now()
	e.Status = to
	switch to {
	case StatusCalled:
		e.CalledAt = &now
	case StatusInProgress:
		e.StartedAt = &now
	case StatusDone, StatusCancelled:
		e.FinishedAt = &now
	}
	return e, nil
}

func (m *mockRepo) ListEntries(_ context.Context, queueID uuid.UUID, strategy OrderingStrategy, includeTerminal bool, limit, offset int) ([]*Entry, int, error) {
	var out []*Entry
	for _, e := range m.entries {
		if e.QueueID != queueID {
			continue
		}
		if e.Status.Terminal() && !includeTerminal {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		iActive := out[i].Status == StatusWaiting || out[i].Status == StatusCalled
		jActive := out[j].Status == StatusWaiting || out[j].Status == StatusCalled
		if iActive != jActive {
			return iActive
		}
		return strategy.Less(out[i], out[j])
	})
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

// EntryRepository method names clash with DefinitionRepository on the shared
// mock, so a thin view renames them.
type mockEntryView struct{ *mockRepo }

func (v mockEntryView) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return v.mockRepo.GetEntryByID(ctx, id)
}

func (v mockEntryView) List(ctx context.Context, queueID uuid.UUID, strategy OrderingStrategy, includeTerminal bool, limit, offset int) ([]*Entry, int, error) {
	return v.mockRepo.ListEntries(ctx, queueID, strategy, includeTerminal, limit, offset)
}

func newTestService(t *testing.T) (*Service, *mockRepo, *notification.RecordingChannel) {
	t.Helper()
	repo := newMockRepo()
	rec := &notification.RecordingChannel{}
	pub := notification.NewPublisher(zerolog.Nop(), rec)
	return NewService(repo, mockEntryView{repo}, pub), repo, rec
}

func testScope() db.Scope {
	return db.Scope{TenantID: "northside", BranchID: uuid.New()}
}

func mustCreateQueue(t *testing.T, svc *Service, scope db.Scope, rule OrderingRule) *Definition {
	t.Helper()
	def, err := svc.CreateQueue(context.Background(), scope, "General OPD", rule)
	if err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	return def
}

func mustJoin(t *testing.T, svc *Service, scope db.Scope, queueID uuid.UUID, req JoinRequest) *Entry {
	t.Helper()
	e, err := svc.Join(context.Background(), scope, queueID, req)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	return e
}

// -- Registry --

func TestCreateQueueDefaultsToFIFO(t *testing.T) {
	svc, _, _ := newTestService(t)
	def := mustCreateQueue(t, svc, testScope(), "")
	if def.Ordering != OrderFIFO {
		t.Errorf("default ordering = %s, want fifo", def.Ordering)
	}
	if def.Disabled {
		t.Error("new queue should be enabled")
	}
}

func TestCreateQueueRejectsUnknownRule(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.CreateQueue(context.Background(), testScope(), "Lab", "priority")
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestRenameQueue(t *testing.T) {
	svc, _, _ := newTestService(t)
	scope := testScope()
	def := mustCreateQueue(t, svc, scope, OrderFIFO)

	renamed, err := svc.RenameQueue(context.Background(), scope, def.ID, "Walk-in")
	if err != nil {
		t.Fatalf("RenameQueue: %v", err)
	}
	if renamed.Name != "Walk-in" {
		t.Errorf("name = %s, want Walk-in", renamed.Name)
	}
}

func TestQueueScopeCheck(t *testing.T) {
	svc, _, _ := newTestService(t)
	def := mustCreateQueue(t, svc, testScope(), OrderFIFO)

	other := testScope()
	if _, err := svc.GetQueue(context.Background(), other, def.ID); !errors.Is(err, ErrCrossTenantAccess) {
		t.Fatalf("err = %v, want ErrCrossTenantAccess", err)
	}
	if _, err := svc.RenameQueue(context.Background(), other, def.ID, "x"); !errors.Is(err, ErrCrossTenantAccess) {
		t.Fatalf("rename err = %v, want ErrCrossTenantAccess", err)
	}
}

func TestDisableQueueBlocksJoin(t *testing.T) {
	svc, _, _ := newTestService(t)
	scope := testScope()
	def := mustCreateQueue(t, svc, scope, OrderFIFO)

	if _, err := svc.SetQueueDisabled(context.Background(), scope, def.ID, true); err != nil {
		t.Fatalf("SetQueueDisabled: %v", err)
	}
	_, err := svc.Join(context.Background(), scope, def.ID, JoinRequest{PatientID: uuid.New()})
	if !errors.Is(err, ErrQueueDisabled) {
		t.Fatalf("err = %v, want ErrQueueDisabled", err)
	}

	// Re-enabling restores joins.
	if _, err := svc.SetQueueDisabled(context.Background(), scope, def.ID, false); err != nil {
		t.Fatalf("SetQueueDisabled: %v", err)
	}
	mustJoin(t, svc, scope, def.ID, JoinRequest{PatientID: uuid.New()})
}

// -- Join --

func TestJoinAssignsSequentialPositions(t *testing.T) {
	svc, _, _ := newTestService(t)
	scope := testScope()
	def := mustCreateQueue(t, svc, scope, OrderFIFO)

	first := mustJoin(t, svc, scope, def.ID, JoinRequest{PatientID: uuid.New()})
	second := mustJoin(t, svc, scope, def.ID, JoinRequest{PatientID: uuid.New()})

	if first.Position != 1 || second.Position != 2 {
		t.Errorf("positions = %d, %d, want 1, 2", first.Position, second.Position)
	}
	if first.Status != StatusWaiting {
		t.Errorf("status = %s, want waiting", first.Status)
	}
}

func TestJoinDuplicateActiveEntry(t *testing.T) {
	svc, _, _ := newTestService(t)
	scope := testScope()
	def := mustCreateQueue(t, svc, scope, OrderFIFO)
	patient := uuid.New()

	mustJoin(t, svc, scope, def.ID, JoinRequest{PatientID: patient})
	_, err := svc.Join(context.Background(), scope, def.ID, JoinRequest{PatientID: patient})
	if !errors.Is(err, ErrDuplicateActiveEntry) {
		t.Fatalf("err = %v, want ErrDuplicateActiveEntry", err)
	}
}

func TestJoinAgainAfterTerminal(t *testing.T) {
	svc, _, _ := newTestService(t)
	scope := testScope()
	def := mustCreateQueue(t, svc, scope, OrderFIFO)
	patient := uuid.New()

	e := mustJoin(t, svc, scope, def.ID, JoinRequest{PatientID: patient})
	if _, err := svc.Cancel(context.Background(), scope, e.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	again := mustJoin(t, svc, scope, def.ID, JoinRequest{PatientID: patient})
	if again.Position <= e.Position {
		t.Errorf("rejoin position = %d, want > %d (positions are never reused)", again.Position, e.Position)
	}
}

func TestJoinRequestedPosition(t *testing.T) {
	svc, _, _ := newTestService(t)
	scope := testScope()
	def := mustCreateQueue(t, svc, scope, OrderFIFO)

	mustJoin(t, svc, scope, def.ID, JoinRequest{PatientID: uuid.New()})

	free := 5
	e := mustJoin(t, svc, scope, def.ID, JoinRequest{PatientID: uuid.New(), Position: &free})
	if e.Position != 5 {
		t.Errorf("position = %d, want requested 5", e.Position)
	}

	// A taken slot falls back to appending at the tail.
	taken := 1
	f := mustJoin(t, svc, scope, def.ID, JoinRequest{PatientID: uuid.New(), Position: &taken})
	if f.Position != 6 {
		t.Errorf("position = %d, want tail append 6", f.Position)
	}
}

func TestJoinValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	scope := testScope()
	def := mustCreateQueue(t, svc, scope, OrderFIFO)

	if _, err := svc.Join(context.Background(), scope, def.ID, JoinRequest{}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("missing patient err = %v, want ErrInvalidArgument", err)
	}
	neg := -1
	if _, err := svc.Join(context.Background(), scope, def.ID, JoinRequest{PatientID: uuid.New(), Position: &neg}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("negative position err = %v, want ErrInvalidArgument", err)
	}
}

func TestJoinCrossBranchQueue(t *testing.T) {
	svc, _, _ := newTestService(t)
	def := mustCreateQueue(t, svc, testScope(), OrderFIFO)

	_, err := svc.Join(context.Background(), testScope(), def.ID, JoinRequest{PatientID: uuid.New()})
	if !errors.Is(err, ErrCrossTenantAccess) {
		t.Fatalf("err = %v, want ErrCrossTenantAccess", err)
	}
}

// -- Transitions --

func TestCallTransitionsAndNotifies(t *testing.T) {
	svc, _, rec := newTestService(t)
	scope := testScope()
	def := mustCreateQueue(t, svc, scope, OrderFIFO)
	e := mustJoin(t, svc, scope, def.ID, JoinRequest{PatientID: uuid.New()})

	called, err := svc.Call(context.Background(), scope, e.ID)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if called.Status != StatusCalled {
		t.Errorf("status = %s, want called", called.Status)
	}
	if called.CalledAt == nil {
		t.Error("CalledAt should be set")
	}

	events := rec.Events()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Type != notification.EventEntryCalled || events[0].EntryID != e.ID {
		t.Errorf("unexpected event %+v", events[0])
	}
}

func TestCallFailedNotificationDoesNotBlock(t *testing.T) {
	svc, _, rec := newTestService(t)
	rec.ShouldFail = true
	rec.FailError = errors.New("display offline")

	scope := testScope()
	def := mustCreateQueue(t, svc, scope, OrderFIFO)
	e := mustJoin(t, svc, scope, def.ID, JoinRequest{PatientID: uuid.New()})

	called, err := svc.Call(context.Background(), scope, e.ID)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if called.Status != StatusCalled {
		t.Errorf("status = %s, want called despite delivery failure", called.Status)
	}
}

func TestCallTwiceConflicts(t *testing.T) {
	svc, _, _ := newTestService(t)
	scope := testScope()
	def := mustCreateQueue(t, svc, scope, OrderFIFO)
	e := mustJoin(t, svc, scope, def.ID, JoinRequest{PatientID: uuid.New()})

	if _, err := svc.Call(context.Background(), scope, e.ID); err != nil {
		t.Fatalf("first Call: %v", err)
	}
	if _, err := svc.Call(context.Background(), scope, e.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second Call err = %v, want ErrInvalidTransition", err)
	}
}

func TestStartEntryShortcut(t *testing.T) {
	svc, _, _ := newTestService(t)
	scope := testScope()
	def := mustCreateQueue(t, svc, scope, OrderFIFO)

	// Straight from waiting, without a call step.
	e := mustJoin(t, svc, scope, def.ID, JoinRequest{PatientID: uuid.New()})
	started, err := svc.StartEntry(context.Background(), scope, e.ID)
	if err != nil {
		t.Fatalf("StartEntry: %v", err)
	}
	if started.Status != StatusInProgress {
		t.Errorf("status = %s, want in_progress", started.Status)
	}

	// And from called.
	f := mustJoin(t, svc, scope, def.ID, JoinRequest{PatientID: uuid.New()})
	if _, err := svc.Call(context.Background(), scope, f.ID); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if _, err := svc.StartEntry(context.Background(), scope, f.ID); err != nil {
		t.Fatalf("StartEntry from called: %v", err)
	}
}

func TestFinishEntryRequiresInProgress(t *testing.T) {
	svc, _, _ := newTestService(t)
	scope := testScope()
	def := mustCreateQueue(t, svc, scope, OrderFIFO)
	e := mustJoin(t, svc, scope, def.ID, JoinRequest{PatientID: uuid.New()})

	if _, err := svc.FinishEntry(context.Background(), scope, e.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}

	if _, err := svc.StartEntry(context.Background(), scope, e.ID); err != nil {
		t.Fatalf("StartEntry: %v", err)
	}
	done, err := svc.FinishEntry(context.Background(), scope, e.ID)
	if err != nil {
		t.Fatalf("FinishEntry: %v", err)
	}
	if done.Status != StatusDone || done.FinishedAt == nil {
		t.Errorf("entry = %+v, want done with FinishedAt", done)
	}
}

func TestCancelTerminalConflicts(t *testing.T) {
	svc, _, _ := newTestService(t)
	scope := testScope()
	def := mustCreateQueue(t, svc, scope, OrderFIFO)
	e := mustJoin(t, svc, scope, def.ID, JoinRequest{PatientID: uuid.New()})

	if _, err := svc.Cancel(context.Background(), scope, e.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := svc.Cancel(context.Background(), scope, e.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second Cancel err = %v, want ErrInvalidTransition", err)
	}
}

func TestEntryScopeCheck(t *testing.T) {
	svc, _, _ := newTestService(t)
	scope := testScope()
	def := mustCreateQueue(t, svc, scope, OrderFIFO)
	e := mustJoin(t, svc, scope, def.ID, JoinRequest{PatientID: uuid.New()})

	other := testScope()
	for name, op := range map[string]func() error{
		"get":    func() error { _, err := svc.GetEntry(context.Background(), other, e.ID); return err },
		"call":   func() error { _, err := svc.Call(context.Background(), other, e.ID); return err },
		"cancel": func() error { _, err := svc.Cancel(context.Background(), other, e.ID); return err },
		"start":  func() error { _, err := svc.StartEntry(context.Background(), other, e.ID); return err },
		"finish": func() error { _, err := svc.FinishEntry(context.Background(), other, e.ID); return err },
	} {
		if err := op(); !errors.Is(err, ErrCrossTenantAccess) {
			t.Errorf("%s err = %v, want ErrCrossTenantAccess", name, err)
		}
	}
}

// -- Listing --

func TestListEntriesFIFO(t *testing.T) {
	svc, _, _ := newTestService(t)
	scope := testScope()
	def := mustCreateQueue(t, svc, scope, OrderFIFO)

	first := mustJoin(t, svc, scope, def.ID, JoinRequest{PatientID: uuid.New()})
	second := mustJoin(t, svc, scope, def.ID, JoinRequest{PatientID: uuid.New()})
	third := mustJoin(t, svc, scope, def.ID, JoinRequest{PatientID: uuid.New()})

	entries, total, err := svc.ListEntries(context.Background(), scope, def.ID, false, 10, 0)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if total != 3 || len(entries) != 3 {
		t.Fatalf("total = %d, len = %d, want 3, 3", total, len(entries))
	}
	want := []uuid.UUID{first.ID, second.ID, third.ID}
	for i, e := range entries {
		if e.ID != want[i] {
			t.Errorf("entries[%d] = %s, want %s", i, e.ID, want[i])
		}
	}
}

func TestListEntriesAcuityOrder(t *testing.T) {
	svc, _, _ := newTestService(t)
	scope := testScope()
	def := mustCreateQueue(t, svc, scope, OrderAcuity)

	low, high := 1, 4
	mild := mustJoin(t, svc, scope, def.ID, JoinRequest{PatientID: uuid.New(), Acuity: &low})
	urgent := mustJoin(t, svc, scope, def.ID, JoinRequest{PatientID: uuid.New(), Acuity: &high})
	unscored := mustJoin(t, svc, scope, def.ID, JoinRequest{PatientID: uuid.New()})

	entries, _, err := svc.ListEntries(context.Background(), scope, def.ID, false, 10, 0)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	want := []uuid.UUID{urgent.ID, mild.ID, unscored.ID}
	for i, e := range entries {
		if e.ID != want[i] {
			t.Errorf("entries[%d] = %s, want %s", i, e.ID, want[i])
		}
	}
}

func TestListEntriesExcludesTerminalByDefault(t *testing.T) {
	svc, _, _ := newTestService(t)
	scope := testScope()
	def := mustCreateQueue(t, svc, scope, OrderFIFO)

	keep := mustJoin(t, svc, scope, def.ID, JoinRequest{PatientID: uuid.New()})
	gone := mustJoin(t, svc, scope, def.ID, JoinRequest{PatientID: uuid.New()})
	if _, err := svc.Cancel(context.Background(), scope, gone.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	entries, total, err := svc.ListEntries(context.Background(), scope, def.ID, false, 10, 0)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if total != 1 || len(entries) != 1 || entries[0].ID != keep.ID {
		t.Fatalf("expected only the active entry, got %d", len(entries))
	}

	all, allTotal, err := svc.ListEntries(context.Background(), scope, def.ID, true, 10, 0)
	if err != nil {
		t.Fatalf("ListEntries include_terminal: %v", err)
	}
	if allTotal != 2 || len(all) != 2 {
		t.Fatalf("expected both entries with include_terminal, got %d", len(all))
	}
}

func TestListEntriesPagination(t *testing.T) {
	svc, _, _ := newTestService(t)
	scope := testScope()
	def := mustCreateQueue(t, svc, scope, OrderFIFO)

	for i := 0; i < 5; i++ {
		mustJoin(t, svc, scope, def.ID, JoinRequest{PatientID: uuid.New()})
	}

	page, total, err := svc.ListEntries(context.Background(), scope, def.ID, false, 2, 2)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if total != 5 || len(page) != 2 {
		t.Fatalf("total = %d, len = %d, want 5, 2", total, len(page))
	}
	if page[0].Position != 3 || page[1].Position != 4 {
		t.Errorf("page positions = %d, %d, want 3, 4", page[0].Position, page[1].Position)
	}
}
