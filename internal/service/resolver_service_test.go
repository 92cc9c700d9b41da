package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"flowsync/internal/domain"
)

type mockConflictRepo struct {
	conflicts map[string]*domain.Conflict
	resolved  map[string]*domain.ResolvedRecord
	saveCalls int
}

func newMockConflictRepo() *mockConflictRepo {
	return &mockConflictRepo{
		conflicts: make(map[string]*domain.Conflict),
		resolved:  make(map[string]*domain.ResolvedRecord),
	}
}

func (m *mockConflictRepo) Create(conflict *domain.Conflict) error {
	m.conflicts[conflict.ConflictID] = conflict
	return nil
}

func (m *mockConflictRepo) Get(conflictID string) (*domain.Conflict, error) {
	if conflict, ok := m.conflicts[conflictID]; ok {
		copied := *conflict
		return &copied, nil
	}
	return nil, fmt.Errorf("conflict %s: %w", conflictID, ErrNotFound)
}

func (m *mockConflictRepo) ListPending() ([]*domain.Conflict, error) {
	var pending []*domain.Conflict
	for _, conflict := range m.conflicts {
		if !conflict.Resolved() {
			pending = append(pending, conflict)
		}
	}
	return pending, nil
}

func (m *mockConflictRepo) MarkResolved(conflictID string, strategy domain.ResolutionStrategy, at time.Time) error {
	conflict, ok := m.conflicts[conflictID]
	if !ok {
		return fmt.Errorf("conflict %s: %w", conflictID, ErrNotFound)
	}
	conflict.ResolvedAt = &at
	conflict.Resolution = &strategy
	return nil
}

func (m *mockConflictRepo) SaveResolved(record *domain.ResolvedRecord) error {
	m.saveCalls++
	m.resolved[record.ConflictID] = record
	return nil
}

func (m *mockConflictRepo) GetResolved(conflictID string) (*domain.ResolvedRecord, error) {
	if record, ok := m.resolved[conflictID]; ok {
		return record, nil
	}
	return nil, fmt.Errorf("resolution %s: %w", conflictID, ErrNotFound)
}

func TestResolverService_Detect(t *testing.T) {
	repo := newMockConflictRepo()
	service := NewResolverService(repo)

	local := map[string]any{"name": "draft", "local_only": true}
	remote := map[string]any{"name": "published", "remote_only": 1}

	conflict, err := service.Detect("wf-1", local, remote, time.Now(), time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if conflict == nil {
		t.Fatal("Detect() returned nil for diverged snapshots")
	}
	if conflict.ConflictCount != 3 {
		t.Errorf("ConflictCount = %d, want 3", conflict.ConflictCount)
	}
	if len(repo.conflicts) != 1 {
		t.Error("detected conflict should be persisted")
	}

	localFields := map[string]domain.FieldChange{}
	for _, change := range conflict.LocalData.Changes {
		localFields[change.Field] = change
	}
	if localFields["local_only"].Type != domain.FieldAdd {
		t.Errorf("local_only local change = %s, want ADD", localFields["local_only"].Type)
	}
	if localFields["remote_only"].Type != domain.FieldDelete {
		t.Errorf("remote_only local change = %s, want DELETE", localFields["remote_only"].Type)
	}
	if localFields["name"].Value != "draft" {
		t.Errorf("local name value = %v, want draft", localFields["name"].Value)
	}
}

func TestResolverService_DetectNoDivergence(t *testing.T) {
	repo := newMockConflictRepo()
	service := NewResolverService(repo)

	same := map[string]any{"name": "flow", "steps": 2}
	conflict, err := service.Detect("wf-1", same, same, time.Now(), time.Now())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if conflict != nil {
		t.Error("Detect() should return nil when both sides agree")
	}
	if len(repo.conflicts) != 0 {
		t.Error("no conflict should be persisted when both sides agree")
	}
}

func TestResolverService_Reconcile(t *testing.T) {
	repo := newMockConflictRepo()
	service := NewResolverService(repo)

	same := map[string]any{"name": "flow"}
	if err := service.Reconcile("wf-1", same, same, time.Now(), time.Now()); err != nil {
		t.Fatalf("Reconcile() on agreeing snapshots error = %v", err)
	}

	err := service.Reconcile("wf-1", map[string]any{"name": "a"}, map[string]any{"name": "b"}, time.Now(), time.Now())
	var conflictErr *ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("Reconcile() error = %v, want *ConflictError", err)
	}
	if conflictErr.Conflict == nil || conflictErr.Conflict.WorkflowID != "wf-1" {
		t.Errorf("ConflictError should carry the persisted conflict, got %+v", conflictErr.Conflict)
	}
	if len(repo.conflicts) != 1 {
		t.Error("Reconcile() should persist the detected conflict")
	}
}

func seedConflict(repo *mockConflictRepo, localTime, remoteTime time.Time) *domain.Conflict {
	conflict := &domain.Conflict{
		ConflictID: "c-1",
		WorkflowID: "wf-1",
		LocalData: domain.ConflictSide{
			Changes: []domain.FieldChange{
				{Field: "name", Type: domain.FieldModify, Value: "local-name"},
				{Field: "local_only", Type: domain.FieldAdd, Value: "mine"},
				{Field: "remote_only", Type: domain.FieldDelete},
			},
			UpdateTime: localTime,
		},
		RemoteData: domain.ConflictSide{
			Changes: []domain.FieldChange{
				{Field: "name", Type: domain.FieldModify, Value: "remote-name"},
				{Field: "local_only", Type: domain.FieldDelete},
				{Field: "remote_only", Type: domain.FieldAdd, Value: "theirs"},
			},
			UpdateTime: remoteTime,
		},
		ConflictCount: 3,
		DetectedAt:    time.Now(),
	}
	repo.Create(conflict)
	return conflict
}

func TestResolverService_ResolveStrategies(t *testing.T) {
	base := time.Now()

	tests := []struct {
		name       string
		resolution *domain.Resolution
		localTime  time.Time
		remoteTime time.Time
		wantFields map[string]any
	}{
		{
			name: "client takes every local value",
			resolution: &domain.Resolution{
				ConflictID:     "c-1",
				ResolutionType: domain.ResolutionClient,
				// Ignored outside merge.
				SelectedChanges: map[string]string{"name": domain.SideRemote},
			},
			localTime:  base,
			remoteTime: base,
			wantFields: map[string]any{"name": "local-name", "local_only": "mine"},
		},
		{
			name: "server takes every remote value",
			resolution: &domain.Resolution{
				ConflictID:     "c-1",
				ResolutionType: domain.ResolutionServer,
			},
			localTime:  base,
			remoteTime: base,
			wantFields: map[string]any{"name": "remote-name", "remote_only": "theirs"},
		},
		{
			name: "timestamp picks the later side wholesale",
			resolution: &domain.Resolution{
				ConflictID:     "c-1",
				ResolutionType: domain.ResolutionTimestamp,
			},
			localTime:  base,
			remoteTime: base.Add(time.Minute),
			wantFields: map[string]any{"name": "remote-name", "remote_only": "theirs"},
		},
		{
			name: "timestamp tie falls to local",
			resolution: &domain.Resolution{
				ConflictID:     "c-1",
				ResolutionType: domain.ResolutionTimestamp,
			},
			localTime:  base,
			remoteTime: base,
			wantFields: map[string]any{"name": "local-name", "local_only": "mine"},
		},
		{
			name: "merge honors selection and defaults to local",
			resolution: &domain.Resolution{
				ConflictID:      "c-1",
				ResolutionType:  domain.ResolutionMerge,
				SelectedChanges: map[string]string{"name": domain.SideRemote},
			},
			localTime:  base,
			remoteTime: base,
			// remote_only defaults to local, where it is deleted.
			wantFields: map[string]any{"name": "remote-name", "local_only": "mine"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockConflictRepo()
			service := NewResolverService(repo)
			seedConflict(repo, tt.localTime, tt.remoteTime)

			record, err := service.Resolve(tt.resolution)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if len(record.Fields) != len(tt.wantFields) {
				t.Errorf("Fields = %v, want %v", record.Fields, tt.wantFields)
			}
			for field, want := range tt.wantFields {
				if got := record.Fields[field]; got != want {
					t.Errorf("Fields[%s] = %v, want %v", field, got, want)
				}
			}
			if !repo.conflicts["c-1"].Resolved() {
				t.Error("conflict should be marked resolved")
			}
		})
	}
}

func TestResolverService_ResolveIdempotent(t *testing.T) {
	repo := newMockConflictRepo()
	service := NewResolverService(repo)
	seedConflict(repo, time.Now(), time.Now())

	resolution := &domain.Resolution{
		ConflictID:     "c-1",
		ResolutionType: domain.ResolutionClient,
	}

	first, err := service.Resolve(resolution)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	second, err := service.Resolve(resolution)
	if err != nil {
		t.Fatalf("Resolve() retry error = %v", err)
	}
	if repo.saveCalls != 1 {
		t.Errorf("retry persisted again: %d save calls", repo.saveCalls)
	}
	if second.ResolvedAt != first.ResolvedAt {
		t.Error("retry should return the stored record, not a new one")
	}

	// A different strategy after resolution is not a retry.
	_, err = service.Resolve(&domain.Resolution{
		ConflictID:     "c-1",
		ResolutionType: domain.ResolutionServer,
	})
	if !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("Resolve() with different strategy error = %v, want ErrInvalidOperation", err)
	}
}

func TestResolverService_ResolveUnknownInputs(t *testing.T) {
	repo := newMockConflictRepo()
	service := NewResolverService(repo)
	seedConflict(repo, time.Now(), time.Now())

	_, err := service.Resolve(&domain.Resolution{
		ConflictID:     "missing",
		ResolutionType: domain.ResolutionClient,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve() unknown conflict error = %v, want ErrNotFound", err)
	}

	_, err = service.Resolve(&domain.Resolution{
		ConflictID:     "c-1",
		ResolutionType: domain.ResolutionStrategy("majority"),
	})
	if !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("Resolve() unknown strategy error = %v, want ErrInvalidOperation", err)
	}

	_, err = service.Resolve(&domain.Resolution{
		ConflictID:      "c-1",
		ResolutionType:  domain.ResolutionMerge,
		SelectedChanges: map[string]string{"name": "upstream"},
	})
	if !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("Resolve() unknown side error = %v, want ErrInvalidOperation", err)
	}
}

func TestDefaultSelection(t *testing.T) {
	repo := newMockConflictRepo()
	conflict := seedConflict(repo, time.Now(), time.Now())

	selection := DefaultSelection(conflict)
	if len(selection) != 3 {
		t.Fatalf("selection has %d entries, want 3", len(selection))
	}
	for field, side := range selection {
		if side != domain.SideLocal {
			t.Errorf("selection[%s] = %s, want local", field, side)
		}
	}
}
