package service

import (
	"errors"
	"fmt"
	"sort"
	"testing"

	"flowsync/internal/domain"
)

type mockVersionRepo struct {
	versions map[string]*domain.Version
}

func newMockVersionRepo() *mockVersionRepo {
	return &mockVersionRepo{
		versions: make(map[string]*domain.Version),
	}
}

func (m *mockVersionRepo) Save(version *domain.Version) error {
	m.versions[version.ID] = version
	return nil
}

func (m *mockVersionRepo) FindByID(id string) (*domain.Version, error) {
	if version, ok := m.versions[id]; ok {
		copied := *version
		return &copied, nil
	}
	return nil, fmt.Errorf("version %s: %w", id, ErrNotFound)
}

func (m *mockVersionRepo) ListByWorkflow(workflowID string) ([]*domain.Version, error) {
	var versions []*domain.Version
	for _, version := range m.versions {
		if version.WorkflowID == workflowID {
			copied := *version
			versions = append(versions, &copied)
		}
	}
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].VersionNumber < versions[j].VersionNumber
	})
	return versions, nil
}

func (m *mockVersionRepo) Update(version *domain.Version) error {
	if _, ok := m.versions[version.ID]; !ok {
		return fmt.Errorf("version %s: %w", version.ID, ErrNotFound)
	}
	m.versions[version.ID] = version
	return nil
}

func (m *mockVersionRepo) Delete(id string) error {
	if _, ok := m.versions[id]; !ok {
		return fmt.Errorf("version %s: %w", id, ErrNotFound)
	}
	delete(m.versions, id)
	return nil
}

func (m *mockVersionRepo) currentOf(workflowID string) []*domain.Version {
	var current []*domain.Version
	for _, version := range m.versions {
		if version.WorkflowID == workflowID && version.IsCurrent {
			current = append(current, version)
		}
	}
	return current
}

func TestLedgerService_Create(t *testing.T) {
	repo := newMockVersionRepo()
	service := NewLedgerService(repo)

	first, err := service.Create(&domain.CreateVersionRequest{
		WorkflowID: "wf-1",
		Content:    map[string]any{"name": "order-flow"},
		SetCurrent: true,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if first.VersionNumber != 1 {
		t.Errorf("first VersionNumber = %d, want 1", first.VersionNumber)
	}
	if first.VersionName != "v1" {
		t.Errorf("default VersionName = %q, want v1", first.VersionName)
	}
	if !first.IsCurrent {
		t.Error("first version should be current")
	}

	second, err := service.Create(&domain.CreateVersionRequest{
		WorkflowID: "wf-1",
		Content:    map[string]any{"name": "order-flow", "steps": 3},
		SetCurrent: true,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if second.VersionNumber != 2 {
		t.Errorf("second VersionNumber = %d, want 2", second.VersionNumber)
	}

	current := repo.currentOf("wf-1")
	if len(current) != 1 {
		t.Fatalf("got %d current versions, want exactly 1", len(current))
	}
	if current[0].ID != second.ID {
		t.Error("newest version should be the current one")
	}
}

func TestLedgerService_CreateNotCurrentKeepsExisting(t *testing.T) {
	repo := newMockVersionRepo()
	service := NewLedgerService(repo)

	first, _ := service.Create(&domain.CreateVersionRequest{
		WorkflowID: "wf-1",
		Content:    map[string]any{"a": 1},
		SetCurrent: true,
	})
	_, err := service.Create(&domain.CreateVersionRequest{
		WorkflowID: "wf-1",
		Content:    map[string]any{"a": 2},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	current := repo.currentOf("wf-1")
	if len(current) != 1 || current[0].ID != first.ID {
		t.Error("creating a non-current version must not move the current marker")
	}
}

func TestCompareContent(t *testing.T) {
	tests := []struct {
		name      string
		old       map[string]any
		new       map[string]any
		wantDiffs int
		wantStats domain.ComparisonStats
	}{
		{
			name:      "identical contents produce no diffs",
			old:       map[string]any{"a": 1, "b": "x"},
			new:       map[string]any{"a": 1, "b": "x"},
			wantDiffs: 0,
			wantStats: domain.ComparisonStats{Total: 2, Unchanged: 2},
		},
		{
			name:      "added deleted and modified",
			old:       map[string]any{"kept": true, "gone": 1, "changed": "old"},
			new:       map[string]any{"kept": true, "fresh": 2, "changed": "new"},
			wantDiffs: 3,
			wantStats: domain.ComparisonStats{Total: 4, Added: 1, Deleted: 1, Modified: 1, Unchanged: 1},
		},
		{
			name:      "nested values compared structurally",
			old:       map[string]any{"cfg": map[string]any{"retries": 3}},
			new:       map[string]any{"cfg": map[string]any{"retries": 3}},
			wantDiffs: 0,
			wantStats: domain.ComparisonStats{Total: 1, Unchanged: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diffs, stats := CompareContent(tt.old, tt.new)
			if len(diffs) != tt.wantDiffs {
				t.Errorf("got %d diffs, want %d", len(diffs), tt.wantDiffs)
			}
			if stats != tt.wantStats {
				t.Errorf("stats = %+v, want %+v", stats, tt.wantStats)
			}
			for _, diff := range diffs {
				if diff.ChangeType == domain.ChangeUnchanged {
					t.Errorf("unchanged field %s must not appear in diffs", diff.Field)
				}
			}
		})
	}
}

func TestCompareContent_DirectionFlips(t *testing.T) {
	old := map[string]any{"only_old": 1}
	new := map[string]any{"only_new": 2}

	forward, _ := CompareContent(old, new)
	backward, _ := CompareContent(new, old)

	byField := func(diffs []domain.VersionDiff) map[string]domain.ChangeType {
		out := make(map[string]domain.ChangeType)
		for _, d := range diffs {
			out[d.Field] = d.ChangeType
		}
		return out
	}

	fwd, bwd := byField(forward), byField(backward)
	if fwd["only_new"] != domain.ChangeAdded || bwd["only_new"] != domain.ChangeDeleted {
		t.Error("added in one direction must read as deleted in the other")
	}
	if fwd["only_old"] != domain.ChangeDeleted || bwd["only_old"] != domain.ChangeAdded {
		t.Error("deleted in one direction must read as added in the other")
	}
}

func TestLedgerService_Rollback(t *testing.T) {
	repo := newMockVersionRepo()
	service := NewLedgerService(repo)

	first, _ := service.Create(&domain.CreateVersionRequest{
		WorkflowID: "wf-1",
		Content:    map[string]any{"rev": 1},
		SetCurrent: true,
	})
	second, _ := service.Create(&domain.CreateVersionRequest{
		WorkflowID: "wf-1",
		Content:    map[string]any{"rev": 2},
		SetCurrent: true,
	})

	restored, err := service.Rollback("wf-1", first.ID)
	if err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if !restored.IsCurrent {
		t.Error("rollback target should be current")
	}

	current := repo.currentOf("wf-1")
	if len(current) != 1 || current[0].ID != first.ID {
		t.Error("rollback must leave exactly one current version, the target")
	}
	if repo.versions[second.ID].IsCurrent {
		t.Error("previous current version should have been demoted")
	}

	// Rolling back to the already-current version is a no-op, not an error.
	if _, err := service.Rollback("wf-1", first.ID); err != nil {
		t.Errorf("Rollback() to current version error = %v", err)
	}

	// Target belonging to another workflow is rejected.
	if _, err := service.Rollback("wf-2", first.ID); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("Rollback() across workflows error = %v, want ErrInvalidOperation", err)
	}
}

func TestLedgerService_DeleteCurrentRejected(t *testing.T) {
	repo := newMockVersionRepo()
	service := NewLedgerService(repo)

	version, _ := service.Create(&domain.CreateVersionRequest{
		WorkflowID: "wf-1",
		Content:    map[string]any{"rev": 1},
		SetCurrent: true,
	})

	if err := service.Delete(version.ID); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("Delete(current) error = %v, want ErrInvalidOperation", err)
	}
	if _, ok := repo.versions[version.ID]; !ok {
		t.Error("rejected delete must leave the version in place")
	}
}

func TestLedgerService_BatchDeleteAllOrNothing(t *testing.T) {
	repo := newMockVersionRepo()
	service := NewLedgerService(repo)

	current, _ := service.Create(&domain.CreateVersionRequest{
		WorkflowID: "wf-1",
		Content:    map[string]any{"rev": 1},
		SetCurrent: true,
	})
	old, _ := service.Create(&domain.CreateVersionRequest{
		WorkflowID: "wf-1",
		Content:    map[string]any{"rev": 2},
	})

	err := service.BatchDelete([]string{old.ID, current.ID})
	if !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("BatchDelete() error = %v, want ErrInvalidOperation", err)
	}
	if len(repo.versions) != 2 {
		t.Error("failed batch delete must not remove any version")
	}

	if err := service.BatchDelete([]string{old.ID}); err != nil {
		t.Fatalf("BatchDelete() error = %v", err)
	}
	if len(repo.versions) != 1 {
		t.Error("batch delete should remove the non-current version")
	}
}

func TestLedgerService_Tag(t *testing.T) {
	repo := newMockVersionRepo()
	service := NewLedgerService(repo)

	version, _ := service.Create(&domain.CreateVersionRequest{
		WorkflowID: "wf-1",
		Content:    map[string]any{"rev": 1},
	})

	tagged, err := service.Tag(version.ID, "release")
	if err != nil {
		t.Fatalf("Tag() error = %v", err)
	}
	if len(tagged.Tags) != 1 || tagged.Tags[0] != "release" {
		t.Errorf("Tags = %v, want [release]", tagged.Tags)
	}

	// Duplicate tag is ignored, not duplicated.
	tagged, err = service.Tag(version.ID, "release")
	if err != nil {
		t.Fatalf("Tag() duplicate error = %v", err)
	}
	if len(tagged.Tags) != 1 {
		t.Errorf("duplicate tag grew Tags to %v", tagged.Tags)
	}

	for i := 0; i < maxTagsPerVersion-1; i++ {
		if _, err := service.Tag(version.ID, fmt.Sprintf("tag-%d", i)); err != nil {
			t.Fatalf("Tag() error = %v", err)
		}
	}
	if _, err := service.Tag(version.ID, "one-too-many"); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("Tag() past limit error = %v, want ErrInvalidOperation", err)
	}
}
