package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"flowsync/internal/domain"
	"flowsync/internal/store"
)

// LedgerSchema returns the extra collections the client-side ledger and
// resolver persist on top of the default offline schema.
func LedgerSchema() []store.CollectionSpec {
	return []store.CollectionSpec{
		{Name: "versions", Indexes: []store.IndexSpec{
			{Field: "workflow_id"},
		}},
		{Name: "conflicts", Indexes: []store.IndexSpec{
			{Field: "state"},
		}},
		{Name: "resolutions"},
	}
}

func toRecord(v any) (store.Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var rec store.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func fromRecord(rec store.Record, v any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// --- workflows ---

type localWorkflowRepository struct {
	store *store.Store
}

// NewLocalWorkflowRepository backs the workflow repository with the offline
// store so the same services run on both sides of the sync boundary.
func NewLocalWorkflowRepository(s *store.Store) WorkflowRepository {
	return &localWorkflowRepository{store: s}
}

// workflowRecord denormalizes the update time under the key the store's
// updatedAt index is declared on. RFC3339 keeps index order chronological.
func workflowRecord(workflow *domain.Workflow) (store.Record, error) {
	rec, err := toRecord(workflow)
	if err != nil {
		return nil, err
	}
	rec["updatedAt"] = workflow.UpdateTime.UTC().Format(time.RFC3339)
	return rec, nil
}

func (r *localWorkflowRepository) Create(workflow *domain.Workflow) error {
	rec, err := workflowRecord(workflow)
	if err != nil {
		return err
	}
	return r.store.Save("workflows", rec)
}

func (r *localWorkflowRepository) FindByID(id string) (*domain.Workflow, error) {
	rec, err := r.store.Get("workflows", id)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", id, mapStoreErr(err))
	}
	var workflow domain.Workflow
	if err := fromRecord(rec, &workflow); err != nil {
		return nil, err
	}
	return &workflow, nil
}

func (r *localWorkflowRepository) List() ([]*domain.Workflow, error) {
	recs, err := r.store.GetAll("workflows")
	if err != nil {
		return nil, err
	}
	workflows := make([]*domain.Workflow, 0, len(recs))
	for _, rec := range recs {
		var workflow domain.Workflow
		if err := fromRecord(rec, &workflow); err != nil {
			continue
		}
		workflows = append(workflows, &workflow)
	}
	return workflows, nil
}

func (r *localWorkflowRepository) Update(workflow *domain.Workflow) error {
	if _, err := r.store.Get("workflows", workflow.ID); err != nil {
		return fmt.Errorf("workflow %s: %w", workflow.ID, mapStoreErr(err))
	}
	rec, err := workflowRecord(workflow)
	if err != nil {
		return err
	}
	return r.store.Save("workflows", rec)
}

func (r *localWorkflowRepository) Delete(id string) error {
	if _, err := r.store.Get("workflows", id); err != nil {
		return fmt.Errorf("workflow %s: %w", id, mapStoreErr(err))
	}
	return r.store.Delete("workflows", id)
}

// --- versions ---

type localVersionRepository struct {
	store *store.Store
}

func NewLocalVersionRepository(s *store.Store) VersionRepository {
	return &localVersionRepository{store: s}
}

func (r *localVersionRepository) Save(version *domain.Version) error {
	rec, err := toRecord(version)
	if err != nil {
		return err
	}
	return r.store.Save("versions", rec)
}

func (r *localVersionRepository) FindByID(id string) (*domain.Version, error) {
	rec, err := r.store.Get("versions", id)
	if err != nil {
		return nil, fmt.Errorf("version %s: %w", id, mapStoreErr(err))
	}
	var version domain.Version
	if err := fromRecord(rec, &version); err != nil {
		return nil, err
	}
	return &version, nil
}

func (r *localVersionRepository) ListByWorkflow(workflowID string) ([]*domain.Version, error) {
	recs, err := r.store.Query("versions", "workflow_id", workflowID)
	if err != nil {
		return nil, err
	}
	versions := make([]*domain.Version, 0, len(recs))
	for _, rec := range recs {
		var version domain.Version
		if err := fromRecord(rec, &version); err != nil {
			continue
		}
		versions = append(versions, &version)
	}
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].VersionNumber < versions[j].VersionNumber
	})
	return versions, nil
}

func (r *localVersionRepository) Update(version *domain.Version) error {
	if _, err := r.store.Get("versions", version.ID); err != nil {
		return fmt.Errorf("version %s: %w", version.ID, mapStoreErr(err))
	}
	return r.Save(version)
}

func (r *localVersionRepository) Delete(id string) error {
	if _, err := r.store.Get("versions", id); err != nil {
		return fmt.Errorf("version %s: %w", id, mapStoreErr(err))
	}
	return r.store.Delete("versions", id)
}

// --- conflicts ---

type localConflictRepository struct {
	store *store.Store
}

func NewLocalConflictRepository(s *store.Store) ConflictRepository {
	return &localConflictRepository{store: s}
}

func conflictState(c *domain.Conflict) string {
	if c.Resolved() {
		return "resolved"
	}
	return "pending"
}

func (r *localConflictRepository) save(conflict *domain.Conflict) error {
	rec, err := toRecord(conflict)
	if err != nil {
		return err
	}
	rec["state"] = conflictState(conflict)
	rec["id"] = conflict.ConflictID
	return r.store.Save("conflicts", rec)
}

func (r *localConflictRepository) Create(conflict *domain.Conflict) error {
	return r.save(conflict)
}

func (r *localConflictRepository) Get(conflictID string) (*domain.Conflict, error) {
	rec, err := r.store.Get("conflicts", conflictID)
	if err != nil {
		return nil, fmt.Errorf("conflict %s: %w", conflictID, mapStoreErr(err))
	}
	var conflict domain.Conflict
	if err := fromRecord(rec, &conflict); err != nil {
		return nil, err
	}
	return &conflict, nil
}

func (r *localConflictRepository) ListPending() ([]*domain.Conflict, error) {
	recs, err := r.store.Query("conflicts", "state", "pending")
	if err != nil {
		return nil, err
	}
	conflicts := make([]*domain.Conflict, 0, len(recs))
	for _, rec := range recs {
		var conflict domain.Conflict
		if err := fromRecord(rec, &conflict); err != nil {
			continue
		}
		conflicts = append(conflicts, &conflict)
	}
	return conflicts, nil
}

func (r *localConflictRepository) MarkResolved(conflictID string, strategy domain.ResolutionStrategy, at time.Time) error {
	conflict, err := r.Get(conflictID)
	if err != nil {
		return err
	}
	conflict.ResolvedAt = &at
	conflict.Resolution = &strategy
	return r.save(conflict)
}

func (r *localConflictRepository) SaveResolved(record *domain.ResolvedRecord) error {
	rec, err := toRecord(record)
	if err != nil {
		return err
	}
	rec["id"] = record.ConflictID
	return r.store.Save("resolutions", rec)
}

func (r *localConflictRepository) GetResolved(conflictID string) (*domain.ResolvedRecord, error) {
	rec, err := r.store.Get("resolutions", conflictID)
	if err != nil {
		return nil, fmt.Errorf("resolution %s: %w", conflictID, mapStoreErr(err))
	}
	var record domain.ResolvedRecord
	if err := fromRecord(rec, &record); err != nil {
		return nil, err
	}
	return &record, nil
}
