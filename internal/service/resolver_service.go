package service

import (
	"errors"
	"fmt"
	"time"

	"flowsync/internal/domain"
	"flowsync/internal/repository"

	"github.com/google/uuid"
)

// ResolverService turns a detected local/remote divergence into a single
// reconciled record. Detection diffing is delegated to the ledger's compare
// rule; resolution applies one of four caller-selected strategies.
type ResolverService struct {
	conflictRepo repository.ConflictRepository
}

func NewResolverService(conflictRepo repository.ConflictRepository) *ResolverService {
	return &ResolverService{conflictRepo: conflictRepo}
}

// Detect compares a local draft against the remote current record. It returns
// nil when the two agree; otherwise the conflict is persisted and returned.
func (s *ResolverService) Detect(workflowID string, local, remote map[string]any, localTime, remoteTime time.Time) (*domain.Conflict, error) {
	diffs, _ := CompareContent(remote, local)
	if len(diffs) == 0 {
		return nil, nil
	}

	var localChanges, remoteChanges []domain.FieldChange
	for _, diff := range diffs {
		switch diff.ChangeType {
		case domain.ChangeAdded:
			// Present locally only.
			localChanges = append(localChanges, domain.FieldChange{
				Field: diff.Field, Type: domain.FieldAdd, Value: diff.NewValue,
			})
			remoteChanges = append(remoteChanges, domain.FieldChange{
				Field: diff.Field, Type: domain.FieldDelete,
			})
		case domain.ChangeDeleted:
			// Present remotely only.
			localChanges = append(localChanges, domain.FieldChange{
				Field: diff.Field, Type: domain.FieldDelete,
			})
			remoteChanges = append(remoteChanges, domain.FieldChange{
				Field: diff.Field, Type: domain.FieldAdd, Value: diff.OldValue,
			})
		default:
			localChanges = append(localChanges, domain.FieldChange{
				Field: diff.Field, Type: domain.FieldModify, Value: diff.NewValue,
			})
			remoteChanges = append(remoteChanges, domain.FieldChange{
				Field: diff.Field, Type: domain.FieldModify, Value: diff.OldValue,
			})
		}
	}

	conflict := &domain.Conflict{
		ConflictID:    uuid.New().String(),
		WorkflowID:    workflowID,
		LocalData:     domain.ConflictSide{Changes: localChanges, UpdateTime: localTime},
		RemoteData:    domain.ConflictSide{Changes: remoteChanges, UpdateTime: remoteTime},
		ConflictCount: len(diffs),
		DetectedAt:    time.Now(),
	}

	if err := s.conflictRepo.Create(conflict); err != nil {
		return nil, err
	}

	return conflict, nil
}

// Reconcile runs detection and reports a divergence as a *ConflictError so
// callers can resolve it before retrying their write.
func (s *ResolverService) Reconcile(workflowID string, local, remote map[string]any, localTime, remoteTime time.Time) error {
	conflict, err := s.Detect(workflowID, local, remote, localTime, remoteTime)
	if err != nil {
		return err
	}
	if conflict != nil {
		return &ConflictError{Conflict: conflict}
	}
	return nil
}

func (s *ResolverService) GetDetail(conflictID string) (*domain.Conflict, error) {
	return s.conflictRepo.Get(conflictID)
}

func (s *ResolverService) ListPending() ([]*domain.Conflict, error) {
	return s.conflictRepo.ListPending()
}

// DefaultSelection biases toward not silently discarding local edits: every
// locally changed field starts out selected as local.
func DefaultSelection(conflict *domain.Conflict) map[string]string {
	selection := make(map[string]string, len(conflict.LocalData.Changes))
	for _, change := range conflict.LocalData.Changes {
		selection[change.Field] = domain.SideLocal
	}
	return selection
}

// Resolve is terminal for the conflict. Retrying with the same conflict id
// and strategy returns the stored reconciled record instead of applying a
// second mutation; retrying with a different strategy is rejected.
func (s *ResolverService) Resolve(resolution *domain.Resolution) (*domain.ResolvedRecord, error) {
	conflict, err := s.conflictRepo.Get(resolution.ConflictID)
	if err != nil {
		return nil, err
	}

	if conflict.Resolved() {
		if conflict.Resolution != nil && *conflict.Resolution == resolution.ResolutionType {
			record, err := s.conflictRepo.GetResolved(resolution.ConflictID)
			if err == nil {
				return record, nil
			}
			if !errors.Is(err, ErrNotFound) {
				return nil, err
			}
		}
		return nil, fmt.Errorf("%w: conflict already resolved", ErrInvalidOperation)
	}

	// The reconciled record is assembled fully in memory before anything is
	// persisted.
	fields, err := s.assemble(conflict, resolution)
	if err != nil {
		return nil, err
	}

	record := &domain.ResolvedRecord{
		ConflictID:     conflict.ConflictID,
		WorkflowID:     conflict.WorkflowID,
		ResolutionType: resolution.ResolutionType,
		Fields:         fields,
		ResolvedAt:     time.Now(),
		Notes:          resolution.Notes,
	}

	if err := s.conflictRepo.SaveResolved(record); err != nil {
		return nil, err
	}
	if err := s.conflictRepo.MarkResolved(conflict.ConflictID, resolution.ResolutionType, record.ResolvedAt); err != nil {
		return nil, err
	}

	return record, nil
}

func (s *ResolverService) assemble(conflict *domain.Conflict, resolution *domain.Resolution) (map[string]any, error) {
	switch resolution.ResolutionType {
	case domain.ResolutionClient:
		return sideFields(conflict.LocalData), nil

	case domain.ResolutionServer:
		return sideFields(conflict.RemoteData), nil

	case domain.ResolutionTimestamp:
		// Whole-record grain: the later side wins every field, including
		// fields the losing side alone had changed. Documented limitation.
		if conflict.RemoteData.UpdateTime.After(conflict.LocalData.UpdateTime) {
			return sideFields(conflict.RemoteData), nil
		}
		return sideFields(conflict.LocalData), nil

	case domain.ResolutionMerge:
		local := sideFields(conflict.LocalData)
		remote := sideFields(conflict.RemoteData)

		fields := make(map[string]any, len(local)+len(remote))
		for field := range union(local, remote) {
			side := resolution.SelectedChanges[field]
			if side == "" {
				side = domain.SideLocal
			}
			switch side {
			case domain.SideLocal:
				if v, ok := local[field]; ok {
					fields[field] = v
				}
			case domain.SideRemote:
				if v, ok := remote[field]; ok {
					fields[field] = v
				}
			default:
				return nil, fmt.Errorf("%w: unknown side %q for field %s", ErrInvalidOperation, side, field)
			}
		}
		return fields, nil

	default:
		return nil, fmt.Errorf("%w: unknown resolution strategy %q", ErrInvalidOperation, resolution.ResolutionType)
	}
}

// sideFields materializes one side's change set; DELETE changes contribute no
// value, so the field is absent from that side's reconstruction.
func sideFields(side domain.ConflictSide) map[string]any {
	fields := make(map[string]any, len(side.Changes))
	for _, change := range side.Changes {
		if change.Type == domain.FieldDelete {
			continue
		}
		fields[change.Field] = change.Value
	}
	return fields
}

func union(a, b map[string]any) map[string]struct{} {
	set := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		set[k] = struct{}{}
	}
	for k := range b {
		set[k] = struct{}{}
	}
	return set
}
