package service

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"flowsync/internal/domain"
	"flowsync/internal/repository"

	"github.com/google/uuid"
)

const maxTagsPerVersion = 5

// LedgerService keeps the snapshot history of workflows: monotonically
// numbered versions, structural diffs, rollback and tagging.
type LedgerService struct {
	versionRepo repository.VersionRepository
}

func NewLedgerService(versionRepo repository.VersionRepository) *LedgerService {
	return &LedgerService{versionRepo: versionRepo}
}

func (s *LedgerService) Create(req *domain.CreateVersionRequest) (*domain.Version, error) {
	versions, err := s.versionRepo.ListByWorkflow(req.WorkflowID)
	if err != nil {
		return nil, err
	}

	var nextNumber int64 = 1
	if len(versions) > 0 {
		nextNumber = versions[len(versions)-1].VersionNumber + 1
	}

	name := req.VersionName
	if name == "" {
		name = fmt.Sprintf("v%d", nextNumber)
	}

	data, err := json.Marshal(req.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to size version content: %w", err)
	}

	version := &domain.Version{
		ID:            uuid.New().String(),
		WorkflowID:    req.WorkflowID,
		VersionNumber: nextNumber,
		VersionName:   name,
		Description:   req.Description,
		CreatedBy:     req.CreatedBy,
		CreateTime:    time.Now(),
		IsCurrent:     req.SetCurrent,
		DataSize:      int64(len(data)),
		Content:       req.Content,
	}

	// Demote the previous current version before the new one takes over.
	if req.SetCurrent {
		for _, v := range versions {
			if v.IsCurrent {
				v.IsCurrent = false
				if err := s.versionRepo.Update(v); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := s.versionRepo.Save(version); err != nil {
		return nil, err
	}

	return version, nil
}

func (s *LedgerService) Get(versionID string) (*domain.Version, error) {
	return s.versionRepo.FindByID(versionID)
}

func (s *LedgerService) List(workflowID string) ([]*domain.Version, error) {
	return s.versionRepo.ListByWorkflow(workflowID)
}

// Compare diffs two snapshots field by field. Unchanged fields are omitted
// from the difference list but counted in the statistics.
func (s *LedgerService) Compare(versionID1, versionID2 string) (*domain.ComparisonResult, error) {
	v1, err := s.versionRepo.FindByID(versionID1)
	if err != nil {
		return nil, err
	}
	v2, err := s.versionRepo.FindByID(versionID2)
	if err != nil {
		return nil, err
	}

	diffs, stats := CompareContent(v1.Content, v2.Content)

	return &domain.ComparisonResult{
		Version1:    v1,
		Version2:    v2,
		Differences: diffs,
		Stats:       stats,
		CompareTime: time.Now(),
	}, nil
}

// CompareContent applies the fixed change-type rule to every field present in
// either snapshot, evaluated in order: added, deleted, modified, unchanged.
func CompareContent(old, new map[string]any) ([]domain.VersionDiff, domain.ComparisonStats) {
	fields := make(map[string]struct{}, len(old)+len(new))
	for f := range old {
		fields[f] = struct{}{}
	}
	for f := range new {
		fields[f] = struct{}{}
	}

	var diffs []domain.VersionDiff
	var stats domain.ComparisonStats
	stats.Total = len(fields)

	for field := range fields {
		oldValue, hasOld := old[field]
		newValue, hasNew := new[field]

		var changeType domain.ChangeType
		switch {
		case !hasOld && hasNew:
			changeType = domain.ChangeAdded
			stats.Added++
		case hasOld && !hasNew:
			changeType = domain.ChangeDeleted
			stats.Deleted++
		case !reflect.DeepEqual(oldValue, newValue):
			changeType = domain.ChangeModified
			stats.Modified++
		default:
			stats.Unchanged++
			continue
		}

		diffs = append(diffs, domain.VersionDiff{
			Field:      field,
			OldValue:   oldValue,
			NewValue:   newValue,
			ChangeType: changeType,
		})
	}

	return diffs, stats
}

// Rollback makes the target version current again without deleting the
// versions created after it.
func (s *LedgerService) Rollback(workflowID, versionID string) (*domain.Version, error) {
	target, err := s.versionRepo.FindByID(versionID)
	if err != nil {
		return nil, err
	}
	if target.WorkflowID != workflowID {
		return nil, fmt.Errorf("%w: version belongs to another workflow", ErrInvalidOperation)
	}
	if target.IsCurrent {
		return target, nil
	}

	versions, err := s.versionRepo.ListByWorkflow(workflowID)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if v.IsCurrent {
			v.IsCurrent = false
			if err := s.versionRepo.Update(v); err != nil {
				return nil, err
			}
		}
	}

	target.IsCurrent = true
	if err := s.versionRepo.Update(target); err != nil {
		return nil, err
	}

	return target, nil
}

func (s *LedgerService) Delete(versionID string) error {
	version, err := s.versionRepo.FindByID(versionID)
	if err != nil {
		return err
	}
	if version.IsCurrent {
		return fmt.Errorf("%w: cannot delete the current version", ErrInvalidOperation)
	}
	return s.versionRepo.Delete(versionID)
}

// BatchDelete rejects the whole batch when any target is current.
func (s *LedgerService) BatchDelete(versionIDs []string) error {
	versions := make([]*domain.Version, 0, len(versionIDs))
	for _, id := range versionIDs {
		version, err := s.versionRepo.FindByID(id)
		if err != nil {
			return err
		}
		if version.IsCurrent {
			return fmt.Errorf("%w: cannot delete the current version", ErrInvalidOperation)
		}
		versions = append(versions, version)
	}
	for _, version := range versions {
		if err := s.versionRepo.Delete(version.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *LedgerService) Tag(versionID, tag string) (*domain.Version, error) {
	version, err := s.versionRepo.FindByID(versionID)
	if err != nil {
		return nil, err
	}

	for _, existing := range version.Tags {
		if existing == tag {
			return version, nil
		}
	}
	if len(version.Tags) >= maxTagsPerVersion {
		return nil, fmt.Errorf("%w: at most %d tags per version", ErrInvalidOperation, maxTagsPerVersion)
	}

	version.Tags = append(version.Tags, tag)
	if err := s.versionRepo.Update(version); err != nil {
		return nil, err
	}
	return version, nil
}

func (s *LedgerService) Export(versionID string) (*domain.VersionExport, error) {
	version, err := s.versionRepo.FindByID(versionID)
	if err != nil {
		return nil, err
	}
	return &domain.VersionExport{
		Version:    version,
		ExportTime: time.Now(),
		Format:     "json",
	}, nil
}
