package repository

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"flowsync/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

type VersionRepository interface {
	Save(version *domain.Version) error
	FindByID(id string) (*domain.Version, error)
	ListByWorkflow(workflowID string) ([]*domain.Version, error)
	Update(version *domain.Version) error
	Delete(id string) error
}

type versionRepository struct {
	client *kivik.Client
	dbName string
}

func NewVersionRepository(client *kivik.Client, dbName string) VersionRepository {
	return &versionRepository{
		client: client,
		dbName: dbName,
	}
}

func versionDocID(id string) string {
	return fmt.Sprintf("version:%s", id)
}

func (r *versionRepository) Save(version *domain.Version) error {
	db := r.client.DB(r.dbName)

	_, err := db.Put(context.Background(), versionDocID(version.ID), version)
	if err != nil {
		return fmt.Errorf("failed to save version: %w", err)
	}

	return nil
}

func (r *versionRepository) FindByID(id string) (*domain.Version, error) {
	db := r.client.DB(r.dbName)

	row := db.Get(context.Background(), versionDocID(id))

	var version domain.Version
	if err := row.ScanDoc(&version); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, fmt.Errorf("version %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find version: %w", err)
	}

	return &version, nil
}

func (r *versionRepository) ListByWorkflow(workflowID string) ([]*domain.Version, error) {
	db := r.client.DB(r.dbName)

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"workflow_id":    workflowID,
			"version_number": map[string]interface{}{"$exists": true},
		},
	}

	rows := db.Find(context.Background(), query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []*domain.Version
	for rows.Next() {
		var version domain.Version
		if err := rows.ScanDoc(&version); err != nil {
			continue
		}
		versions = append(versions, &version)
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].VersionNumber < versions[j].VersionNumber
	})

	return versions, nil
}

// Update rewrites a version document. Only tags and the current flag change
// after creation; callers pass the full version for the rewrite.
func (r *versionRepository) Update(version *domain.Version) error {
	db := r.client.DB(r.dbName)
	docID := versionDocID(version.ID)

	var existingDoc map[string]interface{}
	row := db.Get(context.Background(), docID)
	if err := row.ScanDoc(&existingDoc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return fmt.Errorf("version %s: %w", version.ID, ErrNotFound)
		}
		return fmt.Errorf("failed to fetch version for update: %w", err)
	}

	existingDoc["tags"] = version.Tags
	existingDoc["is_current"] = version.IsCurrent

	_, err := db.Put(context.Background(), docID, existingDoc)
	if err != nil {
		return fmt.Errorf("failed to update version: %w", err)
	}

	return nil
}

func (r *versionRepository) Delete(id string) error {
	db := r.client.DB(r.dbName)
	docID := versionDocID(id)

	rev, err := db.GetRev(context.Background(), docID)
	if err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return fmt.Errorf("version %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to fetch version for delete: %w", err)
	}

	if _, err := db.Delete(context.Background(), docID, rev); err != nil {
		return fmt.Errorf("failed to delete version: %w", err)
	}

	return nil
}
