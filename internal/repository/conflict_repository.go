package repository

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"flowsync/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

type ConflictRepository interface {
	Create(conflict *domain.Conflict) error
	Get(conflictID string) (*domain.Conflict, error)
	ListPending() ([]*domain.Conflict, error)
	MarkResolved(conflictID string, strategy domain.ResolutionStrategy, at time.Time) error
	SaveResolved(record *domain.ResolvedRecord) error
	GetResolved(conflictID string) (*domain.ResolvedRecord, error)
}

type conflictRepository struct {
	client *kivik.Client
	dbName string
}

func NewConflictRepository(client *kivik.Client, dbName string) ConflictRepository {
	return &conflictRepository{
		client: client,
		dbName: dbName,
	}
}

func conflictDocID(id string) string {
	return fmt.Sprintf("conflict:%s", id)
}

func resolutionDocID(id string) string {
	return fmt.Sprintf("resolution:%s", id)
}

func (r *conflictRepository) Create(conflict *domain.Conflict) error {
	db := r.client.DB(r.dbName)

	_, err := db.Put(context.Background(), conflictDocID(conflict.ConflictID), conflict)
	if err != nil {
		return fmt.Errorf("failed to create conflict: %w", err)
	}

	return nil
}

func (r *conflictRepository) Get(conflictID string) (*domain.Conflict, error) {
	db := r.client.DB(r.dbName)

	row := db.Get(context.Background(), conflictDocID(conflictID))

	var conflict domain.Conflict
	if err := row.ScanDoc(&conflict); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, fmt.Errorf("conflict %s: %w", conflictID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get conflict: %w", err)
	}

	return &conflict, nil
}

func (r *conflictRepository) ListPending() ([]*domain.Conflict, error) {
	db := r.client.DB(r.dbName)

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"conflict_count": map[string]interface{}{"$exists": true},
			"resolved_at":    map[string]interface{}{"$exists": false},
		},
	}

	rows := db.Find(context.Background(), query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []*domain.Conflict
	for rows.Next() {
		var conflict domain.Conflict
		if err := rows.ScanDoc(&conflict); err != nil {
			continue
		}
		conflicts = append(conflicts, &conflict)
	}

	return conflicts, nil
}

func (r *conflictRepository) MarkResolved(conflictID string, strategy domain.ResolutionStrategy, at time.Time) error {
	db := r.client.DB(r.dbName)
	docID := conflictDocID(conflictID)

	var existingDoc map[string]interface{}
	row := db.Get(context.Background(), docID)
	if err := row.ScanDoc(&existingDoc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return fmt.Errorf("conflict %s: %w", conflictID, ErrNotFound)
		}
		return fmt.Errorf("failed to fetch conflict for resolve: %w", err)
	}

	existingDoc["resolved_at"] = at
	existingDoc["resolution"] = strategy

	_, err := db.Put(context.Background(), docID, existingDoc)
	if err != nil {
		return fmt.Errorf("failed to mark conflict resolved: %w", err)
	}

	return nil
}

func (r *conflictRepository) SaveResolved(record *domain.ResolvedRecord) error {
	db := r.client.DB(r.dbName)

	_, err := db.Put(context.Background(), resolutionDocID(record.ConflictID), record)
	if err != nil {
		return fmt.Errorf("failed to save resolution: %w", err)
	}

	return nil
}

func (r *conflictRepository) GetResolved(conflictID string) (*domain.ResolvedRecord, error) {
	db := r.client.DB(r.dbName)

	row := db.Get(context.Background(), resolutionDocID(conflictID))

	var record domain.ResolvedRecord
	if err := row.ScanDoc(&record); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, fmt.Errorf("resolution %s: %w", conflictID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get resolution: %w", err)
	}

	return &record, nil
}
