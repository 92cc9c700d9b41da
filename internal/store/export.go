package store

import (
	"encoding/json"
	"fmt"
	"time"
)

const exportFormatVersion = "1.0.0"

type SnapshotMetadata struct {
	ExportTime   time.Time `json:"exportTime"`
	Version      string    `json:"version"`
	DBName       string    `json:"dbName"`
	StoreCount   int       `json:"storeCount"`
	TotalRecords int       `json:"totalRecords"`
}

// Snapshot is the whole-store export document: one array per collection plus
// a metadata block. It is the unit exchanged for backup and migration, and
// what Import falls back to when a restore is needed.
type Snapshot struct {
	Collections map[string][]Record
	Metadata    SnapshotMetadata
}

func (s *Snapshot) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(s.Collections)+1)
	for name, recs := range s.Collections {
		if recs == nil {
			recs = []Record{}
		}
		doc[name] = recs
	}
	doc["metadata"] = s.Metadata
	return json.Marshal(doc)
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	s.Collections = make(map[string][]Record)
	for name, raw := range doc {
		if name == "metadata" {
			if err := json.Unmarshal(raw, &s.Metadata); err != nil {
				return err
			}
			continue
		}
		var recs []Record
		if err := json.Unmarshal(raw, &recs); err != nil {
			return err
		}
		s.Collections[name] = recs
	}
	return nil
}

// Export captures the full contents of every declared collection along with
// metadata computed at export time.
func (s *Store) Export() (*Snapshot, error) {
	snapshot := &Snapshot{Collections: make(map[string][]Record, len(s.schema))}

	total := 0
	for _, spec := range s.schema {
		recs, err := s.GetAll(spec.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to export %s: %w", spec.Name, err)
		}
		if recs == nil {
			recs = []Record{}
		}
		snapshot.Collections[spec.Name] = recs
		total += len(recs)
	}

	snapshot.Metadata = SnapshotMetadata{
		ExportTime:   time.Now(),
		Version:      exportFormatVersion,
		DBName:       s.path,
		StoreCount:   len(s.schema),
		TotalRecords: total,
	}
	return snapshot, nil
}

// Import replaces the named collections with the snapshot's contents. A backup
// is captured first; if any step fails the backup is restored so a failed
// import is a no-op relative to the pre-import state.
func (s *Store) Import(data *Snapshot) error {
	backup, err := s.Export()
	if err != nil {
		return fmt.Errorf("failed to back up before import: %w", err)
	}

	if err := s.replaceCollections(data); err != nil {
		if restoreErr := s.replaceCollections(backup); restoreErr != nil {
			return fmt.Errorf("import failed (%w) and backup restore failed: %v", err, restoreErr)
		}
		return fmt.Errorf("import failed, backup restored: %w", err)
	}
	return nil
}

func (s *Store) replaceCollections(data *Snapshot) error {
	for name, recs := range data.Collections {
		// Collections the schema does not declare are skipped, not fatal.
		if _, err := s.spec(name); err != nil {
			continue
		}
		if err := s.Clear(name); err != nil {
			return err
		}
		if len(recs) > 0 {
			if err := s.SaveAll(name, recs); err != nil {
				return err
			}
		}
	}
	return nil
}
