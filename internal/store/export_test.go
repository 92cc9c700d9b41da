package store

import (
	"encoding/json"
	"testing"
)

func seedStore(t *testing.T, s *Store) {
	t.Helper()
	if err := s.SaveAll("workflows", []Record{
		{"id": "wf-1", "alias": "billing", "category": "finance"},
		{"id": "wf-2", "alias": "onboarding", "category": "hr"},
	}); err != nil {
		t.Fatalf("seed workflows: %v", err)
	}
	if err := s.SaveAll("nodes", []Record{
		{"id": "n1", "workflowId": "wf-1", "type": "task"},
	}); err != nil {
		t.Fatalf("seed nodes: %v", err)
	}
}

func TestExport_Metadata(t *testing.T) {
	s := newTestStore(t)
	seedStore(t, s)

	snap, err := s.Export()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if snap.Metadata.TotalRecords != 3 {
		t.Errorf("expected 3 total records, got %d", snap.Metadata.TotalRecords)
	}
	if snap.Metadata.StoreCount != len(DefaultSchema()) {
		t.Errorf("expected store count %d, got %d", len(DefaultSchema()), snap.Metadata.StoreCount)
	}
	if snap.Metadata.ExportTime.IsZero() {
		t.Error("expected export time to be set")
	}
	if len(snap.Collections["workflows"]) != 2 {
		t.Errorf("expected 2 workflows, got %d", len(snap.Collections["workflows"]))
	}
	// Empty collections still appear in the document.
	if snap.Collections["syncQueue"] == nil {
		t.Error("expected syncQueue array present")
	}
}

func TestExportImport_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	seedStore(t, s)

	before, err := s.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	if err := s.Import(before); err != nil {
		t.Fatalf("import: %v", err)
	}

	after, err := s.Export()
	if err != nil {
		t.Fatalf("re-export: %v", err)
	}

	if after.Metadata.TotalRecords != before.Metadata.TotalRecords {
		t.Errorf("total records changed: %d -> %d",
			before.Metadata.TotalRecords, after.Metadata.TotalRecords)
	}
	for name := range before.Collections {
		if len(after.Collections[name]) != len(before.Collections[name]) {
			t.Errorf("collection %s changed: %d -> %d", name,
				len(before.Collections[name]), len(after.Collections[name]))
		}
	}
}

func TestImport_RollbackOnFailure(t *testing.T) {
	s := newTestStore(t)
	seedStore(t, s)

	before, err := s.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	bad := &Snapshot{Collections: map[string][]Record{
		"workflows": {
			{"id": "wf-9", "alias": "ok"},
			{"alias": "missing-id"},
		},
	}}

	if err := s.Import(bad); err == nil {
		t.Fatal("expected import to fail")
	}

	after, err := s.Export()
	if err != nil {
		t.Fatalf("re-export: %v", err)
	}
	if after.Metadata.TotalRecords != before.Metadata.TotalRecords {
		t.Errorf("expected pre-import state restored, records %d -> %d",
			before.Metadata.TotalRecords, after.Metadata.TotalRecords)
	}
	if _, err := s.Get("workflows", "wf-1"); err != nil {
		t.Errorf("expected original workflow restored, got %v", err)
	}
	if _, err := s.Get("workflows", "wf-9"); err == nil {
		t.Error("expected partial import discarded")
	}
}

func TestSnapshot_JSONShape(t *testing.T) {
	s := newTestStore(t)
	seedStore(t, s)

	snap, _ := s.Export()
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := doc["metadata"]; !ok {
		t.Error("expected top-level metadata block")
	}
	if _, ok := doc["workflows"]; !ok {
		t.Error("expected top-level workflows array")
	}

	var back Snapshot
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if back.Metadata.TotalRecords != snap.Metadata.TotalRecords {
		t.Errorf("metadata lost in round trip")
	}
}
