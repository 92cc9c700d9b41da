package backend

import (
	"encoding/json"
	"sort"

	"flowsync/internal/domain"
	"flowsync/internal/store"
)

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

// sortTasks orders by creation time so replay preserves mutation order.
func sortTasks(tasks []*domain.SyncTask) {
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreateTime.Before(tasks[j].CreateTime)
	})
}
