package backend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"flowsync/internal/domain"
)

func newReplayServer(t *testing.T, fail *atomic.Bool) (*httptest.Server, *atomic.Int64) {
	t.Helper()

	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if fail.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"id": "srv-1"},
		})
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func TestReplayer_DrainsQueue(t *testing.T) {
	st := newTestStore(t)
	local := NewLocalBackend(st)

	var fail atomic.Bool
	server, _ := newReplayServer(t, &fail)
	remote := NewRemoteBackend(server.URL, nil)

	local.Create(&domain.CreateWorkflowRequest{Name: "A", Alias: "a"})
	local.Create(&domain.CreateWorkflowRequest{Name: "B", Alias: "b"})

	replayer := NewReplayer(local, remote, 10*time.Millisecond, 3)
	succeeded, err := replayer.Replay()
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if succeeded != 2 {
		t.Errorf("succeeded = %d, want 2", succeeded)
	}

	pending, err := local.PendingTasks()
	if err != nil {
		t.Fatalf("PendingTasks() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("queue still holds %d pending tasks", len(pending))
	}

	recs, err := st.Query("syncQueue", "status", string(domain.SyncSuccess))
	if err != nil {
		t.Fatalf("Query(syncQueue) error = %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("got %d succeeded tasks, want 2", len(recs))
	}
}

func TestReplayer_MarksFailedAfterRetries(t *testing.T) {
	st := newTestStore(t)
	local := NewLocalBackend(st)

	var fail atomic.Bool
	fail.Store(true)
	server, requests := newReplayServer(t, &fail)
	remote := NewRemoteBackend(server.URL, nil)

	local.Create(&domain.CreateWorkflowRequest{Name: "A", Alias: "a"})

	replayer := NewReplayer(local, remote, time.Millisecond, 2)
	succeeded, err := replayer.Replay()
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if succeeded != 0 {
		t.Errorf("succeeded = %d, want 0", succeeded)
	}

	// create falls back to update, each attempted initial + 2 retries.
	if requests.Load() == 0 {
		t.Error("server should have been attempted")
	}

	recs, err := st.Query("syncQueue", "status", string(domain.SyncFailed))
	if err != nil {
		t.Fatalf("Query(syncQueue) error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d failed tasks, want 1", len(recs))
	}
	var task domain.SyncTask
	if err := fromRecord(recs[0], &task); err != nil {
		t.Fatal(err)
	}
	if task.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", task.Attempts)
	}

	// A later drain sees no pending work; failed tasks stay put.
	if n, _ := replayer.Replay(); n != 0 {
		t.Errorf("second Replay() = %d, want 0", n)
	}
}

func TestReplayer_EmptyQueue(t *testing.T) {
	st := newTestStore(t)
	local := NewLocalBackend(st)

	var fail atomic.Bool
	server, requests := newReplayServer(t, &fail)
	remote := NewRemoteBackend(server.URL, nil)

	replayer := NewReplayer(local, remote, time.Millisecond, 3)
	if n, err := replayer.Replay(); err != nil || n != 0 {
		t.Errorf("Replay() = (%d, %v), want (0, nil)", n, err)
	}
	if requests.Load() != 0 {
		t.Error("empty queue should not touch the server")
	}
}
