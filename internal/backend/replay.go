package backend

import (
	"fmt"
	"log"
	"time"

	"flowsync/internal/domain"

	"github.com/cenkalti/backoff"
)

// Replayer drains the offline sync queue against the server once the channel
// reports connectivity. Each task is retried a bounded number of times with a
// constant interval before it is marked failed and left for the next drain.
type Replayer struct {
	local      *LocalBackend
	remote     *RemoteBackend
	interval   time.Duration
	maxRetries uint64
}

func NewReplayer(local *LocalBackend, remote *RemoteBackend, interval time.Duration, maxRetries int) *Replayer {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Replayer{
		local:      local,
		remote:     remote,
		interval:   interval,
		maxRetries: uint64(maxRetries),
	}
}

// Replay pushes every pending task in creation order. It returns how many
// tasks succeeded; individual failures are recorded on the task, not fatal.
func (r *Replayer) Replay() (int, error) {
	tasks, err := r.local.PendingTasks()
	if err != nil {
		return 0, fmt.Errorf("failed to read sync queue: %w", err)
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	log.Printf("[REPLAY] draining %d pending sync tasks", len(tasks))

	succeeded := 0
	for _, task := range tasks {
		task.Attempts++

		policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(r.interval), r.maxRetries)
		err := backoff.Retry(func() error {
			return r.apply(task)
		}, policy)

		if err != nil {
			log.Printf("[REPLAY] task %s (%s %s) failed: %v", task.ID, task.Operation, task.EntityID, err)
			if err := r.local.markTask(task, domain.SyncFailed); err != nil {
				log.Printf("[REPLAY] failed to mark task %s: %v", task.ID, err)
			}
			continue
		}

		if err := r.local.markTask(task, domain.SyncSuccess); err != nil {
			log.Printf("[REPLAY] failed to mark task %s: %v", task.ID, err)
		}
		succeeded++
	}

	log.Printf("[REPLAY] drained queue: %d/%d tasks succeeded", succeeded, len(tasks))
	return succeeded, nil
}

func (r *Replayer) apply(task *domain.SyncTask) error {
	switch task.Operation {
	case "create", "update":
		var workflow domain.Workflow
		if err := fromRecord(task.Payload, &workflow); err != nil {
			return backoff.Permanent(fmt.Errorf("malformed task payload: %w", err))
		}
		return r.push(&workflow, task.Operation)

	case "delete":
		if err := r.remote.Delete(task.EntityID); err != nil {
			return err
		}
		return nil

	default:
		return backoff.Permanent(fmt.Errorf("unknown operation %q", task.Operation))
	}
}

// push upserts: an offline create may race a record that already exists on
// the server, so create falls back to update.
func (r *Replayer) push(workflow *domain.Workflow, operation string) error {
	if operation == "create" {
		if _, err := r.remote.Create(&domain.CreateWorkflowRequest{
			Name:        workflow.Name,
			Alias:       workflow.Alias,
			Category:    workflow.Category,
			Description: workflow.Description,
			Config:      workflow.Config,
			Content:     workflow.Content,
			CreatedBy:   workflow.CreatedBy,
		}); err == nil {
			return nil
		}
	}

	_, err := r.remote.Update(workflow.ID, &domain.UpdateWorkflowRequest{
		Name:        &workflow.Name,
		Category:    &workflow.Category,
		Description: &workflow.Description,
		Status:      &workflow.Status,
		Config:      workflow.Config,
		Content:     workflow.Content,
	})
	return err
}
