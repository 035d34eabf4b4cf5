package meili

import (
	"context"
	"fmt"
	"time"

	meilisearch "github.com/meilisearch/meilisearch-go"
)

// taskPollInterval is how often task status is polled.
const taskPollInterval = 50 * time.Millisecond

// backend is the subset of Meilisearch used by the indexer.
type backend interface {
	Health() error
	EnsureIndex(uid, primaryKey string, filterable []string) error
	AddDocuments(uid string, records []map[string]any) (int64, error)
	DeleteDocument(uid, id string) (int64, error)

	// WaitTask blocks until the task finishes. A failed task returns its
	// error message with a nil error.
	WaitTask(ctx context.Context, taskUID int64) (failure string, err error)
}

// client implements backend on meilisearch-go.
type client struct {
	sm meilisearch.ServiceManager
}

func newClient(url, apiKey string) *client {
	return &client{sm: meilisearch.New(url, meilisearch.WithAPIKey(apiKey))}
}

func (c *client) Health() error {
	_, err := c.sm.Health()
	return err
}

func (c *client) EnsureIndex(uid, primaryKey string, filterable []string) error {
	task, err := c.sm.CreateIndex(&meilisearch.IndexConfig{Uid: uid, PrimaryKey: primaryKey})
	if err == nil {
		// An existing index fails the task; that is fine.
		_, _ = c.sm.WaitForTask(task.TaskUID, taskPollInterval)
	}

	attrs := make([]interface{}, len(filterable))
	for i, v := range filterable {
		attrs[i] = v
	}
	task, err = c.sm.Index(uid).UpdateFilterableAttributes(&attrs)
	if err != nil {
		return fmt.Errorf("update filterable attributes: %w", err)
	}
	if _, err := c.sm.WaitForTask(task.TaskUID, taskPollInterval); err != nil {
		return fmt.Errorf("wait for settings task: %w", err)
	}
	return nil
}

func (c *client) AddDocuments(uid string, records []map[string]any) (int64, error) {
	task, err := c.sm.Index(uid).AddDocuments(records, nil)
	if err != nil {
		return 0, err
	}
	return task.TaskUID, nil
}

func (c *client) DeleteDocument(uid, id string) (int64, error) {
	task, err := c.sm.Index(uid).DeleteDocument(id, nil)
	if err != nil {
		return 0, err
	}
	return task.TaskUID, nil
}

func (c *client) WaitTask(ctx context.Context, taskUID int64) (string, error) {
	type result struct {
		task *meilisearch.Task
		err  error
	}
	done := make(chan result, 1)
	go func() {
		task, err := c.sm.WaitForTask(taskUID, taskPollInterval)
		done <- result{task, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", r.err
		}
		if r.task.Status == meilisearch.TaskStatusFailed {
			return r.task.Error.Message, nil
		}
		return "", nil
	}
}
