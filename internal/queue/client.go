package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/compasshq/compass-backend/internal/config"
)

type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueDocumentProcess schedules exactly one pipeline run for a document.
// MaxRetry is zero: a stage failure is terminal for the run and lands on
// the record, not back on the queue. The task ID pins enqueueing to one
// in-flight run per document.
func (c *Client) EnqueueDocumentProcess(ctx context.Context, docID uuid.UUID) error {
	payload, err := json.Marshal(DocumentProcessPayload{DocumentID: docID.String()})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	task := asynq.NewTask(TypeDocumentProcess, payload)
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.TaskID(TypeDocumentProcess+":"+docID.String()),
		asynq.MaxRetry(0),
		asynq.Timeout(20*time.Minute),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		slog.Warn("pipeline run already scheduled", "document_id", docID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeDocumentProcess, err)
	}
	return nil
}
