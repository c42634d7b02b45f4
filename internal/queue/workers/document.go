package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/compasshq/compass-backend/internal/document"
	"github.com/compasshq/compass-backend/internal/models"
	"github.com/compasshq/compass-backend/internal/pipeline"
	"github.com/compasshq/compass-backend/internal/queue"
	"github.com/compasshq/compass-backend/internal/storage"
)

// DocumentWorker bridges the task queue and the pipeline: it resolves the
// document, pulls the blob back out of storage and hands both to the
// orchestrator.
type DocumentWorker struct {
	docSvc  *document.Service
	storage storage.Storage
	runner  *pipeline.Runner
}

func NewDocumentWorker(docSvc *document.Service, store storage.Storage, runner *pipeline.Runner) *DocumentWorker {
	return &DocumentWorker{
		docSvc:  docSvc,
		storage: store,
		runner:  runner,
	}
}

func (w *DocumentWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.DocumentProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	docID, err := uuid.Parse(payload.DocumentID)
	if err != nil {
		return fmt.Errorf("parse document ID: %w", err)
	}

	doc, err := w.docSvc.GetByID(ctx, docID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			slog.Warn("document deleted before processing", "document_id", docID)
			return nil
		}
		return fmt.Errorf("get document: %w", err)
	}

	reader, err := w.storage.Download(ctx, doc.StorageBucket, doc.StorageKey)
	if err != nil {
		if mfErr := w.docSvc.MarkFailed(ctx, docID, "failed to read stored file: "+err.Error()); mfErr != nil {
			slog.Error("failed to record storage error", "document_id", docID, "error", mfErr)
		}
		return fmt.Errorf("download file: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		if mfErr := w.docSvc.MarkFailed(ctx, docID, "failed to read stored file: "+err.Error()); mfErr != nil {
			slog.Error("failed to record storage error", "document_id", docID, "error", mfErr)
		}
		return fmt.Errorf("read file: %w", err)
	}

	return w.runner.Run(ctx, docID, data, doc.ContentType, doc.OriginalFilename)
}
