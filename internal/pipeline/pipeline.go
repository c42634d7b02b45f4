// Package pipeline drives a document through its processing states:
//
//	uploaded -> processing -> ocr_complete -> completed
//
// with failed reachable from processing, and ocr_complete doubling as a
// parking state when extraction fails after a successful OCR pass. Every
// transition is persisted before the next stage runs, so a crash leaves the
// record at the last completed stage instead of rolling back to uploaded.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/compasshq/compass-backend/internal/models"
)

// RecordStore is the slice of the document service the orchestrator needs.
// Each method commits one transition.
type RecordStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	SaveOCRResult(ctx context.Context, id uuid.UUID, res *models.OCRResult) error
	SaveInvoiceData(ctx context.Context, id uuid.UUID, data *models.InvoiceData) error
	SetExtractionError(ctx context.Context, id uuid.UUID, msg string) error
	MarkFailed(ctx context.Context, id uuid.UUID, msg string) error
}

// OCRClient is the first stage. One attempt, no retries.
type OCRClient interface {
	Process(ctx context.Context, data []byte, contentType, filename string) (*models.OCRResult, error)
}

// InvoiceExtractor is the second stage.
type InvoiceExtractor interface {
	Extract(ctx context.Context, ocrText string) (*models.InvoiceData, error)
}

type Runner struct {
	store     RecordStore
	ocr       OCRClient
	extractor InvoiceExtractor
}

func NewRunner(store RecordStore, ocr OCRClient, extractor InvoiceExtractor) *Runner {
	return &Runner{store: store, ocr: ocr, extractor: extractor}
}

// Run executes one pipeline pass for one document. Stage failures are
// recorded on the document and are not returned: the record is the durable
// account of what happened, and there is no automatic retry to feed. Only
// persistence failures propagate, since then nothing was committed.
func (r *Runner) Run(ctx context.Context, docID uuid.UUID, data []byte, contentType, filename string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			msg := fmt.Sprintf("processing panic: %v", p)
			slog.Error("pipeline run panicked", "document_id", docID, "panic", p)
			// Best effort: if this commit fails too, the run ends with the
			// record at its last persisted state.
			if mfErr := r.store.MarkFailed(context.WithoutCancel(ctx), docID, msg); mfErr != nil {
				slog.Error("failed to record panic", "document_id", docID, "error", mfErr)
			}
			err = fmt.Errorf("pipeline run: %s", msg)
		}
	}()

	if _, err := r.store.GetByID(ctx, docID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			slog.Warn("document disappeared before run started", "document_id", docID)
			return nil
		}
		return fmt.Errorf("load document: %w", err)
	}

	if err := r.store.MarkProcessing(ctx, docID); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	slog.Info("processing document", "document_id", docID, "filename", filename)

	res, ocrErr := r.ocr.Process(ctx, data, contentType, filename)
	if ocrErr != nil {
		slog.Warn("ocr failed", "document_id", docID, "error", ocrErr)
		if err := r.store.MarkFailed(ctx, docID, ocrErr.Error()); err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		return nil
	}

	if err := r.store.SaveOCRResult(ctx, docID, res); err != nil {
		return fmt.Errorf("save ocr result: %w", err)
	}

	slog.Info("ocr complete", "document_id", docID,
		"total_pages", res.TotalPages, "total_elements", res.TotalElements)

	// No text means nothing to extract; the document parks in ocr_complete.
	if strings.TrimSpace(res.Text) == "" {
		slog.Info("skipping extraction, no text recognized", "document_id", docID)
		return nil
	}

	invoice, extErr := r.extractor.Extract(ctx, res.Text)
	if extErr != nil {
		// OCR results are kept; only the error is recorded.
		slog.Warn("extraction failed", "document_id", docID, "error", extErr)
		if err := r.store.SetExtractionError(ctx, docID, extErr.Error()); err != nil {
			return fmt.Errorf("record extraction error: %w", err)
		}
		return nil
	}

	if err := r.store.SaveInvoiceData(ctx, docID, invoice); err != nil {
		return fmt.Errorf("save invoice data: %w", err)
	}

	slog.Info("document completed", "document_id", docID)
	return nil
}
