package document

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/compasshq/compass-backend/internal/models"
	"github.com/compasshq/compass-backend/internal/storage"
	"github.com/compasshq/compass-backend/pkg/pdfinfo"
)

// ErrUnsupportedType is returned before any blob or record is created.
var ErrUnsupportedType = errors.New("unsupported file type")

// ErrInvalidPDF is returned when a file claims to be a PDF but does not
// parse as one.
var ErrInvalidPDF = errors.New("file is not a valid PDF")

var allowedTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/tiff":      true,
	"image/bmp":       true,
}

// SupportedType reports whether the declared content type is accepted
// for upload.
func SupportedType(contentType string) bool {
	return allowedTypes[contentType]
}

// TaskEnqueuer schedules the background pipeline run for a document.
type TaskEnqueuer interface {
	EnqueueDocumentProcess(ctx context.Context, docID uuid.UUID) error
}

type Service struct {
	db      *pgxpool.Pool
	storage storage.Storage
	queue   TaskEnqueuer
	bucket  string
}

func NewService(db *pgxpool.Pool, store storage.Storage, queue TaskEnqueuer, bucket string) *Service {
	return &Service{
		db:      db,
		storage: store,
		queue:   queue,
		bucket:  bucket,
	}
}

type UploadRequest struct {
	OwnerID     string
	Filename    string
	ContentType string
	Data        []byte
}

const docColumns = `id, owner_id, filename, original_filename, content_type, file_size,
	storage_key, storage_bucket, page_count, status, ocr_text, ocr_metadata,
	ocr_completed_at, invoice_data, invoice_extracted_at, error_message,
	created_at, updated_at`

// Upload validates the file, stores the blob, creates the record in the
// uploaded state and schedules exactly one pipeline run. The caller gets
// the record back immediately; it never waits on OCR or extraction.
//
// Known gap: if the insert fails after the blob was stored, the orphaned
// blob is not cleaned up here.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*models.Document, error) {
	if !SupportedType(req.ContentType) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, req.ContentType)
	}

	var pageCount *int
	if req.ContentType == "application/pdf" {
		info, err := pdfinfo.Inspect(req.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
		}
		pageCount = &info.Pages
	}

	docID := uuid.New()
	key := docID.String()
	if ext := filepath.Ext(req.Filename); ext != "" {
		key += ext
	}

	if err := s.storage.Upload(ctx, s.bucket, key, bytes.NewReader(req.Data), req.ContentType); err != nil {
		return nil, fmt.Errorf("upload to storage: %w", err)
	}

	row := s.db.QueryRow(ctx,
		`INSERT INTO documents (id, owner_id, filename, original_filename, content_type,
			file_size, storage_key, storage_bucket, page_count, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+docColumns,
		docID, req.OwnerID, key, req.Filename, req.ContentType,
		int64(len(req.Data)), key, s.bucket, pageCount, models.StatusUploaded,
	)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}

	if err := s.queue.EnqueueDocumentProcess(ctx, docID); err != nil {
		// The record is durable and in the uploaded state; an external
		// resubmission can pick it up.
		slog.Error("failed to schedule processing", "document_id", docID, "error", err)
	}

	return doc, nil
}

// GetByID fetches a record regardless of owner. Used by the worker, which
// operates on behalf of the system.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+docColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// GetForOwner fetches a record scoped to its owner. A document owned by
// someone else is indistinguishable from a missing one.
func (s *Service) GetForOwner(ctx context.Context, id uuid.UUID, ownerID string) (*models.Document, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+docColumns+` FROM documents WHERE id = $1 AND owner_id = $2`, id, ownerID)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (s *Service) List(ctx context.Context, ownerID string, limit, offset int) ([]models.Document, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+docColumns+` FROM documents
		 WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// Delete removes the blob first, then the record. Blob deletion failure is
// logged but does not block record removal.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, ownerID string) error {
	doc, err := s.GetForOwner(ctx, id, ownerID)
	if err != nil {
		return err
	}

	if doc.StorageKey != "" {
		if err := s.storage.Delete(ctx, doc.StorageBucket, doc.StorageKey); err != nil {
			slog.Warn("failed to delete blob", "document_id", id, "error", err)
		}
	}

	_, err = s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1 AND owner_id = $2`, id, ownerID)
	return err
}

// The mutation methods below are the pipeline's persistence points; each
// state transition commits before the next stage starts.

func (s *Service) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return s.exec(ctx,
		`UPDATE documents SET status = $2, updated_at = now() WHERE id = $1`,
		id, models.StatusProcessing)
}

func (s *Service) SaveOCRResult(ctx context.Context, id uuid.UUID, res *models.OCRResult) error {
	meta, err := json.Marshal(map[string]any{
		"pages":          res.Pages,
		"total_pages":    res.TotalPages,
		"elements":       res.Elements,
		"total_elements": res.TotalElements,
	})
	if err != nil {
		return fmt.Errorf("marshal ocr metadata: %w", err)
	}
	return s.exec(ctx,
		`UPDATE documents SET status = $2, ocr_text = $3, ocr_metadata = $4,
			ocr_completed_at = now(), updated_at = now() WHERE id = $1`,
		id, models.StatusOCRComplete, res.Text, meta)
}

func (s *Service) SaveInvoiceData(ctx context.Context, id uuid.UUID, data *models.InvoiceData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal invoice data: %w", err)
	}
	return s.exec(ctx,
		`UPDATE documents SET status = $2, invoice_data = $3,
			invoice_extracted_at = now(), updated_at = now() WHERE id = $1`,
		id, models.StatusCompleted, payload)
}

// SetExtractionError records a failed extraction without touching status:
// the document stays in ocr_complete and keeps its OCR results.
func (s *Service) SetExtractionError(ctx context.Context, id uuid.UUID, msg string) error {
	return s.exec(ctx,
		`UPDATE documents SET error_message = $2, updated_at = now() WHERE id = $1`,
		id, msg)
}

func (s *Service) MarkFailed(ctx context.Context, id uuid.UUID, msg string) error {
	return s.exec(ctx,
		`UPDATE documents SET status = $2, error_message = $3, updated_at = now() WHERE id = $1`,
		id, models.StatusFailed, msg)
}

func (s *Service) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var d models.Document
	err := row.Scan(
		&d.ID, &d.OwnerID, &d.Filename, &d.OriginalFilename, &d.ContentType, &d.FileSize,
		&d.StorageKey, &d.StorageBucket, &d.PageCount, &d.Status, &d.OCRText, &d.OCRMetadata,
		&d.OCRCompletedAt, &d.InvoiceData, &d.InvoiceExtractedAt, &d.ErrorMessage,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// TrimmedOCRText returns the document's OCR text, or "" when absent.
func TrimmedOCRText(doc *models.Document) string {
	if doc.OCRText == nil {
		return ""
	}
	return strings.TrimSpace(*doc.OCRText)
}
