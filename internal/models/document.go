package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by record lookups when no document matches,
// or when the document is not owned by the caller.
var ErrNotFound = errors.New("document not found")

type Document struct {
	ID                 uuid.UUID       `json:"id" db:"id"`
	OwnerID            string          `json:"owner_id" db:"owner_id"`
	Filename           string          `json:"filename" db:"filename"`
	OriginalFilename   string          `json:"original_filename" db:"original_filename"`
	ContentType        string          `json:"content_type" db:"content_type"`
	FileSize           int64           `json:"file_size" db:"file_size"`
	StorageKey         string          `json:"storage_key" db:"storage_key"`
	StorageBucket      string          `json:"storage_bucket" db:"storage_bucket"`
	PageCount          *int            `json:"page_count,omitempty" db:"page_count"`
	Status             string          `json:"status" db:"status"`
	OCRText            *string         `json:"ocr_text" db:"ocr_text"`
	OCRMetadata        json.RawMessage `json:"ocr_metadata" db:"ocr_metadata"`
	OCRCompletedAt     *time.Time      `json:"ocr_completed_at" db:"ocr_completed_at"`
	InvoiceData        json.RawMessage `json:"invoice_data" db:"invoice_data"`
	InvoiceExtractedAt *time.Time      `json:"invoice_extracted_at" db:"invoice_extracted_at"`
	ErrorMessage       *string         `json:"error_message" db:"error_message"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// Document lifecycle. Failed is reachable from any non-terminal state; a
// document whose extraction failed after a successful OCR pass stays in
// ocr_complete so the OCR results remain queryable.
const (
	StatusUploaded    = "uploaded"
	StatusProcessing  = "processing"
	StatusOCRComplete = "ocr_complete"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
)

// OCRElement is one recognized text region. BBox holds the four corner
// points of the region, [[x,y] x4], as emitted by the OCR engine.
type OCRElement struct {
	ID         int         `json:"id"`
	Page       string      `json:"page"`
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	BBox       [][]float64 `json:"bbox"`
}

type OCRPage struct {
	Elements []OCRElement `json:"elements"`
	Markdown string       `json:"markdown,omitempty"`
}

// OCRResult is the canonical OCR output. Both upstream response shapes
// normalize into it: a flat element list becomes a single synthetic page,
// and a pre-paged response gets its elements flattened so TotalElements
// is always populated.
type OCRResult struct {
	Text           string       `json:"text"`
	Markdown       string       `json:"markdown,omitempty"`
	Pages          []OCRPage    `json:"pages"`
	TotalPages     int          `json:"total_pages"`
	Elements       []OCRElement `json:"elements"`
	TotalElements  int          `json:"total_elements"`
	ProcessingTime float64      `json:"processing_time,omitempty"`
}

// ContactInfo holds sender or receiver details on an invoice. Every field
// is nullable; absent information stays null, never guessed.
type ContactInfo struct {
	Name    *string `json:"name"`
	Address *string `json:"address"`
	Email   *string `json:"email"`
	Phone   *string `json:"phone"`
	TaxID   *string `json:"tax_id"`
}

// InvoiceData is the fixed extraction schema the LLM is constrained to.
type InvoiceData struct {
	InvoiceNumber *string     `json:"invoice_number"`
	InvoiceDate   *string     `json:"invoice_date"`
	DueDate       *string     `json:"due_date"`
	Sender        ContactInfo `json:"sender"`
	Receiver      ContactInfo `json:"receiver"`
	TotalAmount   *string     `json:"total_amount"`
	Currency      *string     `json:"currency"`
	Subtotal      *string     `json:"subtotal"`
	TaxAmount     *string     `json:"tax_amount"`
	PaymentTerms  *string     `json:"payment_terms"`
	Notes         *string     `json:"notes"`
}
