package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/compasshq/compass-backend/internal/models"
	"github.com/compasshq/compass-backend/internal/stage"
)

// fakeStore mirrors the document service's transition semantics in memory.
type fakeStore struct {
	doc *models.Document

	ocrSaves     int
	invoiceSaves int
	invoice      *models.InvoiceData
}

func newFakeStore(id uuid.UUID) *fakeStore {
	return &fakeStore{doc: &models.Document{ID: id, Status: models.StatusUploaded}}
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Document, error) {
	if s.doc == nil || s.doc.ID != id {
		return nil, models.ErrNotFound
	}
	return s.doc, nil
}

func (s *fakeStore) MarkProcessing(_ context.Context, _ uuid.UUID) error {
	s.doc.Status = models.StatusProcessing
	return nil
}

func (s *fakeStore) SaveOCRResult(_ context.Context, _ uuid.UUID, res *models.OCRResult) error {
	s.ocrSaves++
	text := res.Text
	s.doc.OCRText = &text
	s.doc.Status = models.StatusOCRComplete
	return nil
}

func (s *fakeStore) SaveInvoiceData(_ context.Context, _ uuid.UUID, data *models.InvoiceData) error {
	s.invoiceSaves++
	s.invoice = data
	s.doc.Status = models.StatusCompleted
	return nil
}

func (s *fakeStore) SetExtractionError(_ context.Context, _ uuid.UUID, msg string) error {
	s.doc.ErrorMessage = &msg
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, _ uuid.UUID, msg string) error {
	s.doc.Status = models.StatusFailed
	s.doc.ErrorMessage = &msg
	return nil
}

type fakeOCR struct {
	res    *models.OCRResult
	err    error
	called int
	panics bool
}

func (f *fakeOCR) Process(_ context.Context, _ []byte, _, _ string) (*models.OCRResult, error) {
	f.called++
	if f.panics {
		panic("ocr client blew up")
	}
	return f.res, f.err
}

type fakeExtractor struct {
	data   *models.InvoiceData
	err    error
	called int
}

func (f *fakeExtractor) Extract(_ context.Context, _ string) (*models.InvoiceData, error) {
	f.called++
	return f.data, f.err
}

func strPtr(s string) *string { return &s }

func singleElementResult(text string) *models.OCRResult {
	el := models.OCRElement{ID: 0, Page: "page_1", Text: text, Confidence: 0.98, BBox: [][]float64{{0, 0}, {10, 0}, {10, 10}, {0, 10}}}
	return &models.OCRResult{
		Text:          text,
		Pages:         []models.OCRPage{{Elements: []models.OCRElement{el}}},
		TotalPages:    1,
		Elements:      []models.OCRElement{el},
		TotalElements: 1,
	}
}

func TestRunCompletes(t *testing.T) {
	id := uuid.New()
	store := newFakeStore(id)
	ocrClient := &fakeOCR{res: singleElementResult("Invoice #1")}
	extractor := &fakeExtractor{data: &models.InvoiceData{InvoiceNumber: strPtr("1")}}

	runner := NewRunner(store, ocrClient, extractor)
	err := runner.Run(context.Background(), id, []byte("%PDF-"), "application/pdf", "invoice.pdf")

	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, store.doc.Status)
	require.NotNil(t, store.doc.OCRText)
	require.Equal(t, "Invoice #1", *store.doc.OCRText)
	require.NotNil(t, store.invoice)
	require.Equal(t, "1", *store.invoice.InvoiceNumber)
	require.Equal(t, 1, ocrClient.called)
	require.Equal(t, 1, extractor.called)
}

func TestRunOCRTimeoutFails(t *testing.T) {
	id := uuid.New()
	store := newFakeStore(id)
	ocrClient := &fakeOCR{err: stage.Timeout("OCR service", context.DeadlineExceeded)}
	extractor := &fakeExtractor{}

	runner := NewRunner(store, ocrClient, extractor)
	err := runner.Run(context.Background(), id, nil, "application/pdf", "slow.pdf")

	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, store.doc.Status)
	require.NotNil(t, store.doc.ErrorMessage)
	require.Contains(t, *store.doc.ErrorMessage, "timeout")
	require.Nil(t, store.doc.OCRText)
	require.Zero(t, extractor.called)
}

func TestRunExtractionFailureKeepsOCRResults(t *testing.T) {
	id := uuid.New()
	store := newFakeStore(id)
	ocrClient := &fakeOCR{res: singleElementResult("Invoice #1")}
	extractor := &fakeExtractor{err: stage.Upstream("OpenAI API", 500, errors.New("server error"))}

	runner := NewRunner(store, ocrClient, extractor)
	err := runner.Run(context.Background(), id, nil, "application/pdf", "invoice.pdf")

	require.NoError(t, err)
	// Parked, not failed: the OCR results stay queryable.
	require.Equal(t, models.StatusOCRComplete, store.doc.Status)
	require.NotNil(t, store.doc.OCRText)
	require.Equal(t, "Invoice #1", *store.doc.OCRText)
	require.NotNil(t, store.doc.ErrorMessage)
	require.Contains(t, *store.doc.ErrorMessage, "500")
	require.Nil(t, store.invoice)
	require.Equal(t, 1, store.ocrSaves)
}

func TestRunEmptyTextSkipsExtraction(t *testing.T) {
	id := uuid.New()
	store := newFakeStore(id)
	ocrClient := &fakeOCR{res: &models.OCRResult{Text: "  \n", TotalPages: 1}}
	extractor := &fakeExtractor{}

	runner := NewRunner(store, ocrClient, extractor)
	err := runner.Run(context.Background(), id, nil, "image/png", "blank.png")

	require.NoError(t, err)
	require.Equal(t, models.StatusOCRComplete, store.doc.Status)
	require.Zero(t, extractor.called)
	require.Nil(t, store.invoice)
	require.Nil(t, store.doc.ErrorMessage)
}

func TestRunMissingRecordAborts(t *testing.T) {
	store := newFakeStore(uuid.New())
	ocrClient := &fakeOCR{res: singleElementResult("text")}
	extractor := &fakeExtractor{}

	runner := NewRunner(store, ocrClient, extractor)
	err := runner.Run(context.Background(), uuid.New(), nil, "application/pdf", "gone.pdf")

	require.NoError(t, err)
	require.Zero(t, ocrClient.called)
	require.Equal(t, models.StatusUploaded, store.doc.Status)
}

func TestRunOCRFieldsWrittenOnce(t *testing.T) {
	id := uuid.New()
	store := newFakeStore(id)
	ocrClient := &fakeOCR{res: singleElementResult("Invoice #1")}
	extractor := &fakeExtractor{err: stage.Malformed("OpenAI API", errors.New("bad json"))}

	runner := NewRunner(store, ocrClient, extractor)
	require.NoError(t, runner.Run(context.Background(), id, nil, "application/pdf", "invoice.pdf"))

	require.Equal(t, 1, store.ocrSaves)
	require.Equal(t, "Invoice #1", *store.doc.OCRText)
	require.Zero(t, store.invoiceSaves)
}

func TestRunPanicMarksFailed(t *testing.T) {
	id := uuid.New()
	store := newFakeStore(id)
	ocrClient := &fakeOCR{panics: true}
	extractor := &fakeExtractor{}

	runner := NewRunner(store, ocrClient, extractor)
	err := runner.Run(context.Background(), id, nil, "application/pdf", "boom.pdf")

	require.Error(t, err)
	require.Equal(t, models.StatusFailed, store.doc.Status)
	require.NotNil(t, store.doc.ErrorMessage)
	require.Contains(t, *store.doc.ErrorMessage, "panic")
	require.Zero(t, extractor.called)
}
