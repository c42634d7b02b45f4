package ocr

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/compasshq/compass-backend/internal/stage"
)

const flatBody = `{
	"success": true,
	"filename": "invoice.pdf",
	"text": "Invoice #1",
	"elements": [{"id": 0, "page": "page_1", "text": "Invoice #1", "confidence": 0.98, "bbox": [[0,0],[50,0],[50,10],[0,10]]}],
	"total_elements": 1,
	"processing_time": 0.42
}`

const pagedBody = `{
	"success": true,
	"text": "Invoice #1",
	"markdown": "# Invoice #1",
	"pages": [{"elements": [{"id": 0, "page": "page_1", "text": "Invoice #1", "confidence": 0.98, "bbox": [[0,0],[50,0],[50,10],[0,10]]}]}],
	"total_pages": 1
}`

func ocrServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/ocr", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(32<<20))
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		require.Equal(t, "invoice.pdf", header.Filename)
		require.Equal(t, "application/pdf", header.Header.Get("Content-Type"))

		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProcessFlatShape(t *testing.T) {
	srv := ocrServer(t, http.StatusOK, flatBody)
	client := NewClient(srv.URL, time.Minute)

	res, err := client.Process(context.Background(), []byte("%PDF-"), "application/pdf", "invoice.pdf")
	require.NoError(t, err)

	require.Equal(t, "Invoice #1", res.Text)
	require.Equal(t, 1, res.TotalPages)
	require.Len(t, res.Pages, 1)
	require.Len(t, res.Pages[0].Elements, 1)
	require.Equal(t, 1, res.TotalElements)
	require.Equal(t, "page_1", res.Elements[0].Page)
	require.InDelta(t, 0.98, res.Elements[0].Confidence, 1e-9)
}

func TestProcessPagedShape(t *testing.T) {
	srv := ocrServer(t, http.StatusOK, pagedBody)
	client := NewClient(srv.URL, time.Minute)

	res, err := client.Process(context.Background(), []byte("%PDF-"), "application/pdf", "invoice.pdf")
	require.NoError(t, err)

	require.Equal(t, "Invoice #1", res.Text)
	require.Equal(t, "# Invoice #1", res.Markdown)
	require.Equal(t, 1, res.TotalPages)
	require.Equal(t, 1, res.TotalElements)
	require.Len(t, res.Elements, 1)
}

// Both shapes describing the same page must canonicalize identically where
// it matters: text and element count.
func TestCanonicalizationEquivalence(t *testing.T) {
	flatSrv := ocrServer(t, http.StatusOK, flatBody)
	pagedSrv := ocrServer(t, http.StatusOK, pagedBody)

	flat, err := NewClient(flatSrv.URL, time.Minute).Process(context.Background(), []byte("%PDF-"), "application/pdf", "invoice.pdf")
	require.NoError(t, err)
	paged, err := NewClient(pagedSrv.URL, time.Minute).Process(context.Background(), []byte("%PDF-"), "application/pdf", "invoice.pdf")
	require.NoError(t, err)

	require.Equal(t, flat.Text, paged.Text)
	require.Equal(t, flat.TotalElements, paged.TotalElements)
	require.Equal(t, flat.TotalPages, paged.TotalPages)
}

func TestProcessExplicitFormatWinsOverProbing(t *testing.T) {
	// A paged response that also carries an empty elements field; the
	// discriminator must prevent flat-shape treatment.
	body := `{"success": true, "format": "pages", "text": "hi", "elements": [],
		"pages": [{"elements": [{"id": 0, "page": "page_1", "text": "hi", "confidence": 0.9, "bbox": []}]}],
		"total_pages": 1}`
	srv := ocrServer(t, http.StatusOK, body)

	res, err := NewClient(srv.URL, time.Minute).Process(context.Background(), []byte("%PDF-"), "application/pdf", "invoice.pdf")
	require.NoError(t, err)
	require.Equal(t, 1, res.TotalElements)
	require.Equal(t, 1, res.TotalPages)
}

func TestProcessUpstreamError(t *testing.T) {
	srv := ocrServer(t, http.StatusInternalServerError, `{"detail": "engine not initialized"}`)
	client := NewClient(srv.URL, time.Minute)

	_, err := client.Process(context.Background(), []byte("%PDF-"), "application/pdf", "invoice.pdf")
	require.Error(t, err)

	var stageErr *stage.Error
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, stage.ReasonUpstream, stageErr.Reason)
	require.Equal(t, http.StatusInternalServerError, stageErr.Status)
	require.Contains(t, err.Error(), "500")
}

func TestProcessTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte(flatBody))
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, 50*time.Millisecond)
	_, err := client.Process(context.Background(), []byte("%PDF-"), "application/pdf", "invoice.pdf")
	require.Error(t, err)

	var stageErr *stage.Error
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, stage.ReasonTimeout, stageErr.Reason)
	require.Contains(t, err.Error(), "timeout")
}

func TestProcessInvalidJSON(t *testing.T) {
	srv := ocrServer(t, http.StatusOK, `not json at all`)
	client := NewClient(srv.URL, time.Minute)

	_, err := client.Process(context.Background(), []byte("%PDF-"), "application/pdf", "invoice.pdf")
	require.Error(t, err)

	var stageErr *stage.Error
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, stage.ReasonUnexpected, stageErr.Reason)
}

func TestProcessUpstreamReportedFailure(t *testing.T) {
	srv := ocrServer(t, http.StatusOK, `{"success": false, "error": "engine crashed", "text": "", "pages": []}`)
	client := NewClient(srv.URL, time.Minute)

	_, err := client.Process(context.Background(), []byte("%PDF-"), "application/pdf", "invoice.pdf")
	require.Error(t, err)

	var stageErr *stage.Error
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, stage.ReasonUnexpected, stageErr.Reason)
	require.Contains(t, err.Error(), "engine crashed")
}
