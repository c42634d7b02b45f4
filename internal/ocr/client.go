// Package ocr is the client for the OCR microservice. The service comes in
// two flavors with different response shapes; both are normalized into the
// canonical models.OCRResult before anything downstream sees them.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"time"

	"github.com/compasshq/compass-backend/internal/models"
	"github.com/compasshq/compass-backend/internal/stage"
)

const stageName = "OCR service"

// DefaultTimeout is deliberately generous: OCR is compute bound and a
// multi-page PDF can take minutes.
const DefaultTimeout = 5 * time.Minute

type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// response covers both upstream shapes. The element-list engine emits
// elements/total_elements; the paged engine emits pages/total_pages and
// optionally markdown. Newer engines set Format explicitly; for older ones
// the presence of the elements field is the discriminator, so Elements is a
// pointer to tell "absent" apart from "empty".
type response struct {
	Success        bool                  `json:"success"`
	Error          string                `json:"error,omitempty"`
	Format         string                `json:"format,omitempty"`
	Text           string                `json:"text"`
	Markdown       string                `json:"markdown,omitempty"`
	Elements       *[]models.OCRElement  `json:"elements,omitempty"`
	TotalElements  int                   `json:"total_elements,omitempty"`
	Pages          []models.OCRPage      `json:"pages,omitempty"`
	TotalPages     int                   `json:"total_pages,omitempty"`
	ProcessingTime float64               `json:"processing_time,omitempty"`
}

func (r *response) isElementList() bool {
	if r.Format != "" {
		return r.Format == "elements"
	}
	return r.Elements != nil
}

// Process runs the document through OCR. Single attempt, no retries; a
// failure is returned as a *stage.Error for the orchestrator to record.
func (c *Client) Process(ctx context.Context, data []byte, contentType, filename string) (*models.OCRResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, stage.Unexpected(stageName, fmt.Errorf("create multipart: %w", err))
	}
	if _, err := part.Write(data); err != nil {
		return nil, stage.Unexpected(stageName, fmt.Errorf("write multipart: %w", err))
	}
	if err := w.Close(); err != nil {
		return nil, stage.Unexpected(stageName, fmt.Errorf("close multipart: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/ocr", body)
	if err != nil {
		return nil, stage.Unexpected(stageName, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, stage.Timeout(stageName, err)
		}
		return nil, stage.Unexpected(stageName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, stage.Upstream(stageName, resp.StatusCode, fmt.Errorf("ocr returned %s", resp.Status))
	}

	var raw response
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, stage.Unexpected(stageName, fmt.Errorf("decode response: %w", err))
	}
	if !raw.Success && raw.Error != "" {
		return nil, stage.Unexpected(stageName, errors.New(raw.Error))
	}

	return canonicalize(&raw), nil
}

// canonicalize converts either upstream shape into the single result form.
// A flat element list is wrapped into one synthetic page; a paged response
// keeps its pages and gets its elements flattened.
func canonicalize(raw *response) *models.OCRResult {
	if raw.isElementList() {
		var elements []models.OCRElement
		if raw.Elements != nil {
			elements = *raw.Elements
		}
		return &models.OCRResult{
			Text:           raw.Text,
			Pages:          []models.OCRPage{{Elements: elements}},
			TotalPages:     1,
			Elements:       elements,
			TotalElements:  raw.TotalElements,
			ProcessingTime: raw.ProcessingTime,
		}
	}

	var elements []models.OCRElement
	for _, p := range raw.Pages {
		elements = append(elements, p.Elements...)
	}
	return &models.OCRResult{
		Text:           raw.Text,
		Markdown:       raw.Markdown,
		Pages:          raw.Pages,
		TotalPages:     raw.TotalPages,
		Elements:       elements,
		TotalElements:  len(elements),
		ProcessingTime: raw.ProcessingTime,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
