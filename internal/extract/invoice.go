// Package extract turns OCR text into structured invoice data via the
// OpenAI chat completions API, using a strict JSON-schema response format
// so parsing is a plain decode rather than prose scraping.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	openai "github.com/sashabaranov/go-openai"

	"github.com/compasshq/compass-backend/internal/models"
	"github.com/compasshq/compass-backend/internal/stage"
)

const stageName = "OpenAI API"

const systemPrompt = `You are an expert invoice data extraction system.
Extract structured information from invoice text with high accuracy.

IMPORTANT:
- Extract ALL available information from the invoice
- For dates, use ISO format (YYYY-MM-DD) if possible
- For amounts, include currency symbols if present
- If a field is not found in the text, set it to null
- Be precise and accurate - do not guess or make up information`

// invoiceSchemaJSON is the single source of truth for the extraction
// contract: it is sent to OpenAI as the strict response format and used
// again to validate what comes back.
const invoiceSchemaJSON = `{
  "type": "object",
  "properties": {
    "invoice_number": {"type": ["string", "null"]},
    "invoice_date": {"type": ["string", "null"]},
    "due_date": {"type": ["string", "null"]},
    "sender": {
      "type": "object",
      "properties": {
        "name": {"type": ["string", "null"]},
        "address": {"type": ["string", "null"]},
        "email": {"type": ["string", "null"]},
        "phone": {"type": ["string", "null"]},
        "tax_id": {"type": ["string", "null"]}
      },
      "required": ["name", "address", "email", "phone", "tax_id"],
      "additionalProperties": false
    },
    "receiver": {
      "type": "object",
      "properties": {
        "name": {"type": ["string", "null"]},
        "address": {"type": ["string", "null"]},
        "email": {"type": ["string", "null"]},
        "phone": {"type": ["string", "null"]},
        "tax_id": {"type": ["string", "null"]}
      },
      "required": ["name", "address", "email", "phone", "tax_id"],
      "additionalProperties": false
    },
    "total_amount": {"type": ["string", "null"]},
    "currency": {"type": ["string", "null"]},
    "subtotal": {"type": ["string", "null"]},
    "tax_amount": {"type": ["string", "null"]},
    "payment_terms": {"type": ["string", "null"]},
    "notes": {"type": ["string", "null"]}
  },
  "required": [
    "invoice_number", "invoice_date", "due_date",
    "sender", "receiver",
    "total_amount", "currency", "subtotal", "tax_amount",
    "payment_terms", "notes"
  ],
  "additionalProperties": false
}`

var invoiceSchema = jsonschema.MustCompileString("invoice_data.json", invoiceSchemaJSON)

type Extractor struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewExtractor(apiKey, baseURL, model string, timeout time.Duration) *Extractor {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &Extractor{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: timeout,
	}
}

// Extract makes exactly one completion call. No streaming, no partial
// results; any failure is a *stage.Error.
func (e *Extractor) Extract(ctx context.Context, ocrText string) (*models.InvoiceData, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Extract invoice data from this OCR text:\n\n" + ocrText},
		},
		// omitempty drops a literal 0, and data extraction must not sample.
		Temperature: math.SmallestNonzeroFloat32,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "invoice_data",
				Strict: true,
				Schema: json.RawMessage(invoiceSchemaJSON),
			},
		},
	})
	if err != nil {
		return nil, classifyErr(err)
	}

	if len(resp.Choices) == 0 {
		return nil, stage.Malformed(stageName, errors.New("no choices in completion"))
	}
	content := resp.Choices[0].Message.Content

	var decoded any
	if err := json.Unmarshal([]byte(content), &decoded); err != nil {
		return nil, stage.Malformed(stageName, fmt.Errorf("parse content: %w", err))
	}
	if err := invoiceSchema.Validate(decoded); err != nil {
		return nil, stage.Malformed(stageName, fmt.Errorf("schema validation: %w", err))
	}

	var data models.InvoiceData
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return nil, stage.Malformed(stageName, fmt.Errorf("unmarshal invoice data: %w", err))
	}

	return &data, nil
}

func classifyErr(err error) *stage.Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return stage.Upstream(stageName, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return stage.Upstream(stageName, reqErr.HTTPStatusCode, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return stage.Timeout(stageName, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return stage.Timeout(stageName, err)
	}
	return stage.Unexpected(stageName, err)
}
