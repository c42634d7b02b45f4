// Package classify assigns a document type to extracted text. This is an
// on-demand call, not a pipeline stage.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

type DocumentType string

const (
	TypeInvoice        DocumentType = "invoice"
	TypeContract       DocumentType = "contract"
	TypeMeetingMinutes DocumentType = "meeting_minutes"
	TypeEmail          DocumentType = "email"
	TypeUnknown        DocumentType = "unknown"
)

var labelToType = map[string]DocumentType{
	"invoice":         TypeInvoice,
	"contract":        TypeContract,
	"meeting_minutes": TypeMeetingMinutes,
	"email":           TypeEmail,
}

const systemPrompt = `You are a document classification expert. Classify the given document text into one of these categories:
1. invoice - Billing documents, receipts, invoices
2. contract - Legal agreements, terms and conditions, contracts
3. meeting_minutes - Meeting notes, minutes, summaries
4. email - Electronic correspondence, email messages

Analyze the document and respond with a JSON object containing:
- category: The document type (invoice, contract, meeting_minutes, or email)
- confidence: A confidence score between 0 and 1
- reasoning: Brief explanation for the classification

Example response:
{
  "category": "invoice",
  "confidence": 0.95,
  "reasoning": "Contains invoice number, billing details, and payment terms"
}`

// maxClassifyChars caps the prompt; the opening of a document is enough to
// tell an invoice from an email.
const maxClassifyChars = 2000

type Result struct {
	DocumentType   DocumentType       `json:"document_type"`
	Confidence     map[string]float64 `json:"confidence"`
	Reasoning      string             `json:"reasoning"`
	PredictedLabel string             `json:"predicted_label"`
}

type Classifier struct {
	client *openai.Client
	model  string
}

func NewClassifier(apiKey, baseURL, model string) *Classifier {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	return &Classifier{client: openai.NewClientWithConfig(cfg), model: model}
}

func (c *Classifier) Classify(ctx context.Context, text string) (*Result, error) {
	if len(text) > maxClassifyChars {
		text = text[:maxClassifyChars]
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Classify this document:\n\n" + text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
		MaxTokens:   500,
	})
	if err != nil {
		return nil, fmt.Errorf("classify completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in classification response")
	}

	var parsed struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return nil, fmt.Errorf("parse classification: %w", err)
	}

	docType, ok := labelToType[parsed.Category]
	if !ok {
		docType = TypeUnknown
	}

	// Confidence for the winning label, remainder spread over the rest.
	scores := map[string]float64{
		"invoice": 0, "contract": 0, "meeting_minutes": 0, "email": 0,
	}
	if _, ok := scores[parsed.Category]; ok {
		scores[parsed.Category] = parsed.Confidence
		remaining := (1.0 - parsed.Confidence) / 3
		for k := range scores {
			if k != parsed.Category {
				scores[k] = remaining
			}
		}
	}

	return &Result{
		DocumentType:   docType,
		Confidence:     scores,
		Reasoning:      parsed.Reasoning,
		PredictedLabel: parsed.Category,
	}, nil
}
