// Package summarize produces short document summaries on demand.
package summarize

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const systemPrompt = `You are a document summarization expert. Create a concise, informative summary of the given document text.

Your summary should:
- Be 2-4 sentences long
- Capture the main points and key information
- Be clear and easy to understand
- Focus on what's important

Respond with ONLY the summary text, no additional formatting or explanation.`

type Summarizer struct {
	client *openai.Client
	model  string
}

func NewSummarizer(apiKey, baseURL, model string) *Summarizer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: time.Minute}
	return &Summarizer{client: openai.NewClientWithConfig(cfg), model: model}
}

func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Summarize this document:\n\n" + text},
		},
		Temperature: 0.3,
		MaxTokens:   500,
	})
	if err != nil {
		return "", fmt.Errorf("summarize completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in summary response")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
