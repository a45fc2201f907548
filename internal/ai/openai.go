package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Iron-Ham/tabgroup/internal/browser"
	"github.com/Iron-Ham/tabgroup/internal/grouping"
	"github.com/Iron-Ham/tabgroup/internal/settings"
)

const defaultRequestTimeout = 120 * time.Second

// OpenAIBackend talks to any OpenAI-compatible chat completions API, such as
// OpenRouter. Requests are attempted once.
type OpenAIBackend struct {
	client *resty.Client
}

// NewOpenAIBackend creates an OpenAIBackend.
func NewOpenAIBackend() *OpenAIBackend {
	client := resty.New().
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("X-Title", "tabgroup").
		SetRetryCount(0)
	return &OpenAIBackend{client: client}
}

func (b *OpenAIBackend) Name() BackendName { return BackendOpenAI }

func (b *OpenAIBackend) DisplayName() string { return "OpenAI-compatible" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type reasoningOptions struct {
	Effort string `json:"effort"`
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat *responseFormat   `json:"response_format,omitempty"`
	Reasoning      *reasoningOptions `json:"reasoning,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// APIError is the error body returned by OpenAI-compatible APIs.
type APIError struct {
	Body struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
	Status int `json:"-"`
}

func (e *APIError) Error() string {
	if e.Body.Message == "" {
		return fmt.Sprintf("API error (status %d)", e.Status)
	}
	return fmt.Sprintf("API error (status %d): %s", e.Status, e.Body.Message)
}

// Classify implements Classifier.
func (b *OpenAIBackend) Classify(ctx context.Context, snapshot browser.Snapshot, s settings.Settings, onDebug DebugFunc) (grouping.Plan, error) {
	userPrompt, err := UserPrompt(snapshot)
	if err != nil {
		return grouping.Plan{}, err
	}

	reqBody := chatCompletionRequest{
		Model: s.Model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt()},
			{Role: "user", Content: userPrompt},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	if s.ReasoningEffort != "" && s.ReasoningEffort != "off" {
		reqBody.Reasoning = &reasoningOptions{Effort: s.ReasoningEffort}
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := strings.TrimRight(s.Endpoint, "/") + "/chat/completions"
	debugf(onDebug, "POST %s (%d tabs)", endpoint, len(snapshot))

	var result chatCompletionResponse
	apiErr := &APIError{}
	resp, err := b.client.R().
		SetContext(reqCtx).
		SetAuthToken(s.APIKey).
		SetBody(reqBody).
		SetResult(&result).
		SetError(apiErr).
		Post(endpoint)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return grouping.Plan{}, fmt.Errorf("AI request aborted: %w", ctxErr)
		}
		return grouping.Plan{}, fmt.Errorf("AI request failed: %w", err)
	}
	if resp.IsError() {
		apiErr.Status = resp.StatusCode()
		debugf(onDebug, "Error body: %s", preview(resp.String()))
		return grouping.Plan{}, apiErr
	}

	debugf(onDebug, "Response status %d in %s", resp.StatusCode(), resp.Time().Round(time.Millisecond))
	if len(result.Choices) == 0 {
		return grouping.Plan{}, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	content := result.Choices[0].Message.Content
	debugf(onDebug, "Raw response: %s", preview(content))

	return ParsePlan(content)
}
