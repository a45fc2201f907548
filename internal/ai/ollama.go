package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/Iron-Ham/tabgroup/internal/browser"
	"github.com/Iron-Ham/tabgroup/internal/grouping"
	"github.com/Iron-Ham/tabgroup/internal/settings"
)

// OllamaBackend talks to a local or remote Ollama server.
type OllamaBackend struct {
	httpClient *http.Client
}

// OllamaOption customizes an OllamaBackend.
type OllamaOption func(*OllamaBackend)

// WithOllamaHTTPClient overrides the HTTP client used for Ollama requests.
func WithOllamaHTTPClient(client *http.Client) OllamaOption {
	return func(b *OllamaBackend) {
		b.httpClient = client
	}
}

// NewOllamaBackend creates an OllamaBackend.
func NewOllamaBackend(opts ...OllamaOption) *OllamaBackend {
	b := &OllamaBackend{httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *OllamaBackend) Name() BackendName { return BackendOllama }

func (b *OllamaBackend) DisplayName() string { return "Ollama" }

// Classify implements Classifier.
func (b *OllamaBackend) Classify(ctx context.Context, snapshot browser.Snapshot, s settings.Settings, onDebug DebugFunc) (grouping.Plan, error) {
	base, err := url.Parse(strings.TrimRight(s.Endpoint, "/"))
	if err != nil {
		return grouping.Plan{}, fmt.Errorf("invalid Ollama URL %q: %w", s.Endpoint, err)
	}
	userPrompt, err := UserPrompt(snapshot)
	if err != nil {
		return grouping.Plan{}, err
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stream := false
	req := &api.ChatRequest{
		Model: s.Model,
		Messages: []api.Message{
			{Role: "system", Content: SystemPrompt()},
			{Role: "user", Content: userPrompt},
		},
		Format: json.RawMessage(`"json"`),
		Stream: &stream,
	}

	debugf(onDebug, "Ollama chat at %s (%d tabs)", base.String(), len(snapshot))

	var content strings.Builder
	client := api.NewClient(base, b.httpClient)
	err = client.Chat(reqCtx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return grouping.Plan{}, fmt.Errorf("AI request aborted: %w", ctxErr)
		}
		return grouping.Plan{}, fmt.Errorf("ollama chat request failed: %w", err)
	}

	debugf(onDebug, "Raw response: %s", preview(content.String()))
	return ParsePlan(content.String())
}
