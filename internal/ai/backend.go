// Package ai classifies a tab snapshot into a grouping plan using a chat
// model. Each Backend speaks one provider protocol; the Router picks the
// backend named by the current settings on every call.
package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/Iron-Ham/tabgroup/internal/browser"
	"github.com/Iron-Ham/tabgroup/internal/config"
	"github.com/Iron-Ham/tabgroup/internal/grouping"
	"github.com/Iron-Ham/tabgroup/internal/settings"
)

// BackendName identifies a supported AI provider protocol.
type BackendName string

const (
	BackendOpenAI BackendName = config.ProviderOpenAI
	BackendOllama BackendName = config.ProviderOllama
)

// DebugFunc receives human-readable trace lines during classification.
type DebugFunc func(msg string)

// Classifier turns a snapshot into a plan. Implementations must abort the
// provider request when ctx is cancelled.
type Classifier interface {
	Classify(ctx context.Context, snapshot browser.Snapshot, s settings.Settings, onDebug DebugFunc) (grouping.Plan, error)
}

// Backend is a Classifier bound to one provider protocol.
type Backend interface {
	Classifier
	Name() BackendName
	DisplayName() string
}

// ErrUnknownBackend is returned when settings name an unsupported provider.
var ErrUnknownBackend = fmt.Errorf("unknown AI backend")

// NewFromSettings returns the backend for s.Provider. An empty provider
// selects the OpenAI-compatible backend.
func NewFromSettings(s settings.Settings) (Backend, error) {
	switch BackendName(strings.ToLower(s.Provider)) {
	case BackendOpenAI, "":
		return NewOpenAIBackend(), nil
	case BackendOllama:
		return NewOllamaBackend(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, s.Provider)
	}
}

// Router is a Classifier that dispatches to the backend named by the
// settings passed to each call, so provider changes apply to the next run.
type Router struct{}

// NewRouter creates a Router.
func NewRouter() *Router {
	return &Router{}
}

// Classify implements Classifier.
func (r *Router) Classify(ctx context.Context, snapshot browser.Snapshot, s settings.Settings, onDebug DebugFunc) (grouping.Plan, error) {
	backend, err := NewFromSettings(s)
	if err != nil {
		return grouping.Plan{}, err
	}
	debugf(onDebug, "Using %s backend with model %s", backend.DisplayName(), s.Model)
	return backend.Classify(ctx, snapshot, s, onDebug)
}

func debugf(onDebug DebugFunc, format string, args ...any) {
	if onDebug != nil {
		onDebug(fmt.Sprintf(format, args...))
	}
}
