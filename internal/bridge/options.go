package bridge

import (
	"github.com/google/uuid"

	"github.com/Iron-Ham/tabgroup/internal/logging"
)

// defaultMaxConcurrent bounds in-flight request handlers.
const defaultMaxConcurrent = 8

// Option configures a Peer.
type Option func(*config)

type config struct {
	maxConcurrent  int
	controlMethods map[string]bool
	logger         *logging.Logger
	newID          func() string
}

func defaultConfig() config {
	return config{
		maxConcurrent: defaultMaxConcurrent,
		newID:         uuid.NewString,
	}
}

// WithMaxConcurrent sets how many incoming requests may be handled at once.
// Requests beyond the limit get an ErrBusy response. Values below 1 are
// raised to 1.
func WithMaxConcurrent(n int) Option {
	return func(c *config) {
		c.maxConcurrent = max(n, 1)
	}
}

// WithControlMethods names methods that bypass the concurrency limit.
// Their handlers must return promptly and must not call back into the
// extension; cancelTask is the canonical example.
func WithControlMethods(methods ...string) Option {
	return func(c *config) {
		if c.controlMethods == nil {
			c.controlMethods = make(map[string]bool, len(methods))
		}
		for _, m := range methods {
			c.controlMethods[m] = true
		}
	}
}

// WithLogger sets the logger for the peer.
func WithLogger(logger *logging.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithIDGenerator overrides how outgoing call ids are minted.
func WithIDGenerator(fn func() string) Option {
	return func(c *config) {
		if fn != nil {
			c.newID = fn
		}
	}
}
