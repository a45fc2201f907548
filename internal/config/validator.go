package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "ai.timeout_seconds")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// extensionOriginPrefix is the scheme Chrome uses for extension origins.
const extensionOriginPrefix = "chrome-extension://"

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found.
// Empty endpoint or key are not errors here: the host still starts and
// reports the missing settings on the first organize request.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateAI()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validatePaths()...)
	errors = append(errors, c.validateHost()...)

	return errors
}

func (c *Config) validateAI() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidProviders(), c.AI.Provider) {
		errors = append(errors, ValidationError{
			Field:   "ai.provider",
			Value:   c.AI.Provider,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidProviders(), ", ")),
		})
	}

	if c.AI.Endpoint != "" {
		u, err := url.Parse(c.AI.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "ai.endpoint",
				Value:   c.AI.Endpoint,
				Message: "must be an absolute http or https URL",
			})
		}
	}

	if c.AI.TimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "ai.timeout_seconds",
			Value:   c.AI.TimeoutSeconds,
			Message: "must be positive",
		})
	}

	const maxTimeoutSeconds = 600
	if c.AI.TimeoutSeconds > maxTimeoutSeconds {
		errors = append(errors, ValidationError{
			Field:   "ai.timeout_seconds",
			Value:   c.AI.TimeoutSeconds,
			Message: fmt.Sprintf("exceeds maximum of %d seconds", maxTimeoutSeconds),
		})
	}

	if c.AI.ReasoningEffort != "" && !slices.Contains(ValidReasoningEfforts(), c.AI.ReasoningEffort) {
		errors = append(errors, ValidationError{
			Field:   "ai.reasoning_effort",
			Value:   c.AI.ReasoningEffort,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidReasoningEfforts(), ", ")),
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	const maxLogSizeMB = 100
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validatePaths() []ValidationError {
	var errors []ValidationError

	if strings.ContainsRune(c.Paths.StateDir, '\x00') {
		errors = append(errors, ValidationError{
			Field:   "paths.state_dir",
			Value:   c.Paths.StateDir,
			Message: "path contains invalid null character",
		})
	}

	return errors
}

func (c *Config) validateHost() []ValidationError {
	var errors []ValidationError

	if c.Host.MCPAddr != "" {
		if _, port, err := net.SplitHostPort(c.Host.MCPAddr); err != nil || port == "" {
			errors = append(errors, ValidationError{
				Field:   "host.mcp_addr",
				Value:   c.Host.MCPAddr,
				Message: "must be host:port",
			})
		}
	}

	for i, origin := range c.Host.AllowedOrigins {
		id := strings.TrimSuffix(strings.TrimPrefix(origin, extensionOriginPrefix), "/")
		if !strings.HasPrefix(origin, extensionOriginPrefix) || id == "" || strings.Contains(id, "/") {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("host.allowed_origins[%d]", i),
				Value:   origin,
				Message: "must look like chrome-extension://<extension-id>/",
			})
		}
	}

	return errors
}
