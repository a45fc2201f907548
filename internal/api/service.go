// Package api is the request/response surface the extension (and the MCP
// server) talk to. Every operation returns a JSON-serialisable response;
// failures are reported in the response rather than as Go errors wherever
// the extension expects a response shape.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/Iron-Ham/tabgroup/internal/logging"
	"github.com/Iron-Ham/tabgroup/internal/organizer"
	"github.com/Iron-Ham/tabgroup/internal/settings"
	"github.com/Iron-Ham/tabgroup/internal/task"
)

// Messages returned to the extension.
const (
	AlreadyRunningMessage = task.AlreadyRunningMessage
	NoTaskRunningMessage  = "No task running"
)

// Wire method names.
const (
	MethodOrganize      = "organize"
	MethodUngroup       = "ungroup"
	MethodCancelTask    = "cancelTask"
	MethodGetTaskStatus = "getTaskStatus"
	MethodResetTask     = "resetTask"
	MethodGetSettings   = "getSettings"
	MethodSaveSettings  = "saveSettings"
)

// ErrUnknownMethod is returned by Dispatch for an unrecognised method.
var ErrUnknownMethod = errors.New("unknown method")

// Tasks is the subset of the task controller the service needs.
type Tasks interface {
	IsRunning() (bool, error)
	Cancel() (bool, error)
	Reset() (bool, error)
	Query() (task.State, error)
}

// Organizer runs the organize workflow.
type Organizer interface {
	Organize(ctx context.Context) organizer.Outcome
	UngroupAll(ctx context.Context) error
}

// OrganizeResponse answers organize.
type OrganizeResponse struct {
	Success    bool     `json:"success"`
	GroupCount *int     `json:"groupCount,omitempty"`
	Error      string   `json:"error,omitempty"`
	Debug      []string `json:"debug,omitempty"`
}

// SimpleResponse answers ungroup, cancelTask, resetTask and saveSettings.
type SimpleResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// StatusResponse answers getTaskStatus.
type StatusResponse struct {
	State task.Envelope `json:"state"`
}

// SettingsResponse answers getSettings. The API key is redacted.
type SettingsResponse struct {
	Settings   settings.Settings `json:"settings"`
	Configured bool              `json:"configured"`
}

// Service implements the exposed operations.
type Service struct {
	tasks     Tasks
	organizer Organizer
	settings  settings.Store
	logger    *logging.Logger

	organizing atomic.Bool
}

// NewService creates a Service. A nil logger discards output.
func NewService(tasks Tasks, org Organizer, store settings.Store, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Service{tasks: tasks, organizer: org, settings: store, logger: logger}
}

// Organize runs the workflow unless a task is already running, either in
// this process or according to the persisted state.
func (s *Service) Organize(ctx context.Context) OrganizeResponse {
	if !s.organizing.CompareAndSwap(false, true) {
		return OrganizeResponse{Error: AlreadyRunningMessage}
	}
	defer s.organizing.Store(false)

	running, err := s.tasks.IsRunning()
	if err != nil {
		return OrganizeResponse{Error: err.Error()}
	}
	if running {
		return OrganizeResponse{Error: AlreadyRunningMessage}
	}

	out := s.organizer.Organize(ctx)
	resp := OrganizeResponse{Success: out.Success, Error: out.Error, Debug: out.Debug}
	if out.Success {
		n := out.GroupCount
		resp.GroupCount = &n
	}
	s.logger.Info("organize finished", "success", out.Success, "group_count", out.GroupCount, "error", out.Error)
	return resp
}

// UngroupAll removes every group in the focused window.
func (s *Service) UngroupAll(ctx context.Context) SimpleResponse {
	if err := s.organizer.UngroupAll(ctx); err != nil {
		return SimpleResponse{Error: err.Error()}
	}
	return SimpleResponse{Success: true}
}

// CancelCurrentTask cancels the running task.
func (s *Service) CancelCurrentTask() SimpleResponse {
	running, err := s.tasks.IsRunning()
	if err != nil {
		return SimpleResponse{Error: err.Error()}
	}
	if !running {
		return SimpleResponse{Error: NoTaskRunningMessage}
	}
	ok, err := s.tasks.Cancel()
	if err != nil {
		return SimpleResponse{Error: err.Error()}
	}
	return SimpleResponse{Success: ok}
}

// GetTaskStatus returns the persisted task state.
func (s *Service) GetTaskStatus() (StatusResponse, error) {
	st, err := s.tasks.Query()
	if err != nil {
		return StatusResponse{}, err
	}
	return StatusResponse{State: task.Envelope{State: st}}, nil
}

// ResetTask returns a finished task to idle. It is refused while running.
func (s *Service) ResetTask() SimpleResponse {
	ok, err := s.tasks.Reset()
	if err != nil {
		return SimpleResponse{Error: err.Error()}
	}
	return SimpleResponse{Success: ok}
}

// GetSettings returns the current settings with the key redacted.
func (s *Service) GetSettings() (SettingsResponse, error) {
	cur, err := s.settings.Get()
	if err != nil {
		return SettingsResponse{}, err
	}
	return SettingsResponse{Settings: cur.Redacted(), Configured: cur.Validate() == nil}, nil
}

// SaveSettings merges p into the settings.
func (s *Service) SaveSettings(p settings.Patch) SimpleResponse {
	if err := s.settings.Set(p); err != nil {
		return SimpleResponse{Error: err.Error()}
	}
	return SimpleResponse{Success: true}
}

// Dispatch routes a wire method to its operation and returns the response
// value to serialise.
func (s *Service) Dispatch(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case MethodOrganize:
		return s.Organize(ctx), nil
	case MethodUngroup:
		return s.UngroupAll(ctx), nil
	case MethodCancelTask:
		return s.CancelCurrentTask(), nil
	case MethodGetTaskStatus:
		return s.GetTaskStatus()
	case MethodResetTask:
		return s.ResetTask(), nil
	case MethodGetSettings:
		return s.GetSettings()
	case MethodSaveSettings:
		var p settings.Patch
		if len(params) > 0 && string(params) != "null" {
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, fmt.Errorf("decode settings patch: %w", err)
			}
		}
		return s.SaveSettings(p), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}
