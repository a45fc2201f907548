// Package mcpserver exposes the task operations as MCP tools over
// streamable HTTP, so agents can organize tabs through the running host.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Iron-Ham/tabgroup/internal/api"
	"github.com/Iron-Ham/tabgroup/internal/logging"
	"github.com/Iron-Ham/tabgroup/internal/task"
)

// Tool names.
const (
	ToolOrganizeTabs  = "organize_tabs"
	ToolUngroupTabs   = "ungroup_tabs"
	ToolCancelTask    = "cancel_task"
	ToolGetTaskStatus = "get_task_status"
	ToolResetTask     = "reset_task"
)

const shutdownTimeout = 5 * time.Second

// Operations is the slice of api.Service the tools call.
type Operations interface {
	Organize(ctx context.Context) api.OrganizeResponse
	UngroupAll(ctx context.Context) api.SimpleResponse
	CancelCurrentTask() api.SimpleResponse
	GetTaskStatus() (api.StatusResponse, error)
	ResetTask() api.SimpleResponse
}

// noInput is the argument type of tools that take no arguments.
type noInput struct{}

// OrganizeOutput is the result of organize_tabs.
type OrganizeOutput struct {
	Success    bool     `json:"success"`
	GroupCount int      `json:"groupCount,omitempty" jsonschema:"number of tab groups created"`
	Error      string   `json:"error,omitempty"`
	Debug      []string `json:"debug,omitempty" jsonschema:"debug trace, present when debug mode is on"`
}

// SimpleOutput is the result of tools that only report success.
type SimpleOutput struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// StatusOutput flattens the task state for tool callers.
type StatusOutput struct {
	Status     string `json:"status" jsonschema:"idle, running, completed, cancelled or error"`
	RunID      string `json:"runId,omitempty"`
	Phase      string `json:"phase,omitempty"`
	GroupCount int    `json:"groupCount,omitempty"`
	Error      string `json:"error,omitempty"`
	UpdatedAt  string `json:"updatedAt,omitempty" jsonschema:"RFC 3339 time of the last transition"`
}

// Server serves the task tools.
type Server struct {
	ops    Operations
	mcp    *mcp.Server
	logger *logging.Logger
}

// New registers the tools on a fresh MCP server.
func New(ops Operations, version string, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NopLogger()
	}
	s := &Server{
		ops:    ops,
		mcp:    mcp.NewServer(&mcp.Implementation{Name: "tabgroup", Version: version}, nil),
		logger: logger.With("component", "mcp"),
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolOrganizeTabs,
		Description: "Group the tabs of the focused browser window by topic using the configured AI provider.",
	}, s.organize)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolUngroupTabs,
		Description: "Remove every tab group in the focused browser window.",
	}, s.ungroup)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolCancelTask,
		Description: "Cancel the running organize task.",
	}, s.cancel)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolGetTaskStatus,
		Description: "Report the status of the current or last organize task.",
	}, s.status)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolResetTask,
		Description: "Clear a finished task so the status reads idle.",
	}, s.reset)
	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *mcp.Server {
	return s.mcp
}

// Handler returns the streamable HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("mcp server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown mcp server: %w", err)
		}
		return nil
	}
}

func (s *Server) organize(ctx context.Context, _ *mcp.CallToolRequest, _ noInput) (*mcp.CallToolResult, OrganizeOutput, error) {
	s.logger.Info("tool call", "tool", ToolOrganizeTabs)
	resp := s.ops.Organize(ctx)
	out := OrganizeOutput{Success: resp.Success, Error: resp.Error, Debug: resp.Debug}
	if resp.GroupCount != nil {
		out.GroupCount = *resp.GroupCount
	}
	return nil, out, nil
}

func (s *Server) ungroup(ctx context.Context, _ *mcp.CallToolRequest, _ noInput) (*mcp.CallToolResult, SimpleOutput, error) {
	s.logger.Info("tool call", "tool", ToolUngroupTabs)
	return nil, simple(s.ops.UngroupAll(ctx)), nil
}

func (s *Server) cancel(_ context.Context, _ *mcp.CallToolRequest, _ noInput) (*mcp.CallToolResult, SimpleOutput, error) {
	s.logger.Info("tool call", "tool", ToolCancelTask)
	return nil, simple(s.ops.CancelCurrentTask()), nil
}

func (s *Server) reset(_ context.Context, _ *mcp.CallToolRequest, _ noInput) (*mcp.CallToolResult, SimpleOutput, error) {
	s.logger.Info("tool call", "tool", ToolResetTask)
	return nil, simple(s.ops.ResetTask()), nil
}

func (s *Server) status(_ context.Context, _ *mcp.CallToolRequest, _ noInput) (*mcp.CallToolResult, StatusOutput, error) {
	resp, err := s.ops.GetTaskStatus()
	if err != nil {
		return nil, StatusOutput{}, err
	}
	return nil, statusOutput(resp.State.State), nil
}

func simple(r api.SimpleResponse) SimpleOutput {
	return SimpleOutput{Success: r.Success, Error: r.Error}
}

func statusOutput(s task.State) StatusOutput {
	if s == nil {
		s = task.Idle{}
	}
	out := StatusOutput{Status: string(s.Status())}
	switch st := s.(type) {
	case task.Running:
		out.RunID = st.RunID
		out.Phase = string(st.Phase)
		out.UpdatedAt = timestamp(st.StartedAt)
	case task.Completed:
		out.GroupCount = st.Result.GroupCount
		out.UpdatedAt = timestamp(st.CompletedAt)
	case task.Cancelled:
		out.UpdatedAt = timestamp(st.CancelledAt)
	case task.Failed:
		out.Error = st.Error
		out.UpdatedAt = timestamp(st.FailedAt)
	}
	return out
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
