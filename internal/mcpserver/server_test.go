package mcpserver

import (
	"context"
	"errors"
	"net"
	"slices"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Iron-Ham/tabgroup/internal/api"
	"github.com/Iron-Ham/tabgroup/internal/task"
)

type fakeOps struct {
	organize  api.OrganizeResponse
	ungroup   api.SimpleResponse
	cancel    api.SimpleResponse
	reset     api.SimpleResponse
	state     task.State
	statusErr error
	calls     []string
}

func (f *fakeOps) Organize(context.Context) api.OrganizeResponse {
	f.calls = append(f.calls, "organize")
	return f.organize
}

func (f *fakeOps) UngroupAll(context.Context) api.SimpleResponse {
	f.calls = append(f.calls, "ungroup")
	return f.ungroup
}

func (f *fakeOps) CancelCurrentTask() api.SimpleResponse {
	f.calls = append(f.calls, "cancel")
	return f.cancel
}

func (f *fakeOps) GetTaskStatus() (api.StatusResponse, error) {
	f.calls = append(f.calls, "status")
	return api.StatusResponse{State: task.Envelope{State: f.state}}, f.statusErr
}

func (f *fakeOps) ResetTask() api.SimpleResponse {
	f.calls = append(f.calls, "reset")
	return f.reset
}

func TestOrganizeTool(t *testing.T) {
	five := 5
	tests := []struct {
		name string
		resp api.OrganizeResponse
		want OrganizeOutput
	}{
		{
			name: "success",
			resp: api.OrganizeResponse{Success: true, GroupCount: &five, Debug: []string{"Done!"}},
			want: OrganizeOutput{Success: true, GroupCount: 5, Debug: []string{"Done!"}},
		},
		{
			name: "refused",
			resp: api.OrganizeResponse{Error: api.AlreadyRunningMessage},
			want: OrganizeOutput{Error: api.AlreadyRunningMessage},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops := &fakeOps{organize: tt.resp}
			_, got, err := New(ops, "test", nil).organize(context.Background(), nil, noInput{})
			if err != nil {
				t.Fatalf("organize() error = %v", err)
			}
			if got.Success != tt.want.Success || got.GroupCount != tt.want.GroupCount ||
				got.Error != tt.want.Error || !slices.Equal(got.Debug, tt.want.Debug) {
				t.Errorf("organize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSimpleTools(t *testing.T) {
	ops := &fakeOps{
		ungroup: api.SimpleResponse{Success: true},
		cancel:  api.SimpleResponse{Error: api.NoTaskRunningMessage},
		reset:   api.SimpleResponse{Success: true},
	}
	s := New(ops, "test", nil)
	ctx := context.Background()

	if _, out, _ := s.ungroup(ctx, nil, noInput{}); !out.Success {
		t.Errorf("ungroup() = %+v", out)
	}
	if _, out, _ := s.cancel(ctx, nil, noInput{}); out.Success || out.Error != api.NoTaskRunningMessage {
		t.Errorf("cancel() = %+v", out)
	}
	if _, out, _ := s.reset(ctx, nil, noInput{}); !out.Success {
		t.Errorf("reset() = %+v", out)
	}
	if want := []string{"ungroup", "cancel", "reset"}; !slices.Equal(ops.calls, want) {
		t.Errorf("calls = %v, want %v", ops.calls, want)
	}
}

func TestStatusOutput(t *testing.T) {
	at := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	tests := []struct {
		name  string
		state task.State
		want  StatusOutput
	}{
		{name: "nil", state: nil, want: StatusOutput{Status: "idle"}},
		{name: "idle", state: task.Idle{}, want: StatusOutput{Status: "idle"}},
		{
			name:  "running",
			state: task.Running{RunID: "r1", Phase: task.PhaseCallingAI, StartedAt: at},
			want:  StatusOutput{Status: "running", RunID: "r1", Phase: "calling-ai", UpdatedAt: "2026-05-04T10:30:00Z"},
		},
		{
			name:  "completed",
			state: task.Completed{Result: task.Result{GroupCount: 3}, CompletedAt: at},
			want:  StatusOutput{Status: "completed", GroupCount: 3, UpdatedAt: "2026-05-04T10:30:00Z"},
		},
		{
			name:  "cancelled",
			state: task.Cancelled{CancelledAt: at},
			want:  StatusOutput{Status: "cancelled", UpdatedAt: "2026-05-04T10:30:00Z"},
		},
		{
			name:  "failed",
			state: task.Failed{Error: "No tabs found"},
			want:  StatusOutput{Status: "error", Error: "No tabs found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusOutput(tt.state); got != tt.want {
				t.Errorf("statusOutput() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStatusTool_Error(t *testing.T) {
	ops := &fakeOps{statusErr: errors.New("state unreadable")}
	_, _, err := New(ops, "test", nil).status(context.Background(), nil, noInput{})
	if err == nil {
		t.Fatal("status() error = nil, want error")
	}
}

func TestServer_InMemoryClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ops := &fakeOps{state: task.Failed{Error: "AI request failed"}}
	s := New(ops, "test", nil)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	if _, err := s.MCP().Connect(ctx, serverTransport, nil); err != nil {
		t.Fatalf("server Connect() error = %v", err)
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client Connect() error = %v", err)
	}
	defer func() { _ = session.Close() }()

	tools, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools() error = %v", err)
	}
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	slices.Sort(names)
	want := []string{ToolCancelTask, ToolGetTaskStatus, ToolOrganizeTabs, ToolResetTask, ToolUngroupTabs}
	slices.Sort(want)
	if !slices.Equal(names, want) {
		t.Errorf("tools = %v, want %v", names, want)
	}

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: ToolGetTaskStatus, Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("CallTool() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("CallTool() returned a tool error: %+v", res.Content)
	}
	if !slices.Contains(ops.calls, "status") {
		t.Error("get_task_status did not query the service")
	}
}

func TestServer_ServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(&fakeOps{}, "test", nil).Serve(ctx, ln) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}
}
