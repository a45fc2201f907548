package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/tabgroup/internal/ai"
	"github.com/Iron-Ham/tabgroup/internal/api"
	"github.com/Iron-Ham/tabgroup/internal/bridge"
	"github.com/Iron-Ham/tabgroup/internal/chrome"
	"github.com/Iron-Ham/tabgroup/internal/config"
	"github.com/Iron-Ham/tabgroup/internal/event"
	"github.com/Iron-Ham/tabgroup/internal/kvstore"
	"github.com/Iron-Ham/tabgroup/internal/logging"
	"github.com/Iron-Ham/tabgroup/internal/mcpserver"
	"github.com/Iron-Ham/tabgroup/internal/organizer"
	"github.com/Iron-Ham/tabgroup/internal/settings"
	"github.com/Iron-Ham/tabgroup/internal/task"
)

var hostCmd = &cobra.Command{
	Use:   "host [origin]",
	Short: "Run the native messaging host on stdin/stdout",
	Long: `Run the native messaging host. The browser normally starts the host
itself; this command is useful for debugging the protocol by hand.

stdout carries the native messaging channel, so all logging goes to
host.log in the state directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		origin := ""
		if len(args) == 1 {
			origin = args[0]
		}
		return runHost(cmd, origin)
	},
}

func init() {
	rootCmd.AddCommand(hostCmd)
}

// ErrOriginNotAllowed is returned when the calling extension is not listed
// in host.allowed_origins.
var ErrOriginNotAllowed = errors.New("caller origin not allowed")

func runHost(cmd *cobra.Command, origin string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	stateDir := cfg.Paths.ResolveStateDir()
	logger, err := logging.NewLogger(stateDir, cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		return fmt.Errorf("open host log: %w", err)
	}
	defer func() { _ = logger.Close() }()

	if err := checkOrigin(origin, cfg.Host.AllowedOrigins); err != nil {
		logger.Error("rejecting caller", "origin", origin)
		return err
	}
	logger.Info("host starting", "version", Version, "origin", origin, "pid", os.Getpid())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := newHost(cfg, stateDir, os.Stdin, os.Stdout, logger)
	if err != nil {
		logger.Error("host setup failed", "error", err)
		return err
	}
	return h.run(ctx)
}

// checkOrigin accepts any origin when allowed is empty.
func checkOrigin(origin string, allowed []string) error {
	if len(allowed) == 0 {
		return nil
	}
	normalize := func(s string) string { return strings.TrimSuffix(s, "/") }
	if slices.ContainsFunc(allowed, func(a string) bool { return normalize(a) == normalize(origin) }) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrOriginNotAllowed, origin)
}

// host wires the task controller, organizer and service to one extension
// connection.
type host struct {
	cfg     *config.Config
	logger  *logging.Logger
	bus     *event.Bus
	tasks   *task.Controller
	peer    *bridge.Peer
	service *api.Service
}

func newHost(cfg *config.Config, stateDir string, in io.Reader, out io.Writer, logger *logging.Logger) (*host, error) {
	store, err := kvstore.Open(stateDir)
	if err != nil {
		return nil, err
	}

	bus := event.NewBus()
	bus.SetPanicHandler(func(eventType string, recovered any, _ []byte) {
		logger.Error("event handler panicked", "event", eventType, "panic", recovered)
	})
	tasks := task.NewController(store,
		task.WithBus(bus),
		task.WithLogger(logger),
		task.WithRunLock(store.RunLock()),
	)

	h := &host{cfg: cfg, logger: logger, bus: bus, tasks: tasks}

	// The service needs the peer as its window, so the peer's handler
	// reads h.service, which is set below before Serve starts.
	h.peer = bridge.New(in, out, bridge.HandlerFunc(h.dispatch),
		bridge.WithLogger(logger),
		bridge.WithControlMethods(api.MethodCancelTask, api.MethodGetTaskStatus, api.MethodResetTask),
	)

	settingsStore := settings.NewViperStore(viper.GetViper(), writableConfigFile())
	org := organizer.New(tasks, chrome.NewWindow(h.peer), ai.NewRouter(), settingsStore,
		organizer.WithLogger(logger))
	h.service = api.NewService(tasks, org, settingsStore, logger)
	return h, nil
}

func (h *host) dispatch(ctx context.Context, method string, params json.RawMessage) (any, error) {
	return h.service.Dispatch(ctx, method, params)
}

func (h *host) run(ctx context.Context) error {
	recovered, err := h.tasks.Recover()
	if err != nil {
		return err
	}
	if recovered {
		h.logger.Warn("previous host exited during a task")
	}

	subID := h.bus.SubscribeAll(h.forwardEvent)
	defer h.bus.Unsubscribe(subID)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mcpDone := make(chan struct{})
	if addr := h.cfg.Host.MCPAddr; addr != "" {
		srv := mcpserver.New(h.service, Version, h.logger)
		go func() {
			defer close(mcpDone)
			if err := srv.ListenAndServe(ctx, addr); err != nil {
				h.logger.Error("mcp server stopped", "error", err)
			}
		}()
	} else {
		close(mcpDone)
	}

	err = h.peer.Serve(ctx)
	cancel()
	<-mcpDone

	if err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Error("bridge stopped", "error", err)
		return err
	}
	h.logger.Info("host stopped")
	return nil
}

// forwardEvent pushes task transitions to the extension so its UI can
// update without polling.
func (h *host) forwardEvent(e event.Event) {
	te, ok := e.(event.TaskEvent)
	if !ok {
		return
	}
	if err := h.peer.Notify(te.EventType(), te); err != nil && !errors.Is(err, bridge.ErrClosed) {
		h.logger.Warn("failed to forward task event", "event", te.EventType(), "error", err)
	}
}
