package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/tabgroup/internal/logging"
	"github.com/Iron-Ham/tabgroup/internal/nativemsg"
)

// Peer is one end of the extension connection.
type Peer struct {
	reader  *nativemsg.Reader
	writer  *nativemsg.Writer
	handler Handler
	config  config
	logger  *logging.Logger

	mu       sync.Mutex
	pending  map[string]chan Envelope
	inflight int
	closed   bool
	done     chan struct{}
}

// New creates a peer reading frames from r and writing frames to w.
func New(r io.Reader, w io.Writer, handler Handler, opts ...Option) *Peer {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Peer{
		reader:  nativemsg.NewReader(r),
		writer:  nativemsg.NewWriter(w),
		handler: handler,
		config:  cfg,
		logger:  logger.With("component", "bridge"),
		pending: make(map[string]chan Envelope),
		done:    make(chan struct{}),
	}
}

type readResult struct {
	raw json.RawMessage
	err error
}

// Serve reads envelopes until the stream ends or ctx is cancelled. It
// returns nil on a clean end of stream. In-flight request handlers are
// cancelled with cause ErrClosed and awaited before Serve returns, and
// pending calls fail with ErrClosed.
//
// Serve never blocks on a handler: requests over the concurrency limit are
// answered with ErrBusy straight away, so results for calls made by running
// handlers keep flowing.
func (p *Peer) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	handlers := pool.New()
	defer func() {
		p.close()
		cancel(ErrClosed)
		handlers.Wait()
	}()

	frames := make(chan readResult)
	go p.readLoop(frames)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-frames:
			if !ok {
				return nil
			}
			if res.err != nil {
				return res.err
			}
			p.route(ctx, handlers, res.raw)
		}
	}
}

// readLoop feeds frames to Serve. Reads cannot be interrupted, so on
// cancellation the goroutine stays blocked until the stream ends.
func (p *Peer) readLoop(frames chan<- readResult) {
	defer close(frames)
	for {
		raw, err := p.reader.Read()
		if errors.Is(err, io.EOF) {
			return
		}
		if errors.Is(err, nativemsg.ErrInvalidJSON) {
			p.logger.Warn("dropping malformed frame")
			continue
		}
		select {
		case frames <- readResult{raw: raw, err: err}:
		case <-p.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (p *Peer) route(ctx context.Context, handlers *pool.Pool, raw json.RawMessage) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		p.logger.Warn("dropping undecodable envelope", "error", err)
		return
	}

	switch env.Kind {
	case KindRequest:
		if !p.admit(env.Method) {
			p.logger.Warn("rejecting request, handlers busy", "method", env.Method, "id", env.ID)
			p.respond(env, nil, ErrBusy)
			return
		}
		handlers.Go(func() {
			defer p.release(env.Method)
			p.handleRequest(ctx, env)
		})
	case KindResult:
		p.deliver(env)
	default:
		p.logger.Warn("ignoring envelope", "kind", string(env.Kind), "id", env.ID)
	}
}

// admit reserves a handler slot. Control methods are always admitted and
// do not count against the limit.
func (p *Peer) admit(method string) bool {
	if p.config.controlMethods[method] {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inflight >= p.config.maxConcurrent {
		return false
	}
	p.inflight++
	return true
}

func (p *Peer) release(method string) {
	if p.config.controlMethods[method] {
		return
	}
	p.mu.Lock()
	p.inflight--
	p.mu.Unlock()
}

func (p *Peer) handleRequest(ctx context.Context, req Envelope) {
	result, err := p.dispatch(ctx, req)
	p.respond(req, result, err)
}

func (p *Peer) respond(req Envelope, result any, err error) {
	resp := Envelope{ID: req.ID, Kind: KindResponse, Method: req.Method}
	if err != nil {
		resp.Error = err.Error()
	} else if result != nil {
		body, merr := json.Marshal(result)
		if merr != nil {
			resp.Error = fmt.Sprintf("encode result: %v", merr)
		} else {
			resp.Result = body
		}
	}

	err = p.writer.Write(resp)
	if errors.Is(err, nativemsg.ErrMessageTooLarge) {
		p.logger.Warn("response too large", "method", req.Method, "id", req.ID)
		err = p.writer.Write(Envelope{
			ID:     req.ID,
			Kind:   KindResponse,
			Method: req.Method,
			Error:  "response exceeds native messaging limit",
		})
	}
	if err != nil {
		p.logger.Error("failed to write response", "method", req.Method, "error", err)
	}
}

func (p *Peer) dispatch(ctx context.Context, req Envelope) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("request handler panicked", "method", req.Method, "panic", r)
			err = fmt.Errorf("internal error handling %s", req.Method)
		}
	}()
	p.logger.Debug("request", "method", req.Method, "id", req.ID)
	return p.handler.Dispatch(ctx, req.Method, req.Params)
}

func (p *Peer) deliver(env Envelope) {
	p.mu.Lock()
	ch, ok := p.pending[env.ID]
	delete(p.pending, env.ID)
	p.mu.Unlock()

	if !ok {
		p.logger.Warn("result for unknown call", "id", env.ID)
		return
	}
	ch <- env
}

// Call sends a call envelope and waits for its result. A non-nil out
// receives the decoded result. Errors reported by the extension are
// returned as *RemoteError.
func (p *Peer) Call(ctx context.Context, method string, params, out any) error {
	raw, err := encodeParams(params)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	id := p.config.newID()
	ch := make(chan Envelope, 1)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.pending[id] = ch
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()

	if err := p.writer.Write(Envelope{ID: id, Kind: KindCall, Method: method, Params: raw}); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	select {
	case env := <-ch:
		if env.Error != "" {
			return &RemoteError{Method: method, Message: env.Error}
		}
		if out != nil && len(env.Result) > 0 {
			if err := json.Unmarshal(env.Result, out); err != nil {
				return fmt.Errorf("%s: decode result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrClosed
	}
}

// Notify pushes an event to the extension.
func (p *Peer) Notify(method string, params any) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}

	raw, err := encodeParams(params)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return p.writer.Write(Envelope{Kind: KindEvent, Method: method, Params: raw})
}

// Done is closed once Serve stops reading. Handlers may still be draining.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

func (p *Peer) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.done)
}

func encodeParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	return body, nil
}
