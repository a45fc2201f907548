package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind tags an envelope's role in the protocol.
type Kind string

// Envelope kinds.
const (
	KindRequest  Kind = "request"
	KindResponse Kind = "response"
	KindCall     Kind = "call"
	KindResult   Kind = "result"
	KindEvent    Kind = "event"
)

// Envelope is one message on the wire.
type Envelope struct {
	ID     string          `json:"id,omitempty"`
	Kind   Kind            `json:"kind"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

var (
	// ErrClosed is returned by Call and Notify once the peer has stopped.
	ErrClosed = errors.New("bridge closed")
	// ErrBusy is the error response for a request that arrives while every
	// handler slot is taken.
	ErrBusy = errors.New("host busy: too many requests in flight")
)

// RemoteError is an error reported by the extension for an outgoing call.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Message)
}

// Handler serves incoming requests.
type Handler interface {
	Dispatch(ctx context.Context, method string, params json.RawMessage) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, method string, params json.RawMessage) (any, error)

// Dispatch calls f.
func (f HandlerFunc) Dispatch(ctx context.Context, method string, params json.RawMessage) (any, error) {
	return f(ctx, method, params)
}

// Caller issues calls to the extension. *Peer implements it.
type Caller interface {
	Call(ctx context.Context, method string, params, out any) error
}
