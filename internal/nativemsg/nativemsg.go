// Package nativemsg implements Chrome's native messaging framing: each
// message is UTF-8 JSON preceded by its length as a 32-bit unsigned integer
// in native byte order.
package nativemsg

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

const (
	// MaxOutgoing is the largest message a host may send to the browser.
	MaxOutgoing = 1 << 20
	// DefaultMaxIncoming bounds messages read from the browser.
	DefaultMaxIncoming = 64 << 20
)

var (
	// ErrMessageTooLarge is returned for a message over the size limit.
	ErrMessageTooLarge = errors.New("native message too large")
	// ErrInvalidJSON is returned for a well-framed message whose body is not
	// JSON. The stream stays aligned, so reading may continue.
	ErrInvalidJSON = errors.New("native message is not valid JSON")
)

// Reader reads framed messages.
type Reader struct {
	r   io.Reader
	max uint32
}

// NewReader returns a Reader that rejects messages above DefaultMaxIncoming.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, max: DefaultMaxIncoming}
}

// SetLimit changes the inbound size limit.
func (r *Reader) SetLimit(n uint32) {
	r.max = n
}

// Read returns the next message. It returns io.EOF when the stream ends
// cleanly between messages and io.ErrUnexpectedEOF when it ends mid-frame.
func (r *Reader) Read() (json.RawMessage, error) {
	var size uint32
	if err := binary.Read(r.r, binary.NativeEndian, &size); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read length: %w", err)
	}
	if size > r.max {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrMessageTooLarge, size, r.max)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read body: %w", err)
	}
	if !json.Valid(buf) {
		return nil, ErrInvalidJSON
	}
	return json.RawMessage(buf), nil
}

// Writer writes framed messages. It is safe for concurrent use.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter returns a Writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes v as JSON and writes it as one frame.
func (w *Writer) Write(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if len(body) > MaxOutgoing {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrMessageTooLarge, len(body), MaxOutgoing)
	}

	frame := make([]byte, 4+len(body))
	binary.NativeEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(frame); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}
