package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"datacenter/pkg/logging"

	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// ErrChannelClosed is returned for requests that cannot complete because
// the worker channel is gone.
var ErrChannelClosed = errors.New("worker channel closed")

// maxLoggedLine bounds how much of a discarded line is logged.
const maxLoggedLine = 256

// StdioTransport carries newline-delimited JSON-RPC messages over a
// worker's stdin and stdout. Responses are matched to pending requests by
// id, so concurrent requests may complete in any order. Lines that are not
// valid JSON-RPC, and responses nobody is waiting for, are logged and
// dropped.
type StdioTransport struct {
	name   string
	reader *bufio.Reader
	writer io.WriteCloser

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *transport.JSONRPCResponse
	closed  bool
	cause   error

	notifyMu       sync.RWMutex
	onNotification func(mcp.JSONRPCNotification)
	onLost         func(error)

	startOnce sync.Once
	done      chan struct{}
	discarded atomic.Int64
}

var _ transport.Interface = (*StdioTransport)(nil)

// NewStdioTransport wraps the pipes of a running worker.
func NewStdioTransport(name string, stdout io.Reader, stdin io.WriteCloser) *StdioTransport {
	return &StdioTransport{
		name:    name,
		reader:  bufio.NewReader(stdout),
		writer:  stdin,
		pending: make(map[string]chan *transport.JSONRPCResponse),
		done:    make(chan struct{}),
	}
}

// Start launches the reader loop. It is idempotent.
func (t *StdioTransport) Start(ctx context.Context) error {
	t.startOnce.Do(func() {
		go t.readLoop()
	})
	return nil
}

// Done is closed once the channel is shut down.
func (t *StdioTransport) Done() <-chan struct{} {
	return t.done
}

// Discarded is the number of inbound lines dropped so far.
func (t *StdioTransport) Discarded() int64 {
	return t.discarded.Load()
}

func (t *StdioTransport) readLoop() {
	for {
		line, err := t.reader.ReadBytes('\n')
		if len(line) > 0 {
			t.dispatch(line)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrChannelClosed
			} else {
				err = fmt.Errorf("%w: %v", ErrChannelClosed, err)
			}
			if t.shutdown(err) {
				t.notifyMu.RLock()
				lost := t.onLost
				t.notifyMu.RUnlock()
				if lost != nil {
					lost(err)
				}
			}
			return
		}
	}
}

type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *mcp.RequestId  `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

func (t *StdioTransport) dispatch(line []byte) {
	trimmed := trimLine(line)
	if len(trimmed) == 0 {
		return
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil || env.JSONRPC != mcp.JSONRPC_VERSION {
		t.discard("malformed message", trimmed)
		return
	}

	switch {
	case env.Method != "" && env.ID == nil:
		var n mcp.JSONRPCNotification
		if err := json.Unmarshal(trimmed, &n); err != nil {
			t.discard("malformed notification", trimmed)
			return
		}
		t.notifyMu.RLock()
		handler := t.onNotification
		t.notifyMu.RUnlock()
		if handler != nil {
			handler(n)
		}

	case env.Method != "":
		// Workers never need to call back into the orchestrator.
		resp := transport.NewJSONRPCErrorResponse(*env.ID, mcp.METHOD_NOT_FOUND, "method not supported by orchestrator", nil)
		if err := t.writeMessage(resp); err != nil {
			logging.Debug("Transport", "Failed to reject %s request from %s: %v", env.Method, t.name, err)
		}

	case env.ID != nil && (env.Result != nil || env.Error != nil):
		var resp transport.JSONRPCResponse
		if err := json.Unmarshal(trimmed, &resp); err != nil {
			t.discard("malformed response", trimmed)
			return
		}
		key := resp.ID.String()

		t.mu.Lock()
		ch, ok := t.pending[key]
		delete(t.pending, key)
		t.mu.Unlock()

		if !ok {
			t.discard("unmatched response id "+key, trimmed)
			return
		}
		ch <- &resp

	default:
		t.discard("unrecognized message", trimmed)
	}
}

func (t *StdioTransport) discard(reason string, line []byte) {
	t.discarded.Add(1)
	if len(line) > maxLoggedLine {
		line = append(line[:maxLoggedLine:maxLoggedLine], "..."...)
	}
	logging.Warn("Transport", "Discarding %s from %s: %s", reason, t.name, line)
}

// SendRequest writes request and waits for the response carrying the same
// id, the context to end, or the channel to close.
func (t *StdioTransport) SendRequest(ctx context.Context, request transport.JSONRPCRequest) (*transport.JSONRPCResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := request.ID.String()
	ch := make(chan *transport.JSONRPCResponse, 1)

	t.mu.Lock()
	if t.closed {
		cause := t.cause
		t.mu.Unlock()
		return nil, cause
	}
	if _, dup := t.pending[key]; dup {
		t.mu.Unlock()
		return nil, fmt.Errorf("request id %s already in flight", key)
	}
	t.pending[key] = ch
	t.mu.Unlock()

	forget := func() {
		t.mu.Lock()
		delete(t.pending, key)
		t.mu.Unlock()
	}

	if err := t.writeMessage(request); err != nil {
		forget()
		return nil, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		forget()
		return nil, ctx.Err()
	case <-t.done:
		// A response may have raced the shutdown.
		select {
		case resp := <-ch:
			return resp, nil
		default:
		}
		t.mu.Lock()
		cause := t.cause
		t.mu.Unlock()
		return nil, cause
	}
}

// SendNotification writes a notification; no response is expected.
func (t *StdioTransport) SendNotification(ctx context.Context, notification mcp.JSONRPCNotification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.writeMessage(notification)
}

func (t *StdioTransport) writeMessage(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	data = append(data, '\n')

	t.mu.Lock()
	closed, cause := t.closed, t.cause
	t.mu.Unlock()
	if closed {
		return cause
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("%w: write failed: %v", ErrChannelClosed, err)
	}
	return nil
}

// SetNotificationHandler installs the handler for server notifications.
func (t *StdioTransport) SetNotificationHandler(handler func(notification mcp.JSONRPCNotification)) {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()
	t.onNotification = handler
}

// SetConnectionLostHandler installs a callback run once when the worker's
// stdout ends without Close having been called.
func (t *StdioTransport) SetConnectionLostHandler(handler func(error)) {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()
	t.onLost = handler
}

// GetSessionId returns "" since stdio has no sessions.
func (t *StdioTransport) GetSessionId() string {
	return ""
}

// Close fails every pending request and closes the worker's stdin, which
// asks the worker to exit.
func (t *StdioTransport) Close() error {
	t.shutdown(ErrChannelClosed)
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.writer.Close(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("failed to close stdin: %w", err)
	}
	return nil
}

// shutdown marks the channel closed and releases pending requests. It
// reports whether this call performed the shutdown.
func (t *StdioTransport) shutdown(cause error) bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	t.closed = true
	t.cause = cause
	pending := t.pending
	t.pending = make(map[string]chan *transport.JSONRPCResponse)
	t.mu.Unlock()

	close(t.done)
	if n := len(pending); n > 0 {
		logging.Debug("Transport", "Released %d pending requests to %s: %v", n, t.name, cause)
	}
	return true
}

func trimLine(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r' || b[len(b)-1] == ' ') {
		b = b[:len(b)-1]
	}
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t') {
		b = b[1:]
	}
	return b
}
