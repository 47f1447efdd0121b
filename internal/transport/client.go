package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vim89/llm4s-sub012/internal/clock"
	"github.com/vim89/llm4s-sub012/internal/logging"
	"github.com/vim89/llm4s-sub012/internal/protocol"
)

const (
	// DefaultCommandTimeout bounds how long Send waits for a response.
	DefaultCommandTimeout = 30 * time.Second
	// DefaultResponseGrace is how long past an execute_command's own timeoutMs
	// Send keeps waiting for the runner to report the timeout.
	DefaultResponseGrace = 5 * time.Second
)

// Options configures a Client.
type Options struct {
	// CommandTimeout defaults to DefaultCommandTimeout. An execute_command
	// carrying timeoutMs waits at least timeoutMs plus ResponseGrace.
	CommandTimeout time.Duration
	// ResponseGrace defaults to DefaultResponseGrace.
	ResponseGrace time.Duration

	// HandshakeTimeout bounds the WebSocket handshake in Dial.
	HandshakeTimeout time.Duration

	Logger *logging.Logger
	Clock  clock.Clock
}

func (o Options) withDefaults() Options {
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = DefaultCommandTimeout
	}
	if o.ResponseGrace <= 0 {
		o.ResponseGrace = DefaultResponseGrace
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 45 * time.Second
	}
	if o.Logger == nil {
		o.Logger = logging.Default()
	}
	if o.Clock == nil {
		o.Clock = clock.RealClock{}
	}
	return o
}

// result is what a pending slot receives.
type result struct {
	resp protocol.Response
	err  error
}

// Client is the controller's end of a runner connection. It is safe for
// concurrent use; responses are matched to callers by commandId.
type Client struct {
	conn   Conn
	opts   Options
	logger *logging.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan result
	streams map[string]*outputStream
	closed  bool
	err     error

	lastAck   atomic.Int64 // Unix milliseconds, 0 = never
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to a runner's WebSocket endpoint.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	opts = opts.withDefaults()
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial websocket %s: %w", url, err)
	}
	return NewClient(conn, opts), nil
}

// NewClient starts a Client on an established connection.
func NewClient(conn Conn, opts Options) *Client {
	opts = opts.withDefaults()
	c := &Client{
		conn:    conn,
		opts:    opts,
		logger:  opts.Logger.WithComponent("transport.client"),
		pending: make(map[string]chan result),
		streams: make(map[string]*outputStream),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Send sends cmd and waits for its response. An ErrorResponse from the runner
// is returned as the error (a *protocol.ErrorResponse) alongside the response.
func (c *Client) Send(ctx context.Context, cmd protocol.Command) (protocol.Response, error) {
	return c.send(ctx, cmd, nil)
}

// SendStreaming is Send with handler receiving the command's streaming
// output in order. It returns once the response has arrived and every
// output chunk received before it has been handled.
func (c *Client) SendStreaming(ctx context.Context, cmd protocol.Command, handler OutputHandler) (protocol.Response, error) {
	if handler == nil {
		return c.send(ctx, cmd, nil)
	}
	stream := newOutputStream(handler, c.logger)
	resp, err := c.send(ctx, cmd, stream)
	stream.finish()
	select {
	case <-stream.drained:
	case <-ctx.Done():
	}
	return resp, err
}

func (c *Client) send(ctx context.Context, cmd protocol.Command, stream *outputStream) (protocol.Response, error) {
	if cmd == nil {
		return nil, errors.New("nil command")
	}
	id := cmd.ID()
	slot := make(chan result, 1)

	// Register before writing so a fast response always finds its slot
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	if _, dup := c.pending[id]; dup {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateCommand, id)
	}
	c.pending[id] = slot
	if stream != nil {
		c.streams[id] = stream
	}
	c.mu.Unlock()

	data, err := protocol.EncodeMessage(protocol.CommandMessage{Command: cmd})
	if err != nil {
		c.forget(id)
		return nil, err
	}
	if err := c.write(data); err != nil {
		c.forget(id)
		return nil, err
	}

	wait := c.responseTimeout(cmd)
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case r := <-slot:
		return r.resp, r.err
	case <-timer.C:
		c.forget(id)
		return nil, &CommandTimeoutError{CommandID: id, After: wait}
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

// responseTimeout is how long send waits for the response to cmd.
func (c *Client) responseTimeout(cmd protocol.Command) time.Duration {
	exec, ok := cmd.(protocol.ExecuteCommand)
	if !ok || exec.TimeoutMs == nil || *exec.TimeoutMs <= 0 {
		return c.opts.CommandTimeout
	}
	return max(c.opts.CommandTimeout, time.Duration(*exec.TimeoutMs)*time.Millisecond+c.opts.ResponseGrace)
}

// forget drops the bookkeeping for id. A late response is then discarded.
func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	stream := c.streams[id]
	delete(c.streams, id)
	c.mu.Unlock()
	if stream != nil {
		stream.finish()
	}
}

// SendHeartbeat sends a heartbeat. The acknowledgement is recorded by the
// read loop and reported by LastHeartbeatAck.
func (c *Client) SendHeartbeat(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := protocol.EncodeMessage(protocol.Heartbeat{Timestamp: c.opts.Clock.Now().UnixMilli()})
	if err != nil {
		return err
	}
	return c.write(data)
}

// LastHeartbeatAck returns when the last heartbeat_response arrived, or the
// zero time if none has.
func (c *Client) LastHeartbeatAck() time.Time {
	ms := c.lastAck.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Done is closed when the connection has ended.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection ended, or nil while it is open.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close ends the connection. Every waiting Send fails with ErrConnectionClosed.
func (c *Client) Close() error {
	c.teardown(ErrConnectionClosed)
	return nil
}

func (c *Client) write(data []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	return nil
}

// teardown runs once: it fails every pending command, clears the maps and
// closes the connection.
func (c *Client) teardown(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.err = cause
		pending := c.pending
		streams := c.streams
		c.pending = make(map[string]chan result)
		c.streams = make(map[string]*outputStream)
		c.mu.Unlock()

		for _, slot := range pending {
			slot <- result{err: ErrConnectionClosed}
		}
		for _, stream := range streams {
			stream.finish()
		}
		close(c.done)
		if err := c.conn.Close(); err != nil {
			c.logger.Debug("close failed", "error", err)
		}
		c.logger.Debug("connection closed", "pending_failed", len(pending), "cause", cause)
	})
}

func (c *Client) readLoop() {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			c.teardown(fmt.Errorf("%w: %v", ErrConnectionClosed, err))
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		msg, err := protocol.DecodeMessage(data)
		if err != nil {
			c.logger.Warn("dropping undecodable frame", "error", err)
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.ResponseMessage:
		c.deliver(m.Response)
	case protocol.StreamingOutput:
		c.mu.Lock()
		stream := c.streams[m.CommandID]
		if m.IsComplete {
			delete(c.streams, m.CommandID)
		}
		c.mu.Unlock()
		if stream == nil {
			return
		}
		stream.push(m)
		if m.IsComplete {
			stream.finish()
		}
	case protocol.HeartbeatResponse:
		c.lastAck.Store(c.opts.Clock.Now().UnixMilli())
	case protocol.CommandStarted:
		c.logger.Debug("command started", "command_id", m.CommandID)
	case protocol.CommandCompleted:
		c.logger.Debug("command completed", "command_id", m.CommandID, "success", m.Success)
	case protocol.ErrorMessage:
		c.logger.Warn("runner reported an error", "error", m.Message)
	default:
		c.logger.Debug("ignoring message", "type", msg.Type())
	}
}

func (c *Client) deliver(resp protocol.Response) {
	id := resp.ID()
	c.mu.Lock()
	slot, ok := c.pending[id]
	delete(c.pending, id)
	stream := c.streams[id]
	delete(c.streams, id)
	c.mu.Unlock()

	if stream != nil {
		stream.finish()
	}
	if !ok {
		c.logger.Warn("response for unknown command", "command_id", id)
		return
	}

	if errResp, isErr := resp.(protocol.ErrorResponse); isErr {
		slot <- result{resp: resp, err: &errResp}
		return
	}
	slot <- result{resp: resp}
}
