package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/semaphore"

	"github.com/vim89/llm4s-sub012/internal/clock"
	"github.com/vim89/llm4s-sub012/internal/dispatch"
	"github.com/vim89/llm4s-sub012/internal/logging"
	"github.com/vim89/llm4s-sub012/internal/metrics"
	"github.com/vim89/llm4s-sub012/internal/protocol"
)

// DefaultMaxConcurrent bounds the commands a Session runs at once.
const DefaultMaxConcurrent = 8

// CommandHandler answers one command. dispatch.Dispatcher implements it.
type CommandHandler interface {
	Handle(ctx context.Context, cmd protocol.Command, sink dispatch.OutputSink) protocol.Response
}

// activityRecorder is told about every inbound message.
type activityRecorder interface {
	Touch()
}

// SessionOptions configures a Session.
type SessionOptions struct {
	MaxConcurrent int
	Activity      activityRecorder
	Logger        *logging.Logger
	Metrics       *metrics.Registry
	Clock         clock.Clock
}

// Session is the runner's end of one controller connection.
type Session struct {
	conn    Conn
	handler CommandHandler
	opts    SessionOptions
	logger  *logging.Logger
	metrics *metrics.Registry
	sem     *semaphore.Weighted

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// NewSession creates a Session; call Serve to run it.
func NewSession(conn Conn, handler CommandHandler, opts SessionOptions) *Session {
	if handler == nil {
		panic("handler is required")
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Get()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &Session{
		conn:    conn,
		handler: handler,
		opts:    opts,
		logger:  opts.Logger.WithComponent("transport.session"),
		metrics: opts.Metrics,
		sem:     semaphore.NewWeighted(int64(opts.MaxConcurrent)),
	}
}

// Serve reads frames until the connection ends or ctx is cancelled, then
// cancels in-flight commands, waits for them and closes the connection.
// Commands run on their own goroutines so heartbeats are answered while
// slow commands are in progress.
func (s *Session) Serve(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.metrics.SessionOpened()
	defer s.metrics.SessionClosed()

	stop := context.AfterFunc(runCtx, func() { _ = s.conn.Close() })
	defer stop()

	var readErr error
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		if s.opts.Activity != nil {
			s.opts.Activity.Touch()
		}
		if kind != websocket.TextMessage {
			continue
		}
		s.handleFrame(runCtx, data)
	}

	cancel()
	s.wg.Wait()
	_ = s.conn.Close()

	if ctx.Err() != nil || errors.Is(readErr, ErrPipeClosed) || websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return readErr
}

func (s *Session) handleFrame(ctx context.Context, data []byte) {
	msg, err := protocol.DecodeMessage(data)
	if err != nil {
		s.metrics.DecodeErrors.Inc()
		s.rejectFrame(data, err)
		return
	}

	switch m := msg.(type) {
	case protocol.Heartbeat:
		s.metrics.HeartbeatsReceived.Inc()
		s.send(protocol.HeartbeatResponse{Timestamp: s.opts.Clock.Now().UnixMilli()})
	case protocol.CommandMessage:
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer s.sem.Release(1)
			s.runCommand(ctx, m.Command)
		}()
	default:
		s.logger.Debug("ignoring message", "type", msg.Type())
	}
}

// rejectFrame answers a frame that did not decode. When the commandId can
// be recovered the command gets an INVALID_COMMAND response.
func (s *Session) rejectFrame(data []byte, err error) {
	details := err.Error()
	if id := protocol.PeekCommandID(data); id != "" {
		s.logger.Warn("invalid command", "command_id", id, "error", err)
		s.send(protocol.ResponseMessage{Response: protocol.ErrorResponse{
			CommandID: id,
			Message:   "invalid command",
			Code:      protocol.CodeInvalidCommand,
			Details:   &details,
		}})
		return
	}
	s.logger.Warn("undecodable frame", "error", err)
	s.send(protocol.ErrorMessage{Message: "invalid message", Details: &details})
}

// runCommand sends command_started, any streaming output, the response and
// finally command_completed.
func (s *Session) runCommand(ctx context.Context, cmd protocol.Command) {
	id := cmd.ID()
	started := s.opts.Clock.Now()
	s.metrics.CommandsActive.Inc()
	defer s.metrics.CommandsActive.Dec()

	s.send(protocol.CommandStarted{CommandID: id, Timestamp: started.UnixMilli()})

	sink := func(kind protocol.OutputType, content string) {
		s.metrics.RecordOutput(string(kind), len(content))
		s.send(protocol.StreamingOutput{CommandID: id, OutputType: kind, Content: content})
	}
	resp := s.handler.Handle(ctx, cmd, sink)

	if _, isExec := cmd.(protocol.ExecuteCommand); isExec {
		s.send(protocol.StreamingOutput{CommandID: id, OutputType: protocol.Stdout, IsComplete: true})
	}
	s.send(protocol.ResponseMessage{Response: resp})

	_, failed := resp.(protocol.ErrorResponse)
	s.send(protocol.CommandCompleted{CommandID: id, Timestamp: s.opts.Clock.Now().UnixMilli(), Success: !failed})

	duration := s.opts.Clock.Since(started)
	s.metrics.RecordCommand(string(cmd.Type()), !failed, duration)
	s.logger.Debug("command handled", "command_id", id, "type", cmd.Type(), "success", !failed, "duration", duration.Round(time.Millisecond))
}

// send writes one message. Failures are logged; the read loop notices a
// broken connection on its own.
func (s *Session) send(msg protocol.Message) {
	data, err := protocol.EncodeMessage(msg)
	if err != nil {
		s.logger.Error("failed to encode message", "type", msg.Type(), "error", err)
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Debug("write failed", "type", msg.Type(), "error", err)
	}
}
