package transport

import (
	"sync"

	"github.com/vim89/llm4s-sub012/internal/logging"
	"github.com/vim89/llm4s-sub012/internal/protocol"
)

// OutputHandler receives the streaming output of one command in arrival order.
type OutputHandler func(protocol.StreamingOutput)

// outputStream queues output for one command and delivers it from its own
// goroutine, so a slow handler never stalls the read loop.
type outputStream struct {
	handler OutputHandler
	logger  *logging.Logger

	mu      sync.Mutex
	queue   []protocol.StreamingOutput
	closed  bool
	wake    chan struct{}
	drained chan struct{}
}

func newOutputStream(handler OutputHandler, logger *logging.Logger) *outputStream {
	s := &outputStream{
		handler: handler,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		drained: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *outputStream) push(msg protocol.StreamingOutput) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, msg)
	s.mu.Unlock()
	s.signal()
}

// finish stops accepting output. Queued output is still delivered.
func (s *outputStream) finish() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}

func (s *outputStream) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *outputStream) run() {
	defer close(s.drained)
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		closed := s.closed
		s.mu.Unlock()

		for _, msg := range batch {
			s.deliver(msg)
		}
		if len(batch) == 0 {
			if closed {
				return
			}
			<-s.wake
		}
	}
}

func (s *outputStream) deliver(msg protocol.StreamingOutput) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("output handler panicked", "command_id", msg.CommandID, "panic", r)
		}
	}()
	s.handler(msg)
}
