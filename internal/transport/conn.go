// Package transport carries protocol messages over a WebSocket: the
// controller-side Client correlates responses with commands, the runner-side
// Session serves them.
package transport

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

// Conn is the subset of *websocket.Conn the transport needs. Each message is
// one JSON-encoded protocol frame.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// ErrPipeClosed is returned by both ends of a Pipe once either is closed.
var ErrPipeClosed = errors.New("pipe closed")

// pipeBuffer is how many frames a Pipe direction holds before writes block.
const pipeBuffer = 256

type pipeConn struct {
	in    <-chan []byte
	out   chan<- []byte
	done  chan struct{}
	close *sync.Once
}

// Pipe returns two connected in-memory Conns. Closing either end closes both.
func Pipe() (Conn, Conn) {
	ab := make(chan []byte, pipeBuffer)
	ba := make(chan []byte, pipeBuffer)
	done := make(chan struct{})
	once := &sync.Once{}
	return &pipeConn{in: ba, out: ab, done: done, close: once},
		&pipeConn{in: ab, out: ba, done: done, close: once}
}

func (p *pipeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-p.in:
		return websocket.TextMessage, data, nil
	case <-p.done:
		return 0, nil, ErrPipeClosed
	}
}

func (p *pipeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-p.done:
		return ErrPipeClosed
	default:
	}
	frame := append([]byte(nil), data...)
	select {
	case p.out <- frame:
		return nil
	case <-p.done:
		return ErrPipeClosed
	}
}

func (p *pipeConn) Close() error {
	p.close.Do(func() { close(p.done) })
	return nil
}
