// Package liveness detects dead peers: the controller's Monitor heartbeats
// the runner, and the runner's Watchdog exits when the controller goes quiet.
package liveness

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vim89/llm4s-sub012/internal/clock"
	"github.com/vim89/llm4s-sub012/internal/logging"
)

const (
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultHeartbeatTimeout  = 15 * time.Second
)

// Target is the connection a Monitor watches.
type Target interface {
	// Running reports whether the target is in a state worth heartbeating.
	Running() bool
	SendHeartbeat(ctx context.Context) error
	LastHeartbeatAck() time.Time
}

// MonitorOptions configures a Monitor.
type MonitorOptions struct {
	Interval time.Duration
	Timeout  time.Duration

	// OnDown is called at most once per running period with the reason the
	// target was declared down.
	OnDown func(reason string)

	Clock  clock.Clock
	Logger *logging.Logger
}

// Monitor sends periodic heartbeats and reports a target that stops
// acknowledging them. It never acts on the target beyond reporting.
type Monitor struct {
	target Target
	opts   MonitorOptions
	logger *logging.Logger

	mu       sync.Mutex
	baseline time.Time // start of the current running period
	reported bool

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewMonitor creates a Monitor. Call Start or drive it with Check.
func NewMonitor(target Target, opts MonitorOptions) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultHeartbeatInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultHeartbeatTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &Monitor{
		target: target,
		opts:   opts,
		logger: opts.Logger.WithComponent("liveness.monitor"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start runs the heartbeat loop in the background until Stop is called or
// ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	ticker := time.NewTicker(m.opts.Interval)
	go func() {
		defer close(m.doneCh)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.Check(ctx)
			}
		}
	}()
}

// Stop ends the loop started by Start and waits for it. Calling Stop on a
// Monitor that was never started does not block.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	if m.started.Load() {
		<-m.doneCh
	}
}

// Check performs one heartbeat round and reports whether the target is
// considered alive.
func (m *Monitor) Check(ctx context.Context) bool {
	if !m.target.Running() {
		m.mu.Lock()
		m.baseline = time.Time{}
		m.reported = false
		m.mu.Unlock()
		return false
	}

	now := m.opts.Clock.Now()
	m.mu.Lock()
	if m.baseline.IsZero() {
		m.baseline = now
	}
	baseline := m.baseline
	reported := m.reported
	m.mu.Unlock()
	if reported {
		return false
	}

	if err := m.target.SendHeartbeat(ctx); err != nil {
		m.down(fmt.Sprintf("heartbeat send failed: %v", err))
		return false
	}

	last := m.target.LastHeartbeatAck()
	if last.Before(baseline) {
		last = baseline
	}
	if silence := now.Sub(last); silence > m.opts.Timeout {
		m.down(fmt.Sprintf("no heartbeat acknowledged for %s (timeout %s)", silence.Round(time.Millisecond), m.opts.Timeout))
		return false
	}
	return true
}

func (m *Monitor) down(reason string) {
	m.mu.Lock()
	if m.reported {
		m.mu.Unlock()
		return
	}
	m.reported = true
	m.mu.Unlock()

	m.logger.Warn("target is down", "reason", reason)
	if m.opts.OnDown != nil {
		m.opts.OnDown(reason)
	}
}
