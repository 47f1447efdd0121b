// Package container manages the lifecycle of one workspace runner container
// from the controller's side: launch, readiness, connection, liveness and
// teardown.
package container

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vim89/llm4s-sub012/internal/clock"
	"github.com/vim89/llm4s-sub012/internal/config"
	"github.com/vim89/llm4s-sub012/internal/liveness"
	"github.com/vim89/llm4s-sub012/internal/logging"
	"github.com/vim89/llm4s-sub012/internal/tool/service/executor"
	"github.com/vim89/llm4s-sub012/internal/transport"
)

// Dialer opens the transport to a ready runner.
type Dialer func(ctx context.Context, url string) (*transport.Client, error)

// Options configures a Manager.
type Options struct {
	Name     string
	Image    string
	HostDir  string
	HostPort int

	// Host is where the published port is reachable. Default: localhost.
	Host string

	StartupAttempts int
	StartupInterval time.Duration
	// StopTimeout bounds the teardown of a start that failed after the
	// container was launched. Default: 30s.
	StopTimeout time.Duration

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	CommandTimeout    time.Duration
	ResponseGrace     time.Duration

	Runtime Runtime
	Prober  Prober
	// Dial defaults to transport.Dial with CommandTimeout.
	Dial Dialer

	Logger *logging.Logger
	Clock  clock.Clock
}

// OptionsFromConfig maps the controller section of cfg onto Options.
func OptionsFromConfig(cfg *config.Config, runtime Runtime) Options {
	c := cfg.Controller
	return Options{
		Name:              c.ContainerName,
		Image:             c.Image,
		HostDir:           c.HostDir,
		HostPort:          c.HostPort,
		StartupAttempts:   c.StartupAttempts,
		StartupInterval:   time.Duration(c.StartupIntervalMs) * time.Millisecond,
		HeartbeatInterval: time.Duration(c.HeartbeatIntervalSeconds) * time.Second,
		HeartbeatTimeout:  time.Duration(c.HeartbeatTimeoutMs) * time.Millisecond,
		CommandTimeout:    time.Duration(c.CommandTimeoutMs) * time.Millisecond,
		ResponseGrace:     time.Duration(cfg.Tools.GracefulShutdownMs)*time.Millisecond + transport.DefaultResponseGrace,
		Runtime:           runtime,
		Prober:            NewHTTPProber(time.Duration(c.ProbeTimeoutMs) * time.Millisecond),
	}
}

// Manager owns one container. The container name belongs to this instance;
// two managers must never share a name.
type Manager struct {
	opts   Options
	logger *logging.Logger

	// lifecycle serialises Start and Stop.
	lifecycle sync.Mutex
	state     atomic.Int32

	mu      sync.Mutex
	reason  string
	client  *transport.Client
	monitor *liveness.Monitor
	cancel  context.CancelFunc
}

// NewManager creates a Manager in NotStarted.
func NewManager(opts Options) *Manager {
	if opts.Runtime == nil {
		panic("runtime is required")
	}
	if opts.Host == "" {
		opts.Host = "localhost"
	}
	if opts.StartupAttempts <= 0 {
		opts.StartupAttempts = 10
	}
	if opts.StartupInterval <= 0 {
		opts.StartupInterval = time.Second
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Prober == nil {
		opts.Prober = NewHTTPProber(2 * time.Second)
	}
	if opts.Dial == nil {
		topts := transport.Options{
			CommandTimeout: opts.CommandTimeout,
			ResponseGrace:  opts.ResponseGrace,
			Logger:         opts.Logger,
			Clock:          opts.Clock,
		}
		opts.Dial = func(ctx context.Context, url string) (*transport.Client, error) {
			return transport.Dial(ctx, url, topts)
		}
	}
	return &Manager{
		opts:   opts,
		logger: opts.Logger.WithComponent("container").With("name", opts.Name),
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Reason explains the last transition to Down, or is empty.
func (m *Manager) Reason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reason
}

// Client returns the transport to the runner, or nil when not connected.
func (m *Manager) Client() *transport.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client
}

// HealthURL is the readiness endpoint of the runner.
func (m *Manager) HealthURL() string {
	return fmt.Sprintf("http://%s:%d/health", m.opts.Host, m.opts.HostPort)
}

// SocketURL is the WebSocket endpoint of the runner.
func (m *Manager) SocketURL() string {
	return fmt.Sprintf("ws://%s:%d/ws", m.opts.Host, m.opts.HostPort)
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
	m.logger.Debug("state changed", "state", s)
}

// Start launches the container and connects to it. It returns false if the
// container could not be launched or never became usable; in the latter case
// the container is stopped and removed before returning.
func (m *Manager) Start(ctx context.Context) bool {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if state := m.State(); state != NotStarted {
		m.logger.Warn("start ignored", "state", state)
		return false
	}

	if err := os.MkdirAll(m.opts.HostDir, 0o755); err != nil {
		m.logger.Error("failed to create host directory", "dir", m.opts.HostDir, "error", err)
		return false
	}

	res, err := m.opts.Runtime.Run(ctx, m.opts.Name, m.opts.HostPort, m.opts.HostDir, m.opts.Image)
	if err != nil {
		m.logger.Error("failed to run container", "image", m.opts.Image, "error", err)
		return false
	}
	m.logResult("run", res)
	if res.ExitCode != 0 {
		m.logger.Error("container run failed", "exit_code", res.ExitCode, "stderr", strings.TrimSpace(res.Stderr))
		return false
	}
	m.setState(Starting)

	if err := m.awaitReady(ctx); err != nil {
		m.logger.Error("container never became ready", "attempts", m.opts.StartupAttempts, "error", err)
		m.abortStart(ctx)
		return false
	}
	m.setState(Ready)

	client, err := m.opts.Dial(ctx, m.SocketURL())
	if err != nil {
		m.logger.Error("failed to connect to runner", "url", m.SocketURL(), "error", err)
		m.abortStart(ctx)
		return false
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	monitor := liveness.NewMonitor(m, liveness.MonitorOptions{
		Interval: m.opts.HeartbeatInterval,
		Timeout:  m.opts.HeartbeatTimeout,
		OnDown:   m.markDown,
		Clock:    m.opts.Clock,
		Logger:   m.opts.Logger,
	})

	m.mu.Lock()
	m.client = client
	m.monitor = monitor
	m.cancel = cancel
	m.reason = ""
	m.mu.Unlock()

	m.setState(Running)
	monitor.Start(watchCtx)
	go m.watchConnection(watchCtx, client)

	m.logger.Info("container running", "url", m.SocketURL())
	return true
}

// abortStart removes a launched container after a failed start. It keeps
// ctx's values but not its cancellation: a start abandoned through ctx must
// still stop and remove what it launched.
func (m *Manager) abortStart(ctx context.Context) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.StopTimeout)
	defer cancel()
	m.stopLocked(stopCtx)
}

// awaitReady polls the health endpoint until it answers or the attempts run
// out.
func (m *Manager) awaitReady(ctx context.Context) error {
	url := m.HealthURL()
	var lastErr error
	for attempt := 1; attempt <= m.opts.StartupAttempts; attempt++ {
		if lastErr = m.opts.Prober.Probe(ctx, url); lastErr == nil {
			return nil
		}
		m.logger.Debug("runner not ready", "attempt", attempt, "error", lastErr)
		if attempt == m.opts.StartupAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.opts.StartupInterval):
		}
	}
	return fmt.Errorf("%w: %v", ErrNotReady, lastErr)
}

// watchConnection moves Running to Down when the transport ends.
func (m *Manager) watchConnection(ctx context.Context, client *transport.Client) {
	select {
	case <-ctx.Done():
	case <-client.Done():
		m.markDown(fmt.Sprintf("connection closed: %v", client.Err()))
	}
}

// markDown is the one-shot Running to Down transition.
func (m *Manager) markDown(reason string) {
	if !m.state.CompareAndSwap(int32(Running), int32(Down)) {
		return
	}
	m.mu.Lock()
	m.reason = reason
	m.mu.Unlock()
	m.logger.Warn("container is down", "reason", reason)
}

// Stop tears everything down: liveness monitor, transport, then the
// container itself. It returns true only if both the runtime stop and remove
// commands exit zero. Stopping a Stopped manager, or one that never started,
// returns true without running anything.
func (m *Manager) Stop(ctx context.Context) bool {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	switch m.State() {
	case Stopped:
		return true
	case NotStarted:
		m.setState(Stopped)
		return true
	}
	return m.stopLocked(ctx)
}

func (m *Manager) stopLocked(ctx context.Context) bool {
	m.mu.Lock()
	monitor, client, cancel := m.monitor, m.client, m.cancel
	m.monitor, m.client, m.cancel = nil, nil, nil
	m.mu.Unlock()

	if monitor != nil {
		monitor.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if client != nil {
		_ = client.Close()
	}
	// Stopped before the runtime calls so the closing transport is not
	// reported as Down.
	m.setState(Stopped)

	stopped := m.runtimeStep(ctx, "stop", m.opts.Runtime.Stop)
	removed := m.runtimeStep(ctx, "rm", m.opts.Runtime.Remove)
	if stopped && removed {
		m.logger.Info("container stopped")
	}
	return stopped && removed
}

func (m *Manager) runtimeStep(ctx context.Context, step string, fn func(context.Context, string) (*executor.Result, error)) bool {
	res, err := fn(ctx, m.opts.Name)
	if err != nil {
		m.logger.Error("container "+step+" failed", "error", err)
		return false
	}
	m.logResult(step, res)
	if res.ExitCode != 0 {
		m.logger.Error("container "+step+" failed", "exit_code", res.ExitCode, "stderr", strings.TrimSpace(res.Stderr))
		return false
	}
	return true
}

func (m *Manager) logResult(step string, res *executor.Result) {
	m.logger.Debug("runtime "+step,
		"exit_code", res.ExitCode,
		"stdout", strings.TrimSpace(res.Stdout),
		"stderr", strings.TrimSpace(res.Stderr),
		"duration", res.Duration)
}

// The methods below make a Manager the heartbeat target of its own Monitor.

// Running reports whether the container is in the Running state.
func (m *Manager) Running() bool {
	return m.State() == Running
}

// SendHeartbeat sends a heartbeat over the current transport.
func (m *Manager) SendHeartbeat(ctx context.Context) error {
	client := m.Client()
	if client == nil {
		return transport.ErrConnectionClosed
	}
	return client.SendHeartbeat(ctx)
}

// LastHeartbeatAck reports the last acknowledged heartbeat.
func (m *Manager) LastHeartbeatAck() time.Time {
	client := m.Client()
	if client == nil {
		return time.Time{}
	}
	return client.LastHeartbeatAck()
}
