package container

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vim89/llm4s-sub012/internal/dispatch"
	"github.com/vim89/llm4s-sub012/internal/logging"
	"github.com/vim89/llm4s-sub012/internal/protocol"
	"github.com/vim89/llm4s-sub012/internal/tool/service/executor"
	"github.com/vim89/llm4s-sub012/internal/transport"
)

type fakeRuntime struct {
	mu       sync.Mutex
	calls    []string
	runExit  int
	stopExit int
	rmExit   int
	rmErr    error
	// teardownErrs records ctx.Err() as seen by each stop and rm call.
	teardownErrs []error
}

func (f *fakeRuntime) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeRuntime) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRuntime) Run(_ context.Context, name string, _ int, _, _ string) (*executor.Result, error) {
	f.record("run " + name)
	return &executor.Result{ExitCode: f.runExit, Stderr: "run output"}, nil
}

func (f *fakeRuntime) TeardownErrs() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]error(nil), f.teardownErrs...)
}

func (f *fakeRuntime) Stop(ctx context.Context, name string) (*executor.Result, error) {
	f.record("stop " + name)
	f.mu.Lock()
	f.teardownErrs = append(f.teardownErrs, ctx.Err())
	f.mu.Unlock()
	return &executor.Result{ExitCode: f.stopExit}, nil
}

func (f *fakeRuntime) Remove(ctx context.Context, name string) (*executor.Result, error) {
	f.record("rm " + name)
	f.mu.Lock()
	f.teardownErrs = append(f.teardownErrs, ctx.Err())
	f.mu.Unlock()
	if f.rmErr != nil {
		return nil, f.rmErr
	}
	return &executor.Result{ExitCode: f.rmExit}, nil
}

type fakeProber struct {
	mu       sync.Mutex
	failures int // probes that fail before the first success; -1 = always fail
	probes   int
	urls     []string
}

func (f *fakeProber) Probe(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	f.urls = append(f.urls, url)
	if f.failures < 0 || f.probes <= f.failures {
		return errors.New("connection refused")
	}
	return nil
}

// pipeDialer connects the manager to an in-process Session.
type pipeDialer struct {
	mu       sync.Mutex
	remote   transport.Conn
	sessions sync.WaitGroup
}

func (d *pipeDialer) dial(_ context.Context, _ string) (*transport.Client, error) {
	local, remote := transport.Pipe()
	handler := handlerFunc(func(_ context.Context, cmd protocol.Command, _ dispatch.OutputSink) protocol.Response {
		return protocol.GetWorkspaceInfoResponse{CommandID: cmd.ID(), Root: "/workspace"}
	})
	session := transport.NewSession(remote, handler, transport.SessionOptions{Logger: logging.Discard()})
	d.sessions.Add(1)
	go func() {
		defer d.sessions.Done()
		_ = session.Serve(context.Background())
	}()

	d.mu.Lock()
	d.remote = remote
	d.mu.Unlock()
	return transport.NewClient(local, transport.Options{Logger: logging.Discard()}), nil
}

func (d *pipeDialer) dropConnection() {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.remote.Close()
}

type handlerFunc func(ctx context.Context, cmd protocol.Command, sink dispatch.OutputSink) protocol.Response

func (f handlerFunc) Handle(ctx context.Context, cmd protocol.Command, sink dispatch.OutputSink) protocol.Response {
	return f(ctx, cmd, sink)
}

func newTestManager(t *testing.T, rt Runtime, prober Prober, dial Dialer) *Manager {
	t.Helper()
	return NewManager(Options{
		Name:              "ws-test",
		Image:             "runner:test",
		HostDir:           filepath.Join(t.TempDir(), "workspace"),
		HostPort:          18080,
		StartupAttempts:   3,
		StartupInterval:   time.Millisecond,
		HeartbeatInterval: time.Hour,
		HeartbeatTimeout:  time.Hour,
		Runtime:           rt,
		Prober:            prober,
		Dial:              dial,
		Logger:            logging.Discard(),
	})
}

func TestManager_StartAndStop(t *testing.T) {
	rt := &fakeRuntime{}
	prober := &fakeProber{failures: 2}
	dialer := &pipeDialer{}
	m := newTestManager(t, rt, prober, dialer.dial)

	require.True(t, m.Start(context.Background()))
	assert.Equal(t, Running, m.State())
	assert.Equal(t, 3, prober.probes)
	assert.Equal(t, "http://localhost:18080/health", prober.urls[0])
	assert.DirExists(t, m.opts.HostDir)

	client := m.Client()
	require.NotNil(t, client)
	info, err := client.GetWorkspaceInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/workspace", info.Root)

	require.True(t, m.Stop(context.Background()))
	assert.Equal(t, Stopped, m.State())
	assert.Nil(t, m.Client())
	<-client.Done()
	assert.Equal(t, []string{"run ws-test", "stop ws-test", "rm ws-test"}, rt.Calls())

	// Idempotent
	assert.True(t, m.Stop(context.Background()))
	assert.Len(t, rt.Calls(), 3)
	dialer.sessions.Wait()
}

func TestManager_ReadinessTimeoutStopsOnce(t *testing.T) {
	rt := &fakeRuntime{}
	prober := &fakeProber{failures: -1}
	dialCalled := false
	m := newTestManager(t, rt, prober, func(context.Context, string) (*transport.Client, error) {
		dialCalled = true
		return nil, errors.New("unreachable")
	})

	assert.False(t, m.Start(context.Background()))
	assert.Equal(t, 3, prober.probes)
	assert.False(t, dialCalled)
	assert.Equal(t, Stopped, m.State())
	assert.Equal(t, []string{"run ws-test", "stop ws-test", "rm ws-test"}, rt.Calls())
}

// cancelProber cancels the start context on the first probe, as an
// interrupted controller would.
type cancelProber struct {
	cancel context.CancelFunc
}

func (p *cancelProber) Probe(context.Context, string) error {
	p.cancel()
	return errors.New("connection refused")
}

func TestManager_CancelledStartStillTearsDown(t *testing.T) {
	rt := &fakeRuntime{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := newTestManager(t, rt, &cancelProber{cancel: cancel}, func(context.Context, string) (*transport.Client, error) {
		t.Fatal("dial after cancelled readiness")
		return nil, nil
	})

	assert.False(t, m.Start(ctx))
	assert.Equal(t, Stopped, m.State())
	assert.Equal(t, []string{"run ws-test", "stop ws-test", "rm ws-test"}, rt.Calls())
	assert.Equal(t, []error{nil, nil}, rt.TeardownErrs())
}

func TestManager_DialFailureStops(t *testing.T) {
	rt := &fakeRuntime{}
	m := newTestManager(t, rt, &fakeProber{}, func(context.Context, string) (*transport.Client, error) {
		return nil, errors.New("handshake failed")
	})

	assert.False(t, m.Start(context.Background()))
	assert.Equal(t, Stopped, m.State())
	assert.Equal(t, []string{"run ws-test", "stop ws-test", "rm ws-test"}, rt.Calls())
}

func TestManager_RunFailure(t *testing.T) {
	rt := &fakeRuntime{runExit: 125}
	prober := &fakeProber{}
	m := newTestManager(t, rt, prober, nil)

	assert.False(t, m.Start(context.Background()))
	assert.Equal(t, NotStarted, m.State())
	assert.Zero(t, prober.probes)
	assert.Equal(t, []string{"run ws-test"}, rt.Calls())
}

func TestManager_StopFailures(t *testing.T) {
	tests := []struct {
		name string
		rt   *fakeRuntime
	}{
		{name: "stop exits non-zero", rt: &fakeRuntime{stopExit: 1}},
		{name: "rm exits non-zero", rt: &fakeRuntime{rmExit: 1}},
		{name: "rm cannot run", rt: &fakeRuntime{rmErr: errors.New("exec: not found")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dialer := &pipeDialer{}
			m := newTestManager(t, tt.rt, &fakeProber{}, dialer.dial)
			require.True(t, m.Start(context.Background()))

			assert.False(t, m.Stop(context.Background()))
			assert.Equal(t, Stopped, m.State())
			// Remove runs even when stop failed
			assert.Equal(t, []string{"run ws-test", "stop ws-test", "rm ws-test"}, tt.rt.Calls())
			dialer.sessions.Wait()
		})
	}
}

func TestManager_StopBeforeStart(t *testing.T) {
	rt := &fakeRuntime{}
	m := newTestManager(t, rt, &fakeProber{}, nil)

	assert.True(t, m.Stop(context.Background()))
	assert.Equal(t, Stopped, m.State())
	assert.Empty(t, rt.Calls())
	assert.False(t, m.Start(context.Background()))
}

func TestManager_ConnectionLossMarksDown(t *testing.T) {
	rt := &fakeRuntime{}
	dialer := &pipeDialer{}
	m := newTestManager(t, rt, &fakeProber{}, dialer.dial)
	require.True(t, m.Start(context.Background()))

	dialer.dropConnection()

	assert.Eventually(t, func() bool { return m.State() == Down }, 5*time.Second, 5*time.Millisecond)
	assert.Contains(t, m.Reason(), "connection closed")

	// Down does not stop the container on its own
	assert.Equal(t, []string{"run ws-test"}, rt.Calls())
	assert.True(t, m.Stop(context.Background()))
	assert.Equal(t, Stopped, m.State())
	dialer.sessions.Wait()
}

func TestManager_HeartbeatFailureMarksDown(t *testing.T) {
	rt := &fakeRuntime{}
	dialer := &pipeDialer{}
	m := newTestManager(t, rt, &fakeProber{}, dialer.dial)
	require.True(t, m.Start(context.Background()))

	m.markDown("no heartbeat acknowledged")
	m.markDown("second report")

	assert.Equal(t, Down, m.State())
	assert.Equal(t, "no heartbeat acknowledged", m.Reason())
	assert.False(t, m.Running())
	require.True(t, m.Stop(context.Background()))
	dialer.sessions.Wait()
}

func TestManager_URLs(t *testing.T) {
	m := NewManager(Options{Runtime: &fakeRuntime{}, HostPort: 9000, Host: "10.0.0.2", Logger: logging.Discard()})
	assert.Equal(t, "http://10.0.0.2:9000/health", m.HealthURL())
	assert.Equal(t, "ws://10.0.0.2:9000/ws", m.SocketURL())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "down", Down.String())
	assert.Equal(t, "unknown", State(42).String())
}
