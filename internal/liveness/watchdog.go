package liveness

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/vim89/llm4s-sub012/internal/clock"
	"github.com/vim89/llm4s-sub012/internal/logging"
	"github.com/vim89/llm4s-sub012/internal/metrics"
)

const (
	DefaultWatchdogTimeout  = 30 * time.Second
	DefaultWatchdogInterval = 2 * time.Second
)

// WatchdogOptions configures a Watchdog.
type WatchdogOptions struct {
	Timeout       time.Duration
	CheckInterval time.Duration

	// OnExpire runs once, the first time a check finds no activity within
	// Timeout. The runner exits the process from here.
	OnExpire func(silence time.Duration)

	Clock   clock.Clock
	Logger  *logging.Logger
	Metrics *metrics.Registry
}

// Watchdog tracks inbound activity and fires when it stops.
type Watchdog struct {
	opts   WatchdogOptions
	logger *logging.Logger

	last    atomic.Int64 // Unix nanoseconds
	expired atomic.Bool
}

// NewWatchdog creates a Watchdog whose activity clock starts now.
func NewWatchdog(opts WatchdogOptions) *Watchdog {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultWatchdogTimeout
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultWatchdogInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Get()
	}
	w := &Watchdog{opts: opts, logger: opts.Logger.WithComponent("liveness.watchdog")}
	w.Touch()
	return w
}

// Touch records activity.
func (w *Watchdog) Touch() {
	w.last.Store(w.opts.Clock.Now().UnixNano())
}

// LastActivity returns when Touch was last called.
func (w *Watchdog) LastActivity() time.Time {
	return time.Unix(0, w.last.Load())
}

// Expired reports whether the watchdog has fired.
func (w *Watchdog) Expired() bool {
	return w.expired.Load()
}

// Check returns true while activity is recent. The first failing check
// fires OnExpire; later ones only return false.
func (w *Watchdog) Check() bool {
	silence := w.opts.Clock.Since(w.LastActivity())
	if silence <= w.opts.Timeout {
		return true
	}
	if w.expired.CompareAndSwap(false, true) {
		w.opts.Metrics.WatchdogExpirations.Inc()
		w.logger.Error("no controller activity, giving up", "silence", silence.Round(time.Millisecond), "timeout", w.opts.Timeout)
		if w.opts.OnExpire != nil {
			w.opts.OnExpire(silence)
		}
	}
	return false
}

// Run checks every CheckInterval until ctx is cancelled or the watchdog
// fires.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.opts.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !w.Check() {
				return
			}
		}
	}
}
