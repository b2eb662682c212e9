// Package ratelimit provides the process-wide dispatch throttle for calls to the
// generative endpoint: a fixed ceiling per rolling window plus a minimum spacing
// between consecutive dispatches.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultWindow is the length of the rolling window.
const DefaultWindow = 60 * time.Second

// State is a snapshot of the limiter's counters.
type State struct {
	WindowStart  time.Time
	Count        int
	LastDispatch time.Time
}

// Window throttles dispatches. The zero value is not usable; use NewWindow.
type Window struct {
	limit      int           // maximum dispatches per window
	window     time.Duration // window length
	minSpacing time.Duration // minimum delay between consecutive dispatches
	clock      Clock

	mu    sync.Mutex
	state State
}

// NewWindow creates a limiter allowing limit dispatches per window with at least
// minSpacing between them. A nil clock means the system clock.
func NewWindow(cfg *Config, clock Clock) *Window {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	return &Window{
		limit:      cfg.CallsPerWindow,
		window:     window,
		minSpacing: cfg.MinSpacing,
		clock:      clock,
	}
}

// Wait blocks until a dispatch is allowed, records it, and returns how long the
// caller was held back.
func (w *Window) Wait(ctx context.Context) (time.Duration, error) {
	var waited time.Duration
	for {
		delay := w.reserve()
		if delay <= 0 {
			return waited, nil
		}
		if err := w.clock.Sleep(ctx, delay); err != nil {
			return waited, err
		}
		waited += delay
	}
}

// reserve either records a dispatch (returning 0) or returns how long to wait
// before trying again.
func (w *Window) reserve() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()

	if w.state.WindowStart.IsZero() || now.Sub(w.state.WindowStart) >= w.window {
		w.state.WindowStart = now
		w.state.Count = 0
	}

	if w.limit > 0 && w.state.Count >= w.limit {
		return w.state.WindowStart.Add(w.window).Sub(now)
	}

	if w.minSpacing > 0 && !w.state.LastDispatch.IsZero() {
		if since := now.Sub(w.state.LastDispatch); since < w.minSpacing {
			return w.minSpacing - since
		}
	}

	w.state.Count++
	w.state.LastDispatch = now
	return 0
}

// Snapshot returns the current counters.
func (w *Window) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}
