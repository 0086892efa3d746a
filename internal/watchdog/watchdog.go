package watchdog

import (
	"sync/atomic"
	"time"

	"github.com/anonymous-hidden/darklock-guard-sub001/internal/logging"
)

type component struct {
	name          string
	lastHeartbeat atomic.Int64
	healthy       atomic.Bool
	threshold     time.Duration
}

// Watchdog tracks liveness of long-running components through explicit
// heartbeats. Components are registered before Start; the map is never
// mutated afterwards, so the monitor loop reads it without a lock.
type Watchdog struct {
	components map[string]*component
	interval   time.Duration
	running    atomic.Bool
	done       chan struct{}
}

func New(interval time.Duration) *Watchdog {
	return &Watchdog{
		components: make(map[string]*component),
		interval:   interval,
		done:       make(chan struct{}),
	}
}

// Register adds a component. Must be called before Start.
func (w *Watchdog) Register(name string, threshold time.Duration) {
	c := &component{name: name, threshold: threshold}
	c.healthy.Store(true)
	w.components[name] = c
}

// Heartbeat marks the component alive. Safe from any goroutine.
func (w *Watchdog) Heartbeat(name string) {
	if c, ok := w.components[name]; ok {
		c.lastHeartbeat.Store(time.Now().UnixNano())
		c.healthy.Store(true)
	}
}

func (w *Watchdog) Start() {
	if !w.running.CompareAndSwap(false, true) {
		return
	}
	go w.loop()
}

func (w *Watchdog) Stop() {
	if w.running.CompareAndSwap(true, false) {
		close(w.done)
	}
}

func (w *Watchdog) loop() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watchdog) check() {
	now := time.Now().UnixNano()
	for name, c := range w.components {
		last := c.lastHeartbeat.Load()
		if last == 0 {
			continue
		}
		elapsed := time.Duration(now - last)
		if elapsed > c.threshold {
			if c.healthy.CompareAndSwap(true, false) {
				logging.Error("watchdog: %s stalled, no heartbeat for %v", name, elapsed)
			}
		}
	}
}

// Healthy reports one component's state. Unknown names are unhealthy.
func (w *Watchdog) Healthy(name string) bool {
	if c, ok := w.components[name]; ok {
		return c.healthy.Load()
	}
	return false
}

// Status reports every component's state.
func (w *Watchdog) Status() map[string]bool {
	out := make(map[string]bool, len(w.components))
	for name, c := range w.components {
		out[name] = c.healthy.Load()
	}
	return out
}
