// Package admission serializes access to the single accelerator. It rejects
// on contention instead of queueing: a second generation request fails fast
// with a busy result rather than waiting behind the first.
package admission

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	rejectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "npud",
		Subsystem: "admission",
		Name:      "rejections_total",
		Help:      "Generation requests rejected because the NPU was in use",
	})
	inUseGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "npud",
		Subsystem: "admission",
		Name:      "in_use",
		Help:      "1 while a request holds the NPU",
	})
)

func init() {
	prometheus.MustRegister(rejectionsTotal, inUseGauge)
}

// Gate is the process-wide accelerator lock. The zero value is ready to use.
type Gate struct {
	mu     sync.Mutex
	inUse  bool
	active int
}

// New returns an open gate.
func New() *Gate { return &Gate{} }

// TryAcquire takes the gate if it is free. It never blocks.
func (g *Gate) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inUse {
		rejectionsTotal.Inc()
		return false
	}
	g.inUse = true
	g.active++
	inUseGauge.Set(1)
	return true
}

// Release frees the gate. Releasing a free gate is a no-op.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.inUse {
		return
	}
	g.inUse = false
	g.active--
	inUseGauge.Set(0)
}

// Enter acquires the gate and returns a release func that is safe to call
// more than once. ok is false when the gate is busy; release is then a no-op.
func (g *Gate) Enter() (release func(), ok bool) {
	if !g.TryAcquire() {
		return func() {}, false
	}
	var once sync.Once
	return func() { once.Do(g.Release) }, true
}

// IsAvailable reports whether TryAcquire would succeed right now.
func (g *Gate) IsAvailable() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.inUse
}

// ActiveCount is the number of requests currently holding the gate.
func (g *Gate) ActiveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}
