// Package metrics defines the sink every agentcore component reports to.
//
// Components never touch package-level state. A Sink is injected through
// each component's Config; the zero value falls back to Nop().
package metrics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Sink receives counters, gauges and duration observations.
type Sink interface {
	IncCounter(name string, delta int64)
	SetGauge(name string, value float64)
	Observe(name string, d time.Duration)
}

type nopSink struct{}

func (nopSink) IncCounter(string, int64)      {}
func (nopSink) SetGauge(string, float64)      {}
func (nopSink) Observe(string, time.Duration) {}

// Nop returns a sink that drops everything.
func Nop() Sink {
	return nopSink{}
}

// OrNop returns s, or the no-op sink when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return nopSink{}
	}
	return s
}

// Point is a single named value in a Snapshot.
type Point struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Timing summarises the observations recorded under one name.
type Timing struct {
	Name  string        `json:"name"`
	Count int64         `json:"count"`
	Total time.Duration `json:"total"`
	Max   time.Duration `json:"max"`
}

// Mean returns the average observed duration.
func (t Timing) Mean() time.Duration {
	if t.Count == 0 {
		return 0
	}
	return t.Total / time.Duration(t.Count)
}

// Snapshot is a point-in-time copy of a Registry, sorted by name.
type Snapshot struct {
	Counters []Point  `json:"counters"`
	Gauges   []Point  `json:"gauges"`
	Timings  []Timing `json:"timings"`
}

// Counter returns the named counter value, or 0.
func (s Snapshot) Counter(name string) int64 {
	for _, p := range s.Counters {
		if p.Name == name {
			return int64(p.Value)
		}
	}
	return 0
}

// Gauge returns the named gauge value and whether it was set.
func (s Snapshot) Gauge(name string) (float64, bool) {
	for _, p := range s.Gauges {
		if p.Name == name {
			return p.Value, true
		}
	}
	return 0, false
}

type timing struct {
	count atomic.Int64
	total atomic.Int64
	max   atomic.Int64
}

// Registry is an in-memory Sink. Values are updated atomically; the
// mutex only guards creation of new series.
type Registry struct {
	mu       sync.RWMutex
	counters map[string]*atomic.Int64
	gauges   map[string]*atomic.Uint64
	timings  map[string]*timing
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[string]*atomic.Int64),
		gauges:   make(map[string]*atomic.Uint64),
		timings:  make(map[string]*timing),
	}
}

// IncCounter adds delta to the named counter.
func (r *Registry) IncCounter(name string, delta int64) {
	if delta == 0 {
		return
	}
	c := lookup(r, r.counters, name, func() *atomic.Int64 { return new(atomic.Int64) })
	c.Add(delta)
}

// SetGauge stores value under name.
func (r *Registry) SetGauge(name string, value float64) {
	g := lookup(r, r.gauges, name, func() *atomic.Uint64 { return new(atomic.Uint64) })
	g.Store(math.Float64bits(value))
}

// Observe records one duration under name.
func (r *Registry) Observe(name string, d time.Duration) {
	t := lookup(r, r.timings, name, func() *timing { return new(timing) })
	t.count.Add(1)
	t.total.Add(int64(d))
	for {
		cur := t.max.Load()
		if int64(d) <= cur || t.max.CompareAndSwap(cur, int64(d)) {
			return
		}
	}
}

func lookup[V any](r *Registry, m map[string]V, name string, create func() V) V {
	r.mu.RLock()
	v, ok := m[name]
	r.mu.RUnlock()
	if ok {
		return v
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok = m[name]; ok {
		return v
	}
	v = create()
	m[name] = v
	return v
}

// Snapshot copies the current values.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := Snapshot{
		Counters: make([]Point, 0, len(r.counters)),
		Gauges:   make([]Point, 0, len(r.gauges)),
		Timings:  make([]Timing, 0, len(r.timings)),
	}
	for name, c := range r.counters {
		out.Counters = append(out.Counters, Point{Name: name, Value: float64(c.Load())})
	}
	for name, g := range r.gauges {
		out.Gauges = append(out.Gauges, Point{Name: name, Value: math.Float64frombits(g.Load())})
	}
	for name, t := range r.timings {
		out.Timings = append(out.Timings, Timing{
			Name:  name,
			Count: t.count.Load(),
			Total: time.Duration(t.total.Load()),
			Max:   time.Duration(t.max.Load()),
		})
	}
	sort.Slice(out.Counters, func(i, j int) bool { return out.Counters[i].Name < out.Counters[j].Name })
	sort.Slice(out.Gauges, func(i, j int) bool { return out.Gauges[i].Name < out.Gauges[j].Name })
	sort.Slice(out.Timings, func(i, j int) bool { return out.Timings[i].Name < out.Timings[j].Name })
	return out
}

// Reset drops every series.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = make(map[string]*atomic.Int64)
	r.gauges = make(map[string]*atomic.Uint64)
	r.timings = make(map[string]*timing)
}

// Render formats the snapshot as one "name value" line per series.
func (r *Registry) Render() string {
	s := r.Snapshot()
	lines := make([]string, 0, len(s.Counters)+len(s.Gauges)+len(s.Timings))
	for _, p := range s.Counters {
		lines = append(lines, fmt.Sprintf("%s %d", p.Name, int64(p.Value)))
	}
	for _, p := range s.Gauges {
		lines = append(lines, fmt.Sprintf("%s %s", p.Name, formatFloat(p.Value)))
	}
	for _, t := range s.Timings {
		lines = append(lines, fmt.Sprintf("%s count=%d mean=%s max=%s", t.Name, t.Count, t.Mean(), t.Max))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n") + "\n"
}

func formatFloat(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.4f", v)
}
