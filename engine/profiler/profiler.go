package profiler

import (
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-geosphere/common"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/dispatcher"
)

// Totals are the cumulative counters of a Profiler.
type Totals struct {
	Ticks      int
	Dispatches int
	Failures   int
	Vertices   int
	Elapsed    time.Duration
}

// AverageElapsed returns the mean dispatch time, or 0 before the first dispatch.
func (t Totals) AverageElapsed() time.Duration {
	if t.Dispatches == 0 {
		return 0
	}
	return t.Elapsed / time.Duration(t.Dispatches)
}

// Profiler tracks tick rate, dispatch timing, and memory statistics for performance monitoring.
// Outputs stats to the common logger at a configurable interval. Observe may be called from
// any goroutine; Tick is called from the tick loop.
type Profiler struct {
	mu sync.Mutex

	totals   Totals
	window   Totals
	lastTime time.Time

	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
}

// NewProfiler creates a new Profiler with the given options applied.
// Update interval defaults to 1 second.
//
// Parameters:
//   - options: a variadic list of ProfilerBuilderOption functions
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		lastTime:       time.Now(),
		updateInterval: time.Second,
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// Observe records one completed dispatch. It has the signature expected by
// dispatcher.WithObserver.
//
// Parameters:
//   - stats: the dispatch statistics
func (p *Profiler) Observe(stats dispatcher.DispatchStats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range []*Totals{&p.totals, &p.window} {
		t.Dispatches++
		t.Vertices += stats.Vertices
		t.Elapsed += stats.Elapsed
		if stats.Err != nil {
			t.Failures++
		}
	}
}

// Totals returns the counters accumulated since the profiler was created.
//
// Returns:
//   - Totals: a copy of the cumulative counters
func (p *Profiler) Totals() Totals {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totals
}

// Tick should be called once per engine tick.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: tick rate, dispatch count and mean time, failures, heap usage,
// allocation rate, GC count/pause times, total memory.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totals.Ticks++
	p.window.Ticks++
	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}
	seconds := max(elapsed.Seconds(), 1e-9)

	runtime.ReadMemStats(&p.memStats)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024
	allocRateMB := float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / seconds

	// PauseNs is a circular buffer of the last 256 GC pauses
	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			maxPauseUs = max(maxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	common.Logger().Info("profiler",
		"tps", float64(p.window.Ticks)/seconds,
		"dispatches", p.window.Dispatches,
		"failures", p.window.Failures,
		"avgDispatch", p.window.AverageElapsed(),
		"verticesPerSec", float64(p.window.Vertices)/seconds,
		"heapMB", allocMB,
		"allocRateMBps", allocRateMB,
		"gc", gcCount,
		"gcLastPauseUs", lastPauseUs,
		"gcMaxPauseUs", maxPauseUs,
		"sysMB", sysMB)

	p.window = Totals{}
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}
