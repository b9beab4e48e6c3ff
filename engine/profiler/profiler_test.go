package profiler

import (
	"errors"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-geosphere/engine/dispatcher"
	"github.com/stretchr/testify/assert"
)

func TestProfiler_Observe(t *testing.T) {
	p := NewProfiler()
	p.Observe(dispatcher.DispatchStats{Vertices: 60, Elapsed: 2 * time.Millisecond})
	p.Observe(dispatcher.DispatchStats{Vertices: 60, Elapsed: 4 * time.Millisecond, Err: errors.New("lost")})

	got := p.Totals()
	assert.Equal(t, 2, got.Dispatches)
	assert.Equal(t, 1, got.Failures)
	assert.Equal(t, 120, got.Vertices)
	assert.Equal(t, 3*time.Millisecond, got.AverageElapsed())
}

func TestProfiler_TickInterval(t *testing.T) {
	p := NewProfiler(WithUpdateInterval(time.Hour))
	assert.False(t, p.Tick())
	assert.False(t, p.Tick())
	assert.Equal(t, 2, p.Totals().Ticks)

	p = NewProfiler(WithUpdateInterval(0), WithUpdateInterval(-time.Second))
	p.Observe(dispatcher.DispatchStats{Vertices: 3})
	assert.True(t, p.Tick())
	assert.True(t, p.Tick())

	got := p.Totals()
	assert.Equal(t, 2, got.Ticks)
	assert.Equal(t, 1, got.Dispatches, "logging resets the window, not the totals")
}

func TestTotals_AverageElapsedEmpty(t *testing.T) {
	assert.Zero(t, Totals{}.AverageElapsed())
}
