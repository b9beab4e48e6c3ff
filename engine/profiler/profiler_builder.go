package profiler

import "time"

// ProfilerBuilderOption is a functional option for configuring a Profiler.
type ProfilerBuilderOption func(*Profiler)

// WithUpdateInterval sets how often Tick logs statistics. Values < 0 are ignored; 0 logs on
// every tick.
//
// Parameters:
//   - interval: the logging interval (default 1s)
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithUpdateInterval(interval time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		if interval >= 0 {
			p.updateInterval = interval
		}
	}
}
