// Command geosphere builds a mesh, uploads it to a compute device, and deforms it for a number
// of ticks, printing the resulting mesh statistics.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/Carmen-Shannon/oxy-geosphere/common"
	"github.com/Carmen-Shannon/oxy-geosphere/config"
	"github.com/Carmen-Shannon/oxy-geosphere/engine"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/device"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/device/cpu"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/device/webgpu"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/dispatcher"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/kernel"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/mesh"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/profiler"
)

func main() {
	var (
		configPath = flag.String("config", "", "TOML or YAML config file")
		ticks      = flag.Int("ticks", -1, "number of ticks to run (overrides the config)")
		deviceName = flag.String("device", "", "compute device: cpu or webgpu (overrides the config)")
		verbose    = flag.Bool("v", false, "debug logging and profiler output")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}
	if *ticks >= 0 {
		cfg.Ticks = *ticks
	}
	cfg.Device = common.Coalesce(*deviceName, cfg.Device)
	if *verbose {
		cfg.LogLevel = "debug"
		cfg.Profiling = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		log.Fatal(err)
	}
	common.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

// newLogger creates the text logger for the configured log level.
func newLogger(cfg config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// run builds the configured mesh, deforms it for cfg.Ticks ticks, and writes a summary to out.
func run(ctx context.Context, cfg config.Config, out io.Writer) error {
	data, err := cfg.Build()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %d vertices, %d triangles, bounding radius %.4f\n",
		cfg.Shape, data.VertexCount(), data.TriangleCount(), data.BoundingRadius())

	dev, err := openDevice(cfg)
	if err != nil {
		return err
	}
	defer dev.Release()

	p := profiler.NewProfiler()
	d, err := dispatcher.NewDispatcher(dev, dispatcher.WithObserver(p.Observe))
	if err != nil {
		return err
	}
	defer d.Release()

	m, err := mesh.NewMeshBuffers(dev, data, mesh.WithLabel(cfg.Shape))
	if err != nil {
		return err
	}
	defer m.Release()

	if cfg.Ticks > 0 {
		e := engine.NewEngine(d,
			engine.WithTickRate(cfg.TickRate),
			engine.WithMaxTicks(cfg.Ticks),
			engine.WithMesh(0, m),
			engine.WithShaderData(cfg.ShaderData()),
			engine.WithDrift(cfg.DriftVector()),
			engine.WithProfiler(p),
			engine.WithProfiling(cfg.Profiling),
		)
		if err := e.Run(ctx); err != nil {
			return err
		}
	}

	deformed, err := m.Snapshot(ctx)
	if err != nil {
		return err
	}
	totals := p.Totals()
	fmt.Fprintf(out, "%s: %d dispatches on %s, mean %v, bounding radius %.4f\n",
		cfg.Shape, totals.Dispatches, dev.Name(), totals.AverageElapsed(), deformed.BoundingRadius())
	return nil
}

// openDevice creates the configured compute device.
func openDevice(cfg config.Config) (device.Device, error) {
	if cfg.Device == config.DeviceWebGPU {
		return webgpu.NewDevice(webgpu.WithForceFallbackAdapter(cfg.FallbackAdapter))
	}
	options := []cpu.CPUDeviceBuilderOption{cpu.WithKernels(kernel.CPUKernels())}
	if cfg.Workers > 0 {
		options = append(options, cpu.WithWorkers(cfg.Workers))
	}
	return cpu.NewDevice(options...), nil
}
