// Package config loads the settings of the geosphere command from TOML or YAML files.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-geosphere/engine/geometry"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/kernel"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Shape names accepted by Config.Shape.
const (
	ShapeGeosphere   = "geosphere"
	ShapeIcosahedron = "icosahedron"
	ShapePlane       = "plane"
)

// Scheme names accepted by Config.Scheme.
const (
	SchemeEdge       = "edge"
	SchemeFaceCenter = "face-center"
)

// Device names accepted by Config.Device.
const (
	DeviceCPU    = "cpu"
	DeviceWebGPU = "webgpu"
)

// ErrInvalid is wrapped by every error returned from Validate.
var ErrInvalid = errors.New("invalid config")

// Plane holds the dimensions of the plane shape.
type Plane struct {
	Width  float32 `toml:"width" yaml:"width"`
	Length float32 `toml:"length" yaml:"length"`
	Step   float32 `toml:"step" yaml:"step"`
}

// Config is the full command configuration. Zero fields in a loaded file keep their defaults.
type Config struct {
	Shape        string  `toml:"shape" yaml:"shape"`
	Radius       float32 `toml:"radius" yaml:"radius"`
	Subdivisions int     `toml:"subdivisions" yaml:"subdivisions"`
	Scheme       string  `toml:"scheme" yaml:"scheme"`
	Plane        Plane   `toml:"plane" yaml:"plane"`

	Device          string `toml:"device" yaml:"device"`
	FallbackAdapter bool   `toml:"fallback_adapter" yaml:"fallback_adapter"`
	Workers         int    `toml:"workers" yaml:"workers"`

	TickRate  float64    `toml:"tick_rate" yaml:"tick_rate"`
	Ticks     int        `toml:"ticks" yaml:"ticks"`
	Location  [3]float32 `toml:"location" yaml:"location"`
	Drift     [3]float32 `toml:"drift" yaml:"drift"`
	Amplitude float32    `toml:"amplitude" yaml:"amplitude"`
	Frequency float32    `toml:"frequency" yaml:"frequency"`

	Profiling bool   `toml:"profiling" yaml:"profiling"`
	LogLevel  string `toml:"log_level" yaml:"log_level"`
}

// Default returns the configuration of the demo: a level-3 geosphere of radius 1 deformed on
// the CPU for 60 ticks, drifting along +X.
//
// Returns:
//   - Config: the default configuration
func Default() Config {
	return Config{
		Shape:        ShapeGeosphere,
		Radius:       1,
		Subdivisions: 3,
		Scheme:       SchemeEdge,
		Plane:        Plane{Width: 2, Length: 2, Step: 0.25},
		Device:       DeviceCPU,
		TickRate:     60,
		Ticks:        60,
		Drift:        [3]float32{0.001, 0, 0},
		Amplitude:    kernel.DefaultAmplitude,
		Frequency:    kernel.DefaultFrequency,
		LogLevel:     "info",
	}
}

// Load reads the file at path over the defaults. The format is chosen by extension:
// .toml, or .yaml/.yml.
//
// Parameters:
//   - path: the config file path
//
// Returns:
//   - Config: the loaded and validated configuration
//   - error: an error if the file cannot be read, parsed, or fails validation
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(raw, &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &cfg)
	default:
		return Config{}, fmt.Errorf("config: unsupported file extension %q", ext)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot be used.
//
// Returns:
//   - error: an error wrapping ErrInvalid, or nil
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
	}

	switch c.Shape {
	case ShapeGeosphere, ShapeIcosahedron:
		if c.Radius <= 0 {
			return invalid("radius must be positive, got %v", c.Radius)
		}
	case ShapePlane:
		if c.Plane.Width <= 0 || c.Plane.Length <= 0 || c.Plane.Step <= 0 {
			return invalid("plane width, length, and step must be positive, got %+v", c.Plane)
		}
	default:
		return invalid("unknown shape %q", c.Shape)
	}
	if c.Subdivisions < 0 || c.Subdivisions > geometry.MaxSubdivisions {
		return invalid("subdivisions must be between 0 and %d, got %d", geometry.MaxSubdivisions, c.Subdivisions)
	}
	if _, err := c.SubdivisionScheme(); err != nil {
		return err
	}
	if c.Device != DeviceCPU && c.Device != DeviceWebGPU {
		return invalid("unknown device %q", c.Device)
	}
	if c.Workers < 0 {
		return invalid("workers must not be negative, got %d", c.Workers)
	}
	if c.TickRate <= 0 {
		return invalid("tick_rate must be positive, got %v", c.TickRate)
	}
	if c.Ticks < 0 {
		return invalid("ticks must not be negative, got %d", c.Ticks)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// SubdivisionScheme maps Scheme to the geometry subdivision scheme.
//
// Returns:
//   - geometry.SubdivisionScheme: the scheme
//   - error: an error wrapping ErrInvalid for an unknown name
func (c Config) SubdivisionScheme() (geometry.SubdivisionScheme, error) {
	switch c.Scheme {
	case SchemeEdge, "":
		return geometry.SchemeEdge, nil
	case SchemeFaceCenter:
		return geometry.SchemeFaceCenter, nil
	}
	return 0, fmt.Errorf("%w: unknown scheme %q", ErrInvalid, c.Scheme)
}

// Level maps LogLevel to a slog level.
//
// Returns:
//   - slog.Level: the level
//   - error: an error wrapping ErrInvalid for an unknown name
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log_level: %w", ErrInvalid, err)
	}
	return level, nil
}

// Build constructs the configured shape.
//
// Returns:
//   - geometry.MeshData: the flattened mesh
//   - error: a construction or validation error
func (c Config) Build() (geometry.MeshData, error) {
	switch c.Shape {
	case ShapeIcosahedron:
		return geometry.BuildIcosahedron(c.Radius)
	case ShapePlane:
		return geometry.BuildPlane(c.Plane.Width, c.Plane.Length, c.Plane.Step)
	case ShapeGeosphere:
		scheme, err := c.SubdivisionScheme()
		if err != nil {
			return geometry.MeshData{}, err
		}
		return geometry.BuildGeosphere(c.Radius, c.Subdivisions, geometry.WithSubdivisionScheme(scheme))
	}
	return geometry.MeshData{}, fmt.Errorf("%w: unknown shape %q", ErrInvalid, c.Shape)
}

// ShaderData returns the deformation parameters of the first tick.
//
// Returns:
//   - kernel.ShaderData: the parameter blob
func (c Config) ShaderData() kernel.ShaderData {
	data := kernel.NewShaderData(mgl32.Vec3(c.Location))
	data.Amplitude = c.Amplitude
	data.Frequency = c.Frequency
	return data
}

// DriftVector returns Drift as a vector.
func (c Config) DriftVector() mgl32.Vec3 {
	return mgl32.Vec3(c.Drift)
}
