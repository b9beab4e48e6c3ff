package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-geosphere/engine/geometry"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/kernel"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	data, err := cfg.Build()
	require.NoError(t, err)
	assert.Equal(t, 20*64*3, data.VertexCount())

	sd := cfg.ShaderData()
	assert.Equal(t, kernel.DefaultAmplitude, sd.Amplitude)
	assert.Equal(t, kernel.DefaultFrequency, sd.Frequency)
	assert.Equal(t, mgl32.Vec3{0.001, 0, 0}, cfg.DriftVector())

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "geo.toml", `
shape = "plane"
device = "webgpu"
ticks = 5
location = [1.0, 2.0, 3.0]
amplitude = 0.5
log_level = "debug"

[plane]
width = 1.0
length = 3.0
step = 0.5
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ShapePlane, cfg.Shape)
	assert.Equal(t, DeviceWebGPU, cfg.Device)
	assert.Equal(t, 5, cfg.Ticks)
	assert.Equal(t, Plane{Width: 1, Length: 3, Step: 0.5}, cfg.Plane)
	assert.Equal(t, 60.0, cfg.TickRate, "unset keys keep their defaults")

	sd := cfg.ShaderData()
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, sd.Location)
	assert.Equal(t, float32(0.5), sd.Amplitude)

	data, err := cfg.Build()
	require.NoError(t, err)
	assert.Equal(t, 2*6*2*3, data.VertexCount())
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "geo.yml", `
shape: geosphere
radius: 2
subdivisions: 1
scheme: face-center
drift: [0, 0.01, 0]
workers: 3
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	scheme, err := cfg.SubdivisionScheme()
	require.NoError(t, err)
	assert.Equal(t, geometry.SchemeFaceCenter, scheme)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, mgl32.Vec3{0, 0.01, 0}, cfg.DriftVector())

	data, err := cfg.Build()
	require.NoError(t, err)
	assert.Equal(t, 60*3, data.VertexCount())
	assert.InDelta(t, 2, data.BoundingRadius(), 1e-5)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "geo.json", `{}`))
	assert.ErrorContains(t, err, "unsupported")

	_, err = Load(writeFile(t, "geo.toml", `shape = [`))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "geo.yaml", "shape: cube\n"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown shape", func(c *Config) { c.Shape = "torus" }},
		{"zero radius", func(c *Config) { c.Radius = 0 }},
		{"negative subdivisions", func(c *Config) { c.Subdivisions = -1 }},
		{"too many subdivisions", func(c *Config) { c.Subdivisions = 20 }},
		{"unknown scheme", func(c *Config) { c.Scheme = "loop" }},
		{"flat plane", func(c *Config) { c.Shape = ShapePlane; c.Plane.Step = 0 }},
		{"unknown device", func(c *Config) { c.Device = "metal" }},
		{"negative workers", func(c *Config) { c.Workers = -2 }},
		{"zero tick rate", func(c *Config) { c.TickRate = 0 }},
		{"negative ticks", func(c *Config) { c.Ticks = -1 }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}
