package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-geosphere/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_CPU(t *testing.T) {
	cfg := config.Default()
	cfg.Subdivisions = 1
	cfg.Ticks = 3
	cfg.TickRate = 500
	cfg.Workers = 2

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "geosphere: 240 vertices, 80 triangles, bounding radius 1.0000", lines[0])
	assert.Contains(t, lines[1], "on cpu")
}

func TestRun_NoTicks(t *testing.T) {
	cfg := config.Default()
	cfg.Shape = config.ShapeIcosahedron
	cfg.Ticks = 0

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, &out))
	assert.Contains(t, out.String(), "icosahedron: 0 dispatches on cpu")
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "warn"

	var buf bytes.Buffer
	logger, err := newLogger(cfg, &buf)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")

	cfg.LogLevel = "loud"
	_, err = newLogger(cfg, &buf)
	assert.ErrorIs(t, err, config.ErrInvalid)
}
