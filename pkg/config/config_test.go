package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDurationExtendedUnits(t *testing.T) {
	d, err := ParseDuration("2d")
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, d)

	d, err = ParseDuration("1w")
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, d)

	d, err = ParseDuration("90s")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)
}

func TestParseDurationRejectsUnknownUnit(t *testing.T) {
	_, err := ParseDuration("3x")
	assert.Error(t, err)
}

func TestParseDistanceSuffixes(t *testing.T) {
	d, err := ParseDistance("1.5km")
	require.NoError(t, err)
	assert.InDelta(t, 1500.0, d, 1e-9)

	d, err = ParseDistance("500")
	require.NoError(t, err)
	assert.InDelta(t, 500.0, d, 1e-9)
}

func TestLoadWritesDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Solver.WalkingSpeedKmh, cfg.Solver.WalkingSpeedKmh)
	assert.FileExists(t, path)
}

func TestLoadRoundTripsMaxSearchRadius(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 5000.0, float64(cfg.Solver.MaxSearchRadius), 1e-9)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Solver.MaxSearchRadius, reloaded.Solver.MaxSearchRadius)
}

func TestLoadMergesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, Save(path, &Config{Solver: SolverConfig{WalkingSpeedKmh: 4.2}}))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4.2, cfg.Solver.WalkingSpeedKmh)
}
