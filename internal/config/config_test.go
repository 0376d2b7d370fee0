package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ProfileHatPlus, cfg.Profile)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Loading the written file yields the same config.
	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestNormalizeFillsDefaults(t *testing.T) {
	var cfg Config
	cfg.Normalize()

	assert.Equal(t, ProfileHatPlus, cfg.Profile)
	assert.Contains(t, cfg.Profiles, ProfileDual)
	assert.Equal(t, int64(4_000_000), cfg.SPI.SpeedHz)
	assert.Equal(t, 800, cfg.Flags.CanvasWidth)
	assert.Equal(t, 115200, cfg.Serial.Baud)
}

func TestNormalizeUnknownProfileFallsBack(t *testing.T) {
	cfg := Config{Profile: "no-such-board"}
	cfg.Normalize()
	assert.Equal(t, ProfileHatPlus, cfg.Profile)
}

func TestActiveProfile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Profile = ProfileDual

	p, err := cfg.ActiveProfile()
	require.NoError(t, err)
	assert.Equal(t, 26, p.CSS)

	cfg.Profile = "missing"
	_, err = cfg.ActiveProfile()
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Serial.Port = "/dev/ttyACM0"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", loaded.Serial.Port)
	assert.Equal(t, cfg.Profiles, loaded.Profiles)
}
