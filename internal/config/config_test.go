package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, `
voicevox:
  base_url: "http://example.invalid:1234"
  default_speaker: 7
cache:
  max_size_gb: 2.5
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://example.invalid:1234", cfg.VoiceVox.BaseURL)
	assert.Equal(t, 7, cfg.VoiceVox.DefaultSpeaker)
	assert.Equal(t, 2.5, cfg.Cache.MaxSizeGB)
	// Fields not present in the file keep their defaults.
	assert.Equal(t, "./cache", cfg.Cache.Directory)
	assert.True(t, cfg.Filler.Enabled)
}

func TestValidateRejectsEmptyBaseURL(t *testing.T) {
	cfg := Default()
	cfg.VoiceVox.BaseURL = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveSpeaker(t *testing.T) {
	cfg := Default()
	cfg.VoiceVox.DefaultSpeaker = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveCacheSize(t *testing.T) {
	cfg := Default()
	cfg.Cache.MaxSizeGB = 0
	assert.Error(t, cfg.Validate())
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
}
