// Package config holds the in-process configuration struct described by
// spec §6's "Configuration keys consumed" table, plus a minimal loader.
// Configuration file loading and validation richness are explicitly out
// of scope (spec §1): Load reads a YAML file over the documented
// defaults and returns; Validate only checks the handful of invariants
// the core actually depends on.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// VoiceVox holds the engine-connection keys (spec §6).
type VoiceVox struct {
	BaseURL           string        `yaml:"base_url"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
	DefaultSpeaker    int           `yaml:"default_speaker"`
	KeepEngineRunning bool          `yaml:"keep_engine_running"`
}

// Cache holds the disk/memory cache keys (spec §6).
type Cache struct {
	Directory                  string  `yaml:"directory"`
	UseExecutableBaseDirectory bool    `yaml:"use_executable_base_directory"`
	ExpirationDays             int     `yaml:"expiration_days"`
	MaxSizeGB                  float64 `yaml:"max_size_gb"`
	MemoryCacheSizeMB          int     `yaml:"memory_cache_size_mb"`
}

// Audio holds the playback-device keys (spec §6). These fields are
// carried for CLI/config-surface completeness only: the Segment Player
// reads none of them in this build, Volume included, and always plays at
// full volume through the default oto device.
type Audio struct {
	Volume                float64       `yaml:"volume"`
	OutputDevice          int           `yaml:"output_device"`
	DesiredLatency        time.Duration `yaml:"desired_latency"`
	NumberOfBuffers       int           `yaml:"number_of_buffers"`
	PrepareDevice         bool          `yaml:"prepare_device"`
	PreparationDurationMs int           `yaml:"preparation_duration_ms"`
	PreparationVolume     float64       `yaml:"preparation_volume"`
}

// Filler holds the Filler Store keys (spec §6).
type Filler struct {
	Enabled     bool     `yaml:"enabled"`
	Directory   string   `yaml:"directory"`
	FillerTexts []string `yaml:"filler_texts"`
}

// Config is the full key table spec §6 describes.
type Config struct {
	VoiceVox VoiceVox `yaml:"voicevox"`
	Cache    Cache    `yaml:"cache"`
	Audio    Audio    `yaml:"audio"`
	Filler   Filler   `yaml:"filler"`
}

// Default returns the defaults named in spec §6.
func Default() Config {
	return Config{
		VoiceVox: VoiceVox{
			BaseURL:           "http://127.0.0.1:50021",
			ConnectionTimeout: 30 * time.Second,
			DefaultSpeaker:    1,
			KeepEngineRunning: false,
		},
		Cache: Cache{
			Directory:                  "./cache",
			UseExecutableBaseDirectory: true,
			ExpirationDays:             30,
			MaxSizeGB:                  1.0,
			MemoryCacheSizeMB:          128,
		},
		Audio: Audio{
			Volume:                1.0,
			OutputDevice:          -1,
			DesiredLatency:        100 * time.Millisecond,
			NumberOfBuffers:       3,
			PrepareDevice:         true,
			PreparationDurationMs: 100,
			PreparationVolume:     0.0,
		},
		Filler: Filler{
			Enabled:   true,
			Directory: "./filler",
			FillerTexts: []string{
				"Hmm, let me think.",
				"One moment.",
				"Just a second.",
			},
		},
	}
}

// Load reads path (if it exists) as YAML layered over Default(). A
// missing file is not an error — the defaults are returned as-is,
// matching the teacher's best-effort `godotenv.Load()` pattern of not
// treating an absent config source as fatal.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the handful of invariants the core depends on, so
// downstream components never have to defend against nonsensical config
// (spec §1.3).
func (c Config) Validate() error {
	if c.VoiceVox.BaseURL == "" {
		return fmt.Errorf("voicevox.base_url must not be empty")
	}
	if c.VoiceVox.DefaultSpeaker <= 0 {
		return fmt.Errorf("voicevox.default_speaker must be positive")
	}
	if c.Cache.MaxSizeGB <= 0 {
		return fmt.Errorf("cache.max_size_gb must be positive")
	}
	if c.Cache.MemoryCacheSizeMB <= 0 {
		return fmt.Errorf("cache.memory_cache_size_mb must be positive")
	}
	return nil
}
