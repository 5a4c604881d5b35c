// Package config loads the offline drivers' YAML configuration: request
// timeouts and backoff, the routing and Wikidata adapters, and the
// solver's tunables. The library packages themselves take explicit
// parameters; nothing under pkg/ imports this package.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the settings for the wildside-ingest and wildside-solve
// drivers.
type Config struct {
	Request  RequestConfig  `yaml:"request"`
	Routing  RoutingConfig  `yaml:"routing"`
	Wikidata WikidataConfig `yaml:"wikidata"`
	Solver   SolverConfig   `yaml:"solver"`
	Scorer   ScorerConfig   `yaml:"scorer"`
	Artefact ArtefactConfig `yaml:"artefact"`
	Log      LogConfig      `yaml:"log"`
}

// RequestConfig holds shared HTTP client settings for outbound requests
// (Wikidata dump download, manifest fetch).
type RequestConfig struct {
	Timeout     Duration      `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     BackoffConfig `yaml:"backoff"`
	UserAgent   string        `yaml:"user_agent"`
}

// BackoffConfig holds exponential backoff bounds.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// RoutingConfig configures the walking-routing table adapter.
type RoutingConfig struct {
	BaseURL     string   `yaml:"base_url"`
	Timeout     Duration `yaml:"timeout"`
	UserAgent   string   `yaml:"user_agent"`
	MaxAttempts int      `yaml:"max_attempts"`
}

// WikidataConfig configures dump acquisition and claim extraction.
type WikidataConfig struct {
	ManifestURL string   `yaml:"manifest_url"`
	Properties  []string `yaml:"properties"`
}

// SolverConfig configures the orienteering metaheuristic.
type SolverConfig struct {
	WalkingSpeedKmh float64  `yaml:"walking_speed_kmh"`
	WallClockBudget Duration `yaml:"wall_clock_budget"`

	// MaxSearchRadius caps the candidate search rectangle regardless of
	// duration_minutes; zero means unset (no cap).
	MaxSearchRadius Distance `yaml:"max_search_radius"`
}

// ScorerConfig configures how popularity and interest-profile relevance
// combine into a single score.
type ScorerConfig struct {
	PopularityWeight float64 `yaml:"popularity_weight"`
	RelevanceWeight  float64 `yaml:"relevance_weight"`
}

// ArtefactConfig names the three on-disk artefacts the offline driver
// produces and the online library reads.
type ArtefactConfig struct {
	DBPath         string `yaml:"db_path"`
	SpatialIndex   string `yaml:"spatial_index_path"`
	PopularityPath string `yaml:"popularity_path"`
}

// LogConfig configures the slog handler used by both drivers.
type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Request: RequestConfig{
			Timeout:     Duration(30 * durationUnits["s"]),
			MaxAttempts: 5,
			Backoff: BackoffConfig{
				BaseDelay: Duration(500 * durationUnits["ms"]),
				MaxDelay:  Duration(30 * durationUnits["s"]),
			},
			UserAgent: "wildside-engine/1",
		},
		Routing: RoutingConfig{
			BaseURL:     "http://localhost:5000",
			Timeout:     Duration(30 * durationUnits["s"]),
			UserAgent:   "wildside-engine/1",
			MaxAttempts: 3,
		},
		Wikidata: WikidataConfig{
			ManifestURL: "https://dumps.wikimedia.org/wikidatawiki/entities/dcatap.json",
			Properties:  []string{"P1435"},
		},
		Solver: SolverConfig{
			WalkingSpeedKmh: 5.0,
			WallClockBudget: Duration(500 * durationUnits["ms"]),
			MaxSearchRadius: Distance(5000),
		},
		Scorer: ScorerConfig{
			PopularityWeight: 0.5,
			RelevanceWeight:  0.5,
		},
		Artefact: ArtefactConfig{
			DBPath:         "pois.db",
			SpatialIndex:   "pois.rstar",
			PopularityPath: "popularity.bin",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads a YAML configuration file, falling back to DefaultConfig
// values for anything the file omits. If path does not exist, the
// defaults are written there and returned. It also loads .env/.env.local
// into the process environment, ignoring a missing file, so secrets
// (routing API keys, etc.) can be supplied without editing YAML.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else {
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("config: write defaults to %s: %w", path, err)
		}
	}

	_ = godotenv.Load(".env.local", ".env")

	return cfg, nil
}

// Save writes cfg to path as YAML, creating the parent directory if
// needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory for %s: %w", path, err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
