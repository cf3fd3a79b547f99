package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration, loaded from YAML with defaults for
// everything omitted.
type Config struct {
	Addr    string `yaml:"addr"`
	DataDir string `yaml:"data_dir"`
	Seed    int64  `yaml:"seed"`

	TickRateHz   int `yaml:"tick_rate_hz"`
	ViewDistance int `yaml:"view_distance"`
	BufferMargin int `yaml:"buffer_margin"`

	PopulateWorkers int     `yaml:"populate_workers"`
	PopulateRate    float64 `yaml:"populate_rate"`
	PopulateBurst   int     `yaml:"populate_burst"`

	PersistWorkers  int `yaml:"persist_workers"`
	PersistAttempts int `yaml:"persist_attempts"`

	TickLog bool `yaml:"tick_log"`
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Addr:            ":8080",
		DataDir:         "data",
		Seed:            1337,
		TickRateHz:      10,
		ViewDistance:    4,
		BufferMargin:    1,
		PopulateWorkers: 4,
		PopulateRate:    0,
		PopulateBurst:   256,
		PersistWorkers:  2,
		PersistAttempts: 0,
		TickLog:         true,
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = ":8080"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "data"
	}
	if c.PopulateBurst <= 0 {
		c.PopulateBurst = 256
	}
}

func (c Config) Validate() error {
	if c.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0")
	}
	if c.ViewDistance <= 0 {
		return fmt.Errorf("view_distance must be > 0")
	}
	if c.BufferMargin <= 0 {
		return fmt.Errorf("buffer_margin must be > 0")
	}
	if c.PopulateWorkers <= 0 {
		return fmt.Errorf("populate_workers must be > 0")
	}
	if c.PopulateRate < 0 {
		return fmt.Errorf("populate_rate must be >= 0")
	}
	if c.PersistWorkers <= 0 {
		return fmt.Errorf("persist_workers must be > 0")
	}
	if c.PersistAttempts < 0 {
		return fmt.Errorf("persist_attempts must be >= 0")
	}
	return nil
}
