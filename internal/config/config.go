// Package config loads server settings: built-in defaults, then an optional
// YAML file (CONFIG_FILE), then environment variables.
//
//	GAME_PORT / PORT     listen port (default 8081, PORT wins)
//	DATA_API_BASE        profile service base URL (empty: anonymous play)
//	MATCH_LOG_DIR        directory for finished-match JSON files
//	LOG_LEVEL            zerolog level (default info)
//	LOG_FORMAT           json or console
//	RATING_TOLERANCE     matchmaking rating window (default 200)
//	SEARCH_TIMEOUT       e.g. 30s
//	PLACEMENT_TIMEOUT    e.g. 30s
//	TURN_TIMEOUT         e.g. 30s
//	DISCONNECT_GRACE     e.g. 10s
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string `yaml:"port"`
	DataAPIBase string `yaml:"data_api_base"`
	MatchLogDir string `yaml:"match_log_dir"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`

	RatingTolerance  int           `yaml:"rating_tolerance"`
	SearchTimeout    time.Duration `yaml:"search_timeout"`
	PlacementTimeout time.Duration `yaml:"placement_timeout"`
	TurnTimeout      time.Duration `yaml:"turn_timeout"`
	DisconnectGrace  time.Duration `yaml:"disconnect_grace"`
}

func Default() Config {
	return Config{
		Port:             "8081",
		LogLevel:         "info",
		LogFormat:        "json",
		RatingTolerance:  200,
		SearchTimeout:    30 * time.Second,
		PlacementTimeout: 30 * time.Second,
		TurnTimeout:      30 * time.Second,
		DisconnectGrace:  10 * time.Second,
	}
}

func (c Config) ListenAddr() string { return ":" + c.Port }

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// Load builds the effective configuration from the process environment.
func Load() (Config, error) {
	return load(getenv("CONFIG_FILE", ""), os.Getenv)
}

func load(file string, env func(string) string) (Config, error) {
	cfg := Default()
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return cfg, errors.Wrapf(err, "read config %s", file)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse config %s", file)
		}
	}

	str := func(k string, dst *string) {
		if v := strings.TrimSpace(env(k)); v != "" {
			*dst = v
		}
	}
	str("GAME_PORT", &cfg.Port)
	str("PORT", &cfg.Port)
	str("DATA_API_BASE", &cfg.DataAPIBase)
	str("MATCH_LOG_DIR", &cfg.MatchLogDir)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)

	if v := strings.TrimSpace(env("RATING_TOLERANCE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, errors.Wrap(err, "RATING_TOLERANCE")
		}
		cfg.RatingTolerance = n
	}
	for k, dst := range map[string]*time.Duration{
		"SEARCH_TIMEOUT":    &cfg.SearchTimeout,
		"PLACEMENT_TIMEOUT": &cfg.PlacementTimeout,
		"TURN_TIMEOUT":      &cfg.TurnTimeout,
		"DISCONNECT_GRACE":  &cfg.DisconnectGrace,
	} {
		v := strings.TrimSpace(env(k))
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, errors.Wrap(err, k)
		}
		*dst = d
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.RatingTolerance < 0 {
		return errors.Errorf("rating tolerance must not be negative, got %d", c.RatingTolerance)
	}
	for name, d := range map[string]time.Duration{
		"search timeout":    c.SearchTimeout,
		"placement timeout": c.PlacementTimeout,
		"turn timeout":      c.TurnTimeout,
		"disconnect grace":  c.DisconnectGrace,
	} {
		if d <= 0 {
			return errors.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.Wrapf(err, "port %q", c.Port)
	}
	return nil
}
