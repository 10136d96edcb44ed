// Package config handles layered YAML configuration with environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all eventdeck configuration.
type Config struct {
	API     API     `yaml:"api"`
	Cache   Cache   `yaml:"cache"`
	Persist Persist `yaml:"persist"`
	Log     Log     `yaml:"log"`
}

// API holds backend connection settings.
type API struct {
	BaseURL      string        `yaml:"base_url"`
	ImageBaseURL string        `yaml:"image_base_url"`
	Timeout      time.Duration `yaml:"timeout"`
	UserAgent    string        `yaml:"user_agent"`
	Token        string        `yaml:"token"`
}

// Cache holds query cache settings.
type Cache struct {
	StaleTime      time.Duration `yaml:"stale_time"`
	GCTime         time.Duration `yaml:"gc_time"`
	GCSchedule     string        `yaml:"gc_schedule"`     // cron spec
	UpdateStrategy string        `yaml:"update_strategy"` // "pessimistic" | "optimistic"
}

// Persist holds settings for the optional second cache tier.
type Persist struct {
	Provider  string        `yaml:"provider"` // "none" | "memory" | "bigcache" | "file" | "redis"
	Codec     string        `yaml:"codec"`    // "json" | "msgpack" | "cbor" | "protobuf"
	Dir       string        `yaml:"dir"`
	TTL       time.Duration `yaml:"ttl"`
	RedisAddr string        `yaml:"redis_addr"`
	RedisDB   int           `yaml:"redis_db"`
	MaxDecode int           `yaml:"max_decode"` // bytes; 0 disables the limit
}

// Log holds diagnostic logging settings.
type Log struct {
	Backend string `yaml:"backend"` // "zap" | "logrus"
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		API: API{
			BaseURL:      "http://localhost:3000",
			ImageBaseURL: "http://localhost:3000",
			Timeout:      10 * time.Second,
			UserAgent:    "eventdeck",
		},
		Cache: Cache{
			StaleTime:      10 * time.Second,
			GCTime:         5 * time.Minute,
			GCSchedule:     "@every 1m",
			UpdateStrategy: "pessimistic",
		},
		Persist: Persist{
			Provider:  "none",
			Codec:     "json",
			Dir:       ".eventdeck/cache",
			TTL:       24 * time.Hour,
			MaxDecode: 1 << 20,
		},
		Log: Log{
			Backend: "zap",
			Level:   "warn",
		},
	}
}

// Load reads a single YAML config file at path and returns a Config.
// For merging multiple config sources, use LoadLayered instead.
// If the file does not exist, defaults are returned without error.
// If the file contains invalid YAML or unknown fields, an error is returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if len(data) == 0 {
		return &cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		// Comment-only YAML files produce EOF with no decoded content.
		if errors.Is(err, io.EOF) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return &cfg, nil
}

// LoadLayered loads config from multiple paths with increasing priority.
// Later paths override earlier ones. Missing files are skipped.
func LoadLayered(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range paths {
		layer, err := loadLayer(path)
		if err != nil {
			return nil, err
		}
		if layer == nil {
			continue
		}
		cfg.merge(layer)
	}

	return &cfg, nil
}

var (
	persistProviders = []string{"none", "memory", "bigcache", "file", "redis"}
	persistCodecs    = []string{"json", "msgpack", "cbor", "protobuf"}
	logBackends      = []string{"zap", "logrus"}
	logLevels        = []string{"debug", "info", "warn", "error"}
)

// Validate checks that config values are usable.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("config: api.base_url cannot be empty")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: api.base_url must be an http(s) URL, got %q", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("config: api.timeout must be positive, got %v", c.API.Timeout)
	}
	if c.Cache.StaleTime < 0 {
		return fmt.Errorf("config: cache.stale_time must be non-negative, got %v", c.Cache.StaleTime)
	}
	if c.Cache.GCTime <= 0 {
		return fmt.Errorf("config: cache.gc_time must be positive, got %v", c.Cache.GCTime)
	}
	switch c.Cache.UpdateStrategy {
	case "", "pessimistic", "optimistic":
		// valid
	default:
		return fmt.Errorf("config: cache.update_strategy must be \"pessimistic\" or \"optimistic\", got %q", c.Cache.UpdateStrategy)
	}
	if c.Persist.Provider != "" && !slices.Contains(persistProviders, c.Persist.Provider) {
		return fmt.Errorf("config: persist.provider must be one of %v, got %q", persistProviders, c.Persist.Provider)
	}
	if c.Persist.Codec != "" && !slices.Contains(persistCodecs, c.Persist.Codec) {
		return fmt.Errorf("config: persist.codec must be one of %v, got %q", persistCodecs, c.Persist.Codec)
	}
	if c.Persist.Provider == "file" && c.Persist.Dir == "" {
		return errors.New("config: persist.dir cannot be empty with the file provider")
	}
	if c.Persist.Provider == "redis" && c.Persist.RedisAddr == "" {
		return errors.New("config: persist.redis_addr cannot be empty with the redis provider")
	}
	if c.Persist.TTL < 0 {
		return fmt.Errorf("config: persist.ttl must be non-negative, got %v", c.Persist.TTL)
	}
	if c.Persist.MaxDecode < 0 {
		return fmt.Errorf("config: persist.max_decode must be non-negative, got %d", c.Persist.MaxDecode)
	}
	if c.Log.Backend != "" && !slices.Contains(logBackends, c.Log.Backend) {
		return fmt.Errorf("config: log.backend must be \"zap\" or \"logrus\", got %q", c.Log.Backend)
	}
	if c.Log.Level != "" && !slices.Contains(logLevels, c.Log.Level) {
		return fmt.Errorf("config: log.level must be one of %v, got %q", logLevels, c.Log.Level)
	}
	return nil
}

// ApplyEnv applies environment variable overrides to the config.
// Supported variables: EVENTDECK_API_URL, EVENTDECK_API_TOKEN,
// EVENTDECK_STALE_TIME, EVENTDECK_UPDATE_STRATEGY, EVENTDECK_LOG_LEVEL.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("EVENTDECK_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("EVENTDECK_API_TOKEN"); v != "" {
		c.API.Token = v
	}
	if v := os.Getenv("EVENTDECK_STALE_TIME"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid EVENTDECK_STALE_TIME %q: %w", v, err)
		}
		c.Cache.StaleTime = d
	}
	if v := os.Getenv("EVENTDECK_UPDATE_STRATEGY"); v != "" {
		c.Cache.UpdateStrategy = v
	}
	if v := os.Getenv("EVENTDECK_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// rawConfig mirrors Config but uses pointers to distinguish set vs unset fields.
type rawConfig struct {
	API     *rawAPI     `yaml:"api"`
	Cache   *rawCache   `yaml:"cache"`
	Persist *rawPersist `yaml:"persist"`
	Log     *rawLog     `yaml:"log"`
}

type rawAPI struct {
	BaseURL      *string        `yaml:"base_url"`
	ImageBaseURL *string        `yaml:"image_base_url"`
	Timeout      *time.Duration `yaml:"timeout"`
	UserAgent    *string        `yaml:"user_agent"`
	Token        *string        `yaml:"token"`
}

type rawCache struct {
	StaleTime      *time.Duration `yaml:"stale_time"`
	GCTime         *time.Duration `yaml:"gc_time"`
	GCSchedule     *string        `yaml:"gc_schedule"`
	UpdateStrategy *string        `yaml:"update_strategy"`
}

type rawPersist struct {
	Provider  *string        `yaml:"provider"`
	Codec     *string        `yaml:"codec"`
	Dir       *string        `yaml:"dir"`
	TTL       *time.Duration `yaml:"ttl"`
	RedisAddr *string        `yaml:"redis_addr"`
	RedisDB   *int           `yaml:"redis_db"`
	MaxDecode *int           `yaml:"max_decode"`
}

type rawLog struct {
	Backend *string `yaml:"backend"`
	Level   *string `yaml:"level"`
	File    *string `yaml:"file"`
}

// loadLayer reads a single config file into a rawConfig for selective merging.
// Returns nil if the file does not exist. Rejects unknown fields.
func loadLayer(path string) (*rawConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if len(data) == 0 {
		return nil, nil
	}

	var raw rawConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return &raw, nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// merge applies non-nil fields from a rawConfig layer onto this Config.
func (c *Config) merge(layer *rawConfig) {
	if a := layer.API; a != nil {
		set(&c.API.BaseURL, a.BaseURL)
		set(&c.API.ImageBaseURL, a.ImageBaseURL)
		set(&c.API.Timeout, a.Timeout)
		set(&c.API.UserAgent, a.UserAgent)
		set(&c.API.Token, a.Token)
	}
	if ca := layer.Cache; ca != nil {
		set(&c.Cache.StaleTime, ca.StaleTime)
		set(&c.Cache.GCTime, ca.GCTime)
		set(&c.Cache.GCSchedule, ca.GCSchedule)
		set(&c.Cache.UpdateStrategy, ca.UpdateStrategy)
	}
	if p := layer.Persist; p != nil {
		set(&c.Persist.Provider, p.Provider)
		set(&c.Persist.Codec, p.Codec)
		set(&c.Persist.Dir, p.Dir)
		set(&c.Persist.TTL, p.TTL)
		set(&c.Persist.RedisAddr, p.RedisAddr)
		set(&c.Persist.RedisDB, p.RedisDB)
		set(&c.Persist.MaxDecode, p.MaxDecode)
	}
	if l := layer.Log; l != nil {
		set(&c.Log.Backend, l.Backend)
		set(&c.Log.Level, l.Level)
		set(&c.Log.File, l.File)
	}
}
