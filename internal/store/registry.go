package store

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Config carries the settings any registered provider may need.
type Config struct {
	Dir       string
	TTL       time.Duration
	RedisAddr string
	RedisDB   int
}

// Factory creates a provider from cfg.
type Factory func(cfg Config) (Provider, error)

// Registry maps provider names to factory functions.
// It is not safe for concurrent use; registration should happen at startup.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a Registry with the built-in providers: memory,
// bigcache, file and redis.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("memory", func(Config) (Provider, error) {
		return NewMemory(DefaultMemoryConfig())
	})
	r.Register("bigcache", func(cfg Config) (Provider, error) {
		return NewBigCache(BigCacheConfig{LifeWindow: cfg.TTL})
	})
	r.Register("file", func(cfg Config) (Provider, error) {
		if cfg.Dir == "" {
			return nil, fmt.Errorf("store: file provider needs a directory")
		}
		return NewFile(filepath.Clean(cfg.Dir)), nil
	})
	r.Register("redis", func(cfg Config) (Provider, error) {
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("store: redis provider needs an address")
		}
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		return NewRedis(RedisConfig{Client: client, CloseClient: true})
	})
	return r
}

// Register adds a named factory. Overwrites if name already exists.
// Panics if name is empty or f is nil (programmer error).
func (r *Registry) Register(name string, f Factory) {
	if name == "" {
		panic("store: Register called with empty name")
	}
	if f == nil {
		panic("store: Register called with nil factory")
	}
	r.factories[name] = f
}

// New instantiates a provider by name.
func (r *Registry) New(name string, cfg Config) (Provider, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, &UnknownProviderError{Name: name, Available: r.Available()}
	}
	p, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("store: provider %q: %w", name, err)
	}
	return p, nil
}

// Available returns registered provider names in sorted order.
func (r *Registry) Available() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownProviderError indicates a provider name is not registered.
type UnknownProviderError struct {
	Name      string
	Available []string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown store provider %q (available: %s)", e.Name, strings.Join(e.Available, ", "))
}
