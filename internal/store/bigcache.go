package store

import (
	"context"
	"errors"
	"time"

	bc "github.com/allegro/bigcache/v3"
)

// BigCacheConfig configures a BigCache store. BigCache has a single
// LifeWindow for every entry; per-entry TTLs are ignored.
type BigCacheConfig struct {
	LifeWindow         time.Duration
	CleanWindow        time.Duration
	HardMaxCacheSizeMB int
}

// BigCache is an in-process store for large numbers of entries.
type BigCache struct {
	c *bc.BigCache
}

var _ Provider = (*BigCache)(nil)

// NewBigCache creates a BigCache store.
func NewBigCache(cfg BigCacheConfig) (*BigCache, error) {
	if cfg.LifeWindow <= 0 {
		cfg.LifeWindow = 24 * time.Hour
	}
	conf := bc.DefaultConfig(cfg.LifeWindow)
	conf.Verbose = false
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	return &BigCache{c: c}, nil
}

func (b *BigCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, err := b.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (b *BigCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	return b.c.Set(key, value)
}

func (b *BigCache) Del(_ context.Context, key string) error {
	if err := b.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (b *BigCache) Close(_ context.Context) error {
	return b.c.Close()
}
