package store

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"
)

// MemoryConfig sizes a Memory store.
type MemoryConfig struct {
	NumCounters int64
	MaxCost     int64 // bytes
	BufferItems int64
}

// DefaultMemoryConfig holds roughly 64 MiB of values.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{NumCounters: 1e5, MaxCost: 64 << 20, BufferItems: 64}
}

// Memory is an in-process store backed by ristretto. It keeps values across
// query cache GC but not across restarts.
type Memory struct {
	c *rc.Cache
}

var _ Provider = (*Memory)(nil)

// NewMemory creates a Memory store.
func NewMemory(cfg MemoryConfig) (*Memory, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("store: invalid memory config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &Memory{c: c}, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		m.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	if ttl < 0 {
		ttl = 0
	}
	if !m.c.SetWithTTL(key, value, int64(len(value)), ttl) {
		return errors.New("store: memory write dropped")
	}
	// Writes are buffered; make them visible to the next Get.
	m.c.Wait()
	return nil
}

func (m *Memory) Del(_ context.Context, key string) error {
	m.c.Del(key)
	return nil
}

func (m *Memory) Close(_ context.Context) error {
	m.c.Wait()
	m.c.Close()
	return nil
}
