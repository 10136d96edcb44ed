package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// File persists values as JSON files under a base directory, one file per
// key. It is the store that survives restarts without a server.
type File struct {
	baseDir string
	now     func() time.Time
}

var _ Provider = (*File)(nil)

// fileRecord is the on-disk shape of one value.
type fileRecord struct {
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	Value     []byte    `json:"value"`
}

// NewFile creates a File store that saves values under baseDir.
func NewFile(baseDir string) *File {
	return &File{baseDir: baseDir, now: time.Now}
}

// Set writes value to the file for key.
func (s *File) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("store: creating directory: %w", err)
	}

	rec := fileRecord{Key: key, Value: value}
	if ttl > 0 {
		rec.ExpiresAt = s.now().Add(ttl)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshaling: %w", err)
	}

	// Write then rename so readers never see a torn file.
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("store: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("store: renaming %s: %w", tmp, err)
	}
	return nil
}

// Get reads the value for key. Expired values are removed and reported as
// a miss.
func (s *File) Get(ctx context.Context, key string) ([]byte, bool, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: reading %s: %w", p, err)
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("store: parsing %s: %w", p, err)
	}
	if !rec.ExpiresAt.IsZero() && !s.now().Before(rec.ExpiresAt) {
		_ = s.Del(ctx, key)
		return nil, false, nil
	}
	return rec.Value, true, nil
}

// Del deletes the file for key.
func (s *File) Del(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("store: removing %s: %w", p, err)
	}
	return nil
}

func (s *File) Close(context.Context) error { return nil }

// path returns the file for key. Keys are encoded so that any string maps
// to a single file name inside baseDir.
func (s *File) path(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	name := base64.RawURLEncoding.EncodeToString([]byte(key))
	return filepath.Join(s.baseDir, name+".json"), nil
}
