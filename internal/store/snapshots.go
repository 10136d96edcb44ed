package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/smileynet/eventdeck/internal/query"
)

// headerLen is the size of the big-endian UnixNano timestamp that precedes
// every encoded snapshot and watermark.
const headerLen = 8

// SnapshotOptions configure Snapshots.
type SnapshotOptions struct {
	// Namespace prefixes every store key; stores shared by several
	// Snapshots must use the same namespace to share watermarks.
	Namespace string
	TTL       time.Duration
	Now       func() time.Time
}

// Snapshots persists query cache values of type V. Invalidations are stored
// as per-prefix watermarks, so a snapshot written before the latest
// invalidation of any of its prefixes loads as invalidated.
type Snapshots[V any] struct {
	p     Provider
	codec Codec[V]
	ns    string
	ttl   time.Duration
	now   func() time.Time
}

var _ query.Persister = (*Snapshots[struct{}])(nil)

// NewSnapshots creates a Snapshots over p.
func NewSnapshots[V any](p Provider, codec Codec[V], opts SnapshotOptions) *Snapshots[V] {
	if opts.Namespace == "" {
		opts.Namespace = "eventdeck:v1"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Snapshots[V]{p: p, codec: codec, ns: opts.Namespace, ttl: opts.TTL, now: opts.Now}
}

// Load returns the snapshot for key, if any.
func (s *Snapshots[V]) Load(ctx context.Context, key query.Key) (query.Snapshot, bool, error) {
	sk := s.storeKey("snap", key)
	b, ok, err := s.p.Get(ctx, sk)
	if err != nil || !ok {
		return query.Snapshot{}, false, err
	}
	if len(b) < headerLen {
		_ = s.p.Del(ctx, sk)
		return query.Snapshot{}, false, fmt.Errorf("store: snapshot %s: truncated", key.Display())
	}
	updatedAt := decodeTime(b)
	v, err := s.codec.Decode(b[headerLen:])
	if err != nil {
		return query.Snapshot{}, false, fmt.Errorf("store: snapshot %s: %w", key.Display(), err)
	}
	invalidated, err := s.invalidatedSince(ctx, key, updatedAt)
	if err != nil {
		return query.Snapshot{}, false, err
	}
	return query.Snapshot{Data: v, UpdatedAt: updatedAt, Invalidated: invalidated}, true, nil
}

// Save stores data, which must be a V, as the snapshot for key.
func (s *Snapshots[V]) Save(ctx context.Context, key query.Key, data any, updatedAt time.Time) error {
	v, ok := data.(V)
	if !ok {
		return fmt.Errorf("store: snapshot %s: value is %T", key.Display(), data)
	}
	payload, err := s.codec.Encode(v)
	if err != nil {
		return fmt.Errorf("store: snapshot %s: %w", key.Display(), err)
	}
	b := make([]byte, headerLen, headerLen+len(payload))
	binary.BigEndian.PutUint64(b, uint64(updatedAt.UnixNano()))
	b = append(b, payload...)
	if err := s.p.Set(ctx, s.storeKey("snap", key), b, s.ttl); err != nil {
		return fmt.Errorf("store: snapshot %s: %w", key.Display(), err)
	}
	return nil
}

// Invalidate records a watermark for prefix at the current time.
func (s *Snapshots[V]) Invalidate(ctx context.Context, prefix query.Key) error {
	b := make([]byte, headerLen)
	binary.BigEndian.PutUint64(b, uint64(s.now().UnixNano()))
	if err := s.p.Set(ctx, s.storeKey("inv", prefix), b, s.ttl); err != nil {
		return fmt.Errorf("store: invalidate %s: %w", prefix.Display(), err)
	}
	return nil
}

func (s *Snapshots[V]) invalidatedSince(ctx context.Context, key query.Key, updatedAt time.Time) (bool, error) {
	for i := 0; i <= len(key); i++ {
		b, ok, err := s.p.Get(ctx, s.storeKey("inv", key[:i]))
		if err != nil {
			return false, fmt.Errorf("store: watermark %s: %w", key[:i].Display(), err)
		}
		if ok && len(b) == headerLen && !decodeTime(b).Before(updatedAt) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Snapshots[V]) storeKey(kind string, key query.Key) string {
	parts := make([]string, len(key))
	for i, p := range key {
		parts[i] = url.PathEscape(p)
	}
	return s.ns + ":" + kind + ":" + strings.Join(parts, "/")
}

func decodeTime(b []byte) time.Time {
	return time.Unix(0, int64(binary.BigEndian.Uint64(b[:headerLen])))
}
