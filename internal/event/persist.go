package event

import (
	"context"
	"time"

	"github.com/smileynet/eventdeck/internal/query"
	"github.com/smileynet/eventdeck/internal/store"
)

// Persister stores cached events in a byte store. Single events and
// collection results are encoded separately but share invalidation
// watermarks.
type Persister struct {
	one  *store.Snapshots[Event]
	many *store.Snapshots[[]Event]
}

var _ query.Persister = (*Persister)(nil)

// PersistOptions configure NewPersister.
type PersistOptions struct {
	Codec     string // json, msgpack, cbor or protobuf
	MaxDecode int
	TTL       time.Duration
}

// NewPersister creates a Persister over p.
func NewPersister(p store.Provider, opts PersistOptions) (*Persister, error) {
	oneCodec, err := store.NewCodec[Event](opts.Codec, opts.MaxDecode)
	if err != nil {
		return nil, err
	}
	manyCodec, err := store.NewCodec[[]Event](opts.Codec, opts.MaxDecode)
	if err != nil {
		return nil, err
	}
	so := store.SnapshotOptions{Namespace: "eventdeck:v1:" + codecName(opts.Codec), TTL: opts.TTL}
	return &Persister{
		one:  store.NewSnapshots(p, oneCodec, so),
		many: store.NewSnapshots(p, manyCodec, so),
	}, nil
}

// codecName keeps values written with different codecs apart.
func codecName(c string) string {
	if c == "" {
		return "json"
	}
	return c
}

func (p *Persister) Load(ctx context.Context, key query.Key) (query.Snapshot, bool, error) {
	if IsListKey(key) {
		return p.many.Load(ctx, key)
	}
	return p.one.Load(ctx, key)
}

func (p *Persister) Save(ctx context.Context, key query.Key, data any, updatedAt time.Time) error {
	if IsListKey(key) {
		return p.many.Save(ctx, key, data, updatedAt)
	}
	return p.one.Save(ctx, key, data, updatedAt)
}

// Invalidate records a watermark shared by both encodings.
func (p *Persister) Invalidate(ctx context.Context, prefix query.Key) error {
	return p.one.Invalidate(ctx, prefix)
}
