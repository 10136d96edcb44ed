package store

import (
	"context"
	"testing"
	"time"

	"github.com/smileynet/eventdeck/internal/query"
)

type item struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func newSnapshots(t *testing.T, now *time.Time) (*Snapshots[item], *Snapshots[[]item]) {
	t.Helper()
	p := NewFile(t.TempDir())
	clock := func() time.Time { return *now }
	one := NewSnapshots[item](p, JSON[item]{}, SnapshotOptions{Now: clock})
	many := NewSnapshots[[]item](p, Msgpack[[]item]{}, SnapshotOptions{Now: clock})
	return one, many
}

func TestSnapshots_SaveLoad(t *testing.T) {
	// Given: a saved snapshot
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	one, _ := newSnapshots(t, &now)
	key := query.Key{"events", "1"}
	updated := now.Add(-time.Second)
	if err := one.Save(context.Background(), key, item{ID: "1", Title: "Launch"}, updated); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// When: it is loaded
	snap, ok, err := one.Load(context.Background(), key)

	// Then: the value and its original timestamp come back
	if err != nil || !ok {
		t.Fatalf("Load() = %v, %v; want hit", ok, err)
	}
	if got := snap.Data.(item); got.Title != "Launch" {
		t.Errorf("Data.Title = %q, want Launch", got.Title)
	}
	if !snap.UpdatedAt.Equal(updated) {
		t.Errorf("UpdatedAt = %v, want %v", snap.UpdatedAt, updated)
	}
	if snap.Invalidated {
		t.Error("Invalidated = true, want false")
	}
}

func TestSnapshots_Miss(t *testing.T) {
	now := time.Now()
	one, _ := newSnapshots(t, &now)
	_, ok, err := one.Load(context.Background(), query.Key{"events", "missing"})
	if err != nil || ok {
		t.Errorf("Load() = %v, %v; want miss", ok, err)
	}
}

func TestSnapshots_WatermarkInvalidatesOlderSnapshots(t *testing.T) {
	// Given: snapshots of an event and a list sharing one store
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	one, many := newSnapshots(t, &now)
	ctx := context.Background()
	eventKey := query.Key{"events", "1"}
	listKey := query.Key{"events", "list", "", "0"}
	_ = one.Save(ctx, eventKey, item{ID: "1"}, now)
	_ = many.Save(ctx, listKey, []item{{ID: "1"}}, now)

	// When: the collection prefix is invalidated later
	now = now.Add(time.Second)
	if err := one.Invalidate(ctx, query.Key{"events"}); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}

	// Then: both load as invalidated
	if snap, _, _ := one.Load(ctx, eventKey); !snap.Invalidated {
		t.Error("event snapshot not invalidated")
	}
	if snap, _, _ := many.Load(ctx, listKey); !snap.Invalidated {
		t.Error("list snapshot not invalidated")
	}

	// And: a snapshot saved after the watermark is valid again
	now = now.Add(time.Second)
	_ = one.Save(ctx, eventKey, item{ID: "1"}, now)
	if snap, _, _ := one.Load(ctx, eventKey); snap.Invalidated {
		t.Error("newer snapshot still invalidated")
	}
}

func TestSnapshots_SaveRejectsWrongType(t *testing.T) {
	now := time.Now()
	one, _ := newSnapshots(t, &now)
	if err := one.Save(context.Background(), query.Key{"events", "1"}, "not an item", now); err == nil {
		t.Error("Save() error = nil, want type error")
	}
}

func TestSnapshots_TruncatedValue(t *testing.T) {
	p := NewFile(t.TempDir())
	s := NewSnapshots[item](p, JSON[item]{}, SnapshotOptions{})
	key := query.Key{"events", "1"}
	_ = p.Set(context.Background(), s.storeKey("snap", key), []byte{1, 2}, 0)

	if _, ok, err := s.Load(context.Background(), key); err == nil || ok {
		t.Errorf("Load() = %v, %v; want truncated error", ok, err)
	}
}

func TestSnapshots_WithQueryClient(t *testing.T) {
	// Given: a query client persisting through Snapshots
	p := NewFile(t.TempDir())
	snaps := NewSnapshots[item](p, JSON[item]{}, SnapshotOptions{})
	key := query.Key{"events", "1"}
	c := query.New(query.Options{Persister: snaps})
	if _, err := c.Fetch(context.Background(), key, func(ctx context.Context) (any, error) {
		return item{ID: "1", Title: "Launch"}, nil
	}); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	_ = c.Close()

	// When: a new client starts over the same store
	c2 := query.New(query.Options{Persister: snaps})
	defer c2.Close()
	calls := 0
	v, err := c2.Fetch(context.Background(), key, func(ctx context.Context) (any, error) {
		calls++
		return item{ID: "1", Title: "Network"}, nil
	})

	// Then: the persisted value is served without a network call
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got := v.(item).Title; got != "Launch" {
		t.Errorf("Title = %q, want Launch", got)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}
