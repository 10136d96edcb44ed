package event

import (
	"context"
	"fmt"
	"time"

	"github.com/smileynet/eventdeck/internal/logging"
	"github.com/smileynet/eventdeck/internal/query"
)

// API is the backend surface the Service needs. *Client implements it.
type API interface {
	Get(ctx context.Context, id string) (Event, error)
	List(ctx context.Context, p ListParams) ([]Event, error)
	Update(ctx context.Context, ev Event) (Event, error)
	Delete(ctx context.Context, id string) error
	Create(ctx context.Context, ev Event) (Event, error)
}

// ServiceOptions configure a Service.
type ServiceOptions struct {
	Strategy  query.Strategy
	StaleTime time.Duration // 0 uses the cache default
	Logger    logging.Logger
}

// Service is the only way views read and write events. Every read goes
// through the query cache under the event's key; every write invalidates
// the keys it affects before it returns.
type Service struct {
	api      API
	cache    *query.Client
	strategy query.Strategy
	fetch    []query.FetchOption
	log      logging.Logger
}

// NewService creates a Service.
func NewService(api API, cache *query.Client, opts ServiceOptions) *Service {
	s := &Service{api: api, cache: cache, strategy: opts.Strategy, log: opts.Logger}
	if opts.StaleTime != 0 {
		s.fetch = []query.FetchOption{query.WithStaleTime(opts.StaleTime)}
	}
	if s.log == nil {
		s.log = logging.Nop{}
	}
	return s
}

func (s *Service) loadFn(id string) query.FetchFunc {
	return func(ctx context.Context) (any, error) {
		return s.api.Get(ctx, id)
	}
}

func (s *Service) listFn(p ListParams) query.FetchFunc {
	return func(ctx context.Context) (any, error) {
		return s.api.List(ctx, p)
	}
}

// Load returns the event with id, from cache when fresh.
func (s *Service) Load(ctx context.Context, id string) (Event, error) {
	if err := ValidateID(id); err != nil {
		return Event{}, err
	}
	return query.Fetch(ctx, s.cache, Key(id), func(ctx context.Context) (Event, error) {
		return s.api.Get(ctx, id)
	}, s.fetch...)
}

// Observe returns the cached state of the event with id and refreshes it in
// the background while ctx lives.
// An invalid id yields an Error state without touching the cache.
func (s *Service) Observe(ctx context.Context, id string) query.State {
	if err := ValidateID(id); err != nil {
		return query.State{Key: Key(id), Status: query.StatusError, Err: err}
	}
	return s.cache.Observe(ctx, Key(id), s.loadFn(id), s.fetch...)
}

// LoadList returns the events matching p.
func (s *Service) LoadList(ctx context.Context, p ListParams) ([]Event, error) {
	return query.Fetch(ctx, s.cache, ListKey(p), func(ctx context.Context) ([]Event, error) {
		return s.api.List(ctx, p)
	}, s.fetch...)
}

// ObserveList is Observe for a collection query.
func (s *Service) ObserveList(ctx context.Context, p ListParams) query.State {
	return s.cache.Observe(ctx, ListKey(p), s.listFn(p), s.fetch...)
}

// Subscribe forwards cache changes of key to fn.
func (s *Service) Subscribe(key query.Key, fn func(query.State)) func() {
	return s.cache.Subscribe(key, fn)
}

// Cancel abandons any in-flight load of the event with id.
func (s *Service) Cancel(id string) {
	s.cache.Cancel(Key(id))
}

// Refresh marks every cached entry under key stale and reloads the observed
// ones before returning.
func (s *Service) Refresh(ctx context.Context, key query.Key) error {
	return s.cache.Invalidate(ctx, key, query.RefetchActive)
}

// Save sends an edited event. When it returns nil every cached event key
// has been invalidated and the observed ones reloaded.
func (s *Service) Save(ctx context.Context, ev Event) error {
	if err := ValidateID(ev.ID); err != nil {
		return err
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	err := s.cache.Update(ctx, Key(ev.ID), ev, func(ctx context.Context) error {
		_, err := s.api.Update(ctx, ev)
		return err
	}, query.UpdateOptions{
		Strategy:   s.strategy,
		Invalidate: []query.Key{AllKey()},
	})
	if err != nil {
		return err
	}
	s.log.Info("event: saved", logging.Fields{"id": ev.ID})
	return nil
}

// Remove deletes the event with id. Cached event keys are marked stale but
// not reloaded until viewed again.
func (s *Service) Remove(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	err := s.cache.Delete(ctx, Key(id), func(ctx context.Context) error {
		return s.api.Delete(ctx, id)
	}, query.DeleteOptions{Invalidate: []query.Key{AllKey()}})
	if err != nil {
		return err
	}
	s.log.Info("event: deleted", logging.Fields{"id": id})
	return nil
}

// Create stores a new event and returns it as the backend saw it.
func (s *Service) Create(ctx context.Context, ev Event) (Event, error) {
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	var created Event
	err := s.cache.Mutate(ctx, "create", AllKey(), func(ctx context.Context) error {
		var err error
		created, err = s.api.Create(ctx, ev)
		return err
	}, []query.Key{AllKey()}, query.RefetchActive)
	if err != nil {
		return Event{}, err
	}
	if created.ID != "" {
		if err := ValidateID(created.ID); err != nil {
			return Event{}, fmt.Errorf("event: backend assigned %w", err)
		}
		s.cache.SetData(Key(created.ID), created)
	}
	s.log.Info("event: created", logging.Fields{"id": created.ID})
	return created, nil
}
