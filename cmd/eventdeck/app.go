package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/smileynet/eventdeck/internal/config"
	"github.com/smileynet/eventdeck/internal/event"
	"github.com/smileynet/eventdeck/internal/logging"
	"github.com/smileynet/eventdeck/internal/query"
	"github.com/smileynet/eventdeck/internal/store"
)

// app holds the wired dependencies of one command invocation.
type app struct {
	cfg      *config.Config
	log      logging.Logger
	cache    *query.Client
	svc      *event.Service
	provider store.Provider
	closeLog func() error
}

// newApp loads configuration and wires logging, the persistence tier, the
// cache and the backend client. logw receives logs when no log file is
// configured; nil disables them.
func newApp(g *Globals, logw io.Writer) (*app, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	return wire(cfg, logw)
}

// wire builds an app from an already validated config.
func wire(cfg *config.Config, logw io.Writer) (*app, error) {
	log, closeLog, err := logging.New(logging.Options{
		Backend: cfg.Log.Backend,
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Writer:  logw,
	})
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, closeLog: closeLog}

	var persister query.Persister
	if cfg.Persist.Provider != "" && cfg.Persist.Provider != "none" {
		p, err := store.DefaultRegistry().New(cfg.Persist.Provider, store.Config{
			Dir:       cfg.Persist.Dir,
			TTL:       cfg.Persist.TTL,
			RedisAddr: cfg.Persist.RedisAddr,
			RedisDB:   cfg.Persist.RedisDB,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.provider = p
		ep, err := event.NewPersister(p, event.PersistOptions{
			Codec:     cfg.Persist.Codec,
			MaxDecode: cfg.Persist.MaxDecode,
			TTL:       cfg.Persist.TTL,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		persister = ep
	}

	a.cache = query.New(query.Options{
		StaleTime: cfg.Cache.StaleTime,
		GCTime:    cfg.Cache.GCTime,
		Logger:    log,
		Persister: persister,
	})
	if err := a.cache.StartGC(cfg.Cache.GCSchedule); err != nil {
		a.Close()
		return nil, err
	}

	ua := cfg.API.UserAgent
	if ua == "" || ua == "eventdeck" {
		ua = "eventdeck/" + version
	}
	client, err := event.NewClient(cfg.API.BaseURL,
		event.WithToken(cfg.API.Token),
		event.WithUserAgent(ua),
		event.WithTimeout(cfg.API.Timeout),
		event.WithLogger(log),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	strategy, ok := query.ParseStrategy(cfg.Cache.UpdateStrategy)
	if !ok {
		a.Close()
		return nil, fmt.Errorf("%w: unknown update strategy %q", errUsage, cfg.Cache.UpdateStrategy)
	}
	a.svc = event.NewService(client, a.cache, event.ServiceOptions{
		Strategy: strategy,
		Logger:   log,
	})
	log.Debug("app wired", logging.Fields{
		"api":      cfg.API.BaseURL,
		"persist":  cfg.Persist.Provider,
		"strategy": cfg.Cache.UpdateStrategy,
	})
	return a, nil
}

// Close releases the cache, then the persistence provider, then the log.
func (a *app) Close() error {
	var errs []error
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.provider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, a.provider.Close(ctx))
		cancel()
	}
	if a.closeLog != nil {
		errs = append(errs, a.closeLog())
	}
	return errors.Join(errs...)
}
