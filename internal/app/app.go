// Package app wires the engine components and owns their lifecycle.
package app

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"

	"memodb/internal/retention"
	"memodb/pkg/compose"
	"memodb/pkg/config"
	"memodb/pkg/engine"
	"memodb/pkg/recall"
	"memodb/pkg/store"
	"memodb/pkg/validation"
	"memodb/pkg/workingmem"
)

// App encapsulates the assembled engine and its lifecycle.
type App struct {
	cfg config.Config

	Store  *store.Store
	Engine *engine.Engine

	indexer         *recall.Indexer
	cancelRetention context.CancelFunc
}

// New initializes the store and assembles the engine. embedder may be nil
// to disable semantic recall regardless of config.
func New(cfg config.Config, embedder recall.Embedder) (*App, error) {
	_ = godotenv.Load(".env")

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	validation.SetRules(validation.Rules{MaxPerPage: cfg.Pagination.MaxPerPage})

	st, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", cfg.Storage.DBPath, err)
	}

	mem := workingmem.New(st)

	var rec *recall.Engine
	var ix *recall.Indexer
	if cfg.Recall.Enabled && embedder != nil {
		rec, err = recall.New(embedder)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("failed to build recall engine: %w", err)
		}
		ix = recall.NewIndexer(rec, recall.IndexerOptions{
			Workers:       cfg.Recall.Workers,
			QueueCapacity: cfg.Recall.QueueCapacity,
			EmbedRPS:      cfg.Recall.EmbedRPS,
		})
	}

	var searcher compose.Searcher
	if rec != nil {
		searcher = rec
	}
	comp := compose.New(st, searcher, mem)

	eng := engine.New(st, mem, rec, ix, comp, engine.Options{
		LastMessages: cfg.Recall.LastMessages,
		TopK:         cfg.Recall.TopK,
		MinScore:     cfg.Recall.MinScore,
	})

	return &App{cfg: cfg, Store: st, Engine: eng, indexer: ix}, nil
}

// Run starts the background workers and blocks until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	if a.indexer != nil {
		a.indexer.Start(ctx)
	}

	cancel, err := retention.Start(ctx, a.cfg, a.Store)
	if err != nil {
		return err
	}
	a.cancelRetention = cancel

	<-ctx.Done()
	return nil
}

// Close stops workers and releases the store.
func (a *App) Close() error {
	if a.cancelRetention != nil {
		a.cancelRetention()
	}
	if a.indexer != nil {
		a.indexer.Stop()
	}
	return a.Store.Close()
}

func validateConfig(cfg config.Config) error {
	if cfg.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if cfg.Pagination.MaxPerPage <= 0 {
		return fmt.Errorf("pagination.max_per_page must be positive")
	}
	if cfg.Retention.Enabled {
		if _, err := config.ParsePeriod(cfg.Retention.Period); err != nil {
			return fmt.Errorf("retention.period: %w", err)
		}
	}
	return nil
}
