package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MikeSquared-Agency/ladder/internal/batch"
	"github.com/MikeSquared-Agency/ladder/internal/config"
	"github.com/MikeSquared-Agency/ladder/internal/hermes"
	"github.com/MikeSquared-Agency/ladder/internal/ladder"
	"github.com/MikeSquared-Agency/ladder/internal/matcher"
	"github.com/MikeSquared-Agency/ladder/internal/similarity"
	"github.com/MikeSquared-Agency/ladder/internal/store"
)

// app holds the collaborators shared by every subcommand.
type app struct {
	cfg     config.Config
	builder *ladder.Builder
	db      *store.Store
	events  *hermes.Client
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	logger := slog.Default()

	oracle, err := similarity.New(cfg.SimilarityOptions())
	if err != nil {
		return nil, fmt.Errorf("similarity backend: %w", err)
	}
	lemmas, err := matcher.NewGolemLemmatizer()
	if err != nil {
		return nil, err
	}
	m := matcher.New(oracle, lemmas, cfg.SimilarityTimeout(), logger)
	a := &app{
		cfg:     cfg,
		builder: ladder.NewBuilder(m, cfg.Categories, logger),
	}
	logger.Info("similarity backend ready", "backend", cfg.Similarity.Backend, "categories", cfg.Categories)

	// Database (optional mirror of the output table)
	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		a.db = db
		logger.Info("database connected")
	}

	// NATS/Hermes (optional events)
	if cfg.NatsURL != "" {
		client, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		a.events = client
		logger.Info("NATS connected", "url", cfg.NatsURL)
	}

	return a, nil
}

func (a *app) runnerOptions() []batch.Option {
	var opts []batch.Option
	if a.db != nil {
		opts = append(opts, batch.WithSink(a.db))
	}
	if a.events != nil {
		opts = append(opts, batch.WithEvents(a.events))
	}
	return opts
}

func (a *app) close() {
	if a.events != nil {
		if err := a.events.Flush(); err != nil {
			slog.Warn("failed to flush events", "error", err)
		}
		a.events.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
