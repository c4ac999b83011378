// Package app wires the configured collaborators into a ClaimsService.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"claimsqa/internal/analyzer/azure"
	"claimsqa/internal/completion"
	"claimsqa/internal/config"
	"claimsqa/internal/extractor"
	"claimsqa/internal/normalizer"
	"claimsqa/internal/observability"
	"claimsqa/internal/port"
	"claimsqa/internal/prompt"
	"claimsqa/internal/qa"
	"claimsqa/internal/retry"
	"claimsqa/internal/schema"
	"claimsqa/internal/service"
	"claimsqa/internal/storage/local"
	s3storage "claimsqa/internal/storage/s3"
	"claimsqa/internal/store/memory"
	"claimsqa/internal/store/postgres"
	redisstore "claimsqa/internal/store/redis"

	// Completion providers register themselves with the factory.
	_ "claimsqa/internal/completion/claude"
	_ "claimsqa/internal/completion/gemini"
	_ "claimsqa/internal/completion/openai"
)

// App holds the wired pipeline and the resources that must be released on shutdown.
type App struct {
	Service service.ClaimsService
	Store   port.DocumentStore

	closers []func() error
}

// Close releases store connections in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// New builds the pipeline from cfg. metrics may be nil.
func New(ctx context.Context, cfg *config.Config, metrics *observability.Metrics) (*App, error) {
	a := &App{}

	artifacts, err := NewObjectStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := a.newStore(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Store = store

	completer, err := completion.NewFromConfig(&cfg.Completion)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to initialize completion provider: %w", err)
	}

	registry, err := schema.NewRegistry()
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to compile extraction schema: %w", err)
	}

	policy := retry.FromConfig(&cfg.Retry)
	prompts := prompt.NewLoader(cfg.Prompts.Dir)

	norm := normalizer.New(azure.New(&cfg.Analyzer), artifacts, policy, cfg.Storage.KeyPrefix)
	ext := extractor.New(completer, registry, prompts, policy, cfg.Extractor)
	answerer := qa.New(store, completer, prompts, policy, cfg.QA)

	a.Service = service.NewClaimsService(norm, ext, answerer, store, artifacts, metrics, cfg.Pipeline, registry.Version())
	return a, nil
}

// NewObjectStorage returns the artifact storage selected by storage.backend.
func NewObjectStorage(ctx context.Context, cfg *config.Config) (port.ObjectStorage, error) {
	switch cfg.Storage.Backend {
	case "", "local":
		st, err := local.New(cfg.Storage.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local storage: %w", err)
		}
		return st, nil
	case "s3":
		st, err := s3storage.NewS3Client(ctx, &cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 client: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}

func (a *App) newStore(ctx context.Context, cfg *config.Config) (port.DocumentStore, error) {
	switch cfg.Store.Backend {
	case "", "memory":
		return memory.New(), nil
	case "redis":
		client, err := redisstore.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		log.Info().Str("addr", cfg.Redis.Addr()).Msg("app.New: using redis document store")
		return redisstore.New(client, cfg.Redis.KeyPrefix), nil
	case "postgres":
		db, err := postgres.NewDB(&cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		log.Info().Str("host", cfg.DB.Host).Msg("app.New: using postgres document store")
		return postgres.New(db), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Store.Backend)
	}
}
