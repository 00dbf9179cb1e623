package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jonathan/career-fit/internal/catalog"
	"github.com/jonathan/career-fit/internal/chunking"
	"github.com/jonathan/career-fit/internal/classify"
	"github.com/jonathan/career-fit/internal/db"
	"github.com/jonathan/career-fit/internal/embedding"
	"github.com/jonathan/career-fit/internal/llm"
	"github.com/jonathan/career-fit/internal/matching"
	"github.com/jonathan/career-fit/internal/observability"
	"github.com/jonathan/career-fit/internal/pipeline"
	"github.com/jonathan/career-fit/internal/session"
	"github.com/jonathan/career-fit/internal/status"
	"github.com/jonathan/career-fit/internal/types"
	"github.com/jonathan/career-fit/internal/vectorindex"
)

// app holds the wired collaborators of one CLI invocation.
type app struct {
	store    db.Store
	registry *vectorindex.Registry
	catalog  *catalog.Catalog
	manager  *session.Manager
	printer  *observability.Printer

	closers []func() error
}

func (a *app) chunking() chunking.Options {
	return chunking.Options{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap}
}

// openApp connects storage, builds the embedder, extractor and match engine, loads the job
// description catalog and restores committed sessions.
func openApp(ctx context.Context) (*app, error) {
	a := &app{printer: observability.NewPrinter(os.Stdout)}
	ok := false
	defer func() {
		if !ok {
			a.close(ctx)
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := db.Open(ctx, cfg.StoreURL())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	files, err := vectorindex.NewFileStore(cfg.IndexDir())
	if err != nil {
		return nil, fmt.Errorf("failed to open index directory: %w", err)
	}
	a.registry = vectorindex.NewRegistry(files, log.Logger)

	tracker, err := newTracker(ctx, a)
	if err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(ctx, a)
	if err != nil {
		return nil, err
	}

	extractor, matcher, err := newClassifiers(ctx, a)
	if err != nil {
		return nil, err
	}

	engine := matching.NewEngine(embedder, matcher, matching.Config{
		TopK:         cfg.TopK,
		MinRelevance: cfg.MinRelevance,
		Method:       cfg.MatchMethod,
	}, log.Logger)

	a.catalog = catalog.New(a.registry, embedder, a.chunking(), log.Logger)
	if _, err := a.registry.Load(ctx, types.ScopeGlobalJD); err != nil {
		return nil, fmt.Errorf("failed to load job description index: %w", err)
	}

	var onProgress pipeline.ProgressCallback
	if cfg.Verbose {
		onProgress = a.printer.PrintProgress
	}

	a.manager, err = session.New(session.Dependencies{
		Store:      store,
		Registry:   a.registry,
		Tracker:    tracker,
		Embedder:   embedder,
		Extractor:  extractor,
		Engine:     engine,
		Catalog:    a.catalog,
		OnProgress: onProgress,
		Log:        log.Logger,
	}, session.Config{
		Workers:    cfg.Workers,
		MaxPending: cfg.MaxPending,
		RunTimeout: time.Duration(cfg.RunTimeoutSeconds) * time.Second,
		Chunking:   a.chunking(),
	})
	if err != nil {
		return nil, err
	}

	restored, err := a.manager.Recover(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to restore sessions: %w", err)
	}
	log.Debug().Int("sessions", restored).Msg("restored sessions")

	ok = true
	return a, nil
}

func newTracker(ctx context.Context, a *app) (status.Tracker, error) {
	if cfg.RedisURL == "" {
		return status.NewMemoryTracker(time.Duration(cfg.StatusTTLHours)*time.Hour), nil
	}
	tracker, err := status.NewRedisTracker(ctx, cfg.RedisURL, time.Duration(cfg.StatusTTLHours)*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.closers = append(a.closers, tracker.Close)
	return tracker, nil
}

func newEmbedder(ctx context.Context, a *app) (embedding.Provider, error) {
	if !cfg.UseOracle() {
		return embedding.NewHashingProvider(cfg.HashingDims), nil
	}
	gemini, err := embedding.NewGeminiProvider(ctx, cfg.APIKey, cfg.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	a.closers = append(a.closers, gemini.Close)

	retry := embedding.DefaultRetryConfig()
	retry.Timeout = time.Duration(cfg.EmbedTimeoutSeconds) * time.Second
	retry.MaxAttempts = cfg.EmbedMaxAttempts
	retry.RequestsPerSecond = cfg.EmbedRatePerSecond
	return embedding.NewResilient(gemini, retry, log.Logger), nil
}

func newClassifiers(ctx context.Context, a *app) (classify.Extractor, classify.Matcher, error) {
	if !cfg.UseOracle() {
		return classify.NewHeuristicExtractor(), nil, nil
	}
	models := llm.DefaultConfig().
		WithModel(llm.TierLite, cfg.ExtractModel).
		WithModel(llm.TierStandard, cfg.MatchModel)
	client, err := llm.NewClient(ctx, models, cfg.APIKey, log.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	a.closers = append(a.closers, client.Close)

	oracle := classify.DefaultOracleConfig()
	oracle.BatchSize = cfg.ClassifyBatchSize
	oracle.Timeout = time.Duration(cfg.ClassifyTimeoutSeconds) * time.Second

	var matcher classify.Matcher
	if cfg.MatchMethod == matching.MethodOracle {
		matcher = classify.NewOracleMatcher(client, oracle, log.Logger)
	}
	return classify.NewOracleExtractor(client, oracle, log.Logger), matcher, nil
}

// close stops the session workers and releases every connection, in reverse order of opening.
func (a *app) close(ctx context.Context) {
	if a.manager != nil {
		if err := a.manager.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to stop session workers")
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("failed to close resource")
		}
	}
}

// waitForRun blocks until an upload reaches a terminal stage and reports a failed run as an error.
func (a *app) waitForRun(ctx context.Context, uploadID string) (*types.UploadStatus, error) {
	st, err := a.manager.Wait(ctx, uploadID)
	if err != nil {
		return st, fmt.Errorf("failed waiting for upload %s: %w", uploadID, err)
	}
	if st.Stage == types.StageError {
		return st, errors.New(st.Error)
	}
	return st, nil
}
