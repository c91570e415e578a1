package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wigtn/wigtn-spot-finder/internal/config"
	"github.com/wigtn/wigtn-spot-finder/internal/events"
	"github.com/wigtn/wigtn-spot-finder/internal/lease"
	"github.com/wigtn/wigtn-spot-finder/internal/memory"
	"github.com/wigtn/wigtn-spot-finder/internal/pipeline"
	"github.com/wigtn/wigtn-spot-finder/internal/provider"
	"github.com/wigtn/wigtn-spot-finder/internal/summarizer"
	"github.com/wigtn/wigtn-spot-finder/internal/thread"
	"github.com/wigtn/wigtn-spot-finder/internal/tokens"
)

// runtime bundles the wired components behind every command that talks to
// the engine.
type runtime struct {
	cfg     *config.Config
	store   *thread.Store
	engine  *pipeline.Engine
	emitter *events.Emitter
	guard   *lease.MemoryGuard
}

// buildRuntime loads config and assembles the full engine stack. Memory is
// optional: a missing API key or unreachable backend downgrades to running
// without retrieval instead of failing startup.
func buildRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := config.EnsureDir(cfg.Paths.DataDir); err != nil {
		return nil, fmt.Errorf("failed to prepare data dir: %w", err)
	}

	store, err := thread.Open(cfg.DBPath())
	if err != nil {
		return nil, err
	}

	counter, err := tokens.NewCounter(cfg.Model.Name)
	if err != nil {
		store.Close()
		return nil, err
	}

	prov := provider.NewOpenAIProvider(cfg.Model.APIKey, cfg.Model.APIBase, cfg.Model.Name)

	sinks := []events.Sink{events.LogSink{}}
	if cfg.Events.Enabled && cfg.Events.KafkaBrokers != "" {
		sinks = append(sinks, events.NewKafkaSink(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic))
	}
	if cfg.Events.SlackWebhookURL != "" {
		sinks = append(sinks, events.NewSlackNotifier(cfg.Events.SlackWebhookURL))
	}
	emitter := events.NewEmitter(cfg.Events.BufferSize, sinks...)

	var vec memory.VectorStore
	switch cfg.Memory.Backend {
	case "qdrant":
		vec = memory.NewQdrantStore(cfg.Memory.QdrantURL, cfg.Memory.QdrantCollection, cfg.Memory.EmbeddingDimension)
	default:
		vec = memory.NewSQLiteVecStore(store.DB(), cfg.Memory.EmbeddingDimension)
	}
	if err := vec.EnsureCollection(context.Background()); err != nil {
		slog.Warn("memory backend unavailable, running without retrieval", "error", err)
		vec = nil
	}

	var embedder provider.Embedder
	if cfg.Model.APIKey != "" {
		embedder = prov
	}

	var retriever *memory.Retriever
	var memSvc *memory.Service
	if vec != nil {
		retriever = memory.NewRetriever(vec, embedder, cfg.Memory.EmbeddingModel,
			cfg.Context.RetrievalTopK, cfg.Context.SimilarityThreshold)
		memSvc = memory.NewService(vec, embedder, cfg.Memory.EmbeddingModel)
	}

	summ := summarizer.New(prov, cfg.Model.SummarizationModel, counter,
		cfg.Context.SummarizerTimeout, emitter.Emit)

	guard := lease.NewMemoryGuard(cfg.Context.LeaseTTL)
	guard.StartSweeper(cfg.Context.LeaseTTL)

	engine := pipeline.NewEngine(cfg, store, guard, prov, counter, retriever, memSvc, summ, emitter)

	return &runtime{
		cfg:     cfg,
		store:   store,
		engine:  engine,
		emitter: emitter,
		guard:   guard,
	}, nil
}

func (r *runtime) Close() {
	r.guard.Stop()
	r.emitter.Close()
	if err := r.store.Close(); err != nil {
		slog.Warn("store close failed", "error", err)
	}
}
