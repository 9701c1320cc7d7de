// Package app is the composition root shared by the API server and the operator CLI:
// it turns a Config into a connected store, the embedder chain, the worker pool and
// the use case services.
package app

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/profdex/internal/config"
	"github.com/kailas-cloud/profdex/internal/db"
	dbRedis "github.com/kailas-cloud/profdex/internal/db/redis"
	"github.com/kailas-cloud/profdex/internal/domain"
	"github.com/kailas-cloud/profdex/internal/metrics"
	budgetrepo "github.com/kailas-cloud/profdex/internal/repository/budget"
	"github.com/kailas-cloud/profdex/internal/repository/embcache"
	indexrepo "github.com/kailas-cloud/profdex/internal/repository/index"
	recordrepo "github.com/kailas-cloud/profdex/internal/repository/record"
	openaiTransport "github.com/kailas-cloud/profdex/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/profdex/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/profdex/internal/usecase/health"
	indexadminuc "github.com/kailas-cloud/profdex/internal/usecase/indexadmin"
	ingestuc "github.com/kailas-cloud/profdex/internal/usecase/ingest"
	rerankuc "github.com/kailas-cloud/profdex/internal/usecase/rerank"
	retrieveuc "github.com/kailas-cloud/profdex/internal/usecase/retrieve"
	rewriteuc "github.com/kailas-cloud/profdex/internal/usecase/rewrite"
	searchuc "github.com/kailas-cloud/profdex/internal/usecase/search"
	"github.com/kailas-cloud/profdex/internal/workerpool"
)

// App holds the wired services. Close releases the pool and the store.
type App struct {
	Search *searchuc.Service
	Ingest *ingestuc.Service
	Admin  *indexadminuc.Service
	Health *healthuc.Service

	// IndexSpec is the configured dimension and metric used when the caller supplies none.
	IndexSpec domain.IndexSpec

	store  db.Store
	pool   *workerpool.Pool
	logger *zap.Logger
}

// New connects to the database and wires every service from cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	logger.Info("Connected to database",
		zap.String("driver", cfg.Database.Driver),
		zap.Strings("addrs", cfg.Database.Addrs),
	)

	a, err := Wire(ctx, store, cfg, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return a, nil
}

// Wire builds the services on top of an already connected store and starts the worker pool.
func Wire(ctx context.Context, store db.Store, cfg *config.Config, logger *zap.Logger) (*App, error) {
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterSearchMetrics()

	metric, err := domain.ParseMetric(cfg.Index.Metric)
	if err != nil {
		return nil, fmt.Errorf("index metric: %w", err)
	}
	spec := domain.IndexSpec{Dimension: cfg.Embedding.Dimensions, Metric: metric}

	embedder, healthEmbedder := buildEmbedder(ctx, cfg, store, logger)
	chat := openaiTransport.NewChatClient(&openaiTransport.ChatConfig{
		APIKey:       cfg.Generation.APIKey,
		BaseURL:      cfg.Generation.BaseURL,
		Model:        cfg.Generation.Model,
		Temperature:  cfg.Generation.Temperature,
		RateLimitRPS: cfg.Generation.RateLimitRPS,
		MaxRetries:   cfg.Generation.MaxRetries,
		Logger:       logger,
	})

	idx := indexrepo.New(store, indexrepo.Config{
		KeyPrefix:     cfg.Storage.KeyPrefix,
		Name:          cfg.Index.Name,
		Host:          hostOf(cfg.Database.Addrs),
		Metric:        metric,
		HNSWM:         cfg.Index.HNSWM,
		HNSWEF:        cfg.Index.HNSWEFConstruct,
		TagFields:     cfg.Index.TagFields,
		NumericFields: cfg.Index.NumericFields,
	}, logger)
	records := recordrepo.New(store, cfg.Storage.KeyPrefix, logger)

	pool := workerpool.New(cfg.Search.PoolSize, logger)
	if err := pool.Start(); err != nil {
		return nil, fmt.Errorf("start worker pool: %w", err)
	}
	metrics.ObserveWorkerPool(pool.Running)

	sc := cfg.Search
	retriever := retrieveuc.New(embedder, idx, records, retrieveuc.Config{
		FallbackScanLimit:  sc.FallbackScanLimit,
		FallbackSimilarity: sc.FallbackSimilarity,
	})
	rewriter := rewriteuc.New(chat, time.Duration(sc.RewriteTimeoutSec)*time.Second)
	fallbackScore := rerankuc.DefaultFallbackScore
	if sc.FallbackScore != nil {
		fallbackScore = *sc.FallbackScore
	}
	reranker := rerankuc.New(rerankuc.NewLLMScorer(chat), pool, rerankuc.Config{
		ChunkSize:     sc.ChunkSize,
		ChunkTimeout:  time.Duration(sc.ChunkTimeoutSec) * time.Second,
		FallbackScore: fallbackScore,
	})

	a := &App{
		Search: searchuc.New(retriever, rewriter, reranker, searchuc.Config{
			QueryTimeout: time.Duration(sc.QueryTimeoutSec) * time.Second,
			DefaultTopK:  sc.DefaultTopK,
			MaxTopK:      sc.MaxTopK,
		}),
		Ingest: ingestuc.New(embedder, idx, ingestuc.Config{
			MaxBatchSize:   cfg.Ingest.MaxBatchSize,
			EmbedBatchSize: cfg.Ingest.EmbedBatchSize,
		}),
		Admin:     indexadminuc.New(idx),
		Health:    healthuc.New(store, healthEmbedder, idx),
		IndexSpec: spec,
		store:     store,
		pool:      pool,
		logger:    logger,
	}
	logger.Info("Services wired",
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.Int("dimensions", spec.Dimension),
		zap.String("metric", string(spec.Metric)),
		zap.String("generation_model", cfg.Generation.Model),
		zap.Int("pool_size", pool.Size()),
		zap.Int("chunk_size", sc.ChunkSize),
	)
	return a, nil
}

// Close drains the worker pool, then closes the store. Call it after the HTTP server stopped
// accepting requests so in-flight rerank chunks can finish.
func (a *App) Close(timeout time.Duration) {
	if err := a.pool.Stop(timeout); err != nil {
		a.logger.Warn("Worker pool did not drain", zap.Error(err))
	}
	a.store.Close()
}

// embedderChain is what both ingestion and retrieval need from the embedding gateway.
type embedderChain interface {
	domain.Embedder
	domain.BatchEmbedder
}

// buildEmbedder assembles the decorator chain: OpenAI -> Metered -> Cached -> Instruction.
// The budget sits below the cache so hits are free; the instruction wraps the cache
// so the cache key includes it.
func buildEmbedder(
	ctx context.Context, cfg *config.Config, store db.Store, logger *zap.Logger,
) (embedderChain, *embcache.CachedEmbedder) {
	provider := providerName(cfg.Embedding.BaseURL)
	var base domain.Embedder = openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   provider,
		Logger:     logger,
	})

	bc := embeddinguc.BudgetConfig{
		KeyPrefix:    cfg.Storage.KeyPrefix,
		Provider:     provider,
		DailyLimit:   cfg.Embedding.Budget.DailyTokenLimit,
		MonthlyLimit: cfg.Embedding.Budget.MonthlyTokenLimit,
		Action:       embeddinguc.BudgetAction(cfg.Embedding.Budget.Action),
	}
	if bc.Enabled() {
		budget := embeddinguc.NewBudgetTracker(bc, logger).WithStore(ctx, budgetrepo.New(store))
		base = embeddinguc.NewMeteredEmbedder(base, budget, provider, logger)
	}

	cached := embcache.New(base, store, embcache.Options{
		KeyPrefix:  cfg.Storage.KeyPrefix,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		LocalSize:  max(0, cfg.Embedding.LocalCacheSize),
		CacheTotal: metrics.EmbeddingCacheTotal,
	}, logger)

	if cfg.Embedding.Instruction != "" {
		return domain.NewInstructionEmbedder(cached, cfg.Embedding.Instruction), cached
	}
	return cached, cached
}

func newStore(cfg *config.Config) (db.Store, error) {
	switch cfg.Database.Driver {
	case "valkey", "redis":
		// Valkey with valkey-search speaks the same FT.* dialect as Redis 8.
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:       cfg.Database.Addrs,
			Username:    cfg.Database.Username,
			Password:    cfg.Database.Password,
			DB:          cfg.Database.DB,
			DialTimeout: 5 * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("create %s store: %w", cfg.Database.Driver, err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func hostOf(addrs []string) string {
	if len(addrs) == 0 {
		return ""
	}
	if host, _, err := net.SplitHostPort(addrs[0]); err == nil {
		return host
	}
	return addrs[0]
}

func providerName(baseURL string) string {
	if baseURL == "" {
		return "openai"
	}
	s := strings.TrimPrefix(strings.TrimPrefix(baseURL, "https://"), "http://")
	if i := strings.IndexAny(s, "/:"); i >= 0 {
		s = s[:i]
	}
	return s
}
