// Package bootstrap wires the stores, embedder, importer and retriever from
// configuration. Both binaries start from here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/service-catalog/engine/catalog"
	"github.com/WessleyAI/service-catalog/engine/rag"
	"github.com/WessleyAI/service-catalog/engine/records"
	"github.com/WessleyAI/service-catalog/engine/semantic"
	"github.com/WessleyAI/service-catalog/pkg/config"
	"github.com/WessleyAI/service-catalog/pkg/embed"
	"github.com/WessleyAI/service-catalog/pkg/metrics"
	"github.com/WessleyAI/service-catalog/pkg/ollama"
	"github.com/WessleyAI/service-catalog/pkg/openai"
	"github.com/WessleyAI/service-catalog/pkg/resilience"
)

// App holds the wired components. Close releases every connection.
type App struct {
	Config   config.Config
	Metrics  *metrics.Registry
	Records  records.Store
	Vectors  *semantic.VectorStore
	Embedder *embed.Guarded
	Importer *catalog.Importer
	RAG      *rag.Service

	logger  *slog.Logger
	closers []func() error
}

// New connects to the configured stores and builds the services.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Metrics: metrics.New(), logger: logger}

	recs, err := OpenRecords(ctx, cfg.Records)
	if err != nil {
		return nil, err
	}
	app.Records = recs
	app.closers = append(app.closers, recs.Close)

	vectors, err := semantic.New(cfg.Qdrant.Addr(), cfg.Qdrant.Collection)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Vectors = vectors
	app.closers = append(app.closers, vectors.Close)

	provider, err := NewProvider(cfg.Embedding, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Embedder = Guard(provider, cfg.Embedding, app.Metrics, logger)

	app.Importer = catalog.New(recs, vectors, app.Embedder,
		catalog.Options{Dimensions: cfg.Embedding.Dimension, Metrics: app.Metrics}, logger)
	app.RAG = rag.New(app.Embedder, vectors, recs,
		rag.Options{TopK: cfg.RAG.TopK, Metrics: app.Metrics}, logger)

	logger.Info("bootstrap complete",
		"record_store", cfg.Records.Store,
		"embedding_provider", cfg.Embedding.Provider,
		"qdrant", cfg.Qdrant.Addr(),
		"collection", cfg.Qdrant.Collection,
	)
	return app, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// OpenRecords opens the configured record store and creates its table.
func OpenRecords(ctx context.Context, cfg config.RecordsConfig) (records.Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		return records.NewSQLiteStore(cfg.SQLitePath)
	case config.StoreNeo4j:
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
		if err != nil {
			return nil, fmt.Errorf("bootstrap: neo4j driver: %w", err)
		}
		if err := driver.VerifyConnectivity(ctx); err != nil {
			_ = driver.Close(ctx)
			return nil, fmt.Errorf("bootstrap: neo4j connect: %w", err)
		}
		store := records.NewNeo4jStore(driver)
		if err := store.CreateTable(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown record store %q", cfg.Store)
	}
}

// NewProvider builds the raw embedding provider.
func NewProvider(cfg config.EmbeddingConfig, logger *slog.Logger) (embed.Embedder, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openai.NewEmbedder(openai.Config{BaseURL: cfg.Host, Token: cfg.Token, Model: cfg.Model}, logger)
	case config.ProviderOllama:
		return ollama.NewEmbedClient(cfg.Host, cfg.Model), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown embedding provider %q", cfg.Provider)
	}
}

// Guard wraps a provider with the configured rate limit, breaker and
// dimension check, and records latency in reg.
func Guard(provider embed.Embedder, cfg config.EmbeddingConfig, reg *metrics.Registry, logger *slog.Logger) *embed.Guarded {
	if logger == nil {
		logger = slog.Default()
	}
	return embed.Guard(provider, embed.GuardOpts{
		Dimensions: cfg.Dimension,
		Rate:       cfg.Rate,
		Burst:      cfg.Burst,
		Breaker: resilience.BreakerOpts{
			FailThreshold: cfg.BreakerThreshold,
			Timeout:       30 * time.Second,
			OnStateChange: func(from, to resilience.State) {
				logger.Warn("embedding breaker state change", "from", from.String(), "to", to.String())
			},
		},
		Latency: reg.Histogram(
			metrics.WithLabels("embed_duration_seconds", "provider", cfg.Provider),
			"Embedding provider call latency.", nil),
	})
}

// ConnectNATS connects with reconnect logging. An empty url returns nil.
func ConnectNATS(url string, logger *slog.Logger) (*nats.Conn, error) {
	if url == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("service-catalog"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: nats connect: %w", err)
	}
	return nc, nil
}

// Stats is a point-in-time view of both stores.
type Stats struct {
	Records          int64  `json:"records"`
	Collection       string `json:"collection"`
	CollectionExists bool   `json:"collection_exists"`
	Vectors          uint64 `json:"vectors"`
	Breaker          string `json:"embedding_breaker"`
}

// Stats counts rows and points. A missing collection reports zero vectors.
func (a *App) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Collection: a.Vectors.Collection(), Breaker: a.Embedder.Breaker().State().String()}
	n, err := a.Records.Count(ctx)
	if err != nil {
		return st, err
	}
	st.Records = n

	exists, err := a.Vectors.CollectionExists(ctx)
	if err != nil {
		return st, err
	}
	st.CollectionExists = exists
	if exists {
		if st.Vectors, err = a.Vectors.Count(ctx); err != nil {
			return st, err
		}
	}
	return st, nil
}
