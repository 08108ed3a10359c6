// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"net"
	"strconv"

	"github.com/kelseyhightower/envconfig"
)

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Record store backends.
const (
	StoreSQLite = "sqlite"
	StoreNeo4j  = "neo4j"
)

// Config is the full service configuration. Prefixed sections must not use
// envconfig tags: a tagged field also reads the bare tag name, so
// QDRANT_PORT would fall back to PORT.
type Config struct {
	Qdrant    QdrantConfig
	Embedding EmbeddingConfig
	Records   RecordsConfig
	RAG       RAGConfig
	Server    ServerConfig
}

// QdrantConfig locates the vector index (gRPC port).
type QdrantConfig struct {
	Host       string `default:"localhost"`
	Port       int    `default:"6334"`
	Collection string `default:"service_catalog"`
}

// Addr is host:port.
func (q QdrantConfig) Addr() string {
	return net.JoinHostPort(q.Host, strconv.Itoa(q.Port))
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider         string  `default:"openai"`
	Model            string  `default:"text-embedding-3-small"`
	Dimension        int     `default:"1536"`
	Host             string  `default:"https://api.openai.com/v1"`
	Token            string
	Rate             float64 `default:"0"`
	Burst            int     `default:"1"`
	BreakerThreshold int     `split_words:"true" default:"5"`
}

// RecordsConfig selects the record store backend.
type RecordsConfig struct {
	Store      string `envconfig:"RECORD_STORE" default:"sqlite"`
	SQLitePath string `envconfig:"SQLITE_PATH" default:"catalog.db"`
	Neo4jURL   string `envconfig:"NEO4J_URL" default:"neo4j://localhost:7687"`
	Neo4jUser  string `envconfig:"NEO4J_USER" default:"neo4j"`
	Neo4jPass  string `envconfig:"NEO4J_PASS" default:"password"`
}

// RAGConfig tunes retrieval.
type RAGConfig struct {
	TopK int `split_words:"true" default:"3"`
}

// ServerConfig covers the HTTP and NATS surfaces. An empty NATSURL disables NATS.
type ServerConfig struct {
	Port       int    `envconfig:"PORT" default:"8080"`
	CORSOrigin string `envconfig:"CORS_ORIGIN" default:"*"`
	NATSURL    string `envconfig:"NATS_URL"`
}

// Load reads every section from the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	sections := []struct {
		prefix string
		target any
	}{
		{"QDRANT", &cfg.Qdrant},
		{"EMBEDDING", &cfg.Embedding},
		{"", &cfg.Records},
		{"RAG", &cfg.RAG},
		{"", &cfg.Server},
	}
	for _, s := range sections {
		if err := envconfig.Process(s.prefix, s.target); err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unknown backends and non-positive sizes.
func (c Config) Validate() error {
	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("config: unknown EMBEDDING_PROVIDER %q", c.Embedding.Provider)
	}
	switch c.Records.Store {
	case StoreSQLite, StoreNeo4j:
	default:
		return fmt.Errorf("config: unknown RECORD_STORE %q", c.Records.Store)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("config: EMBEDDING_DIMENSION must be positive, got %d", c.Embedding.Dimension)
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("config: RAG_TOP_K must be positive, got %d", c.RAG.TopK)
	}
	return nil
}
