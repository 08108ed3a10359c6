// Package rag turns hypotheses into ranked service candidates: each
// hypothesis is embedded, searched against the vector index and joined back
// to full records.
package rag

import (
	"context"
	"errors"
	"log/slog"

	"github.com/WessleyAI/service-catalog/engine/domain"
	"github.com/WessleyAI/service-catalog/engine/semantic"
	"github.com/WessleyAI/service-catalog/pkg/embed"
	"github.com/WessleyAI/service-catalog/pkg/fn"
	"github.com/WessleyAI/service-catalog/pkg/metrics"
)

// Searcher abstracts the vector index. Hits come back in rank order.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, topK int) ([]semantic.SearchResult, error)
}

// RecordLookup resolves a hit id to its full record.
type RecordLookup interface {
	Get(ctx context.Context, id string) (domain.Record, error)
}

// DefaultTopK is the number of neighbours fetched per hypothesis.
const DefaultTopK = 3

// Options configures the retrieval behaviour.
type Options struct {
	TopK    int
	Metrics *metrics.Registry
}

// DefaultOptions returns the defaults.
func DefaultOptions() Options {
	return Options{TopK: DefaultTopK}
}

// Service is the retrieval engine.
type Service struct {
	embedder embed.Embedder
	search   Searcher
	records  RecordLookup
	opts     Options
	logger   *slog.Logger

	hypotheses *metrics.Counter
	candidates *metrics.Counter
	failures   *metrics.Counter
	stale      *metrics.Counter
}

// New creates a retrieval Service.
func New(embedder embed.Embedder, search Searcher, records RecordLookup, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	reg := opts.Metrics
	if reg == nil {
		reg = metrics.New()
	}
	return &Service{
		embedder:   embedder,
		search:     search,
		records:    records,
		opts:       opts,
		logger:     logger.With("component", "rag"),
		hypotheses: reg.Counter("rag_hypotheses_total", "Hypotheses that requested retrieval."),
		candidates: reg.Counter("rag_candidates_total", "Service candidates returned."),
		failures:   reg.Counter("rag_failures_total", "Hypotheses degraded to zero candidates by an embed or search failure."),
		stale:      reg.Counter("rag_stale_hits_total", "Index hits with no matching record."),
	}
}

// RetrieveKnowledge writes retrieval_evidence.service_candidates for every
// hypothesis flagged for retrieval and returns c. Candidates are ordered by
// hypothesis, then by rank. Failures for one hypothesis are logged and leave
// it without candidates. A nil c is treated as an empty context.
func (s *Service) RetrieveKnowledge(ctx context.Context, c *domain.Context) *domain.Context {
	if c == nil {
		c = &domain.Context{}
	}
	cands := fn.FlatMap(c.Hypotheses, func(h domain.Hypothesis) []domain.Candidate {
		if !h.ShouldCallRAG {
			return nil
		}
		s.hypotheses.Inc()
		return s.candidatesFor(ctx, h)
	})
	s.candidates.Add(int64(len(cands)))

	c.RetrievalEvidence = &domain.RetrievalEvidence{ServiceCandidates: fn.OrEmpty(cands)}
	s.logger.Info("retrieval finished", "hypotheses", len(c.Hypotheses), "candidates", len(cands))
	return c
}

func (s *Service) candidatesFor(ctx context.Context, h domain.Hypothesis) []domain.Candidate {
	log := s.logger.With("hypothesis_id", h.ID)

	query, ok := h.QueryText()
	if !ok {
		log.Debug("no query text, skipping")
		return nil
	}

	vec, err := s.embedder.Embed(ctx, domain.NormalizeQuery(query))
	if err == nil && len(vec) == 0 {
		err = embed.ErrNoVector
	}
	if err != nil {
		log.Warn("embed query failed", "err", err)
		s.failures.Inc()
		return nil
	}

	hits, err := s.search.Search(ctx, vec, s.opts.TopK)
	if err != nil {
		log.Warn("vector search failed", "err", err)
		s.failures.Inc()
		return nil
	}

	return fn.FilterMap(hits, func(hit semantic.SearchResult) (domain.Candidate, bool) {
		rec, err := s.records.Get(ctx, hit.ID)
		if errors.Is(err, domain.ErrNotFound) {
			log.Debug("stale index hit dropped", "service_id", hit.ID)
			s.stale.Inc()
			return domain.Candidate{}, false
		}
		if err != nil {
			log.Warn("record lookup failed", "service_id", hit.ID, "err", err)
			return domain.Candidate{}, false
		}
		return domain.NewCandidate(h.ID, rec, hit.Score), true
	})
}
