// Package catalog imports service catalog entries into the record store and
// the vector index, and clears both on reset.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/WessleyAI/service-catalog/engine/domain"
	"github.com/WessleyAI/service-catalog/engine/semantic"
	"github.com/WessleyAI/service-catalog/pkg/embed"
	"github.com/WessleyAI/service-catalog/pkg/fn"
	"github.com/WessleyAI/service-catalog/pkg/metrics"
)

// RecordStore is the authoritative keyed store of full records.
type RecordStore interface {
	CreateTable(ctx context.Context) error
	Put(ctx context.Context, rec domain.Record) error
	Truncate(ctx context.Context) error
}

// VectorIndex holds one point per successfully embedded record.
type VectorIndex interface {
	CollectionExists(ctx context.Context) (bool, error)
	EnsureCollection(ctx context.Context, dims int) error
	DeleteCollection(ctx context.Context) error
	Upsert(ctx context.Context, records []semantic.VectorRecord) error
}

// Options configures the importer.
type Options struct {
	// Dimensions is the vector size used when the collection is created.
	Dimensions int
	// Metrics receives import and reset counters. Nil disables them.
	Metrics *metrics.Registry
}

// DefaultDimensions matches text-embedding-3-small.
const DefaultDimensions = 1536

// Importer writes entries to both stores. It is not safe for concurrent
// imports or resets against the same stores.
type Importer struct {
	records  RecordStore
	vectors  VectorIndex
	embedder embed.Embedder
	dims     int
	logger   *slog.Logger
	m        importerMetrics
}

type importerMetrics struct {
	succeeded      *metrics.Counter
	failed         *metrics.Counter
	upsertFailures *metrics.Counter
	reg            *metrics.Registry
}

func newImporterMetrics(reg *metrics.Registry) importerMetrics {
	if reg == nil {
		reg = metrics.New()
	}
	const entries = "catalog_import_entries_total"
	return importerMetrics{
		succeeded:      reg.Counter(metrics.WithLabels(entries, "outcome", "success"), "Catalog entries processed by import, by outcome."),
		failed:         reg.Counter(metrics.WithLabels(entries, "outcome", "error"), ""),
		upsertFailures: reg.Counter("catalog_vector_upsert_failures_total", "Bulk vector upserts that failed."),
		reg:            reg,
	}
}

func (m importerMetrics) reset(store string, ok bool) {
	outcome := "cleared"
	if !ok {
		outcome = "failed"
	}
	m.reg.Counter(metrics.WithLabels("catalog_reset_total", "store", store, "outcome", outcome), "Reset outcomes per store.").Inc()
}

// New creates an Importer.
func New(records RecordStore, vectors VectorIndex, embedder embed.Embedder, opts Options, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Dimensions <= 0 {
		opts.Dimensions = DefaultDimensions
	}
	return &Importer{
		records:  records,
		vectors:  vectors,
		embedder: embedder,
		dims:     opts.Dimensions,
		logger:   logger.With("component", "catalog"),
		m:        newImporterMetrics(opts.Metrics),
	}
}

// Import stores every entry in the record store and indexes the ones that
// embed successfully. Per-entry failures are counted, not returned; a failed
// bulk upsert yields partial_failure. The error return is reserved for setup
// failures before any entry is processed.
func (imp *Importer) Import(ctx context.Context, entries []domain.Entry) (ImportResult, error) {
	if err := imp.records.CreateTable(ctx); err != nil {
		return ImportResult{}, fmt.Errorf("catalog: prepare record store: %w", err)
	}
	if err := imp.vectors.EnsureCollection(ctx, imp.dims); err != nil {
		return ImportResult{}, fmt.Errorf("catalog: prepare vector index: %w", err)
	}

	var (
		res    ImportResult
		points []semantic.VectorRecord
	)
	for i, e := range entries {
		id := domain.EntryID(e.Title, e.URL)
		log := imp.logger.With("entry_id", id, "index", i)

		if err := imp.records.Put(ctx, domain.NewRecord(id, e)); err != nil {
			log.Warn("store entry failed", "err", err)
			res.ErrorCount++
			continue
		}

		vec, err := imp.embedder.Embed(ctx, domain.EmbeddingText(e))
		if err == nil && len(vec) == 0 {
			err = embed.ErrNoVector
		}
		if err != nil {
			log.Warn("embed entry failed, not indexed", "err", err)
			res.ErrorCount++
			continue
		}

		points = append(points, semantic.VectorRecord{
			ID:        id,
			Embedding: vec,
			Payload: map[string]any{
				semantic.PayloadTitle:         e.Title,
				semantic.PayloadServiceLabels: fn.OrEmpty(e.ServiceLabels),
				semantic.PayloadTargetLabels:  fn.OrEmpty(e.TargetLabels),
			},
		})
		res.SuccessCount++
	}
	imp.m.succeeded.Add(int64(res.SuccessCount))
	imp.m.failed.Add(int64(res.ErrorCount))

	res.Status = StatusCompleted
	if len(points) > 0 {
		if err := imp.vectors.Upsert(ctx, points); err != nil {
			imp.logger.Error("bulk vector upsert failed", "points", len(points), "err", err)
			imp.m.upsertFailures.Inc()
			res.Status = StatusPartialFailure
			res.UnderlyingError = err.Error()
		}
	}

	imp.logger.Info("import finished",
		"status", res.Status,
		"entries", len(entries),
		"success", res.SuccessCount,
		"errors", res.ErrorCount,
	)
	return res, nil
}

// Reset truncates the record store and recreates the vector collection
// empty. The two clears are independent; a failure on one side does not
// stop the other.
func (imp *Importer) Reset(ctx context.Context) ResetResult {
	var (
		details ResetDetails
		errs    []error
	)

	if err := imp.records.Truncate(ctx); err != nil {
		imp.logger.Error("reset record store failed", "err", err)
		errs = append(errs, fmt.Errorf("record store: %w", err))
	} else {
		details.RecordStoreCleared = true
	}
	imp.m.reset("records", details.RecordStoreCleared)

	if err := imp.resetVectors(ctx); err != nil {
		imp.logger.Error("reset vector index failed", "err", err)
		errs = append(errs, fmt.Errorf("vector index: %w", err))
	} else {
		details.VectorIndexCleared = true
	}
	imp.m.reset("vectors", details.VectorIndexCleared)

	if len(errs) > 0 {
		return ResetResult{
			Status:  StatusError,
			Message: errors.Join(errs...).Error(),
			Details: &details,
		}
	}
	imp.logger.Info("reset finished")
	return ResetResult{Status: StatusSuccess, Message: "service catalog reset"}
}

func (imp *Importer) resetVectors(ctx context.Context) error {
	exists, err := imp.vectors.CollectionExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		if err := imp.vectors.DeleteCollection(ctx); err != nil {
			return err
		}
	}
	return imp.vectors.EnsureCollection(ctx, imp.dims)
}

