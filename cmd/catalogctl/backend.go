package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nats-io/nats.go"
	"gopkg.in/yaml.v3"

	"github.com/WessleyAI/service-catalog/engine/catalog"
	"github.com/WessleyAI/service-catalog/engine/domain"
	"github.com/WessleyAI/service-catalog/engine/rag"
	"github.com/WessleyAI/service-catalog/pkg/bootstrap"
	"github.com/WessleyAI/service-catalog/pkg/fn"
	"github.com/WessleyAI/service-catalog/pkg/natsutil"
)

// backend runs catalog operations either locally or remotely.
type backend interface {
	Import(ctx context.Context, entries []domain.Entry) (catalog.ImportResult, error)
	Reset(ctx context.Context) (catalog.ResetResult, error)
	Retrieve(ctx context.Context, c *domain.Context) (*domain.Context, error)
	Close() error
}

type localBackend struct{ app *bootstrap.App }

func (b *localBackend) Import(ctx context.Context, entries []domain.Entry) (catalog.ImportResult, error) {
	return b.app.Importer.Import(ctx, entries)
}

func (b *localBackend) Reset(ctx context.Context) (catalog.ResetResult, error) {
	return b.app.Importer.Reset(ctx), nil
}

func (b *localBackend) Retrieve(ctx context.Context, c *domain.Context) (*domain.Context, error) {
	return b.app.RAG.RetrieveKnowledge(ctx, c), nil
}

func (b *localBackend) Close() error { return b.app.Close() }

type natsBackend struct{ nc *nats.Conn }

func (b *natsBackend) Import(ctx context.Context, entries []domain.Entry) (catalog.ImportResult, error) {
	return natsutil.Request[[]domain.Entry, catalog.ImportResult](ctx, b.nc, catalog.ImportSubject, entries)
}

func (b *natsBackend) Reset(ctx context.Context) (catalog.ResetResult, error) {
	return natsutil.Request[catalog.ResetRequest, catalog.ResetResult](ctx, b.nc, catalog.ResetSubject, catalog.ResetRequest{})
}

func (b *natsBackend) Retrieve(ctx context.Context, c *domain.Context) (*domain.Context, error) {
	out, err := natsutil.Request[domain.Context, domain.Context](ctx, b.nc, rag.RetrieveSubject, *c)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *natsBackend) Close() error {
	b.nc.Close()
	return nil
}

// loadEntries reads a JSON or YAML list of catalog entries. YAML documents
// are converted to JSON so both go through the same tolerant decoder.
func loadEntries(path string) ([]domain.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc []any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("convert %s: %w", path, err)
		}
	}
	entries, err := domain.DecodeEntries(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// importBatches imports in chunks of size and sums the counts. The result is
// partial_failure if any chunk was; the last underlying error is kept.
func importBatches(ctx context.Context, b backend, entries []domain.Entry, size int) (catalog.ImportResult, error) {
	if size <= 0 || size >= len(entries) {
		return b.Import(ctx, entries)
	}
	total := catalog.ImportResult{Status: catalog.StatusCompleted}
	for _, chunk := range fn.Chunk(entries, size) {
		res, err := b.Import(ctx, chunk)
		if err != nil {
			return total, err
		}
		total.SuccessCount += res.SuccessCount
		total.ErrorCount += res.ErrorCount
		if res.Status == catalog.StatusPartialFailure {
			total.Status = catalog.StatusPartialFailure
			total.UnderlyingError = res.UnderlyingError
		}
	}
	return total, nil
}
