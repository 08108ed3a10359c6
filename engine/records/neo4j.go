package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/service-catalog/engine/domain"
	"github.com/WessleyAI/service-catalog/pkg/fn"
	"github.com/WessleyAI/service-catalog/pkg/repo"
)

// NodeLabel is the label of catalog record nodes.
const NodeLabel = "ServiceCatalogEntry"

// Neo4jStore keeps one node per record. It is the alternative backend for
// deployments that already run the graph database.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
	repo   *repo.Neo4jRepo[domain.Record, string]
	now    func() time.Time
}

// NewNeo4jStore wraps an open driver. Close closes the driver.
func NewNeo4jStore(driver neo4j.DriverWithContext) *Neo4jStore {
	s := &Neo4jStore{driver: driver, now: time.Now}
	s.repo = repo.NewNeo4jRepo[domain.Record, string](driver, NodeLabel, s.toProps, recordFromNode)
	return s
}

// CreateTable creates the id uniqueness constraint.
func (s *Neo4jStore) CreateTable(ctx context.Context) error {
	if err := s.repo.EnsureConstraint(ctx); err != nil {
		return fmt.Errorf("records: neo4j constraint: %w", err)
	}
	return nil
}

// Put replaces the node for rec.ID.
func (s *Neo4jStore) Put(ctx context.Context, rec domain.Record) error {
	if err := s.repo.Put(ctx, rec); err != nil {
		return fmt.Errorf("records: put %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the record with the given id or domain.ErrNotFound.
func (s *Neo4jStore) Get(ctx context.Context, id string) (domain.Record, error) {
	rec, err := s.repo.Get(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Record{}, fmt.Errorf("records: %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Record{}, fmt.Errorf("records: get %s: %w", id, err)
	}
	return rec, nil
}

// Truncate deletes every record node.
func (s *Neo4jStore) Truncate(ctx context.Context) error {
	if err := s.repo.DeleteAll(ctx); err != nil {
		return fmt.Errorf("records: truncate: %w", err)
	}
	return nil
}

// Count returns the number of record nodes.
func (s *Neo4jStore) Count(ctx context.Context) (int64, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("records: count: %w", err)
	}
	return n, nil
}

// Close closes the driver.
func (s *Neo4jStore) Close() error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Close(context.Background())
}

func (s *Neo4jStore) toProps(rec domain.Record) map[string]any {
	return map[string]any{
		"id":              rec.ID,
		"title":           rec.Title,
		"url":             rec.URL,
		"service_content": rec.ServiceContent,
		"target":          rec.Target,
		"conditions":      rec.Conditions,
		"service_labels":  fn.OrEmpty(rec.ServiceLabels),
		"target_labels":   fn.OrEmpty(rec.TargetLabels),
		"raw":             string(rec.Raw),
		"updated_at":      s.now().UTC(),
	}
}

func recordFromNode(r *neo4j.Record) (domain.Record, error) {
	node, _, err := neo4j.GetRecordValue[neo4j.Node](r, "n")
	if err != nil {
		return domain.Record{}, fmt.Errorf("records: decode node: %w", err)
	}
	p := node.Props
	rec := domain.Record{
		ID:             propString(p, "id"),
		Title:          propString(p, "title"),
		URL:            propString(p, "url"),
		ServiceContent: propString(p, "service_content"),
		Target:         propString(p, "target"),
		Conditions:     propString(p, "conditions"),
		ServiceLabels:  propStrings(p, "service_labels"),
		TargetLabels:   propStrings(p, "target_labels"),
	}
	if raw := propString(p, "raw"); raw != "" {
		rec.Raw = json.RawMessage(raw)
	}
	if t, ok := p["updated_at"].(time.Time); ok {
		rec.UpdatedAt = t
	}
	return rec, nil
}

func propString(p map[string]any, key string) string {
	s, _ := p[key].(string)
	return s
}

func propStrings(p map[string]any, key string) []string {
	items, _ := p[key].([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
