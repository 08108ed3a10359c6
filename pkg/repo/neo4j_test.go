package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type entity struct {
	ID   string
	Name string
}

type mockResult struct {
	records    []*neo4j.Record
	idx        int
	err        error
	consumeErr error
}

func (m *mockResult) Next(_ context.Context) bool {
	if m.idx < len(m.records) {
		m.idx++
		return true
	}
	return false
}

func (m *mockResult) Record() *neo4j.Record {
	if m.idx > 0 && m.idx <= len(m.records) {
		return m.records[m.idx-1]
	}
	return nil
}

func (m *mockResult) Err() error { return m.err }

func (m *mockResult) Consume(_ context.Context) (neo4j.ResultSummary, error) {
	return nil, m.consumeErr
}

type mockRunner struct {
	result  *mockResult
	err     error
	cyphers []string
	params  []map[string]any
	closed  int
}

func (m *mockRunner) Run(_ context.Context, cypher string, params map[string]any) (result, error) {
	m.cyphers = append(m.cyphers, cypher)
	m.params = append(m.params, params)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockRunner) Close(_ context.Context) error {
	m.closed++
	return nil
}

func makeRecord(id, name string) *neo4j.Record {
	return &neo4j.Record{
		Values: []any{neo4j.Node{Props: map[string]any{"id": id, "name": name}}},
		Keys:   []string{"n"},
	}
}

func newTestRepo(r *mockRunner) *Neo4jRepo[entity, string] {
	repo := NewNeo4jRepo[entity, string](
		nil, "Entry",
		func(e entity) map[string]any { return map[string]any{"id": e.ID, "name": e.Name} },
		func(rec *neo4j.Record) (entity, error) {
			node, _, err := neo4j.GetRecordValue[neo4j.Node](rec, "n")
			if err != nil {
				return entity{}, err
			}
			id, _ := node.Props["id"].(string)
			name, _ := node.Props["name"].(string)
			return entity{ID: id, Name: name}, nil
		},
	)
	repo.newSession = func(context.Context) runner { return r }
	return repo
}

func TestNewNeo4jRepoDefaults(t *testing.T) {
	r := NewNeo4jRepo[entity, string](nil, "Node", nil, nil)
	if r.idKey != "id" {
		t.Fatalf("expected default idKey=id, got %s", r.idKey)
	}
	r = NewNeo4jRepo[entity, string](nil, "Node", nil, nil, WithIDKey[entity, string]("uuid"))
	if r.idKey != "uuid" {
		t.Fatalf("expected idKey=uuid, got %s", r.idKey)
	}
}

func TestGet_Success(t *testing.T) {
	r := &mockRunner{result: &mockResult{records: []*neo4j.Record{makeRecord("1", "Alice")}}}
	repo := newTestRepo(r)

	e, err := repo.Get(context.Background(), "1")
	if err != nil {
		t.Fatal(err)
	}
	if e.ID != "1" || e.Name != "Alice" {
		t.Fatalf("got %+v", e)
	}
	if r.closed != 1 {
		t.Fatalf("session should be closed once, got %d", r.closed)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo := newTestRepo(&mockRunner{result: &mockResult{}})
	_, err := repo.Get(context.Background(), "x")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGet_RunError(t *testing.T) {
	repo := newTestRepo(&mockRunner{err: errors.New("db down")})
	_, err := repo.Get(context.Background(), "x")
	if err == nil || err.Error() != "db down" {
		t.Fatalf("expected db down, got %v", err)
	}
}

func TestGet_StreamErrorIsNotNotFound(t *testing.T) {
	repo := newTestRepo(&mockRunner{result: &mockResult{err: errors.New("connection reset")}})
	_, err := repo.Get(context.Background(), "x")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected stream error, got %v", err)
	}
}

func TestPut_MergesByID(t *testing.T) {
	r := &mockRunner{result: &mockResult{}}
	repo := newTestRepo(r)
	if err := repo.Put(context.Background(), entity{ID: "7", Name: "N"}); err != nil {
		t.Fatal(err)
	}
	if r.params[0]["id"] != "7" {
		t.Fatalf("expected id param 7, got %v", r.params[0]["id"])
	}
	props := r.params[0]["props"].(map[string]any)
	if props["name"] != "N" {
		t.Fatalf("unexpected props %v", props)
	}
}

func TestPut_ConsumeError(t *testing.T) {
	repo := newTestRepo(&mockRunner{result: &mockResult{consumeErr: errors.New("constraint")}})
	if err := repo.Put(context.Background(), entity{ID: "1"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestDeleteAll_RunError(t *testing.T) {
	repo := newTestRepo(&mockRunner{err: errors.New("fail")})
	if err := repo.DeleteAll(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestCount(t *testing.T) {
	rec := &neo4j.Record{Values: []any{int64(4)}, Keys: []string{"c"}}
	repo := newTestRepo(&mockRunner{result: &mockResult{records: []*neo4j.Record{rec}}})
	n, err := repo.Count(context.Background())
	if err != nil || n != 4 {
		t.Fatalf("expected 4, got %d (%v)", n, err)
	}
}

func TestCount_StreamError(t *testing.T) {
	repo := newTestRepo(&mockRunner{result: &mockResult{err: errors.New("connection reset")}})
	if _, err := repo.Count(context.Background()); err == nil {
		t.Fatal("expected error instead of zero count")
	}
}

func TestCount_UnexpectedType(t *testing.T) {
	rec := &neo4j.Record{Values: []any{"four"}, Keys: []string{"c"}}
	repo := newTestRepo(&mockRunner{result: &mockResult{records: []*neo4j.Record{rec}}})
	if _, err := repo.Count(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestCypherGeneration(t *testing.T) {
	r := &mockRunner{}
	repo := NewNeo4jRepo[entity, string](
		nil, "Service",
		func(e entity) map[string]any { return map[string]any{"sid": e.ID} },
		nil,
		WithIDKey[entity, string]("sid"),
	)
	repo.newSession = func(context.Context) runner {
		r.result = &mockResult{}
		return r
	}

	ctx := context.Background()
	repo.EnsureConstraint(ctx)
	repo.Get(ctx, "ABC")
	repo.Put(ctx, entity{ID: "ABC"})
	repo.DeleteAll(ctx)
	repo.Count(ctx)

	expected := []string{
		"CREATE CONSTRAINT Service_sid_unique IF NOT EXISTS FOR (n:Service) REQUIRE n.sid IS UNIQUE",
		"MATCH (n:Service {sid: $id}) RETURN n",
		"MERGE (n:Service {sid: $id}) SET n = $props",
		"MATCH (n:Service) DETACH DELETE n",
		"MATCH (n:Service) RETURN count(n) AS c",
	}
	if len(r.cyphers) != len(expected) {
		t.Fatalf("got %d cyphers, want %d", len(r.cyphers), len(expected))
	}
	for i, want := range expected {
		if r.cyphers[i] != want {
			t.Errorf("[%d] got %q, want %q", i, r.cyphers[i], want)
		}
	}
}
