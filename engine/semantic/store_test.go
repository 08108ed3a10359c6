package semantic

import (
	"context"
	"errors"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

// --- Mocks ---

type mockPoints struct {
	upsertReq  *pb.UpsertPoints
	upsertErr  error
	searchReq  *pb.SearchPoints
	searchResp *pb.SearchResponse
	searchErr  error
	countResp  *pb.CountResponse
	countErr   error
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.upsertReq = in
	return &pb.PointsOperationResponse{}, m.upsertErr
}
func (m *mockPoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	m.searchReq = in
	return m.searchResp, m.searchErr
}
func (m *mockPoints) Count(_ context.Context, _ *pb.CountPoints, _ ...grpc.CallOption) (*pb.CountResponse, error) {
	return m.countResp, m.countErr
}

type mockCollections struct {
	exists    bool
	existsErr error
	createReq *pb.CreateCollection
	createErr error
	deleted   bool
	deleteErr error
}

func (m *mockCollections) CollectionExists(_ context.Context, _ *pb.CollectionExistsRequest, _ ...grpc.CallOption) (*pb.CollectionExistsResponse, error) {
	if m.existsErr != nil {
		return nil, m.existsErr
	}
	return &pb.CollectionExistsResponse{Result: &pb.CollectionExists{Exists: m.exists}}, nil
}
func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.createReq = in
	return &pb.CollectionOperationResponse{Result: m.createErr == nil}, m.createErr
}
func (m *mockCollections) Delete(_ context.Context, _ *pb.DeleteCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.deleted = m.deleteErr == nil
	return &pb.CollectionOperationResponse{Result: m.deleted}, m.deleteErr
}

// --- Tests ---

func TestNewWithClients(t *testing.T) {
	vs := NewWithClients(&mockPoints{}, &mockCollections{}, "service_catalog")
	if vs.Collection() != "service_catalog" {
		t.Fatalf("unexpected collection %q", vs.Collection())
	}
	if err := vs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestEnsureCollection_AlreadyExists(t *testing.T) {
	cols := &mockCollections{exists: true}
	vs := NewWithClients(&mockPoints{}, cols, "test")
	if err := vs.EnsureCollection(context.Background(), 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cols.createReq != nil {
		t.Fatal("should not create an existing collection")
	}
}

func TestEnsureCollection_CreatesCosine(t *testing.T) {
	cols := &mockCollections{}
	vs := NewWithClients(&mockPoints{}, cols, "test")
	if err := vs.EnsureCollection(context.Background(), 1536); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	params := cols.createReq.GetVectorsConfig().GetParams()
	if params.GetSize() != 1536 {
		t.Fatalf("expected size 1536, got %d", params.GetSize())
	}
	if params.GetDistance() != pb.Distance_Cosine {
		t.Fatalf("expected cosine distance, got %v", params.GetDistance())
	}
}

func TestEnsureCollection_ExistsError(t *testing.T) {
	cols := &mockCollections{existsErr: errors.New("rpc fail")}
	vs := NewWithClients(&mockPoints{}, cols, "test")
	if err := vs.EnsureCollection(context.Background(), 4); err == nil {
		t.Fatal("expected error")
	}
}

func TestEnsureCollection_CreateError(t *testing.T) {
	cols := &mockCollections{createErr: errors.New("create fail")}
	vs := NewWithClients(&mockPoints{}, cols, "test")
	if err := vs.EnsureCollection(context.Background(), 4); err == nil {
		t.Fatal("expected error")
	}
}

func TestDeleteCollection(t *testing.T) {
	cols := &mockCollections{}
	vs := NewWithClients(&mockPoints{}, cols, "test")
	if err := vs.DeleteCollection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cols.deleted {
		t.Fatal("expected delete call")
	}

	cols = &mockCollections{deleteErr: errors.New("fail")}
	vs = NewWithClients(&mockPoints{}, cols, "test")
	if err := vs.DeleteCollection(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestUpsert_Empty(t *testing.T) {
	pts := &mockPoints{}
	vs := NewWithClients(pts, &mockCollections{}, "test")
	if err := vs.Upsert(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pts.upsertReq != nil {
		t.Fatal("empty upsert should not reach qdrant")
	}
}

func TestUpsert_WaitsAndConvertsPayload(t *testing.T) {
	pts := &mockPoints{}
	vs := NewWithClients(pts, &mockCollections{}, "test")

	records := []VectorRecord{{
		ID:        "141298f8-176f-53a9-933f-b3215c5a01bf",
		Embedding: []float32{1, 0, 0, 0},
		Payload: map[string]any{
			PayloadTitle:         "児童手当",
			PayloadServiceLabels: []string{"手当", "子育て"},
			"count":              42,
			"score":              3.14,
			"active":             true,
			"missing":            nil,
			"other":              struct{}{},
		},
	}}
	if err := vs.Upsert(context.Background(), records); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := pts.upsertReq
	if !req.GetWait() {
		t.Fatal("upsert must wait for acknowledgement")
	}
	p := req.GetPoints()[0]
	if p.GetId().GetUuid() != records[0].ID {
		t.Fatalf("wrong id %v", p.GetId())
	}
	labels := p.GetPayload()[PayloadServiceLabels].GetListValue().GetValues()
	if len(labels) != 2 || labels[1].GetStringValue() != "子育て" {
		t.Fatalf("wrong labels payload: %v", labels)
	}
	if p.GetPayload()["count"].GetIntegerValue() != 42 {
		t.Fatal("wrong int payload")
	}
	if !p.GetPayload()["active"].GetBoolValue() {
		t.Fatal("wrong bool payload")
	}
}

func TestUpsert_Error(t *testing.T) {
	pts := &mockPoints{upsertErr: errors.New("fail")}
	vs := NewWithClients(pts, &mockCollections{}, "test")

	records := []VectorRecord{{ID: "id1", Embedding: []float32{1, 0}}}
	if err := vs.Upsert(context.Background(), records); err == nil {
		t.Fatal("expected error")
	}
}

func TestSearch_Success(t *testing.T) {
	pts := &mockPoints{
		searchResp: &pb.SearchResponse{
			Result: []*pb.ScoredPoint{
				{
					Id:    &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "p1"}},
					Score: 0.95,
					Payload: map[string]*pb.Value{
						PayloadTitle: {Kind: &pb.Value_StringValue{StringValue: "保育所"}},
						PayloadTargetLabels: {Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{
							Values: []*pb.Value{{Kind: &pb.Value_StringValue{StringValue: "子育て世帯"}}},
						}}},
					},
				},
				{
					Id:    &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: 7}},
					Score: 0.5,
				},
			},
		},
	}
	vs := NewWithClients(pts, &mockCollections{}, "test")
	results, err := vs.Search(context.Background(), []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pts.searchReq.GetLimit() != 3 {
		t.Fatalf("expected limit 3, got %d", pts.searchReq.GetLimit())
	}
	if len(results) != 2 {
		t.Fatalf("expected 2, got %d", len(results))
	}
	if results[0].ID != "p1" || results[0].Score != 0.95 || results[0].Title != "保育所" {
		t.Errorf("wrong first hit: %+v", results[0])
	}
	if len(results[0].TargetLabels) != 1 || results[0].TargetLabels[0] != "子育て世帯" {
		t.Errorf("wrong target labels: %v", results[0].TargetLabels)
	}
	if results[1].ID != "7" {
		t.Errorf("expected numeric id rendered as text, got %q", results[1].ID)
	}
}

func TestSearch_Error(t *testing.T) {
	pts := &mockPoints{searchErr: errors.New("fail")}
	vs := NewWithClients(pts, &mockCollections{}, "test")
	if _, err := vs.Search(context.Background(), []float32{1}, 5); err == nil {
		t.Fatal("expected error")
	}
}

func TestCount(t *testing.T) {
	pts := &mockPoints{countResp: &pb.CountResponse{Result: &pb.CountResult{Count: 12}}}
	vs := NewWithClients(pts, &mockCollections{}, "test")
	n, err := vs.Count(context.Background())
	if err != nil || n != 12 {
		t.Fatalf("expected 12, got %d (%v)", n, err)
	}

	pts = &mockPoints{countErr: errors.New("fail")}
	vs = NewWithClients(pts, &mockCollections{}, "test")
	if _, err := vs.Count(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
