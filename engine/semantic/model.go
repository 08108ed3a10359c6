package semantic

// Payload keys stored with every catalog point. They are denormalized from
// the record store so hits can be filtered without a join.
const (
	PayloadTitle         = "title"
	PayloadServiceLabels = "service_labels"
	PayloadTargetLabels  = "target_labels"
)

// SearchResult represents a single vector search hit.
type SearchResult struct {
	ID            string   `json:"id"`
	Score         float32  `json:"score"`
	Title         string   `json:"title"`
	ServiceLabels []string `json:"service_labels"`
	TargetLabels  []string `json:"target_labels"`
}

// VectorRecord represents a single vector to store in Qdrant.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Payload   map[string]any // title, service_labels, target_labels
}
