package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Hypothesis is a caller-supplied intent that may trigger a retrieval query.
type Hypothesis struct {
	ID             string   `json:"id"`
	ShouldCallRAG  bool     `json:"should_call_rag"`
	SearchQuery    string   `json:"search_query,omitempty"`
	Reasoning      string   `json:"reasoning,omitempty"`
	LikelyServices []string `json:"likely_services,omitempty"`

	// Raw is the hypothesis exactly as received, unknown keys included.
	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON accepts numeric ids and a single likely-service string.
func (h *Hypothesis) UnmarshalJSON(data []byte) error {
	var aux struct {
		ID             json.RawMessage `json:"id"`
		ShouldCallRAG  bool            `json:"should_call_rag"`
		SearchQuery    json.RawMessage `json:"search_query"`
		Reasoning      json.RawMessage `json:"reasoning"`
		LikelyServices json.RawMessage `json:"likely_services"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("hypothesis: %w", err)
	}
	*h = Hypothesis{
		ID:             textValue(aux.ID),
		ShouldCallRAG:  aux.ShouldCallRAG,
		SearchQuery:    textValue(aux.SearchQuery),
		Reasoning:      textValue(aux.Reasoning),
		LikelyServices: labelValues(aux.LikelyServices),
		Raw:            append(json.RawMessage(nil), data...),
	}
	return nil
}

// MarshalJSON emits Raw when present so the caller gets its hypothesis back
// untouched.
func (h Hypothesis) MarshalJSON() ([]byte, error) {
	if len(h.Raw) > 0 {
		return h.Raw, nil
	}
	type plain Hypothesis
	return json.Marshal(plain(h))
}

// QueryText returns the text to search with. A non-blank search query wins;
// otherwise the reasoning and each likely service are space-joined. ok is
// false when nothing usable remains.
func (h Hypothesis) QueryText() (text string, ok bool) {
	text = h.SearchQuery
	if strings.TrimSpace(text) == "" {
		parts := make([]string, 0, len(h.LikelyServices)+1)
		if h.Reasoning != "" {
			parts = append(parts, h.Reasoning)
		}
		parts = append(parts, h.LikelyServices...)
		text = strings.Join(parts, " ")
	}
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}

// CandidateConditions is the eligibility sub-object of a candidate.
type CandidateConditions struct {
	Target     string `json:"target"`
	Conditions string `json:"conditions"`
}

// Candidate joins a similarity hit with its record.
type Candidate struct {
	HypothesisID string              `json:"hypothesis_id"`
	ServiceID    string              `json:"service_id"`
	Name         string              `json:"name"`
	URL          string              `json:"url"`
	Summary      string              `json:"summary"`
	Conditions   CandidateConditions `json:"conditions"`
	Score        float32             `json:"score"`
}

// NewCandidate projects a record hit for the given hypothesis.
func NewCandidate(hypothesisID string, rec Record, score float32) Candidate {
	return Candidate{
		HypothesisID: hypothesisID,
		ServiceID:    rec.ID,
		Name:         rec.Title,
		URL:          rec.URL,
		Summary:      rec.Summary(),
		Conditions: CandidateConditions{
			Target:     rec.Target,
			Conditions: rec.Conditions,
		},
		Score: score,
	}
}

// RetrievalEvidence is written to the context by the retrieval engine.
type RetrievalEvidence struct {
	ServiceCandidates []Candidate `json:"service_candidates"`
}

// Context is the shared object passed through a retrieval call. Keys other
// than hypotheses and retrieval_evidence are kept in Extra and written back
// unchanged. A null or absent hypotheses key is not added on the way out.
type Context struct {
	Hypotheses        []Hypothesis
	RetrievalEvidence *RetrievalEvidence
	Extra             map[string]json.RawMessage
}

const (
	keyHypotheses        = "hypotheses"
	keyRetrievalEvidence = "retrieval_evidence"
)

// UnmarshalJSON implements json.Unmarshaler.
func (c *Context) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("context: %w", err)
	}
	*c = Context{}
	if raw, ok := fields[keyHypotheses]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &c.Hypotheses); err != nil {
			return fmt.Errorf("context: hypotheses: %w", err)
		}
		delete(fields, keyHypotheses)
	}
	if raw, ok := fields[keyRetrievalEvidence]; ok && string(raw) != "null" {
		var ev RetrievalEvidence
		if err := json.Unmarshal(raw, &ev); err != nil {
			return fmt.Errorf("context: retrieval_evidence: %w", err)
		}
		c.RetrievalEvidence = &ev
	}
	delete(fields, keyRetrievalEvidence)
	if len(fields) > 0 {
		c.Extra = fields
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (c Context) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extra)+2)
	for k, v := range c.Extra {
		out[k] = v
	}
	if c.Hypotheses != nil {
		out[keyHypotheses] = c.Hypotheses
	}
	if c.RetrievalEvidence != nil {
		ev := *c.RetrievalEvidence
		if ev.ServiceCandidates == nil {
			ev.ServiceCandidates = []Candidate{}
		}
		out[keyRetrievalEvidence] = ev
	}
	return json.Marshal(out)
}
