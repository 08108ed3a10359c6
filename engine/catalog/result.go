package catalog

// Import statuses.
const (
	StatusCompleted      = "completed"
	StatusPartialFailure = "partial_failure"
)

// Reset statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ImportResult reports the outcome of one import. UnderlyingError is set
// only for partial_failure.
type ImportResult struct {
	Status          string `json:"status"`
	SuccessCount    int    `json:"success_count"`
	ErrorCount      int    `json:"error_count"`
	UnderlyingError string `json:"underlying_error,omitempty"`
}

// ResetDetails says which store was cleared.
type ResetDetails struct {
	RecordStoreCleared bool `json:"record_store_cleared"`
	VectorIndexCleared bool `json:"vector_index_cleared"`
}

// ResetResult reports the outcome of a reset. Details is present only when
// Status is error.
type ResetResult struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Details *ResetDetails `json:"details,omitempty"`
}

// OK reports whether both stores were cleared.
func (r ResetResult) OK() bool { return r.Status == StatusSuccess }
