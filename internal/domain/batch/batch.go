package batch

// ItemStatus is the processing outcome of a single batch item.
type ItemStatus string

// Batch item status values.
const (
	StatusOK              ItemStatus = "ok"
	StatusInvalid         ItemStatus = "invalid"
	StatusEmbeddingFailed ItemStatus = "embedding_failed"
	StatusUpsertFailed    ItemStatus = "upsert_failed"
)

// Result is the outcome of processing one item in a batch operation.
type Result struct {
	id     string
	status ItemStatus
	err    error
}

// NewOK creates a successful batch result.
func NewOK(id string) Result { return Result{id: id, status: StatusOK} }

// NewError creates a failed batch result with the given status.
func NewError(id string, status ItemStatus, err error) Result {
	return Result{id: id, status: status, err: err}
}

// ID returns the item identifier.
func (r Result) ID() string { return r.id }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }

// Summary aggregates per-item outcomes of one ingestion batch.
type Summary struct {
	BatchID         string   `json:"batch_id"`
	Total           int      `json:"total"`
	Indexed         int      `json:"indexed"`
	EmbeddingFailed int      `json:"embedding_failed"`
	UpsertFailed    int      `json:"upsert_failed"`
	Invalid         int      `json:"invalid"`
	EmbeddingTokens int      `json:"embedding_tokens"`
	Items           []Result `json:"-"`
}

// Summarize counts item outcomes.
func Summarize(batchID string, items []Result) Summary {
	s := Summary{BatchID: batchID, Total: len(items), Items: items}
	for _, it := range items {
		switch it.status {
		case StatusOK:
			s.Indexed++
		case StatusEmbeddingFailed:
			s.EmbeddingFailed++
		case StatusUpsertFailed:
			s.UpsertFailed++
		case StatusInvalid:
			s.Invalid++
		}
	}
	return s
}
