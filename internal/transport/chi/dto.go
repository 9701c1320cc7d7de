package chi

import (
	"fmt"

	"github.com/kailas-cloud/profdex/internal/domain"
	dombatch "github.com/kailas-cloud/profdex/internal/domain/batch"
	"github.com/kailas-cloud/profdex/internal/domain/record"
	"github.com/kailas-cloud/profdex/internal/domain/search/result"
)

// SearchRequest is the body of POST /v1/namespaces/{namespace}/search.
type SearchRequest struct {
	Query    string         `json:"query"`
	Filters  map[string]any `json:"filters,omitempty"`
	Page     int            `json:"page,omitempty"`
	PageSize int            `json:"page_size,omitempty"`
	Rewrite  *bool          `json:"rewrite,omitempty"`
}

// SearchResultItem is one ranked profile.
type SearchResultItem struct {
	RecordID   string         `json:"record_id"`
	Score      float64        `json:"score"`
	Similarity float64        `json:"similarity"`
	Pros       []string       `json:"pros"`
	Scored     bool           `json:"scored"`
	Source     result.Source  `json:"source"`
	Profile    map[string]any `json:"profile"`
}

// SearchResponse is one page of ranked profiles plus completeness diagnostics.
type SearchResponse struct {
	Results         []SearchResultItem `json:"results"`
	Total           int                `json:"total"`
	Page            int                `json:"page"`
	PageSize        int                `json:"page_size"`
	Source          result.Source      `json:"source"`
	RewrittenQuery  string             `json:"rewritten_query,omitempty"`
	Degraded        bool               `json:"degraded"`
	FailedChunks    int                `json:"failed_chunks"`
	EmbeddingTokens int                `json:"embedding_tokens"`
}

// RecordPayload is a profile record in an ingest request.
type RecordPayload struct {
	RecordID   string         `json:"record_id"`
	Namespace  string         `json:"namespace,omitempty"`
	Name       string         `json:"name"`
	Headline   string         `json:"headline"`
	Experience string         `json:"experience"`
	Skills     string         `json:"skills"`
	Location   string         `json:"location"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// IngestRequest is the body of POST /v1/namespaces/{namespace}/records.
type IngestRequest struct {
	Records []RecordPayload `json:"records"`
}

// IngestItem is the per-record ingest outcome.
type IngestItem struct {
	RecordID string              `json:"record_id"`
	Status   dombatch.ItemStatus `json:"status"`
	Error    string              `json:"error,omitempty"`
}

// IngestResponse is the ingest summary.
type IngestResponse struct {
	dombatch.Summary
	Items []IngestItem `json:"items"`
}

// EnsureIndexRequest is the body of PUT /v1/index. Zero values fall back to the server defaults.
type EnsureIndexRequest struct {
	Dimension int    `json:"dimension,omitempty"`
	Metric    string `json:"metric,omitempty"`
}

// toRecord builds a domain record. An empty payload namespace inherits the path namespace;
// a different one is passed through so ingestion reports it as invalid.
func (p RecordPayload) toRecord(pathNS domain.Namespace) (record.Record, error) {
	ns := pathNS
	if p.Namespace != "" && p.Namespace != pathNS.String() {
		other, err := domain.NewNamespace(p.Namespace)
		if err != nil {
			return record.Record{}, fmt.Errorf("record %q: %w", p.RecordID, err)
		}
		ns = other
	}
	rec, err := record.New(p.RecordID, ns, record.Fields{
		Name:       p.Name,
		Headline:   p.Headline,
		Experience: p.Experience,
		Skills:     p.Skills,
		Location:   p.Location,
	}, p.Attributes)
	if err != nil {
		return record.Record{}, fmt.Errorf("record %q: %w", p.RecordID, err)
	}
	return rec, nil
}

func searchResponseFromDomain(resp *result.Response) SearchResponse {
	items := make([]SearchResultItem, len(resp.Results))
	for i, r := range resp.Results {
		items[i] = SearchResultItem{
			RecordID:   r.ID(),
			Score:      r.Score(),
			Similarity: r.Similarity(),
			Pros:       r.Pros(),
			Scored:     r.Scored(),
			Source:     r.Source(),
			Profile:    r.Record().Profile(),
		}
	}
	return SearchResponse{
		Results:         items,
		Total:           resp.Total,
		Page:            resp.Page,
		PageSize:        resp.PageSize,
		Source:          resp.Source,
		RewrittenQuery:  resp.RewrittenQuery,
		Degraded:        resp.Degraded,
		FailedChunks:    resp.FailedChunks,
		EmbeddingTokens: resp.EmbeddingTokens,
	}
}

func ingestResponseFromDomain(s dombatch.Summary) IngestResponse {
	items := make([]IngestItem, len(s.Items))
	for i, it := range s.Items {
		items[i] = IngestItem{RecordID: it.ID(), Status: it.Status()}
		if it.Err() != nil {
			items[i].Error = safeDomainMessage(it.Err())
		}
	}
	return IngestResponse{Summary: s, Items: items}
}
