package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kailas-cloud/profdex/internal/domain"
	"github.com/kailas-cloud/profdex/internal/domain/record"
	"github.com/kailas-cloud/profdex/internal/domain/search/filter"
	"github.com/kailas-cloud/profdex/internal/domain/search/request"
	"github.com/kailas-cloud/profdex/internal/domain/search/result"
	"github.com/kailas-cloud/profdex/internal/usecase/rerank"
	"github.com/kailas-cloud/profdex/internal/usecase/retrieve"
)

type mockRetriever struct {
	out   retrieve.Outcome
	err   error
	delay time.Duration

	query string
	topK  int
}

func (m *mockRetriever) Retrieve(
	ctx context.Context, _ domain.Namespace, query string, topK int, _ filter.Expression,
) (retrieve.Outcome, error) {
	m.query, m.topK = query, topK
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return retrieve.Outcome{}, fmt.Errorf("embed query: %w", ctx.Err())
		}
	}
	return m.out, m.err
}

type mockRewriter struct {
	out   string
	ok    bool
	calls int
}

func (m *mockRewriter) Rewrite(_ context.Context, raw string) (string, bool) {
	m.calls++
	if !m.ok {
		return raw, false
	}
	return m.out, true
}

// scoreByID reranks with a fixed score per record ID.
type scoreByID struct {
	scores map[string]float64
	query  string
}

func (m *scoreByID) Rerank(_ context.Context, query string, cands []result.Candidate) rerank.Outcome {
	m.query = query
	out := rerank.Outcome{Results: make([]result.Reranked, len(cands)), Chunks: 1}
	for i, c := range cands {
		out.Results[i] = result.NewReranked(c, m.scores[c.ID()], []string{"fit"})
	}
	return out
}

// scoreFunc scores every candidate of a chunk with fn.
type scoreFunc struct {
	fn      func(c result.Candidate) float64
	failKey string
}

func (s *scoreFunc) ScoreChunk(_ context.Context, _ string, chunk []result.Candidate) ([]rerank.Score, error) {
	if s.failKey != "" && chunk[0].ID() == s.failKey {
		return nil, fmt.Errorf("upstream 503")
	}
	out := make([]rerank.Score, len(chunk))
	for i, c := range chunk {
		out[i] = rerank.Score{Score: s.fn(c), Pros: []string{"relevant"}}
	}
	return out, nil
}

func cand(t *testing.T, id string, sim float64, src result.Source) result.Candidate {
	t.Helper()
	r, err := record.New(id, domain.MustNamespace("ns-a"), record.Fields{Name: id}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return result.NewCandidate(r, sim, src)
}

func newRequest(t *testing.T, query string, page, size int, rewrite bool) *request.Request {
	t.Helper()
	req, err := request.New(domain.MustNamespace("ns-a"), query, filter.Expression{}, page, size, rewrite)
	if err != nil {
		t.Fatal(err)
	}
	return &req
}
