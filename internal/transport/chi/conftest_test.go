package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/profdex/internal/domain"
	dombatch "github.com/kailas-cloud/profdex/internal/domain/batch"
	"github.com/kailas-cloud/profdex/internal/domain/record"
	"github.com/kailas-cloud/profdex/internal/domain/search/request"
	"github.com/kailas-cloud/profdex/internal/domain/search/result"
	healthuc "github.com/kailas-cloud/profdex/internal/usecase/health"
)

type mockSearcher struct {
	lastReq *request.Request
	resp    result.Response
	err     error
}

func (m *mockSearcher) Search(_ context.Context, req *request.Request) (result.Response, error) {
	m.lastReq = req
	return m.resp, m.err
}

type mockIngester struct {
	lastNS      domain.Namespace
	lastRecords []record.Record
	summary     dombatch.Summary
	err         error
}

func (m *mockIngester) Ingest(_ context.Context, ns domain.Namespace, recs []record.Record) (dombatch.Summary, error) {
	m.lastNS = ns
	m.lastRecords = recs
	if m.err != nil {
		return dombatch.Summary{}, m.err
	}
	if m.summary.Total == 0 {
		items := make([]dombatch.Result, len(recs))
		for i, r := range recs {
			items[i] = dombatch.NewOK(r.ID())
		}
		return dombatch.Summarize("batch-1", items), nil
	}
	return m.summary, nil
}

type mockAdmin struct {
	lastSpec domain.IndexSpec
	lastNS   domain.Namespace
	res      domain.AdminResult
	err      error
}

func (m *mockAdmin) EnsureIndex(_ context.Context, spec domain.IndexSpec) (domain.AdminResult, error) {
	m.lastSpec = spec
	return m.res, m.err
}

func (m *mockAdmin) DescribeIndex(context.Context) (domain.AdminResult, error) { return m.res, m.err }

func (m *mockAdmin) DeleteIndex(context.Context) (domain.AdminResult, error) { return m.res, m.err }

func (m *mockAdmin) ClearNamespace(_ context.Context, ns domain.Namespace) (domain.AdminResult, error) {
	m.lastNS = ns
	return m.res, m.err
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

type fixture struct {
	search *mockSearcher
	ingest *mockIngester
	admin  *mockAdmin
	health *mockHealth
	router http.Handler
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		search: &mockSearcher{},
		ingest: &mockIngester{},
		admin:  &mockAdmin{res: domain.AdminResult{Success: true, Message: "ok"}},
		health: &mockHealth{report: healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{}}},
	}
	if opts.DefaultIndex.Dimension == 0 {
		opts.DefaultIndex = domain.IndexSpec{Dimension: 8, Metric: domain.MetricCosine}
	}
	f.router = NewServer(f.search, f.ingest, f.admin, f.health, opts, nil).Router()
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

func testCandidate(t *testing.T, id string, sim float64) result.Candidate {
	t.Helper()
	rec, err := record.New(id, domain.MustNamespace("acme"), record.Fields{Name: "Ada " + id}, map[string]any{"seniority": "senior"})
	if err != nil {
		t.Fatalf("record.New: %v", err)
	}
	return result.NewCandidate(rec, sim, result.SourceVector)
}

func nopLogger() *zap.Logger { return zap.NewNop() }

func newRecorder() *httptest.ResponseRecorder { return httptest.NewRecorder() }

func newRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, http.NoBody)
}
