// Package chi is the JSON HTTP adapter over the search, ingest and index admin use cases.
package chi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/profdex/internal/domain"
	dombatch "github.com/kailas-cloud/profdex/internal/domain/batch"
	"github.com/kailas-cloud/profdex/internal/domain/record"
	"github.com/kailas-cloud/profdex/internal/domain/search/filter"
	"github.com/kailas-cloud/profdex/internal/domain/search/request"
	"github.com/kailas-cloud/profdex/internal/domain/search/result"
	"github.com/kailas-cloud/profdex/internal/metrics"
	healthuc "github.com/kailas-cloud/profdex/internal/usecase/health"
	"github.com/kailas-cloud/profdex/internal/version"
)

// maxBodyBytes caps request bodies; ingest batches dominate.
const maxBodyBytes = 32 << 20

// Searcher runs the search pipeline.
type Searcher interface {
	Search(ctx context.Context, req *request.Request) (result.Response, error)
}

// Ingester indexes record batches.
type Ingester interface {
	Ingest(ctx context.Context, ns domain.Namespace, records []record.Record) (dombatch.Summary, error)
}

// IndexAdmin manages the vector index lifecycle.
type IndexAdmin interface {
	EnsureIndex(ctx context.Context, spec domain.IndexSpec) (domain.AdminResult, error)
	DescribeIndex(ctx context.Context) (domain.AdminResult, error)
	DeleteIndex(ctx context.Context) (domain.AdminResult, error)
	ClearNamespace(ctx context.Context, ns domain.Namespace) (domain.AdminResult, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Options tunes request defaults and limits.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
	RewriteDefault  bool
	MaxIngestBatch  int
	// DefaultIndex fills dimension and metric omitted from PUT /v1/index.
	DefaultIndex domain.IndexSpec
	APIKeys      []string
}

// Server is the HTTP API.
type Server struct {
	search Searcher
	ingest Ingester
	admin  IndexAdmin
	health HealthChecker
	opts   Options
	logger *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(
	search Searcher,
	ingest Ingester,
	admin IndexAdmin,
	health HealthChecker,
	opts Options,
	logger *zap.Logger,
) *Server {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = request.DefaultPageSize
	}
	if opts.MaxPageSize <= 0 || opts.MaxPageSize > request.MaxPageSize {
		opts.MaxPageSize = request.MaxPageSize
	}
	if opts.MaxIngestBatch <= 0 {
		opts.MaxIngestBatch = 500
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		search: search,
		ingest: ingest,
		admin:  admin,
		health: health,
		opts:   opts,
		logger: logger,
	}
}

// Router builds the chi router with the middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(s.opts.APIKeys))
	r.Use(metrics.Middleware("/metrics"))

	r.Get("/health", s.HealthCheck)
	r.Get("/version", s.Version)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Put("/index", s.EnsureIndex)
		r.Get("/index", s.DescribeIndex)
		r.Delete("/index", s.DeleteIndex)

		r.Route("/namespaces/{namespace}", func(r chi.Router) {
			r.Use(namespaceLogger)
			r.Post("/search", s.Search)
			r.Post("/records", s.Ingest)
			r.Delete("/records", s.ClearNamespace)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeBadRequest, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})
	return r
}

// Search handles POST /v1/namespaces/{namespace}/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	ns, ok := namespaceParam(w, r)
	if !ok {
		return
	}

	var body SearchRequest
	if !decodeBody(w, r, &body) {
		return
	}

	filters, err := filter.FromMap(body.Filters)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "filters: "+err.Error())
		return
	}

	pageSize := body.PageSize
	if pageSize == 0 {
		pageSize = s.opts.DefaultPageSize
	}
	if pageSize > s.opts.MaxPageSize {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			fmt.Sprintf("page_size must be between 1 and %d", s.opts.MaxPageSize))
		return
	}
	rewrite := s.opts.RewriteDefault
	if body.Rewrite != nil {
		rewrite = *body.Rewrite
	}

	req, err := request.New(ns, body.Query, filters, body.Page, pageSize, rewrite)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	resp, err := s.search.Search(r.Context(), &req)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	if resp.Degraded {
		w.Header().Set("X-Search-Degraded", "true")
	}
	writeJSON(w, http.StatusOK, searchResponseFromDomain(&resp))
}

// Ingest handles POST /v1/namespaces/{namespace}/records.
func (s *Server) Ingest(w http.ResponseWriter, r *http.Request) {
	ns, ok := namespaceParam(w, r)
	if !ok {
		return
	}

	var body IngestRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if len(body.Records) == 0 || len(body.Records) > s.opts.MaxIngestBatch {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			fmt.Sprintf("records count must be between 1 and %d", s.opts.MaxIngestBatch))
		return
	}

	records := make([]record.Record, 0, len(body.Records))
	for _, p := range body.Records {
		rec, err := p.toRecord(ns)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		records = append(records, rec)
	}

	summary, err := s.ingest.Ingest(r.Context(), ns, records)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if summary.Indexed < summary.Total {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, ingestResponseFromDomain(summary))
}

// ClearNamespace handles DELETE /v1/namespaces/{namespace}/records.
func (s *Server) ClearNamespace(w http.ResponseWriter, r *http.Request) {
	ns, ok := namespaceParam(w, r)
	if !ok {
		return
	}
	res, err := s.admin.ClearNamespace(r.Context(), ns)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// EnsureIndex handles PUT /v1/index.
func (s *Server) EnsureIndex(w http.ResponseWriter, r *http.Request) {
	var body EnsureIndexRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &body) {
		return
	}

	spec := s.opts.DefaultIndex
	if body.Dimension != 0 {
		spec.Dimension = body.Dimension
	}
	if body.Metric != "" {
		m, err := domain.ParseMetric(body.Metric)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		spec.Metric = m
	}

	res, err := s.admin.EnsureIndex(r.Context(), spec)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DescribeIndex handles GET /v1/index.
func (s *Server) DescribeIndex(w http.ResponseWriter, r *http.Request) {
	res, err := s.admin.DescribeIndex(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DeleteIndex handles DELETE /v1/index.
func (s *Server) DeleteIndex(w http.ResponseWriter, r *http.Request) {
	res, err := s.admin.DeleteIndex(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Version handles GET /version.
func (s *Server) Version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, version.Map())
}

func namespaceParam(w http.ResponseWriter, r *http.Request) (domain.Namespace, bool) {
	ns, err := domain.NewNamespace(chi.URLParam(r, "namespace"))
	if err != nil {
		handleDomainError(w, r, err)
		return domain.Namespace{}, false
	}
	return ns, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}
