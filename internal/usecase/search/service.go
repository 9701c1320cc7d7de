// Package search runs the query pipeline: rewrite, retrieve, rerank, assemble.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/profdex/internal/domain"
	"github.com/kailas-cloud/profdex/internal/domain/search/request"
	"github.com/kailas-cloud/profdex/internal/domain/search/result"
	"github.com/kailas-cloud/profdex/internal/logger"
	"github.com/kailas-cloud/profdex/internal/metrics"
)

// Defaults for Config zero values.
const (
	DefaultQueryTimeout = 60 * time.Second
	DefaultTopK         = 100
	DefaultMaxTopK      = 1000
)

// Config tunes retrieval depth and the outer query deadline.
type Config struct {
	QueryTimeout time.Duration
	DefaultTopK  int
	MaxTopK      int
}

// Service handles profile search.
type Service struct {
	retriever Retriever
	rewriter  Rewriter
	reranker  Reranker
	cfg       Config
}

// New creates a search service. rewriter can be nil.
func New(retriever Retriever, rewriter Rewriter, reranker Reranker, cfg Config) *Service {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultTopK
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = DefaultMaxTopK
	}
	return &Service{retriever: retriever, rewriter: rewriter, reranker: reranker, cfg: cfg}
}

// Search returns one page of ranked profiles. Index outages, failed rerank
// chunks and the query deadline degrade the response instead of failing it;
// only a missing namespace, an invalid filter or an unavailable query
// embedding are errors.
func (s *Service) Search(ctx context.Context, req *request.Request) (result.Response, error) {
	if req == nil || req.Namespace().IsZero() {
		return result.Response{}, domain.ErrNamespaceRequired
	}
	start := time.Now()
	log := logger.FromContext(ctx)

	qctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	resp := result.Response{
		Results:  []result.Reranked{},
		Page:     req.Page(),
		PageSize: req.PageSize(),
		Source:   result.SourceNone,
	}

	query := req.Query()
	if req.Rewrite() && s.rewriter != nil {
		if rewritten, ok := s.rewriter.Rewrite(qctx, query); ok {
			query = rewritten
			resp.RewrittenQuery = rewritten
		}
	}

	out, err := s.retriever.Retrieve(qctx, req.Namespace(), query, s.topK(req), req.Filters())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			log.Warn("Search deadline exceeded during retrieval",
				zap.String("namespace", req.Namespace().String()),
				zap.Duration("timeout", s.cfg.QueryTimeout))
			resp.Degraded = true
			s.observe(resp, start)
			return resp, nil
		}
		return result.Response{}, fmt.Errorf("retrieve: %w", err)
	}
	resp.Source = out.Source
	resp.EmbeddingTokens = out.Tokens

	reranked := s.reranker.Rerank(qctx, req.Query(), out.Candidates)
	resp.FailedChunks = reranked.FailedChunks
	resp.Degraded = reranked.Incomplete || reranked.FailedChunks > 0
	if reranked.Incomplete {
		log.Warn("Search deadline exceeded during rerank",
			zap.String("namespace", req.Namespace().String()),
			zap.Int("failed_chunks", reranked.FailedChunks))
	}

	resp.Results, resp.Total = Assemble(reranked.Results, req.Page(), req.PageSize())
	s.observe(resp, start)

	log.Info("Search completed",
		zap.String("namespace", req.Namespace().String()),
		zap.String("source", string(resp.Source)),
		zap.Int("candidates", len(out.Candidates)),
		zap.Int("returned", len(resp.Results)),
		zap.Bool("rewritten", resp.RewrittenQuery != ""),
		zap.Bool("degraded", resp.Degraded),
		zap.Duration("took", time.Since(start)))
	return resp, nil
}

// topK retrieves enough candidates to fill the requested page.
func (s *Service) topK(req *request.Request) int {
	return min(max(s.cfg.DefaultTopK, req.Window()), s.cfg.MaxTopK)
}

func (s *Service) observe(resp result.Response, start time.Time) {
	metrics.SearchDuration.WithLabelValues(string(resp.Source)).Observe(time.Since(start).Seconds())
	if resp.Degraded {
		metrics.SearchDegradedTotal.Inc()
	}
}
