// Package rerank scores retrieval candidates in fixed-size chunks fanned out
// over a bounded worker pool.
package rerank

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/profdex/internal/domain"
	"github.com/kailas-cloud/profdex/internal/domain/search/result"
	"github.com/kailas-cloud/profdex/internal/logger"
	"github.com/kailas-cloud/profdex/internal/metrics"
)

// Defaults for Config zero values.
const (
	DefaultChunkSize     = 10
	DefaultChunkTimeout  = 30 * time.Second
	DefaultFallbackScore = -1.0
)

// Chunk outcomes.
const (
	outcomeOK      = "ok"
	outcomeFailed  = "failed"
	outcomeTimeout = "timeout"
)

// Config tunes chunking and the failure policy.
type Config struct {
	ChunkSize     int
	ChunkTimeout  time.Duration
	FallbackScore float64
}

// Outcome is the merged rerank pass.
type Outcome struct {
	// Results holds one entry per input candidate, in input order.
	Results      []result.Reranked
	Chunks       int
	FailedChunks int
	// Incomplete is set when the caller's context ended before every chunk reported.
	Incomplete bool
}

// Service reranks candidates.
type Service struct {
	scorer Scorer
	pool   Submitter
	cfg    Config
}

// New creates a rerank service.
func New(scorer Scorer, pool Submitter, cfg Config) *Service {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkTimeout <= 0 {
		cfg.ChunkTimeout = DefaultChunkTimeout
	}
	return &Service{scorer: scorer, pool: pool, cfg: cfg}
}

type chunkResult struct {
	scores []Score
	err    error
}

// Rerank scores every candidate. Chunks run concurrently on the pool; a chunk
// that fails or times out keeps its candidates with the fallback score and
// empty pros. When ctx ends first, unfinished chunks are treated the same way
// and Incomplete is set. It never returns fewer results than candidates.
func (s *Service) Rerank(ctx context.Context, query string, cands []result.Candidate) Outcome {
	if len(cands) == 0 {
		return Outcome{Results: []result.Reranked{}}
	}
	log := logger.FromContext(ctx)

	chunks := partition(cands, s.cfg.ChunkSize)
	slots := make([]chunkResult, len(chunks))
	done := make(chan int, len(chunks))

	for i, chunk := range chunks {
		go s.dispatch(ctx, query, i, chunk, slots, done)
	}

	reported := make([]bool, len(chunks))
	incomplete := false
wait:
	for range chunks {
		select {
		case i := <-done:
			reported[i] = true
		case <-ctx.Done():
			incomplete = true
			break wait
		}
	}

	out := Outcome{Chunks: len(chunks), Incomplete: incomplete}
	minScore, anyOK := math.Inf(1), false
	for i := range chunks {
		if !reported[i] {
			out.FailedChunks++
			metrics.RerankChunksTotal.WithLabelValues(outcomeTimeout).Inc()
			log.Warn("Rerank chunk unfinished at query deadline",
				zap.Int("chunk", i), zap.Int("size", len(chunks[i])))
			continue
		}
		if err := slots[i].err; err != nil {
			out.FailedChunks++
			outcome := outcomeFailed
			if errors.Is(err, context.DeadlineExceeded) {
				outcome = outcomeTimeout
			}
			metrics.RerankChunksTotal.WithLabelValues(outcome).Inc()
			log.Warn("Rerank chunk failed",
				zap.Int("chunk", i), zap.Int("size", len(chunks[i])), zap.Error(err))
			continue
		}
		metrics.RerankChunksTotal.WithLabelValues(outcomeOK).Inc()
		for _, sc := range slots[i].scores {
			anyOK = true
			minScore = math.Min(minScore, sc.Score)
		}
	}

	fallback := s.cfg.FallbackScore
	if anyOK && fallback >= minScore {
		fallback = minScore - 1
	}

	out.Results = make([]result.Reranked, 0, len(cands))
	for i, chunk := range chunks {
		ok := reported[i] && slots[i].err == nil
		for j, c := range chunk {
			if ok {
				sc := slots[i].scores[j]
				out.Results = append(out.Results, result.NewReranked(c, sc.Score, sc.Pros))
			} else {
				out.Results = append(out.Results, result.NewFallback(c, fallback))
			}
		}
	}
	return out
}

// dispatch submits one chunk and always reports it on done, even when the
// pool rejects it or the scorer panics.
func (s *Service) dispatch(
	ctx context.Context, query string, idx int, chunk []result.Candidate,
	slots []chunkResult, done chan<- int,
) {
	err := s.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				slots[idx] = chunkResult{err: fmt.Errorf("%w: panic: %v", domain.ErrChunkScoringFailed, r)}
				done <- idx
			}
		}()
		slots[idx] = s.score(ctx, query, chunk)
		done <- idx
	})
	if err != nil {
		slots[idx] = chunkResult{err: fmt.Errorf("%w: submit: %w", domain.ErrChunkScoringFailed, err)}
		done <- idx
	}
}

func (s *Service) score(ctx context.Context, query string, chunk []result.Candidate) chunkResult {
	if err := ctx.Err(); err != nil {
		return chunkResult{err: err}
	}
	cctx, cancel := context.WithTimeout(ctx, s.cfg.ChunkTimeout)
	defer cancel()

	scores, err := s.scorer.ScoreChunk(cctx, query, chunk)
	if err != nil {
		return chunkResult{err: fmt.Errorf("%w: %w", domain.ErrChunkScoringFailed, err)}
	}
	if len(scores) != len(chunk) {
		return chunkResult{err: fmt.Errorf("%w: got %d scores for %d candidates",
			domain.ErrChunkScoringFailed, len(scores), len(chunk))}
	}
	for i, sc := range scores {
		if math.IsNaN(sc.Score) || math.IsInf(sc.Score, 0) {
			return chunkResult{err: fmt.Errorf("%w: non-finite score for candidate %d",
				domain.ErrChunkScoringFailed, i)}
		}
	}
	return chunkResult{scores: scores}
}

// partition splits cands into contiguous chunks of at most size elements.
func partition(cands []result.Candidate, size int) [][]result.Candidate {
	n := (len(cands) + size - 1) / size
	chunks := make([][]result.Candidate, 0, n)
	for start := 0; start < len(cands); start += size {
		chunks = append(chunks, cands[start:min(start+size, len(cands))])
	}
	return chunks
}
