// Package retrieve fetches rerank candidates from the vector index, falling
// back to substring matching over stored records.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/profdex/internal/canon"
	"github.com/kailas-cloud/profdex/internal/domain"
	"github.com/kailas-cloud/profdex/internal/domain/search/filter"
	"github.com/kailas-cloud/profdex/internal/domain/search/result"
	"github.com/kailas-cloud/profdex/internal/logger"
	"github.com/kailas-cloud/profdex/internal/metrics"
)

// Defaults for Config zero values.
const (
	DefaultFallbackScanLimit  = 2000
	DefaultFallbackSimilarity = -1.0
)

// Fallback reasons.
const (
	ReasonEmpty       = "empty"
	ReasonUnavailable = "unavailable"
)

// Config tunes the fallback path.
type Config struct {
	// FallbackScanLimit caps records read per fallback scan.
	FallbackScanLimit int
	// FallbackSimilarity is the best similarity a fallback match can get.
	// It must stay below the lowest similarity the index reports (0).
	FallbackSimilarity float64
}

// Outcome is the candidate list and the path that produced it.
type Outcome struct {
	Candidates     []result.Candidate
	Source         result.Source
	FallbackReason string
	Tokens         int
}

// Service retrieves candidates for one query.
type Service struct {
	embed   Embedder
	index   Index
	records RecordScanner
	cfg     Config
}

// New creates a retrieve service.
func New(embed Embedder, index Index, records RecordScanner, cfg Config) *Service {
	if cfg.FallbackScanLimit <= 0 {
		cfg.FallbackScanLimit = DefaultFallbackScanLimit
	}
	if cfg.FallbackSimilarity >= 0 {
		cfg.FallbackSimilarity = DefaultFallbackSimilarity
	}
	return &Service{embed: embed, index: index, records: records, cfg: cfg}
}

// Retrieve embeds query and returns up to topK candidates of ns.
// Only a missing namespace or a failed query embedding is an error.
func (s *Service) Retrieve(
	ctx context.Context, ns domain.Namespace, query string, topK int, filters filter.Expression,
) (Outcome, error) {
	if ns.IsZero() {
		return Outcome{}, domain.ErrNamespaceRequired
	}
	log := logger.FromContext(ctx)

	emb, err := s.embed.Embed(ctx, query)
	if err != nil {
		return Outcome{}, fmt.Errorf("embed query: %w", err)
	}

	cands, err := s.index.Query(ctx, ns, emb.Embedding, topK, filters)
	reason := ""
	switch {
	case err == nil && len(cands) > 0:
		return Outcome{Candidates: cands, Source: result.SourceVector, Tokens: emb.TotalTokens}, nil
	case err == nil:
		reason = ReasonEmpty
	case errors.Is(err, domain.ErrIndexUnavailable):
		reason = ReasonUnavailable
		log.Warn("Vector index unavailable, using fallback", zap.String("namespace", ns.String()), zap.Error(err))
	default:
		return Outcome{}, fmt.Errorf("query index: %w", err)
	}

	metrics.SearchFallbackTotal.WithLabelValues(reason).Inc()
	fallback, err := s.fallback(ctx, ns, query, topK, filters)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{}, ctxErr
		}
		log.Warn("Fallback scan failed", zap.String("namespace", ns.String()), zap.Error(err))
		return Outcome{Source: result.SourceNone, FallbackReason: reason, Tokens: emb.TotalTokens}, nil
	}

	log.Info("Served candidates from fallback",
		zap.String("namespace", ns.String()),
		zap.String("reason", reason),
		zap.Int("candidates", len(fallback)))

	src := result.SourceFallback
	if len(fallback) == 0 {
		src = result.SourceNone
	}
	return Outcome{Candidates: fallback, Source: src, FallbackReason: reason, Tokens: emb.TotalTokens}, nil
}

// fallback scans at most FallbackScanLimit records of ns and keeps those whose
// canonical text contains the query or some of its terms. Similarity is
// FallbackSimilarity for a full match and drops by the unmatched term fraction.
func (s *Service) fallback(
	ctx context.Context, ns domain.Namespace, query string, topK int, filters filter.Expression,
) ([]result.Candidate, error) {
	phrase := canon.Field(query)
	terms := uniqueTerms(phrase)
	if len(terms) == 0 || topK <= 0 {
		return nil, nil
	}

	recs, err := s.records.ScanNamespace(ctx, ns, s.cfg.FallbackScanLimit)
	if err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}

	var out []result.Candidate
	for _, r := range recs {
		if !filters.IsEmpty() && !filters.Matches(r.Tags(), r.Numerics()) {
			continue
		}
		matched := matchCount(canon.Record(r), phrase, terms)
		if matched == 0 {
			continue
		}
		sim := s.cfg.FallbackSimilarity - (1 - float64(matched)/float64(len(terms)))
		out = append(out, result.NewCandidate(r, sim, result.SourceFallback))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity() != out[j].Similarity() {
			return out[i].Similarity() > out[j].Similarity()
		}
		return out[i].ID() < out[j].ID()
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func matchCount(text, phrase string, terms []string) int {
	if strings.Contains(text, phrase) {
		return len(terms)
	}
	n := 0
	for _, t := range terms {
		if strings.Contains(text, t) {
			n++
		}
	}
	return n
}

func uniqueTerms(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range strings.Fields(s) {
		t = strings.Trim(t, ".,;:!?()[]{}\"'|")
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
