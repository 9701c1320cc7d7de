package search

import (
	"sort"

	"github.com/kailas-cloud/profdex/internal/domain/search/result"
)

// Assemble deduplicates by record ID, keeping the higher reranker score,
// orders by (score desc, similarity desc, record ID asc) and returns the
// requested page together with the deduplicated total. It is a pure function
// of its input.
func Assemble(results []result.Reranked, page, pageSize int) ([]result.Reranked, int) {
	best := make(map[string]int, len(results))
	merged := make([]result.Reranked, 0, len(results))
	for _, r := range results {
		i, ok := best[r.ID()]
		if !ok {
			best[r.ID()] = len(merged)
			merged = append(merged, r)
			continue
		}
		if outranks(r, merged[i]) {
			merged[i] = r
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		return outranks(merged[i], merged[j])
	})

	total := len(merged)
	if page < 1 || pageSize < 1 {
		return []result.Reranked{}, total
	}
	start := (page - 1) * pageSize
	if start >= total {
		return []result.Reranked{}, total
	}
	return merged[start:min(start+pageSize, total)], total
}

// outranks reports whether a sorts before b.
func outranks(a, b result.Reranked) bool {
	if a.Score() != b.Score() {
		return a.Score() > b.Score()
	}
	if a.Similarity() != b.Similarity() {
		return a.Similarity() > b.Similarity()
	}
	return a.ID() < b.ID()
}
