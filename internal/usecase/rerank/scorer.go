package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kailas-cloud/profdex/internal/domain"
	"github.com/kailas-cloud/profdex/internal/domain/search/result"
)

const (
	maxFieldRunes = 1500
	maxPros       = 5
)

const scorerPrompt = `You rank professional profiles for a recruiter's search query.
For every candidate, judge how well the profile matches the query.
Return a JSON object {"results": [{"index": <candidate index>, "score": <0.0 to 1.0>, "pros": ["<short reason>", ...]}]}
with exactly one entry per candidate. Pros are at most 5 short phrases grounded in the profile; use [] if none apply.`

type scorerCandidate struct {
	Index      int    `json:"index"`
	Name       string `json:"name,omitempty"`
	Headline   string `json:"headline,omitempty"`
	Experience string `json:"experience,omitempty"`
	Skills     string `json:"skills,omitempty"`
	Location   string `json:"location,omitempty"`
}

type scorerInput struct {
	Query      string            `json:"query"`
	Candidates []scorerCandidate `json:"candidates"`
}

type scorerOutput struct {
	Results []struct {
		Index *int     `json:"index"`
		Score *float64 `json:"score"`
		Pros  []string `json:"pros"`
	} `json:"results"`
}

// LLMScorer scores a chunk with one generation call.
type LLMScorer struct {
	gen Generator
}

// NewLLMScorer creates a generation-backed scorer.
func NewLLMScorer(gen Generator) *LLMScorer {
	return &LLMScorer{gen: gen}
}

// ScoreChunk implements Scorer. Scores are clamped to [0, 1]; output that
// misses, repeats or invents a candidate index fails the whole chunk.
func (s *LLMScorer) ScoreChunk(ctx context.Context, query string, chunk []result.Candidate) ([]Score, error) {
	in := scorerInput{Query: query, Candidates: make([]scorerCandidate, len(chunk))}
	for i, c := range chunk {
		f := c.Record().Fields()
		in.Candidates[i] = scorerCandidate{
			Index:      i,
			Name:       truncate(f.Name),
			Headline:   truncate(f.Headline),
			Experience: truncate(f.Experience),
			Skills:     truncate(f.Skills),
			Location:   truncate(f.Location),
		}
	}
	user, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal scorer input: %w", err)
	}

	raw, err := s.gen.CompleteJSON(ctx, scorerPrompt, string(user))
	if err != nil {
		return nil, err
	}
	return parseScores(raw, len(chunk))
}

func parseScores(raw string, n int) ([]Score, error) {
	var out scorerOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("%w: decode scorer output: %w", domain.ErrChunkScoringFailed, err)
	}
	if len(out.Results) != n {
		return nil, fmt.Errorf("%w: expected %d results, got %d", domain.ErrChunkScoringFailed, n, len(out.Results))
	}

	scores := make([]Score, n)
	seen := make([]bool, n)
	for _, r := range out.Results {
		if r.Index == nil || r.Score == nil {
			return nil, fmt.Errorf("%w: result without index or score", domain.ErrChunkScoringFailed)
		}
		i := *r.Index
		if i < 0 || i >= n || seen[i] {
			return nil, fmt.Errorf("%w: bad candidate index %d", domain.ErrChunkScoringFailed, i)
		}
		seen[i] = true
		scores[i] = Score{Score: clamp(*r.Score), Pros: cleanPros(r.Pros)}
	}
	return scores, nil
}

func clamp(v float64) float64 {
	return max(0, min(1, v))
}

func cleanPros(pros []string) []string {
	out := make([]string, 0, min(len(pros), maxPros))
	for _, p := range pros {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
		if len(out) == maxPros {
			break
		}
	}
	return out
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxFieldRunes {
		return s
	}
	return string(r[:maxFieldRunes])
}
