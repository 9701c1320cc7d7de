// Package rewrite expands ambiguous search queries before retrieval.
package rewrite

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/profdex/internal/domain/search/request"
	"github.com/kailas-cloud/profdex/internal/logger"
	"github.com/kailas-cloud/profdex/internal/metrics"
)

const systemPrompt = `You rewrite search queries for a database of professional profiles.
Expand abbreviations, add close synonyms for roles and skills, and fix typos.
Keep the intent and any location or seniority constraints. Do not invent requirements.
Respond with a JSON object: {"query": "<rewritten query>"}`

var errMalformed = errors.New("malformed rewrite output")

// Service rewrites queries. It never fails: any problem yields the raw query.
type Service struct {
	gen     Generator
	timeout time.Duration
}

// New creates a rewrite service. A zero timeout means the caller's deadline only.
func New(gen Generator, timeout time.Duration) *Service {
	return &Service{gen: gen, timeout: timeout}
}

// Rewrite returns the rewritten query and true, or raw and false when the
// generator is unavailable or its output is unusable.
func (s *Service) Rewrite(ctx context.Context, raw string) (string, bool) {
	if s == nil || s.gen == nil {
		return raw, false
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	rewritten, err := s.rewrite(ctx, raw)
	if err != nil {
		metrics.RewriteTotal.WithLabelValues("fallback").Inc()
		logger.FromContext(ctx).Warn("Query rewrite failed, using raw query", zap.Error(err))
		return raw, false
	}
	metrics.RewriteTotal.WithLabelValues("rewritten").Inc()
	return rewritten, true
}

func (s *Service) rewrite(ctx context.Context, raw string) (string, error) {
	out, err := s.gen.CompleteJSON(ctx, systemPrompt, raw)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		return "", errors.Join(errMalformed, err)
	}
	q := strings.TrimSpace(parsed.Query)
	if q == "" || len(q) > request.MaxQueryLength {
		return "", errMalformed
	}
	return q, nil
}
