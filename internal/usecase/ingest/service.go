// Package ingest canonicalizes, embeds and indexes profile records.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/profdex/internal/canon"
	"github.com/kailas-cloud/profdex/internal/domain"
	dombatch "github.com/kailas-cloud/profdex/internal/domain/batch"
	"github.com/kailas-cloud/profdex/internal/domain/record"
	"github.com/kailas-cloud/profdex/internal/logger"
	"github.com/kailas-cloud/profdex/internal/repository/index"
)

// Defaults for Config zero values.
const (
	DefaultMaxBatchSize   = 500
	DefaultEmbedBatchSize = 64
)

// Config bounds batch sizes.
type Config struct {
	MaxBatchSize   int
	EmbedBatchSize int
}

// Service ingests record batches with per-record outcomes.
type Service struct {
	embed Embedder
	index Index
	cfg   Config
	newID func() string
}

// New creates an ingest service.
func New(embed Embedder, idx Index, cfg Config) *Service {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = DefaultEmbedBatchSize
	}
	return &Service{embed: embed, index: idx, cfg: cfg, newID: uuid.NewString}
}

type pending struct {
	pos     int
	rec     record.Record
	content string
	vector  []float32
}

// Ingest indexes records into ns. A record that cannot be embedded or stored
// is reported in the summary and does not affect the rest of the batch.
// Only a missing namespace or an oversized batch fail the call.
func (s *Service) Ingest(ctx context.Context, ns domain.Namespace, records []record.Record) (dombatch.Summary, error) {
	if ns.IsZero() {
		return dombatch.Summary{}, domain.ErrNamespaceRequired
	}
	if len(records) > s.cfg.MaxBatchSize {
		return dombatch.Summary{}, fmt.Errorf("batch of %d records exceeds %d: %w",
			len(records), s.cfg.MaxBatchSize, domain.ErrInvalidRequest)
	}

	results := make([]dombatch.Result, len(records))
	valid := make([]pending, 0, len(records))
	seen := make(map[string]bool, len(records))
	for i, r := range records {
		switch content := canon.Record(r); {
		case r.Namespace() != ns:
			results[i] = dombatch.NewError(r.ID(), dombatch.StatusInvalid,
				fmt.Errorf("record namespace %q does not match %q: %w", r.Namespace(), ns, domain.ErrInvalidRequest))
		case seen[r.ID()]:
			results[i] = dombatch.NewError(r.ID(), dombatch.StatusInvalid,
				fmt.Errorf("duplicate record id %q in batch: %w", r.ID(), domain.ErrInvalidRequest))
		case content == "":
			results[i] = dombatch.NewError(r.ID(), dombatch.StatusInvalid,
				fmt.Errorf("record %q has no text: %w", r.ID(), domain.ErrInvalidRequest))
		default:
			seen[r.ID()] = true
			valid = append(valid, pending{pos: i, rec: r, content: content})
		}
	}

	ctx, usage := domain.NewContextWithUsage(ctx)
	for start := 0; start < len(valid); start += s.cfg.EmbedBatchSize {
		sub := valid[start:min(start+s.cfg.EmbedBatchSize, len(valid))]
		embedded := s.embedBatch(ctx, sub, results)
		s.upsert(ctx, ns, embedded, results)
	}

	summary := dombatch.Summarize(s.newID(), results)
	summary.EmbeddingTokens = usage.TotalTokens()
	logger.FromContext(ctx).Info("Ingest batch completed",
		zap.String("batch_id", summary.BatchID),
		zap.String("namespace", ns.String()),
		zap.Int("total", summary.Total),
		zap.Int("indexed", summary.Indexed),
		zap.Int("embedding_failed", summary.EmbeddingFailed),
		zap.Int("upsert_failed", summary.UpsertFailed),
		zap.Int("invalid", summary.Invalid),
		zap.Int("embedding_tokens", summary.EmbeddingTokens))
	return summary, nil
}

// embedBatch embeds a sub-batch in one call; when that fails, each record is
// embedded on its own so one bad record only un-indexes itself.
func (s *Service) embedBatch(ctx context.Context, sub []pending, results []dombatch.Result) []pending {
	texts := make([]string, len(sub))
	for i, p := range sub {
		texts[i] = p.content
	}

	res, err := s.embed.BatchEmbed(ctx, texts)
	if err == nil && len(res.Embeddings) == len(sub) {
		for i := range sub {
			sub[i].vector = res.Embeddings[i]
		}
		return sub
	}
	if err == nil {
		err = fmt.Errorf("got %d embeddings for %d texts: %w", len(res.Embeddings), len(sub), domain.ErrEmbeddingUnavailable)
	}
	logger.FromContext(ctx).Warn("Batch embedding failed, embedding records one by one",
		zap.Int("size", len(sub)), zap.Error(err))

	out := make([]pending, 0, len(sub))
	for _, p := range sub {
		one, err := s.embed.Embed(ctx, p.content)
		if err != nil {
			results[p.pos] = dombatch.NewError(p.rec.ID(), dombatch.StatusEmbeddingFailed, fmt.Errorf("embed: %w", err))
			continue
		}
		p.vector = one.Embedding
		out = append(out, p)
	}
	return out
}

// upsert stores a sub-batch in one pipeline, retrying record by record on failure.
func (s *Service) upsert(ctx context.Context, ns domain.Namespace, sub []pending, results []dombatch.Result) {
	if len(sub) == 0 {
		return
	}
	items := make([]index.Item, len(sub))
	for i, p := range sub {
		items[i] = index.Item{Record: p.rec, Content: p.content, Vector: p.vector}
	}

	err := s.index.UpsertBatch(ctx, ns, items)
	if err == nil {
		for _, p := range sub {
			results[p.pos] = dombatch.NewOK(p.rec.ID())
		}
		return
	}
	logger.FromContext(ctx).Warn("Batch upsert failed, storing records one by one",
		zap.Int("size", len(sub)), zap.Error(err))

	for i, p := range sub {
		if err := s.index.UpsertBatch(ctx, ns, items[i:i+1]); err != nil {
			status := dombatch.StatusUpsertFailed
			if errors.Is(err, domain.ErrInvalidRequest) {
				status = dombatch.StatusInvalid
			}
			results[p.pos] = dombatch.NewError(p.rec.ID(), status, fmt.Errorf("upsert: %w", err))
			continue
		}
		results[p.pos] = dombatch.NewOK(p.rec.ID())
	}
}
