// Package index is the namespace-partitioned vector index client.
package index

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/profdex/internal/db"
	"github.com/kailas-cloud/profdex/internal/domain"
	domrec "github.com/kailas-cloud/profdex/internal/domain/record"
	"github.com/kailas-cloud/profdex/internal/domain/search/filter"
	"github.com/kailas-cloud/profdex/internal/domain/search/result"
	recrepo "github.com/kailas-cloud/profdex/internal/repository/record"
)

const (
	defaultHNSWM           = 16
	defaultHNSWEFConstruct = 200

	// purgeBatch bounds keys collected per SCAN when clearing data.
	purgeBatch = 1000
)

// store is the consumer interface for the vector index (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string, limit int) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Config describes the index schema beyond dimension and metric.
type Config struct {
	KeyPrefix     string
	Name          string
	Host          string
	Metric        domain.Metric // distance conversion for Query results
	HNSWM         int
	HNSWEF        int
	TagFields     []string
	NumericFields []string
}

// Item is one record prepared for upsert.
type Item struct {
	Record  domrec.Record
	Content string
	Vector  []float32
}

// Repo implements the vector index client on top of FT hashes.
type Repo struct {
	store  store
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	tagFields     map[string]bool
	numericFields map[string]bool
}

// New creates a vector index client.
func New(s store, cfg Config, logger *zap.Logger) *Repo {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HNSWM <= 0 {
		cfg.HNSWM = defaultHNSWM
	}
	if cfg.HNSWEF <= 0 {
		cfg.HNSWEF = defaultHNSWEFConstruct
	}
	if cfg.Metric == "" {
		cfg.Metric = domain.MetricCosine
	}
	r := &Repo{
		store:         s,
		cfg:           cfg,
		logger:        logger,
		now:           time.Now,
		tagFields:     map[string]bool{},
		numericFields: map[string]bool{},
	}
	for _, f := range cfg.TagFields {
		r.tagFields[f] = true
	}
	for _, f := range cfg.NumericFields {
		r.numericFields[f] = true
	}
	return r
}

func (r *Repo) indexName() string { return r.cfg.KeyPrefix + r.cfg.Name + ":idx" }
func (r *Repo) metaKey() string   { return r.cfg.KeyPrefix + "index:" + r.cfg.Name }

// EnsureIndex creates the index if absent. Calling it again with the same
// configuration is a no-op; a different dimension or metric is a conflict.
// Returns whether the FT index was created by this call.
func (r *Repo) EnsureIndex(ctx context.Context, spec domain.IndexSpec) (domain.IndexInfo, bool, error) {
	metric, err := domain.ParseMetric(string(spec.Metric))
	if err != nil {
		return domain.IndexInfo{}, false, err
	}
	spec.Metric = metric
	if err := spec.Validate(); err != nil {
		return domain.IndexInfo{}, false, err
	}

	meta, err := r.store.HGetAll(ctx, r.metaKey())
	if err != nil && !errors.Is(err, db.ErrKeyNotFound) {
		return domain.IndexInfo{}, false, fmt.Errorf("read index meta: %w", err)
	}
	exists, err := r.store.IndexExists(ctx, r.indexName())
	if err != nil {
		return domain.IndexInfo{}, false, fmt.Errorf("check index: %w", err)
	}

	if len(meta) > 0 {
		existing, err := metaToSpec(meta)
		if err != nil {
			return domain.IndexInfo{}, false, fmt.Errorf("stored index meta: %w", err)
		}
		if existing != spec {
			return r.info(existing, exists), false, domain.NewIndexConfigConflict(r.cfg.Name, existing, spec)
		}
		if exists {
			return r.info(existing, true), false, nil
		}
		// meta survived a lost FT index (e.g. a server restart without persistence)
		if err := r.createFT(ctx, spec); err != nil {
			return domain.IndexInfo{}, false, err
		}
		return r.info(spec, true), true, nil
	}

	if exists {
		// an FT index we did not describe: its configuration cannot be verified
		return domain.IndexInfo{}, false, domain.NewIndexConfigConflict(r.cfg.Name, domain.IndexSpec{}, spec)
	}

	if err := r.store.HSet(ctx, r.metaKey(), specToMeta(spec, r.now())); err != nil {
		return domain.IndexInfo{}, false, fmt.Errorf("store index meta: %w", err)
	}
	if err := r.createFT(ctx, spec); err != nil {
		if delErr := r.store.Del(ctx, r.metaKey()); delErr != nil {
			r.logger.Error("Failed to rollback index meta",
				zap.String("index", r.cfg.Name), zap.Error(delErr))
		}
		return domain.IndexInfo{}, false, err
	}

	r.logger.Info("Index created",
		zap.String("index", r.cfg.Name),
		zap.Int("dimension", spec.Dimension),
		zap.String("metric", string(spec.Metric)))
	return r.info(spec, true), true, nil
}

func (r *Repo) createFT(ctx context.Context, spec domain.IndexSpec) error {
	def, err := r.definition(spec)
	if err != nil {
		return fmt.Errorf("build index definition: %w", err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return domain.NewIndexConfigConflict(r.cfg.Name, domain.IndexSpec{}, spec)
		}
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

func (r *Repo) definition(spec domain.IndexSpec) (*db.IndexDefinition, error) {
	b := db.NewIndex(r.indexName(), recrepo.KeyPrefix(r.cfg.KeyPrefix)).ExactTag(db.NamespaceField)
	for _, f := range r.cfg.TagFields {
		b.Tag(f)
	}
	for _, f := range r.cfg.NumericFields {
		b.Numeric(f)
	}
	return b.HNSW(db.VectorField, spec.Dimension, db.DistanceMetric(spec.Metric), r.cfg.HNSWM, r.cfg.HNSWEF).Build()
}

// Describe reports the configured index and whether its FT index is live.
func (r *Repo) Describe(ctx context.Context) (domain.IndexInfo, error) {
	meta, err := r.store.HGetAll(ctx, r.metaKey())
	if err != nil && !errors.Is(err, db.ErrKeyNotFound) {
		return domain.IndexInfo{}, fmt.Errorf("read index meta: %w", err)
	}
	exists, err := r.store.IndexExists(ctx, r.indexName())
	if err != nil {
		return domain.IndexInfo{}, fmt.Errorf("check index: %w", err)
	}
	if len(meta) == 0 {
		if exists {
			return domain.IndexInfo{Name: r.cfg.Name, Status: domain.IndexStatusReady, Host: r.cfg.Host}, nil
		}
		return domain.IndexInfo{}, domain.ErrIndexNotFound
	}
	spec, err := metaToSpec(meta)
	if err != nil {
		return domain.IndexInfo{}, fmt.Errorf("stored index meta: %w", err)
	}
	return r.info(spec, exists), nil
}

// DeleteIndex drops the FT index, its metadata and every stored record.
func (r *Repo) DeleteIndex(ctx context.Context) error {
	meta, err := r.store.HGetAll(ctx, r.metaKey())
	if err != nil && !errors.Is(err, db.ErrKeyNotFound) {
		return fmt.Errorf("read index meta: %w", err)
	}

	dropErr := r.store.DropIndex(ctx, r.indexName())
	switch {
	case errors.Is(dropErr, db.ErrIndexNotFound):
		if len(meta) == 0 {
			return domain.ErrIndexNotFound
		}
	case dropErr != nil:
		return fmt.Errorf("drop index: %w", dropErr)
	}

	if err := r.store.Del(ctx, r.metaKey()); err != nil {
		return fmt.Errorf("delete index meta: %w", err)
	}
	n, err := r.purge(ctx, recrepo.KeyPrefix(r.cfg.KeyPrefix)+"*")
	if err != nil {
		return fmt.Errorf("purge records: %w", err)
	}
	r.logger.Info("Index deleted", zap.String("index", r.cfg.Name), zap.Int("records", n))
	return nil
}

// ClearNamespace removes every record of one namespace. Returns the number removed.
func (r *Repo) ClearNamespace(ctx context.Context, ns domain.Namespace) (int, error) {
	if ns.IsZero() {
		return 0, domain.ErrNamespaceRequired
	}
	n, err := r.purge(ctx, recrepo.NamespacePattern(r.cfg.KeyPrefix, ns))
	if err != nil {
		return n, fmt.Errorf("clear namespace %s: %w", ns, err)
	}
	r.logger.Info("Namespace cleared", zap.String("namespace", ns.String()), zap.Int("records", n))
	return n, nil
}

func (r *Repo) purge(ctx context.Context, pattern string) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		keys, err := r.store.Scan(ctx, pattern, purgeBatch)
		if err != nil {
			return total, err
		}
		if len(keys) == 0 {
			return total, nil
		}
		if err := r.store.Del(ctx, keys...); err != nil {
			return total, err
		}
		total += len(keys)
	}
}

// Upsert writes one record. ns must equal the record namespace.
func (r *Repo) Upsert(ctx context.Context, ns domain.Namespace, item Item) error {
	return r.UpsertBatch(ctx, ns, []Item{item})
}

// UpsertBatch writes records in one pipelined round-trip.
func (r *Repo) UpsertBatch(ctx context.Context, ns domain.Namespace, items []Item) error {
	if ns.IsZero() {
		return domain.ErrNamespaceRequired
	}
	if len(items) == 0 {
		return nil
	}

	batch := make([]db.HashSetItem, 0, len(items))
	for _, it := range items {
		if it.Record.Namespace() != ns {
			return fmt.Errorf("record %s belongs to namespace %q, not %q: %w",
				it.Record.ID(), it.Record.Namespace(), ns, domain.ErrInvalidRequest)
		}
		if len(it.Vector) == 0 {
			return fmt.Errorf("record %s has no vector: %w", it.Record.ID(), domain.ErrInvalidRequest)
		}
		fields, err := recrepo.ToHash(it.Record, it.Content, it.Vector)
		if err != nil {
			return err
		}
		batch = append(batch, db.HashSetItem{
			Key:    recrepo.Key(r.cfg.KeyPrefix, ns, it.Record.ID()),
			Fields: fields,
		})
	}

	if err := r.store.HSetMulti(ctx, batch); err != nil {
		return fmt.Errorf("upsert %d records: %w", len(batch), err)
	}
	return nil
}

// Query returns up to topK nearest records of ns, most similar first.
// A missing namespace yields no candidates; a missing or failing index
// is reported as domain.ErrIndexUnavailable.
func (r *Repo) Query(
	ctx context.Context,
	ns domain.Namespace,
	vector []float32,
	topK int,
	filters filter.Expression,
) ([]result.Candidate, error) {
	if ns.IsZero() {
		return nil, domain.ErrNamespaceRequired
	}
	if topK <= 0 {
		return nil, nil
	}
	if err := r.validateFilters(filters); err != nil {
		return nil, err
	}

	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName(),
		Namespace:    ns.String(),
		Filters:      filters,
		Vector:       vector,
		K:            topK,
		ReturnFields: recrepo.ReturnFields,
		Metric:       db.DistanceMetric(r.cfg.Metric),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("knn search: %w: %w", domain.ErrIndexUnavailable, err)
	}

	candidates := make([]result.Candidate, 0, len(res.Entries))
	for _, e := range res.Entries {
		rec, err := recrepo.FromHash(e.Fields)
		if err != nil {
			r.logger.Warn("Skipping malformed index entry", zap.String("key", e.Key), zap.Error(err))
			continue
		}
		if rec.Namespace() != ns {
			r.logger.Error("Index returned record from foreign namespace",
				zap.String("namespace", ns.String()), zap.String("key", e.Key))
			continue
		}
		candidates = append(candidates, result.NewCandidate(rec, e.Score, result.SourceVector))
	}
	return candidates, nil
}

func (r *Repo) validateFilters(e filter.Expression) error {
	for _, group := range [][]filter.Condition{e.Must(), e.Should(), e.MustNot()} {
		for _, c := range group {
			switch {
			case c.IsMatch() && !r.tagFields[c.Key()]:
				return fmt.Errorf("filter key %q is not a tag field (filterable: %s): %w",
					c.Key(), strings.Join(r.FilterFields(), ", "), domain.ErrInvalidRequest)
			case c.IsRange() && !r.numericFields[c.Key()]:
				return fmt.Errorf("range filter key %q is not a numeric field (filterable: %s): %w",
					c.Key(), strings.Join(r.FilterFields(), ", "), domain.ErrInvalidRequest)
			}
		}
	}
	return nil
}

// FilterFields lists the indexed filter fields, sorted.
func (r *Repo) FilterFields() []string {
	out := make([]string, 0, len(r.tagFields)+len(r.numericFields))
	for f := range r.tagFields {
		out = append(out, f)
	}
	for f := range r.numericFields {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

func (r *Repo) info(spec domain.IndexSpec, live bool) domain.IndexInfo {
	status := domain.IndexStatusMissing
	if live {
		status = domain.IndexStatusReady
	}
	return domain.IndexInfo{
		Name:      r.cfg.Name,
		Dimension: spec.Dimension,
		Metric:    spec.Metric,
		Status:    status,
		Host:      r.cfg.Host,
	}
}
