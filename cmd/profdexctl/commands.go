package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/profdex/internal/app"
	"github.com/kailas-cloud/profdex/internal/config"
	"github.com/kailas-cloud/profdex/internal/domain"
	dombatch "github.com/kailas-cloud/profdex/internal/domain/batch"
	"github.com/kailas-cloud/profdex/internal/domain/record"
	"github.com/kailas-cloud/profdex/internal/domain/search/filter"
	"github.com/kailas-cloud/profdex/internal/domain/search/request"
	logpkg "github.com/kailas-cloud/profdex/internal/logger"
)

const maxLineBytes = 4 << 20

// withApp loads config, wires the services and runs fn under a signal-aware context.
func withApp(c *cli.Context, fn func(ctx context.Context, a *app.App, cfg *config.Config) error) error {
	env := c.String("env")
	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, logpkg.Options{
		Level:     c.String("log-level"),
		Format:    cfg.Logging.Format,
		Component: "profdexctl",
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logpkg.ContextWithLogger(ctx, logger)

	a, err := app.New(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(time.Duration(cfg.HTTP.ShutdownSec) * time.Second)

	return fn(ctx, a, &cfg)
}

func indexEnsureCommand(c *cli.Context) error {
	return withApp(c, func(ctx context.Context, a *app.App, _ *config.Config) error {
		spec := a.IndexSpec
		if d := c.Int("dimension"); d != 0 {
			spec.Dimension = d
		}
		if m := c.String("metric"); m != "" {
			metric, err := domain.ParseMetric(m)
			if err != nil {
				return err
			}
			spec.Metric = metric
		}
		res, err := a.Admin.EnsureIndex(ctx, spec)
		if err != nil {
			_ = printJSON(c.App.Writer, res)
			return fmt.Errorf("ensure index: %w", err)
		}
		return printJSON(c.App.Writer, res)
	})
}

func indexDescribeCommand(c *cli.Context) error {
	return withApp(c, func(ctx context.Context, a *app.App, _ *config.Config) error {
		res, err := a.Admin.DescribeIndex(ctx)
		if err != nil {
			return fmt.Errorf("describe index: %w", err)
		}
		return printJSON(c.App.Writer, res)
	})
}

func indexDeleteCommand(c *cli.Context) error {
	if !c.Bool("yes") {
		return errors.New("refusing to delete the index and all records without --yes")
	}
	return withApp(c, func(ctx context.Context, a *app.App, _ *config.Config) error {
		res, err := a.Admin.DeleteIndex(ctx)
		if err != nil {
			return fmt.Errorf("delete index: %w", err)
		}
		return printJSON(c.App.Writer, res)
	})
}

func namespaceClearCommand(c *cli.Context) error {
	ns, err := domain.NewNamespace(c.String("namespace"))
	if err != nil {
		return err
	}
	return withApp(c, func(ctx context.Context, a *app.App, _ *config.Config) error {
		res, err := a.Admin.ClearNamespace(ctx, ns)
		if err != nil {
			return fmt.Errorf("clear namespace: %w", err)
		}
		return printJSON(c.App.Writer, res)
	})
}

func ingestCommand(c *cli.Context) error {
	ns, err := domain.NewNamespace(c.String("namespace"))
	if err != nil {
		return err
	}

	in, closeIn, err := openInput(c.String("file"))
	if err != nil {
		return err
	}
	defer closeIn()

	records, err := readRecords(in, ns)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return errors.New("no records in input")
	}

	return withApp(c, func(ctx context.Context, a *app.App, cfg *config.Config) error {
		batchSize := c.Int("batch-size")
		if batchSize <= 0 || batchSize > cfg.Ingest.MaxBatchSize {
			batchSize = cfg.Ingest.MaxBatchSize
		}

		log := logpkg.FromContext(ctx)
		total := dombatch.Summary{}
		for start := 0; start < len(records); start += batchSize {
			end := min(start+batchSize, len(records))
			summary, err := a.Ingest.Ingest(ctx, ns, records[start:end])
			if err != nil {
				return fmt.Errorf("ingest records %d-%d: %w", start, end-1, err)
			}
			log.Info("Batch ingested",
				zap.String("batch_id", summary.BatchID),
				zap.Int("indexed", summary.Indexed),
				zap.Int("total", summary.Total),
			)
			for _, it := range summary.Items {
				if it.Status() != dombatch.StatusOK {
					fmt.Fprintf(c.App.ErrWriter, "%s\t%s\t%v\n", it.ID(), it.Status(), it.Err())
				}
			}
			total = addSummary(total, summary)
		}
		return printJSON(c.App.Writer, total)
	})
}

func searchCommand(c *cli.Context) error {
	ns, err := domain.NewNamespace(c.String("namespace"))
	if err != nil {
		return err
	}
	filters, err := parseFilters(c.StringSlice("filter"))
	if err != nil {
		return err
	}

	return withApp(c, func(ctx context.Context, a *app.App, cfg *config.Config) error {
		pageSize := c.Int("page-size")
		if pageSize == 0 {
			pageSize = cfg.Search.DefaultPageSize
		}
		rewrite := cfg.Search.RewriteDefault
		if c.IsSet("rewrite") {
			rewrite = c.Bool("rewrite")
		}

		req, err := request.New(ns, c.String("query"), filters, c.Int("page"), pageSize, rewrite)
		if err != nil {
			return err
		}
		resp, err := a.Search.Search(ctx, &req)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		w := c.App.Writer
		fmt.Fprintf(w, "source=%s total=%d page=%d degraded=%t failed_chunks=%d\n",
			resp.Source, resp.Total, resp.Page, resp.Degraded, resp.FailedChunks)
		if resp.RewrittenQuery != "" {
			fmt.Fprintf(w, "rewritten: %s\n", resp.RewrittenQuery)
		}
		for i, r := range resp.Results {
			f := r.Record().Fields()
			fmt.Fprintf(w, "%3d. %-24s score=%.3f sim=%.3f  %s | %s\n",
				req.Offset()+i+1, r.ID(), r.Score(), r.Similarity(), f.Name, f.Headline)
			if len(r.Pros()) > 0 {
				fmt.Fprintf(w, "     + %s\n", strings.Join(r.Pros(), "; "))
			}
		}
		return nil
	})
}

// recordLine is one JSONL input line.
type recordLine struct {
	RecordID   string         `json:"record_id"`
	Namespace  string         `json:"namespace"`
	Name       string         `json:"name"`
	Headline   string         `json:"headline"`
	Experience string         `json:"experience"`
	Skills     string         `json:"skills"`
	Location   string         `json:"location"`
	Attributes map[string]any `json:"attributes"`
}

// readRecords parses JSONL profile records. Lines without a namespace inherit ns.
func readRecords(r io.Reader, ns domain.Namespace) ([]record.Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var out []record.Record
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var l recordLine
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		recNS := ns
		if l.Namespace != "" {
			other, err := domain.NewNamespace(l.Namespace)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			recNS = other
		}
		rec, err := record.New(l.RecordID, recNS, record.Fields{
			Name:       l.Name,
			Headline:   l.Headline,
			Experience: l.Experience,
			Skills:     l.Skills,
			Location:   l.Location,
		}, l.Attributes)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return out, nil
}

// parseFilters turns key=value, key>=N, key<=N, key>N and key<N into a filter expression.
func parseFilters(specs []string) (filter.Expression, error) {
	m := make(map[string]any, len(specs))
	for _, s := range specs {
		key, op, val, ok := splitFilter(s)
		if !ok {
			return filter.Expression{}, fmt.Errorf("filter %q: expected key=value or key>=number", s)
		}
		if op == "=" {
			m[key] = val
			continue
		}
		n, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return filter.Expression{}, fmt.Errorf("filter %q: %w", s, err)
		}
		bounds, _ := m[key].(map[string]any)
		if bounds == nil {
			bounds = map[string]any{}
		}
		bounds[rangeOps[op]] = n
		m[key] = bounds
	}
	expr, err := filter.FromMap(m)
	if err != nil {
		return filter.Expression{}, fmt.Errorf("parse filters: %w", err)
	}
	return expr, nil
}

var rangeOps = map[string]string{">=": "gte", "<=": "lte", ">": "gt", "<": "lt"}

func splitFilter(s string) (key, op, val string, ok bool) {
	i := strings.IndexAny(s, "<>=")
	if i <= 0 {
		return "", "", "", false
	}
	op = s[i : i+1]
	if op != "=" && i+1 < len(s) && s[i+1] == '=' {
		op += "="
	}
	key = strings.TrimSpace(s[:i])
	val = strings.TrimSpace(s[i+len(op):])
	return key, op, val, key != "" && val != ""
}

func addSummary(acc, s dombatch.Summary) dombatch.Summary {
	if acc.BatchID == "" {
		acc.BatchID = s.BatchID
	}
	acc.Total += s.Total
	acc.Indexed += s.Indexed
	acc.EmbeddingFailed += s.EmbeddingFailed
	acc.UpsertFailed += s.UpsertFailed
	acc.Invalid += s.Invalid
	acc.EmbeddingTokens += s.EmbeddingTokens
	return acc
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, func() { _ = f.Close() }, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
