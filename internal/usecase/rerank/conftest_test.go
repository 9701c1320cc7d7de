package rerank

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/profdex/internal/domain"
	"github.com/kailas-cloud/profdex/internal/domain/record"
	"github.com/kailas-cloud/profdex/internal/domain/search/result"
	"github.com/kailas-cloud/profdex/internal/workerpool"
)

// fakeScorer scores every candidate with scoreFn. Chunks are identified by
// the ID of their first candidate.
type fakeScorer struct {
	scoreFn func(c result.Candidate) Score
	delay   map[string]time.Duration
	fail    map[string]error
	block   map[string]bool // ignore ctx and sleep for a second
	panics  map[string]bool
	short   map[string]bool // return one score too few

	mu        sync.Mutex
	sizes     []int
	inFlight  atomic.Int32
	maxFlight atomic.Int32
}

func (f *fakeScorer) ScoreChunk(ctx context.Context, _ string, chunk []result.Candidate) ([]Score, error) {
	key := chunk[0].ID()
	f.mu.Lock()
	f.sizes = append(f.sizes, len(chunk))
	f.mu.Unlock()

	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxFlight.Load()
		if n <= cur || f.maxFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	if f.block[key] {
		time.Sleep(time.Second)
	}
	if d := f.delay[key]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.panics[key] {
		panic("scorer exploded")
	}
	if err := f.fail[key]; err != nil {
		return nil, err
	}

	scores := make([]Score, len(chunk))
	for i, c := range chunk {
		scores[i] = f.scoreFn(c)
	}
	if f.short[key] {
		scores = scores[1:]
	}
	return scores, nil
}

func (f *fakeScorer) calls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.sizes...)
}

func constScore(v float64) func(result.Candidate) Score {
	return func(c result.Candidate) Score {
		return Score{Score: v, Pros: []string{"matches " + c.ID()}}
	}
}

// countingPool records submissions and delegates to a real pool.
type countingPool struct {
	inner     Submitter
	submitted atomic.Int32
}

func (p *countingPool) Submit(task func()) error {
	p.submitted.Add(1)
	return p.inner.Submit(task)
}

type closedPool struct{}

func (closedPool) Submit(func()) error { return workerpool.ErrPoolClosed }

var errUpstream = errors.New("upstream 503")

func startPool(t *testing.T, size int) *workerpool.Pool {
	t.Helper()
	p := workerpool.New(size, zap.NewNop())
	if err := p.Start(); err != nil {
		t.Fatalf("start pool: %v", err)
	}
	t.Cleanup(func() { _ = p.Stop(5 * time.Second) })
	return p
}

func candidates(t *testing.T, n int) []result.Candidate {
	t.Helper()
	ns := domain.MustNamespace("ns-a")
	out := make([]result.Candidate, n)
	for i := range n {
		r, err := record.New(fmt.Sprintf("c%02d", i), ns, record.Fields{Name: fmt.Sprintf("Candidate %d", i)}, nil)
		if err != nil {
			t.Fatal(err)
		}
		out[i] = result.NewCandidate(r, 1-float64(i)/100, result.SourceVector)
	}
	return out
}
