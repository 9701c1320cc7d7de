// Package workerpool provides the bounded worker pool that the reranker fans
// chunk jobs out to. It is constructed explicitly and has a Start/Stop lifecycle.
package workerpool

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// DefaultSize is the number of concurrent workers when none is configured.
const DefaultSize = 10

// Pool lifecycle errors.
var (
	ErrPoolNotStarted = errors.New("workerpool: not started")
	ErrPoolClosed     = errors.New("workerpool: closed")
)

// Pool is a fixed-size worker pool. Tasks beyond the pool size queue until a
// worker frees up. Stop drains accepted tasks and rejects new ones.
type Pool struct {
	size   int
	logger *zap.Logger

	mu     sync.RWMutex
	pool   *ants.Pool
	closed bool
	wg     sync.WaitGroup
}

// New creates a pool with the given number of workers. Call Start before Submit.
func New(size int, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{size: size, logger: logger}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Start allocates the workers. Calling Start twice is a no-op; a stopped pool
// cannot be restarted.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	if p.pool != nil {
		return nil
	}

	pool, err := ants.NewPool(p.size,
		ants.WithLogger(antsLogger{p.logger.Sugar()}),
		ants.WithPanicHandler(func(v any) {
			p.logger.Error("Worker panic", zap.Any("panic", v))
		}),
	)
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	p.pool = pool
	p.logger.Info("Worker pool started", zap.Int("size", p.size))
	return nil
}

// Submit queues a task. It blocks while all workers are busy and returns
// ErrPoolClosed once Stop has begun.
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	if p.pool == nil {
		p.mu.RUnlock()
		return ErrPoolNotStarted
	}
	pool := p.pool
	p.wg.Add(1)
	p.mu.RUnlock()

	err := pool.Submit(func() {
		defer p.wg.Done()
		task()
	})
	if err != nil {
		p.wg.Done()
		if errors.Is(err, ants.ErrPoolClosed) {
			return ErrPoolClosed
		}
		return fmt.Errorf("submit: %w", err)
	}
	return nil
}

// Running returns the number of live workers. Idle workers expire after ants' default
// expiry, so between bursts this falls back toward zero.
func (p *Pool) Running() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.pool == nil {
		return 0
	}
	return p.pool.Running()
}

// Stop rejects new tasks, waits up to timeout for accepted tasks to finish and
// releases the workers. A non-positive timeout waits indefinitely.
func (p *Pool) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	pool := p.pool
	p.mu.Unlock()

	if pool == nil {
		return nil
	}

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	var err error
	if timeout > 0 {
		select {
		case <-drained:
		case <-time.After(timeout):
			err = fmt.Errorf("workerpool: drain timed out after %s", timeout)
		}
	} else {
		<-drained
	}

	if releaseErr := pool.ReleaseTimeout(max(timeout, time.Second)); releaseErr != nil && err == nil {
		err = fmt.Errorf("release pool: %w", releaseErr)
	}
	p.logger.Info("Worker pool stopped", zap.Error(err))
	return err
}

type antsLogger struct {
	s *zap.SugaredLogger
}

func (l antsLogger) Printf(format string, args ...any) {
	l.s.Warnf(format, args...)
}
