// Package embedding guards the embedding provider with a token spend budget.
package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/profdex/internal/domain"
)

// BudgetAction defines behavior when a token budget is exhausted.
type BudgetAction string

const (
	// BudgetActionWarn logs a warning but lets the request through.
	BudgetActionWarn BudgetAction = "warn"
	// BudgetActionReject fails the request with domain.ErrEmbeddingQuotaExceeded.
	BudgetActionReject BudgetAction = "reject"
)

// Counter TTLs outlive their period so a late write never resurrects a stale key.
const (
	dailyTTL   = 48 * time.Hour
	monthlyTTL = 62 * 24 * time.Hour
)

// CounterStore persists period counters. Add must be additive.
type CounterStore interface {
	Add(ctx context.Context, key string, tokens int64, ttl time.Duration) error
	Load(ctx context.Context, key string) (int64, error)
}

// BudgetConfig holds the limits. A zero limit is unlimited.
type BudgetConfig struct {
	KeyPrefix    string
	Provider     string
	DailyLimit   int64
	MonthlyLimit int64
	Action       BudgetAction
}

// BudgetTracker counts consumed tokens per UTC day and month.
// Check is served from memory; Record writes behind to the optional store.
type BudgetTracker struct {
	mu          sync.Mutex
	cfg         BudgetConfig
	dailyUsed   int64
	monthlyUsed int64
	day         time.Time
	month       time.Time
	store       CounterStore
	now         func() time.Time
	logger      *zap.Logger
}

// NewBudgetTracker creates an in-memory tracker.
func NewBudgetTracker(cfg BudgetConfig, logger *zap.Logger) *BudgetTracker {
	if cfg.Action == "" {
		cfg.Action = BudgetActionWarn
	}
	b := &BudgetTracker{cfg: cfg, now: time.Now, logger: logger}
	b.day, b.month = periods(b.now())
	return b
}

// Enabled reports whether any limit is configured.
func (c BudgetConfig) Enabled() bool {
	return c.DailyLimit > 0 || c.MonthlyLimit > 0
}

// WithStore attaches persistence and loads the counters of the current period.
// Load failures are logged and the tracker starts from zero.
func (b *BudgetTracker) WithStore(ctx context.Context, store CounterStore) *BudgetTracker {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.store = store
	if v, err := store.Load(ctx, b.dailyKey(b.day)); err == nil {
		b.dailyUsed = v
	} else {
		b.logger.Warn("Failed to load daily token budget", zap.Error(err))
	}
	if v, err := store.Load(ctx, b.monthlyKey(b.month)); err == nil {
		b.monthlyUsed = v
	} else {
		b.logger.Warn("Failed to load monthly token budget", zap.Error(err))
	}

	b.logger.Info("Token budget loaded",
		zap.String("provider", b.cfg.Provider),
		zap.Int64("daily_used", b.dailyUsed),
		zap.Int64("monthly_used", b.monthlyUsed),
	)
	return b
}

func (b *BudgetTracker) dailyKey(day time.Time) string {
	return fmt.Sprintf("%sbudget:%s:daily:%s", b.cfg.KeyPrefix, b.cfg.Provider, day.Format("2006-01-02"))
}

func (b *BudgetTracker) monthlyKey(month time.Time) string {
	return fmt.Sprintf("%sbudget:%s:monthly:%s", b.cfg.KeyPrefix, b.cfg.Provider, month.Format("2006-01"))
}

// Check reports whether a new upstream request may be made.
func (b *BudgetTracker) Check(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollover()
	dailyOver := b.cfg.DailyLimit > 0 && b.dailyUsed >= b.cfg.DailyLimit
	monthlyOver := b.cfg.MonthlyLimit > 0 && b.monthlyUsed >= b.cfg.MonthlyLimit
	if !dailyOver && !monthlyOver {
		return nil
	}

	if b.cfg.Action == BudgetActionReject {
		period := "daily"
		if !dailyOver {
			period = "monthly"
		}
		return fmt.Errorf("%s token budget of %s exhausted: %w", period, b.cfg.Provider, domain.ErrEmbeddingQuotaExceeded)
	}

	b.logger.Warn("Token budget exceeded",
		zap.String("provider", b.cfg.Provider),
		zap.Int64("daily_used", b.dailyUsed),
		zap.Int64("daily_limit", b.cfg.DailyLimit),
		zap.Int64("monthly_used", b.monthlyUsed),
		zap.Int64("monthly_limit", b.cfg.MonthlyLimit),
	)
	return nil
}

// Record adds consumed tokens, then persists them when a store is attached.
func (b *BudgetTracker) Record(tokens int64) {
	if tokens <= 0 {
		return
	}
	b.mu.Lock()
	b.rollover()
	b.dailyUsed += tokens
	b.monthlyUsed += tokens
	store := b.store
	dailyKey, monthlyKey := b.dailyKey(b.day), b.monthlyKey(b.month)
	b.mu.Unlock()

	if store == nil {
		return
	}

	// Detached from the request so a cancelled caller still gets billed.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := store.Add(ctx, dailyKey, tokens, dailyTTL); err != nil {
		b.logger.Warn("Failed to persist daily token budget", zap.String("key", dailyKey), zap.Error(err))
	}
	if err := store.Add(ctx, monthlyKey, tokens, monthlyTTL); err != nil {
		b.logger.Warn("Failed to persist monthly token budget", zap.String("key", monthlyKey), zap.Error(err))
	}
}

// Remaining returns the tokens left today and this month; -1 means unlimited.
func (b *BudgetTracker) Remaining() (daily, monthly int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollover()
	return remaining(b.cfg.DailyLimit, b.dailyUsed), remaining(b.cfg.MonthlyLimit, b.monthlyUsed)
}

// Used returns the tokens consumed today and this month.
func (b *BudgetTracker) Used() (daily, monthly int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollover()
	return b.dailyUsed, b.monthlyUsed
}

// rollover zeroes counters when the UTC day or month changed. Caller holds mu.
func (b *BudgetTracker) rollover() {
	day, month := periods(b.now())
	if day.After(b.day) {
		b.dailyUsed = 0
		b.day = day
	}
	if month.After(b.month) {
		b.monthlyUsed = 0
		b.month = month
	}
}

func periods(t time.Time) (day, month time.Time) {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
		time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func remaining(limit, used int64) int64 {
	if limit <= 0 {
		return -1
	}
	return max(0, limit-used)
}
