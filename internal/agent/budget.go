package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// BudgetConfig bounds how much the agent loop may spend calling the model.
type BudgetConfig struct {
	DailyBudgetUSD     float64
	MaxCallsPerHour    int
	MaxConcurrentCalls int
}

// DefaultBudgetConfig returns the built-in budget defaults; the config file
// has no budget section.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		DailyBudgetUSD:     10.00,
		MaxCallsPerHour:    60,
		MaxConcurrentCalls: 3,
	}
}

// Budget enforces the daily USD spend cap, the hourly call cap, and the
// concurrency cap for LLM calls. The hourly cap is a token bucket
// (golang.org/x/time/rate) and concurrency is a weighted semaphore
// (golang.org/x/sync/semaphore), upgrading the hand-rolled channel
// semaphore and counter this package's predecessor used.
type Budget struct {
	mu sync.Mutex

	dailyBudgetUSD float64
	dailySpendUSD  float64
	dailyDate      string

	limiter *rate.Limiter
	sem     *semaphore.Weighted

	maxCallsPerHour    int
	maxConcurrentCalls int
}

// NewBudget builds a Budget from cfg, filling in defaults for zero fields.
func NewBudget(cfg BudgetConfig) *Budget {
	if cfg.DailyBudgetUSD <= 0 {
		cfg.DailyBudgetUSD = 10.00
	}
	if cfg.MaxCallsPerHour <= 0 {
		cfg.MaxCallsPerHour = 60
	}
	if cfg.MaxConcurrentCalls <= 0 {
		cfg.MaxConcurrentCalls = 3
	}

	perHour := rate.Limit(float64(cfg.MaxCallsPerHour) / time.Hour.Seconds())
	return &Budget{
		dailyBudgetUSD:     cfg.DailyBudgetUSD,
		dailyDate:          time.Now().UTC().Format("2006-01-02"),
		limiter:            rate.NewLimiter(perHour, cfg.MaxCallsPerHour),
		sem:                semaphore.NewWeighted(int64(cfg.MaxConcurrentCalls)),
		maxCallsPerHour:    cfg.MaxCallsPerHour,
		maxConcurrentCalls: cfg.MaxConcurrentCalls,
	}
}

// CheckBudget returns nil if a call is within the daily USD budget, or an
// error naming the exhausted limit.
func (b *Budget) CheckBudget() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetIfNeeded()
	if b.dailySpendUSD >= b.dailyBudgetUSD {
		return fmt.Errorf("daily budget exhausted: $%.4f of $%.2f spent", b.dailySpendUSD, b.dailyBudgetUSD)
	}
	return nil
}

// Acquire blocks until a concurrency slot and an hourly rate token are both
// available, or ctx is canceled. The caller must invoke the returned
// release function when the call completes.
func (b *Budget) Acquire(ctx context.Context) (func(), error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if err := b.limiter.Wait(ctx); err != nil {
		b.sem.Release(1)
		return nil, err
	}
	return func() { b.sem.Release(1) }, nil
}

// RecordCost records the cost of a completed call at the given per-million-
// token prices and returns the cost in USD.
func (b *Budget) RecordCost(inputTokens, outputTokens int, inputPricePerMTok, outputPricePerMTok float64) float64 {
	cost := CalculateCost(inputTokens, outputTokens, inputPricePerMTok, outputPricePerMTok)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetIfNeeded()
	b.dailySpendUSD += cost
	return cost
}

// CalculateCost computes the USD cost of a call given its token counts and
// per-million-token prices.
func CalculateCost(inputTokens, outputTokens int, inputPricePerMTok, outputPricePerMTok float64) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * inputPricePerMTok
	outputCost := float64(outputTokens) / 1_000_000 * outputPricePerMTok
	return inputCost + outputCost
}

// Stats reports current budget state.
type Stats struct {
	DailySpendUSD      float64
	DailyBudgetUSD     float64
	DailyRemaining     float64
	MaxCallsPerHour    int
	ConcurrentCapacity int
}

// Stats returns a snapshot of the budget's current state.
func (b *Budget) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetIfNeeded()
	return Stats{
		DailySpendUSD:      b.dailySpendUSD,
		DailyBudgetUSD:     b.dailyBudgetUSD,
		DailyRemaining:     b.dailyBudgetUSD - b.dailySpendUSD,
		MaxCallsPerHour:    b.maxCallsPerHour,
		ConcurrentCapacity: b.maxConcurrentCalls,
	}
}

// resetIfNeeded rolls the daily spend counter over at UTC midnight. Must be
// called with mu held.
func (b *Budget) resetIfNeeded() {
	today := time.Now().UTC().Format("2006-01-02")
	if today != b.dailyDate {
		b.dailySpendUSD = 0
		b.dailyDate = today
	}
}
