package agent

import (
	"context"
	"testing"
)

func TestCheckBudgetFailsWhenDailyBudgetExhausted(t *testing.T) {
	b := NewBudget(BudgetConfig{DailyBudgetUSD: 0.01, MaxCallsPerHour: 60, MaxConcurrentCalls: 3})
	b.RecordCost(1_000_000, 0, 1.0, 1.0) // spends $1.00, over the $0.01 budget
	if err := b.CheckBudget(); err == nil {
		t.Fatal("expected daily budget exhaustion error")
	}
}

func TestCheckBudgetOKWithinLimit(t *testing.T) {
	b := NewBudget(DefaultBudgetConfig())
	if err := b.CheckBudget(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestAcquireRespectsConcurrencyCap(t *testing.T) {
	b := NewBudget(BudgetConfig{DailyBudgetUSD: 10, MaxCallsPerHour: 100, MaxConcurrentCalls: 1})

	release1, err := b.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Acquire(ctx)
	if err == nil {
		t.Fatal("expected Acquire to fail when the single slot is held and ctx is canceled")
	}

	release1()
}

func TestCalculateCost(t *testing.T) {
	cost := CalculateCost(1_000_000, 1_000_000, 0.80, 4.00)
	if cost != 4.80 {
		t.Fatalf("expected $4.80, got %v", cost)
	}
}

func TestRecordCostAccumulatesDailySpend(t *testing.T) {
	b := NewBudget(DefaultBudgetConfig())
	b.RecordCost(1_000_000, 0, 1.0, 0)
	b.RecordCost(1_000_000, 0, 1.0, 0)
	stats := b.Stats()
	if stats.DailySpendUSD != 2.0 {
		t.Fatalf("expected $2.00 spent, got %v", stats.DailySpendUSD)
	}
}
