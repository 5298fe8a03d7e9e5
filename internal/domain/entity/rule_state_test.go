package entity

import (
	"errors"
	"testing"
)

func sampleRule(t *testing.T) *RuleState {
	t.Helper()
	r, err := NewRuleState("rule-1", RuleRequirements{
		Market:           MarketSpot,
		Symbols:          []string{"BTCUSDT"},
		Timeframe:        "1h",
		EntryRules:       "rsi < 30",
		TakeProfit:       "5%",
		StopLoss:         "2%",
		MaxPositionRatio: 0.5,
		TotalCapital:     1000,
	})
	if err != nil {
		t.Fatalf("NewRuleState: %v", err)
	}
	return r
}

func TestNewRuleState_RejectsEmptyID(t *testing.T) {
	if _, err := NewRuleState("", RuleRequirements{}); !errors.Is(err, ErrInvalidRuleID) {
		t.Errorf("expected ErrInvalidRuleID, got %v", err)
	}
}

func TestNewRuleState_DefaultsStopped(t *testing.T) {
	r := sampleRule(t)
	if r.Active() != RuleStopped {
		t.Errorf("expected a freshly saved rule to default to stopped, got %s", r.Active())
	}
	r.Start()
	if r.Active() != RuleRunning {
		t.Errorf("expected Start() to flip to running, got %s", r.Active())
	}
	r.Stop()
	if r.Active() != RuleStopped {
		t.Errorf("expected Stop() to flip back to stopped, got %s", r.Active())
	}
}

func TestRuleState_ApplySpotBuySell(t *testing.T) {
	r := sampleRule(t)
	if !r.ApplySpotBuy(100) {
		t.Fatal("expected spot buy to succeed while flat")
	}
	if !r.Runtime().IsHolding {
		t.Error("expected IsHolding after buy")
	}
	wantQty := 1000.0 * 0.5 / 100.0
	if r.Runtime().Quantity != wantQty {
		t.Errorf("expected quantity %f, got %f", wantQty, r.Runtime().Quantity)
	}
	if r.ApplySpotBuy(100) {
		t.Error("expected a second buy while holding to be a no-op")
	}
	qty, ok := r.ApplySpotSell()
	if !ok || qty != wantQty {
		t.Errorf("expected sell to close %f, got %f ok=%v", wantQty, qty, ok)
	}
	if r.Runtime().IsHolding {
		t.Error("expected flat after sell")
	}
	if _, ok := r.ApplySpotSell(); ok {
		t.Error("expected sell while flat to be a no-op")
	}
}

func TestRuleState_ApplyContractBuySell(t *testing.T) {
	r := sampleRule(t)

	closed, action, ok := r.ApplyContractBuy(100, 2)
	if !ok || action != "open_long" || closed != 0 {
		t.Fatalf("expected open_long, got action=%s closed=%f ok=%v", action, closed, ok)
	}

	if _, _, ok := r.ApplyContractBuy(110, 2); ok {
		t.Error("expected buy while already long to no-op")
	}

	closed, action, ok = r.ApplyContractSell(120, 2)
	if !ok || action != "close_long" || closed != 2 {
		t.Fatalf("expected close_long of 2, got action=%s closed=%f ok=%v", action, closed, ok)
	}
	if r.Runtime().IsHolding {
		t.Error("expected flat after closing long")
	}

	closed, action, ok = r.ApplyContractSell(90, 3)
	if !ok || action != "open_short" || closed != 0 {
		t.Fatalf("expected open_short, got action=%s closed=%f ok=%v", action, closed, ok)
	}
	if r.Runtime().PositionSide != PositionShort {
		t.Errorf("expected short position, got %s", r.Runtime().PositionSide)
	}

	closed, action, ok = r.ApplyContractBuy(80, 3)
	if !ok || action != "close_short" || closed != 3 {
		t.Fatalf("expected close_short of 3, got action=%s closed=%f ok=%v", action, closed, ok)
	}
}

func TestNewOrder_MarksFilled(t *testing.T) {
	o := NewOrder("rule-1", "BTCUSDT", SideBuy, 100, 1, 0)
	if o.Status != "filled" {
		t.Errorf("expected filled status, got %s", o.Status)
	}
	if o.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}
