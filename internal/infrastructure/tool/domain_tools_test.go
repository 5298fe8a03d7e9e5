package tool

import (
	"context"
	"testing"

	"github.com/quantagent/core/internal/domain/entity"
	domaintool "github.com/quantagent/core/internal/domain/tool"
	"go.uber.org/zap"
)

func newTestAgentContext() *entity.AgentContext {
	ctx := entity.NewAgentContext("test-session", "", entity.AgentContextConfig{
		MaxHistoryMessages: 100,
		MaxFocusedChars:    10000,
		MaxConventions:     20,
		MaxDecisions:       20,
	})
	ctx.SetTask("buy the dip on BTC")
	return ctx
}

func TestCreatePlanTool_CreatesPlanAndEntersPlanMode(t *testing.T) {
	ac := newTestAgentContext()
	tl := NewCreatePlanTool(ac, nil, zap.NewNop())

	args := map[string]interface{}{
		"steps": []interface{}{
			map[string]interface{}{"description": "fetch klines", "tools_needed": []interface{}{"get_klines"}},
			map[string]interface{}{"description": "place order", "tools_needed": []interface{}{"place_order"}},
		},
	}
	res, err := tl.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if ac.Mode() != entity.ModePlan {
		t.Errorf("expected plan mode, got %s", ac.Mode())
	}
	if ac.Plan() == nil || len(ac.Plan().Steps()) != 2 {
		t.Fatalf("expected a 2-step plan, got %+v", ac.Plan())
	}
}

func TestCreatePlanTool_RejectsEmptySteps(t *testing.T) {
	ac := newTestAgentContext()
	tl := NewCreatePlanTool(ac, nil, zap.NewNop())

	res, err := tl.Execute(context.Background(), map[string]interface{}{"steps": []interface{}{}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success || res.ErrorKind != domaintool.ErrKindInvalidArguments {
		t.Fatalf("expected invalid_arguments failure, got %+v", res)
	}
}

func TestTaskCompleteTool_AdvancesPlan(t *testing.T) {
	ac := newTestAgentContext()
	plan, err := entity.NewPlan(ac.Task(), []entity.PlanStepSpec{
		{Description: "step 1"},
		{Description: "step 2"},
	})
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}
	ac.EnterPlanMode(plan)
	if err := plan.StartStep(1); err != nil {
		t.Fatalf("StartStep: %v", err)
	}

	tl := NewTaskCompleteTool(ac, nil, zap.NewNop())
	res, err := tl.Execute(context.Background(), map[string]interface{}{"success": true, "summary": "done"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if plan.Step(1).Status() != entity.StepStatusDone {
		t.Errorf("expected step 1 done, got %s", plan.Step(1).Status())
	}
}

func TestTaskCompleteTool_RequiresInProgressStep(t *testing.T) {
	ac := newTestAgentContext()
	plan, _ := entity.NewPlan(ac.Task(), []entity.PlanStepSpec{{Description: "step 1"}})
	ac.EnterPlanMode(plan)

	tl := NewTaskCompleteTool(ac, nil, zap.NewNop())
	res, err := tl.Execute(context.Background(), map[string]interface{}{"success": true})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success {
		t.Error("expected failure when no step is in_progress")
	}
}

type fakeRuleStore struct {
	rules map[string]*entity.RuleState
}

func newFakeRuleStore() *fakeRuleStore {
	return &fakeRuleStore{rules: make(map[string]*entity.RuleState)}
}

func (s *fakeRuleStore) Save(rule *entity.RuleState) error {
	s.rules[rule.RuleID()] = rule
	return nil
}

func (s *fakeRuleStore) Get(ruleID string) (*entity.RuleState, bool) {
	r, ok := s.rules[ruleID]
	return r, ok
}

func TestSaveRuleTool_StartsRuleImmediately(t *testing.T) {
	store := newFakeRuleStore()
	tl := NewSaveRuleTool(store, zap.NewNop())

	args := map[string]interface{}{
		"rule_id":       "rule-1",
		"market":        "spot",
		"symbols":       []interface{}{"BTCUSDT"},
		"entry_rules":   "rsi < 30",
		"total_capital": 1000.0,
	}
	res, err := tl.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}

	rule, ok := store.Get("rule-1")
	if !ok {
		t.Fatal("expected rule to be saved")
	}
	if rule.Active() != entity.RuleRunning {
		t.Errorf("expected a saved rule to be started immediately so the executor picks it up, got %s", rule.Active())
	}
}

type fakeMarketData struct {
	klines []Kline
	err    error
}

func (m *fakeMarketData) Klines(ctx context.Context, symbol, timeframe string, limit int) ([]Kline, error) {
	return m.klines, m.err
}

func TestGetKlinesTool_DefaultsLimitAndReturnsMetadata(t *testing.T) {
	md := &fakeMarketData{klines: []Kline{{Open: 1, Close: 2}, {Open: 2, Close: 3}}}
	tl := NewGetKlinesTool(md, zap.NewNop())

	res, err := tl.Execute(context.Background(), map[string]interface{}{"symbol": "BTCUSDT", "timeframe": "1h"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	klines, ok := res.Metadata["klines"].([]Kline)
	if !ok || len(klines) != 2 {
		t.Fatalf("expected 2 klines in metadata, got %+v", res.Metadata)
	}
}

func TestCalculateIndicatorTool_SMA(t *testing.T) {
	tl := NewCalculateIndicatorTool(zap.NewNop())
	closes := []interface{}{10.0, 20.0, 30.0}
	res, err := tl.Execute(context.Background(), map[string]interface{}{
		"indicator": "sma",
		"closes":    closes,
		"period":    3.0,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if v := res.Metadata["value"].(float64); v != 20 {
		t.Errorf("expected sma=20, got %f", v)
	}
}

func TestCalculateIndicatorTool_RejectsShortSeries(t *testing.T) {
	tl := NewCalculateIndicatorTool(zap.NewNop())
	res, err := tl.Execute(context.Background(), map[string]interface{}{
		"indicator": "sma",
		"closes":    []interface{}{10.0, 20.0},
		"period":    5.0,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success {
		t.Error("expected failure when closes shorter than period")
	}
}

type fakeOrderStore struct {
	orders []entity.Order
}

func (s *fakeOrderStore) Append(order entity.Order) error {
	s.orders = append(s.orders, order)
	return nil
}

func TestPlaceOrderTool_SpotBuyThenSell(t *testing.T) {
	rules := newFakeRuleStore()
	rule, _ := entity.NewRuleState("rule-1", entity.RuleRequirements{
		Market:           entity.MarketSpot,
		TotalCapital:     1000,
		MaxPositionRatio: 0.5,
	})
	rules.Save(rule)
	orders := &fakeOrderStore{}
	tl := NewPlaceOrderTool(rules, orders, zap.NewNop())

	res, err := tl.Execute(context.Background(), map[string]interface{}{
		"rule_id": "rule-1", "symbol": "BTCUSDT", "side": "buy", "price": 100.0,
	})
	if err != nil {
		t.Fatalf("Execute (buy): %v", err)
	}
	if !res.Success {
		t.Fatalf("expected buy to succeed, got %+v", res)
	}
	if len(orders.orders) != 1 {
		t.Fatalf("expected 1 order recorded, got %d", len(orders.orders))
	}

	res, err = tl.Execute(context.Background(), map[string]interface{}{
		"rule_id": "rule-1", "symbol": "BTCUSDT", "side": "sell", "price": 110.0,
	})
	if err != nil {
		t.Fatalf("Execute (sell): %v", err)
	}
	if !res.Success {
		t.Fatalf("expected sell to succeed, got %+v", res)
	}
	if len(orders.orders) != 2 {
		t.Fatalf("expected 2 orders recorded, got %d", len(orders.orders))
	}
}

func TestPlaceOrderTool_RejectsUnknownRule(t *testing.T) {
	rules := newFakeRuleStore()
	orders := &fakeOrderStore{}
	tl := NewPlaceOrderTool(rules, orders, zap.NewNop())

	res, err := tl.Execute(context.Background(), map[string]interface{}{
		"rule_id": "missing", "symbol": "BTCUSDT", "side": "buy", "price": 100.0,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success || res.ErrorKind != domaintool.ErrKindInvalidArguments {
		t.Fatalf("expected invalid_arguments failure for unknown rule, got %+v", res)
	}
}

func TestPlaceOrderTool_RejectsRedundantBuy(t *testing.T) {
	rules := newFakeRuleStore()
	rule, _ := entity.NewRuleState("rule-1", entity.RuleRequirements{
		Market: entity.MarketSpot, TotalCapital: 1000, MaxPositionRatio: 0.5,
	})
	rule.ApplySpotBuy(100)
	rules.Save(rule)
	orders := &fakeOrderStore{}
	tl := NewPlaceOrderTool(rules, orders, zap.NewNop())

	res, err := tl.Execute(context.Background(), map[string]interface{}{
		"rule_id": "rule-1", "symbol": "BTCUSDT", "side": "buy", "price": 105.0,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success {
		t.Error("expected a buy while already holding spot to be rejected as a no-op, not an error")
	}
	if len(orders.orders) != 0 {
		t.Errorf("expected no order recorded for a rejected order, got %d", len(orders.orders))
	}
}
