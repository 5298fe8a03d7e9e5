// Copyright 2026 NGOClaw Authors. All rights reserved.
package tool

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/quantagent/core/internal/domain/entity"
	domaintool "github.com/quantagent/core/internal/domain/tool"
	"github.com/quantagent/core/internal/infrastructure/eventbus"
	"go.uber.org/zap"
)

// planHolder is the slice of AgentContext a plan-lifecycle tool needs: read
// the task, materialize a Plan, advance it. PlanExecuteAgent's owning
// AgentContext satisfies this directly.
type planHolder interface {
	Task() string
	Plan() *entity.Plan
	EnterPlanMode(p *entity.Plan)
}

func publishPlan(ctx context.Context, bus eventbus.Bus, eventType entity.AgentEventType, ev entity.AgentEvent) {
	if bus == nil {
		return
	}
	ev.Type = eventType
	ev.Timestamp = time.Now()
	bus.Publish(ctx, eventbus.NewEvent(string(eventType), ev))
}

// CreatePlanTool is the create_plan tool (§4.3.2): the model proposes a
// step-by-step plan which becomes the AgentContext's active Plan, pending
// the approval gate.
type CreatePlanTool struct {
	ctx    planHolder
	bus    eventbus.Bus
	logger *zap.Logger
}

func NewCreatePlanTool(ctx planHolder, bus eventbus.Bus, logger *zap.Logger) *CreatePlanTool {
	return &CreatePlanTool{ctx: ctx, bus: bus, logger: logger}
}

func (t *CreatePlanTool) Name() string          { return "create_plan" }
func (t *CreatePlanTool) Kind() domaintool.Kind { return domaintool.KindThink }
func (t *CreatePlanTool) Description() string {
	return "Create the step-by-step plan for the current task. Each step names the tools " +
		"it expects to use; steps run strictly in order, one in_progress at a time."
}

func (t *CreatePlanTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"steps": map[string]interface{}{
				"type":        "array",
				"description": "Ordered list of plan steps.",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"description": map[string]interface{}{"type": "string"},
						"tools_needed": map[string]interface{}{
							"type":  "array",
							"items": map[string]interface{}{"type": "string"},
						},
					},
					"required": []string{"description"},
				},
				"minItems": 1,
			},
		},
		"required": []string{"steps"},
	}
}

func (t *CreatePlanTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	rawSteps, ok := args["steps"].([]interface{})
	if !ok || len(rawSteps) == 0 {
		return domaintool.ErrorResult(domaintool.ErrKindInvalidArguments, "'steps' must be a non-empty array"), nil
	}

	specs := make([]entity.PlanStepSpec, 0, len(rawSteps))
	for _, raw := range rawSteps {
		m, ok := raw.(map[string]interface{})
		if !ok {
			return domaintool.ErrorResult(domaintool.ErrKindInvalidArguments, "each step must be an object"), nil
		}
		desc, _ := m["description"].(string)
		expected, _ := m["expected_outcome"].(string)
		var tools []string
		if rawTools, ok := m["tools_needed"].([]interface{}); ok {
			for _, rt := range rawTools {
				if s, ok := rt.(string); ok {
					tools = append(tools, s)
				}
			}
		}
		specs = append(specs, entity.PlanStepSpec{Description: desc, ExpectedOutcome: expected, ToolsNeeded: tools})
	}

	plan, err := entity.NewPlan(t.ctx.Task(), specs)
	if err != nil {
		return domaintool.ErrorResult(domaintool.ErrKindInvalidArguments, err.Error()), nil
	}

	t.ctx.EnterPlanMode(plan)
	t.logger.Info("plan created", zap.Int("steps", len(specs)))
	publishPlan(ctx, t.bus, entity.EventPlanCreated, entity.AgentEvent{Plan: plan.Snapshot()})
	publishPlan(ctx, t.bus, entity.EventPlanAwaitingApproval, entity.AgentEvent{Plan: plan.Snapshot()})

	return &Result{
		Output:  fmt.Sprintf("plan created with %d steps, awaiting approval", len(specs)),
		Display: plan.Summary(),
		Success: true,
	}, nil
}

// TaskCompleteTool is the task_complete tool: the model signals the
// currently in_progress step is finished and the plan should advance.
type TaskCompleteTool struct {
	ctx    planHolder
	bus    eventbus.Bus
	logger *zap.Logger
}

func NewTaskCompleteTool(ctx planHolder, bus eventbus.Bus, logger *zap.Logger) *TaskCompleteTool {
	return &TaskCompleteTool{ctx: ctx, bus: bus, logger: logger}
}

func (t *TaskCompleteTool) Name() string          { return "task_complete" }
func (t *TaskCompleteTool) Kind() domaintool.Kind { return domaintool.KindThink }
func (t *TaskCompleteTool) Description() string {
	return "Mark the current in-progress plan step as done (or failed) and advance the plan."
}

func (t *TaskCompleteTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"success": map[string]interface{}{"type": "boolean", "description": "Whether the step succeeded."},
			"summary": map[string]interface{}{"type": "string", "description": "One-line summary of what happened."},
		},
		"required": []string{"success"},
	}
}

func (t *TaskCompleteTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	plan := t.ctx.Plan()
	if plan == nil {
		return domaintool.ErrorResult(domaintool.ErrKindInvalidArguments, "no active plan"), nil
	}
	step := plan.InProgressStep()
	if step == nil {
		return domaintool.ErrorResult(domaintool.ErrKindInvalidArguments, "no step is in_progress"), nil
	}

	success, _ := args["success"].(bool)
	summary, _ := args["summary"].(string)
	var filesChanged []string
	if raw, ok := args["files_changed"].([]interface{}); ok {
		for _, f := range raw {
			if s, ok := f.(string); ok {
				filesChanged = append(filesChanged, s)
			}
		}
	}

	var err error
	if success {
		err = step.Complete(summary, filesChanged)
	} else {
		err = step.Fail(summary)
	}
	if err != nil {
		return domaintool.ErrorResult(domaintool.ErrKindInvalidArguments, err.Error()), nil
	}

	publishPlan(ctx, t.bus, entity.EventStepCompleted, entity.AgentEvent{
		StepID:   step.ID(),
		Progress: planProgress(plan),
	})

	if !plan.AdvanceToNextStep() && plan.AllStepsTerminal() {
		publishPlan(ctx, t.bus, entity.EventPlanExecutionDone, entity.AgentEvent{Plan: plan.Snapshot()})
	}

	t.logger.Info("plan step finished", zap.Int("step", step.ID()), zap.Bool("success", success))
	return &Result{Output: fmt.Sprintf("step %d marked %s", step.ID(), step.Status()), Display: plan.Summary(), Success: true}, nil
}

// planProgress tallies a plan's step statuses for the step_completed event.
func planProgress(plan *entity.Plan) *entity.StepProgress {
	p := &entity.StepProgress{Total: len(plan.Steps())}
	for _, s := range plan.Steps() {
		switch s.Status() {
		case entity.StepStatusDone, entity.StepStatusSkipped, entity.StepStatusFailed:
			p.Done++
		case entity.StepStatusInProgress:
			p.InProgress++
		}
	}
	return p
}

// RuleStore persists RuleState aggregates produced by save_rule and
// consulted by get_klines/place_order during Executor runs.
type RuleStore interface {
	Save(rule *entity.RuleState) error
	Get(ruleID string) (*entity.RuleState, bool)
}

// SaveRuleTool is the Collector-only save_rule tool: once a strategy's
// requirements are fully elicited, persist them and hand off to the
// Executor (§2).
type SaveRuleTool struct {
	rules  RuleStore
	logger *zap.Logger
}

func NewSaveRuleTool(rules RuleStore, logger *zap.Logger) *SaveRuleTool {
	return &SaveRuleTool{rules: rules, logger: logger}
}

func (t *SaveRuleTool) Name() string          { return "save_rule" }
func (t *SaveRuleTool) Kind() domaintool.Kind { return domaintool.KindThink }
func (t *SaveRuleTool) Description() string {
	return "Persist the fully-specified trading rule (market, symbols, timeframe, entry/exit " +
		"conditions, position sizing) and hand it to the Executor."
}

func (t *SaveRuleTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"rule_id":            map[string]interface{}{"type": "string"},
			"market":             map[string]interface{}{"type": "string", "enum": []string{"spot", "contract"}},
			"symbols":            map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"timeframe":          map[string]interface{}{"type": "string"},
			"entry_rules":        map[string]interface{}{"type": "string"},
			"take_profit":        map[string]interface{}{"type": "string"},
			"stop_loss":          map[string]interface{}{"type": "string"},
			"max_position_ratio": map[string]interface{}{"type": "number"},
			"total_capital":      map[string]interface{}{"type": "number"},
		},
		"required": []string{"rule_id", "market", "symbols", "entry_rules", "total_capital"},
	}
}

func (t *SaveRuleTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	ruleID, _ := args["rule_id"].(string)
	req := entity.RuleRequirements{
		Market:     entity.Market(fmt.Sprintf("%v", args["market"])),
		Timeframe:  fmt.Sprintf("%v", args["timeframe"]),
		EntryRules: fmt.Sprintf("%v", args["entry_rules"]),
		TakeProfit: fmt.Sprintf("%v", args["take_profit"]),
		StopLoss:   fmt.Sprintf("%v", args["stop_loss"]),
	}
	if syms, ok := args["symbols"].([]interface{}); ok {
		for _, s := range syms {
			req.Symbols = append(req.Symbols, fmt.Sprintf("%v", s))
		}
	}
	if v, ok := args["max_position_ratio"].(float64); ok {
		req.MaxPositionRatio = v
	}
	if v, ok := args["total_capital"].(float64); ok {
		req.TotalCapital = v
	}

	rule, err := entity.NewRuleState(ruleID, req)
	if err != nil {
		return domaintool.ErrorResult(domaintool.ErrKindInvalidArguments, err.Error()), nil
	}
	rule.Start() // hand off to the Executor's scheduler immediately
	if err := t.rules.Save(rule); err != nil {
		return domaintool.ErrorResult(domaintool.ErrKindToolIOError, err.Error()), nil
	}

	t.logger.Info("rule saved", zap.String("rule_id", ruleID), zap.String("market", string(req.Market)))
	return &Result{Output: fmt.Sprintf("rule %s saved (%s, %v)", ruleID, req.Market, req.Symbols), Success: true}, nil
}

// MarketDataProvider fetches OHLCV candles for a symbol/timeframe, grounded
// on the provider-factory idiom already used for LLM providers.
type MarketDataProvider interface {
	Klines(ctx context.Context, symbol, timeframe string, limit int) ([]Kline, error)
}

// Kline is one OHLCV candle.
type Kline struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// GetKlinesTool is the Executor-only get_klines tool.
type GetKlinesTool struct {
	provider MarketDataProvider
	logger   *zap.Logger
}

func NewGetKlinesTool(provider MarketDataProvider, logger *zap.Logger) *GetKlinesTool {
	return &GetKlinesTool{provider: provider, logger: logger}
}

func (t *GetKlinesTool) Name() string          { return "get_klines" }
func (t *GetKlinesTool) Kind() domaintool.Kind { return domaintool.KindFetch }
func (t *GetKlinesTool) Description() string {
	return "Fetch recent OHLCV candles for a symbol and timeframe."
}

func (t *GetKlinesTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"symbol":    map[string]interface{}{"type": "string"},
			"timeframe": map[string]interface{}{"type": "string"},
			"limit":     map[string]interface{}{"type": "number", "default": 100},
		},
		"required": []string{"symbol", "timeframe"},
	}
}

func (t *GetKlinesTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	symbol, _ := args["symbol"].(string)
	timeframe, _ := args["timeframe"].(string)
	limit := 100
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	klines, err := t.provider.Klines(ctx, symbol, timeframe, limit)
	if err != nil {
		t.logger.Warn("get_klines failed", zap.String("symbol", symbol), zap.Error(err))
		return domaintool.ErrorResult(domaintool.ErrKindToolIOError, err.Error()), nil
	}

	return &Result{
		Output:  fmt.Sprintf("%d candles for %s (%s)", len(klines), symbol, timeframe),
		Success: true,
		Metadata: map[string]interface{}{
			"klines": klines,
		},
	}, nil
}

// CalculateIndicatorTool is the pure computation calculate_indicator tool:
// no external I/O, so it is always safe to retry.
type CalculateIndicatorTool struct {
	logger *zap.Logger
}

func NewCalculateIndicatorTool(logger *zap.Logger) *CalculateIndicatorTool {
	return &CalculateIndicatorTool{logger: logger}
}

func (t *CalculateIndicatorTool) Name() string          { return "calculate_indicator" }
func (t *CalculateIndicatorTool) Kind() domaintool.Kind { return domaintool.KindThink }
func (t *CalculateIndicatorTool) Description() string {
	return "Compute a technical indicator (sma, ema, rsi) over a series of closing prices."
}

func (t *CalculateIndicatorTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"indicator": map[string]interface{}{"type": "string", "enum": []string{"sma", "ema", "rsi"}},
			"closes":    map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "number"}},
			"period":    map[string]interface{}{"type": "number"},
		},
		"required": []string{"indicator", "closes", "period"},
	}
}

func (t *CalculateIndicatorTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	indicator, _ := args["indicator"].(string)
	period := 14
	if v, ok := args["period"].(float64); ok && v > 0 {
		period = int(v)
	}
	rawCloses, ok := args["closes"].([]interface{})
	if !ok || len(rawCloses) < period {
		return domaintool.ErrorResult(domaintool.ErrKindInvalidArguments, "closes must have at least 'period' values"), nil
	}
	closes := make([]float64, len(rawCloses))
	for i, v := range rawCloses {
		f, _ := v.(float64)
		closes[i] = f
	}

	var value float64
	switch indicator {
	case "sma":
		value = sma(closes, period)
	case "ema":
		value = ema(closes, period)
	case "rsi":
		value = rsi(closes, period)
	default:
		return domaintool.ErrorResult(domaintool.ErrKindInvalidArguments, "unknown indicator: "+indicator), nil
	}

	return &Result{
		Output:  fmt.Sprintf("%s(%d) = %.4f", indicator, period, value),
		Success: true,
		Metadata: map[string]interface{}{
			"indicator": indicator,
			"period":    period,
			"value":     value,
		},
	}, nil
}

func sma(closes []float64, period int) float64 {
	window := closes[len(closes)-period:]
	sum := 0.0
	for _, c := range window {
		sum += c
	}
	return sum / float64(period)
}

func ema(closes []float64, period int) float64 {
	k := 2.0 / float64(period+1)
	start := len(closes) - period
	e := closes[start]
	for _, c := range closes[start+1:] {
		e = c*k + e*(1-k)
	}
	return e
}

func rsi(closes []float64, period int) float64 {
	window := closes[len(closes)-period-1:]
	var gain, loss float64
	for i := 1; i < len(window); i++ {
		diff := window[i] - window[i-1]
		if diff > 0 {
			gain += diff
		} else {
			loss -= diff
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// OrderStore records accepted orders (§6 external orders table).
type OrderStore interface {
	Append(order entity.Order) error
}

// PlaceOrderTool is the Executor-only place_order tool: it routes through
// RuleState's spot/contract position methods (§4.4) so a rejected order is
// returned as a no-op Result, never an error.
type PlaceOrderTool struct {
	rules  RuleStore
	orders OrderStore
	logger *zap.Logger
}

func NewPlaceOrderTool(rules RuleStore, orders OrderStore, logger *zap.Logger) *PlaceOrderTool {
	return &PlaceOrderTool{rules: rules, orders: orders, logger: logger}
}

func (t *PlaceOrderTool) Name() string          { return "place_order" }
func (t *PlaceOrderTool) Kind() domaintool.Kind { return domaintool.KindExecute }
func (t *PlaceOrderTool) Description() string {
	return "Place a buy/sell order for a rule's position, applying the spot or contract " +
		"position-state machine."
}

func (t *PlaceOrderTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"rule_id":  map[string]interface{}{"type": "string"},
			"symbol":   map[string]interface{}{"type": "string"},
			"side":     map[string]interface{}{"type": "string", "enum": []string{"buy", "sell"}},
			"price":    map[string]interface{}{"type": "number"},
			"quantity": map[string]interface{}{"type": "number"},
		},
		"required": []string{"rule_id", "symbol", "side", "price"},
	}
}

func (t *PlaceOrderTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	ruleID, _ := args["rule_id"].(string)
	symbol, _ := args["symbol"].(string)
	side := entity.OrderSide(fmt.Sprintf("%v", args["side"]))
	price, _ := args["price"].(float64)
	quantity, _ := args["quantity"].(float64)

	rule, ok := t.rules.Get(ruleID)
	if !ok {
		return domaintool.ErrorResult(domaintool.ErrKindInvalidArguments, "unknown rule_id: "+ruleID), nil
	}

	var (
		placed bool
		closed float64
		action string
	)
	switch rule.Requirements().Market {
	case entity.MarketSpot:
		switch side {
		case entity.SideBuy:
			placed = rule.ApplySpotBuy(price)
			action = "open"
		case entity.SideSell:
			closed, placed = rule.ApplySpotSell()
			action = "close"
		}
	case entity.MarketContract:
		switch side {
		case entity.SideBuy:
			closed, action, placed = rule.ApplyContractBuy(price, quantity)
		case entity.SideSell:
			closed, action, placed = rule.ApplyContractSell(price, quantity)
		}
	}

	if !placed {
		return &Result{
			Output:  fmt.Sprintf("order rejected: %s position state does not accept a %s", rule.Requirements().Market, side),
			Success: false,
		}, nil
	}
	if err := t.rules.Save(rule); err != nil {
		return domaintool.ErrorResult(domaintool.ErrKindToolIOError, err.Error()), nil
	}

	pnl := 0.0
	if closed > 0 {
		pnl = math.Round((price-rule.Runtime().EntryPrice)*closed*100) / 100
	}
	order := entity.NewOrder(ruleID, symbol, side, price, quantity, pnl)
	if err := t.orders.Append(order); err != nil {
		return domaintool.ErrorResult(domaintool.ErrKindToolIOError, err.Error()), nil
	}

	t.logger.Info("order placed", zap.String("rule_id", ruleID), zap.String("action", action))
	return &Result{
		Output:  fmt.Sprintf("order %s: %s %s @ %.4f", action, side, symbol, price),
		Success: true,
		Metadata: map[string]interface{}{
			"action": action,
			"closed": closed,
			"pnl":    pnl,
		},
	}, nil
}
