package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quantagent/core/internal/domain/entity"
	"github.com/quantagent/core/internal/infrastructure/eventbus"
	"github.com/quantagent/core/pkg/safego"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// RuleProvider lists the rules currently eligible for scheduled evaluation
// (§4.4). The application layer's RuleStore satisfies this.
type RuleProvider interface {
	Active() []*entity.RuleState
}

// RuleExecutorConfig bounds the Executor's scheduler.
type RuleExecutorConfig struct {
	PollInterval  time.Duration // how often each rule is re-evaluated
	MaxIterations int           // tool-call bound per one-shot evaluation run
	Tools         []string      // domain tools allow-listed for evaluation runs
}

// DefaultRuleExecutorConfig returns production-ready defaults: a 60s poll
// cycle, converging in at most 10 tool-call iterations per rule (§4.4).
func DefaultRuleExecutorConfig() RuleExecutorConfig {
	return RuleExecutorConfig{
		PollInterval:  60 * time.Second,
		MaxIterations: 10,
		Tools:         []string{"get_klines", "calculate_indicator", "place_order"},
	}
}

// RuleExecutor is the Executor-side scheduler: for every active rule it
// independently polls at PollInterval, constructing a bounded one-shot
// Direct-mode agent run whose tool allow-list is narrowed to the trading
// domain tools and whose task is "decide buy/sell/hold given state S and
// rule R". Each rule gets its own polling goroutine (panic-isolated via
// safego.Go), so a panicking or erroring rule does not stop the others from
// polling. The evaluations themselves run one at a time (see runMu), so a
// slow evaluation delays the other rules' evaluations until it finishes.
type RuleExecutor struct {
	loop   *AgentLoop
	scoper StepToolScoper
	rules  RuleProvider
	bus    eventbus.Bus
	config RuleExecutorConfig
	logger *zap.Logger

	// loop and scoper are shared across every rule's goroutine (a single
	// AgentLoop owns one toolBridge), so each evaluation is serialized
	// through runMu — otherwise two rules evaluating concurrently would
	// race on the bridge's step-scoped tool list.
	runMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup

	errMu sync.Mutex
	err   error
}

// NewRuleExecutor wraps an AgentLoop dedicated to rule evaluation. bus may
// be nil (no lifecycle events published); scoper may be nil (evaluation
// runs see the full tool policy rather than just the three domain tools).
func NewRuleExecutor(loop *AgentLoop, scoper StepToolScoper, rules RuleProvider, bus eventbus.Bus, config RuleExecutorConfig, logger *zap.Logger) *RuleExecutor {
	if config.PollInterval <= 0 {
		config.PollInterval = 60 * time.Second
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = 10
	}
	if len(config.Tools) == 0 {
		config.Tools = []string{"get_klines", "calculate_indicator", "place_order"}
	}
	return &RuleExecutor{loop: loop, scoper: scoper, rules: rules, bus: bus, config: config, logger: logger}
}

// Start launches one independent polling goroutine per rule currently
// returned by RuleProvider.Active(). Rules activated after Start has run
// are not picked up until the executor is restarted — a static rule set
// per Start, matching how a Collector session hands a rule to the
// Executor exactly once via save_rule.
func (e *RuleExecutor) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	for _, rule := range e.rules.Active() {
		rule := rule
		e.wg.Add(1)
		safego.Go(e.logger, fmt.Sprintf("rule-executor-%s", rule.RuleID()), func() {
			defer e.wg.Done()
			e.pollRule(runCtx, rule)
		})
	}
	e.logger.Info("rule executor started", zap.Int("rules", len(e.rules.Active())))
}

// Stop cancels every rule's polling goroutine, waits for them to exit, and
// returns the combined evaluation errors accumulated during the run.
func (e *RuleExecutor) Stop() error {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()

	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.err
}

func (e *RuleExecutor) pollRule(ctx context.Context, rule *entity.RuleState) {
	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if rule.Active() != entity.RuleRunning {
				continue
			}
			if err := e.evaluateOnce(ctx, rule); err != nil {
				e.logger.Warn("rule evaluation failed",
					zap.String("rule_id", rule.RuleID()), zap.Error(err))
				e.errMu.Lock()
				e.err = multierr.Append(e.err, fmt.Errorf("rule %s: %w", rule.RuleID(), err))
				e.errMu.Unlock()
			}
		}
	}
}

// evaluateOnce runs one bounded Direct-mode agent turn for rule, scoped to
// {get_klines, calculate_indicator, place_order}.
func (e *RuleExecutor) evaluateOnce(ctx context.Context, rule *entity.RuleState) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.scoper != nil {
		e.scoper.SetStepTools(e.config.Tools)
		defer e.scoper.SetStepTools(nil)
	}

	req := rule.Requirements()
	runtime := rule.Runtime()
	prompt := fmt.Sprintf(
		"Decide buy/sell/hold for rule %s (%s market, symbols %v, timeframe %s).\n"+
			"Entry rules: %s\nTake profit: %s\nStop loss: %s\n"+
			"Current position: holding=%v side=%s quantity=%.8f entry_price=%.8f.\n"+
			"Call place_order if action is warranted, otherwise explain why holding.",
		rule.RuleID(), req.Market, req.Symbols, req.Timeframe,
		req.EntryRules, req.TakeProfit, req.StopLoss,
		runtime.IsHolding, runtime.PositionSide, runtime.Quantity, runtime.EntryPrice,
	)

	runCtx := WithMaxIterations(ctx, e.config.MaxIterations)
	result, eventCh := e.loop.Run(runCtx, "", prompt, nil, "")
	for ev := range eventCh {
		if ev.Timestamp.IsZero() {
			ev.Timestamp = time.Now()
		}
		if e.bus != nil {
			e.bus.Publish(ctx, eventbus.NewEvent(string(ev.Type), ev))
		}
	}
	if result == nil {
		return fmt.Errorf("no result produced")
	}
	e.logger.Info("rule evaluated",
		zap.String("rule_id", rule.RuleID()),
		zap.Int("steps", result.TotalSteps),
		zap.Strings("tools_used", result.ToolsUsed),
	)
	return nil
}
