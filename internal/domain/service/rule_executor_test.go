package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/quantagent/core/internal/domain/entity"
	domaintool "github.com/quantagent/core/internal/domain/tool"
	"go.uber.org/zap"
)

type fakeLLMClient struct{}

func (fakeLLMClient) Generate(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	return &LLMResponse{Content: "holding, no signal yet"}, nil
}

func (fakeLLMClient) GenerateStream(ctx context.Context, req *LLMRequest, deltaCh chan<- StreamChunk) (*LLMResponse, error) {
	return &LLMResponse{Content: "holding, no signal yet"}, nil
}

type fakeToolExecutor struct {
	mu    sync.Mutex
	scope []string
}

func (e *fakeToolExecutor) Execute(ctx context.Context, name string, args map[string]interface{}) (*domaintool.Result, error) {
	return &domaintool.Result{Success: true, Output: "ok"}, nil
}

func (e *fakeToolExecutor) GetDefinitions() []domaintool.Definition { return nil }
func (e *fakeToolExecutor) GetToolKind(name string) domaintool.Kind { return domaintool.KindExecute }

func (e *fakeToolExecutor) SetStepTools(tools []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scope = tools
}

func (e *fakeToolExecutor) currentScope() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scope
}

type fakeRuleProvider struct {
	rules []*entity.RuleState
}

func (p *fakeRuleProvider) Active() []*entity.RuleState {
	var out []*entity.RuleState
	for _, r := range p.rules {
		if r.Active() == entity.RuleRunning {
			out = append(out, r)
		}
	}
	return out
}

func newTestRule(t *testing.T, id string) *entity.RuleState {
	t.Helper()
	r, err := entity.NewRuleState(id, entity.RuleRequirements{
		Market:    entity.MarketSpot,
		Symbols:   []string{"BTCUSDT"},
		Timeframe: "1h",
	})
	if err != nil {
		t.Fatalf("NewRuleState: %v", err)
	}
	r.Start()
	return r
}

func TestDefaultRuleExecutorConfig(t *testing.T) {
	cfg := DefaultRuleExecutorConfig()
	if cfg.PollInterval != 60*time.Second {
		t.Errorf("expected 60s poll interval, got %v", cfg.PollInterval)
	}
	if cfg.MaxIterations != 10 {
		t.Errorf("expected 10 max iterations, got %d", cfg.MaxIterations)
	}
	want := []string{"get_klines", "calculate_indicator", "place_order"}
	if len(cfg.Tools) != len(want) {
		t.Fatalf("expected %v, got %v", want, cfg.Tools)
	}
	for i, tool := range want {
		if cfg.Tools[i] != tool {
			t.Errorf("tool %d: expected %s, got %s", i, tool, cfg.Tools[i])
		}
	}
}

func TestNewRuleExecutor_FillsZeroValueDefaults(t *testing.T) {
	loop := NewAgentLoop(fakeLLMClient{}, &fakeToolExecutor{}, AgentLoopConfig{}, zap.NewNop())
	e := NewRuleExecutor(loop, nil, &fakeRuleProvider{}, nil, RuleExecutorConfig{}, zap.NewNop())
	if e.config.PollInterval != 60*time.Second {
		t.Errorf("expected default poll interval, got %v", e.config.PollInterval)
	}
	if e.config.MaxIterations != 10 {
		t.Errorf("expected default max iterations, got %d", e.config.MaxIterations)
	}
	if len(e.config.Tools) != 3 {
		t.Errorf("expected default tool scope of 3, got %v", e.config.Tools)
	}
}

func TestRuleExecutor_EvaluateOnce_ClearsToolScope(t *testing.T) {
	loop := NewAgentLoop(fakeLLMClient{}, &fakeToolExecutor{}, AgentLoopConfig{}, zap.NewNop())
	tools := &fakeToolExecutor{}
	rule := newTestRule(t, "rule-1")
	cfg := RuleExecutorConfig{PollInterval: time.Hour, MaxIterations: 2, Tools: []string{"get_klines"}}

	e := NewRuleExecutor(loop, tools, &fakeRuleProvider{rules: []*entity.RuleState{rule}}, nil, cfg, zap.NewNop())

	if err := e.evaluateOnce(context.Background(), rule); err != nil {
		t.Fatalf("evaluateOnce: %v", err)
	}
	// Scope must be cleared again once the run completes.
	if scope := tools.currentScope(); scope != nil {
		t.Errorf("expected step scope cleared after evaluation, got %v", scope)
	}
}

func TestRuleExecutor_StartStop_JoinsGoroutines(t *testing.T) {
	loop := NewAgentLoop(fakeLLMClient{}, &fakeToolExecutor{}, AgentLoopConfig{}, zap.NewNop())
	rule := newTestRule(t, "rule-1")
	cfg := RuleExecutorConfig{PollInterval: 10 * time.Millisecond, MaxIterations: 2}
	e := NewRuleExecutor(loop, &fakeToolExecutor{}, &fakeRuleProvider{rules: []*entity.RuleState{rule}}, nil, cfg, zap.NewNop())

	e.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	if err := e.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
