package application

import (
	"context"
	"fmt"
	"sync"

	domaintool "github.com/quantagent/core/internal/domain/tool"
)

// toolBridge adapts domaintool.Registry → service.ToolExecutor.
// This allows the AgentLoop to discover and execute tools through the shared registry.
//
// stepTools, when non-empty, scopes execution to the tools_needed of the
// plan step currently in_progress (§4.3.3) on top of the global Policy;
// PlanExecuteAgent sets it before each step's sub-run and clears it in
// Direct mode.
type toolBridge struct {
	registry domaintool.Registry
	policy   *domaintool.Policy // nil = no extra gating beyond tool existence

	mu        sync.RWMutex
	stepTools []string
}

// SetStepTools scopes subsequent Execute calls to the given tools_needed
// list. Pass nil to clear the scope (Direct mode, or no active plan step).
func (b *toolBridge) SetStepTools(tools []string) {
	b.mu.Lock()
	b.stepTools = tools
	b.mu.Unlock()
}

// Execute implements service.ToolExecutor.Execute
func (b *toolBridge) Execute(ctx context.Context, name string, args map[string]interface{}) (*domaintool.Result, error) {
	b.mu.RLock()
	stepTools := b.stepTools
	b.mu.RUnlock()

	if b.policy != nil {
		enforcer := domaintool.NewPolicyEnforcer(b.policy, b.registry)
		if !enforcer.CanExecuteInStep(name, stepTools) {
			return domaintool.ErrorResult(domaintool.ErrKindToolNotAllowed,
				fmt.Sprintf("tool '%s' is not allowed in the current step", name)), nil
		}
	}

	tool, ok := b.registry.Get(name)
	if !ok {
		return &domaintool.Result{
			Output:  fmt.Sprintf("Tool '%s' not found", name),
			Success: false,
			Error:   fmt.Sprintf("tool '%s' not registered", name),
		}, nil
	}
	if err := domaintool.ValidateArgs(tool.Schema(), args); err != nil {
		return domaintool.ErrorResult(domaintool.ErrKindInvalidArguments, err.Error()), nil
	}
	return tool.Execute(ctx, args)
}

// GetDefinitions implements service.ToolExecutor.GetDefinitions
func (b *toolBridge) GetDefinitions() []domaintool.Definition {
	return b.registry.List()
}

// GetToolKind implements service.ToolExecutor.GetToolKind
func (b *toolBridge) GetToolKind(name string) domaintool.Kind {
	tool, ok := b.registry.Get(name)
	if !ok {
		return domaintool.KindExecute
	}
	return tool.Kind()
}
