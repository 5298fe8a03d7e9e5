package service

import (
	"context"
	"fmt"
	"time"

	"github.com/quantagent/core/internal/domain/entity"
	"github.com/quantagent/core/internal/infrastructure/eventbus"
	"go.uber.org/zap"
)

// StepToolScoper narrows tool execution to a plan step's tools_needed list
// (§4.3.3). The application layer's tool bridge implements this; a
// PlanExecuteAgent built without one simply runs every step unscoped.
type StepToolScoper interface {
	SetStepTools(tools []string)
}

// PlanExecuteAgentConfig bounds a single sub-run (one Direct-mode turn, or
// one Plan-mode step) the same way AgentLoopConfig.MaxIterations bounds a
// bare AgentLoop run.
type PlanExecuteAgentConfig struct {
	MaxStepIterations int // bound applied to each individual plan step's sub-run
}

// DefaultPlanExecuteAgentConfig returns production-ready defaults.
func DefaultPlanExecuteAgentConfig() PlanExecuteAgentConfig {
	return PlanExecuteAgentConfig{MaxStepIterations: 10}
}

// PlanExecuteAgent is the orchestrator that owns an AgentContext across a
// turn: it runs the underlying AgentLoop in Direct mode, detects when the
// model has switched the context into Plan mode (via create_plan), and — if
// so — drives the plan's steps strictly in listed order, one in_progress at
// a time, scoping each step's tool calls to its own tools_needed list and
// publishing the full turn/plan lifecycle (§4.1, §4.3) both onto the event
// bus and onto the caller's own streaming channel, the same dual-sink shape
// AgentLoop.Run already uses for its own (legacy-compat) events.
type PlanExecuteAgent struct {
	loop   *AgentLoop
	bus    eventbus.Bus
	scoper StepToolScoper
	config PlanExecuteAgentConfig
	logger *zap.Logger
}

// NewPlanExecuteAgent wraps an already-constructed AgentLoop. bus and scoper
// may both be nil (events are only delivered on the returned channel, steps
// run with the global tool policy only).
func NewPlanExecuteAgent(loop *AgentLoop, bus eventbus.Bus, scoper StepToolScoper, config PlanExecuteAgentConfig, logger *zap.Logger) *PlanExecuteAgent {
	if config.MaxStepIterations <= 0 {
		config.MaxStepIterations = 10
	}
	return &PlanExecuteAgent{loop: loop, bus: bus, scoper: scoper, config: config, logger: logger}
}

// Run executes one full turn against ac — a bounded Direct-mode sub-run,
// followed, if the model called create_plan, by sequential Plan-mode step
// sub-runs — and streams every event produced along the way on the
// returned channel (closed when the turn ends), mirroring AgentLoop.Run's
// own (result, eventCh) shape so existing channel-based consumers (HTTP
// SSE, Telegram, TUI) need no protocol change to sit on top of the bounded
// orchestrator instead of the bare loop.
func (a *PlanExecuteAgent) Run(ctx context.Context, ac *entity.AgentContext, systemPrompt, userMessage string, seedHistory []LLMMessage, modelOverride string) (*AgentResult, <-chan entity.AgentEvent) {
	eventCh := make(chan entity.AgentEvent, 64)
	result := &AgentResult{}

	go func() {
		defer close(eventCh)
		emit := func(ev entity.AgentEvent) {
			if ev.Timestamp.IsZero() {
				ev.Timestamp = time.Now()
			}
			select {
			case eventCh <- ev:
			case <-ctx.Done():
			}
			if a.bus != nil {
				a.bus.Publish(ctx, eventbus.NewEvent(string(ev.Type), ev))
			}
		}

		emit(entity.AgentEvent{Type: entity.EventResponseStart, Mode: string(ac.Mode())})
		defer emit(entity.AgentEvent{Type: entity.EventResponseEnd})

		if a.scoper != nil {
			a.scoper.SetStepTools(nil)
		}
		ac.SetTask(userMessage)
		if ac.History().Len() == 0 {
			seedConversationHistory(ac, seedHistory)
		}

		turnResult := a.runTurn(ctx, ac, systemPrompt, userMessage, modelOverride, emit)
		if turnResult != nil {
			*result = *turnResult
		}
	}()

	return result, eventCh
}

// runTurn is Run's synchronous body: bounded Direct-mode sub-run, then (if
// the model entered Plan mode) sequential Plan-mode execution.
func (a *PlanExecuteAgent) runTurn(ctx context.Context, ac *entity.AgentContext, systemPrompt, userMessage, modelOverride string, emit func(entity.AgentEvent)) *AgentResult {
	history := historyToMessages(ac.History())
	result := a.runBounded(ctx, systemPrompt, userMessage, history, modelOverride, a.loop.config.MaxIterations, emit)
	recordTurn(ac, userMessage, result)

	if ac.Mode() != entity.ModePlan || ac.Plan() == nil {
		return result
	}

	if planResult := a.runPlan(ctx, ac, systemPrompt, modelOverride, emit); planResult != nil {
		return planResult
	}
	return result
}

// runPlan drives ac.Plan()'s steps sequentially in listed order, one
// in_progress at a time (§4.3.2), until every step reaches a terminal
// status, a replan reshapes the remaining steps (AdvanceToNextStep keeps
// walking the new shape), or ctx is cancelled.
func (a *PlanExecuteAgent) runPlan(ctx context.Context, ac *entity.AgentContext, systemPrompt, modelOverride string, emit func(entity.AgentEvent)) *AgentResult {
	plan := ac.Plan()
	if err := plan.Transition(entity.PlanStatusExecuting); err != nil {
		a.logger.Warn("plan could not enter executing state", zap.Error(err))
		return nil
	}
	emit(entity.AgentEvent{Type: entity.EventPlanApproved, Plan: plan.Snapshot()})
	emit(entity.AgentEvent{Type: entity.EventPlanExecutionStarted, Plan: plan.Snapshot()})

	var last *AgentResult
	for !plan.AllStepsTerminal() {
		if ctx.Err() != nil {
			_ = plan.Transition(entity.PlanStatusCancelled)
			emit(entity.AgentEvent{Type: entity.EventPlanExecutionCanceled, Plan: plan.Snapshot()})
			return last
		}

		step := plan.InProgressStep()
		if step == nil {
			if !plan.AdvanceToNextStep() {
				break
			}
			step = plan.Step(plan.CurrentStepID())
			if err := plan.StartStep(step.ID()); err != nil {
				a.logger.Error("could not start plan step", zap.Int("step", step.ID()), zap.Error(err))
				break
			}
		}

		if a.scoper != nil {
			a.scoper.SetStepTools(step.ToolsNeeded())
		}
		emit(entity.AgentEvent{Type: entity.EventStepStarted, StepID: step.ID(), Progress: planProgress(plan)})

		prompt := fmt.Sprintf(
			"Plan step %d/%d: %s\nExpected outcome: %s\nWhen finished, call task_complete.",
			step.ID(), len(plan.Steps()), step.Description(), step.ExpectedOutcome(),
		)
		history := historyToMessages(ac.History())
		stepResult := a.runBounded(ctx, systemPrompt, prompt, history, modelOverride, a.config.MaxStepIterations, emit)
		last = stepResult
		recordTurn(ac, prompt, stepResult)

		switch {
		case step.Status() == entity.StepStatusInProgress:
			// Model never called task_complete within the step's bound —
			// the step is treated as failed rather than left dangling.
			_ = step.Fail("step iteration bound reached without task_complete")
			emit(entity.AgentEvent{Type: entity.EventStepFailed, StepID: step.ID(), Error: "step iteration bound reached"})
		case step.Status() == entity.StepStatusFailed:
			emit(entity.AgentEvent{Type: entity.EventStepFailed, StepID: step.ID(), Error: step.Error()})
		default:
			emit(entity.AgentEvent{Type: entity.EventStepCompleted, StepID: step.ID(), Progress: planProgress(plan)})
		}

		if !plan.AdvanceToNextStep() && !plan.AllStepsTerminal() {
			break
		}
	}

	if a.scoper != nil {
		a.scoper.SetStepTools(nil)
	}

	if plan.AllStepsTerminal() {
		anyFailed := false
		for _, s := range plan.Steps() {
			if s.Status() == entity.StepStatusFailed {
				anyFailed = true
				break
			}
		}
		if anyFailed {
			_ = plan.Transition(entity.PlanStatusFailed)
			emit(entity.AgentEvent{Type: entity.EventPlanExecutionFailed, Plan: plan.Snapshot()})
		} else {
			_ = plan.Transition(entity.PlanStatusCompleted)
			emit(entity.AgentEvent{Type: entity.EventPlanExecutionDone, Plan: plan.Snapshot()})
		}
	}

	return last
}

// runBounded runs the underlying AgentLoop for a single sub-run capped at
// maxIterations, relaying every event it produces through emit.
func (a *PlanExecuteAgent) runBounded(ctx context.Context, systemPrompt, message string, history []LLMMessage, modelOverride string, maxIterations int, emit func(entity.AgentEvent)) *AgentResult {
	ctx = WithMaxIterations(ctx, maxIterations)
	result, loopCh := a.loop.Run(ctx, systemPrompt, message, history, modelOverride)
	for ev := range loopCh {
		emit(ev)
	}
	return result
}

// planProgress tallies a plan's step statuses, mirroring the tool layer's
// own helper of the same name (infrastructure/tool/domain_tools.go) since
// the two packages don't share an import path back to each other.
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

// historyToMessages projects an AgentContext's conversation history into
// the LLMMessage shape AgentLoop.Run expects.
func historyToMessages(h *entity.ConversationHistory) []LLMMessage {
	msgs := make([]LLMMessage, 0, h.Len())
	for _, m := range h.Messages() {
		msgs = append(msgs, LLMMessage{
			Role:       string(m.Role()),
			Content:    m.Content(),
			ToolCalls:  m.ToolCalls(),
			ToolCallID: m.ToolCallID(),
			Name:       m.ToolName(),
		})
	}
	return msgs
}

// seedConversationHistory converts a caller-managed history slice (e.g. one
// loaded from a chat adapter's own storage) into ac's ConversationHistory,
// run once per fresh AgentContext so later turns rely on ac's own
// bookkeeping instead of re-importing the caller's copy.
func seedConversationHistory(ac *entity.AgentContext, history []LLMMessage) {
	for _, m := range history {
		switch entity.Role(m.Role) {
		case entity.RoleUser:
			ac.History().Append(entity.NewUserMessage(m.Content))
		case entity.RoleAssistant:
			ac.History().Append(entity.NewAssistantMessage(m.Content, m.ToolCalls))
		case entity.RoleTool:
			if msg, err := entity.NewToolMessage(m.ToolCallID, m.Name, m.Content); err == nil {
				ac.History().Append(msg)
			}
		}
	}
}

// recordTurn appends the user prompt and the resulting assistant answer to
// ac's history so the next sub-run (next plan step, or a later Direct-mode
// turn) sees it as prior context.
func recordTurn(ac *entity.AgentContext, userMessage string, result *AgentResult) {
	ac.History().Append(entity.NewUserMessage(userMessage))
	if result == nil {
		return
	}
	ac.History().Append(entity.NewAssistantMessage(result.FinalContent, nil))
}
