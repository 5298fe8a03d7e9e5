package entity

import (
	"errors"
	"testing"
)

func samplePlan(t *testing.T) *Plan {
	t.Helper()
	p, err := NewPlan("buy the dip on BTC", []PlanStepSpec{
		{Description: "fetch klines", ExpectedOutcome: "recent candles", ToolsNeeded: []string{"get_klines"}},
		{Description: "compute RSI", ExpectedOutcome: "rsi value", ToolsNeeded: []string{"calculate_indicator"}},
		{Description: "place order", ExpectedOutcome: "order filled", ToolsNeeded: []string{"place_order"}},
	})
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}
	return p
}

func TestNewPlan_RejectsEmptyTaskOrSteps(t *testing.T) {
	if _, err := NewPlan("", []PlanStepSpec{{Description: "x"}}); !errors.Is(err, ErrEmptyPlanTask) {
		t.Errorf("expected ErrEmptyPlanTask, got %v", err)
	}
	if _, err := NewPlan("task", nil); !errors.Is(err, ErrEmptyPlanSteps) {
		t.Errorf("expected ErrEmptyPlanSteps, got %v", err)
	}
}

func TestNewPlan_AssignsDenseStepIDs(t *testing.T) {
	p := samplePlan(t)
	for i, s := range p.Steps() {
		if s.ID() != i+1 {
			t.Errorf("step %d: expected id %d, got %d", i, i+1, s.ID())
		}
	}
	if p.CurrentStepID() != 1 {
		t.Errorf("expected current step 1, got %d", p.CurrentStepID())
	}
	if p.Status() != PlanStatusPlanning {
		t.Errorf("expected planning status, got %s", p.Status())
	}
}

func TestPlan_StartStep_RejectsConcurrentInProgress(t *testing.T) {
	p := samplePlan(t)
	if err := p.StartStep(1); err != nil {
		t.Fatalf("StartStep(1): %v", err)
	}
	if err := p.StartStep(2); !errors.Is(err, ErrInvalidStepTransition) {
		t.Errorf("expected ErrInvalidStepTransition starting a second step, got %v", err)
	}
}

func TestPlan_StartStep_UnknownID(t *testing.T) {
	p := samplePlan(t)
	if err := p.StartStep(99); !errors.Is(err, ErrStepIDNotFound) {
		t.Errorf("expected ErrStepIDNotFound, got %v", err)
	}
}

func TestPlanStep_Complete_ThenImmutable(t *testing.T) {
	p := samplePlan(t)
	step := p.Step(1)
	if err := step.Transition(StepStatusInProgress); err != nil {
		t.Fatalf("transition to in_progress: %v", err)
	}
	if err := step.Complete("done", []string{"a.go", "a.go", "b.go"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if step.Status() != StepStatusDone {
		t.Errorf("expected done, got %s", step.Status())
	}
	if got := step.FilesChanged(); len(got) != 2 {
		t.Errorf("expected deduped files_changed of len 2, got %v", got)
	}
	if err := step.Transition(StepStatusFailed); !errors.Is(err, ErrInvalidStepTransition) {
		t.Errorf("expected done step transition to be rejected, got %v", err)
	}
}

func TestPlan_AdvanceToNextStep(t *testing.T) {
	p := samplePlan(t)
	_ = p.StartStep(1)
	_ = p.Step(1).Complete("ok", nil)
	if !p.AdvanceToNextStep() {
		t.Fatal("expected a pending step to advance to")
	}
	if p.CurrentStepID() != 2 {
		t.Errorf("expected current step 2, got %d", p.CurrentStepID())
	}
	_ = p.StartStep(2)
	_ = p.Step(2).Complete("ok", nil)
	_ = p.StartStep(3)
	_ = p.Step(3).Complete("ok", nil)
	if p.AdvanceToNextStep() {
		t.Error("expected no further pending step")
	}
	if !p.AllStepsTerminal() {
		t.Error("expected all steps terminal")
	}
}

func TestPlan_Transition_ValidatesTable(t *testing.T) {
	p := samplePlan(t)
	if err := p.Transition(PlanStatusExecuting); err != nil {
		t.Fatalf("planning -> executing: %v", err)
	}
	if err := p.Transition(PlanStatusCompleted); err != nil {
		t.Fatalf("executing -> completed: %v", err)
	}
	if err := p.Transition(PlanStatusExecuting); !errors.Is(err, ErrInvalidPlanTransition) {
		t.Errorf("expected completed to be terminal, got %v", err)
	}
}

func TestPlan_Replan_ResetsFromStepAndBumpsVersion(t *testing.T) {
	p := samplePlan(t)
	_ = p.StartStep(1)
	_ = p.Step(1).Complete("ok", []string{"klines.json"})

	if err := p.Replan(2, []PlanStepSpec{
		{Description: "recompute with MACD instead", ToolsNeeded: []string{"calculate_indicator"}},
	}); err != nil {
		t.Fatalf("Replan: %v", err)
	}
	if p.Version() != 2 {
		t.Errorf("expected version 2, got %d", p.Version())
	}
	if p.ReplanCount() != 1 {
		t.Errorf("expected replan_count 1, got %d", p.ReplanCount())
	}
	if len(p.Steps()) != 2 {
		t.Fatalf("expected 2 steps after replan (1 kept + 1 new), got %d", len(p.Steps()))
	}
	if p.Steps()[0].Status() != StepStatusDone {
		t.Error("expected step before fromStepID to remain done")
	}
	if p.Steps()[1].Status() != StepStatusPending {
		t.Error("expected replanned step to be pending")
	}
}

func TestPlanStep_AllowsTool(t *testing.T) {
	scoped := NewPlanStep(1, "d", "e", []string{"get_klines"})
	if !scoped.AllowsTool("get_klines") {
		t.Error("expected get_klines to be allowed")
	}
	if scoped.AllowsTool("place_order") {
		t.Error("expected place_order to be disallowed")
	}
	unscoped := NewPlanStep(2, "d", "e", nil)
	if !unscoped.AllowsTool("anything") {
		t.Error("expected empty tools_needed to allow any tool")
	}
}

func TestPlan_Snapshot(t *testing.T) {
	p := samplePlan(t)
	snap := p.Snapshot()
	if snap.Task != p.Task() || len(snap.Steps) != len(p.Steps()) {
		t.Fatalf("snapshot mismatch: %+v", snap)
	}
	if snap.Status != PlanStatusPlanning {
		t.Errorf("expected planning, got %s", snap.Status)
	}
}
