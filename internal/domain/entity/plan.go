package entity

import (
	"fmt"
	"strings"
	"time"
)

// PlanStatus is the lifecycle state of a Plan.
type PlanStatus string

const (
	PlanStatusPlanning  PlanStatus = "planning"
	PlanStatusExecuting PlanStatus = "executing"
	PlanStatusCompleted PlanStatus = "completed"
	PlanStatusFailed    PlanStatus = "failed"
	PlanStatusCancelled PlanStatus = "cancelled"
)

// planTransitions is the whitelist table driving Plan.Transition, in the
// same explicit table-driven style as domain/service.StateMachine's
// validTransitions — cancelled is reachable from any non-terminal state,
// per §4.3.7.
var planTransitions = map[PlanStatus]map[PlanStatus]bool{
	PlanStatusPlanning: {
		PlanStatusExecuting: true,
		PlanStatusCancelled: true,
		PlanStatusFailed:    true, // plan_validation rejection before execution starts
	},
	PlanStatusExecuting: {
		PlanStatusCompleted: true,
		PlanStatusFailed:    true,
		PlanStatusCancelled: true,
	},
	PlanStatusCompleted: {},
	PlanStatusFailed:    {},
	PlanStatusCancelled: {},
}

func (s PlanStatus) IsTerminal() bool {
	return s == PlanStatusCompleted || s == PlanStatusFailed || s == PlanStatusCancelled
}

// StepStatus is the lifecycle state of a PlanStep.
type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusDone       StepStatus = "done"
	StepStatusFailed     StepStatus = "failed"
	StepStatusSkipped    StepStatus = "skipped"
)

var stepTransitions = map[StepStatus]map[StepStatus]bool{
	StepStatusPending: {
		StepStatusInProgress: true,
		StepStatusSkipped:    true,
	},
	StepStatusInProgress: {
		StepStatusDone:   true,
		StepStatusFailed: true,
		StepStatusSkipped: true, // dependents of a failed step are skipped
	},
	StepStatusDone:    {},
	StepStatusFailed:  {},
	StepStatusSkipped: {},
}

func (s StepStatus) IsTerminal() bool {
	return s == StepStatusDone || s == StepStatusFailed || s == StepStatusSkipped
}

// ToolCallRecord is the persisted record of one tool invocation made while
// executing a step, kept on the PlanStep independent of the transient
// ToolCallEvent emitted on the bus.
type ToolCallRecord struct {
	ID            string
	Name          string
	Arguments     map[string]interface{}
	OutputSummary string
	Success       bool
	Duration      time.Duration
}

// PlanStep is one declared unit of work inside a Plan.
type PlanStep struct {
	id             int
	description    string
	expectedOutcome string
	toolsNeeded    []string
	status         StepStatus
	startedAt      *time.Time
	completedAt    *time.Time
	result         string
	errMsg         string
	filesChanged   []string
	toolCalls      []ToolCallRecord
}

// NewPlanStep creates a pending step. id must be the step's 1-indexed
// position in the owning Plan.
func NewPlanStep(id int, description, expectedOutcome string, toolsNeeded []string) *PlanStep {
	return &PlanStep{
		id:              id,
		description:     description,
		expectedOutcome: expectedOutcome,
		toolsNeeded:     toolsNeeded,
		status:          StepStatusPending,
	}
}

func (s *PlanStep) ID() int                         { return s.id }
func (s *PlanStep) Description() string             { return s.description }
func (s *PlanStep) ExpectedOutcome() string          { return s.expectedOutcome }
func (s *PlanStep) ToolsNeeded() []string            { return s.toolsNeeded }
func (s *PlanStep) Status() StepStatus               { return s.status }
func (s *PlanStep) StartedAt() *time.Time            { return s.startedAt }
func (s *PlanStep) CompletedAt() *time.Time          { return s.completedAt }
func (s *PlanStep) Result() string                   { return s.result }
func (s *PlanStep) Error() string                    { return s.errMsg }
func (s *PlanStep) FilesChanged() []string            { return s.filesChanged }
func (s *PlanStep) ToolCalls() []ToolCallRecord        { return s.toolCalls }

// AllowsTool reports whether name is inside this step's tools_needed
// allow-list. An empty allow-list means every registered tool is allowed.
func (s *PlanStep) AllowsTool(name string) bool {
	if len(s.toolsNeeded) == 0 {
		return true
	}
	for _, t := range s.toolsNeeded {
		if t == name {
			return true
		}
	}
	return false
}

// Transition moves the step to a new status, validating against
// stepTransitions. Once done, a step is immutable (§3 invariant).
func (s *PlanStep) Transition(to StepStatus) error {
	if s.status == StepStatusDone {
		return ErrInvalidStepTransition
	}
	if !stepTransitions[s.status][to] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStepTransition, s.status, to)
	}
	now := time.Now()
	switch to {
	case StepStatusInProgress:
		s.startedAt = &now
	case StepStatusDone, StepStatusFailed, StepStatusSkipped:
		s.completedAt = &now
	}
	s.status = to
	return nil
}

// Complete marks the step done, recording its union of changed files.
func (s *PlanStep) Complete(result string, filesChanged []string) error {
	if err := s.Transition(StepStatusDone); err != nil {
		return err
	}
	s.result = result
	s.filesChanged = dedupeStrings(filesChanged)
	return nil
}

// Fail marks the step failed with the given error message.
func (s *PlanStep) Fail(errMsg string) error {
	if err := s.Transition(StepStatusFailed); err != nil {
		return err
	}
	s.errMsg = errMsg
	return nil
}

// RecordToolCall appends a tool-call record and folds any files_changed
// metadata into the step's running set (used by the scope-drift anomaly
// check and by step_completed's files_changed).
func (s *PlanStep) RecordToolCall(rec ToolCallRecord, filesChanged []string) {
	s.toolCalls = append(s.toolCalls, rec)
	if len(filesChanged) > 0 {
		s.filesChanged = dedupeStrings(append(s.filesChanged, filesChanged...))
	}
}

// resetToPending resets a step back to pending. Replan does not call it; it
// builds fresh pending steps instead.
func (s *PlanStep) resetToPending() {
	s.status = StepStatusPending
	s.startedAt = nil
	s.completedAt = nil
	s.result = ""
	s.errMsg = ""
	s.filesChanged = nil
	s.toolCalls = nil
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Plan is the structured execution plan a model produces via create_plan.
type Plan struct {
	task          string
	steps         []*PlanStep
	currentStepID int
	status        PlanStatus
	version       int
	replanCount   int
	createdAt     time.Time
	updatedAt     time.Time
}

// NewPlan materializes a Plan from a task and a list of
// (description, expected_outcome, tools_needed) step specs, assigning
// dense 1-indexed ids and pending status to every step.
func NewPlan(task string, steps []PlanStepSpec) (*Plan, error) {
	if strings.TrimSpace(task) == "" {
		return nil, ErrEmptyPlanTask
	}
	if len(steps) == 0 {
		return nil, ErrEmptyPlanSteps
	}
	now := time.Now()
	p := &Plan{
		task:      task,
		status:    PlanStatusPlanning,
		version:   1,
		createdAt: now,
		updatedAt: now,
	}
	for i, spec := range steps {
		p.steps = append(p.steps, NewPlanStep(i+1, spec.Description, spec.ExpectedOutcome, spec.ToolsNeeded))
	}
	p.currentStepID = p.steps[0].ID()
	return p, nil
}

// PlanStepSpec is the argument shape create_plan accepts per step.
type PlanStepSpec struct {
	Description     string
	ExpectedOutcome string
	ToolsNeeded     []string
}

func (p *Plan) Task() string            { return p.task }
func (p *Plan) Steps() []*PlanStep        { return p.steps }
func (p *Plan) CurrentStepID() int        { return p.currentStepID }
func (p *Plan) Status() PlanStatus         { return p.status }
func (p *Plan) Version() int              { return p.version }
func (p *Plan) ReplanCount() int          { return p.replanCount }

// Step returns the step with the given id, or nil.
func (p *Plan) Step(id int) *PlanStep {
	for _, s := range p.steps {
		if s.ID() == id {
			return s
		}
	}
	return nil
}

// InProgressStep returns the currently in_progress step, if any.
func (p *Plan) InProgressStep() *PlanStep {
	for _, s := range p.steps {
		if s.Status() == StepStatusInProgress {
			return s
		}
	}
	return nil
}

// Transition moves the plan to a new status, validating against
// planTransitions.
func (p *Plan) Transition(to PlanStatus) error {
	if !planTransitions[p.status][to] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidPlanTransition, p.status, to)
	}
	p.status = to
	p.updatedAt = time.Now()
	return nil
}

// StartStep transitions the plan's current step to in_progress. It is an
// error to call this while another step is already in_progress.
func (p *Plan) StartStep(id int) error {
	if p.InProgressStep() != nil {
		return ErrInvalidStepTransition
	}
	step := p.Step(id)
	if step == nil {
		return ErrStepIDNotFound
	}
	if err := step.Transition(StepStatusInProgress); err != nil {
		return err
	}
	p.currentStepID = id
	p.updatedAt = time.Now()
	return nil
}

// AdvanceToNextStep moves current_step_id to the next pending step, if any.
// Returns false when there is no further pending step (the plan is ready to
// be marked completed).
func (p *Plan) AdvanceToNextStep() bool {
	for _, s := range p.steps {
		if s.Status() == StepStatusPending {
			p.currentStepID = s.ID()
			return true
		}
	}
	return false
}

// AllStepsTerminal reports whether every step has reached a terminal status.
func (p *Plan) AllStepsTerminal() bool {
	for _, s := range p.steps {
		if !s.Status().IsTerminal() {
			return false
		}
	}
	return true
}

// Replan replaces the steps from fromStepID onward with newSteps, resetting
// them to pending under a bumped plan version, and increments replan_count
// (§4.3.3, §4.3.7).
func (p *Plan) Replan(fromStepID int, newSteps []PlanStepSpec) error {
	if len(newSteps) == 0 {
		return ErrEmptyPlanSteps
	}
	kept := make([]*PlanStep, 0, len(p.steps))
	for _, s := range p.steps {
		if s.ID() < fromStepID {
			kept = append(kept, s)
		}
	}
	nextID := len(kept) + 1
	for _, spec := range newSteps {
		kept = append(kept, NewPlanStep(nextID, spec.Description, spec.ExpectedOutcome, spec.ToolsNeeded))
		nextID++
	}
	p.steps = kept
	p.version++
	p.replanCount++
	p.currentStepID = fromStepID
	p.updatedAt = time.Now()
	return nil
}

// Summary renders the plan as a step-status icon list with the current
// step marked, the same presentation the prompt (§4.3.5) and the
// plan_created/plan_execution_completed events use.
func (p *Plan) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Goal: %s\n", p.task)
	for _, s := range p.steps {
		icon := stepIcon(s.Status())
		marker := "  "
		if s.ID() == p.currentStepID {
			marker = "→ "
		}
		fmt.Fprintf(&sb, "%s%s %d. %s\n", marker, icon, s.ID(), s.Description())
	}
	return sb.String()
}

func stepIcon(s StepStatus) string {
	switch s {
	case StepStatusDone:
		return "[done]"
	case StepStatusInProgress:
		return "[in_progress]"
	case StepStatusFailed:
		return "[failed]"
	case StepStatusSkipped:
		return "[skipped]"
	default:
		return "[pending]"
	}
}

// PlanSnapshot is the serialized view of a Plan carried on AgentEvent and
// persisted to the gRPC surface; it mirrors the entity read-only so event
// emission never races a concurrent plan mutation.
type PlanSnapshot struct {
	Task          string             `json:"task"`
	Steps         []PlanStepSnapshot `json:"steps"`
	CurrentStepID int                `json:"current_step_id"`
	Status        PlanStatus         `json:"status"`
	Version       int                `json:"version"`
	ReplanCount   int                `json:"replan_count"`
}

type PlanStepSnapshot struct {
	ID              int        `json:"id"`
	Description     string     `json:"description"`
	ExpectedOutcome string     `json:"expected_outcome"`
	ToolsNeeded     []string   `json:"tools_needed,omitempty"`
	Status          StepStatus `json:"status"`
	FilesChanged    []string   `json:"files_changed,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// Snapshot produces a PlanSnapshot of the plan's current state.
func (p *Plan) Snapshot() *PlanSnapshot {
	steps := make([]PlanStepSnapshot, len(p.steps))
	for i, s := range p.steps {
		steps[i] = PlanStepSnapshot{
			ID:              s.ID(),
			Description:     s.Description(),
			ExpectedOutcome: s.ExpectedOutcome(),
			ToolsNeeded:     s.ToolsNeeded(),
			Status:          s.Status(),
			FilesChanged:    s.FilesChanged(),
			Error:           s.Error(),
		}
	}
	return &PlanSnapshot{
		Task:          p.task,
		Steps:         steps,
		CurrentStepID: p.currentStepID,
		Status:        p.status,
		Version:       p.version,
		ReplanCount:   p.replanCount,
	}
}
