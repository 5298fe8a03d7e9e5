package entity

import "time"

// AgentEventType is the tag of the sum-type event stream produced by a
// PlanExecuteAgent run. One EventBus run carries exactly the kinds below,
// always starting with EventResponseStart and ending with EventResponseEnd.
type AgentEventType string

const (
	EventResponseStart AgentEventType = "response_start"

	EventPlanCreated           AgentEventType = "plan_created"
	EventPlanAwaitingApproval  AgentEventType = "plan_awaiting_approval"
	EventPlanApproved          AgentEventType = "plan_approved"
	EventPlanRejected          AgentEventType = "plan_rejected"
	EventPlanModified          AgentEventType = "plan_modified"
	EventPlanExecutionStarted  AgentEventType = "plan_execution_started"
	EventPlanExecutionDone     AgentEventType = "plan_execution_completed"
	EventPlanExecutionFailed   AgentEventType = "plan_execution_failed"
	EventPlanExecutionCanceled AgentEventType = "plan_execution_cancelled"

	EventStepStarted   AgentEventType = "step_started"
	EventStepOutput    AgentEventType = "step_output"
	EventToolCalls     AgentEventType = "tool_calls"
	EventToolResult    AgentEventType = "tool_result"
	EventStepCompleted AgentEventType = "step_completed"
	EventStepError     AgentEventType = "step_error"
	EventStepFailed    AgentEventType = "step_failed"

	EventToken AgentEventType = "token"

	EventFileChange      AgentEventType = "file_change"
	EventFileRunStarted  AgentEventType = "file_run_started"
	EventFileRunStdout   AgentEventType = "file_run_stdout"
	EventFileRunStderr   AgentEventType = "file_run_stderr"
	EventFileRunExit     AgentEventType = "file_run_exit"
	EventAnomalyDetected AgentEventType = "anomaly_detected"
	EventReplanWarning   AgentEventType = "replan_warning"

	EventStatus       AgentEventType = "status"
	EventError        AgentEventType = "error"
	EventResponseEnd  AgentEventType = "response_end"

	// Retained for code still consuming the teacher's earlier event model.
	EventTextDelta  AgentEventType = "text_delta"
	EventToolCall   AgentEventType = "tool_call"
	EventThinking   AgentEventType = "thinking"
	EventStepDone   AgentEventType = "step_done"
	EventDone       AgentEventType = "done"
)

// AgentEvent is the single concrete struct every AgentEventType is carried
// in; the active payload is selected by Type, the rest are left zero. This
// mirrors the sum-type-over-one-struct idiom already used for tagged events
// in this codebase, widened to the full event table.
type AgentEvent struct {
	Type      AgentEventType `json:"type"`
	Content   string         `json:"content,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorKind string         `json:"error_kind,omitempty"`
	Timestamp time.Time      `json:"timestamp"`

	Mode string `json:"mode,omitempty"` // response_start: "direct" | "plan"

	Plan *PlanSnapshot `json:"plan,omitempty"`

	StepID   int           `json:"step_id,omitempty"`
	ToolCall *ToolCallEvent `json:"tool_call,omitempty"`
	ToolCalls []ToolCallEvent `json:"tool_calls,omitempty"`
	ToolResult *ToolResultEvent `json:"tool_result,omitempty"`
	Progress *StepProgress `json:"progress,omitempty"`
	FilesChanged []string `json:"files_changed,omitempty"`

	Path string `json:"path,omitempty"` // file_change

	ExitCode int           `json:"exit_code,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`

	StepInfo *StepInfo `json:"step_info,omitempty"`
}

// StepProgress reports how many of a plan's steps are finished, in flight,
// or still pending, for the step_started/step_completed events.
type StepProgress struct {
	Done       int `json:"done"`
	Total      int `json:"total"`
	InProgress int `json:"in_progress"`
}

// ToolCallEvent describes one requested tool invocation, as emitted on the
// tool_calls event (possibly several per event, in the order the model
// listed them).
type ToolCallEvent struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
	Output    string                 `json:"output,omitempty"`
	Display   string                 `json:"display,omitempty"`
	Success   bool                   `json:"success"`
	Duration  time.Duration          `json:"duration,omitempty"`
}

// ToolResultEvent is the tool_result payload: a summarized view of a
// ToolCallEvent's outcome, keyed back to the call by ToolCallID.
type ToolResultEvent struct {
	ToolCallID    string `json:"tool_call_id"`
	Tool          string `json:"tool"`
	Success       bool   `json:"success"`
	OutputSummary string `json:"output_summary"`
	Error         string `json:"error,omitempty"`
	ErrorKind     string `json:"error_kind,omitempty"`
}

// StepInfo provides metadata about the current agent step
type StepInfo struct {
	Step       int    `json:"step"`
	TokensUsed int    `json:"tokens_used"`
	ModelUsed  string `json:"model_used"`
	State      string `json:"state,omitempty"`
}

// ToolCallInfo represents a tool call parsed from an LLM response, the
// shape the orchestrator works with before it is lowered to a ToolCallEvent.
type ToolCallInfo struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}
