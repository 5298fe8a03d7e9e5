package entity

// AgentMode is which orchestration mode a turn is currently running in.
type AgentMode string

const (
	ModeDirect AgentMode = "direct"
	ModePlan   AgentMode = "plan"
)

// AgentContext is the per-session data model owned by exactly one
// PlanExecuteAgent instance: task, plan, conversation history, code
// context, memory, and execution identity. It is created with the session,
// mutated only by its owning agent (so it needs no internal locking — §5),
// and discarded when the session ends.
type AgentContext struct {
	sessionID string
	projectID string
	mode      AgentMode

	task    string
	plan    *Plan
	history *ConversationHistory
	code    *CodeContext
	memory  *MemoryContext
}

// AgentContextConfig bounds the owned sub-structures.
type AgentContextConfig struct {
	MaxHistoryMessages int
	MaxFocusedChars    int
	MaxConventions     int
	MaxDecisions       int
}

// NewAgentContext creates a fresh context for a session.
func NewAgentContext(sessionID, projectID string, cfg AgentContextConfig) *AgentContext {
	return &AgentContext{
		sessionID: sessionID,
		projectID: projectID,
		mode:      ModeDirect,
		history:   NewConversationHistory(cfg.MaxHistoryMessages),
		code:      NewCodeContext(cfg.MaxFocusedChars),
		memory:    NewMemoryContext(cfg.MaxConventions, cfg.MaxDecisions),
	}
}

func (c *AgentContext) SessionID() string             { return c.sessionID }
func (c *AgentContext) ProjectID() string              { return c.projectID }
func (c *AgentContext) Mode() AgentMode                { return c.mode }
func (c *AgentContext) Task() string                   { return c.task }
func (c *AgentContext) Plan() *Plan                    { return c.plan }
func (c *AgentContext) History() *ConversationHistory   { return c.history }
func (c *AgentContext) Code() *CodeContext             { return c.code }
func (c *AgentContext) Memory() *MemoryContext          { return c.memory }

func (c *AgentContext) SetTask(task string)   { c.task = task }
func (c *AgentContext) EnterPlanMode(p *Plan) { c.mode = ModePlan; c.plan = p }
func (c *AgentContext) EnterDirectMode()      { c.mode = ModeDirect; c.plan = nil }

// AgentContextSnapshot is the round-trippable projection of an AgentContext used by
// the serialize/reload idempotence law (§8): same conversation projection,
// same plan state, same focused files and symbol index.
type AgentContextSnapshot struct {
	SessionID    string                 `json:"session_id"`
	ProjectID    string                 `json:"project_id"`
	Mode         AgentMode              `json:"mode"`
	Task         string                 `json:"task"`
	Plan         *PlanSnapshot          `json:"plan,omitempty"`
	FocusedFiles map[string]string      `json:"focused_files"`
	Conventions  []string               `json:"conventions"`
	Decisions    []Decision             `json:"decisions"`
}

// Snapshot produces the round-trip projection described above.
func (c *AgentContext) Snapshot() *AgentContextSnapshot {
	focused := make(map[string]string, len(c.code.FocusedFiles()))
	for p, f := range c.code.FocusedFiles() {
		focused[p] = f.Content()
	}
	var planSnap *PlanSnapshot
	if c.plan != nil {
		planSnap = c.plan.Snapshot()
	}
	return &AgentContextSnapshot{
		SessionID:    c.sessionID,
		ProjectID:    c.projectID,
		Mode:         c.mode,
		Task:         c.task,
		Plan:         planSnap,
		FocusedFiles: focused,
		Conventions:  c.memory.Conventions(),
		Decisions:    c.memory.Decisions(),
	}
}
