package entity

import "time"

// Role is the sender of a ConversationMessage in an LLM exchange.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ConversationMessage is one entry of a PlanExecuteAgent's ConversationHistory.
// It is distinct from Message (the chat-edge entity with a sender/channel
// identity): this type carries exactly the fields the LLM adapter contract
// needs — role, content, and the tool-call bookkeeping that keeps an
// assistant's tool-call requests paired with their tool results.
type ConversationMessage struct {
	role           Role
	content        string
	toolCalls      []ToolCallInfo
	toolCallID     string
	toolName       string
	isAbbreviated  bool
	fullContentRef string
	timestamp      time.Time
}

// NewUserMessage creates a user-authored message.
func NewUserMessage(content string) *ConversationMessage {
	return &ConversationMessage{role: RoleUser, content: content, timestamp: time.Now()}
}

// NewAssistantMessage creates an assistant reply, optionally carrying
// tool-call requests.
func NewAssistantMessage(content string, toolCalls []ToolCallInfo) *ConversationMessage {
	return &ConversationMessage{
		role:      RoleAssistant,
		content:   content,
		toolCalls: toolCalls,
		timestamp: time.Now(),
	}
}

// NewToolMessage creates a tool-result message referencing the tool-call id
// it answers.
func NewToolMessage(toolCallID, toolName, content string) (*ConversationMessage, error) {
	if toolCallID == "" {
		return nil, ErrMissingToolCallID
	}
	return &ConversationMessage{
		role:       RoleTool,
		content:    content,
		toolCallID: toolCallID,
		toolName:   toolName,
		timestamp:  time.Now(),
	}, nil
}

// ReconstructConversationMessage rehydrates a message from persistence.
func ReconstructConversationMessage(role Role, content string, toolCalls []ToolCallInfo, toolCallID, toolName string, isAbbreviated bool, fullContentRef string, timestamp time.Time) *ConversationMessage {
	return &ConversationMessage{
		role:           role,
		content:        content,
		toolCalls:      toolCalls,
		toolCallID:     toolCallID,
		toolName:       toolName,
		isAbbreviated:  isAbbreviated,
		fullContentRef: fullContentRef,
		timestamp:      timestamp,
	}
}

func (m *ConversationMessage) Role() Role                 { return m.role }
func (m *ConversationMessage) Content() string             { return m.content }
func (m *ConversationMessage) ToolCalls() []ToolCallInfo    { return m.toolCalls }
func (m *ConversationMessage) ToolCallID() string           { return m.toolCallID }
func (m *ConversationMessage) ToolName() string             { return m.toolName }
func (m *ConversationMessage) IsAbbreviated() bool          { return m.isAbbreviated }
func (m *ConversationMessage) FullContentRef() string       { return m.fullContentRef }
func (m *ConversationMessage) Timestamp() time.Time         { return m.timestamp }

// Abbreviate replaces the history projection of this message with a short
// marker pointing at where the full content still lives (focused_files),
// implementing the content-duplication policy: the same bytes never appear
// twice in a prompt. The original content is preserved in fullContentRef
// so a caller who needs it (e.g. re-display) can still reach it.
func (m *ConversationMessage) Abbreviate(marker string) {
	if m.isAbbreviated {
		return
	}
	m.fullContentRef = m.content
	m.content = marker
	m.isAbbreviated = true
}

// ConversationHistory is an ordered, eviction-bounded sequence of
// ConversationMessages. Eviction drops the oldest user/assistant/tool
// "triple" as a unit so a tool-call/tool-result pair is never split.
type ConversationHistory struct {
	messages      []*ConversationMessage
	maxMessages   int
}

// NewConversationHistory creates an empty history bounded at maxMessages
// (0 or negative means unbounded).
func NewConversationHistory(maxMessages int) *ConversationHistory {
	return &ConversationHistory{maxMessages: maxMessages}
}

// Append adds a message and evicts the oldest unit if the bound is exceeded.
func (h *ConversationHistory) Append(m *ConversationMessage) {
	h.messages = append(h.messages, m)
	h.evictIfNeeded()
}

// Messages returns the full history (read-only use expected by callers).
func (h *ConversationHistory) Messages() []*ConversationMessage {
	return h.messages
}

// Len returns the number of messages currently retained.
func (h *ConversationHistory) Len() int { return len(h.messages) }

// evictIfNeeded drops the oldest atomic unit — a user message and every
// message after it up to (but not including) the next user message, i.e. one
// full user/assistant+tool-calls/tool-results turn — so a tool-call and its
// tool-result are never separated by eviction. If no later user message
// exists, nothing is evicted.
func (h *ConversationHistory) evictIfNeeded() {
	if h.maxMessages <= 0 || len(h.messages) <= h.maxMessages {
		return
	}
	for len(h.messages) > h.maxMessages {
		cut := 1
		for cut < len(h.messages) && h.messages[cut].role != RoleUser {
			cut++
		}
		if cut >= len(h.messages) {
			break
		}
		h.messages = h.messages[cut:]
	}
}

// ToLLMProjection returns the history-projected view handed to the LLM
// adapter: abbreviated messages show their marker text, not their full
// content, per the content-duplication policy (§4.3.6).
func (h *ConversationHistory) ToLLMProjection() []*ConversationMessage {
	out := make([]*ConversationMessage, len(h.messages))
	copy(out, h.messages)
	return out
}

// ValidateToolPairing checks that every tool message answers a tool-call id
// that is still pending from an earlier assistant message. Tool-call ids that
// never receive a tool message are not reported.
func (h *ConversationHistory) ValidateToolPairing() error {
	pending := map[string]bool{}
	for _, m := range h.messages {
		switch m.role {
		case RoleAssistant:
			for _, tc := range m.toolCalls {
				pending[tc.ID] = true
			}
		case RoleTool:
			if !pending[m.toolCallID] {
				return ErrDanglingToolCallID
			}
			delete(pending, m.toolCallID)
		}
	}
	return nil
}
