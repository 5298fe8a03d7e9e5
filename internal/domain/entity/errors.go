package entity

import "errors"

var (
	// Agent errors
	ErrInvalidAgentID      = errors.New("invalid agent id")
	ErrInvalidAgentName    = errors.New("invalid agent name")
	ErrSkillAlreadyExists  = errors.New("skill already exists")
	ErrSkillNotFound       = errors.New("skill not found")

	// Message errors
	ErrInvalidMessageID      = errors.New("invalid message id")
	ErrInvalidConversationID = errors.New("invalid conversation id")

	// Skill errors
	ErrInvalidSkillID   = errors.New("invalid skill id")
	ErrInvalidSkillName = errors.New("invalid skill name")

	// Conversation errors
	ErrInvalidChannelID = errors.New("invalid channel id")

	// ConversationMessage errors
	ErrInvalidRole        = errors.New("invalid message role")
	ErrMissingToolCallID  = errors.New("tool message missing tool_call_id")
	ErrDanglingToolCallID = errors.New("tool_call_id does not match any pending tool call")

	// Plan errors
	ErrEmptyPlanTask    = errors.New("plan task must not be empty")
	ErrEmptyPlanSteps   = errors.New("plan must have at least one step")
	ErrStepIDNotFound   = errors.New("step id not found in plan")
	ErrStepNotInProgress = errors.New("step is not in_progress")
	ErrInvalidStepTransition = errors.New("invalid step status transition")
	ErrInvalidPlanTransition = errors.New("invalid plan status transition")

	// CodeContext errors
	ErrInvalidFilePath = errors.New("file path is empty or escapes workspace root")

	// RuleState errors
	ErrInvalidRuleID        = errors.New("invalid rule id")
	ErrInvalidPositionState = errors.New("position_side/quantity inconsistent with is_holding")
)
