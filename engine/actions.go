package engine

import (
	"context"
	"time"
)

// ActionKind enumerates everything the engine can ask a dispatcher to do.
type ActionKind string

const (
	ActionNone            ActionKind = "none"
	ActionDeleteMessage   ActionKind = "delete-message"
	ActionWarn            ActionKind = "warn"
	ActionMute            ActionKind = "mute"
	ActionKick            ActionKind = "kick"
	ActionBan             ActionKind = "ban"
	ActionLockdownEnable  ActionKind = "lockdown-enable"
	ActionLockdownDisable ActionKind = "lockdown-disable"
	ActionGrantXP         ActionKind = "grant-xp"
	ActionLevelUp         ActionKind = "level-up"
	ActionReviewFlag      ActionKind = "review-flag"
)

// Action is one instruction for the dispatcher. Actions are pure data:
// the engine decides, the platform adapter behind the dispatcher executes.
// TargetMemberID is empty for community-wide actions such as lockdowns.
type Action struct {
	Kind           ActionKind    `json:"kind"`
	CommunityID    string        `json:"communityId"`
	TargetMemberID string        `json:"targetMemberId,omitempty"`
	MessageID      string        `json:"messageId,omitempty"`
	Duration       time.Duration `json:"duration,omitempty"`
	Amount         int64         `json:"amount,omitempty"`
	NewLevel       int           `json:"newLevel,omitempty"`
	Reason         string        `json:"reason,omitempty"`
}

// DispatchEvent carries the ordered action sequence produced by one
// processed event, plus enough metadata for audit logging.
type DispatchEvent struct {
	Type        string    `json:"type"`
	CommunityID string    `json:"communityId"`
	MemberID    string    `json:"memberId,omitempty"`
	MessageID   string    `json:"messageId,omitempty"`
	Time        time.Time `json:"time"`
	Actions     []Action  `json:"actions"`
}

// Dispatcher receives the action batch for each processed event, exactly
// once, after all engine state mutations have committed.
type Dispatcher interface {
	Dispatch(ctx context.Context, evt *DispatchEvent) error
}
