package engine

import (
	"fmt"
	"time"
)

// Event type labels, used on dispatch events and metrics.
const (
	EventMessage     = "message"
	EventJoin        = "join"
	EventLeave       = "leave"
	EventReaction    = "reaction"
	EventAdminStrike = "admin-strike"
	EventRaidStatus  = "raid-status"
)

// MessageEvent is a chat message awaiting a moderation decision.
type MessageEvent struct {
	CommunityID string    `json:"communityId"`
	MemberID    string    `json:"memberId"`
	MessageID   string    `json:"messageId"`
	Text        string    `json:"text"`
	Time        time.Time `json:"time"`
}

func (e *MessageEvent) Validate() error {
	if e.CommunityID == "" || e.MemberID == "" || e.MessageID == "" {
		return fmt.Errorf("%w: message event requires community, member, and message IDs", ErrInvalidEvent)
	}
	if e.Time.IsZero() {
		return fmt.Errorf("%w: missing event time", ErrInvalidEvent)
	}
	return nil
}

// JoinEvent is a member entering a community.
type JoinEvent struct {
	CommunityID string    `json:"communityId"`
	MemberID    string    `json:"memberId"`
	Time        time.Time `json:"time"`
}

func (e *JoinEvent) Validate() error {
	if e.CommunityID == "" || e.MemberID == "" {
		return fmt.Errorf("%w: join event requires community and member IDs", ErrInvalidEvent)
	}
	if e.Time.IsZero() {
		return fmt.Errorf("%w: missing event time", ErrInvalidEvent)
	}
	return nil
}

// LeaveEvent is a member departing a community. Leaves mutate no state;
// they exist for the audit trail and traffic counters.
type LeaveEvent struct {
	CommunityID string    `json:"communityId"`
	MemberID    string    `json:"memberId"`
	Time        time.Time `json:"time"`
}

func (e *LeaveEvent) Validate() error {
	if e.CommunityID == "" || e.MemberID == "" {
		return fmt.Errorf("%w: leave event requires community and member IDs", ErrInvalidEvent)
	}
	if e.Time.IsZero() {
		return fmt.Errorf("%w: missing event time", ErrInvalidEvent)
	}
	return nil
}

// ReactionEvent is a member reacting to an existing message. MessageID is
// the message reacted to; it doubles as the XP dedupe key.
type ReactionEvent struct {
	CommunityID string    `json:"communityId"`
	MemberID    string    `json:"memberId"`
	MessageID   string    `json:"messageId"`
	Time        time.Time `json:"time"`
}

func (e *ReactionEvent) Validate() error {
	if e.CommunityID == "" || e.MemberID == "" || e.MessageID == "" {
		return fmt.Errorf("%w: reaction event requires community, member, and message IDs", ErrInvalidEvent)
	}
	if e.Time.IsZero() {
		return fmt.Errorf("%w: missing event time", ErrInvalidEvent)
	}
	return nil
}
