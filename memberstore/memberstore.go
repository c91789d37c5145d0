package memberstore

import (
	"context"
	"errors"
	"time"
)

// SanctionState is the discrete moderation tier a member is currently in,
// derived from their active (non-expired) strike weight.
type SanctionState string

const (
	StateClean  SanctionState = "clean"
	StateWarned SanctionState = "warned"
	StateMuted  SanctionState = "muted"
	StateKicked SanctionState = "kicked"
	StateBanned SanctionState = "banned"
)

// Rank orders sanction states by severity, with Clean lowest. Unknown states
// rank below Clean so they never mask a real sanction.
func (s SanctionState) Rank() int {
	switch s {
	case StateClean:
		return 0
	case StateWarned:
		return 1
	case StateMuted:
		return 2
	case StateKicked:
		return 3
	case StateBanned:
		return 4
	default:
		return -1
	}
}

// StrikeReason identifies the violation class a strike was issued for.
// The decay period and audit trail key off of it.
type StrikeReason string

const (
	ReasonSpam      StrikeReason = "spam"
	ReasonToxicity  StrikeReason = "toxicity"
	ReasonLinkAbuse StrikeReason = "link-abuse"
	ReasonRaid      StrikeReason = "raid"
	ReasonManual    StrikeReason = "manual"
)

// Strike is a single recorded violation. Expired strikes (ExpiresAt in the
// past) stay in the member's sequence until a compaction pass removes them,
// but they never count toward the sanction tier.
type Strike struct {
	Reason    StrikeReason `json:"reason"`
	Weight    int64        `json:"weight"`
	IssuedAt  time.Time    `json:"issuedAt"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

// Expired reports whether the strike no longer contributes weight at the
// given instant. A strike expiring exactly now is expired.
func (s *Strike) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Member is the unit of per-key state and of concurrency: all engine
// mutations for one (community, member) pair are serialized, and every
// store update commits atomically.
type Member struct {
	CommunityID   string        `json:"communityId"`
	MemberID      string        `json:"memberId"`
	XP            int64         `json:"xp"`
	Level         int           `json:"level"`
	LastXPAt      *time.Time    `json:"lastXpAt,omitempty"`
	SanctionState SanctionState `json:"sanctionState"`
	JoinedAt      *time.Time    `json:"joinedAt,omitempty"`
	MessageCount  int64         `json:"messageCount"`
	Strikes       []Strike      `json:"strikes,omitempty"`
}

// Clone returns a deep copy, so callers can mutate freely without aliasing
// the store's view of the member.
func (m *Member) Clone() *Member {
	out := *m
	if m.LastXPAt != nil {
		t := *m.LastXPAt
		out.LastXPAt = &t
	}
	if m.JoinedAt != nil {
		t := *m.JoinedAt
		out.JoinedAt = &t
	}
	if m.Strikes != nil {
		out.Strikes = make([]Strike, len(m.Strikes))
		copy(out.Strikes, m.Strikes)
	}
	return &out
}

var (
	// ErrNotFound is returned by Get for members with no stored state.
	ErrNotFound = errors.New("member not found")

	// ErrConflict is returned by Update when a concurrent write was detected
	// at the storage layer. Callers retry via UpdateWithRetry.
	ErrConflict = errors.New("member record conflict")
)

// Store provides durable per-member state with atomic read-modify-write.
//
// Update loads the member (creating a blank record when absent), invokes
// mutate on a private copy, and commits the result as a single atomic write.
// The mutate callback may run more than once when the commit is retried
// after a conflict, so it must derive everything from the Member it is
// handed plus its own arguments. Returning an error from mutate aborts the
// update with nothing written.
type Store interface {
	Get(ctx context.Context, communityID, memberID string) (*Member, error)
	Update(ctx context.Context, communityID, memberID string, mutate func(*Member) error) error

	// PurgeExpiredStrikes deletes strikes with ExpiresAt at or before the
	// given instant across all members, returning how many were removed.
	PurgeExpiredStrikes(ctx context.Context, before time.Time) (int64, error)

	// Count reports how many members have stored state.
	Count(ctx context.Context) (int64, error)
}

func memberKey(communityID, memberID string) string {
	return communityID + "/" + memberID
}
