package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chatwarden/warden/countstore"
	"github.com/chatwarden/warden/memberstore"
	"github.com/chatwarden/warden/raid"
	"github.com/chatwarden/warden/strike"
	"github.com/chatwarden/warden/xp"
)

// MemberView is a read-only snapshot of a member's standing.
type MemberView struct {
	CommunityID   string                    `json:"communityId"`
	MemberID      string                    `json:"memberId"`
	XP            int64                     `json:"xp"`
	Level         int                       `json:"level"`
	Title         string                    `json:"title"`
	SanctionState memberstore.SanctionState `json:"sanctionState"`
	ActiveWeight  int64                     `json:"activeWeight"`
	StrikeCount   int                       `json:"strikeCount"`
	MessageCount  int64                     `json:"messageCount"`
	JoinedAt      *time.Time                `json:"joinedAt,omitempty"`
}

// MemberSnapshot returns the member's standing with the sanction tier and
// strike weight recomputed at the given instant, so decayed strikes never
// show. Unknown members come back as a clean zero view, not an error.
func (e *Engine) MemberSnapshot(ctx context.Context, communityID, memberID string, now time.Time) (*MemberView, error) {
	view := &MemberView{
		CommunityID:   communityID,
		MemberID:      memberID,
		SanctionState: memberstore.StateClean,
		Title:         xp.Title(0),
	}
	m, err := e.store.Get(ctx, communityID, memberID)
	if errors.Is(err, memberstore.ErrNotFound) {
		return view, nil
	}
	if err != nil {
		return nil, &StorageUnavailableError{Op: "member lookup", Err: err}
	}

	active := strike.ActiveWeight(m.Strikes, now)
	liveStrikes := 0
	for i := range m.Strikes {
		if !m.Strikes[i].Expired(now) {
			liveStrikes++
		}
	}

	view.XP = m.XP
	view.Level = m.Level
	view.Title = xp.Title(m.Level)
	view.SanctionState = strike.TierForWeight(e.policy.Strike.Tiers, active)
	view.ActiveWeight = active
	view.StrikeCount = liveStrikes
	view.MessageCount = m.MessageCount
	view.JoinedAt = m.JoinedAt
	return view, nil
}

// ApplyManualStrike records a moderator-issued strike and dispatches
// whatever sanction tier it lands on. Manual strikes use the manual decay
// period and count against the same daily action quotas as automated ones.
func (e *Engine) ApplyManualStrike(ctx context.Context, communityID, memberID string, weight int64, note string, now time.Time) ([]Action, error) {
	if communityID == "" || memberID == "" {
		return nil, fmt.Errorf("%w: manual strike requires community and member IDs", ErrInvalidEvent)
	}

	unlock := e.lockMember(communityID, memberID)
	defer unlock()

	ec := e.newEventContext(EventAdminStrike, communityID, memberID, "", now)

	res, err := e.strikes.ApplyStrike(ctx, communityID, memberID, memberstore.ReasonManual, weight, now)
	if err != nil {
		if errors.Is(err, strike.ErrInvalidWeight) {
			return nil, err
		}
		return nil, &StorageUnavailableError{Op: "manual strike", Err: err}
	}

	reason := "manual strike"
	if note != "" {
		reason = "manual strike: " + note
	}
	e.appendSanction(ec, res.State, memberID, reason)
	ec.increment("strike/"+string(memberstore.ReasonManual), communityID)
	ec.incrementDistinct("offenders", communityID, memberID)

	if err := e.persistEffects(ctx, ec); err != nil {
		return ec.actions, err
	}
	return ec.actions, nil
}

// RaidStatus reports the community's raid state after window eviction. A
// lockdown whose deadline has passed is disabled here too, and the
// resulting LockdownDisable is dispatched so read traffic can not swallow
// the transition.
func (e *Engine) RaidStatus(ctx context.Context, communityID string, now time.Time) (raid.Status, error) {
	st := e.raid.Status(communityID, now)
	if !st.LockdownEnded {
		return st, nil
	}
	ec := e.newEventContext(EventRaidStatus, communityID, "", "", now)
	ec.addAction(Action{Kind: ActionLockdownDisable, Reason: "lockdown expired"})
	ec.increment("lockdown/disable", communityID)
	if err := e.persistEffects(ctx, ec); err != nil {
		return st, err
	}
	return st, nil
}

// ResetRaid clears the community's join window and lockdown. When a
// lockdown was still in force, a LockdownDisable goes out so the platform
// side is released too.
func (e *Engine) ResetRaid(ctx context.Context, communityID string, now time.Time) error {
	st := e.raid.Status(communityID, now)
	e.raid.Reset(communityID)
	e.logger.Info("raid state reset", "community", communityID, "wasActive", st.LockdownActive)
	if !st.LockdownActive && !st.LockdownEnded {
		return nil
	}
	ec := e.newEventContext(EventRaidStatus, communityID, "", "", now)
	ec.addAction(Action{Kind: ActionLockdownDisable, Reason: "raid state reset"})
	ec.increment("lockdown/disable", communityID)
	return e.persistEffects(ctx, ec)
}

// Compact drops expired strikes from storage. Safe at any cadence:
// decisions are identical before and after.
func (e *Engine) Compact(ctx context.Context, now time.Time) (int64, error) {
	return e.strikes.Compact(ctx, now)
}

// MemberCount reports how many members have stored state.
func (e *Engine) MemberCount(ctx context.Context) (int64, error) {
	return e.store.Count(ctx)
}

// CommunityStats aggregates today's traffic and action counters for one
// community, plus the live raid state. Counters are best-effort tallies:
// with the in-memory store they reset on restart.
type CommunityStats struct {
	CommunityID    string           `json:"communityId"`
	MessagesToday  int64            `json:"messagesToday"`
	JoinsToday     int64            `json:"joinsToday"`
	LeavesToday    int64            `json:"leavesToday"`
	ReactionsToday int64            `json:"reactionsToday"`
	ActionsToday   map[string]int64 `json:"actionsToday"`
	OffendersToday int64            `json:"offendersToday"`
	Raid           raid.Status      `json:"raid"`
}

func (e *Engine) CommunityStats(ctx context.Context, communityID string, now time.Time) (*CommunityStats, error) {
	stats := &CommunityStats{
		CommunityID:  communityID,
		ActionsToday: make(map[string]int64),
	}

	var err error
	read := func(name string) int64 {
		if err != nil {
			return 0
		}
		var n int64
		n, err = e.counters.GetCount(ctx, name, communityID, countstore.PeriodDay, now)
		return n
	}

	stats.MessagesToday = read("event/message")
	stats.JoinsToday = read("event/join")
	stats.LeavesToday = read("event/leave")
	stats.ReactionsToday = read("event/reaction")
	for _, kind := range []ActionKind{
		ActionDeleteMessage, ActionWarn, ActionMute, ActionKick, ActionBan,
		ActionLockdownEnable, ActionLockdownDisable, ActionGrantXP, ActionLevelUp, ActionReviewFlag,
	} {
		if n := read("action/" + string(kind)); n > 0 {
			stats.ActionsToday[string(kind)] = n
		}
	}
	if err == nil {
		stats.OffendersToday, err = e.counters.GetCountDistinct(ctx, "offenders", communityID, countstore.PeriodDay, now)
	}
	if err != nil {
		return nil, fmt.Errorf("reading community counters: %w", err)
	}

	st, err := e.RaidStatus(ctx, communityID, now)
	if err != nil {
		return nil, err
	}
	stats.Raid = st
	return stats, nil
}
