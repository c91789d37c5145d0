// Package engine composes the moderation core: it takes normalized chat
// platform events, consults the verdict source, drives the strike ledger,
// XP engine, and raid detector, and emits ordered pure-data actions to a
// dispatcher. The engine never talks to a chat platform itself.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chatwarden/warden/countstore"
	"github.com/chatwarden/warden/memberstore"
	"github.com/chatwarden/warden/policy"
	"github.com/chatwarden/warden/raid"
	"github.com/chatwarden/warden/strike"
	"github.com/chatwarden/warden/verdict"
	"github.com/chatwarden/warden/xp"
	"github.com/puzpuzpuz/xsync/v3"
)

// Config assembles an Engine. Store, Verdicts, and Counters are required;
// a nil Dispatcher discards actions after counting them, which is only
// useful for offline tooling.
type Config struct {
	Logger     *slog.Logger
	Policy     policy.Policy
	Store      memberstore.Store
	Verdicts   verdict.Source
	Counters   countstore.CountStore
	Dispatcher Dispatcher
}

// Engine is safe for concurrent use. Events for the same member are
// serialized on a per-member lock for the full processing of the event,
// classification included, so same-member outcomes follow arrival order.
// Events for different members proceed in parallel.
type Engine struct {
	logger     *slog.Logger
	policy     policy.Policy
	store      memberstore.Store
	strikes    *strike.Ledger
	xp         *xp.Engine
	raid       *raid.Detector
	verdicts   verdict.Source
	counters   countstore.CountStore
	dispatcher Dispatcher

	memberLocks *xsync.MapOf[string, *sync.Mutex]
}

func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("engine requires a member store")
	}
	if cfg.Verdicts == nil {
		return nil, fmt.Errorf("engine requires a verdict source")
	}
	if cfg.Counters == nil {
		return nil, fmt.Errorf("engine requires a count store")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("engine policy: %w", err)
	}

	ledger, err := strike.NewLedger(cfg.Store, cfg.Policy.StrikeConfig(), logger)
	if err != nil {
		return nil, err
	}
	xpeng, err := xp.NewEngine(cfg.Store, cfg.Policy.XPConfig(), logger)
	if err != nil {
		return nil, err
	}
	detector, err := raid.NewDetector(cfg.Policy.RaidConfig(), logger)
	if err != nil {
		return nil, err
	}

	return &Engine{
		logger:      logger.With("component", "policy_engine"),
		policy:      cfg.Policy,
		store:       cfg.Store,
		strikes:     ledger,
		xp:          xpeng,
		raid:        detector,
		verdicts:    cfg.Verdicts,
		counters:    cfg.Counters,
		dispatcher:  cfg.Dispatcher,
		memberLocks: xsync.NewMapOf[string, *sync.Mutex](),
	}, nil
}

// lockMember serializes event processing per (community, member). The lock
// arena grows with the live member set; entries are never evicted, which
// is fine at one mutex per member ever seen by this process.
func (e *Engine) lockMember(communityID, memberID string) func() {
	mu, _ := e.memberLocks.LoadOrCompute(communityID+"/"+memberID, func() *sync.Mutex {
		return &sync.Mutex{}
	})
	mu.Lock()
	return mu.Unlock
}

// ProcessMessage classifies one message and applies the verdict: strikes
// and sanctions for violations, review flags for uncertain ones, XP
// accrual for clean content. The returned actions are what was handed to
// the dispatcher, in order.
func (e *Engine) ProcessMessage(ctx context.Context, evt MessageEvent) (actions []Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event processing panicked", "err", r, "type", EventMessage, "community", evt.CommunityID, "member", evt.MemberID)
			eventErrorCount.WithLabelValues(EventMessage).Inc()
			actions, err = nil, fmt.Errorf("panicked while processing %s event: %v", EventMessage, r)
		}
	}()
	start := time.Now()
	defer func() {
		eventProcessDuration.WithLabelValues(EventMessage).Observe(time.Since(start).Seconds())
	}()

	if err := evt.Validate(); err != nil {
		return nil, err
	}

	unlock := e.lockMember(evt.CommunityID, evt.MemberID)
	defer unlock()

	ec := e.newEventContext(EventMessage, evt.CommunityID, evt.MemberID, evt.MessageID, evt.Time)
	ec.increment("event/message", evt.CommunityID)

	memberLevel := 0
	if m, gerr := e.store.Get(ctx, evt.CommunityID, evt.MemberID); gerr == nil {
		memberLevel = m.Level
	} else if !errors.Is(gerr, memberstore.ErrNotFound) {
		eventErrorCount.WithLabelValues(EventMessage).Inc()
		return nil, &StorageUnavailableError{Op: "member lookup", Err: gerr}
	}

	v, cerr := e.classify(ctx, &evt, memberLevel)
	if cerr != nil {
		eventErrorCount.WithLabelValues(EventMessage).Inc()
		if e.policy.OnClassifierError == policy.ModeReview {
			ec.addAction(Action{
				Kind:           ActionReviewFlag,
				TargetMemberID: evt.MemberID,
				MessageID:      evt.MessageID,
				Reason:         fmt.Sprintf("classifier unavailable: %v", cerr),
			})
		}
		if perr := e.persistEffects(ctx, ec); perr != nil {
			ec.logger.Error("failed to persist classifier-error effects", "err", perr)
		}
		return ec.actions, &ClassifierError{Err: cerr}
	}

	handled := false
	if v.IsViolation {
		enf := e.policy.EnforcementFor(v.Category, v.Confidence)
		reason := fmt.Sprintf("%s (confidence %.2f)", v.Category, v.Confidence)
		switch enf.Mode {
		case policy.ModeEnforce:
			res, serr := e.strikes.ApplyStrike(ctx, evt.CommunityID, evt.MemberID, enf.Reason, enf.Weight, evt.Time)
			if serr != nil {
				eventErrorCount.WithLabelValues(EventMessage).Inc()
				return nil, &StorageUnavailableError{Op: "apply strike", Err: serr}
			}
			if enf.DeleteMessage {
				ec.addAction(Action{
					Kind:           ActionDeleteMessage,
					TargetMemberID: evt.MemberID,
					MessageID:      evt.MessageID,
					Reason:         reason,
				})
			}
			e.appendSanction(ec, res.State, evt.MemberID, reason)
			ec.increment("strike/"+string(enf.Reason), evt.CommunityID)
			ec.incrementDistinct("offenders", evt.CommunityID, evt.MemberID)
			handled = true
		case policy.ModeReview:
			ec.addAction(Action{
				Kind:           ActionReviewFlag,
				TargetMemberID: evt.MemberID,
				MessageID:      evt.MessageID,
				Reason:         reason + " below enforcement confidence",
			})
			handled = true
		case policy.ModeIgnore:
			// low-confidence noise is treated as clean
		}
	}

	if !handled {
		grant, xerr := e.xp.RecordActivity(ctx, evt.CommunityID, evt.MemberID, xp.ActivityMessage, evt.Time, "msg/"+evt.MessageID)
		if xerr != nil {
			eventErrorCount.WithLabelValues(EventMessage).Inc()
			return nil, &StorageUnavailableError{Op: "xp grant", Err: xerr}
		}
		e.appendGrant(ec, grant, evt.MemberID)
	}

	if err := e.persistEffects(ctx, ec); err != nil {
		return ec.actions, err
	}
	eventProcessCount.WithLabelValues(EventMessage).Inc()
	return ec.actions, nil
}

// ProcessJoin feeds the raid detector and either rewards the join or, when
// a lockdown is active, applies the configured lockdown response. Lockdown
// transitions produce exactly one LockdownEnable or LockdownDisable across
// concurrent joins.
func (e *Engine) ProcessJoin(ctx context.Context, evt JoinEvent) (actions []Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event processing panicked", "err", r, "type", EventJoin, "community", evt.CommunityID, "member", evt.MemberID)
			eventErrorCount.WithLabelValues(EventJoin).Inc()
			actions, err = nil, fmt.Errorf("panicked while processing %s event: %v", EventJoin, r)
		}
	}()
	start := time.Now()
	defer func() {
		eventProcessDuration.WithLabelValues(EventJoin).Observe(time.Since(start).Seconds())
	}()

	if err := evt.Validate(); err != nil {
		return nil, err
	}

	unlock := e.lockMember(evt.CommunityID, evt.MemberID)
	defer unlock()

	ec := e.newEventContext(EventJoin, evt.CommunityID, evt.MemberID, "", evt.Time)
	ec.increment("event/join", evt.CommunityID)

	st := e.raid.ObserveJoin(evt.CommunityID, evt.MemberID, evt.Time)
	if st.LockdownBegan {
		ec.addAction(Action{
			Kind:     ActionLockdownEnable,
			Duration: e.policy.Raid.LockdownDuration.Std(),
			Reason:   fmt.Sprintf("%d joins within %s", st.JoinCount, e.policy.Raid.Window.Std()),
		})
		ec.increment("lockdown/enable", evt.CommunityID)
	}
	if st.LockdownEnded {
		ec.addAction(Action{Kind: ActionLockdownDisable, Reason: "lockdown expired"})
		ec.increment("lockdown/disable", evt.CommunityID)
	}

	if st.LockdownActive {
		if err := e.applyLockdownResponse(ctx, ec, evt); err != nil {
			eventErrorCount.WithLabelValues(EventJoin).Inc()
			return nil, err
		}
	} else {
		grant, xerr := e.xp.RecordActivity(ctx, evt.CommunityID, evt.MemberID, xp.ActivityJoin, evt.Time, "")
		if xerr != nil {
			eventErrorCount.WithLabelValues(EventJoin).Inc()
			return nil, &StorageUnavailableError{Op: "join bonus", Err: xerr}
		}
		e.appendGrant(ec, grant, evt.MemberID)
	}

	if err := e.persistEffects(ctx, ec); err != nil {
		return ec.actions, err
	}
	eventProcessCount.WithLabelValues(EventJoin).Inc()
	return ec.actions, nil
}

func (e *Engine) applyLockdownResponse(ctx context.Context, ec *eventContext, evt JoinEvent) error {
	switch e.policy.Raid.Response {
	case policy.LockdownMute, policy.LockdownKick:
		res, err := e.strikes.ApplyStrike(ctx, evt.CommunityID, evt.MemberID, memberstore.ReasonRaid, 1, evt.Time)
		if err != nil {
			return &StorageUnavailableError{Op: "raid strike", Err: err}
		}
		a := Action{TargetMemberID: evt.MemberID, Reason: "joined during lockdown"}
		if e.policy.Raid.Response == policy.LockdownKick {
			a.Kind = ActionKick
		} else {
			a.Kind = ActionMute
			a.Duration = e.policy.MuteDuration.Std()
		}
		ec.addAction(a)
		ec.increment("strike/"+string(memberstore.ReasonRaid), evt.CommunityID)
		ec.logger.Info("lockdown response applied", "response", e.policy.Raid.Response, "activeWeight", res.ActiveWeight)
	default:
		ec.addAction(Action{
			Kind:           ActionReviewFlag,
			TargetMemberID: evt.MemberID,
			Reason:         "joined during lockdown",
		})
	}
	ec.incrementDistinct("lockdown-joins", evt.CommunityID, evt.MemberID)
	return nil
}

// ProcessLeave records the departure for the audit trail and counters.
// Member state is kept: strikes and XP survive rejoin.
func (e *Engine) ProcessLeave(ctx context.Context, evt LeaveEvent) (actions []Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event processing panicked", "err", r, "type", EventLeave, "community", evt.CommunityID, "member", evt.MemberID)
			eventErrorCount.WithLabelValues(EventLeave).Inc()
			actions, err = nil, fmt.Errorf("panicked while processing %s event: %v", EventLeave, r)
		}
	}()
	start := time.Now()
	defer func() {
		eventProcessDuration.WithLabelValues(EventLeave).Observe(time.Since(start).Seconds())
	}()

	if err := evt.Validate(); err != nil {
		return nil, err
	}

	ec := e.newEventContext(EventLeave, evt.CommunityID, evt.MemberID, "", evt.Time)
	ec.increment("event/leave", evt.CommunityID)

	if err := e.persistEffects(ctx, ec); err != nil {
		return ec.actions, err
	}
	eventProcessCount.WithLabelValues(EventLeave).Inc()
	return ec.actions, nil
}

// ProcessReaction awards engagement XP for a reaction, deduplicated per
// reacted-to message and subject to the shared cooldown.
func (e *Engine) ProcessReaction(ctx context.Context, evt ReactionEvent) (actions []Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event processing panicked", "err", r, "type", EventReaction, "community", evt.CommunityID, "member", evt.MemberID)
			eventErrorCount.WithLabelValues(EventReaction).Inc()
			actions, err = nil, fmt.Errorf("panicked while processing %s event: %v", EventReaction, r)
		}
	}()
	start := time.Now()
	defer func() {
		eventProcessDuration.WithLabelValues(EventReaction).Observe(time.Since(start).Seconds())
	}()

	if err := evt.Validate(); err != nil {
		return nil, err
	}

	unlock := e.lockMember(evt.CommunityID, evt.MemberID)
	defer unlock()

	ec := e.newEventContext(EventReaction, evt.CommunityID, evt.MemberID, evt.MessageID, evt.Time)
	ec.increment("event/reaction", evt.CommunityID)

	grant, xerr := e.xp.RecordActivity(ctx, evt.CommunityID, evt.MemberID, xp.ActivityReaction, evt.Time, "react/"+evt.MessageID)
	if xerr != nil {
		eventErrorCount.WithLabelValues(EventReaction).Inc()
		return nil, &StorageUnavailableError{Op: "reaction xp", Err: xerr}
	}
	e.appendGrant(ec, grant, evt.MemberID)

	if err := e.persistEffects(ctx, ec); err != nil {
		return ec.actions, err
	}
	eventProcessCount.WithLabelValues(EventReaction).Inc()
	return ec.actions, nil
}

// classify runs the verdict source under the policy deadline and rejects
// malformed verdicts.
func (e *Engine) classify(ctx context.Context, evt *MessageEvent, memberLevel int) (*verdict.Verdict, error) {
	if t := e.policy.ClassifierTimeout.Std(); t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	v, err := e.verdicts.Classify(ctx, &verdict.Message{
		CommunityID: evt.CommunityID,
		MemberID:    evt.MemberID,
		MessageID:   evt.MessageID,
		Text:        evt.Text,
		MemberLevel: memberLevel,
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("verdict source returned no verdict")
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

// appendSanction translates a sanction tier into its dispatchable action.
// Clean produces nothing, which happens when the tier table starts above
// the member's active weight.
func (e *Engine) appendSanction(ec *eventContext, state memberstore.SanctionState, memberID, reason string) {
	a := Action{TargetMemberID: memberID, Reason: reason}
	switch state {
	case memberstore.StateWarned:
		a.Kind = ActionWarn
	case memberstore.StateMuted:
		a.Kind = ActionMute
		a.Duration = e.policy.MuteDuration.Std()
	case memberstore.StateKicked:
		a.Kind = ActionKick
	case memberstore.StateBanned:
		a.Kind = ActionBan
	default:
		return
	}
	ec.addAction(a)
}

func (e *Engine) appendGrant(ec *eventContext, grant *xp.Grant, memberID string) {
	if grant == nil {
		return
	}
	ec.addAction(Action{Kind: ActionGrantXP, TargetMemberID: memberID, Amount: grant.Amount})
	if grant.NewLevel {
		ec.addAction(Action{
			Kind:           ActionLevelUp,
			TargetMemberID: memberID,
			NewLevel:       grant.Level,
			Reason:         xp.Title(grant.Level),
		})
	}
}
