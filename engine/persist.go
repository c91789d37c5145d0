package engine

import (
	"context"
	"fmt"

	"github.com/chatwarden/warden/countstore"
)

// persistEffects applies the daily action quotas, records counters, and
// hands the ordered action list to the dispatcher exactly once. Strike and
// XP mutations have already committed by the time this runs; counters are
// best-effort and never fail the event.
func (e *Engine) persistEffects(ctx context.Context, ec *eventContext) error {
	e.applyQuotas(ctx, ec)

	for i := range ec.actions {
		actionEmittedCount.WithLabelValues(string(ec.actions[i].Kind)).Inc()
		ec.increment("action/"+string(ec.actions[i].Kind), ec.communityID)
	}

	for _, c := range ec.counterIncrements {
		if err := e.counters.Increment(ctx, c.name, c.val, ec.now); err != nil {
			ec.logger.Warn("failed to increment counter", "name", c.name, "err", err)
		}
	}
	for _, d := range ec.distinctIncrements {
		if err := e.counters.IncrementDistinct(ctx, d.name, d.bucket, d.val, ec.now); err != nil {
			ec.logger.Warn("failed to increment distinct counter", "name", d.name, "err", err)
		}
	}

	if e.dispatcher == nil {
		return nil
	}
	evt := &DispatchEvent{
		Type:        ec.typ,
		CommunityID: ec.communityID,
		MemberID:    ec.memberID,
		MessageID:   ec.messageID,
		Time:        ec.now,
		Actions:     ec.actions,
	}
	if err := e.dispatcher.Dispatch(ctx, evt); err != nil {
		dispatchErrorCount.Inc()
		return fmt.Errorf("dispatching %d actions: %w", len(ec.actions), err)
	}
	return nil
}

// applyQuotas downgrades bans and kicks beyond the community's daily
// budget to review flags. A runaway policy or classifier can then flood
// the review queue but never empty a community. A countstore failure also
// downgrades: when the budget can not be verified, the safe direction is
// human review, not an unbounded sanction run.
func (e *Engine) applyQuotas(ctx context.Context, ec *eventContext) {
	for i := range ec.actions {
		var quota int64
		switch ec.actions[i].Kind {
		case ActionBan:
			quota = e.policy.QuotaBanDay
		case ActionKick:
			quota = e.policy.QuotaKickDay
		default:
			continue
		}
		if quota <= 0 {
			continue
		}
		name := "action/" + string(ec.actions[i].Kind)
		used, err := e.counters.GetCount(ctx, name, ec.communityID, countstore.PeriodDay, ec.now)
		if err == nil && used < quota {
			continue
		}
		if err != nil {
			ec.logger.Warn("quota counter unavailable, downgrading action", "kind", ec.actions[i].Kind, "err", err)
		} else {
			ec.logger.Warn("daily action quota reached, downgrading to review",
				"kind", ec.actions[i].Kind, "used", used, "quota", quota)
		}
		quotaDowngradeCount.WithLabelValues(string(ec.actions[i].Kind)).Inc()
		ec.actions[i] = Action{
			Kind:           ActionReviewFlag,
			CommunityID:    ec.actions[i].CommunityID,
			TargetMemberID: ec.actions[i].TargetMemberID,
			MessageID:      ec.actions[i].MessageID,
			Reason:         fmt.Sprintf("%s withheld (daily quota): %s", ec.actions[i].Kind, ec.actions[i].Reason),
		}
	}
}
