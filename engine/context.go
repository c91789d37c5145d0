package engine

import (
	"log/slog"
	"time"
)

// eventContext accumulates the in-order action list and counter updates
// for one event while its rules run. Nothing is dispatched or counted
// until persistEffects, so a failed event leaves no partial trace.
type eventContext struct {
	typ         string
	communityID string
	memberID    string
	messageID   string
	now         time.Time
	logger      *slog.Logger

	actions            []Action
	counterIncrements  []counterRef
	distinctIncrements []distinctRef
}

type counterRef struct {
	name string
	val  string
}

type distinctRef struct {
	name   string
	bucket string
	val    string
}

func (e *Engine) newEventContext(typ, communityID, memberID, messageID string, now time.Time) *eventContext {
	return &eventContext{
		typ:         typ,
		communityID: communityID,
		memberID:    memberID,
		messageID:   messageID,
		now:         now,
		logger:      e.logger.With("type", typ, "community", communityID, "member", memberID),
	}
}

func (ec *eventContext) addAction(a Action) {
	if a.CommunityID == "" {
		a.CommunityID = ec.communityID
	}
	ec.actions = append(ec.actions, a)
}

func (ec *eventContext) increment(name, val string) {
	ec.counterIncrements = append(ec.counterIncrements, counterRef{name: name, val: val})
}

func (ec *eventContext) incrementDistinct(name, bucket, val string) {
	ec.distinctIncrements = append(ec.distinctIncrements, distinctRef{name: name, bucket: bucket, val: val})
}
