// Package dispatch provides the bundled Dispatcher implementations: a
// structured audit logger, a webhook client for ticket-system style sinks,
// and a fan-out combinator. The engine stays platform-agnostic; adapters
// that actually mute or ban members on a chat platform live behind the
// same interface, outside this repo.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/chatwarden/warden/engine"
)

// AuditLogger writes one structured log line per event and one per action.
// It never fails: the audit stream is logging, not durable storage.
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{logger: logger.With("component", "audit")}
}

var _ engine.Dispatcher = (*AuditLogger)(nil)

func (a *AuditLogger) Dispatch(ctx context.Context, evt *engine.DispatchEvent) error {
	log := a.logger.With(
		"type", evt.Type,
		"community", evt.CommunityID,
		"member", evt.MemberID,
		"eventTime", evt.Time,
	)
	log.Info("event processed", "actions", len(evt.Actions))
	for _, act := range evt.Actions {
		log.Info("action emitted",
			"kind", act.Kind,
			"target", act.TargetMemberID,
			"message", act.MessageID,
			"duration", act.Duration,
			"amount", act.Amount,
			"newLevel", act.NewLevel,
			"reason", act.Reason,
		)
	}
	return nil
}
