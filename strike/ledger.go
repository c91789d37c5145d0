// Package strike tracks per-member violations and the sanction tier they
// add up to. Strikes decay lazily: nothing expires them in the background,
// the active weight is recomputed from timestamps on every evaluation.
package strike

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatwarden/warden/memberstore"
)

// ErrInvalidWeight rejects strikes with non-positive weight before any
// state is touched.
var ErrInvalidWeight = errors.New("strike weight must be positive")

// TierStep maps a minimum active weight to a sanction state. Steps are
// configured in ascending weight order with non-decreasing severity.
type TierStep struct {
	MinWeight int64                     `json:"minWeight"`
	State     memberstore.SanctionState `json:"state"`
}

type Config struct {
	// Decay holds the per-reason period after which a strike stops
	// counting. Reasons without an entry get the longest configured
	// period, never a shorter one.
	Decay map[memberstore.StrikeReason]time.Duration

	// Tiers is the monotonic weight-to-sanction threshold table.
	Tiers []TierStep
}

func (c *Config) Validate() error {
	if len(c.Decay) == 0 {
		return fmt.Errorf("at least one strike decay period is required")
	}
	for reason, d := range c.Decay {
		if d <= 0 {
			return fmt.Errorf("decay period for %q must be positive, got %v", reason, d)
		}
	}
	if len(c.Tiers) == 0 {
		return fmt.Errorf("at least one sanction tier is required")
	}
	prevWeight := int64(0)
	prevRank := memberstore.StateClean.Rank()
	for i, step := range c.Tiers {
		if step.MinWeight < 1 {
			return fmt.Errorf("tier %d: min weight must be >= 1, got %d", i, step.MinWeight)
		}
		if step.MinWeight <= prevWeight && i > 0 {
			return fmt.Errorf("tier %d: min weights must be strictly ascending", i)
		}
		rank := step.State.Rank()
		if rank < 0 {
			return fmt.Errorf("tier %d: unknown sanction state %q", i, step.State)
		}
		if rank < prevRank {
			return fmt.Errorf("tier %d: sanction severity must be non-decreasing", i)
		}
		prevWeight = step.MinWeight
		prevRank = rank
	}
	return nil
}

// LongestDecay returns the maximum configured decay period, the fallback
// for strike reasons with no entry of their own.
func (c *Config) LongestDecay() time.Duration {
	var longest time.Duration
	for _, d := range c.Decay {
		if d > longest {
			longest = d
		}
	}
	return longest
}

// Ledger applies strikes and answers tier queries against a member store.
type Ledger struct {
	store  memberstore.Store
	cfg    Config
	logger *slog.Logger
}

func NewLedger(store memberstore.Store, cfg Config, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("strike ledger config: %w", err)
	}
	return &Ledger{
		store:  store,
		cfg:    cfg,
		logger: logger.With("component", "strike_ledger"),
	}, nil
}

// Result describes the outcome of one applied strike.
type Result struct {
	State        memberstore.SanctionState
	ActiveWeight int64
	Strike       memberstore.Strike
}

// ApplyStrike records a violation and recomputes the member's sanction
// state from all non-expired strikes, committing both in one atomic store
// update.
func (l *Ledger) ApplyStrike(ctx context.Context, communityID, memberID string, reason memberstore.StrikeReason, weight int64, now time.Time) (*Result, error) {
	if weight <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWeight, weight)
	}

	decay, ok := l.cfg.Decay[reason]
	if !ok {
		decay = l.cfg.LongestDecay()
		l.logger.Warn("no decay period configured for strike reason, keeping longest",
			"reason", reason, "decay", decay)
	}

	rec := memberstore.Strike{
		Reason:    reason,
		Weight:    weight,
		IssuedAt:  now,
		ExpiresAt: now.Add(decay),
	}

	var res Result
	err := memberstore.UpdateWithRetry(ctx, l.store, communityID, memberID, func(m *memberstore.Member) error {
		m.Strikes = append(m.Strikes, rec)
		active := ActiveWeight(m.Strikes, now)
		state := TierForWeight(l.cfg.Tiers, active)
		m.SanctionState = state
		res = Result{State: state, ActiveWeight: active, Strike: rec}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("strike applied",
		"community", communityID,
		"member", memberID,
		"reason", reason,
		"weight", weight,
		"activeWeight", res.ActiveWeight,
		"state", res.State,
	)
	return &res, nil
}

// CurrentTier recomputes the member's sanction tier at the given instant.
// Read-only: the stored sanction state is not rewritten until the next
// ApplyStrike evaluation. Unknown members are Clean.
func (l *Ledger) CurrentTier(ctx context.Context, communityID, memberID string, now time.Time) (memberstore.SanctionState, error) {
	m, err := l.store.Get(ctx, communityID, memberID)
	if errors.Is(err, memberstore.ErrNotFound) {
		return memberstore.StateClean, nil
	}
	if err != nil {
		return "", err
	}
	return TierForWeight(l.cfg.Tiers, ActiveWeight(m.Strikes, now)), nil
}

// Compact drops strikes whose expiry has passed. Purely a storage-size
// operation: CurrentTier answers are identical before and after.
func (l *Ledger) Compact(ctx context.Context, now time.Time) (int64, error) {
	removed, err := l.store.PurgeExpiredStrikes(ctx, now)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		l.logger.Info("compacted expired strikes", "removed", removed)
	}
	return removed, nil
}

// ActiveWeight sums the weight of strikes still alive at the given instant.
func ActiveWeight(strikes []memberstore.Strike, now time.Time) int64 {
	var total int64
	for i := range strikes {
		if !strikes[i].Expired(now) {
			total += strikes[i].Weight
		}
	}
	return total
}

// TierForWeight walks the threshold table and returns the highest tier the
// weight reaches, or Clean below the first step.
func TierForWeight(tiers []TierStep, weight int64) memberstore.SanctionState {
	state := memberstore.StateClean
	for _, step := range tiers {
		if weight < step.MinWeight {
			break
		}
		state = step.State
	}
	return state
}
