// Package xp accrues engagement points per member with a cooldown against
// farming. The cooldown gates awarding, not bookkeeping: every activity
// resets the cooldown clock, so rapid-fire messages keep pushing the next
// grant away instead of accumulating XP.
package xp

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/chatwarden/warden/memberstore"
)

// ActivityKind is the engagement event class XP is awarded for.
type ActivityKind string

const (
	ActivityMessage  ActivityKind = "message"
	ActivityReaction ActivityKind = "reaction"
	ActivityJoin     ActivityKind = "join"
)

const (
	defaultDedupeSize = 8192
	defaultDedupeTTL  = 15 * time.Minute
)

type Config struct {
	// Cooldown is the minimum gap between two XP awards for one member.
	Cooldown time.Duration

	// PerMessageMin and PerMessageMax bound the per-message award. When
	// they differ the amount is drawn uniformly from the range; Seed makes
	// the draw deterministic.
	PerMessageMin int64
	PerMessageMax int64

	PerReaction int64
	PerJoin     int64

	// Levels holds cumulative thresholds; Levels[L] is the XP needed for
	// level L, with Levels[0] == 0.
	Levels []int64

	// Seed fixes the jitter source. Zero seeds from the clock.
	Seed int64

	// DedupeSize and DedupeTTL bound the window in which a repeated event
	// ID is treated as a redelivery and ignored. Zero values get defaults.
	DedupeSize int
	DedupeTTL  time.Duration
}

func (c *Config) Validate() error {
	if c.Cooldown < 0 {
		return fmt.Errorf("xp cooldown must not be negative, got %v", c.Cooldown)
	}
	if c.PerMessageMin < 0 {
		return fmt.Errorf("xp per message must not be negative, got %d", c.PerMessageMin)
	}
	if c.PerMessageMax < c.PerMessageMin {
		return fmt.Errorf("xp per message range inverted: %d..%d", c.PerMessageMin, c.PerMessageMax)
	}
	if c.PerReaction < 0 || c.PerJoin < 0 {
		return fmt.Errorf("xp awards must not be negative")
	}
	if len(c.Levels) == 0 {
		return fmt.Errorf("at least one level threshold is required")
	}
	if c.Levels[0] != 0 {
		return fmt.Errorf("level 0 threshold must be 0, got %d", c.Levels[0])
	}
	for i := 1; i < len(c.Levels); i++ {
		if c.Levels[i] <= c.Levels[i-1] {
			return fmt.Errorf("level thresholds must be strictly increasing, level %d breaks that", i)
		}
	}
	return nil
}

// Grant reports one successful XP award.
type Grant struct {
	Amount   int64
	Total    int64
	Level    int
	NewLevel bool
}

// Engine awards XP against a member store.
type Engine struct {
	store  memberstore.Store
	cfg    Config
	logger *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	seen *expirable.LRU[string, struct{}]
}

func NewEngine(store memberstore.Store, cfg Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("xp engine config: %w", err)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	size := cfg.DedupeSize
	if size <= 0 {
		size = defaultDedupeSize
	}
	ttl := cfg.DedupeTTL
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}
	return &Engine{
		store:  store,
		cfg:    cfg,
		logger: logger.With("component", "xp_engine"),
		rng:    rand.New(rand.NewSource(seed)),
		seen:   expirable.NewLRU[string, struct{}](size, nil, ttl),
	}, nil
}

// RecordActivity notes one engagement event. The returned Grant is nil when
// no XP was awarded, either because the member is inside the cooldown or
// because the event ID was already processed. A non-empty eventID makes the
// call idempotent against redelivery within the dedupe window.
func (e *Engine) RecordActivity(ctx context.Context, communityID, memberID string, kind ActivityKind, now time.Time, eventID string) (*Grant, error) {
	amount, err := e.amountFor(kind)
	if err != nil {
		return nil, err
	}

	dedupeKey := ""
	if eventID != "" {
		dedupeKey = communityID + "/" + memberID + "/" + eventID
		if _, ok := e.seen.Get(dedupeKey); ok {
			return nil, nil
		}
	}

	var grant *Grant
	err = memberstore.UpdateWithRetry(ctx, e.store, communityID, memberID, func(m *memberstore.Member) error {
		grant = nil

		eligible := m.LastXPAt == nil || now.Sub(*m.LastXPAt) >= e.cfg.Cooldown

		switch kind {
		case ActivityMessage:
			m.MessageCount++
		case ActivityJoin:
			if m.JoinedAt == nil {
				t := now
				m.JoinedAt = &t
			}
		}

		// the cooldown clock always resets, even when nothing is awarded
		t := now
		m.LastXPAt = &t

		if !eligible {
			return nil
		}

		m.XP += amount
		level := LevelForXP(e.cfg.Levels, m.XP)
		leveled := level > m.Level
		m.Level = level
		grant = &Grant{Amount: amount, Total: m.XP, Level: level, NewLevel: leveled}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if dedupeKey != "" {
		e.seen.Add(dedupeKey, struct{}{})
	}
	if grant != nil && grant.NewLevel {
		e.logger.Info("member leveled up",
			"community", communityID,
			"member", memberID,
			"level", grant.Level,
			"title", Title(grant.Level),
			"xp", grant.Total,
		)
	}
	return grant, nil
}

func (e *Engine) amountFor(kind ActivityKind) (int64, error) {
	switch kind {
	case ActivityMessage:
		if e.cfg.PerMessageMax > e.cfg.PerMessageMin {
			e.rngMu.Lock()
			defer e.rngMu.Unlock()
			return e.cfg.PerMessageMin + e.rng.Int63n(e.cfg.PerMessageMax-e.cfg.PerMessageMin+1), nil
		}
		return e.cfg.PerMessageMin, nil
	case ActivityReaction:
		return e.cfg.PerReaction, nil
	case ActivityJoin:
		return e.cfg.PerJoin, nil
	default:
		return 0, fmt.Errorf("unknown activity kind %q", kind)
	}
}
