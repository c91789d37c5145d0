// Package policy holds the operator-supplied moderation configuration:
// strike decay and sanction tiers, raid window parameters, the XP curve,
// verdict confidence handling, and daily action quotas. A Policy is loaded
// once at startup, validated, and treated as immutable afterwards.
package policy

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/chatwarden/warden/memberstore"
	"github.com/chatwarden/warden/raid"
	"github.com/chatwarden/warden/strike"
	"github.com/chatwarden/warden/verdict"
	"github.com/chatwarden/warden/xp"
)

// Mode is what the engine does with a violating verdict (or with a
// classifier failure, via Policy.OnClassifierError).
type Mode string

const (
	// ModeEnforce applies a strike and the sanction tier it lands on.
	ModeEnforce Mode = "enforce"
	// ModeReview raises a flag for human review without touching state.
	ModeReview Mode = "review"
	// ModeIgnore treats the verdict as clean.
	ModeIgnore Mode = "ignore"
)

// LockdownResponse is the treatment of members who join while a raid
// lockdown is active.
type LockdownResponse string

const (
	LockdownReview LockdownResponse = "review"
	LockdownMute   LockdownResponse = "mute"
	LockdownKick   LockdownResponse = "kick"
)

// ConfidenceBucket maps a verdict confidence range to a handling mode.
// Buckets are ordered by strictly descending MinConfidence; the first
// bucket at or below the verdict's confidence wins, and confidences below
// every bucket are ignored.
type ConfidenceBucket struct {
	MinConfidence float64 `json:"minConfidence"`
	Mode          Mode    `json:"mode"`
	// WeightFactor multiplies the category base weight when Mode is
	// enforce. Zero is treated as 1.
	WeightFactor int64 `json:"weightFactor,omitempty"`
}

// CategoryPolicy is the enforcement shape for one verdict category.
type CategoryPolicy struct {
	Reason        memberstore.StrikeReason `json:"reason"`
	BaseWeight    int64                    `json:"baseWeight"`
	DeleteMessage bool                     `json:"deleteMessage"`
}

// StrikePolicy configures the strike ledger.
type StrikePolicy struct {
	Decay map[memberstore.StrikeReason]Duration `json:"decay"`
	Tiers []strike.TierStep                     `json:"tiers"`
}

// RaidPolicy configures the join-rate detector and how lockdown joiners
// are treated.
type RaidPolicy struct {
	Window           Duration         `json:"window"`
	Threshold        int              `json:"threshold"`
	LockdownDuration Duration         `json:"lockdownDuration"`
	Response         LockdownResponse `json:"response"`
}

// XPPolicy configures engagement rewards.
type XPPolicy struct {
	Cooldown      Duration `json:"cooldown"`
	PerMessageMin int64    `json:"perMessageMin"`
	PerMessageMax int64    `json:"perMessageMax"`
	PerReaction   int64    `json:"perReaction"`
	PerJoin       int64    `json:"perJoin"`
	Levels        []int64  `json:"levels,omitempty"`
	// Seed pins the per-message jitter for reproducible runs. Zero seeds
	// from entropy.
	Seed int64 `json:"seed,omitempty"`
}

// Policy is the complete moderation configuration for a deployment. All
// communities served by one daemon share a single policy.
type Policy struct {
	Strike StrikePolicy `json:"strike"`
	Raid   RaidPolicy   `json:"raid"`
	XP     XPPolicy     `json:"xp"`

	Categories        map[verdict.Category]CategoryPolicy `json:"categories"`
	ConfidenceBuckets []ConfidenceBucket                  `json:"confidenceBuckets"`

	// MuteDuration is attached to every Mute action the engine emits.
	MuteDuration Duration `json:"muteDuration"`

	// OnClassifierError selects review or ignore when the verdict source
	// fails. The error is surfaced to the caller either way.
	OnClassifierError Mode `json:"onClassifierError"`

	// ClassifierTimeout bounds each Classify call. Zero disables the
	// engine-side deadline and leaves only the caller's context.
	ClassifierTimeout Duration `json:"classifierTimeout"`

	// QuotaBanDay and QuotaKickDay cap executed bans and kicks per
	// community per UTC day; excess actions are downgraded to review
	// flags. Zero disables the corresponding quota.
	QuotaBanDay  int64 `json:"quotaBanDay"`
	QuotaKickDay int64 `json:"quotaKickDay"`
}

// DefaultPolicy returns the stock configuration: conservative quotas,
// one-hour mutes, and the standard level curve.
func DefaultPolicy() Policy {
	return Policy{
		Strike: StrikePolicy{
			Decay: map[memberstore.StrikeReason]Duration{
				memberstore.ReasonSpam:      Duration(7 * 24 * time.Hour),
				memberstore.ReasonToxicity:  Duration(14 * 24 * time.Hour),
				memberstore.ReasonLinkAbuse: Duration(7 * 24 * time.Hour),
				memberstore.ReasonRaid:      Duration(3 * 24 * time.Hour),
				memberstore.ReasonManual:    Duration(30 * 24 * time.Hour),
			},
			Tiers: []strike.TierStep{
				{MinWeight: 1, State: memberstore.StateWarned},
				{MinWeight: 3, State: memberstore.StateMuted},
				{MinWeight: 5, State: memberstore.StateKicked},
				{MinWeight: 8, State: memberstore.StateBanned},
			},
		},
		Raid: RaidPolicy{
			Window:           Duration(time.Minute),
			Threshold:        10,
			LockdownDuration: Duration(10 * time.Minute),
			Response:         LockdownReview,
		},
		XP: XPPolicy{
			Cooldown:      Duration(time.Minute),
			PerMessageMin: 1,
			PerMessageMax: 1,
			PerReaction:   1,
			PerJoin:       10,
			Levels:        xp.DefaultLevels(),
		},
		Categories: map[verdict.Category]CategoryPolicy{
			verdict.CategorySpam:      {Reason: memberstore.ReasonSpam, BaseWeight: 1, DeleteMessage: true},
			verdict.CategoryToxicity:  {Reason: memberstore.ReasonToxicity, BaseWeight: 2, DeleteMessage: true},
			verdict.CategoryLinkAbuse: {Reason: memberstore.ReasonLinkAbuse, BaseWeight: 1, DeleteMessage: true},
		},
		ConfidenceBuckets: []ConfidenceBucket{
			{MinConfidence: 0.90, Mode: ModeEnforce, WeightFactor: 1},
			{MinConfidence: 0.60, Mode: ModeReview},
		},
		MuteDuration:      Duration(time.Hour),
		OnClassifierError: ModeReview,
		ClassifierTimeout: Duration(10 * time.Second),
		QuotaBanDay:       10,
		QuotaKickDay:      50,
	}
}

// StrikeConfig converts the strike section for the ledger.
func (p *Policy) StrikeConfig() strike.Config {
	decay := make(map[memberstore.StrikeReason]time.Duration, len(p.Strike.Decay))
	for reason, d := range p.Strike.Decay {
		decay[reason] = d.Std()
	}
	return strike.Config{Decay: decay, Tiers: p.Strike.Tiers}
}

// RaidConfig converts the raid section for the detector.
func (p *Policy) RaidConfig() raid.Config {
	return raid.Config{
		Window:           p.Raid.Window.Std(),
		Threshold:        p.Raid.Threshold,
		LockdownDuration: p.Raid.LockdownDuration.Std(),
	}
}

// XPConfig converts the XP section for the engagement engine.
func (p *Policy) XPConfig() xp.Config {
	return xp.Config{
		Cooldown:      p.XP.Cooldown.Std(),
		PerMessageMin: p.XP.PerMessageMin,
		PerMessageMax: p.XP.PerMessageMax,
		PerReaction:   p.XP.PerReaction,
		PerJoin:       p.XP.PerJoin,
		Levels:        p.XP.Levels,
		Seed:          p.XP.Seed,
	}
}

// Validate checks the whole policy, including the component sections, so
// a daemon fails at startup instead of mid-traffic.
func (p *Policy) Validate() error {
	sc := p.StrikeConfig()
	if err := sc.Validate(); err != nil {
		return err
	}
	rc := p.RaidConfig()
	if err := rc.Validate(); err != nil {
		return err
	}
	xc := p.XPConfig()
	if err := xc.Validate(); err != nil {
		return err
	}

	if len(p.Categories) == 0 {
		return fmt.Errorf("at least one verdict category policy is required")
	}
	for cat, cp := range p.Categories {
		if cat == verdict.CategoryBenign {
			return fmt.Errorf("benign verdicts can not carry an enforcement policy")
		}
		if cp.Reason == "" {
			return fmt.Errorf("category %q: strike reason is required", cat)
		}
		if cp.BaseWeight < 1 {
			return fmt.Errorf("category %q: base weight must be at least 1", cat)
		}
	}

	if len(p.ConfidenceBuckets) == 0 {
		return fmt.Errorf("at least one confidence bucket is required")
	}
	for i, b := range p.ConfidenceBuckets {
		if b.MinConfidence < 0 || b.MinConfidence > 1 {
			return fmt.Errorf("bucket %d: confidence threshold must be within [0,1], got %f", i, b.MinConfidence)
		}
		if i > 0 && b.MinConfidence >= p.ConfidenceBuckets[i-1].MinConfidence {
			return fmt.Errorf("confidence buckets must be sorted by strictly descending threshold")
		}
		switch b.Mode {
		case ModeEnforce, ModeReview, ModeIgnore:
		default:
			return fmt.Errorf("bucket %d: unknown mode %q", i, b.Mode)
		}
		if b.WeightFactor < 0 {
			return fmt.Errorf("bucket %d: weight factor must not be negative", i)
		}
	}

	switch p.Raid.Response {
	case LockdownReview, LockdownMute, LockdownKick:
	default:
		return fmt.Errorf("raid response must be review, mute, or kick, got %q", p.Raid.Response)
	}
	switch p.OnClassifierError {
	case ModeReview, ModeIgnore:
	default:
		return fmt.Errorf("onClassifierError must be review or ignore, got %q", p.OnClassifierError)
	}

	if p.MuteDuration <= 0 {
		return fmt.Errorf("mute duration must be positive")
	}
	if p.ClassifierTimeout < 0 {
		return fmt.Errorf("classifier timeout must not be negative")
	}
	if p.QuotaBanDay < 0 || p.QuotaKickDay < 0 {
		return fmt.Errorf("action quotas must not be negative")
	}
	return nil
}

// Enforcement is the resolved handling for one violating verdict.
type Enforcement struct {
	Mode          Mode
	Reason        memberstore.StrikeReason
	Weight        int64
	DeleteMessage bool
}

// EnforcementFor maps a violating verdict through the confidence buckets.
// Categories without a configured policy go to review rather than being
// silently enforced or silently dropped.
func (p *Policy) EnforcementFor(category verdict.Category, confidence float64) Enforcement {
	cp, ok := p.Categories[category]
	if !ok {
		return Enforcement{Mode: ModeReview, Reason: memberstore.ReasonManual}
	}
	for _, b := range p.ConfidenceBuckets {
		if confidence < b.MinConfidence {
			continue
		}
		if b.Mode != ModeEnforce {
			return Enforcement{Mode: b.Mode, Reason: cp.Reason, DeleteMessage: cp.DeleteMessage}
		}
		factor := b.WeightFactor
		if factor < 1 {
			factor = 1
		}
		return Enforcement{
			Mode:          ModeEnforce,
			Reason:        cp.Reason,
			Weight:        cp.BaseWeight * factor,
			DeleteMessage: cp.DeleteMessage,
		}
	}
	return Enforcement{Mode: ModeIgnore}
}

// LoadFromFileJSON reads a policy file and merges it over the defaults:
// absent fields keep their default values, present maps and lists replace
// them wholesale. The result is validated before being returned.
func LoadFromFileJSON(p string) (*Policy, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	pol := DefaultPolicy()
	if err := json.Unmarshal(raw, &pol); err != nil {
		return nil, fmt.Errorf("parsing policy file: %w", err)
	}
	if err := pol.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy file %s: %w", p, err)
	}
	return &pol, nil
}
