// Package raid flags anomalous join velocity per community: a sliding
// window of recent joins trips a temporary lockdown once it fills past a
// configured threshold. The detector only reports state transitions, it
// never decides sanctions.
package raid

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

type Config struct {
	// Window is the sliding window length joins are counted over.
	Window time.Duration

	// Threshold is the join count within Window that trips lockdown.
	// Comparison is >=, so the exact boundary value trips it.
	Threshold int

	// LockdownDuration is how long a lockdown lasts once tripped.
	LockdownDuration time.Duration
}

func (c *Config) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("raid window must be positive, got %v", c.Window)
	}
	if c.Threshold < 1 {
		return fmt.Errorf("raid threshold must be >= 1, got %d", c.Threshold)
	}
	if c.LockdownDuration <= 0 {
		return fmt.Errorf("lockdown duration must be positive, got %v", c.LockdownDuration)
	}
	return nil
}

// Status is the detector's view of one community after an observation.
// LockdownBegan and LockdownEnded report transitions that happened during
// this exact call and are never repeated for the same transition.
type Status struct {
	JoinCount      int       `json:"joinCount"`
	LockdownActive bool      `json:"lockdownActive"`
	LockdownUntil  time.Time `json:"lockdownUntil,omitempty"`
	LockdownBegan  bool      `json:"-"`
	LockdownEnded  bool      `json:"-"`
}

type joinEntry struct {
	memberID string
	at       time.Time
}

type community struct {
	mu             sync.Mutex
	entries        []joinEntry
	lockdownActive bool
	lockdownUntil  time.Time
}

// Detector holds per-community join windows. All methods take the caller's
// clock: timestamps must be monotonic non-decreasing per community, and the
// detector never reads wall-clock time itself.
type Detector struct {
	cfg         Config
	logger      *slog.Logger
	communities *xsync.MapOf[string, *community]
}

func NewDetector(cfg Config, logger *slog.Logger) (*Detector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("raid detector config: %w", err)
	}
	return &Detector{
		cfg:         cfg,
		logger:      logger.With("component", "raid_detector"),
		communities: xsync.NewMapOf[string, *community](),
	}, nil
}

// ObserveJoin records a join at the given instant and returns the updated
// status. Eviction of stale window entries always happens before the rate
// is computed.
func (d *Detector) ObserveJoin(communityID, memberID string, now time.Time) Status {
	c, _ := d.communities.LoadOrCompute(communityID, func() *community {
		return &community{}
	})
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evict(now, d.cfg.Window)
	c.entries = append(c.entries, joinEntry{memberID: memberID, at: now})

	st := Status{JoinCount: len(c.entries)}
	if len(c.entries) >= d.cfg.Threshold && !c.lockdownActive {
		c.lockdownActive = true
		c.lockdownUntil = now.Add(d.cfg.LockdownDuration)
		st.LockdownBegan = true
		d.logger.Warn("join velocity over threshold, lockdown enabled",
			"community", communityID,
			"joins", len(c.entries),
			"window", d.cfg.Window,
			"until", c.lockdownUntil,
		)
	}
	c.expireLockdown(now, &st, d.logger, communityID)

	st.LockdownActive = c.lockdownActive
	st.LockdownUntil = c.lockdownUntil
	return st
}

// Status reports the current state without recording a join. The read path
// still evicts stale entries and normalizes an expired lockdown, so stale
// state never leaks out of a quiet community.
func (d *Detector) Status(communityID string, now time.Time) Status {
	c, ok := d.communities.Load(communityID)
	if !ok {
		return Status{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evict(now, d.cfg.Window)

	st := Status{JoinCount: len(c.entries)}
	c.expireLockdown(now, &st, d.logger, communityID)
	st.LockdownActive = c.lockdownActive
	st.LockdownUntil = c.lockdownUntil
	return st
}

// Reset drops all window and lockdown state for a community.
func (d *Detector) Reset(communityID string) {
	d.communities.Delete(communityID)
	d.logger.Info("raid state reset", "community", communityID)
}

// evict drops entries older than the window, preserving order. Entries are
// appended with non-decreasing timestamps, so stale ones form a prefix.
func (c *community) evict(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(c.entries) && c.entries[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		c.entries = append(c.entries[:0], c.entries[i:]...)
	}
}

func (c *community) expireLockdown(now time.Time, st *Status, logger *slog.Logger, communityID string) {
	if c.lockdownActive && !now.Before(c.lockdownUntil) {
		c.lockdownActive = false
		c.lockdownUntil = time.Time{}
		st.LockdownEnded = true
		logger.Info("lockdown lifted", "community", communityID)
	}
}
