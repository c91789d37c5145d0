package engine

import (
	"context"
	"sync"

	"github.com/chatwarden/warden/countstore"
	"github.com/chatwarden/warden/memberstore"
	"github.com/chatwarden/warden/policy"
	"github.com/chatwarden/warden/verdict"
)

// CaptureDispatcher collects dispatch events in memory. Primarily a test
// sink, also useful for dry-run tooling.
type CaptureDispatcher struct {
	mu     sync.Mutex
	events []DispatchEvent
}

func (c *CaptureDispatcher) Dispatch(ctx context.Context, evt *DispatchEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, *evt)
	return nil
}

// Events returns a copy of everything dispatched so far.
func (c *CaptureDispatcher) Events() []DispatchEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]DispatchEvent, len(c.events))
	copy(out, c.events)
	return out
}

// Actions flattens all dispatched events into one action list, in order.
func (c *CaptureDispatcher) Actions() []Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Action
	for i := range c.events {
		out = append(out, c.events[i].Actions...)
	}
	return out
}

// Kinds returns the kind of every dispatched action, in order.
func (c *CaptureDispatcher) Kinds() []ActionKind {
	var out []ActionKind
	for _, a := range c.Actions() {
		out = append(out, a.Kind)
	}
	return out
}

// Reset drops everything captured so far.
func (c *CaptureDispatcher) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// EngineTestFixture returns an engine wired to in-memory stores, the
// keyword verdict source, a pinned XP seed, and a capture dispatcher.
func EngineTestFixture() (*Engine, *CaptureDispatcher) {
	pol := policy.DefaultPolicy()
	pol.XP.Seed = 42
	return EngineTestFixtureWithPolicy(pol)
}

// EngineTestFixtureWithPolicy is EngineTestFixture with a caller-supplied
// policy, for exercising tier tables and quota edges.
func EngineTestFixtureWithPolicy(pol policy.Policy) (*Engine, *CaptureDispatcher) {
	capture := &CaptureDispatcher{}
	eng, err := New(Config{
		Policy:     pol,
		Store:      memberstore.NewMemStore(),
		Verdicts:   verdict.NewKeywordSource(),
		Counters:   countstore.NewMemCountStore(),
		Dispatcher: capture,
	})
	if err != nil {
		panic(err)
	}
	return eng, capture
}
