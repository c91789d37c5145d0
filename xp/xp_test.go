package xp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatwarden/warden/memberstore"
)

func testConfig() Config {
	return Config{
		Cooldown:      time.Minute,
		PerMessageMin: 10,
		PerMessageMax: 10,
		PerReaction:   1,
		PerJoin:       10,
		Levels:        DefaultLevels(),
		Seed:          42,
	}
}

func testEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := NewEngine(memberstore.NewMemStore(), cfg, nil)
	require.NoError(t, err)
	return e
}

func TestFirstActivityGrants(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()
	e := testEngine(t, testConfig())
	t0 := time.Unix(1700000000, 0)

	grant, err := e.RecordActivity(ctx, "c1", "alice", ActivityMessage, t0, "")
	assert.NoError(err)
	require.NotNil(t, grant)
	assert.Equal(int64(10), grant.Amount)
	assert.Equal(int64(10), grant.Total)
	assert.Equal(0, grant.Level)
	assert.False(grant.NewLevel)
}

func TestCooldownGatesAwarding(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()
	e := testEngine(t, testConfig())
	t0 := time.Unix(1700000000, 0)

	grant, err := e.RecordActivity(ctx, "c1", "alice", ActivityMessage, t0, "")
	require.NoError(t, err)
	require.NotNil(t, grant)

	// half a cooldown later: nothing
	grant, err = e.RecordActivity(ctx, "c1", "alice", ActivityMessage, t0.Add(30*time.Second), "")
	assert.NoError(err)
	assert.Nil(grant)

	// a full cooldown past the first message: awarded again
	e2 := testEngine(t, testConfig())
	grant, err = e2.RecordActivity(ctx, "c1", "bob", ActivityMessage, t0, "")
	require.NoError(t, err)
	require.NotNil(t, grant)
	grant, err = e2.RecordActivity(ctx, "c1", "bob", ActivityMessage, t0.Add(time.Minute+time.Second), "")
	assert.NoError(err)
	require.NotNil(t, grant)
	assert.Equal(int64(20), grant.Total)
}

func TestCooldownClockResetsOnSuppressedActivity(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()
	e := testEngine(t, testConfig())
	t0 := time.Unix(1700000000, 0)

	_, err := e.RecordActivity(ctx, "c1", "alice", ActivityMessage, t0, "")
	require.NoError(t, err)

	// inside the cooldown: no award, but the clock restarts here
	grant, err := e.RecordActivity(ctx, "c1", "alice", ActivityMessage, t0.Add(30*time.Second), "")
	require.NoError(t, err)
	require.Nil(t, grant)

	// 84s after t0 is 54s after the reset, still inside the cooldown
	grant, err = e.RecordActivity(ctx, "c1", "alice", ActivityMessage, t0.Add(84*time.Second), "")
	assert.NoError(err)
	assert.Nil(grant)

	m, err := e.store.Get(ctx, "c1", "alice")
	assert.NoError(err)
	assert.Equal(int64(10), m.XP, "spam-clicking must not farm XP")
	assert.Equal(int64(3), m.MessageCount)
}

func TestLevelUpEmittedOnceAtThreshold(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()
	cfg := testConfig()
	e := testEngine(t, cfg)
	t0 := time.Unix(1700000000, 0)

	// seed the member just below the level 1 threshold
	require.NoError(t, e.store.Update(ctx, "c1", "alice", func(m *memberstore.Member) error {
		m.XP = 95
		m.Level = 0
		return nil
	}))

	grant, err := e.RecordActivity(ctx, "c1", "alice", ActivityMessage, t0, "")
	assert.NoError(err)
	require.NotNil(t, grant)
	assert.Equal(int64(105), grant.Total)
	assert.Equal(1, grant.Level)
	assert.True(grant.NewLevel)

	// the next grant stays at level 1 without re-announcing
	grant, err = e.RecordActivity(ctx, "c1", "alice", ActivityMessage, t0.Add(2*time.Minute), "")
	assert.NoError(err)
	require.NotNil(t, grant)
	assert.Equal(1, grant.Level)
	assert.False(grant.NewLevel)
}

func TestEventIDDedupe(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()
	e := testEngine(t, testConfig())
	t0 := time.Unix(1700000000, 0)

	grant, err := e.RecordActivity(ctx, "c1", "alice", ActivityMessage, t0, "msg-1")
	require.NoError(t, err)
	require.NotNil(t, grant)

	// redelivery of the same event is a complete no-op
	grant, err = e.RecordActivity(ctx, "c1", "alice", ActivityMessage, t0.Add(2*time.Minute), "msg-1")
	assert.NoError(err)
	assert.Nil(grant)

	m, err := e.store.Get(ctx, "c1", "alice")
	assert.NoError(err)
	assert.Equal(int64(10), m.XP)
	assert.Equal(int64(1), m.MessageCount)
}

func TestJoinBonusAndJoinedAt(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()
	e := testEngine(t, testConfig())
	t0 := time.Unix(1700000000, 0)

	grant, err := e.RecordActivity(ctx, "c1", "alice", ActivityJoin, t0, "")
	assert.NoError(err)
	require.NotNil(t, grant)
	assert.Equal(int64(10), grant.Amount)

	m, err := e.store.Get(ctx, "c1", "alice")
	assert.NoError(err)
	require.NotNil(t, m.JoinedAt)
	assert.Equal(t0, *m.JoinedAt)

	// a rejoin does not move the original join timestamp
	_, err = e.RecordActivity(ctx, "c1", "alice", ActivityJoin, t0.Add(48*time.Hour), "")
	assert.NoError(err)
	m, err = e.store.Get(ctx, "c1", "alice")
	assert.NoError(err)
	assert.Equal(t0, *m.JoinedAt)
}

func TestDeterministicJitter(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()
	cfg := testConfig()
	cfg.PerMessageMin = 1
	cfg.PerMessageMax = 5
	t0 := time.Unix(1700000000, 0)

	run := func() []int64 {
		e := testEngine(t, cfg)
		var amounts []int64
		for i := 0; i < 20; i++ {
			grant, err := e.RecordActivity(ctx, "c1", "alice", ActivityMessage, t0.Add(time.Duration(i)*2*time.Minute), "")
			require.NoError(t, err)
			require.NotNil(t, grant)
			amounts = append(amounts, grant.Amount)
		}
		return amounts
	}

	first := run()
	second := run()
	assert.Equal(first, second, "same seed must give the same draw sequence")
	for _, a := range first {
		assert.GreaterOrEqual(a, int64(1))
		assert.LessOrEqual(a, int64(5))
	}
}

func TestUnknownActivityKindRejected(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()
	e := testEngine(t, testConfig())

	_, err := e.RecordActivity(ctx, "c1", "alice", ActivityKind("teleport"), time.Now(), "")
	assert.Error(err)

	_, err = e.store.Get(ctx, "c1", "alice")
	assert.ErrorIs(err, memberstore.ErrNotFound)
}

func TestLevelForXP(t *testing.T) {
	assert := assert.New(t)
	levels := DefaultLevels()

	assert.Equal(0, LevelForXP(levels, 0))
	assert.Equal(0, LevelForXP(levels, 99))
	assert.Equal(1, LevelForXP(levels, 100))
	assert.Equal(1, LevelForXP(levels, 249))
	assert.Equal(2, LevelForXP(levels, 250))
	assert.Equal(14, LevelForXP(levels, 25000))
	assert.Equal(14, LevelForXP(levels, 9999999))
}

func TestTitles(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("New Member", Title(0))
	assert.Equal("Veteran", Title(4))
	assert.Equal("GOAT", Title(14))
	assert.Equal("GOAT", Title(99))
	assert.Equal("New Member", Title(-1))
}

func TestConfigValidate(t *testing.T) {
	assert := assert.New(t)

	cfg := testConfig()
	assert.NoError(cfg.Validate())

	bad := testConfig()
	bad.Cooldown = -time.Second
	assert.Error(bad.Validate())

	bad = testConfig()
	bad.PerMessageMax = 5 // below min of 10
	assert.Error(bad.Validate())

	bad = testConfig()
	bad.Levels = []int64{0, 100, 100}
	assert.Error(bad.Validate())

	bad = testConfig()
	bad.Levels = []int64{50, 100}
	assert.Error(bad.Validate())

	bad = testConfig()
	bad.Levels = nil
	assert.Error(bad.Validate())
}
