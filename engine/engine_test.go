package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chatwarden/warden/countstore"
	"github.com/chatwarden/warden/memberstore"
	"github.com/chatwarden/warden/policy"
	"github.com/chatwarden/warden/strike"
	"github.com/chatwarden/warden/verdict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, pol policy.Policy, store memberstore.Store, src verdict.Source) (*Engine, *CaptureDispatcher) {
	t.Helper()
	capture := &CaptureDispatcher{}
	eng, err := New(Config{
		Policy:     pol,
		Store:      store,
		Verdicts:   src,
		Counters:   countstore.NewMemCountStore(),
		Dispatcher: capture,
	})
	require.NoError(t, err)
	return eng, capture
}

func kinds(actions []Action) []ActionKind {
	out := make([]ActionKind, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.Kind)
	}
	return out
}

func TestCleanMessageGrantsXP(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()
	t0 := time.Unix(1700000000, 0)

	eng, capture := EngineTestFixture()

	evt := MessageEvent{CommunityID: "c1", MemberID: "alice", MessageID: "m1", Text: "good morning everyone", Time: t0}
	actions, err := eng.ProcessMessage(ctx, evt)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(ActionGrantXP, actions[0].Kind)
	assert.Equal(int64(1), actions[0].Amount)
	assert.Equal("c1", actions[0].CommunityID)
	assert.Equal("alice", actions[0].TargetMemberID)

	evts := capture.Events()
	require.Len(t, evts, 1)
	assert.Equal(EventMessage, evts[0].Type)
	assert.Equal("m1", evts[0].MessageID)

	m, err := eng.store.Get(ctx, "c1", "alice")
	require.NoError(t, err)
	assert.Equal(int64(1), m.XP)
	assert.Equal(int64(1), m.MessageCount)

	// redelivery of the same event is a no-op
	actions, err = eng.ProcessMessage(ctx, evt)
	require.NoError(t, err)
	assert.Empty(actions)
	m, err = eng.store.Get(ctx, "c1", "alice")
	require.NoError(t, err)
	assert.Equal(int64(1), m.XP)
	assert.Equal(int64(1), m.MessageCount)

	// a new message inside the cooldown still counts, but grants nothing
	actions, err = eng.ProcessMessage(ctx, MessageEvent{
		CommunityID: "c1", MemberID: "alice", MessageID: "m2", Text: "still chatting", Time: t0.Add(5 * time.Second),
	})
	require.NoError(t, err)
	assert.Empty(actions)
	m, err = eng.store.Get(ctx, "c1", "alice")
	require.NoError(t, err)
	assert.Equal(int64(1), m.XP)
	assert.Equal(int64(2), m.MessageCount)
}

func TestViolationEscalation(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()
	t0 := time.Unix(1700000000, 0)

	eng, _ := EngineTestFixture()

	send := func(id string, at time.Time) []Action {
		actions, err := eng.ProcessMessage(ctx, MessageEvent{
			CommunityID: "c1", MemberID: "spammer", MessageID: id,
			Text: "buy now before it is gone", Time: at,
		})
		require.NoError(t, err)
		return actions
	}

	actions := send("m1", t0)
	assert.Equal([]ActionKind{ActionDeleteMessage, ActionWarn}, kinds(actions))
	assert.Equal("m1", actions[0].MessageID)

	actions = send("m2", t0.Add(time.Minute))
	assert.Equal([]ActionKind{ActionDeleteMessage, ActionWarn}, kinds(actions))

	// third strike reaches weight 3 and the mute tier
	actions = send("m3", t0.Add(2*time.Minute))
	require.Len(t, actions, 2)
	assert.Equal(ActionMute, actions[1].Kind)
	assert.Equal(time.Hour, actions[1].Duration)

	view, err := eng.MemberSnapshot(ctx, "c1", "spammer", t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(memberstore.StateMuted, view.SanctionState)
	assert.Equal(int64(3), view.ActiveWeight)
	assert.Equal(3, view.StrikeCount)
	assert.Equal(int64(0), view.XP)

	// spam strikes decay after a week
	view, err = eng.MemberSnapshot(ctx, "c1", "spammer", t0.Add(8*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(memberstore.StateClean, view.SanctionState)
	assert.Equal(int64(0), view.ActiveWeight)
	assert.Equal(0, view.StrikeCount)
}

func TestReviewBucket(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()
	t0 := time.Unix(1700000000, 0)

	eng, capture := EngineTestFixture()

	// repeated characters score 0.65, inside the review band
	actions, err := eng.ProcessMessage(ctx, MessageEvent{
		CommunityID: "c1", MemberID: "bob", MessageID: "m1", Text: "aaaaaaaaaa", Time: t0,
	})
	require.NoError(t, err)
	assert.Equal([]ActionKind{ActionReviewFlag}, kinds(actions))

	// review touches no member state at all
	_, gerr := eng.store.Get(ctx, "c1", "bob")
	assert.ErrorIs(gerr, memberstore.ErrNotFound)

	require.Len(t, capture.Events(), 1)
}

func TestIgnoreBucket(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()
	t0 := time.Unix(1700000000, 0)

	pol := policy.DefaultPolicy()
	pol.XP.Seed = 11
	src := verdict.SourceFunc(func(ctx context.Context, msg *verdict.Message) (*verdict.Verdict, error) {
		return &verdict.Verdict{IsViolation: true, Category: verdict.CategorySpam, Confidence: 0.30}, nil
	})
	eng, _ := newTestEngine(t, pol, memberstore.NewMemStore(), src)

	// below every bucket the verdict is treated as clean
	actions, err := eng.ProcessMessage(ctx, MessageEvent{
		CommunityID: "c1", MemberID: "carol", MessageID: "m1", Text: "whatever", Time: t0,
	})
	require.NoError(t, err)
	assert.Equal([]ActionKind{ActionGrantXP}, kinds(actions))

	m, err := eng.store.Get(ctx, "c1", "carol")
	require.NoError(t, err)
	assert.Empty(m.Strikes)
	assert.Equal(int64(1), m.XP)
}

func TestClassifierErrorFlagsForReview(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()
	t0 := time.Unix(1700000000, 0)

	boom := errors.New("model host down")
	src := verdict.SourceFunc(func(ctx context.Context, msg *verdict.Message) (*verdict.Verdict, error) {
		return nil, boom
	})

	pol := policy.DefaultPolicy()
	pol.XP.Seed = 11
	eng, capture := newTestEngine(t, pol, memberstore.NewMemStore(), src)

	actions, err := eng.ProcessMessage(ctx, MessageEvent{
		CommunityID: "c1", MemberID: "dave", MessageID: "m1", Text: "hello", Time: t0,
	})
	var cerr *ClassifierError
	require.True(t, errors.As(err, &cerr))
	assert.ErrorIs(err, boom)
	assert.Equal([]ActionKind{ActionReviewFlag}, kinds(actions))

	// never treated as benign: no XP, no strike
	_, gerr := eng.store.Get(ctx, "c1", "dave")
	assert.ErrorIs(gerr, memberstore.ErrNotFound)
	require.Len(t, capture.Events(), 1)

	// with the ignore setting the error still surfaces, just without a flag
	pol = policy.DefaultPolicy()
	pol.XP.Seed = 11
	pol.OnClassifierError = policy.ModeIgnore
	eng, _ = newTestEngine(t, pol, memberstore.NewMemStore(), src)

	actions, err = eng.ProcessMessage(ctx, MessageEvent{
		CommunityID: "c1", MemberID: "dave", MessageID: "m1", Text: "hello", Time: t0,
	})
	require.True(t, errors.As(err, &cerr))
	assert.Empty(actions)
}

func TestClassifierTimeout(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()
	t0 := time.Unix(1700000000, 0)

	pol := policy.DefaultPolicy()
	pol.XP.Seed = 11
	pol.ClassifierTimeout = policy.Duration(20 * time.Millisecond)

	src := verdict.SourceFunc(func(ctx context.Context, msg *verdict.Message) (*verdict.Verdict, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return &verdict.Verdict{IsViolation: false, Category: verdict.CategoryBenign, Confidence: 0.99}, nil
		}
	})
	eng, _ := newTestEngine(t, pol, memberstore.NewMemStore(), src)

	actions, err := eng.ProcessMessage(ctx, MessageEvent{
		CommunityID: "c1", MemberID: "erin", MessageID: "m1", Text: "hello", Time: t0,
	})
	var cerr *ClassifierError
	require.True(t, errors.As(err, &cerr))
	assert.ErrorIs(err, context.DeadlineExceeded)
	assert.Equal([]ActionKind{ActionReviewFlag}, kinds(actions))
}

func TestRaidLockdownFlow(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()
	t0 := time.Unix(1700000000, 0)

	pol := policy.DefaultPolicy()
	pol.XP.Seed = 7
	pol.Raid.Threshold = 3
	eng, capture := EngineTestFixtureWithPolicy(pol)

	join := func(member string, at time.Time) []Action {
		actions, err := eng.ProcessJoin(ctx, JoinEvent{CommunityID: "c1", MemberID: member, Time: at})
		require.NoError(t, err)
		return actions
	}

	assert.Equal([]ActionKind{ActionGrantXP}, kinds(join("m1", t0)))
	assert.Equal([]ActionKind{ActionGrantXP}, kinds(join("m2", t0.Add(time.Second))))

	// the third join crosses the threshold and is itself inside the lockdown
	actions := join("m3", t0.Add(2*time.Second))
	require.Equal(t, []ActionKind{ActionLockdownEnable, ActionReviewFlag}, kinds(actions))
	assert.Equal(10*time.Minute, actions[0].Duration)
	assert.Empty(actions[0].TargetMemberID)
	assert.Equal("m3", actions[1].TargetMemberID)

	assert.Equal([]ActionKind{ActionReviewFlag}, kinds(join("m4", t0.Add(3*time.Second))))

	st, err := eng.RaidStatus(ctx, "c1", t0.Add(3*time.Second))
	require.NoError(t, err)
	assert.True(st.LockdownActive)

	enables := 0
	for _, a := range capture.Actions() {
		if a.Kind == ActionLockdownEnable {
			enables++
		}
	}
	assert.Equal(1, enables)

	// members flagged during lockdown got no stored state
	_, gerr := eng.store.Get(ctx, "c1", "m4")
	assert.ErrorIs(gerr, memberstore.ErrNotFound)

	// the early joiners were rewarded normally
	m, err := eng.store.Get(ctx, "c1", "m1")
	require.NoError(t, err)
	assert.Equal(int64(10), m.XP)
	require.NotNil(t, m.JoinedAt)

	// after the deadline the next join releases the lockdown and is rewarded
	actions = join("m5", t0.Add(15*time.Minute))
	assert.Equal([]ActionKind{ActionLockdownDisable, ActionGrantXP}, kinds(actions))
}

func TestLockdownSanctionResponses(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()
	t0 := time.Unix(1700000000, 0)

	pol := policy.DefaultPolicy()
	pol.XP.Seed = 7
	pol.Raid.Threshold = 2
	pol.Raid.Response = policy.LockdownMute
	eng, _ := EngineTestFixtureWithPolicy(pol)

	_, err := eng.ProcessJoin(ctx, JoinEvent{CommunityID: "c1", MemberID: "m1", Time: t0})
	require.NoError(t, err)
	actions, err := eng.ProcessJoin(ctx, JoinEvent{CommunityID: "c1", MemberID: "m2", Time: t0.Add(time.Second)})
	require.NoError(t, err)
	require.Equal(t, []ActionKind{ActionLockdownEnable, ActionMute}, kinds(actions))
	assert.Equal(time.Hour, actions[1].Duration)

	// the mute response records a raid strike
	m, err := eng.store.Get(ctx, "c1", "m2")
	require.NoError(t, err)
	require.Len(t, m.Strikes, 1)
	assert.Equal(memberstore.ReasonRaid, m.Strikes[0].Reason)
	assert.Equal(memberstore.StateWarned, m.SanctionState)

	pol.Raid.Response = policy.LockdownKick
	eng, _ = EngineTestFixtureWithPolicy(pol)
	_, err = eng.ProcessJoin(ctx, JoinEvent{CommunityID: "c1", MemberID: "m1", Time: t0})
	require.NoError(t, err)
	actions, err = eng.ProcessJoin(ctx, JoinEvent{CommunityID: "c1", MemberID: "m2", Time: t0.Add(time.Second)})
	require.NoError(t, err)
	assert.Equal([]ActionKind{ActionLockdownEnable, ActionKick}, kinds(actions))
}

func TestRaidStatusDispatchesExpiry(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()
	t0 := time.Unix(1700000000, 0)

	pol := policy.DefaultPolicy()
	pol.XP.Seed = 7
	pol.Raid.Threshold = 2
	eng, capture := EngineTestFixtureWithPolicy(pol)

	_, err := eng.ProcessJoin(ctx, JoinEvent{CommunityID: "c1", MemberID: "m1", Time: t0})
	require.NoError(t, err)
	_, err = eng.ProcessJoin(ctx, JoinEvent{CommunityID: "c1", MemberID: "m2", Time: t0.Add(time.Second)})
	require.NoError(t, err)
	capture.Reset()

	st, err := eng.RaidStatus(ctx, "c1", t0.Add(20*time.Minute))
	require.NoError(t, err)
	assert.False(st.LockdownActive)

	evts := capture.Events()
	require.Len(t, evts, 1)
	assert.Equal(EventRaidStatus, evts[0].Type)
	assert.Equal([]ActionKind{ActionLockdownDisable}, kinds(evts[0].Actions))

	// the transition reports only once
	st, err = eng.RaidStatus(ctx, "c1", t0.Add(21*time.Minute))
	require.NoError(t, err)
	assert.False(st.LockdownActive)
	assert.Len(capture.Events(), 1)
}

func TestResetRaid(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()
	t0 := time.Unix(1700000000, 0)

	pol := policy.DefaultPolicy()
	pol.XP.Seed = 7
	pol.Raid.Threshold = 2
	eng, capture := EngineTestFixtureWithPolicy(pol)

	_, err := eng.ProcessJoin(ctx, JoinEvent{CommunityID: "c1", MemberID: "m1", Time: t0})
	require.NoError(t, err)
	_, err = eng.ProcessJoin(ctx, JoinEvent{CommunityID: "c1", MemberID: "m2", Time: t0.Add(time.Second)})
	require.NoError(t, err)
	capture.Reset()

	require.NoError(t, eng.ResetRaid(ctx, "c1", t0.Add(2*time.Second)))
	actions := capture.Actions()
	require.Len(t, actions, 1)
	assert.Equal(ActionLockdownDisable, actions[0].Kind)
	assert.Equal("raid state reset", actions[0].Reason)

	st, err := eng.RaidStatus(ctx, "c1", t0.Add(3*time.Second))
	require.NoError(t, err)
	assert.False(st.LockdownActive)
	assert.Equal(0, st.JoinCount)

	// resetting an idle community dispatches nothing
	capture.Reset()
	require.NoError(t, eng.ResetRaid(ctx, "c1", t0.Add(4*time.Second)))
	assert.Empty(capture.Events())
}

func TestStorageConflictRetry(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()
	t0 := time.Unix(1700000000, 0)

	pol := policy.DefaultPolicy()
	pol.XP.Seed = 5

	st := &conflictStore{Store: memberstore.NewMemStore(), remaining: 2}
	eng, _ := newTestEngine(t, pol, st, verdict.NewKeywordSource())

	actions, err := eng.ProcessMessage(ctx, MessageEvent{
		CommunityID: "c1", MemberID: "alice", MessageID: "m1", Text: "hello there", Time: t0,
	})
	require.NoError(t, err)
	assert.Equal([]ActionKind{ActionGrantXP}, kinds(actions))

	m, err := eng.store.Get(ctx, "c1", "alice")
	require.NoError(t, err)
	assert.Equal(int64(1), m.XP)

	// retries exhausted: storage-unavailable, nothing dispatched
	st2 := &conflictStore{Store: memberstore.NewMemStore(), remaining: 100}
	eng2, capture2 := newTestEngine(t, pol, st2, verdict.NewKeywordSource())

	actions, err = eng2.ProcessMessage(ctx, MessageEvent{
		CommunityID: "c1", MemberID: "alice", MessageID: "m1", Text: "hello there", Time: t0,
	})
	var serr *StorageUnavailableError
	require.True(t, errors.As(err, &serr))
	assert.ErrorIs(err, memberstore.ErrConflict)
	assert.Nil(actions)
	assert.Empty(capture2.Events())
}

type conflictStore struct {
	memberstore.Store
	remaining int
}

func (s *conflictStore) Update(ctx context.Context, communityID, memberID string, mutate func(*memberstore.Member) error) error {
	if s.remaining > 0 {
		s.remaining--
		return memberstore.ErrConflict
	}
	return s.Store.Update(ctx, communityID, memberID, mutate)
}

func TestPanicRecovery(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()
	t0 := time.Unix(1700000000, 0)

	var calls atomic.Int32
	src := verdict.SourceFunc(func(ctx context.Context, msg *verdict.Message) (*verdict.Verdict, error) {
		if calls.Add(1) == 1 {
			panic("classifier exploded")
		}
		return &verdict.Verdict{IsViolation: false, Category: verdict.CategoryBenign, Confidence: 0.99}, nil
	})

	pol := policy.DefaultPolicy()
	pol.XP.Seed = 5
	eng, _ := newTestEngine(t, pol, memberstore.NewMemStore(), src)

	actions, err := eng.ProcessMessage(ctx, MessageEvent{
		CommunityID: "c1", MemberID: "alice", MessageID: "m1", Text: "hello", Time: t0,
	})
	require.Error(t, err)
	assert.Contains(err.Error(), "panicked")
	assert.Nil(actions)

	// the engine stays usable afterwards
	actions, err = eng.ProcessMessage(ctx, MessageEvent{
		CommunityID: "c1", MemberID: "alice", MessageID: "m2", Text: "hello again", Time: t0.Add(time.Second),
	})
	require.NoError(t, err)
	assert.Equal([]ActionKind{ActionGrantXP}, kinds(actions))
}

func TestReactionDedupeAndCooldown(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()
	t0 := time.Unix(1700000000, 0)

	eng, _ := EngineTestFixture()

	react := func(msgID string, at time.Time) []Action {
		actions, err := eng.ProcessReaction(ctx, ReactionEvent{
			CommunityID: "c1", MemberID: "alice", MessageID: msgID, Time: at,
		})
		require.NoError(t, err)
		return actions
	}

	assert.Equal([]ActionKind{ActionGrantXP}, kinds(react("m1", t0)))

	// same reaction redelivered: deduped
	assert.Empty(react("m1", t0.Add(time.Second)))

	// different message inside the cooldown: counted, not rewarded
	assert.Empty(react("m2", t0.Add(2*time.Second)))

	// past the cooldown the next reaction is rewarded again
	assert.Equal([]ActionKind{ActionGrantXP}, kinds(react("m3", t0.Add(2*time.Minute))))

	m, err := eng.store.Get(ctx, "c1", "alice")
	require.NoError(t, err)
	assert.Equal(int64(2), m.XP)
}

func TestManualStrike(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()
	t0 := time.Unix(1700000000, 0)

	eng, _ := EngineTestFixture()

	actions, err := eng.ApplyManualStrike(ctx, "c1", "mallory", 3, "spamming invite links", t0)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(ActionMute, actions[0].Kind)
	assert.Contains(actions[0].Reason, "spamming invite links")

	view, err := eng.MemberSnapshot(ctx, "c1", "mallory", t0)
	require.NoError(t, err)
	assert.Equal(memberstore.StateMuted, view.SanctionState)
	assert.Equal(int64(3), view.ActiveWeight)
	assert.Equal(1, view.StrikeCount)

	// manual strikes take a month to decay
	view, err = eng.MemberSnapshot(ctx, "c1", "mallory", t0.Add(29*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(memberstore.StateMuted, view.SanctionState)
	view, err = eng.MemberSnapshot(ctx, "c1", "mallory", t0.Add(31*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(memberstore.StateClean, view.SanctionState)

	_, err = eng.ApplyManualStrike(ctx, "c1", "mallory", 0, "", t0)
	assert.ErrorIs(err, strike.ErrInvalidWeight)
	_, err = eng.ApplyManualStrike(ctx, "", "mallory", 1, "", t0)
	assert.ErrorIs(err, ErrInvalidEvent)
}

func TestLeaveIsAuditOnly(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()
	t0 := time.Unix(1700000000, 0)

	eng, capture := EngineTestFixture()

	actions, err := eng.ProcessLeave(ctx, LeaveEvent{CommunityID: "c1", MemberID: "alice", Time: t0})
	require.NoError(t, err)
	assert.Empty(actions)

	evts := capture.Events()
	require.Len(t, evts, 1)
	assert.Equal(EventLeave, evts[0].Type)
	assert.Empty(evts[0].Actions)

	_, gerr := eng.store.Get(ctx, "c1", "alice")
	assert.ErrorIs(gerr, memberstore.ErrNotFound)
}

func TestEventValidation(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()
	t0 := time.Unix(1700000000, 0)

	eng, capture := EngineTestFixture()

	_, err := eng.ProcessMessage(ctx, MessageEvent{CommunityID: "c1", MemberID: "", MessageID: "m1", Text: "x", Time: t0})
	assert.ErrorIs(err, ErrInvalidEvent)
	_, err = eng.ProcessMessage(ctx, MessageEvent{CommunityID: "c1", MemberID: "a", MessageID: "m1", Text: "x"})
	assert.ErrorIs(err, ErrInvalidEvent)
	_, err = eng.ProcessJoin(ctx, JoinEvent{CommunityID: "", MemberID: "a", Time: t0})
	assert.ErrorIs(err, ErrInvalidEvent)
	_, err = eng.ProcessLeave(ctx, LeaveEvent{CommunityID: "c1", MemberID: "", Time: t0})
	assert.ErrorIs(err, ErrInvalidEvent)
	_, err = eng.ProcessReaction(ctx, ReactionEvent{CommunityID: "c1", MemberID: "a", MessageID: "", Time: t0})
	assert.ErrorIs(err, ErrInvalidEvent)

	assert.Empty(capture.Events())
}

func TestLevelUpAction(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()
	t0 := time.Unix(1700000000, 0)

	eng, _ := EngineTestFixture()

	require.NoError(t, eng.store.Update(ctx, "c1", "dana", func(m *memberstore.Member) error {
		m.XP = 99
		return nil
	}))

	actions, err := eng.ProcessMessage(ctx, MessageEvent{
		CommunityID: "c1", MemberID: "dana", MessageID: "m1", Text: "one more message", Time: t0,
	})
	require.NoError(t, err)
	require.Equal(t, []ActionKind{ActionGrantXP, ActionLevelUp}, kinds(actions))
	assert.Equal(1, actions[1].NewLevel)
	assert.Equal("Member", actions[1].Reason)

	view, err := eng.MemberSnapshot(ctx, "c1", "dana", t0)
	require.NoError(t, err)
	assert.Equal(int64(100), view.XP)
	assert.Equal(1, view.Level)
	assert.Equal("Member", view.Title)
}

func TestMemberSnapshotUnknown(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()

	eng, _ := EngineTestFixture()

	view, err := eng.MemberSnapshot(ctx, "c1", "nobody", time.Unix(1700000000, 0))
	require.NoError(t, err)
	assert.Equal(memberstore.StateClean, view.SanctionState)
	assert.Equal(int64(0), view.XP)
	assert.Equal(0, view.Level)
	assert.Equal("New Member", view.Title)
	assert.Nil(view.JoinedAt)
}

func TestCommunityStats(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()
	t0 := time.Unix(1700000000, 0)

	eng, _ := EngineTestFixture()

	_, err := eng.ProcessMessage(ctx, MessageEvent{CommunityID: "c1", MemberID: "alice", MessageID: "m1", Text: "hello", Time: t0})
	require.NoError(t, err)
	_, err = eng.ProcessMessage(ctx, MessageEvent{CommunityID: "c1", MemberID: "bob", MessageID: "m2", Text: "buy now and save big", Time: t0.Add(time.Second)})
	require.NoError(t, err)
	_, err = eng.ProcessJoin(ctx, JoinEvent{CommunityID: "c1", MemberID: "carol", Time: t0.Add(2 * time.Second)})
	require.NoError(t, err)
	_, err = eng.ProcessLeave(ctx, LeaveEvent{CommunityID: "c1", MemberID: "dave", Time: t0.Add(3 * time.Second)})
	require.NoError(t, err)
	_, err = eng.ProcessReaction(ctx, ReactionEvent{CommunityID: "c1", MemberID: "erin", MessageID: "m1", Time: t0.Add(4 * time.Second)})
	require.NoError(t, err)

	stats, err := eng.CommunityStats(ctx, "c1", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(int64(2), stats.MessagesToday)
	assert.Equal(int64(1), stats.JoinsToday)
	assert.Equal(int64(1), stats.LeavesToday)
	assert.Equal(int64(1), stats.ReactionsToday)
	assert.Equal(int64(1), stats.OffendersToday)
	assert.Equal(int64(1), stats.ActionsToday[string(ActionDeleteMessage)])
	assert.Equal(int64(1), stats.ActionsToday[string(ActionWarn)])
	assert.Equal(int64(3), stats.ActionsToday[string(ActionGrantXP)])
	assert.Equal(1, stats.Raid.JoinCount)

	// other communities are isolated
	stats, err = eng.CommunityStats(ctx, "c2", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(int64(0), stats.MessagesToday)
}
