package raid

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDetector(t *testing.T, cfg Config) *Detector {
	t.Helper()
	d, err := NewDetector(cfg, nil)
	require.NoError(t, err)
	return d
}

func TestLockdownTripsExactlyAtThreshold(t *testing.T) {
	assert := assert.New(t)
	d := testDetector(t, Config{Window: time.Minute, Threshold: 8, LockdownDuration: 10 * time.Minute})
	t0 := time.Unix(1700000000, 0)

	// 10 joins inside the window: lockdown begins on the 8th, only the 8th
	for i := 1; i <= 10; i++ {
		st := d.ObserveJoin("c1", fmt.Sprintf("member-%d", i), t0.Add(time.Duration(i)*time.Second))
		assert.Equal(i, st.JoinCount)
		if i == 8 {
			assert.True(st.LockdownBegan, "join %d", i)
		} else {
			assert.False(st.LockdownBegan, "join %d", i)
		}
		assert.Equal(i >= 8, st.LockdownActive, "join %d", i)
	}
}

func TestIdenticalTimestampsTripAtThreshold(t *testing.T) {
	assert := assert.New(t)
	d := testDetector(t, Config{Window: time.Minute, Threshold: 5, LockdownDuration: 10 * time.Minute})
	t0 := time.Unix(1700000000, 0)

	for i := 1; i <= 5; i++ {
		st := d.ObserveJoin("c1", fmt.Sprintf("m%d", i), t0)
		assert.Equal(i == 5, st.LockdownBegan, "join %d", i)
	}
}

func TestWindowBoundaryExclusive(t *testing.T) {
	assert := assert.New(t)
	w := time.Minute
	d := testDetector(t, Config{Window: w, Threshold: 2, LockdownDuration: 10 * time.Minute})
	t0 := time.Unix(1700000000, 0)

	st := d.ObserveJoin("c1", "a", t0)
	assert.Equal(1, st.JoinCount)

	// a join one past the window must not be counted with the first
	st = d.ObserveJoin("c1", "b", t0.Add(w+time.Second))
	assert.Equal(1, st.JoinCount)
	assert.False(st.LockdownBegan)
	assert.False(st.LockdownActive)
}

func TestLockdownExpires(t *testing.T) {
	assert := assert.New(t)
	d := testDetector(t, Config{Window: time.Minute, Threshold: 2, LockdownDuration: 5 * time.Minute})
	t0 := time.Unix(1700000000, 0)

	d.ObserveJoin("c1", "a", t0)
	st := d.ObserveJoin("c1", "b", t0)
	require.True(t, st.LockdownBegan)
	assert.Equal(t0.Add(5*time.Minute), st.LockdownUntil)

	// still locked just before the deadline
	st = d.Status("c1", t0.Add(5*time.Minute-time.Second))
	assert.True(st.LockdownActive)
	assert.False(st.LockdownEnded)

	// expires at the deadline, transition reported exactly once
	st = d.Status("c1", t0.Add(5*time.Minute))
	assert.False(st.LockdownActive)
	assert.True(st.LockdownEnded)
	assert.True(st.LockdownUntil.IsZero())

	st = d.Status("c1", t0.Add(6*time.Minute))
	assert.False(st.LockdownActive)
	assert.False(st.LockdownEnded)
}

func TestStatusEvictsStaleEntries(t *testing.T) {
	assert := assert.New(t)
	d := testDetector(t, Config{Window: time.Minute, Threshold: 10, LockdownDuration: 10 * time.Minute})
	t0 := time.Unix(1700000000, 0)

	for i := 0; i < 5; i++ {
		d.ObserveJoin("c1", fmt.Sprintf("m%d", i), t0.Add(time.Duration(i)*time.Second))
	}
	st := d.Status("c1", t0.Add(4*time.Second))
	assert.Equal(5, st.JoinCount)

	st = d.Status("c1", t0.Add(10*time.Minute))
	assert.Equal(0, st.JoinCount)
}

func TestStatusUnknownCommunity(t *testing.T) {
	assert := assert.New(t)
	d := testDetector(t, Config{Window: time.Minute, Threshold: 2, LockdownDuration: time.Minute})

	st := d.Status("never-seen", time.Unix(1700000000, 0))
	assert.Equal(0, st.JoinCount)
	assert.False(st.LockdownActive)
}

func TestResetClearsState(t *testing.T) {
	assert := assert.New(t)
	d := testDetector(t, Config{Window: time.Minute, Threshold: 2, LockdownDuration: 10 * time.Minute})
	t0 := time.Unix(1700000000, 0)

	d.ObserveJoin("c1", "a", t0)
	st := d.ObserveJoin("c1", "b", t0)
	require.True(t, st.LockdownActive)

	d.Reset("c1")

	st = d.Status("c1", t0)
	assert.False(st.LockdownActive)
	assert.Equal(0, st.JoinCount)

	// a fresh raid can trip lockdown again
	d.ObserveJoin("c1", "a", t0.Add(time.Second))
	st = d.ObserveJoin("c1", "b", t0.Add(time.Second))
	assert.True(st.LockdownBegan)
}

func TestCommunitiesAreIndependent(t *testing.T) {
	assert := assert.New(t)
	d := testDetector(t, Config{Window: time.Minute, Threshold: 2, LockdownDuration: 10 * time.Minute})
	t0 := time.Unix(1700000000, 0)

	d.ObserveJoin("c1", "a", t0)
	st := d.ObserveJoin("c1", "b", t0)
	assert.True(st.LockdownActive)

	st = d.ObserveJoin("c2", "a", t0)
	assert.False(st.LockdownActive)
	assert.Equal(1, st.JoinCount)
}

func TestConfigValidate(t *testing.T) {
	assert := assert.New(t)

	assert.NoError((&Config{Window: time.Minute, Threshold: 1, LockdownDuration: time.Minute}).Validate())
	assert.Error((&Config{Window: 0, Threshold: 1, LockdownDuration: time.Minute}).Validate())
	assert.Error((&Config{Window: time.Minute, Threshold: 0, LockdownDuration: time.Minute}).Validate())
	assert.Error((&Config{Window: time.Minute, Threshold: 1, LockdownDuration: 0}).Validate())
}
