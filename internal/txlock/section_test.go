package txlock

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/halvardlabs/txmap/internal/htm"
	"github.com/halvardlabs/txmap/internal/spinlock"
	"github.com/halvardlabs/txmap/internal/xatomic"
)

func newTestSection() (Section, *spinlock.SpinLock, *xatomic.Uint64Seq) {
	lock := &spinlock.SpinLock{}
	seq := &xatomic.Uint64Seq{}
	return New(lock, seq), lock, seq
}

func TestBeginReadOptimisticWhenHTMAvailableAndUnlocked(t *testing.T) {
	htm.ForceDisable(false)
	t.Cleanup(func() { htm.ForceDisable(false) })
	if !htm.Available() {
		t.Skip("no HTM-capable probe on this machine to exercise the optimistic path")
	}

	sec, _, _ := newTestSection()
	ticket := BeginRead(sec, nil)
	require.True(t, ticket.Transacted())
	require.True(t, Validate(sec, ticket))
	EndRead(sec, ticket)
}

func TestBeginReadFallsBackWhenHTMForcedOff(t *testing.T) {
	htm.ForceDisable(true)
	t.Cleanup(func() { htm.ForceDisable(false) })

	sec, lock, _ := newTestSection()
	ticket := BeginRead(sec, nil)
	require.False(t, ticket.Transacted())
	require.True(t, lock.IsLocked())
	EndRead(sec, ticket)
	require.False(t, lock.IsLocked())
}

func TestBeginReadFallsBackWhenLockHeld(t *testing.T) {
	htm.ForceDisable(false)
	t.Cleanup(func() { htm.ForceDisable(false) })

	sec, lock, _ := newTestSection()
	lock.Lock()
	done := make(chan struct{})
	go func() {
		ticket := BeginRead(sec, nil)
		require.False(t, ticket.Transacted())
		EndRead(sec, ticket)
		close(done)
	}()
	lock.Unlock()
	<-done
}

func TestValidateDetectsConcurrentMutation(t *testing.T) {
	sec, _, seq := newTestSection()
	snap := seq.Snapshot()

	seq.BeginMutation()
	require.False(t, Validate(sec, readTicketFor(snap)))
	seq.EndMutation()
	require.True(t, Validate(sec, readTicketFor(seq.Snapshot())))
}

// readTicketFor builds a transacted ReadTicket for a given snapshot value,
// mirroring what BeginRead would have produced had it sampled snap.
func readTicketFor(snap uint64) ReadTicket {
	return ReadTicket{transacted: true, snapshot: snap}
}

func TestDoReadRunsFnAndLeavesSeqQuiescent(t *testing.T) {
	htm.ForceDisable(false)
	t.Cleanup(func() { htm.ForceDisable(false) })

	sec, _, seq := newTestSection()

	calls := 0
	DoRead(sec, nil, func() {
		calls++
	})
	require.GreaterOrEqual(t, calls, 1)
	require.False(t, seq.InProgress(seq.Snapshot()))
}

func TestTryClaimRequiresHTMAndUnlockedAndLandingClaim(t *testing.T) {
	t.Cleanup(func() { htm.ForceDisable(false) })

	sec, lock, _ := newTestSection()

	htm.ForceDisable(true)
	require.False(t, TryClaim(sec, nil, func() bool { return true }))

	htm.ForceDisable(false)
	require.False(t, TryClaim(sec, nil, nil))

	lock.Lock()
	require.False(t, TryClaim(sec, nil, func() bool { return true }))
	lock.Unlock()

	if !htm.Available() {
		t.Skip("no HTM-capable probe on this machine to exercise the claim-lands case")
	}
	claimed := false
	require.True(t, TryClaim(sec, nil, func() bool {
		claimed = true
		return true
	}))
	require.True(t, claimed)

	require.False(t, TryClaim(sec, nil, func() bool { return false }))
}
