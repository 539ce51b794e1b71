package carfsm

import (
	"context"
	"testing"
	"time"

	"github.com/kempy-elevator/fabric/internal/controlblock"
	"github.com/kempy-elevator/fabric/internal/floor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestBlock(t *testing.T, r floor.Range) *controlblock.Block {
	t.Helper()
	prev := controlblock.BaseDir
	controlblock.BaseDir = t.TempDir()
	t.Cleanup(func() { controlblock.BaseDir = prev })

	b, err := controlblock.Create(t.Name(), r)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Unlink() })
	return b
}

// runFor drives m.Run for d and stops it by cancelling its context, not by
// giving it a deadline. A deadline would be indistinguishable, from inside
// tickOpen/tickClosing, from their own auto-close timeout (both produce
// context.DeadlineExceeded); cancellation is unambiguous, the same way a
// real shutdown signal is.
func runFor(t *testing.T, m *Machine, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(d, cancel)
	defer timer.Stop()
	_ = m.Run(ctx)
}

func TestColdStartSingleFloorCommand(t *testing.T) {
	b := newTestBlock(t, floor.Range{Lowest: -2, Highest: 10})
	m := New(b, 5*time.Millisecond, "A")

	require.NoError(t, b.Mutate(func(r *controlblock.Record) error {
		r.DestinationFloor = 3
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { _ = m.Run(ctx); close(done) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := b.Snapshot()
		require.NoError(t, err)
		if rec.CurrentFloor == 3 && rec.Status == controlblock.Open {
			cancel()
			<-done
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	t.Fatal("car never arrived at floor 3 and opened its doors")
}

func TestObstructionReopensDuringClosing(t *testing.T) {
	b := newTestBlock(t, floor.Range{Lowest: 1, Highest: 10})
	m := New(b, 20*time.Millisecond, "C")

	require.NoError(t, b.Mutate(func(r *controlblock.Record) error {
		r.Status = controlblock.Closing
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { _ = m.Run(ctx); close(done) }()

	// Obstruction arrives almost immediately, well inside the closing delay.
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, b.Mutate(func(r *controlblock.Record) error {
		r.DoorObstruction = true
		return nil
	}))

	require.Eventually(t, func() bool {
		rec, err := b.Snapshot()
		return err == nil && rec.Status == controlblock.Open
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Mutate(func(r *controlblock.Record) error {
		r.DoorObstruction = false
		return nil
	}))

	require.Eventually(t, func() bool {
		rec, err := b.Snapshot()
		return err == nil && rec.Status == controlblock.Closed
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestEmergencyModeHaltsMotionButHonoursOpenButton(t *testing.T) {
	b := newTestBlock(t, floor.Range{Lowest: 1, Highest: 10})
	m := New(b, 50*time.Millisecond, "D")

	require.NoError(t, b.Mutate(func(r *controlblock.Record) error {
		r.DestinationFloor = 5
		r.EmergencyMode = true
		return nil
	}))

	runFor(t, m, 80*time.Millisecond)

	rec, err := b.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, int32(1), rec.CurrentFloor, "car must not move during emergency mode")

	require.NoError(t, b.Mutate(func(r *controlblock.Record) error {
		r.OpenButton = true
		return nil
	}))

	// Opening takes one delay; stop the run after it has reached Open.
	// Emergency mode disables the auto-close timeout, so Open then holds.
	runFor(t, m, 70*time.Millisecond)

	rec, err = b.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, controlblock.Open, rec.Status, "open button must still be honoured in emergency mode")
}

func TestEmergencyModeDoorDoesNotAutoClose(t *testing.T) {
	b := newTestBlock(t, floor.Range{Lowest: 1, Highest: 10})
	m := New(b, 10*time.Millisecond, "D2")

	require.NoError(t, b.Mutate(func(r *controlblock.Record) error {
		r.Status = controlblock.Open
		r.EmergencyMode = true
		return nil
	}))

	runFor(t, m, 80*time.Millisecond)

	rec, err := b.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, controlblock.Open, rec.Status, "door must stay open under emergency mode until a button is pressed")
}

func TestOpenTieBreakKeepsDoorOpen(t *testing.T) {
	b := newTestBlock(t, floor.Range{Lowest: 1, Highest: 10})
	m := New(b, 30*time.Millisecond, "E")

	require.NoError(t, b.Mutate(func(r *controlblock.Record) error {
		r.Status = controlblock.Open
		r.OpenButton = true
		r.CloseButton = true
		return nil
	}))

	runFor(t, m, 15*time.Millisecond)

	rec, err := b.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, controlblock.Open, rec.Status)
	assert.False(t, rec.OpenButton)
	assert.False(t, rec.CloseButton)
}

func TestOverloadInhibitsAutoClose(t *testing.T) {
	b := newTestBlock(t, floor.Range{Lowest: 1, Highest: 10})
	m := New(b, 10*time.Millisecond, "F")

	require.NoError(t, b.Mutate(func(r *controlblock.Record) error {
		r.Status = controlblock.Open
		r.Overload = true
		return nil
	}))

	runFor(t, m, 60*time.Millisecond)

	rec, err := b.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, controlblock.Open, rec.Status, "overload must keep the door open past the auto-close timeout")
}
