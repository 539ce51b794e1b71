package main

import (
	"testing"

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

func TestApplyOpenSetsButton(t *testing.T) {
	b := newTestBlock(t, floor.Range{Lowest: 1, Highest: 10})
	require.NoError(t, apply(b, "open"))
	rec, err := b.Snapshot()
	require.NoError(t, err)
	assert.True(t, rec.OpenButton)
}

func TestApplyStopActivatesEmergencyMode(t *testing.T) {
	b := newTestBlock(t, floor.Range{Lowest: 1, Highest: 10})
	require.NoError(t, apply(b, "stop"))
	rec, err := b.Snapshot()
	require.NoError(t, err)
	assert.True(t, rec.EmergencyStop)
	assert.True(t, rec.EmergencyMode)
}

func TestApplyServiceOnClearsEmergencyMode(t *testing.T) {
	b := newTestBlock(t, floor.Range{Lowest: 1, Highest: 10})
	require.NoError(t, apply(b, "stop"))
	require.NoError(t, apply(b, "service_on"))
	rec, err := b.Snapshot()
	require.NoError(t, err)
	assert.True(t, rec.IndividualServiceMode)
	assert.False(t, rec.EmergencyMode)
}

func TestApplyServiceOffAloneDoesNotClearEmergencyMode(t *testing.T) {
	b := newTestBlock(t, floor.Range{Lowest: 1, Highest: 10})
	require.NoError(t, apply(b, "stop"))
	require.NoError(t, apply(b, "service_off"))
	rec, err := b.Snapshot()
	require.NoError(t, err)
	assert.True(t, rec.EmergencyMode)
}

func TestApplyUpRequiresServiceMode(t *testing.T) {
	b := newTestBlock(t, floor.Range{Lowest: 1, Highest: 10})
	err := apply(b, "up")
	assert.Error(t, err)
}

func TestApplyUpMovesOneFloorInServiceMode(t *testing.T) {
	b := newTestBlock(t, floor.Range{Lowest: 1, Highest: 10})
	require.NoError(t, apply(b, "service_on"))
	require.NoError(t, apply(b, "up"))
	rec, err := b.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, int32(2), rec.DestinationFloor)
}

func TestApplyDownOutOfRangeLeavesDestinationUnchanged(t *testing.T) {
	b := newTestBlock(t, floor.Range{Lowest: 1, Highest: 10})
	require.NoError(t, apply(b, "service_on"))

	err := apply(b, "down")
	assert.Error(t, err)

	rec, err := b.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, int32(1), rec.DestinationFloor)
}

func TestApplyUpRejectedWhileMoving(t *testing.T) {
	b := newTestBlock(t, floor.Range{Lowest: 1, Highest: 10})
	require.NoError(t, apply(b, "service_on"))
	require.NoError(t, b.Mutate(func(r *controlblock.Record) error {
		r.DestinationFloor = 5
		return nil
	}))

	err := apply(b, "up")
	assert.Error(t, err)
}

func TestRunReportsMissingCar(t *testing.T) {
	prev := controlblock.BaseDir
	controlblock.BaseDir = t.TempDir()
	t.Cleanup(func() { controlblock.BaseDir = prev })

	code := run([]string{"does-not-exist", "open"})
	assert.Equal(t, 1, code)
}

func TestRunValidatesArgs(t *testing.T) {
	code := run([]string{"A", "levitate"})
	assert.Equal(t, 1, code)
}
