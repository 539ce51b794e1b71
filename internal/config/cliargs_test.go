package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCarArgs(t *testing.T) {
	got, err := ParseCarArgs([]string{"A", "B2", "10", "100"})
	require.NoError(t, err)
	assert.Equal(t, "A", got.Name)
	assert.Equal(t, -2, got.Range.Lowest)
	assert.Equal(t, 10, got.Range.Highest)
	assert.Equal(t, 100, got.Delay)
}

func TestParseCarArgsRejectsNonPositiveDelay(t *testing.T) {
	_, err := ParseCarArgs([]string{"A", "1", "10", "0"})
	assert.ErrorIs(t, err, ErrInvalidDelay)

	_, err = ParseCarArgs([]string{"A", "1", "10", "-5"})
	assert.ErrorIs(t, err, ErrInvalidDelay)
}

func TestParseCarArgsRejectsInvertedRange(t *testing.T) {
	_, err := ParseCarArgs([]string{"A", "10", "1", "100"})
	assert.Error(t, err)
}

func TestParseCarArgsWrongCount(t *testing.T) {
	_, err := ParseCarArgs([]string{"A", "1", "10"})
	assert.ErrorIs(t, err, ErrWrongArgCount)
}

func TestParseCallArgs(t *testing.T) {
	got, err := ParseCallArgs([]string{"2", "7"})
	require.NoError(t, err)
	assert.Equal(t, 2, got.Src)
	assert.Equal(t, 7, got.Dst)
}

func TestParseCallArgsRejectsEqualFloors(t *testing.T) {
	_, err := ParseCallArgs([]string{"3", "3"})
	assert.ErrorIs(t, err, ErrEqualFloors)
}

func TestParseCallArgsRejectsBadLabel(t *testing.T) {
	_, err := ParseCallArgs([]string{"0", "5"})
	assert.Error(t, err)
}

func TestParseCallArgsRejectsOutOfDomainLabels(t *testing.T) {
	_, err := ParseCallArgs([]string{"1000", "5"})
	assert.ErrorIs(t, err, ErrLabelOutOfDomain)

	_, err = ParseCallArgs([]string{"2", "B500"})
	assert.ErrorIs(t, err, ErrLabelOutOfDomain)
}

func TestParseCallArgsAcceptsDomainBoundaries(t *testing.T) {
	got, err := ParseCallArgs([]string{"999", "B99"})
	require.NoError(t, err)
	assert.Equal(t, 999, got.Src)
	assert.Equal(t, -99, got.Dst)
}

func TestParseInternalArgs(t *testing.T) {
	got, err := ParseInternalArgs([]string{"A", "service_on"})
	require.NoError(t, err)
	assert.Equal(t, "A", got.Name)
	assert.Equal(t, "service_on", got.Op)
}

func TestParseInternalArgsRejectsUnknownOp(t *testing.T) {
	_, err := ParseInternalArgs([]string{"A", "levitate"})
	assert.ErrorIs(t, err, ErrUnknownOp)
}
