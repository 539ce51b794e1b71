package floor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormatRoundTrip(t *testing.T) {
	labels := []string{"B99", "B2", "B1", "1", "7", "999"}
	for _, l := range labels {
		n, err := Parse(l)
		require.NoError(t, err, l)
		assert.Equal(t, l, Format(n), "format(parse(%s))", l)
	}
}

func TestParseRejectsZeroAndGarbage(t *testing.T) {
	for _, l := range []string{"", "0", "B0", "abc", "B", "-1", "1.5"} {
		_, err := Parse(l)
		assert.ErrorIs(t, err, ErrInvalidLabel, "label %q", l)
	}
}

func TestStepBoundaries(t *testing.T) {
	wide := Range{Lowest: -99, Highest: 999}

	got, err := Step(-1, Up, wide)
	require.NoError(t, err)
	assert.Equal(t, 1, got, "B1 up should skip to 1")

	got, err = Step(1, Down, wide)
	require.NoError(t, err)
	assert.Equal(t, -1, got, "1 down should skip to B1")

	_, err = Step(-99, Down, wide)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = Step(999, Up, wide)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestStepRoundTrip(t *testing.T) {
	r := Range{Lowest: -10, Highest: 10}
	for _, start := range []int{-10, -1, 1, 5, 10} {
		up, err := Step(start, Up, r)
		if errors.Is(err, ErrOutOfRange) {
			continue
		}
		require.NoError(t, err)
		down, err := Step(up, Down, r)
		require.NoError(t, err)
		assert.Equal(t, start, down, "step(step(%d, up), down)", start)
	}
}

func TestRangeValidate(t *testing.T) {
	assert.NoError(t, Range{Lowest: -2, Highest: 10}.Validate())
	assert.Error(t, Range{Lowest: 10, Highest: -2}.Validate())
	assert.Error(t, Range{Lowest: 0, Highest: 10}.Validate())
}

func TestInDomain(t *testing.T) {
	assert.True(t, InDomain(1))
	assert.True(t, InDomain(999))
	assert.True(t, InDomain(-1))
	assert.True(t, InDomain(-99))
	assert.False(t, InDomain(0))
	assert.False(t, InDomain(1000))
	assert.False(t, InDomain(-100))
}
