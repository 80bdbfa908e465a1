package upload

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRangeSetMergeAdjacent(t *testing.T) {
	var rs rangeSet
	rs.add(0, 5)
	rs.add(5, 10)

	require.Equal(t, []byteRange{{Start: 0, End: 10}}, rs.snapshot())
	require.True(t, rs.complete(10))
	require.Equal(t, uint64(10), rs.covered())
}

func TestRangeSetMergeOverlap(t *testing.T) {
	var rs rangeSet
	rs.add(0, 6)
	rs.add(4, 10)
	rs.add(20, 30)

	require.Equal(t, []byteRange{{Start: 0, End: 10}, {Start: 20, End: 30}}, rs.snapshot())
	require.False(t, rs.complete(30))
	require.Equal(t, uint64(20), rs.covered())
}

func TestRangeSetOutOfOrder(t *testing.T) {
	var rs rangeSet
	rs.add(10, 20)
	rs.add(0, 10)

	require.True(t, rs.complete(20))
}

func TestRangeSetMissing(t *testing.T) {
	var rs rangeSet
	rs.add(5, 10)
	rs.add(15, 20)

	require.Equal(t, []byteRange{
		{Start: 0, End: 5},
		{Start: 10, End: 15},
		{Start: 20, End: 25},
	}, rs.missing(25))

	rs.add(0, 25)
	require.Empty(t, rs.missing(25))
}

func TestRangeSetOverlapQuery(t *testing.T) {
	var rs rangeSet
	rs.add(0, 10)
	rs.add(20, 30)

	require.Equal(t, []byteRange{{Start: 5, End: 10}, {Start: 20, End: 25}}, rs.overlap(5, 25))
	require.Empty(t, rs.overlap(10, 20))
}

func TestRangeSetEmptyComplete(t *testing.T) {
	var rs rangeSet
	require.True(t, rs.complete(0))
	require.False(t, rs.complete(1))
}
