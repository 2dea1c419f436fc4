package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeenSetUnionIsIdempotent(t *testing.T) {
	t.Parallel()

	sets := [][]string{nil, {"1"}, {"1", "2", "3"}}
	batches := [][]string{nil, {"3"}, {"4", "5"}, {"1", "4", "4"}}

	for _, base := range sets {
		for _, batch := range batches {
			once := NewSeenSet(base...)
			once.Union(batch)

			twice := NewSeenSet(base...)
			twice.Union(batch)
			added := twice.Union(batch)

			assert.Zero(t, added, "second union of %v into %v should add nothing", batch, base)
			assert.True(t, once.Equal(twice), "union(union(S,B),B) != union(S,B) for S=%v B=%v", base, batch)
		}
	}
}

func TestSeenSetUnionCountsNewIDs(t *testing.T) {
	t.Parallel()

	s := NewSeenSet("1", "2")
	added := s.Union([]string{"2", "3", "", "3", "4"})

	require.Equal(t, 2, added)
	require.Equal(t, 4, s.Len())
	require.True(t, s.Has("4"))
	require.False(t, s.Has(""))
}

func TestSeenSetIDsSorted(t *testing.T) {
	t.Parallel()

	s := NewSeenSet("b", "c", "a")
	require.Equal(t, []string{"a", "b", "c"}, s.IDs())
	require.Equal(t, []string{}, NewSeenSet().IDs())
}

func TestSeenSetNilSafety(t *testing.T) {
	t.Parallel()

	var s *SeenSet
	require.False(t, s.Has("1"))
	require.Zero(t, s.Len())
	require.Empty(t, s.IDs())
	require.True(t, s.Equal(NewSeenSet()))
}

func TestSeenSetCloneIsIndependent(t *testing.T) {
	t.Parallel()

	s := NewSeenSet("1")
	c := s.Clone()
	c.Union([]string{"2"})

	require.False(t, s.Has("2"))
	require.True(t, c.Has("2"))
}
