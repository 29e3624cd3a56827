package roster

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return out
}

func TestRosterIsOrderedSet(t *testing.T) {
	r := Dedupe([]string{"p2", "p1", "p2", "", "p3", "p1"})
	assert.Equal(t, Roster{"p2", "p1", "p3"}, r)
	assert.Equal(t, r, r.Add("p1"))
	assert.True(t, r.Contains("p3"))
}

func TestFillGapsLeastPlayedFirstToSmallerRoster(t *testing.T) {
	a := Roster{"a1", "a2", "a3"}
	b := Roster{"b1"}
	pool := []string{"a1", "x", "y", "z", "b1"}
	played := map[string]int{"x": 3, "y": 0, "z": 1}

	res := FillGaps(a, b, pool, played)
	assert.False(t, res.Full)
	assert.Equal(t, []string{"y", "z", "x"}, res.Added)
	assert.Equal(t, Roster{"a1", "a2", "a3", "x"}, res.A)
	assert.Equal(t, Roster{"b1", "y", "z"}, res.B)

	// inputs are untouched
	assert.Equal(t, Roster{"b1"}, b)
}

func TestFillGapsAlternatesWhenBalanced(t *testing.T) {
	res := FillGaps(Roster{"a1"}, Roster{"b1"}, []string{"p1", "p2", "p3", "p4"}, nil)
	assert.Equal(t, Roster{"a1", "p1", "p3"}, res.A)
	assert.Equal(t, Roster{"b1", "p2", "p4"}, res.B)
}

func TestFillGapsCapsAtNinePerSide(t *testing.T) {
	res := FillGaps(Roster{"a1"}, Roster{"b1"}, ids("p", 30), nil)
	require.Len(t, res.A, MaxPerSide)
	require.Len(t, res.B, MaxPerSide)
	assert.Len(t, res.Added, 16)
}

func TestFillGapsOnlyFillsTheOpenSide(t *testing.T) {
	res := FillGaps(Roster(ids("a", 9)), Roster{"b1"}, ids("p", 4), nil)
	assert.Len(t, res.A, 9)
	assert.Equal(t, Roster{"b1", "p1", "p2", "p3", "p4"}, res.B)
}

func TestFillGapsBothFullIsNoop(t *testing.T) {
	a, b := Roster(ids("a", 9)), Roster(ids("b", 9))
	res := FillGaps(a, b, []string{"late"}, nil)
	assert.True(t, res.Full)
	assert.Empty(t, res.Added)
	assert.Equal(t, a, res.A)
	assert.Equal(t, b, res.B)
}

func TestFreshPoolSortsAndCaps(t *testing.T) {
	pool := ids("p", 20)
	played := map[string]int{"p1": 5, "p2": 5}
	got := FreshPool(pool, played)
	require.Len(t, got, MaxPool)
	assert.Equal(t, "p3", got[0])
	assert.NotContains(t, got, "p1")
	assert.NotContains(t, got, "p2")
}

func TestSplitAlternates(t *testing.T) {
	a, b := Split([]string{"p1", "p2", "p3", "p4", "p5"})
	assert.Equal(t, Roster{"p1", "p3", "p5"}, a)
	assert.Equal(t, Roster{"p2", "p4"}, b)
}
