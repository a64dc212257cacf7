package visibility

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelAllows(t *testing.T) {
	tests := []struct {
		level Level
		d     Degree
		want  bool
	}{
		{FirstDegree, 1, true},
		{FirstDegree, 2, false},
		{FirstDegree, Unreachable, false},
		{SecondDegree, 2, true},
		{SecondDegree, 3, false},
		{ThirdDegree, 3, true},
		{ThirdDegree, 4, false},
		{Public, 17, true},
		{Public, Unreachable, true},
		{Level("bogus"), 1, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.level.Allows(tt.d), "%s at %s", tt.level, tt.d)
	}
}

func TestCanViewAskerAndGrants(t *testing.T) {
	target := Target{AskerID: "a", Level: FirstDegree}

	assert.True(t, CanView(target, "a", Unreachable, nil), "asker always sees own question")
	assert.False(t, CanView(target, "d", 5, nil))
	assert.True(t, CanView(target, "d", 5, NewGrants("d")), "forward recipient sees regardless of degree")
	assert.False(t, CanView(target, "", 0, NewGrants("")), "anonymous viewer id never matches")
}

// Adding grants or widening the viewer set can never revoke access.
func TestCanViewMonotonicUnderGrants(t *testing.T) {
	users := map[string]Degree{"b": 1, "c": 3, "d": 5, "e": Unreachable}
	for _, level := range Levels {
		target := Target{AskerID: "a", Level: level}
		grants := NewGrants()
		before := map[string]bool{}
		for id, d := range users {
			before[id] = CanView(target, id, d, grants)
		}
		for _, fwd := range []string{"d", "e", "c"} {
			grants[fwd] = struct{}{}
			for id, d := range users {
				now := CanView(target, id, d, grants)
				if before[id] {
					assert.True(t, now, "%s lost access to %s question after forwarding to %s", id, level, fwd)
				}
				before[id] = now
			}
		}
	}
}

func TestLevelsAllowing(t *testing.T) {
	assert.Equal(t, []Level{FirstDegree, SecondDegree, ThirdDegree, Public}, LevelsAllowing(1))
	assert.Equal(t, []Level{ThirdDegree, Public}, LevelsAllowing(3))
	assert.Equal(t, []Level{Public}, LevelsAllowing(Unreachable))
}

func TestDegreeLess(t *testing.T) {
	assert.True(t, Degree(1).Less(2))
	assert.True(t, Degree(6).Less(Unreachable))
	assert.False(t, Unreachable.Less(1))
	assert.False(t, Unreachable.Less(Unreachable))
	assert.Equal(t, "unreachable", Unreachable.String())
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("secondDegree")
	require.NoError(t, err)
	assert.Equal(t, SecondDegree, l)

	_, err = ParseLevel("friends")
	assert.Error(t, err)
}

type fakeDegrees map[string]Degree

func (f fakeDegrees) Degree(_ context.Context, _, to string) (Degree, error) {
	if d, ok := f[to]; ok {
		return d, nil
	}
	if to == "broken" {
		return Unreachable, errors.New("graph offline")
	}
	return Unreachable, nil
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	src := fakeDegrees{"b": 1, "c": 3}
	target := Target{AskerID: "a", Level: SecondDegree}

	ok, d, err := Check(ctx, src, target, "b", nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Degree(1), d)

	ok, d, err = Check(ctx, src, target, "c", nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, Degree(3), d)

	ok, d, err = Check(ctx, src, target, "a", nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Degree(0), d)

	_, _, err = Check(ctx, src, target, "broken", nil)
	assert.Error(t, err)
}
