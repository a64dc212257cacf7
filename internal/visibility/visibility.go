// Package visibility decides who may see a question from the viewer's
// distance to the asker in the social graph and any forwarding grants.
package visibility

import (
	"context"
	"fmt"
	"strconv"
)

// Level is the widest network degree a question is shown to without
// forwarding.
type Level string

const (
	FirstDegree  Level = "firstDegree"
	SecondDegree Level = "secondDegree"
	ThirdDegree  Level = "thirdDegree"
	Public       Level = "public"
)

// Levels lists every level from narrowest to widest.
var Levels = []Level{FirstDegree, SecondDegree, ThirdDegree, Public}

// ParseLevel validates s as a Level.
func ParseLevel(s string) (Level, error) {
	l := Level(s)
	if !l.Valid() {
		return "", fmt.Errorf("unknown visibility level %q", s)
	}
	return l, nil
}

func (l Level) Valid() bool {
	switch l {
	case FirstDegree, SecondDegree, ThirdDegree, Public:
		return true
	}
	return false
}

// MaxDegree returns the largest degree the level admits, or -1 for Public.
func (l Level) MaxDegree() int {
	switch l {
	case FirstDegree:
		return 1
	case SecondDegree:
		return 2
	case ThirdDegree:
		return 3
	default:
		return -1
	}
}

// Allows reports whether a viewer at degree d satisfies the level.
func (l Level) Allows(d Degree) bool {
	switch l {
	case Public:
		return true
	case FirstDegree, SecondDegree, ThirdDegree:
		return d.Reachable() && int(d) <= l.MaxDegree()
	}
	return false
}

// LevelsAllowing returns the levels a viewer at degree d can see.
func LevelsAllowing(d Degree) []Level {
	var out []Level
	for _, l := range Levels {
		if l.Allows(d) {
			out = append(out, l)
		}
	}
	return out
}

// Degree is the hop count between two users. Zero means the same user.
type Degree int

// Unreachable marks users with no path within the search depth.
const Unreachable Degree = -1

func (d Degree) Reachable() bool { return d >= 0 }

func (d Degree) String() string {
	if !d.Reachable() {
		return "unreachable"
	}
	return strconv.Itoa(int(d))
}

// Less orders degrees nearest first, with Unreachable after every reachable
// degree.
func (d Degree) Less(o Degree) bool {
	if d.Reachable() != o.Reachable() {
		return d.Reachable()
	}
	return d < o
}

// Grants is the set of users a question has been forwarded to.
type Grants map[string]struct{}

// NewGrants builds a grant set from user ids.
func NewGrants(userIDs ...string) Grants {
	g := make(Grants, len(userIDs))
	for _, id := range userIDs {
		g[id] = struct{}{}
	}
	return g
}

func (g Grants) Has(userID string) bool {
	_, ok := g[userID]
	return ok
}

// Target is the part of a question that access decisions depend on.
type Target struct {
	AskerID string
	Level   Level
}

// CanView reports whether viewerID, at degree d from the asker, may see the
// target. The asker and any forwarding recipient always can.
func CanView(t Target, viewerID string, d Degree, grants Grants) bool {
	if viewerID == "" {
		return false
	}
	if viewerID == t.AskerID {
		return true
	}
	if grants.Has(viewerID) {
		return true
	}
	return t.Level.Allows(d)
}

// DegreeSource resolves graph distance between two users.
type DegreeSource interface {
	Degree(ctx context.Context, from, to string) (Degree, error)
}

// Check resolves the viewer's degree from the asker and applies CanView.
// The degree is returned so callers can record it.
func Check(ctx context.Context, src DegreeSource, t Target, viewerID string, grants Grants) (bool, Degree, error) {
	if viewerID == t.AskerID {
		return true, 0, nil
	}
	d, err := src.Degree(ctx, t.AskerID, viewerID)
	if err != nil {
		return false, Unreachable, fmt.Errorf("resolving degree: %w", err)
	}
	return CanView(t, viewerID, d, grants), d, nil
}
