package engine

import (
	"fmt"

	"heartwatch/internal/config"
)

// Tier is a named value band. Bounds are exclusive; a nil bound is open.
type Tier struct {
	Name     string
	Above    *int64
	Below    *int64
	Audience string
	Priority string
}

func (t Tier) Matches(v int64) bool {
	if t.Above != nil && v <= *t.Above {
		return false
	}
	if t.Below != nil && v >= *t.Below {
		return false
	}
	return true
}

func (t Tier) String() string {
	switch {
	case t.Above != nil && t.Below != nil:
		return fmt.Sprintf("%s(%d<v<%d)", t.Name, *t.Above, *t.Below)
	case t.Above != nil:
		return fmt.Sprintf("%s(v>%d)", t.Name, *t.Above)
	case t.Below != nil:
		return fmt.Sprintf("%s(v<%d)", t.Name, *t.Below)
	}
	return t.Name
}

// CompileTiers copies the configured tiers in declaration order.
func CompileTiers(list []config.TierConfig) []Tier {
	out := make([]Tier, 0, len(list))
	for _, tc := range list {
		t := Tier{Name: tc.Name, Audience: tc.Audience, Priority: tc.Priority}
		if tc.Above != nil {
			v := *tc.Above
			t.Above = &v
		}
		if tc.Below != nil {
			v := *tc.Below
			t.Below = &v
		}
		out = append(out, t)
	}
	return out
}
