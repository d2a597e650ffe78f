package ccac

import (
	"github.com/iti/ccac/smt"
)

// ConvState records the weights the window update was built with.
type ConvState struct {
	Weights ConvConfig
}

func (*ConvState) Kind() CCAKind { return CCAConv }

type convCCA struct{}

func (convCCA) Kind() CCAKind { return CCAConv }

// Extend makes each new window a convex combination of four candidates:
// additive increase, halving, matching what was acknowledged over the last
// RTT, and holding. The result never drops below alpha and a timeout resets
// it to alpha.
func (convCCA) Extend(c *ModelConfig, s *smt.Solver, v *Variables) (CCAState, error) {
	w := c.Conv
	if w == nil {
		w = DefaultConvConfig()
	}
	st := &ConvState{Weights: *w}

	for n := 0; n < c.N; n++ {
		for t := 0; t < c.T; t++ {
			paceOrUnlimited(c, s, v, n, t)
			if t == 0 {
				continue
			}
			prev := v.Cwnd[n][t-1]
			match := prev
			if t >= c.R {
				match = v.Sf[n][t].Sub(v.Sf[n][t-c.R]).Add(v.Alpha)
			}
			raw := smt.Sum(
				prev.Add(v.Alpha).Scale(w.Increase),
				prev.Div(2).Scale(w.Decrease),
				match.Scale(w.Match),
				prev.Scale(w.Hold))
			s.Add(smt.Implies(v.Timeout[n][t], v.Cwnd[n][t].Eq(v.Alpha)))
			s.Add(smt.Implies(smt.Not(v.Timeout[n][t]), v.Cwnd[n][t].Eq(floorAlpha(raw, v.Alpha))))
		}
	}
	return st, nil
}
