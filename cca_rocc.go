package ccac

import (
	"github.com/iti/ccac/smt"
)

// RoCCState records the measurement interval RoCC derived from the configuration.
type RoCCState struct {
	Dur int
}

func (*RoCCState) Kind() CCAKind { return CCARoCC }

type roccCCA struct{}

func (roccCCA) Kind() CCAKind { return CCARoCC }

// Extend sets the window to what was delivered over the last R+D timesteps
// of feedback, plus one quantum. Until a full interval of feedback exists the
// window is only bounded below by alpha.
func (roccCCA) Extend(c *ModelConfig, s *smt.Solver, v *Variables) (CCAState, error) {
	st := &RoCCState{Dur: c.R + c.D}
	for n := 0; n < c.N; n++ {
		for t := 0; t < c.T; t++ {
			paceOrUnlimited(c, s, v, n, t)
			if t-c.R-st.Dur < 0 {
				s.Add(v.Cwnd[n][t].GE(v.Alpha))
				continue
			}
			delivered := v.Sf[n][t-c.R].Sub(v.Sf[n][t-c.R-st.Dur])
			s.Add(v.Cwnd[n][t].Eq(delivered.Add(v.Alpha)))
		}
	}
	return st, nil
}
