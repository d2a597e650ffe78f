package ccac

import (
	"fmt"

	"github.com/iti/ccac/smt"
)

// FairState holds the variables of the shared-window algorithm: all flows use
// one window, driven by aggregate acknowledgements and by loss on any flow.
type FairState struct {
	Incr     []smt.Bool
	LastLoss []smt.Real
}

func (*FairState) Kind() CCAKind { return CCAFair }

type fairCCA struct{}

func (fairCCA) Kind() CCAKind { return CCAFair }

func (fairCCA) Extend(c *ModelConfig, s *smt.Solver, v *Variables) (CCAState, error) {
	st := &FairState{Incr: make([]smt.Bool, c.T), LastLoss: make([]smt.Real, c.T)}
	for t := 0; t < c.T; t++ {
		st.Incr[t] = s.Bool(fmt.Sprintf("fair_incr_%d", t))
		st.LastLoss[t] = s.Real(fmt.Sprintf("fair_last_loss_%d", t))
	}

	cwnd := v.Cwnd[0]
	for t := 0; t < c.T; t++ {
		for n := 0; n < c.N; n++ {
			if n > 0 {
				s.Add(v.Cwnd[n][t].Eq(cwnd[t]))
			}
			paceOrUnlimited(c, s, v, n, t)
		}
		if t >= c.R {
			s.Add(smt.Iff(st.Incr[t], v.S[t].Sub(v.S[t-c.R]).GE(cwnd[t].ScaleInt(c.N))))
		}
		if t == 0 {
			continue
		}

		var newLoss, timeouts []smt.Bool
		for n := 0; n < c.N; n++ {
			newLoss = append(newLoss, v.Ldf[n][t].GT(v.Ldf[n][t-1]))
			timeouts = append(timeouts, v.Timeout[n][t])
		}
		decrease := smt.And(smt.Or(newLoss...), st.LastLoss[t-1].LE(v.S[max(t-c.R, 0)]))
		timeout := smt.Or(timeouts...)
		reset := smt.Or(decrease, timeout)
		s.Add(smt.Implies(reset, st.LastLoss[t].Eq(v.A[t])))
		s.Add(smt.Implies(smt.Not(reset), st.LastLoss[t].Eq(st.LastLoss[t-1])))

		aimdUpdate(s, cwnd[t], cwnd[t-1], v.Alpha, timeout, decrease, st.Incr[t-1])
	}
	return st, nil
}

// ClosePeriod repeats the increase decisions and the last-cut distance.
func (st *FairState) ClosePeriod(c *ModelConfig, s *smt.Solver, v *Variables, dur int) {
	for t := dur; t < c.T; t++ {
		s.Add(smt.Iff(st.Incr[t], st.Incr[t-dur]))
		s.Add(v.A[t].Sub(st.LastLoss[t]).Eq(v.A[t-dur].Sub(st.LastLoss[t-dur])))
	}
}
