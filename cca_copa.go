package ccac

import (
	"fmt"

	"github.com/iti/ccac/smt"
)

// CopaState holds Copa's per-timestep choice: exactly one of Incr and Decr
// holds for every flow and timestep at or after R.
type CopaState struct {
	Incr, Decr [][]smt.Bool
}

func (*CopaState) Kind() CCAKind { return CCACopa }

type copaCCA struct{}

func (copaCCA) Kind() CCAKind { return CCACopa }

// Extend compares the queueing delay reported by feedback arriving at t with
// Copa's target. A window w with delay dq is below target when
// w*dq <= alpha*(R+dq) and above it when w*dq >= alpha*(R+dq). Delays are only
// known to a timestep, so the bounds are taken at the favourable end of the
// interval. When the delay of the serviced bytes predates the trace either
// move is allowed.
func (copaCCA) Extend(c *ModelConfig, s *smt.Solver, v *Variables) (CCAState, error) {
	if v.Qdel == nil {
		return nil, configErr("CalculateQdel", "copa needs queueing delay tracking")
	}
	st := &CopaState{Incr: make([][]smt.Bool, c.N), Decr: make([][]smt.Bool, c.N)}
	step := v.Alpha.Div(float64(c.R))

	for n := 0; n < c.N; n++ {
		st.Incr[n] = make([]smt.Bool, c.T)
		st.Decr[n] = make([]smt.Bool, c.T)
		for t := 0; t < c.T; t++ {
			st.Incr[n][t] = s.Bool(fmt.Sprintf("copa_incr_%d_%d", n, t))
			st.Decr[n][t] = s.Bool(fmt.Sprintf("copa_decr_%d_%d", n, t))
			if c.Pacing {
				s.Add(v.Rate[n][t].Eq(v.Cwnd[n][t].Scale(2).Div(float64(c.R))))
			} else {
				paceOrUnlimited(c, s, v, n, t)
			}
			if t < c.R {
				continue
			}
			s.Add(smt.Iff(st.Incr[n][t], smt.Not(st.Decr[n][t])))

			prev := v.Cwnd[n][t-1]
			var incrOK, decrOK, known []smt.Bool
			for dt := 0; dt < c.T; dt++ {
				q := v.Qdel[t-c.R][dt]
				known = append(known, q)
				lo := max(dt-1, 0)
				incrOK = append(incrOK, smt.And(q, prev.ScaleInt(lo).LE(v.Alpha.ScaleInt(c.R+lo))))
				decrOK = append(decrOK, smt.And(q, prev.ScaleInt(dt).GE(v.Alpha.ScaleInt(c.R+dt))))
			}
			unknown := smt.Not(smt.Or(known...))
			s.Add(smt.Implies(st.Incr[n][t], smt.Or(append(incrOK, unknown)...)))
			s.Add(smt.Implies(st.Decr[n][t], smt.Or(append(decrOK, unknown)...)))

			s.Add(smt.Implies(st.Incr[n][t], v.Cwnd[n][t].Eq(prev.Add(step))))
			s.Add(smt.Implies(st.Decr[n][t], v.Cwnd[n][t].Eq(floorAlpha(prev.Sub(step), v.Alpha))))
		}
	}
	return st, nil
}

// ClosePeriod repeats the increase/decrease choices.
func (st *CopaState) ClosePeriod(c *ModelConfig, s *smt.Solver, v *Variables, dur int) {
	for n := range st.Incr {
		for t := dur; t < c.T; t++ {
			s.Add(smt.Iff(st.Incr[n][t], st.Incr[n][t-dur]))
		}
	}
}
