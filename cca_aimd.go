package ccac

import (
	"fmt"

	"github.com/iti/ccac/smt"
)

// AIMDState holds the variables of the additive-increase multiplicative-decrease
// algorithm.
type AIMDState struct {
	Appsafe bool

	// IncrF[n][t] holds when flow n has earned a window increase at t
	IncrF [][]smt.Bool

	// LastLoss[n][t] is the highest byte sent when flow n last cut its window.
	// A new cut waits until that byte has been acknowledged, so the window
	// is halved at most once per window's worth of loss.
	LastLoss [][]smt.Real
}

func (st *AIMDState) Kind() CCAKind {
	if st.Appsafe {
		return CCAAIMDAppsafe
	}
	return CCAAIMD
}

// NewAIMDState declares the AIMD variables without constraining them.
func NewAIMDState(c *ModelConfig, s *smt.Solver, appsafe bool) *AIMDState {
	st := &AIMDState{Appsafe: appsafe}
	st.IncrF = make([][]smt.Bool, c.N)
	st.LastLoss = make([][]smt.Real, c.N)
	for n := 0; n < c.N; n++ {
		st.IncrF[n] = make([]smt.Bool, c.T)
		st.LastLoss[n] = make([]smt.Real, c.T)
		for t := 0; t < c.T; t++ {
			st.IncrF[n][t] = s.Bool(fmt.Sprintf("aimd_incr_f_%d_%d", n, t))
			st.LastLoss[n][t] = s.Real(fmt.Sprintf("aimd_last_loss_%d_%d", n, t))
		}
	}
	return st
}

// CanIncr defines when a flow may grow its window: a window's worth of bytes
// was acknowledged over the last RTT. The appsafe variant also requires the
// window to have been used, so an application-limited flow does not grow a
// window it never fills. Before t=R nothing is known and the choice is free.
func CanIncr(c *ModelConfig, s *smt.Solver, v *Variables, st *AIMDState) {
	for n := 0; n < c.N; n++ {
		for t := 0; t < c.T; t++ {
			if c.AIMDIncrIrrespective {
				s.Add(st.IncrF[n][t])
				continue
			}
			if t < c.R {
				continue
			}
			acked := v.Sf[n][t].Sub(v.Sf[n][t-c.R])
			cond := acked.GE(v.Cwnd[n][t])
			if st.Appsafe {
				windowLimit := v.Sf[n][t-c.R].Add(v.Ldf[n][t], v.Cwnd[n][t])
				cond = smt.And(cond, v.Af[n][t].GE(windowLimit))
			}
			s.Add(smt.Iff(st.IncrF[n][t], cond))
		}
	}
}

type aimdCCA struct {
	appsafe bool
}

func (a aimdCCA) Kind() CCAKind {
	if a.appsafe {
		return CCAAIMDAppsafe
	}
	return CCAAIMD
}

func (a aimdCCA) Extend(c *ModelConfig, s *smt.Solver, v *Variables) (CCAState, error) {
	st := NewAIMDState(c, s, a.appsafe)
	CanIncr(c, s, v, st)

	for n := 0; n < c.N; n++ {
		for t := 0; t < c.T; t++ {
			paceOrUnlimited(c, s, v, n, t)
			if t == 0 {
				continue
			}
			acked := v.Sf[n][max(t-c.R, 0)]
			newLoss := v.Ldf[n][t].GT(v.Ldf[n][t-1])
			decrease := smt.And(newLoss, st.LastLoss[n][t-1].LE(acked))
			timeout := v.Timeout[n][t]
			reset := smt.Or(decrease, timeout)

			s.Add(smt.Implies(reset, st.LastLoss[n][t].Eq(v.Af[n][t])))
			s.Add(smt.Implies(smt.Not(reset), st.LastLoss[n][t].Eq(st.LastLoss[n][t-1])))

			aimdUpdate(s, v.Cwnd[n][t], v.Cwnd[n][t-1], v.Alpha, timeout, decrease, st.IncrF[n][t-1])
		}
	}
	return st, nil
}

// aimdUpdate moves a window from prev to cur: back to alpha on timeout,
// halved (not below alpha) on a cut, up by alpha when an increase was earned,
// held otherwise
func aimdUpdate(s *smt.Solver, cur, prev, alpha smt.Real, timeout, decrease, incr smt.Bool) {
	calm := smt.Not(timeout)
	s.Add(smt.Implies(timeout, cur.Eq(alpha)))
	s.Add(smt.Implies(smt.And(calm, decrease), cur.Eq(floorAlpha(prev.Div(2), alpha))))
	s.Add(smt.Implies(smt.And(calm, smt.Not(decrease), incr), cur.Eq(prev.Add(alpha))))
	s.Add(smt.Implies(smt.And(calm, smt.Not(decrease), smt.Not(incr)), cur.Eq(prev)))
}

// ClosePeriod repeats the increase decisions and keeps the last-cut
// sequence at the same distance behind arrival.
func (st *AIMDState) ClosePeriod(c *ModelConfig, s *smt.Solver, v *Variables, dur int) {
	for n := 0; n < c.N; n++ {
		for t := dur; t < c.T; t++ {
			s.Add(smt.Iff(st.IncrF[n][t], st.IncrF[n][t-dur]))
			s.Add(v.Af[n][t].Sub(st.LastLoss[n][t]).Eq(v.Af[n][t-dur].Sub(st.LastLoss[n][t-dur])))
		}
	}
}
