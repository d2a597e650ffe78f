package ccac

// network.go generates the constraints every model carries no matter which
// algorithm or application it is built with: counters only grow, the link
// serves at most C bytes per timestep and at most D timesteps late, loss only
// happens out of a full buffer, and the sender learns about loss through
// acknowledgements R timesteps later or through a timeout.
//
// Each generator takes the configuration, the solver the constraints are
// added to, and the variables they constrain.

import (
	"github.com/iti/ccac/smt"
)

func monotone(c *ModelConfig, s *smt.Solver, v *Variables) {
	for t := 1; t < c.T; t++ {
		for n := 0; n < c.N; n++ {
			s.Add(v.Af[n][t].GE(v.Af[n][t-1]))
			s.Add(v.Ldf[n][t].GE(v.Ldf[n][t-1]))
			s.Add(v.Sf[n][t].GE(v.Sf[n][t-1]))
			s.Add(v.Lf[n][t].GE(v.Lf[n][t-1]))

			// bytes that made it past the drop point only accumulate
			s.Add(v.Af[n][t].Sub(v.Lf[n][t]).GE(v.Af[n][t-1].Sub(v.Lf[n][t-1])))
		}
		s.Add(v.W[t].GE(v.W[t-1]))
		s.Add(v.Ceiling(c, t).GE(v.Ceiling(c, t-1)))
	}
}

func initial(c *ModelConfig, s *smt.Solver, v *Variables) {
	for n := 0; n < c.N; n++ {
		s.Add(v.Cwnd[n][0].GT(smt.Int(0)))
		s.Add(v.Rate[n][0].GT(smt.Int(0)))
		s.Add(v.Lf[n][0].GE(smt.Int(0)))
		s.Add(v.Ldf[n][0].GE(smt.Int(0)))

		// everything is invariant to a shift of the y axis; starting service
		// at zero makes counterexamples easier to read
		s.Add(v.Sf[n][0].Eq(smt.Int(0)))
	}
}

// relateTot ties the aggregate series to the per-flow ones
func relateTot(c *ModelConfig, s *smt.Solver, v *Variables) {
	for t := 0; t < c.T; t++ {
		a := make([]smt.Real, c.N)
		l := make([]smt.Real, c.N)
		sv := make([]smt.Real, c.N)
		for n := 0; n < c.N; n++ {
			a[n], l[n], sv[n] = v.Af[n][t], v.Lf[n][t], v.Sf[n][t]
		}
		s.Add(v.A[t].Eq(smt.Sum(a...)))
		s.Add(v.L[t].Eq(smt.Sum(l...)))
		s.Add(v.S[t].Eq(smt.Sum(sv...)))
	}
}

func network(c *ModelConfig, s *smt.Solver, v *Variables) {
	capacity := smt.Num(c.C)
	for t := 0; t < c.T; t++ {
		for n := 0; n < c.N; n++ {
			s.Add(v.Sf[n][t].LE(v.Af[n][t].Sub(v.Lf[n][t])))
		}

		s.Add(v.S[t].LE(v.Ceiling(c, t)))
		if t >= c.D {
			s.Add(v.Ceiling(c, t-c.D).LE(v.S[t]))
		} else {
			// before the trace starts the line is steepest with no waste,
			// which is the loosest lower bound
			s.Add(capacity.ScaleInt(t - c.D).Sub(v.W[0]).LE(v.S[t]))
		}

		inNetwork := v.A[t].Sub(v.L[t])
		if t > 0 {
			wasted := v.W[t].GT(v.W[t-1])
			if c.Compose {
				s.Add(smt.Implies(wasted, inNetwork.LE(v.Ceiling(c, t))))
			} else {
				s.Add(smt.Implies(wasted, inNetwork.LE(v.S[t].Add(v.Epsilon))))
			}
		}

		if c.BufMin != nil {
			if t > 0 {
				s.Add(smt.Implies(v.L[t].GT(v.L[t-1]),
					inNetwork.GT(v.Ceiling(c, t-1).Add(smt.Num(*c.BufMin)))))
			}
		} else {
			s.Add(v.L[t].Eq(v.L[0]))
		}

		if c.BufMax != nil {
			s.Add(inNetwork.LE(v.Ceiling(c, t).Add(smt.Num(*c.BufMax))))
		}
	}
}

// lossDetected lets the sender learn of loss through dupacks once enough bytes
// sent after the lost ones have been acknowledged, or all at once on timeout.
//
// The timeout fires exactly when service has caught up with everything
// delivered as of R timesteps ago while bytes are still outstanding. No real
// sender can observe that. Whenever the model times out a real implementation
// would too, possibly after a different delay, so timeout durations in
// counterexamples should not be read literally.
func lossDetected(c *ModelConfig, s *smt.Solver, v *Variables) {
	for n := 0; n < c.N; n++ {
		for t := 0; t < c.T; t++ {
			noTimeout := smt.Not(v.Timeout[n][t])
			for dt := 0; dt < c.T; dt++ {
				past := t - c.R - dt
				if past < 0 {
					continue
				}
				detectable := v.Af[n][past].Sub(v.Lf[n][past]).Add(v.DupAcks).LE(v.Sf[n][t-c.R])

				s.Add(smt.Implies(smt.And(noTimeout, detectable), v.Ldf[n][t].GE(v.Lf[n][past])))
				s.Add(smt.Implies(smt.And(noTimeout, smt.Not(detectable)), v.Ldf[n][t].LE(v.Lf[n][past])))
			}

			if t < c.R {
				s.Add(smt.Not(v.Timeout[n][t]))
			} else {
				outstanding := v.Sf[n][t-c.R].LT(v.Af[n][t-1])
				stalled := v.Sf[n][t-c.R].Eq(v.Af[n][t-c.R].Sub(v.Lf[n][t-c.R]))
				s.Add(smt.Iff(v.Timeout[n][t], smt.And(outstanding, stalled)))
			}
			s.Add(smt.Implies(v.Timeout[n][t], v.Ldf[n][t].Eq(v.Lf[n][t])))

			// loss cannot be known before its feedback could arrive; losses
			// before the trace starts are at most L_f[0]
			if t >= c.R {
				s.Add(v.Ldf[n][t].LE(v.Lf[n][t-c.R]))
			} else {
				s.Add(v.Ldf[n][t].LE(v.Lf[n][0]))
			}
		}
	}
}

// calculateQdel works out, for the bytes serviced at t, in which timestep they
// entered the network. One indicator is shared by all flows: the last byte of
// each flow dequeued at t entered between t-dt-1 and t-dt for every flow, which
// is all multiFlows needs.
func calculateQdel(c *ModelConfig, s *smt.Solver, v *Variables) {
	for t := 0; t < c.T; t++ {
		for dt := 0; dt < c.T; dt++ {
			if dt >= t {
				s.Add(smt.Not(v.Qdel[t][dt]))
				continue
			}
			moved := v.S[t].NE(v.S[t-1])
			entered := smt.And(
				v.A[t-dt-1].Sub(v.L[t-dt-1]).LT(v.S[t]),
				v.A[t-dt].Sub(v.L[t-dt]).GE(v.S[t]))
			s.Add(smt.Iff(v.Qdel[t][dt], smt.Or(
				smt.And(moved, entered),
				smt.And(v.S[t].Eq(v.S[t-1]), v.Qdel[t-1][dt]))))
		}

		// what happened before t=0 is unknown, so the solver picks
		if t > 0 {
			s.Add(smt.Implies(
				smt.And(v.S[t].NE(v.S[t-1]), v.A[0].Sub(v.L[0]).LT(v.S[t-1])),
				smt.Not(v.Qdel[t][t-1])))
		}
	}
}

// multiFlows keeps every flow served up to the point the shared queueing delay says
func multiFlows(c *ModelConfig, s *smt.Solver, v *Variables) {
	for t := 0; t < c.T; t++ {
		for n := 0; n < c.N; n++ {
			for dt := 0; dt < c.T; dt++ {
				if t-dt-1 < 0 {
					continue
				}
				s.Add(smt.Implies(v.Qdel[t][dt], v.Sf[n][t].GT(v.Af[n][t-dt-1])))
			}
		}
	}
}

func epsilonAlpha(c *ModelConfig, s *smt.Solver, v *Variables) {
	if c.Compose {
		return
	}
	switch c.Epsilon {
	case EpsilonZero:
		s.Add(v.Epsilon.Eq(smt.Int(0)))
	case EpsilonLtAlpha:
		s.Add(v.Epsilon.LT(v.Alpha))
	case EpsilonLtHalfAlpha:
		s.Add(v.Epsilon.LT(v.Alpha.Div(2)))
	case EpsilonGtAlpha:
		s.Add(v.Epsilon.GT(v.Alpha))
	}
}

// cwndRateArrival picks arrival as the smaller of what the window and the
// pacing rate allow, further capped by what the application offers. Before
// t=R nothing is known about acknowledgements, so arrival is left free.
func cwndRateArrival(c *ModelConfig, s *smt.Solver, v *Variables, apps []AppState) {
	for n := 0; n < c.N; n++ {
		var offered []smt.Real
		if n < len(apps) && apps[n] != nil {
			offered = apps[n].Offered()
		}
		for t := c.R; t < c.T; t++ {
			byWindow := smt.Max(v.Sf[n][t-c.R].Add(v.Ldf[n][t], v.Cwnd[n][t]), v.Af[n][t-1])
			byRate := v.Af[n][t-1].Add(v.Rate[n][t])
			maxArrival := smt.Min(byWindow, byRate)
			if offered == nil {
				s.Add(v.Af[n][t].Eq(maxArrival))
			} else {
				s.Add(v.Af[n][t].Eq(smt.Min(maxArrival, offered[t])))
			}
		}
	}
}

// MinSendQuantum makes every flow's service either stay flat or grow by at
// least alpha each timestep. Without it AIMD can dodge loss detection by
// sending dribbles that sum to less than the dupack threshold, which a real
// sender cannot do.
func MinSendQuantum(c *ModelConfig, s *smt.Solver, v *Variables) {
	for n := 0; n < c.N; n++ {
		for t := 1; t < c.T; t++ {
			s.Add(smt.Or(
				v.Sf[n][t-1].Eq(v.Sf[n][t]),
				v.Sf[n][t-1].Add(v.Alpha).LE(v.Sf[n][t])))
		}
	}
}
