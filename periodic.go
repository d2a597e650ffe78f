package ccac

import (
	"fmt"

	"github.com/iti/ccac/smt"
)

// MakePeriodic restricts a model to traces that repeat every dur timesteps
// from t=dur on, the way a steady state repeats forever.
//
// Windows, rates and the boolean indicators repeat exactly. Cumulative byte
// counters advance by the same amount every period. On top of that the state
// that carries over between periods repeats: each flow's bytes in flight,
// its undetected loss, and the distance between service and the
// work-conserving ceiling. Without the latter a queue could drain for the
// whole horizon and still pass for periodic. Since the capacity line C*t
// rises by exactly C*dur per period, aggregate service rises by C*dur less
// whatever capacity was wasted in the period.
//
// Plug-in state implementing PeriodicState closes its own loop.
func MakePeriodic(m *Model, dur int) error {
	c, s, v := m.Config, m.Solver, m.Vars
	if dur < 1 || dur >= c.T {
		return fmt.Errorf("%w: %d not in [1, %d)", ErrPeriod, dur, c.T)
	}

	for n := 0; n < c.N; n++ {
		for t := dur; t < c.T; t++ {
			s.Add(v.Cwnd[n][t].Eq(v.Cwnd[n][t-dur]))
			s.Add(v.Rate[n][t].Eq(v.Rate[n][t-dur]))
			// before R timeouts are off because of where the trace starts
			if t-dur >= c.R {
				s.Add(smt.Iff(v.Timeout[n][t], v.Timeout[n][t-dur]))
			}

			for _, x := range [][]smt.Real{v.Af[n], v.Lf[n], v.Ldf[n], v.Sf[n]} {
				s.Add(advancesByPeriod(x, t, dur))
			}

			inFlight := func(t int) smt.Real { return v.Af[n][t].Sub(v.Lf[n][t]).Sub(v.Sf[n][t]) }
			undetected := func(t int) smt.Real { return v.Lf[n][t].Sub(v.Ldf[n][t]) }
			s.Add(inFlight(t).Eq(inFlight(t - dur)))
			s.Add(undetected(t).Eq(undetected(t - dur)))
		}
	}

	for t := dur; t < c.T; t++ {
		s.Add(advancesByPeriod(v.W, t, dur))
		slack := func(t int) smt.Real { return v.Ceiling(c, t).Sub(v.S[t]) }
		s.Add(slack(t).Eq(slack(t - dur)))
		if v.Qdel != nil {
			// the same holds for delays reaching back before t=0
			for dt := 0; dt < t-dur; dt++ {
				s.Add(smt.Iff(v.Qdel[t][dt], v.Qdel[t-dur][dt]))
			}
		}
	}

	if ps, ok := m.CCA.(PeriodicState); ok {
		ps.ClosePeriod(c, s, v, dur)
	}
	for _, app := range m.Apps {
		if ps, ok := app.(PeriodicState); ok {
			ps.ClosePeriod(c, s, v, dur)
		}
	}
	return nil
}

// advancesByPeriod says x[t] - x[t-dur] equals the first period's increment
func advancesByPeriod(x []smt.Real, t, dur int) smt.Bool {
	return x[t].Sub(x[t-dur]).Eq(x[dur].Sub(x[0]))
}
