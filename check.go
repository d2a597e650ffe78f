package ccac

import (
	"fmt"

	"github.com/iti/ccac/smt"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

// checkTol is the slack allowed when re-checking a trace in float64
const checkTol = 1e-9

// CheckTrace re-checks the invariants every trace of the model must satisfy
// on a satisfying assignment: counters and bytes not lost never decrease,
// aggregates are exact sums, loss stays put without a buffer bound, detected
// loss lags actual loss by at least R and matches it on timeout. It returns one error per violation,
// or an error for the assignment itself if it does not cover the model.
func CheckTrace(m *Model, a smt.Assignment) []error {
	c := m.Config
	tr, err := m.Vars.Trace(a)
	if err != nil {
		return []error{err}
	}
	var errs []error
	violation := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("ccac: trace invariant: "+format, args...))
	}
	le := func(x, y float64) bool { return x <= y || scalar.EqualWithinAbsOrRel(x, y, checkTol, checkTol) }
	eq := func(x, y float64) bool { return scalar.EqualWithinAbsOrRel(x, y, checkTol, checkTol) }

	for n := 0; n < c.N; n++ {
		for _, name := range []Series{SeriesArrival, SeriesLoss, SeriesDetected, SeriesService} {
			xs := tr.Flow(name, n)
			for t := 1; t < c.T; t++ {
				if !le(xs[t-1], xs[t]) {
					violation("%s[%d] decreases at t=%d: %v -> %v", name, n, t, xs[t-1], xs[t])
				}
			}
		}
		// bytes past the drop point
		for t := 1; t < c.T; t++ {
			prev, cur := tr.Af[n][t-1]-tr.Lf[n][t-1], tr.Af[n][t]-tr.Lf[n][t]
			if !le(prev, cur) {
				violation("A_f-L_f[%d] decreases at t=%d: %v -> %v", n, t, prev, cur)
			}
		}
		for t := 0; t < c.T; t++ {
			if t >= c.R && !le(tr.Ldf[n][t], tr.Lf[n][t-c.R]) {
				violation("Ld_f[%d][%d]=%v exceeds L_f[%d][%d]=%v", n, t, tr.Ldf[n][t], n, t-c.R, tr.Lf[n][t-c.R])
			}
			if tr.Timeout[n][t] && !eq(tr.Ldf[n][t], tr.Lf[n][t]) {
				violation("timeout at flow %d t=%d but Ld_f=%v != L_f=%v", n, t, tr.Ldf[n][t], tr.Lf[n][t])
			}
		}
	}

	perStep := make([]float64, c.N)
	for t := 0; t < c.T; t++ {
		for _, agg := range []struct {
			name  Series
			total []float64
		}{{SeriesArrival, tr.A}, {SeriesLoss, tr.L}, {SeriesService, tr.S}} {
			for n := 0; n < c.N; n++ {
				perStep[n] = tr.Flow(agg.name, n)[t]
			}
			if sum := floats.Sum(perStep); !eq(sum, agg.total[t]) {
				violation("aggregate of %s at t=%d is %v, flows sum to %v", agg.name, t, agg.total[t], sum)
			}
		}
		if t > 0 && !le(tr.W[t-1], tr.W[t]) {
			violation("W decreases at t=%d", t)
		}
		if c.BufMin == nil && !eq(tr.L[t], tr.L[0]) {
			violation("loss changes at t=%d without a buffer bound", t)
		}
	}
	return errs
}
