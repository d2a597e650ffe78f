package ccac

import (
	"fmt"

	"github.com/iti/ccac/smt"
)

// Variables holds the symbolic series describing one trace. Per-flow series
// are indexed [flow][timestep], qdel is indexed [timestep][lookback].
type Variables struct {
	// cumulative bytes handed to the network by each flow
	Af [][]smt.Real
	// cumulative bytes lost, and lost as far as the sender can tell
	Lf, Ldf [][]smt.Real
	// cumulative bytes delivered (acknowledged)
	Sf [][]smt.Real
	// congestion window and pacing rate
	Cwnd, Rate [][]smt.Real
	// retransmission timeout firing
	Timeout [][]smt.Bool

	// aggregates over flows, and the cumulative wasted capacity
	A, L, S, W []smt.Real

	// Qdel[t][dt] holds when the bytes serviced at t entered the network
	// between t-dt-1 and t-dt; nil unless CalculateQdel is set
	Qdel [][]smt.Bool

	Alpha   smt.Real
	Epsilon smt.Real
	DupAcks smt.Real

	n, t int
}

// variable names, so an assignment can be read back into series
func afName(n, t int) string      { return fmt.Sprintf("A_f_%d_%d", n, t) }
func lfName(n, t int) string      { return fmt.Sprintf("L_f_%d_%d", n, t) }
func ldfName(n, t int) string     { return fmt.Sprintf("Ld_f_%d_%d", n, t) }
func sfName(n, t int) string      { return fmt.Sprintf("S_f_%d_%d", n, t) }
func cwndName(n, t int) string    { return fmt.Sprintf("c_f_%d_%d", n, t) }
func rateName(n, t int) string    { return fmt.Sprintf("r_f_%d_%d", n, t) }
func timeoutName(n, t int) string { return fmt.Sprintf("timeout_f_%d_%d", n, t) }
func qdelName(t, dt int) string   { return fmt.Sprintf("qdel_%d_%d", t, dt) }

// NewVariables declares every series the configuration calls for on s.
func NewVariables(c *ModelConfig, s *smt.Solver) *Variables {
	v := &Variables{n: c.N, t: c.T}

	perFlow := func(name func(n, t int) string) [][]smt.Real {
		out := make([][]smt.Real, c.N)
		for n := range out {
			out[n] = make([]smt.Real, c.T)
			for t := range out[n] {
				out[n][t] = s.Real(name(n, t))
			}
		}
		return out
	}
	aggregate := func(prefix string) []smt.Real {
		out := make([]smt.Real, c.T)
		for t := range out {
			out[t] = s.Real(fmt.Sprintf("%s_%d", prefix, t))
		}
		return out
	}

	v.Af = perFlow(afName)
	v.Lf = perFlow(lfName)
	v.Ldf = perFlow(ldfName)
	v.Sf = perFlow(sfName)
	v.Cwnd = perFlow(cwndName)
	v.Rate = perFlow(rateName)

	v.Timeout = make([][]smt.Bool, c.N)
	for n := range v.Timeout {
		v.Timeout[n] = make([]smt.Bool, c.T)
		for t := range v.Timeout[n] {
			v.Timeout[n][t] = s.Bool(timeoutName(n, t))
		}
	}

	v.A = aggregate("A")
	v.L = aggregate("L")
	v.S = aggregate("S")
	v.W = aggregate("W")

	if c.CalculateQdel {
		v.Qdel = make([][]smt.Bool, c.T)
		for t := range v.Qdel {
			v.Qdel[t] = make([]smt.Bool, c.T)
			for dt := range v.Qdel[t] {
				v.Qdel[t][dt] = s.Bool(qdelName(t, dt))
			}
		}
	}

	if c.Alpha != nil {
		v.Alpha = smt.Num(*c.Alpha)
	} else {
		v.Alpha = s.Real("alpha")
	}
	if c.DupAcks != nil {
		v.DupAcks = smt.Num(*c.DupAcks)
	} else {
		v.DupAcks = s.Real("dupacks")
	}
	v.Epsilon = s.Real("epsilon")
	return v
}

// Ceiling is the work-conserving service ceiling C*t - W[t].
func (v *Variables) Ceiling(c *ModelConfig, t int) smt.Real {
	return smt.Num(c.C).ScaleInt(t).Sub(v.W[t])
}

// Series names the per-flow and aggregate series an assignment can be read into.
type Series string

const (
	SeriesArrival  Series = "A_f"
	SeriesLoss     Series = "L_f"
	SeriesDetected Series = "Ld_f"
	SeriesService  Series = "S_f"
	SeriesCwnd     Series = "c_f"
	SeriesRate     Series = "r_f"
)

// Trace holds the concrete values of one satisfying assignment.
type Trace struct {
	Af, Lf, Ldf, Sf, Cwnd, Rate [][]float64
	Timeout                     [][]bool
	A, L, S, W                  []float64
	Qdel                        [][]bool
	Alpha, Epsilon, DupAcks     float64
}

func evalFloat(x smt.Real, a smt.Assignment) (float64, error) {
	r, err := smt.EvalReal(x, a)
	if err != nil {
		return 0, err
	}
	f, _ := r.Float64()
	return f, nil
}

// Trace reads every series out of a satisfying assignment.
func (v *Variables) Trace(a smt.Assignment) (*Trace, error) {
	tr := &Trace{}
	var err error

	floats := func(xs []smt.Real) []float64 {
		out := make([]float64, len(xs))
		for i, x := range xs {
			if err != nil {
				return out
			}
			out[i], err = evalFloat(x, a)
		}
		return out
	}
	flows := func(xs [][]smt.Real) [][]float64 {
		out := make([][]float64, len(xs))
		for n := range xs {
			out[n] = floats(xs[n])
		}
		return out
	}
	bools := func(xs []smt.Bool) []bool {
		out := make([]bool, len(xs))
		for i, x := range xs {
			if err != nil {
				return out
			}
			out[i], err = smt.EvalBool(x, a)
		}
		return out
	}

	tr.Af, tr.Lf, tr.Ldf, tr.Sf = flows(v.Af), flows(v.Lf), flows(v.Ldf), flows(v.Sf)
	tr.Cwnd, tr.Rate = flows(v.Cwnd), flows(v.Rate)
	tr.Timeout = make([][]bool, len(v.Timeout))
	for n := range v.Timeout {
		tr.Timeout[n] = bools(v.Timeout[n])
	}
	tr.A, tr.L, tr.S, tr.W = floats(v.A), floats(v.L), floats(v.S), floats(v.W)
	if v.Qdel != nil {
		tr.Qdel = make([][]bool, len(v.Qdel))
		for t := range v.Qdel {
			tr.Qdel[t] = bools(v.Qdel[t])
		}
	}
	consts := floats([]smt.Real{v.Alpha, v.Epsilon, v.DupAcks})
	tr.Alpha, tr.Epsilon, tr.DupAcks = consts[0], consts[1], consts[2]
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// Flow returns the named per-flow series of a trace.
func (tr *Trace) Flow(name Series, n int) []float64 {
	switch name {
	case SeriesArrival:
		return tr.Af[n]
	case SeriesLoss:
		return tr.Lf[n]
	case SeriesDetected:
		return tr.Ldf[n]
	case SeriesService:
		return tr.Sf[n]
	case SeriesCwnd:
		return tr.Cwnd[n]
	case SeriesRate:
		return tr.Rate[n]
	}
	return nil
}
