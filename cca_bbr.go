package ccac

import (
	"fmt"

	"github.com/iti/ccac/smt"
)

// BBRState holds the variables of the BBR-like algorithm. Exactly one Phase
// boolean per flow is true; it picks where in the gain cycle the flow was
// at t=0, and the cycle advances one entry per RTT from there.
type BBRState struct {
	Gains []float64
	Phase [][]smt.Bool
	Est   [][]smt.Real
}

func (*BBRState) Kind() CCAKind { return CCABBR }

type bbrCCA struct{}

func (bbrCCA) Kind() CCAKind { return CCABBR }

func (bbrCCA) Extend(c *ModelConfig, s *smt.Solver, v *Variables) (CCAState, error) {
	cfg := c.BBR
	if cfg == nil {
		cfg = DefaultBBRConfig()
	}
	k := len(cfg.Gains)
	st := &BBRState{Gains: cfg.Gains}
	st.Phase = make([][]smt.Bool, c.N)
	st.Est = make([][]smt.Real, c.N)

	window := cfg.WindowRTTs * c.R
	floor := v.Alpha.Div(float64(c.R))

	for n := 0; n < c.N; n++ {
		st.Phase[n] = make([]smt.Bool, k)
		for p := 0; p < k; p++ {
			st.Phase[n][p] = s.Bool(fmt.Sprintf("bbr_phase_%d_%d", n, p))
		}
		s.Add(smt.Or(st.Phase[n]...))
		for p := 0; p < k; p++ {
			for q := p + 1; q < k; q++ {
				s.Add(smt.Not(smt.And(st.Phase[n][p], st.Phase[n][q])))
			}
		}

		st.Est[n] = make([]smt.Real, c.T)
		for t := 0; t < c.T; t++ {
			est := s.Real(fmt.Sprintf("bbr_est_%d_%d", n, t))
			st.Est[n][t] = est

			// delivery rate samples inside the window
			cands := []smt.Real{floor}
			complete := true
			for tt := t - window + 1; tt <= t; tt++ {
				if tt-c.R < 0 {
					complete = false
					continue
				}
				cands = append(cands, v.Sf[n][tt].Sub(v.Sf[n][tt-c.R]).Div(float64(c.R)))
			}
			eq := make([]smt.Bool, 0, len(cands))
			for _, x := range cands {
				s.Add(est.GE(x))
				eq = append(eq, est.Eq(x))
			}
			// samples from before the trace are unknown and may have been
			// larger than anything seen since
			if complete {
				s.Add(smt.Or(eq...))
			}

			gained := make([]smt.Real, k)
			for p := 0; p < k; p++ {
				gain := cfg.Gains[(p+t/c.R)%k]
				gained[p] = smt.If(st.Phase[n][p], est.Scale(gain), smt.Int(0))
			}
			s.Add(v.Rate[n][t].Eq(smt.Sum(gained...)))
			s.Add(v.Cwnd[n][t].Eq(est.Scale(cfg.CwndGain).ScaleInt(c.R)))
		}
	}
	return st, nil
}

// ClosePeriod repeats the bandwidth estimate.
func (st *BBRState) ClosePeriod(c *ModelConfig, s *smt.Solver, v *Variables, dur int) {
	for n := range st.Est {
		for t := dur; t < c.T; t++ {
			s.Add(st.Est[n][t].Eq(st.Est[n][t-dur]))
		}
	}
}
