package proofs

import (
	"fmt"

	"github.com/iti/ccac"
	"github.com/iti/ccac/smt"
)

// NoLossWithoutBuffer asks whether a single constant-rate flow can lose
// bytes when no buffer bound is configured. Loss is pinned to its initial
// value there, so it cannot.
func NoLossWithoutBuffer() (*ccac.Model, error) {
	c := ccac.DefaultConfig()
	c.T = 5
	c.CCA = ccac.CCAConst

	m, err := ccac.Build(c)
	if err != nil {
		return nil, err
	}
	v := m.Vars
	m.Solver.Add(v.L[0].Eq(smt.Int(0)))
	lossy := make([]smt.Bool, c.T)
	for t := range lossy {
		lossy[t] = v.L[t].GT(smt.Int(0))
	}
	m.Solver.Add(smt.Or(lossy...))
	return m, nil
}

// FixedRateFairness asks whether one of two identical fixed-rate flows can
// take more than half the link in steady state.
func FixedRateFairness() (*ccac.Model, error) {
	c := ccac.DefaultConfig()
	c.N = 2
	c.CCA = ccac.CCAConst
	c.Compose = false
	c.CalculateQdel = true

	m, err := ccac.Build(c)
	if err != nil {
		return nil, err
	}
	s, v := m.Solver, m.Vars
	s.Add(v.L[0].Eq(smt.Int(0)))
	s.Add(v.Alpha.LT(smt.Int(2)))
	s.Add(v.Cwnd[0][0].Eq(v.Cwnd[1][0]))
	s.Add(v.Af[0][0].Eq(v.Af[1][0]))

	last := c.T - 1
	s.Add(v.Sf[0][last].Sub(v.Sf[1][last]).GT(smt.Num(0.499 * c.C * float64(c.T))))

	if err := ccac.MakePeriodic(m, 2*c.R+2*c.D); err != nil {
		return nil, err
	}
	return m, nil
}

// AIMDSteadyState asks whether AIMD, having entered steady state with a
// buffer of one BDP, can leave it: undetected loss starts below
// C*(R+D) + alpha and ends above it. The application is a buffer-based video
// client with chunks comparable to the BDP.
func AIMDSteadyState() (*ccac.Model, error) {
	c := ccac.DefaultConfig()
	c.BufMin = ccac.F(1)
	c.BufMax = ccac.F(1)
	c.T = 12
	c.App = ccac.AppBBABR

	m, err := ccac.Build(c)
	if err != nil {
		return nil, err
	}
	s, v := m.Solver, m.Vars
	bdp := c.C * float64(c.R+c.D)
	maxCwnd := smt.Num(bdp + *c.BufMin).Add(v.Alpha)
	maxUndet := smt.Num(bdp).Add(v.Alpha)
	undetected := func(t int) smt.Real { return v.Lf[0][t].Sub(v.Ldf[0][t]) }

	app, err := videoClient(m, 0)
	if err != nil {
		return nil, err
	}
	s.Add(app.ChS[0].GE(smt.Num(0.5 * bdp)))
	s.Add(app.ChS[app.NC-1].GE(smt.Num(1.5 * bdp)))

	s.Add(undetected(0).LE(maxUndet))
	s.Add(v.Cwnd[0][0].LE(maxCwnd))
	s.Add(v.Alpha.LT(smt.Rat(1, 3)))
	s.Add(undetected(c.T - 3).GT(maxUndet))
	return m, nil
}

// AIMDCanIncrease asks for any trace in which AIMD earns a window increase.
func AIMDCanIncrease(appsafe bool) (*ccac.Model, error) {
	m, st, err := aimdModel(appsafe)
	if err != nil {
		return nil, err
	}
	var earned []smt.Bool
	for t := 0; t < m.Config.T; t++ {
		earned = append(earned, st.IncrF[0][t])
	}
	m.Solver.Add(smt.Or(earned...))
	return m, nil
}

// AIMDIncreasesWhenAcked asks whether AIMD can fail to earn an increase at
// t=4 although a full window was acknowledged over the preceding timestep.
func AIMDIncreasesWhenAcked(appsafe bool) (*ccac.Model, error) {
	m, st, err := aimdModel(appsafe)
	if err != nil {
		return nil, err
	}
	v := m.Vars
	var conds []smt.Bool
	for t := 4; t < 5; t++ {
		conds = append(conds, smt.And(
			v.S[t].Sub(v.S[t-1]).GE(v.Cwnd[0][t]),
			smt.Not(st.IncrF[0][t])))
	}
	m.Solver.Add(smt.Or(conds...))
	return m, nil
}

func aimdModel(appsafe bool) (*ccac.Model, *ccac.AIMDState, error) {
	c := ccac.DefaultConfig()
	c.AIMDIncrIrrespective = false
	c.Simplify = true
	if appsafe {
		c.CCA = ccac.CCAAIMDAppsafe
	}
	m, err := ccac.Build(c)
	if err != nil {
		return nil, nil, err
	}
	st, ok := m.CCA.(*ccac.AIMDState)
	if !ok {
		return nil, nil, fmt.Errorf("proofs: %s model carries %T", c.CCA, m.CCA)
	}
	return m, st, nil
}

// BBABRLowThroughput searches for a loss-free trace in which a buffer-based
// video client over AIMD ends with a smaller window than at t=2 while the
// link delivers under a tenth of its capacity.
func BBABRLowThroughput() (*ccac.Model, error) {
	c := ccac.DefaultConfig()
	c.T = 5
	c.BufMin = ccac.F(2)
	c.App = ccac.AppBBABR

	m, err := ccac.Build(c)
	if err != nil {
		return nil, err
	}
	s, v := m.Solver, m.Vars
	s.Add(v.Alpha.LE(smt.Num(0.1 * c.C * float64(c.R))))
	s.Add(v.L[0].Eq(smt.Int(0)))

	const x = 2
	last := c.T - 1
	s.Add(v.Af[0][0].Eq(v.Cwnd[0][0]))
	s.Add(v.Cwnd[0][last].LT(v.Cwnd[0][x]))
	s.Add(v.S[last].Sub(v.S[x]).LE(smt.Num(0.1 * c.C * float64(c.T-x))))
	for t := 0; t < c.T; t++ {
		s.Add(smt.Not(v.Timeout[0][t]))
	}
	return m, nil
}

// BBABRBuffering searches for a trace, periodic with period one, in which
// a buffer-based video client over application-safe AIMD has an empty
// playback buffer for buffering consecutive timesteps. The lowest bitrate is
// below the link rate and the client knows the link rate when placing its
// thresholds.
func BBABRBuffering(T, buffering int) (*ccac.Model, error) {
	c := ccac.DefaultConfig()
	c.T = T
	c.BufMin = ccac.F(1)
	c.BufMax = ccac.F(1)
	c.CCA = ccac.CCAAIMDAppsafe
	c.App = ccac.AppBBABR
	if buffering < 1 || buffering >= T {
		return nil, fmt.Errorf("proofs: %d buffering timesteps do not fit in %d", buffering, T)
	}

	m, err := ccac.Build(c)
	if err != nil {
		return nil, err
	}
	s, v := m.Solver, m.Vars
	app, err := videoClient(m, 0)
	if err != nil {
		return nil, err
	}

	s.Add(v.Alpha.LE(smt.Num(0.25 * c.C * float64(c.R))))
	s.Add(app.ChS[0].Add(smt.Num(*c.BufMin)).Scale(1 / c.C).Add(smt.Int(c.D)).LE(app.ChunkTime))
	s.Add(app.ChunkTime.GE(smt.Int(2 * c.R)))
	for i := 1; i < app.NC; i++ {
		s.Add(app.ChT[i].GT(app.ChS[i].Scale(1 / c.C)))
	}
	for t := 0; t < c.T; t++ {
		s.Add(smt.Not(v.Timeout[0][t]))
	}

	var stalls []smt.Bool
	for t := 0; t < c.T-buffering; t++ {
		var empty []smt.Bool
		for i := t; i < t+buffering; i++ {
			empty = append(empty, app.B[i].Eq(smt.Int(0)))
		}
		stalls = append(stalls, smt.And(empty...))
	}
	s.Add(smt.Or(stalls...))

	if err := ccac.MakePeriodic(m, 1); err != nil {
		return nil, err
	}
	return m, nil
}

func videoClient(m *ccac.Model, n int) (*ccac.BufferBasedState, error) {
	switch st := m.Apps[n].(type) {
	case *ccac.BufferBasedState:
		return st, nil
	case *ccac.PaddedState:
		return &st.BufferBasedState, nil
	}
	return nil, fmt.Errorf("proofs: flow %d runs %s, not a video client", n, m.Apps[n].Kind())
}
