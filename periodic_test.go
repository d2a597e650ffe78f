package ccac

import (
	"math/big"
	"testing"

	"github.com/iti/ccac/smt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakePeriodicRange(t *testing.T) {
	m, err := Build(DefaultConfig())
	require.NoError(t, err)
	assert.ErrorIs(t, MakePeriodic(m, 0), ErrPeriod)
	assert.ErrorIs(t, MakePeriodic(m, m.Config.T), ErrPeriod)
}

func TestMakePeriodicAdmitsSteadyTrace(t *testing.T) {
	for _, dur := range []int{1, 2, 3} {
		m, err := Build(steadyConfig())
		require.NoError(t, err)
		before := m.Solver.Len()
		require.NoError(t, MakePeriodic(m, dur))
		assert.Greater(t, m.Solver.Len(), before)
		assert.NoError(t, m.Solver.Verify(steadyAssignment(t, m)), "dur %d", dur)
	}
}

func TestMakePeriodicRejectsDrainingQueue(t *testing.T) {
	m, err := Build(steadyConfig())
	require.NoError(t, err)
	require.NoError(t, MakePeriodic(m, 1))

	// a second byte in flight at the start that is never served breaks the
	// repetition of bytes in flight
	a := steadyAssignment(t, m)
	setReal(a, afName(0, 0), 1)
	setReal(a, "A_0", 1)
	assert.Error(t, m.Solver.Verify(a))
}

func TestMakePeriodicClosesPluginState(t *testing.T) {
	c := DefaultConfig()
	c.App = AppBBABR
	m, err := Build(c)
	require.NoError(t, err)
	before := m.Solver.Len()
	require.NoError(t, MakePeriodic(m, 2))

	plain, err := Build(DefaultConfig())
	require.NoError(t, err)
	plainBefore := plain.Solver.Len()
	require.NoError(t, MakePeriodic(plain, 2))

	// AIMD and the video client both add their own repetition constraints
	assert.Greater(t, m.Solver.Len()-before, plain.Solver.Len()-plainBefore)
}

func TestMakePeriodicServiceAdvancesByCapacity(t *testing.T) {
	m, err := Build(steadyConfig())
	require.NoError(t, err)
	const dur = 2
	require.NoError(t, MakePeriodic(m, dur))

	// no waste: every period serves exactly C*dur
	a := steadyAssignment(t, m)
	require.NoError(t, m.Solver.Verify(a))
	tr, err := m.Vars.Trace(a)
	require.NoError(t, err)
	for ts := dur; ts < m.Config.T; ts++ {
		assert.InDelta(t, 0, tr.W[ts]-tr.W[ts-dur], 1e-9)
		assert.InDelta(t, m.Config.C*dur, tr.S[ts]-tr.S[ts-dur], 1e-9)
	}

	// serving 1.5 in the first period and 2 in the next, with nothing wasted
	served := smt.RealValue(big.NewRat(3, 2))
	a[sfName(0, 2)] = served
	a["S_2"] = served
	v := m.Vars
	slack := v.Ceiling(m.Config, 2).Sub(v.S[2]).Eq(v.Ceiling(m.Config, 0).Sub(v.S[0])).String()
	assert.Error(t, m.Solver.Verify(a))
	assert.Contains(t, violated(t, m, a), slack)
}
