package ccac

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/iti/ccac/smt"
	"github.com/stretchr/testify/require"
)

// steadyConfig is one constant-window flow with alpha and dupacks fixed at 1,
// so the model declares nothing beyond the core series.
func steadyConfig() *ModelConfig {
	c := DefaultConfig()
	c.T = 4
	c.CCA = CCAConst
	c.Alpha = F(1)
	c.DupAcks = F(1)
	return c
}

// zeroAssignment gives every declared real 0 and every boolean false.
func zeroAssignment(s *smt.Solver) smt.Assignment {
	a := smt.Assignment{}
	for _, name := range s.Vars(smt.SortReal) {
		a[name] = smt.RealValue(new(big.Rat))
	}
	for _, name := range s.Vars(smt.SortBool) {
		a[name] = smt.BoolValue(false)
	}
	return a
}

func setReal(a smt.Assignment, name string, v int64) {
	a[name] = smt.RealValue(big.NewRat(v, 1))
}

// steadyAssignment is a trace of the steadyConfig model by hand: the link
// serves one byte per timestep, the window of one byte is always full and
// nothing is lost or wasted.
func steadyAssignment(t *testing.T, m *Model) smt.Assignment {
	t.Helper()
	a := zeroAssignment(m.Solver)
	for ts := 0; ts < m.Config.T; ts++ {
		setReal(a, afName(0, ts), int64(ts))
		setReal(a, sfName(0, ts), int64(ts))
		setReal(a, cwndName(0, ts), 1)
		setReal(a, rateName(0, ts), 100)
		setReal(a, fmt.Sprintf("A_%d", ts), int64(ts))
		setReal(a, fmt.Sprintf("S_%d", ts), int64(ts))
	}
	require.Len(t, a, len(m.Solver.Vars(smt.SortReal))+len(m.Solver.Vars(smt.SortBool)))
	return a
}
