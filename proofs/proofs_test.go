package proofs

import (
	"context"
	"testing"
	"time"

	"github.com/iti/ccac"
	"github.com/iti/ccac/cache"
	"github.com/iti/ccac/logging"
	"github.com/iti/ccac/smt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamesAndLookup(t *testing.T) {
	names := Names()
	assert.Contains(t, names, "no_loss_without_buffer")
	assert.Contains(t, names, "fixed_rate_fairness")
	assert.Contains(t, names, "bb_abr_buffering")
	assert.IsIncreasing(t, names)

	p, err := Lookup("aimd_can_increase")
	require.NoError(t, err)
	assert.Equal(t, smt.Sat, p.Expect)

	_, err = Lookup("no_such_proof")
	assert.Error(t, err)
}

func TestEveryProofBuilds(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			p, err := Lookup(name)
			require.NoError(t, err)
			m, err := p.Build()
			require.NoError(t, err)
			assert.Greater(t, m.Solver.Len(), 0)
		})
	}
}

func TestBBABRBufferingRejectsWindow(t *testing.T) {
	_, err := BBABRBuffering(5, 5)
	assert.Error(t, err)
	_, err = BBABRBuffering(5, 0)
	assert.Error(t, err)
}

func TestReportHolds(t *testing.T) {
	p := &Proof{Name: "p", Expect: smt.Unsat}
	assert.True(t, (&Report{Proof: p, Result: &ccac.QueryResult{Satisfiable: smt.Unsat}}).Holds())
	assert.False(t, (&Report{Proof: p, Result: &ccac.QueryResult{Satisfiable: smt.Sat}}).Holds())
	assert.False(t, (&Report{Proof: p, Result: &ccac.QueryResult{Satisfiable: smt.Unknown}}).Holds())

	explore := &Proof{Name: "e", Exploratory: true}
	r := &Report{Proof: explore, Result: &ccac.QueryResult{Satisfiable: smt.Sat}}
	assert.False(t, r.Holds())
	assert.Equal(t, "e: sat", r.String())
}

func solverRunner(t *testing.T) *ccac.Runner {
	t.Helper()
	z := smt.NewZ3()
	z.Logger = logging.Nop()
	if !z.Available() {
		t.Skip("z3 not on PATH")
	}
	return ccac.NewRunner(z, cache.New(), logging.Nop())
}

func TestProofsWithSolver(t *testing.T) {
	runner := solverRunner(t)
	for _, name := range []string{
		"no_loss_without_buffer",
		"aimd_can_increase",
		"aimd_appsafe_can_increase",
		"aimd_increases_when_acked",
		"aimd_appsafe_increases_when_acked",
		"fixed_rate_fairness",
	} {
		t.Run(name, func(t *testing.T) {
			p, err := Lookup(name)
			require.NoError(t, err)
			rep, err := Run(context.Background(), runner, p, 2*time.Minute)
			require.NoError(t, err)
			if rep.Result.Satisfiable == smt.Unknown {
				t.Skipf("solver undecided: %s", rep.Result.Reason)
			}
			assert.True(t, rep.Holds(), rep.String())
			if rep.Result.Satisfiable == smt.Sat {
				assert.NoError(t, rep.Model.Solver.Verify(rep.Result.Model))
				assert.Empty(t, ccac.CheckTrace(rep.Model, rep.Result.Model))
			}
		})
	}
}
