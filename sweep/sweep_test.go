package sweep

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iti/ccac"
	"github.com/iti/ccac/logging"
	"github.com/iti/ccac/smt"
	"github.com/iti/rngstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingBackend answers Unsat without running a solver.
type countingBackend struct {
	calls atomic.Int32
	fail  bool
}

func (b *countingBackend) Solve(ctx context.Context, s *smt.Solver, timeout time.Duration) (smt.Outcome, error) {
	b.calls.Add(1)
	if b.fail {
		return smt.Outcome{}, errors.New("backend down")
	}
	return smt.Outcome{Result: smt.Unsat}, nil
}

func bufferGrid() *Grid {
	base := ccac.DefaultConfig()
	base.T = 4
	return &Grid{
		Base: base,
		Axes: []Axis{
			{Param: "buf_min", Values: []string{"none", "0.5", "1", "2"}},
			{Param: "cca", Values: []string{"const", "aimd"}},
		},
	}
}

func TestExpand(t *testing.T) {
	g := bufferGrid()
	points, err := g.Expand()
	require.NoError(t, err)
	require.Len(t, points, 8)
	assert.Equal(t, 8, g.Size())

	assert.Nil(t, points[0].Config.BufMin)
	assert.Equal(t, ccac.CCAConst, points[0].Config.CCA)
	assert.Equal(t, ccac.CCAAIMD, points[1].Config.CCA)
	require.NotNil(t, points[7].Config.BufMin)
	assert.Equal(t, 2.0, *points[7].Config.BufMin)
	assert.Equal(t, "buf_min=2,cca=aimd", points[7].String())

	// the base is left alone
	assert.Nil(t, g.Base.BufMin)
}

func TestExpandRejects(t *testing.T) {
	_, err := (&Grid{}).Expand()
	assert.Error(t, err)

	g := bufferGrid()
	g.Axes = append(g.Axes, Axis{Param: "t", Values: nil})
	_, err = g.Expand()
	assert.Error(t, err)

	g = bufferGrid()
	g.Axes = []Axis{{Param: "cca", Values: []string{"reno"}}}
	_, err = g.Expand()
	assert.ErrorIs(t, err, ccac.ErrConfiguration)
}

func TestSample(t *testing.T) {
	points, err := bufferGrid().Expand()
	require.NoError(t, err)

	indexes := func(ps []Point) []int {
		var out []int
		for _, p := range ps {
			out = append(out, p.Index)
		}
		return out
	}

	a := Sample(points, 3, Stream("sweep-test"))
	// streams created in between must not change the draw
	rngstream.New("unrelated").RandU01()
	b := Sample(points, 3, Stream("sweep-test"))
	require.Len(t, a, 3)
	assert.Equal(t, indexes(a), indexes(b))
	for i := 1; i < len(a); i++ {
		assert.Less(t, a[i-1].Index, a[i].Index)
	}
	assert.Len(t, Sample(points, 20, Stream("sweep-test")), len(points))

	differs := false
	for _, seed := range []string{"1", "2", "3", "4", "5"} {
		if !assert.ObjectsAreEqual(indexes(a), indexes(Sample(points, 3, Stream(seed)))) {
			differs = true
		}
	}
	assert.True(t, differs, "the seed has no effect on the sample")
}

func TestRun(t *testing.T) {
	points, err := bufferGrid().Expand()
	require.NoError(t, err)

	backend := &countingBackend{}
	runner := ccac.NewRunner(backend, nil, logging.Nop())
	var props atomic.Int32
	prop := func(m *ccac.Model) error {
		props.Add(1)
		m.Solver.Add(m.Vars.L[0].GT(smt.Int(0)))
		return nil
	}

	results, err := Run(context.Background(), runner, points, prop, Options{Timeout: time.Second, Parallelism: 3})
	require.NoError(t, err)
	require.Len(t, results, len(points))
	for i, r := range results {
		assert.Equal(t, i, r.Point.Index)
		assert.Equal(t, smt.Unsat, r.Result.Satisfiable)
	}
	assert.Equal(t, int32(len(points)), backend.calls.Load())
	assert.Equal(t, int32(len(points)), props.Load())
}

func TestRunStopsOnFailure(t *testing.T) {
	points, err := bufferGrid().Expand()
	require.NoError(t, err)

	runner := ccac.NewRunner(&countingBackend{fail: true}, nil, logging.Nop())
	_, err = Run(context.Background(), runner, points, nil, Options{})
	assert.ErrorContains(t, err, "backend down")
}
