package smt

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumIsExactDecimal(t *testing.T) {
	v, ok := Num(0.499).IsConst()
	require.True(t, ok)
	assert.Equal(t, "499/1000", v.RatString())

	v, ok = Num(2).Scale(0.1).IsConst()
	require.True(t, ok)
	assert.Equal(t, "1/5", v.RatString())
}

func TestConstantFolding(t *testing.T) {
	s := NewSolver()
	x := s.Real("x")

	assert.Equal(t, "x", x.Add(Int(0)).String())
	assert.Equal(t, "(+ x 3.0)", x.Add(Int(1), Int(2)).String())
	assert.Equal(t, "x", x.Neg().Neg().String())
	assert.Equal(t, "(* (/ 1.0 2.0) x)", x.Div(2).String())
	assert.Equal(t, "(* (- 1.0) x)", x.Scale(-2).Div(2).String())
	assert.Equal(t, True, Int(1).LT(Int(2)))
	assert.Equal(t, False, Int(1).Eq(Int(2)))
	assert.Equal(t, False, And(x.GE(Int(0)), False))
	assert.Equal(t, True, Or(x.GE(Int(0)), True))
	assert.Equal(t, "(<= 0.0 x)", x.GE(Int(0)).String())
}

func TestMulRejectsNonLinear(t *testing.T) {
	s := NewSolver()
	x, y := s.Real("x"), s.Real("y")
	assert.Panics(t, func() { x.Mul(y) })
	assert.Equal(t, "(* 3.0 x)", x.Mul(Int(3)).String())
}

func TestRedeclareWithOtherSortPanics(t *testing.T) {
	s := NewSolver()
	s.Real("v")
	assert.NotPanics(t, func() { s.Real("v") })
	assert.Panics(t, func() { s.Bool("v") })
}

func TestKeyIgnoresOrderAndDuplicates(t *testing.T) {
	build := func(order []int, dup bool) *Solver {
		s := NewSolver()
		x, y := s.Real("x"), s.Real("y")
		all := []Bool{x.LE(y), y.GE(Int(0)), Or(x.Eq(y), x.GT(Int(4)))}
		for _, i := range order {
			s.Add(all[i])
		}
		if dup {
			s.Add(all[0])
		}
		return s
	}
	a := build([]int{0, 1, 2}, false)
	b := build([]int{2, 0, 1}, true)
	assert.Equal(t, a.Key(), b.Key())

	// commutative operands
	c := NewSolver()
	x, y := c.Real("x"), c.Real("y")
	c.Add(x.Add(y).Eq(Int(1)))
	d := NewSolver()
	y2, x2 := d.Real("y"), d.Real("x")
	d.Add(Int(1).Eq(y2.Add(x2)))
	assert.Equal(t, c.Key(), d.Key())
}

func TestKeyKeepsOrderForCores(t *testing.T) {
	build := func(swap bool) *Solver {
		s := NewSolver()
		s.Opts.UnsatCore = true
		x := s.Real("x")
		pos, neg := x.GT(Int(0)), x.LT(Int(-5))
		if swap {
			pos, neg = neg, pos
		}
		s.Add(pos, neg)
		return s
	}
	a, b := build(false), build(true)
	assert.NotEqual(t, a.Key(), b.Key())
	assert.Equal(t, a.Key(), build(false).Key())

	// a repeated assertion takes a name of its own
	c := build(false)
	c.Add(c.Assertions()[0])
	assert.NotEqual(t, a.Key(), c.Key())

	a.Opts.UnsatCore, b.Opts.UnsatCore = false, false
	assert.Equal(t, a.Key(), b.Key())
}

func TestKeySeparatesDistinctSets(t *testing.T) {
	a := NewSolver()
	x := a.Real("x")
	a.Add(x.LT(Int(1)))

	b := NewSolver()
	x = b.Real("x")
	b.Add(x.LE(Int(1)))

	assert.NotEqual(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key([]byte("cfg1")), a.Key([]byte("cfg2")))

	// a - b and b - a are not the same term
	c := NewSolver()
	p, q := c.Real("p"), c.Real("q")
	c.Add(p.Sub(q).GE(Int(0)))
	d := NewSolver()
	p, q = d.Real("p"), d.Real("q")
	d.Add(q.Sub(p).GE(Int(0)))
	assert.NotEqual(t, c.Key(), d.Key())

	e := a.Clone()
	e.Opts.UnsatCore = true
	assert.NotEqual(t, a.Key(), e.Key())
}

func TestCloneIsIndependent(t *testing.T) {
	a := NewSolver()
	x := a.Real("x")
	a.Add(x.GE(Int(0)))
	b := a.Clone()
	b.Add(x.LE(Int(-1)))
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 2, b.Len())
}

func TestWriteScript(t *testing.T) {
	s := NewSolver()
	s.Opts.UnsatCore = true
	x := s.Real("x")
	b := s.Bool("b,1")
	s.Add(Implies(b, x.GT(Num(0.5))))
	script := s.String()
	assert.Contains(t, script, "(declare-fun x () Real)")
	assert.Contains(t, script, "(declare-fun |b,1| () Bool)")
	assert.Contains(t, script, "(assert (! (=> |b,1| (< (/ 1.0 2.0) x)) :named a0))")
}

func TestVerify(t *testing.T) {
	s := NewSolver()
	x, y := s.Real("x"), s.Real("y")
	b := s.Bool("b")
	s.Add(x.Add(y).Eq(Int(3)), Implies(b, x.GT(y)), If(b, x, y).GE(Int(2)))

	good := Assignment{"x": RealValue(big.NewRat(2, 1)), "y": RealValue(big.NewRat(1, 1)), "b": BoolValue(true)}
	assert.NoError(t, s.Verify(good))

	bad := Assignment{"x": RealValue(big.NewRat(1, 1)), "y": RealValue(big.NewRat(2, 1)), "b": BoolValue(true)}
	var ve *ViolationError
	require.ErrorAs(t, s.Verify(bad), &ve)
	assert.Equal(t, 1, ve.Index)

	assert.ErrorIs(t, s.Verify(Assignment{"x": RealValue(big.NewRat(1, 1))}), ErrUnassigned)
}

func TestAssignmentJSON(t *testing.T) {
	a := Assignment{"x": RealValue(big.NewRat(-3, 2)), "b": BoolValue(false)}
	raw, err := json.Marshal(a)
	require.NoError(t, err)

	var back Assignment
	require.NoError(t, json.Unmarshal(raw, &back))
	f, ok := back.Float("x")
	require.True(t, ok)
	assert.Equal(t, -1.5, f)
	v, ok := back.Truth("b")
	require.True(t, ok)
	assert.False(t, v)
}

func TestParseSexps(t *testing.T) {
	exprs, err := parseSexps("sat ; comment\n((x (- 1.5)) (|a b| (/ 1.0 3.0)) (c true))\n(error \"model is not \"\"available\"\"\")")
	require.NoError(t, err)
	require.Len(t, exprs, 3)
	assert.Equal(t, "sat", exprs[0].atom)

	a, err := parseAssignment(exprs[1])
	require.NoError(t, err)
	assert.Equal(t, "-3/2", a["x"].String())
	assert.Equal(t, "1/3", a["a b"].String())
	assert.True(t, a["c"].Bool)

	assert.True(t, isError(exprs[2]))
	assert.Equal(t, `model is not "available"`, exprs[2].list[1].atom)

	_, err = parseSexps("((x 1)")
	assert.ErrorIs(t, err, errUnbalanced)
}

func TestParseOutput(t *testing.T) {
	out, err := parseOutput("sat\n((x 2.0) (b false))\n(error \"line 9: unsat core is not available\")\n(error \"x\")\n")
	require.NoError(t, err)
	assert.Equal(t, Sat, out.Result)
	assert.Equal(t, "2", out.Model["x"].String())

	out, err = parseOutput("unsat\n(error \"line 7: model is not available\")\n(a0 a3)\n(:reason-unknown \"\")\n")
	require.NoError(t, err)
	assert.Equal(t, Unsat, out.Result)
	assert.Equal(t, []string{"a0", "a3"}, out.Core)

	out, err = parseOutput("unknown\n((x 0.0))\n(:reason-unknown \"timeout\")\n")
	require.NoError(t, err)
	assert.Equal(t, Unknown, out.Result)
	assert.Nil(t, out.Model)
	assert.Equal(t, "timeout", out.Reason)

	_, err = parseOutput("(error \"bad declaration\")")
	assert.Error(t, err)
}

func TestZ3Script(t *testing.T) {
	s := NewSolver()
	s.Opts.Simplify = true
	x := s.Real("x")
	s.Add(x.GT(Int(0)))
	script := NewZ3().Script(s, 1500*time.Millisecond)
	assert.True(t, strings.HasPrefix(script, "(set-option :timeout 1500)"))
	assert.Contains(t, script, "(check-sat-using (then simplify solve-eqs smt))")
	assert.Contains(t, script, "(get-value (x))")
	assert.NotContains(t, script, "get-unsat-core")
}

func requireZ3(t *testing.T) *Z3 {
	t.Helper()
	z := NewZ3()
	if !z.Available() {
		t.Skip("z3 not found in PATH")
	}
	return z
}

func TestZ3SolvesSmallProblems(t *testing.T) {
	z := requireZ3(t)
	ctx := context.Background()

	s := NewSolver()
	x, y := s.Real("x"), s.Real("y")
	s.Add(x.Add(y).Eq(Num(1.5)), x.GT(y), y.GT(Int(0)))
	out, err := z.Solve(ctx, s, 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, Sat, out.Result)
	assert.NoError(t, s.Verify(out.Model))

	u := s.Clone()
	u.Opts.UnsatCore = true
	u.Add(y.GT(x))
	out, err = z.Solve(ctx, u, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, Unsat, out.Result)
	assert.NotEmpty(t, out.Core)
}
