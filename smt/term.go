package smt

// term.go holds the term language used to describe constraints: real-valued
// linear expressions and boolean formulas over them. Terms are immutable trees;
// every node carries a structural hash computed when it is built, which is
// what the constraint-set key in key.go is made from.

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"
	"strconv"
)

type op uint8

const (
	opNum op = iota + 1
	opTrue
	opFalse
	opRealVar
	opBoolVar
	opAdd
	opNeg
	opScale
	opLT
	opLE
	opEq
	opIff
	opNot
	opAnd
	opOr
	opImplies
	opIte
)

// commutative operators have their operands sorted by hash before hashing,
// so that a+b and b+a land on the same key
var commutative = map[op]bool{opAdd: true, opEq: true, opIff: true, opAnd: true, opOr: true}

type node struct {
	op   op
	name string   // variables only
	val  *big.Rat // numbers, and the factor of opScale
	args []*node
	hash [32]byte
}

func mkNode(o op, name string, val *big.Rat, args ...*node) *node {
	n := &node{op: o, name: name, val: val, args: args}
	h := sha256.New()
	h.Write([]byte{byte(o)})
	if name != "" {
		var lb [8]byte
		binary.BigEndian.PutUint64(lb[:], uint64(len(name)))
		h.Write(lb[:])
		h.Write([]byte(name))
	}
	if val != nil {
		vs := val.RatString()
		var lb [8]byte
		binary.BigEndian.PutUint64(lb[:], uint64(len(vs)))
		h.Write(lb[:])
		h.Write([]byte(vs))
	}
	childHashes := make([][32]byte, len(args))
	for i, a := range args {
		childHashes[i] = a.hash
	}
	if commutative[o] {
		sort.Slice(childHashes, func(i, j int) bool {
			return string(childHashes[i][:]) < string(childHashes[j][:])
		})
	}
	var cnt [8]byte
	binary.BigEndian.PutUint64(cnt[:], uint64(len(args)))
	h.Write(cnt[:])
	for _, ch := range childHashes {
		h.Write(ch[:])
	}
	copy(n.hash[:], h.Sum(nil))
	return n
}

// Real is a linear arithmetic term.
type Real struct{ n *node }

// Bool is a boolean formula.
type Bool struct{ n *node }

// Valid reports whether the term was built (the zero Real/Bool is not).
func (x Real) Valid() bool { return x.n != nil }

// Valid reports whether the formula was built.
func (b Bool) Valid() bool { return b.n != nil }

var (
	trueNode  = mkNode(opTrue, "", nil)
	falseNode = mkNode(opFalse, "", nil)
)

// True and False are the boolean constants.
var (
	True  = Bool{trueNode}
	False = Bool{falseNode}
)

// Num returns the exact decimal value of f as a constant. The shortest decimal
// representation is used so that 0.499 means 499/1000, not its binary neighbour.
func Num(f float64) Real {
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(f, 'g', -1, 64))
	if !ok {
		panic(fmt.Errorf("smt: cannot represent %v as a rational", f))
	}
	return Real{mkNode(opNum, "", r)}
}

// Int returns the integer constant i.
func Int(i int) Real {
	return Real{mkNode(opNum, "", new(big.Rat).SetInt64(int64(i)))}
}

// Rat returns the constant num/den.
func Rat(num, den int64) Real {
	return Real{mkNode(opNum, "", big.NewRat(num, den))}
}

func ratConst(r *big.Rat) Real {
	return Real{mkNode(opNum, "", r)}
}

func boolConst(v bool) Bool {
	if v {
		return True
	}
	return False
}

// IsConst reports whether x is a numeric constant, and its value.
func (x Real) IsConst() (*big.Rat, bool) {
	if x.n != nil && x.n.op == opNum {
		return new(big.Rat).Set(x.n.val), true
	}
	return nil, false
}

// Add returns x + ys[0] + ys[1] + ...; constant operands are folded.
func (x Real) Add(ys ...Real) Real {
	return Sum(append([]Real{x}, ys...)...)
}

// Sub returns x - y.
func (x Real) Sub(y Real) Real {
	return Sum(x, y.Neg())
}

// Neg returns -x.
func (x Real) Neg() Real {
	if v, ok := x.IsConst(); ok {
		return ratConst(v.Neg(v))
	}
	if x.n.op == opNeg {
		return Real{x.n.args[0]}
	}
	return Real{mkNode(opNeg, "", nil, x.n)}
}

// Scale returns k*x for a constant k.
func (x Real) Scale(k float64) Real {
	kr, _ := Num(k).IsConst()
	return x.scaleRat(kr)
}

// ScaleInt returns k*x.
func (x Real) ScaleInt(k int) Real {
	return x.scaleRat(new(big.Rat).SetInt64(int64(k)))
}

// Div returns x/k for a non-zero constant k.
func (x Real) Div(k float64) Real {
	kr, _ := Num(k).IsConst()
	if kr.Sign() == 0 {
		panic("smt: division by zero")
	}
	return x.scaleRat(kr.Inv(kr))
}

// Mul multiplies two terms. One side must be constant: the logic is linear.
func (x Real) Mul(y Real) Real {
	if k, ok := y.IsConst(); ok {
		return x.scaleRat(k)
	}
	if k, ok := x.IsConst(); ok {
		return y.scaleRat(k)
	}
	panic("smt: product of two non-constant terms is not linear")
}

func (x Real) scaleRat(k *big.Rat) Real {
	if v, ok := x.IsConst(); ok {
		return ratConst(v.Mul(v, k))
	}
	switch {
	case k.Sign() == 0:
		return Int(0)
	case k.Cmp(big.NewRat(1, 1)) == 0:
		return x
	}
	if x.n.op == opScale {
		inner := new(big.Rat).Mul(x.n.val, k)
		return Real{x.n.args[0]}.scaleRat(inner)
	}
	return Real{mkNode(opScale, "", new(big.Rat).Set(k), x.n)}
}

// Sum returns the sum of xs. Constants are folded into one trailing operand.
func Sum(xs ...Real) Real {
	acc := new(big.Rat)
	var terms []*node
	for _, x := range xs {
		if v, ok := x.IsConst(); ok {
			acc.Add(acc, v)
			continue
		}
		if x.n.op == opAdd {
			for _, a := range x.n.args {
				if a.op == opNum {
					acc.Add(acc, a.val)
				} else {
					terms = append(terms, a)
				}
			}
			continue
		}
		terms = append(terms, x.n)
	}
	if len(terms) == 0 {
		return ratConst(acc)
	}
	if acc.Sign() != 0 {
		terms = append(terms, mkNode(opNum, "", acc))
	}
	if len(terms) == 1 {
		return Real{terms[0]}
	}
	return Real{mkNode(opAdd, "", nil, terms...)}
}

func (x Real) cmp(o op, y Real) Bool {
	if a, ok := x.IsConst(); ok {
		if b, ok := y.IsConst(); ok {
			c := a.Cmp(b)
			switch o {
			case opLT:
				return boolConst(c < 0)
			case opLE:
				return boolConst(c <= 0)
			case opEq:
				return boolConst(c == 0)
			}
		}
	}
	return Bool{mkNode(o, "", nil, x.n, y.n)}
}

// LT returns x < y.
func (x Real) LT(y Real) Bool { return x.cmp(opLT, y) }

// LE returns x <= y.
func (x Real) LE(y Real) Bool { return x.cmp(opLE, y) }

// GT returns x > y.
func (x Real) GT(y Real) Bool { return y.cmp(opLT, x) }

// GE returns x >= y.
func (x Real) GE(y Real) Bool { return y.cmp(opLE, x) }

// Eq returns x == y.
func (x Real) Eq(y Real) Bool { return x.cmp(opEq, y) }

// NE returns x != y.
func (x Real) NE(y Real) Bool { return Not(x.Eq(y)) }

// Not returns the negation of b.
func Not(b Bool) Bool {
	switch b.n.op {
	case opTrue:
		return False
	case opFalse:
		return True
	case opNot:
		return Bool{b.n.args[0]}
	}
	return Bool{mkNode(opNot, "", nil, b.n)}
}

// Not returns the negation of b.
func (b Bool) Not() Bool { return Not(b) }

// And returns the conjunction of bs. An empty conjunction is True.
func And(bs ...Bool) Bool {
	var args []*node
	for _, b := range bs {
		switch b.n.op {
		case opFalse:
			return False
		case opTrue:
			continue
		case opAnd:
			args = append(args, b.n.args...)
			continue
		}
		args = append(args, b.n)
	}
	switch len(args) {
	case 0:
		return True
	case 1:
		return Bool{args[0]}
	}
	return Bool{mkNode(opAnd, "", nil, args...)}
}

// Or returns the disjunction of bs. An empty disjunction is False.
func Or(bs ...Bool) Bool {
	var args []*node
	for _, b := range bs {
		switch b.n.op {
		case opTrue:
			return True
		case opFalse:
			continue
		case opOr:
			args = append(args, b.n.args...)
			continue
		}
		args = append(args, b.n)
	}
	switch len(args) {
	case 0:
		return False
	case 1:
		return Bool{args[0]}
	}
	return Bool{mkNode(opOr, "", nil, args...)}
}

// And returns b && others...
func (b Bool) And(others ...Bool) Bool { return And(append([]Bool{b}, others...)...) }

// Or returns b || others...
func (b Bool) Or(others ...Bool) Bool { return Or(append([]Bool{b}, others...)...) }

// Implies returns a => b.
func Implies(a, b Bool) Bool {
	switch {
	case a.n.op == opFalse || b.n.op == opTrue:
		return True
	case a.n.op == opTrue:
		return b
	case b.n.op == opFalse:
		return Not(a)
	}
	return Bool{mkNode(opImplies, "", nil, a.n, b.n)}
}

// Iff returns a == b for formulas.
func Iff(a, b Bool) Bool {
	switch {
	case a.n.op == opTrue:
		return b
	case b.n.op == opTrue:
		return a
	case a.n.op == opFalse:
		return Not(b)
	case b.n.op == opFalse:
		return Not(a)
	}
	return Bool{mkNode(opIff, "", nil, a.n, b.n)}
}

// If returns the term that is a when c holds and b otherwise.
func If(c Bool, a, b Real) Real {
	switch c.n.op {
	case opTrue:
		return a
	case opFalse:
		return b
	}
	if a.n.hash == b.n.hash {
		return a
	}
	return Real{mkNode(opIte, "", nil, c.n, a.n, b.n)}
}

// Max returns the larger of a and b.
func Max(a, b Real) Real { return If(a.GE(b), a, b) }

// Min returns the smaller of a and b.
func Min(a, b Real) Real { return If(a.LE(b), a, b) }

// String renders the term in SMT-LIB syntax.
func (x Real) String() string { return render(x.n) }

// String renders the formula in SMT-LIB syntax.
func (b Bool) String() string { return render(b.n) }
