package smt

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
)

// Value is the value a satisfying model gives one variable.
type Value struct {
	IsBool bool
	Bool   bool
	Rat    *big.Rat
}

// RealValue wraps a rational as a Value.
func RealValue(r *big.Rat) Value { return Value{Rat: new(big.Rat).Set(r)} }

// BoolValue wraps a boolean as a Value.
func BoolValue(b bool) Value { return Value{IsBool: true, Bool: b} }

// Float returns the closest float64 to a real value.
func (v Value) Float() float64 {
	if v.IsBool || v.Rat == nil {
		return 0
	}
	f, _ := v.Rat.Float64()
	return f
}

func (v Value) String() string {
	if v.IsBool {
		if v.Bool {
			return "true"
		}
		return "false"
	}
	if v.Rat == nil {
		return "0"
	}
	return v.Rat.RatString()
}

func parseValue(s string) (Value, error) {
	switch s {
	case "true":
		return BoolValue(true), nil
	case "false":
		return BoolValue(false), nil
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return Value{}, fmt.Errorf("smt: %q is not a value", s)
	}
	return Value{Rat: r}, nil
}

// Assignment maps variable names to model values.
type Assignment map[string]Value

// Float returns the value of a real variable as a float64.
func (a Assignment) Float(name string) (float64, bool) {
	v, present := a[name]
	if !present || v.IsBool {
		return 0, false
	}
	return v.Float(), true
}

// Truth returns the value of a boolean variable.
func (a Assignment) Truth(name string) (bool, bool) {
	v, present := a[name]
	if !present || !v.IsBool {
		return false, false
	}
	return v.Bool, true
}

// MarshalJSON encodes an assignment as an object of strings: "true", "false",
// or an exact rational like "-3/2".
func (a Assignment) MarshalJSON() ([]byte, error) {
	flat := make(map[string]string, len(a))
	for k, v := range a {
		flat[k] = v.String()
	}
	return json.Marshal(flat)
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (a *Assignment) UnmarshalJSON(b []byte) error {
	var flat map[string]string
	if err := json.Unmarshal(b, &flat); err != nil {
		return err
	}
	out := make(Assignment, len(flat))
	for k, s := range flat {
		v, err := parseValue(s)
		if err != nil {
			return err
		}
		out[k] = v
	}
	*a = out
	return nil
}

// ErrUnassigned is returned when evaluation meets a variable the assignment
// does not cover.
var ErrUnassigned = errors.New("smt: variable not assigned")

// EvalReal evaluates a term under an assignment.
func EvalReal(x Real, a Assignment) (*big.Rat, error) {
	return evalReal(x.n, a)
}

// EvalBool evaluates a formula under an assignment.
func EvalBool(b Bool, a Assignment) (bool, error) {
	return evalBool(b.n, a)
}

func evalReal(n *node, a Assignment) (*big.Rat, error) {
	switch n.op {
	case opNum:
		return new(big.Rat).Set(n.val), nil
	case opRealVar:
		v, present := a[n.name]
		if !present || v.IsBool || v.Rat == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnassigned, n.name)
		}
		return new(big.Rat).Set(v.Rat), nil
	case opAdd:
		sum := new(big.Rat)
		for _, arg := range n.args {
			r, err := evalReal(arg, a)
			if err != nil {
				return nil, err
			}
			sum.Add(sum, r)
		}
		return sum, nil
	case opNeg:
		r, err := evalReal(n.args[0], a)
		if err != nil {
			return nil, err
		}
		return r.Neg(r), nil
	case opScale:
		r, err := evalReal(n.args[0], a)
		if err != nil {
			return nil, err
		}
		return r.Mul(r, n.val), nil
	case opIte:
		c, err := evalBool(n.args[0], a)
		if err != nil {
			return nil, err
		}
		if c {
			return evalReal(n.args[1], a)
		}
		return evalReal(n.args[2], a)
	}
	return nil, fmt.Errorf("smt: %s is not a real term", render(n))
}

func evalBool(n *node, a Assignment) (bool, error) {
	switch n.op {
	case opTrue:
		return true, nil
	case opFalse:
		return false, nil
	case opBoolVar:
		v, present := a[n.name]
		if !present || !v.IsBool {
			return false, fmt.Errorf("%w: %s", ErrUnassigned, n.name)
		}
		return v.Bool, nil
	case opLT, opLE, opEq:
		x, err := evalReal(n.args[0], a)
		if err != nil {
			return false, err
		}
		y, err := evalReal(n.args[1], a)
		if err != nil {
			return false, err
		}
		c := x.Cmp(y)
		switch n.op {
		case opLT:
			return c < 0, nil
		case opLE:
			return c <= 0, nil
		}
		return c == 0, nil
	case opIff:
		x, err := evalBool(n.args[0], a)
		if err != nil {
			return false, err
		}
		y, err := evalBool(n.args[1], a)
		if err != nil {
			return false, err
		}
		return x == y, nil
	case opNot:
		x, err := evalBool(n.args[0], a)
		return !x, err
	case opAnd:
		for _, arg := range n.args {
			x, err := evalBool(arg, a)
			if err != nil || !x {
				return false, err
			}
		}
		return true, nil
	case opOr:
		for _, arg := range n.args {
			x, err := evalBool(arg, a)
			if err != nil {
				return false, err
			}
			if x {
				return true, nil
			}
		}
		return false, nil
	case opImplies:
		x, err := evalBool(n.args[0], a)
		if err != nil || !x {
			return true, err
		}
		return evalBool(n.args[1], a)
	}
	return false, fmt.Errorf("smt: %s is not a formula", render(n))
}

// ViolationError reports the first assertion a model fails to satisfy.
type ViolationError struct {
	Index     int
	Assertion string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("smt: assertion %d violated: %s", e.Index, e.Assertion)
}

// Verify evaluates every assertion under a and returns a *ViolationError for
// the first one that does not hold, or an error wrapping ErrUnassigned when
// the model does not cover a variable.
func (s *Solver) Verify(a Assignment) error {
	for i, n := range s.assertions {
		ok, err := evalBool(n, a)
		if err != nil {
			return fmt.Errorf("assertion %d: %w", i, err)
		}
		if !ok {
			return &ViolationError{Index: i, Assertion: render(n)}
		}
	}
	return nil
}
