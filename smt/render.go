package smt

import (
	"math/big"
	"strings"
)

// render writes the SMT-LIB2 form of a term
func render(n *node) string {
	var sb strings.Builder
	writeNode(&sb, n)
	return sb.String()
}

func writeNode(sb *strings.Builder, n *node) {
	switch n.op {
	case opNum:
		sb.WriteString(ratLiteral(n.val))
		return
	case opTrue:
		sb.WriteString("true")
		return
	case opFalse:
		sb.WriteString("false")
		return
	case opRealVar, opBoolVar:
		sb.WriteString(quoteSymbol(n.name))
		return
	case opScale:
		sb.WriteString("(* ")
		sb.WriteString(ratLiteral(n.val))
		sb.WriteByte(' ')
		writeNode(sb, n.args[0])
		sb.WriteByte(')')
		return
	}

	sb.WriteByte('(')
	sb.WriteString(opSymbol[n.op])
	for _, a := range n.args {
		sb.WriteByte(' ')
		writeNode(sb, a)
	}
	sb.WriteByte(')')
}

var opSymbol = map[op]string{
	opAdd:     "+",
	opNeg:     "-",
	opLT:      "<",
	opLE:      "<=",
	opEq:      "=",
	opIff:     "=",
	opNot:     "not",
	opAnd:     "and",
	opOr:      "or",
	opImplies: "=>",
	opIte:     "ite",
}

// ratLiteral renders a rational using decimal literals only, which is what
// QF_LRA accepts: 3 -> 3.0, -1/2 -> (- (/ 1.0 2.0))
func ratLiteral(r *big.Rat) string {
	neg := r.Sign() < 0
	abs := new(big.Rat).Abs(r)
	var s string
	if abs.IsInt() {
		s = abs.Num().String() + ".0"
	} else {
		s = "(/ " + abs.Num().String() + ".0 " + abs.Denom().String() + ".0)"
	}
	if neg {
		return "(- " + s + ")"
	}
	return s
}

// quoteSymbol wraps a name in |...| unless it is a plain SMT-LIB simple symbol
func quoteSymbol(name string) string {
	plain := name != ""
	for i, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
			if i == 0 {
				plain = false
			}
		case strings.ContainsRune("~!@$%^&*_-+=<>.?/", c):
		default:
			plain = false
		}
	}
	if plain {
		return name
	}
	return "|" + name + "|"
}
