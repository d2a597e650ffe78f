package smt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
)

// sexp is a parsed s-expression from solver output
type sexp struct {
	atom   string
	list   []sexp
	isList bool
	quoted bool // atom came from a "string" literal
}

func (e sexp) String() string {
	if !e.isList {
		if e.quoted {
			return `"` + strings.ReplaceAll(e.atom, `"`, `""`) + `"`
		}
		return e.atom
	}
	parts := make([]string, len(e.list))
	for i, c := range e.list {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// sexpReader pulls successive top-level s-expressions out of a stream
type sexpReader struct {
	r *bufio.Reader
}

func newSexpReader(r io.Reader) *sexpReader {
	return &sexpReader{r: bufio.NewReader(r)}
}

var errUnbalanced = errors.New("smt: unbalanced parentheses in solver output")

func (p *sexpReader) skipSpace() (rune, error) {
	for {
		c, _, err := p.r.ReadRune()
		if err != nil {
			return 0, err
		}
		switch {
		case c == ';':
			if _, err := p.r.ReadString('\n'); err != nil {
				return 0, err
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
		default:
			return c, nil
		}
	}
}

// Next returns the next complete expression, or io.EOF at end of input
func (p *sexpReader) Next() (sexp, error) {
	c, err := p.skipSpace()
	if err != nil {
		return sexp{}, err
	}
	return p.parse(c)
}

func (p *sexpReader) parse(c rune) (sexp, error) {
	switch c {
	case '(':
		e := sexp{isList: true}
		for {
			c, err := p.skipSpace()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return sexp{}, errUnbalanced
				}
				return sexp{}, err
			}
			if c == ')' {
				return e, nil
			}
			child, err := p.parse(c)
			if err != nil {
				return sexp{}, err
			}
			e.list = append(e.list, child)
		}
	case ')':
		return sexp{}, errUnbalanced
	case '"':
		var sb strings.Builder
		for {
			c, _, err := p.r.ReadRune()
			if err != nil {
				return sexp{}, fmt.Errorf("smt: unterminated string: %w", err)
			}
			if c == '"' {
				next, _, err := p.r.ReadRune()
				if err == nil && next == '"' {
					sb.WriteRune('"')
					continue
				}
				if err == nil {
					_ = p.r.UnreadRune()
				}
				return sexp{atom: sb.String(), quoted: true}, nil
			}
			sb.WriteRune(c)
		}
	case '|':
		s, err := p.r.ReadString('|')
		if err != nil {
			return sexp{}, fmt.Errorf("smt: unterminated quoted symbol: %w", err)
		}
		return sexp{atom: strings.TrimSuffix(s, "|")}, nil
	}

	var sb strings.Builder
	sb.WriteRune(c)
	for {
		c, _, err := p.r.ReadRune()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return sexp{atom: sb.String()}, nil
			}
			return sexp{}, err
		}
		if c == '(' || c == ')' || c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == ';' {
			_ = p.r.UnreadRune()
			return sexp{atom: sb.String()}, nil
		}
		sb.WriteRune(c)
	}
}

// parseSexps parses every expression in s
func parseSexps(s string) ([]sexp, error) {
	p := newSexpReader(strings.NewReader(s))
	var out []sexp
	for {
		e, err := p.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
}

// valueOf converts a value expression from get-value output: a numeral,
// a decimal, true/false, (- x), (/ x y), or combinations of those
func valueOf(e sexp) (Value, error) {
	if !e.isList {
		return parseValue(e.atom)
	}
	r, err := ratOf(e)
	if err != nil {
		return Value{}, err
	}
	return Value{Rat: r}, nil
}

func ratOf(e sexp) (*big.Rat, error) {
	if !e.isList {
		r, ok := new(big.Rat).SetString(e.atom)
		if !ok {
			return nil, fmt.Errorf("smt: %q is not a number", e.atom)
		}
		return r, nil
	}
	if len(e.list) == 0 || e.list[0].isList {
		return nil, fmt.Errorf("smt: unexpected value %s", e)
	}
	args := make([]*big.Rat, 0, len(e.list)-1)
	for _, c := range e.list[1:] {
		r, err := ratOf(c)
		if err != nil {
			return nil, err
		}
		args = append(args, r)
	}
	switch e.list[0].atom {
	case "-":
		if len(args) == 1 {
			return args[0].Neg(args[0]), nil
		}
		if len(args) == 2 {
			return args[0].Sub(args[0], args[1]), nil
		}
	case "/":
		if len(args) == 2 && args[1].Sign() != 0 {
			return args[0].Quo(args[0], args[1]), nil
		}
	case "+":
		sum := new(big.Rat)
		for _, a := range args {
			sum.Add(sum, a)
		}
		return sum, nil
	case "*":
		prod := big.NewRat(1, 1)
		for _, a := range args {
			prod.Mul(prod, a)
		}
		return prod, nil
	}
	return nil, fmt.Errorf("smt: unexpected value %s", e)
}

// parseAssignment reads the ((name value) ...) list get-value prints
func parseAssignment(e sexp) (Assignment, error) {
	if !e.isList {
		return nil, fmt.Errorf("smt: expected a value list, got %s", e)
	}
	a := make(Assignment, len(e.list))
	for _, pair := range e.list {
		if !pair.isList || len(pair.list) != 2 || pair.list[0].isList {
			return nil, fmt.Errorf("smt: malformed value pair %s", pair)
		}
		v, err := valueOf(pair.list[1])
		if err != nil {
			return nil, err
		}
		a[pair.list[0].atom] = v
	}
	return a, nil
}
