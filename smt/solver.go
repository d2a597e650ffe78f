package smt

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/exp/slices"
)

// Sort is the sort of a declared variable.
type Sort int

const (
	SortReal Sort = iota
	SortBool
)

func (s Sort) String() string {
	if s == SortBool {
		return "Bool"
	}
	return "Real"
}

type decl struct {
	name string
	sort Sort
}

// Options control how a constraint set is handed to a backend.
type Options struct {
	// UnsatCore names every assertion so that an UNSAT verdict can carry the
	// subset of assertions responsible for it
	UnsatCore bool

	// Simplify runs the backend's simplifier before solving
	Simplify bool
}

// Solver accumulates variable declarations and assertions. It is a plain
// value container: nothing is sent anywhere until a Backend solves it.
// A Solver is not safe for concurrent mutation.
type Solver struct {
	Opts Options

	decls      []decl
	declByName map[string]Sort
	assertions []*node
}

// NewSolver creates an empty constraint set.
func NewSolver() *Solver {
	return &Solver{declByName: make(map[string]Sort)}
}

func (s *Solver) declare(name string, sort Sort) {
	if prev, present := s.declByName[name]; present {
		if prev != sort {
			panic(fmt.Errorf("smt: variable %q redeclared as %s, was %s", name, sort, prev))
		}
		return
	}
	s.declByName[name] = sort
	s.decls = append(s.decls, decl{name: name, sort: sort})
}

// Real declares (or returns the already declared) real variable with the given name.
func (s *Solver) Real(name string) Real {
	s.declare(name, SortReal)
	return Real{mkNode(opRealVar, name, nil)}
}

// Bool declares (or returns the already declared) boolean variable with the given name.
func (s *Solver) Bool(name string) Bool {
	s.declare(name, SortBool)
	return Bool{mkNode(opBoolVar, name, nil)}
}

// Add asserts every formula in bs.
func (s *Solver) Add(bs ...Bool) {
	for _, b := range bs {
		if !b.Valid() {
			panic("smt: assertion of an unbuilt formula")
		}
		s.assertions = append(s.assertions, b.n)
	}
}

// Len is the number of assertions added so far.
func (s *Solver) Len() int { return len(s.assertions) }

// Assertions returns the asserted formulas in the order they were added.
func (s *Solver) Assertions() []Bool {
	out := make([]Bool, len(s.assertions))
	for i, a := range s.assertions {
		out[i] = Bool{a}
	}
	return out
}

// Vars returns the names of declared variables of the given sort, in
// declaration order.
func (s *Solver) Vars(sort Sort) []string {
	var out []string
	for _, d := range s.decls {
		if d.sort == sort {
			out = append(out, d.name)
		}
	}
	return out
}

// Declared reports whether name has been declared, and its sort.
func (s *Solver) Declared(name string) (Sort, bool) {
	sort, present := s.declByName[name]
	return sort, present
}

// Clone returns an independent copy that shares the immutable terms.
// Queries that extend a base model work on clones so the base can be reused.
func (s *Solver) Clone() *Solver {
	c := &Solver{
		Opts:       s.Opts,
		decls:      slices.Clone(s.decls),
		declByName: make(map[string]Sort, len(s.declByName)),
		assertions: slices.Clone(s.assertions),
	}
	for k, v := range s.declByName {
		c.declByName[k] = v
	}
	return c
}

// AssertionName is the name given to the i-th assertion when unsat cores
// are requested.
func AssertionName(i int) string { return fmt.Sprintf("a%d", i) }

// WriteScript writes the declarations and assertions as an SMT-LIB2 script,
// without any check-sat or get-value commands.
func (s *Solver) WriteScript(w io.Writer) error {
	var sb strings.Builder
	if s.Opts.UnsatCore {
		sb.WriteString("(set-option :produce-unsat-cores true)\n")
	}
	sb.WriteString("(set-option :produce-models true)\n")
	sb.WriteString("(set-logic QF_LRA)\n")
	for _, d := range s.decls {
		fmt.Fprintf(&sb, "(declare-fun %s () %s)\n", quoteSymbol(d.name), d.sort)
	}
	for i, a := range s.assertions {
		sb.WriteString("(assert ")
		if s.Opts.UnsatCore {
			sb.WriteString("(! ")
			writeNode(&sb, a)
			sb.WriteString(" :named ")
			sb.WriteString(AssertionName(i))
			sb.WriteByte(')')
		} else {
			writeNode(&sb, a)
		}
		sb.WriteString(")\n")
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// String renders the script.
func (s *Solver) String() string {
	var sb strings.Builder
	_ = s.WriteScript(&sb)
	return sb.String()
}
