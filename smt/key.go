package smt

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/exp/slices"
)

// Key returns the canonical identity of the constraint set, suitable as a
// cache key. Two solvers whose assertions are the same up to assertion order,
// duplicate assertions and operand order of commutative operators get the same
// key. Declaration order does not matter either; declared sorts do.
//
// With UnsatCore set, cores name assertions by position (AssertionName), so
// the assertions are keyed in the order they were added and a cached core
// always names the same formulas as in the solver asking for it.
//
// extra is folded into the key verbatim. Callers pass the canonical bytes of
// whatever configuration influences interpretation of a verdict.
func (s *Solver) Key(extra ...[]byte) string {
	hashes := make([]string, 0, len(s.assertions))
	for _, a := range s.assertions {
		hashes = append(hashes, string(a.hash[:]))
	}
	if !s.Opts.UnsatCore {
		slices.Sort(hashes)
		hashes = slices.Compact(hashes)
	}

	decls := make([]string, 0, len(s.decls))
	for _, d := range s.decls {
		decls = append(decls, d.sort.String()+":"+d.name)
	}
	slices.Sort(decls)

	h := sha256.New()
	writeField := func(b []byte) {
		var lb [8]byte
		binary.BigEndian.PutUint64(lb[:], uint64(len(b)))
		h.Write(lb[:])
		h.Write(b)
	}

	writeField([]byte("ccac-smt-v1"))
	var flags byte
	if s.Opts.UnsatCore {
		flags |= 1
	}
	if s.Opts.Simplify {
		flags |= 2
	}
	writeField([]byte{flags})
	for _, d := range decls {
		writeField([]byte(d))
	}
	writeField(nil)
	for _, a := range hashes {
		writeField([]byte(a))
	}
	writeField(nil)
	for _, e := range extra {
		writeField(e)
	}
	return hex.EncodeToString(h.Sum(nil))
}
