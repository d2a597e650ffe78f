package smt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Result is a solver verdict.
type Result int

const (
	Unsat   Result = -1
	Unknown Result = 0
	Sat     Result = 1
)

func (r Result) String() string {
	switch r {
	case Sat:
		return "sat"
	case Unsat:
		return "unsat"
	}
	return "unknown"
}

// ParseResult maps "sat", "unsat" and "unknown" back to a Result.
func ParseResult(s string) (Result, error) {
	switch s {
	case "sat":
		return Sat, nil
	case "unsat":
		return Unsat, nil
	case "unknown":
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("smt: %q is not a verdict", s)
}

// Outcome is what a backend reports for one check.
type Outcome struct {
	Result Result
	Model  Assignment // set when Result is Sat
	Core   []string   // assertion names, set when Result is Unsat and cores were requested
	Reason string     // why the verdict is Unknown, when the solver says
}

// Backend decides satisfiability of a constraint set.
type Backend interface {
	Solve(ctx context.Context, s *Solver, timeout time.Duration) (Outcome, error)
}

// ErrSolver is wrapped by failures of the solver process itself, as opposed
// to UNKNOWN verdicts which are not errors.
var ErrSolver = errors.New("smt: solver failure")

// Z3 runs the z3 executable, feeding it the script on stdin.
type Z3 struct {
	// Path of the executable, "z3" by default
	Path string

	// Grace is added to the timeout before the process is killed; z3 is told
	// about the timeout itself and normally answers "unknown" before that
	Grace time.Duration

	Logger *slog.Logger
}

// NewZ3 returns a backend running "z3" from PATH.
func NewZ3() *Z3 {
	return &Z3{Path: "z3", Grace: 2 * time.Second, Logger: slog.Default()}
}

// Available reports whether the executable can be found.
func (z *Z3) Available() bool {
	_, err := exec.LookPath(z.path())
	return err == nil
}

func (z *Z3) path() string {
	if z.Path == "" {
		return "z3"
	}
	return z.Path
}

func (z *Z3) logger() *slog.Logger {
	if z.Logger == nil {
		return slog.Default()
	}
	return z.Logger
}

// Script returns the full input handed to z3 for one check.
func (z *Z3) Script(s *Solver, timeout time.Duration) string {
	var sb strings.Builder
	if timeout > 0 {
		fmt.Fprintf(&sb, "(set-option :timeout %d)\n", timeout.Milliseconds())
	}
	_ = s.WriteScript(&sb)
	if s.Opts.Simplify {
		sb.WriteString("(check-sat-using (then simplify solve-eqs smt))\n")
	} else {
		sb.WriteString("(check-sat)\n")
	}
	if names := append(s.Vars(SortReal), s.Vars(SortBool)...); len(names) > 0 {
		sb.WriteString("(get-value (")
		for i, n := range names {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(quoteSymbol(n))
		}
		sb.WriteString("))\n")
	}
	if s.Opts.UnsatCore {
		sb.WriteString("(get-unsat-core)\n")
	}
	sb.WriteString("(get-info :reason-unknown)\n")
	return sb.String()
}

// Solve runs one check. A timeout of zero means no solver-side limit; the
// context still bounds the process. Exhausting the timeout yields Unknown,
// not an error.
func (z *Z3) Solve(ctx context.Context, s *Solver, timeout time.Duration) (Outcome, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout+z.Grace)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, z.path(), "-in", "-smt2")
	cmd.Stdin = strings.NewReader(z.Script(s, timeout))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		return Outcome{}, ctx.Err()
	}
	if runCtx.Err() != nil {
		z.logger().Warn("z3 killed after deadline", "timeout", timeout, "elapsed", elapsed)
		return Outcome{Result: Unknown, Reason: "timeout"}, nil
	}

	out, err := parseOutput(stdout.String())
	if err != nil {
		if runErr != nil {
			return Outcome{}, fmt.Errorf("%w: %v: %s", ErrSolver, runErr, strings.TrimSpace(stderr.String()))
		}
		return Outcome{}, fmt.Errorf("%w: %v", ErrSolver, err)
	}
	z.logger().Debug("z3 finished", "result", out.Result.String(), "elapsed", elapsed, "assertions", s.Len())
	return out, nil
}

// parseOutput reads z3's responses: the verdict, then the answers to
// get-value, get-unsat-core and get-info in order. Commands that do not apply
// to the verdict produce (error ...) responses, which are skipped.
func parseOutput(text string) (Outcome, error) {
	exprs, err := parseSexps(text)
	if err != nil {
		return Outcome{}, err
	}
	var out Outcome
	seenVerdict := false
	for _, e := range exprs {
		if !seenVerdict {
			if e.isList {
				if isError(e) {
					return Outcome{}, fmt.Errorf("z3 error before verdict: %s", e)
				}
				continue
			}
			r, err := ParseResult(e.atom)
			if err != nil {
				return Outcome{}, err
			}
			out.Result = r
			seenVerdict = true
			continue
		}
		if !e.isList || isError(e) {
			continue
		}
		switch {
		case len(e.list) == 2 && !e.list[0].isList && e.list[0].atom == ":reason-unknown":
			if out.Result == Unknown {
				out.Reason = e.list[1].atom
			}
		case out.Result == Sat && out.Model == nil:
			a, err := parseAssignment(e)
			if err != nil {
				return Outcome{}, err
			}
			out.Model = a
		case out.Result == Unsat && out.Core == nil:
			core := make([]string, 0, len(e.list))
			for _, c := range e.list {
				core = append(core, c.atom)
			}
			out.Core = core
		}
	}
	if !seenVerdict {
		return Outcome{}, errors.New("no verdict in solver output")
	}
	if out.Result == Sat && out.Model == nil {
		out.Model = Assignment{}
	}
	return out, nil
}

func isError(e sexp) bool {
	return e.isList && len(e.list) > 0 && !e.list[0].isList && e.list[0].atom == "error"
}
