// Package proofs holds the named queries ccac ships with. Each one builds a
// model, states the negation of a property on it and asks the solver for a
// counterexample; a property holds when there is none.
package proofs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/iti/ccac"
	"github.com/iti/ccac/smt"
)

// Proof is one named query.
type Proof struct {
	Name        string
	Description string

	// Expect is the verdict that means the property holds. Exploratory
	// queries search for an interesting trace and have no expectation.
	Expect      smt.Result
	Exploratory bool

	// Build returns the model with the query's constraints added
	Build func() (*ccac.Model, error)
}

// Report is the outcome of running a proof.
type Report struct {
	Proof  *Proof
	Model  *ccac.Model
	Result *ccac.QueryResult
}

// Holds reports whether the verdict is the expected one. Exploratory
// queries and Unknown verdicts never hold.
func (r *Report) Holds() bool {
	return !r.Proof.Exploratory && r.Result.Satisfiable != smt.Unknown && r.Result.Satisfiable == r.Proof.Expect
}

func (r *Report) String() string {
	switch {
	case r.Proof.Exploratory:
		return fmt.Sprintf("%s: %s", r.Proof.Name, r.Result.Satisfiable)
	case r.Result.Satisfiable == smt.Unknown:
		return fmt.Sprintf("%s: undecided (%s)", r.Proof.Name, r.Result.Reason)
	case r.Holds():
		return fmt.Sprintf("%s: holds (%s)", r.Proof.Name, r.Result.Satisfiable)
	}
	return fmt.Sprintf("%s: FAILS (%s)", r.Proof.Name, r.Result.Satisfiable)
}

var registry = map[string]*Proof{}

func register(p *Proof) {
	if _, present := registry[p.Name]; present {
		panic("proofs: duplicate proof " + p.Name)
	}
	registry[p.Name] = p
}

// Names lists the registered proofs in order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the named proof.
func Lookup(name string) (*Proof, error) {
	p, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("proofs: no proof named %q", name)
	}
	return p, nil
}

// Run builds p and decides it with runner.
func Run(ctx context.Context, runner *ccac.Runner, p *Proof, timeout time.Duration) (*Report, error) {
	m, err := p.Build()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name, err)
	}
	res, err := runner.Run(ctx, m.Solver, m.Config, timeout)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name, err)
	}
	return &Report{Proof: p, Model: m, Result: res}, nil
}

func init() {
	register(&Proof{
		Name:        "no_loss_without_buffer",
		Description: "a single constant-rate flow over a link without buffer bounds never loses a byte",
		Expect:      smt.Unsat,
		Build:       NoLossWithoutBuffer,
	})
	register(&Proof{
		Name:        "fixed_rate_fairness",
		Description: "two symmetric fixed-rate flows split a non-composable link evenly in steady state",
		Expect:      smt.Unsat,
		Build:       FixedRateFairness,
	})
	register(&Proof{
		Name:        "aimd_steady_state",
		Description: "once AIMD is in steady state its undetected loss stays bounded",
		Expect:      smt.Unsat,
		Build:       AIMDSteadyState,
	})
	register(&Proof{
		Name:        "aimd_can_increase",
		Description: "some trace lets AIMD earn a window increase",
		Expect:      smt.Sat,
		Build:       func() (*ccac.Model, error) { return AIMDCanIncrease(false) },
	})
	register(&Proof{
		Name:        "aimd_appsafe_can_increase",
		Description: "some trace lets application-safe AIMD earn a window increase",
		Expect:      smt.Sat,
		Build:       func() (*ccac.Model, error) { return AIMDCanIncrease(true) },
	})
	register(&Proof{
		Name:        "aimd_increases_when_acked",
		Description: "AIMD always earns an increase once a window's worth of bytes is acknowledged",
		Expect:      smt.Unsat,
		Build:       func() (*ccac.Model, error) { return AIMDIncreasesWhenAcked(false) },
	})
	register(&Proof{
		Name:        "aimd_appsafe_increases_when_acked",
		Description: "application-safe AIMD with a backlogged sender earns an increase once a window is acknowledged",
		Expect:      smt.Unsat,
		Build:       func() (*ccac.Model, error) { return AIMDIncreasesWhenAcked(true) },
	})
	register(&Proof{
		Name:        "bb_abr_low_throughput",
		Description: "search for a buffer-based video flow over AIMD that shrinks its window and starves the link",
		Exploratory: true,
		Build:       BBABRLowThroughput,
	})
	register(&Proof{
		Name:        "bb_abr_buffering",
		Description: "search for a periodic trace in which a buffer-based video client stalls",
		Exploratory: true,
		Build:       func() (*ccac.Model, error) { return BBABRBuffering(10, 1) },
	})
}
