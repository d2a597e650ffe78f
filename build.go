package ccac

// build.go assembles a model. The constraint generators are nodes of a small
// dependency graph; an edge from a to b says b refers to something a sets up
// (variables of a plug-in, say). The graph is sorted once per configuration
// with the gonum topological sort, and the generators run in that order.

import (
	"fmt"

	"github.com/iti/ccac/smt"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Model is a populated constraint set together with the variables and plug-in
// state a query needs to phrase its property.
type Model struct {
	// a private copy of the configuration the model was built from
	Config *ModelConfig

	Solver *smt.Solver
	Vars   *Variables

	// CCA is the algorithm plug-in's extension record
	CCA CCAState

	// Apps holds one application extension record per flow
	Apps []AppState
}

// Fork returns a model sharing variables and plug-in state whose solver is an
// independent copy. Queries that add different properties to one base model
// each work on a fork.
func (m *Model) Fork() *Model {
	fm := *m
	fm.Solver = m.Solver.Clone()
	return &fm
}

type generator struct {
	name    string
	after   []string
	enabled func(c *ModelConfig) bool
	run     func(m *Model, cca CCA, app App) error
}

// physics generator adapter
func phys(f func(c *ModelConfig, s *smt.Solver, v *Variables)) func(m *Model, cca CCA, app App) error {
	return func(m *Model, _ CCA, _ App) error {
		f(m.Config, m.Solver, m.Vars)
		return nil
	}
}

// generators, in the order they run
var generators = []generator{
	{name: "monotone", run: phys(monotone)},
	{name: "initial", run: phys(initial)},
	{name: "relate_tot", run: phys(relateTot)},
	{name: "network", after: []string{"relate_tot"}, run: phys(network)},
	{name: "loss_detected", after: []string{"network"}, run: phys(lossDetected)},
	{name: "epsilon_alpha", run: phys(epsilonAlpha)},
	{
		name:    "calculate_qdel",
		after:   []string{"relate_tot"},
		enabled: func(c *ModelConfig) bool { return c.CalculateQdel },
		run:     phys(calculateQdel),
	},
	{
		name:    "multi_flows",
		after:   []string{"calculate_qdel"},
		enabled: func(c *ModelConfig) bool { return c.N > 1 },
		run:     phys(multiFlows),
	},
	{name: "app", run: runApp},
	{name: "cca", after: []string{"app"}, run: runCCA},
	{name: "cwnd_rate_arrival", after: []string{"app", "cca"}, run: func(m *Model, _ CCA, _ App) error {
		cwndRateArrival(m.Config, m.Solver, m.Vars, m.Apps)
		return nil
	}},
	{
		name:    "min_send_quantum",
		after:   []string{"cwnd_rate_arrival"},
		enabled: func(c *ModelConfig) bool { return c.MinSendQuantum },
		run:     phys(MinSendQuantum),
	},
}

func runApp(m *Model, _ CCA, app App) error {
	m.Apps = make([]AppState, m.Config.N)
	for n := 0; n < m.Config.N; n++ {
		st, err := app.Extend(n, m.Config, m.Solver, m.Vars)
		if err != nil {
			return fmt.Errorf("app %s, flow %d: %w", app.Kind(), n, err)
		}
		m.Apps[n] = st
	}
	return nil
}

func runCCA(m *Model, cca CCA, _ App) error {
	st, err := cca.Extend(m.Config, m.Solver, m.Vars)
	if err != nil {
		return fmt.Errorf("cca %s: %w", cca.Kind(), err)
	}
	m.CCA = st
	return nil
}

// generatorOrder returns the enabled generators sorted so that each runs
// after the ones it depends on. Consecutive generators are chained as well,
// which pins the listed order; a dependency that contradicts the listing
// shows up as a cycle.
func generatorOrder(c *ModelConfig) ([]generator, error) {
	g := simple.NewDirectedGraph()
	idx := make(map[string]int64)
	prev := int64(-1)
	for i, gen := range generators {
		if gen.enabled != nil && !gen.enabled(c) {
			continue
		}
		id := int64(i)
		idx[gen.name] = id
		g.AddNode(simple.Node(id))
		if prev >= 0 {
			g.SetEdge(simple.Edge{F: simple.Node(prev), T: simple.Node(id)})
		}
		prev = id
	}
	for i, gen := range generators {
		id, present := idx[gen.name]
		if !present {
			continue
		}
		for _, dep := range gen.after {
			from, ok := idx[dep]
			if !ok {
				// optional generator switched off
				if generators[indexOfGenerator(dep)].enabled != nil {
					continue
				}
				return nil, fmt.Errorf("ccac: generator %s depends on unknown %s", generators[i].name, dep)
			}
			if from != id && !g.HasEdgeFromTo(from, id) {
				g.SetEdge(simple.Edge{F: simple.Node(from), T: simple.Node(id)})
			}
		}
	}

	sorted, err := topo.SortStabilized(g, nil)
	if err != nil {
		return nil, fmt.Errorf("ccac: generator dependencies: %w", err)
	}
	out := make([]generator, len(sorted))
	for i, node := range sorted {
		out[i] = generators[node.ID()]
	}
	return out, nil
}

func indexOfGenerator(name string) int {
	for i, gen := range generators {
		if gen.name == name {
			return i
		}
	}
	panic("ccac: no generator named " + name)
}

// Build validates the configuration and generates the full constraint set
// for it. Unknown algorithm or application tags, and multiple flows without
// queueing delay tracking, fail with a *ConfigError before any constraint is
// added.
func Build(c *ModelConfig) (*Model, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	cfg := c.Clone()

	cca, err := newCCA(cfg.CCA)
	if err != nil {
		return nil, err
	}
	app, err := newApp(cfg.App)
	if err != nil {
		return nil, err
	}
	order, err := generatorOrder(cfg)
	if err != nil {
		return nil, err
	}

	s := smt.NewSolver()
	s.Opts = smt.Options{UnsatCore: cfg.UnsatCore, Simplify: cfg.Simplify}
	m := &Model{Config: cfg, Solver: s, Vars: NewVariables(cfg, s)}

	for _, gen := range order {
		if err := gen.run(m, cca, app); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MakeSolver builds a model and returns its solver and variables.
func MakeSolver(c *ModelConfig) (*smt.Solver, *Variables, error) {
	m, err := Build(c)
	if err != nil {
		return nil, nil, err
	}
	return m.Solver, m.Vars, nil
}

// GeneratorNames lists the generators Build runs for c, in order.
func GeneratorNames(c *ModelConfig) ([]string, error) {
	order, err := generatorOrder(c)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(order))
	for i, gen := range order {
		names[i] = gen.name
	}
	return names, nil
}
