// Package sweep runs one query over many configurations. Theorems about a
// particular buffer size or horizon only gain confidence when they are
// re-proven across a range of them; a Grid names the range, Expand lists its
// points and Run decides them in parallel against a shared runner.
package sweep

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/iti/ccac"
	"github.com/iti/rngstream"
	"golang.org/x/sync/errgroup"
)

// Axis is one parameter and the values it takes, in the string form
// ModelConfig.SetParam accepts.
type Axis struct {
	Param  string   `json:"param" yaml:"param"`
	Values []string `json:"values" yaml:"values"`
}

// Grid is the cartesian product of its axes applied to Base.
type Grid struct {
	Base *ccac.ModelConfig
	Axes []Axis
}

// Point is one configuration of a grid and the settings that produced it.
type Point struct {
	Index    int
	Config   *ccac.ModelConfig
	Settings []Setting
}

// Setting is one axis value.
type Setting struct {
	Param, Value string
}

func (p Point) String() string {
	parts := make([]string, len(p.Settings))
	for i, st := range p.Settings {
		parts[i] = st.Param + "=" + st.Value
	}
	return strings.Join(parts, ",")
}

// Size is the number of points in the grid.
func (g *Grid) Size() int {
	n := 1
	for _, ax := range g.Axes {
		n *= len(ax.Values)
	}
	return n
}

// Expand lists every point of the grid, the last axis varying fastest. Every
// point is validated; the first invalid one is reported with its settings.
func (g *Grid) Expand() ([]Point, error) {
	if g.Base == nil {
		return nil, fmt.Errorf("sweep: grid without a base configuration")
	}
	for _, ax := range g.Axes {
		if len(ax.Values) == 0 {
			return nil, fmt.Errorf("sweep: axis %s has no values", ax.Param)
		}
	}

	size := g.Size()
	points := make([]Point, 0, size)
	idx := make([]int, len(g.Axes))
	for i := 0; i < size; i++ {
		cfg := g.Base.Clone()
		settings := make([]Setting, len(g.Axes))
		for a, ax := range g.Axes {
			settings[a] = Setting{Param: ax.Param, Value: ax.Values[idx[a]]}
			if err := cfg.SetParam(ax.Param, ax.Values[idx[a]]); err != nil {
				return nil, err
			}
		}
		p := Point{Index: i, Config: cfg, Settings: settings}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("sweep: point %s: %w", p, err)
		}
		points = append(points, p)

		// odometer
		for a := len(idx) - 1; a >= 0; a-- {
			idx[a]++
			if idx[a] < len(g.Axes[a].Values) {
				break
			}
			idx[a] = 0
		}
	}
	return points, nil
}

// seedModulus bounds every component of a stream seed; it is the smaller
// of the two moduli of the generator.
const seedModulus = 4294944443

// Stream returns a random stream whose state is derived from seed alone, so
// equal seeds draw equal numbers regardless of how many streams were created
// before.
func Stream(seed string) *rngstream.RngStream {
	rng := rngstream.New(seed)
	sum := sha256.Sum256([]byte(seed))
	state := make([]uint64, 6)
	for i := range state {
		state[i] = uint64(binary.BigEndian.Uint32(sum[4*i:]))%(seedModulus-1) + 1
	}
	rng.SetSeed(state)
	return rng
}

// Sample picks k points without replacement, in their original order. The
// choice is a function of the stream's state, so streams from Stream with
// the same seed give the same sample.
func Sample(points []Point, k int, rng *rngstream.RngStream) []Point {
	if k >= len(points) {
		return points
	}
	perm := make([]int, len(points))
	for i := range perm {
		perm[i] = i
	}
	// partial Fisher-Yates
	for i := 0; i < k; i++ {
		j := i + int(rng.RandU01()*float64(len(perm)-i))
		if j >= len(perm) {
			j = len(perm) - 1
		}
		perm[i], perm[j] = perm[j], perm[i]
	}
	chosen := make([]bool, len(points))
	for _, i := range perm[:k] {
		chosen[i] = true
	}
	out := make([]Point, 0, k)
	for i, p := range points {
		if chosen[i] {
			out = append(out, p)
		}
	}
	return out
}

// Property adds a query's constraints to a freshly built model.
type Property func(m *ccac.Model) error

// Result is the verdict at one point.
type Result struct {
	Point  Point
	Result *ccac.QueryResult
}

// Options bound a sweep.
type Options struct {
	// Timeout is handed to the runner for every point
	Timeout time.Duration
	// Parallelism caps concurrent solver runs; zero or less means one
	Parallelism int
}

// Run builds every point, adds prop and decides it with runner. Results are
// in point order. The first failure cancels the points not yet started and
// is returned; verdicts of Unknown are results, not failures.
func Run(ctx context.Context, runner *ccac.Runner, points []Point, prop Property, opts Options) ([]Result, error) {
	limit := opts.Parallelism
	if limit < 1 {
		limit = 1
	}
	results := make([]Result, len(points))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, p := range points {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m, err := ccac.Build(p.Config)
			if err != nil {
				return fmt.Errorf("sweep: point %s: %w", p, err)
			}
			if prop != nil {
				if err := prop(m); err != nil {
					return fmt.Errorf("sweep: point %s: %w", p, err)
				}
			}
			res, err := runner.Run(gctx, m.Solver, m.Config, opts.Timeout)
			if err != nil {
				return fmt.Errorf("sweep: point %s: %w", p, err)
			}
			results[i] = Result{Point: p, Result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
