package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/iti/ccac"
	"github.com/iti/ccac/cache"
	"github.com/iti/ccac/logging"
	"github.com/iti/ccac/proofs"
	"github.com/iti/ccac/smt"
	"github.com/iti/ccac/sweep"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// errFailed is returned when a proof does not hold, so the exit status says so
var errFailed = errors.New("one or more proofs did not hold")

type globalFlags struct {
	timeout  time.Duration
	z3Path   string
	cacheDir string
	logLevel string
	logJSON  bool
	metrics  string
}

// session is what every subcommand needs: a logger and a runner
type session struct {
	log     *logging.Logger
	cache   *cache.Cache
	runner  *ccac.Runner
	metrics string
}

func (g *globalFlags) open() (*session, error) {
	level, err := logging.ParseLevel(g.logLevel)
	if err != nil {
		return nil, err
	}
	log := logging.New(logging.Config{Level: level, JSON: g.logJSON, Service: "ccac"})

	z := smt.NewZ3()
	z.Logger = log.Slog()
	if g.z3Path != "" {
		z.Path = g.z3Path
	}
	if !z.Available() {
		return nil, fmt.Errorf("z3 executable %q not found", z.Path)
	}

	cfg := cache.DefaultConfig()
	cfg.Path = g.cacheDir
	cfg.SyncWrites = g.cacheDir != ""
	cfg.Logger = log.Slog()
	c, err := cache.Open(cfg)
	if err != nil {
		return nil, err
	}
	return &session{log: log, cache: c, runner: ccac.NewRunner(z, c, log.Slog()), metrics: g.metrics}, nil
}

func (s *session) close() {
	if s.metrics != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(cache.NewCollector(s.cache, "ccac"))
		if err := prometheus.WriteToTextfile(s.metrics, reg); err != nil {
			s.log.Warn("writing metrics", "file", s.metrics, "error", err)
		}
	}
	if err := s.cache.Close(); err != nil {
		s.log.Warn("closing cache", "error", err)
	}
	s.log.Close()
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "ccac",
		Short:         "Verify congestion control algorithms against a symbolic network model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.DurationVar(&g.timeout, "timeout", 10*time.Minute, "solver time limit per query")
	pf.StringVar(&g.z3Path, "z3", "", "path of the z3 executable (default: z3 on PATH)")
	pf.StringVar(&g.cacheDir, "cache-dir", "", "directory of the persistent verdict cache (default: memory only)")
	pf.StringVar(&g.logLevel, "log-level", "info", "debug, info, warn or error")
	pf.BoolVar(&g.logJSON, "log-json", false, "log as JSON")
	pf.StringVar(&g.metrics, "metrics-file", "", "write cache statistics in prometheus text format on exit")

	root.AddCommand(newRunCmd(g), newProofCmd(g), newProofsCmd(), newSweepCmd(g), newScriptCmd())
	return root
}

// loadConfig reads a configuration file, or starts from the defaults when
// filename is empty, and applies the --set overrides.
func loadConfig(filename string, sets []string) (*ccac.ModelConfig, error) {
	c := ccac.DefaultConfig()
	if filename != "" {
		var err error
		c, err = ccac.ReadModelConfig(filename, ccac.IsYAML(filename), nil)
		if err != nil {
			return nil, err
		}
	}
	for _, kv := range sets {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("--set %q: want param=value", kv)
		}
		if err := c.SetParam(k, v); err != nil {
			return nil, err
		}
	}
	return c, c.Validate()
}

func newRunCmd(g *globalFlags) *cobra.Command {
	var (
		sets      []string
		period    int
		traceFile string
		modelFile string
	)
	cmd := &cobra.Command{
		Use:   "run [config.yaml|config.json]",
		Short: "Build the model of a configuration and ask for any trace of it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var filename string
			if len(args) > 0 {
				filename = args[0]
			}
			c, err := loadConfig(filename, sets)
			if err != nil {
				return err
			}
			sess, err := g.open()
			if err != nil {
				return err
			}
			defer sess.close()

			m, err := ccac.Build(c)
			if err != nil {
				return err
			}
			if period > 0 {
				if err := ccac.MakePeriodic(m, period); err != nil {
					return err
				}
			}
			res, err := sess.runner.Run(cmd.Context(), m.Solver, m.Config, g.timeout)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			if res.Satisfiable != smt.Sat {
				return nil
			}
			for _, verr := range ccac.CheckTrace(m, res.Model) {
				sess.log.Warn("trace check", "error", verr)
			}
			if modelFile != "" {
				if err := writeJSON(modelFile, res.Model); err != nil {
					return err
				}
			}
			if traceFile != "" {
				tm, err := ccac.ReplayTrace(m, res.Model, filename, true)
				if err != nil {
					return err
				}
				return tm.WriteToFile(traceFile)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "override a parameter, param=value (repeatable)")
	cmd.Flags().IntVar(&period, "period", 0, "restrict to traces periodic with this many timesteps")
	cmd.Flags().StringVar(&traceFile, "trace", "", "write the replayed trace here (.yaml or .json)")
	cmd.Flags().StringVar(&modelFile, "model", "", "write the satisfying assignment here as JSON")
	return cmd
}

func newProofCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "proof name...",
		Short: "Run named proofs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := g.open()
			if err != nil {
				return err
			}
			defer sess.close()

			failed := false
			for _, name := range args {
				p, err := proofs.Lookup(name)
				if err != nil {
					return err
				}
				rep, err := proofs.Run(cmd.Context(), sess.runner, p, g.timeout)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), rep.String())
				if !p.Exploratory && !rep.Holds() {
					failed = true
				}
			}
			if failed {
				return errFailed
			}
			return nil
		},
	}
}

func newProofsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "proofs",
		Short: "List the named proofs",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, name := range proofs.Names() {
				p, _ := proofs.Lookup(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%-36s %s\n", name, p.Description)
			}
		},
	}
}

func newSweepCmd(g *globalFlags) *cobra.Command {
	var (
		sets     []string
		axes     []string
		sample   int
		seed     string
		parallel int
	)
	cmd := &cobra.Command{
		Use:   "sweep [config]",
		Short: "Ask for a trace of every configuration in a parameter grid",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var filename string
			if len(args) > 0 {
				filename = args[0]
			}
			base, err := loadConfig(filename, sets)
			if err != nil {
				return err
			}
			grid := &sweep.Grid{Base: base}
			for _, a := range axes {
				param, values, ok := strings.Cut(a, "=")
				if !ok {
					return fmt.Errorf("--axis %q: want param=v1,v2,...", a)
				}
				grid.Axes = append(grid.Axes, sweep.Axis{Param: param, Values: strings.Split(values, ",")})
			}
			points, err := grid.Expand()
			if err != nil {
				return err
			}
			if sample > 0 {
				points = sweep.Sample(points, sample, sweep.Stream(seed))
			}

			sess, err := g.open()
			if err != nil {
				return err
			}
			defer sess.close()

			results, err := sweep.Run(cmd.Context(), sess.runner, points, nil, sweep.Options{Timeout: g.timeout, Parallelism: parallel})
			if err != nil {
				return err
			}
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%-40s %-8s %v\n", r.Point, r.Result.Satisfiable, r.Result.Elapsed.Round(time.Millisecond))
			}
			st := sess.cache.Stats()
			sess.log.Info("sweep finished", slog.Int("points", len(results)), slog.Int64("cache_hits", st.Hits), slog.Int64("solver_runs", st.Computes))
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "override a parameter of the base configuration (repeatable)")
	cmd.Flags().StringArrayVar(&axes, "axis", nil, "grid axis, param=v1,v2,... (repeatable)")
	cmd.Flags().IntVar(&sample, "sample", 0, "decide only this many points drawn at random")
	cmd.Flags().StringVar(&seed, "seed", "ccac-sweep", "seed of the random stream used by --sample")
	cmd.Flags().IntVar(&parallel, "parallel", 1, "solver runs in flight at once")
	return cmd
}

func newScriptCmd() *cobra.Command {
	var (
		sets    []string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "script [config]",
		Short: "Print the SMT-LIB script the solver would be given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var filename string
			if len(args) > 0 {
				filename = args[0]
			}
			c, err := loadConfig(filename, sets)
			if err != nil {
				return err
			}
			m, err := ccac.Build(c)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), smt.NewZ3().Script(m.Solver, timeout))
			return err
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "override a parameter, param=value (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "timeout option written into the script")
	return cmd
}

func printResult(w io.Writer, res *ccac.QueryResult) {
	cached := ""
	if res.Cached {
		cached = " (cached)"
	}
	fmt.Fprintf(w, "%s in %v%s, run %s\n", res.Satisfiable, res.Elapsed.Round(time.Millisecond), cached, res.RunID)
	if res.Reason != "" && res.Satisfiable == smt.Unknown {
		fmt.Fprintf(w, "reason: %s\n", res.Reason)
	}
	if len(res.Core) > 0 {
		fmt.Fprintf(w, "unsat core: %s\n", strings.Join(res.Core, " "))
	}
}

func writeJSON(filename string, v any) error {
	b, err := json.MarshalIndent(v, "", "\t")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, b, 0o644)
}
