package ccac

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/iti/ccac/cache"
	"github.com/iti/ccac/smt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("ccac")

// QueryResult is the verdict on one constraint set.
type QueryResult struct {
	Satisfiable smt.Result
	// Model is a satisfying assignment, set when Satisfiable is Sat
	Model smt.Assignment
	// Core names the assertions of an unsatisfiable core, when requested
	Core []string
	// Reason says why the verdict is Unknown, if the solver said
	Reason string

	Elapsed time.Duration
	Cached  bool
	RunID   string
	Key     string
}

// Runner sends queries to a backend, remembering verdicts in a cache.
type Runner struct {
	Backend smt.Backend
	// Cache may be nil, in which case every query runs
	Cache  *cache.Cache
	Logger *slog.Logger
}

// NewRunner returns a runner over backend and c.
func NewRunner(backend smt.Backend, c *cache.Cache, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{Backend: backend, Cache: c, Logger: logger}
}

var (
	defaultRunnerOnce sync.Once
	defaultRunner     *Runner
)

// DefaultRunner runs z3 from PATH behind a process-wide memory cache.
func DefaultRunner() *Runner {
	defaultRunnerOnce.Do(func() {
		defaultRunner = NewRunner(smt.NewZ3(), cache.New(), slog.Default())
	})
	return defaultRunner
}

// RunQuery decides s with the default runner.
func RunQuery(ctx context.Context, s *smt.Solver, c *ModelConfig, timeout time.Duration) (*QueryResult, error) {
	return DefaultRunner().Run(ctx, s, c, timeout)
}

// Run decides s within timeout. Exhausting the timeout is not an error: the
// verdict is Unknown. The configuration is part of the cache key, so the
// same constraints built under different options are cached apart.
//
// A cached Unknown is only reused for a query given no more time than the
// run that produced it, and a cached model is re-checked against s before it
// is returned.
func (r *Runner) Run(ctx context.Context, s *smt.Solver, c *ModelConfig, timeout time.Duration) (*QueryResult, error) {
	if r.Backend == nil {
		return nil, fmt.Errorf("%w: no backend", smt.ErrSolver)
	}
	key := s.Key(c.Canonical())
	ctx, span := tracer.Start(ctx, "ccac.Query", trace.WithAttributes(
		attribute.String("query.key", key),
		attribute.Int("query.assertions", s.Len()),
		attribute.Int64("query.timeout_ms", timeout.Milliseconds()),
	))
	defer span.End()

	compute := func(ctx context.Context) (*cache.Entry, error) {
		runID := uuid.NewString()
		start := time.Now()
		out, err := r.Backend.Solve(ctx, s, timeout)
		if err != nil {
			return nil, err
		}
		e := &cache.Entry{
			Key:       key,
			Result:    out.Result,
			Model:     out.Model,
			Core:      out.Core,
			Reason:    out.Reason,
			Elapsed:   time.Since(start),
			Timeout:   timeout,
			RunID:     runID,
			CreatedAt: time.Now(),
		}
		r.logger().Info("query decided",
			"run_id", runID, "result", e.Result.String(), "elapsed", e.Elapsed, "assertions", s.Len())
		return e, nil
	}
	usable := func(e *cache.Entry) bool {
		// zero means no limit
		covers := e.Timeout <= 0 || (timeout > 0 && e.Timeout >= timeout)
		if e.Result == smt.Unknown && !covers {
			return false
		}
		if e.Result == smt.Sat {
			if err := s.Verify(e.Model); err != nil {
				r.logger().Warn("cached model does not satisfy query", "key", key, "error", err)
				return false
			}
		}
		return true
	}

	var e *cache.Entry
	var cached bool
	var err error
	if r.Cache == nil {
		e, err = compute(ctx)
	} else {
		e, cached, err = r.Cache.GetOrCompute(ctx, key, usable, compute)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("query.result", e.Result.String()), attribute.Bool("query.cached", cached))

	return &QueryResult{
		Satisfiable: e.Result,
		Model:       e.Model,
		Core:        e.Core,
		Reason:      e.Reason,
		Elapsed:     e.Elapsed,
		Cached:      cached,
		RunID:       e.RunID,
		Key:         key,
	}, nil
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}
