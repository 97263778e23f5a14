package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/xtxerr/coinlake/internal/dataset"
	"github.com/xtxerr/coinlake/internal/engine"
	"github.com/xtxerr/coinlake/internal/logging"
	"github.com/xtxerr/coinlake/internal/objectstore"
	"github.com/xtxerr/coinlake/internal/profile"
	"github.com/xtxerr/coinlake/internal/tablestore"
)

// Session is the part of an engine session a run needs.
type Session interface {
	LoadObject(ctx context.Context, format engine.Format, bucket, key string) (*dataset.Dataset, error)
	Register(ctx context.Context, ds *dataset.Dataset, name string) error
	Has(ctx context.Context, name string) (bool, error)
	Query(ctx context.Context, sql string) (*dataset.Dataset, error)
	Close() error
}

// SessionFactory opens a fresh session over store. Each run gets its own.
type SessionFactory func(store objectstore.Store) (Session, error)

// EngineSessions returns a factory of DuckDB sessions configured by opts.
func EngineSessions(opts engine.Options) SessionFactory {
	return func(store objectstore.Store) (Session, error) {
		return engine.New(store, opts)
	}
}

// TableWriter commits datasets to tables. *tablestore.Store implements it.
type TableWriter interface {
	Write(ctx context.Context, path string, ds *dataset.Dataset, wm tablestore.WriteMode, sm tablestore.SchemaMode) (*tablestore.CommitResult, error)
}

// Recorder receives stage timings and run outcomes. *metrics.Metrics
// implements it.
type Recorder interface {
	ObserveStage(stage string, d time.Duration, err error)
	RunFinished(err error)
	RowsWritten(n int64)
}

type noopRecorder struct{}

func (noopRecorder) ObserveStage(string, time.Duration, error) {}
func (noopRecorder) RunFinished(error)                         {}
func (noopRecorder) RowsWritten(int64)                         {}

// Result describes a run, complete or not.
type Result struct {
	Run     string
	Timings []StageTiming

	RowsLoaded  int64
	RowsWritten int64

	// Version is the committed table version, -1 if nothing was committed.
	Version int64
	Schema  dataset.Schema

	Profile *profile.Profile
}

// Duration is the sum of all stage timings.
func (r *Result) Duration() time.Duration {
	var d time.Duration
	for _, t := range r.Timings {
		d += t.Duration
	}
	return d
}

// Stats holds pipeline counters.
type Stats struct {
	RunsStarted   atomic.Int64
	RunsSucceeded atomic.Int64
	RunsFailed    atomic.Int64
	RowsWritten   atomic.Int64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithRecorder reports stage timings and outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithProfileAccuracy sets the relative accuracy of profile quantiles.
func WithProfileAccuracy(acc float64) Option {
	return func(p *Pipeline) {
		p.accuracy = acc
	}
}

// Pipeline orchestrates a run: Fetch → Transform → Persist (→ Profile).
// A Pipeline is safe for concurrent use; each run has its own session.
type Pipeline struct {
	store      objectstore.Store
	tables     TableWriter
	newSession SessionFactory

	logger   *slog.Logger
	recorder Recorder
	accuracy float64

	stats Stats
}

// NewPipeline creates a pipeline reading from store and writing to tables.
func NewPipeline(store objectstore.Store, tables TableWriter, newSession SessionFactory, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("pipeline: object store is required")
	}
	if tables == nil {
		return nil, fmt.Errorf("pipeline: table writer is required")
	}
	if newSession == nil {
		return nil, fmt.Errorf("pipeline: session factory is required")
	}

	p := &Pipeline{
		store:      store,
		tables:     tables,
		newSession: newSession,
		logger:     logging.Component("pipeline"),
		recorder:   noopRecorder{},
		accuracy:   profile.DefaultAccuracy,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Stats returns the pipeline counters.
func (p *Pipeline) Stats() *Stats {
	return &p.stats
}

// Execute performs run. The returned Result is never nil and carries the
// timings of every stage that ran, also on failure. Errors are
// *StageError; nothing is committed unless the persist stage succeeds.
func (p *Pipeline) Execute(ctx context.Context, run Run) (res *Result, err error) {
	run = run.withDefaults()
	res = &Result{Run: run.Name, Version: -1}
	logger := p.logger.With(
		"run", run.Name,
		"bucket", run.Bucket,
		"key", run.Key,
		"table", run.TablePath)

	p.stats.RunsStarted.Add(1)
	started := time.Now()
	defer func() {
		p.recorder.RunFinished(err)
		if err != nil {
			p.stats.RunsFailed.Add(1)
			logger.Error("run failed", "duration", time.Since(started), "error", err)
			return
		}
		p.stats.RunsSucceeded.Add(1)
		logger.Info("run completed",
			"duration", time.Since(started),
			"rows", res.RowsWritten,
			"version", res.Version)
	}()

	var session Session
	err = p.stage(ctx, res, logger, StageSetup, func() error {
		if err := run.Validate(); err != nil {
			return err
		}
		s, err := p.newSession(p.store)
		if err != nil {
			return fmt.Errorf("open session: %w", err)
		}
		session = s
		return nil
	})
	if err != nil {
		return res, err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("session close failed", "error", cerr)
		}
	}()

	var current *dataset.Dataset
	err = p.stage(ctx, res, logger, StageFetch, func() error {
		ds, err := session.LoadObject(ctx, run.Format, run.Bucket, run.Key)
		if err != nil {
			return err
		}
		current = ds
		res.RowsLoaded = int64(ds.Len())
		logger.Debug("object loaded", "rows", ds.Len(), "columns", len(ds.Schema))
		return nil
	})
	if err != nil {
		return res, err
	}

	err = p.stage(ctx, res, logger, StageTransform, func() error {
		out, err := p.transform(ctx, session, logger, run, current)
		if err != nil {
			return err
		}
		current = out
		return nil
	})
	if err != nil {
		return res, err
	}

	err = p.stage(ctx, res, logger, StagePersist, func() error {
		cr, err := p.tables.Write(ctx, run.TablePath, current, run.WriteMode, run.SchemaMode)
		if err != nil {
			return err
		}
		res.Version = cr.Version
		res.RowsWritten = cr.RowsWritten
		res.Schema = cr.Schema
		p.stats.RowsWritten.Add(cr.RowsWritten)
		p.recorder.RowsWritten(cr.RowsWritten)
		return nil
	})
	if err != nil {
		return res, err
	}

	if run.Profile {
		err = p.stage(ctx, res, logger, StageProfile, func() error {
			prof, err := profile.Compute(current, p.accuracy)
			if err != nil {
				return err
			}
			res.Profile = prof
			return nil
		})
		if err != nil {
			return res, err
		}
	}

	return res, nil
}

// transform registers the source and runs each step in order. Steps see
// the source and every earlier step by name. A step result replaces any
// earlier binding of the same name.
func (p *Pipeline) transform(ctx context.Context, session Session, logger *slog.Logger, run Run, source *dataset.Dataset) (*dataset.Dataset, error) {
	if err := session.Register(ctx, source, run.SourceName); err != nil {
		return nil, fmt.Errorf("register source %s: %w", run.SourceName, err)
	}

	current := source
	for _, step := range run.Steps {
		if err := ctx.Err(); err != nil {
			return nil, &StageError{Stage: StageTransform, Step: step.Name, Err: err}
		}

		if exists, err := session.Has(ctx, step.Name); err == nil && exists {
			logger.Warn("step shadows existing table", "step", step.Name)
		}

		start := time.Now()
		out, err := session.Query(ctx, step.SQL)
		if err != nil {
			return nil, &StageError{Stage: StageTransform, Step: step.Name, Err: err}
		}
		if err := session.Register(ctx, out, step.Name); err != nil {
			return nil, &StageError{Stage: StageTransform, Step: step.Name, Err: err}
		}
		logger.Debug("step completed",
			"step", step.Name,
			"rows", out.Len(),
			"duration", time.Since(start))
		current = out
	}
	return current, nil
}

// stage runs fn as one timed stage. Cancellation is checked before the
// stage starts.
func (p *Pipeline) stage(ctx context.Context, res *Result, logger *slog.Logger, stage Stage, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: stage, Err: err}
	}

	logger.Debug("stage started", "stage", stage.String())
	start := time.Now()
	err := fn()
	d := time.Since(start)

	res.Timings = append(res.Timings, StageTiming{Stage: stage, Duration: d})
	p.recorder.ObserveStage(stage.String(), d, err)

	if err != nil {
		logger.Warn("stage failed", "stage", stage.String(), "duration", d, "error", err)
		if se, ok := err.(*StageError); ok {
			return se
		}
		return &StageError{Stage: stage, Err: err}
	}
	logger.Info("stage completed", "stage", stage.String(), "duration", d)
	return nil
}
