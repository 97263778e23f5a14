package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xtxerr/coinlake/internal/coingecko"
	"github.com/xtxerr/coinlake/internal/engine"
	"github.com/xtxerr/coinlake/internal/errors"
	"github.com/xtxerr/coinlake/internal/loader"
	"github.com/xtxerr/coinlake/internal/logging"
	"github.com/xtxerr/coinlake/internal/metrics"
	"github.com/xtxerr/coinlake/internal/objectstore"
	"github.com/xtxerr/coinlake/internal/pipeline"
	"github.com/xtxerr/coinlake/internal/tablestore"
)

// app holds what every subcommand shares: configuration, logger and
// metrics. It is filled in by the root command's PersistentPreRunE.
type app struct {
	stdin          io.Reader
	stdout, stderr io.Writer

	// flags
	cfgPath       string
	envFile       string
	logLevel      string
	metricsListen string

	cfg     *loader.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{stdin: stdin, stdout: stdout, stderr: stderr}
}

// setup loads .env and the config file, applies flag overrides,
// validates and initialises logging and metrics.
func (a *app) setup(cmd *cobra.Command) error {
	if err := loader.LoadDotEnv(a.envFiles()...); err != nil {
		return err
	}

	cfg, err := loader.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.metricsListen != "" {
		cfg.Metrics.Listen = a.metricsListen
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config")
	}
	a.cfg = cfg

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logging.InitWithHandler(logging.NewHandler(a.stderr, level, cfg.Log.JSON))
	a.logger = logging.Component("cli")

	a.metrics = metrics.New()
	if cfg.Metrics.Listen != "" {
		go func() {
			if err := a.metrics.Serve(cmd.Context(), cfg.Metrics.Listen, logging.Component("metrics")); err != nil {
				a.logger.Error("metrics endpoint failed", "addr", cfg.Metrics.Listen, "error", err)
			}
		}()
	}

	a.logger.Debug("configuration loaded",
		"config", a.cfgPath,
		"backend", cfg.ObjectStore.Backend,
		"table_root", cfg.TableStore.Root)
	return nil
}

func (a *app) envFiles() []string {
	if a.envFile == "" {
		return nil
	}
	return []string{a.envFile}
}

// objectStore builds the configured backend, instrumented with metrics.
func (a *app) objectStore(ctx context.Context) (objectstore.Store, error) {
	store, err := objectstore.New(ctx, a.cfg.ObjectStore, logging.Component("objectstore"))
	if err != nil {
		return nil, err
	}
	return metrics.InstrumentStore(store, a.metrics), nil
}

func (a *app) tableStore() (*tablestore.Store, error) {
	return tablestore.NewStore(tablestore.Options{
		Compression: a.cfg.TableStore.Compression,
		Logger:      logging.Component("tablestore"),
	})
}

// tablePath resolves a table argument against the configured root.
func (a *app) tablePath(table string) string {
	return pipeline.ResolveTablePath(a.cfg.TableStore.Root, table)
}

func (a *app) engineOptions() engine.Options {
	return engine.Options{
		MemoryLimit: a.cfg.Engine.MemoryLimit,
		Threads:     a.cfg.Engine.Threads,
		ScratchDir:  a.cfg.Engine.ScratchDir,
		Logger:      logging.Component("engine"),
	}
}

func (a *app) session(store objectstore.Store) (*engine.Session, error) {
	return engine.New(store, a.engineOptions())
}

func (a *app) pipeline(store objectstore.Store, tables *tablestore.Store) (*pipeline.Pipeline, error) {
	return pipeline.NewPipeline(store, tables,
		pipeline.EngineSessions(a.engineOptions()),
		pipeline.WithLogger(logging.Component("pipeline")),
		pipeline.WithRecorder(a.metrics))
}

func (a *app) coingecko() (*coingecko.Client, error) {
	if err := a.cfg.CoinGecko.ValidateAPI(); err != nil {
		return nil, err
	}
	return coingecko.New(a.cfg.CoinGecko.APIURL,
		coingecko.WithTimeout(a.cfg.CoinGecko.Timeout.Duration()),
		coingecko.WithRateLimit(a.cfg.CoinGecko.RateLimitRPS),
		coingecko.WithLogger(logging.Component("coingecko")))
}

// =============================================================================
// Argument helpers
// =============================================================================

func exactArgs(n int) cobra.PositionalArgs {
	return wrapArgs(cobra.ExactArgs(n))
}

func rangeArgs(lo, hi int) cobra.PositionalArgs {
	return wrapArgs(cobra.RangeArgs(lo, hi))
}

func wrapArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &usageError{err}
		}
		return nil
	}
}

// requireFlags fails with a usage error naming every unset flag.
func requireFlags(cmd *cobra.Command, names ...string) error {
	var missing []string
	for _, n := range names {
		if !cmd.Flags().Changed(n) {
			missing = append(missing, "--"+n)
		}
	}
	if len(missing) > 0 {
		return &usageError{fmt.Errorf("required flag(s) %s not set", strings.Join(missing, ", "))}
	}
	return nil
}

// source is a name=bucket/key:format binding from --load.
type source struct {
	name   string
	bucket string
	key    string
	format engine.Format
}

func parseSource(s string) (source, error) {
	bad := func() (source, error) {
		return source{}, &usageError{fmt.Errorf("--load %q: want name=bucket/key:format", s)}
	}
	name, obj, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return bad()
	}
	i := strings.LastIndex(obj, ":")
	if i < 0 {
		return bad()
	}
	format, err := engine.ParseFormat(obj[i+1:])
	if err != nil {
		return source{}, &usageError{fmt.Errorf("--load %q: %w", s, err)}
	}
	bucket, key, ok := strings.Cut(obj[:i], "/")
	if !ok || bucket == "" || key == "" {
		return bad()
	}
	return source{name: name, bucket: bucket, key: key, format: format}, nil
}

// parseBinding splits name=value.
func parseBinding(flag, s string) (string, string, error) {
	name, value, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(value) == "" {
		return "", "", &usageError{fmt.Errorf("--%s %q: want name=value", flag, s)}
	}
	return strings.TrimSpace(name), strings.TrimSpace(value), nil
}

// bindSources loads --load objects and --table tables into session.
func (a *app) bindSources(ctx context.Context, session *engine.Session, loads, tables []string) error {
	var ts *tablestore.Store
	for _, t := range tables {
		name, path, err := parseBinding("table", t)
		if err != nil {
			return err
		}
		if ts == nil {
			if ts, err = a.tableStore(); err != nil {
				return err
			}
		}
		ds, err := ts.Read(ctx, a.tablePath(path))
		if err != nil {
			return err
		}
		if err := session.Register(ctx, ds, name); err != nil {
			return err
		}
	}

	for _, l := range loads {
		src, err := parseSource(l)
		if err != nil {
			return err
		}
		ds, err := session.LoadObject(ctx, src.format, src.bucket, src.key)
		if err != nil {
			return err
		}
		if err := session.Register(ctx, ds, src.name); err != nil {
			return err
		}
		a.logger.Debug("source registered", "name", src.name, "bucket", src.bucket, "key", src.key, "rows", ds.Len())
	}
	return nil
}
