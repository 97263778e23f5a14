package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/xtxerr/coinlake/internal/dataset"
	"github.com/xtxerr/coinlake/internal/engine"
	"github.com/xtxerr/coinlake/internal/errors"
	"github.com/xtxerr/coinlake/internal/pipeline"
	"github.com/xtxerr/coinlake/internal/profile"
	"github.com/xtxerr/coinlake/internal/shell"
	"github.com/xtxerr/coinlake/internal/tablestore"
)

func newIngestCmd(a *app) *cobra.Command {
	var (
		format     string
		bucket     string
		key        string
		table      string
		steps      []string
		sourceName string
		writeMode  string
		schemaMode string
		withProf   bool
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load one object, transform it and commit it to a table",
		Example: `  coinlake ingest --format json --bucket crypto-raw --key markets.json --table markets \
    --step 'top=SELECT id, symbol, current_price FROM raw WHERE market_cap_rank <= 10' \
    --write-mode append --schema-mode merge`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlags(cmd, "format", "bucket", "key", "table"); err != nil {
				return err
			}
			run := pipeline.Run{
				Format:     engine.Format(format),
				Bucket:     bucket,
				Key:        key,
				SourceName: sourceName,
				TablePath:  a.tablePath(table),
				WriteMode:  tablestore.WriteMode(writeMode),
				SchemaMode: tablestore.SchemaMode(schemaMode),
				Profile:    withProf,
			}
			for _, s := range steps {
				name, sql, err := parseBinding("step", s)
				if err != nil {
					return err
				}
				run.Steps = append(run.Steps, pipeline.Step{Name: name, SQL: sql})
			}

			store, err := a.objectStore(cmd.Context())
			if err != nil {
				return err
			}
			tables, err := a.tableStore()
			if err != nil {
				return err
			}
			p, err := a.pipeline(store, tables)
			if err != nil {
				return err
			}

			res, err := p.Execute(cmd.Context(), run)
			if err != nil {
				return err
			}
			printResult(a.stdout, res)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&format, "format", "", "object format: csv, parquet or json")
	f.StringVar(&bucket, "bucket", "", "source bucket")
	f.StringVar(&key, "key", "", "source object key")
	f.StringVar(&table, "table", "", "table path, relative to table_store.root unless absolute")
	f.StringArrayVar(&steps, "step", nil, "SQL step as name=SELECT ... (repeatable, run in order)")
	f.StringVar(&sourceName, "source-name", "", "name the loaded object is registered under (default raw)")
	f.StringVar(&writeMode, "write-mode", "", "append or overwrite (default overwrite)")
	f.StringVar(&schemaMode, "schema-mode", "", "merge or overwrite (default overwrite)")
	f.BoolVar(&withProf, "profile", false, "print column statistics of the committed data")
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	var keepGoing bool
	cmd := &cobra.Command{
		Use:   "run [job]...",
		Short: "Run the jobs declared in the config file, in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs := a.cfg.Jobs
			if len(args) > 0 {
				byName := make(map[string]int, len(jobs))
				for i, j := range jobs {
					byName[j.Name] = i
				}
				selected := jobs[:0:0]
				for _, name := range args {
					i, ok := byName[name]
					if !ok {
						return errors.NewNotFound("job", name)
					}
					selected = append(selected, jobs[i])
				}
				jobs = selected
			}
			if len(jobs) == 0 {
				return &usageError{fmt.Errorf("no jobs configured")}
			}

			store, err := a.objectStore(cmd.Context())
			if err != nil {
				return err
			}
			tables, err := a.tableStore()
			if err != nil {
				return err
			}
			p, err := a.pipeline(store, tables)
			if err != nil {
				return err
			}

			var failed []error
			for _, job := range jobs {
				run, err := pipeline.RunFromJob(job, a.cfg.TableStore.Root)
				if err == nil {
					var res *pipeline.Result
					res, err = p.Execute(cmd.Context(), run)
					if err == nil {
						printResult(a.stdout, res)
						continue
					}
				}
				err = errors.Wrapf(err, "job %s", job.Name)
				if !keepGoing {
					return err
				}
				fmt.Fprintf(a.stderr, "error: %v\n", err)
				failed = append(failed, err)
			}
			return errors.Join(failed...)
		},
	}
	cmd.Flags().BoolVar(&keepGoing, "keep-going", false, "continue with the next job after a failure")
	return cmd
}

func newReadCmd(a *app) *cobra.Command {
	var (
		version int64
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "read <table>",
		Short: "Print a table, optionally as of an earlier version",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, err := a.tableStore()
			if err != nil {
				return err
			}
			path := a.tablePath(args[0])

			var ds *dataset.Dataset
			if cmd.Flags().Changed("version") {
				if version < 0 {
					return &usageError{fmt.Errorf("--version must be non-negative")}
				}
				ds, err = tables.ReadVersion(cmd.Context(), path, version)
			} else {
				ds, err = tables.Read(cmd.Context(), path)
			}
			if err != nil {
				return err
			}
			return shell.Render(a.stdout, ds, limit)
		},
	}
	cmd.Flags().Int64Var(&version, "version", 0, "table version to read (default latest)")
	cmd.Flags().IntVar(&limit, "limit", shell.DefaultMaxRows, "maximum rows to print (0 for all)")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history <table>",
		Short: "List the commits of a table, newest first",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, err := a.tableStore()
			if err != nil {
				return err
			}
			entries, err := tables.History(cmd.Context(), a.tablePath(args[0]))
			if err != nil {
				return err
			}

			tw := tablewriter.NewWriter(a.stdout)
			tw.SetAutoFormatHeaders(false)
			tw.SetHeader([]string{"version", "timestamp", "operation", "write mode", "schema mode", "rows", "+files", "-files", "schema"})
			for _, e := range entries {
				schema := ""
				if e.SchemaChanged {
					schema = "changed"
				}
				tw.Append([]string{
					strconv.FormatInt(e.Version, 10),
					e.Info.Timestamp.UTC().Format(time.RFC3339),
					e.Info.Operation,
					e.Info.WriteMode,
					e.Info.SchemaMode,
					strconv.FormatInt(e.Info.RowsAdded, 10),
					strconv.Itoa(e.Info.FilesAdded),
					strconv.Itoa(e.Info.FilesRemoved),
					schema,
				})
			}
			tw.Render()
			return nil
		},
	}
}

func newOptimizeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "optimize <table>",
		Short: "Rewrite the live data files of a table into one",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, err := a.tableStore()
			if err != nil {
				return err
			}
			res, err := tables.Compact(cmd.Context(), a.tablePath(args[0]))
			if err != nil {
				return err
			}
			if !res.Compacted() {
				fmt.Fprintf(a.stdout, "%s: nothing to compact at version %d\n", args[0], res.Version)
				return nil
			}
			fmt.Fprintf(a.stdout, "%s: committed version %d, %d files compacted (%d rows)\n",
				args[0], res.Version, res.FilesRemoved, res.Rows)
			return nil
		},
	}
}

func newVacuumCmd(a *app) *cobra.Command {
	var (
		retain time.Duration
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "vacuum <table>",
		Short: "Delete data files that no retained version references",
		Long: `vacuum deletes data files older than --retain that are not part of the
latest version or of any version committed within --retain. Versions
outside the window can no longer be read afterwards.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if retain < 0 {
				return &usageError{fmt.Errorf("--retain must be non-negative")}
			}
			tables, err := a.tableStore()
			if err != nil {
				return err
			}
			res, err := tables.Vacuum(cmd.Context(), a.tablePath(args[0]), retain, dryRun)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s: %s\n", args[0], res)
			return errors.Join(res.Errors...)
		},
	}
	cmd.Flags().DurationVar(&retain, "retain", 7*24*time.Hour, "keep versions committed within this window")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be deleted without deleting")
	return cmd
}

func newQueryCmd(a *app) *cobra.Command {
	var (
		loads  []string
		tables []string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run SQL over loaded objects and stored tables",
		Example: `  coinlake query --load m=crypto-raw/markets.json:json 'SELECT symbol, current_price FROM m'
  coinlake query --table p=prices 'SELECT coin, avg(price) FROM p GROUP BY coin'`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.objectStore(cmd.Context())
			if err != nil {
				return err
			}
			session, err := a.session(store)
			if err != nil {
				return err
			}
			defer session.Close()

			if err := a.bindSources(cmd.Context(), session, loads, tables); err != nil {
				return err
			}
			ds, err := session.Query(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return shell.Render(a.stdout, ds, limit)
		},
	}
	cmd.Flags().StringArrayVar(&loads, "load", nil, "register an object as name=bucket/key:format (repeatable)")
	cmd.Flags().StringArrayVar(&tables, "table", nil, "register a stored table as name=path (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows to print (0 for all)")
	return cmd
}

func newShellCmd(a *app) *cobra.Command {
	var (
		loads  []string
		tables []string
	)
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive SQL prompt",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.objectStore(cmd.Context())
			if err != nil {
				return err
			}
			session, err := a.session(store)
			if err != nil {
				return err
			}
			defer session.Close()

			if err := a.bindSources(cmd.Context(), session, loads, tables); err != nil {
				return err
			}
			ts, err := a.tableStore()
			if err != nil {
				return err
			}

			sh := shell.New(session,
				shell.WithTables(tableRoot{ts, a}),
				shell.WithLogger(a.logger))
			return sh.Run(cmd.Context(), a.stdin, a.stdout)
		},
	}
	cmd.Flags().StringArrayVar(&loads, "load", nil, "register an object as name=bucket/key:format (repeatable)")
	cmd.Flags().StringArrayVar(&tables, "table", nil, "register a stored table as name=path (repeatable)")
	return cmd
}

// tableRoot resolves shell table paths against the configured root.
type tableRoot struct {
	*tablestore.Store
	a *app
}

func (t tableRoot) Read(ctx context.Context, path string) (*dataset.Dataset, error) {
	return t.Store.Read(ctx, t.a.tablePath(path))
}

func (t tableRoot) ReadVersion(ctx context.Context, path string, v int64) (*dataset.Dataset, error) {
	return t.Store.ReadVersion(ctx, t.a.tablePath(path), v)
}

func printResult(w io.Writer, res *pipeline.Result) {
	fmt.Fprintf(w, "%s: committed version %d, %d rows (%d loaded) in %s\n",
		res.Run, res.Version, res.RowsWritten, res.RowsLoaded, res.Duration().Round(time.Millisecond))
	if res.Profile != nil {
		printProfile(w, res.Profile)
	}
}

func printProfile(w io.Writer, p *profile.Profile) {
	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeader([]string{"column", "count", "nulls", "min", "mean", "p50", "p90", "p99", "max"})
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', 6, 64) }
	for _, c := range p.Columns {
		tw.Append([]string{
			c.Name,
			strconv.FormatInt(c.Count, 10),
			strconv.FormatInt(c.Nulls, 10),
			f(c.Min), f(c.Mean), f(c.P50), f(c.P90), f(c.P99), f(c.Max),
		})
	}
	tw.Render()
}
