package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "coinlake",
		Short: "Market data ingestion into versioned tables",
		Long: `coinlake snapshots market data into an object store, loads objects into an
in-memory SQL engine, transforms them and commits the result to versioned
tables with time travel.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err}
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgPath, "config", "c", "", "config file path (defaults and environment only when empty)")
	pf.StringVar(&a.envFile, "env-file", "", "dotenv file to load (default .env)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	pf.StringVar(&a.metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address while running")

	root.AddCommand(
		newBucketCmd(a),
		newPutCmd(a),
		newLsCmd(a),
		newFetchCmd(a),
		newIngestCmd(a),
		newRunCmd(a),
		newReadCmd(a),
		newHistoryCmd(a),
		newOptimizeCmd(a),
		newVacuumCmd(a),
		newQueryCmd(a),
		newShellCmd(a),
		newVersionCmd(a),
	)
	return root
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  exactArgs(0),
		// No configuration needed.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "coinlake %s\n", Version)
			fmt.Fprintf(a.stdout, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(a.stdout, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
