package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/coinlake/config"
	"github.com/xtxerr/coinlake/internal/coingecko"
	"github.com/xtxerr/coinlake/internal/engine"
	"github.com/xtxerr/coinlake/internal/errors"
)

func newBucketCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bucket",
		Short: "Manage buckets",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "ensure <bucket>...",
		Short: "Create buckets that do not exist yet",
		Args:  wrapArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.objectStore(cmd.Context())
			if err != nil {
				return err
			}
			for _, b := range args {
				if err := store.EnsureBucket(cmd.Context(), b); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "bucket %s ready\n", b)
			}
			return nil
		},
	})
	return cmd
}

func newPutCmd(a *app) *cobra.Command {
	var contentType string
	cmd := &cobra.Command{
		Use:   "put <bucket> <key> <file|->",
		Short: "Store a local file (or stdin) as an object",
		Args:  exactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, key, path := args[0], args[1], args[2]

			var (
				r    io.Reader
				size int64 = -1
			)
			if path == "-" {
				r = a.stdin
			} else {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				st, err := f.Stat()
				if err != nil {
					return err
				}
				r, size = f, st.Size()
			}

			if contentType == "" {
				contentType = engine.ContentTypeForKey(key)
			}

			store, err := a.objectStore(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.PutObject(cmd.Context(), bucket, key, r, size, contentType); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "stored %s/%s\n", bucket, key)
			return nil
		},
	}
	cmd.Flags().StringVar(&contentType, "content-type", "", "content type (inferred from the key extension when empty)")
	return cmd
}

func newLsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ls <bucket> [prefix]",
		Short: "List objects",
		Args:  rangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 2 {
				prefix = args[1]
			}

			store, err := a.objectStore(cmd.Context())
			if err != nil {
				return err
			}
			objects, err := store.ListObjects(cmd.Context(), args[0], prefix)
			if err != nil {
				return err
			}

			tw := tablewriter.NewWriter(a.stdout)
			tw.SetAutoFormatHeaders(false)
			tw.SetHeader([]string{"key", "size", "content type", "modified"})
			for _, o := range objects {
				tw.Append([]string{
					o.Key,
					strconv.FormatInt(o.Size, 10),
					o.ContentType,
					o.LastModified.UTC().Format(time.DateTime),
				})
			}
			tw.Render()
			return nil
		},
	}
}

func newFetchCmd(a *app) *cobra.Command {
	var (
		bucket     string
		prefix     string
		vsCurrency string
		perPage    int
		coins      []string
		days       int
		workers    int
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Snapshot market data from CoinGecko into the object store",
		Long: `fetch stores the raw JSON of /coins/markets and, for every --coin, of
/coins/{id}/market_chart under <bucket>/<prefix>. Endpoints are fetched
concurrently; the client rate limit still applies.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.coingecko()
			if err != nil {
				return err
			}
			store, err := a.objectStore(ctx)
			if err != nil {
				return err
			}
			if prefix == "" {
				prefix = "coingecko/" + time.Now().UTC().Format("2006-01-02T15-04-05") + "/"
			}

			type job struct {
				key, endpoint string
				params        url.Values
			}
			jobs := []job{{
				key:      prefix + "markets.json",
				endpoint: coingecko.EndpointCoinsMarkets,
				params:   coingecko.MarketsParams(vsCurrency, perPage, 1),
			}}
			for _, c := range coins {
				jobs = append(jobs, job{
					key:      prefix + "market_chart/" + c + ".json",
					endpoint: coingecko.MarketChartEndpoint(c),
					params:   coingecko.MarketChartParams(vsCurrency, days),
				})
			}

			if workers < 1 {
				workers = 1
			}
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(workers)
			sizes := make([]int64, len(jobs))
			for i, j := range jobs {
				g.Go(func() error {
					n, err := client.Snapshot(gctx, store, bucket, j.key, j.endpoint, j.params)
					if err != nil {
						return errors.Wrap(err, j.endpoint)
					}
					sizes[i] = n
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			for i, j := range jobs {
				fmt.Fprintf(a.stdout, "%s/%s\t%d bytes\n", bucket, j.key, sizes[i])
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&bucket, "bucket", config.DefaultRawBucket, "destination bucket (must exist)")
	f.StringVar(&prefix, "prefix", "", "key prefix (default coingecko/<timestamp>/)")
	f.StringVar(&vsCurrency, "vs-currency", "usd", "quote currency")
	f.IntVar(&perPage, "per-page", 100, "coins per markets page")
	f.StringSliceVar(&coins, "coin", nil, "coin id to snapshot the market chart of (repeatable)")
	f.IntVar(&days, "days", 1, "market chart history in days")
	f.IntVar(&workers, "workers", 4, "concurrent requests")
	return cmd
}
