package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/coinlake/internal/errors"
	tu "github.com/xtxerr/coinlake/internal/testing"
)

type env struct {
	dir    string
	config string
}

func newEnv(t *testing.T, extra string) *env {
	t.Helper()
	for _, k := range []string{"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_SECURE", "COINGECKO_API_URL", "COINLAKE_LOG_LEVEL"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	dir := t.TempDir()
	cfg := `
log:
  level: warn
object_store:
  backend: local
  local_root: ` + filepath.Join(dir, "objects") + `
table_store:
  root: ` + filepath.Join(dir, "tables") + `
  compression: snappy
` + extra
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return &env{dir: dir, config: path}
}

// run executes the CLI and returns exit code, stdout and stderr.
func (e *env) run(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	args = append([]string{"--config", e.config}, args...)
	code := execute(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (e *env) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	code, out, errOut := e.run(t, "", args...)
	require.Equal(t, errors.ExitOK, code, "args %v\nstderr: %s", args, errOut)
	return out
}

func (e *env) seed(t *testing.T) {
	t.Helper()
	file := filepath.Join(e.dir, "markets.csv")
	require.NoError(t, os.WriteFile(file, []byte(tu.MarketsCSV), 0o644))
	e.mustRun(t, "bucket", "ensure", "crypto-raw")
	e.mustRun(t, "put", "crypto-raw", "markets.csv", file)
}

func TestVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"version"}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, errors.ExitOK, code)
	assert.Contains(t, stdout.String(), "coinlake dev")
}

func TestObjectCommands(t *testing.T) {
	e := newEnv(t, "")
	e.seed(t)

	out := e.mustRun(t, "bucket", "ensure", "crypto-raw")
	assert.Contains(t, out, "bucket crypto-raw ready")

	out = e.mustRun(t, "ls", "crypto-raw")
	assert.Contains(t, out, "markets.csv")
	assert.Contains(t, out, "text/csv")

	code, out, _ := e.run(t, "id\n1\n", "put", "crypto-raw", "stdin.csv", "-")
	require.Equal(t, errors.ExitOK, code)
	assert.Contains(t, out, "stored crypto-raw/stdin.csv")

	code, _, errOut := e.run(t, "", "put", "missing-bucket", "a.csv", "-")
	assert.Equal(t, errors.ExitNotFound, code)
	assert.Contains(t, errOut, "bucket not found")
}

func TestIngestReadHistory(t *testing.T) {
	e := newEnv(t, "")
	e.seed(t)

	out := e.mustRun(t, "ingest", "--format", "csv",
		"--bucket", "crypto-raw", "--key", "markets.csv", "--table", "markets",
		"--step", "top=SELECT id, current_price FROM raw WHERE market_cap_rank <= 2",
		"--profile")
	assert.Contains(t, out, "committed version 0, 2 rows (3 loaded)")
	assert.Contains(t, out, "current_price")

	out = e.mustRun(t, "ingest", "--format", "csv",
		"--bucket", "crypto-raw", "--key", "markets.csv", "--table", "markets",
		"--write-mode", "append", "--schema-mode", "merge")
	assert.Contains(t, out, "committed version 1, 3 rows")

	out = e.mustRun(t, "read", "markets")
	assert.Contains(t, out, "(5 rows)")
	assert.Contains(t, out, "symbol")

	out = e.mustRun(t, "read", "markets", "--version", "0")
	assert.Contains(t, out, "(2 rows)")
	assert.NotContains(t, out, "symbol")

	out = e.mustRun(t, "history", "markets")
	assert.Contains(t, out, "append")
	assert.Contains(t, out, "overwrite")
	// Newest first: the append commit is listed before the initial overwrite.
	assert.Less(t, strings.Index(out, "append"), strings.Index(out, "overwrite"))

	out = e.mustRun(t, "query", "--table", "m=markets", "SELECT count(*) AS n FROM m")
	assert.Contains(t, out, "5")

	out = e.mustRun(t, "query", "--load", "raw=crypto-raw/markets.csv:csv", "SELECT symbol FROM raw WHERE market_cap_rank = 3")
	assert.Contains(t, out, "usdt")
}

func TestOptimizeVacuum(t *testing.T) {
	e := newEnv(t, "")
	e.seed(t)
	for range 2 {
		e.mustRun(t, "ingest", "--format", "csv", "--bucket", "crypto-raw", "--key", "markets.csv", "--table", "markets", "--write-mode", "append")
	}

	out := e.mustRun(t, "optimize", "markets")
	assert.Contains(t, out, "markets: committed version 2, 2 files compacted (6 rows)")
	out = e.mustRun(t, "optimize", "markets")
	assert.Contains(t, out, "nothing to compact at version 2")

	out = e.mustRun(t, "vacuum", "markets", "--retain", "0s", "--dry-run")
	assert.Contains(t, out, "would delete 2 files")
	out = e.mustRun(t, "vacuum", "markets", "--retain", "0s")
	assert.Contains(t, out, "deleted 2 files")

	out = e.mustRun(t, "read", "markets")
	assert.Contains(t, out, "(6 rows)")
	code, _, _ := e.run(t, "", "read", "markets", "--version", "0")
	assert.NotEqual(t, errors.ExitOK, code)

	code, _, _ = e.run(t, "", "vacuum", "nope")
	assert.Equal(t, errors.ExitNotFound, code)
}

func TestRunJobs(t *testing.T) {
	e := newEnv(t, `
jobs:
  - name: markets
    format: csv
    bucket: crypto-raw
    key: markets.csv
    table: markets
    steps:
      - name: priced
        sql: SELECT id, current_price FROM raw
  - name: broken
    format: csv
    bucket: crypto-raw
    key: missing.csv
    table: broken
`)
	e.seed(t)

	out := e.mustRun(t, "run", "markets")
	assert.Contains(t, out, "markets: committed version 0, 3 rows")

	code, out, errOut := e.run(t, "", "run", "--keep-going")
	assert.Equal(t, errors.ExitNotFound, code)
	assert.Contains(t, out, "markets: committed version 1")
	assert.Contains(t, errOut, "job broken")

	code, _, _ = e.run(t, "", "run", "nope")
	assert.Equal(t, errors.ExitNotFound, code)
}

func TestShellScript(t *testing.T) {
	e := newEnv(t, "")
	e.seed(t)
	e.mustRun(t, "ingest", "--format", "csv", "--bucket", "crypto-raw", "--key", "markets.csv", "--table", "markets")

	script := strings.Join([]string{
		`\table m markets`,
		"SELECT id FROM m WHERE market_cap_rank = 1;",
		`\q`,
	}, "\n")
	code, out, errOut := e.run(t, script, "shell", "--load", "raw=crypto-raw/markets.csv:csv")
	require.Equal(t, errors.ExitOK, code, errOut)
	assert.Contains(t, out, "registered m (3 rows)")
	assert.Contains(t, out, "bitcoin")
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/coins/markets":
			w.Write([]byte(tu.MarketsJSON))
		case "/api/v3/coins/bitcoin/market_chart":
			w.Write([]byte(`{"prices":[[1709251200000,61000.5]],"market_caps":[],"total_volumes":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e := newEnv(t, `
coingecko:
  api_url: `+srv.URL+`/api/v3
  rate_limit_rps: 0
`)
	e.mustRun(t, "bucket", "ensure", "crypto-raw")

	out := e.mustRun(t, "fetch", "--prefix", "snap/", "--coin", "bitcoin")
	assert.Contains(t, out, "crypto-raw/snap/markets.json")
	assert.Contains(t, out, "crypto-raw/snap/market_chart/bitcoin.json")

	out = e.mustRun(t, "query", "--load", "m=crypto-raw/snap/markets.json:json", "SELECT id FROM m ORDER BY market_cap_rank")
	assert.Contains(t, out, "ethereum")

	code, _, _ := e.run(t, "", "fetch", "--prefix", "bad/", "--coin", "dogecoin")
	assert.NotEqual(t, errors.ExitOK, code)
}

func TestExitCodes(t *testing.T) {
	e := newEnv(t, "")
	e.seed(t)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"unknown flag", []string{"read", "--bogus"}, errors.ExitUsage},
		{"missing args", []string{"read"}, errors.ExitUsage},
		{"missing table", []string{"read", "nope"}, errors.ExitNotFound},
		{"unsupported format", []string{"ingest", "--format", "xml", "--bucket", "crypto-raw", "--key", "markets.csv", "--table", "t"}, errors.ExitUnsupportedIO},
		{"missing format", []string{"ingest", "--bucket", "crypto-raw", "--key", "markets.csv", "--table", "t"}, errors.ExitUsage},
		{"load without format", []string{"query", "--load", "m=crypto-raw/markets.csv", "SELECT 1"}, errors.ExitUsage},
		{"bad mode", []string{"ingest", "--format", "csv", "--bucket", "crypto-raw", "--key", "markets.csv", "--table", "t", "--write-mode", "upsert"}, errors.ExitInvalidInput},
		{"bad sql", []string{"query", "SELEC 1"}, errors.ExitQuery},
		{"missing version", []string{"read", "nope", "--version", "3"}, errors.ExitNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := e.run(t, "", tt.args...)
			assert.Equal(t, tt.want, code, "stderr: %s", errOut)
			assert.Contains(t, errOut, "error:")
		})
	}
}

func TestIncompatibleSchemaExitCode(t *testing.T) {
	e := newEnv(t, "")
	e.seed(t)
	e.mustRun(t, "ingest", "--format", "csv", "--bucket", "crypto-raw", "--key", "markets.csv", "--table", "markets")

	code, _, _ := e.run(t, "", "ingest", "--format", "csv",
		"--bucket", "crypto-raw", "--key", "markets.csv", "--table", "markets",
		"--write-mode", "append", "--schema-mode", "merge",
		"--step", "odd=SELECT CAST(current_price AS VARCHAR) AS market_cap_rank FROM raw")
	assert.Equal(t, errors.ExitSchema, code)

	out := e.mustRun(t, "read", "markets")
	assert.Contains(t, out, "(3 rows)")
}

func TestInvalidConfig(t *testing.T) {
	e := newEnv(t, "")
	cfg := filepath.Join(e.dir, "s3.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("object_store:\n  backend: s3\n  endpoint: \"\"\n"), 0o644))

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"--config", cfg, "ls", "crypto-raw"}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, errors.ExitInvalidInput, code)
	assert.Contains(t, stderr.String(), "MINIO_ACCESS_KEY")
}

func TestParseSource(t *testing.T) {
	src, err := parseSource("m=crypto-raw/a/b.json:json")
	require.NoError(t, err)
	assert.Equal(t, source{name: "m", bucket: "crypto-raw", key: "a/b.json", format: "json"}, src)

	src, err = parseSource("m=crypto-raw/export.txt:csv")
	require.NoError(t, err)
	assert.Equal(t, "export.txt", src.key)
	assert.Equal(t, "csv", string(src.format))

	// The extension never stands in for the format.
	for _, bad := range []string{"nobinding", "=b/k.csv:csv", "m=bucketonly:csv", "m=b/k.csv", "m=b/k.bin:bin"} {
		_, err := parseSource(bad)
		var ue *usageError
		assert.True(t, errors.As(err, &ue), bad)
	}
}
