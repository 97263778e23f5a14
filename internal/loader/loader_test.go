package loader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/coinlake/internal/errors"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvMinioEndpoint, EnvMinioAccessKey, EnvMinioSecretKey, EnvMinioSecure, EnvCoinGeckoURL, EnvLogLevel} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "s3", cfg.ObjectStore.Backend)
	assert.Equal(t, "localhost:9000", cfg.ObjectStore.Endpoint)
	assert.Equal(t, "zstd", cfg.TableStore.Compression)
	assert.Equal(t, 30*time.Second, cfg.CoinGecko.Timeout.Duration())

	// Credentials have no default.
	err = cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMissingField))
}

func TestLoadYAMLWithEnvExpansion(t *testing.T) {
	clearEnv(t)
	t.Setenv("RAW_BUCKET", "crypto-raw")

	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
log:
  level: debug
object_store:
  backend: local
  local_root: /srv/objects
engine:
  memory_limit: 1GB
  threads: 2
coingecko:
  timeout: 5
jobs:
  - name: markets
    format: json
    bucket: ${RAW_BUCKET}
    key: coins/markets.json
    steps:
      - name: top
        sql: SELECT id, current_price FROM raw
    table: markets
    write_mode: append
    schema_mode: merge
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "local", cfg.ObjectStore.Backend)
	assert.Equal(t, "1GB", cfg.Engine.MemoryLimit)
	assert.Equal(t, 5*time.Second, cfg.CoinGecko.Timeout.Duration())
	require.Len(t, cfg.Jobs, 1)
	assert.Equal(t, "crypto-raw", cfg.Jobs[0].Bucket)
	assert.Equal(t, "top", cfg.Jobs[0].Steps[0].Name)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvMinioEndpoint, "minio:9000")
	t.Setenv(EnvMinioAccessKey, "ak")
	t.Setenv(EnvMinioSecretKey, "sk")
	t.Setenv(EnvMinioSecure, "true")
	t.Setenv(EnvCoinGeckoURL, "http://localhost:8080/api/v3")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "minio:9000", cfg.ObjectStore.Endpoint)
	assert.True(t, cfg.ObjectStore.Secure)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.NoError(t, cfg.CoinGecko.ValidateAPI())
}

func TestEnvOverrideBadBool(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvMinioSecure, "sometimes")

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	p := writeFile(t, dir, ".env", "MINIO_ACCESS_KEY=from-dotenv\n")
	t.Cleanup(func() { os.Unsetenv(EnvMinioAccessKey) })

	require.NoError(t, LoadDotEnv(p, filepath.Join(dir, "missing.env")))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.ObjectStore.AccessKey)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ObjectStore.Backend = "local"
	cfg.TableStore.Compression = "brotli"
	cfg.Log.Level = "loud"
	cfg.Jobs = []JobConfig{
		{Name: "a", Format: "xlsx", Bucket: "b", Key: "k", Table: "t"},
		{Name: "a", Format: "csv", Bucket: "b", Key: "k", Table: "t", WriteMode: "upsert"},
		{Format: "csv", Steps: []StepConfig{{Name: "s"}}},
	}

	err := cfg.Validate()
	require.Error(t, err)

	msg := err.Error()
	for _, want := range []string{"table_store.compression", "log.level", "jobs[0]", "duplicate job name", "write_mode", "jobs[2]", "steps[0].sql"} {
		assert.Contains(t, msg, want)
	}
}

func TestValidateAPI(t *testing.T) {
	c := CoinGeckoConfig{}
	assert.True(t, errors.Is(c.ValidateAPI(), errors.ErrMissingField))

	c.APIURL = "ftp://example"
	assert.True(t, errors.Is(c.ValidateAPI(), errors.ErrInvalidConfig))
}
