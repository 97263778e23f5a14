// Package loader - Configuration Types
//
// Defines the YAML configuration structure for coinlake.
//
//	log:          level, json
//	object_store: backend (s3|local), endpoint, credentials, secure
//	engine:       DuckDB memory limit, threads, scratch directory
//	table_store:  root directory, data file compression
//	coingecko:    upstream API URL, rate limit, timeout
//	metrics:      optional Prometheus listen address
//	jobs:         declarative ingestion runs for `coinlake run`
package loader

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/coinlake/config"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure for coinlake.
type Config struct {
	Log         LogConfig         `yaml:"log"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Engine      EngineConfig      `yaml:"engine"`
	TableStore  TableStoreConfig  `yaml:"table_store"`
	CoinGecko   CoinGeckoConfig   `yaml:"coingecko"`
	Metrics     MetricsConfig     `yaml:"metrics"`

	// Jobs are executed in order by `coinlake run`.
	Jobs []JobConfig `yaml:"jobs"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// ObjectStoreConfig selects and configures the object store backend.
type ObjectStoreConfig struct {
	// Backend: s3 or local
	Backend string `yaml:"backend"`

	// S3 / MinIO
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	Secure    bool   `yaml:"secure"`

	// LocalRoot is the directory holding one subdirectory per bucket.
	LocalRoot string `yaml:"local_root"`
}

// EngineConfig configures the embedded DuckDB.
type EngineConfig struct {
	// MemoryLimit is passed verbatim, e.g. "2GB".
	MemoryLimit string `yaml:"memory_limit"`
	Threads     int    `yaml:"threads"`
	ScratchDir  string `yaml:"scratch_dir"`
}

// TableStoreConfig configures where tables live and how files are encoded.
type TableStoreConfig struct {
	Root        string `yaml:"root"`
	Compression string `yaml:"compression"`
}

// CoinGeckoConfig configures the upstream market-data API client.
type CoinGeckoConfig struct {
	APIURL       string   `yaml:"api_url"`
	RateLimitRPS float64  `yaml:"rate_limit_rps"`
	Timeout      Duration `yaml:"timeout"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is host:port; empty disables the endpoint.
	Listen string `yaml:"listen"`
}

// =============================================================================
// Jobs
// =============================================================================

// JobConfig declares one ingestion run.
//
// Example:
//
//	jobs:
//	  - name: btc-daily
//	    format: json
//	    bucket: crypto-raw
//	    key: market_chart/bitcoin.json
//	    steps:
//	      - name: prices
//	        sql: SELECT unnest(prices) AS p FROM raw
//	    table: btc_prices
//	    write_mode: append
//	    schema_mode: merge
type JobConfig struct {
	Name        string       `yaml:"name"`
	Format      string       `yaml:"format"`
	Bucket      string       `yaml:"bucket"`
	Key         string       `yaml:"key"`
	SourceTable string       `yaml:"source_table"`
	Steps       []StepConfig `yaml:"steps"`
	Table       string       `yaml:"table"`
	WriteMode   string       `yaml:"write_mode"`
	SchemaMode  string       `yaml:"schema_mode"`
	Profile     bool         `yaml:"profile"`
}

// StepConfig is one SQL transform whose result is registered under Name.
type StepConfig struct {
	Name string `yaml:"name"`
	SQL  string `yaml:"sql"`
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a configuration populated from config package defaults.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level: config.DefaultLogLevel,
			JSON:  config.DefaultLogJSON,
		},
		ObjectStore: ObjectStoreConfig{
			Backend:   config.DefaultObjectStoreBackend,
			Endpoint:  config.DefaultObjectStoreEndpoint,
			Region:    config.DefaultObjectStoreRegion,
			Secure:    config.DefaultObjectStoreSecure,
			LocalRoot: config.DefaultLocalRoot,
		},
		Engine: EngineConfig{
			MemoryLimit: config.DefaultEngineMemoryLimit,
			Threads:     config.DefaultEngineThreads,
			ScratchDir:  config.DefaultEngineScratchDir,
		},
		TableStore: TableStoreConfig{
			Root:        config.DefaultTableRoot,
			Compression: config.DefaultTableCompression,
		},
		CoinGecko: CoinGeckoConfig{
			APIURL:       config.DefaultCoinGeckoURL,
			RateLimitRPS: config.DefaultCoinGeckoRateLimit,
			Timeout:      Duration(config.DefaultCoinGeckoTimeout),
		},
		Metrics: MetricsConfig{
			Listen: config.DefaultMetricsListen,
		},
	}
}

// =============================================================================
// Helper Types
// =============================================================================

// Duration is a time.Duration that can be unmarshaled from YAML.
// Supports "30s", "5m" or a plain integer number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var secs int
	if err := node.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
