// Package config provides configuration defaults for coinlake.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or environment variables.
package config

import "time"

// =============================================================================
// Logging Defaults
// =============================================================================

const (
	// DefaultLogLevel is the minimum level written.
	// Override via config: log.level or env COINLAKE_LOG_LEVEL
	DefaultLogLevel = "info"

	// DefaultLogJSON selects the JSON handler instead of text.
	// Override via config: log.json
	DefaultLogJSON = false
)

// =============================================================================
// Object Store Defaults
// =============================================================================

const (
	// DefaultObjectStoreBackend selects the S3 (MinIO) backend.
	// Valid: s3, local
	// Override via config: object_store.backend
	DefaultObjectStoreBackend = "s3"

	// DefaultObjectStoreEndpoint is a local MinIO.
	// Override via config: object_store.endpoint or env MINIO_ENDPOINT
	DefaultObjectStoreEndpoint = "localhost:9000"

	// DefaultObjectStoreRegion is sent with every request. MinIO ignores it.
	// Override via config: object_store.region
	DefaultObjectStoreRegion = "us-east-1"

	// DefaultObjectStoreSecure chooses http for the endpoint. It is fixed
	// for the lifetime of the store.
	// Override via config: object_store.secure or env MINIO_SECURE
	DefaultObjectStoreSecure = false

	// DefaultLocalRoot is where the local backend keeps its buckets.
	// Override via config: object_store.local_root
	DefaultLocalRoot = "./data/objects"
)

// =============================================================================
// Engine Defaults
// =============================================================================

const (
	// DefaultEngineMemoryLimit caps DuckDB memory. Empty means engine default.
	// Override via config: engine.memory_limit
	DefaultEngineMemoryLimit = ""

	// DefaultEngineThreads is the DuckDB worker count. 0 means engine default.
	// Override via config: engine.threads
	DefaultEngineThreads = 0

	// DefaultEngineScratchDir is where fetched objects are spilled before
	// the engine reads them. Empty means os.TempDir().
	// Override via config: engine.scratch_dir
	DefaultEngineScratchDir = ""
)

// =============================================================================
// Table Store Defaults
// =============================================================================

const (
	// DefaultTableRoot is the base directory for relative table paths.
	// Override via config: table_store.root
	DefaultTableRoot = "./data/tables"

	// DefaultTableCompression is the data file codec.
	// Valid: none, snappy, gzip, zstd, lz4
	// Override via config: table_store.compression
	DefaultTableCompression = "zstd"

	// DefaultWriteMode matches the historical behaviour of the ingestion
	// scripts: replace the table contents.
	// Override via config: jobs[].write_mode or --write-mode
	DefaultWriteMode = "overwrite"

	// DefaultSchemaMode replaces the schema wholesale.
	// Override via config: jobs[].schema_mode or --schema-mode
	DefaultSchemaMode = "overwrite"
)

// =============================================================================
// Pipeline Defaults
// =============================================================================

const (
	// DefaultSourceTable is the name the loaded object is registered under
	// before the transform steps run.
	// Override via config: jobs[].source_table or --source-table
	DefaultSourceTable = "raw"
)

// =============================================================================
// Upstream API Defaults
// =============================================================================

const (
	// DefaultCoinGeckoURL is the public API base URL.
	// Override via config: coingecko.api_url or env COINGECKO_API_URL
	DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

	// DefaultCoinGeckoRateLimit is requests per second. The public tier
	// allows roughly 30 per minute.
	// Override via config: coingecko.rate_limit_rps
	DefaultCoinGeckoRateLimit = 0.5

	// DefaultCoinGeckoTimeout bounds a single request.
	// Override via config: coingecko.timeout
	DefaultCoinGeckoTimeout = 30 * time.Second

	// DefaultRawBucket is where API snapshots land.
	// Override via --bucket
	DefaultRawBucket = "crypto-raw"
)

// =============================================================================
// Metrics Defaults
// =============================================================================

const (
	// DefaultMetricsListen is empty: no metrics endpoint.
	// Override via config: metrics.listen or --metrics-listen
	DefaultMetricsListen = ""
)
