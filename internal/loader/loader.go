// Package loader handles configuration file loading and validation.
//
// This package is responsible for:
//   - Loading .env files into the process environment
//   - Loading YAML configuration files with environment expansion
//   - Applying well-known environment overrides
//   - Validating the result before any component is built
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	cerrors "github.com/xtxerr/coinlake/internal/errors"
)

// Environment variables that override the file.
const (
	EnvMinioEndpoint  = "MINIO_ENDPOINT"
	EnvMinioAccessKey = "MINIO_ACCESS_KEY"
	EnvMinioSecretKey = "MINIO_SECRET_KEY"
	EnvMinioSecure    = "MINIO_SECURE"
	EnvCoinGeckoURL   = "COINGECKO_API_URL"
	EnvLogLevel       = "COINLAKE_LOG_LEVEL"
)

// =============================================================================
// Load
// =============================================================================

// LoadDotEnv loads the given .env files (".env" when none are given).
// Missing files are ignored; variables already set are not overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load loads configuration from a YAML file on top of DefaultConfig and
// applies environment overrides. An empty path yields defaults plus
// environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		expanded := os.ExpandEnv(string(data))

		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w: %w", cerrors.ErrInvalidConfig, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv(EnvMinioEndpoint); ok {
		cfg.ObjectStore.Endpoint = v
	}
	if v, ok := os.LookupEnv(EnvMinioAccessKey); ok {
		cfg.ObjectStore.AccessKey = v
	}
	if v, ok := os.LookupEnv(EnvMinioSecretKey); ok {
		cfg.ObjectStore.SecretKey = v
	}
	if v, ok := os.LookupEnv(EnvMinioSecure); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cerrors.NewInvalidValue(EnvMinioSecure, v, "expected a boolean")
		}
		cfg.ObjectStore.Secure = b
	}
	if v, ok := os.LookupEnv(EnvCoinGeckoURL); ok {
		cfg.CoinGecko.APIURL = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		cfg.Log.Level = v
	}
	return nil
}

// =============================================================================
// Validate
// =============================================================================

var (
	validBackends     = map[string]bool{"s3": true, "local": true}
	validCompressions = map[string]bool{"none": true, "snappy": true, "gzip": true, "zstd": true, "lz4": true}
	validFormats      = map[string]bool{"csv": true, "parquet": true, "json": true}
	validWriteModes   = map[string]bool{"": true, "append": true, "overwrite": true}
	validSchemaModes  = map[string]bool{"": true, "merge": true, "overwrite": true}
	validLogLevels    = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
)

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, cerrors.NewInvalidValue("log.level", c.Log.Level, "expected debug, info, warn or error"))
	}

	if err := c.ObjectStore.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Engine.Threads < 0 {
		errs = append(errs, cerrors.NewValidation("engine.threads", "cannot be negative"))
	}

	if c.TableStore.Root == "" {
		errs = append(errs, cerrors.NewMissingField("table_store.root"))
	}
	if !validCompressions[c.TableStore.Compression] {
		errs = append(errs, cerrors.NewInvalidValue("table_store.compression", c.TableStore.Compression, "unknown codec"))
	}

	if c.CoinGecko.RateLimitRPS < 0 {
		errs = append(errs, cerrors.NewValidation("coingecko.rate_limit_rps", "cannot be negative"))
	}

	seen := make(map[string]bool, len(c.Jobs))
	for i := range c.Jobs {
		j := &c.Jobs[i]
		if j.Name != "" {
			if seen[j.Name] {
				errs = append(errs, cerrors.NewInvalidValue(fmt.Sprintf("jobs[%d].name", i), j.Name, "duplicate job name"))
			}
			seen[j.Name] = true
		}
		if err := j.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("jobs[%d]: %w", i, err))
		}
	}

	return errors.Join(errs...)
}

// Validate checks the object store section for the selected backend.
func (c *ObjectStoreConfig) Validate() error {
	var errs []error

	if !validBackends[c.Backend] {
		return cerrors.NewInvalidValue("object_store.backend", c.Backend, "expected s3 or local")
	}

	switch c.Backend {
	case "s3":
		if c.Endpoint == "" {
			errs = append(errs, cerrors.NewMissingField("object_store.endpoint ("+EnvMinioEndpoint+")"))
		}
		if c.AccessKey == "" {
			errs = append(errs, cerrors.NewMissingField("object_store.access_key ("+EnvMinioAccessKey+")"))
		}
		if c.SecretKey == "" {
			errs = append(errs, cerrors.NewMissingField("object_store.secret_key ("+EnvMinioSecretKey+")"))
		}
	case "local":
		if c.LocalRoot == "" {
			errs = append(errs, cerrors.NewMissingField("object_store.local_root"))
		}
	}

	return errors.Join(errs...)
}

// ValidateAPI checks the settings `coinlake fetch` depends on.
func (c *CoinGeckoConfig) ValidateAPI() error {
	if c.APIURL == "" {
		return cerrors.NewMissingField("coingecko.api_url (" + EnvCoinGeckoURL + ")")
	}
	if !strings.HasPrefix(c.APIURL, "http://") && !strings.HasPrefix(c.APIURL, "https://") {
		return cerrors.NewInvalidValue("coingecko.api_url", c.APIURL, "expected an http(s) URL")
	}
	return nil
}

// Validate checks a single job.
func (j *JobConfig) Validate() error {
	var errs []error

	if j.Name == "" {
		errs = append(errs, cerrors.NewMissingField("name"))
	}
	if !validFormats[j.Format] {
		errs = append(errs, cerrors.NewInvalidValue("format", j.Format, "expected csv, parquet or json"))
	}
	if j.Bucket == "" {
		errs = append(errs, cerrors.NewMissingField("bucket"))
	}
	if j.Key == "" {
		errs = append(errs, cerrors.NewMissingField("key"))
	}
	if j.Table == "" {
		errs = append(errs, cerrors.NewMissingField("table"))
	}
	if !validWriteModes[j.WriteMode] {
		errs = append(errs, cerrors.NewInvalidValue("write_mode", j.WriteMode, "expected append or overwrite"))
	}
	if !validSchemaModes[j.SchemaMode] {
		errs = append(errs, cerrors.NewInvalidValue("schema_mode", j.SchemaMode, "expected merge or overwrite"))
	}
	for i, s := range j.Steps {
		if s.Name == "" {
			errs = append(errs, cerrors.NewMissingField(fmt.Sprintf("steps[%d].name", i)))
		}
		if strings.TrimSpace(s.SQL) == "" {
			errs = append(errs, cerrors.NewMissingField(fmt.Sprintf("steps[%d].sql", i)))
		}
	}

	return errors.Join(errs...)
}
