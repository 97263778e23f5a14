package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xtxerr/coinlake/config"
	"github.com/xtxerr/coinlake/internal/engine"
	"github.com/xtxerr/coinlake/internal/errors"
	"github.com/xtxerr/coinlake/internal/loader"
	"github.com/xtxerr/coinlake/internal/tablestore"
	"github.com/xtxerr/coinlake/internal/validation"
)

// Step is one SQL transformation. Its result is registered under Name and
// can be referenced by later steps.
type Step struct {
	Name string
	SQL  string
}

// Run describes one ingestion: which object to load, how to transform it
// and where to persist the result.
type Run struct {
	// Name labels the run in logs and metrics. Defaults to the object key.
	Name string

	Format engine.Format
	Bucket string
	Key    string

	// SourceName is what the loaded object is registered as.
	// Default: raw
	SourceName string
	Steps      []Step

	TablePath  string
	WriteMode  tablestore.WriteMode
	SchemaMode tablestore.SchemaMode

	// Profile computes column statistics of the persisted dataset.
	Profile bool
}

func (r Run) withDefaults() Run {
	if r.SourceName == "" {
		r.SourceName = config.DefaultSourceTable
	}
	if r.Name == "" {
		r.Name = r.Key
	}
	if r.WriteMode == "" {
		r.WriteMode = tablestore.WriteMode(config.DefaultWriteMode)
	}
	if r.SchemaMode == "" {
		r.SchemaMode = tablestore.SchemaMode(config.DefaultSchemaMode)
	}
	return r
}

// Validate checks everything that can be checked without I/O. The format
// is checked first so an unsupported format never reaches the store.
func (r Run) Validate() error {
	if _, err := engine.ParseFormat(string(r.Format)); err != nil {
		return err
	}

	errs := errors.NewValidationErrors()
	if err := validation.ValidateBucket(r.Bucket); err != nil {
		errs.Add(err)
	}
	if err := validation.ValidateKey(r.Key); err != nil {
		errs.Add(err)
	}
	if strings.TrimSpace(r.TablePath) == "" {
		errs.AddMissing("table path")
	}
	if _, err := tablestore.ParseWriteMode(string(r.WriteMode)); err != nil {
		errs.Add(err)
	}
	if _, err := tablestore.ParseSchemaMode(string(r.SchemaMode)); err != nil {
		errs.Add(err)
	}
	if r.SourceName != "" {
		if err := validation.ValidateIdentifier(r.SourceName); err != nil {
			errs.Add(fmt.Errorf("source name: %w", err))
		}
	}
	for i, s := range r.Steps {
		if err := validation.ValidateIdentifier(s.Name); err != nil {
			errs.Add(fmt.Errorf("step %d: %w", i, err))
		}
		if strings.TrimSpace(s.SQL) == "" {
			errs.Add(fmt.Errorf("step %d (%s): %w", i, s.Name, errors.NewMissingField("sql")))
		}
	}
	return errs.Err()
}

// RunFromJob converts a configured job into a run. Relative table paths
// are resolved against tableRoot.
func RunFromJob(job loader.JobConfig, tableRoot string) (Run, error) {
	format, err := engine.ParseFormat(job.Format)
	if err != nil {
		return Run{}, fmt.Errorf("job %s: %w", job.Name, err)
	}
	wm, err := tablestore.ParseWriteMode(job.WriteMode)
	if err != nil {
		return Run{}, fmt.Errorf("job %s: %w", job.Name, err)
	}
	sm, err := tablestore.ParseSchemaMode(job.SchemaMode)
	if err != nil {
		return Run{}, fmt.Errorf("job %s: %w", job.Name, err)
	}

	steps := make([]Step, len(job.Steps))
	for i, s := range job.Steps {
		steps[i] = Step{Name: s.Name, SQL: s.SQL}
	}

	return Run{
		Name:       job.Name,
		Format:     format,
		Bucket:     job.Bucket,
		Key:        job.Key,
		SourceName: job.SourceTable,
		Steps:      steps,
		TablePath:  ResolveTablePath(tableRoot, job.Table),
		WriteMode:  wm,
		SchemaMode: sm,
		Profile:    job.Profile,
	}, nil
}

// ResolveTablePath joins a relative table path onto root.
func ResolveTablePath(root, table string) string {
	if table == "" || filepath.IsAbs(table) || root == "" {
		return table
	}
	return filepath.Join(root, table)
}
