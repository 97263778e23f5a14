package engine

import (
	"fmt"
	"strings"

	"github.com/xtxerr/coinlake/internal/errors"
	"github.com/xtxerr/coinlake/internal/objectstore"
	"github.com/xtxerr/coinlake/internal/validation"
)

// Format is the on-storage encoding of a raw object. It is always chosen
// by the caller and never sniffed from content.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
	FormatJSON    Format = "json"
)

// Formats lists the supported formats.
var Formats = []Format{FormatCSV, FormatParquet, FormatJSON}

// ParseFormat validates a format tag. Matching is exact.
func ParseFormat(s string) (Format, error) {
	f := Format(s)
	if !f.Valid() {
		return "", fmt.Errorf("format %q (want csv, parquet or json): %w", s, errors.ErrUnsupportedFormat)
	}
	return f, nil
}

// Valid reports whether f is a supported format.
func (f Format) Valid() bool {
	switch f {
	case FormatCSV, FormatParquet, FormatJSON:
		return true
	}
	return false
}

// ContentType is the MIME type objects of this format are stored with.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatParquet:
		return "application/vnd.apache.parquet"
	case FormatJSON:
		return "application/json"
	}
	return objectstore.DefaultContentType
}

// readQuery returns the SELECT that reads a local file of this format.
func (f Format) readQuery(path string) string {
	var fn string
	switch f {
	case FormatCSV:
		fn = "read_csv_auto"
	case FormatParquet:
		fn = "read_parquet"
	case FormatJSON:
		fn = "read_json_auto"
	}
	return "SELECT * FROM " + fn + "(" + validation.QuoteLiteral(path) + ")"
}

// ContentTypeForKey labels an upload by its key's extension, falling back
// to objectstore.DefaultContentType. It never selects a Format: loading
// always takes the caller's explicit tag.
func ContentTypeForKey(key string) string {
	k := strings.ToLower(key)
	switch {
	case strings.HasSuffix(k, ".csv"):
		return FormatCSV.ContentType()
	case strings.HasSuffix(k, ".parquet"):
		return FormatParquet.ContentType()
	case strings.HasSuffix(k, ".json"), strings.HasSuffix(k, ".ndjson"):
		return FormatJSON.ContentType()
	}
	return objectstore.DefaultContentType
}
