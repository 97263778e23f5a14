// Package dataset defines the tabular value that flows between the object
// store, the analytical engine and the table store.
//
// Key types:
//   - Type: logical column type (boolean, long, double, string, timestamp, date, binary)
//   - Field / Schema: ordered, named, typed columns
//   - Dataset: a schema plus rows of canonical Go values
//
// Canonical values per type: bool, int64, float64, string, time.Time (UTC,
// microsecond precision; dates at midnight), []byte. nil is null in every
// column.
package dataset
