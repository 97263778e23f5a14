package tablestore

import (
	"math"

	"github.com/xtxerr/coinlake/internal/dataset"
	"github.com/xtxerr/coinlake/internal/tablestore/txlog"
)

// computeStats collects the statistics recorded with an added data file.
func computeStats(ds *dataset.Dataset) *txlog.FileStats {
	stats := &txlog.FileStats{
		NumRecords: int64(len(ds.Rows)),
		NullCount:  make(map[string]int64, len(ds.Schema)),
		MinValues:  make(map[string]any),
		MaxValues:  make(map[string]any),
	}

	for c, f := range ds.Schema {
		var nulls int64
		var lo, hi any
		for _, row := range ds.Rows {
			v := row[c]
			if v == nil {
				nulls++
				continue
			}
			if !tracked(f.Type, v) {
				continue
			}
			if lo == nil || less(v, lo) {
				lo = v
			}
			if hi == nil || less(hi, v) {
				hi = v
			}
		}
		stats.NullCount[f.Name] = nulls
		if lo != nil {
			stats.MinValues[f.Name] = lo
			stats.MaxValues[f.Name] = hi
		}
	}

	if len(stats.MinValues) == 0 {
		stats.MinValues, stats.MaxValues = nil, nil
	}
	return stats
}

// tracked reports whether min/max are kept for this value.
func tracked(t dataset.Type, v any) bool {
	switch t {
	case dataset.TypeLong, dataset.TypeString:
		return true
	case dataset.TypeDouble:
		f := v.(float64)
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	return false
}

func less(a, b any) bool {
	switch x := a.(type) {
	case int64:
		return x < b.(int64)
	case float64:
		return x < b.(float64)
	case string:
		return x < b.(string)
	}
	return false
}
