package shell

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/xtxerr/coinlake/internal/dataset"
)

// Render writes ds as a bordered table followed by a row count. At most
// limit rows are printed; limit <= 0 prints all of them.
func Render(w io.Writer, ds *dataset.Dataset, limit int) error {
	if ds == nil {
		return nil
	}

	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	tw.SetHeader(ds.Schema.Names())

	n := ds.Len()
	if limit > 0 && n > limit {
		n = limit
	}
	for _, row := range ds.Rows[:n] {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = dataset.Format(v)
		}
		tw.Append(cells)
	}
	tw.Render()

	switch {
	case n < ds.Len():
		_, err := fmt.Fprintf(w, "(%d of %d rows)\n", n, ds.Len())
		return err
	case ds.Len() == 1:
		_, err := fmt.Fprintln(w, "(1 row)")
		return err
	default:
		_, err := fmt.Fprintf(w, "(%d rows)\n", ds.Len())
		return err
	}
}
