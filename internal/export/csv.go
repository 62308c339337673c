package export

import (
	"encoding/csv"
	"io"

	"auditlog/internal/record"
)

// CSV writes a header row followed by one row per record.
type CSV struct {
	Comma    rune // zero means ','
	NoHeader bool
}

// Write implements Writer.
func (c CSV) Write(w io.Writer, d record.Dataset) error {
	if len(d) == 0 {
		return ErrEmptyDataset
	}
	cw := csv.NewWriter(w)
	if c.Comma != 0 {
		cw.Comma = c.Comma
	}
	header := d.Header()
	if !c.NoHeader {
		if err := cw.Write(header); err != nil {
			return err
		}
	}
	for _, r := range d {
		if err := cw.Write(r.Row(header)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
