package export

import (
	"encoding/json"
	"io"

	"auditlog/internal/record"
)

// JSON writes the dataset as an array of objects whose keys follow record
// order. An empty dataset is written as [].
type JSON struct {
	Indent string
}

// Write implements Writer.
func (j JSON) Write(w io.Writer, d record.Dataset) error {
	if d == nil {
		d = record.Dataset{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if j.Indent != "" {
		enc.SetIndent("", j.Indent)
	}
	return enc.Encode(d)
}
