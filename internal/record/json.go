package record

import (
	"bytes"
	"encoding/json"
)

// MarshalJSON encodes the record as a JSON object with keys in record order.
// Values are not HTML-escaped, so referrers keep their literal '&'.
func (r *MergedRecord) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		if err := appendString(&b, k); err != nil {
			return nil, err
		}
		b.WriteByte(':')
		if err := appendString(&b, r.values[k]); err != nil {
			return nil, err
		}
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

func appendString(b *bytes.Buffer, s string) error {
	enc := json.NewEncoder(b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode terminates with a newline.
	b.Truncate(b.Len() - 1)
	return nil
}
