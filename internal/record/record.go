// Package record holds the enriched output row shape shared by the pipeline,
// the exporters and the storage loader.
package record

// MergedRecord is an insertion-ordered string map. Setting an existing key
// replaces its value without moving it.
type MergedRecord struct {
	keys   []string
	values map[string]string
}

// New returns an empty record with room for n keys.
func New(n int) *MergedRecord {
	return &MergedRecord{
		keys:   make([]string, 0, n),
		values: make(map[string]string, n),
	}
}

// FromPairs builds a record from alternating key, value arguments.
// It panics on an odd argument count.
func FromPairs(kv ...string) *MergedRecord {
	if len(kv)%2 != 0 {
		panic("record: FromPairs needs an even number of arguments")
	}
	r := New(len(kv) / 2)
	for i := 0; i < len(kv); i += 2 {
		r.Set(kv[i], kv[i+1])
	}
	return r
}

// Set assigns key to value.
func (r *MergedRecord) Set(key, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value for key and whether it is set.
func (r *MergedRecord) Get(key string) (string, bool) {
	if r == nil {
		return "", false
	}
	v, ok := r.values[key]
	return v, ok
}

// Value returns the value for key, or "" if it is not set.
func (r *MergedRecord) Value(key string) string {
	v, _ := r.Get(key)
	return v
}

// Keys returns the keys in insertion order. The slice is a copy.
func (r *MergedRecord) Keys() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.keys...)
}

// Len reports the number of keys.
func (r *MergedRecord) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Map returns an unordered copy of the record.
func (r *MergedRecord) Map() map[string]string {
	out := make(map[string]string, r.Len())
	if r == nil {
		return out
	}
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Clone returns a deep copy.
func (r *MergedRecord) Clone() *MergedRecord {
	c := New(r.Len())
	if r == nil {
		return c
	}
	for _, k := range r.keys {
		c.Set(k, r.values[k])
	}
	return c
}

// Equal reports whether both records hold the same keys in the same order
// with the same values.
func (r *MergedRecord) Equal(o *MergedRecord) bool {
	if r.Len() != o.Len() {
		return false
	}
	if r.Len() == 0 {
		return true
	}
	for i, k := range r.keys {
		if o.keys[i] != k || o.values[k] != r.values[k] {
			return false
		}
	}
	return true
}

// Row projects the record onto header. Header keys missing from the record
// become "", and record keys outside header are dropped.
func (r *MergedRecord) Row(header []string) []string {
	row := make([]string, len(header))
	for i, h := range header {
		row[i] = r.Value(h)
	}
	return row
}

// Dataset is an ordered sequence of enriched records, one per input line
// that made it through the pipeline, in input order.
type Dataset []*MergedRecord

// Header returns the column header of the dataset: the key order of its
// first record. An empty dataset has no header.
func (d Dataset) Header() []string {
	if len(d) == 0 {
		return nil
	}
	return d[0].Keys()
}

// Rows projects every record onto the dataset header.
func (d Dataset) Rows() [][]string {
	h := d.Header()
	out := make([][]string, len(d))
	for i, r := range d {
		out[i] = r.Row(h)
	}
	return out
}
