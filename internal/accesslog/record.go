package accesslog

import "auditlog/internal/record"

// Value is one extracted field. Present is false only for an optional field
// that did not take part in the match; a field that matched zero characters
// is present with an empty Text.
type Value struct {
	Text    string
	Present bool
}

// Record is the structured form of one matched line. It always carries every
// field its grammar declares.
type Record struct {
	g      *Grammar
	values []Value
}

// Get returns the value of name. Unknown names return the zero Value.
func (r Record) Get(name FieldName) Value {
	if i := r.index(name); i >= 0 {
		return r.values[i]
	}
	return Value{}
}

// Lookup returns the text of name and whether the field is present.
func (r Record) Lookup(name FieldName) (string, bool) {
	v := r.Get(name)
	return v.Text, v.Present
}

// IsDash reports whether name holds the "-" sentinel.
func (r Record) IsDash(name FieldName) bool {
	v := r.Get(name)
	return v.Present && v.Text == Dash
}

// Names returns the field names of the record in grammar order.
func (r Record) Names() []FieldName {
	if r.g == nil {
		return nil
	}
	return r.g.Names()
}

// Len reports the number of fields.
func (r Record) Len() int { return len(r.values) }

// Flatten turns the record into a MergedRecord keyed by field name in grammar
// order. Absent fields keep their key with an empty value and "-" is kept
// verbatim, so every flattened record of one grammar has the same key set.
func (r Record) Flatten() *record.MergedRecord {
	out := record.New(len(r.values))
	if r.g == nil {
		return out
	}
	for i, d := range r.g.fields {
		out.Set(string(d.Name), r.values[i].Text)
	}
	return out
}

func (r Record) index(name FieldName) int {
	if r.g == nil {
		return -1
	}
	return r.g.Position(name)
}
