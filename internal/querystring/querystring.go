// Package querystring decodes the key=value pairs carried in the query
// component of a referrer URL.
//
// Values are taken verbatim: there is no percent-decoding and no '+' to space
// translation, because the access log records the referrer exactly as sent.
package querystring

import "strings"

// Param is one decoded pair.
type Param struct {
	Key   string
	Value string
}

// Query is the ordered result of a decode. Keys are unique; a repeated key
// keeps the position of its first occurrence and the value of its last.
type Query struct {
	params    []Param
	index     map[string]int
	remainder string
}

// Parse decodes the pairs that follow the first '?' in s. Input without a '?'
// has no query component and yields an empty Query.
func Parse(s string) Query {
	i := strings.IndexByte(s, '?')
	if i < 0 {
		return Query{}
	}
	return ParsePairs(s[i+1:])
}

// ParsePairs decodes a bare "k=v&k=v" string.
//
// Scanning stops at the first segment that has no '='; that text and
// everything after it is reported by Remainder instead of being decoded.
func ParsePairs(s string) Query {
	var q Query
	cursor := 0
	for cursor < len(s) {
		eq := strings.IndexByte(s[cursor:], '=')
		if eq < 0 {
			break
		}
		eq += cursor
		end := strings.IndexByte(s[eq+1:], '&')
		if end < 0 {
			end = len(s)
		} else {
			end += eq + 1
		}
		q.set(s[cursor:eq], s[eq+1:end])
		cursor = end + 1
	}
	if cursor < len(s) {
		q.remainder = s[cursor:]
	}
	return q
}

func (q *Query) set(key, value string) {
	if i, ok := q.index[key]; ok {
		q.params[i].Value = value
		return
	}
	if q.index == nil {
		q.index = make(map[string]int)
	}
	q.index[key] = len(q.params)
	q.params = append(q.params, Param{Key: key, Value: value})
}

// Params returns the decoded pairs in first-appearance order.
func (q Query) Params() []Param {
	return append([]Param(nil), q.params...)
}

// Get returns the value for key and whether it was decoded.
func (q Query) Get(key string) (string, bool) {
	i, ok := q.index[key]
	if !ok {
		return "", false
	}
	return q.params[i].Value, true
}

// Len reports the number of distinct keys.
func (q Query) Len() int { return len(q.params) }

// Truncated reports whether scanning stopped before the end of the input.
func (q Query) Truncated() bool { return q.remainder != "" }

// Remainder returns the undecoded tail of a truncated query.
func (q Query) Remainder() string { return q.remainder }

// Map returns the pairs as an unordered map.
func (q Query) Map() map[string]string {
	out := make(map[string]string, len(q.params))
	for _, p := range q.params {
		out[p.Key] = p.Value
	}
	return out
}

// Unquote strips one pair of surrounding double quotes. Anything else is
// returned unchanged.
func Unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
