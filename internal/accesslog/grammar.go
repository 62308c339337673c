// Package accesslog implements the positional line grammar of S3 server
// access logs and the extractor that turns one raw line into a Record.
//
// A Grammar is an ordered list of field descriptors compiled once into an
// anchored matcher. Quoted fields are delimited by their quotes, never by
// whitespace, so spaces, '&' and '=' inside a request URI, referrer or user
// agent never shift the fields that follow.
//
// See https://docs.aws.amazon.com/AmazonS3/latest/userguide/LogFormat.html
package accesslog

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// FieldName identifies one canonical field of an access-log line.
type FieldName string

// Canonical field names, in grammar order.
const (
	Owner          FieldName = "owner"
	Bucket         FieldName = "bucket"
	Timestamp      FieldName = "timestamp"
	RemoteIP       FieldName = "remoteip"
	Requester      FieldName = "requester"
	RequestID      FieldName = "requestid"
	Verb           FieldName = "verb"
	Key            FieldName = "key"
	RequestURI     FieldName = "requesturi"
	HTTP           FieldName = "http"
	AWSErrorCode   FieldName = "awserrorcode"
	BytesSent      FieldName = "bytessent"
	ObjectSize     FieldName = "objectsize"
	TotalTime      FieldName = "totaltime"
	TurnaroundTime FieldName = "turnaroundtime"
	Referrer       FieldName = "referrer"
	UserAgent      FieldName = "useragent"
	Version        FieldName = "version"
	HostID         FieldName = "hostid"
	SigV           FieldName = "sigv"
	Cypher         FieldName = "cypher"
	Auth           FieldName = "auth"
	Endpoint       FieldName = "endpoint"
	TLS            FieldName = "tls"

	// Tail absorbs anything appended after the known fields. It does not
	// participate in a match unless the line carries extra content.
	Tail FieldName = "tail"
)

// Dash is the sentinel value meaning "this field has no value".
const Dash = "-"

// TokenKind selects how a single field is matched.
type TokenKind int

const (
	// Simple is any run of non-space characters, possibly empty.
	Simple TokenKind = iota + 1
	// NumberOrDash is a run of digits or the literal "-".
	NumberOrDash
	// BracketedDatetime is the opaque content between '[' and the next ']'.
	// The captured value excludes the brackets.
	BracketedDatetime
	// QuotedOrDash is "-" or a double-quoted string. The captured value keeps
	// its quotes; a backslash-escaped quote does not close the string.
	QuotedOrDash
	// Trailing is whatever remains of the line. It must be the last field
	// and is optional: a line that ends right after the previous field
	// leaves it absent.
	Trailing
)

// String returns the kind's name.
func (k TokenKind) String() string {
	switch k {
	case Simple:
		return "simple"
	case NumberOrDash:
		return "number-or-dash"
	case BracketedDatetime:
		return "bracketed-datetime"
	case QuotedOrDash:
		return "quoted-or-dash"
	case Trailing:
		return "trailing"
	default:
		return fmt.Sprintf("TokenKind(%d)", int(k))
	}
}

// Descriptor declares one positional field.
type Descriptor struct {
	Name FieldName
	Kind TokenKind
}

// Errors returned by Compile.
var (
	ErrEmptyGrammar     = errors.New("accesslog: grammar has no fields")
	ErrDuplicateField   = errors.New("accesslog: duplicate field name")
	ErrTrailingNotLast  = errors.New("accesslog: trailing field must be last")
	ErrUnknownTokenKind = errors.New("accesslog: unknown token kind")
	ErrInvalidFieldName = errors.New("accesslog: invalid field name")
)

var fieldNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Grammar is a compiled, immutable line grammar. It is safe for concurrent
// use by multiple goroutines.
type Grammar struct {
	fields []Descriptor
	re     *regexp.Regexp
	// groups[i] is the submatch index of fields[i].
	groups []int
	index  map[FieldName]int
}

// Compile builds a Grammar from the ordered descriptors. Fields are matched
// left to right, separated by single spaces, and must consume the whole line.
func Compile(fields []Descriptor) (*Grammar, error) {
	if len(fields) == 0 {
		return nil, ErrEmptyGrammar
	}

	seen := make(map[FieldName]struct{}, len(fields))
	var b strings.Builder
	b.WriteByte('^')
	for i, f := range fields {
		if !fieldNameRe.MatchString(string(f.Name)) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidFieldName, f.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateField, f.Name)
		}
		seen[f.Name] = struct{}{}

		if f.Kind == Trailing {
			if i != len(fields)-1 {
				return nil, fmt.Errorf("%w: %q at position %d", ErrTrailingNotLast, f.Name, i)
			}
			// The separating space belongs to the optional group so that a
			// line without extra content still matches.
			if i == 0 {
				fmt.Fprintf(&b, `(?P<%s>.*)`, f.Name)
			} else {
				fmt.Fprintf(&b, `(?: (?P<%s>.*))?`, f.Name)
			}
			continue
		}

		pat, err := tokenPattern(f.Name, f.Kind)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(pat)
	}
	b.WriteByte('$')

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("accesslog: compile grammar: %w", err)
	}

	g := &Grammar{
		fields: append([]Descriptor(nil), fields...),
		re:     re,
		groups: make([]int, len(fields)),
		index:  make(map[FieldName]int, len(fields)),
	}
	for i, f := range fields {
		g.groups[i] = re.SubexpIndex(string(f.Name))
		g.index[f.Name] = i
	}
	return g, nil
}

// MustCompile is like Compile but panics on error. It is meant for grammars
// declared in code.
func MustCompile(fields []Descriptor) *Grammar {
	g, err := Compile(fields)
	if err != nil {
		panic(err)
	}
	return g
}

func tokenPattern(name FieldName, kind TokenKind) (string, error) {
	switch kind {
	case Simple:
		return fmt.Sprintf(`(?P<%s>[^ ]*)`, name), nil
	case NumberOrDash:
		return fmt.Sprintf(`(?P<%s>-|[0-9]*)`, name), nil
	case BracketedDatetime:
		return fmt.Sprintf(`\[(?P<%s>[^\]]*)\]`, name), nil
	case QuotedOrDash:
		return fmt.Sprintf(`(?P<%s>-|"(?:[^"\\]|\\.)*")`, name), nil
	default:
		return "", fmt.Errorf("%w: %v for field %q", ErrUnknownTokenKind, kind, name)
	}
}

// s3AccessLogFields is the canonical S3 server access log layout.
var s3AccessLogFields = []Descriptor{
	{Owner, Simple},
	{Bucket, Simple},
	{Timestamp, BracketedDatetime},
	{RemoteIP, Simple},
	{Requester, Simple},
	{RequestID, Simple},
	{Verb, Simple},
	{Key, Simple},
	{RequestURI, QuotedOrDash},
	{HTTP, NumberOrDash},
	{AWSErrorCode, Simple},
	{BytesSent, Simple},
	{ObjectSize, Simple},
	{TotalTime, Simple},
	{TurnaroundTime, Simple},
	{Referrer, QuotedOrDash},
	{UserAgent, QuotedOrDash},
	{Version, Simple},
	{HostID, Simple},
	{SigV, Simple},
	{Cypher, Simple},
	{Auth, Simple},
	{Endpoint, Simple},
	{TLS, Simple},
	{Tail, Trailing},
}

// S3AccessLog compiles the canonical 25-field S3 server access log grammar.
// Build it once and share the result.
func S3AccessLog() *Grammar {
	return MustCompile(s3AccessLogFields)
}

// CanonicalFields returns the canonical field names in grammar order.
func CanonicalFields() []FieldName {
	out := make([]FieldName, len(s3AccessLogFields))
	for i, d := range s3AccessLogFields {
		out[i] = d.Name
	}
	return out
}

// Fields returns a copy of the grammar's descriptors.
func (g *Grammar) Fields() []Descriptor {
	return append([]Descriptor(nil), g.fields...)
}

// Names returns the field names in grammar order.
func (g *Grammar) Names() []FieldName {
	out := make([]FieldName, len(g.fields))
	for i, d := range g.fields {
		out[i] = d.Name
	}
	return out
}

// Position returns the index of name in the grammar, or -1.
func (g *Grammar) Position(name FieldName) int {
	if i, ok := g.index[name]; ok {
		return i
	}
	return -1
}

// Len reports the number of declared fields.
func (g *Grammar) Len() int { return len(g.fields) }

// Pattern returns the compiled expression, mainly for diagnostics.
func (g *Grammar) Pattern() string { return g.re.String() }
