// Package config defines the JSON configuration model of an audit-log run and
// a loader for it.
//
// Example (trimmed):
//
//	{
//	  "job":     "s3-audit-nightly",
//	  "source":  { "kind": "dir", "dir": { "path": "logs", "pattern": "**/*.log" } },
//	  "merge":   { "path": "out/AuditLogFile" },
//	  "parser":  { "kind": "s3-access-log", "options": { "unreferred": "exclude" } },
//	  "transform": [ { "kind": "useragent" } ],
//	  "export":  [ { "kind": "csv", "path": "out/audit.csv" } ],
//	  "storage": { "kind": "sqlite", "db": { "dsn": "file:audit.db", "table": "audit", "auto_create_table": true } }
//	}
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// Pipeline is the top-level object decoded from a pipeline file.
type Pipeline struct {
	// Job labels metrics and log lines for this run.
	Job string `json:"job"`

	Source    Source        `json:"source"`
	Merge     Merge         `json:"merge"`
	Parser    Parser        `json:"parser"`
	Transform []Transform   `json:"transform"`
	Export    []Export      `json:"export"`
	Storage   *Storage      `json:"storage,omitempty"`
	Runtime   RuntimeConfig `json:"runtime"`
}

// RuntimeConfig controls parallelism and batching. Zero values fall back to
// AUDITLOG_* environment variables and then to built-in defaults.
type RuntimeConfig struct {
	// Workers is the number of parse shards. 1 parses sequentially.
	Workers int `json:"workers"`
	// BatchSize is both the shard size and the storage COPY batch size.
	BatchSize int `json:"batch_size"`
	// ChannelBuffer bounds the loader's batch channel.
	ChannelBuffer int `json:"channel_buffer"`
}

// Source kinds.
const (
	SourceDir  = "dir"
	SourceList = "list"
	SourceS3   = "s3"
	SourceFile = "file"
	SourceHTTP = "http"
)

// Source selects where raw log objects come from.
type Source struct {
	// Kind is one of "dir", "list", "s3", "http" or "file".
	Kind string `json:"kind"`

	Dir  DirSource  `json:"dir"`
	List PathSource `json:"list"`
	File PathSource `json:"file"`
	S3   S3Source   `json:"s3"`
	HTTP HTTPSource `json:"http"`
}

// DirSource configures the "dir" source kind.
type DirSource struct {
	Path string `json:"path"`
	// Pattern is a doublestar glob relative to Path; empty means "*".
	Pattern string `json:"pattern"`
}

// PathSource configures kinds that name a single local path.
type PathSource struct {
	Path string `json:"path"`
}

// S3Source configures the "s3" source kind.
type S3Source struct {
	Bucket          string `json:"bucket"`
	Prefix          string `json:"prefix"`
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint"`
	UsePathStyle    bool   `json:"use_path_style"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

// HTTPSource configures the "http" source kind: log objects fetched by URL,
// e.g. presigned object URLs.
type HTTPSource struct {
	URLs []string `json:"urls"`
	// Header is sent with every request.
	Header map[string]string `json:"header"`
	// MaxRetries after the first attempt; 0 means the client default, -1
	// disables retries.
	MaxRetries     int `json:"max_retries"`
	TimeoutSeconds int `json:"timeout_seconds"`
}

// DefaultMergedName is the merged artifact name used when Merge.Path is empty.
const DefaultMergedName = "AuditLogFile"

// Merge configures the concatenated intermediate file.
type Merge struct {
	// Path of the merged file. Empty means DefaultMergedName in the working
	// directory.
	Path string `json:"path"`
}

// Parser selects the line grammar and its policies.
type Parser struct {
	// Kind is "s3-access-log".
	Kind string `json:"kind"`

	// Options:
	//   unreferred (string): "exclude" (default) or "keep"
	//   dedupe (bool): drop exact duplicate lines
	Options Options `json:"options"`
}

// Transform is one enrichment step applied to every merged record.
type Transform struct {
	// Kind is "useragent".
	Kind    string  `json:"kind"`
	Options Options `json:"options"`
}

// Export writes the dataset to a file.
type Export struct {
	// Kind is "csv", "json" or "msgpack".
	Kind string `json:"kind"`
	Path string `json:"path"`
	// Options:
	//   comma (string, csv only): field delimiter, default ","
	//   indent (bool, json only): pretty-print
	Options Options `json:"options"`
}

// Storage optionally loads the dataset into a database table.
type Storage struct {
	// Kind is "sqlite", "postgres" or "mssql".
	Kind string   `json:"kind"`
	DB   DBConfig `json:"db"`
}

// DBConfig configures the database sink.
type DBConfig struct {
	// DSN is the driver connection string.
	DSN string `json:"dsn"`

	// Table is the destination table, optionally schema-qualified.
	Table string `json:"table"`

	// Columns limits and orders the loaded columns. Empty means every column
	// of the dataset header, normalized to SQL identifiers.
	Columns []string `json:"columns"`

	// AutoCreateTable creates the table with TEXT columns when missing.
	AutoCreateTable bool `json:"auto_create_table"`
}

// Load reads and decodes a pipeline file. Unknown fields are rejected so that
// typos surface instead of silently falling back to defaults.
func Load(path string) (Pipeline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Decode(b)
}

// Decode parses a pipeline from JSON.
func Decode(b []byte) (Pipeline, error) {
	var p Pipeline
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Pipeline{}, fmt.Errorf("config: decode: %w", err)
	}
	// Absent "options" keys never reach UnmarshalJSON.
	if p.Parser.Options == nil {
		p.Parser.Options = Options{}
	}
	for i := range p.Transform {
		if p.Transform[i].Options == nil {
			p.Transform[i].Options = Options{}
		}
	}
	for i := range p.Export {
		if p.Export[i].Options == nil {
			p.Export[i].Options = Options{}
		}
	}
	return p, nil
}

// Options is a free-form JSON object with typed accessors that return a
// default when a key is missing or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def.
func (o Options) String(key, def string) string {
	if s, ok := o[key].(string); ok {
		return s
	}
	return def
}

// Bool returns the bool value for key or def.
func (o Options) Bool(key string, def bool) bool {
	if b, ok := o[key].(bool); ok {
		return b
	}
	return def
}

// Int returns the int value for key or def. JSON numbers decode as float64.
func (o Options) Int(key string, def int) int {
	switch n := o[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return def
}

// Rune returns the first rune of a string value for key, or def.
func (o Options) Rune(key string, def rune) rune {
	if s, ok := o[key].(string); ok && s != "" {
		return []rune(s)[0]
	}
	return def
}

// StringSlice returns a []string for key when the value is an array of
// strings. Non-string items are skipped; a missing key returns nil.
func (o Options) StringSlice(key string) []string {
	switch vv := o[key].(type) {
	case []any:
		out := make([]string, 0, len(vv))
		for _, x := range vv {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return vv
	}
	return nil
}

// UnmarshalJSON decodes a null object into an empty, non-nil map.
func (o *Options) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	var tmp map[string]any
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
