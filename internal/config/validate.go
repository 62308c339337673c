package config

import (
	"fmt"
	"net/url"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path is a dotted path into the config
// (e.g. "source.s3.bucket", "export[1].kind").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Known kinds per section.
var (
	knownSources    = map[string]struct{}{SourceDir: {}, SourceList: {}, SourceS3: {}, SourceFile: {}, SourceHTTP: {}}
	knownParsers    = map[string]struct{}{"s3-access-log": {}}
	knownTransforms = map[string]struct{}{"useragent": {}, "dedup": {}}
	knownExports    = map[string]struct{}{"csv": {}, "json": {}, "msgpack": {}}
	knownStorage    = map[string]struct{}{"sqlite": {}, "postgres": {}, "mssql": {}}
)

// ValidatePipeline lints p without mutating it. Callers decide whether
// warnings are fatal.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "job",
			Message:  `job is empty; metrics and logs will be labelled "auditlog"`,
		})
	}
	issues = append(issues, validateSource(p.Source)...)
	issues = append(issues, validateParser(p.Parser)...)
	issues = append(issues, validateTransforms(p.Transform)...)
	issues = append(issues, validateExports(p.Export, p.Storage)...)
	if p.Storage != nil {
		issues = append(issues, validateStorage(*p.Storage)...)
	}
	issues = append(issues, validateRuntime(p.Runtime)...)
	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue
	if strings.TrimSpace(s.Kind) == "" {
		return append(issues, Issue{SeverityError, "source.kind", "source.kind must not be empty"})
	}
	if _, ok := knownSources[s.Kind]; !ok {
		return append(issues, Issue{SeverityError, "source.kind",
			fmt.Sprintf("unknown source kind %q (want dir, list, s3, http or file)", s.Kind)})
	}

	switch s.Kind {
	case SourceDir:
		if strings.TrimSpace(s.Dir.Path) == "" {
			issues = append(issues, Issue{SeverityError, "source.dir.path", "dir source requires a non-empty path"})
		}
	case SourceList:
		if strings.TrimSpace(s.List.Path) == "" {
			issues = append(issues, Issue{SeverityError, "source.list.path", "list source requires a non-empty path"})
		}
	case SourceFile:
		if strings.TrimSpace(s.File.Path) == "" {
			issues = append(issues, Issue{SeverityError, "source.file.path", "file source requires a non-empty path"})
		}
	case SourceS3:
		if strings.TrimSpace(s.S3.Bucket) == "" {
			issues = append(issues, Issue{SeverityError, "source.s3.bucket", "s3 source requires a bucket"})
		}
		if s.S3.AccessKeyID != "" && s.S3.SecretAccessKey == "" {
			issues = append(issues, Issue{SeverityError, "source.s3.secret_access_key",
				"access_key_id is set without secret_access_key"})
		}
		if s.S3.Prefix != "" && !strings.HasSuffix(s.S3.Prefix, "/") {
			issues = append(issues, Issue{SeverityWarning, "source.s3.prefix",
				"prefix does not end in '/'; keys sharing the prefix text will also be merged"})
		}
	case SourceHTTP:
		if len(s.HTTP.URLs) == 0 {
			issues = append(issues, Issue{SeverityError, "source.http.urls", "http source requires at least one URL"})
		}
		for i, raw := range s.HTTP.URLs {
			u, err := url.Parse(raw)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || strings.Trim(u.Path, "/") == "" {
				issues = append(issues, Issue{SeverityError, fmt.Sprintf("source.http.urls[%d]", i),
					fmt.Sprintf("%q is not an http(s) object URL", raw)})
			}
		}
		if s.HTTP.TimeoutSeconds < 0 {
			issues = append(issues, Issue{SeverityError, "source.http.timeout_seconds", "timeout must not be negative"})
		}
	}
	return issues
}

func validateParser(p Parser) []Issue {
	var issues []Issue
	if strings.TrimSpace(p.Kind) == "" {
		return append(issues, Issue{SeverityError, "parser.kind", "parser.kind must not be empty"})
	}
	if _, ok := knownParsers[p.Kind]; !ok {
		issues = append(issues, Issue{SeverityError, "parser.kind",
			fmt.Sprintf("unknown parser kind %q (want s3-access-log)", p.Kind)})
	}
	switch u := p.Options.String("unreferred", "exclude"); u {
	case "exclude", "keep":
	default:
		issues = append(issues, Issue{SeverityError, "parser.options.unreferred",
			fmt.Sprintf("unreferred=%q; want exclude or keep", u)})
	}
	return issues
}

func validateTransforms(ts []Transform) []Issue {
	var issues []Issue
	for i, t := range ts {
		path := fmt.Sprintf("transform[%d].kind", i)
		if strings.TrimSpace(t.Kind) == "" {
			issues = append(issues, Issue{SeverityError, path, "transform kind must not be empty"})
			continue
		}
		if _, ok := knownTransforms[t.Kind]; !ok {
			issues = append(issues, Issue{SeverityError, path,
				fmt.Sprintf("unknown transform kind %q (want useragent or dedup)", t.Kind)})
			continue
		}
		if t.Kind == "dedup" {
			switch pol := t.Options.String("policy", "keep-first"); pol {
			case "keep-first", "keep-last", "most-complete":
			default:
				issues = append(issues, Issue{SeverityError, fmt.Sprintf("transform[%d].options.policy", i),
					fmt.Sprintf("policy=%q; want keep-first, keep-last or most-complete", pol)})
			}
		}
	}
	return issues
}

func validateExports(es []Export, st *Storage) []Issue {
	var issues []Issue
	if len(es) == 0 && st == nil {
		issues = append(issues, Issue{SeverityWarning, "export",
			"no export or storage configured; the run only reports counts"})
	}
	seen := make(map[string]int, len(es))
	for i, e := range es {
		if _, ok := knownExports[e.Kind]; !ok {
			issues = append(issues, Issue{SeverityError, fmt.Sprintf("export[%d].kind", i),
				fmt.Sprintf("unknown export kind %q (want csv, json or msgpack)", e.Kind)})
		}
		if strings.TrimSpace(e.Path) == "" {
			issues = append(issues, Issue{SeverityError, fmt.Sprintf("export[%d].path", i),
				"export requires a non-empty path"})
			continue
		}
		if j, dup := seen[e.Path]; dup {
			issues = append(issues, Issue{SeverityError, fmt.Sprintf("export[%d].path", i),
				fmt.Sprintf("path %q is also used by export[%d]", e.Path, j)})
		}
		seen[e.Path] = i
		if e.Kind == "csv" {
			if c := e.Options.String("comma", ","); len([]rune(c)) != 1 || c == "\"" || c == "\n" {
				issues = append(issues, Issue{SeverityError, fmt.Sprintf("export[%d].options.comma", i),
					fmt.Sprintf("comma=%q must be a single character other than quote or newline", c)})
			}
		}
	}
	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue
	if strings.TrimSpace(s.Kind) == "" {
		return append(issues, Issue{SeverityError, "storage.kind", "storage.kind must not be empty"})
	}
	if _, ok := knownStorage[s.Kind]; !ok {
		issues = append(issues, Issue{SeverityWarning, "storage.kind",
			fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", s.Kind)})
	}
	if strings.TrimSpace(s.DB.DSN) == "" {
		issues = append(issues, Issue{SeverityError, "storage.db.dsn", "storage.db.dsn must not be empty"})
	}
	if strings.TrimSpace(s.DB.Table) == "" {
		issues = append(issues, Issue{SeverityError, "storage.db.table", "storage.db.table must not be empty"})
	}
	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue
	if r.Workers < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.workers", "workers must not be negative"})
	}
	if r.BatchSize < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.batch_size", "batch_size must not be negative"})
	}
	if r.ChannelBuffer < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.channel_buffer", "channel_buffer must not be negative"})
	}
	return issues
}
