package etl

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"auditlog/internal/config"
	"auditlog/internal/merge"
	"auditlog/internal/pipeline"
	"auditlog/internal/record"
	"auditlog/internal/storage"
	"auditlog/internal/storage/sqlite"
)

const referrer = `"https://audit.example.org/hadoop/1/op_create/?op=op_create&p1=fork-0001/a&pr=alice&t0=154"`

func logLine(requestID, ref string) string {
	return "183c9826b45486e485693808f38e2c4071004bf5dfd4c3ab210f0a21a4000000" +
		" bucket-london" +
		" [13/May/2021:11:26:06 +0000]" +
		" 109.157.171.174" +
		" arn:aws:iam::152813717700:user/dev" +
		" " + requestID +
		" REST.PUT.OBJECT" +
		" fork-0001/a" +
		` "PUT /fork-0001/a HTTP/1.1"` +
		" 200 - - 794 55 17" +
		" " + ref +
		` "Hadoop 3.4.0-SNAPSHOT, java/1.8.0_282 vendor/AdoptOpenJDK"` +
		" - TrIqtEYGWAwvu0h1N9WJKyoqM0TyHUaY+ZZBwP2yNf2qQp1Z/0=" +
		" SigV4 ECDHE-RSA-AES128-GCM-SHA256 AuthHeader" +
		" bucket-london.s3.eu-west-2.amazonaws.com TLSv1.2"
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// fixture lays out two log objects plus a file the glob must ignore.
func fixture(t *testing.T) (logs, out string) {
	t.Helper()
	root := t.TempDir()
	logs = filepath.Join(root, "logs")
	out = filepath.Join(root, "out")
	writeFile(t, filepath.Join(logs, "2021-05-13-a.log"),
		logLine("REQ1", referrer)+"\n"+logLine("REQ2", "-")+"\n")
	writeFile(t, filepath.Join(logs, "2021-05-13-b.log"),
		"not an access log line\n"+logLine("REQ3", referrer))
	writeFile(t, filepath.Join(logs, "README.txt"), "ignored\n")
	return logs, out
}

func TestRunEndToEnd(t *testing.T) {
	t.Parallel()

	logs, out := fixture(t)
	dbPath := filepath.Join(out, "audit.db")
	if err := os.MkdirAll(out, 0o755); err != nil {
		t.Fatal(err)
	}

	p := config.Pipeline{
		Job:    "e2e",
		Source: config.Source{Kind: config.SourceDir, Dir: config.DirSource{Path: logs, Pattern: "*.log"}},
		Merge:  config.Merge{Path: filepath.Join(out, "AuditLogFile")},
		Parser: config.Parser{Kind: "s3-access-log", Options: config.Options{}},
		Export: []config.Export{
			{Kind: "csv", Path: filepath.Join(out, "audit.csv"), Options: config.Options{}},
			{Kind: "json", Path: filepath.Join(out, "audit.json"), Options: config.Options{}},
		},
		Storage: &config.Storage{Kind: "sqlite", DB: config.DBConfig{
			DSN:             dbPath,
			Table:           "access_log",
			AutoCreateTable: true,
		}},
		Runtime: config.RuntimeConfig{Workers: 2, BatchSize: 1},
	}

	sum, err := Run(context.Background(), p, Options{RunID: "run-42"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.RunID != "run-42" || sum.Merge.Files != 2 || sum.Stats.Lines != 4 || sum.Records != 2 || sum.Loaded != 2 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.Stats.Skips[pipeline.SkipNoReferrer] != 1 || sum.Stats.Skips[pipeline.SkipGrammarMismatch] != 1 {
		t.Fatalf("skips = %v", sum.Stats.Skips)
	}

	merged, err := os.ReadFile(p.Merge.Path)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(merged), "\n"); got != 4 {
		t.Fatalf("merged file has %d lines, want 4", got)
	}

	f, err := os.Open(filepath.Join(out, "audit.csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[0][0] != "owner" || rows[1][5] != "REQ1" || rows[2][5] != "REQ3" {
		t.Fatalf("csv rows = %v", rows)
	}

	b, err := os.ReadFile(filepath.Join(out, "audit.json"))
	if err != nil {
		t.Fatal(err)
	}
	var objs []map[string]string
	if err := json.Unmarshal(b, &objs); err != nil {
		t.Fatal(err)
	}
	if len(objs) != 2 || objs[0]["op"] != "op_create" || objs[1]["pr"] != "alice" {
		t.Fatalf("json = %v", objs)
	}

	repo, closeFn, err := sqlite.NewRepository(context.Background(), sqlite.Config{DSN: dbPath, Table: "access_log"})
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	got, err := repo.Query(context.Background(), `SELECT run_id, requestid, op FROM access_log ORDER BY requestid`)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0][0] != "run-42" || got[0][1] != "REQ1" || got[1][2] != "op_create" {
		t.Fatalf("table rows = %v", got)
	}
}

func TestRunEmptySource(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	logs := filepath.Join(root, "logs")
	if err := os.MkdirAll(logs, 0o755); err != nil {
		t.Fatal(err)
	}
	p := config.Pipeline{
		Source: config.Source{Kind: config.SourceDir, Dir: config.DirSource{Path: logs}},
		Merge:  config.Merge{Path: filepath.Join(root, "AuditLogFile")},
		Parser: config.Parser{Kind: "s3-access-log", Options: config.Options{}},
		Export: []config.Export{
			{Kind: "csv", Path: filepath.Join(root, "audit.csv"), Options: config.Options{}},
			{Kind: "json", Path: filepath.Join(root, "audit.json"), Options: config.Options{}},
		},
	}
	sum, err := Run(context.Background(), p, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Records != 0 || sum.RunID == "" {
		t.Fatalf("summary = %+v", sum)
	}
	for _, name := range []string{"AuditLogFile", "audit.csv"} {
		if _, err := os.Stat(filepath.Join(root, name)); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("%s exists after empty run (err=%v)", name, err)
		}
	}
	b, err := os.ReadFile(filepath.Join(root, "audit.json"))
	if err != nil || string(b) != "[]\n" && string(b) != "[]" {
		t.Fatalf("audit.json = %q, %v", b, err)
	}
}

func TestRunFileSourceKeepsUnreferred(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	in := filepath.Join(root, "merged.log")
	writeFile(t, in, logLine("REQ1", referrer)+"\n"+logLine("REQ2", "-")+"\n"+logLine("REQ1", referrer)+"\n")

	p := config.Pipeline{
		Source: config.Source{Kind: config.SourceFile, File: config.PathSource{Path: in}},
		Parser: config.Parser{Kind: "s3-access-log", Options: config.Options{"unreferred": "keep", "dedupe": true}},
	}
	sum, err := Run(context.Background(), p, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Records != 2 || sum.Stats.Duplicates() != 1 || sum.Stats.Unreferred != 1 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestParseRejectsBadPolicy(t *testing.T) {
	t.Parallel()

	p := config.Pipeline{Parser: config.Parser{Options: config.Options{"unreferred": "maybe"}}}
	if _, err := Parse(context.Background(), p, "unused", Options{}); err == nil {
		t.Fatal("expected error for unknown unreferred policy")
	}
}

func TestMergeEmptyDirIsNoInput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := config.Pipeline{
		Source: config.Source{Kind: config.SourceDir, Dir: config.DirSource{Path: dir}},
		Merge:  config.Merge{Path: filepath.Join(dir, "out", "AuditLogFile")},
	}
	if _, err := Merge(context.Background(), p, Options{}); !errors.Is(err, merge.ErrNoInput) {
		t.Fatalf("err = %v, want ErrNoInput", err)
	}
}

func TestNewLister(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if _, err := NewLister(ctx, config.Source{Kind: config.SourceFile}, nil); err == nil {
		t.Fatal("file source must not produce a lister")
	}
	if _, err := NewLister(ctx, config.Source{Kind: "ftp"}, nil); err == nil {
		t.Fatal("unknown source kind must fail")
	}
	if l, err := NewLister(ctx, config.Source{Kind: config.SourceList, List: config.PathSource{Path: "x"}}, nil); err != nil || l == nil {
		t.Fatalf("list lister = %v, %v", l, err)
	}
	httpSrc := config.Source{Kind: config.SourceHTTP, HTTP: config.HTTPSource{
		URLs:   []string{"https://logs.example.org/b.log", "https://logs.example.org/a.log"},
		Header: map[string]string{"authorization": "Bearer x"},
	}}
	if l, err := NewLister(ctx, httpSrc, nil); err != nil || l == nil {
		t.Fatalf("http lister = %v, %v", l, err)
	}
	if _, err := NewLister(ctx, config.Source{Kind: config.SourceHTTP}, nil); err == nil {
		t.Fatal("http source without URLs must fail")
	}
}

func TestLoadProjectsColumns(t *testing.T) {
	t.Parallel()

	logs, out := fixture(t)
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	p := config.Pipeline{
		Source: config.Source{Kind: config.SourceDir, Dir: config.DirSource{Path: logs, Pattern: "*.log"}},
		Merge:  config.Merge{Path: filepath.Join(out, "AuditLogFile")},
		Parser: config.Parser{Kind: "s3-access-log", Options: config.Options{}},
		Storage: &config.Storage{Kind: "sqlite", DB: config.DBConfig{
			DSN:             dbPath,
			Table:           "slim",
			Columns:         []string{"requestid", "op", "missing"},
			AutoCreateTable: true,
		}},
	}
	if _, err := Run(context.Background(), p, Options{RunID: "r"}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	repo, closeFn, err := sqlite.NewRepository(context.Background(), sqlite.Config{DSN: dbPath, Table: "slim"})
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	got, err := repo.Query(context.Background(), `SELECT * FROM slim ORDER BY requestid`)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{{"r", "REQ1", "op_create", ""}, {"r", "REQ3", "op_create", ""}}
	if len(got) != len(want) || strings.Join(got[0], ",") != strings.Join(want[0], ",") ||
		strings.Join(got[1], ",") != strings.Join(want[1], ",") {
		t.Fatalf("rows = %v, want %v", got, want)
	}
}

func TestRuntimeFromEnv(t *testing.T) {
	t.Setenv("AUDITLOG_WORKERS", "3")
	t.Setenv("AUDITLOG_BATCH_SIZE", "bogus")

	rt := RuntimeFrom(config.RuntimeConfig{})
	if rt.Workers != 3 || rt.BatchSize != 0 {
		t.Fatalf("env runtime = %+v", rt)
	}
	rt = RuntimeFrom(config.RuntimeConfig{Workers: 5, BatchSize: 10, ChannelBuffer: 7})
	if rt != (Runtime{Workers: 5, BatchSize: 10, ChannelBuffer: 7}) {
		t.Fatalf("explicit runtime = %+v", rt)
	}
}

func TestNames(t *testing.T) {
	t.Parallel()

	if JobName(config.Pipeline{}) != DefaultJob || JobName(config.Pipeline{Job: "x"}) != "x" {
		t.Fatal("JobName")
	}
	if MergedPath(config.Pipeline{}) != config.DefaultMergedName {
		t.Fatal("MergedPath default")
	}
}

type loadCapture struct {
	mu      sync.Mutex
	cfg     storage.Config
	columns []string
	rows    [][]any
}

func (c *loadCapture) CopyFrom(_ context.Context, columns []string, rows [][]any) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.columns = columns
	for _, r := range rows {
		c.rows = append(c.rows, append([]any(nil), r...))
	}
	return int64(len(rows)), nil
}
func (c *loadCapture) Exec(context.Context, string) error { return nil }
func (c *loadCapture) Close()                             {}

func TestLoadPassesTableAndColumns(t *testing.T) {
	t.Parallel()

	c := &loadCapture{}
	storage.Register("etl-capture", func(_ context.Context, cfg storage.Config) (storage.Repository, error) {
		c.cfg = cfg
		return c, nil
	})

	d := record.Dataset{
		record.FromPairs("requestid", "REQ1", "op", "op_create", "p1", "a"),
		record.FromPairs("requestid", "REQ2", "pr", "bob"),
	}
	s := config.Storage{Kind: "etl-capture", DB: config.DBConfig{
		DSN:     "capture://",
		Table:   "audit.access_log",
		Columns: []string{"requestid", "op"},
	}}
	n, err := Load(context.Background(), s, d, Runtime{BatchSize: 1}, LoadOptions{RunID: "r1", Job: "t"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 2 {
		t.Fatalf("loaded = %d, want 2", n)
	}
	wantCfg := storage.Config{Kind: "etl-capture", DSN: "capture://", Table: "audit.access_log", Columns: []string{"requestid", "op"}}
	if !reflect.DeepEqual(c.cfg, wantCfg) {
		t.Fatalf("storage config = %+v, want %+v", c.cfg, wantCfg)
	}
	if !reflect.DeepEqual(c.columns, []string{"run_id", "requestid", "op"}) {
		t.Fatalf("columns = %v", c.columns)
	}
	want := [][]any{{"r1", "REQ1", "op_create"}, {"r1", "REQ2", ""}}
	if !reflect.DeepEqual(c.rows, want) {
		t.Fatalf("rows = %v, want %v", c.rows, want)
	}
}
