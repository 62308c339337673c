package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"auditlog/internal/accesslog"
)

const testReferrer = `"https://audit.example.org/hadoop/1/op_open/?op=op_open&p1=data/x.csv&pr=bob"`

func testLine(requestID, ref string) string {
	return "183c9826b45486e485693808f38e2c4071004bf5dfd4c3ab210f0a21a4000000" +
		" bucket-london [13/May/2021:11:26:06 +0000] 109.157.171.174" +
		" arn:aws:iam::152813717700:user/dev " + requestID +
		` REST.GET.OBJECT data/x.csv "GET /data/x.csv HTTP/1.1" 200 - 794 794 17 12 ` + ref +
		` "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/90.0.4430.93 Safari/537.36"` +
		" - hostid= SigV4 ECDHE-RSA-AES128-GCM-SHA256 AuthHeader" +
		" bucket-london.s3.eu-west-2.amazonaws.com TLSv1.2"
}

// execute runs the CLI with args and returns stdout, stderr and the error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
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

func TestFieldsCommand(t *testing.T) {
	t.Parallel()

	out, _, err := execute(t, "fields")
	if err != nil {
		t.Fatalf("fields: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	want := accesslog.CanonicalFields()
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d", len(lines), len(want))
	}
	if lines[0] != "owner\tsimple" || lines[2] != "timestamp\tbracketed-datetime" {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()

	in := filepath.Join(t.TempDir(), "merged.log")
	writeFile(t, in, testLine("A1", testReferrer)+"\n"+testLine("A2", "-")+"\n")

	out, _, err := execute(t, "parse", in, "--useragent", "--log-level", "error")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var objs []map[string]string
	if err := json.Unmarshal([]byte(out), &objs); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(objs) != 1 || objs[0]["requestid"] != "A1" || objs[0]["op"] != "op_open" || objs[0]["ua_name"] != "Chrome" {
		t.Fatalf("objs = %v", objs)
	}

	out, _, err = execute(t, "parse", in, "-f", "csv", "--unreferred", "keep", "-w", "2")
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("csv rows = %d, want header + 2", len(rows))
	}
}

func TestParseCommandEmpty(t *testing.T) {
	t.Parallel()

	in := filepath.Join(t.TempDir(), "empty.log")
	writeFile(t, in, "garbage\n")
	out, _, err := execute(t, "parse", in, "-f", "csv")
	if err != nil || out != "" {
		t.Fatalf("parse empty = %q, %v", out, err)
	}
	if _, _, err := execute(t, "parse", in, "-f", "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if _, _, err := execute(t, "parse"); err == nil {
		t.Fatal("expected error for missing file argument")
	}
}

func TestMergeCommand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "in", "b.log"), "second")
	writeFile(t, filepath.Join(dir, "in", "a.log"), "first\n")
	outPath := filepath.Join(dir, "AuditLogFile")

	out, _, err := execute(t, "merge", filepath.Join(dir, "in"), "-o", outPath)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !strings.Contains(out, "merged 2 files (2 lines)") {
		t.Fatalf("stdout = %q", out)
	}
	b, err := os.ReadFile(outPath)
	if err != nil || string(b) != "first\nsecond\n" {
		t.Fatalf("merged = %q, %v", b, err)
	}

	empty := filepath.Join(dir, "none")
	if err := os.MkdirAll(empty, 0o755); err != nil {
		t.Fatal(err)
	}
	out, _, err = execute(t, "merge", empty, "-o", filepath.Join(dir, "never"))
	if err != nil || !strings.Contains(out, "nothing merged") {
		t.Fatalf("empty merge = %q, %v", out, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "never")); !os.IsNotExist(err) {
		t.Fatalf("merged file created for empty input: %v", err)
	}
}

func TestValidateAndRunCommands(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "logs", "x.log"), testLine("R1", testReferrer)+"\n")
	cfg := filepath.Join(dir, "pipeline.json")
	writeFile(t, cfg, `{
  "job": "cli-test",
  "source": {"kind": "dir", "dir": {"path": "`+filepath.ToSlash(filepath.Join(dir, "logs"))+`"}},
  "merge": {"path": "`+filepath.ToSlash(filepath.Join(dir, "out", "AuditLogFile"))+`"},
  "parser": {"kind": "s3-access-log"},
  "export": [{"kind": "csv", "path": "`+filepath.ToSlash(filepath.Join(dir, "out", "audit.csv"))+`"}]
}`)

	out, _, err := execute(t, "validate", "--config", cfg)
	if err != nil || !strings.Contains(out, "configuration is valid") {
		t.Fatalf("validate = %q, %v", out, err)
	}

	out, _, err = execute(t, "run", "-c", cfg, "--log-format", "json")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "1 files, 1 lines, 1 records") {
		t.Fatalf("run stdout = %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "out", "audit.csv")); err != nil {
		t.Fatalf("csv export missing: %v", err)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	t.Parallel()

	cfg := filepath.Join(t.TempDir(), "bad.json")
	writeFile(t, cfg, `{"source": {"kind": "ftp"}, "parser": {"kind": "s3-access-log"}}`)
	_, stderr, err := execute(t, "validate", "-c", cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(stderr, "source.kind") {
		t.Fatalf("stderr = %q", stderr)
	}

	if _, _, err := execute(t, "validate", "-c", filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing config file")
	}
	if _, _, err := execute(t, "fields", "--log-level", "loud"); err == nil {
		t.Fatal("expected error for bad log level")
	}
}

func TestErrorsReachStderr(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "merged.log")
	_, stderr, err := execute(t, "parse", missing)
	if err == nil {
		t.Fatal("expected error for missing input")
	}
	if !strings.Contains(stderr, "Error:") || !strings.Contains(stderr, missing) {
		t.Fatalf("stderr = %q, want the failing path", stderr)
	}

	cfg := filepath.Join(t.TempDir(), "absent.json")
	if _, stderr, _ := execute(t, "run", "-c", cfg); !strings.Contains(stderr, cfg) {
		t.Fatalf("stderr = %q, want the config path", stderr)
	}
}
