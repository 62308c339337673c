package accesslog

import (
	"reflect"
	"strings"
	"testing"
)

func TestExtractSampleLine(t *testing.T) {
	t.Parallel()

	rec, ok := S3AccessLog().Extract(sampleLine)
	if !ok {
		t.Fatalf("Extract() did not match the sample line")
	}

	want := map[FieldName]string{
		Bucket:         "bucket-london",
		Timestamp:      "13/May/2021:11:26:06 +0000",
		RemoteIP:       "109.157.171.174",
		Requester:      "arn:aws:iam::152813717700:user/dev",
		Verb:           "REST.PUT.OBJECT",
		Key:            "fork-0001/test/testParseBrokenCSVFile",
		RequestURI:     `"PUT /fork-0001/test/testParseBrokenCSVFile HTTP/1.1"`,
		HTTP:           "200",
		AWSErrorCode:   "-",
		BytesSent:      "-",
		ObjectSize:     "794",
		TotalTime:      "55",
		TurnaroundTime: "17",
		Referrer:       sampleReferrer,
		UserAgent:      `"Hadoop 3.4.0-SNAPSHOT, java/1.8.0_282 vendor/AdoptOpenJDK"`,
		Version:        "-",
		SigV:           "SigV4",
		Auth:           "AuthHeader",
		Endpoint:       "bucket-london.s3.eu-west-2.amazonaws.com",
		TLS:            "TLSv1.2",
	}
	for name, v := range want {
		got, present := rec.Lookup(name)
		if !present || got != v {
			t.Errorf("%s = %q (present=%v), want %q", name, got, present, v)
		}
	}

	if v := rec.Get(Tail); v.Present {
		t.Fatalf("tail = %+v, want absent", v)
	}
	if !rec.IsDash(AWSErrorCode) || rec.IsDash(Bucket) {
		t.Fatalf("IsDash mismatch")
	}
}

func TestExtractTail(t *testing.T) {
	t.Parallel()

	g := S3AccessLog()
	type tc struct {
		name        string
		line        string
		wantText    string
		wantPresent bool
	}
	cases := []tc{
		{"absent", sampleLine, "", false},
		{"empty", sampleLine + " ", "", true},
		{"extra fields", sampleLine + " - future value", "- future value", true},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			rec, ok := g.Extract(c.line)
			if !ok {
				t.Fatalf("Extract() no match")
			}
			v := rec.Get(Tail)
			if v.Text != c.wantText || v.Present != c.wantPresent {
				t.Fatalf("tail = %+v, want {%q %v}", v, c.wantText, c.wantPresent)
			}
			if rec.Get(TLS).Text != "TLSv1.2" {
				t.Fatalf("tls = %q, want TLSv1.2", rec.Get(TLS).Text)
			}
		})
	}
}

func TestExtractMismatch(t *testing.T) {
	t.Parallel()

	g := S3AccessLog()
	cases := map[string]string{
		"empty":              "",
		"garbage":            "not an access log line",
		"unterminated quote": strings.Replace(sampleLine, `HTTP/1.1"`, `HTTP/1.1`, 1),
		"non numeric http":   strings.Replace(sampleLine, " 200 ", " OK ", 1),
		"missing bracket":    strings.Replace(sampleLine, "+0000]", "+0000", 1),
		"truncated":          sampleLine[:200],
		"double space":       strings.Replace(sampleLine, " bucket-london ", "  bucket-london ", 1),
	}
	for name, line := range cases {
		line := line
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			rec, ok := g.Extract(line)
			if ok {
				t.Fatalf("Extract() matched, want no match")
			}
			if rec.Len() != 0 {
				t.Fatalf("no-match returned a partial record with %d fields", rec.Len())
			}
		})
	}
}

func TestExtractQuotedFieldsKeepDelimitersInside(t *testing.T) {
	t.Parallel()

	referrer := `"https://h/p?op=a b&x=1 2&y==z"`
	line := strings.Replace(sampleLine, sampleReferrer, referrer, 1)
	rec, ok := S3AccessLog().Extract(line)
	if !ok {
		t.Fatalf("Extract() no match")
	}
	if got := rec.Get(Referrer).Text; got != referrer {
		t.Fatalf("referrer = %q, want %q", got, referrer)
	}
	if got := rec.Get(Version).Text; got != "-" {
		t.Fatalf("version shifted: %q", got)
	}
}

func TestExtractEscapedQuote(t *testing.T) {
	t.Parallel()

	ua := `"agent \"quoted\" part"`
	line := strings.Replace(sampleLine, `"Hadoop 3.4.0-SNAPSHOT, java/1.8.0_282 vendor/AdoptOpenJDK"`, ua, 1)
	rec, ok := S3AccessLog().Extract(line)
	if !ok {
		t.Fatalf("Extract() no match")
	}
	if got := rec.Get(UserAgent).Text; got != ua {
		t.Fatalf("useragent = %q, want %q", got, ua)
	}
}

func TestExtractDashSentinels(t *testing.T) {
	t.Parallel()

	line := strings.Replace(sampleLine, sampleReferrer, "-", 1)
	line = strings.Replace(line, " 200 ", " - ", 1)
	rec, ok := S3AccessLog().Extract(line)
	if !ok {
		t.Fatalf("Extract() no match")
	}
	if !rec.IsDash(Referrer) || !rec.IsDash(HTTP) {
		t.Fatalf("referrer/http should hold the dash sentinel")
	}
}

func TestExtractDeterministic(t *testing.T) {
	t.Parallel()

	g := S3AccessLog()
	a, _ := g.Extract(sampleLine)
	b, _ := g.Extract(sampleLine)
	if !reflect.DeepEqual(a.values, b.values) {
		t.Fatalf("repeated extraction differs")
	}
}

func TestFlattenKeepsAllFields(t *testing.T) {
	t.Parallel()

	rec, _ := S3AccessLog().Extract(sampleLine)
	m := rec.Flatten()
	if m.Len() != 25 {
		t.Fatalf("Flatten().Len() = %d, want 25", m.Len())
	}
	keys := m.Keys()
	if keys[0] != "owner" || keys[24] != "tail" {
		t.Fatalf("Flatten() keys = %v", keys)
	}
	if v, ok := m.Get("tail"); !ok || v != "" {
		t.Fatalf("tail = %q,%v, want \"\",true", v, ok)
	}
	if v := m.Value("awserrorcode"); v != "-" {
		t.Fatalf("awserrorcode = %q, want -", v)
	}
}

func TestExtractAll(t *testing.T) {
	t.Parallel()

	recs, bad := S3AccessLog().ExtractAll([]string{sampleLine, "junk", sampleLine})
	if len(recs) != 2 || bad != 1 {
		t.Fatalf("ExtractAll() = %d records, %d mismatched; want 2, 1", len(recs), bad)
	}
}

func BenchmarkExtract(b *testing.B) {
	g := S3AccessLog()
	b.ReportAllocs()
	b.SetBytes(int64(len(sampleLine)))
	for i := 0; i < b.N; i++ {
		if _, ok := g.Extract(sampleLine); !ok {
			b.Fatal("no match")
		}
	}
}
