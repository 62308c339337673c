package transformer

import (
	"testing"

	"auditlog/internal/record"

	"github.com/mileusna/useragent"
)

const chromeUA = `"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/90.0.4430.93 Safari/537.36"`

func TestUserAgentDecomposes(t *testing.T) {
	t.Parallel()

	in := record.Dataset{
		record.FromPairs("verb", "REST.GET.OBJECT", "useragent", chromeUA),
		record.FromPairs("verb", "REST.GET.OBJECT", "useragent", "-"),
		record.FromPairs("verb", "REST.GET.OBJECT"),
	}
	out := UserAgent{}.Apply(in)

	r := out[0]
	if r.Value("ua_name") != useragent.Chrome {
		t.Fatalf("ua_name = %q, want %q", r.Value("ua_name"), useragent.Chrome)
	}
	if r.Value("ua_os") != useragent.Windows {
		t.Fatalf("ua_os = %q, want %q", r.Value("ua_os"), useragent.Windows)
	}
	if r.Value("ua_version") != "90.0.4430.93" {
		t.Fatalf("ua_version = %q", r.Value("ua_version"))
	}
	if r.Value("ua_device") != "desktop" {
		t.Fatalf("ua_device = %q, want desktop", r.Value("ua_device"))
	}

	for i, r := range out[1:] {
		for _, k := range []string{"ua_name", "ua_version", "ua_os", "ua_device"} {
			v, ok := r.Get(k)
			if !ok || v != "" {
				t.Fatalf("row %d %s = %q,%v; want empty and present", i+1, k, v, ok)
			}
		}
	}
}

func TestUserAgentPrefix(t *testing.T) {
	t.Parallel()

	out := UserAgent{Prefix: "agent_"}.Apply(record.Dataset{record.FromPairs("useragent", chromeUA)})
	keys := out[0].Keys()
	if keys[len(keys)-4] != "agent_name" || keys[len(keys)-1] != "agent_device" {
		t.Fatalf("keys = %v", keys)
	}
}
