package transformer

import (
	"auditlog/internal/querystring"
	"auditlog/internal/record"

	"github.com/mileusna/useragent"
)

// DefaultUAPrefix prefixes the keys added by UserAgent.
const DefaultUAPrefix = "ua_"

// UserAgent decomposes the quoted useragent field into name, version, os
// and device keys appended to each record. A "-" or missing user agent yields
// empty values so the key set stays uniform across rows.
type UserAgent struct {
	Prefix string
}

// Apply implements Transformer.
func (u UserAgent) Apply(in record.Dataset) record.Dataset {
	p := u.Prefix
	if p == "" {
		p = DefaultUAPrefix
	}
	for _, r := range in {
		raw := querystring.Unquote(r.Value("useragent"))
		var name, version, os, device string
		if raw != "" && raw != "-" {
			ua := useragent.Parse(raw)
			name, version, os, device = ua.Name, ua.Version, ua.OS, deviceOf(ua)
		}
		r.Set(p+"name", name)
		r.Set(p+"version", version)
		r.Set(p+"os", os)
		r.Set(p+"device", device)
	}
	return in
}

func deviceOf(ua useragent.UserAgent) string {
	switch {
	case ua.Bot:
		return "bot"
	case ua.Tablet:
		return "tablet"
	case ua.Mobile:
		return "mobile"
	case ua.Desktop:
		return "desktop"
	default:
		return ""
	}
}
