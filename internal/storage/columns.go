package storage

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeColumn turns a record key into a portable SQL identifier:
// lower-case ASCII letters, digits and single underscores. Accents are
// stripped; any other rune is dropped. A name that does not start with a
// letter is prefixed with "c_", and an empty result becomes "col".
func NormalizeColumn(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	ascii, _, err := transform.String(t, s)
	if err != nil {
		ascii = s
	}

	var b strings.Builder
	prevUnderscore := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || r == ' ' || r == '-' || r == '.':
			if !prevUnderscore {
				b.WriteRune('_')
				prevUnderscore = true
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return "col"
	}
	if name[0] < 'a' || name[0] > 'z' {
		name = "c_" + name
	}
	return name
}

// Columns normalizes header into unique column names, in order. Collisions
// get a numeric suffix: "op", "op_2", "op_3".
func Columns(header []string) []string {
	out := make([]string, len(header))
	used := make(map[string]struct{}, len(header))
	for i, h := range header {
		base := NormalizeColumn(h)
		name := base
		for n := 2; ; n++ {
			if _, taken := used[name]; !taken {
				break
			}
			name = base + "_" + strconv.Itoa(n)
		}
		used[name] = struct{}{}
		out[i] = name
	}
	return out
}
