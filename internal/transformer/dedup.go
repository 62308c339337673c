package transformer

import (
	"sort"
	"strings"

	"auditlog/internal/record"
)

// Dedup winner policies.
const (
	PolicyKeepFirst    = "keep-first"
	PolicyKeepLast     = "keep-last"
	PolicyMostComplete = "most-complete"
)

// DeDup collapses records sharing the same key and picks one winner per key.
//
// S3 delivers server access logs best-effort, so the same request can appear
// in more than one log object; keying on requestid removes those repeats.
//
// Policies:
//   - "keep-first" (default): the earliest occurrence
//   - "keep-last": the latest occurrence
//   - "most-complete": the record with the most non-empty, non-dash values;
//     ties go to the later record
//
// Records missing any key field are passed through after the winners.
type DeDup struct {
	Keys         []string
	Policy       string
	PreferFields []string
}

// Apply implements Transformer.
func (d DeDup) Apply(in record.Dataset) record.Dataset {
	if len(in) == 0 || len(d.Keys) == 0 {
		return in
	}

	policy := strings.ToLower(strings.TrimSpace(d.Policy))
	if policy == "" {
		policy = PolicyKeepFirst
	}
	prefer := make(map[string]struct{}, len(d.PreferFields))
	for _, f := range d.PreferFields {
		prefer[f] = struct{}{}
	}

	type slot struct {
		index int
		score int
	}
	winners := make(map[string]slot, len(in))
	var passthrough []int

	keyOf := func(r *record.MergedRecord) (string, bool) {
		var b strings.Builder
		for i, k := range d.Keys {
			v, ok := r.Get(k)
			if !ok || v == "" || v == "-" {
				return "", false
			}
			if i > 0 {
				b.WriteByte('\x1f')
			}
			b.WriteString(v)
		}
		return b.String(), true
	}
	scoreOf := func(r *record.MergedRecord) int {
		score, bonus := 0, 0
		for _, k := range r.Keys() {
			if v := r.Value(k); v == "" || v == "-" {
				continue
			}
			score++
			if _, ok := prefer[k]; ok {
				bonus++
			}
		}
		return score*10 + bonus
	}

	for i, r := range in {
		key, ok := keyOf(r)
		if !ok {
			passthrough = append(passthrough, i)
			continue
		}
		switch policy {
		case PolicyKeepLast:
			winners[key] = slot{index: i}
		case PolicyMostComplete:
			s := slot{index: i, score: scoreOf(r)}
			if prev, exists := winners[key]; !exists || s.score >= prev.score {
				winners[key] = s
			}
		default:
			if _, exists := winners[key]; !exists {
				winners[key] = slot{index: i}
			}
		}
	}

	idx := make([]int, 0, len(winners))
	for _, s := range winners {
		idx = append(idx, s.index)
	}
	sort.Ints(idx)

	out := make(record.Dataset, 0, len(idx)+len(passthrough))
	for _, i := range idx {
		out = append(out, in[i])
	}
	for _, i := range passthrough {
		out = append(out, in[i])
	}
	return out
}
