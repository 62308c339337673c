// Package transformer holds dataset-level enrichment and cleanup steps that
// run after extraction, in configured order.
package transformer

import (
	"fmt"
	"strings"

	"auditlog/internal/config"
	"auditlog/internal/record"
)

// Transformer rewrites a dataset. Implementations may mutate records in place
// and may drop records, but must keep the relative order of those they keep.
type Transformer interface {
	Apply(record.Dataset) record.Dataset
}

// Chain is an ordered list of transformers.
type Chain []Transformer

// Apply runs every transformer in order.
func (c Chain) Apply(in record.Dataset) record.Dataset {
	out := in
	for _, t := range c {
		out = t.Apply(out)
	}
	return out
}

// Build constructs a chain from transform configs.
func Build(ts []config.Transform) (Chain, error) {
	chain := make(Chain, 0, len(ts))
	for i, t := range ts {
		switch strings.ToLower(strings.TrimSpace(t.Kind)) {
		case "useragent":
			chain = append(chain, UserAgent{Prefix: t.Options.String("prefix", DefaultUAPrefix)})
		case "dedup":
			keys := t.Options.StringSlice("keys")
			if len(keys) == 0 {
				keys = []string{"requestid"}
			}
			chain = append(chain, DeDup{
				Keys:         keys,
				Policy:       t.Options.String("policy", PolicyKeepFirst),
				PreferFields: t.Options.StringSlice("prefer_fields"),
			})
		default:
			return nil, fmt.Errorf("transform[%d]: unknown kind %q", i, t.Kind)
		}
	}
	return chain, nil
}
