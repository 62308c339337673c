package accesslog

// Extract matches line against the grammar. The boolean is false when the
// line does not satisfy the grammar; no partial record is ever returned.
func (g *Grammar) Extract(line string) (Record, bool) {
	loc := g.re.FindStringSubmatchIndex(line)
	if loc == nil {
		return Record{}, false
	}
	values := make([]Value, len(g.fields))
	for i, grp := range g.groups {
		start, end := loc[2*grp], loc[2*grp+1]
		if start < 0 {
			continue
		}
		values[i] = Value{Text: line[start:end], Present: true}
	}
	return Record{g: g, values: values}, true
}

// Match reports whether line satisfies the grammar without building a record.
func (g *Grammar) Match(line string) bool {
	return g.re.MatchString(line)
}

// ExtractAll extracts every line and returns the matched records in order
// along with the number of lines that did not match.
func (g *Grammar) ExtractAll(lines []string) (records []Record, mismatched int) {
	records = make([]Record, 0, len(lines))
	for _, l := range lines {
		rec, ok := g.Extract(l)
		if !ok {
			mismatched++
			continue
		}
		records = append(records, rec)
	}
	return records, mismatched
}
