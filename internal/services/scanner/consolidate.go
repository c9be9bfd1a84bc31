package scanner

import "ghostleaks/internal/domain"

type findingKey struct{ name, source string }

// Consolidate drops repeated (name, source) findings, keeping the first
// occurrence and the original order. The same name from two sources stays as
// two findings.
func Consolidate(findings []domain.Finding) []domain.Finding {
	seen := make(map[findingKey]struct{}, len(findings))
	out := make([]domain.Finding, 0, len(findings))
	for _, f := range findings {
		k := findingKey{f.Name, f.Source}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, f)
	}
	return out
}
