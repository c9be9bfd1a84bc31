package rescan

import "ghostleaks/internal/domain"

// DiffNew returns the findings in current whose breach name does not appear in
// previous. Names are compared without the source so a breach reported again
// by another provider does not alert twice.
func DiffNew(current, previous []domain.Finding) []domain.Finding {
	known := make(map[string]struct{}, len(previous))
	for _, f := range previous {
		known[f.Name] = struct{}{}
	}
	var out []domain.Finding
	for _, f := range current {
		if _, ok := known[f.Name]; ok {
			continue
		}
		out = append(out, f)
	}
	return out
}
