package probe

import (
	"sort"

	"github.com/khanhnv2901/webrecon/internal/domain/scan"
)

// Aggregate concatenates engine and legacy findings, orders them from most
// to least severe (stable within a severity) and keeps the first finding of
// each exact title. Distinct findings that share a title are collapsed.
func Aggregate(engine, legacy []scan.Finding) []scan.Finding {
	all := make([]scan.Finding, 0, len(engine)+len(legacy))
	all = append(all, engine...)
	all = append(all, legacy...)

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Severity.Rank() > all[j].Severity.Rank()
	})

	seen := make(map[string]struct{}, len(all))
	out := all[:0]
	for _, f := range all {
		if _, dup := seen[f.Title]; dup {
			continue
		}
		seen[f.Title] = struct{}{}
		out = append(out, f)
	}
	return out
}
