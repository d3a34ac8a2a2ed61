package core

import "sort"

// TopN caps the rankings in GlobalStats.
const TopN = 10

// AggregateStats folds the per-batch stats of every summary into a
// GlobalStats. Rankings are sorted by count descending, ties by name.
func AggregateStats(batches []BatchSummary) GlobalStats {
	operators := make(map[string]int)
	countries := make(map[string]int)

	out := GlobalStats{TotalBatches: len(batches)}
	for _, b := range batches {
		out.TotalICCIDs += b.TotalCount
		for name, n := range b.Stats.Operators {
			operators[name] += n
		}
		for name, n := range b.Stats.Countries {
			countries[name] += n
		}
	}

	out.TopOperators = topN(operators, TopN)
	out.TopCountries = topN(countries, TopN)
	return out
}

func topN(counts map[string]int, n int) []NamedCount {
	ranked := make([]NamedCount, 0, len(counts))
	for name, c := range counts {
		ranked = append(ranked, NamedCount{Name: name, Count: c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Name < ranked[j].Name
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
