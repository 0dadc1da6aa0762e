package weather

import (
	"slices"
)

// Clean deduplicates, sorts, and forward-fills a raw series.
//
// The first observation seen for a timestamp wins. After sorting ascending,
// each missing metric value takes the most recent earlier value of that
// metric; values with nothing before them stay missing.
func Clean(raw Series) Series {
	seen := make(map[int64]struct{}, len(raw.Observations))
	out := make([]Observation, 0, len(raw.Observations))
	for _, o := range raw.Observations {
		key := o.Time.UnixNano()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, o)
	}

	slices.SortStableFunc(out, func(a, b Observation) int {
		return a.Time.Compare(b.Time)
	})

	last := make(map[Metric]*float64, len(AllMetrics))
	for i := range out {
		for _, m := range AllMetrics {
			if v := out[i].field(m); v != nil {
				last[m] = v
				continue
			}
			if prev := last[m]; prev != nil {
				out[i] = out[i].with(m, Float(*prev))
			}
		}
	}

	return raw.derive(out)
}
