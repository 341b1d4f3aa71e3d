package domain

import "sort"

// TopNEntry is one bar: a label and its summed count.
type TopNEntry struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// TopN is the chart-ready split of a (label, count) pairing.
type TopN struct {
	LabelKey  string      `json:"labelKey"`
	CountKey  string      `json:"countKey"`
	N         int         `json:"n"`
	Top       []TopNEntry `json:"top"`
	Others    []TopNEntry `json:"others"`
	TopSum    float64     `json:"topSum"`
	OthersSum float64     `json:"othersSum"`
	Total     float64     `json:"total"`
	// Coverage is the share of Total held by Top, in percent.
	Coverage float64 `json:"coverage"`
}

// AggregateTopN sums count values per identical label, sorts descending
// (ties by label) and splits the first n entries from the rest. Rows whose
// count is not numeric are skipped. n <= 0 selects DefaultTopN.
func AggregateTopN(rs *ResultSet, pair ColumnPair, n int) *TopN {
	if n <= 0 {
		n = DefaultTopN
	}
	out := &TopN{LabelKey: pair.LabelKey, CountKey: pair.CountKey, N: n}
	if rs.Empty() {
		return out
	}

	sums := make(map[string]float64)
	for _, row := range rs.Rows {
		v, ok := ToNumber(row[pair.CountKey])
		if !ok {
			continue
		}
		sums[Stringify(row[pair.LabelKey])] += v
	}

	entries := make([]TopNEntry, 0, len(sums))
	for label, v := range sums {
		entries = append(entries, TopNEntry{Label: label, Value: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Value != entries[j].Value {
			return entries[i].Value > entries[j].Value
		}
		return entries[i].Label < entries[j].Label
	})

	cut := min(n, len(entries))
	out.Top = entries[:cut]
	out.Others = entries[cut:]
	for _, e := range out.Top {
		out.TopSum += e.Value
	}
	for _, e := range out.Others {
		out.OthersSum += e.Value
	}
	out.Total = out.TopSum + out.OthersSum
	if out.Total != 0 {
		out.Coverage = out.TopSum / out.Total * 100
	}
	return out
}
