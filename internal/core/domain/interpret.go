package domain

// InterpretOptions tunes Interpret. The zero value is usable.
type InterpretOptions struct {
	TopN         int
	DisplayNames DisplayNames
}

// Report is everything the rendering layer needs for one result set.
type Report struct {
	RowCount       int                      `json:"rowCount"`
	AliasMethod    AliasMethod              `json:"aliasMethod"`
	AliasMap       AliasMap                 `json:"aliasMap"`
	Summaries      map[string]ColumnSummary `json:"summaries"`
	Decisions      []ColumnDecision         `json:"decisions"`
	PreAggregation *ColumnPair              `json:"preAggregation"`
	ChartSpec      *ChartSpec               `json:"chartSpec"`
	TopN           *TopN                    `json:"topN,omitempty"`
	Labels         map[string]string        `json:"labels"`
}

// Hidden returns the number of columns kept out of the summaries.
func (r *Report) Hidden() int {
	n := 0
	for _, d := range r.Decisions {
		if !d.Surfaced {
			n++
		}
	}
	return n
}

// Interpret runs the default engine.
func Interpret(rs *ResultSet, sql string, opts InterpretOptions) *Report {
	return defaultEngine.Interpret(rs, sql, opts)
}

// Interpret resolves aliases from sql, classifies the columns, detects a
// pre-aggregation, selects the Top-N chart pairing and splits it.
func (e *Engine) Interpret(rs *ResultSet, sql string, opts InterpretOptions) *Report {
	aliases, method := ResolveAliases(sql)
	analysis := e.Analyze(rs, aliases)

	r := &Report{
		RowCount:    rs.Len(),
		AliasMethod: method,
		AliasMap:    aliases,
		Summaries:   analysis.Summaries,
		Decisions:   analysis.Decisions,
	}

	r.PreAggregation = e.DetectPreAggregated(rs, aliases)
	r.ChartSpec = e.TopChartSpec(rs, aliases, r.PreAggregation)
	if r.ChartSpec != nil {
		r.TopN = AggregateTopN(rs, r.ChartSpec.ColumnPair, opts.TopN)
	}

	keys := make([]string, 0, len(r.Summaries)+2)
	for _, d := range r.Decisions {
		if d.Surfaced {
			keys = append(keys, d.Column)
		}
	}
	if r.ChartSpec != nil {
		keys = append(keys, r.ChartSpec.LabelKey, r.ChartSpec.CountKey)
	}
	r.Labels = opts.DisplayNames.Labels(keys)
	return r
}
