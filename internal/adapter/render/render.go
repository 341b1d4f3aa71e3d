// Package render draws interpretation reports as terminal tables.
package render

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/choibumgyu/HYU-CDW/internal/core/domain"
)

// maxCategories bounds the rows printed per categorical summary.
const maxCategories = 10

// Report writes the column decisions, summaries and the Top-N split.
func Report(w io.Writer, rep *domain.Report) error {
	if rep == nil {
		_, err := fmt.Fprintln(w, "no result")
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "rows: %d  aliases: %s  hidden columns: %d\n", rep.RowCount, rep.AliasMethod, rep.Hidden())
	if rep.ChartSpec != nil {
		fmt.Fprintf(&b, "chart: %s by %s (%s)\n",
			label(rep, rep.ChartSpec.CountKey), label(rep, rep.ChartSpec.LabelKey), rep.ChartSpec.Origin)
	} else {
		b.WriteString("chart: none\n")
	}
	b.WriteString("\n")

	b.WriteString(Decisions(rep))
	b.WriteString("\n")

	for _, d := range rep.Decisions {
		s, ok := rep.Summaries[d.Column]
		if !ok {
			continue
		}
		b.WriteString("\n")
		b.WriteString(Summary(label(rep, d.Column), s))
		b.WriteString("\n")
	}

	if rep.TopN != nil && len(rep.TopN.Top) > 0 {
		b.WriteString("\n")
		b.WriteString(TopN(rep.TopN, label(rep, rep.TopN.LabelKey), label(rep, rep.TopN.CountKey)))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Decisions lists every column with the reason it was surfaced or hidden.
func Decisions(rep *domain.Report) string {
	t := newTable()
	t.AppendHeader(table.Row{"Column", "Label", "Source", "Status", "Kind", "Reason"})
	for _, d := range rep.Decisions {
		status := "shown"
		if !d.Surfaced {
			status = "hidden"
		}
		t.AppendRow(table.Row{d.Column, label(rep, d.Column), d.Source, status, d.Kind, d.Reason})
	}
	return t.Render()
}

// Summary renders the value counts of a categorical column or the bins of
// a continuous one.
func Summary(title string, s domain.ColumnSummary) string {
	t := newTable()
	t.SetTitle(title)
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})

	if s.Kind == domain.KindCategorical {
		t.AppendHeader(table.Row{"Value", "Count"})
		entries := sortedCounts(s.Counts)
		for i, e := range entries {
			if i == maxCategories {
				rest := 0
				for _, r := range entries[i:] {
					rest += r.count
				}
				t.AppendFooter(table.Row{fmt.Sprintf("%d more", len(entries)-i), rest})
				break
			}
			t.AppendRow(table.Row{e.value, e.count})
		}
		return t.Render()
	}

	t.AppendHeader(table.Row{"Range", "Count"})
	if s.Histogram != nil {
		for i, n := range s.Distribution {
			bin := ""
			if i < len(s.BinLabels) {
				bin = s.BinLabels[i]
			}
			t.AppendRow(table.Row{bin, n})
		}
		t.AppendFooter(table.Row{
			fmt.Sprintf("mean %s  min %s  max %s", num(s.Mean), num(s.Min), num(s.Max)), "",
		})
	}
	return t.Render()
}

// TopN renders the ranked labels and the remainder bucket.
func TopN(top *domain.TopN, labelTitle, countTitle string) string {
	t := newTable()
	t.SetTitle(fmt.Sprintf("Top %d", top.N))
	t.AppendHeader(table.Row{"#", labelTitle, countTitle, "Share"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	for i, e := range top.Top {
		t.AppendRow(table.Row{i + 1, e.Label, num(e.Value), share(e.Value, top.Total)})
	}
	if len(top.Others) > 0 {
		t.AppendRow(table.Row{"", fmt.Sprintf("others (%d)", len(top.Others)), num(top.OthersSum), share(top.OthersSum, top.Total)})
	}
	t.AppendFooter(table.Row{"", "total", num(top.Total), fmt.Sprintf("top %.1f%%", top.Coverage)})
	return t.Render()
}

// Rows renders up to limit rows of rs with display labels as headers.
// limit <= 0 renders every row.
func Rows(rs *domain.ResultSet, names domain.DisplayNames, limit int) string {
	t := newTable()
	if rs.Empty() {
		t.AppendHeader(table.Row{"(no rows)"})
		return t.Render()
	}

	header := make(table.Row, len(rs.Columns))
	for i, c := range rs.Columns {
		header[i] = names.Label(c)
	}
	t.AppendHeader(header)

	for i, row := range rs.Rows {
		if limit > 0 && i == limit {
			t.AppendFooter(table.Row{fmt.Sprintf("%d of %d rows", limit, rs.Len())})
			break
		}
		r := make(table.Row, len(rs.Columns))
		for j, c := range rs.Columns {
			r[j] = cell(row[c])
		}
		t.AppendRow(r)
	}
	return t.Render()
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	return t
}

func label(rep *domain.Report, key string) string {
	if l, ok := rep.Labels[key]; ok && l != "" {
		return l
	}
	return domain.DisplayNames(nil).Label(key)
}

type countEntry struct {
	value string
	count int
}

func sortedCounts(counts map[string]int) []countEntry {
	out := make([]countEntry, 0, len(counts))
	for v, n := range counts {
		out = append(out, countEntry{v, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].value < out[j].value
	})
	return out
}

func cell(v any) string {
	if v == nil {
		return "NULL"
	}
	if f, ok := v.(float64); ok {
		return num(f)
	}
	return fmt.Sprint(v)
}

func num(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%.2f", f)
}

func share(v, total float64) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", v/total*100)
}
