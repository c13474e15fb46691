package summary

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dataq/dataq/internal/table"
)

const (
	topCategories = 5
	previewRows   = 5
)

// Digest renders the deterministic context handed to the model: shape,
// column types, descriptive statistics, top categories, correlations and a
// preview of the leading rows.
func Digest(t table.Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The table has %d rows and %d columns.\n", t.NumRows(), t.NumCols())

	b.WriteString("Column Types:\n")
	writeAligned(&b, nil, columnTypeRows(t))

	numeric := numericColumns(t)
	if len(numeric) == 0 {
		b.WriteString("No numeric columns to describe.\n")
	} else {
		b.WriteString("Descriptive Stats (numeric columns):\n")
		writeDescribe(&b, t, numeric)
	}

	for i, column := range t.Columns {
		if column.Type != table.TypeString {
			continue
		}
		fmt.Fprintf(&b, "Top categories for '%s':\n", column.Name)
		writeAligned(&b, nil, valueCounts(t.ColumnValues(i), topCategories))
		b.WriteString("\n")
	}

	if len(numeric) >= 2 {
		b.WriteString("Correlation Matrix:\n")
		writeCorrelation(&b, t, numeric)
	} else {
		b.WriteString("Not enough numeric columns to compute correlation.\n")
	}

	fmt.Fprintf(&b, "Table Head (first %d rows):\n", previewRows)
	writePreview(&b, t.Head(previewRows))
	return b.String()
}

func columnTypeRows(t table.Table) [][]string {
	rows := make([][]string, 0, len(t.Columns))
	for _, column := range t.Columns {
		rows = append(rows, []string{column.Name, string(column.Type)})
	}
	return rows
}

func numericColumns(t table.Table) []int {
	var out []int
	for i, column := range t.Columns {
		if column.Type.Numeric() {
			out = append(out, i)
		}
	}
	return out
}

// floats returns the non-null values of a numeric column.
func floats(values []any) []float64 {
	out := make([]float64, 0, len(values))
	for _, value := range values {
		if f, ok := toFloat(value); ok {
			out = append(out, f)
		}
	}
	return out
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int64:
		return float64(v), true
	case float64:
		if math.IsNaN(v) {
			return 0, false
		}
		return v, true
	}
	return 0, false
}

// Stats are the descriptive statistics of one numeric column. Std is the
// sample standard deviation; quantiles interpolate linearly.
type Stats struct {
	Count int
	Mean  float64
	Std   float64
	Min   float64
	Q25   float64
	Q50   float64
	Q75   float64
	Max   float64
}

func Describe(values []float64) Stats {
	stats := Stats{Count: len(values)}
	if len(values) == 0 {
		nan := math.NaN()
		stats.Mean, stats.Std, stats.Min, stats.Q25, stats.Q50, stats.Q75, stats.Max = nan, nan, nan, nan, nan, nan, nan
		return stats
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	stats.Mean = sum / float64(len(sorted))
	if len(sorted) < 2 {
		stats.Std = math.NaN()
	} else {
		var squares float64
		for _, v := range sorted {
			d := v - stats.Mean
			squares += d * d
		}
		stats.Std = math.Sqrt(squares / float64(len(sorted)-1))
	}
	stats.Min = sorted[0]
	stats.Max = sorted[len(sorted)-1]
	stats.Q25 = quantile(sorted, 0.25)
	stats.Q50 = quantile(sorted, 0.50)
	stats.Q75 = quantile(sorted, 0.75)
	return stats
}

func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	return sorted[lower] + (sorted[upper]-sorted[lower])*(pos-float64(lower))
}

// Pearson correlates the rows where both values are present. Fewer than two
// pairs or a constant side yields NaN.
func Pearson(x, y []any) float64 {
	var xs, ys []float64
	for i := range x {
		if i >= len(y) {
			break
		}
		xv, okX := toFloat(x[i])
		yv, okY := toFloat(y[i])
		if okX && okY {
			xs = append(xs, xv)
			ys = append(ys, yv)
		}
	}
	if len(xs) < 2 {
		return math.NaN()
	}
	var meanX, meanY float64
	for i := range xs {
		meanX += xs[i]
		meanY += ys[i]
	}
	meanX /= float64(len(xs))
	meanY /= float64(len(ys))
	var cov, varX, varY float64
	for i := range xs {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return math.NaN()
	}
	return cov / math.Sqrt(varX*varY)
}

func writeDescribe(b *strings.Builder, t table.Table, numeric []int) {
	header := []string{""}
	stats := make([]Stats, 0, len(numeric))
	for _, i := range numeric {
		header = append(header, t.Columns[i].Name)
		stats = append(stats, Describe(floats(t.ColumnValues(i))))
	}
	labels := []string{"count", "mean", "std", "min", "25%", "50%", "75%", "max"}
	rows := make([][]string, 0, len(labels))
	for _, label := range labels {
		row := []string{label}
		for _, s := range stats {
			row = append(row, formatStat(label, s))
		}
		rows = append(rows, row)
	}
	writeAligned(b, header, rows)
}

func formatStat(label string, s Stats) string {
	switch label {
	case "count":
		return fmt.Sprintf("%d", s.Count)
	case "mean":
		return formatFloat(s.Mean)
	case "std":
		return formatFloat(s.Std)
	case "min":
		return formatFloat(s.Min)
	case "25%":
		return formatFloat(s.Q25)
	case "50%":
		return formatFloat(s.Q50)
	case "75%":
		return formatFloat(s.Q75)
	}
	return formatFloat(s.Max)
}

func writeCorrelation(b *strings.Builder, t table.Table, numeric []int) {
	header := []string{""}
	for _, i := range numeric {
		header = append(header, t.Columns[i].Name)
	}
	rows := make([][]string, 0, len(numeric))
	for _, i := range numeric {
		row := []string{t.Columns[i].Name}
		for _, j := range numeric {
			row = append(row, formatFloat(Pearson(t.ColumnValues(i), t.ColumnValues(j))))
		}
		rows = append(rows, row)
	}
	writeAligned(b, header, rows)
}

type valueCount struct {
	value string
	count int
}

// valueCounts ranks non-null values by frequency, ties by first appearance.
func valueCounts(values []any, limit int) [][]string {
	index := make(map[string]int)
	var counts []valueCount
	for _, value := range values {
		s, ok := value.(string)
		if !ok {
			continue
		}
		if i, seen := index[s]; seen {
			counts[i].count++
			continue
		}
		index[s] = len(counts)
		counts = append(counts, valueCount{value: s, count: 1})
	}
	sort.SliceStable(counts, func(i, j int) bool { return counts[i].count > counts[j].count })
	if len(counts) > limit {
		counts = counts[:limit]
	}
	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, []string{c.value, fmt.Sprintf("%d", c.count)})
	}
	return rows
}

func writePreview(b *strings.Builder, t table.Table) {
	rows := make([][]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		cells := make([]string, 0, len(row))
		for _, value := range row {
			if value == nil {
				cells = append(cells, "NULL")
				continue
			}
			cells = append(cells, table.FormatValue(value))
		}
		rows = append(rows, cells)
	}
	writeAligned(b, t.ColumnNames(), rows)
}

func writeAligned(b *strings.Builder, header []string, rows [][]string) {
	w := tabwriter.NewWriter(b, 0, 0, 2, ' ', 0)
	if header != nil {
		fmt.Fprintln(w, strings.Join(header, "\t"))
	}
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return fmt.Sprintf("%.6g", v)
}
