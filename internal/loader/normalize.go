package loader

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dataq/dataq/internal/table"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeColumnName trims, lowercases and joins whitespace runs with "_".
func NormalizeColumnName(name string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
}

// Normalize returns a copy of t with normalized column names and string
// values. Names left empty become unnamed_<position>; repeated names get a
// numeric suffix.
func Normalize(t table.Table) table.Table {
	out := t.Clone()
	seen := make(map[string]int, len(out.Columns))
	for i := range out.Columns {
		name := NormalizeColumnName(out.Columns[i].Name)
		if name == "" {
			name = fmt.Sprintf("unnamed_%d", i)
		}
		base := name
		for {
			count := seen[base]
			seen[base] = count + 1
			if count == 0 {
				break
			}
			name = fmt.Sprintf("%s_%d", base, count)
			if _, taken := seen[name]; !taken {
				seen[name] = 1
				break
			}
		}
		out.Columns[i].Name = name
	}
	for _, row := range out.Rows {
		for i, value := range row {
			if s, ok := value.(string); ok {
				row[i] = strings.ToLower(strings.TrimSpace(s))
			}
		}
	}
	return out
}
