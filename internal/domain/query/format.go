package query

import (
	"fmt"
	"math"
	"strings"
)

// RenderOptions controls table and SQL truncation when rendering results.
type RenderOptions struct {
	MaxTableRows  int // full table up to this many rows
	CellWidth     int // max characters per non-numeric cell
	SQLPreviewLen int // max characters of the SQL echo
}

// DefaultRenderOptions mirrors the limits users see in the chat client.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		MaxTableRows:  20,
		CellWidth:     35,
		SQLPreviewLen: 100,
	}
}

// FormatValue renders a single cell. Floats get the money-style policy:
// millions as $X.XM (rounded half away from zero), thousands as $XK, small
// ratios with three decimals, everything else rounded to an integer. Integers
// and strings pass through, truncated to the cell width. Nil renders as "-".
func FormatValue(v any, opts RenderOptions) string {
	if v == nil {
		return "-"
	}
	if f, ok := asFloat(v); ok {
		return formatFloat(f)
	}
	s := fmt.Sprint(v)
	if opts.CellWidth > 0 && len(s) > opts.CellWidth {
		s = s[:opts.CellWidth]
	}
	return s
}

func formatFloat(f float64) string {
	abs := math.Abs(f)
	switch {
	case abs >= 1e6:
		return fmt.Sprintf("$%.1fM", math.Round(f/1e6*10)/10)
	case abs >= 1e3:
		return fmt.Sprintf("$%.0fK", f/1e3)
	case abs < 2:
		return fmt.Sprintf("%.3f", f)
	default:
		return fmt.Sprintf("%.0f", f)
	}
}

// asFloat reports whether v carries a floating-point value. Integer types are
// deliberately excluded so counts render verbatim.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

// TitleHeader converts a warehouse column name to a display header:
// underscores become spaces and each word is title-cased, so "CO_COUNT"
// renders as "Co Count".
func TitleHeader(col string) string {
	words := strings.Fields(strings.ToLower(strings.ReplaceAll(col, "_", " ")))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Render produces the user-facing markdown for a resolved query: a header,
// the explanation, the result body, and a footer echoing row count and a
// truncated SQL preview.
func Render(res *Result, opts RenderOptions) string {
	var b strings.Builder
	b.WriteString("📊 **Query Results**\n\n")

	if res.Explanation != "" {
		fmt.Fprintf(&b, "_%s_\n\n", strings.TrimSpace(res.Explanation))
	}

	b.WriteString(renderBody(&res.Rowset, opts))

	fmt.Fprintf(&b, "\n\n✅ **Query Executed** | %d rows", res.Rowset.RowCount())
	if res.SQL != "" {
		preview := strings.Join(strings.Fields(res.SQL), " ")
		if opts.SQLPreviewLen > 0 && len(preview) > opts.SQLPreviewLen {
			preview = preview[:opts.SQLPreviewLen]
		}
		fmt.Fprintf(&b, "\n`%s...`", preview)
	}
	return b.String()
}

func renderBody(rs *Rowset, opts RenderOptions) string {
	rows := rs.Rows
	cols := rs.Columns

	switch {
	case len(rows) == 1 && len(cols) == 1:
		return fmt.Sprintf("**%s**: %s", TitleHeader(cols[0]), FormatValue(rows[0][cols[0]], opts))

	case len(rows) <= opts.MaxTableRows:
		return renderTable(cols, rows, opts)

	default:
		var b strings.Builder
		fmt.Fprintf(&b, "Found %d results. Showing first %d:\n", len(rows), opts.MaxTableRows)
		for _, row := range rows[:opts.MaxTableRows] {
			parts := make([]string, 0, len(cols))
			for _, col := range cols {
				parts = append(parts, fmt.Sprintf("%s: %s", TitleHeader(col), FormatValue(row[col], opts)))
			}
			fmt.Fprintf(&b, "• %s\n", strings.Join(parts, ", "))
		}
		return strings.TrimRight(b.String(), "\n")
	}
}

func renderTable(cols []string, rows []map[string]any, opts RenderOptions) string {
	var b strings.Builder

	headers := make([]string, len(cols))
	for i, col := range cols {
		headers[i] = TitleHeader(col)
	}
	b.WriteString("| " + strings.Join(headers, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat("---|", len(cols)) + "\n")

	for _, row := range rows {
		cells := make([]string, len(cols))
		for i, col := range cols {
			cells[i] = FormatValue(row[col], opts)
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
