// Package query defines warehouse query results, the pattern-matched SQL
// catalog, and result rendering for chat responses.
package query

// Tier identifies which resolution path produced a result.
type Tier string

const (
	// TierPattern means the SQL came from the curated catalog.
	TierPattern Tier = "pattern"

	// TierLLM means the SQL was generated by the language model.
	TierLLM Tier = "llm"

	// TierNone means no SQL was executed; the answer is a static fallback.
	TierNone Tier = "none"
)

// Rowset is the result of one SQL execution. Columns preserves the order the
// warehouse returned them in; map iteration order must never be used for
// rendering.
type Rowset struct {
	Columns []string
	Rows    []map[string]any
}

// RowCount returns the number of rows.
func (rs *Rowset) RowCount() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rows)
}

// Result is a fully resolved query: the SQL that ran, its rows, a short
// explanation for the user, and the tier that produced it. Source is always
// set, including TierNone for the suggestion fallback.
type Result struct {
	SQL         string
	Rowset      Rowset
	Explanation string
	Source      Tier
}
