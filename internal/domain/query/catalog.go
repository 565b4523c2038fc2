package query

import (
	"fmt"
	"strings"
)

// Rule is one entry in the pattern catalog. A rule matches a question when
// every AllOf substring is present and, if AnyOf is non-empty, at least one
// AnyOf substring is present. Matching is case-insensitive on the question;
// the keyword lists are stored lowercase.
type Rule struct {
	Name        string
	AnyOf       []string
	AllOf       []string
	SQL         string
	Explanation string
}

// matches reports whether the lowercased question satisfies this rule.
func (r Rule) matches(q string) bool {
	for _, kw := range r.AllOf {
		if !strings.Contains(q, kw) {
			return false
		}
	}
	if len(r.AnyOf) == 0 {
		return true
	}
	for _, kw := range r.AnyOf {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// Catalog is an ordered list of rules. Order is significant: Match returns
// the first rule that fires, so broader rules must come after narrower ones
// exactly as listed here.
type Catalog struct {
	rules []Rule
}

// NewCatalog builds the curated catalog against the given warehouse schema.
// Output aliases are quoted uppercase so result columns keep the warehouse
// naming convention regardless of the server's case folding.
func NewCatalog(schema string) *Catalog {
	t := func(table string) string { return fmt.Sprintf("%s.%s", schema, table) }

	return &Catalog{rules: []Rule{
		{
			Name:  "project_listing",
			AnyOf: []string{"list", "name", "what are", "show me", "give me"},
			AllOf: []string{"project"},
			SQL: `SELECT project_name AS "PROJECT_NAME", project_type AS "PROJECT_TYPE",
       city AS "CITY", state AS "STATE",
       ROUND((original_budget / 1000000)::numeric, 1)::float8 AS "BUDGET_M",
       ROUND(cpi::numeric, 3)::float8 AS "CPI", ROUND(spi::numeric, 3)::float8 AS "SPI",
       status AS "STATUS"
FROM ` + t("project") + `
ORDER BY project_name`,
			Explanation: "Listing all projects with key metrics",
		},
		{
			Name:        "project_count",
			AllOf:       []string{"how many", "project"},
			SQL:         `SELECT COUNT(*) AS "PROJECT_COUNT" FROM ` + t("project"),
			Explanation: "Counting total projects",
		},
		{
			Name:  "portfolio_summary",
			AnyOf: []string{"summary", "overview", "portfolio", "total budget"},
			SQL: `SELECT COUNT(*) AS "TOTAL_PROJECTS",
       ROUND((SUM(original_budget) / 1000000000)::numeric, 2)::float8 AS "TOTAL_BUDGET_B",
       ROUND(AVG(cpi)::numeric, 3)::float8 AS "AVG_CPI",
       ROUND(AVG(spi)::numeric, 3)::float8 AS "AVG_SPI",
       SUM(CASE WHEN cpi < 0.95 THEN 1 ELSE 0 END) AS "OVER_BUDGET_COUNT",
       SUM(CASE WHEN spi < 0.95 THEN 1 ELSE 0 END) AS "BEHIND_SCHEDULE_COUNT"
FROM ` + t("project"),
			Explanation: "Portfolio summary with key metrics",
		},
		{
			Name:  "projects_over_budget",
			AllOf: []string{"over budget"},
			SQL: `SELECT project_name AS "PROJECT_NAME",
       ROUND(cpi::numeric, 3)::float8 AS "CPI", ROUND(spi::numeric, 3)::float8 AS "SPI",
       ROUND((original_budget / 1000000)::numeric, 1)::float8 AS "BUDGET_M"
FROM ` + t("project") + `
WHERE cpi < 0.95
ORDER BY cpi ASC`,
			Explanation: "Projects with CPI below 0.95 (over budget)",
		},
		{
			Name:  "projects_low_cpi",
			AnyOf: []string{"below", "under", "low", "less"},
			AllOf: []string{"cpi"},
			SQL: `SELECT project_name AS "PROJECT_NAME",
       ROUND(cpi::numeric, 3)::float8 AS "CPI", ROUND(spi::numeric, 3)::float8 AS "SPI",
       ROUND((original_budget / 1000000)::numeric, 1)::float8 AS "BUDGET_M"
FROM ` + t("project") + `
WHERE cpi < 0.95
ORDER BY cpi ASC`,
			Explanation: "Projects with CPI below 0.95 (over budget)",
		},
		{
			Name:  "projects_behind_schedule",
			AllOf: []string{"behind schedule"},
			SQL: `SELECT project_name AS "PROJECT_NAME",
       ROUND(spi::numeric, 3)::float8 AS "SPI", ROUND(cpi::numeric, 3)::float8 AS "CPI",
       ROUND((original_budget / 1000000)::numeric, 1)::float8 AS "BUDGET_M"
FROM ` + t("project") + `
WHERE spi < 0.95
ORDER BY spi ASC`,
			Explanation: "Projects with SPI below 0.95 (behind schedule)",
		},
		{
			Name:  "projects_low_spi",
			AnyOf: []string{"below", "under", "low", "less"},
			AllOf: []string{"spi"},
			SQL: `SELECT project_name AS "PROJECT_NAME",
       ROUND(spi::numeric, 3)::float8 AS "SPI", ROUND(cpi::numeric, 3)::float8 AS "CPI",
       ROUND((original_budget / 1000000)::numeric, 1)::float8 AS "BUDGET_M"
FROM ` + t("project") + `
WHERE spi < 0.95
ORDER BY spi ASC`,
			Explanation: "Projects with SPI below 0.95 (behind schedule)",
		},
		{
			Name:  "vendor_listing",
			AnyOf: []string{"list", "show", "what are"},
			AllOf: []string{"vendor"},
			SQL: `SELECT vendor_name AS "VENDOR_NAME", trade_category AS "TRADE_CATEGORY",
       risk_score AS "RISK_SCORE",
       ROUND((ontime_delivery_rate * 100)::numeric, 1)::float8 AS "ONTIME_PCT",
       ROUND(quality_score::numeric, 1)::float8 AS "QUALITY"
FROM ` + t("vendor") + `
WHERE active_flag = TRUE
ORDER BY risk_score DESC`,
			Explanation: "Listing all active vendors with risk scores",
		},
		{
			Name:  "vendor_change_orders",
			AnyOf: []string{"most", "change order"},
			AllOf: []string{"vendor"},
			SQL: `SELECT v.vendor_name AS "VENDOR_NAME", v.trade_category AS "TRADE_CATEGORY",
       COUNT(co.co_id) AS "CO_COUNT",
       ROUND((SUM(co.approved_amount) / 1000)::numeric, 1)::float8 AS "TOTAL_K"
FROM ` + t("vendor") + ` v
LEFT JOIN ` + t("change_order") + ` co ON v.vendor_id = co.vendor_id
WHERE v.active_flag = TRUE
GROUP BY v.vendor_id, v.vendor_name, v.trade_category
ORDER BY "CO_COUNT" DESC
LIMIT 10`,
			Explanation: "Vendors ranked by number of change orders",
		},
		{
			Name:        "change_order_count",
			AllOf:       []string{"how many", "change order"},
			SQL:         `SELECT COUNT(*) AS "CO_COUNT" FROM ` + t("change_order"),
			Explanation: "Total change order count",
		},
		{
			Name:  "budget_by_project",
			AnyOf: []string{"spend", "budget"},
			AllOf: []string{"project"},
			SQL: `SELECT project_name AS "PROJECT_NAME",
       ROUND((original_budget / 1000000)::numeric, 1)::float8 AS "ORIGINAL_BUDGET_M",
       ROUND((current_budget / 1000000)::numeric, 1)::float8 AS "CURRENT_BUDGET_M",
       ROUND(((current_budget - original_budget) / 1000000)::numeric, 2)::float8 AS "VARIANCE_M"
FROM ` + t("project") + `
ORDER BY original_budget DESC`,
			Explanation: "Budget breakdown by project",
		},
		{
			Name:  "change_orders_by_category",
			AnyOf: []string{"category", "type", "breakdown"},
			AllOf: []string{"change order"},
			SQL: `SELECT ml_category AS "ML_CATEGORY", COUNT(*) AS "CO_COUNT",
       ROUND((SUM(approved_amount) / 1000)::numeric, 1)::float8 AS "TOTAL_K",
       ROUND(AVG(ml_confidence)::numeric, 2)::float8 AS "AVG_CONFIDENCE"
FROM ` + t("change_order") + `
WHERE ml_category IS NOT NULL
GROUP BY ml_category
ORDER BY "CO_COUNT" DESC`,
			Explanation: "Change orders grouped by ML classification",
		},
	}}
}

// Match returns the first rule matching the question, or false when no rule
// fires. The question is lowercased; rules are tried in declaration order.
func (c *Catalog) Match(question string) (Rule, bool) {
	q := strings.ToLower(question)
	for _, r := range c.rules {
		if r.matches(q) {
			return r, true
		}
	}
	return Rule{}, false
}

// Rules exposes the catalog entries, primarily for diagnostics.
func (c *Catalog) Rules() []Rule {
	return c.rules
}
