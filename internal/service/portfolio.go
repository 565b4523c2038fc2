package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/atlas-delivery/atlas/internal/adapter/ws"
	"github.com/atlas-delivery/atlas/internal/config"
	"github.com/atlas-delivery/atlas/internal/domain"
	"github.com/atlas-delivery/atlas/internal/domain/portfolio"
	"github.com/atlas-delivery/atlas/internal/port/broadcast"
	"github.com/atlas-delivery/atlas/internal/port/messagequeue"
	"github.com/atlas-delivery/atlas/internal/port/warehouse"
)

// Portfolio serves the read side of portfolio health: KPI rollups,
// project and vendor listings, alert scans, and the morning brief.
type Portfolio struct {
	warehouse warehouse.Executor
	discovery *Discovery
	schema    string
	alerts    config.Alerts
	log       *slog.Logger

	queue       messagequeue.Queue
	broadcaster broadcast.Broadcaster
}

// NewPortfolio creates a Portfolio service over the given warehouse.
func NewPortfolio(wh warehouse.Executor, discovery *Discovery, schema string, alerts config.Alerts, log *slog.Logger) *Portfolio {
	if log == nil {
		log = slog.Default()
	}
	return &Portfolio{
		warehouse: wh,
		discovery: discovery,
		schema:    schema,
		alerts:    alerts,
		log:       log,
	}
}

// SetQueue enables alert publishing for threshold breaches.
func (p *Portfolio) SetQueue(q messagequeue.Queue) {
	p.queue = q
}

// SetBroadcaster enables live KPI fan-out to connected dashboards. Alert
// events reach dashboards through the alert relay instead.
func (p *Portfolio) SetBroadcaster(b broadcast.Broadcaster) {
	p.broadcaster = b
}

// Summary returns the portfolio-level KPI rollup and broadcasts it to
// connected dashboards.
func (p *Portfolio) Summary(ctx context.Context) (*portfolio.Summary, error) {
	sql := fmt.Sprintf(`SELECT COUNT(*) AS "TOTAL_PROJECTS", ROUND(SUM(original_budget)::numeric, 0)::float8 AS "TOTAL_BUDGET", ROUND(SUM(current_budget)::numeric, 0)::float8 AS "CURRENT_BUDGET", ROUND(SUM(contingency_budget)::numeric, 0)::float8 AS "TOTAL_CONTINGENCY", ROUND(SUM(contingency_used)::numeric, 0)::float8 AS "CONTINGENCY_USED", ROUND(AVG(cpi)::numeric, 3)::float8 AS "AVG_CPI", ROUND(AVG(spi)::numeric, 3)::float8 AS "AVG_SPI", SUM(CASE WHEN cpi < 0.95 THEN 1 ELSE 0 END) AS "PROJECTS_OVER_BUDGET", SUM(CASE WHEN spi < 0.95 THEN 1 ELSE 0 END) AS "PROJECTS_BEHIND_SCHEDULE" FROM %s.project`, p.schema)

	rs, err := p.warehouse.Execute(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("portfolio summary: %w", err)
	}
	if rs.RowCount() == 0 {
		return &portfolio.Summary{}, nil
	}

	row := rs.Rows[0]
	s := &portfolio.Summary{
		TotalProjects:          asInt(row["TOTAL_PROJECTS"]),
		TotalBudget:            asNum(row["TOTAL_BUDGET"]),
		CurrentBudget:          asNum(row["CURRENT_BUDGET"]),
		TotalContingency:       asNum(row["TOTAL_CONTINGENCY"]),
		ContingencyUsed:        asNum(row["CONTINGENCY_USED"]),
		AvgCPI:                 asNum(row["AVG_CPI"]),
		AvgSPI:                 asNum(row["AVG_SPI"]),
		ProjectsOverBudget:     asInt(row["PROJECTS_OVER_BUDGET"]),
		ProjectsBehindSchedule: asInt(row["PROJECTS_BEHIND_SCHEDULE"]),
	}

	if p.broadcaster != nil {
		p.broadcaster.BroadcastEvent(ctx, ws.EventPortfolioSummary, ws.PortfolioSummaryEvent{
			TotalProjects:       s.TotalProjects,
			TotalBudget:         s.TotalBudget,
			AvgCPI:              s.AvgCPI,
			AvgSPI:              s.AvgSPI,
			OverBudgetCount:     s.ProjectsOverBudget,
			BehindScheduleCount: s.ProjectsBehindSchedule,
		})
	}
	return s, nil
}

func (p *Portfolio) projectColumns() string {
	return `project_id AS "PROJECT_ID", project_name AS "PROJECT_NAME", project_type AS "PROJECT_TYPE", status AS "STATUS", city AS "CITY", state AS "STATE", latitude::float8 AS "LATITUDE", longitude::float8 AS "LONGITUDE", original_budget::float8 AS "ORIGINAL_BUDGET", current_budget::float8 AS "CURRENT_BUDGET", contingency_budget::float8 AS "CONTINGENCY_BUDGET", contingency_used::float8 AS "CONTINGENCY_USED", cpi::float8 AS "CPI", spi::float8 AS "SPI", prime_contractor AS "PRIME_CONTRACTOR"`
}

// Projects returns all projects with health indicators, ordered by name.
func (p *Portfolio) Projects(ctx context.Context) ([]portfolio.Project, error) {
	sql := fmt.Sprintf(`SELECT %s FROM %s.project ORDER BY project_name`, p.projectColumns(), p.schema)
	rs, err := p.warehouse.Execute(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	projects := make([]portfolio.Project, 0, rs.RowCount())
	for _, row := range rs.Rows {
		projects = append(projects, rowToProject(row))
	}
	return projects, nil
}

// Project returns one project by ID.
func (p *Portfolio) Project(ctx context.Context, id string) (*portfolio.Project, error) {
	sql := fmt.Sprintf(`SELECT %s FROM %s.project WHERE project_id = $1`, p.projectColumns(), p.schema)
	rs, err := p.warehouse.Execute(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	if rs.RowCount() == 0 {
		return nil, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
	}
	proj := rowToProject(rs.Rows[0])
	return &proj, nil
}

// Vendors returns all active vendors ordered by risk score.
func (p *Portfolio) Vendors(ctx context.Context) ([]portfolio.Vendor, error) {
	sql := fmt.Sprintf(`SELECT vendor_id AS "VENDOR_ID", vendor_name AS "VENDOR_NAME", trade_category AS "TRADE_CATEGORY", vendor_type AS "VENDOR_TYPE", avg_co_rate::float8 AS "AVG_CO_RATE", ontime_delivery_rate::float8 AS "ONTIME_DELIVERY_RATE", quality_score::float8 AS "QUALITY_SCORE", risk_score::float8 AS "RISK_SCORE" FROM %s.vendor WHERE active_flag = TRUE ORDER BY risk_score DESC`, p.schema)
	rs, err := p.warehouse.Execute(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("list vendors: %w", err)
	}

	vendors := make([]portfolio.Vendor, 0, rs.RowCount())
	for _, row := range rs.Rows {
		vendors = append(vendors, portfolio.Vendor{
			ID:                 asString(row["VENDOR_ID"]),
			Name:               asString(row["VENDOR_NAME"]),
			TradeCategory:      asString(row["TRADE_CATEGORY"]),
			Type:               asString(row["VENDOR_TYPE"]),
			AvgCORate:          asNum(row["AVG_CO_RATE"]),
			OntimeDeliveryRate: asNum(row["ONTIME_DELIVERY_RATE"]),
			QualityScore:       asNum(row["QUALITY_SCORE"]),
			RiskScore:          asNum(row["RISK_SCORE"]),
		})
	}
	return vendors, nil
}

// ChangeOrders returns change orders ordered by approved amount, optionally
// filtered to one project.
func (p *Portfolio) ChangeOrders(ctx context.Context, projectID string, limit int) ([]portfolio.ChangeOrder, error) {
	if limit <= 0 {
		limit = 100
	}
	where := ""
	args := []any{limit}
	if projectID != "" {
		where = `WHERE co.project_id = $2`
		args = append(args, projectID)
	}
	sql := fmt.Sprintf(`SELECT co.co_id AS "CO_ID", co.project_id AS "PROJECT_ID", p.project_name AS "PROJECT_NAME", co.vendor_id AS "VENDOR_ID", v.vendor_name AS "VENDOR_NAME", co.co_number AS "CO_NUMBER", co.co_title AS "CO_TITLE", co.reason_text AS "REASON_TEXT", co.approved_amount::float8 AS "APPROVED_AMOUNT", co.status AS "STATUS", co.ml_category AS "ML_CATEGORY", co.ml_confidence::float8 AS "ML_CONFIDENCE" FROM %[1]s.change_order co JOIN %[1]s.project p ON co.project_id = p.project_id LEFT JOIN %[1]s.vendor v ON co.vendor_id = v.vendor_id %[2]s ORDER BY co.approved_amount DESC LIMIT $1`, p.schema, where)

	rs, err := p.warehouse.Execute(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list change orders: %w", err)
	}

	orders := make([]portfolio.ChangeOrder, 0, rs.RowCount())
	for _, row := range rs.Rows {
		orders = append(orders, portfolio.ChangeOrder{
			ID:             asString(row["CO_ID"]),
			ProjectID:      asString(row["PROJECT_ID"]),
			ProjectName:    asString(row["PROJECT_NAME"]),
			VendorID:       asString(row["VENDOR_ID"]),
			VendorName:     asString(row["VENDOR_NAME"]),
			Number:         asString(row["CO_NUMBER"]),
			Title:          asString(row["CO_TITLE"]),
			ReasonText:     asString(row["REASON_TEXT"]),
			ApprovedAmount: asNum(row["APPROVED_AMOUNT"]),
			Status:         asString(row["STATUS"]),
			MLCategory:     asString(row["ML_CATEGORY"]),
			MLConfidence:   asNum(row["ML_CONFIDENCE"]),
		})
	}
	return orders, nil
}

// AtRiskActivities returns schedule activities whose slip probability
// exceeds the threshold.
func (p *Portfolio) AtRiskActivities(ctx context.Context, threshold float64) ([]portfolio.Activity, error) {
	if threshold <= 0 {
		threshold = 0.5
	}
	sql := fmt.Sprintf(`SELECT sa.activity_id AS "ACTIVITY_ID", sa.project_id AS "PROJECT_ID", p.project_name AS "PROJECT_NAME", sa.activity_name AS "ACTIVITY_NAME", sa.planned_finish::text AS "PLANNED_FINISH", sa.forecast_finish::text AS "FORECAST_FINISH", sa.percent_complete::float8 AS "PERCENT_COMPLETE", sa.slip_probability::float8 AS "SLIP_PROBABILITY", (sa.forecast_finish - sa.planned_finish) AS "SLIP_DAYS" FROM %[1]s.schedule_activity sa JOIN %[1]s.project p ON sa.project_id = p.project_id WHERE sa.slip_probability > $1 ORDER BY sa.slip_probability DESC LIMIT 50`, p.schema)

	rs, err := p.warehouse.Execute(ctx, sql, threshold)
	if err != nil {
		return nil, fmt.Errorf("at-risk activities: %w", err)
	}

	activities := make([]portfolio.Activity, 0, rs.RowCount())
	for _, row := range rs.Rows {
		activities = append(activities, portfolio.Activity{
			ID:              asString(row["ACTIVITY_ID"]),
			ProjectID:       asString(row["PROJECT_ID"]),
			ProjectName:     asString(row["PROJECT_NAME"]),
			Name:            asString(row["ACTIVITY_NAME"]),
			PlannedFinish:   asString(row["PLANNED_FINISH"]),
			ForecastFinish:  asString(row["FORECAST_FINISH"]),
			PercentComplete: asNum(row["PERCENT_COMPLETE"]),
			SlipProbability: asNum(row["SLIP_PROBABILITY"]),
			SlipDays:        asInt(row["SLIP_DAYS"]),
		})
	}
	return activities, nil
}

// ScanAlerts checks every project against the configured thresholds and
// publishes critical breaches.
func (p *Portfolio) ScanAlerts(ctx context.Context) (*portfolio.AlertReport, error) {
	projects, err := p.Projects(ctx)
	if err != nil {
		return nil, err
	}

	report := &portfolio.AlertReport{Alerts: []portfolio.Alert{}}
	for _, proj := range projects {
		cpiWarn := p.alerts.CPIThreshold + 0.05

		switch {
		case proj.CPI < p.alerts.CPIThreshold:
			report.Add("critical", "cost", proj.Name,
				fmt.Sprintf("CPI at %.2f - severe cost overrun", proj.CPI))
			p.publishAlert(ctx, proj, "cpi", proj.CPI, p.alerts.CPIThreshold, "critical")
		case proj.CPI < cpiWarn:
			report.Add("warning", "cost", proj.Name,
				fmt.Sprintf("CPI at %.2f - trending over budget", proj.CPI))
		}

		if proj.SPI < p.alerts.SPIThreshold {
			report.Add("critical", "schedule", proj.Name,
				fmt.Sprintf("SPI at %.2f - severe schedule delay", proj.SPI))
			p.publishAlert(ctx, proj, "spi", proj.SPI, p.alerts.SPIThreshold, "critical")
		}

		if proj.ContingencyBudget > 0 {
			remaining := 1 - proj.ContingencyUsed/proj.ContingencyBudget
			if remaining < p.alerts.ContingencyThreshold {
				burn := proj.ContingencyUsed / proj.ContingencyBudget * 100
				report.Add("critical", "contingency", proj.Name,
					fmt.Sprintf("Contingency at %.0f%% - nearly depleted", burn))
				p.publishAlert(ctx, proj, "contingency", remaining, p.alerts.ContingencyThreshold, "critical")
			}
		}
	}
	return report, nil
}

func (p *Portfolio) publishAlert(ctx context.Context, proj portfolio.Project, metric string, value, threshold float64, severity string) {
	if p.queue != nil {
		payload := messagequeue.PortfolioAlertPayload{
			ProjectID:   proj.ID,
			ProjectName: proj.Name,
			Metric:      metric,
			Value:       value,
			Threshold:   threshold,
			Severity:    severity,
		}
		if data, err := json.Marshal(payload); err == nil {
			if err := p.queue.Publish(ctx, messagequeue.SubjectPortfolioAlert, data); err != nil {
				p.log.Warn("portfolio alert publish failed", "project", proj.ID, "error", err)
			}
		}
	}
}

// Overview builds the portfolio status narrative shown in chat and in
// the morning brief.
func (p *Portfolio) Overview(ctx context.Context) (string, *portfolio.Summary, error) {
	summary, err := p.Summary(ctx)
	if err != nil {
		return "", nil, err
	}

	healthMark := func(v float64) string {
		if v >= 0.95 {
			return "✅"
		}
		return "⚠️"
	}

	var burn float64
	if summary.TotalContingency > 0 {
		burn = summary.ContingencyUsed / summary.TotalContingency * 100
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## 📊 Portfolio Status\n\n")
	fmt.Fprintf(&b, "### Overall Health\n")
	fmt.Fprintf(&b, "- **%d active projects** with total value of **$%.2fB**\n", summary.TotalProjects, summary.TotalBudget/1e9)
	fmt.Fprintf(&b, "- **Average CPI**: %.3f %s\n", summary.AvgCPI, healthMark(summary.AvgCPI))
	fmt.Fprintf(&b, "- **Average SPI**: %.3f %s\n\n", summary.AvgSPI, healthMark(summary.AvgSPI))
	fmt.Fprintf(&b, "### Contingency Status\n")
	fmt.Fprintf(&b, "- **Contingency Remaining**: $%.1fM of $%.1fM\n", (summary.TotalContingency-summary.ContingencyUsed)/1e6, summary.TotalContingency/1e6)
	fmt.Fprintf(&b, "- **Burn Rate**: %.1f%%\n\n", burn)
	fmt.Fprintf(&b, "### Risk Summary\n")
	fmt.Fprintf(&b, "- **%d projects over budget** (CPI < 0.95)\n", summary.ProjectsOverBudget)
	fmt.Fprintf(&b, "- **%d projects behind schedule** (SPI < 0.95)\n", summary.ProjectsBehindSchedule)

	return b.String(), summary, nil
}

// MorningBrief assembles the daily portfolio digest: KPI rollup, alert
// scan, hidden-pattern findings, and at-risk schedule count.
func (p *Portfolio) MorningBrief(ctx context.Context) (*portfolio.MorningBrief, error) {
	narrative, summary, err := p.Overview(ctx)
	if err != nil {
		return nil, err
	}

	report, err := p.ScanAlerts(ctx)
	if err != nil {
		return nil, err
	}
	alerts := report.Alerts
	if len(alerts) > 5 {
		alerts = alerts[:5]
	}

	brief := &portfolio.MorningBrief{
		Date:               time.Now().UTC().Format("2006-01-02"),
		Portfolio:          *summary,
		Alerts:             alerts,
		CriticalAlertCount: report.CriticalCount,
		Narrative:          narrative,
	}

	if finding, err := p.discovery.FindHiddenPatterns(ctx, "morning brief"); err != nil {
		p.log.Warn("morning brief pattern discovery failed", "error", err)
	} else if count, ok := finding.Data["co_count"].(int); ok && count > 0 {
		brief.HiddenPattern = finding.Data
	}

	if activities, err := p.AtRiskActivities(ctx, 0.5); err != nil {
		p.log.Warn("morning brief schedule scan failed", "error", err)
	} else {
		brief.ScheduleRiskCount = len(activities)
	}

	return brief, nil
}

func rowToProject(row map[string]any) portfolio.Project {
	return portfolio.Project{
		ID:                asString(row["PROJECT_ID"]),
		Name:              asString(row["PROJECT_NAME"]),
		Type:              asString(row["PROJECT_TYPE"]),
		Status:            asString(row["STATUS"]),
		City:              asString(row["CITY"]),
		State:             asString(row["STATE"]),
		Latitude:          asNum(row["LATITUDE"]),
		Longitude:         asNum(row["LONGITUDE"]),
		OriginalBudget:    asNum(row["ORIGINAL_BUDGET"]),
		CurrentBudget:     asNum(row["CURRENT_BUDGET"]),
		ContingencyBudget: asNum(row["CONTINGENCY_BUDGET"]),
		ContingencyUsed:   asNum(row["CONTINGENCY_USED"]),
		CPI:               asNum(row["CPI"]),
		SPI:               asNum(row["SPI"]),
		PrimeContractor:   asString(row["PRIME_CONTRACTOR"]),
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asNum(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func asInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
