// Package portfolio holds the read models for portfolio health reporting.
package portfolio

// Summary is the portfolio-level KPI rollup.
type Summary struct {
	TotalProjects         int     `json:"total_projects"`
	TotalBudget           float64 `json:"total_budget"`
	CurrentBudget         float64 `json:"current_budget"`
	TotalContingency      float64 `json:"total_contingency"`
	ContingencyUsed       float64 `json:"contingency_used"`
	AvgCPI                float64 `json:"avg_cpi"`
	AvgSPI                float64 `json:"avg_spi"`
	ProjectsOverBudget    int     `json:"projects_over_budget"`
	ProjectsBehindSchedule int    `json:"projects_behind_schedule"`
}

// Project is one capital project with its health indicators.
type Project struct {
	ID                string  `json:"project_id"`
	Name              string  `json:"project_name"`
	Type              string  `json:"project_type"`
	Status            string  `json:"status"`
	City              string  `json:"city"`
	State             string  `json:"state"`
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	OriginalBudget    float64 `json:"original_budget"`
	CurrentBudget     float64 `json:"current_budget"`
	ContingencyBudget float64 `json:"contingency_budget"`
	ContingencyUsed   float64 `json:"contingency_used"`
	CPI               float64 `json:"cpi"`
	SPI               float64 `json:"spi"`
	PrimeContractor   string  `json:"prime_contractor"`
}

// Vendor is a contractor with its performance scores.
type Vendor struct {
	ID                 string  `json:"vendor_id"`
	Name               string  `json:"vendor_name"`
	TradeCategory      string  `json:"trade_category"`
	Type               string  `json:"vendor_type"`
	AvgCORate          float64 `json:"avg_co_rate"`
	OntimeDeliveryRate float64 `json:"ontime_delivery_rate"`
	QualityScore       float64 `json:"quality_score"`
	RiskScore          float64 `json:"risk_score"`
}

// ChangeOrder is one change order joined with its project and vendor.
type ChangeOrder struct {
	ID             string  `json:"co_id"`
	ProjectID      string  `json:"project_id"`
	ProjectName    string  `json:"project_name"`
	VendorID       string  `json:"vendor_id"`
	VendorName     string  `json:"vendor_name"`
	Number         string  `json:"co_number"`
	Title          string  `json:"co_title"`
	ReasonText     string  `json:"reason_text"`
	ApprovedAmount float64 `json:"approved_amount"`
	Status         string  `json:"status"`
	MLCategory     string  `json:"ml_category"`
	MLConfidence   float64 `json:"ml_confidence"`
}

// Activity is a schedule activity with its slip forecast.
type Activity struct {
	ID              string  `json:"activity_id"`
	ProjectID       string  `json:"project_id"`
	ProjectName     string  `json:"project_name"`
	Name            string  `json:"activity_name"`
	PlannedFinish   string  `json:"planned_finish"`
	ForecastFinish  string  `json:"forecast_finish"`
	PercentComplete float64 `json:"percent_complete"`
	SlipProbability float64 `json:"slip_probability"`
	SlipDays        int     `json:"slip_days"`
}

// Alert is one threshold breach found by the portfolio scan.
type Alert struct {
	Level   string `json:"level"`
	Type    string `json:"type"`
	Project string `json:"project"`
	Message string `json:"message"`
}

// AlertReport is the result of a full portfolio alert scan.
type AlertReport struct {
	Alerts        []Alert `json:"alerts"`
	CriticalCount int     `json:"critical_count"`
	WarningCount  int     `json:"warning_count"`
}

// Add appends an alert and updates the severity counters.
func (r *AlertReport) Add(level, kind, project, message string) {
	r.Alerts = append(r.Alerts, Alert{
		Level:   level,
		Type:    kind,
		Project: project,
		Message: message,
	})
	switch level {
	case "critical":
		r.CriticalCount++
	case "warning":
		r.WarningCount++
	}
}

// MorningBrief is the daily portfolio digest.
type MorningBrief struct {
	Date               string         `json:"date"`
	Portfolio          Summary        `json:"portfolio"`
	Alerts             []Alert        `json:"alerts"`
	CriticalAlertCount int            `json:"critical_alert_count"`
	HiddenPattern      map[string]any `json:"hidden_pattern,omitempty"`
	ScheduleRiskCount  int            `json:"schedule_risk_count"`
	Narrative          string         `json:"narrative"`
}
