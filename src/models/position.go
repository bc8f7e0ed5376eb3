package models

// Position is a user's aggregated stake in one campaign, derived on every
// read from the investment and payout ledgers. It has no independent
// lifecycle and is never persisted. IRR is nil when not yet meaningful
// (e.g., a position with no payouts) — rendered as "N/A" by clients.
type Position struct {
	CampaignID    int64    `json:"campaign_id"`
	CompanyLabel  string   `json:"company_label"`
	CostBasis     float64  `json:"cost_basis"`
	PendingAmount float64  `json:"pending_amount"`
	PayoutsTotal  float64  `json:"payouts_total"`
	IRR           *float64 `json:"irr"`
}

// PortfolioPerformance is the full performance report for one user: all
// positions plus a single blended IRR over every cash flow in the portfolio.
type PortfolioPerformance struct {
	Positions      []Position `json:"positions"`
	PortfolioIRR   *float64   `json:"portfolio_irr"`
	TotalCostBasis float64    `json:"total_cost_basis"`
	TotalPayouts   float64    `json:"total_payouts"`
}
