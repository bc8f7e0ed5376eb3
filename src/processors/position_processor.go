// backend/src/processors/position_processor.go
package processors

import (
	"github.com/username/crowdvest/backend/src/models"
)

// PositionProcessor derives per-campaign positions and portfolio performance
// from the raw investment and payout ledgers. It holds no state and is safe
// to share across call sites.
type PositionProcessor struct{}

func NewPositionProcessor() *PositionProcessor { return &PositionProcessor{} }

// Aggregate groups a user's ledgers into one Position per campaign present in
// the investments, plus a single blended portfolio IRR.
//
// Cost basis counts confirmed investments only; initiated/processing amounts
// are reported as pending instead. Cash flows for IRR purposes take one
// negative entry per investment record regardless of status (all committed
// capital is an outflow, dated at creation) and one positive entry per
// matched payout. Payouts match by campaign, falling back through their
// investment link when the distribution event carried no campaign.
//
// companyLabels maps campaign IDs to display names; unknown campaigns keep an
// empty label. Output order follows first appearance in the investments and
// is not significant — consumers join on campaign_id.
func (p *PositionProcessor) Aggregate(investments []models.InvestmentRecord, payouts []models.PayoutRecord, companyLabels map[int64]string) *models.PortfolioPerformance {
	investmentCampaign := make(map[int64]int64, len(investments))
	for _, inv := range investments {
		investmentCampaign[inv.ID] = inv.CampaignID
	}

	payoutsByCampaign := make(map[int64][]models.PayoutRecord)
	for _, pay := range payouts {
		campaignID := pay.CampaignID
		if campaignID == 0 {
			campaignID = investmentCampaign[pay.InvestmentID]
		}
		if campaignID == 0 {
			// Distribution that matches nothing we hold; it still counts
			// toward the portfolio-level flows below.
			continue
		}
		payoutsByCampaign[campaignID] = append(payoutsByCampaign[campaignID], pay)
	}

	var campaignOrder []int64
	investmentsByCampaign := make(map[int64][]models.InvestmentRecord)
	for _, inv := range investments {
		if _, seen := investmentsByCampaign[inv.CampaignID]; !seen {
			campaignOrder = append(campaignOrder, inv.CampaignID)
		}
		investmentsByCampaign[inv.CampaignID] = append(investmentsByCampaign[inv.CampaignID], inv)
	}

	result := &models.PortfolioPerformance{Positions: []models.Position{}}
	var portfolioFlows []models.CashFlow

	for _, campaignID := range campaignOrder {
		pos := models.Position{
			CampaignID:   campaignID,
			CompanyLabel: companyLabels[campaignID],
		}

		var flows []models.CashFlow
		for _, inv := range investmentsByCampaign[campaignID] {
			switch inv.Status {
			case models.InvestmentStatusConfirmed:
				pos.CostBasis += inv.Amount
			case models.InvestmentStatusInitiated, models.InvestmentStatusProcessing:
				pos.PendingAmount += inv.Amount
			}
			flows = append(flows, models.CashFlow{Amount: -inv.Amount, Date: inv.CreatedAt})
		}

		for _, pay := range payoutsByCampaign[campaignID] {
			pos.PayoutsTotal += pay.Amount
			flows = append(flows, models.CashFlow{Amount: pay.Amount, Date: pay.CreatedAt})
		}

		if rate, ok := ComputeIRR(flows); ok {
			pos.IRR = &rate
		}

		result.TotalCostBasis += pos.CostBasis
		result.Positions = append(result.Positions, pos)
	}

	// Portfolio flows are the union of every investment outflow and every
	// payout inflow, including payouts that matched no held position.
	for _, inv := range investments {
		portfolioFlows = append(portfolioFlows, models.CashFlow{Amount: -inv.Amount, Date: inv.CreatedAt})
	}
	for _, pay := range payouts {
		result.TotalPayouts += pay.Amount
		portfolioFlows = append(portfolioFlows, models.CashFlow{Amount: pay.Amount, Date: pay.CreatedAt})
	}

	if rate, ok := ComputeIRR(portfolioFlows); ok {
		result.PortfolioIRR = &rate
	}

	return result
}
