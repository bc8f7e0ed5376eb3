package processors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/crowdvest/backend/src/models"
)

var testLabels = map[int64]string{
	1: "Solar Grid Labs",
	2: "Brewline Coffee",
}

func confirmedInvestment(id, campaignID int64, amount float64, createdAt time.Time) models.InvestmentRecord {
	return models.InvestmentRecord{
		ID:         id,
		UserID:     42,
		CampaignID: campaignID,
		Amount:     amount,
		Status:     models.InvestmentStatusConfirmed,
		CreatedAt:  createdAt,
	}
}

func TestAggregate_OnePositionPerCampaign(t *testing.T) {
	t0 := date(2024, 1, 1)
	investments := []models.InvestmentRecord{
		confirmedInvestment(1, 1, 500, t0),
		confirmedInvestment(2, 1, 250, t0.AddDate(0, 2, 0)),
		confirmedInvestment(3, 2, 1000, t0.AddDate(0, 1, 0)),
	}

	result := NewPositionProcessor().Aggregate(investments, nil, testLabels)

	require.Len(t, result.Positions, 2)
	byCampaign := make(map[int64]models.Position)
	for _, pos := range result.Positions {
		byCampaign[pos.CampaignID] = pos
	}

	assert.Equal(t, 750.0, byCampaign[1].CostBasis)
	assert.Equal(t, "Solar Grid Labs", byCampaign[1].CompanyLabel)
	assert.Equal(t, 1000.0, byCampaign[2].CostBasis)
	assert.Equal(t, 1750.0, result.TotalCostBasis)
}

func TestAggregate_PendingExcludedFromCostBasis(t *testing.T) {
	t0 := date(2024, 1, 1)
	investments := []models.InvestmentRecord{
		confirmedInvestment(1, 1, 500, t0),
		{ID: 2, UserID: 42, CampaignID: 1, Amount: 200, Status: models.InvestmentStatusInitiated, CreatedAt: t0},
		{ID: 3, UserID: 42, CampaignID: 1, Amount: 300, Status: models.InvestmentStatusProcessing, CreatedAt: t0},
		{ID: 4, UserID: 42, CampaignID: 1, Amount: 150, Status: models.InvestmentStatusFailed, CreatedAt: t0},
	}

	result := NewPositionProcessor().Aggregate(investments, nil, testLabels)

	require.Len(t, result.Positions, 1)
	pos := result.Positions[0]
	assert.Equal(t, 500.0, pos.CostBasis, "only confirmed amounts count toward cost basis")
	assert.Equal(t, 500.0, pos.PendingAmount, "initiated and processing amounts are pending")
	assert.Equal(t, 500.0, result.TotalCostBasis)
}

func TestAggregate_PayoutFallbackThroughInvestmentLink(t *testing.T) {
	t0 := date(2024, 1, 1)
	investments := []models.InvestmentRecord{
		confirmedInvestment(7, 1, 1000, t0),
	}
	payouts := []models.PayoutRecord{
		// Distribution event without a campaign reference; only the
		// originating investment is known.
		{ID: 1, UserID: 42, InvestmentID: 7, Amount: 400, CreatedAt: t0.AddDate(1, 0, 0)},
		{ID: 2, UserID: 42, CampaignID: 1, Amount: 100, CreatedAt: t0.AddDate(1, 6, 0)},
	}

	result := NewPositionProcessor().Aggregate(investments, payouts, testLabels)

	require.Len(t, result.Positions, 1)
	assert.Equal(t, 500.0, result.Positions[0].PayoutsTotal)
	assert.Equal(t, 500.0, result.TotalPayouts)
}

func TestAggregate_PositionIRRRoundTrip(t *testing.T) {
	t0 := date(2024, 3, 1)
	investments := []models.InvestmentRecord{
		confirmedInvestment(1, 1, 1000, t0),
	}
	payouts := []models.PayoutRecord{
		{ID: 1, UserID: 42, CampaignID: 1, Amount: 1210, CreatedAt: t0.AddDate(0, 0, 365)},
	}

	result := NewPositionProcessor().Aggregate(investments, payouts, testLabels)

	require.Len(t, result.Positions, 1)
	require.NotNil(t, result.Positions[0].IRR)
	assert.InDelta(t, 0.21, *result.Positions[0].IRR, 1e-4)

	require.NotNil(t, result.PortfolioIRR)
	assert.InDelta(t, 0.21, *result.PortfolioIRR, 1e-4)
}

func TestAggregate_NoPayoutsMeansUndefinedIRR(t *testing.T) {
	t0 := date(2024, 1, 1)
	investments := []models.InvestmentRecord{
		confirmedInvestment(1, 1, 500, t0),
		confirmedInvestment(2, 2, 300, t0),
	}

	result := NewPositionProcessor().Aggregate(investments, nil, testLabels)

	require.Len(t, result.Positions, 2)
	for _, pos := range result.Positions {
		assert.Nil(t, pos.IRR, "an all-outflow position has no defined IRR yet")
	}
	assert.Nil(t, result.PortfolioIRR)
}

func TestAggregate_PortfolioIRRBlendsCampaigns(t *testing.T) {
	t0 := date(2023, 1, 1)
	investments := []models.InvestmentRecord{
		confirmedInvestment(1, 1, 1000, t0),
		confirmedInvestment(2, 2, 2000, t0),
	}
	payouts := []models.PayoutRecord{
		{ID: 1, UserID: 42, CampaignID: 1, Amount: 1100, CreatedAt: t0.AddDate(0, 0, 365)},
		{ID: 2, UserID: 42, CampaignID: 2, Amount: 2400, CreatedAt: t0.AddDate(0, 0, 365)},
	}

	result := NewPositionProcessor().Aggregate(investments, payouts, testLabels)

	// Blended: -3000 at t0, +3500 one year later → 16.67%.
	require.NotNil(t, result.PortfolioIRR)
	assert.InDelta(t, 3500.0/3000.0-1, *result.PortfolioIRR, 1e-3)

	byCampaign := make(map[int64]models.Position)
	for _, pos := range result.Positions {
		byCampaign[pos.CampaignID] = pos
	}
	require.NotNil(t, byCampaign[1].IRR)
	require.NotNil(t, byCampaign[2].IRR)
	assert.InDelta(t, 0.10, *byCampaign[1].IRR, 1e-3)
	assert.InDelta(t, 0.20, *byCampaign[2].IRR, 1e-3)
}

func TestAggregate_EmptyLedgers(t *testing.T) {
	result := NewPositionProcessor().Aggregate(nil, nil, nil)

	assert.Empty(t, result.Positions)
	assert.Nil(t, result.PortfolioIRR)
	assert.Zero(t, result.TotalCostBasis)
	assert.Zero(t, result.TotalPayouts)
}
