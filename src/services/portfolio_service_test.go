// backend/src/services/portfolio_service_test.go
package services

import (
	"database/sql"
	"testing"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/crowdvest/backend/src/model"
	"github.com/username/crowdvest/backend/src/models"
)

func newPortfolioTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db := newTestDB(t)

	_, err := db.Exec(`
		CREATE TABLE campaigns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			slug TEXT NOT NULL UNIQUE,
			company_name TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			instrument_type TEXT NOT NULL DEFAULT 'equity',
			min_investment REAL NOT NULL,
			max_investment_per_person REAL NOT NULL,
			target_amount REAL NOT NULL,
			status TEXT NOT NULL DEFAULT 'draft',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	require.NoError(t, err)
	return db
}

func TestGetPerformance_AggregatesAndLabelsPositions(t *testing.T) {
	db := newPortfolioTestDB(t)

	campaign := &model.Campaign{
		Slug:                   "wind-coop",
		CompanyName:            "Wind Co-op",
		MinInvestment:          25,
		MaxInvestmentPerPerson: 5000,
		TargetAmount:           100000,
		Status:                 "funded",
	}
	require.NoError(t, model.CreateCampaign(db, campaign))

	inv := &models.InvestmentRecord{
		UserID:     1,
		CampaignID: campaign.ID,
		Amount:     1000,
		Status:     models.InvestmentStatusConfirmed,
	}
	require.NoError(t, model.CreateInvestment(db, inv))
	require.NoError(t, model.CreatePayout(db, &models.PayoutRecord{
		UserID:       1,
		CampaignID:   campaign.ID,
		InvestmentID: inv.ID,
		Amount:       150,
	}))

	svc := NewPortfolioService(db, cache.New(DefaultCacheExpiration, CacheCleanupInterval))

	perf, err := svc.GetPerformance(1)
	require.NoError(t, err)
	require.Len(t, perf.Positions, 1)
	assert.Equal(t, "Wind Co-op", perf.Positions[0].CompanyLabel)
	assert.Equal(t, 1000.0, perf.Positions[0].CostBasis)
	assert.Equal(t, 150.0, perf.Positions[0].PayoutsTotal)
	assert.Equal(t, 1000.0, perf.TotalCostBasis)
	assert.Equal(t, 150.0, perf.TotalPayouts)
}

func TestGetPerformance_CachesUntilInvalidated(t *testing.T) {
	db := newPortfolioTestDB(t)
	svc := NewPortfolioService(db, cache.New(DefaultCacheExpiration, CacheCleanupInterval))

	first, err := svc.GetPerformance(1)
	require.NoError(t, err)
	assert.Empty(t, first.Positions)

	campaign := &model.Campaign{
		Slug:                   "wind-coop",
		CompanyName:            "Wind Co-op",
		MinInvestment:          25,
		MaxInvestmentPerPerson: 5000,
		TargetAmount:           100000,
	}
	require.NoError(t, model.CreateCampaign(db, campaign))
	require.NoError(t, model.CreateInvestment(db, &models.InvestmentRecord{
		UserID:     1,
		CampaignID: campaign.ID,
		Amount:     500,
		Status:     models.InvestmentStatusConfirmed,
	}))

	// Still the cached empty report.
	cached, err := svc.GetPerformance(1)
	require.NoError(t, err)
	assert.Empty(t, cached.Positions)

	svc.InvalidateUserCache(1)

	fresh, err := svc.GetPerformance(1)
	require.NoError(t, err)
	require.Len(t, fresh.Positions, 1)
	assert.Equal(t, 500.0, fresh.Positions[0].CostBasis)
}

func TestGetPerformance_UserScoped(t *testing.T) {
	db := newPortfolioTestDB(t)

	campaign := &model.Campaign{
		Slug:                   "wind-coop",
		CompanyName:            "Wind Co-op",
		MinInvestment:          25,
		MaxInvestmentPerPerson: 5000,
		TargetAmount:           100000,
	}
	require.NoError(t, model.CreateCampaign(db, campaign))
	require.NoError(t, model.CreateInvestment(db, &models.InvestmentRecord{
		UserID:     2,
		CampaignID: campaign.ID,
		Amount:     750,
		Status:     models.InvestmentStatusConfirmed,
	}))

	svc := NewPortfolioService(db, cache.New(DefaultCacheExpiration, CacheCleanupInterval))

	perf, err := svc.GetPerformance(1)
	require.NoError(t, err)
	assert.Empty(t, perf.Positions)
	assert.Zero(t, perf.TotalCostBasis)
}
