// backend/src/services/portfolio_service.go
package services

import (
	"database/sql"
	"fmt"

	"github.com/patrickmn/go-cache"
	"github.com/username/crowdvest/backend/src/logger"
	"github.com/username/crowdvest/backend/src/model"
	"github.com/username/crowdvest/backend/src/models"
	"github.com/username/crowdvest/backend/src/processors"
)

type portfolioServiceImpl struct {
	db        *sql.DB
	cache     *cache.Cache
	processor *processors.PositionProcessor
}

func NewPortfolioService(db *sql.DB, c *cache.Cache) PortfolioService {
	return &portfolioServiceImpl{
		db:        db,
		cache:     c,
		processor: processors.NewPositionProcessor(),
	}
}

func performanceCacheKey(userID int64) string {
	return fmt.Sprintf("portfolio_performance_%d", userID)
}

func (s *portfolioServiceImpl) GetPerformance(userID int64) (*models.PortfolioPerformance, error) {
	cacheKey := performanceCacheKey(userID)
	if cached, found := s.cache.Get(cacheKey); found {
		if perf, ok := cached.(*models.PortfolioPerformance); ok {
			return perf, nil
		}
	}

	investments, err := model.ListInvestmentsByUser(s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("loading investments: %w", err)
	}
	payouts, err := model.ListPayoutsByUser(s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("loading payouts: %w", err)
	}

	campaigns, err := model.ListCampaigns(s.db, "")
	if err != nil {
		return nil, fmt.Errorf("loading campaigns: %w", err)
	}
	labels := make(map[int64]string, len(campaigns))
	for _, c := range campaigns {
		labels[c.ID] = c.CompanyName
	}

	perf := s.processor.Aggregate(investments, payouts, labels)

	s.cache.Set(cacheKey, perf, DefaultCacheExpiration)
	logger.L.Debug("Portfolio performance computed",
		"userID", userID, "positions", len(perf.Positions))
	return perf, nil
}

func (s *portfolioServiceImpl) InvalidateUserCache(userID int64) {
	s.cache.Delete(performanceCacheKey(userID))
}
