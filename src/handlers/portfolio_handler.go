// backend/src/handlers/portfolio_handler.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/username/crowdvest/backend/src/logger"
	"github.com/username/crowdvest/backend/src/services"
	"github.com/username/crowdvest/backend/src/utils"
)

type PortfolioHandler struct {
	portfolioService services.PortfolioService
}

func NewPortfolioHandler(portfolioService services.PortfolioService) *PortfolioHandler {
	return &PortfolioHandler{
		portfolioService: portfolioService,
	}
}

func (h *PortfolioHandler) HandleGetPerformance(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	logger.L.Info("Handling GetPerformance", "userID", userID)

	performance, err := h.portfolioService.GetPerformance(userID)
	if err != nil {
		logger.L.Error("Failed to compute portfolio performance", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to retrieve portfolio performance", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(performance)
}
