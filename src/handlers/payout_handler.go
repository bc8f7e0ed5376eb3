// backend/src/handlers/payout_handler.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/username/crowdvest/backend/src/database"
	"github.com/username/crowdvest/backend/src/logger"
	"github.com/username/crowdvest/backend/src/model"
	"github.com/username/crowdvest/backend/src/models"
	"github.com/username/crowdvest/backend/src/security/validation"
	"github.com/username/crowdvest/backend/src/services"
	"github.com/username/crowdvest/backend/src/utils"
)

type PayoutHandler struct {
	portfolioService services.PortfolioService
}

func NewPayoutHandler(portfolioService services.PortfolioService) *PayoutHandler {
	return &PayoutHandler{
		portfolioService: portfolioService,
	}
}

// HandleCreatePayout records a distribution to an investor. Admin only; the
// router wires this behind AdminMiddleware.
func (h *PayoutHandler) HandleCreatePayout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID       int64   `json:"user_id"`
		CampaignID   int64   `json:"campaign_id"`
		InvestmentID int64   `json:"investment_id"`
		Amount       float64 `json:"amount"`
		Description  string  `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if body.UserID <= 0 {
		utils.SendJSONError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if err := validation.ValidateAmount(body.Amount, "Amount"); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	body.Description = validation.SanitizeText(body.Description)
	if err := validation.ValidateStringMaxLength(body.Description, validation.MaxDescriptionLength, "Description"); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// A payout linked to an investment inherits its campaign when none is
	// given explicitly.
	if body.InvestmentID > 0 && body.CampaignID == 0 {
		inv, err := model.GetInvestmentByID(database.DB, body.InvestmentID)
		if err == nil && inv.UserID == body.UserID {
			body.CampaignID = inv.CampaignID
		}
	}

	payout := &models.PayoutRecord{
		UserID:       body.UserID,
		CampaignID:   body.CampaignID,
		InvestmentID: body.InvestmentID,
		Amount:       body.Amount,
		Description:  body.Description,
	}
	if err := model.CreatePayout(database.DB, payout); err != nil {
		logger.L.Error("Failed to create payout", "userID", body.UserID, "error", err)
		utils.SendJSONError(w, "Failed to record payout", http.StatusInternalServerError)
		return
	}

	h.portfolioService.InvalidateUserCache(body.UserID)
	logger.L.Info("Payout recorded", "payoutID", payout.ID, "userID", body.UserID, "amount", body.Amount)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(payout)
}
