// backend/src/handlers/investment_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/username/crowdvest/backend/src/database"
	"github.com/username/crowdvest/backend/src/logger"
	"github.com/username/crowdvest/backend/src/model"
	"github.com/username/crowdvest/backend/src/models"
	"github.com/username/crowdvest/backend/src/security/validation"
	"github.com/username/crowdvest/backend/src/services"
	"github.com/username/crowdvest/backend/src/utils"
)

type InvestmentHandler struct {
	settlementService services.SettlementService
}

func NewInvestmentHandler(settlementService services.SettlementService) *InvestmentHandler {
	return &InvestmentHandler{
		settlementService: settlementService,
	}
}

// sendSessionError maps the settlement service's typed errors onto HTTP
// statuses. Validation rejections carry the unchanged session so the client
// can re-render the step it is stuck on.
func sendSessionError(w http.ResponseWriter, session *models.SettlementSession, err error) {
	var status int
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		utils.SendJSONError(w, "Investment session not found or expired", http.StatusNotFound)
		return
	case errors.Is(err, services.ErrAmountOutOfBounds):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrRiskNotAcknowledged):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrInvalidSessionStep):
		status = http.StatusConflict
	case errors.Is(err, services.ErrCampaignNotOpen):
		status = http.StatusConflict
	default:
		logger.L.Error("Settlement service error", "error", err)
		utils.SendJSONError(w, "Failed to process investment", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   err.Error(),
		"session": session,
	})
}

func writeSession(w http.ResponseWriter, session *models.SettlementSession, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(session)
}

func (h *InvestmentHandler) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	slug := chi.URLParam(r, "slug")
	if err := validation.ValidateSlug(slug); err != nil {
		utils.SendJSONError(w, "Invalid campaign slug", http.StatusBadRequest)
		return
	}

	campaign, err := model.GetCampaignBySlug(database.DB, slug)
	if err != nil {
		if errors.Is(err, model.ErrCampaignNotFound) {
			utils.SendJSONError(w, "Campaign not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Failed to load campaign for invest session", "slug", slug, "error", err)
		utils.SendJSONError(w, "Failed to start investment session", http.StatusInternalServerError)
		return
	}

	session, err := h.settlementService.StartSession(userID, campaign)
	if err != nil {
		sendSessionError(w, nil, err)
		return
	}
	writeSession(w, session, http.StatusCreated)
}

func (h *InvestmentHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	session, err := h.settlementService.GetSession(userID, chi.URLParam(r, "sessionID"))
	if err != nil {
		sendSessionError(w, session, err)
		return
	}
	writeSession(w, session, http.StatusOK)
}

func (h *InvestmentHandler) HandleSetAmount(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var body struct {
		Amount float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validation.ValidateAmount(body.Amount, "Amount"); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	session, err := h.settlementService.SetAmount(userID, chi.URLParam(r, "sessionID"), body.Amount)
	if err != nil {
		sendSessionError(w, session, err)
		return
	}
	writeSession(w, session, http.StatusOK)
}

func (h *InvestmentHandler) HandleConfirmRisk(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	session, err := h.settlementService.ConfirmRisk(userID, chi.URLParam(r, "sessionID"))
	if err != nil {
		sendSessionError(w, session, err)
		return
	}
	writeSession(w, session, http.StatusOK)
}

func (h *InvestmentHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var body struct {
		FundingSourceID string `json:"funding_source_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	session, err := h.settlementService.Submit(userID, chi.URLParam(r, "sessionID"), body.FundingSourceID)
	if err != nil {
		sendSessionError(w, session, err)
		return
	}
	writeSession(w, session, http.StatusOK)
}

func (h *InvestmentHandler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	session, err := h.settlementService.Retry(userID, chi.URLParam(r, "sessionID"))
	if err != nil {
		sendSessionError(w, session, err)
		return
	}
	writeSession(w, session, http.StatusOK)
}

func (h *InvestmentHandler) HandleCancelSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	if err := h.settlementService.CancelSession(userID, chi.URLParam(r, "sessionID")); err != nil {
		sendSessionError(w, nil, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *InvestmentHandler) HandleListInvestments(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	investments, err := model.ListInvestmentsByUser(database.DB, userID)
	if err != nil {
		logger.L.Error("Failed to list investments", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to retrieve investments", http.StatusInternalServerError)
		return
	}
	if investments == nil {
		investments = []models.InvestmentRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(investments)
}

func (h *InvestmentHandler) HandleListPayouts(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	payouts, err := model.ListPayoutsByUser(database.DB, userID)
	if err != nil {
		logger.L.Error("Failed to list payouts", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to retrieve payouts", http.StatusInternalServerError)
		return
	}
	if payouts == nil {
		payouts = []models.PayoutRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payouts)
}
