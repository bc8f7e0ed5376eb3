// backend/src/handlers/campaign_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/username/crowdvest/backend/src/database"
	"github.com/username/crowdvest/backend/src/logger"
	"github.com/username/crowdvest/backend/src/model"
	"github.com/username/crowdvest/backend/src/security/validation"
	"github.com/username/crowdvest/backend/src/utils"
)

type CampaignHandler struct{}

func NewCampaignHandler() *CampaignHandler {
	return &CampaignHandler{}
}

func (h *CampaignHandler) HandleListCampaigns(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = "active"
	}

	campaigns, err := model.ListCampaigns(database.DB, status)
	if err != nil {
		logger.L.Error("Failed to list campaigns", "error", err)
		utils.SendJSONError(w, "Failed to retrieve campaigns", http.StatusInternalServerError)
		return
	}
	if campaigns == nil {
		campaigns = []model.Campaign{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(campaigns)
}

func (h *CampaignHandler) HandleGetCampaign(w http.ResponseWriter, r *http.Request) {
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
		logger.L.Error("Failed to load campaign", "slug", slug, "error", err)
		utils.SendJSONError(w, "Failed to retrieve campaign", http.StatusInternalServerError)
		return
	}

	raised, err := model.GetCampaignAmountRaised(database.DB, campaign.ID)
	if err != nil {
		logger.L.Error("Failed to compute amount raised", "campaignID", campaign.ID, "error", err)
	} else {
		campaign.AmountRaised = raised
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(campaign)
}
