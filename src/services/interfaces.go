// backend/src/services/interfaces.go
package services

import (
	"context"
	"errors"
	"time"

	"github.com/username/crowdvest/backend/src/model"
	"github.com/username/crowdvest/backend/src/models"
)

const (
	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

// Define common service errors. The first three are validation rejections:
// they leave the session untouched and are surfaced as blocked actions, not
// as failures of the flow itself.
var (
	ErrSessionNotFound     = errors.New("settlement session not found")
	ErrAmountOutOfBounds   = errors.New("investment amount outside campaign bounds")
	ErrRiskNotAcknowledged = errors.New("investment risk must be acknowledged first")
	ErrInvalidSessionStep  = errors.New("operation not valid in the session's current step")
	ErrCampaignNotOpen     = errors.New("campaign is not open for investment")
)

// Gateway transaction statuses as reported by the settlement endpoint.
const (
	GatewayStatusProcessing = "processing"
	GatewayStatusSucceeded  = "succeeded"
	GatewayStatusFailed     = "failed"
)

// SubmissionRequest is the payload sent to the settlement endpoint when an
// investment is submitted.
type SubmissionRequest struct {
	Amount          float64 `json:"amount"`
	CampaignSlug    string  `json:"campaign_slug"`
	FundingSourceID string  `json:"funding_source_id"`
	UserID          int64   `json:"user_id"`
}

// SubmissionResponse is the settlement endpoint's acceptance of a submission.
type SubmissionResponse struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	ReceiptRef       string `json:"receipt_ref,omitempty"`
	PaymentReference string `json:"payment_reference,omitempty"`
}

// TransactionStatus is one observation of an in-flight settlement.
type TransactionStatus struct {
	Status           string `json:"status"`
	ReceiptRef       string `json:"receipt_ref,omitempty"`
	PaymentReference string `json:"payment_reference,omitempty"`
	Error            string `json:"error,omitempty"`
}

// SettlementGateway is the boundary to the external settlement processor.
// Submission and status observation are the only two operations this backend
// needs from it.
type SettlementGateway interface {
	SubmitInvestment(ctx context.Context, req SubmissionRequest) (*SubmissionResponse, error)
	GetTransactionStatus(ctx context.Context, transactionRef string) (*TransactionStatus, error)
}

// SettlementService drives a single investment attempt through the
// amount → confirm → processing → {success|error} flow. All methods return a
// snapshot of the session after the operation; validation rejections return
// the unchanged snapshot together with a typed error.
type SettlementService interface {
	StartSession(userID int64, campaign *model.Campaign) (*models.SettlementSession, error)
	GetSession(userID int64, sessionID string) (*models.SettlementSession, error)
	SetAmount(userID int64, sessionID string, amount float64) (*models.SettlementSession, error)
	ConfirmRisk(userID int64, sessionID string) (*models.SettlementSession, error)
	Submit(userID int64, sessionID string, fundingSourceID string) (*models.SettlementSession, error)
	Retry(userID int64, sessionID string) (*models.SettlementSession, error)
	CancelSession(userID int64, sessionID string) error
}

// PortfolioService computes portfolio performance reports from the ledgers.
type PortfolioService interface {
	GetPerformance(userID int64) (*models.PortfolioPerformance, error)
	InvalidateUserCache(userID int64)
}
