// backend/src/services/settlement_service.go
package services

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/username/crowdvest/backend/src/logger"
	"github.com/username/crowdvest/backend/src/model"
	"github.com/username/crowdvest/backend/src/models"
)

// sessionEntry wraps a live session together with its poller bookkeeping.
// The mutex serializes user actions against poll-result application; the
// generation counter lets a retry or cancel invalidate a poller whose result
// arrives after the session has already moved on.
type sessionEntry struct {
	mu             sync.Mutex
	session        *models.SettlementSession
	cancelPoll     context.CancelFunc
	pollGeneration int
}

type settlementServiceImpl struct {
	db         *sql.DB
	gateway    SettlementGateway
	poller     *SettlementPoller
	portfolio  PortfolioService
	sessions   *cache.Cache
	sessionTTL time.Duration
}

func NewSettlementService(db *sql.DB, gateway SettlementGateway, poller *SettlementPoller, portfolio PortfolioService, sessionTTL time.Duration) SettlementService {
	store := cache.New(sessionTTL, sessionTTL/2)
	store.OnEvicted(func(key string, value interface{}) {
		entry, ok := value.(*sessionEntry)
		if !ok {
			return
		}
		entry.mu.Lock()
		if entry.cancelPoll != nil {
			entry.cancelPoll()
			entry.cancelPoll = nil
		}
		entry.mu.Unlock()
		logger.L.Info("Settlement session evicted", "sessionID", key)
	})

	return &settlementServiceImpl{
		db:         db,
		gateway:    gateway,
		poller:     poller,
		portfolio:  portfolio,
		sessions:   store,
		sessionTTL: sessionTTL,
	}
}

func (s *settlementServiceImpl) getEntry(userID int64, sessionID string) (*sessionEntry, error) {
	raw, found := s.sessions.Get(sessionID)
	if !found {
		return nil, ErrSessionNotFound
	}
	entry := raw.(*sessionEntry)
	// Ownership check happens without the lock; UserID never changes after
	// creation.
	if entry.session.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return entry, nil
}

// snapshot returns a copy safe to hand to handlers after the lock is released.
func snapshot(sess *models.SettlementSession) *models.SettlementSession {
	copied := *sess
	return &copied
}

// touch refreshes the entry's TTL so an active flow does not expire under the
// user mid-checkout.
func (s *settlementServiceImpl) touch(sessionID string, entry *sessionEntry) {
	s.sessions.Set(sessionID, entry, s.sessionTTL)
}

func (s *settlementServiceImpl) StartSession(userID int64, campaign *model.Campaign) (*models.SettlementSession, error) {
	if campaign.Status != "active" {
		return nil, ErrCampaignNotOpen
	}

	now := time.Now()
	sess := &models.SettlementSession{
		ID:            uuid.New().String(),
		UserID:        userID,
		CampaignID:    campaign.ID,
		CampaignSlug:  campaign.Slug,
		CompanyName:   campaign.CompanyName,
		MinInvestment: campaign.MinInvestment,
		MaxInvestment: campaign.MaxInvestmentPerPerson,
		Step:          models.StepAmount,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	entry := &sessionEntry{session: sess}
	s.sessions.Set(sess.ID, entry, s.sessionTTL)

	logger.L.Info("Settlement session started",
		"sessionID", sess.ID, "userID", userID, "campaign", campaign.Slug)
	return snapshot(sess), nil
}

func (s *settlementServiceImpl) GetSession(userID int64, sessionID string) (*models.SettlementSession, error) {
	entry, err := s.getEntry(userID, sessionID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return snapshot(entry.session), nil
}

func (s *settlementServiceImpl) SetAmount(userID int64, sessionID string, amount float64) (*models.SettlementSession, error) {
	entry, err := s.getEntry(userID, sessionID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	sess := entry.session
	if sess.Step != models.StepAmount {
		return snapshot(sess), ErrInvalidSessionStep
	}
	// Bounds are inclusive on both ends. A rejected amount leaves the session
	// exactly where it was.
	if amount < sess.MinInvestment || amount > sess.MaxInvestment {
		return snapshot(sess), ErrAmountOutOfBounds
	}

	sess.Amount = amount
	sess.Step = models.StepConfirm
	sess.UpdatedAt = time.Now()
	s.touch(sessionID, entry)
	return snapshot(sess), nil
}

func (s *settlementServiceImpl) ConfirmRisk(userID int64, sessionID string) (*models.SettlementSession, error) {
	entry, err := s.getEntry(userID, sessionID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	sess := entry.session
	if sess.Step != models.StepConfirm {
		return snapshot(sess), ErrInvalidSessionStep
	}

	sess.ConfirmedRisk = true
	sess.UpdatedAt = time.Now()
	s.touch(sessionID, entry)
	return snapshot(sess), nil
}

func (s *settlementServiceImpl) Submit(userID int64, sessionID string, fundingSourceID string) (*models.SettlementSession, error) {
	entry, err := s.getEntry(userID, sessionID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	sess := entry.session
	if sess.Step != models.StepConfirm {
		return snapshot(sess), ErrInvalidSessionStep
	}
	if !sess.ConfirmedRisk {
		return snapshot(sess), ErrRiskNotAcknowledged
	}

	// Record the attempt before anything leaves the building, so a crash
	// mid-submission still leaves a trace.
	inv := &models.InvestmentRecord{
		UserID:     sess.UserID,
		CampaignID: sess.CampaignID,
		Amount:     sess.Amount,
		Status:     models.InvestmentStatusInitiated,
	}
	if err := model.CreateInvestment(s.db, inv); err != nil {
		logger.L.Error("Failed to record investment attempt", "error", err, "sessionID", sessionID)
		return snapshot(sess), err
	}
	sess.InvestmentID = inv.ID
	sess.Step = models.StepProcessing
	sess.UpdatedAt = time.Now()

	resp, err := s.gateway.SubmitInvestment(context.Background(), SubmissionRequest{
		Amount:          sess.Amount,
		CampaignSlug:    sess.CampaignSlug,
		FundingSourceID: fundingSourceID,
		UserID:          sess.UserID,
	})
	if err != nil {
		sess.Step = models.StepError
		sess.FailureReason = models.FailureSubmissionRejected
		sess.LastStatus = err.Error()
		sess.UpdatedAt = time.Now()
		if dbErr := model.UpdateInvestmentStatus(s.db, inv.ID, models.InvestmentStatusFailed, "", ""); dbErr != nil {
			logger.L.Error("Failed to mark investment failed", "error", dbErr, "investmentID", inv.ID)
		}
		s.touch(sessionID, entry)
		logger.L.Warn("Settlement submission rejected", "sessionID", sessionID, "error", err)
		return snapshot(sess), nil
	}

	sess.TransactionRef = resp.ID
	sess.LastStatus = resp.Status
	if err := model.UpdateInvestmentStatus(s.db, inv.ID, models.InvestmentStatusProcessing, resp.ID, ""); err != nil {
		logger.L.Error("Failed to mark investment processing", "error", err, "investmentID", inv.ID)
	}

	// The gateway can settle synchronously; otherwise poll in the background.
	switch resp.Status {
	case GatewayStatusSucceeded:
		s.applySuccessLocked(sess, &TransactionStatus{
			Status:     resp.Status,
			ReceiptRef: resp.ReceiptRef,
		})
	case GatewayStatusFailed:
		s.applyFailureLocked(sess, models.FailurePaymentFailed, "payment failed")
	default:
		s.startPollerLocked(entry)
	}

	s.touch(sessionID, entry)
	return snapshot(sess), nil
}

// startPollerLocked launches a background poll for the session's current
// transaction. Caller holds entry.mu.
func (s *settlementServiceImpl) startPollerLocked(entry *sessionEntry) {
	if entry.cancelPoll != nil {
		entry.cancelPoll()
	}
	entry.pollGeneration++
	generation := entry.pollGeneration

	ctx, cancel := context.WithCancel(context.Background())
	entry.cancelPoll = cancel

	sessionID := entry.session.ID
	transactionRef := entry.session.TransactionRef

	go func() {
		result := s.poller.Poll(ctx, transactionRef, func(attempt int) {
			entry.mu.Lock()
			if entry.pollGeneration == generation {
				entry.session.PollAttempts = attempt
			}
			entry.mu.Unlock()
		})
		s.applyPollResult(sessionID, entry, generation, result)
	}()
}

// applyPollResult moves the session to its terminal step. Results from a
// superseded poller generation are discarded.
func (s *settlementServiceImpl) applyPollResult(sessionID string, entry *sessionEntry, generation int, result PollResult) {
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.pollGeneration != generation {
		logger.L.Info("Discarding stale poll result", "sessionID", sessionID, "outcome", result.Outcome)
		return
	}
	entry.cancelPoll = nil

	sess := entry.session
	switch result.Outcome {
	case PollOutcomeSucceeded:
		s.applySuccessLocked(sess, result.Status)
	case PollOutcomeFailed:
		if err := model.UpdateInvestmentStatus(s.db, sess.InvestmentID, models.InvestmentStatusFailed, "", ""); err != nil {
			logger.L.Error("Failed to mark investment failed", "error", err, "investmentID", sess.InvestmentID)
		}
		s.applyFailureLocked(sess, models.FailurePaymentFailed, result.Message)
	case PollOutcomeTimeout:
		// The attempt is indeterminate, not known-failed: the ledger row stays
		// in processing so it can be reconciled later.
		s.applyFailureLocked(sess, models.FailureTimeout, result.Message)
	case PollOutcomeUnreachable:
		s.applyFailureLocked(sess, models.FailureStatusUnavailable, result.Message)
	case PollOutcomeCancelled:
		return
	}

	sess.UpdatedAt = time.Now()
	s.touch(sessionID, entry)
}

func (s *settlementServiceImpl) applySuccessLocked(sess *models.SettlementSession, status *TransactionStatus) {
	receipt := ""
	if status != nil {
		receipt = status.ReceiptRef
		sess.LastStatus = status.Status
	}
	if err := model.UpdateInvestmentStatus(s.db, sess.InvestmentID, models.InvestmentStatusConfirmed, "", receipt); err != nil {
		logger.L.Error("Failed to mark investment confirmed", "error", err, "investmentID", sess.InvestmentID)
	}
	sess.Step = models.StepSuccess
	sess.ReceiptRef = receipt
	sess.FailureReason = ""
	sess.UpdatedAt = time.Now()

	if s.portfolio != nil {
		s.portfolio.InvalidateUserCache(sess.UserID)
	}
	logger.L.Info("Investment settled",
		"sessionID", sess.ID, "investmentID", sess.InvestmentID, "amount", sess.Amount)
}

func (s *settlementServiceImpl) applyFailureLocked(sess *models.SettlementSession, reason, message string) {
	sess.Step = models.StepError
	sess.FailureReason = reason
	if message != "" {
		sess.LastStatus = message
	}
	logger.L.Warn("Investment settlement failed",
		"sessionID", sess.ID, "reason", reason, "detail", message)
}

func (s *settlementServiceImpl) Retry(userID int64, sessionID string) (*models.SettlementSession, error) {
	entry, err := s.getEntry(userID, sessionID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	sess := entry.session
	if sess.Step != models.StepError {
		return snapshot(sess), ErrInvalidSessionStep
	}

	if entry.cancelPoll != nil {
		entry.cancelPoll()
		entry.cancelPoll = nil
	}
	// Superseding the generation guarantees a straggling poll result from the
	// abandoned attempt cannot touch the fresh one.
	entry.pollGeneration++

	// The amount is kept; everything else about the failed attempt is reset,
	// including the risk acknowledgement.
	sess.Step = models.StepConfirm
	sess.ConfirmedRisk = false
	sess.PollAttempts = 0
	sess.LastStatus = ""
	sess.FailureReason = ""
	sess.ReceiptRef = ""
	sess.TransactionRef = ""
	sess.InvestmentID = 0
	sess.UpdatedAt = time.Now()

	s.touch(sessionID, entry)
	logger.L.Info("Settlement session reset for retry", "sessionID", sessionID, "userID", userID)
	return snapshot(sess), nil
}

func (s *settlementServiceImpl) CancelSession(userID int64, sessionID string) error {
	entry, err := s.getEntry(userID, sessionID)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	if entry.cancelPoll != nil {
		entry.cancelPoll()
		entry.cancelPoll = nil
	}
	entry.pollGeneration++
	entry.mu.Unlock()

	s.sessions.Delete(sessionID)
	logger.L.Info("Settlement session cancelled", "sessionID", sessionID, "userID", userID)
	return nil
}
