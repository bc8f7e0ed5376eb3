// backend/src/services/settlement_service_test.go
package services

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/crowdvest/backend/src/model"
	"github.com/username/crowdvest/backend/src/models"
	_ "modernc.org/sqlite"
)

// stubGateway scripts both the submission and the subsequent status checks.
type stubGateway struct {
	scriptedGateway
	submitResp *SubmissionResponse
	submitErr  error
	submits    int
}

func (g *stubGateway) SubmitInvestment(ctx context.Context, req SubmissionRequest) (*SubmissionResponse, error) {
	g.submits++
	return g.submitResp, g.submitErr
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE investments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			campaign_id INTEGER NOT NULL,
			amount REAL NOT NULL,
			status TEXT NOT NULL DEFAULT 'initiated',
			external_transaction_ref TEXT NOT NULL DEFAULT '',
			receipt_ref TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE payouts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			campaign_id INTEGER,
			investment_id INTEGER,
			amount REAL NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	require.NoError(t, err)
	return db
}

func testCampaign() *model.Campaign {
	return &model.Campaign{
		ID:                     7,
		Slug:                   "solar-microgrid",
		CompanyName:            "Solar Microgrid Ltd",
		MinInvestment:          25,
		MaxInvestmentPerPerson: 5000,
		Status:                 "active",
	}
}

func newTestService(t *testing.T, db *sql.DB, gateway SettlementGateway) SettlementService {
	t.Helper()
	poller := NewSettlementPoller(gateway, time.Second, 10, fakeClock{})
	return NewSettlementService(db, gateway, poller, nil, 30*time.Minute)
}

func TestStartSession_RejectsClosedCampaign(t *testing.T) {
	svc := newTestService(t, newTestDB(t), &stubGateway{})

	campaign := testCampaign()
	campaign.Status = "funded"

	_, err := svc.StartSession(1, campaign)
	assert.ErrorIs(t, err, ErrCampaignNotOpen)
}

func TestSetAmount_EnforcesInclusiveBounds(t *testing.T) {
	svc := newTestService(t, newTestDB(t), &stubGateway{})

	testCases := []struct {
		name    string
		amount  float64
		wantErr error
	}{
		{"below minimum", 24.99, ErrAmountOutOfBounds},
		{"at minimum", 25, nil},
		{"at maximum", 5000, nil},
		{"above maximum", 5000.01, ErrAmountOutOfBounds},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Fresh session per case: a successful SetAmount advances the step.
			fresh, err := svc.StartSession(1, testCampaign())
			require.NoError(t, err)

			got, err := svc.SetAmount(1, fresh.ID, tc.amount)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Equal(t, models.StepAmount, got.Step)
				assert.Zero(t, got.Amount)
			} else {
				require.NoError(t, err)
				assert.Equal(t, models.StepConfirm, got.Step)
				assert.Equal(t, tc.amount, got.Amount)
			}
		})
	}
}

func TestSubmit_RequiresRiskAcknowledgement(t *testing.T) {
	svc := newTestService(t, newTestDB(t), &stubGateway{})
	sess, err := svc.StartSession(1, testCampaign())
	require.NoError(t, err)

	_, err = svc.SetAmount(1, sess.ID, 100)
	require.NoError(t, err)

	got, err := svc.Submit(1, sess.ID, "funding-1")
	assert.ErrorIs(t, err, ErrRiskNotAcknowledged)
	assert.Equal(t, models.StepConfirm, got.Step)
}

func TestSubmit_SessionOwnershipEnforced(t *testing.T) {
	svc := newTestService(t, newTestDB(t), &stubGateway{})
	sess, err := svc.StartSession(1, testCampaign())
	require.NoError(t, err)

	_, err = svc.GetSession(2, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSubmit_RejectionMovesToErrorAndMarksLedgerFailed(t *testing.T) {
	db := newTestDB(t)
	gateway := &stubGateway{submitErr: errors.New("settlement gateway: insufficient funds")}
	svc := newTestService(t, db, gateway)

	sess, err := svc.StartSession(1, testCampaign())
	require.NoError(t, err)
	_, err = svc.SetAmount(1, sess.ID, 100)
	require.NoError(t, err)
	_, err = svc.ConfirmRisk(1, sess.ID)
	require.NoError(t, err)

	got, err := svc.Submit(1, sess.ID, "funding-1")
	require.NoError(t, err)
	assert.Equal(t, models.StepError, got.Step)
	assert.Equal(t, models.FailureSubmissionRejected, got.FailureReason)
	assert.Contains(t, got.LastStatus, "insufficient funds")

	inv, err := model.GetInvestmentByID(db, got.InvestmentID)
	require.NoError(t, err)
	assert.Equal(t, models.InvestmentStatusFailed, inv.Status)
}

func TestSubmit_SuccessfulSettlementConfirmsLedger(t *testing.T) {
	db := newTestDB(t)
	gateway := &stubGateway{
		submitResp: &SubmissionResponse{ID: "tx-9", Status: GatewayStatusProcessing},
		scriptedGateway: scriptedGateway{responses: []scriptedResponse{
			{status: &TransactionStatus{Status: GatewayStatusSucceeded, ReceiptRef: "rcpt-9"}},
		}},
	}
	svc := newTestService(t, db, gateway)

	sess, err := svc.StartSession(1, testCampaign())
	require.NoError(t, err)
	_, err = svc.SetAmount(1, sess.ID, 50)
	require.NoError(t, err)
	_, err = svc.ConfirmRisk(1, sess.ID)
	require.NoError(t, err)

	got, err := svc.Submit(1, sess.ID, "funding-1")
	require.NoError(t, err)
	assert.Equal(t, models.StepProcessing, got.Step)

	require.Eventually(t, func() bool {
		current, err := svc.GetSession(1, sess.ID)
		return err == nil && current.Step == models.StepSuccess
	}, 2*time.Second, 10*time.Millisecond)

	final, err := svc.GetSession(1, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "rcpt-9", final.ReceiptRef)

	inv, err := model.GetInvestmentByID(db, final.InvestmentID)
	require.NoError(t, err)
	assert.Equal(t, models.InvestmentStatusConfirmed, inv.Status)
	assert.Equal(t, 50.0, inv.Amount)
	assert.Equal(t, "rcpt-9", inv.ReceiptRef)
	assert.Equal(t, "tx-9", inv.ExternalTransactionRef)
}

func TestSubmit_TimeoutLeavesLedgerProcessing(t *testing.T) {
	db := newTestDB(t)
	gateway := &stubGateway{
		submitResp:      &SubmissionResponse{ID: "tx-5", Status: GatewayStatusProcessing},
		scriptedGateway: scriptedGateway{responses: []scriptedResponse{processingResponse()}},
	}
	svc := newTestService(t, db, gateway)

	sess, err := svc.StartSession(1, testCampaign())
	require.NoError(t, err)
	_, err = svc.SetAmount(1, sess.ID, 50)
	require.NoError(t, err)
	_, err = svc.ConfirmRisk(1, sess.ID)
	require.NoError(t, err)
	_, err = svc.Submit(1, sess.ID, "funding-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		current, err := svc.GetSession(1, sess.ID)
		return err == nil && current.Step == models.StepError
	}, 2*time.Second, 10*time.Millisecond)

	final, err := svc.GetSession(1, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FailureTimeout, final.FailureReason)
	assert.Equal(t, 10, final.PollAttempts)

	// The outcome is indeterminate, so the ledger row is left in processing
	// rather than being marked failed.
	inv, err := model.GetInvestmentByID(db, final.InvestmentID)
	require.NoError(t, err)
	assert.Equal(t, models.InvestmentStatusProcessing, inv.Status)
}

func TestRetry_ResetsSessionAndAppendsNewLedgerRow(t *testing.T) {
	db := newTestDB(t)
	gateway := &stubGateway{submitErr: errors.New("settlement gateway: declined")}
	svc := newTestService(t, db, gateway)

	sess, err := svc.StartSession(1, testCampaign())
	require.NoError(t, err)
	_, err = svc.SetAmount(1, sess.ID, 200)
	require.NoError(t, err)
	_, err = svc.ConfirmRisk(1, sess.ID)
	require.NoError(t, err)
	failed, err := svc.Submit(1, sess.ID, "funding-1")
	require.NoError(t, err)
	require.Equal(t, models.StepError, failed.Step)
	firstInvestmentID := failed.InvestmentID

	retried, err := svc.Retry(1, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepConfirm, retried.Step)
	assert.Equal(t, 200.0, retried.Amount)
	assert.False(t, retried.ConfirmedRisk)
	assert.Empty(t, retried.FailureReason)
	assert.Zero(t, retried.InvestmentID)

	// Second attempt succeeds and gets its own ledger row.
	gateway.submitErr = nil
	gateway.submitResp = &SubmissionResponse{ID: "tx-2", Status: GatewayStatusSucceeded, ReceiptRef: "rcpt-2"}

	_, err = svc.ConfirmRisk(1, sess.ID)
	require.NoError(t, err)
	final, err := svc.Submit(1, sess.ID, "funding-1")
	require.NoError(t, err)
	assert.Equal(t, models.StepSuccess, final.Step)
	assert.NotEqual(t, firstInvestmentID, final.InvestmentID)

	investments, err := model.ListInvestmentsByUser(db, 1)
	require.NoError(t, err)
	require.Len(t, investments, 2)
}

func TestRetry_OnlyValidFromErrorStep(t *testing.T) {
	svc := newTestService(t, newTestDB(t), &stubGateway{})
	sess, err := svc.StartSession(1, testCampaign())
	require.NoError(t, err)

	_, err = svc.Retry(1, sess.ID)
	assert.ErrorIs(t, err, ErrInvalidSessionStep)
}

// gatedGateway blocks every status call until the poll context is cancelled,
// pinning the poller mid-attempt so cancellation can be observed.
type gatedGateway struct {
	mu          sync.Mutex
	submitResp  *SubmissionResponse
	statusCalls int
	aborted     bool
}

func (g *gatedGateway) SubmitInvestment(ctx context.Context, req SubmissionRequest) (*SubmissionResponse, error) {
	return g.submitResp, nil
}

func (g *gatedGateway) GetTransactionStatus(ctx context.Context, transactionRef string) (*TransactionStatus, error) {
	g.mu.Lock()
	g.statusCalls++
	g.mu.Unlock()
	<-ctx.Done()
	g.mu.Lock()
	g.aborted = true
	g.mu.Unlock()
	return nil, ctx.Err()
}

func (g *gatedGateway) snapshot() (calls int, aborted bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusCalls, g.aborted
}

func TestCancelSession_AbortsInFlightPoll(t *testing.T) {
	db := newTestDB(t)
	gateway := &gatedGateway{submitResp: &SubmissionResponse{ID: "tx-4", Status: GatewayStatusProcessing}}
	poller := NewSettlementPoller(gateway, time.Second, 10, fakeClock{})
	svc := NewSettlementService(db, gateway, poller, nil, 30*time.Minute)

	sess, err := svc.StartSession(1, testCampaign())
	require.NoError(t, err)
	_, err = svc.SetAmount(1, sess.ID, 75)
	require.NoError(t, err)
	_, err = svc.ConfirmRisk(1, sess.ID)
	require.NoError(t, err)
	_, err = svc.Submit(1, sess.ID, "funding-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		calls, _ := gateway.snapshot()
		return calls == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, svc.CancelSession(1, sess.ID))

	// The in-flight status call must be torn down, and no new one may start.
	require.Eventually(t, func() bool {
		_, aborted := gateway.snapshot()
		return aborted
	}, 2*time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool {
		calls, _ := gateway.snapshot()
		return calls > 1
	}, 200*time.Millisecond, 20*time.Millisecond)
}

func TestRetry_DiscardsLatePollResult(t *testing.T) {
	db := newTestDB(t)
	gateway := &stubGateway{
		submitResp:      &SubmissionResponse{ID: "tx-3", Status: GatewayStatusProcessing},
		scriptedGateway: scriptedGateway{responses: []scriptedResponse{processingResponse()}},
	}
	// blockedClock parks the real poller so the test controls result delivery.
	poller := NewSettlementPoller(gateway, time.Second, 10, blockedClock{})
	svc := NewSettlementService(db, gateway, poller, nil, 30*time.Minute)
	impl := svc.(*settlementServiceImpl)

	sess, err := svc.StartSession(1, testCampaign())
	require.NoError(t, err)
	_, err = svc.SetAmount(1, sess.ID, 100)
	require.NoError(t, err)
	_, err = svc.ConfirmRisk(1, sess.ID)
	require.NoError(t, err)
	_, err = svc.Submit(1, sess.ID, "funding-1")
	require.NoError(t, err)

	raw, found := impl.sessions.Get(sess.ID)
	require.True(t, found)
	entry := raw.(*sessionEntry)

	// First attempt resolves as a declined payment.
	impl.applyPollResult(sess.ID, entry, 1, PollResult{
		Outcome: PollOutcomeFailed,
		Message: "card declined",
	})

	failed, err := svc.GetSession(1, sess.ID)
	require.NoError(t, err)
	require.Equal(t, models.StepError, failed.Step)
	assert.Equal(t, "card declined", failed.LastStatus)
	firstInvestmentID := failed.InvestmentID

	_, err = svc.Retry(1, sess.ID)
	require.NoError(t, err)

	// A straggler from the superseded attempt must not touch the fresh one.
	impl.applyPollResult(sess.ID, entry, 1, PollResult{
		Outcome: PollOutcomeSucceeded,
		Status:  &TransactionStatus{Status: GatewayStatusSucceeded, ReceiptRef: "rcpt-stale"},
	})

	after, err := svc.GetSession(1, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepConfirm, after.Step)
	assert.Empty(t, after.ReceiptRef)
	assert.Empty(t, after.LastStatus)

	inv, err := model.GetInvestmentByID(db, firstInvestmentID)
	require.NoError(t, err)
	assert.Equal(t, models.InvestmentStatusFailed, inv.Status)
}

func TestCancelSession_RemovesSession(t *testing.T) {
	svc := newTestService(t, newTestDB(t), &stubGateway{})
	sess, err := svc.StartSession(1, testCampaign())
	require.NoError(t, err)

	require.NoError(t, svc.CancelSession(1, sess.ID))

	_, err = svc.GetSession(1, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
