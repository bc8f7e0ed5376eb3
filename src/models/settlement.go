package models

import "time"

// SettlementStep is the state of one in-progress investment attempt.
// "amount" is the initial step; "success" and "error" are terminal.
type SettlementStep string

const (
	StepAmount     SettlementStep = "amount"
	StepConfirm    SettlementStep = "confirm"
	StepProcessing SettlementStep = "processing"
	StepSuccess    SettlementStep = "success"
	StepError      SettlementStep = "error"
)

// Failure reasons recorded on a session that ended in the error step. The
// taxonomy keeps "the gateway said it failed" distinguishable from "we ran
// out of attempts without an answer", even though both surface the same
// retry UI to the user.
const (
	FailureSubmissionRejected = "submission_rejected"
	FailurePaymentFailed      = "payment_failed"
	FailureTimeout            = "timeout"
	FailureStatusUnavailable  = "status_unavailable"
)

// SettlementSession is the transient state of a single investment attempt,
// owned by one user interaction. It is created when the invest flow is opened
// for a campaign and discarded on success, cancellation, or expiry. It owns
// no shared resources beyond its own poll timer.
type SettlementSession struct {
	ID            string         `json:"id"`
	UserID        int64          `json:"user_id"`
	CampaignID    int64          `json:"campaign_id"`
	CampaignSlug  string         `json:"campaign_slug"`
	CompanyName   string         `json:"company_name"`
	MinInvestment float64        `json:"min_investment"`
	MaxInvestment float64        `json:"max_investment"`
	Step          SettlementStep `json:"step"`
	Amount        float64        `json:"amount"`
	ConfirmedRisk bool           `json:"confirmed_risk"`
	PollAttempts  int            `json:"poll_attempts"`
	LastStatus    string         `json:"last_status,omitempty"`
	FailureReason string         `json:"failure_reason,omitempty"`
	ReceiptRef    string         `json:"receipt_ref,omitempty"`
	InvestmentID  int64          `json:"investment_id,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`

	// External transaction reference returned by the settlement gateway for
	// the current attempt. Not exposed to clients.
	TransactionRef string `json:"-"`
}
