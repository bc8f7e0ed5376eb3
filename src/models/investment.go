package models

import "time"

// InvestmentStatus is the lifecycle state of one investment ledger entry.
// "initiated" and "processing" are transient; "confirmed" and "failed" are
// terminal. Entries are never deleted — a failed attempt stays on the ledger.
type InvestmentStatus string

const (
	InvestmentStatusInitiated  InvestmentStatus = "initiated"
	InvestmentStatusProcessing InvestmentStatus = "processing"
	InvestmentStatusConfirmed  InvestmentStatus = "confirmed"
	InvestmentStatusFailed     InvestmentStatus = "failed"
)

// IsTerminal reports whether the status can no longer change.
func (s InvestmentStatus) IsTerminal() bool {
	return s == InvestmentStatusConfirmed || s == InvestmentStatusFailed
}

// InvestmentRecord is one row of the append-only investment ledger. It is
// created when a user submits an investment attempt and only the settlement
// flow advances its status afterwards.
type InvestmentRecord struct {
	ID                     int64            `json:"id"`
	UserID                 int64            `json:"user_id"`
	CampaignID             int64            `json:"campaign_id"`
	Amount                 float64          `json:"amount"`
	Status                 InvestmentStatus `json:"status"`
	ExternalTransactionRef string           `json:"external_transaction_ref,omitempty"`
	ReceiptRef             string           `json:"receipt_ref,omitempty"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
}

// PayoutRecord is a distribution or exit payment received by a user. Payouts
// are produced by the settlement side of the platform and consumed read-only
// here; CampaignID may be zero when the upstream event only referenced the
// originating investment.
type PayoutRecord struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	CampaignID   int64     `json:"campaign_id,omitempty"`
	InvestmentID int64     `json:"investment_id,omitempty"`
	Amount       float64   `json:"amount"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
