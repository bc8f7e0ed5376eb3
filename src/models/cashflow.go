package models

import "time"

// CashFlow is a signed, dated amount used for rate-of-return calculations.
// Outflows (capital committed to a campaign) are negative; inflows (payouts
// received from exits or distributions) are positive. A meaningful IRR needs
// at least one flow of each sign.
type CashFlow struct {
	Amount float64   `json:"amount"`
	Date   time.Time `json:"date"`
}
