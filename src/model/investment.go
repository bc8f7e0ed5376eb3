package model

import (
	"database/sql"
	"errors"
	"time"

	"github.com/username/crowdvest/backend/src/models"
)

var ErrInvestmentNotFound = errors.New("investment not found")

const investmentColumns = `id, user_id, campaign_id, amount, status, external_transaction_ref, receipt_ref, created_at, updated_at`

// CreateInvestment appends one attempt to the investment ledger. Rows are
// never deleted; the settlement flow advances the status afterwards via
// UpdateInvestmentStatus.
func CreateInvestment(db *sql.DB, inv *models.InvestmentRecord) error {
	now := time.Now()
	inv.CreatedAt = now
	inv.UpdatedAt = now
	if inv.Status == "" {
		inv.Status = models.InvestmentStatusInitiated
	}

	res, err := db.Exec(`
	INSERT INTO investments (user_id, campaign_id, amount, status, external_transaction_ref, receipt_ref, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.UserID, inv.CampaignID, inv.Amount, string(inv.Status),
		inv.ExternalTransactionRef, inv.ReceiptRef, inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	inv.ID = id
	return nil
}

// UpdateInvestmentStatus advances a ledger entry. The external reference and
// receipt are only overwritten when non-empty, so a timeout that leaves the
// outcome indeterminate does not erase what the gateway already told us.
func UpdateInvestmentStatus(db *sql.DB, id int64, status models.InvestmentStatus, externalRef, receiptRef string) error {
	res, err := db.Exec(`
		UPDATE investments
		SET status = ?,
		    external_transaction_ref = CASE WHEN ? != '' THEN ? ELSE external_transaction_ref END,
		    receipt_ref = CASE WHEN ? != '' THEN ? ELSE receipt_ref END,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		string(status), externalRef, externalRef, receiptRef, receiptRef, id,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInvestmentNotFound
	}
	return nil
}

func scanInvestment(rows *sql.Rows) (models.InvestmentRecord, error) {
	var inv models.InvestmentRecord
	var status string
	var externalRef, receiptRef sql.NullString
	err := rows.Scan(
		&inv.ID, &inv.UserID, &inv.CampaignID, &inv.Amount, &status,
		&externalRef, &receiptRef, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return inv, err
	}
	inv.Status = models.InvestmentStatus(status)
	inv.ExternalTransactionRef = externalRef.String
	inv.ReceiptRef = receiptRef.String
	return inv, nil
}

func GetInvestmentByID(db *sql.DB, id int64) (*models.InvestmentRecord, error) {
	rows, err := db.Query(`SELECT `+investmentColumns+` FROM investments WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrInvestmentNotFound
	}
	inv, err := scanInvestment(rows)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// ListInvestmentsByUser returns the user's full ledger, newest first.
func ListInvestmentsByUser(db *sql.DB, userID int64) ([]models.InvestmentRecord, error) {
	rows, err := db.Query(`
		SELECT `+investmentColumns+` FROM investments
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var investments []models.InvestmentRecord
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, err
		}
		investments = append(investments, inv)
	}
	return investments, rows.Err()
}

// CreatePayout records a distribution event. Payouts come from the external
// settlement side; this backend never mutates them after insertion.
func CreatePayout(db *sql.DB, p *models.PayoutRecord) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	var campaignID, investmentID interface{}
	if p.CampaignID != 0 {
		campaignID = p.CampaignID
	}
	if p.InvestmentID != 0 {
		investmentID = p.InvestmentID
	}

	res, err := db.Exec(`
	INSERT INTO payouts (user_id, campaign_id, investment_id, amount, description, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`,
		p.UserID, campaignID, investmentID, p.Amount, p.Description, p.CreatedAt,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

// ListPayoutsByUser returns the user's payout ledger, newest first.
func ListPayoutsByUser(db *sql.DB, userID int64) ([]models.PayoutRecord, error) {
	rows, err := db.Query(`
		SELECT id, user_id, campaign_id, investment_id, amount, description, created_at
		FROM payouts
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []models.PayoutRecord
	for rows.Next() {
		var p models.PayoutRecord
		var campaignID, investmentID sql.NullInt64
		var description sql.NullString
		if err := rows.Scan(
			&p.ID, &p.UserID, &campaignID, &investmentID,
			&p.Amount, &description, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		p.CampaignID = campaignID.Int64
		p.InvestmentID = investmentID.Int64
		p.Description = description.String
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}
