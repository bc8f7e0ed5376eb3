package model

import (
	"database/sql"
	"errors"
	"time"
)

// Campaign is the fundraising campaign metadata consumed by the invest flow:
// investment bounds for validation and company naming for display. Campaign
// content (pitch pages, media) is managed elsewhere.
type Campaign struct {
	ID                     int64     `json:"id"`
	Slug                   string    `json:"slug"`
	CompanyName            string    `json:"company_name"`
	Summary                string    `json:"summary,omitempty"`
	InstrumentType         string    `json:"instrument_type"` // e.g. "SAFE", "equity"
	MinInvestment          float64   `json:"min_investment"`
	MaxInvestmentPerPerson float64   `json:"max_investment_per_person"`
	TargetAmount           float64   `json:"target_amount"`
	Status                 string    `json:"status"` // "active", "closed", "funded"
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`

	// AmountRaised is derived from confirmed investments, not stored.
	AmountRaised float64 `json:"amount_raised"`
}

var ErrCampaignNotFound = errors.New("campaign not found")

const campaignColumns = `id, slug, company_name, summary, instrument_type, min_investment, max_investment_per_person, target_amount, status, created_at, updated_at`

func scanCampaignRow(row *sql.Row) (*Campaign, error) {
	var c Campaign
	var summary sql.NullString
	err := row.Scan(
		&c.ID, &c.Slug, &c.CompanyName, &summary, &c.InstrumentType,
		&c.MinInvestment, &c.MaxInvestmentPerPerson, &c.TargetAmount,
		&c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}
	c.Summary = summary.String
	return &c, nil
}

func GetCampaignByID(db *sql.DB, id int64) (*Campaign, error) {
	row := db.QueryRow(`SELECT `+campaignColumns+` FROM campaigns WHERE id = ?`, id)
	return scanCampaignRow(row)
}

func GetCampaignBySlug(db *sql.DB, slug string) (*Campaign, error) {
	row := db.QueryRow(`SELECT `+campaignColumns+` FROM campaigns WHERE slug = ?`, slug)
	return scanCampaignRow(row)
}

// ListCampaigns returns campaigns filtered by status ("" for all), newest first.
func ListCampaigns(db *sql.DB, status string) ([]Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []Campaign
	for rows.Next() {
		var c Campaign
		var summary sql.NullString
		if err := rows.Scan(
			&c.ID, &c.Slug, &c.CompanyName, &summary, &c.InstrumentType,
			&c.MinInvestment, &c.MaxInvestmentPerPerson, &c.TargetAmount,
			&c.Status, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		c.Summary = summary.String
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// CreateCampaign inserts a campaign row. Used by fixtures and admin tooling.
func CreateCampaign(db *sql.DB, c *Campaign) error {
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = "active"
	}

	res, err := db.Exec(`
	INSERT INTO campaigns (slug, company_name, summary, instrument_type, min_investment, max_investment_per_person, target_amount, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Slug, c.CompanyName, c.Summary, c.InstrumentType,
		c.MinInvestment, c.MaxInvestmentPerPerson, c.TargetAmount,
		c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

// GetCampaignAmountRaised sums confirmed investment amounts for a campaign.
func GetCampaignAmountRaised(db *sql.DB, campaignID int64) (float64, error) {
	var raised sql.NullFloat64
	err := db.QueryRow(`
		SELECT SUM(amount) FROM investments
		WHERE campaign_id = ? AND status = 'confirmed'`, campaignID).Scan(&raised)
	if err != nil {
		return 0, err
	}
	return raised.Float64, nil
}
