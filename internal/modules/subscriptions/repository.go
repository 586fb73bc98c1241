package subscriptions

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/pkg/monthly"
)

// Repository reads contract lines from facts.db and rebuilds the monthly
// revenue ledger in forecast.db.
type Repository struct {
	factsDB    *sql.DB
	forecastDB *sql.DB
	log        zerolog.Logger
}

// NewRepository creates a new subscriptions repository
func NewRepository(factsDB, forecastDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		factsDB:    factsDB,
		forecastDB: forecastDB,
		log:        log.With().Str("repo", "subscriptions").Logger(),
	}
}

// GetContractLines returns all contract lines ordered deterministically.
func (r *Repository) GetContractLines() ([]ContractLine, error) {
	rows, err := r.factsDB.Query(`
		SELECT company_id, contract_id, line_id, customer_id, product_id,
			contract_start_date, contract_end_date, billing_frequency,
			quantity, unit_price, discount_pct, status
		FROM subscription_line_items
		ORDER BY company_id, contract_id, line_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query contract lines: %w", err)
	}
	defer rows.Close()

	var lines []ContractLine
	for rows.Next() {
		var line ContractLine
		var start, end, freq, status string
		if err := rows.Scan(&line.CompanyID, &line.ContractID, &line.LineID,
			&line.CustomerID, &line.ProductID, &start, &end, &freq,
			&line.Quantity, &line.UnitPrice, &line.DiscountPct, &status); err != nil {
			return nil, fmt.Errorf("failed to scan contract line: %w", err)
		}
		if line.StartMonth, err = monthly.Parse(start); err != nil {
			return nil, fmt.Errorf("contract %s/%s: %w", line.ContractID, line.LineID, err)
		}
		if line.EndMonth, err = monthly.Parse(end); err != nil {
			return nil, fmt.Errorf("contract %s/%s: %w", line.ContractID, line.LineID, err)
		}
		line.BillingFrequency = domain.BillingFrequency(freq)
		line.Status = domain.ContractStatus(status)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// ReplaceMonthlyRevenue rebuilds the monthly_revenue ledger inside tx.
func (r *Repository) ReplaceMonthlyRevenue(tx *sql.Tx, records []MonthlyRevenue) error {
	if _, err := tx.Exec(`DELETE FROM monthly_revenue`); err != nil {
		return fmt.Errorf("failed to clear monthly_revenue: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO monthly_revenue
			(company_id, customer_id, product_id, contract_id, line_id, month, mrr)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare monthly_revenue insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.Exec(rec.CompanyID, rec.CustomerID, rec.ProductID,
			rec.ContractID, rec.LineID, rec.Month.String(), rec.MRR); err != nil {
			return fmt.Errorf("failed to insert monthly_revenue row: %w", err)
		}
	}

	r.log.Debug().Int("rows", len(records)).Msg("Monthly revenue ledger replaced")
	return nil
}

// CustomerMRR is the per-customer-month total used by downstream components.
type CustomerMRR struct {
	CompanyID  string
	CustomerID string
	Month      monthly.Month
	MRR        float64
}

// GetCustomerMRR returns the ledger summed to customer-month grain.
func (r *Repository) GetCustomerMRR() ([]CustomerMRR, error) {
	rows, err := r.forecastDB.Query(`
		SELECT company_id, customer_id, month, sum(mrr)
		FROM monthly_revenue
		GROUP BY company_id, customer_id, month
		ORDER BY company_id, customer_id, month`)
	if err != nil {
		return nil, fmt.Errorf("failed to query customer MRR: %w", err)
	}
	defer rows.Close()

	var out []CustomerMRR
	for rows.Next() {
		var c CustomerMRR
		var month string
		if err := rows.Scan(&c.CompanyID, &c.CustomerID, &month, &c.MRR); err != nil {
			return nil, fmt.Errorf("failed to scan customer MRR: %w", err)
		}
		if c.Month, err = monthly.Parse(month); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
