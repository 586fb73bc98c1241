package health

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/pkg/monthly"
)

// Repository reads usage and customer master data from facts.db and rebuilds
// customer_health in forecast.db.
type Repository struct {
	factsDB    *sql.DB
	forecastDB *sql.DB
	log        zerolog.Logger
}

// NewRepository creates a new health repository
func NewRepository(factsDB, forecastDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		factsDB:    factsDB,
		forecastDB: forecastDB,
		log:        log.With().Str("repo", "health").Logger(),
	}
}

// GetUsage returns all monthly usage rows ordered deterministically.
func (r *Repository) GetUsage() ([]UsageRow, error) {
	rows, err := r.factsDB.Query(`
		SELECT company_id, customer_id, month, usage_count, active_users
		FROM usage_monthly
		ORDER BY company_id, customer_id, month`)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}
	defer rows.Close()

	var usage []UsageRow
	for rows.Next() {
		var u UsageRow
		var month string
		if err := rows.Scan(&u.CompanyID, &u.CustomerID, &month, &u.UsageCount, &u.ActiveUsers); err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", err)
		}
		if u.Month, err = monthly.Parse(month); err != nil {
			return nil, err
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}

// GetCustomers returns all customer master rows.
func (r *Repository) GetCustomers() ([]Customer, error) {
	rows, err := r.factsDB.Query(`
		SELECT company_id, customer_id, customer_name, segment, crm_health_input
		FROM customers
		ORDER BY company_id, customer_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		var c Customer
		var crm sql.NullFloat64
		if err := rows.Scan(&c.CompanyID, &c.CustomerID, &c.Name, &c.Segment, &crm); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		if crm.Valid {
			v := crm.Float64
			c.CRMHealth = &v
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// ReplaceRecords rebuilds customer_health inside tx.
func (r *Repository) ReplaceRecords(tx *sql.Tx, records []Record) error {
	if _, err := tx.Exec(`DELETE FROM customer_health`); err != nil {
		return fmt.Errorf("failed to clear customer_health: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO customer_health
			(company_id, customer_id, month, health_score, crm_score, usage_score,
			 trend_score, usage_per_user, trend_bucket)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare customer_health insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.Exec(rec.CompanyID, rec.CustomerID, rec.Month.String(),
			rec.HealthScore, rec.CRMScore, rec.UsageScore, rec.TrendScore,
			rec.UsagePerUser, string(rec.Trend)); err != nil {
			return fmt.Errorf("failed to insert customer_health row: %w", err)
		}
	}

	r.log.Debug().Int("rows", len(records)).Msg("Customer health replaced")
	return nil
}

// GetRecords returns all derived health records.
func (r *Repository) GetRecords() ([]Record, error) {
	rows, err := r.forecastDB.Query(`
		SELECT company_id, customer_id, month, health_score, crm_score,
			usage_score, trend_score, usage_per_user, trend_bucket
		FROM customer_health
		ORDER BY company_id, customer_id, month`)
	if err != nil {
		return nil, fmt.Errorf("failed to query customer_health: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var month, trend string
		if err := rows.Scan(&rec.CompanyID, &rec.CustomerID, &month, &rec.HealthScore,
			&rec.CRMScore, &rec.UsageScore, &rec.TrendScore, &rec.UsagePerUser, &trend); err != nil {
			return nil, fmt.Errorf("failed to scan customer_health row: %w", err)
		}
		if rec.Month, err = monthly.Parse(month); err != nil {
			return nil, err
		}
		rec.Trend = domain.TrendBucket(trend)
		records = append(records, rec)
	}
	return records, rows.Err()
}
