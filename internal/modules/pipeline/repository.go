package pipeline

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/pkg/monthly"
)

// Repository reads pipeline snapshots from facts.db and rebuilds
// pipeline_valuations in forecast.db.
type Repository struct {
	factsDB    *sql.DB
	forecastDB *sql.DB
	log        zerolog.Logger
}

// NewRepository creates a new pipeline repository
func NewRepository(factsDB, forecastDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		factsDB:    factsDB,
		forecastDB: forecastDB,
		log:        log.With().Str("repo", "pipeline").Logger(),
	}
}

// GetLatestOpportunities returns the most recent snapshot per opportunity.
// The snapshot series is append-only; valuation and timing must only ever see
// one row per opportunity or historical snapshots would be double counted.
func (r *Repository) GetLatestOpportunities() ([]Opportunity, error) {
	rows, err := r.factsDB.Query(`
		SELECT company_id, snapshot_date, opportunity_id, customer_id, segment,
			stage, amount, expected_close_date, opportunity_type
		FROM pipeline_opportunities_snapshot p
		WHERE snapshot_date = (
			SELECT max(snapshot_date)
			FROM pipeline_opportunities_snapshot
			WHERE company_id = p.company_id AND opportunity_id = p.opportunity_id)
		ORDER BY company_id, opportunity_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pipeline snapshots: %w", err)
	}
	defer rows.Close()

	var out []Opportunity
	for rows.Next() {
		var o Opportunity
		var customer sql.NullString
		var closeDate, oppType string
		if err := rows.Scan(&o.CompanyID, &o.SnapshotDate, &o.OpportunityID,
			&customer, &o.Segment, &o.Stage, &o.Amount, &closeDate, &oppType); err != nil {
			return nil, fmt.Errorf("failed to scan pipeline snapshot: %w", err)
		}
		if customer.Valid {
			o.CustomerID = &customer.String
		}
		if o.ExpectedCloseMonth, err = monthly.Parse(closeDate); err != nil {
			return nil, fmt.Errorf("opportunity %s: %w", o.OpportunityID, err)
		}
		o.Type = domain.OpportunityType(oppType)
		out = append(out, o)
	}
	return out, rows.Err()
}

// GetSnapshotHistory returns the full append-only snapshot series in
// chronological order per opportunity, for historical outcome evaluation.
func (r *Repository) GetSnapshotHistory() ([]Opportunity, error) {
	rows, err := r.factsDB.Query(`
		SELECT company_id, snapshot_date, opportunity_id, customer_id, segment,
			stage, amount, expected_close_date, opportunity_type
		FROM pipeline_opportunities_snapshot
		ORDER BY company_id, opportunity_id, snapshot_date`)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot history: %w", err)
	}
	defer rows.Close()

	var out []Opportunity
	for rows.Next() {
		var o Opportunity
		var customer sql.NullString
		var closeDate, oppType string
		if err := rows.Scan(&o.CompanyID, &o.SnapshotDate, &o.OpportunityID,
			&customer, &o.Segment, &o.Stage, &o.Amount, &closeDate, &oppType); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot history: %w", err)
		}
		if customer.Valid {
			o.CustomerID = &customer.String
		}
		if o.ExpectedCloseMonth, err = monthly.Parse(closeDate); err != nil {
			return nil, fmt.Errorf("opportunity %s: %w", o.OpportunityID, err)
		}
		o.Type = domain.OpportunityType(oppType)
		out = append(out, o)
	}
	return out, rows.Err()
}

// ReplaceValuations rebuilds the pipeline_valuations table inside tx.
func (r *Repository) ReplaceValuations(tx *sql.Tx, vals []Valuation) error {
	if _, err := tx.Exec(`DELETE FROM pipeline_valuations`); err != nil {
		return fmt.Errorf("failed to clear pipeline_valuations: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO pipeline_valuations
			(company_id, opportunity_id, scenario, customer_id, segment, stage,
			 opportunity_type, amount, close_probability, expected_value, source,
			 expected_close_month, expected_start_month)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare pipeline_valuations insert: %w", err)
	}
	defer stmt.Close()

	for _, v := range vals {
		var customer interface{}
		if v.CustomerID != nil {
			customer = *v.CustomerID
		}
		if _, err := stmt.Exec(v.CompanyID, v.OpportunityID, string(v.Scenario),
			customer, v.Segment, v.Stage, string(v.Type), v.Amount,
			v.CloseProbability, v.ExpectedValue, v.Source,
			v.ExpectedCloseMonth.String(), v.ExpectedStartMonth.String()); err != nil {
			return fmt.Errorf("failed to insert pipeline valuation: %w", err)
		}
	}

	r.log.Debug().Int("rows", len(vals)).Msg("Pipeline valuations replaced")
	return nil
}

// GetValuations returns all valuation rows ordered deterministically.
func (r *Repository) GetValuations() ([]Valuation, error) {
	rows, err := r.forecastDB.Query(`
		SELECT company_id, opportunity_id, scenario, customer_id, segment, stage,
			opportunity_type, amount, close_probability, expected_value, source,
			expected_close_month, expected_start_month
		FROM pipeline_valuations
		ORDER BY company_id, opportunity_id, scenario`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pipeline valuations: %w", err)
	}
	defer rows.Close()

	var out []Valuation
	for rows.Next() {
		var v Valuation
		var customer sql.NullString
		var scenario, oppType, closeMonth, startMonth string
		if err := rows.Scan(&v.CompanyID, &v.OpportunityID, &scenario, &customer,
			&v.Segment, &v.Stage, &oppType, &v.Amount, &v.CloseProbability,
			&v.ExpectedValue, &v.Source, &closeMonth, &startMonth); err != nil {
			return nil, fmt.Errorf("failed to scan pipeline valuation: %w", err)
		}
		if customer.Valid {
			v.CustomerID = &customer.String
		}
		v.Scenario = domain.Scenario(scenario)
		v.Type = domain.OpportunityType(oppType)
		if v.ExpectedCloseMonth, err = monthly.Parse(closeMonth); err != nil {
			return nil, err
		}
		if v.ExpectedStartMonth, err = monthly.Parse(startMonth); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
