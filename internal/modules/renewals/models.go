// Package renewals estimates the probability that each customer renews at its
// earliest unresolved renewal month, per scenario, from the segment baseline
// adjusted by health and trend signals or replaced by the champion model.
package renewals

import (
	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/pkg/monthly"
)

// Probability is one derived renewal-probability row.
type Probability struct {
	CompanyID    string
	CustomerID   string
	RenewalMonth monthly.Month
	Scenario     domain.Scenario
	Segment      string
	Probability  float64
	Source       string // "rules" or "ml_<model>"
	RenewalMRR   float64
}

// Candidate is one customer due for renewal: the earliest unresolved renewal
// month across the customer's contracts, with the MRR at stake.
type Candidate struct {
	CompanyID    string
	CustomerID   string
	Segment      string
	RenewalMonth monthly.Month
	RenewalMRR   float64
}
