// Package health computes the 1-10 customer health score per customer-month
// from weighted usage, CRM and trend signals.
package health

import (
	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/pkg/monthly"
)

// UsageRow is one month of product usage for a customer.
type UsageRow struct {
	CompanyID   string
	CustomerID  string
	Month       monthly.Month
	UsageCount  float64
	ActiveUsers float64
}

// UsagePerUser returns usage normalized by active users; zero users means
// zero normalized usage, not a division error.
func (u UsageRow) UsagePerUser() float64 {
	if u.ActiveUsers <= 0 {
		return 0
	}
	return u.UsageCount / u.ActiveUsers
}

// Customer carries the master-data attributes the scorer needs.
type Customer struct {
	CompanyID  string
	CustomerID string
	Name       string
	Segment    string
	CRMHealth  *float64 // 0-10 CRM health input; nil when not captured
}

// Record is one derived customer-health row, append-only per month.
type Record struct {
	CompanyID    string
	CustomerID   string
	Month        monthly.Month
	HealthScore  int // 1-10
	CRMScore     float64
	UsageScore   float64
	TrendScore   float64
	UsagePerUser float64
	Trend        domain.TrendBucket
}
