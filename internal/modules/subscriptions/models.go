// Package subscriptions owns contract lines and the monthly expansion engine
// that turns irregular contract intervals into a regular per-customer monthly
// recurring-revenue ledger.
package subscriptions

import (
	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/pkg/monthly"
)

// ContractLine is one immutable subscription line item. Amendments create new
// lines; old lines are never mutated.
type ContractLine struct {
	CompanyID        string
	ContractID       string
	LineID           string
	CustomerID       string
	ProductID        string
	StartMonth       monthly.Month
	EndMonth         monthly.Month
	BillingFrequency domain.BillingFrequency
	Quantity         float64
	UnitPrice        float64
	DiscountPct      float64
	Status           domain.ContractStatus
}

// MRR returns the monthly recurring revenue for this line: quantity x unit
// price x (1 - discount), spread over twelve months for annual billing.
func (c ContractLine) MRR() float64 {
	gross := c.Quantity * c.UnitPrice * (1 - c.DiscountPct)
	if c.BillingFrequency == domain.BillingAnnual {
		return gross / 12
	}
	return gross
}

// MonthlyRevenue is one derived ledger row: a contract line's MRR in one
// calendar month inside its [start, end] span.
type MonthlyRevenue struct {
	CompanyID  string
	CustomerID string
	ProductID  string
	ContractID string
	LineID     string
	Month      monthly.Month
	MRR        float64
}
