// Package waterfall builds the ARR bridge: month-over-month movement
// classification at customer grain, segment-level rollups per scenario, and
// the reconciliation checks that prove the bridge balances.
package waterfall

import (
	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/pkg/monthly"
)

// Movement bases. Full means customer-grain classification; net means the
// delta was attributed wholesale to new or churn (non-base scenarios, which
// have no customer-level decomposition).
const (
	BasisFull = "full"
	BasisNet  = "net"
)

// Tolerance is the reconciliation identity tolerance in currency units.
const Tolerance = 0.01

// Row is one ARR waterfall rollup at (company, month, segment, scenario).
type Row struct {
	CompanyID      string
	Month          monthly.Month
	Segment        string
	Scenario       domain.Scenario
	StartingARR    float64
	NewARR         float64
	ExpansionARR   float64
	ContractionARR float64
	ChurnARR       float64
	EndingARR      float64
	MovementBasis  string
}

// Check is one reconciliation check for a waterfall grain.
type Check struct {
	CompanyID string
	Month     monthly.Month
	Segment   string
	Scenario  domain.Scenario
	Expected  float64 // starting + new + expansion - contraction - churn
	Actual    float64 // ending
	Residual  float64
	OK        bool
}

// CustomerMovement is one customer's month-over-month ARR transition, the
// unit the base-scenario rollup and the ARR movers mart are built from.
type CustomerMovement struct {
	CompanyID  string
	CustomerID string
	Month      monthly.Month
	Segment    string
	PriorARR   float64
	CurrentARR float64
	Movement   domain.Movement
}
