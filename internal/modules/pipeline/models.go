// Package pipeline values open opportunities: stage-based close probabilities
// per scenario, expected value, and slippage-adjusted revenue timing.
package pipeline

import (
	"github.com/mhalford/revcast/internal/domain"
	"github.com/mhalford/revcast/pkg/monthly"
)

// Closed stages carry no close probability and are excluded from valuation.
const (
	StageClosedWon  = "closed_won"
	StageClosedLost = "closed_lost"
)

// Opportunity is the latest snapshot of one pipeline opportunity.
type Opportunity struct {
	CompanyID          string
	OpportunityID      string
	SnapshotDate       string
	CustomerID         *string // nil for net-new prospects
	Segment            string
	Stage              string
	Amount             float64
	ExpectedCloseMonth monthly.Month
	Type               domain.OpportunityType
}

// Open reports whether the opportunity is still in flight.
func (o Opportunity) Open() bool {
	return o.Stage != StageClosedWon && o.Stage != StageClosedLost
}

// Valuation is one derived pipeline-valuation row per opportunity and scenario.
type Valuation struct {
	CompanyID          string
	OpportunityID      string
	Scenario           domain.Scenario
	CustomerID         *string
	Segment            string
	Stage              string
	Type               domain.OpportunityType
	Amount             float64
	CloseProbability   float64
	ExpectedValue      float64
	Source             string
	ExpectedCloseMonth monthly.Month
	ExpectedStartMonth monthly.Month // close month shifted by slippage
}
