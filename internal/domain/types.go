// Package domain holds the grain types shared across forecast components.
// Domain types are pure: no database, logging or transport dependencies.
package domain

// Scenario is one of the three assumption sets applied uniformly across all
// forecast components. Every derived forecast grain must carry exactly one
// row per scenario; a missing scenario row is a hard data-quality failure.
type Scenario string

const (
	ScenarioBase     Scenario = "base"
	ScenarioUpside   Scenario = "upside"
	ScenarioDownside Scenario = "downside"
)

// Scenarios lists all scenarios in canonical order.
var Scenarios = []Scenario{ScenarioBase, ScenarioUpside, ScenarioDownside}

// TrendBucket classifies a customer's usage trajectory from the
// month-over-3-months-ago usage delta.
type TrendBucket string

const (
	TrendGrowing   TrendBucket = "growing"
	TrendFlat      TrendBucket = "flat"
	TrendDeclining TrendBucket = "declining"
)

// BillingFrequency is how a contract line bills; annual amounts are spread
// over twelve monthly revenue records.
type BillingFrequency string

const (
	BillingMonthly BillingFrequency = "monthly"
	BillingAnnual  BillingFrequency = "annual"
)

// ContractStatus is the lifecycle state of a contract line.
type ContractStatus string

const (
	ContractActive      ContractStatus = "active"
	ContractNonRenewing ContractStatus = "non_renewing"
	ContractCancelled   ContractStatus = "cancelled"
)

// OpportunityType partitions pipeline value into forecast components.
type OpportunityType string

const (
	OpportunityNewBiz    OpportunityType = "new_biz"
	OpportunityExpansion OpportunityType = "expansion"
	OpportunityRenewal   OpportunityType = "renewal"
)

// Movement classifies a customer's month-over-month ARR transition in the
// waterfall. FLAT covers equal prior/current and the degenerate both-zero case.
type Movement string

const (
	MovementNew         Movement = "new"
	MovementChurn       Movement = "churn"
	MovementExpansion   Movement = "expansion"
	MovementContraction Movement = "contraction"
	MovementFlat        Movement = "flat"
)

// Dataset names a probability domain governed by champion selection.
type Dataset string

const (
	DatasetRenewals Dataset = "renewals"
	DatasetPipeline Dataset = "pipeline"
)

// Datasets lists all governed datasets in canonical order.
var Datasets = []Dataset{DatasetRenewals, DatasetPipeline}

// CustomerKey identifies a customer within its tenant. Customer ids are
// unique only within a company, so any map spanning companies must carry
// both parts.
type CustomerKey struct {
	CompanyID  string
	CustomerID string
}

// Known customer segments, finest to coarsest pricing tier.
const (
	SegmentEnterprise = "enterprise"
	SegmentLarge      = "large"
	SegmentMedium     = "medium"
	SegmentSMB        = "smb"
)

// SegmentGroup maps a segment to the coarse grouping used for differentiated
// assumptions (slippage offsets, health-score weights). Unknown segments fall
// into the mid-market group, the conservative default.
func SegmentGroup(segment string) string {
	switch segment {
	case SegmentEnterprise, SegmentLarge:
		return "enterprise_large"
	default:
		return "mid_market"
	}
}

// ProbabilitySourceRules and ProbabilitySourceMLPrefix label probability
// provenance so consumers can distinguish a rule-based estimate from a
// learned-model replacement ("ml_<model>").
const (
	ProbabilitySourceRules    = "rules"
	ProbabilitySourceMLPrefix = "ml_"
)
