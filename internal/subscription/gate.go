package subscription

import (
	"context"
	"errors"
)

// ErrQuotaExceeded is a soft denial: the caller should surface an upgrade
// prompt, not treat it as a system failure.
var ErrQuotaExceeded = errors.New("plan quota exceeded")

// Gate authorizes operations against plan-derived limits. Plan definitions
// are a fixed injected table; usage counters are owned by the account and
// only read here.
type Gate struct {
	table Table
}

// NewGate builds a gate over the provided table. A nil table falls back to
// the published defaults.
func NewGate(table Table) *Gate {
	if table == nil {
		table = DefaultTable()
	}
	return &Gate{table: table}
}

// Limits returns the limit set for the plan. Unknown plans resolve to the
// free tier so the gate fails closed rather than open.
func (g *Gate) Limits(plan Plan) Limits {
	if l, ok := g.table[plan]; ok {
		return l
	}
	return g.table[PlanFree]
}

// CanUseFeature reports whether the plan grants the feature at all.
// Boolean features return their flag; numeric features return true when
// unlimited or positive.
func (g *Gate) CanUseFeature(plan Plan, feature string) bool {
	l := g.Limits(plan)
	switch feature {
	case FeatureTemplates:
		return l.Templates
	case FeaturePDFExport:
		return l.PDFExport
	case FeatureSignatures:
		return l.Signatures
	case FeatureAnalytics:
		return l.Analytics
	case FeatureContractsPerMonth:
		return numericGranted(l.ContractsPerMonth)
	case FeatureCastingsPerMonth:
		return numericGranted(l.CastingsPerMonth)
	case FeatureSelfTapesPerMonth:
		return numericGranted(l.SelfTapesPerMonth)
	case FeatureTeamMembers:
		return numericGranted(l.TeamMembers)
	case FeatureStorageGB:
		return numericGranted(l.StorageGB)
	}
	return false
}

// CheckUsageLimit reports whether one more use of the counter is allowed
// given the usage already consumed this period.
func (g *Gate) CheckUsageLimit(plan Plan, counter string, usedThisPeriod int) bool {
	l := g.Limits(plan)
	var limit int
	switch counter {
	case FeatureContractsPerMonth:
		limit = l.ContractsPerMonth
	case FeatureCastingsPerMonth:
		limit = l.CastingsPerMonth
	case FeatureSelfTapesPerMonth:
		limit = l.SelfTapesPerMonth
	default:
		return false
	}
	if limit == Unlimited {
		return true
	}
	return usedThisPeriod < limit
}

// Usage holds an account's current-period counters. Period resets are the
// billing collaborator's responsibility.
type Usage struct {
	ContractsCreated   int `json:"contracts_created"`
	CastingSubmissions int `json:"casting_submissions"`
	SelfTapes          int `json:"self_tapes"`
}

// UsageReader resolves current-period usage for an account.
type UsageReader interface {
	Usage(ctx context.Context, accountID string) (Usage, error)
}

// PlanFunc resolves the account's plan, typically from verified claims.
type PlanFunc func(ctx context.Context, accountID string) Plan

// Authorizer binds the gate, a usage source and a plan resolver into the
// narrow check the contract engine consults before creating drafts.
type Authorizer struct {
	Gate  *Gate
	Usage UsageReader
	Plan  PlanFunc
}

// AuthorizeContractCreate denies with ErrQuotaExceeded when the producer's
// plan has exhausted its monthly contract allowance.
func (a *Authorizer) AuthorizeContractCreate(ctx context.Context, producerID string) error {
	if a == nil || a.Gate == nil {
		return nil
	}
	plan := PlanFree
	if a.Plan != nil {
		plan = a.Plan(ctx, producerID)
	}
	used := 0
	if a.Usage != nil {
		u, err := a.Usage.Usage(ctx, producerID)
		if err != nil {
			return err
		}
		used = u.ContractsCreated
	}
	if !a.Gate.CheckUsageLimit(plan, FeatureContractsPerMonth, used) {
		return ErrQuotaExceeded
	}
	return nil
}

func numericGranted(limit int) bool {
	return limit == Unlimited || limit > 0
}
