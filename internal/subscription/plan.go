package subscription

import (
	"errors"
	"strings"
)

// Plan is a subscription tier.
type Plan string

const (
	PlanFree   Plan = "free"
	PlanPro    Plan = "pro"
	PlanStudio Plan = "studio"
)

// Unlimited marks a numeric limit that is never denied.
const Unlimited = -1

// ErrUnknownPlan indicates a plan name outside the fixed tier set.
var ErrUnknownPlan = errors.New("unknown plan")

// ParsePlan normalizes a plan name. Empty input maps to the free tier.
func ParsePlan(raw string) (Plan, error) {
	switch Plan(strings.TrimSpace(strings.ToLower(raw))) {
	case "":
		return PlanFree, nil
	case PlanFree:
		return PlanFree, nil
	case PlanPro:
		return PlanPro, nil
	case PlanStudio:
		return PlanStudio, nil
	}
	return "", ErrUnknownPlan
}

// Feature and counter names used in limit lookups.
const (
	FeatureContractsPerMonth = "contractsPerMonth"
	FeatureCastingsPerMonth  = "castingsPerMonth"
	FeatureSelfTapesPerMonth = "selfTapesPerMonth"
	FeatureTemplates         = "templates"
	FeaturePDFExport         = "pdfExport"
	FeatureSignatures        = "signatures"
	FeatureAnalytics         = "analytics"
	FeatureTeamMembers       = "teamMembers"
	FeatureStorageGB         = "storageGB"
)

// Limits holds the per-plan feature flags and usage ceilings.
// Numeric fields use Unlimited (-1) for "never denied".
type Limits struct {
	ContractsPerMonth int  `json:"contractsPerMonth"`
	CastingsPerMonth  int  `json:"castingsPerMonth"`
	SelfTapesPerMonth int  `json:"selfTapesPerMonth"`
	Templates         bool `json:"templates"`
	PDFExport         bool `json:"pdfExport"`
	Signatures        bool `json:"signatures"`
	Analytics         bool `json:"analytics"`
	TeamMembers       int  `json:"teamMembers"`
	StorageGB         int  `json:"storageGB"`
}

// Table maps plans to their limits. It is injected configuration, not a
// compiled-in constant; DefaultTable reproduces the published tiers.
type Table map[Plan]Limits

// DefaultTable returns the published free/pro/studio limits.
func DefaultTable() Table {
	return Table{
		PlanFree: {
			ContractsPerMonth: 3,
			CastingsPerMonth:  2,
			SelfTapesPerMonth: 5,
			Templates:         false,
			PDFExport:         false,
			Signatures:        false,
			Analytics:         false,
			TeamMembers:       1,
			StorageGB:         1,
		},
		PlanPro: {
			ContractsPerMonth: Unlimited,
			CastingsPerMonth:  Unlimited,
			SelfTapesPerMonth: Unlimited,
			Templates:         true,
			PDFExport:         true,
			Signatures:        true,
			Analytics:         true,
			TeamMembers:       3,
			StorageGB:         25,
		},
		PlanStudio: {
			ContractsPerMonth: Unlimited,
			CastingsPerMonth:  Unlimited,
			SelfTapesPerMonth: Unlimited,
			Templates:         true,
			PDFExport:         true,
			Signatures:        true,
			Analytics:         true,
			TeamMembers:       10,
			StorageGB:         100,
		},
	}
}
