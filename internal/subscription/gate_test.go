package subscription

import (
	"context"
	"testing"
)

func TestPlanTableValues(t *testing.T) {
	table := DefaultTable()

	free := table[PlanFree]
	if free.ContractsPerMonth != 3 || free.CastingsPerMonth != 2 || free.SelfTapesPerMonth != 5 {
		t.Fatalf("unexpected free counters: %+v", free)
	}
	if free.Templates || free.PDFExport || free.Signatures || free.Analytics {
		t.Fatalf("free tier must not grant boolean features: %+v", free)
	}
	if free.TeamMembers != 1 || free.StorageGB != 1 {
		t.Fatalf("unexpected free team/storage: %+v", free)
	}

	pro := table[PlanPro]
	if pro.ContractsPerMonth != Unlimited || pro.CastingsPerMonth != Unlimited || pro.SelfTapesPerMonth != Unlimited {
		t.Fatalf("pro counters must be unlimited: %+v", pro)
	}
	if !pro.Templates || !pro.PDFExport || !pro.Signatures || !pro.Analytics {
		t.Fatalf("pro tier must grant boolean features: %+v", pro)
	}
	if pro.TeamMembers != 3 || pro.StorageGB != 25 {
		t.Fatalf("unexpected pro team/storage: %+v", pro)
	}

	studio := table[PlanStudio]
	if studio.TeamMembers != 10 || studio.StorageGB != 100 {
		t.Fatalf("unexpected studio team/storage: %+v", studio)
	}
}

func TestCanUseFeature(t *testing.T) {
	g := NewGate(nil)

	if g.CanUseFeature(PlanFree, FeatureSignatures) {
		t.Fatal("free plan must not grant signatures")
	}
	if !g.CanUseFeature(PlanPro, FeatureSignatures) {
		t.Fatal("pro plan must grant signatures")
	}
	if !g.CanUseFeature(PlanFree, FeatureContractsPerMonth) {
		t.Fatal("free plan has a positive contract allowance")
	}
	if g.CanUseFeature(PlanFree, "nonsense") {
		t.Fatal("unknown features are denied")
	}

	// Pure function of the fixed table: repeated calls agree.
	for i := 0; i < 3; i++ {
		if got := g.CanUseFeature(PlanStudio, FeatureAnalytics); !got {
			t.Fatalf("call %d: studio analytics denied", i)
		}
	}
}

func TestCheckUsageLimit(t *testing.T) {
	g := NewGate(nil)

	if !g.CheckUsageLimit(PlanFree, FeatureContractsPerMonth, 2) {
		t.Fatal("2 of 3 used should be allowed")
	}
	if g.CheckUsageLimit(PlanFree, FeatureContractsPerMonth, 3) {
		t.Fatal("3 of 3 used should be denied")
	}
	if !g.CheckUsageLimit(PlanPro, FeatureContractsPerMonth, 10_000) {
		t.Fatal("unlimited plans are never denied")
	}
	if g.CheckUsageLimit(PlanFree, "nonsense", 0) {
		t.Fatal("unknown counters are denied")
	}
}

func TestUnknownPlanFailsClosed(t *testing.T) {
	g := NewGate(nil)
	if g.CanUseFeature(Plan("enterprise"), FeatureSignatures) {
		t.Fatal("unknown plan should resolve to free limits")
	}
}

func TestAuthorizeContractCreate(t *testing.T) {
	ctx := context.Background()
	usage := NewInMemoryUsage()
	authz := &Authorizer{
		Gate:  NewGate(nil),
		Usage: usage,
		Plan:  func(context.Context, string) Plan { return PlanFree },
	}

	for i := 0; i < 3; i++ {
		if err := authz.AuthorizeContractCreate(ctx, "acct-1"); err != nil {
			t.Fatalf("create %d should pass: %v", i, err)
		}
		usage.IncrementContracts(ctx, "acct-1")
	}
	if err := authz.AuthorizeContractCreate(ctx, "acct-1"); err != ErrQuotaExceeded {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}

	// Other accounts are unaffected.
	if err := authz.AuthorizeContractCreate(ctx, "acct-2"); err != nil {
		t.Fatalf("fresh account denied: %v", err)
	}

	usage.ResetPeriod(ctx)
	if err := authz.AuthorizeContractCreate(ctx, "acct-1"); err != nil {
		t.Fatalf("denied after period reset: %v", err)
	}
}

func TestParsePlan(t *testing.T) {
	for raw, want := range map[string]Plan{"": PlanFree, "Free": PlanFree, " PRO ": PlanPro, "studio": PlanStudio} {
		got, err := ParsePlan(raw)
		if err != nil || got != want {
			t.Fatalf("ParsePlan(%q)=%v,%v want %v", raw, got, err, want)
		}
	}
	if _, err := ParsePlan("enterprise"); err != ErrUnknownPlan {
		t.Fatalf("expected ErrUnknownPlan, got %v", err)
	}
}
