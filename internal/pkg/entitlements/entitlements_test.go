package entitlements

import "testing"

func TestNormalizePlan(t *testing.T) {
	tests := []struct {
		in   string
		want Plan
	}{
		{in: "free", want: PlanFree},
		{in: "basic", want: PlanBasic},
		{in: "pro", want: PlanPro},
		{in: "unlimited", want: PlanUnlimited},
		{in: "  PRO  ", want: PlanPro},
		{in: "invalid", want: PlanFree},
		{in: "", want: PlanFree},
	}

	for _, tt := range tests {
		if got := NormalizePlan(tt.in); got != tt.want {
			t.Fatalf("NormalizePlan(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPlanFromVariant(t *testing.T) {
	tests := []struct {
		in   string
		want Plan
	}{
		{in: "Basic", want: PlanBasic},
		{in: "Basic Monthly", want: PlanBasic},
		{in: "Pro Yearly", want: PlanPro},
		{in: "Unlimited", want: PlanUnlimited},
		{in: "Protoplan", want: PlanPro},
		{in: "something else", want: PlanFree},
	}

	for _, tt := range tests {
		if got := PlanFromVariant(tt.in); got != tt.want {
			t.Fatalf("PlanFromVariant(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStorageLimitBytes(t *testing.T) {
	if got := StorageLimitBytes(PlanBasic); got != 2_000_000_000 {
		t.Fatalf("basic limit = %d, want 2000000000", got)
	}
	if got := StorageLimitBytes(PlanUnlimited); got != StorageUnlimited {
		t.Fatalf("unlimited limit = %d, want sentinel %d", got, StorageUnlimited)
	}
	if StorageLimitBytes(PlanFree) >= StorageLimitBytes(PlanBasic) {
		t.Fatalf("expected basic ceiling above free")
	}
	if StorageLimitBytes(PlanBasic) >= StorageLimitBytes(PlanPro) {
		t.Fatalf("expected pro ceiling above basic")
	}
}

func TestStorageLimitBytesPanicsOnUnknownPlan(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for unknown plan")
		}
	}()
	StorageLimitBytes(Plan("gold"))
}

func TestPlanRank(t *testing.T) {
	if PlanRank(PlanFree) >= PlanRank(PlanBasic) {
		t.Fatalf("expected basic to outrank free")
	}
	if PlanRank(PlanPro) >= PlanRank(PlanUnlimited) {
		t.Fatalf("expected unlimited to outrank pro")
	}
}

func TestFeatures(t *testing.T) {
	hero, orig, domain := Features(PlanFree)
	if hero || orig || domain {
		t.Fatalf("expected free plan to have no paid features")
	}
	hero, orig, domain = Features(PlanUnlimited)
	if !hero || !orig || !domain {
		t.Fatalf("expected unlimited plan to have all features")
	}
}
