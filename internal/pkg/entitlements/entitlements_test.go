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
		{in: "PRO", want: PlanPro},
		{in: " basic ", want: PlanBasic},
		{in: "enterprise", want: PlanFree},
		{in: "", want: PlanFree},
	}

	for _, tt := range tests {
		if got := NormalizePlan(tt.in); got != tt.want {
			t.Fatalf("NormalizePlan(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPlanRank(t *testing.T) {
	if PlanRank(PlanFree) >= PlanRank(PlanBasic) {
		t.Fatalf("expected basic to outrank free")
	}
	if PlanRank(PlanBasic) >= PlanRank(PlanPro) {
		t.Fatalf("expected pro to outrank basic")
	}
}

func TestMonthlyAllocation(t *testing.T) {
	if got := MonthlyAllocation(PlanBasic); got != 10 {
		t.Fatalf("basic allocation = %d, want 10", got)
	}
	if got := MonthlyAllocation(PlanPro); got != 50 {
		t.Fatalf("pro allocation = %d, want 50", got)
	}
	if got := MonthlyAllocation(PlanFree); got != 0 {
		t.Fatalf("free allocation = %d, want 0", got)
	}
}

func TestIsPaid(t *testing.T) {
	if IsPaid(PlanFree) {
		t.Fatalf("free must not be paid")
	}
	if !IsPaid(PlanBasic) || !IsPaid(PlanPro) {
		t.Fatalf("basic and pro must be paid")
	}
}
