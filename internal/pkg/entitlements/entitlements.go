package entitlements

import (
	"strconv"
	"strings"

	"github.com/facemojo/facemojo/internal/pkg/env"
)

type Plan string

const (
	PlanFree  Plan = "free"
	PlanBasic Plan = "basic"
	PlanPro   Plan = "pro"
)

const (
	defaultBasicAllocation = 10
	defaultProAllocation   = 50
)

// NormalizePlan maps arbitrary input to a known plan, defaulting to free.
func NormalizePlan(plan string) Plan {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case string(PlanBasic):
		return PlanBasic
	case string(PlanPro):
		return PlanPro
	default:
		return PlanFree
	}
}

// IsPaid reports whether the plan carries a monthly animation allocation.
func IsPaid(plan Plan) bool {
	return plan == PlanBasic || plan == PlanPro
}

// PlanRank orders plans for upgrade/downgrade comparisons.
func PlanRank(plan Plan) int {
	switch plan {
	case PlanPro:
		return 2
	case PlanBasic:
		return 1
	default:
		return 0
	}
}

// MonthlyAllocation returns the number of animations granted per month.
// Free users are governed by the weekly window instead and get 0.
func MonthlyAllocation(plan Plan) int {
	switch plan {
	case PlanBasic:
		return envInt("PLAN_BASIC_ALLOCATION", defaultBasicAllocation)
	case PlanPro:
		return envInt("PLAN_PRO_ALLOCATION", defaultProAllocation)
	default:
		return 0
	}
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(env.GetEnv(key, ""))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
