package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/facemojo/facemojo/app/models"
	"github.com/facemojo/facemojo/app/repository"
	"github.com/facemojo/facemojo/internal/pkg/entitlements"
)

// Decision reasons surfaced to the presentation layer so it can distinguish
// free-tier exhaustion from paid-tier exhaustion.
const (
	ReasonOK                  = "ok"
	ReasonWeeklyLimitReached  = "weekly_limit_reached"
	ReasonAllocationExhausted = "allocation_exhausted"
	ReasonStoreError          = "store_error"
)

// paidPlanDuration is how long a basic/pro subscription stays active.
const paidPlanDuration = 30 * 24 * time.Hour

// Decision is the outcome of an eligibility check.
type Decision struct {
	Allowed   bool              `json:"allowed"`
	Remaining int               `json:"remaining"`
	Plan      entitlements.Plan `json:"plan"`
	Reason    string            `json:"reason"`
}

// Service is the usage/subscription quota engine. It is the sole writer of
// usage records and subscription plans.
type Service struct {
	usage repository.UsageRepository
	plans repository.SubscriptionPlanRepository

	// now is swappable for tests
	now func() time.Time
}

// NewService creates a quota service from injected repositories.
func NewService(usage repository.UsageRepository, plans repository.SubscriptionPlanRepository) *Service {
	return &Service{
		usage: usage,
		plans: plans,
		now:   time.Now,
	}
}

// NewServiceFromDB creates a quota service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(repository.NewUsageRepository(db), repository.NewSubscriptionPlanRepository(db))
}

// CanGenerate computes whether a user may submit a new generation job.
//
// A lapsed basic/pro plan is downgraded to free before eligibility is
// evaluated. When the store is unreachable the engine fails open (allowed,
// one remaining) per product policy; the fallback is logged and flagged via
// Decision.Reason so it is never silent.
func (s *Service) CanGenerate(ctx context.Context, userID uint) (Decision, error) {
	_ = ctx
	now := s.now()

	plan, err := s.plans.GetOrCreate(userID)
	if err != nil {
		return s.failOpen(userID, "load plan", err), nil
	}

	planType := entitlements.NormalizePlan(plan.PlanType)
	if entitlements.IsPaid(planType) && plan.IsExpired(now) {
		planType = entitlements.PlanFree
		if err := s.downgradeExpired(plan); err != nil {
			log.Errorf("quota: expiry downgrade for user %d failed: %v", userID, err)
		}
	}

	record, err := s.usage.GetOrCreate(userID)
	if err != nil {
		return s.failOpen(userID, "load usage", err), nil
	}

	if record.IsPaidUser && planType != entitlements.PlanFree {
		if record.AnimationsLeft > 0 {
			return Decision{Allowed: true, Remaining: record.AnimationsLeft, Plan: planType, Reason: ReasonOK}, nil
		}
		return Decision{Allowed: false, Remaining: 0, Plan: planType, Reason: ReasonAllocationExhausted}, nil
	}

	// Free tier: one generation per calendar week, weeks starting Monday 00:00.
	if record.LastGeneratedAt == nil || record.LastGeneratedAt.Before(startOfWeek(now)) {
		return Decision{Allowed: true, Remaining: 1, Plan: entitlements.PlanFree, Reason: ReasonOK}, nil
	}
	return Decision{Allowed: false, Remaining: 0, Plan: entitlements.PlanFree, Reason: ReasonWeeklyLimitReached}, nil
}

// RecordUsage consumes quota after a job reached the succeeded state. It is
// never invoked for failed or abandoned jobs. Paid allocations are consumed
// with an atomic conditional decrement that floors at zero.
func (s *Service) RecordUsage(ctx context.Context, userID uint) error {
	_ = ctx
	now := s.now()

	record, err := s.usage.GetOrCreate(userID)
	if err != nil {
		return &StoreError{Op: "load usage", Err: err}
	}

	if record.IsPaidUser {
		decremented, err := s.usage.DecrementIfPositive(userID, now)
		if err != nil {
			return &StoreError{Op: "decrement allocation", Err: err}
		}
		if decremented {
			return nil
		}
		// Counter already at zero: still stamp the generation time.
	}

	if err := s.usage.MarkGenerated(userID, now); err != nil {
		return &StoreError{Op: "mark generated", Err: err}
	}
	return nil
}

// ApplyPlanChange overwrites the user's subscription and resets the usage
// allocation. This is the only path that grants or restores quota, invoked
// once per verified payment (or with an empty reference for admin changes
// and expiry downgrades to free).
func (s *Service) ApplyPlanChange(ctx context.Context, userID uint, newPlan entitlements.Plan, paymentReference string) error {
	_ = ctx
	now := s.now()
	planType := entitlements.NormalizePlan(string(newPlan))

	plan, err := s.plans.GetOrCreate(userID)
	if err != nil {
		return &StoreError{Op: "load plan", Err: err}
	}

	plan.PlanType = string(planType)
	plan.SubscribeDate = &now
	plan.PaymentReference = paymentReference
	if entitlements.IsPaid(planType) {
		expire := now.Add(paidPlanDuration)
		plan.ExpireDate = &expire
	} else {
		plan.ExpireDate = nil
	}
	if err := s.plans.Save(plan); err != nil {
		return &StoreError{Op: "save plan", Err: err}
	}

	record, err := s.usage.GetOrCreate(userID)
	if err != nil {
		return &StoreError{Op: "load usage", Err: err}
	}
	record.IsPaidUser = entitlements.IsPaid(planType)
	record.AnimationsLeft = entitlements.MonthlyAllocation(planType)
	record.LastUsedAt = &now
	record.LastResetAt = &now
	if err := s.usage.Save(record); err != nil {
		return &StoreError{Op: "save usage", Err: err}
	}

	log.Infof("quota: user %d switched to plan %s (%d animations)", userID, planType, record.AnimationsLeft)
	return nil
}

// ResetMonthlyQuota refills the allocation of every paid user whose last
// reset falls in a different calendar month than now. Running it twice in
// the same month is a no-op the second time; free users are skipped.
// Invoked by the scheduled resetquota command.
func (s *Service) ResetMonthlyQuota(ctx context.Context) (int, error) {
	_ = ctx
	now := s.now()

	plans, err := s.plans.ListPaid()
	if err != nil {
		return 0, &StoreError{Op: "list paid plans", Err: err}
	}

	reset := 0
	for _, plan := range plans {
		planType := entitlements.NormalizePlan(plan.PlanType)
		if !entitlements.IsPaid(planType) {
			continue
		}

		record, err := s.usage.GetOrCreate(plan.UserID)
		if err != nil {
			return reset, &StoreError{Op: fmt.Sprintf("load usage for user %d", plan.UserID), Err: err}
		}
		if record.LastResetAt != nil && sameCalendarMonth(*record.LastResetAt, now) {
			continue
		}

		allocation := entitlements.MonthlyAllocation(planType)
		if err := s.usage.ResetAllocation(plan.UserID, allocation, now); err != nil {
			return reset, &StoreError{Op: fmt.Sprintf("reset allocation for user %d", plan.UserID), Err: err}
		}
		reset++
		log.Infof("quota: reset user %d to %d animations (%s)", plan.UserID, allocation, planType)
	}

	return reset, nil
}

// Remaining reports the user's current plan and remaining allocation for
// display. Free users report 1 when the weekly window is open.
func (s *Service) Remaining(ctx context.Context, userID uint) (entitlements.Plan, int, error) {
	decision, err := s.CanGenerate(ctx, userID)
	if err != nil {
		return entitlements.PlanFree, 0, err
	}
	return decision.Plan, decision.Remaining, nil
}

// downgradeExpired rewrites a lapsed paid plan back to the free tier.
func (s *Service) downgradeExpired(plan *models.SubscriptionPlan) error {
	plan.PlanType = string(entitlements.PlanFree)
	plan.ExpireDate = nil
	if err := s.plans.Save(plan); err != nil {
		return err
	}

	record, err := s.usage.GetOrCreate(plan.UserID)
	if err != nil {
		return err
	}
	record.IsPaidUser = false
	record.AnimationsLeft = 0
	return s.usage.Save(record)
}

func (s *Service) failOpen(userID uint, op string, err error) Decision {
	log.Errorf("quota: %s for user %d failed, failing open: %v", op, userID, err)
	return Decision{Allowed: true, Remaining: 1, Plan: entitlements.PlanFree, Reason: ReasonStoreError}
}
