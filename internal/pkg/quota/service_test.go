package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facemojo/facemojo/app/models"
	"github.com/facemojo/facemojo/internal/pkg/entitlements"
)

// fixedNow is a Wednesday; the current week starts Monday 2025-06-09 00:00.
var fixedNow = time.Date(2025, 6, 11, 15, 0, 0, 0, time.Local)

type fakeUsageRepo struct {
	records map[uint]*models.UsageRecord
	failAll bool
}

func newFakeUsageRepo() *fakeUsageRepo {
	return &fakeUsageRepo{records: make(map[uint]*models.UsageRecord)}
}

func (f *fakeUsageRepo) GetOrCreate(userID uint) (*models.UsageRecord, error) {
	if f.failAll {
		return nil, errors.New("store unreachable")
	}
	if rec, ok := f.records[userID]; ok {
		copied := *rec
		return &copied, nil
	}
	rec := &models.UsageRecord{UserID: userID}
	f.records[userID] = rec
	copied := *rec
	return &copied, nil
}

func (f *fakeUsageRepo) Save(record *models.UsageRecord) error {
	if f.failAll {
		return errors.New("store unreachable")
	}
	copied := *record
	f.records[record.UserID] = &copied
	return nil
}

func (f *fakeUsageRepo) DecrementIfPositive(userID uint, at time.Time) (bool, error) {
	if f.failAll {
		return false, errors.New("store unreachable")
	}
	rec, ok := f.records[userID]
	if !ok || rec.AnimationsLeft <= 0 {
		return false, nil
	}
	rec.AnimationsLeft--
	rec.LastGeneratedAt = &at
	rec.LastUsedAt = &at
	return true, nil
}

func (f *fakeUsageRepo) MarkGenerated(userID uint, at time.Time) error {
	if f.failAll {
		return errors.New("store unreachable")
	}
	rec, ok := f.records[userID]
	if !ok {
		return nil
	}
	rec.LastGeneratedAt = &at
	rec.LastUsedAt = &at
	return nil
}

func (f *fakeUsageRepo) ResetAllocation(userID uint, allocation int, at time.Time) error {
	if f.failAll {
		return errors.New("store unreachable")
	}
	rec, ok := f.records[userID]
	if !ok {
		return nil
	}
	rec.AnimationsLeft = allocation
	rec.LastResetAt = &at
	return nil
}

type fakePlanRepo struct {
	plans   map[uint]*models.SubscriptionPlan
	failAll bool
}

func newFakePlanRepo() *fakePlanRepo {
	return &fakePlanRepo{plans: make(map[uint]*models.SubscriptionPlan)}
}

func (f *fakePlanRepo) GetOrCreate(userID uint) (*models.SubscriptionPlan, error) {
	if f.failAll {
		return nil, errors.New("store unreachable")
	}
	if plan, ok := f.plans[userID]; ok {
		copied := *plan
		return &copied, nil
	}
	plan := &models.SubscriptionPlan{UserID: userID, PlanType: "free"}
	f.plans[userID] = plan
	copied := *plan
	return &copied, nil
}

func (f *fakePlanRepo) Save(plan *models.SubscriptionPlan) error {
	if f.failAll {
		return errors.New("store unreachable")
	}
	copied := *plan
	f.plans[plan.UserID] = &copied
	return nil
}

func (f *fakePlanRepo) ListPaid() ([]models.SubscriptionPlan, error) {
	if f.failAll {
		return nil, errors.New("store unreachable")
	}
	var out []models.SubscriptionPlan
	for _, plan := range f.plans {
		if plan.PlanType == "basic" || plan.PlanType == "pro" {
			out = append(out, *plan)
		}
	}
	return out, nil
}

func newTestService(usage *fakeUsageRepo, plans *fakePlanRepo) *Service {
	svc := NewService(usage, plans)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestCanGenerateFreeUserNoHistory(t *testing.T) {
	svc := newTestService(newFakeUsageRepo(), newFakePlanRepo())

	decision, err := svc.CanGenerate(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 1, decision.Remaining)
	assert.Equal(t, entitlements.PlanFree, decision.Plan)
	assert.Equal(t, ReasonOK, decision.Reason)
}

func TestCanGenerateFreeUserBlockedWithinWeek(t *testing.T) {
	usage := newFakeUsageRepo()
	lastGen := fixedNow.Add(-24 * time.Hour) // Tuesday, same week
	usage.records[1] = &models.UsageRecord{UserID: 1, LastGeneratedAt: &lastGen}

	svc := newTestService(usage, newFakePlanRepo())
	decision, err := svc.CanGenerate(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonWeeklyLimitReached, decision.Reason)
}

func TestCanGenerateFreeUserAllowedAfterWeekRollover(t *testing.T) {
	usage := newFakeUsageRepo()
	lastGen := fixedNow.AddDate(0, 0, -8) // before Monday 00:00
	usage.records[1] = &models.UsageRecord{UserID: 1, LastGeneratedAt: &lastGen}

	svc := newTestService(usage, newFakePlanRepo())
	decision, err := svc.CanGenerate(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestCanGenerateFreeUserBlockedAtExactWeekStart(t *testing.T) {
	usage := newFakeUsageRepo()
	lastGen := startOfWeek(fixedNow) // Monday 00:00 counts as this week
	usage.records[1] = &models.UsageRecord{UserID: 1, LastGeneratedAt: &lastGen}

	svc := newTestService(usage, newFakePlanRepo())
	decision, err := svc.CanGenerate(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestCanGeneratePaidUserGovernedByCounterOnly(t *testing.T) {
	usage := newFakeUsageRepo()
	plans := newFakePlanRepo()
	expire := fixedNow.Add(10 * 24 * time.Hour)
	plans.plans[1] = &models.SubscriptionPlan{UserID: 1, PlanType: "basic", ExpireDate: &expire}

	lastGen := fixedNow.Add(-time.Hour) // within week, must not matter for paid
	usage.records[1] = &models.UsageRecord{UserID: 1, IsPaidUser: true, AnimationsLeft: 3, LastGeneratedAt: &lastGen}

	svc := newTestService(usage, plans)
	decision, err := svc.CanGenerate(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 3, decision.Remaining)
	assert.Equal(t, entitlements.PlanBasic, decision.Plan)

	usage.records[1].AnimationsLeft = 0
	decision, err = svc.CanGenerate(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonAllocationExhausted, decision.Reason)
}

func TestCanGenerateExpiryDowngrade(t *testing.T) {
	usage := newFakeUsageRepo()
	plans := newFakePlanRepo()
	expired := fixedNow.Add(-24 * time.Hour)
	plans.plans[1] = &models.SubscriptionPlan{UserID: 1, PlanType: "pro", ExpireDate: &expired}
	usage.records[1] = &models.UsageRecord{UserID: 1, IsPaidUser: true, AnimationsLeft: 42}

	svc := newTestService(usage, plans)
	decision, err := svc.CanGenerate(context.Background(), 1)
	require.NoError(t, err)

	// Plan and usage are rewritten before eligibility is evaluated.
	assert.Equal(t, "free", plans.plans[1].PlanType)
	assert.Nil(t, plans.plans[1].ExpireDate)
	assert.False(t, usage.records[1].IsPaidUser)
	assert.Equal(t, 0, usage.records[1].AnimationsLeft)

	// No generation this week yet, so the free rule allows one.
	assert.True(t, decision.Allowed)
	assert.Equal(t, entitlements.PlanFree, decision.Plan)
}

func TestCanGenerateFailsOpenOnStoreError(t *testing.T) {
	usage := newFakeUsageRepo()
	usage.failAll = true

	svc := newTestService(usage, newFakePlanRepo())
	decision, err := svc.CanGenerate(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 1, decision.Remaining)
	assert.Equal(t, ReasonStoreError, decision.Reason)
}

func TestRecordUsagePaidDecrements(t *testing.T) {
	usage := newFakeUsageRepo()
	usage.records[1] = &models.UsageRecord{UserID: 1, IsPaidUser: true, AnimationsLeft: 2}

	svc := newTestService(usage, newFakePlanRepo())
	require.NoError(t, svc.RecordUsage(context.Background(), 1))

	assert.Equal(t, 1, usage.records[1].AnimationsLeft)
	require.NotNil(t, usage.records[1].LastGeneratedAt)
	assert.Equal(t, fixedNow, *usage.records[1].LastGeneratedAt)
}

func TestRecordUsagePaidFloorsAtZero(t *testing.T) {
	usage := newFakeUsageRepo()
	usage.records[1] = &models.UsageRecord{UserID: 1, IsPaidUser: true, AnimationsLeft: 0}

	svc := newTestService(usage, newFakePlanRepo())
	require.NoError(t, svc.RecordUsage(context.Background(), 1))

	assert.Equal(t, 0, usage.records[1].AnimationsLeft)
	require.NotNil(t, usage.records[1].LastGeneratedAt, "generation time is stamped even at zero")
}

func TestRecordUsageFreeOnlyStampsTime(t *testing.T) {
	usage := newFakeUsageRepo()
	usage.records[1] = &models.UsageRecord{UserID: 1}

	svc := newTestService(usage, newFakePlanRepo())
	require.NoError(t, svc.RecordUsage(context.Background(), 1))

	assert.Equal(t, 0, usage.records[1].AnimationsLeft)
	require.NotNil(t, usage.records[1].LastGeneratedAt)
}

func TestRecordUsageSurfacesStoreError(t *testing.T) {
	usage := newFakeUsageRepo()
	usage.failAll = true

	svc := newTestService(usage, newFakePlanRepo())
	err := svc.RecordUsage(context.Background(), 1)

	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
}

func TestApplyPlanChangeBasic(t *testing.T) {
	usage := newFakeUsageRepo()
	plans := newFakePlanRepo()
	svc := newTestService(usage, plans)

	require.NoError(t, svc.ApplyPlanChange(context.Background(), 1, entitlements.PlanBasic, "pay_123"))

	plan := plans.plans[1]
	assert.Equal(t, "basic", plan.PlanType)
	assert.Equal(t, "pay_123", plan.PaymentReference)
	require.NotNil(t, plan.SubscribeDate)
	require.NotNil(t, plan.ExpireDate)
	assert.Equal(t, fixedNow.Add(30*24*time.Hour), *plan.ExpireDate)

	record := usage.records[1]
	assert.True(t, record.IsPaidUser)
	assert.Equal(t, 10, record.AnimationsLeft)
}

func TestApplyPlanChangePro(t *testing.T) {
	usage := newFakeUsageRepo()
	plans := newFakePlanRepo()
	svc := newTestService(usage, plans)

	require.NoError(t, svc.ApplyPlanChange(context.Background(), 1, entitlements.PlanPro, "pay_456"))

	assert.Equal(t, "pro", plans.plans[1].PlanType)
	assert.True(t, usage.records[1].IsPaidUser)
	assert.Equal(t, 50, usage.records[1].AnimationsLeft)
}

func TestApplyPlanChangeFree(t *testing.T) {
	usage := newFakeUsageRepo()
	plans := newFakePlanRepo()
	expire := fixedNow.Add(5 * 24 * time.Hour)
	plans.plans[1] = &models.SubscriptionPlan{UserID: 1, PlanType: "pro", ExpireDate: &expire}
	usage.records[1] = &models.UsageRecord{UserID: 1, IsPaidUser: true, AnimationsLeft: 12}

	svc := newTestService(usage, plans)
	require.NoError(t, svc.ApplyPlanChange(context.Background(), 1, entitlements.PlanFree, ""))

	assert.Equal(t, "free", plans.plans[1].PlanType)
	assert.Nil(t, plans.plans[1].ExpireDate)
	assert.False(t, usage.records[1].IsPaidUser)
	assert.Equal(t, 0, usage.records[1].AnimationsLeft)
}

func TestResetMonthlyQuota(t *testing.T) {
	usage := newFakeUsageRepo()
	plans := newFakePlanRepo()

	lastMonth := time.Date(fixedNow.Year(), fixedNow.Month(), 1, 0, 0, 0, 0, time.Local).AddDate(0, 0, -1)
	plans.plans[1] = &models.SubscriptionPlan{UserID: 1, PlanType: "basic"}
	usage.records[1] = &models.UsageRecord{UserID: 1, IsPaidUser: true, AnimationsLeft: 0, LastResetAt: &lastMonth}

	plans.plans[2] = &models.SubscriptionPlan{UserID: 2, PlanType: "pro"}
	usage.records[2] = &models.UsageRecord{UserID: 2, IsPaidUser: true, AnimationsLeft: 7, LastResetAt: &lastMonth}

	// Free user must be skipped even with a stale reset timestamp.
	plans.plans[3] = &models.SubscriptionPlan{UserID: 3, PlanType: "free"}
	usage.records[3] = &models.UsageRecord{UserID: 3, LastResetAt: &lastMonth}

	svc := newTestService(usage, plans)
	count, err := svc.ResetMonthlyQuota(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	assert.Equal(t, 10, usage.records[1].AnimationsLeft)
	assert.Equal(t, 50, usage.records[2].AnimationsLeft)
	assert.Equal(t, fixedNow, *usage.records[1].LastResetAt)
	assert.Equal(t, 0, usage.records[3].AnimationsLeft)

	// Second run in the same month is a no-op.
	usage.records[1].AnimationsLeft = 4
	count, err = svc.ResetMonthlyQuota(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 4, usage.records[1].AnimationsLeft)
}

func TestStartOfWeek(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			name: "wednesday",
			in:   time.Date(2025, 6, 11, 15, 30, 0, 0, time.Local),
			want: time.Date(2025, 6, 9, 0, 0, 0, 0, time.Local),
		},
		{
			name: "monday morning",
			in:   time.Date(2025, 6, 9, 0, 30, 0, 0, time.Local),
			want: time.Date(2025, 6, 9, 0, 0, 0, 0, time.Local),
		},
		{
			name: "sunday is the last day of the week",
			in:   time.Date(2025, 6, 15, 23, 0, 0, 0, time.Local),
			want: time.Date(2025, 6, 9, 0, 0, 0, 0, time.Local),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, startOfWeek(tt.in))
		})
	}
}
