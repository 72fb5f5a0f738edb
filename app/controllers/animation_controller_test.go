package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/facemojo/facemojo/app/models"
	"github.com/facemojo/facemojo/app/repository"
	"github.com/facemojo/facemojo/internal/pkg/generation"
	"github.com/facemojo/facemojo/internal/pkg/quota"
	"github.com/facemojo/facemojo/internal/pkg/usercontext"
)

func TestNormalizeAnimationStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "starting", want: "starting"},
		{in: "processing", want: "processing"},
		{in: "succeeded", want: "succeeded"},
		{in: "failed", want: "failed"},
		{in: "canceled", want: "canceled"},
		{in: "queued", want: "processing"},
		{in: "", want: "processing"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeAnimationStatus(tt.in))
	}
}

func TestQuotaMessage(t *testing.T) {
	assert.Contains(t, quotaMessage(quota.ReasonWeeklyLimitReached), "one animation per week")
	assert.Contains(t, quotaMessage(quota.ReasonAllocationExhausted), "allocation")
	assert.NotEmpty(t, quotaMessage("something_else"))
}

func TestAnimationResponseTerminalRow(t *testing.T) {
	completed := time.Date(2025, 6, 11, 12, 0, 0, 0, time.UTC)
	animation := &models.Animation{
		UUID:        "abc-123",
		Status:      models.AnimationStatusSucceeded,
		OutputURL:   "https://cdn.example/out.mp4",
		Title:       "My Avatar",
		CompletedAt: &completed,
	}

	resp := animationResponse(animation, nil)
	assert.Equal(t, "abc-123", resp["uuid"])
	assert.Equal(t, "succeeded", resp["status"])
	assert.Equal(t, "https://cdn.example/out.mp4", resp["output_url"])
	assert.Equal(t, "2025-06-11T12:00:00Z", resp["completed_at"])
}

func TestAnimationResponsePrefersFreshPredictionForPendingRow(t *testing.T) {
	animation := &models.Animation{
		UUID:   "abc-123",
		Status: models.AnimationStatusStarting,
	}
	prediction := &generation.Prediction{
		ID:     "pred-1",
		Status: generation.StatusProcessing,
	}

	resp := animationResponse(animation, prediction)
	assert.Equal(t, "processing", resp["status"])
	assert.NotContains(t, resp, "output_url")
}

func testErrorStatus(t *testing.T, err error) (int, map[string]any) {
	t.Helper()
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return generationErrorResponse(c, err)
	})

	resp, reqErr := app.Test(httptest.NewRequest("GET", "/", nil), -1)
	require.NoError(t, reqErr)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(body, &parsed))
	return resp.StatusCode, parsed
}

func TestGenerationErrorResponseMapping(t *testing.T) {
	status, body := testErrorStatus(t, generation.ErrMissingInput)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_request", body["error"])

	status, body = testErrorStatus(t, generation.ErrPayloadTooLarge)
	assert.Equal(t, fiber.StatusRequestEntityTooLarge, status)
	assert.Equal(t, "payload_too_large", body["error"])

	status, body = testErrorStatus(t, generation.ErrNotConfigured)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, "not_configured", body["error"])

	status, body = testErrorStatus(t, generation.ErrPollDeadlineExceeded)
	assert.Equal(t, fiber.StatusGatewayTimeout, status)
	assert.Equal(t, "poll_timeout", body["error"])
}

type stubUsageRepo struct{}

func (s *stubUsageRepo) GetOrCreate(userID uint) (*models.UsageRecord, error) {
	return &models.UsageRecord{UserID: userID}, nil
}
func (s *stubUsageRepo) Save(*models.UsageRecord) error                    { return nil }
func (s *stubUsageRepo) DecrementIfPositive(uint, time.Time) (bool, error) { return true, nil }
func (s *stubUsageRepo) MarkGenerated(uint, time.Time) error               { return nil }
func (s *stubUsageRepo) ResetAllocation(uint, int, time.Time) error        { return nil }

type stubPlanRepo struct{}

func (s *stubPlanRepo) GetOrCreate(userID uint) (*models.SubscriptionPlan, error) {
	return &models.SubscriptionPlan{UserID: userID, PlanType: "free"}, nil
}
func (s *stubPlanRepo) Save(*models.SubscriptionPlan) error          { return nil }
func (s *stubPlanRepo) ListPaid() ([]models.SubscriptionPlan, error) { return nil, nil }

type stubAnimationRepo struct{}

func (s *stubAnimationRepo) Create(*models.Animation) error { return nil }
func (s *stubAnimationRepo) GetByUUID(string) (*models.Animation, error) {
	return nil, gorm.ErrRecordNotFound
}
func (s *stubAnimationRepo) GetByPredictionID(string) (*models.Animation, error) {
	return nil, gorm.ErrRecordNotFound
}
func (s *stubAnimationRepo) GetByUserID(uint, int, int) ([]models.Animation, error) {
	return nil, nil
}
func (s *stubAnimationRepo) ListPendingOlderThan(time.Time, int) ([]models.Animation, error) {
	return nil, nil
}
func (s *stubAnimationRepo) FinalizeSuccess(uint, string, time.Time) (bool, error) {
	return false, nil
}
func (s *stubAnimationRepo) FinalizeFailure(uint, string, string, time.Time) (bool, error) {
	return false, nil
}
func (s *stubAnimationRepo) CountByUserID(uint) (int64, error) { return 0, nil }

type createFailingAnimationRepo struct{ stubAnimationRepo }

func (r *createFailingAnimationRepo) Create(*models.Animation) error {
	return errors.New("insert failed")
}

type uuidAssigningAnimationRepo struct{ stubAnimationRepo }

func (r *uuidAssigningAnimationRepo) Create(animation *models.Animation) error {
	animation.ID = 42
	animation.UUID = "3f2c9d4e-0000-0000-0000-000000000042"
	return nil
}

// createAnimationApp wires HandleCreateAnimation with a fake upstream and the
// given animation store, as a logged-in free user with quota available.
func createAnimationApp(t *testing.T, repo repository.AnimationRepository) *fiber.App {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"pred-1","status":"starting"}`))
	}))
	t.Cleanup(upstream.Close)

	// Claim the singleton init so the env-based client never overrides the fake.
	generationOnce.Do(func() {})
	prevClient, prevPoller := generationClient, generationPoller
	prevQuota, prevRepo := getQuotaService, animationRepo
	generationClient = &generation.Client{
		APIToken:        "test-token",
		APIBaseURL:      upstream.URL,
		ModelVersion:    "test-version",
		MaxPayloadBytes: 1 << 20,
		HTTPClient:      upstream.Client(),
	}
	getQuotaService = func() *quota.Service {
		return quota.NewService(&stubUsageRepo{}, &stubPlanRepo{})
	}
	animationRepo = func() repository.AnimationRepository { return repo }
	t.Cleanup(func() {
		generationClient, generationPoller = prevClient, prevPoller
		getQuotaService, animationRepo = prevQuota, prevRepo
	})

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("USER_CONTEXT", usercontext.UserContext{UserID: 7, IsLoggedIn: true})
		return c.Next()
	})
	app.Post("/animations", HandleCreateAnimation)
	return app
}

func postAnimation(t *testing.T, app *fiber.App) (int, map[string]any) {
	t.Helper()
	payload := `{"image":"data:image/png;base64,aaa","video":"data:video/mp4;base64,bbb"}`
	req := httptest.NewRequest("POST", "/animations", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(body, &parsed))
	return resp.StatusCode, parsed
}

func TestCreateAnimationFailsWhenRowCannotBePersisted(t *testing.T) {
	app := createAnimationApp(t, &createFailingAnimationRepo{})

	status, body := postAnimation(t, app)
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "internal_server_error", body["error"])
}

func TestCreateAnimationReturnsPollableHandle(t *testing.T) {
	app := createAnimationApp(t, &uuidAssigningAnimationRepo{})

	status, body := postAnimation(t, app)
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "3f2c9d4e-0000-0000-0000-000000000042", body["uuid"])
	assert.Equal(t, "starting", body["status"])
}

func TestGenerationErrorResponseUpstreamDetail(t *testing.T) {
	status, body := testErrorStatus(t, &generation.UpstreamError{
		StatusCode: 503,
		Status:     "503 Service Unavailable",
		Detail:     `{"detail":"overloaded"}`,
	})
	assert.Equal(t, fiber.StatusBadGateway, status)
	assert.Equal(t, "upstream_error", body["error"])
	assert.Equal(t, `{"detail":"overloaded"}`, body["detail"])
	assert.Equal(t, float64(503), body["status"])
}
