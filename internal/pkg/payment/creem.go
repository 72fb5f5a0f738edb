package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/facemojo/facemojo/internal/pkg/entitlements"
	"github.com/facemojo/facemojo/internal/pkg/env"
)

const defaultCreemAPIBaseURL = "https://api.creem.io/v1"

// ErrCheckoutNotPaid is returned when the checkout exists but has not
// completed payment. Callers must not grant a plan in that case.
var ErrCheckoutNotPaid = errors.New("checkout is not paid")

// ErrUnknownProduct is returned when the checkout references a product
// that maps to no configured plan.
var ErrUnknownProduct = errors.New("checkout references an unknown product")

// CreemClient verifies checkout sessions against the Creem API. Plan
// changes are only ever applied after a successful server-side
// verification; the checkout id coming back on the return URL is treated
// as a claim, never as proof of payment.
type CreemClient struct {
	APIKey     string
	APIBaseURL string

	BasicProductID string
	ProProductID   string

	HTTPClient *http.Client
}

// CheckoutVerification is the verified state of a checkout session.
type CheckoutVerification struct {
	CheckoutID    string
	OrderID       string
	Status        string
	ProductID     string
	Plan          entitlements.Plan
	CustomerEmail string
}

func NewCreemClientFromEnv() *CreemClient {
	return &CreemClient{
		APIKey:         strings.TrimSpace(env.GetEnv("CREEM_API_KEY", "")),
		APIBaseURL:     strings.TrimRight(strings.TrimSpace(env.GetEnv("CREEM_API_BASE_URL", defaultCreemAPIBaseURL)), "/"),
		BasicProductID: strings.TrimSpace(env.GetEnv("CREEM_BASIC_PRODUCT_ID", "")),
		ProProductID:   strings.TrimSpace(env.GetEnv("CREEM_PRO_PRODUCT_ID", "")),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// VerifyCheckout fetches the checkout session from Creem and returns its
// verified state. It fails unless the session is completed and paid and
// its product maps to a configured plan.
func (c *CreemClient) VerifyCheckout(ctx context.Context, checkoutID string) (*CheckoutVerification, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("CREEM_API_KEY is not configured")
	}
	checkoutID = strings.TrimSpace(checkoutID)
	if checkoutID == "" {
		return nil, errors.New("checkout id is required")
	}

	u, err := url.Parse(c.APIBaseURL + "/checkouts")
	if err != nil {
		return nil, fmt.Errorf("invalid CREEM_API_BASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("checkout_id", checkoutID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("creem checkout lookup failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	type rawProduct struct {
		ID string `json:"id"`
	}
	type rawResponse struct {
		ID      string          `json:"id"`
		Status  string          `json:"status"`
		Product json.RawMessage `json:"product"`
		Order   struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"order"`
		Customer struct {
			Email string `json:"email"`
		} `json:"customer"`
	}

	var raw rawResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("creem checkout response is not valid JSON: %w", err)
	}
	if strings.TrimSpace(raw.ID) == "" {
		return nil, errors.New("creem checkout response missing id")
	}

	// Product comes back either as a plain id or an expanded object.
	productID := ""
	if len(raw.Product) > 0 {
		var s string
		if err := json.Unmarshal(raw.Product, &s); err == nil {
			productID = strings.TrimSpace(s)
		} else {
			var p rawProduct
			if err := json.Unmarshal(raw.Product, &p); err == nil {
				productID = strings.TrimSpace(p.ID)
			}
		}
	}

	out := &CheckoutVerification{
		CheckoutID:    strings.TrimSpace(raw.ID),
		OrderID:       strings.TrimSpace(raw.Order.ID),
		Status:        strings.ToLower(strings.TrimSpace(raw.Status)),
		ProductID:     productID,
		CustomerEmail: strings.TrimSpace(raw.Customer.Email),
	}

	if !isPaidCheckout(out.Status, strings.ToLower(strings.TrimSpace(raw.Order.Status))) {
		return nil, fmt.Errorf("%w: checkout=%s status=%s", ErrCheckoutNotPaid, out.CheckoutID, out.Status)
	}

	plan, err := c.planForProduct(productID)
	if err != nil {
		return nil, err
	}
	out.Plan = plan
	return out, nil
}

func (c *CreemClient) planForProduct(productID string) (entitlements.Plan, error) {
	switch {
	case productID != "" && productID == c.BasicProductID:
		return entitlements.PlanBasic, nil
	case productID != "" && productID == c.ProProductID:
		return entitlements.PlanPro, nil
	default:
		return entitlements.PlanFree, fmt.Errorf("%w: product=%q", ErrUnknownProduct, productID)
	}
}

func isPaidCheckout(checkoutStatus, orderStatus string) bool {
	if checkoutStatus == "completed" || checkoutStatus == "paid" {
		return true
	}
	return orderStatus == "paid"
}
