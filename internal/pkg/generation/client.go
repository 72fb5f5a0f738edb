package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/facemojo/facemojo/internal/pkg/env"
)

const (
	defaultAPIBaseURL      = "https://api.replicate.com/v1"
	defaultModelVersion    = "a6ea89def8d2125215e4d2f920d608b171866840f8b5bff3be46c4c1ce9b259b"
	defaultMaxPayloadBytes = 10 * 1024 * 1024
)

// Prediction statuses reported by the external service.
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// Prediction is the external service's view of a job. The server holds no
// independent job state; this struct is re-fetched on every status lookup.
type Prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// IsTerminal reports whether no further status transitions occur.
func (p *Prediction) IsTerminal() bool {
	switch p.Status {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// OutputURL extracts the artifact URL from the output field, which the
// external service returns either as a string or as an array of strings.
func (p *Prediction) OutputURL() string {
	if len(p.Output) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil {
		return single
	}
	var many []string
	if err := json.Unmarshal(p.Output, &many); err == nil && len(many) > 0 {
		return many[len(many)-1]
	}
	return ""
}

// Client submits and looks up predictions against the external generation
// service. The API token never leaves the server.
type Client struct {
	APIToken        string
	APIBaseURL      string
	ModelVersion    string
	MaxPayloadBytes int

	HTTPClient *http.Client
}

// NewClientFromEnv builds a client from environment configuration.
func NewClientFromEnv() *Client {
	maxPayload := defaultMaxPayloadBytes
	if raw := strings.TrimSpace(env.GetEnv("GENERATION_MAX_PAYLOAD_BYTES", "")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			maxPayload = v
		}
	}

	return &Client{
		APIToken:        strings.TrimSpace(env.GetEnv("REPLICATE_API_TOKEN", "")),
		APIBaseURL:      strings.TrimRight(env.GetEnv("REPLICATE_API_BASE_URL", defaultAPIBaseURL), "/"),
		ModelVersion:    strings.TrimSpace(env.GetEnv("REPLICATE_MODEL_VERSION", defaultModelVersion)),
		MaxPayloadBytes: maxPayload,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type predictionRequest struct {
	Version string          `json:"version"`
	Input   predictionInput `json:"input"`
}

type predictionInput struct {
	Image string `json:"image"`
	Video string `json:"video"`
}

// CreatePrediction validates the inputs and forwards the job to the external
// service. Both payloads are base64 data URIs; each is checked against the
// configured encoded size limit before any network call is made.
func (c *Client) CreatePrediction(ctx context.Context, image, video string) (*Prediction, error) {
	if strings.TrimSpace(c.APIToken) == "" {
		return nil, ErrNotConfigured
	}
	if image == "" || video == "" {
		return nil, ErrMissingInput
	}
	if len(image) > c.MaxPayloadBytes || len(video) > c.MaxPayloadBytes {
		return nil, ErrPayloadTooLarge
	}

	body, err := json.Marshal(predictionRequest{
		Version: c.ModelVersion,
		Input:   predictionInput{Image: image, Video: video},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+"/predictions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.APIToken)

	return c.do(req)
}

// GetPrediction looks up the current state of a job by its external id.
func (c *Client) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	if strings.TrimSpace(c.APIToken) == "" {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(id) == "" {
		return nil, ErrMissingInput
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIBaseURL+"/predictions/"+id, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.APIToken)

	return c.do(req)
}

func (c *Client) do(req *http.Request) (*Prediction, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Detail:     upstreamDetail(body),
		}
	}

	var prediction Prediction
	if err := json.Unmarshal(body, &prediction); err != nil {
		return nil, &ParseError{Excerpt: truncate(string(body), maxDiagnosticBytes), Err: err}
	}
	return &prediction, nil
}

// upstreamDetail prefers the compacted JSON body when parseable, otherwise
// falls back to raw text. Always truncated.
func upstreamDetail(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "no additional details available"
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err == nil {
		return truncate(compact.String(), maxDiagnosticBytes)
	}
	return truncate(string(trimmed), maxDiagnosticBytes)
}
