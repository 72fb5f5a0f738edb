package generation

import (
	"errors"
	"fmt"
)

// maxDiagnosticBytes bounds how much of an upstream body is carried in errors.
const maxDiagnosticBytes = 500

var (
	// ErrNotConfigured indicates the server-held API token is missing.
	ErrNotConfigured = errors.New("generation: REPLICATE_API_TOKEN is not configured")

	// ErrMissingInput indicates the request lacks the reference image or driving video.
	ErrMissingInput = errors.New("generation: image and video are required")

	// ErrPayloadTooLarge indicates an input exceeds the configured encoded size limit.
	ErrPayloadTooLarge = errors.New("generation: payload exceeds the configured size limit")

	// ErrPollDeadlineExceeded indicates the poller gave up before the job
	// reached a terminal state.
	ErrPollDeadlineExceeded = errors.New("generation: polling attempts exhausted before job finished")
)

// UpstreamError carries a non-2xx response from the external service,
// with whatever diagnostic body it returned (truncated).
type UpstreamError struct {
	StatusCode int
	Status     string
	Detail     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("generation: upstream error: status=%d detail=%s", e.StatusCode, e.Detail)
}

// ParseError indicates the external service returned a body that is not
// valid structured data. Excerpt is truncated for diagnosis.
type ParseError struct {
	Excerpt string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("generation: failed to parse upstream response: %v (body excerpt: %s)", e.Err, e.Excerpt)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// GenerationFailedError reports a terminal failure of the external job.
type GenerationFailedError struct {
	PredictionID string
	Message      string
}

func (e *GenerationFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("generation: prediction %s failed", e.PredictionID)
	}
	return fmt.Sprintf("generation: prediction %s failed: %s", e.PredictionID, e.Message)
}

// truncate bounds diagnostic payloads so error responses stay small.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
