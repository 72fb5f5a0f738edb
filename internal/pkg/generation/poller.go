package generation

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/facemojo/facemojo/internal/pkg/env"
)

const (
	defaultPollInterval    = 3 * time.Second
	defaultPollMaxAttempts = 100
)

// Poller repeatedly queries the external service until a job reaches a
// terminal state. Every wait is bounded by the attempt budget and aborted
// by context cancellation.
type Poller struct {
	Client      *Client
	Interval    time.Duration
	MaxAttempts int
}

// NewPollerFromEnv builds a poller with configured interval and attempt budget.
func NewPollerFromEnv(client *Client) *Poller {
	interval := defaultPollInterval
	if raw := strings.TrimSpace(env.GetEnv("GENERATION_POLL_INTERVAL", "")); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			interval = d
		}
	}
	maxAttempts := defaultPollMaxAttempts
	if raw := strings.TrimSpace(env.GetEnv("GENERATION_POLL_MAX_ATTEMPTS", "")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			maxAttempts = v
		}
	}
	return &Poller{
		Client:      client,
		Interval:    interval,
		MaxAttempts: maxAttempts,
	}
}

// PollUntilDone queries immediately, then at the configured interval until
// the prediction is terminal. A succeeded prediction is returned as-is; a
// failed or canceled one yields a GenerationFailedError carrying the
// upstream error message. When the attempt budget runs out the job is
// assumed stuck and ErrPollDeadlineExceeded is returned.
func (p *Poller) PollUntilDone(ctx context.Context, id string) (*Prediction, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultPollMaxAttempts
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		prediction, err := p.Client.GetPrediction(ctx, id)
		if err != nil {
			return nil, err
		}

		switch prediction.Status {
		case StatusSucceeded:
			return prediction, nil
		case StatusFailed, StatusCanceled:
			return nil, &GenerationFailedError{PredictionID: id, Message: prediction.Error}
		}

		// queued/processing: wait one interval unless the caller gave up
		if attempt == maxAttempts-1 {
			break
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, ErrPollDeadlineExceeded
}
