package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *Client {
	return &Client{
		APIToken:        "test-token",
		APIBaseURL:      baseURL,
		ModelVersion:    "test-version",
		MaxPayloadBytes: 1024,
		HTTPClient:      &http.Client{Timeout: 5 * time.Second},
	}
}

func TestCreatePredictionMissingToken(t *testing.T) {
	client := newTestClient("http://127.0.0.1:0")
	client.APIToken = ""

	_, err := client.CreatePrediction(context.Background(), "img", "vid")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCreatePredictionMissingInput(t *testing.T) {
	client := newTestClient("http://127.0.0.1:0")

	_, err := client.CreatePrediction(context.Background(), "", "vid")
	assert.ErrorIs(t, err, ErrMissingInput)

	_, err = client.CreatePrediction(context.Background(), "img", "")
	assert.ErrorIs(t, err, ErrMissingInput)
}

func TestCreatePredictionPayloadTooLarge(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	oversized := strings.Repeat("a", client.MaxPayloadBytes+1)

	_, err := client.CreatePrediction(context.Background(), oversized, "vid")
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.False(t, called, "oversized payload must not reach the external service")
}

func TestCreatePredictionSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/predictions", r.URL.Path)
		require.Equal(t, "Token test-token", r.Header.Get("Authorization"))

		var req predictionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-version", req.Version)
		assert.Equal(t, "img", req.Input.Image)
		assert.Equal(t, "vid", req.Input.Video)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"pred-1","status":"starting"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	prediction, err := client.CreatePrediction(context.Background(), "img", "vid")
	require.NoError(t, err)
	assert.Equal(t, "pred-1", prediction.ID)
	assert.Equal(t, StatusStarting, prediction.Status)
	assert.False(t, prediction.IsTerminal())
}

func TestCreatePredictionUpstreamErrorPropagatesStatusAndDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":"version does not exist"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.CreatePrediction(context.Background(), "img", "vid")

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusUnprocessableEntity, upstream.StatusCode)
	assert.Contains(t, upstream.Detail, "version does not exist")
}

func TestCreatePredictionUpstreamErrorTruncatesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.CreatePrediction(context.Background(), "img", "vid")

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.LessOrEqual(t, len(upstream.Detail), maxDiagnosticBytes)
}

func TestCreatePredictionParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html>definitely not json</html>"))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.CreatePrediction(context.Background(), "img", "vid")

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Excerpt, "not json")
}

func TestGetPrediction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/predictions/pred-1", r.URL.Path)
		w.Write([]byte(`{"id":"pred-1","status":"succeeded","output":"https://cdn.example/out.mp4"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	prediction, err := client.GetPrediction(context.Background(), "pred-1")
	require.NoError(t, err)
	assert.True(t, prediction.IsTerminal())
	assert.Equal(t, "https://cdn.example/out.mp4", prediction.OutputURL())
}

func TestGetPredictionMissingID(t *testing.T) {
	client := newTestClient("http://127.0.0.1:0")
	_, err := client.GetPrediction(context.Background(), " ")
	assert.True(t, errors.Is(err, ErrMissingInput))
}

func TestPredictionOutputURLVariants(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{name: "string output", output: `"https://cdn.example/a.mp4"`, want: "https://cdn.example/a.mp4"},
		{name: "array output", output: `["https://cdn.example/a.mp4","https://cdn.example/b.mp4"]`, want: "https://cdn.example/b.mp4"},
		{name: "empty", output: ``, want: ""},
		{name: "null", output: `null`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Prediction{Output: json.RawMessage(tt.output)}
			assert.Equal(t, tt.want, p.OutputURL())
		})
	}
}
