package spam

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestDetector(t *testing.T, handler http.HandlerFunc, threshold float64) *Detector {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewDetector(Config{
		Endpoint:  srv.URL,
		Model:     "test-model",
		Token:     "test-token",
		Threshold: threshold,
	}, nil)
}

func TestDetectSpam(t *testing.T) {
	d := newTestDetector(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/test-model", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, strings.HasPrefix(req["inputs"], "Subject: WIN NOW"))

		json.NewEncoder(w).Encode([][]scoredLabel{{
			{Label: "LABEL_1", Score: 0.97},
			{Label: "LABEL_0", Score: 0.03},
		}})
	}, 0.8)

	v, err := d.Detect(context.Background(), "WIN NOW", "claim your prize")
	require.NoError(t, err)
	assert.True(t, v.Spam)
	assert.Equal(t, "LABEL_1", v.Label)
	assert.InDelta(t, 0.97, v.Score, 1e-9)
}

func TestDetectHam(t *testing.T) {
	d := newTestDetector(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([][]scoredLabel{{
			{Label: "LABEL_0", Score: 0.99},
			{Label: "LABEL_1", Score: 0.01},
		}})
	}, 0.8)

	v, err := d.Detect(context.Background(), "Standup notes", "moved to 10am")
	require.NoError(t, err)
	assert.False(t, v.Spam)
	assert.Equal(t, "LABEL_0", v.Label)
}

func TestDetectBelowThreshold(t *testing.T) {
	d := newTestDetector(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([][]scoredLabel{{
			{Label: "spam", Score: 0.6},
			{Label: "ham", Score: 0.4},
		}})
	}, 0.8)

	v, err := d.Detect(context.Background(), "maybe spam", "hard to say")
	require.NoError(t, err)
	assert.False(t, v.Spam)
	assert.Equal(t, "spam", v.Label)
}

func TestDetectTruncatesBody(t *testing.T) {
	var sent string
	d := newTestDetector(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		sent = req["inputs"]
		json.NewEncoder(w).Encode([][]scoredLabel{{{Label: "ham", Score: 0.9}}})
	}, 0.8)

	_, err := d.Detect(context.Background(), "s", strings.Repeat("a", 2000))
	require.NoError(t, err)
	assert.Equal(t, len("Subject: s\n\n")+bodyLimit, len(sent))
}

func TestDetectTruncatesOnRuneBoundary(t *testing.T) {
	var sent string
	d := newTestDetector(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		sent = req["inputs"]
		json.NewEncoder(w).Encode([][]scoredLabel{{{Label: "ham", Score: 0.9}}})
	}, 0.8)

	// 3-byte runes do not divide the byte limit evenly; a byte slice
	// would split one mid-sequence.
	_, err := d.Detect(context.Background(), "s", strings.Repeat("☃", 400))
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(sent))
	assert.LessOrEqual(t, len(sent), len("Subject: s\n\n")+bodyLimit)
}

func TestDetectServerError(t *testing.T) {
	d := newTestDetector(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}, 0.8)

	_, err := d.Detect(context.Background(), "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestDetectNotConfigured(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	d := NewDetector(Config{}, zap.New(core))
	assert.False(t, d.Enabled())

	_, err := d.Detect(context.Background(), "s", "b")
	assert.ErrorIs(t, err, ErrNotConfigured)

	// Disabling the stage must be visible, not silent.
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "spam detection disabled")
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	assert.Equal(t, defaultEndpoint, cfg.Endpoint)
	assert.Equal(t, defaultModel, cfg.Model)
	assert.InDelta(t, 0.8, cfg.Threshold, 1e-9)
	assert.NotZero(t, cfg.Timeout)
}
