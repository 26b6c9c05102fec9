// Package spam scores messages with a hosted text-classification model.
package spam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	// defaultEndpoint is the hosted inference base URL. The model name is
	// appended as a path segment.
	defaultEndpoint = "https://api-inference.huggingface.co/models"

	// defaultModel is a small spam/ham classifier.
	defaultModel = "mrm8488/bert-tiny-finetuned-sms-spam-detection"

	// bodyLimit bounds how much of the body is sent for scoring. Spam
	// signal concentrates at the top of the message.
	bodyLimit = 512
)

var (
	// ErrNotConfigured is returned when the detector was built without an
	// API token.
	ErrNotConfigured = errors.New("spam: detector not configured")
)

// Verdict is one classification result.
type Verdict struct {
	// Spam reports whether the model labeled the text as spam with at
	// least the configured confidence.
	Spam bool

	// Label is the raw model label.
	Label string

	// Score is the model confidence for Label, in [0, 1].
	Score float64
}

// Config holds detector configuration.
type Config struct {
	// Endpoint is the inference API base URL. Default is the hosted
	// Hugging Face endpoint.
	Endpoint string `koanf:"endpoint"`

	// Model is the text-classification model ID.
	Model string `koanf:"model"`

	// Token authorizes inference calls. When empty the detector is
	// disabled and Detect returns ErrNotConfigured.
	Token string `koanf:"token"`

	// Threshold is the minimum spam-label score to call a message spam.
	// Default 0.8.
	Threshold float64 `koanf:"threshold"`

	// Timeout bounds a single inference call. Default 10s.
	Timeout time.Duration `koanf:"timeout"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = defaultEndpoint
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Threshold == 0 {
		c.Threshold = 0.8
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

// Detector scores text against a remote classification model.
type Detector struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

// NewDetector creates a spam detector. A detector without a token is
// valid but disabled; Enabled reports false and Detect fails fast.
func NewDetector(cfg Config, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	if cfg.Token == "" {
		logger.Warn("spam detection disabled, no inference token configured")
	}

	return &Detector{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Enabled reports whether the detector can make inference calls.
func (d *Detector) Enabled() bool {
	return d.config.Token != ""
}

// scoredLabel is one entry in the inference response.
type scoredLabel struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Detect scores a message's subject and body. The body is truncated
// before sending; subjects are short enough to pass whole.
func (d *Detector) Detect(ctx context.Context, subject, body string) (Verdict, error) {
	if !d.Enabled() {
		return Verdict{}, ErrNotConfigured
	}

	body = truncateUTF8(body, bodyLimit)
	input := fmt.Sprintf("Subject: %s\n\n%s", subject, body)

	payload, err := json.Marshal(map[string]string{"inputs": input})
	if err != nil {
		return Verdict{}, fmt.Errorf("encoding request: %w", err)
	}

	url := d.config.Endpoint + "/" + d.config.Model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Verdict{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.config.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("calling inference api: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Verdict{}, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Verdict{}, fmt.Errorf("inference api returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	// The API nests results one level deep for single inputs.
	var results [][]scoredLabel
	if err := json.Unmarshal(raw, &results); err != nil {
		return Verdict{}, fmt.Errorf("decoding response: %w", err)
	}
	if len(results) == 0 || len(results[0]) == 0 {
		return Verdict{}, errors.New("empty inference response")
	}

	best := results[0][0]
	for _, l := range results[0][1:] {
		if l.Score > best.Score {
			best = l
		}
	}

	verdict := Verdict{
		Spam:  isSpamLabel(best.Label) && best.Score >= d.config.Threshold,
		Label: best.Label,
		Score: best.Score,
	}

	d.logger.Debug("scored message",
		zap.String("label", verdict.Label),
		zap.Float64("score", verdict.Score),
		zap.Bool("spam", verdict.Spam),
	)

	return verdict, nil
}

// isSpamLabel maps the model's label vocabulary to a spam bit. Binary
// spam models commonly emit LABEL_1 or "spam" for the positive class.
func isSpamLabel(label string) bool {
	switch label {
	case "spam", "SPAM", "LABEL_1":
		return true
	}
	return false
}

// truncateUTF8 cuts s to at most limit bytes, backing off to a rune
// boundary so the result stays valid UTF-8.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
