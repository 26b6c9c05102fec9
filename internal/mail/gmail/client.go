// Package gmail adapts the Gmail API to the mail.Provider interface.
package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/fyrsmithlabs/inboxd/internal/mail"
)

// noiseFilter removes provider-side bulk categories before messages are
// ever downloaded. Appended to every query when enabled.
const noiseFilter = "-category:promotions -category:social -in:spam -in:trash"

// Config holds Gmail client configuration.
type Config struct {
	// CredentialsJSON is the path to the OAuth client secrets file.
	CredentialsJSON string `koanf:"credentials_json"`

	// TokenJSON is the path to a previously obtained user token.
	// Acquiring the token (the browser consent flow) is out of scope for
	// the daemon; an external flow writes this file.
	TokenJSON string `koanf:"token_json"`

	// User is the Gmail user ID. Default "me".
	User string `koanf:"user"`

	// AccountType tags fetched messages. Default personal.
	AccountType string `koanf:"account_type"`

	// ChunkSize bounds concurrent per-message detail fetches. Staying
	// under the per-request rate limit avoids 429 throttling. Default 15.
	ChunkSize int `koanf:"chunk_size"`

	// RateLimitPerSecond caps outbound API calls. Default 10.
	RateLimitPerSecond float64 `koanf:"rate_limit_per_second"`

	// ExcludeNoise appends the provider-side noise filter to queries.
	// Default true (set via ApplyDefaults).
	ExcludeNoise *bool `koanf:"exclude_noise"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.User == "" {
		c.User = "me"
	}
	if c.AccountType == "" {
		c.AccountType = string(mail.AccountPersonal)
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 15
	}
	if c.RateLimitPerSecond == 0 {
		c.RateLimitPerSecond = 10
	}
	if c.ExcludeNoise == nil {
		t := true
		c.ExcludeNoise = &t
	}
}

// Client fetches and normalizes Gmail messages.
type Client struct {
	svc     *gmailapi.Service
	config  Config
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates a Gmail client from stored OAuth credentials.
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	secrets, err := os.ReadFile(cfg.CredentialsJSON)
	if err != nil {
		return nil, fmt.Errorf("reading client secrets: %w", err)
	}
	oauthCfg, err := google.ConfigFromJSON(secrets, gmailapi.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parsing client secrets: %w", err)
	}

	tokenBytes, err := os.ReadFile(cfg.TokenJSON)
	if err != nil {
		return nil, fmt.Errorf("reading token: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(tokenBytes, &token); err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	httpClient := oauthCfg.Client(ctx, &token)
	svc, err := gmailapi.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}

	return newClient(svc, cfg, logger), nil
}

// newClient wires a client around an existing service.
func newClient(svc *gmailapi.Service, cfg Config, logger *zap.Logger) *Client {
	cfg.ApplyDefaults()
	return &Client{
		svc:     svc,
		config:  cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.ChunkSize),
		logger:  logger,
	}
}

// ProfileEmail returns the authenticated account's address.
func (c *Client) ProfileEmail(ctx context.Context) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	profile, err := c.svc.Users.GetProfile(c.config.User).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("fetching profile: %w", err)
	}
	return profile.EmailAddress, nil
}

// FetchPage lists one page of message IDs matching query and downloads the
// full messages in bounded chunks. A failure on a single message is logged
// and skipped; it does not fail the page. Returns the messages in provider
// order and the next page cursor ("" when exhausted).
func (c *Client) FetchPage(ctx context.Context, query, pageToken string, maxResults int64) ([]*mail.Message, string, error) {
	if *c.config.ExcludeNoise {
		query = strings.TrimSpace(query + " " + noiseFilter)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}

	call := c.svc.Users.Messages.List(c.config.User).
		Q(query).
		MaxResults(maxResults).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	listed, err := call.Do()
	if err != nil {
		return nil, "", fmt.Errorf("listing messages: %w", err)
	}
	if len(listed.Messages) == 0 {
		return nil, listed.NextPageToken, nil
	}

	parsed := make([]*mail.Message, len(listed.Messages))
	for start := 0; start < len(listed.Messages); start += c.config.ChunkSize {
		end := start + c.config.ChunkSize
		if end > len(listed.Messages) {
			end = len(listed.Messages)
		}
		if err := c.fetchChunk(ctx, listed.Messages[start:end], parsed[start:end]); err != nil {
			// Per-chunk failure is not fatal to the sync; the remaining
			// chunks may still succeed.
			c.logger.Warn("chunk fetch failed",
				zap.Int("chunk_start", start),
				zap.Error(err),
			)
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
		}
	}

	msgs := make([]*mail.Message, 0, len(parsed))
	for _, m := range parsed {
		if m != nil {
			msgs = append(msgs, m)
		}
	}

	c.logger.Debug("fetched page",
		zap.Int("listed", len(listed.Messages)),
		zap.Int("parsed", len(msgs)),
		zap.Bool("has_next", listed.NextPageToken != ""),
	)

	return msgs, listed.NextPageToken, nil
}

// fetchChunk downloads details for one chunk of listed message IDs into
// out, preserving list order.
func (c *Client) fetchChunk(ctx context.Context, ids []*gmailapi.Message, out []*mail.Message) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.ChunkSize)

	var mu sync.Mutex
	for i, ref := range ids {
		g.Go(func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			full, err := c.svc.Users.Messages.Get(c.config.User, ref.Id).Format("full").Context(ctx).Do()
			if err != nil {
				// Soft skip: one undownloadable message must not sink
				// the page.
				c.logger.Warn("fetching message failed",
					zap.String("id", ref.Id),
					zap.Error(err),
				)
				return nil
			}
			m := c.parse(full)
			mu.Lock()
			out[i] = m
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// parse normalizes an API message into the domain model.
func (c *Client) parse(msg *gmailapi.Message) *mail.Message {
	headers := make(mail.Header)
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			headers[h.Name] = h.Value
		}
	}

	date := time.UnixMilli(msg.InternalDate)
	if t, err := parseDateHeader(headers.Get("Date")); err == nil {
		date = t
	}

	return &mail.Message{
		ID:             msg.Id,
		ThreadID:       msg.ThreadId,
		Sender:         headers.Get("From"),
		To:             splitAddresses(headers.Get("To")),
		Cc:             splitAddresses(headers.Get("Cc")),
		Subject:        headers.Get("Subject"),
		Body:           extractBody(msg.Payload),
		Date:           date,
		Unread:         hasLabel(msg.LabelIds, "UNREAD"),
		HasAttachments: hasAttachments(msg.Payload),
		Headers:        headers,
		Labels:         msg.LabelIds,
		Account:        mail.AccountType(c.config.AccountType),
	}
}

// parseDateHeader parses an RFC 2822 Date header.
func parseDateHeader(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("empty date header")
	}
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, "Mon, 2 Jan 2006 15:04:05 -0700", "2 Jan 2006 15:04:05 -0700"} {
		// Trailing zone comments like "(UTC)" are common; strip them.
		trimmed := v
		if i := strings.Index(trimmed, " ("); i > 0 {
			trimmed = trimmed[:i]
		}
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date header %q", v)
}

// splitAddresses splits a comma-separated address header.
func splitAddresses(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func hasLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

// hasAttachments reports whether any part carries a named attachment.
func hasAttachments(payload *gmailapi.MessagePart) bool {
	if payload == nil {
		return false
	}
	for _, part := range payload.Parts {
		if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
			return true
		}
		if hasAttachments(part) {
			return true
		}
	}
	return false
}
