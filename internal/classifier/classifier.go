// Package classifier decides which messages are worth indexing.
package classifier

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/inboxd/internal/mail"
	"github.com/fyrsmithlabs/inboxd/internal/spam"
)

// Stage order policies.
const (
	StageHeuristicsFirst = "heuristics-first"
	StageMLFirst         = "ml-first"
)

// Stage names recorded on verdicts.
const (
	StageVIP         = "vip"
	StageCategory    = "category"
	StageSpamPattern = "spam-pattern"
	StageMailingList = "mailing-list"
	StageContent     = "content"
	StageRecency     = "recency"
	StageDefault     = "default"
	StageML          = "ml"
)

// Verdict records the outcome of one classification and which rule
// decided it.
type Verdict struct {
	Relevant bool   `json:"relevant"`
	Stage    string `json:"stage"`
	Reason   string `json:"reason"`
}

// Config holds classifier configuration. Zero-value lists fall back to
// the built-in defaults.
type Config struct {
	// StageOrder is heuristics-first (default) or ml-first. With
	// ml-first the spam model runs as a coarse filter before the
	// heuristic chain.
	StageOrder string `koanf:"stage_order"`

	// VIPSenders admit unconditionally when the sender contains any of
	// these substrings (case-insensitive).
	VIPSenders []string `koanf:"vip_senders"`

	// SpamKeywords reject when found in the subject.
	SpamKeywords []string `koanf:"spam_keywords"`

	// MarketingSenders reject when found in the sender address.
	MarketingSenders []string `koanf:"marketing_senders"`

	// MarketingFooters reject when found in the body.
	MarketingFooters []string `koanf:"marketing_footers"`

	// ImportantKeywords admit when found in the subject.
	ImportantKeywords []string `koanf:"important_keywords"`

	// RecencyWindow admits otherwise-undecided messages newer than this.
	// Default 30 days.
	RecencyWindow time.Duration `koanf:"recency_window"`
}

var (
	defaultSpamKeywords = []string{
		"winner", "congratulations", "free money", "click here",
		"limited time", "act now", "lottery", "prize", "viagra",
		"crypto opportunity",
	}

	defaultMarketingSenders = []string{
		"noreply", "no-reply", "newsletter", "marketing", "promo",
		"offers", "deals",
	}

	defaultMarketingFooters = []string{
		"unsubscribe", "view in browser", "update preferences",
	}

	defaultImportantKeywords = []string{
		"urgent", "important", "action required", "deadline",
		"invoice", "payment", "meeting", "interview", "contract",
		"security alert", "verify", "account",
	}

	// actionPatterns match bodies that ask the reader to do something.
	actionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)please\s+(review|confirm|respond|reply|sign|approve|complete|send|verify|update)`),
		regexp.MustCompile(`(?i)\b(need|needed|required|must)\b`),
		regexp.MustCompile(`(?i)\b(deadline|meeting|appointment)\b`),
		regexp.MustCompile(`(?i)\b(attached|attachment)\b`),
	}
)

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.StageOrder == "" {
		c.StageOrder = StageHeuristicsFirst
	}
	if c.SpamKeywords == nil {
		c.SpamKeywords = defaultSpamKeywords
	}
	if c.MarketingSenders == nil {
		c.MarketingSenders = defaultMarketingSenders
	}
	if c.MarketingFooters == nil {
		c.MarketingFooters = defaultMarketingFooters
	}
	if c.ImportantKeywords == nil {
		c.ImportantKeywords = defaultImportantKeywords
	}
	if c.RecencyWindow == 0 {
		c.RecencyWindow = 30 * 24 * time.Hour
	}
	// Heuristic matching is case-insensitive; normalize the configured
	// lists once so comparisons against lowercased message fields hold.
	lowerAll(c.VIPSenders)
	lowerAll(c.SpamKeywords)
	lowerAll(c.MarketingSenders)
	lowerAll(c.MarketingFooters)
	lowerAll(c.ImportantKeywords)
}

func lowerAll(ss []string) {
	for i, s := range ss {
		ss[i] = strings.ToLower(s)
	}
}

// Validate checks config invariants.
func (c *Config) Validate() error {
	switch c.StageOrder {
	case StageHeuristicsFirst, StageMLFirst:
		return nil
	default:
		return fmt.Errorf("unknown stage order %q", c.StageOrder)
	}
}

// Detector is the ML spam stage. *spam.Detector satisfies it.
type Detector interface {
	Enabled() bool
	Detect(ctx context.Context, subject, body string) (spam.Verdict, error)
}

// Classifier runs the relevance chain.
type Classifier struct {
	config   Config
	detector Detector
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a classifier. detector may be nil, which skips the ML
// stage entirely.
func New(cfg Config, detector Detector, logger *zap.Logger) (*Classifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{
		config:   cfg,
		detector: detector,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Classify runs the configured stages and sets msg.IsRelevant from the
// final verdict. VIP senders bypass every spam check, including the ML
// stage.
func (c *Classifier) Classify(ctx context.Context, msg *mail.Message) Verdict {
	if c.config.StageOrder == StageMLFirst {
		if v, rejected := c.mlStage(ctx, msg); rejected {
			msg.IsRelevant = false
			return v
		}
		v := c.heuristics(msg)
		msg.IsRelevant = v.Relevant
		return v
	}

	v := c.heuristics(msg)
	if v.Relevant && v.Stage != StageVIP {
		if mv, rejected := c.mlStage(ctx, msg); rejected {
			v = mv
		}
	}
	msg.IsRelevant = v.Relevant
	return v
}

// heuristics evaluates the ordered short-circuit chain; the first
// matching rule decides.
func (c *Classifier) heuristics(msg *mail.Message) Verdict {
	sender := strings.ToLower(msg.Sender)
	subject := strings.ToLower(msg.Subject)
	body := strings.ToLower(msg.Body)

	for _, vip := range c.config.VIPSenders {
		if vip != "" && strings.Contains(sender, vip) {
			return Verdict{Relevant: true, Stage: StageVIP, Reason: "vip sender " + vip}
		}
	}

	if cat, ok := msg.Category(); ok && (cat == mail.CategoryPromotions || cat == mail.CategorySocial) {
		return Verdict{Stage: StageCategory, Reason: "provider category " + string(cat)}
	}

	for _, kw := range c.config.SpamKeywords {
		if strings.Contains(subject, kw) {
			return Verdict{Stage: StageSpamPattern, Reason: "spam keyword " + kw}
		}
	}
	for _, pat := range c.config.MarketingSenders {
		if strings.Contains(sender, pat) {
			return Verdict{Stage: StageSpamPattern, Reason: "marketing sender " + pat}
		}
	}
	for _, footer := range c.config.MarketingFooters {
		if strings.Contains(body, footer) {
			return Verdict{Stage: StageSpamPattern, Reason: "marketing footer " + footer}
		}
	}

	if msg.Headers.IsMailingList() {
		return Verdict{Stage: StageMailingList, Reason: "mailing-list headers"}
	}

	for _, kw := range c.config.ImportantKeywords {
		if strings.Contains(subject, kw) {
			return Verdict{Relevant: true, Stage: StageContent, Reason: "important keyword " + kw}
		}
	}
	if strings.HasPrefix(subject, "re:") {
		return Verdict{Relevant: true, Stage: StageContent, Reason: "reply subject"}
	}
	for _, pat := range actionPatterns {
		if pat.MatchString(msg.Body) {
			return Verdict{Relevant: true, Stage: StageContent, Reason: "action item"}
		}
	}

	if c.now().Sub(msg.Date) <= c.config.RecencyWindow {
		return Verdict{Relevant: true, Stage: StageRecency, Reason: "recent message"}
	}

	return Verdict{Stage: StageDefault, Reason: "no admitting rule"}
}

// mlStage runs the spam model. Model failure is fail-open: availability
// of ingestion takes precedence over stricter filtering.
func (c *Classifier) mlStage(ctx context.Context, msg *mail.Message) (Verdict, bool) {
	if c.detector == nil || !c.detector.Enabled() {
		return Verdict{}, false
	}

	v, err := c.detector.Detect(ctx, msg.Subject, msg.Body)
	if err != nil {
		c.logger.Warn("spam detection failed, message passes",
			zap.String("id", msg.ID),
			zap.Error(err),
		)
		return Verdict{}, false
	}
	if v.Spam {
		return Verdict{
			Stage:  StageML,
			Reason: fmt.Sprintf("model label %s score %.2f", v.Label, v.Score),
		}, true
	}
	return Verdict{}, false
}
