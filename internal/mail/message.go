// Package mail defines the provider-independent email domain model.
package mail

import (
	"context"
	"strings"
	"time"
)

// AccountType classifies the account a message belongs to.
type AccountType string

// Known account types.
const (
	AccountPersonal AccountType = "personal"
	AccountWork     AccountType = "work"
	AccountSchool   AccountType = "school"
)

// Category is a provider-supplied bulk-mail category, modeled as a closed
// enumeration rather than ad hoc label-string membership tests.
type Category string

// Known categories.
const (
	CategoryPromotions Category = "promotions"
	CategorySocial     Category = "social"
	CategoryUpdates    Category = "updates"
	CategoryForums     Category = "forums"
)

// categoryByLabel maps provider label strings to categories. Gmail label
// IDs are the only dialect currently spoken; new providers extend this
// table instead of scattering string comparisons.
var categoryByLabel = map[string]Category{
	"CATEGORY_PROMOTIONS": CategoryPromotions,
	"CATEGORY_SOCIAL":     CategorySocial,
	"CATEGORY_UPDATES":    CategoryUpdates,
	"CATEGORY_FORUMS":     CategoryForums,
}

// CategoryFromLabel maps a provider label string to a Category.
func CategoryFromLabel(label string) (Category, bool) {
	c, ok := categoryByLabel[label]
	return c, ok
}

// listHeaderKeys identifies mailing-list traffic (RFC 2369/2919 plus the
// common non-standard variants).
var listHeaderKeys = map[string]struct{}{
	"list-id":          {},
	"list-unsubscribe": {},
	"list-subscribe":   {},
	"list-post":        {},
	"list-owner":       {},
	"list-archive":     {},
	"list-help":        {},
	"mailing-list":     {},
	"x-mailing-list":   {},
}

// bulkPrecedence values on the Precedence header that mark list traffic.
var bulkPrecedence = map[string]struct{}{
	"bulk": {},
	"list": {},
	"junk": {},
}

// Header is a case-insensitive header mapping.
type Header map[string]string

// Get returns the value for key, matching case-insensitively.
func (h Header) Get(key string) string {
	if v, ok := h[key]; ok {
		return v
	}
	for k, v := range h {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// IsMailingList reports whether the headers identify mailing-list traffic:
// any list header key is present, or Precedence is bulk/list/junk.
func (h Header) IsMailingList() bool {
	for k := range h {
		if _, ok := listHeaderKeys[strings.ToLower(k)]; ok {
			return true
		}
	}
	_, ok := bulkPrecedence[strings.ToLower(h.Get("Precedence"))]
	return ok
}

// Message is a provider-normalized email message.
type Message struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`

	Sender string   `json:"sender"`
	To     []string `json:"to"`
	Cc     []string `json:"cc"`

	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Date    time.Time `json:"date"`

	Unread         bool     `json:"is_unread"`
	HasAttachments bool     `json:"has_attachments"`
	Headers        Header   `json:"headers"`
	Labels         []string `json:"labels"`

	// IsRelevant starts false and is set at most once per classification
	// pass; a rejected message is never re-admitted within the same sync.
	IsRelevant bool `json:"is_relevant"`

	Account AccountType `json:"account_type"`
}

// HasLabel reports whether the message carries the given provider label.
func (m *Message) HasLabel(label string) bool {
	for _, l := range m.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Category returns the first recognized bulk-mail category on the message.
func (m *Message) Category() (Category, bool) {
	for _, l := range m.Labels {
		if c, ok := CategoryFromLabel(l); ok {
			return c, true
		}
	}
	return "", false
}

// Provider is the narrow surface the ingestion loop needs from a mail
// backend. FetchPage returns one page of fully parsed messages in provider
// order and the opaque cursor for the next page ("" when exhausted).
type Provider interface {
	FetchPage(ctx context.Context, query, pageToken string, maxResults int64) ([]*Message, string, error)
}
