// Package config provides configuration loading for inboxd.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/inboxd/internal/answer"
	"github.com/fyrsmithlabs/inboxd/internal/classifier"
	"github.com/fyrsmithlabs/inboxd/internal/embeddings"
	"github.com/fyrsmithlabs/inboxd/internal/guard"
	"github.com/fyrsmithlabs/inboxd/internal/httpapi"
	"github.com/fyrsmithlabs/inboxd/internal/logging"
	"github.com/fyrsmithlabs/inboxd/internal/mail/gmail"
	"github.com/fyrsmithlabs/inboxd/internal/spam"
	syncpkg "github.com/fyrsmithlabs/inboxd/internal/sync"
	"github.com/fyrsmithlabs/inboxd/internal/vectorstore"
)

// SecurityConfig holds the at-rest encryption settings.
type SecurityConfig struct {
	// EncryptionKey keys the at-rest encryption. Empty falls back to an
	// insecure development key with a loud warning.
	EncryptionKey string `koanf:"encryption_key"`
}

// NotifyConfig holds the notification loop settings.
type NotifyConfig struct {
	// Interval between notification checks. Default 5m.
	Interval time.Duration `koanf:"interval"`
}

// Config is the daemon configuration tree. Section names match the YAML
// file and the INBOXD_<SECTION>_<FIELD> environment variables.
type Config struct {
	Server     httpapi.Config            `koanf:"server"`
	Logging    logging.Config            `koanf:"logging"`
	Security   SecurityConfig            `koanf:"security"`
	Guard      guard.Config              `koanf:"guard"`
	Gmail      gmail.Config              `koanf:"gmail"`
	Spam       spam.Config               `koanf:"spam"`
	Classifier classifier.Config         `koanf:"classifier"`
	Store      vectorstore.ChromemConfig `koanf:"store"`
	Embeddings embeddings.Config         `koanf:"embeddings"`
	Answer     answer.Config             `koanf:"answer"`
	GoogleAI   answer.GoogleAIConfig     `koanf:"googleai"`
	Sync       syncpkg.Config            `koanf:"sync"`
	Notify     NotifyConfig              `koanf:"notify"`
}

// ApplyDefaults fills every unset field across the tree.
func (c *Config) ApplyDefaults() {
	c.Server.ApplyDefaults()
	c.Logging.ApplyDefaults()
	c.Gmail.ApplyDefaults()
	c.Spam.ApplyDefaults()
	c.Classifier.ApplyDefaults()
	c.Store.ApplyDefaults()
	c.Answer.ApplyDefaults()
	c.GoogleAI.ApplyDefaults()
	c.Sync.ApplyDefaults()
	if c.Notify.Interval == 0 {
		c.Notify.Interval = 5 * time.Minute
	}
}

// Validate checks cross-field invariants after defaults are applied.
func (c *Config) Validate() error {
	if _, err := guard.New(&c.Guard); err != nil {
		return fmt.Errorf("guard: %w", err)
	}
	if err := c.Classifier.Validate(); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}

// GmailConfigured reports whether mail credentials are present; without
// them the daemon serves status and ask but cannot sync.
func (c *Config) GmailConfigured() bool {
	return c.Gmail.CredentialsJSON != "" && c.Gmail.TokenJSON != ""
}
