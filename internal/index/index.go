// Package index layers encryption and injection guarding over the
// vector store.
package index

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/inboxd/internal/crypto"
	"github.com/fyrsmithlabs/inboxd/internal/embeddings"
	"github.com/fyrsmithlabs/inboxd/internal/guard"
	"github.com/fyrsmithlabs/inboxd/internal/mail"
	"github.com/fyrsmithlabs/inboxd/internal/metrics"
	"github.com/fyrsmithlabs/inboxd/internal/vectorstore"
)

var tracer = otel.Tracer("inboxd.index")

// bodyLimit bounds how much of a message body goes into the indexed
// document.
const bodyLimit = 1000

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

// Hit is one retrieval result, decrypted and guard-checked.
type Hit struct {
	EmailID     string    `json:"email_id"`
	Subject     string    `json:"subject"`
	Sender      string    `json:"sender"`
	Date        time.Time `json:"date"`
	AccountType string    `json:"account_type"`

	// Document is the decrypted indexed text.
	Document string `json:"document"`

	// Distance is 1 - cosine similarity; lower is closer.
	Distance float32 `json:"distance"`
}

// Index stores relevant messages encrypted at rest while searching over
// plaintext-derived embeddings. Embeddings are computed here, before
// encryption, and handed to the store precomputed; the store only ever
// sees ciphertext.
type Index struct {
	store     vectorstore.Store
	provider  embeddings.Provider
	encryptor *crypto.Encryptor
	guard     *guard.Guard
	logger    *zap.Logger
}

// New creates an index over the given store.
func New(store vectorstore.Store, provider embeddings.Provider, encryptor *crypto.Encryptor, g *guard.Guard, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		store:     store,
		provider:  provider,
		encryptor: encryptor,
		guard:     g,
		logger:    logger,
	}
}

// Upsert indexes the relevant messages in msgs. Messages that fail the
// injection guard are dropped with a warning; upsert is reachable from
// more than one path, so the check here is not redundant with the
// orchestrator's. Returns the number of messages written.
func (ix *Index) Upsert(ctx context.Context, msgs []*mail.Message) (int, error) {
	ctx, span := tracer.Start(ctx, "Index.Upsert")
	defer span.End()

	span.SetAttributes(attribute.Int("message_count", len(msgs)))

	var admitted []*mail.Message
	var plaintexts []string
	for _, msg := range msgs {
		if !msg.IsRelevant {
			continue
		}
		if res := ix.guard.Check(msg.Subject + "\n" + msg.Body); !res.Safe {
			metrics.GuardRejections.WithLabelValues("ingestion").Inc()
			ix.logger.Warn("message rejected by injection guard",
				zap.String("email_id", msg.ID),
				zap.Strings("rules", res.RuleIDs),
			)
			continue
		}
		admitted = append(admitted, msg)
		plaintexts = append(plaintexts, buildDocument(msg))
	}
	if len(admitted) == 0 {
		return 0, nil
	}

	vectors, err := ix.provider.EmbedDocuments(ctx, plaintexts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("embedding documents: %w", err)
	}
	if len(vectors) != len(admitted) {
		return 0, fmt.Errorf("embedding count mismatch: got %d for %d documents", len(vectors), len(admitted))
	}

	docs := make([]vectorstore.Document, len(admitted))
	for i, msg := range admitted {
		content, err := ix.encryptor.Encrypt(plaintexts[i])
		if err != nil {
			return 0, fmt.Errorf("encrypting document %s: %w", msg.ID, err)
		}
		subject, err := ix.encryptor.Encrypt(msg.Subject)
		if err != nil {
			return 0, fmt.Errorf("encrypting subject %s: %w", msg.ID, err)
		}
		sender, err := ix.encryptor.Encrypt(msg.Sender)
		if err != nil {
			return 0, fmt.Errorf("encrypting sender %s: %w", msg.ID, err)
		}

		docs[i] = vectorstore.Document{
			ID:        msg.ID,
			Content:   content,
			Embedding: vectors[i],
			Metadata: map[string]string{
				"email_id":     msg.ID,
				"subject":      subject,
				"sender":       sender,
				"date":         msg.Date.Format(time.RFC3339),
				"account_type": string(msg.Account),
			},
		}
	}

	if _, err := ix.store.Add(ctx, docs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("storing documents: %w", err)
	}

	span.SetAttributes(attribute.Int("indexed", len(docs)))
	span.SetStatus(codes.Ok, "success")

	ix.logger.Debug("indexed messages", zap.Int("count", len(docs)))
	return len(docs), nil
}

// Search embeds the query, searches the store and decrypts the hits.
// A hit whose decrypted subject or document fails the injection guard
// is dropped; poisoned stored content must not reach the model.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	ctx, span := tracer.Start(ctx, "Index.Search")
	defer span.End()

	span.SetAttributes(attribute.Int("k", k))

	vector, err := ix.provider.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := ix.store.Query(ctx, vector, k, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying store: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		doc := ix.encryptor.Decrypt(r.Content)
		subject := ix.encryptor.Decrypt(r.Metadata["subject"])
		if res := ix.guard.Check(subject + "\n" + doc); !res.Safe {
			metrics.GuardRejections.WithLabelValues("retrieval").Inc()
			ix.logger.Warn("stored document rejected by injection guard",
				zap.String("email_id", r.Metadata["email_id"]),
				zap.Strings("rules", res.RuleIDs),
			)
			continue
		}

		date, _ := time.Parse(time.RFC3339, r.Metadata["date"])
		hits = append(hits, Hit{
			EmailID:     r.Metadata["email_id"],
			Subject:     subject,
			Sender:      ix.encryptor.Decrypt(r.Metadata["sender"]),
			Date:        date,
			AccountType: r.Metadata["account_type"],
			Document:    doc,
			Distance:    1 - r.Similarity,
		})
	}

	span.SetAttributes(attribute.Int("hits", len(hits)))
	span.SetStatus(codes.Ok, "success")

	return hits, nil
}

// Count returns the number of indexed documents.
func (ix *Index) Count(ctx context.Context) (int, error) {
	return ix.store.Count(ctx)
}

// buildDocument renders the bounded plaintext that gets embedded and
// encrypted.
func buildDocument(msg *mail.Message) string {
	body := msg.Body
	body = truncateUTF8(body, bodyLimit)
	return fmt.Sprintf("Subject: %s\nFrom: %s\nDate: %s\n\n%s",
		msg.Subject, msg.Sender, msg.Date.Format("2006-01-02"), body)
}
