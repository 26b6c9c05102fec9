// Package answer generates grounded answers from indexed email context.
package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/inboxd/internal/guard"
	"github.com/fyrsmithlabs/inboxd/internal/index"
	"github.com/fyrsmithlabs/inboxd/internal/metrics"
	"github.com/fyrsmithlabs/inboxd/internal/pii"
)

// Constant user-visible strings. Failures never leak internal errors to
// the caller.
const (
	RefusedAnswer   = "I cannot answer this question as it triggered a security alert (Prompt Injection detected)."
	NoContextAnswer = "I couldn't find any relevant emails to answer your question."
	FailedAnswer    = "I'm having trouble processing your question right now."
	FailedSummary   = "I'm having trouble generating a summary right now."
)

// promptTemplate is the assistant prompt. The retrieved email context and
// any caller-supplied context are fenced into tagged sections so the
// model can tell instructions from data.
const promptTemplate = `You are an intelligent and helpful personal email assistant.
Your goal is to help the user manage their digital life by synthesizing information from their emails and calendar.

Guidelines:
1. **Tone**: Be conversational, warm, and professional. Avoid robotic or overly terse responses.
2. **Accuracy**: Answer strictly based on the provided context. If the information is missing, politely say so.
3. **Synthesis**: When asked about lists, aggregate the information rather than just listing emails.
4. **Transparency**: If you are summarizing a large number of items, mention that this is based on the most relevant emails found.

Additional Context (Calendar/System):
<calendar_context>
%s
</calendar_context>

Email Context:
<email_context>
%s
</email_context>

Question: %s`

const summaryTemplate = `Summarize the key points from these emails from the last %d days. Focus on action items and important information.

Emails:
%s`

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Retriever returns decrypted, guard-checked hits for a query.
// *index.Index satisfies it.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]index.Hit, error)
}

// Config holds pipeline configuration.
type Config struct {
	// TopK is how many documents to retrieve per question. Default 30.
	TopK int `koanf:"top_k"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.TopK == 0 {
		c.TopK = 30
	}
}

// Response is one answered question.
type Response struct {
	Answer      string      `json:"answer"`
	Sources     []index.Hit `json:"sources"`
	ContextUsed string      `json:"context_used"`
}

// Pipeline answers questions over the index with PII scrubbed out of
// every model call.
type Pipeline struct {
	config    Config
	retriever Retriever
	generator Generator
	guard     *guard.Guard
	scrubber  *pii.Scrubber
	logger    *zap.Logger
}

// New creates an answer pipeline.
func New(cfg Config, retriever Retriever, generator Generator, g *guard.Guard, scrubber *pii.Scrubber, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &Pipeline{
		config:    cfg,
		retriever: retriever,
		generator: generator,
		guard:     g,
		scrubber:  scrubber,
		logger:    logger,
	}
}

// Answer answers a question from indexed email context plus optional
// caller-supplied context. The question is guard-checked before any
// retrieval happens.
func (p *Pipeline) Answer(ctx context.Context, question, extraContext string) (*Response, error) {
	if res := p.guard.Check(question); !res.Safe {
		metrics.GuardRejections.WithLabelValues("question").Inc()
		metrics.AskRequests.WithLabelValues("refused").Inc()
		p.logger.Warn("question rejected by injection guard",
			zap.Strings("rules", res.RuleIDs),
		)
		return &Response{Answer: RefusedAnswer}, nil
	}

	hits, err := p.retriever.Search(ctx, question, p.config.TopK)
	if err != nil {
		// Retrieval failure degrades to answering without email context
		// rather than failing the request.
		p.logger.Warn("retrieval failed", zap.Error(err))
		hits = nil
	}

	if len(hits) == 0 && extraContext == "" {
		metrics.AskRequests.WithLabelValues("no_context").Inc()
		return &Response{Answer: NoContextAnswer}, nil
	}

	emailContext := "No relevant emails found."
	if len(hits) > 0 {
		emailContext = buildEmailContext(hits)
	}

	prompt := fmt.Sprintf(promptTemplate, extraContext, emailContext, question)

	text, err := p.generate(ctx, prompt)
	if err != nil {
		metrics.AskRequests.WithLabelValues("failed").Inc()
		p.logger.Error("answer generation failed", zap.Error(err))
		return &Response{Answer: FailedAnswer}, nil
	}

	metrics.AskRequests.WithLabelValues("answered").Inc()
	return &Response{
		Answer:      text,
		Sources:     hits,
		ContextUsed: emailContext,
	}, nil
}

// Summary generates a digest of recent email activity.
func (p *Pipeline) Summary(ctx context.Context, days int) (string, error) {
	if days <= 0 {
		days = 7
	}

	query := fmt.Sprintf("emails from the last %d days", days)
	hits, err := p.retriever.Search(ctx, query, p.config.TopK)
	if err != nil {
		p.logger.Warn("retrieval failed", zap.Error(err))
		hits = nil
	}
	if len(hits) == 0 {
		return fmt.Sprintf("No relevant emails found in the last %d days.", days), nil
	}

	lines := make([]string, len(hits))
	for i, hit := range hits {
		lines[i] = fmt.Sprintf("From: %s | %s", hit.Sender, hit.Subject)
	}
	prompt := fmt.Sprintf(summaryTemplate, days, strings.Join(lines, "\n\n"))

	text, err := p.generate(ctx, prompt)
	if err != nil {
		p.logger.Error("summary generation failed", zap.Error(err))
		return FailedSummary, nil
	}
	return text, nil
}

// generate scrubs PII from the prompt, calls the model, and restores
// PII into the response. The model never sees raw addresses or numbers.
func (p *Pipeline) generate(ctx context.Context, prompt string) (string, error) {
	scrubbed, mapping := p.scrubber.Scrub(prompt)

	p.logger.Debug("calling generator",
		zap.Int("prompt_chars", len(scrubbed)),
		zap.Int("pii_values", mapping.Len()),
	)

	text, err := p.generator.Generate(ctx, scrubbed)
	if err != nil {
		return "", err
	}
	return p.scrubber.Restore(text, mapping), nil
}

// buildEmailContext renders retrieved hits for the prompt.
func buildEmailContext(hits []index.Hit) string {
	parts := make([]string, len(hits))
	for i, hit := range hits {
		parts[i] = fmt.Sprintf("Email from %s on %s:\nSubject: %s\nContent: %s",
			hit.Sender, hit.Date.Format(time.DateOnly), hit.Subject, hit.Document)
	}
	return strings.Join(parts, "\n\n")
}
