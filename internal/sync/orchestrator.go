package sync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/inboxd/internal/classifier"
	"github.com/fyrsmithlabs/inboxd/internal/guard"
	"github.com/fyrsmithlabs/inboxd/internal/mail"
	"github.com/fyrsmithlabs/inboxd/internal/metrics"
)

// ErrSyncInProgress is returned when Start is called while a run is
// already in flight. Concurrent runs would double-count progress and
// race on the cursor, so the trigger is rejected instead of queued.
var ErrSyncInProgress = errors.New("sync already in progress")

// Indexer persists relevant messages. *index.Index satisfies it.
type Indexer interface {
	Upsert(ctx context.Context, msgs []*mail.Message) (int, error)
}

// Config holds orchestrator configuration.
type Config struct {
	// Query is the base provider query. The provider appends its own
	// noise filter. Default "newer_than:30d".
	Query string `koanf:"query"`

	// MaxEmails caps how many messages one run processes. Default 500.
	MaxEmails int `koanf:"max_emails"`

	// PageSize bounds one provider page. Default 50.
	PageSize int64 `koanf:"page_size"`

	// ReadinessHorizon: once a page reaches messages older than this,
	// enough history is indexed to answer questions. Default 7 days.
	ReadinessHorizon time.Duration `koanf:"readiness_horizon"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Query == "" {
		c.Query = "newer_than:30d"
	}
	if c.MaxEmails == 0 {
		c.MaxEmails = 500
	}
	if c.PageSize == 0 {
		c.PageSize = 50
	}
	if c.ReadinessHorizon == 0 {
		c.ReadinessHorizon = 7 * 24 * time.Hour
	}
}

// Orchestrator runs the paged sync state machine:
// idle -> syncing -> {completed | error}.
type Orchestrator struct {
	config     Config
	baseCtx    context.Context
	provider   mail.Provider
	guard      *guard.Guard
	classifier *classifier.Classifier
	indexer    Indexer
	status     *Status
	logger     *zap.Logger
	now        func() time.Time

	// done is closed per-run for tests that need to wait.
	done chan struct{}
}

// New creates a sync orchestrator. ctx bounds the lifetime of every run
// it starts: cancelling it stops in-flight syncs at the next page
// boundary during daemon shutdown.
func New(ctx context.Context, cfg Config, provider mail.Provider, g *guard.Guard, cls *classifier.Classifier, indexer Indexer, status *Status, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cfg.ApplyDefaults()
	return &Orchestrator{
		config:     cfg,
		baseCtx:    ctx,
		provider:   provider,
		guard:      g,
		classifier: cls,
		indexer:    indexer,
		status:     status,
		logger:     logger,
		now:        time.Now,
	}
}

// Status returns the shared status container.
func (o *Orchestrator) Status() *Status {
	return o.status
}

// Start launches a sync run in the background and returns its run ID.
// Returns ErrSyncInProgress when a run is already in flight. The run
// detaches from the caller's cancellation (an HTTP trigger returning
// must not abort ingestion) and attaches to the orchestrator's base
// context instead, so daemon shutdown still cancels it.
func (o *Orchestrator) Start(_ context.Context) (string, error) {
	if !o.status.Begin() {
		return "", ErrSyncInProgress
	}

	runID := uuid.NewString()
	done := make(chan struct{})
	o.done = done

	go func() {
		defer close(done)
		o.run(o.baseCtx, runID)
	}()

	return runID, nil
}

// Wait blocks until the most recently started run finishes. Test hook.
func (o *Orchestrator) Wait() {
	if o.done != nil {
		<-o.done
	}
}

// run executes one sync to a terminal state.
func (o *Orchestrator) run(ctx context.Context, runID string) {
	start := o.now()
	logger := o.logger.With(zap.String("run_id", runID))
	logger.Info("sync started",
		zap.Int("max_emails", o.config.MaxEmails),
		zap.Int64("page_size", o.config.PageSize),
	)

	defer func() {
		metrics.SyncDuration.Observe(time.Since(start).Seconds())
	}()

	var (
		pageToken string
		processed int
	)
	horizon := start.Add(-o.config.ReadinessHorizon)

	for {
		if err := ctx.Err(); err != nil {
			metrics.SyncRuns.WithLabelValues("cancelled").Inc()
			o.status.Fail(err)
			logger.Warn("sync cancelled", zap.Int("processed", processed))
			return
		}

		msgs, next, err := o.fetchPage(ctx, pageToken)
		if err != nil {
			metrics.SyncRuns.WithLabelValues("failed").Inc()
			o.status.Fail(err)
			logger.Error("sync failed", zap.Int("processed", processed), zap.Error(err))
			return
		}
		if len(msgs) == 0 {
			break
		}

		safe := o.guardGate(msgs, logger)
		relevant := o.classify(ctx, safe)

		if len(relevant) > 0 {
			indexed, err := o.indexer.Upsert(ctx, relevant)
			if err != nil {
				metrics.SyncRuns.WithLabelValues("failed").Inc()
				o.status.Fail(err)
				logger.Error("sync failed indexing page", zap.Error(err))
				return
			}
			metrics.EmailsIndexed.Add(float64(indexed))
		}

		// Progress counts every safe message evaluated, not just the
		// relevant subset.
		processed += len(safe)
		metrics.EmailsProcessed.Add(float64(len(safe)))
		o.status.SetProgress(processed)

		if oldest, ok := oldestDate(msgs); ok && oldest.Before(horizon) {
			o.status.MarkReady()
		}

		if next == "" || processed >= o.config.MaxEmails {
			break
		}
		pageToken = next
	}

	o.status.Complete(processed)
	metrics.SyncRuns.WithLabelValues("completed").Inc()
	logger.Info("sync completed",
		zap.Int("processed", processed),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// fetchPage requests one page, retrying once on transport failure.
func (o *Orchestrator) fetchPage(ctx context.Context, pageToken string) ([]*mail.Message, string, error) {
	msgs, next, err := o.provider.FetchPage(ctx, o.config.Query, pageToken, o.config.PageSize)
	if err == nil {
		return msgs, next, nil
	}
	o.logger.Warn("page fetch failed, retrying", zap.Error(err))

	msgs, next, err = o.provider.FetchPage(ctx, o.config.Query, pageToken, o.config.PageSize)
	if err != nil {
		return nil, "", err
	}
	return msgs, next, nil
}

// guardGate drops messages that fail the injection guard. Always a
// soft per-item drop with an audit line, never fatal.
func (o *Orchestrator) guardGate(msgs []*mail.Message, logger *zap.Logger) []*mail.Message {
	safe := make([]*mail.Message, 0, len(msgs))
	for _, msg := range msgs {
		if res := o.guard.Check(msg.Subject + "\n" + msg.Body); !res.Safe {
			metrics.GuardRejections.WithLabelValues("ingestion").Inc()
			logger.Warn("message dropped at ingestion by injection guard",
				zap.String("email_id", msg.ID),
				zap.Strings("rules", res.RuleIDs),
			)
			continue
		}
		safe = append(safe, msg)
	}
	return safe
}

// classify runs the relevance chain over safe messages and returns the
// admitted subset.
func (o *Orchestrator) classify(ctx context.Context, msgs []*mail.Message) []*mail.Message {
	relevant := make([]*mail.Message, 0, len(msgs))
	for _, msg := range msgs {
		v := o.classifier.Classify(ctx, msg)
		if !v.Relevant {
			metrics.ClassifierRejections.WithLabelValues(v.Stage).Inc()
			continue
		}
		relevant = append(relevant, msg)
	}
	return relevant
}

// Relevant fetches a fresh page and returns up to limit messages that
// pass the guard and classifier. Listing surface; nothing is indexed
// here beyond what Upsert's own guard admits.
func (o *Orchestrator) Relevant(ctx context.Context, limit int) ([]*mail.Message, error) {
	if limit <= 0 {
		limit = 10
	}

	msgs, _, err := o.provider.FetchPage(ctx, o.config.Query, "", int64(2*limit))
	if err != nil {
		return nil, err
	}

	safe := o.guardGate(msgs, o.logger)
	relevant := o.classify(ctx, safe)
	if len(relevant) > limit {
		relevant = relevant[:limit]
	}
	return relevant, nil
}

// oldestDate returns the earliest message date in the page.
func oldestDate(msgs []*mail.Message) (time.Time, bool) {
	var oldest time.Time
	found := false
	for _, msg := range msgs {
		if msg.Date.IsZero() {
			continue
		}
		if !found || msg.Date.Before(oldest) {
			oldest = msg.Date
			found = true
		}
	}
	return oldest, found
}
