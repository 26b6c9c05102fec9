// Inboxd is an email retrieval daemon with an HTTP API.
//
// This binary starts the inboxd HTTP server with full service
// initialization, including the Gmail provider, embeddings, the
// encrypted vector index, and the answer pipeline.
//
// Configuration is loaded from a YAML file plus INBOXD_* environment
// variables. See internal/config for details.
//
// Usage:
//
//	# Start daemon with defaults (~/.config/inboxd/config.yaml)
//	inboxd
//
//	# Configure explicitly
//	inboxd -config /etc/inboxd/config.yaml
//	INBOXD_SERVER_PORT=9090 inboxd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/inboxd/internal/answer"
	"github.com/fyrsmithlabs/inboxd/internal/classifier"
	"github.com/fyrsmithlabs/inboxd/internal/config"
	"github.com/fyrsmithlabs/inboxd/internal/crypto"
	"github.com/fyrsmithlabs/inboxd/internal/embeddings"
	"github.com/fyrsmithlabs/inboxd/internal/guard"
	"github.com/fyrsmithlabs/inboxd/internal/httpapi"
	"github.com/fyrsmithlabs/inboxd/internal/index"
	"github.com/fyrsmithlabs/inboxd/internal/logging"
	"github.com/fyrsmithlabs/inboxd/internal/mail"
	"github.com/fyrsmithlabs/inboxd/internal/mail/gmail"
	"github.com/fyrsmithlabs/inboxd/internal/notify"
	"github.com/fyrsmithlabs/inboxd/internal/pii"
	"github.com/fyrsmithlabs/inboxd/internal/spam"
	syncpkg "github.com/fyrsmithlabs/inboxd/internal/sync"
	"github.com/fyrsmithlabs/inboxd/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/inboxd/config.yaml)")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  inboxd           Start the inboxd daemon\n")
			fmt.Fprintf(os.Stderr, "  inboxd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("inboxd\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the inboxd daemon and blocks until context is cancelled.
//
// Initialization order:
//  1. Load and validate configuration
//  2. Initialize logger
//  3. Build the security layer (encryption, injection guard, PII scrubber)
//  4. Build the index (embeddings + encrypted vector store)
//  5. Build the classifier and the Gmail provider
//  6. Build the answer pipeline
//  7. Wire the orchestrator, notifier, and HTTP server
//  8. Perform graceful shutdown on context cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("Starting inboxd",
		zap.String("version", version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port))

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	logger.Info("Dependencies initialized",
		zap.Bool("gmail_connected", deps.provider != nil),
		zap.Bool("generator_ready", deps.generator != nil),
		zap.String("embeddings_provider", cfg.Embeddings.Provider))

	// Sync orchestration is only available with mail credentials; the
	// daemon still serves status, search, and answers without them.
	status := syncpkg.NewStatus()
	var syncer httpapi.Syncer
	if deps.provider != nil {
		syncer = syncpkg.New(ctx, cfg.Sync, deps.provider, deps.guard, deps.classifier, deps.index, status, logger)
	}

	var answerer httpapi.Answerer
	if deps.generator != nil {
		answerer = answer.New(cfg.Answer, deps.index, deps.generator, deps.guard, deps.scrubber, logger)
	}

	srv, err := httpapi.NewServer(cfg.Server, status, syncer, answerer, deps.provider != nil, logger)
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	notifier := notify.NewRunner(notify.NopChecker{}, cfg.Notify.Interval, logger)
	go notifier.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("Server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://%s:%d/health", cfg.Server.Host, cfg.Server.Port)),
		zap.String("api_prefix", "/api/v1"),
		zap.String("metrics_endpoint", "/metrics"))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Graceful shutdown failed", zap.Error(err))
	}
	return nil
}

// dependencies holds all infrastructure dependencies.
type dependencies struct {
	encryptor  *crypto.Encryptor
	guard      *guard.Guard
	scrubber   *pii.Scrubber
	embedder   embeddings.Provider
	store      vectorstore.Store
	index      *index.Index
	classifier *classifier.Classifier
	provider   mail.Provider
	generator  answer.Generator
	logger     *zap.Logger
}

// Close releases all infrastructure resources.
func (d *dependencies) Close() {
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.Warn("Closing vector store failed", zap.Error(err))
		}
	}
	if d.embedder != nil {
		if err := d.embedder.Close(); err != nil {
			d.logger.Warn("Closing embeddings provider failed", zap.Error(err))
		}
	}
}

// initDependencies initializes all infrastructure dependencies.
func initDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	encryptor, err := crypto.New(cfg.Security.EncryptionKey, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	g, err := guard.New(&cfg.Guard)
	if err != nil {
		return nil, fmt.Errorf("failed to create injection guard: %w", err)
	}
	scrubber := pii.NewScrubber()

	embedder, err := embeddings.NewProvider(cfg.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings provider: %w", err)
	}

	cfg.Store.VectorSize = embedder.Dimension()
	store, err := vectorstore.NewChromemStore(cfg.Store, logger)
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	idx := index.New(store, embedder, encryptor, g, logger)

	detector := spam.NewDetector(cfg.Spam, logger)
	cls, err := classifier.New(cfg.Classifier, detector, logger)
	if err != nil {
		_ = store.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to create classifier: %w", err)
	}

	deps := &dependencies{
		encryptor:  encryptor,
		guard:      g,
		scrubber:   scrubber,
		embedder:   embedder,
		store:      store,
		index:      idx,
		classifier: cls,
		logger:     logger,
	}

	if cfg.GmailConfigured() {
		client, err := gmail.NewClient(ctx, cfg.Gmail, logger)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to create gmail client: %w", err)
		}
		deps.provider = client
	} else {
		logger.Warn("Gmail credentials not configured, sync disabled")
	}

	if cfg.GoogleAI.APIKey != "" {
		gen, err := answer.NewGoogleAIGenerator(ctx, cfg.GoogleAI)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to create generator: %w", err)
		}
		deps.generator = gen
	} else {
		logger.Warn("GoogleAI API key not configured, answers disabled")
	}

	return deps, nil
}
