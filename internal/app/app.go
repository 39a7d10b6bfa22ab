package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/heartmarshall/docflow-backend/internal/adapter/classifier"
	"github.com/heartmarshall/docflow-backend/internal/adapter/extractor"
	"github.com/heartmarshall/docflow-backend/internal/adapter/gemini"
	"github.com/heartmarshall/docflow-backend/internal/adapter/index"
	"github.com/heartmarshall/docflow-backend/internal/adapter/objectstore"
	"github.com/heartmarshall/docflow-backend/internal/adapter/postgres"
	auditrepo "github.com/heartmarshall/docflow-backend/internal/adapter/postgres/audit"
	documentrepo "github.com/heartmarshall/docflow-backend/internal/adapter/postgres/document"
	workflowrepo "github.com/heartmarshall/docflow-backend/internal/adapter/postgres/workflow"
	"github.com/heartmarshall/docflow-backend/internal/adapter/workflowengine"
	"github.com/heartmarshall/docflow-backend/internal/auth"
	"github.com/heartmarshall/docflow-backend/internal/config"
	"github.com/heartmarshall/docflow-backend/internal/domain"
	"github.com/heartmarshall/docflow-backend/internal/service/audit"
	"github.com/heartmarshall/docflow-backend/internal/service/document"
	"github.com/heartmarshall/docflow-backend/internal/service/pipeline"
	"github.com/heartmarshall/docflow-backend/internal/service/workflow"
	"github.com/heartmarshall/docflow-backend/internal/transport/middleware"
	"github.com/heartmarshall/docflow-backend/internal/transport/rest"
)

// Run is the application entry point. It loads configuration, connects to
// the database, wires the pipeline and serves HTTP until ctx is cancelled.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := NewLogger(cfg.Log)

	logger.Info("starting application",
		slog.String("version", BuildVersion()),
		slog.String("log_level", cfg.Log.Level),
		slog.String("storage", cfg.Storage.Backend),
		slog.String("classifier", cfg.Classifier.Provider),
		slog.String("workflow_engine", cfg.Workflow.Engine),
	)

	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server.Serve(gctx) })
	g.Go(func() error { return a.sink.Run(gctx) })
	g.Go(func() error { return a.runner.Run(gctx) })
	g.Go(func() error { return a.scheduler.Run(gctx) })
	g.Go(func() error { return a.throttle.Run(gctx) })

	err = g.Wait()

	// Workers may commit after the sink's own final flush.
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if ferr := a.sink.Flush(flushCtx); ferr != nil {
		logger.Error("audit flush on shutdown failed",
			slog.Int("pending", a.sink.Pending()),
			slog.String("error", ferr.Error()),
		)
	}

	logger.Info("application stopped")
	return err
}

// application holds the long-running components started by Run.
type application struct {
	server    *httpServer
	sink      *audit.Sink
	runner    *pipeline.Runner
	scheduler *pipeline.Scheduler
	throttle  *middleware.UploadThrottle
	closers   []func()
}

func (a *application) close() {
	closeAll(a.closers)
}

func closeAll(closers []func()) {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

type objectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// Pipeline is the orchestrator wired to its stores and stage adapters. The
// server and the operator CLI share it.
type Pipeline struct {
	Pool      *pgxpool.Pool
	Documents *documentrepo.Repo
	Sink      *audit.Sink
	Index     *index.Store
	Indexer   *index.Indexer
	Workflows *workflow.Service
	Service   *pipeline.Service

	objects objectStore
	closers []func()
}

// Close releases every resource opened by OpenPipeline in reverse order.
func (p *Pipeline) Close() {
	closeAll(p.closers)
}

// OpenPipeline connects to the database and the configured adapters and
// builds the orchestrator. Nothing is started; the caller owns the sink's
// flushing.
func OpenPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *Pipeline, err error) {
	p := &Pipeline{}
	defer func() {
		if err != nil {
			p.Close()
		}
	}()

	// --- Storage ---
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("app: database: %w", err)
	}
	p.closers = append(p.closers, pool.Close)
	p.Pool = pool

	docs := documentrepo.New(pool)
	workflows := workflowrepo.New(pool)
	auditLog := auditrepo.New(pool)
	tx := postgres.NewTxManager(pool)

	objects, err := newObjectStore(ctx, cfg, logger, &p.closers)
	if err != nil {
		return nil, err
	}

	// --- Stage adapters ---
	var gen *gemini.Client
	if cfg.Extractor.Vision || cfg.Classifier.Provider == "vertex" {
		gen, err = gemini.NewClient(ctx, logger, cfg.GCP.ProjectID, cfg.GCP.Region, cfg.GCP.Model)
		if err != nil {
			return nil, fmt.Errorf("app: gemini: %w", err)
		}
		p.closers = append(p.closers, func() { _ = gen.Close() })
	}

	var vision extractor.Vision
	if cfg.Extractor.Vision {
		vision = extractor.NewGeminiVision(gen)
	}
	ext := extractor.New(logger, extractor.Config{
		Timeout:  cfg.Extractor.Timeout,
		MaxBytes: cfg.Extractor.MaxBytes,
	}, vision)

	cls, err := newClassifier(cfg, logger, gen)
	if err != nil {
		return nil, err
	}

	idx, store, err := newIndexer(ctx, cfg, logger, &p.closers)
	if err != nil {
		return nil, err
	}

	// --- Services ---
	sink := audit.NewSink(logger, auditLog, audit.Config{
		BufferSize:    cfg.Audit.BufferSize,
		FlushInterval: cfg.Audit.FlushInterval,
	}, nil)

	engine, err := newEngine(ctx, cfg, logger, &p.closers)
	if err != nil {
		return nil, err
	}
	dispatcher := workflow.NewService(logger, workflows, engine, sink)

	svc := pipeline.NewService(logger, docs, pipeline.Adapters{
		Objects:    objects,
		Extractor:  ext,
		Classifier: cls,
		Indexer:    idx,
	}, sink, dispatcher, tx, pipeline.Config{
		MaxRetries:          cfg.Pipeline.MaxRetries,
		StageTimeout:        cfg.Pipeline.StageTimeout,
		BackoffBase:         cfg.Pipeline.BackoffBase,
		BackoffMax:          cfg.Pipeline.BackoffMax,
		ConfidenceThreshold: cfg.Classifier.ConfidenceThreshold,
		IndexMaxChars:       cfg.Index.MaxChars,
		ApprovalEnabled:     cfg.Workflow.ApprovalEnabled,
		ApprovalGating:      cfg.Workflow.ApprovalGating,
	}, nil)

	p.Documents = docs
	p.Sink = sink
	p.Index = store
	p.Indexer = idx
	p.Workflows = dispatcher
	p.Service = svc
	p.objects = objects
	return p, nil
}

func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *application, err error) {
	p, err := OpenPipeline(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &application{closers: []func(){p.Close}}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	runner := pipeline.NewRunner(logger, p.Service, cfg.Pipeline.Workers, cfg.Pipeline.QueueSize)
	p.Service.UseQueue(runner)

	scheduler := pipeline.NewScheduler(logger, p.Documents, p.Service, runner, pipeline.SchedulerConfig{
		Interval:     cfg.Pipeline.ScanInterval,
		StallTimeout: cfg.Pipeline.StallTimeout,
		Batch:        cfg.Pipeline.ScanBatch,
		AutoRetry:    cfg.Pipeline.AutoRetry,
	}, nil)

	docService := document.NewService(logger, p.Documents, p.objects, p.Sink, p.Service, document.Config{
		MaxUploadBytes:   cfg.Intake.MaxUploadBytes,
		RejectDuplicates: cfg.Intake.RejectDuplicates,
	})

	// --- Transport ---
	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, 0)
	throttle := middleware.NewUploadThrottle(cfg.Server.UploadRateLimit, nil)

	handler := rest.NewRouter(rest.Routes{
		Health: rest.NewHealthHandler(BuildVersion(), p.Pool,
			rest.AuditProbe(p.Sink),
			rest.QueueProbe(runner),
			rest.IndexProbe(p.Index),
		),
		Documents:   rest.NewDocumentHandler(docService, p.Service, p.Workflows, cfg.Intake.MaxUploadBytes, logger),
		Audit:       rest.NewAuditHandler(p.Sink, logger),
		Search:      rest.NewSearchHandler(p.Indexer, docService, logger),
		Callback:    rest.NewCallbackHandler(p.Service, cfg.Auth.CallbackToken, logger),
		UploadLimit: throttle.Middleware(),
	}, middleware.Chain(
		middleware.RequestID(),
		middleware.Client(cfg.Server.TrustProxy),
		middleware.Logger(logger),
		middleware.Recovery(logger),
		middleware.CORS(cfg.CORS),
		middleware.Auth(jwtManager),
	))

	if cfg.Auth.CallbackToken == "" {
		logger.Warn("auth.callback_token is empty, workflow callbacks will be refused")
	}

	a.server = newHTTPServer(cfg.Server, handler, logger)
	a.sink = p.Sink
	a.runner = runner
	a.scheduler = scheduler
	a.throttle = throttle
	return a, nil
}

func newObjectStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, closers *[]func()) (objectStore, error) {
	switch cfg.Storage.Backend {
	case "gcs":
		gcs, err := objectstore.NewGCS(ctx, logger, cfg.Storage.Bucket, cfg.Storage.Prefix)
		if err != nil {
			return nil, fmt.Errorf("app: object store: %w", err)
		}
		*closers = append(*closers, func() { _ = gcs.Close() })
		return gcs, nil
	default:
		fs, err := objectstore.NewFS(cfg.Storage.Root)
		if err != nil {
			return nil, fmt.Errorf("app: object store: %w", err)
		}
		return fs, nil
	}
}

type classifierProvider interface {
	Classify(ctx context.Context, in classifier.Input) (classifier.Result, error)
}

func newClassifier(cfg *config.Config, logger *slog.Logger, gen *gemini.Client) (classifierProvider, error) {
	ccfg := classifier.Config{
		MaxInputChars:    cfg.Classifier.MaxInputChars,
		SummarySentences: cfg.Classifier.SummarySentences,
		RulesPath:        cfg.Classifier.RulesPath,
	}
	if cfg.Classifier.Provider == "vertex" {
		// The rule set still names the categories the model may pick.
		rs, err := classifier.LoadRules(cfg.Classifier.RulesPath)
		if err != nil {
			return nil, fmt.Errorf("app: classifier: %w", err)
		}
		return classifier.NewVertex(logger, ccfg, gen, rs.CategoryNames()), nil
	}
	rules, err := classifier.NewRules(logger, ccfg)
	if err != nil {
		return nil, fmt.Errorf("app: classifier: %w", err)
	}
	return rules, nil
}

func newIndexer(ctx context.Context, cfg *config.Config, logger *slog.Logger, closers *[]func()) (*index.Indexer, *index.Store, error) {
	store, err := index.OpenStore(ctx, cfg.Index.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("app: index store: %w", err)
	}
	*closers = append(*closers, func() { _ = store.Close() })

	var embedder index.Embedder
	switch cfg.Index.Embedder {
	case "http":
		embedder = index.NewHTTPEmbedder(logger, cfg.Index.EmbeddingURL, cfg.Index.EmbeddingKey,
			cfg.Index.EmbeddingModel, cfg.Index.Dimensions, 30*time.Second)
	default:
		embedder = index.NewHashEmbedder(cfg.Index.Dimensions)
	}
	return index.New(logger, embedder, store, cfg.Index.MaxChars), store, nil
}

type workflowEngine interface {
	Start(ctx context.Context, wf *domain.WorkflowInstance) (string, error)
}

func newEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger, closers *[]func()) (workflowEngine, error) {
	switch cfg.Workflow.Engine {
	case "webhook":
		return workflowengine.NewWebhook(logger, cfg.Workflow.WebhookURL, cfg.Workflow.WebhookTimeout), nil
	case "gcp":
		gcp, err := workflowengine.NewGCP(ctx, logger, cfg.GCP.ProjectID, cfg.GCP.Region, cfg.Workflow.GCPWorkflow)
		if err != nil {
			return nil, fmt.Errorf("app: workflow engine: %w", err)
		}
		*closers = append(*closers, func() { _ = gcp.Close() })
		return gcp, nil
	default:
		return workflowengine.Noop{}, nil
	}
}
