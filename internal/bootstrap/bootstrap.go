package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/document-intake/internal/config"
	"github.com/kirillkom/document-intake/internal/core/discrepancy"
	"github.com/kirillkom/document-intake/internal/core/extraction"
	"github.com/kirillkom/document-intake/internal/core/merge"
	"github.com/kirillkom/document-intake/internal/core/ports"
	"github.com/kirillkom/document-intake/internal/core/usecase"
	"github.com/kirillkom/document-intake/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/document-intake/internal/infrastructure/llm/openai"
	"github.com/kirillkom/document-intake/internal/infrastructure/lock"
	"github.com/kirillkom/document-intake/internal/infrastructure/ocr/docintel"
	"github.com/kirillkom/document-intake/internal/infrastructure/ocr/local"
	"github.com/kirillkom/document-intake/internal/infrastructure/queue/nats"
	"github.com/kirillkom/document-intake/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/document-intake/internal/infrastructure/resilience"
	"github.com/kirillkom/document-intake/internal/infrastructure/storage/gcs"
	"github.com/kirillkom/document-intake/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/document-intake/internal/infrastructure/vector/qdrant"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOllamaBaseURL = "http://localhost:11434"
)

type Options struct {
	// Observer receives pipeline timings; nil disables pipeline metrics.
	Observer ports.PipelineObserver
	// QueueLag receives the time each upload event waited in NATS.
	QueueLag func(time.Duration)
	// WithoutQueue skips the NATS connection for processes that never
	// enqueue or consume uploads.
	WithoutQueue bool
}

type App struct {
	Config config.Config

	Queue   ports.MessageQueue
	Uploads ports.UploadReader

	Pipeline    *usecase.DocumentPipelineUseCase
	Entities    *usecase.EntityUseCase
	IngestUC    *usecase.IngestUploadUseCase
	ProcessUC   *usecase.ProcessUploadUseCase
	RecommendUC *usecase.RecommendUseCase
	ExportUC    *usecase.ExportUseCase
	ResumeUC    *usecase.ResumeUseCase

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	app := &App{Config: cfg}
	built, err := app.build(ctx, opts)
	if err != nil {
		app.Close()
		return nil, err
	}
	return built, nil
}

func (app *App) build(ctx context.Context, opts Options) (*App, error) {
	cfg := app.Config

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.onClose(func() { _ = db.Close() })
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	entityRepo := postgres.NewEntityRepository(db)
	uploadRepo := postgres.NewUploadRepository(db)

	blobs, err := newBlobStore(ctx, cfg, app)
	if err != nil {
		return nil, fmt.Errorf("init blob storage: %w", err)
	}
	locker, err := newLocker(ctx, cfg, app)
	if err != nil {
		return nil, fmt.Errorf("init entity locker: %w", err)
	}
	llm, err := newLLM(cfg)
	if err != nil {
		return nil, fmt.Errorf("init llm: %w", err)
	}
	ocr, err := newOCR(cfg)
	if err != nil {
		return nil, fmt.Errorf("init ocr: %w", err)
	}

	registry, err := extraction.NewRegistry(llm)
	if err != nil {
		return nil, fmt.Errorf("init extractor registry: %w", err)
	}
	classifier := extraction.NewClassifier(llm, extraction.ClassifierOptions{Aliases: cfg.Catalog.Aliases})

	candidates := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, resilience.NewExecutor(cfg.Resilience))
	recommendUC := usecase.NewRecommendUseCase(llm, candidates, entityRepo)

	entityUC := usecase.NewEntityUseCase(entityRepo, locker, merge.NewEngine(), discrepancy.NewAnalyzer()).
		WithIndexer(recommendUC).
		WithObserver(opts.Observer)
	pipelineUC := usecase.NewDocumentPipelineUseCase(ocr, classifier, registry, blobs, entityUC).
		WithObserver(opts.Observer).
		WithAllowedTypes(cfg.Catalog.AllowedTypes)

	app.Entities = entityUC
	app.Pipeline = pipelineUC
	app.RecommendUC = recommendUC
	app.ExportUC = usecase.NewExportUseCase(entityRepo)
	app.ResumeUC = usecase.NewResumeUseCase(ocr, registry, blobs, entityUC)
	app.ProcessUC = usecase.NewProcessUploadUseCase(uploadRepo, blobs, pipelineUC)
	app.Uploads = uploadRepo

	if !opts.WithoutQueue {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(cfg.Resilience),
			LagObserver:        opts.QueueLag,
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.onClose(queue.Close)
		app.Queue = queue
		app.IngestUC = usecase.NewIngestUploadUseCase(uploadRepo, entityRepo, blobs, queue)
	}

	slog.Info("bootstrap_ready",
		"llm_provider", cfg.LLMProvider,
		"ocr_backend", cfg.OCRBackend,
		"blob_backend", cfg.BlobBackend,
		"distributed_lock", cfg.RedisURL != "",
		"queue", !opts.WithoutQueue,
	)
	return app, nil
}

func (app *App) onClose(fn func()) {
	app.closeFns = append(app.closeFns, fn)
}

// Close releases resources in reverse order of acquisition.
func (app *App) Close() {
	for i := len(app.closeFns) - 1; i >= 0; i-- {
		app.closeFns[i]()
	}
	app.closeFns = nil
}

type llmClient interface {
	ports.ChatCompleter
	ports.Embedder
}

func newLLM(cfg config.Config) (llmClient, error) {
	executor := resilience.NewExecutor(cfg.Resilience)
	switch cfg.LLMProvider {
	case openai.ProviderOpenAI, openai.ProviderAzure:
		baseURL := cfg.LLMBaseURL
		if baseURL == "" {
			if cfg.LLMProvider == openai.ProviderAzure {
				return nil, errors.New("LLM_BASE_URL is required for azure")
			}
			baseURL = defaultOpenAIBaseURL
		}
		if cfg.LLMAPIKey == "" {
			return nil, fmt.Errorf("LLM_API_KEY is required for %s", cfg.LLMProvider)
		}
		client := openai.New(openai.Config{
			Provider:    cfg.LLMProvider,
			BaseURL:     baseURL,
			APIKey:      cfg.LLMAPIKey,
			APIVersion:  cfg.LLMAPIVersion,
			ChatModel:   cfg.LLMChatModel,
			EmbedModel:  cfg.LLMEmbedModel,
			Temperature: cfg.LLMTemperature,
			Timeout:     cfg.LLMTimeout,
		}, executor)
		return client, nil
	case "ollama":
		baseURL := cfg.LLMBaseURL
		if baseURL == "" {
			baseURL = defaultOllamaBaseURL
		}
		client := ollama.New(baseURL, cfg.LLMChatModel, cfg.LLMEmbedModel, executor)
		return client, nil
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

func newOCR(cfg config.Config) (ports.OCR, error) {
	switch cfg.OCRBackend {
	case "docintel":
		if cfg.DocIntelEndpoint == "" || cfg.DocIntelAPIKey == "" {
			return nil, errors.New("DOCINTEL_ENDPOINT and DOCINTEL_API_KEY are required for the docintel backend")
		}
		return docintel.New(docintel.Config{
			Endpoint:     cfg.DocIntelEndpoint,
			APIKey:       cfg.DocIntelAPIKey,
			APIVersion:   cfg.DocIntelAPIVersion,
			PollInterval: cfg.DocIntelPollInterval,
		}, resilience.NewExecutor(cfg.Resilience)), nil
	case "local":
		return local.NewExtractor(), nil
	default:
		return nil, fmt.Errorf("unknown OCR_BACKEND %q", cfg.OCRBackend)
	}
}

func newBlobStore(ctx context.Context, cfg config.Config, app *App) (ports.BlobStore, error) {
	switch cfg.BlobBackend {
	case "localfs":
		return localfs.New(cfg.StoragePath, cfg.StoragePublicURL)
	case "gcs":
		store, err := gcs.New(ctx, gcs.Config{
			Bucket:          cfg.GCSBucket,
			CredentialsJSON: cfg.GCSCredentialsJSON,
			PublicBaseURL:   cfg.StoragePublicURL,
			Endpoint:        cfg.GCSEndpoint,
		})
		if err != nil {
			return nil, err
		}
		app.onClose(func() { _ = store.Close() })
		return store, nil
	default:
		return nil, fmt.Errorf("unknown BLOB_BACKEND %q", cfg.BlobBackend)
	}
}

// newLocker uses Redis when REDIS_URL is set. The in-process mutex only
// serializes writers inside one process.
func newLocker(ctx context.Context, cfg config.Config, app *App) (ports.EntityLocker, error) {
	if cfg.RedisURL == "" {
		slog.Warn("entity_lock_in_process", "reason", "REDIS_URL not set")
		return lock.NewKeyedMutex(), nil
	}
	locker, err := lock.NewRedisLocker(cfg.RedisURL, cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	app.onClose(func() { _ = locker.Close() })
	if err := locker.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return locker, nil
}
