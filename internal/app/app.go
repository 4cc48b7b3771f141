package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis"
	"github.com/xpanvictor/xscribe/internal/config"
	"github.com/xpanvictor/xscribe/internal/domains/library"
	"github.com/xpanvictor/xscribe/internal/domains/pipeline"
	"github.com/xpanvictor/xscribe/internal/domains/summary"
	"github.com/xpanvictor/xscribe/internal/domains/transcription"
	"github.com/xpanvictor/xscribe/internal/handlers"
	libraryRepo "github.com/xpanvictor/xscribe/internal/repository/library"
	"github.com/xpanvictor/xscribe/internal/server"
	"github.com/xpanvictor/xscribe/pkg/Logger"
	"github.com/xpanvictor/xscribe/pkg/io/device"
	"github.com/xpanvictor/xscribe/pkg/io/ingest"
	"github.com/xpanvictor/xscribe/pkg/io/media"
	"github.com/xpanvictor/xscribe/pkg/io/registry"
	memoryregistry "github.com/xpanvictor/xscribe/pkg/io/registry/memoryRegistry"
	"github.com/xpanvictor/xscribe/pkg/io/stt/models"
	"gorm.io/gorm"
)

// whisper-asr requests can run for minutes on long windows
const asrTimeout = 5 * time.Minute

// App represents the application with all its dependencies
type App struct {
	Config *config.Settings
	Logger *Logger.Logger
	DB     *gorm.DB
	RC     *redis.Client

	Store        library.Service
	Ingestor     *ingest.Ingestor
	Models       *models.Manager
	Orchestrator *pipeline.Orchestrator
	Jobs         registry.Registry
	Captures     *handlers.CaptureManager
	ServerDeps   server.Dependencies
}

// NewApp creates a new application instance with all dependencies properly
// wired. Background work started by the app stops when ctx is cancelled.
// rc may be nil, in which case the recent list lives in process.
func NewApp(ctx context.Context, cfg *config.Settings, logger *Logger.Logger, db *gorm.DB, rc *redis.Client) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
		DB:     db,
		RC:     rc,
	}

	if err := app.setupDependencies(ctx); err != nil {
		return nil, err
	}

	return app, nil
}

// setupDependencies initializes all application dependencies
func (a *App) setupDependencies(ctx context.Context) error {
	cfg := a.Config

	// 1. storage
	var recent library.RecentList
	if a.RC != nil {
		recent = libraryRepo.NewRedisRecentList(a.RC, cfg.Redis.Key)
	} else {
		a.Logger.Info("redis not configured, keeping recent list in memory")
		recent = libraryRepo.NewMemoryRecentList()
	}
	a.Store = library.NewService(libraryRepo.NewGormLibraryRepo(a.DB), recent, a.Logger)

	// 2. audio
	codec := media.NewCodec(cfg.Media.FFmpeg, cfg.Media.FFprobe, cfg.Media.TempDir, a.Logger)
	mic := device.Default()
	probe := device.NewSystemProbe(mic, cfg.Media.FFmpeg, cfg.Models.Executable)
	a.Ingestor = ingest.New(mic, codec, cfg.Files, cfg.Capture, a.Logger)

	// 3. models
	loader, err := a.modelLoader()
	if err != nil {
		return err
	}
	catalog := models.NewCatalog(cfg.Models.Catalog, cfg.Models.Default)
	a.Models = models.NewManager(catalog, loader, a.Logger)

	// 4. engines and pipeline
	transcriber := transcription.NewService(a.Models, codec, probe, a.Logger)
	summarizer := summary.NewService(cfg.Summarization, a.Logger)
	if !summarizer.HasValidAPIKey() {
		a.Logger.Warn("summarization key missing or malformed, summaries are disabled")
	}
	a.Orchestrator = pipeline.NewOrchestrator(a.Ingestor, a.Store, a.Models, transcriber, summarizer, a.Logger)

	// 5. http
	a.Jobs = memoryregistry.New(time.Duration(cfg.Jobs.TTLMinutes) * time.Minute)
	httpLogger := a.Logger.Named("http")
	jobs := handlers.NewJobRunner(ctx, a.Orchestrator, a.Jobs, httpLogger)
	a.Captures = handlers.NewCaptureManager(a.Ingestor, time.Duration(cfg.Capture.MaxSeconds)*time.Second, httpLogger)

	a.ServerDeps = server.NewServerDependencies(
		handlers.NewTranscriptionHandler(jobs, a.Jobs, a.Store, cfg, httpLogger),
		handlers.NewLibraryHandler(a.Store, httpLogger),
		handlers.NewCaptureHandler(ctx, a.Captures, jobs, cfg, httpLogger),
		handlers.NewCatalogHandler(ctx, a.Models, probe, cfg, httpLogger),
		handlers.NewProgressHandler(a.Jobs, httpLogger),
		httpLogger,
	)
	return nil
}

func (a *App) modelLoader() (models.Loader, error) {
	m := a.Config.Models
	switch m.Backend {
	case "cli":
		downloader := models.NewDownloader(m.BaseURL, m.CacheDir, a.Logger)
		return models.NewCLILoader(downloader, m.Executable, a.Config.Media.TempDir, a.Logger), nil
	case "http":
		return models.NewHTTPLoader(m.ServiceURL, asrTimeout, a.Logger), nil
	}
	return nil, fmt.Errorf("unknown model backend %q", m.Backend)
}

// GetServerDependencies returns the server dependencies
func (a *App) GetServerDependencies() server.Dependencies {
	return a.ServerDeps
}

// Close stops background work and releases the loaded model.
func (a *App) Close() error {
	a.Captures.Close()
	a.Jobs.Close()
	return a.Models.Close()
}
