package server

import (
	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/xscribe/internal/config"
	"github.com/xpanvictor/xscribe/internal/handlers"
	"github.com/xpanvictor/xscribe/pkg/Logger"
)

type Dependencies struct {
	Transcriptions *handlers.TranscriptionHandler
	Library        *handlers.LibraryHandler
	Capture        *handlers.CaptureHandler
	Catalog        *handlers.CatalogHandler
	Progress       *handlers.ProgressHandler
	Logger         *Logger.Logger
}

func NewServerDependencies(
	transcriptions *handlers.TranscriptionHandler,
	library *handlers.LibraryHandler,
	capture *handlers.CaptureHandler,
	catalog *handlers.CatalogHandler,
	progress *handlers.ProgressHandler,
	logger *Logger.Logger,
) Dependencies {
	return Dependencies{
		Transcriptions: transcriptions,
		Library:        library,
		Capture:        capture,
		Catalog:        catalog,
		Progress:       progress,
		Logger:         logger,
	}
}

func InitializeRoutes(cfg *config.Settings, r *gin.Engine, dep Dependencies) {
	r.Use(handlers.ErrorHandlerMiddleware(dep.Logger))
	r.Use(handlers.RequestLoggerMiddleware(dep.Logger))
	r.Use(handlers.CORSMiddleware())
	// multipart parts above this spill to disk
	r.MaxMultipartMemory = int64(cfg.Files.MaxSizeMB) << 20

	r.GET("/", func(ctx *gin.Context) { ctx.JSON(200, gin.H{"message": "Server healthy"}) })
	r.GET("/health", func(ctx *gin.Context) { ctx.JSON(200, gin.H{"status": "ok"}) })

	api := r.Group("/api")
	{
		api.POST("/transcriptions", dep.Transcriptions.Submit)
		api.GET("/transcriptions/:id", dep.Transcriptions.GetTranscript)
		api.GET("/jobs/:id", dep.Transcriptions.GetJob)

		api.GET("/audio/:id", dep.Library.GetAudio)
		api.GET("/audio/:id/content", dep.Library.GetAudioContent)
		api.GET("/audio/:id/transcription", dep.Library.GetAudioTranscription)
		api.DELETE("/audio/:id", dep.Library.DeleteAudio)
		api.GET("/recent", dep.Library.GetRecent)

		api.GET("/catalog", dep.Catalog.GetCatalog)
		api.GET("/models/status", dep.Catalog.ModelStatus)
		api.POST("/models/:name/load", dep.Catalog.LoadModel)
		api.DELETE("/models/load", dep.Catalog.CancelLoad)

		capture := api.Group("/capture")
		{
			capture.POST("/start", dep.Capture.Start)
			capture.GET("/:id", dep.Capture.Status)
			capture.POST("/:id/stop", dep.Capture.Stop)
			capture.GET("/:id/content", dep.Capture.Content)
			capture.POST("/:id/process", dep.Capture.Process)
			capture.DELETE("/:id", dep.Capture.Discard)
		}
	}

	r.GET("/ws/jobs/:id", dep.Progress.HandleJobProgress)
}
