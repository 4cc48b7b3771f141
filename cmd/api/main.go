package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/xscribe/internal/app"
	"github.com/xpanvictor/xscribe/internal/config"
	"github.com/xpanvictor/xscribe/internal/database"
	"github.com/xpanvictor/xscribe/internal/server"
	"github.com/xpanvictor/xscribe/pkg/Logger"
)

// This is the main entry point for the API server.
// Loads in all system components
// Exposes functionalities
func main() {
	// fetch cfg
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	// load global logger
	logger := Logger.New(cfg.Debug)
	logger.Info("Logger initialized")
	// fetch database connection
	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	// handle migrations
	if err := database.MigrateDB(db); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	rc, err := database.NewRedis(cfg.Redis)
	if err != nil {
		logger.Fatalf("Failed to connect to redis: %v", err)
	}

	appCtx, stopApp := context.WithCancel(context.Background())
	defer stopApp()
	application, err := app.NewApp(appCtx, cfg, logger, db, rc)
	if err != nil {
		logger.Fatalf("Failed to set up application: %v", err)
	}

	// compose router
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	server.InitializeRoutes(cfg, router, application.GetServerDependencies())

	// listen with graceful exit
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router.Handler(),
	}
	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server exiting: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSeconds)*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Shutdown err %v", err)
	}
	stopApp()
	if err := application.Close(); err != nil {
		logger.Errorf("Closing app: %v", err)
	}
	if rc != nil {
		rc.Close()
	}
	logger.Info("Shutdown system")
}
