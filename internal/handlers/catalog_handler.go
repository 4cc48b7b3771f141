package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/xscribe/internal/config"
	"github.com/xpanvictor/xscribe/pkg/Logger"
	"github.com/xpanvictor/xscribe/pkg/io/device"
	"github.com/xpanvictor/xscribe/pkg/io/stt/models"
)

// ModelController is the part of models.Manager the API drives.
type ModelController interface {
	LoadModel(ctx context.Context, name string, onProgress func(float64)) (bool, error)
	CancelLoad()
	Loading() bool
	Current() string
	Catalog() *models.Catalog
}

type CapabilityLister interface {
	All(ctx context.Context) []device.Capability
}

// ModelStatusResponse reports the single model slot
type ModelStatusResponse struct {
	Current  string  `json:"current,omitempty"`
	Loading  bool    `json:"loading"`
	Progress float64 `json:"progress"`
}

// CatalogHandler serves the model catalog and drives model loads
type CatalogHandler struct {
	ctx      context.Context
	models   ModelController
	probe    CapabilityLister
	settings *config.Settings
	logger   *Logger.Logger

	progress *progressValue
}

func NewCatalogHandler(ctx context.Context, models ModelController, probe CapabilityLister, settings *config.Settings, logger *Logger.Logger) *CatalogHandler {
	return &CatalogHandler{
		ctx:      ctx,
		models:   models,
		probe:    probe,
		settings: settings,
		logger:   logger,
		progress: &progressValue{},
	}
}

// GetCatalog lists models, summary lengths, languages and platform capabilities
// @Summary Get catalog
// @Tags Catalog
// @Produce json
// @Success 200 {object} CatalogResponse
// @Router /api/catalog [get]
func (h *CatalogHandler) GetCatalog(c *gin.Context) {
	var caps []device.Capability
	if h.probe != nil {
		caps = h.probe.All(c.Request.Context())
	}
	catalog := h.models.Catalog()
	c.JSON(http.StatusOK, CatalogResponse{
		Models:         catalog.Entries(),
		DefaultModel:   catalog.Default().Name,
		LoadedModel:    h.models.Current(),
		SummaryLengths: h.settings.Summarization.Lengths,
		Languages:      h.settings.Languages,
		Preferences:    h.settings.Preferences,
		AudioFormats:   h.settings.Files.AudioFormats,
		VideoFormats:   h.settings.Files.VideoFormats,
		MaxSizeMB:      h.settings.Files.MaxSizeMB,
		Capabilities:   caps,
	})
}

// LoadModel starts loading a model into the cache slot in the background
// @Summary Preload a model
// @Tags Catalog
// @Param name path string true "Model name"
// @Success 202 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse "Unknown model"
// @Failure 409 {object} ErrorResponse "A load is already running"
// @Router /api/models/{name}/load [post]
func (h *CatalogHandler) LoadModel(c *gin.Context) {
	name := c.Param("name")
	if !h.models.Catalog().Known(name) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Unknown model", Details: name})
		return
	}
	if h.models.Loading() {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "A model load is already running"})
		return
	}

	h.progress.set(0)
	go func() {
		ok, err := h.models.LoadModel(h.ctx, name, h.progress.set)
		switch {
		case errors.Is(err, models.ErrBusy):
			h.logger.Warnf("preload of %s skipped: busy", name)
		case err != nil:
			h.logger.Errorf("preload of %s failed: %v", name, err)
		case !ok:
			h.logger.Infof("preload of %s cancelled", name)
		}
	}()
	c.JSON(http.StatusAccepted, SuccessResponse{Message: "Model load started"})
}

// CancelLoad aborts the running model load, if any
// @Router /api/models/load [delete]
func (h *CatalogHandler) CancelLoad(c *gin.Context) {
	h.models.CancelLoad()
	c.JSON(http.StatusOK, SuccessResponse{Message: "Model load cancelled"})
}

// ModelStatus reports the loaded model and any load in flight
// @Router /api/models/status [get]
func (h *CatalogHandler) ModelStatus(c *gin.Context) {
	c.JSON(http.StatusOK, ModelStatusResponse{
		Current:  h.models.Current(),
		Loading:  h.models.Loading(),
		Progress: h.progress.get(),
	})
}
