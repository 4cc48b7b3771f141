package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/xscribe/internal/config"
	"github.com/xpanvictor/xscribe/internal/domains/pipeline"
	"github.com/xpanvictor/xscribe/pkg/Logger"
	"github.com/xpanvictor/xscribe/pkg/io/device"
	"github.com/xpanvictor/xscribe/pkg/io/ingest"
)

// CaptureHandler drives server-side microphone capture
type CaptureHandler struct {
	ctx      context.Context
	manager  *CaptureManager
	jobs     *JobRunner
	settings *config.Settings
	logger   *Logger.Logger
}

// NewCaptureHandler ties capture sessions to ctx rather than to the request
// that started them.
func NewCaptureHandler(ctx context.Context, manager *CaptureManager, jobs *JobRunner, settings *config.Settings, logger *Logger.Logger) *CaptureHandler {
	return &CaptureHandler{ctx: ctx, manager: manager, jobs: jobs, settings: settings, logger: logger}
}

// Start claims the capture device
// @Summary Start a capture
// @Tags Capture
// @Produce json
// @Success 201 {object} CaptureStartedResponse
// @Failure 403 {object} ErrorResponse "Device permission denied"
// @Failure 503 {object} ErrorResponse "No capture device"
// @Router /api/capture/start [post]
func (h *CaptureHandler) Start(c *gin.Context) {
	state := &captureState{elapsed: ingest.FormatElapsed(0), lastActive: time.Now()}
	s, err := h.manager.ingestor.BeginCapture(h.ctx, func(elapsed string) {
		state.mu.Lock()
		state.elapsed = elapsed
		state.mu.Unlock()
	})
	if err != nil {
		h.captureError(c, err)
		return
	}
	state.session = s
	h.manager.register(state)
	c.JSON(http.StatusCreated, CaptureStartedResponse{SessionID: s.ID, StartedAt: s.StartedAt})
}

// Status reports elapsed time and, once stopped, the captured unit
// @Router /api/capture/{id} [get]
func (h *CaptureHandler) Status(c *gin.Context) {
	state, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, state.snapshot())
}

// Stop ends the capture and materializes the audio unit
// @Router /api/capture/{id}/stop [post]
func (h *CaptureHandler) Stop(c *gin.Context) {
	state, ok := h.lookup(c)
	if !ok {
		return
	}
	unit, err := h.manager.ingestor.EndCapture(c.Request.Context(), state.session)
	if err != nil {
		if !errors.Is(err, ingest.ErrSessionClosed) {
			h.manager.discard(state.session.ID)
		}
		h.captureError(c, err)
		return
	}
	state.mu.Lock()
	state.unit = unit
	state.mu.Unlock()
	state.touch()
	c.JSON(http.StatusOK, state.snapshot())
}

// Content serves a stopped capture through its ephemeral handle
// @Router /api/capture/{id}/content [get]
func (h *CaptureHandler) Content(c *gin.Context) {
	state, ok := h.lookup(c)
	if !ok {
		return
	}
	snap := state.snapshot()
	if snap.Unit == nil {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "Capture still running"})
		return
	}
	content, mime, found := h.manager.ingestor.Ephemeral().Resolve(snap.Unit.EphemeralURL)
	if !found {
		c.JSON(http.StatusGone, ErrorResponse{Error: "Capture content no longer available"})
		return
	}
	c.Data(http.StatusOK, mime, content)
}

// Discard releases the device and drops the capture
// @Router /api/capture/{id} [delete]
func (h *CaptureHandler) Discard(c *gin.Context) {
	id, ok := parseID(c, "Capture")
	if !ok {
		return
	}
	if !h.manager.discard(id) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Capture not found"})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Capture discarded"})
}

// Process hands a stopped capture to the pipeline
// @Router /api/capture/{id}/process [post]
func (h *CaptureHandler) Process(c *gin.Context) {
	state, ok := h.lookup(c)
	if !ok {
		return
	}
	snap := state.snapshot()
	if snap.Unit == nil {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "Capture still running", Details: "stop it first"})
		return
	}
	prefs, err := preferencesFromForm(c, h.settings)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid preferences", Details: err.Error()})
		return
	}
	h.manager.take(snap.SessionID)

	job := h.jobs.Start(pipeline.Request{
		Source:      pipeline.Source{Unit: snap.Unit},
		Preferences: prefs,
	})
	h.logger.Infof("job %s queued for capture %s", job.ID, snap.SessionID)
	c.JSON(http.StatusAccepted, JobAcceptedResponse{JobID: job.ID})
}

func (h *CaptureHandler) lookup(c *gin.Context) (*captureState, bool) {
	id, ok := parseID(c, "Capture")
	if !ok {
		return nil, false
	}
	state, found := h.manager.get(id)
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Capture not found"})
		return nil, false
	}
	return state, true
}

func (h *CaptureHandler) captureError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, device.ErrPermission):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "Capture device permission denied", Details: err.Error()})
	case errors.Is(err, device.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "No capture device available", Details: err.Error()})
	case errors.Is(err, ingest.ErrNothingCaptured):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "Nothing was recorded"})
	case errors.Is(err, ingest.ErrSessionClosed):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "Capture already stopped"})
	default:
		h.logger.Errorf("capture error: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
	}
}
