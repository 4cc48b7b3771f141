package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/xpanvictor/xscribe/internal/config"
	"github.com/xpanvictor/xscribe/internal/domains/library"
	"github.com/xpanvictor/xscribe/internal/domains/pipeline"
	"github.com/xpanvictor/xscribe/pkg/Logger"
	"github.com/xpanvictor/xscribe/pkg/io/registry"
)

// TranscriptionHandler handles uploads and job queries
type TranscriptionHandler struct {
	jobs     *JobRunner
	registry registry.Registry
	store    library.Service
	settings *config.Settings
	logger   *Logger.Logger
}

// NewTranscriptionHandler creates a new transcription handler
func NewTranscriptionHandler(jobs *JobRunner, reg registry.Registry, store library.Service, settings *config.Settings, logger *Logger.Logger) *TranscriptionHandler {
	return &TranscriptionHandler{
		jobs:     jobs,
		registry: reg,
		store:    store,
		settings: settings,
		logger:   logger,
	}
}

// Submit handles a clip upload and queues a pipeline run
// @Summary Transcribe an uploaded clip
// @Tags Transcriptions
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Audio or video file"
// @Param model formData string false "Model name"
// @Param language formData string false "Language code or auto"
// @Param summary_length formData int false "Summary tier 1-5"
// @Success 202 {object} JobAcceptedResponse
// @Failure 400 {object} ErrorResponse "Invalid request data"
// @Router /api/transcriptions [post]
func (h *TranscriptionHandler) Submit(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "File is required", Details: err.Error()})
		return
	}
	prefs, err := preferencesFromForm(c, h.settings)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid preferences", Details: err.Error()})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Unable to read file", Details: err.Error()})
		return
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Unable to read file", Details: err.Error()})
		return
	}

	job := h.jobs.Start(pipeline.Request{
		Source: pipeline.Source{
			FileName: fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Content:  content,
		},
		Preferences: prefs,
	})
	h.logger.Infof("job %s queued for %s (%d bytes)", job.ID, fh.Filename, len(content))
	c.JSON(http.StatusAccepted, JobAcceptedResponse{JobID: job.ID})
}

// GetJob returns the latest snapshot of a pipeline run
// @Summary Get job status
// @Tags Transcriptions
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} JobResponse
// @Failure 404 {object} ErrorResponse "Job not found"
// @Router /api/jobs/{id} [get]
func (h *TranscriptionHandler) GetJob(c *gin.Context) {
	id, ok := parseID(c, "Job")
	if !ok {
		return
	}
	job, found := h.registry.Get(id)
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Job not found"})
		return
	}
	c.JSON(http.StatusOK, JobResponse{Job: job})
}

// GetTranscript returns a stored transcript
// @Summary Get transcript by ID
// @Tags Transcriptions
// @Produce json
// @Param id path string true "Transcript ID"
// @Success 200 {object} TranscriptResponse
// @Failure 404 {object} ErrorResponse "Transcript not found"
// @Router /api/transcriptions/{id} [get]
func (h *TranscriptionHandler) GetTranscript(c *gin.Context) {
	id, ok := parseID(c, "Transcript")
	if !ok {
		return
	}
	t, err := h.store.GetTranscript(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, library.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Transcript not found"})
			return
		}
		h.logger.Errorf("get transcript error: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, TranscriptResponse{Transcript: *t})
}

// preferencesFromForm overlays form values on the configured preferences.
func preferencesFromForm(c *gin.Context, settings *config.Settings) (config.Preferences, error) {
	prefs := settings.Preferences
	if m := c.PostForm("model"); m != "" {
		prefs.Model = m
	}
	if l := c.PostForm("language"); l != "" {
		if _, ok := settings.Languages[l]; !ok {
			return prefs, errors.New("unsupported language " + strconv.Quote(l))
		}
		prefs.Language = l
	}
	if s := c.PostForm("summary_length"); s != "" {
		tier, err := strconv.Atoi(s)
		if err != nil || tier < 1 || tier > 5 {
			return prefs, config.ErrInvalidTier
		}
		prefs.SummaryLength = tier
	}
	return prefs, nil
}

func parseID(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid " + what + " ID", Details: err.Error()})
		return uuid.Nil, false
	}
	return id, true
}
