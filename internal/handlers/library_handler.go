package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/xscribe/internal/domains/library"
	"github.com/xpanvictor/xscribe/pkg/Logger"
)

// LibraryHandler exposes stored audio, transcripts and the recent list
type LibraryHandler struct {
	store  library.Service
	logger *Logger.Logger
}

func NewLibraryHandler(store library.Service, logger *Logger.Logger) *LibraryHandler {
	return &LibraryHandler{store: store, logger: logger}
}

// GetAudio returns audio metadata without the payload
// @Summary Get audio by ID
// @Tags Library
// @Produce json
// @Param id path string true "Audio ID"
// @Success 200 {object} AudioResponse
// @Failure 404 {object} ErrorResponse "Audio not found"
// @Router /api/audio/{id} [get]
func (h *LibraryHandler) GetAudio(c *gin.Context) {
	id, ok := parseID(c, "Audio")
	if !ok {
		return
	}
	a, err := h.store.GetAudio(c.Request.Context(), id)
	if err != nil {
		h.storeError(c, "audio", err)
		return
	}
	c.JSON(http.StatusOK, AudioResponse{Audio: a.Summary()})
}

// GetAudioContent streams the stored clip back with its MIME type
// @Router /api/audio/{id}/content [get]
func (h *LibraryHandler) GetAudioContent(c *gin.Context) {
	id, ok := parseID(c, "Audio")
	if !ok {
		return
	}
	a, err := h.store.GetAudio(c.Request.Context(), id)
	if err != nil {
		h.storeError(c, "audio", err)
		return
	}
	c.Header("Content-Disposition", "inline; filename=\""+a.Name+"\"")
	c.Data(http.StatusOK, a.MimeType, a.Content)
}

// GetAudioTranscription returns the transcript made from an audio record
// @Router /api/audio/{id}/transcription [get]
func (h *LibraryHandler) GetAudioTranscription(c *gin.Context) {
	id, ok := parseID(c, "Audio")
	if !ok {
		return
	}
	t, err := h.store.GetTranscriptByAudioID(c.Request.Context(), id)
	if err != nil {
		h.storeError(c, "transcript", err)
		return
	}
	if t == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "No transcript for this audio"})
		return
	}
	c.JSON(http.StatusOK, TranscriptResponse{Transcript: *t})
}

// DeleteAudio removes a clip and every transcript made from it
// @Router /api/audio/{id} [delete]
func (h *LibraryHandler) DeleteAudio(c *gin.Context) {
	id, ok := parseID(c, "Audio")
	if !ok {
		return
	}
	deleted, err := h.store.DeleteAudio(c.Request.Context(), id)
	if err != nil {
		h.storeError(c, "audio", err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Audio not found"})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Audio deleted successfully"})
}

// GetRecent lists the most recent clips, newest first
// @Router /api/recent [get]
func (h *LibraryHandler) GetRecent(c *gin.Context) {
	recent, err := h.store.GetRecent(c.Request.Context())
	if err != nil {
		h.storeError(c, "recent", err)
		return
	}
	if recent == nil {
		recent = []library.RecentEntry{}
	}
	c.JSON(http.StatusOK, RecentResponse{Recent: recent})
}

func (h *LibraryHandler) storeError(c *gin.Context, what string, err error) {
	switch {
	case errors.Is(err, library.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not found", Details: what})
	default:
		h.logger.Errorf("%s store error: %v", what, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
	}
}
