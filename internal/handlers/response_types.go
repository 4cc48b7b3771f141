package handlers

import (
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/xscribe/internal/config"
	"github.com/xpanvictor/xscribe/internal/domains/library"
	"github.com/xpanvictor/xscribe/pkg/io/device"
	"github.com/xpanvictor/xscribe/pkg/io/ingest"
	"github.com/xpanvictor/xscribe/pkg/io/registry"
)

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Message string `json:"message" example:"Operation completed successfully"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"Something went wrong"`
	Details string `json:"details,omitempty" example:"Validation error details"`
}

// JobAcceptedResponse is returned when a pipeline run is queued
type JobAcceptedResponse struct {
	JobID uuid.UUID `json:"jobId"`
}

type JobResponse struct {
	Job registry.Job `json:"job"`
}

type AudioResponse struct {
	Audio library.AudioSummary `json:"audio"`
}

type TranscriptResponse struct {
	Transcript library.TranscriptionRecord `json:"transcript"`
}

type RecentResponse struct {
	Recent []library.RecentEntry `json:"recent"`
}

// CatalogResponse lists everything a client needs to build its settings form
type CatalogResponse struct {
	Models         []config.ModelEntry `json:"models"`
	DefaultModel   string              `json:"defaultModel"`
	LoadedModel    string              `json:"loadedModel,omitempty"`
	SummaryLengths map[string]string   `json:"summaryLengths"`
	Languages      map[string]string   `json:"languages"`
	Preferences    config.Preferences  `json:"preferences"`
	AudioFormats   []string            `json:"audioFormats"`
	VideoFormats   []string            `json:"videoFormats"`
	MaxSizeMB      int                 `json:"maxSizeMb"`
	Capabilities   []device.Capability `json:"capabilities"`
}

type CaptureStartedResponse struct {
	SessionID uuid.UUID `json:"sessionId"`
	StartedAt time.Time `json:"startedAt"`
}

type CaptureStatusResponse struct {
	SessionID uuid.UUID         `json:"sessionId"`
	Elapsed   string            `json:"elapsed"`
	Stopped   bool              `json:"stopped"`
	Unit      *ingest.AudioUnit `json:"unit,omitempty"`
}
