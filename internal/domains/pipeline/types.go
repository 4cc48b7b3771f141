package pipeline

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/xpanvictor/xscribe/internal/config"
	"github.com/xpanvictor/xscribe/pkg/io/ingest"
)

// Phase is a pipeline state.
//
//	idle -> ingesting -> persisting_audio -> model_ready -> transcribing
//	     -> (summarizing) -> persisting_transcript -> done
//
// failed is reachable from every non-terminal phase.
type Phase string

const (
	Idle                 Phase = "idle"
	Ingesting            Phase = "ingesting"
	PersistingAudio      Phase = "persisting_audio"
	ModelReady           Phase = "model_ready"
	Transcribing         Phase = "transcribing"
	Summarizing          Phase = "summarizing"
	PersistingTranscript Phase = "persisting_transcript"
	Done                 Phase = "done"
	Failed               Phase = "failed"
)

// Terminal reports whether no further transition can happen.
func (p Phase) Terminal() bool {
	return p == Done || p == Failed
}

func (p Phase) Label() string {
	switch p {
	case Idle:
		return "Waiting"
	case Ingesting:
		return "Preparing audio"
	case PersistingAudio:
		return "Saving audio"
	case ModelReady:
		return "Loading transcription model"
	case Transcribing:
		return "Transcribing audio"
	case Summarizing:
		return "Creating summary"
	case PersistingTranscript:
		return "Saving transcript"
	case Done:
		return "Done"
	case Failed:
		return "Failed"
	}
	return string(p)
}

type Event string

const (
	evIngest          Event = "ingest"
	evStoreAudio      Event = "store_audio"
	evPrepareModel    Event = "prepare_model"
	evTranscribe      Event = "transcribe"
	evSummarize       Event = "summarize"
	evStoreTranscript Event = "store_transcript"
	evFinish          Event = "finish"
	evFail            Event = "fail"
)

// ErrModelLoad means both the requested and the fallback model failed to load.
var ErrModelLoad = errors.New("model load failed")

// StageError names the phase a run failed in.
type StageError struct {
	Stage Phase
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage.Label(), e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Source is what a run transcribes: a unit already produced by a capture
// session, or raw upload bytes still to be ingested.
type Source struct {
	Unit     *ingest.AudioUnit
	FileName string
	MimeType string
	Content  []byte
}

type Request struct {
	Source      Source
	Preferences config.Preferences
}

// Progress is one observer notification. Value is the fraction of the
// current stage, in [0,1].
type Progress struct {
	Stage Phase   `json:"stage"`
	Label string  `json:"label"`
	Value float64 `json:"progress"`
	Error string  `json:"error,omitempty"`
}

type Result struct {
	AudioID        uuid.UUID `json:"audioId"`
	TranscriptID   uuid.UUID `json:"transcriptId"`
	FileName       string    `json:"fileName"`
	TranscriptText string    `json:"transcriptText"`
	SummaryText    *string   `json:"summaryText"`
	ModelUsed      string    `json:"modelUsed"`
	Language       string    `json:"language"`
	SizeWarning    bool      `json:"sizeWarning,omitempty"`
}
