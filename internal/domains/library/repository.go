package library

import (
	"time"

	"github.com/google/uuid"
)

// AudioRecord is a stored clip. Content is owned by the store once saved.
type AudioRecord struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	MimeType        string    `json:"mimeType"`
	Content         []byte    `json:"-"`
	DurationSeconds float64   `json:"durationSeconds"`
	CreatedAt       time.Time `json:"createdAt"`
}

// TranscriptionRecord is the text derived from one AudioRecord.
// AudioID is a lookup key, the store does not check it exists.
type TranscriptionRecord struct {
	ID             uuid.UUID `json:"id"`
	AudioID        uuid.UUID `json:"audioId"`
	FileName       string    `json:"fileName"`
	TranscriptText string    `json:"transcriptText"`
	SummaryText    *string   `json:"summaryText,omitempty"`
	ModelUsed      string    `json:"modelUsed"`
	LanguageCode   string    `json:"languageCode"`
	CreatedAt      time.Time `json:"createdAt"`
}

// RecentEntry is one item of the capped recent list.
type RecentEntry struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// RecentLimit caps the recent list.
const RecentLimit = 10

// AudioSummary is an AudioRecord without its payload, used for listings.
type AudioSummary struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	MimeType        string    `json:"mimeType"`
	DurationSeconds float64   `json:"durationSeconds"`
	SizeBytes       int       `json:"sizeBytes"`
	CreatedAt       time.Time `json:"createdAt"`
}

func (a *AudioRecord) Summary() AudioSummary {
	return AudioSummary{
		ID:              a.ID,
		Name:            a.Name,
		MimeType:        a.MimeType,
		DurationSeconds: a.DurationSeconds,
		SizeBytes:       len(a.Content),
		CreatedAt:       a.CreatedAt,
	}
}

// Repository is the durable keyed store for audio and transcripts.
// Each call commits on its own; there is no grouping across calls.
type Repository interface {
	CreateAudio(a *AudioRecord) error
	GetAudio(id uuid.UUID) (*AudioRecord, error)
	// DeleteAudio removes the audio row and reports whether one existed.
	DeleteAudio(id uuid.UUID) (bool, error)

	CreateTranscript(t *TranscriptionRecord) error
	GetTranscript(id uuid.UUID) (*TranscriptionRecord, error)
	// TranscriptIDsByAudio walks the audio_id index.
	TranscriptIDsByAudio(audioID uuid.UUID) ([]uuid.UUID, error)
	DeleteTranscript(id uuid.UUID) error
}

// RecentList keeps the most recent entries, newest first.
type RecentList interface {
	Push(e RecentEntry) error
	Remove(id uuid.UUID) error
	List() ([]RecentEntry, error)
}
