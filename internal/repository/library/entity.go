package library

import (
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/xscribe/internal/domains/library"
	"gorm.io/gorm"
)

// AudioEntity is the database row for an audio clip.
type AudioEntity struct {
	ID              uuid.UUID `gorm:"primaryKey;type:char(36);not null"`
	Name            string    `gorm:"column:name;type:varchar(255);not null"`
	MimeType        string    `gorm:"column:mime_type;type:varchar(100)"`
	Content         []byte    `gorm:"column:content;type:longblob"`
	DurationSeconds float64   `gorm:"column:duration_seconds;not null;default:0"`
	CreatedAt       time.Time `gorm:"column:created_at;index"`
}

func (AudioEntity) TableName() string {
	return "audio_files"
}

func (a *AudioEntity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (a *AudioEntity) ToDomain() *library.AudioRecord {
	return &library.AudioRecord{
		ID:              a.ID,
		Name:            a.Name,
		MimeType:        a.MimeType,
		Content:         a.Content,
		DurationSeconds: a.DurationSeconds,
		CreatedAt:       a.CreatedAt,
	}
}

func (a *AudioEntity) FromDomain(r *library.AudioRecord) {
	a.ID = r.ID
	a.Name = r.Name
	a.MimeType = r.MimeType
	a.Content = r.Content
	a.DurationSeconds = r.DurationSeconds
	a.CreatedAt = r.CreatedAt
}

// TranscriptionEntity is the database row for a transcript. audio_id is
// indexed but carries no foreign key.
type TranscriptionEntity struct {
	ID             uuid.UUID `gorm:"primaryKey;type:char(36);not null"`
	AudioID        uuid.UUID `gorm:"column:audio_id;type:char(36);not null;index"`
	FileName       string    `gorm:"column:file_name;type:varchar(255)"`
	TranscriptText string    `gorm:"column:transcript_text;type:longtext"`
	SummaryText    *string   `gorm:"column:summary_text;type:longtext"`
	ModelUsed      string    `gorm:"column:model_used;type:varchar(100)"`
	LanguageCode   string    `gorm:"column:language_code;type:varchar(16)"`
	CreatedAt      time.Time `gorm:"column:created_at;index"`
}

func (TranscriptionEntity) TableName() string {
	return "transcriptions"
}

func (t *TranscriptionEntity) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

func (t *TranscriptionEntity) ToDomain() *library.TranscriptionRecord {
	return &library.TranscriptionRecord{
		ID:             t.ID,
		AudioID:        t.AudioID,
		FileName:       t.FileName,
		TranscriptText: t.TranscriptText,
		SummaryText:    t.SummaryText,
		ModelUsed:      t.ModelUsed,
		LanguageCode:   t.LanguageCode,
		CreatedAt:      t.CreatedAt,
	}
}

func (t *TranscriptionEntity) FromDomain(r *library.TranscriptionRecord) {
	t.ID = r.ID
	t.AudioID = r.AudioID
	t.FileName = r.FileName
	t.TranscriptText = r.TranscriptText
	t.SummaryText = r.SummaryText
	t.ModelUsed = r.ModelUsed
	t.LanguageCode = r.LanguageCode
	t.CreatedAt = r.CreatedAt
}
