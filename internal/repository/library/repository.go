package library

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/xpanvictor/xscribe/internal/domains/library"
	"gorm.io/gorm"
)

type GormLibraryRepo struct {
	db *gorm.DB
}

func NewGormLibraryRepo(db *gorm.DB) library.Repository {
	return &GormLibraryRepo{db: db}
}

// CreateAudio implements library.Repository
func (g *GormLibraryRepo) CreateAudio(a *library.AudioRecord) error {
	entity := &AudioEntity{}
	entity.FromDomain(a)
	if err := g.db.Create(entity).Error; err != nil {
		return fmt.Errorf("failed to create audio: %w", err)
	}
	a.ID = entity.ID
	a.CreatedAt = entity.CreatedAt
	return nil
}

// GetAudio implements library.Repository
func (g *GormLibraryRepo) GetAudio(id uuid.UUID) (*library.AudioRecord, error) {
	var entity AudioEntity
	if err := g.db.Where("id = ?", id).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, library.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get audio by ID: %w", err)
	}
	return entity.ToDomain(), nil
}

// DeleteAudio implements library.Repository (hard delete)
func (g *GormLibraryRepo) DeleteAudio(id uuid.UUID) (bool, error) {
	result := g.db.Unscoped().Where("id = ?", id).Delete(&AudioEntity{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete audio: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// CreateTranscript implements library.Repository
func (g *GormLibraryRepo) CreateTranscript(t *library.TranscriptionRecord) error {
	entity := &TranscriptionEntity{}
	entity.FromDomain(t)
	if err := g.db.Create(entity).Error; err != nil {
		return fmt.Errorf("failed to create transcript: %w", err)
	}
	t.ID = entity.ID
	t.CreatedAt = entity.CreatedAt
	return nil
}

// GetTranscript implements library.Repository
func (g *GormLibraryRepo) GetTranscript(id uuid.UUID) (*library.TranscriptionRecord, error) {
	var entity TranscriptionEntity
	if err := g.db.Where("id = ?", id).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, library.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transcript by ID: %w", err)
	}
	return entity.ToDomain(), nil
}

// TranscriptIDsByAudio implements library.Repository. Oldest first, so the
// first id is the transcript that was stored first.
func (g *GormLibraryRepo) TranscriptIDsByAudio(audioID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := g.db.Model(&TranscriptionEntity{}).
		Where("audio_id = ?", audioID).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts for audio: %w", err)
	}
	return ids, nil
}

// DeleteTranscript implements library.Repository (hard delete)
func (g *GormLibraryRepo) DeleteTranscript(id uuid.UUID) error {
	result := g.db.Unscoped().Where("id = ?", id).Delete(&TranscriptionEntity{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete transcript: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return library.ErrNotFound
	}
	return nil
}
