package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/xscribe/pkg/Logger"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrStorage  = errors.New("storage failure")
	ErrInvalid  = errors.New("invalid record")
)

// Service is the persistence store the pipeline and handlers talk to.
type Service interface {
	SaveAudio(ctx context.Context, a *AudioRecord) (uuid.UUID, error)
	GetAudio(ctx context.Context, id uuid.UUID) (*AudioRecord, error)
	SaveTranscript(ctx context.Context, t *TranscriptionRecord) (uuid.UUID, error)
	GetTranscript(ctx context.Context, id uuid.UUID) (*TranscriptionRecord, error)
	// GetTranscriptByAudioID returns nil, nil when the audio has no transcript.
	GetTranscriptByAudioID(ctx context.Context, audioID uuid.UUID) (*TranscriptionRecord, error)
	DeleteAudio(ctx context.Context, id uuid.UUID) (bool, error)
	GetRecent(ctx context.Context) ([]RecentEntry, error)
}

type service struct {
	repo   Repository
	recent RecentList
	logger *Logger.Logger
	now    func() time.Time
}

func NewService(repo Repository, recent RecentList, logger *Logger.Logger) Service {
	return &service{
		repo:   repo,
		recent: recent,
		logger: logger.Named("store"),
		now:    time.Now,
	}
}

func (s *service) SaveAudio(ctx context.Context, a *AudioRecord) (uuid.UUID, error) {
	if a == nil {
		return uuid.Nil, ErrInvalid
	}
	if a.DurationSeconds < 0 {
		return uuid.Nil, fmt.Errorf("%w: negative duration", ErrInvalid)
	}
	a.ID = uuid.New()
	a.CreatedAt = s.now()

	if err := s.repo.CreateAudio(a); err != nil {
		s.logger.Errorf("error saving audio %q: %v", a.Name, err)
		return uuid.Nil, fmt.Errorf("%w: save audio: %v", ErrStorage, err)
	}

	// the record is committed; a stale recent list is not worth failing for
	if err := s.recent.Push(RecentEntry{ID: a.ID, Name: a.Name, Timestamp: a.CreatedAt}); err != nil {
		s.logger.Warnf("recent list not updated for %s: %v", a.ID, err)
	}
	s.logger.Infof("audio saved: %s (%d bytes, %.1fs)", a.ID, len(a.Content), a.DurationSeconds)
	return a.ID, nil
}

func (s *service) GetAudio(ctx context.Context, id uuid.UUID) (*AudioRecord, error) {
	a, err := s.repo.GetAudio(id)
	if err != nil {
		return nil, s.lookupErr("audio", id, err)
	}
	return a, nil
}

func (s *service) SaveTranscript(ctx context.Context, t *TranscriptionRecord) (uuid.UUID, error) {
	if t == nil {
		return uuid.Nil, ErrInvalid
	}
	t.ID = uuid.New()
	t.CreatedAt = s.now()

	if err := s.repo.CreateTranscript(t); err != nil {
		s.logger.Errorf("error saving transcript for audio %s: %v", t.AudioID, err)
		return uuid.Nil, fmt.Errorf("%w: save transcript: %v", ErrStorage, err)
	}
	s.logger.Infof("transcript saved: %s (audio %s)", t.ID, t.AudioID)
	return t.ID, nil
}

func (s *service) GetTranscript(ctx context.Context, id uuid.UUID) (*TranscriptionRecord, error) {
	t, err := s.repo.GetTranscript(id)
	if err != nil {
		return nil, s.lookupErr("transcript", id, err)
	}
	return t, nil
}

func (s *service) GetTranscriptByAudioID(ctx context.Context, audioID uuid.UUID) (*TranscriptionRecord, error) {
	ids, err := s.repo.TranscriptIDsByAudio(audioID)
	if err != nil {
		return nil, fmt.Errorf("%w: transcript index: %v", ErrStorage, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	t, err := s.repo.GetTranscript(ids[0])
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// removed between the index read and the fetch
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get transcript: %v", ErrStorage, err)
	}
	return t, nil
}

// DeleteAudio removes linked transcripts first, then the audio, then the
// recent entry. The steps are not one transaction.
func (s *service) DeleteAudio(ctx context.Context, id uuid.UUID) (bool, error) {
	ids, err := s.repo.TranscriptIDsByAudio(id)
	if err != nil {
		return false, fmt.Errorf("%w: transcript index: %v", ErrStorage, err)
	}
	for _, tid := range ids {
		if err := s.repo.DeleteTranscript(tid); err != nil && !errors.Is(err, ErrNotFound) {
			s.logger.Errorf("error deleting transcript %s of audio %s: %v", tid, id, err)
			return false, fmt.Errorf("%w: delete transcript: %v", ErrStorage, err)
		}
	}

	removed, err := s.repo.DeleteAudio(id)
	if err != nil {
		s.logger.Errorf("error deleting audio %s: %v", id, err)
		return false, fmt.Errorf("%w: delete audio: %v", ErrStorage, err)
	}

	if err := s.recent.Remove(id); err != nil {
		s.logger.Warnf("recent list not updated after deleting %s: %v", id, err)
	}
	s.logger.Infof("audio deleted: %s (%d transcripts)", id, len(ids))
	return removed, nil
}

func (s *service) GetRecent(ctx context.Context) ([]RecentEntry, error) {
	entries, err := s.recent.List()
	if err != nil {
		return nil, fmt.Errorf("%w: recent list: %v", ErrStorage, err)
	}
	if len(entries) > RecentLimit {
		entries = entries[:RecentLimit]
	}
	return entries, nil
}

func (s *service) lookupErr(kind string, id uuid.UUID, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	s.logger.Errorf("error getting %s %s: %v", kind, id, err)
	return fmt.Errorf("%w: get %s: %v", ErrStorage, kind, err)
}
