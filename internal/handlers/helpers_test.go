package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/xpanvictor/xscribe/internal/config"
	"github.com/xpanvictor/xscribe/internal/domains/library"
	"github.com/xpanvictor/xscribe/internal/domains/pipeline"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testSettings() *config.Settings {
	return &config.Settings{
		Summarization: config.SummarizationConfig{
			Lengths: map[string]string{"1": "very short", "3": "medium", "5": "very long"},
		},
		Files: config.FilesConfig{
			MaxSizeMB:    25,
			AudioFormats: []string{"mp3", "wav"},
			VideoFormats: []string{"mp4"},
		},
		Languages:   map[string]string{"sv": "Swedish", "en": "English", "auto": "Automatic detection"},
		Preferences: config.Preferences{Model: "whisper-small", SummaryLength: 3, Language: "sv"},
	}
}

type fakeStore struct {
	mu          sync.Mutex
	audio       map[uuid.UUID]*library.AudioRecord
	transcripts map[uuid.UUID]*library.TranscriptionRecord
	recent      []library.RecentEntry
	err         error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		audio:       map[uuid.UUID]*library.AudioRecord{},
		transcripts: map[uuid.UUID]*library.TranscriptionRecord{},
	}
}

func (s *fakeStore) SaveAudio(_ context.Context, a *library.AudioRecord) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = uuid.New()
	s.audio[a.ID] = a
	s.recent = append([]library.RecentEntry{{ID: a.ID, Name: a.Name}}, s.recent...)
	return a.ID, nil
}

func (s *fakeStore) GetAudio(_ context.Context, id uuid.UUID) (*library.AudioRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	a, ok := s.audio[id]
	if !ok {
		return nil, library.ErrNotFound
	}
	return a, nil
}

func (s *fakeStore) SaveTranscript(_ context.Context, t *library.TranscriptionRecord) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = uuid.New()
	s.transcripts[t.ID] = t
	return t.ID, nil
}

func (s *fakeStore) GetTranscript(_ context.Context, id uuid.UUID) (*library.TranscriptionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transcripts[id]
	if !ok {
		return nil, library.ErrNotFound
	}
	return t, nil
}

func (s *fakeStore) GetTranscriptByAudioID(_ context.Context, audioID uuid.UUID) (*library.TranscriptionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.transcripts {
		if t.AudioID == audioID {
			return t, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) DeleteAudio(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.audio[id]
	delete(s.audio, id)
	for tid, t := range s.transcripts {
		if t.AudioID == id {
			delete(s.transcripts, tid)
		}
	}
	return ok, nil
}

func (s *fakeStore) GetRecent(_ context.Context) ([]library.RecentEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.recent, nil
}

// fakeRunner reports two stages and returns a fixed result, or fails.
type fakeRunner struct {
	mu   sync.Mutex
	reqs []pipeline.Request
	err  error
}

func (f *fakeRunner) Run(_ context.Context, req pipeline.Request, progress chan<- pipeline.Progress) (*pipeline.Result, error) {
	defer close(progress)
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()

	progress <- pipeline.Progress{Stage: pipeline.Ingesting, Label: pipeline.Ingesting.Label()}
	progress <- pipeline.Progress{Stage: pipeline.Transcribing, Label: pipeline.Transcribing.Label(), Value: 0.5}
	if f.err != nil {
		progress <- pipeline.Progress{Stage: pipeline.Failed, Label: pipeline.Failed.Label(), Error: f.err.Error()}
		return nil, f.err
	}
	progress <- pipeline.Progress{Stage: pipeline.Done, Label: pipeline.Done.Label(), Value: 1}
	return &pipeline.Result{
		AudioID:        uuid.New(),
		TranscriptID:   uuid.New(),
		FileName:       req.Source.FileName,
		TranscriptText: "hello there",
		ModelUsed:      req.Preferences.Model,
		Language:       req.Preferences.Language,
	}, nil
}

func (f *fakeRunner) requests() []pipeline.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pipeline.Request(nil), f.reqs...)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

// eventually polls cond until it holds or a second passes.
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
