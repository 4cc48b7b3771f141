package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/xpanvictor/xscribe/pkg/Logger"
	"github.com/xpanvictor/xscribe/pkg/io/device"
	"github.com/xpanvictor/xscribe/pkg/io/ingest"
	memoryregistry "github.com/xpanvictor/xscribe/pkg/io/registry/memoryRegistry"
)

type fakeCapture struct {
	mu        sync.Mutex
	beginErr  error
	endErr    error
	ended     map[uuid.UUID]bool
	discarded []uuid.UUID
	ephemeral *ingest.Ephemeral
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{ended: map[uuid.UUID]bool{}, ephemeral: ingest.NewEphemeral()}
}

func (f *fakeCapture) BeginCapture(_ context.Context, onTick func(string)) (*ingest.Session, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	onTick("00:01")
	return &ingest.Session{ID: uuid.New(), StartedAt: time.Now()}, nil
}

func (f *fakeCapture) EndCapture(_ context.Context, s *ingest.Session) (*ingest.AudioUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.endErr != nil {
		return nil, f.endErr
	}
	if f.ended[s.ID] {
		return nil, ingest.ErrSessionClosed
	}
	f.ended[s.ID] = true
	content := []byte("RIFFcaptured")
	return &ingest.AudioUnit{
		Content:         content,
		MimeType:        "audio/wav",
		Name:            "recording.wav",
		DurationSeconds: 1,
		EphemeralURL:    f.ephemeral.Register(s.ID, content, "audio/wav"),
	}, nil
}

func (f *fakeCapture) Discard(s *ingest.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discarded = append(f.discarded, s.ID)
}

func (f *fakeCapture) Ephemeral() *ingest.Ephemeral {
	return f.ephemeral
}

type captureFixture struct {
	router  *gin.Engine
	ingest  *fakeCapture
	manager *CaptureManager
	runner  *fakeRunner
}

func newCaptureFixture(t *testing.T) *captureFixture {
	t.Helper()
	f := &captureFixture{ingest: newFakeCapture(), runner: &fakeRunner{}}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	f.manager = NewCaptureManager(f.ingest, time.Hour, Logger.Nop())
	t.Cleanup(func() { f.manager.Close() })
	jobs := NewJobRunner(ctx, f.runner, memoryregistry.New(0), Logger.Nop())
	h := NewCaptureHandler(ctx, f.manager, jobs, testSettings(), Logger.Nop())

	f.router = gin.New()
	f.router.POST("/api/capture/start", h.Start)
	f.router.GET("/api/capture/:id", h.Status)
	f.router.POST("/api/capture/:id/stop", h.Stop)
	f.router.GET("/api/capture/:id/content", h.Content)
	f.router.POST("/api/capture/:id/process", h.Process)
	f.router.DELETE("/api/capture/:id", h.Discard)
	return f
}

func (f *captureFixture) start(t *testing.T) uuid.UUID {
	t.Helper()
	w := serve(f.router, httptest.NewRequest(http.MethodPost, "/api/capture/start", nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("start status = %d: %s", w.Code, w.Body)
	}
	var resp CaptureStartedResponse
	decode(t, w, &resp)
	return resp.SessionID
}

func TestCaptureLifecycle(t *testing.T) {
	f := newCaptureFixture(t)
	id := f.start(t)
	base := "/api/capture/" + id.String()

	w := serve(f.router, httptest.NewRequest(http.MethodGet, base, nil))
	var status CaptureStatusResponse
	decode(t, w, &status)
	if status.Stopped || status.Elapsed != "00:01" {
		t.Errorf("running status = %+v", status)
	}

	w = serve(f.router, httptest.NewRequest(http.MethodGet, base+"/content", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("content before stop = %d, want 409", w.Code)
	}

	w = serve(f.router, httptest.NewRequest(http.MethodPost, base+"/stop", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("stop status = %d: %s", w.Code, w.Body)
	}
	decode(t, w, &status)
	if !status.Stopped || status.Unit == nil || status.Unit.EphemeralURL == "" {
		t.Fatalf("stopped status = %+v", status)
	}

	w = serve(f.router, httptest.NewRequest(http.MethodGet, base+"/content", nil))
	if w.Code != http.StatusOK || w.Body.String() != "RIFFcaptured" {
		t.Errorf("content = %d %q", w.Code, w.Body)
	}

	w = serve(f.router, httptest.NewRequest(http.MethodPost, base+"/stop", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("second stop = %d, want 409", w.Code)
	}

	w = serve(f.router, httptest.NewRequest(http.MethodPost, base+"/process", nil))
	if w.Code != http.StatusAccepted {
		t.Fatalf("process status = %d: %s", w.Code, w.Body)
	}
	if f.manager.Count() != 0 {
		t.Errorf("capture still tracked after process")
	}
	eventually(t, func() bool { return len(f.runner.requests()) == 1 })
	if u := f.runner.requests()[0].Source.Unit; u == nil || u.Name != "recording.wav" {
		t.Errorf("run source unit = %+v", u)
	}
	if len(f.ingest.discarded) != 0 {
		t.Errorf("processed capture was discarded")
	}
}

func TestCaptureProcessBeforeStop(t *testing.T) {
	f := newCaptureFixture(t)
	id := f.start(t)

	w := serve(f.router, httptest.NewRequest(http.MethodPost, "/api/capture/"+id.String()+"/process", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
	if f.manager.Count() != 1 {
		t.Errorf("capture dropped")
	}
}

func TestCaptureDiscard(t *testing.T) {
	f := newCaptureFixture(t)
	id := f.start(t)

	w := serve(f.router, httptest.NewRequest(http.MethodDelete, "/api/capture/"+id.String(), nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(f.ingest.discarded) != 1 || f.ingest.discarded[0] != id {
		t.Errorf("discarded = %v", f.ingest.discarded)
	}
	w = serve(f.router, httptest.NewRequest(http.MethodGet, "/api/capture/"+id.String(), nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status after discard = %d, want 404", w.Code)
	}
}

func TestCaptureErrors(t *testing.T) {
	tests := []struct {
		name     string
		beginErr error
		endErr   error
		want     int
	}{
		{"permission", device.ErrPermission, nil, http.StatusForbidden},
		{"no device", device.ErrUnavailable, nil, http.StatusServiceUnavailable},
		{"silent capture", nil, ingest.ErrNothingCaptured, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCaptureFixture(t)
			f.ingest.beginErr = tt.beginErr
			f.ingest.endErr = tt.endErr

			w := serve(f.router, httptest.NewRequest(http.MethodPost, "/api/capture/start", nil))
			if tt.beginErr != nil {
				if w.Code != tt.want {
					t.Errorf("start status = %d, want %d", w.Code, tt.want)
				}
				return
			}
			var started CaptureStartedResponse
			decode(t, w, &started)
			w = serve(f.router, httptest.NewRequest(http.MethodPost, "/api/capture/"+started.SessionID.String()+"/stop", nil))
			if w.Code != tt.want {
				t.Errorf("stop status = %d, want %d", w.Code, tt.want)
			}
			// a failed stop releases the device
			if f.manager.Count() != 0 || len(f.ingest.discarded) != 1 {
				t.Errorf("count = %d discarded = %v", f.manager.Count(), f.ingest.discarded)
			}
		})
	}
}

func TestCaptureCleanupDiscardsStale(t *testing.T) {
	f := newCaptureFixture(t)
	running := f.start(t)
	stopped := f.start(t)
	serve(f.router, httptest.NewRequest(http.MethodPost, "/api/capture/"+stopped.String()+"/stop", nil))

	f.manager.sessionTimeout = 0
	time.Sleep(time.Millisecond)
	f.manager.cleanupExpiredSessions()

	if _, ok := f.manager.get(running); !ok {
		t.Error("running capture was cleaned up")
	}
	if _, ok := f.manager.get(stopped); ok {
		t.Error("stale stopped capture kept")
	}
}

func TestCaptureCleanupReclaimsOverrunningCapture(t *testing.T) {
	f := newCaptureFixture(t)
	running := f.start(t)

	f.manager.cleanupExpiredSessions()
	if _, ok := f.manager.get(running); !ok {
		t.Fatal("capture within its limit was cleaned up")
	}

	f.manager.maxRunning = time.Nanosecond
	time.Sleep(time.Millisecond)
	f.manager.cleanupExpiredSessions()

	if _, ok := f.manager.get(running); ok {
		t.Error("capture past its limit kept")
	}
	if len(f.ingest.discarded) != 1 || f.ingest.discarded[0] != running {
		t.Errorf("discarded = %v, want the overrunning capture", f.ingest.discarded)
	}
}
