package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/xscribe/pkg/Logger"
	"github.com/xpanvictor/xscribe/pkg/io/ingest"
)

// CaptureIngestor is the capture half of ingest.Ingestor.
type CaptureIngestor interface {
	BeginCapture(ctx context.Context, onTick func(elapsed string)) (*ingest.Session, error)
	EndCapture(ctx context.Context, s *ingest.Session) (*ingest.AudioUnit, error)
	Discard(s *ingest.Session)
	Ephemeral() *ingest.Ephemeral
}

// captureState tracks one server-side capture between its HTTP calls.
type captureState struct {
	session *ingest.Session

	mu         sync.Mutex
	elapsed    string
	unit       *ingest.AudioUnit
	lastActive time.Time
}

func (s *captureState) snapshot() CaptureStatusResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CaptureStatusResponse{
		SessionID: s.session.ID,
		Elapsed:   s.elapsed,
		Stopped:   s.unit != nil,
		Unit:      s.unit,
	}
}

func (s *captureState) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// expired reports whether a stopped capture was left unclaimed for longer
// than idle, or a running one has held the device past maxRunning.
func (s *captureState) expired(idle, maxRunning time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unit != nil {
		return time.Since(s.lastActive) > idle
	}
	return maxRunning > 0 && time.Since(s.session.StartedAt) > maxRunning
}

// CaptureManager owns live and stopped capture sessions
type CaptureManager struct {
	ingestor       CaptureIngestor
	logger         *Logger.Logger
	sessions       map[uuid.UUID]*captureState
	mutex          sync.RWMutex
	cleanupTicker  *time.Ticker
	stopCleanup    chan struct{}
	sessionTimeout time.Duration
	maxRunning     time.Duration
}

// runningGrace is added to the capture limit before an abandoned running
// capture is reclaimed.
const runningGrace = 5 * time.Minute

// NewCaptureManager creates a new capture manager. Running captures older
// than maxDuration plus a grace period are discarded; zero disables that.
func NewCaptureManager(ingestor CaptureIngestor, maxDuration time.Duration, logger *Logger.Logger) *CaptureManager {
	cm := &CaptureManager{
		ingestor:       ingestor,
		logger:         logger,
		sessions:       make(map[uuid.UUID]*captureState),
		stopCleanup:    make(chan struct{}),
		sessionTimeout: 30 * time.Minute,
	}
	if maxDuration > 0 {
		cm.maxRunning = maxDuration + runningGrace
	}
	cm.startCleanupRoutine()
	return cm
}

func (cm *CaptureManager) register(s *captureState) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.sessions[s.session.ID] = s
}

func (cm *CaptureManager) get(id uuid.UUID) (*captureState, bool) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	s, ok := cm.sessions[id]
	return s, ok
}

// take removes the session from the manager without discarding it.
func (cm *CaptureManager) take(id uuid.UUID) (*captureState, bool) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	s, ok := cm.sessions[id]
	delete(cm.sessions, id)
	return s, ok
}

// discard releases the device and forgets the session.
func (cm *CaptureManager) discard(id uuid.UUID) bool {
	s, ok := cm.take(id)
	if ok {
		cm.ingestor.Discard(s.session)
	}
	return ok
}

// Count returns the number of tracked captures
func (cm *CaptureManager) Count() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return len(cm.sessions)
}

func (cm *CaptureManager) startCleanupRoutine() {
	cm.cleanupTicker = time.NewTicker(5 * time.Minute)

	go func() {
		for {
			select {
			case <-cm.cleanupTicker.C:
				cm.cleanupExpiredSessions()
			case <-cm.stopCleanup:
				cm.cleanupTicker.Stop()
				return
			}
		}
	}()
}

func (cm *CaptureManager) cleanupExpiredSessions() {
	cm.mutex.Lock()
	expired := make([]*captureState, 0)
	for id, s := range cm.sessions {
		if s.expired(cm.sessionTimeout, cm.maxRunning) {
			expired = append(expired, s)
			delete(cm.sessions, id)
		}
	}
	cm.mutex.Unlock()

	for _, s := range expired {
		cm.logger.Infof("Cleaning up expired capture %s", s.session.ID)
		cm.ingestor.Discard(s.session)
	}
	if len(expired) > 0 {
		cm.logger.Debugf("%d captures tracked, %d ephemeral units live", cm.Count(), cm.ingestor.Ephemeral().Len())
	}
}

// Close discards every capture and stops the cleanup routine
func (cm *CaptureManager) Close() error {
	close(cm.stopCleanup)

	cm.mutex.Lock()
	sessions := cm.sessions
	cm.sessions = make(map[uuid.UUID]*captureState)
	cm.mutex.Unlock()

	for id, s := range sessions {
		cm.logger.Infof("Closing capture %s", id)
		cm.ingestor.Discard(s.session)
	}
	return nil
}
