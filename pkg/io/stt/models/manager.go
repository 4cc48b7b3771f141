package models

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xpanvictor/xscribe/internal/config"
	"github.com/xpanvictor/xscribe/pkg/Logger"
	"github.com/xpanvictor/xscribe/pkg/io/stt"
)

// ErrBusy is returned when a load is already in flight.
var ErrBusy = errors.New("model load already in progress")

// Loader fetches and initializes one catalog entry.
type Loader interface {
	Load(ctx context.Context, entry config.ModelEntry, onProgress func(fraction float64)) (stt.Recognizer, error)
}

// slot is a cached recognizer and the runs still holding it. A replaced slot
// is closed once its last holder releases it.
type slot struct {
	rec     stt.Recognizer
	refs    int
	retired bool
}

// Manager owns the single loaded recognizer. At most one load runs at a time.
type Manager struct {
	catalog *Catalog
	loader  Loader
	logger  *Logger.Logger

	mu       sync.Mutex
	current  *slot
	loading  bool
	cancel   context.CancelFunc
	loadDone chan struct{}
}

func NewManager(catalog *Catalog, loader Loader, logger *Logger.Logger) *Manager {
	return &Manager{
		catalog: catalog,
		loader:  loader,
		logger:  logger.Named("models"),
	}
}

func (m *Manager) Catalog() *Catalog {
	return m.catalog
}

// LoadModel loads name into the cache slot, replacing whatever was there.
//
// It returns (false, ErrBusy) without touching state if a load is already
// running, (false, nil) if the load was cancelled through CancelLoad, and
// (false, err) on failure, leaving the previous model active.
func (m *Manager) LoadModel(ctx context.Context, name string, onProgress func(float64)) (bool, error) {
	entry := m.catalog.Resolve(name)

	m.mu.Lock()
	if m.loading {
		m.mu.Unlock()
		m.logger.Infof("load of %s rejected: another load is in flight", entry.Name)
		return false, ErrBusy
	}
	loadCtx, cancel := context.WithCancel(ctx)
	m.loading = true
	m.cancel = cancel
	m.loadDone = make(chan struct{})
	m.mu.Unlock()

	if entry.Name != name {
		m.logger.Warnf("unknown model %q, using %s", name, entry.Name)
	}
	m.logger.Infof("loading model %s (%s)", entry.Name, entry.ModelID)

	rec, err := m.loader.Load(loadCtx, entry, clampProgress(onProgress))
	cancelled := loadCtx.Err() != nil && ctx.Err() == nil
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading = false
	m.cancel = nil
	close(m.loadDone)
	m.loadDone = nil

	switch {
	case cancelled:
		if rec != nil {
			rec.Close()
		}
		m.logger.Infof("load of %s cancelled", entry.Name)
		return false, nil
	case err != nil:
		m.logger.Errorf("load of %s failed: %v", entry.Name, err)
		return false, fmt.Errorf("load %s: %w", entry.Name, err)
	case rec == nil:
		return false, fmt.Errorf("load %s: loader returned no model", entry.Name)
	}

	m.retire(m.current)
	m.current = &slot{rec: rec}
	m.logger.Infof("model %s ready", entry.Name)
	return true, nil
}

// WaitLoad blocks until no load is in flight or ctx is done.
func (m *Manager) WaitLoad(ctx context.Context) error {
	m.mu.Lock()
	done := m.loadDone
	m.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsLoaded reports whether name is the cached model and no load is running.
func (m *Manager) IsLoaded(name string) bool {
	entry := m.catalog.Resolve(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.loading && m.current != nil && m.current.rec.Name() == entry.Name
}

// CancelLoad aborts the in-flight load, if any.
func (m *Manager) CancelLoad() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
}

// Loading reports whether a load is in flight.
func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// Acquire pins the cached recognizer until release is called, or returns
// stt.ErrModelNotLoaded. A load finishing meanwhile replaces the slot but
// does not close the pinned recognizer under its holder.
func (m *Manager) Acquire() (stt.Recognizer, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, nil, stt.ErrModelNotLoaded
	}
	s := m.current
	s.refs++
	var once sync.Once
	release := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			s.refs--
			if s.retired && s.refs == 0 {
				m.closeSlot(s)
			}
		})
	}
	return s.rec, release, nil
}

// Current is the cached model name, empty if none.
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return m.current.rec.Name()
}

// Close releases the cached model. A recognizer still pinned is closed by
// its last release.
func (m *Manager) Close() error {
	m.CancelLoad()
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.current
	m.current = nil
	if s == nil {
		return nil
	}
	s.retired = true
	if s.refs > 0 {
		return nil
	}
	return s.rec.Close()
}

// retire closes s now or marks it for its last holder. Callers hold m.mu.
func (m *Manager) retire(s *slot) {
	if s == nil {
		return
	}
	s.retired = true
	if s.refs == 0 {
		m.closeSlot(s)
	}
}

func (m *Manager) closeSlot(s *slot) {
	if err := s.rec.Close(); err != nil {
		m.logger.Warnf("closing %s: %v", s.rec.Name(), err)
	}
}

// clampProgress forwards fractions in [0,1] and never goes backwards.
func clampProgress(onProgress func(float64)) func(float64) {
	if onProgress == nil {
		return func(float64) {}
	}
	var mu sync.Mutex
	last := -1.0
	return func(f float64) {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		mu.Lock()
		if f < last {
			f = last
		}
		last = f
		mu.Unlock()
		onProgress(f)
	}
}
