package memoryregistry

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/xscribe/internal/domains/pipeline"
	"github.com/xpanvictor/xscribe/pkg/io/registry"
)

const (
	subscriberBuffer = 64
	maxSweepInterval = 5 * time.Minute
)

type entry struct {
	job  registry.Job
	subs map[int]chan pipeline.Progress
	next int
}

type mmrRegistry struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*entry
	now  func() time.Time

	ttl       time.Duration
	stop      chan struct{}
	closeOnce sync.Once
}

// Create implements registry.Registry.
func (m *mmrRegistry) Create() registry.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	job := registry.Job{
		ID:     uuid.New(),
		Status: registry.StatusRunning,
		Progress: pipeline.Progress{
			Stage: pipeline.Idle,
			Label: pipeline.Idle.Label(),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.jobs[job.ID] = &entry{job: job, subs: make(map[int]chan pipeline.Progress)}
	return job
}

// Update implements registry.Registry.
func (m *mmrRegistry) Update(id uuid.UUID, p pipeline.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.jobs[id]
	if e == nil {
		return registry.ErrJobNotFound
	}
	if e.job.Status != registry.StatusRunning {
		return registry.ErrJobFinished
	}
	e.job.Progress = p
	e.job.UpdatedAt = m.now()
	for _, ch := range e.subs {
		// slow subscribers miss intermediate values, never the close
		select {
		case ch <- p:
		default:
		}
	}
	return nil
}

// Complete implements registry.Registry.
func (m *mmrRegistry) Complete(id uuid.UUID, res *pipeline.Result, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.jobs[id]
	if e == nil {
		return registry.ErrJobNotFound
	}
	if e.job.Status != registry.StatusRunning {
		return registry.ErrJobFinished
	}
	if err != nil {
		e.job.Status = registry.StatusFailed
		e.job.Error = err.Error()
		e.job.Progress = pipeline.Progress{Stage: pipeline.Failed, Label: pipeline.Failed.Label(), Value: 1, Error: err.Error()}
	} else {
		e.job.Status = registry.StatusDone
		e.job.Result = res
		e.job.Progress = pipeline.Progress{Stage: pipeline.Done, Label: pipeline.Done.Label(), Value: 1}
	}
	e.job.UpdatedAt = m.now()
	for k, ch := range e.subs {
		select {
		case ch <- e.job.Progress:
		default:
		}
		close(ch)
		delete(e.subs, k)
	}
	return nil
}

// Get implements registry.Registry.
func (m *mmrRegistry) Get(id uuid.UUID) (registry.Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e := m.jobs[id]
	if e == nil {
		return registry.Job{}, false
	}
	return e.job, true
}

// Subscribe implements registry.Registry.
func (m *mmrRegistry) Subscribe(id uuid.UUID) (<-chan pipeline.Progress, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.jobs[id]
	if e == nil {
		return nil, func() {}, registry.ErrJobNotFound
	}

	ch := make(chan pipeline.Progress, subscriberBuffer)
	ch <- e.job.Progress
	if e.job.Status != registry.StatusRunning {
		close(ch)
		return ch, func() {}, nil
	}

	key := e.next
	e.next++
	e.subs[key] = ch
	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := e.subs[key]; ok {
			close(c)
			delete(e.subs, key)
		}
	}
	return ch, cancel, nil
}

// New returns an in-process registry. Finished jobs are dropped once they
// have been idle for ttl; a non-positive ttl keeps them until Close.
func New(ttl time.Duration) registry.Registry {
	return newRegistry(ttl)
}

func newRegistry(ttl time.Duration) *mmrRegistry {
	m := &mmrRegistry{
		jobs: make(map[uuid.UUID]*entry),
		now:  time.Now,
		ttl:  ttl,
		stop: make(chan struct{}),
	}
	if ttl > 0 {
		m.startCleanupRoutine()
	}
	return m
}

func (m *mmrRegistry) startCleanupRoutine() {
	interval := m.ttl
	if interval > maxSweepInterval {
		interval = maxSweepInterval
	}
	ticker := time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-ticker.C:
				m.sweep()
			case <-m.stop:
				ticker.Stop()
				return
			}
		}
	}()
}

// sweep drops finished jobs whose last update is older than the ttl.
// Running jobs are never dropped.
func (m *mmrRegistry) sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-m.ttl)
	dropped := 0
	for id, e := range m.jobs {
		if e.job.Status != registry.StatusRunning && e.job.UpdatedAt.Before(cutoff) {
			delete(m.jobs, id)
			dropped++
		}
	}
	return dropped
}

// Close implements registry.Registry.
func (m *mmrRegistry) Close() error {
	m.closeOnce.Do(func() { close(m.stop) })
	return nil
}
