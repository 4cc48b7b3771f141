package library

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis"
	"github.com/google/uuid"
	"github.com/xpanvictor/xscribe/internal/domains/library"
)

// RedisRecentList keeps the recent entries as JSON in a capped redis list.
type RedisRecentList struct {
	rc  *redis.Client
	key string
}

func NewRedisRecentList(rc *redis.Client, key string) library.RecentList {
	return &RedisRecentList{rc: rc, key: key}
}

// Push implements library.RecentList
func (r *RedisRecentList) Push(e library.RecentEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal recent entry: %w", err)
	}
	_, err = r.rc.TxPipelined(func(pipe redis.Pipeliner) error {
		pipe.LPush(r.key, data)
		pipe.LTrim(r.key, 0, library.RecentLimit-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to push recent entry: %w", err)
	}
	return nil
}

// Remove implements library.RecentList
func (r *RedisRecentList) Remove(id uuid.UUID) error {
	raw, err := r.rc.LRange(r.key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read recent list: %w", err)
	}
	for _, item := range raw {
		var e library.RecentEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		if e.ID != id {
			continue
		}
		if err := r.rc.LRem(r.key, 0, item).Err(); err != nil {
			return fmt.Errorf("failed to remove recent entry: %w", err)
		}
	}
	return nil
}

// List implements library.RecentList
func (r *RedisRecentList) List() ([]library.RecentEntry, error) {
	raw, err := r.rc.LRange(r.key, 0, library.RecentLimit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recent list: %w", err)
	}
	entries := make([]library.RecentEntry, 0, len(raw))
	for _, item := range raw {
		var e library.RecentEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// MemoryRecentList is the in-process list used when no redis is configured.
type MemoryRecentList struct {
	mu      sync.RWMutex
	entries []library.RecentEntry
}

func NewMemoryRecentList() library.RecentList {
	return &MemoryRecentList{}
}

func (m *MemoryRecentList) Push(e library.RecentEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append([]library.RecentEntry{e}, m.entries...)
	if len(m.entries) > library.RecentLimit {
		m.entries = m.entries[:library.RecentLimit]
	}
	return nil
}

func (m *MemoryRecentList) Remove(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	return nil
}

func (m *MemoryRecentList) List() ([]library.RecentEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]library.RecentEntry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}
