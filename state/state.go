package state

import (
	"crypto/sha256"
	"encoding/base64"
	"sync"
)

// Tracker remembers which message contents were already written to the
// archive during a run.
type Tracker interface {
	AlreadyProcessed(hash string) bool
	MarkProcessed(hash, path string) error
	FirstPath(hash string) string
	Snapshot() Snapshot
}

type Snapshot struct {
	Processed int
}

// Hash identifies message content independent of its file name.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return base64.StdEncoding.EncodeToString(sum[:])
}

type MemoryTracker struct {
	mu        sync.RWMutex
	processed map[string]string
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{processed: make(map[string]string)}
}

func (m *MemoryTracker) AlreadyProcessed(hash string) bool {
	if hash == "" {
		return false
	}

	m.mu.RLock()
	_, ok := m.processed[hash]
	m.mu.RUnlock()
	return ok
}

// MarkProcessed records hash; the first path seen for a hash is kept.
func (m *MemoryTracker) MarkProcessed(hash, path string) error {
	if hash == "" {
		return nil
	}

	m.mu.Lock()
	if _, exists := m.processed[hash]; !exists {
		m.processed[hash] = path
	}
	m.mu.Unlock()
	return nil
}

// FirstPath returns the file that first produced hash, or "".
func (m *MemoryTracker) FirstPath(hash string) string {
	m.mu.RLock()
	path := m.processed[hash]
	m.mu.RUnlock()
	return path
}

func (m *MemoryTracker) Snapshot() Snapshot {
	m.mu.RLock()
	count := len(m.processed)
	m.mu.RUnlock()
	return Snapshot{Processed: count}
}
