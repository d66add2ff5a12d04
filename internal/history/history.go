package history

import (
	"sync"

	"github.com/KickerMix/KotobulkaGPT-Bot/internal/llm"
)

// Manager keeps a bounded per-user conversation buffer. Appending past
// the capacity evicts the oldest turns first; the capacity is shared by
// all users. Buffers are created lazily and live for the process
// lifetime unless reset.
type Manager struct {
	mu       sync.RWMutex
	limit    int
	sessions map[int64][]llm.Message
}

func NewManager(limit int) *Manager {
	return &Manager{limit: limit, sessions: make(map[int64][]llm.Message)}
}

func (m *Manager) AppendUser(userID int64, content string) {
	m.Append(userID, llm.Message{Role: "user", Content: content})
}

func (m *Manager) AppendAssistant(userID int64, content string) {
	m.Append(userID, llm.Message{Role: "assistant", Content: content})
}

func (m *Manager) Append(userID int64, msg llm.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := append(m.sessions[userID], msg)
	if len(s) > m.limit {
		trimmed := make([]llm.Message, m.limit)
		copy(trimmed, s[len(s)-m.limit:])
		s = trimmed
	}
	m.sessions[userID] = s
}

// Snapshot returns a copy of the user's buffer in append order. Mutating
// the returned slice does not affect the stored history.
func (m *Manager) Snapshot(userID int64) []llm.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.sessions[userID]
	out := make([]llm.Message, len(s))
	copy(out, s)
	return out
}

func (m *Manager) Len(userID int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions[userID])
}

func (m *Manager) Reset(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}
