package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/duckask/duckask/internal/dataset"
)

var ErrNotFound = errors.New("session not found")

// Session is a read-only view of one user's state. The dataset pointer is
// shared with the manager; it is replaced wholesale, never mutated.
type Session struct {
	ID        string
	APIKey    string
	Model     string
	Dataset   *dataset.Dataset
	History   []string
	CreatedAt time.Time
}

type state struct {
	id        string
	createdAt time.Time
	lastSeen  time.Time
	apiKey    string
	model     string
	dataset   *dataset.Dataset
	history   []string
}

// Manager owns all session state. Every dataset replacement happens under
// the manager lock, so a session never observes a half-swapped dataset.
type Manager struct {
	mu           sync.Mutex
	sessions     map[string]*state
	idleTTL      time.Duration
	historyLimit int
	now          func() time.Time
}

type Config struct {
	IdleTTL      time.Duration
	HistoryLimit int
}

func NewManager(cfg Config) *Manager {
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = 20
	}
	return &Manager{
		sessions:     map[string]*state{},
		idleTTL:      ttl,
		historyLimit: limit,
		now:          time.Now,
	}
}

func (m *Manager) Create(apiKey, model string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	s := &state{
		id:        uuid.NewString(),
		createdAt: now,
		lastSeen:  now,
		apiKey:    strings.TrimSpace(apiKey),
		model:     strings.TrimSpace(model),
	}
	m.sessions[s.id] = s
	return s.view()
}

func (m *Manager) Get(id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	s.lastSeen = m.now()
	return s.view(), nil
}

// SetCredentials updates the session's language model key and model name.
// Empty values leave the existing ones in place.
func (m *Manager) SetCredentials(id, apiKey, model string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if key := strings.TrimSpace(apiKey); key != "" {
		s.apiKey = key
	}
	if name := strings.TrimSpace(model); name != "" {
		s.model = name
	}
	s.lastSeen = m.now()
	return nil
}

// SetDataset replaces the session's dataset wholesale. The previous
// dataset's backing file is removed; its removal failure does not block the
// swap.
func (m *Manager) SetDataset(id string, ds *dataset.Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	old := s.dataset
	s.dataset = ds
	s.history = nil
	s.lastSeen = m.now()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

func (m *Manager) RecordQuestion(id, question string) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.history = append(s.history, question)
	if len(s.history) > m.historyLimit {
		s.history = s.history[len(s.history)-m.historyLimit:]
	}
	s.lastSeen = m.now()
	return nil
}

// Sweep drops sessions idle past the TTL and reports how many were removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.idleTTL)
	removed := 0
	for id, s := range m.sessions {
		if s.lastSeen.Before(cutoff) {
			if s.dataset != nil {
				_ = s.dataset.Close()
			}
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps expired sessions on the given interval until the channel
// closes.
func (m *Manager) Run(interval time.Duration, done <-chan struct{}) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Shutdown closes every session's dataset.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sessions {
		if s.dataset != nil {
			_ = s.dataset.Close()
		}
		delete(m.sessions, id)
	}
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (s *state) view() Session {
	history := make([]string, len(s.history))
	copy(history, s.history)
	return Session{
		ID:        s.id,
		APIKey:    s.apiKey,
		Model:     s.model,
		Dataset:   s.dataset,
		History:   history,
		CreatedAt: s.createdAt,
	}
}
