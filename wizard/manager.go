package wizard

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jaliph/residence-companion/media"
	"github.com/jaliph/residence-companion/review"
	"github.com/jaliph/residence-companion/utils"
)

const (
	DefaultSessionTTL      = 30 * time.Minute
	DefaultCleanupInterval = 5 * time.Minute
)

var (
	ErrSessionNotFound = errors.New("wizard session not found")
	ErrSessionExpired  = errors.New("wizard session expired")
)

// entry tracks the expiry of a managed session
type entry struct {
	session   *Session
	expiresAt time.Time
}

// Manager owns the open wizard sessions, one per token
type Manager struct {
	sessions map[string]*entry // token -> session
	mu       sync.RWMutex

	service    review.Service
	device     media.Device
	onComplete CompletionFunc
	ttl        time.Duration
	now        func() time.Time

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewManager creates a session manager. Every session submits to service,
// captures from device and reports to onComplete.
func NewManager(service review.Service, device media.Device, ttl time.Duration, onComplete CompletionFunc) *Manager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Manager{
		sessions:   make(map[string]*entry),
		service:    service,
		device:     device,
		onComplete: onComplete,
		ttl:        ttl,
		now:        time.Now,
		stopChan:   make(chan struct{}),
	}
}

// Create opens a new session
func (m *Manager) Create(opts Options) (*Session, time.Time) {
	token := uuid.NewString()

	var capturer *media.Capturer
	if m.device != nil {
		capturer = media.NewCapturer(m.device)
	}
	session := NewSession(token, opts, m.service, capturer, m.onComplete)
	session.onClose = func() { m.forget(token) }

	expiresAt := m.now().Add(m.ttl)
	m.mu.Lock()
	m.sessions[token] = &entry{session: session, expiresAt: expiresAt}
	m.mu.Unlock()

	utils.Logger.Info("Wizard session created", "session", token, "capture_mode", session.opts.CaptureMode, "from_search", session.opts.FromSearch)
	return session, expiresAt
}

// Get returns an open session and extends its lifetime
func (m *Manager) Get(token string) (*Session, error) {
	m.mu.Lock()
	e, exists := m.sessions[token]
	if !exists {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	now := m.now()
	if now.After(e.expiresAt) {
		m.mu.Unlock()
		e.session.Close()
		return nil, ErrSessionExpired
	}
	e.expiresAt = now.Add(m.ttl)
	m.mu.Unlock()

	return e.session, nil
}

// Close discards a session
func (m *Manager) Close(token string) error {
	m.mu.RLock()
	e, exists := m.sessions[token]
	m.mu.RUnlock()
	if !exists {
		return ErrSessionNotFound
	}
	e.session.Close()
	return nil
}

func (m *Manager) forget(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}

// Count returns the number of open sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupExpiredSessions closes sessions that have not been touched within the TTL
func (m *Manager) CleanupExpiredSessions() {
	now := m.now()
	var expired []*Session

	m.mu.RLock()
	for _, e := range m.sessions {
		if now.After(e.expiresAt) {
			expired = append(expired, e.session)
		}
	}
	m.mu.RUnlock()

	for _, s := range expired {
		utils.Logger.Debug("Wizard session expired", "session", s.Token)
		s.Close()
	}
}

// StartCleanup starts periodic cleanup of expired sessions
func (m *Manager) StartCleanup(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.CleanupExpiredSessions()
			case <-m.stopChan:
				return
			}
		}
	}()
}

// Stop halts the cleanup loop and closes every open session
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })

	m.mu.RLock()
	open := make([]*Session, 0, len(m.sessions))
	for _, e := range m.sessions {
		open = append(open, e.session)
	}
	m.mu.RUnlock()

	for _, s := range open {
		s.Close()
	}
}
