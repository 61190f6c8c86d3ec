package router

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gabrielmiguelok/liveintake/pkg/core"
	"github.com/gabrielmiguelok/liveintake/pkg/transport"
)

// ErrTooManySessions is returned when the session limit is reached.
var ErrTooManySessions = errors.New("too many live sessions")

// LiveSession binds a mounted component to its socket and transport.
type LiveSession struct {
	// ID is the socket id the session is registered under.
	ID string

	Component core.Component
	Socket    *core.Socket
	Transport transport.Transport
	Params    core.Params
	Session   core.Session
	CreatedAt time.Time

	lastActivity atomic.Int64
	reason       atomic.Int32
	mounted      bool
	mu           sync.RWMutex
}

func newLiveSession(id string, comp core.Component, socket *core.Socket, t transport.Transport, params core.Params, session core.Session) *LiveSession {
	now := time.Now()
	ls := &LiveSession{
		ID:        id,
		Component: comp,
		Socket:    socket,
		Transport: t,
		Params:    params,
		Session:   session,
		CreatedAt: now,
	}
	ls.lastActivity.Store(now.UnixNano())
	return ls
}

// ClientID returns the durable client id of the session.
func (s *LiveSession) ClientID() string {
	return s.Session.GetString(SessionClientID)
}

// Touch records client activity.
func (s *LiveSession) Touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns the time of the last client message.
func (s *LiveSession) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// IsMounted reports whether the component has been mounted.
func (s *LiveSession) IsMounted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mounted
}

func (s *LiveSession) setMounted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mounted = true
}

// expire closes the socket and records why.
func (s *LiveSession) expire(reason core.TerminateReason) {
	s.reason.CompareAndSwap(0, int32(reason))
	_ = s.Socket.Close()
}

func (s *LiveSession) terminateReason() core.TerminateReason {
	return core.TerminateReason(s.reason.Load())
}

// SessionManagerConfig configures the session manager.
type SessionManagerConfig struct {
	// MaxSessions is the maximum number of concurrent sessions (0 = no limit).
	MaxSessions int

	// IdleTimeout is how long a session may go without client messages.
	IdleTimeout time.Duration
}

// DefaultSessionManagerConfig returns the default configuration.
func DefaultSessionManagerConfig() *SessionManagerConfig {
	return &SessionManagerConfig{
		MaxSessions: 10000,
		IdleTimeout: 30 * time.Minute,
	}
}

// SessionManager tracks live sessions.
type SessionManager struct {
	sessions    map[string]*LiveSession
	maxSessions int
	idleTimeout time.Duration
	now         func() time.Time
	mu          sync.RWMutex
}

// NewSessionManager creates a session manager.
func NewSessionManager(config *SessionManagerConfig) *SessionManager {
	if config == nil {
		config = DefaultSessionManagerConfig()
	}
	return &SessionManager{
		sessions:    make(map[string]*LiveSession),
		maxSessions: config.MaxSessions,
		idleTimeout: config.IdleTimeout,
		now:         time.Now,
	}
}

// Add registers a session.
func (m *SessionManager) Add(s *LiveSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		return ErrTooManySessions
	}
	m.sessions[s.ID] = s
	return nil
}

// Get returns a session by id.
func (m *SessionManager) Get(id string) (*LiveSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove unregisters a session.
func (m *SessionManager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Count returns the number of sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// All returns every session.
func (m *SessionManager) All() []*LiveSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*LiveSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		result = append(result, s)
	}
	return result
}

// Cleanup expires sessions idle for longer than the idle timeout and
// returns how many were expired. Their loops unregister them on exit.
func (m *SessionManager) Cleanup() int {
	if m.idleTimeout <= 0 {
		return 0
	}

	m.mu.RLock()
	now := m.now()
	var idle []*LiveSession
	for _, s := range m.sessions {
		if now.Sub(s.LastActivity()) > m.idleTimeout {
			idle = append(idle, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range idle {
		s.expire(core.TerminateTimeout)
	}
	return len(idle)
}

// StartCleanupRoutine runs Cleanup every interval until stopCh closes.
func (m *SessionManager) StartCleanupRoutine(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Cleanup()
			case <-stopCh:
				return
			}
		}
	}()
}
