package remote

import (
	"sync"
	"time"
)

// Session tracks one remote-operator connection (spec §4.4): a single
// session may hold teleoperation control at a time, and it expires if
// the operator goes quiet for longer than IdleTimeout.
type Session struct {
	ID        string
	StartedAt time.Time
	touchedAt time.Time
}

// SessionConfig controls the idle-expiry window.
type SessionConfig struct {
	IdleTimeout time.Duration // default 300s
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 300 * time.Second
	}
	return c
}

// SessionManager owns the single active remote session, if any. Every
// /intent call touches it; a background sweep expires it on inactivity
// and fires OnExpire so the orchestrator can be told the operator is
// gone (spec §4.4's remote.session topic).
type SessionManager struct {
	cfg SessionConfig

	mu      sync.Mutex
	active  *Session
	nowFunc func() time.Time

	OnActivate func(id string)
	OnExpire   func(id string)
}

// NewSessionManager constructs a SessionManager. Call Sweep periodically
// (e.g. from the ticker in Server.sweepLoop) to expire idle sessions.
func NewSessionManager(cfg SessionConfig) *SessionManager {
	return &SessionManager{
		cfg:     cfg.withDefaults(),
		nowFunc: time.Now,
	}
}

// Touch registers activity from id, starting a new session if none is
// active (including after Sweep has expired the previous one) or the
// active session belongs to a different id, which it replaces. Touch
// itself does not check idle expiry. Returns whether this call started
// a new session.
func (m *SessionManager) Touch(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	started := false
	if m.active == nil || m.active.ID != id {
		m.active = &Session{ID: id, StartedAt: now}
		started = true
	}
	m.active.touchedAt = now

	if started && m.OnActivate != nil {
		m.OnActivate(id)
	}
	return started
}

// Active reports the current session ID and whether one is active.
func (m *SessionManager) Active() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return "", false
	}
	return m.active.ID, true
}

// Sweep expires the active session if it has gone quiet past
// IdleTimeout, invoking OnExpire exactly once for the expired ID.
func (m *SessionManager) Sweep() {
	m.mu.Lock()
	var expiredID string
	if m.active != nil && m.nowFunc().Sub(m.active.touchedAt) > m.cfg.IdleTimeout {
		expiredID = m.active.ID
		m.active = nil
	}
	m.mu.Unlock()

	if expiredID != "" && m.OnExpire != nil {
		m.OnExpire(expiredID)
	}
}
