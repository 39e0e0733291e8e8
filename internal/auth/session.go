package auth

import (
	"strings"
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of the session state.
type Snapshot struct {
	User        string
	AccessToken string
	ExpiresAt   time.Time
}

// LoggedIn reports whether a bearer token is available.
func (s Snapshot) LoggedIn() bool {
	return s.AccessToken != ""
}

// ChangeFunc observes session transitions. It runs on the writer's goroutine
// after the new state is visible to readers.
type ChangeFunc func(prev, next Snapshot)

// Session holds the current user and bearer token. The identity provider
// binding is the only writer; every outgoing request reads the token at call
// time through AccessToken.
type Session struct {
	mu        sync.RWMutex
	current   Snapshot
	listeners map[int]ChangeFunc
	nextID    int
}

func NewSession() *Session {
	return &Session{listeners: make(map[int]ChangeFunc)}
}

// AccessToken returns the latest known token or "".
func (s *Session) AccessToken() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.AccessToken
}

// Current returns a copy of the session state.
func (s *Session) Current() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SetToken replaces the token and derives the user from its claims. Tokens
// whose payload cannot be decoded are still accepted; the user is then empty.
func (s *Session) SetToken(token string) Snapshot {
	token = strings.TrimSpace(token)
	if token == "" {
		s.Clear()
		return Snapshot{}
	}
	next := Snapshot{AccessToken: token}
	if claims, err := ParseClaims(token); err == nil {
		next.User = claims.DisplayName()
		if claims.ExpiresAt != nil {
			next.ExpiresAt = claims.ExpiresAt.Time.UTC()
		}
	}
	s.Replace(next)
	return next
}

// Replace installs next and notifies listeners when anything changed.
func (s *Session) Replace(next Snapshot) {
	s.mu.Lock()
	prev := s.current
	if prev.equal(next) {
		s.mu.Unlock()
		return
	}
	s.current = next
	listeners := make([]ChangeFunc, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(prev, next)
	}
}

func (s Snapshot) equal(o Snapshot) bool {
	return s.User == o.User && s.AccessToken == o.AccessToken && s.ExpiresAt.Equal(o.ExpiresAt)
}

// Clear logs the session out.
func (s *Session) Clear() {
	s.Replace(Snapshot{})
}

// OnChange registers fn and returns a function that removes it.
func (s *Session) OnChange(fn ChangeFunc) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}
