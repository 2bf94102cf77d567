// Package session holds the single authenticated identity for the process.
package session

import (
	"errors"
	"sync"
)

// ErrEmptySession rejects a login with a zero-value identity.
var ErrEmptySession = errors.New("session: empty session")

// Session is the authenticated identity created on login.
type Session struct {
	UserID   int
	Nickname string
	CanHost  bool
	IsGuest  bool
}

func (s Session) isZero() bool {
	return s == Session{}
}

// State is the process-wide identity slot. Its lifecycle is the application
// run; expiry is the server's job and surfaces as channel faults.
type State struct {
	mu      sync.Mutex
	current *Session
}

// NewState returns an empty identity slot.
func NewState() *State {
	return &State{}
}

// Login replaces the slot. An empty session is an invalid argument.
func (s *State) Login(sess Session) error {
	if sess.isZero() {
		return ErrEmptySession
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &sess
	return nil
}

// Logout clears the slot unconditionally.
func (s *State) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}

// IsLoggedIn reports whether the slot is occupied.
func (s *State) IsLoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Current returns the logged-in identity, if any.
func (s *State) Current() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}
