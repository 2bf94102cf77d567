package session

import (
	"errors"
	"testing"
)

func TestLoginRejectsEmptySession(t *testing.T) {
	s := NewState()
	if err := s.Login(Session{}); !errors.Is(err, ErrEmptySession) {
		t.Fatalf("expected ErrEmptySession, got %v", err)
	}
	if s.IsLoggedIn() {
		t.Fatal("state should remain empty after rejected login")
	}
}

func TestLoginReplacesSlot(t *testing.T) {
	s := NewState()
	if err := s.Login(Session{UserID: 1, Nickname: "Ana"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := s.Login(Session{UserID: 2, Nickname: "Bob", CanHost: true}); err != nil {
		t.Fatalf("second login: %v", err)
	}

	cur, ok := s.Current()
	if !ok {
		t.Fatal("expected a current session")
	}
	if cur.UserID != 2 || cur.Nickname != "Bob" || !cur.CanHost {
		t.Fatalf("unexpected session: %+v", cur)
	}
}

func TestLogoutClearsUnconditionally(t *testing.T) {
	s := NewState()
	s.Logout() // empty slot is fine

	if err := s.Login(Session{UserID: 1, Nickname: "Ana"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	s.Logout()

	if s.IsLoggedIn() {
		t.Fatal("expected logged out")
	}
	if _, ok := s.Current(); ok {
		t.Fatal("expected no current session")
	}
}
