package store

import (
	"path/filepath"
	"testing"
)

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "qibla.db"))
	if err != nil {
		t.Fatalf("Failed to open SQLite store: %v", err)
	}
	testSessionStore(t, s)
}

func TestSQLiteStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qibla.db")

	s, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("Failed to open SQLite store: %v", err)
	}
	if err := s.Save(&Session{SessionID: "s1", UserID: "user1"}); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	s, err = NewSQLite(path)
	if err != nil {
		t.Fatalf("Failed to reopen SQLite store: %v", err)
	}
	defer s.Close()

	sessions, err := s.ListByUser("user1", 0)
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != "s1" {
		t.Errorf("Expected s1 to survive reopen, got %+v", sessions)
	}
}
