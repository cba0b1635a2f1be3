package store

import (
	"path/filepath"
	"testing"

	"github.com/npresenced/npresenced/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	s.Close()
}

func TestOpen_IdempotentMigration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	s2.Close()
}

func TestRecord_AndHistory(t *testing.T) {
	s := openTestStore(t)

	transitions := []models.Transition{
		{MAC: "aa:bb:cc:dd:ee:ff", Edge: models.EdgeUp, Name: "Phone", Timestamp: 100},
		{MAC: "aa:bb:cc:dd:ee:ff", Edge: models.EdgeDown, Name: "Phone", Timestamp: 200},
		{MAC: "11:22:33:44:55:66", Edge: models.EdgeUp, Name: "Other", Timestamp: 150},
	}
	for _, tr := range transitions {
		if err := s.Record(tr); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	hist, err := s.History("aa:bb:cc:dd:ee:ff", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("got %d transitions, want 2", len(hist))
	}
	if hist[0].Edge != models.EdgeDown {
		t.Errorf("expected newest-first ordering, got edge=%v first", hist[0].Edge)
	}
}

func TestHistory_RespectsLimit(t *testing.T) {
	s := openTestStore(t)
	for i := int64(0); i < 5; i++ {
		s.Record(models.Transition{MAC: "aa:bb:cc:dd:ee:ff", Edge: models.EdgeUp, Timestamp: i})
	}

	hist, err := s.History("aa:bb:cc:dd:ee:ff", 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 {
		t.Errorf("got %d transitions, want 2", len(hist))
	}
}

func TestHistory_UnknownMAC(t *testing.T) {
	s := openTestStore(t)
	hist, err := s.History("00:00:00:00:00:00", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 0 {
		t.Errorf("expected no transitions for unknown MAC, got %d", len(hist))
	}
}
