package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/launchcheck/internal/history"
	"github.com/loykin/launchcheck/internal/result"
)

func event(seq int, status result.Status) history.Event {
	return history.Event{
		RunID:      "6f1c9a52-8d0e-4a8b-9d76-2b1d3f0c4e11",
		Seq:        seq,
		OccurredAt: time.Now().UTC(),
		Result: result.TestResult{
			Name:                   "Notepad",
			LauncherFileName:       "Notepad.lnk",
			ExpectedExecutableName: "notepad.exe",
			Status:                 status,
			Remarks:                "Application tested successfully.",
			AssociatedWindowTitles: []string{"Untitled - Notepad"},
			Duration:               9 * time.Second,
		},
	}
}

func TestSQLiteSink_Integration(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")

	sink, err := New("file:" + dbPath)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	ctx := context.Background()
	if err := sink.Send(ctx, event(1, result.StatusSuccess)); err != nil {
		t.Fatalf("Failed to send event: %v", err)
	}
	if err := sink.Send(ctx, event(2, result.StatusFailed)); err != nil {
		t.Fatalf("Failed to send event: %v", err)
	}

	var count int
	if err := sink.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM launch_history WHERE name = ?", "Notepad").Scan(&count); err != nil {
		t.Fatalf("Failed to query launch_history: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 events in history, got %d", count)
	}

	var status, closed string
	var ms int64
	err = sink.db.QueryRowContext(ctx, "SELECT status, closed_windows, duration_ms FROM launch_history WHERE seq = 2").Scan(&status, &closed, &ms)
	if err != nil {
		t.Fatalf("Failed to read row: %v", err)
	}
	if status != "Failed" || closed != "None" || ms != 9000 {
		t.Errorf("unexpected row: status=%q closed=%q ms=%d", status, closed, ms)
	}
}

func TestSQLiteSink_Memory(t *testing.T) {
	sink, err := New("sqlite://:memory:")
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	if err := sink.Send(context.Background(), event(1, result.StatusMostlyPass)); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
