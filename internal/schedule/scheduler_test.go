package schedule

import (
	"fmt"
	"os"
	"testing"
	"time"
)

func TestRunGuild_RecordsMarker(t *testing.T) {
	dir := t.TempDir()
	s := NewService(dir, 0, 4)
	now := time.Date(2025, 3, 2, 4, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	var runs []string
	s.OnBackup = func(guildID string) error {
		runs = append(runs, guildID)
		return nil
	}

	s.RunGuild("g1")
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}

	// Marker survives a restart.
	s2 := NewService(dir, 0, 4)
	if err := s2.load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := s2.lastRun["g1"]; !got.Equal(now) {
		t.Errorf("lastRun = %v, want %v", got, now)
	}
}

func TestRunGuild_DoubleFireGuard(t *testing.T) {
	s := NewService(t.TempDir(), 0, 4)
	now := time.Date(2025, 3, 2, 4, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	var runs int
	s.OnBackup = func(string) error { runs++; return nil }

	s.RunGuild("g1")
	// Second observation of the same window.
	now = now.Add(10 * time.Minute)
	s.RunGuild("g1")

	if runs != 1 {
		t.Errorf("runs = %d, want 1 (double fire suppressed)", runs)
	}

	// Next week fires again.
	now = now.Add(7 * 24 * time.Hour)
	s.RunGuild("g1")
	if runs != 2 {
		t.Errorf("runs = %d, want 2", runs)
	}
}

func TestRunGuild_FailureDoesNotAdvanceMarker(t *testing.T) {
	s := NewService(t.TempDir(), 0, 4)
	now := time.Date(2025, 3, 2, 4, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	fail := true
	var runs int
	s.OnBackup = func(string) error {
		runs++
		if fail {
			return fmt.Errorf("send failed")
		}
		return nil
	}

	s.RunGuild("g1")
	fail = false
	s.RunGuild("g1")
	if runs != 2 {
		t.Errorf("runs = %d, want 2 (failed run is retried)", runs)
	}
}

func TestCatchUp_FiresForMissedWindow(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	s := NewService(dir, 0, 4)
	s.now = func() time.Time { return now }
	s.lastRun["stale"] = now.Add(-8 * 24 * time.Hour)
	s.lastRun["fresh"] = now.Add(-24 * time.Hour)
	s.Guilds = func() []string { return []string{"stale", "fresh", "new"} }

	var runs []string
	s.OnBackup = func(guildID string) error {
		runs = append(runs, guildID)
		return nil
	}

	s.catchUp()

	if len(runs) != 1 || runs[0] != "stale" {
		t.Errorf("runs = %v, want only the stale guild", runs)
	}
}

func TestStartStop(t *testing.T) {
	s := NewService(t.TempDir(), 0, 4)
	s.Guilds = func() []string { return nil }
	s.OnBackup = func(string) error { return nil }

	if err := s.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	s.Stop()
}

func TestStart_BadStateFileIsNonFatal(t *testing.T) {
	dir := t.TempDir()
	s := NewService(dir, 0, 4)
	if err := os.WriteFile(s.statePath, []byte("{corrupt"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("corrupt state file must not block startup: %v", err)
	}
	s.Stop()
}
