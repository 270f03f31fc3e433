package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestPurgeEmptyDirectory(t *testing.T) {
	dir := t.TempDir()

	n, err := Purge(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 removed, got %d", n)
	}
}

func TestPurgeRemovesEverything(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.jpeg", "b.jpeg", "c.tar")
	os.MkdirAll(filepath.Join(dir, "0001", "nested"), 0755)
	writeFiles(t, filepath.Join(dir, "0001"), "frame0001.ppm")

	n, err := Purge(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 removed, got %d", n)
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatal("output directory should still exist")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected empty directory, found %d entries", len(entries))
	}
}

func TestPurgeMissingDirectory(t *testing.T) {
	n, err := Purge(filepath.Join(t.TempDir(), "absent"))
	if err != nil || n != 0 {
		t.Errorf("expected (0, nil), got (%d, %v)", n, err)
	}
}

func TestListPendingSortedFilesOnly(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "camera-3.jpeg", "camera-1.jpeg", "camera-2.jpeg")
	os.Mkdir(filepath.Join(dir, "subdir"), 0755)

	files, err := ListPending(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"camera-1.jpeg", "camera-2.jpeg", "camera-3.jpeg"}
	if len(files) != len(want) {
		t.Fatalf("expected %d files, got %v", len(want), files)
	}
	for i, name := range want {
		if filepath.Base(files[i]) != name {
			t.Errorf("position %d: expected %s, got %s", i, name, files[i])
		}
	}
}

func TestListPendingCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "frames")

	files, err := ListPending(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected no files, got %v", files)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Error("expected directory to be created")
	}
}

func TestDigest(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.jpeg")

	sum, size, err := Digest(filepath.Join(dir, "a.jpeg"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if size != int64(len("a.jpeg")) {
		t.Errorf("unexpected size %d", size)
	}
	if len(sum) != 64 || strings.Trim(sum, "0123456789abcdef") != "" {
		t.Errorf("expected 64 hex chars, got %q", sum)
	}

	again, _, _ := Digest(filepath.Join(dir, "a.jpeg"))
	if again != sum {
		t.Error("digest not stable")
	}
}

func TestFreeSpace(t *testing.T) {
	free, err := FreeSpace(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if free == 0 {
		t.Error("expected some free space on the test filesystem")
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "history.json"))
	if err := s.ensureHistory(); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"a", "b", "c"} {
		err := s.RecordAttempt(Attempt{PassID: "p1", File: name, Success: true, Timestamp: time.Now()})
		if err != nil {
			t.Fatalf("RecordAttempt failed: %v", err)
		}
	}

	attempts, err := s.GetHistory()
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(attempts) != 3 || attempts[0].File != "c" || attempts[2].File != "a" {
		t.Errorf("unexpected order: %+v", attempts)
	}
}

func TestHistoryBounded(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "history.json"))

	for i := 0; i < maxHistory+10; i++ {
		s.RecordAttempt(Attempt{File: "f"})
	}

	attempts, _ := s.GetHistory()
	if len(attempts) != maxHistory {
		t.Errorf("expected %d attempts, got %d", maxHistory, len(attempts))
	}
}
