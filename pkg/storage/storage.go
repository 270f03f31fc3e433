package storage

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"dxwifi-firmware/pkg/globals"

	"github.com/shirou/gopsutil/v3/disk"
	"golang.org/x/crypto/blake2b"
)

const maxHistory = 500

// Attempt is one file handed to the transmitter
type Attempt struct {
	PassID    string    `json:"passId"`
	File      string    `json:"file"`
	Size      int64     `json:"size"`
	Digest    string    `json:"digest"` // BLAKE2b-256, hex
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type History struct {
	Attempts []Attempt `json:"attempts"`
}

type Storage struct {
	mu          sync.Mutex
	historyPath string
}

var instance *Storage
var once sync.Once

func Init() error {
	once.Do(func() {
		instance = New(globals.HistoryPath)
	})

	// MkdirAll is safe - it's a no-op if directory exists
	if err := os.MkdirAll(globals.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	return instance.ensureHistory()
}

func Get() *Storage {
	if instance == nil {
		panic("storage not initialized - call Init() first")
	}
	return instance
}

func New(historyPath string) *Storage {
	return &Storage{historyPath: historyPath}
}

func (s *Storage) ensureHistory() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.historyPath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(s.historyPath), 0755); err != nil {
			return fmt.Errorf("failed to create history directory: %w", err)
		}
		return s.writeHistory(&History{Attempts: []Attempt{}})
	}
	return nil
}

// ListPending returns the regular files in dir in lexicographic order.
// A missing directory is created and reported as empty.
func ListPending(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list output directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)

	return files, nil
}

// Purge deletes every entry in dir and leaves dir itself in place.
// It stops at the first entry that cannot be removed.
func Purge(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list output directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
		removed++
	}

	log.Printf("Purged %d entries from %s", removed, dir)
	return removed, nil
}

// FreeSpace returns the bytes available to unprivileged writers on the
// partition holding path
func FreeSpace(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, fmt.Errorf("failed to get filesystem stats: %w", err)
	}
	return usage.Free, nil
}

// Digest returns the hex BLAKE2b-256 of the file at path and its size
func Digest(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// RecordAttempt appends a to the transmission history, dropping the oldest
// entries beyond maxHistory
func (s *Storage) RecordAttempt(a Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := s.readHistory()
	if err != nil {
		return err
	}

	history.Attempts = append(history.Attempts, a)
	if len(history.Attempts) > maxHistory {
		history.Attempts = history.Attempts[len(history.Attempts)-maxHistory:]
	}

	return s.writeHistory(history)
}

// GetHistory returns all attempts, newest first
func (s *Storage) GetHistory() ([]Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := s.readHistory()
	if err != nil {
		return nil, err
	}

	attempts := make([]Attempt, len(history.Attempts))
	for i := range history.Attempts {
		attempts[i] = history.Attempts[len(history.Attempts)-1-i]
	}

	return attempts, nil
}

func (s *Storage) readHistory() (*History, error) {
	data, err := os.ReadFile(s.historyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &History{Attempts: []Attempt{}}, nil
		}
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	var history History
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to parse history: %w", err)
	}

	return &history, nil
}

func (s *Storage) writeHistory(history *History) error {
	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := os.WriteFile(s.historyPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}

	return nil
}
