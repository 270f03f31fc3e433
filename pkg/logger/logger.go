package logger

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"dxwifi-firmware/pkg/globals"

	"gopkg.in/natefinch/lumberjack.v2"
)

const maxLogs = 1000

type Entry struct {
	Time string `json:"time"`
	Msg  string `json:"msg"`
}

// writer keeps the most recent log lines for the telemetry getLogs request
type writer struct {
	mu   sync.Mutex
	path string
	logs []Entry
}

var w *writer

func Init() {
	os.MkdirAll(filepath.Dir(globals.LogsPath), 0755)

	w = newWriter(globals.LogsPath)
	rotating := &lumberjack.Logger{
		Filename:   globals.LogFilePath,
		MaxSize:    5, // megabytes
		MaxBackups: 3,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotating, w))
}

func newWriter(path string) *writer {
	return &writer{path: path, logs: load(path)}
}

func (wr *writer) Write(p []byte) (int, error) {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	wr.logs = append(wr.logs, Entry{
		Time: time.Now().UTC().Format(time.RFC3339),
		Msg:  string(p),
	})

	if len(wr.logs) > maxLogs {
		wr.logs = wr.logs[len(wr.logs)-maxLogs:]
	}

	save(wr.path, wr.logs)
	return len(p), nil
}

func (wr *writer) entries() []Entry {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	return append([]Entry{}, wr.logs...)
}

func GetLogs() []Entry {
	if w == nil {
		return []Entry{}
	}
	return w.entries()
}

func load(path string) []Entry {
	data, err := os.ReadFile(path)
	if err != nil {
		return []Entry{}
	}
	var logs []Entry
	json.Unmarshal(data, &logs)
	return logs
}

func save(path string, logs []Entry) {
	data, _ := json.Marshal(logs)
	os.WriteFile(path, data, 0644)
}
