package logger

import (
	"fmt"
	"path/filepath"
	"testing"
)

func TestWriterKeepsMostRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.json")
	wr := newWriter(path)

	for i := 0; i < maxLogs+5; i++ {
		fmt.Fprintf(wr, "line %d\n", i)
	}

	logs := wr.entries()
	if len(logs) != maxLogs {
		t.Fatalf("expected %d entries, got %d", maxLogs, len(logs))
	}
	if logs[0].Msg != "line 5\n" {
		t.Errorf("expected oldest kept line to be 'line 5', got %q", logs[0].Msg)
	}
}

func TestWriterReloadsFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.json")
	wr := newWriter(path)
	fmt.Fprint(wr, "Changing mode: STANDBY -> FILM\n")

	reloaded := newWriter(path)
	logs := reloaded.entries()
	if len(logs) != 1 || logs[0].Msg != "Changing mode: STANDBY -> FILM\n" {
		t.Errorf("unexpected reloaded logs: %+v", logs)
	}
}

func TestGetLogsBeforeInit(t *testing.T) {
	saved := w
	w = nil
	defer func() { w = saved }()

	if logs := GetLogs(); len(logs) != 0 {
		t.Errorf("expected no logs, got %d", len(logs))
	}
}
