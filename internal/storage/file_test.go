package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileRecorderAppendLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history", "history.jsonl")
	rec, err := NewFileRecorder(path)
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{Timestamp: ts, UserID: 1, Role: "user", Text: "ping"},
		{Timestamp: ts.Add(time.Second), UserID: 1, Role: "assistant", Text: "pong"},
		{Timestamp: ts.Add(time.Minute), UserID: 2, Role: "user", Text: "other"},
	}
	for _, ev := range events {
		if err := rec.AppendInteraction(ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := rec.LoadInteractions()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 events, got %d", len(got))
	}
	for i, ev := range got {
		if ev.UserID != events[i].UserID || ev.Role != events[i].Role || ev.Text != events[i].Text {
			t.Fatalf("event %d mismatch: %+v", i, ev)
		}
		if !ev.Timestamp.Equal(events[i].Timestamp) {
			t.Fatalf("event %d timestamp mismatch: %v", i, ev.Timestamp)
		}
	}
}

func TestFileRecorderSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	rec, err := NewFileRecorder(path)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := rec.AppendInteraction(Event{UserID: 1, Role: "user", Text: "ok"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("not json\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = f.Close()

	got, err := rec.LoadInteractions()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].Text != "ok" {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestImageArchiveSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "images")
	a, err := NewImageArchive(dir)
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	ts := time.Date(2024, 6, 1, 12, 30, 45, 0, time.UTC)
	path, err := a.Save(42, ts, []byte{0xff, 0xd8, 0xff})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Base(path) != "42_20240601123045.jpg" {
		t.Fatalf("unexpected file name: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(data) != 3 || data[0] != 0xff {
		t.Fatalf("unexpected content: %v", data)
	}
}
