package log

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"
	"time"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.blog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test log: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	var out []Event
	for {
		event, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		out = append(out, event)
	}
}

func TestReaderIteratesEvents(t *testing.T) {
	events := []Event{
		{Timestamp: time.Now(), SessionID: "s-1", Layer: LayerMemory, Category: CategoryCommit},
		{Timestamp: time.Now(), SessionID: "s-2", Layer: LayerTables, Category: CategoryTelegram},
		{Timestamp: time.Now(), SessionID: "s-3", Layer: LayerDevice, Category: CategoryLifecycle},
	}
	path := createTestLogFile(t, events)

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)
	if len(read) != 3 {
		t.Fatalf("got %d events, want 3", len(read))
	}
	for i, want := range []string{"s-1", "s-2", "s-3"} {
		if read[i].SessionID != want {
			t.Errorf("event %d SessionID = %q, want %q", i, read[i].SessionID, want)
		}
	}
}

func TestReaderFilters(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	in, out := DirectionIn, DirectionOut
	ga := uint16(0x0A01)
	commit := CategoryCommit
	devLayer := LayerDevice

	events := []Event{
		{Timestamp: base, SessionID: "a", Category: CategoryTelegram, Direction: DirectionIn,
			Telegram: &TelegramEvent{Dest: 0x0A01, Group: true}},
		{Timestamp: base.Add(time.Second), SessionID: "a", Category: CategoryTelegram, Direction: DirectionOut,
			Telegram: &TelegramEvent{Dest: 0x0A02, Group: true}},
		{Timestamp: base.Add(2 * time.Second), SessionID: "b", Category: CategoryCommit, Layer: LayerMemory,
			Variant: "MASK0701", Commit: &CommitEvent{Region: "eeprom"}},
		{Timestamp: base.Add(3 * time.Second), SessionID: "b", Category: CategoryLifecycle, Layer: LayerDevice,
			Lifecycle: &LifecycleEvent{NewState: "RUNNING"}},
	}
	path := createTestLogFile(t, events)

	start := base.Add(time.Second)
	end := base.Add(3 * time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"session", Filter{SessionID: "b"}, 2},
		{"direction in", Filter{Direction: &in}, 1},
		{"direction out", Filter{Direction: &out}, 1},
		{"category", Filter{Category: &commit}, 1},
		{"layer", Filter{Layer: &devLayer}, 1},
		{"time window", Filter{TimeStart: &start, TimeEnd: &end}, 2},
		{"variant", Filter{Variant: "MASK0701"}, 1},
		{"group address", Filter{GroupAddress: &ga}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewFilteredReader(path, tt.filter)
			if err != nil {
				t.Fatalf("NewFilteredReader failed: %v", err)
			}
			defer r.Close()

			if got := len(readAll(t, r)); got != tt.want {
				t.Errorf("got %d events, want %d", got, tt.want)
			}
		})
	}
}

func TestStreamReader(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStreamLogger(&buf)
	for _, s := range []string{"a", "b", "a", "c"} {
		logger.Log(Event{Timestamp: time.Now(), SessionID: s, Category: CategoryLifecycle})
	}

	r := NewStreamReader(bytes.NewReader(buf.Bytes()), Filter{SessionID: "a"})
	if got := len(readAll(t, r)); got != 2 {
		t.Errorf("got %d events, want 2", got)
	}
	if r.Skipped() != 2 {
		t.Errorf("Skipped() = %d, want 2", r.Skipped())
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}

	t.Run("Truncated", func(t *testing.T) {
		r := NewStreamReader(bytes.NewReader(buf.Bytes()[:buf.Len()-1]), Filter{})
		for i := 0; i < 3; i++ {
			if _, err := r.Next(); err != nil {
				t.Fatalf("event %d: %v", i, err)
			}
		}
		if _, err := r.Next(); err == nil || err == io.EOF {
			t.Errorf("Next() on a cut event = %v, want a decode error", err)
		}
	})
}

func TestReaderMissingFile(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "missing.blog")); err == nil {
		t.Error("NewReader should fail for a missing file")
	}
}
